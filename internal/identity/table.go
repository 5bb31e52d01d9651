// Package identity resolves opaque bearer tokens to provisioned users.
//
// The table is fixed at startup: it is parsed once from configuration
// and never mutated afterwards, so lookups need no locking.
package identity

import (
	"fmt"
	"strings"

	"github.com/romano/lista/internal/domain"
)

// DefaultProvisioning is the provisioning set used when no explicit
// configuration is given.
const DefaultProvisioning = "user1:user1:Alice,user2:user2:Bob,user3:user3:Charlie"

// Table maps opaque tokens to users.
type Table struct {
	byToken map[string]domain.User
	users   []domain.User
}

// Parse builds a table from a comma-separated list of token:userID:name
// triples.
func Parse(provisioning string) (*Table, error) {
	table := &Table{byToken: make(map[string]domain.User)}
	seenIDs := make(map[string]struct{})

	for _, entry := range strings.Split(provisioning, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		parts := strings.SplitN(entry, ":", 3)
		if len(parts) != 3 {
			return nil, fmt.Errorf("malformed user entry %q: want token:userID:name", entry)
		}
		token := strings.TrimSpace(parts[0])
		userID := strings.TrimSpace(parts[1])
		name := strings.TrimSpace(parts[2])
		if token == "" || userID == "" || name == "" {
			return nil, fmt.Errorf("user entry %q has empty fields", entry)
		}
		if _, dup := table.byToken[token]; dup {
			return nil, fmt.Errorf("duplicate token %q", token)
		}
		if _, dup := seenIDs[userID]; dup {
			return nil, fmt.Errorf("duplicate user id %q", userID)
		}

		user := domain.User{ID: userID, Name: name}
		table.byToken[token] = user
		table.users = append(table.users, user)
		seenIDs[userID] = struct{}{}
	}

	if len(table.users) == 0 {
		return nil, fmt.Errorf("at least one provisioned user is required")
	}
	return table, nil
}

// Resolve returns the user bound to token.
func (t *Table) Resolve(token string) (domain.User, bool) {
	user, ok := t.byToken[token]
	return user, ok
}

// Users returns the provisioned users in configuration order.
func (t *Table) Users() []domain.User {
	users := make([]domain.User, len(t.users))
	copy(users, t.users)
	return users
}
