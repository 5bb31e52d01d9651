package domain

import (
	"fmt"
	"strings"

	"github.com/romano/lista/internal/errors"
)

// ItemState describes where a shopping item sits in its lifecycle.
// States are serialized by name on every wire surface.
type ItemState string

const (
	// StateMissing marks an item nobody has claimed yet.
	StateMissing ItemState = "MISSING"
	// StateBuying marks an item a user has claimed to purchase.
	StateBuying ItemState = "BUYING"
	// StateDone marks a purchased item. The buying user is retained so
	// the list records who completed the purchase.
	StateDone ItemState = "DONE"
)

// Valid reports whether s is a known item state.
func (s ItemState) Valid() bool {
	switch s {
	case StateMissing, StateBuying, StateDone:
		return true
	}
	return false
}

// Item is a single entry on the shared shopping list.
//
// ID and CreatedBy are immutable after creation. BuyingUser is set
// exactly when State is BUYING or DONE.
type Item struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Quantity   int       `json:"quantity"`
	State      ItemState `json:"state"`
	CreatedBy  string    `json:"createdBy"`
	BuyingUser string    `json:"buyingUser,omitempty"`
}

// CreateItemInput describes the fields needed to create an item.
type CreateItemInput struct {
	Name      string
	Quantity  int
	CreatedBy string
}

// NewItem validates input and creates a MISSING item with a generated ID.
func NewItem(input CreateItemInput, idGenerator func() (string, error)) (Item, error) {
	if idGenerator == nil {
		idGenerator = NewID
	}

	input.Name = strings.TrimSpace(input.Name)
	if input.Name == "" {
		return Item{}, errors.New(errors.CodeValidation, "item name is required")
	}
	if input.Quantity < 1 {
		return Item{}, errors.New(errors.CodeValidation, "item quantity must be at least 1")
	}

	itemID, err := idGenerator()
	if err != nil {
		return Item{}, fmt.Errorf("generate item id: %w", err)
	}

	return Item{
		ID:        itemID,
		Name:      input.Name,
		Quantity:  input.Quantity,
		State:     StateMissing,
		CreatedBy: input.CreatedBy,
	}, nil
}

// WithState applies the item state machine for the given actor and
// returns the updated item.
//
// Legal transitions: MISSING to BUYING (any actor becomes the buying
// user) and BUYING to DONE (only the buying user, who stays recorded on
// the item). Every other requested transition fails with
// INVALID_TRANSITION; a completion attempt by anyone but the buying
// user fails with FORBIDDEN.
func (i Item) WithState(next ItemState, actorID string) (Item, error) {
	if !next.Valid() {
		return Item{}, errors.New(errors.CodeValidation, fmt.Sprintf("unknown item state %q", next))
	}

	switch {
	case i.State == StateMissing && next == StateBuying:
		i.State = StateBuying
		i.BuyingUser = actorID
		return i, nil

	case i.State == StateBuying && next == StateDone:
		if i.BuyingUser != actorID {
			return Item{}, errors.New(errors.CodeForbidden, "only the buying user can complete the purchase")
		}
		i.State = StateDone
		return i, nil

	default:
		return Item{}, errors.New(errors.CodeInvalidTransition,
			fmt.Sprintf("cannot move item from %s to %s", i.State, next))
	}
}

// DeletableBy reports whether actorID may delete the item. Only the
// creator holds deletion rights, regardless of item state.
func (i Item) DeletableBy(actorID string) bool {
	return i.CreatedBy == actorID
}
