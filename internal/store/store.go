// Package store owns the authoritative in-memory shared list state.
//
// A single mutex covers snapshot reads and every mutation, so mutations
// are totally ordered and each broadcast reflects exactly one
// mutation's outcome. The broadcaster is invoked synchronously inside
// the critical section; at this scale that keeps the ordering guarantee
// trivial (no two broadcasts can interleave) at the cost of serializing
// fan-out with mutations.
package store

import (
	"fmt"
	"slices"
	"sync"

	"github.com/romano/lista/internal/domain"
	"github.com/romano/lista/internal/errors"
)

// Snapshot is a consistent point-in-time copy of the store. Seq
// increases by one per mutation, so receivers can detect stale or
// out-of-order views.
type Snapshot struct {
	Seq   uint64        `json:"seq"`
	Items []domain.Item `json:"items"`
	Users []domain.User `json:"users"`
}

// Broadcaster receives the post-mutation snapshot after every
// successful mutation, before the mutating call returns.
type Broadcaster interface {
	Broadcast(Snapshot)
}

// Option configures a Store.
type Option func(*Store)

// WithBroadcaster wires the fan-out target invoked after each mutation.
func WithBroadcaster(b Broadcaster) Option {
	return func(s *Store) {
		s.broadcaster = b
	}
}

// WithIDGenerator overrides item id generation.
func WithIDGenerator(generator func() (string, error)) Option {
	return func(s *Store) {
		s.idGenerator = generator
	}
}

// Store holds the shared list of items and the known users.
type Store struct {
	mu          sync.Mutex
	seq         uint64
	items       []domain.Item
	users       []domain.User
	broadcaster Broadcaster
	idGenerator func() (string, error)
}

// New creates a store seeded with the provisioned users.
func New(users []domain.User, opts ...Option) *Store {
	s := &Store{
		users:       slices.Clone(users),
		idGenerator: domain.NewID,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// List returns a consistent snapshot of items and users.
func (s *Store) List() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Create validates input, appends a new MISSING item, and broadcasts
// the updated snapshot.
func (s *Store) Create(name string, quantity int, creator domain.User) (domain.Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	item, err := domain.NewItem(domain.CreateItemInput{
		Name:      name,
		Quantity:  quantity,
		CreatedBy: creator.ID,
	}, s.idGenerator)
	if err != nil {
		return domain.Item{}, err
	}

	s.items = append(s.items, item)
	s.mutatedLocked()
	return item, nil
}

// SetState applies the item state machine for the acting user and
// broadcasts the updated snapshot on success.
func (s *Store) SetState(itemID string, next domain.ItemState, actor domain.User) (domain.Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	index := s.indexLocked(itemID)
	if index < 0 {
		return domain.Item{}, errors.New(errors.CodeNotFound, fmt.Sprintf("item %q not found", itemID))
	}

	updated, err := s.items[index].WithState(next, actor.ID)
	if err != nil {
		return domain.Item{}, err
	}

	s.items[index] = updated
	s.mutatedLocked()
	return updated, nil
}

// Delete removes an item. Only the creator may delete, regardless of
// item state.
func (s *Store) Delete(itemID string, actor domain.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	index := s.indexLocked(itemID)
	if index < 0 {
		return errors.New(errors.CodeNotFound, fmt.Sprintf("item %q not found", itemID))
	}
	if !s.items[index].DeletableBy(actor.ID) {
		return errors.New(errors.CodeForbidden, "only the creator can delete the item")
	}

	s.items = slices.Delete(s.items, index, index+1)
	s.mutatedLocked()
	return nil
}

func (s *Store) indexLocked(itemID string) int {
	return slices.IndexFunc(s.items, func(item domain.Item) bool {
		return item.ID == itemID
	})
}

// snapshotLocked copies into freshly allocated slices so empty lists
// serialize as [] rather than null.
func (s *Store) snapshotLocked() Snapshot {
	items := make([]domain.Item, len(s.items))
	copy(items, s.items)
	users := make([]domain.User, len(s.users))
	copy(users, s.users)
	return Snapshot{Seq: s.seq, Items: items, Users: users}
}

// mutatedLocked advances the sequence number and hands the new snapshot
// to the broadcaster while still holding the store lock.
func (s *Store) mutatedLocked() {
	s.seq++
	if s.broadcaster != nil {
		s.broadcaster.Broadcast(s.snapshotLocked())
	}
}
