package selection

import (
	"context"
	"sync"

	"github.com/creastat/consolesync"
	"github.com/creastat/consolesync/internal/clock"
)

// InMemoryStore keeps selections for the lifetime of the process. It suits
// long-running consoles and tests; a CLI needs the sqlite or redis driver to
// remember a selection between runs.
type InMemoryStore struct {
	mu     sync.RWMutex
	byUser map[string]Selection
	clock  clock.Clock
}

// NewInMemoryStore creates an empty store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{byUser: make(map[string]Selection), clock: clock.Real()}
}

// Create implements Store.
func (s *InMemoryStore) Create(ctx context.Context, sel *Selection) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byUser[sel.UserID]; ok {
		return consolesync.ErrAlreadyExists
	}
	if err := firstVersion(sel, s.clock.Now()); err != nil {
		return err
	}
	s.byUser[sel.UserID] = *sel
	return nil
}

// Get implements Store. The returned selection is a copy.
func (s *InMemoryStore) Get(ctx context.Context, userID string) (*Selection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sel, ok := s.byUser[userID]
	if !ok {
		return nil, nil
	}
	return &sel, nil
}

// Update implements Store.
func (s *InMemoryStore) Update(ctx context.Context, sel *Selection) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.byUser[sel.UserID]
	if !ok {
		return consolesync.ErrNotFound
	}
	next, err := nextVersion(stored, *sel, s.clock.Now())
	if err != nil {
		return err
	}
	s.byUser[sel.UserID] = next
	*sel = next
	return nil
}

// Delete implements Store.
func (s *InMemoryStore) Delete(ctx context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.byUser, userID)
	return nil
}

// Close drops every selection.
func (s *InMemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	clear(s.byUser)
	return nil
}
