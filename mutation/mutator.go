// Package mutation applies local edits to cached remote data ahead of the
// remote write and reconciles the cache with the outcome.
package mutation

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/creastat/consolesync"
	"github.com/creastat/consolesync/resource"
)

// Operation is one two-phase edit. Apply runs first and may write the cache
// optimistically; Confirm performs the remote write. On success Commit
// folds the authoritative result into the cache, otherwise Revert undoes
// Apply and schedules a refetch.
type Operation interface {
	// Name describes the edit for logs and errors.
	Name() string
	// Apply reports whether it changed the cache.
	Apply(cache *resource.Cache) bool
	Confirm(ctx context.Context) error
	Commit(ctx context.Context, cache *resource.Cache)
	Revert(ctx context.Context, cache *resource.Cache)
}

// Validator is implemented by operations that can reject their input before
// anything is written.
type Validator interface {
	Validate() error
}

// Mutator runs operations against one cache.
type Mutator struct {
	cache  *resource.Cache
	logger *slog.Logger
}

// New creates a Mutator.
func New(cache *resource.Cache, logger *slog.Logger) *Mutator {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Mutator{cache: cache, logger: logger}
}

// Cache returns the cache operations run against.
func (m *Mutator) Cache() *resource.Cache { return m.cache }

// Run executes op. The optimistic write, if any, is visible to cache
// subscribers before the remote write starts. A failed remote write is
// returned as a *consolesync.MutationError after the cache has been reverted.
// Input rejected by Validate is returned as is; nothing was written then.
func (m *Mutator) Run(ctx context.Context, op Operation) error {
	if v, ok := op.(Validator); ok {
		if err := v.Validate(); err != nil {
			return fmt.Errorf("%s: %w", op.Name(), err)
		}
	}

	applied := op.Apply(m.cache)
	m.logger.Debug("mutation applied", "operation", op.Name(), "optimistic", applied)

	if err := op.Confirm(ctx); err != nil {
		m.logger.Warn("mutation failed, reverting", "operation", op.Name(), "error", err)
		op.Revert(ctx, m.cache)
		return &consolesync.MutationError{Operation: op.Name(), Err: err}
	}

	op.Commit(ctx, m.cache)
	m.logger.Info("mutation confirmed", "operation", op.Name())
	return nil
}
