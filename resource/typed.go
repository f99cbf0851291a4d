package resource

import (
	"context"
	"fmt"

	"github.com/creastat/consolesync"
)

// State is the typed view of a Snapshot.
type State[T any] struct {
	Data    T
	Present bool
	Err     error
	Loading bool
}

func typed[T any](s Snapshot) (State[T], error) {
	st := State[T]{Present: s.Present, Err: s.Err, Loading: s.Loading}
	if !s.Present || s.Value == nil {
		return st, nil
	}
	v, ok := s.Value.(T)
	if !ok {
		return st, fmt.Errorf("%w: %s holds %T", consolesync.ErrTypeMismatch, s.Key, s.Value)
	}
	st.Data = v
	return st, nil
}

func erase[T any](fetch func(context.Context) (T, error)) Fetcher {
	return func(ctx context.Context) (any, error) {
		v, err := fetch(ctx)
		if err != nil {
			return nil, err
		}
		return v, nil
	}
}

// Get returns the cached value for key typed as T.
func Get[T any](c *Cache, key Key) (T, bool) {
	st, err := typed[T](c.Peek(key))
	if err != nil {
		var zero T
		return zero, false
	}
	return st.Data, st.Present
}

// Fetch is the typed form of Cache.Fetch. On failure it returns the last-good
// value, if any, together with the error.
func Fetch[T any](ctx context.Context, c *Cache, key Key, fetch func(context.Context) (T, error)) (T, error) {
	s, fetchErr := c.Fetch(ctx, key, erase(fetch))
	st, err := typed[T](s)
	if err != nil {
		return st.Data, err
	}
	return st.Data, fetchErr
}

// Use is the typed form of Cache.Use.
func Use[T any](ctx context.Context, c *Cache, key Key, fetch func(context.Context) (T, error)) State[T] {
	st, err := typed[T](c.Use(ctx, key, erase(fetch)))
	if err != nil {
		st.Err = err
	}
	return st
}

// Mutate is the typed form of Cache.Mutate. A cached value of a different
// type is treated as absent.
func Mutate[T any](c *Cache, key Key, updater func(current T, present bool) (T, bool)) Checkpoint {
	return c.Mutate(key, func(current any, present bool) (any, bool) {
		v, ok := current.(T)
		return updater(v, present && ok)
	})
}

// Set is the typed form of Cache.Set.
func Set[T any](c *Cache, key Key, value T) Checkpoint {
	return c.Set(key, value)
}
