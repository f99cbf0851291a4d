package resource

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/creastat/consolesync"
	"github.com/creastat/consolesync/internal/clock"
)

type filters struct {
	EventName []string `json:"event_name,omitempty"`
	Flag      string   `json:"flag,omitempty"`
}

func newTestCache(t *testing.T) (*Cache, *clock.FakeClock) {
	t.Helper()
	c := clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	return New(Config{DedupeInterval: 2 * time.Second, Clock: c}), c
}

func TestKeyEquivalence(t *testing.T) {
	a := NewKey("/projects/p1/sessions", 0, filters{EventName: []string{"bug"}}, []string{"created_at"})
	b := NewKey("/projects/p1/sessions", 0, filters{EventName: []string{"bug"}}, []string{"created_at"})
	if !a.Equal(b) {
		t.Fatalf("keys with equal params differ: %s vs %s", a, b)
	}

	tests := []struct {
		name  string
		other Key
	}{
		{"page index", NewKey("/projects/p1/sessions", 1, filters{EventName: []string{"bug"}}, []string{"created_at"})},
		{"filters", NewKey("/projects/p1/sessions", 0, filters{Flag: "success"}, []string{"created_at"})},
		{"path", NewKey("/projects/p2/sessions", 0, filters{EventName: []string{"bug"}}, []string{"created_at"})},
		{"param boundary", NewKey("/projects/p1/sessions", "0{", "")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if a.Equal(tt.other) {
				t.Fatalf("expected %s and %s to differ", a, tt.other)
			}
		})
	}

	if !(Key{}).IsZero() {
		t.Fatal("zero Key should report IsZero")
	}
	if NewKey("/x").IsZero() {
		t.Fatal("non-empty path should not be zero")
	}
}

func TestFetchZeroKeyNeverFetches(t *testing.T) {
	c, _ := newTestCache(t)
	calls := 0
	s, err := c.Fetch(context.Background(), Key{}, func(context.Context) (any, error) {
		calls++
		return "value", nil
	})
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if calls != 0 || s.Present {
		t.Fatalf("zero key fetched: calls=%d present=%v", calls, s.Present)
	}
	if c.Len() != 0 {
		t.Fatalf("zero key created %d entries", c.Len())
	}
}

func TestFetchSharesOneRequest(t *testing.T) {
	c, _ := newTestCache(t)
	key := NewKey("/projects/p1/sessions", 0, filters{}, []string{})

	var calls atomic.Int32
	release := make(chan struct{})
	fetcher := func(context.Context) (any, error) {
		calls.Add(1)
		<-release
		return "page", nil
	}

	var wg sync.WaitGroup
	results := make([]Snapshot, 2)
	for i := range results {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s, err := c.Fetch(context.Background(), NewKey("/projects/p1/sessions", 0, filters{}, []string{}), fetcher)
			if err != nil {
				t.Errorf("Fetch: %v", err)
			}
			results[i] = s
		}()
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	if got := calls.Load(); got != 1 {
		t.Fatalf("fetcher called %d times, want 1", got)
	}
	for i, s := range results {
		if s.Value != "page" {
			t.Fatalf("result %d = %v, want page", i, s.Value)
		}
	}
	if v, ok := c.Get(key); !ok || v != "page" {
		t.Fatalf("Get = %v, %v", v, ok)
	}
}

func TestFetchFreshnessWindow(t *testing.T) {
	c, fake := newTestCache(t)
	key := NewKey("/organizations/org_a/projects")
	calls := 0
	fetcher := func(context.Context) (any, error) {
		calls++
		return calls, nil
	}

	for range 3 {
		if _, err := c.Fetch(context.Background(), key, fetcher); err != nil {
			t.Fatalf("Fetch: %v", err)
		}
	}
	if calls != 1 {
		t.Fatalf("fresh entry refetched: calls=%d", calls)
	}

	fake.Advance(3 * time.Second)
	s, err := c.Fetch(context.Background(), key, fetcher)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if calls != 2 || s.Value != 2 {
		t.Fatalf("expired entry: calls=%d value=%v", calls, s.Value)
	}
}

func TestFetchWithoutDedupe(t *testing.T) {
	c := New(Config{DedupeInterval: NoDedupe, Clock: clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))})
	key := NewKey("/organizations/org_a/projects")
	calls := 0
	fetcher := func(context.Context) (any, error) {
		calls++
		return calls, nil
	}

	for range 3 {
		if _, err := c.Fetch(context.Background(), key, fetcher); err != nil {
			t.Fatalf("Fetch: %v", err)
		}
	}
	if calls != 3 {
		t.Fatalf("calls = %d, want a request per read", calls)
	}
}

func TestFetchFailurePreservesValue(t *testing.T) {
	c, _ := newTestCache(t)
	key := NewKey("/projects/p1")
	if _, err := c.Fetch(context.Background(), key, func(context.Context) (any, error) { return "good", nil }); err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	c.Invalidate(key)

	boom := errors.New("HTTP 502")
	s, err := c.Fetch(context.Background(), key, func(context.Context) (any, error) { return nil, boom })
	if !errors.Is(err, consolesync.ErrFetchFailure) || !errors.Is(err, boom) {
		t.Fatalf("err = %v, want FetchFailure wrapping cause", err)
	}
	if !s.Present || s.Value != "good" {
		t.Fatalf("stale value lost: %+v", s)
	}
	if s.Err == nil {
		t.Fatal("snapshot should carry the fetch error")
	}
}

func TestMutateNotifiesBeforeReturn(t *testing.T) {
	c, _ := newTestCache(t)
	key := NewKey("/projects/p1")
	var seen []any
	cancel := c.Subscribe(key, func(s Snapshot) { seen = append(seen, s.Value) })
	defer cancel()

	cp := c.Mutate(key, func(current any, present bool) (any, bool) {
		if present {
			t.Fatalf("unexpected present value %v", current)
		}
		return "optimistic", true
	})
	if !cp.Applied() {
		t.Fatal("mutation not applied")
	}
	if len(seen) != 1 || seen[0] != "optimistic" {
		t.Fatalf("subscriber saw %v", seen)
	}
	if v, _ := c.Get(key); v != "optimistic" {
		t.Fatalf("Get = %v", v)
	}
}

func TestMutateWithoutWriteCreatesNoEntry(t *testing.T) {
	c, _ := newTestCache(t)
	cp := c.Mutate(NewKey("/projects/p1/sessions", 0), func(any, bool) (any, bool) { return nil, false })
	if cp.Applied() {
		t.Fatal("declined mutation reported as applied")
	}
	if c.Len() != 0 {
		t.Fatalf("declined mutation created %d entries", c.Len())
	}
}

func TestRestore(t *testing.T) {
	c, _ := newTestCache(t)
	key := NewKey("/projects/p1")
	c.Set(key, "original")

	cp := c.Set(key, "optimistic")
	if !c.Restore(cp) {
		t.Fatal("Restore should succeed when nothing superseded the mutation")
	}
	if v, _ := c.Get(key); v != "original" {
		t.Fatalf("after Restore Get = %v", v)
	}

	cp = c.Set(key, "optimistic")
	c.Set(key, "newer")
	if c.Restore(cp) {
		t.Fatal("Restore must not clobber a newer write")
	}
	if v, _ := c.Get(key); v != "newer" {
		t.Fatalf("newer write lost: %v", v)
	}
}

func TestInvalidateAndRevalidate(t *testing.T) {
	c, _ := newTestCache(t)
	key := NewKey("/projects/p1")
	calls := 0
	fetcher := func(context.Context) (any, error) {
		calls++
		return "server", nil
	}
	if _, err := c.Fetch(context.Background(), key, fetcher); err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	c.Set(key, "local")
	c.Invalidate(key)

	if v, _ := c.Get(key); v != "local" {
		t.Fatalf("Invalidate dropped the cached value: %v", v)
	}
	s, err := c.Revalidate(context.Background(), key)
	if err != nil {
		t.Fatalf("Revalidate: %v", err)
	}
	if calls != 2 || s.Value != "server" {
		t.Fatalf("Revalidate: calls=%d value=%v", calls, s.Value)
	}

	if _, err := c.Revalidate(context.Background(), NewKey("/never/fetched")); err != nil {
		t.Fatalf("Revalidate unknown key: %v", err)
	}
	if c.Len() != 1 {
		t.Fatalf("Revalidate of unknown key created an entry")
	}
}

func TestUseRevalidatesInBackground(t *testing.T) {
	c, _ := newTestCache(t)
	key := NewKey("/projects/p1/unique-events")
	c.Set(key, "cached")

	updates := make(chan Snapshot, 4)
	cancel := c.Subscribe(key, func(s Snapshot) { updates <- s })
	defer cancel()

	release := make(chan struct{})
	var calls atomic.Int32
	fetcher := func(context.Context) (any, error) {
		calls.Add(1)
		<-release
		return "fresh", nil
	}

	s := c.Use(context.Background(), key, fetcher)
	if s.Value != "cached" || !s.Loading {
		t.Fatalf("Use returned %+v, want cached value while loading", s)
	}
	if again := c.Use(context.Background(), key, fetcher); again.Value != "cached" {
		t.Fatalf("second Use = %+v", again)
	}
	close(release)

	deadline := time.After(5 * time.Second)
	for {
		select {
		case u := <-updates:
			if u.Value == "fresh" && !u.Loading {
				if got := calls.Load(); got != 1 {
					t.Fatalf("fetcher called %d times, want 1", got)
				}
				return
			}
		case <-deadline:
			t.Fatal("timed out waiting for background revalidation")
		}
	}
}

func TestTypedAccessors(t *testing.T) {
	c, _ := newTestCache(t)
	key := NewKey("/projects/p1")

	p, err := Fetch(context.Background(), c, key, func(context.Context) (*consolesync.Project, error) {
		return &consolesync.Project{ID: "p1"}, nil
	})
	if err != nil || p.ID != "p1" {
		t.Fatalf("Fetch = %+v, %v", p, err)
	}

	Mutate(c, key, func(current *consolesync.Project, present bool) (*consolesync.Project, bool) {
		next := current.Clone()
		next.ProjectName = "renamed"
		return next, present
	})
	got, ok := Get[*consolesync.Project](c, key)
	if !ok || got.ProjectName != "renamed" {
		t.Fatalf("Get = %+v, %v", got, ok)
	}

	if _, ok := Get[string](c, key); ok {
		t.Fatal("Get with wrong type should report absent")
	}
}
