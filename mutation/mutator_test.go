package mutation

import (
	"context"
	"errors"
	"testing"

	"github.com/creastat/consolesync"
	"github.com/creastat/consolesync/remote/remotetest"
	"github.com/creastat/consolesync/resource"
	"github.com/creastat/consolesync/viewstore"
)

var errRemote = errors.New("remote unavailable")

func seededPage(t *testing.T, cache *resource.Cache, api *remotetest.Fake, key resource.Key) {
	t.Helper()
	api.AddSession(consolesync.Session{ID: "s1", ProjectID: "p1", Preview: "hello"})
	api.AddSession(consolesync.Session{ID: "s2", ProjectID: "p1", Events: []consolesync.Event{{EventName: "churn"}}})
	_, err := resource.Fetch(context.Background(), cache, key, func(ctx context.Context) (*consolesync.SessionPage, error) {
		return api.Sessions(ctx, "p1", viewstore.ListState{Pagination: viewstore.Pagination{PageSize: 10}}.Query())
	})
	if err != nil {
		t.Fatalf("seeding page: %v", err)
	}
}

// observingAPI checks the cache at the moment the remote write starts.
type observingAPI struct {
	*remotetest.Fake
	cache   *resource.Cache
	key     resource.Key
	atWrite *consolesync.SessionPage
}

func (a *observingAPI) AddSessionEvent(ctx context.Context, sessionID string, event consolesync.Event) (*consolesync.Session, error) {
	a.atWrite, _ = resource.Get[*consolesync.SessionPage](a.cache, a.key)
	return a.Fake.AddSessionEvent(ctx, sessionID, event)
}

func TestAttachIsVisibleBeforeRemoteWrite(t *testing.T) {
	cache := resource.New(resource.Config{})
	fake := remotetest.New()
	key := resource.NewKey("/projects/p1/sessions", 0)
	seededPage(t, cache, fake, key)

	var notified []*consolesync.SessionPage
	cancel := cache.Subscribe(key, func(s resource.Snapshot) {
		notified = append(notified, s.Value.(*consolesync.SessionPage))
	})
	defer cancel()

	api := &observingAPI{Fake: fake, cache: cache, key: key}
	op := NewAttachSessionEvent(api, key, "s1", consolesync.Event{EventName: "bug"})
	if err := New(cache, nil).Run(context.Background(), op); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if api.atWrite == nil || !consolesync.HasEvent(api.atWrite.Sessions[0].Events, "bug") {
		t.Fatalf("cache at remote write = %+v, want bug attached", api.atWrite)
	}
	if len(notified) == 0 || !consolesync.HasEvent(notified[0].Sessions[0].Events, "bug") {
		t.Fatal("subscribers were not notified of the optimistic write")
	}

	page, _ := resource.Get[*consolesync.SessionPage](cache, key)
	if page.Sessions[0].Preview != "hello" {
		t.Fatalf("listing fields lost: %+v", page.Sessions[0])
	}
	if len(page.Sessions[1].Events) != 1 || page.Sessions[1].Events[0].EventName != "churn" {
		t.Fatalf("other session changed: %+v", page.Sessions[1])
	}
}

func TestAttachIsIdempotentByName(t *testing.T) {
	cache := resource.New(resource.Config{})
	api := remotetest.New()
	key := resource.NewKey("/projects/p1/sessions", 0)
	seededPage(t, cache, api, key)

	op := NewAttachSessionEvent(api, key, "s2", consolesync.Event{EventName: "churn"})
	if err := New(cache, nil).Run(context.Background(), op); err != nil {
		t.Fatalf("Run: %v", err)
	}
	page, _ := resource.Get[*consolesync.SessionPage](cache, key)
	if n := len(page.Sessions[1].Events); n != 1 {
		t.Fatalf("events = %d, want 1", n)
	}
}

func TestFailedDetachRevertsAndRefetches(t *testing.T) {
	cache := resource.New(resource.Config{})
	api := remotetest.New()
	key := resource.NewKey("/projects/p1/sessions", 0)
	seededPage(t, cache, api, key)
	api.Fail("RemoveSessionEvent", errRemote)

	sessionsBefore := api.Calls("Sessions")
	op := NewDetachSessionEvent(api, key, "s2", "churn")
	err := New(cache, nil).Run(context.Background(), op)

	var mutationErr *consolesync.MutationError
	if !errors.As(err, &mutationErr) {
		t.Fatalf("err = %v, want *MutationError", err)
	}
	if !errors.Is(err, consolesync.ErrMutationFailure) || !errors.Is(err, errRemote) {
		t.Fatalf("err = %v does not match sentinel and cause", err)
	}
	if api.Calls("Sessions") != sessionsBefore+1 {
		t.Fatalf("page was not refetched")
	}
	page, _ := resource.Get[*consolesync.SessionPage](cache, key)
	if !consolesync.HasEvent(page.Sessions[1].Events, "churn") {
		t.Fatalf("session after revert = %+v, want churn restored", page.Sessions[1])
	}
}

func TestSessionOutsidePageLeavesCacheAlone(t *testing.T) {
	cache := resource.New(resource.Config{})
	api := remotetest.New()
	api.AddSession(consolesync.Session{ID: "s9", ProjectID: "p1"})
	pageKey := resource.NewKey("/projects/p1/sessions", 3)

	op := NewAttachSessionEvent(api, pageKey, "s9", consolesync.Event{EventName: "bug"})
	if err := New(cache, nil).Run(context.Background(), op); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if cache.Len() != 0 {
		t.Fatalf("cache entries = %d, want 0", cache.Len())
	}
	if api.Calls("AddSessionEvent") != 1 {
		t.Fatal("remote write was not issued")
	}
}

func TestValidationRejectsBeforeWriting(t *testing.T) {
	cache := resource.New(resource.Config{})
	api := remotetest.New()
	mutator := New(cache, nil)

	tests := []struct {
		name    string
		op      Operation
		wantErr error
	}{
		{"attach without event", NewAttachSessionEvent(api, resource.Key{}, "s1", consolesync.Event{}), consolesync.ErrInvalidInput},
		{"detach without session", NewDetachSessionEvent(api, resource.Key{}, "", "bug"), consolesync.ErrInvalidInput},
		{"delete without project", NewDeleteEventDefinition(api, nil, "bug"), consolesync.ErrSelectionUnavailable},
		{"threshold out of range", NewUpdateSentimentThreshold(api, &consolesync.Project{ID: "p1"},
			consolesync.SentimentThreshold{Score: 2, Magnitude: 1}, resource.Key{}), consolesync.ErrInvalidThreshold},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := mutator.Run(context.Background(), tt.op)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("err = %v, want %v", err, tt.wantErr)
			}
			var mutationErr *consolesync.MutationError
			if errors.As(err, &mutationErr) || errors.Is(err, consolesync.ErrMutationFailure) {
				t.Fatalf("rejected input reported as a failed write: %v", err)
			}
		})
	}
	for _, method := range []string{"AddSessionEvent", "RemoveSessionEvent", "UpdateProject"} {
		if n := api.Calls(method); n != 0 {
			t.Errorf("%s called %d times", method, n)
		}
	}
}

func TestFailedAttachScenario(t *testing.T) {
	cache := resource.New(resource.Config{})
	fake := remotetest.New()
	key := resource.NewKey("/projects/p1/sessions", 0)
	seededPage(t, cache, fake, key)
	fake.Fail("AddSessionEvent", errRemote)

	api := &observingAPI{Fake: fake, cache: cache, key: key}
	err := New(cache, nil).Run(context.Background(), NewAttachSessionEvent(api, key, "s1", consolesync.Event{EventName: "bug"}))

	if api.atWrite == nil || !consolesync.HasEvent(api.atWrite.Sessions[0].Events, "bug") {
		t.Fatal("optimistic edit was not visible during the remote write")
	}
	if !errors.Is(err, consolesync.ErrMutationFailure) {
		t.Fatalf("err = %v, want mutation failure", err)
	}
	page, _ := resource.Get[*consolesync.SessionPage](cache, key)
	if len(page.Sessions[0].Events) != 0 {
		t.Fatalf("session after failure = %+v, want no events", page.Sessions[0])
	}
}
