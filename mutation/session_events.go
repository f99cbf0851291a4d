package mutation

import (
	"context"
	"fmt"
	"slices"

	"github.com/creastat/consolesync"
	"github.com/creastat/consolesync/remote"
	"github.com/creastat/consolesync/resource"
)

// sessionEdit is the shared shape of attach and detach: rewrite one session
// inside a cached page, then write remotely.
type sessionEdit struct {
	api       remote.API
	pageKey   resource.Key
	sessionID string

	checkpoint resource.Checkpoint
	confirmed  *consolesync.Session
}

// AttachSessionEvent adds an event to a session shown in a cached page.
type AttachSessionEvent struct {
	sessionEdit
	event consolesync.Event
}

// NewAttachSessionEvent creates an attach operation. pageKey is the cache key
// of the session page currently displayed; it may be zero.
func NewAttachSessionEvent(api remote.API, pageKey resource.Key, sessionID string, event consolesync.Event) *AttachSessionEvent {
	return &AttachSessionEvent{
		sessionEdit: sessionEdit{api: api, pageKey: pageKey, sessionID: sessionID},
		event:       event,
	}
}

func (op *AttachSessionEvent) Name() string {
	return fmt.Sprintf("attach event %s to session %s", op.event.EventName, op.sessionID)
}

func (op *AttachSessionEvent) Validate() error {
	if op.sessionID == "" || op.event.EventName == "" {
		return fmt.Errorf("%w: session id and event name are required", consolesync.ErrInvalidInput)
	}
	return nil
}

func (op *AttachSessionEvent) Apply(cache *resource.Cache) bool {
	return op.apply(cache, func(events []consolesync.Event) []consolesync.Event {
		return consolesync.WithEvent(events, op.event)
	})
}

func (op *AttachSessionEvent) Confirm(ctx context.Context) error {
	session, err := op.api.AddSessionEvent(ctx, op.sessionID, op.event)
	op.confirmed = session
	return err
}

// DetachSessionEvent removes every event of one name from a session shown
// in a cached page.
type DetachSessionEvent struct {
	sessionEdit
	eventName string
}

// NewDetachSessionEvent creates a detach operation.
func NewDetachSessionEvent(api remote.API, pageKey resource.Key, sessionID, eventName string) *DetachSessionEvent {
	return &DetachSessionEvent{
		sessionEdit: sessionEdit{api: api, pageKey: pageKey, sessionID: sessionID},
		eventName:   eventName,
	}
}

func (op *DetachSessionEvent) Name() string {
	return fmt.Sprintf("detach event %s from session %s", op.eventName, op.sessionID)
}

func (op *DetachSessionEvent) Validate() error {
	if op.sessionID == "" || op.eventName == "" {
		return fmt.Errorf("%w: session id and event name are required", consolesync.ErrInvalidInput)
	}
	return nil
}

func (op *DetachSessionEvent) Apply(cache *resource.Cache) bool {
	return op.apply(cache, func(events []consolesync.Event) []consolesync.Event {
		return consolesync.WithoutEvent(events, op.eventName)
	})
}

func (op *DetachSessionEvent) Confirm(ctx context.Context) error {
	session, err := op.api.RemoveSessionEvent(ctx, op.sessionID, op.eventName)
	op.confirmed = session
	return err
}

// apply rewrites the events of the target session. Every other session of the
// page is carried over as is; a page without the session is left alone.
func (e *sessionEdit) apply(cache *resource.Cache, edit func([]consolesync.Event) []consolesync.Event) bool {
	e.checkpoint = resource.Mutate(cache, e.pageKey, func(page *consolesync.SessionPage, present bool) (*consolesync.SessionPage, bool) {
		return replaceSession(page, present, e.sessionID, func(s consolesync.Session) consolesync.Session {
			s.Events = edit(s.Events)
			return s
		})
	})
	return e.checkpoint.Applied()
}

// Commit stores the session returned by the remote write in the page.
func (e *sessionEdit) Commit(ctx context.Context, cache *resource.Cache) {
	if e.confirmed == nil || e.confirmed.ID != e.sessionID {
		return
	}
	confirmed := *e.confirmed
	confirmed.Events = slices.Clone(confirmed.Events)
	resource.Mutate(cache, e.pageKey, func(page *consolesync.SessionPage, present bool) (*consolesync.SessionPage, bool) {
		return replaceSession(page, present, e.sessionID, func(s consolesync.Session) consolesync.Session {
			// Listing fields such as the preview are not part of the
			// event endpoints' response.
			s.Events = confirmed.Events
			return s
		})
	})
}

// Revert undoes the optimistic write unless something wrote the page since,
// then refetches the page.
func (e *sessionEdit) Revert(ctx context.Context, cache *resource.Cache) {
	cache.Restore(e.checkpoint)
	cache.Invalidate(e.pageKey)
	_, _ = cache.Revalidate(ctx, e.pageKey)
}

func replaceSession(page *consolesync.SessionPage, present bool, sessionID string, fn func(consolesync.Session) consolesync.Session) (*consolesync.SessionPage, bool) {
	if !present || page == nil {
		return nil, false
	}
	i := slices.IndexFunc(page.Sessions, func(s consolesync.Session) bool { return s.ID == sessionID })
	if i < 0 {
		return nil, false
	}
	next := page.Clone()
	next.Sessions[i] = fn(next.Sessions[i])
	return next, true
}
