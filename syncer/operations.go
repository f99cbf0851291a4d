package syncer

import (
	"context"
	"errors"

	"github.com/creastat/consolesync"
	"github.com/creastat/consolesync/mutation"
	"github.com/creastat/consolesync/resource"
	"github.com/creastat/consolesync/viewstore"
)

// Sessions returns the session page the view state points at. On a failed
// refetch the previously loaded page is returned along with the error.
func (s *Syncer) Sessions(ctx context.Context) (*consolesync.SessionPage, error) {
	view := s.views.View()
	key := view.SessionsKey()
	if key.IsZero() {
		return nil, consolesync.ErrSelectionUnavailable
	}
	projectID, query := view.ProjectID(), view.Sessions.Query()
	page, err := resource.Fetch(ctx, s.cache, key, func(ctx context.Context) (*consolesync.SessionPage, error) {
		return s.api.Sessions(ctx, projectID, query)
	})
	if err != nil {
		s.reportFetch("load sessions", err)
	}
	return page, err
}

// Tasks returns the task page the view state points at. A sentiment
// threshold change refetches it.
func (s *Syncer) Tasks(ctx context.Context) (*consolesync.TaskPage, error) {
	view := s.views.View()
	key := view.TasksKey()
	if key.IsZero() {
		return nil, consolesync.ErrSelectionUnavailable
	}
	projectID, query := view.ProjectID(), view.Tasks.Query()
	page, err := resource.Fetch(ctx, s.cache, key, func(ctx context.Context) (*consolesync.TaskPage, error) {
		return s.api.Tasks(ctx, projectID, query)
	})
	if err != nil {
		s.reportFetch("load tasks", err)
	}
	return page, err
}

// UniqueEventNames returns the names of the events detected in the selected
// project's sessions. This list is distinct from the view's vocabulary,
// which only holds the names defined in the project's settings.
func (s *Syncer) UniqueEventNames(ctx context.Context) ([]string, error) {
	projectID := s.views.View().ProjectID()
	if projectID == "" {
		return nil, consolesync.ErrSelectionUnavailable
	}
	events, err := resource.Fetch(ctx, s.cache, viewstore.UniqueEventsKey(projectID), func(ctx context.Context) ([]consolesync.Event, error) {
		return s.api.UniqueEvents(ctx, projectID)
	})
	if err != nil {
		s.reportFetch("load unique events", err)
	}
	if events == nil {
		return []string{}, err
	}
	return consolesync.UniqueEventNames(events), err
}

// AttachEvent labels a session of the displayed page with eventName.
func (s *Syncer) AttachEvent(ctx context.Context, sessionID, eventName string) error {
	view := s.views.View()
	if view.ProjectID() == "" {
		return consolesync.ErrSelectionUnavailable
	}
	event := consolesync.Event{EventName: eventName, ProjectID: view.ProjectID(), Source: "owner"}
	return s.run(ctx, mutation.NewAttachSessionEvent(s.api, view.SessionsKey(), sessionID, event))
}

// DetachEvent removes eventName from a session of the displayed page.
func (s *Syncer) DetachEvent(ctx context.Context, sessionID, eventName string) error {
	view := s.views.View()
	if view.ProjectID() == "" {
		return consolesync.ErrSelectionUnavailable
	}
	return s.run(ctx, mutation.NewDetachSessionEvent(s.api, view.SessionsKey(), sessionID, eventName))
}

// AddEventDefinition defines a new event in the selected project.
func (s *Syncer) AddEventDefinition(ctx context.Context, definition consolesync.EventDefinition) error {
	return s.run(ctx, mutation.NewAddEventDefinition(s.api, s.selectedProject(), definition))
}

// DeleteEventDefinition removes an event definition from the selected project.
func (s *Syncer) DeleteEventDefinition(ctx context.Context, eventName string) error {
	return s.run(ctx, mutation.NewDeleteEventDefinition(s.api, s.selectedProject(), eventName))
}

// SetSentimentThreshold stores the selected project's sentiment threshold.
func (s *Syncer) SetSentimentThreshold(ctx context.Context, threshold consolesync.SentimentThreshold) error {
	view := s.views.View()
	return s.run(ctx, mutation.NewUpdateSentimentThreshold(s.api, s.selectedProject(), threshold, view.TasksKey()))
}

// selectedProject prefers the cached project over the published one, since
// the cache may hold a newer write that listeners have not seen yet.
func (s *Syncer) selectedProject() *consolesync.Project {
	view := s.views.View()
	if view.ProjectID() == "" {
		return nil
	}
	if project, ok := resource.Get[*consolesync.Project](s.cache, viewstore.ProjectKey(view.ProjectID())); ok && project != nil {
		return project
	}
	return view.Project
}

// run reports failed remote writes. Rejected input is returned without a
// notice.
func (s *Syncer) run(ctx context.Context, op mutation.Operation) error {
	err := s.mutator.Run(ctx, op)
	var mutationErr *consolesync.MutationError
	if errors.As(err, &mutationErr) {
		s.reporter.Report(Notice{Kind: MutationFailure, Operation: op.Name(), Err: err})
	}
	return err
}

