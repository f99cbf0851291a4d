// Package remotetest provides an in-memory remote.API for tests.
package remotetest

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/creastat/consolesync"
	"github.com/creastat/consolesync/remote"
)

// Fake is an in-memory console backend. The zero value is not usable; call
// New. All methods are safe for concurrent use.
type Fake struct {
	mu       sync.Mutex
	metadata map[string]*consolesync.OrgMetadata
	projects map[string][]consolesync.Project
	sessions map[string][]consolesync.Session
	tasks    map[string][]consolesync.Task
	failures map[string]error
	calls    map[string]int
	updates  []remote.ProjectUpdate
	queries  []remote.SessionQuery
}

// New creates an empty Fake.
func New() *Fake {
	return &Fake{
		metadata: make(map[string]*consolesync.OrgMetadata),
		projects: make(map[string][]consolesync.Project),
		sessions: make(map[string][]consolesync.Session),
		tasks:    make(map[string][]consolesync.Task),
		failures: make(map[string]error),
		calls:    make(map[string]int),
	}
}

// AddProject stores a project under its organization.
func (f *Fake) AddProject(project consolesync.Project) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.projects[project.OrgID] = append(f.projects[project.OrgID], *project.Clone())
}

// RemoveProject deletes a project, as another console would.
func (f *Fake) RemoveProject(projectID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for org, projects := range f.projects {
		f.projects[org] = slices.DeleteFunc(projects, func(p consolesync.Project) bool { return p.ID == projectID })
	}
}

// AddTask stores a task under its project.
func (f *Fake) AddTask(task consolesync.Task) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tasks[task.ProjectID] = append(f.tasks[task.ProjectID], task)
}

// AddSession stores a session under its project.
func (f *Fake) AddSession(session consolesync.Session) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sessions[session.ProjectID] = append(f.sessions[session.ProjectID], session)
}

// SetMetadata stores an organization's metadata.
func (f *Fake) SetMetadata(metadata consolesync.OrgMetadata) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.metadata[metadata.OrgID] = &metadata
}

// Fail makes every later call of method return err. A nil err clears it.
func (f *Fake) Fail(method string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err == nil {
		delete(f.failures, method)
		return
	}
	f.failures[method] = err
}

// Calls returns how many times method was invoked.
func (f *Fake) Calls(method string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[method]
}

// Updates returns the bodies of every UpdateProject call.
func (f *Fake) Updates() []remote.ProjectUpdate {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]remote.ProjectUpdate(nil), f.updates...)
}

// Queries returns every session query received.
func (f *Fake) Queries() []remote.SessionQuery {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]remote.SessionQuery(nil), f.queries...)
}

// enter counts the call and returns the configured failure. f.mu is held
// on return.
func (f *Fake) enter(method string) error {
	f.mu.Lock()
	f.calls[method]++
	return f.failures[method]
}

func (f *Fake) OrgMetadata(ctx context.Context, orgID string) (*consolesync.OrgMetadata, error) {
	defer f.mu.Unlock()
	if err := f.enter("OrgMetadata"); err != nil {
		return nil, err
	}
	if m, ok := f.metadata[orgID]; ok {
		cp := *m
		return &cp, nil
	}
	return &consolesync.OrgMetadata{OrgID: orgID}, nil
}

func (f *Fake) Projects(ctx context.Context, orgID string) ([]consolesync.Project, error) {
	defer f.mu.Unlock()
	if err := f.enter("Projects"); err != nil {
		return nil, err
	}
	out := make([]consolesync.Project, 0, len(f.projects[orgID]))
	for _, p := range f.projects[orgID] {
		out = append(out, *p.Clone())
	}
	return out, nil
}

// InitOrg creates a project named "Default project" with id "<org>-default".
func (f *Fake) InitOrg(ctx context.Context, orgID string) error {
	defer f.mu.Unlock()
	if err := f.enter("InitOrg"); err != nil {
		return err
	}
	f.projects[orgID] = append(f.projects[orgID], consolesync.Project{
		ID:          orgID + "-default",
		OrgID:       orgID,
		ProjectName: "Default project",
	})
	return nil
}

func (f *Fake) Project(ctx context.Context, projectID string) (*consolesync.Project, error) {
	defer f.mu.Unlock()
	if err := f.enter("Project"); err != nil {
		return nil, err
	}
	p := f.findProject(projectID)
	if p == nil {
		return nil, &remote.StatusError{Method: "GET", Path: "/projects/" + projectID, Code: 404}
	}
	return p.Clone(), nil
}

func (f *Fake) UpdateProject(ctx context.Context, projectID string, update remote.ProjectUpdate) (*consolesync.Project, error) {
	defer f.mu.Unlock()
	if err := f.enter("UpdateProject"); err != nil {
		return nil, err
	}
	p := f.findProject(projectID)
	if p == nil {
		return nil, fmt.Errorf("update project %s: %w", projectID, consolesync.ErrNotFound)
	}
	f.updates = append(f.updates, update)
	if update.ProjectName != nil {
		p.ProjectName = *update.ProjectName
	}
	if update.Settings != nil {
		p.Settings = update.Settings.Clone()
	}
	return p.Clone(), nil
}

func (f *Fake) UniqueEvents(ctx context.Context, projectID string) ([]consolesync.Event, error) {
	defer f.mu.Unlock()
	if err := f.enter("UniqueEvents"); err != nil {
		return nil, err
	}
	var events []consolesync.Event
	for _, s := range f.sessions[projectID] {
		events = append(events, s.Events...)
	}
	unique := []consolesync.Event{}
	for _, name := range consolesync.UniqueEventNames(events) {
		unique = append(unique, consolesync.Event{EventName: name, ProjectID: projectID})
	}
	return unique, nil
}

// Sessions pages through the stored sessions in insertion order. Only the
// event name filter is applied.
func (f *Fake) Sessions(ctx context.Context, projectID string, query remote.SessionQuery) (*consolesync.SessionPage, error) {
	defer f.mu.Unlock()
	if err := f.enter("Sessions"); err != nil {
		return nil, err
	}
	f.queries = append(f.queries, query)

	var matched []consolesync.Session
	for _, s := range f.sessions[projectID] {
		if len(query.Filters.EventName) > 0 && !hasAny(s.Events, query.Filters.EventName) {
			continue
		}
		matched = append(matched, s)
	}
	page := &consolesync.SessionPage{Sessions: []consolesync.Session{}, Total: len(matched)}
	from, to := 0, len(matched)
	if query.PageSize > 0 {
		from = min(query.PageIndex*query.PageSize, len(matched))
		to = min(from+query.PageSize, len(matched))
	}
	for _, s := range matched[from:to] {
		page.Sessions = append(page.Sessions, s)
	}
	return page.Clone(), nil
}

// Tasks pages through the stored tasks in insertion order, applying the
// event name and flag filters.
func (f *Fake) Tasks(ctx context.Context, projectID string, query remote.SessionQuery) (*consolesync.TaskPage, error) {
	defer f.mu.Unlock()
	if err := f.enter("Tasks"); err != nil {
		return nil, err
	}

	matched := []consolesync.Task{}
	for _, task := range f.tasks[projectID] {
		if len(query.Filters.EventName) > 0 && !hasAny(task.Events, query.Filters.EventName) {
			continue
		}
		if query.Filters.Flag != "" && task.Flag != query.Filters.Flag {
			continue
		}
		matched = append(matched, task)
	}
	from, to := 0, len(matched)
	if query.PageSize > 0 {
		from = min(query.PageIndex*query.PageSize, len(matched))
		to = min(from+query.PageSize, len(matched))
	}
	return &consolesync.TaskPage{Tasks: slices.Clone(matched[from:to]), Total: len(matched)}, nil
}

func (f *Fake) AddSessionEvent(ctx context.Context, sessionID string, event consolesync.Event) (*consolesync.Session, error) {
	defer f.mu.Unlock()
	if err := f.enter("AddSessionEvent"); err != nil {
		return nil, err
	}
	s := f.findSession(sessionID)
	if s == nil {
		return nil, &remote.StatusError{Method: "POST", Path: "/sessions/" + sessionID + "/add-event", Code: 404}
	}
	event.SessionID = sessionID
	s.Events = consolesync.WithEvent(s.Events, event)
	cp := *s
	return &cp, nil
}

func (f *Fake) RemoveSessionEvent(ctx context.Context, sessionID, eventName string) (*consolesync.Session, error) {
	defer f.mu.Unlock()
	if err := f.enter("RemoveSessionEvent"); err != nil {
		return nil, err
	}
	s := f.findSession(sessionID)
	if s == nil {
		return nil, &remote.StatusError{Method: "POST", Path: "/sessions/" + sessionID + "/remove-event", Code: 404}
	}
	s.Events = consolesync.WithoutEvent(s.Events, eventName)
	cp := *s
	return &cp, nil
}

func (f *Fake) findProject(projectID string) *consolesync.Project {
	for org, projects := range f.projects {
		for i := range projects {
			if projects[i].ID == projectID {
				return &f.projects[org][i]
			}
		}
	}
	return nil
}

func (f *Fake) findSession(sessionID string) *consolesync.Session {
	for project, sessions := range f.sessions {
		for i := range sessions {
			if sessions[i].ID == sessionID {
				return &f.sessions[project][i]
			}
		}
	}
	return nil
}

func hasAny(events []consolesync.Event, names []string) bool {
	for _, name := range names {
		if consolesync.HasEvent(events, name) {
			return true
		}
	}
	return false
}

var _ remote.API = (*Fake)(nil)
