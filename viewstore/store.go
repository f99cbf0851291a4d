// Package viewstore holds the console's derived view state: the selected
// organization's metadata, the selected project with its event vocabulary,
// and the filter, sort and pagination state of the session and task tables.
//
// Every setter is synchronous. Listeners observe the new View before the
// setter returns, and the cache keys derived from it change in the same step.
package viewstore

import (
	"fmt"
	"slices"
	"sync"

	"github.com/creastat/consolesync"
	"github.com/creastat/consolesync/remote"
	"github.com/creastat/consolesync/resource"
)

// DefaultPageSize is the table page size used when none is configured.
const DefaultPageSize = 10

// Pagination is a table's page window.
type Pagination struct {
	PageIndex int `json:"page_index"`
	PageSize  int `json:"page_size"`
}

// ListState is the query state of one table.
type ListState struct {
	Filters    remote.DataFilters
	Sorting    []remote.SortField
	Pagination Pagination
}

// Query converts the state into a session query.
func (l ListState) Query() remote.SessionQuery {
	return remote.SessionQuery{
		PageIndex: l.Pagination.PageIndex,
		PageSize:  l.Pagination.PageSize,
		Filters:   l.Filters,
		Sorting:   slices.Clone(l.Sorting),
	}
}

func (l ListState) clone() ListState {
	l.Filters.EventName = slices.Clone(l.Filters.EventName)
	l.Sorting = slices.Clone(l.Sorting)
	return l
}

// View is a snapshot of the store.
type View struct {
	OrgID       string
	OrgMetadata *consolesync.OrgMetadata
	Project     *consolesync.Project
	// Vocabulary is the event names defined in the project's settings.
	Vocabulary []string
	Sessions   ListState
	Tasks      ListState
}

// ProjectID returns the selected project id, or "".
func (v View) ProjectID() string {
	if v.Project == nil {
		return ""
	}
	return v.Project.ID
}

// SessionsKey is the cache key of the session page the view displays.
// It is the zero key while no project is selected.
func (v View) SessionsKey() resource.Key {
	return listKey(v.ProjectID(), "sessions", v.Sessions)
}

// TasksKey is the cache key of the task page the view displays.
func (v View) TasksKey() resource.Key {
	return listKey(v.ProjectID(), "tasks", v.Tasks)
}

func listKey(projectID, table string, l ListState) resource.Key {
	if projectID == "" {
		return resource.Key{}
	}
	return resource.NewKey(fmt.Sprintf("/projects/%s/%s", projectID, table),
		l.Pagination.PageIndex, l.Pagination.PageSize, l.Filters, l.Sorting)
}

// ProjectKey is the cache key of GET /projects/{id}.
func ProjectKey(projectID string) resource.Key {
	if projectID == "" {
		return resource.Key{}
	}
	return resource.NewKey("/projects/" + projectID)
}

// ProjectsKey is the cache key of GET /organizations/{id}/projects.
func ProjectsKey(orgID string) resource.Key {
	if orgID == "" {
		return resource.Key{}
	}
	return resource.NewKey("/organizations/" + orgID + "/projects")
}

// MetadataKey is the cache key of GET /organizations/{id}/metadata.
func MetadataKey(orgID string) resource.Key {
	if orgID == "" {
		return resource.Key{}
	}
	return resource.NewKey("/organizations/" + orgID + "/metadata")
}

// UniqueEventsKey is the cache key of GET /projects/{id}/unique-events.
func UniqueEventsKey(projectID string) resource.Key {
	if projectID == "" {
		return resource.Key{}
	}
	return resource.NewKey("/projects/" + projectID + "/unique-events")
}

// Listener receives the view after each change.
type Listener func(View)

// Store is safe for concurrent use.
type Store struct {
	mu        sync.Mutex
	view      View
	pageSize  int
	listeners map[uint64]Listener
	nextID    uint64
}

// New creates a store with nothing selected. A pageSize of zero selects
// DefaultPageSize.
func New(pageSize int) *Store {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	s := &Store{pageSize: pageSize, listeners: make(map[uint64]Listener)}
	s.view = s.emptyView()
	return s
}

func (s *Store) emptyView() View {
	return View{
		Vocabulary: []string{},
		Sessions:   ListState{Pagination: Pagination{PageSize: s.pageSize}},
		Tasks:      ListState{Pagination: Pagination{PageSize: s.pageSize}},
	}
}

// View returns a snapshot of the current state.
func (s *Store) View() View {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view.copy()
}

// Subscribe registers fn and returns a func that removes it.
func (s *Store) Subscribe(fn Listener) (cancel func()) {
	s.mu.Lock()
	s.nextID++
	id := s.nextID
	s.listeners[id] = fn
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.listeners, id)
	}
}

// update applies fn under the lock and notifies listeners afterwards.
func (s *Store) update(fn func(v *View)) {
	s.mu.Lock()
	fn(&s.view)
	v := s.view.copy()
	listeners := make([]Listener, 0, len(s.listeners))
	for _, l := range s.listeners {
		listeners = append(listeners, l)
	}
	s.mu.Unlock()

	for _, l := range listeners {
		l(v)
	}
}

// SetOrg records the selected organization. Changing it clears the project,
// vocabulary and metadata of the previous organization.
func (s *Store) SetOrg(orgID string) {
	s.update(func(v *View) {
		if v.OrgID == orgID {
			return
		}
		v.OrgID = orgID
		v.OrgMetadata = nil
		v.Project = nil
		v.Vocabulary = []string{}
	})
}

// SetOrgMetadata publishes the selected organization's metadata.
func (s *Store) SetOrgMetadata(metadata *consolesync.OrgMetadata) {
	s.update(func(v *View) {
		v.OrgMetadata = metadata
	})
}

// SetProject publishes the selected project and republishes its vocabulary.
// It is called for every fetch of the project, not only when the selection
// moves, so settings edits reach the vocabulary. A nil project clears both.
func (s *Store) SetProject(project *consolesync.Project) {
	s.update(func(v *View) {
		if v.ProjectID() != "" && (project == nil || project.ID != v.ProjectID()) {
			v.Sessions.Pagination.PageIndex = 0
			v.Tasks.Pagination.PageIndex = 0
		}
		v.Project = project.Clone()
		v.Vocabulary = project.EventNames()
	})
}

// SetSessionFilters replaces the session filters and returns to the first page.
func (s *Store) SetSessionFilters(filters remote.DataFilters) {
	s.update(func(v *View) {
		v.Sessions.Filters = filters
		v.Sessions.Pagination.PageIndex = 0
	})
}

// SetSessionEventFilter restricts the session table to one event name; an
// empty name removes the restriction.
func (s *Store) SetSessionEventFilter(eventName string) {
	s.update(func(v *View) {
		if eventName == "" {
			v.Sessions.Filters.EventName = nil
		} else {
			v.Sessions.Filters.EventName = []string{eventName}
		}
		v.Sessions.Pagination.PageIndex = 0
	})
}

// SetSessionSorting replaces the session sort order.
func (s *Store) SetSessionSorting(sorting []remote.SortField) {
	s.update(func(v *View) {
		v.Sessions.Sorting = slices.Clone(sorting)
	})
}

// SetSessionPage moves the session table to pageIndex.
func (s *Store) SetSessionPage(pageIndex int) {
	s.update(func(v *View) {
		v.Sessions.Pagination.PageIndex = max(pageIndex, 0)
	})
}

// SetTaskFilters replaces the task filters and returns to the first page.
func (s *Store) SetTaskFilters(filters remote.DataFilters) {
	s.update(func(v *View) {
		v.Tasks.Filters = filters
		v.Tasks.Pagination.PageIndex = 0
	})
}

// SetTaskSorting replaces the task sort order.
func (s *Store) SetTaskSorting(sorting []remote.SortField) {
	s.update(func(v *View) {
		v.Tasks.Sorting = slices.Clone(sorting)
	})
}

// SetTaskPage moves the task table to pageIndex.
func (s *Store) SetTaskPage(pageIndex int) {
	s.update(func(v *View) {
		v.Tasks.Pagination.PageIndex = max(pageIndex, 0)
	})
}

// Reset returns the store to its initial state, e.g. on logout.
func (s *Store) Reset() {
	s.update(func(v *View) {
		*v = s.emptyView()
	})
}

func (v View) copy() View {
	v.Project = v.Project.Clone()
	v.Vocabulary = slices.Clone(v.Vocabulary)
	v.Sessions = v.Sessions.clone()
	v.Tasks = v.Tasks.clone()
	return v
}
