package remote

import (
	"context"
	"fmt"

	"github.com/creastat/consolesync"
)

// API is the console backend as seen by the synchronization core. The core
// never interprets response bodies beyond these types; any non-2xx response
// is returned as an error.
type API interface {
	// OrgMetadata fetches GET /organizations/{orgID}/metadata.
	OrgMetadata(ctx context.Context, orgID string) (*consolesync.OrgMetadata, error)

	// Projects fetches GET /organizations/{orgID}/projects.
	Projects(ctx context.Context, orgID string) ([]consolesync.Project, error)

	// InitOrg calls POST /organizations/{orgID}/init, which creates a default
	// project for an organization that has none.
	InitOrg(ctx context.Context, orgID string) error

	// Project fetches GET /projects/{projectID}.
	Project(ctx context.Context, projectID string) (*consolesync.Project, error)

	// UpdateProject calls POST /projects/{projectID}.
	UpdateProject(ctx context.Context, projectID string, update ProjectUpdate) (*consolesync.Project, error)

	// UniqueEvents fetches GET /projects/{projectID}/unique-events.
	UniqueEvents(ctx context.Context, projectID string) ([]consolesync.Event, error)

	// Sessions fetches one page of a project's sessions.
	Sessions(ctx context.Context, projectID string, query SessionQuery) (*consolesync.SessionPage, error)

	// Tasks fetches one page of a project's tasks from GET /projects/{projectID}/tasks.
	Tasks(ctx context.Context, projectID string, query SessionQuery) (*consolesync.TaskPage, error)

	// AddSessionEvent attaches an event to a session.
	AddSessionEvent(ctx context.Context, sessionID string, event consolesync.Event) (*consolesync.Session, error)

	// RemoveSessionEvent detaches every event of the given name from a session.
	RemoveSessionEvent(ctx context.Context, sessionID, eventName string) (*consolesync.Session, error)
}

// ProjectUpdate is the body of POST /projects/{projectID}. Only non-nil
// fields are applied; Settings replaces the stored settings wholesale.
type ProjectUpdate struct {
	ProjectName *string                      `json:"project_name,omitempty"`
	Settings    *consolesync.ProjectSettings `json:"settings,omitempty"`
}

// SessionQuery selects one page of a session or task listing.
type SessionQuery struct {
	PageIndex int         `json:"page_index"`
	PageSize  int         `json:"page_size"`
	Filters   DataFilters `json:"filters"`
	Sorting   []SortField `json:"sorting,omitempty"`
}

// DataFilters are the filters the console applies to session and task listings.
type DataFilters struct {
	EventName      []string       `json:"event_name,omitempty"`
	Flag           string         `json:"flag,omitempty"`
	CreatedAtStart *int64         `json:"created_at_start,omitempty"`
	CreatedAtEnd   *int64         `json:"created_at_end,omitempty"`
	Metadata       map[string]any `json:"metadata,omitempty"`
}

// IsEmpty reports whether no filter is set.
func (f DataFilters) IsEmpty() bool {
	return len(f.EventName) == 0 && f.Flag == "" && f.CreatedAtStart == nil &&
		f.CreatedAtEnd == nil && len(f.Metadata) == 0
}

// SortField orders a listing by one column.
type SortField struct {
	ID   string `json:"id"`
	Desc bool   `json:"desc"`
}

// StatusError is returned for any non-2xx response.
type StatusError struct {
	Method string
	Path   string
	Code   int
	Body   string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s %s: HTTP %d", e.Method, e.Path, e.Code)
	}
	return fmt.Sprintf("%s %s: HTTP %d: %s", e.Method, e.Path, e.Code, e.Body)
}
