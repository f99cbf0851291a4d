package supabase

import "github.com/creastat/consolesync"

// orgRow represents an organization from the database
type orgRow struct {
	ID                 string         `json:"id"`
	Plan               string         `json:"plan"`
	ArgillaWorkspaceID string         `json:"argilla_workspace_id"`
	Metadata           map[string]any `json:"metadata"`
}

func (r orgRow) toMetadata() *consolesync.OrgMetadata {
	return &consolesync.OrgMetadata{
		OrgID:              r.ID,
		Plan:               r.Plan,
		ArgillaWorkspaceID: r.ArgillaWorkspaceID,
		Extra:              r.Metadata,
	}
}

// eventRow is the insert shape of the events table. The id is assigned by
// the database.
type eventRow struct {
	EventName string  `json:"event_name"`
	SessionID string  `json:"session_id"`
	ProjectID string  `json:"project_id"`
	Source    string  `json:"source"`
	Score     float64 `json:"score"`
	Confirmed bool    `json:"confirmed"`
	Removed   bool    `json:"removed"`
	CreatedAt int64   `json:"created_at"`
}

func newEventRow(e consolesync.Event) eventRow {
	return eventRow{
		EventName: e.EventName,
		SessionID: e.SessionID,
		ProjectID: e.ProjectID,
		Source:    e.Source,
		Score:     e.Score,
		Confirmed: e.Confirmed,
		CreatedAt: e.CreatedAt,
	}
}
