package selection

import "time"

// Selection is the process-wide "current organization / current project"
// context of one user. Empty ids mean nothing is selected.
//
// PERSISTED:
// - UserID: owner of the selection
// - OrgID, ProjectID: the current selection
// - CreatedAt, UpdatedAt: timestamps
// - Version: for optimistic locking when several consoles share a store
type Selection struct {
	UserID    string    `cbor:"user_id" json:"user_id"`
	OrgID     string    `cbor:"org_id" json:"org_id"`
	ProjectID string    `cbor:"project_id" json:"project_id"`
	CreatedAt time.Time `cbor:"created_at" json:"created_at"`
	UpdatedAt time.Time `cbor:"updated_at" json:"updated_at"`
	Version   int64     `cbor:"version" json:"version"` // Monotonically increasing for optimistic locking
}

// HasOrg reports whether an organization is selected.
func (s *Selection) HasOrg() bool { return s != nil && s.OrgID != "" }

// HasProject reports whether a project is selected.
func (s *Selection) HasProject() bool { return s != nil && s.ProjectID != "" }
