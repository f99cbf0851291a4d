package consolesync

import (
	"maps"
	"slices"
	"time"
)

// Identity is the authenticated user as reported by the auth provider.
// Memberships keep the provider's enumeration order; the first entry is the
// default organization.
type Identity struct {
	UserID      string       `json:"user_id"`
	Email       string       `json:"email,omitempty"`
	Memberships []Membership `json:"memberships"`
}

// Membership links an identity to one organization.
type Membership struct {
	OrgID   string `json:"org_id"`
	OrgName string `json:"org_name,omitempty"`
	Role    string `json:"role,omitempty"`
}

// OrgIDs returns the membership organization ids in enumeration order.
func (i *Identity) OrgIDs() []string {
	if i == nil {
		return nil
	}
	ids := make([]string, 0, len(i.Memberships))
	for _, m := range i.Memberships {
		ids = append(ids, m.OrgID)
	}
	return ids
}

// IsMember reports whether orgID is one of the identity's memberships.
func (i *Identity) IsMember(orgID string) bool {
	return slices.Contains(i.OrgIDs(), orgID)
}

// OrgMetadata is the per-organization metadata served by the console API.
type OrgMetadata struct {
	OrgID              string         `json:"org_id"`
	Plan               string         `json:"plan,omitempty"`
	ArgillaWorkspaceID string         `json:"argilla_workspace_id,omitempty"`
	Extra              map[string]any `json:"extra,omitempty"`
}

// Project belongs to exactly one organization.
type Project struct {
	ID          string           `json:"id"`
	OrgID       string           `json:"org_id"`
	ProjectName string           `json:"project_name"`
	CreatedAt   int64            `json:"created_at,omitempty"`
	Settings    *ProjectSettings `json:"settings,omitempty"`
}

// Clone returns a deep copy of the project.
func (p *Project) Clone() *Project {
	if p == nil {
		return nil
	}
	cp := *p
	cp.Settings = p.Settings.Clone()
	return &cp
}

// EventNames returns the sorted names of the event definitions in the
// project's settings, or an empty slice when none are defined.
func (p *Project) EventNames() []string {
	if p == nil || p.Settings == nil || len(p.Settings.Events) == 0 {
		return []string{}
	}
	return slices.Sorted(maps.Keys(p.Settings.Events))
}

// ProjectSettings holds the project's event definitions keyed by name and its
// sentiment threshold.
type ProjectSettings struct {
	Events             map[string]EventDefinition `json:"events,omitempty"`
	SentimentThreshold *SentimentThreshold        `json:"sentiment_threshold,omitempty"`
}

// Clone returns a deep copy so local edits never alias cached settings.
func (s *ProjectSettings) Clone() *ProjectSettings {
	if s == nil {
		return nil
	}
	cp := &ProjectSettings{}
	if s.Events != nil {
		cp.Events = make(map[string]EventDefinition, len(s.Events))
		for name, def := range s.Events {
			def.WebhookHeaders = maps.Clone(def.WebhookHeaders)
			cp.Events[name] = def
		}
	}
	if s.SentimentThreshold != nil {
		t := *s.SentimentThreshold
		cp.SentimentThreshold = &t
	}
	return cp
}

// EventDefinition describes an event that can be detected in sessions.
type EventDefinition struct {
	ID             string            `json:"id,omitempty"`
	EventName      string            `json:"event_name"`
	Description    string            `json:"description"`
	Webhook        string            `json:"webhook,omitempty"`
	WebhookHeaders map[string]string `json:"webhook_headers,omitempty"`
}

// HasWebhook reports whether the definition forwards detections to a webhook.
func (d EventDefinition) HasWebhook() bool {
	return len(d.Webhook) > 1
}

// Default sentiment thresholds used when a project has none configured.
const (
	DefaultSentimentScore     = 0.3
	DefaultSentimentMagnitude = 0.6
)

// SentimentThreshold configures how sentiment scores are bucketed.
type SentimentThreshold struct {
	Score     float64 `json:"score"`
	Magnitude float64 `json:"magnitude"`
}

// Validate checks score ∈ [0.05, 1] and magnitude ∈ [0.1, 100].
func (t SentimentThreshold) Validate() error {
	if t.Score < 0.05 || t.Score > 1 {
		return ErrInvalidThreshold
	}
	if t.Magnitude < 0.1 || t.Magnitude > 100 {
		return ErrInvalidThreshold
	}
	return nil
}

// Threshold returns the configured threshold or the defaults.
func (s *ProjectSettings) Threshold() SentimentThreshold {
	if s == nil || s.SentimentThreshold == nil {
		return SentimentThreshold{Score: DefaultSentimentScore, Magnitude: DefaultSentimentMagnitude}
	}
	return *s.SentimentThreshold
}

// Event is an event detected in (or attached by hand to) a session.
type Event struct {
	ID        string  `json:"id,omitempty"`
	EventName string  `json:"event_name"`
	SessionID string  `json:"session_id,omitempty"`
	ProjectID string  `json:"project_id,omitempty"`
	Source    string  `json:"source,omitempty"`
	Score     float64 `json:"score,omitempty"`
	Confirmed bool    `json:"confirmed,omitempty"`
	CreatedAt int64   `json:"created_at,omitempty"`
}

// Session is a conversation in a project along with the events attached to it.
// Sessions only ever exist server-side; the client owns its cached events.
type Session struct {
	ID            string  `json:"id"`
	ProjectID     string  `json:"project_id"`
	Events        []Event `json:"events"`
	Preview       string  `json:"preview,omitempty"`
	SessionLength int     `json:"session_length,omitempty"`
	CreatedAt     int64   `json:"created_at,omitempty"`
}

// CreatedTime converts the unix CreatedAt to a time.Time.
func (s Session) CreatedTime() time.Time {
	return time.Unix(s.CreatedAt, 0)
}

// SessionPage is one page of a filtered, sorted session listing.
type SessionPage struct {
	Sessions []Session `json:"sessions"`
	Total    int       `json:"total,omitempty"`
}

// Clone returns a copy of the page whose session slices can be edited freely.
func (p *SessionPage) Clone() *SessionPage {
	if p == nil {
		return nil
	}
	cp := &SessionPage{Total: p.Total, Sessions: make([]Session, len(p.Sessions))}
	for i, s := range p.Sessions {
		s.Events = slices.Clone(s.Events)
		cp.Sessions[i] = s
	}
	return cp
}

// Sentiment is the sentiment detected in a task's exchange.
type Sentiment struct {
	Score     float64 `json:"score"`
	Magnitude float64 `json:"magnitude"`
	Label     string  `json:"label,omitempty"`
}

// Task is one input/output exchange of a session. The sentiment label it
// carries depends on the project's sentiment threshold.
type Task struct {
	ID        string     `json:"id"`
	ProjectID string     `json:"project_id"`
	SessionID string     `json:"session_id,omitempty"`
	Input     string     `json:"input,omitempty"`
	Output    string     `json:"output,omitempty"`
	Flag      string     `json:"flag,omitempty"`
	Sentiment *Sentiment `json:"sentiment,omitempty"`
	Events    []Event    `json:"events,omitempty"`
	CreatedAt int64      `json:"created_at,omitempty"`
}

// CreatedTime converts the unix CreatedAt to a time.Time.
func (t Task) CreatedTime() time.Time {
	return time.Unix(t.CreatedAt, 0)
}

// TaskPage is one page of a filtered, sorted task listing.
type TaskPage struct {
	Tasks []Task `json:"tasks"`
	Total int    `json:"total,omitempty"`
}
