// Package supabase implements remote.API directly on top of the console's
// PostgREST tables, for deployments that run without the console API server.
package supabase

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/supabase-community/postgrest-go"
	"github.com/supabase-community/supabase-go"

	"github.com/creastat/consolesync"
	"github.com/creastat/consolesync/remote"
)

// DefaultProjectName is the name of the project created by InitOrg.
const DefaultProjectName = "Default project"

// Config holds Supabase connection configuration
type Config struct {
	URL         string
	APIKey      string
	MetadataTTL time.Duration // Default: 5 minutes
}

// Client implements remote.API using Supabase
type Client struct {
	client      *supabase.Client
	cache       *cache
	metadataTTL time.Duration
}

// cache keeps organization metadata, which changes rarely and is read on
// every organization switch.
type cache struct {
	mu    sync.RWMutex
	byOrg map[string]*cacheEntry[*consolesync.OrgMetadata]
}

type cacheEntry[T any] struct {
	value     T
	expiresAt time.Time
}

// New creates a new Supabase client
func New(cfg Config) (*Client, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("%w: supabase URL is required", consolesync.ErrInvalidConfig)
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: supabase API key is required", consolesync.ErrInvalidConfig)
	}

	if cfg.MetadataTTL == 0 {
		cfg.MetadataTTL = 5 * time.Minute
	}

	client, err := supabase.NewClient(cfg.URL, cfg.APIKey, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create supabase client: %w", err)
	}

	return &Client{
		client:      client,
		metadataTTL: cfg.MetadataTTL,
		cache: &cache{
			byOrg: make(map[string]*cacheEntry[*consolesync.OrgMetadata]),
		},
	}, nil
}

// OrgMetadata retrieves organization metadata by org ID
func (c *Client) OrgMetadata(ctx context.Context, orgID string) (*consolesync.OrgMetadata, error) {
	if cached := c.getMetadata(orgID); cached != nil {
		return cached, nil
	}

	var rows []orgRow
	_, err := c.client.From("organizations").
		Select("*", "", false).
		Eq("id", orgID).
		ExecuteTo(&rows)
	if err != nil {
		return nil, fmt.Errorf("failed to get org metadata: %w", err)
	}

	// Organizations without a row have no metadata yet.
	metadata := &consolesync.OrgMetadata{OrgID: orgID}
	if len(rows) > 0 {
		metadata = rows[0].toMetadata()
	}

	c.putMetadata(orgID, metadata)
	return metadata, nil
}

// Projects retrieves all projects of an organization, oldest first
func (c *Client) Projects(ctx context.Context, orgID string) ([]consolesync.Project, error) {
	var projects []consolesync.Project
	_, err := c.client.From("projects").
		Select("*", "", false).
		Eq("org_id", orgID).
		Order("created_at", &postgrest.OrderOpts{Ascending: true}).
		ExecuteTo(&projects)
	if err != nil {
		return nil, fmt.Errorf("failed to get projects by org_id: %w", err)
	}
	if projects == nil {
		projects = []consolesync.Project{}
	}
	return projects, nil
}

// InitOrg creates the default project of an organization that has none
func (c *Client) InitOrg(ctx context.Context, orgID string) error {
	row := map[string]any{
		"org_id":       orgID,
		"project_name": DefaultProjectName,
		"created_at":   time.Now().Unix(),
		"settings":     consolesync.ProjectSettings{Events: map[string]consolesync.EventDefinition{}},
	}
	_, _, err := c.client.From("projects").
		Insert(row, false, "", "minimal", "").
		Execute()
	if err != nil {
		return fmt.Errorf("failed to init org: %w", err)
	}
	return nil
}

// Project retrieves a project by ID
func (c *Client) Project(ctx context.Context, projectID string) (*consolesync.Project, error) {
	var project consolesync.Project
	_, err := c.client.From("projects").
		Select("*", "", false).
		Eq("id", projectID).
		Single().
		ExecuteTo(&project)
	if err != nil {
		return nil, fmt.Errorf("failed to get project: %w", err)
	}
	return &project, nil
}

// UpdateProject applies the non-nil fields of update to a project
func (c *Client) UpdateProject(ctx context.Context, projectID string, update remote.ProjectUpdate) (*consolesync.Project, error) {
	values := map[string]any{}
	if update.ProjectName != nil {
		values["project_name"] = *update.ProjectName
	}
	if update.Settings != nil {
		values["settings"] = update.Settings
	}
	if len(values) == 0 {
		return c.Project(ctx, projectID)
	}

	var projects []consolesync.Project
	_, err := c.client.From("projects").
		Update(values, "representation", "").
		Eq("id", projectID).
		ExecuteTo(&projects)
	if err != nil {
		return nil, fmt.Errorf("failed to update project: %w", err)
	}
	if len(projects) == 0 {
		return nil, fmt.Errorf("update project %s: %w", projectID, consolesync.ErrNotFound)
	}
	return &projects[0], nil
}

// UniqueEvents retrieves the events detected in a project, one per name
func (c *Client) UniqueEvents(ctx context.Context, projectID string) ([]consolesync.Event, error) {
	var events []consolesync.Event
	_, err := c.client.From("events").
		Select("event_name,project_id", "", false).
		Eq("project_id", projectID).
		Eq("removed", "false").
		ExecuteTo(&events)
	if err != nil {
		return nil, fmt.Errorf("failed to get unique events: %w", err)
	}
	unique := make([]consolesync.Event, 0, len(events))
	for _, name := range consolesync.UniqueEventNames(events) {
		unique = append(unique, consolesync.Event{EventName: name, ProjectID: projectID})
	}
	return unique, nil
}

// Sessions retrieves one page of a project's sessions with their events
func (c *Client) Sessions(ctx context.Context, projectID string, query remote.SessionQuery) (*consolesync.SessionPage, error) {
	var sessions []consolesync.Session
	total, err := c.listing("sessions", projectID, query).ExecuteTo(&sessions)
	if err != nil {
		return nil, fmt.Errorf("failed to get sessions: %w", err)
	}
	if sessions == nil {
		sessions = []consolesync.Session{}
	}
	return &consolesync.SessionPage{Sessions: sessions, Total: int(total)}, nil
}

// Tasks retrieves one page of a project's tasks with their events
func (c *Client) Tasks(ctx context.Context, projectID string, query remote.SessionQuery) (*consolesync.TaskPage, error) {
	var tasks []consolesync.Task
	total, err := c.listing("tasks", projectID, query).ExecuteTo(&tasks)
	if err != nil {
		return nil, fmt.Errorf("failed to get tasks: %w", err)
	}
	if tasks == nil {
		tasks = []consolesync.Task{}
	}
	return &consolesync.TaskPage{Tasks: tasks, Total: int(total)}, nil
}

// listing builds the filtered, sorted and ranged select of a session or task
// table with its non-removed events embedded.
func (c *Client) listing(table, projectID string, query remote.SessionQuery) *postgrest.FilterBuilder {
	columns := "*,events(*)"
	if len(query.Filters.EventName) > 0 {
		// The inner join only restricts which rows match; the plain embed
		// still returns every event of each row.
		columns = "*,matched:events!inner(event_name),events(*)"
	}

	filter := c.client.From(table).
		Select(columns, "exact", false).
		Eq("project_id", projectID).
		Eq("events.removed", "false")
	if len(query.Filters.EventName) > 0 {
		filter = filter.In("matched.event_name", query.Filters.EventName)
	}
	if query.Filters.Flag != "" {
		filter = filter.Eq("flag", query.Filters.Flag)
	}
	if query.Filters.CreatedAtStart != nil {
		filter = filter.Gte("created_at", strconv.FormatInt(*query.Filters.CreatedAtStart, 10))
	}
	if query.Filters.CreatedAtEnd != nil {
		filter = filter.Lte("created_at", strconv.FormatInt(*query.Filters.CreatedAtEnd, 10))
	}
	if len(query.Sorting) == 0 {
		filter = filter.Order("created_at", &postgrest.OrderOpts{Ascending: false})
	}
	for _, field := range query.Sorting {
		filter = filter.Order(field.ID, &postgrest.OrderOpts{Ascending: !field.Desc})
	}
	if query.PageSize > 0 {
		from := query.PageIndex * query.PageSize
		filter = filter.Range(from, from+query.PageSize-1, "")
	}
	return filter
}

// AddSessionEvent records a hand-labelled event on a session
func (c *Client) AddSessionEvent(ctx context.Context, sessionID string, event consolesync.Event) (*consolesync.Session, error) {
	session, err := c.session(sessionID)
	if err != nil {
		return nil, err
	}
	if consolesync.HasEvent(session.Events, event.EventName) {
		return session, nil
	}

	event.SessionID = sessionID
	event.ProjectID = session.ProjectID
	if event.Source == "" {
		event.Source = "owner"
	}
	if event.CreatedAt == 0 {
		event.CreatedAt = time.Now().Unix()
	}
	_, _, err = c.client.From("events").
		Insert(newEventRow(event), false, "", "minimal", "").
		Execute()
	if err != nil {
		return nil, fmt.Errorf("failed to add session event: %w", err)
	}
	return c.session(sessionID)
}

// RemoveSessionEvent soft-deletes every event of the given name on a session
func (c *Client) RemoveSessionEvent(ctx context.Context, sessionID, eventName string) (*consolesync.Session, error) {
	_, _, err := c.client.From("events").
		Update(map[string]any{"removed": true}, "minimal", "").
		Eq("session_id", sessionID).
		Eq("event_name", eventName).
		Execute()
	if err != nil {
		return nil, fmt.Errorf("failed to remove session event: %w", err)
	}
	return c.session(sessionID)
}

func (c *Client) session(sessionID string) (*consolesync.Session, error) {
	var session consolesync.Session
	_, err := c.client.From("sessions").
		Select("*,events(*)", "", false).
		Eq("id", sessionID).
		Eq("events.removed", "false").
		Single().
		ExecuteTo(&session)
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	return &session, nil
}

// getMetadata retrieves org metadata from cache
func (c *Client) getMetadata(orgID string) *consolesync.OrgMetadata {
	c.cache.mu.RLock()
	defer c.cache.mu.RUnlock()

	if e, ok := c.cache.byOrg[orgID]; ok {
		if time.Now().Before(e.expiresAt) {
			return e.value
		}
	}
	return nil
}

// putMetadata adds org metadata to cache
func (c *Client) putMetadata(orgID string, metadata *consolesync.OrgMetadata) {
	c.cache.mu.Lock()
	defer c.cache.mu.Unlock()

	c.cache.byOrg[orgID] = &cacheEntry[*consolesync.OrgMetadata]{
		value:     metadata,
		expiresAt: time.Now().Add(c.metadataTTL),
	}
}

// Compile-time check that Client implements API
var _ remote.API = (*Client)(nil)
