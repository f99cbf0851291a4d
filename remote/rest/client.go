// Package rest implements remote.API against the console's HTTP/JSON API.
package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/creastat/consolesync"
	"github.com/creastat/consolesync/remote"
)

// maxErrorBody bounds how much of a failed response body is kept in errors.
const maxErrorBody = 512

// Config holds REST connection configuration.
type Config struct {
	// BaseURL is the API root, e.g. "https://console.example.com/api".
	BaseURL string

	// AccessToken is sent as a bearer token. Obtaining it is the caller's
	// concern.
	AccessToken string

	// Timeout bounds each request. Default: 30 seconds.
	Timeout time.Duration

	// HTTPClient overrides the transport, mainly for tests.
	HTTPClient *http.Client

	Logger *slog.Logger
}

// Client implements remote.API over HTTP.
type Client struct {
	baseURL     *url.URL
	accessToken string
	httpClient  *http.Client
	logger      *slog.Logger
}

// New creates a new REST client.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("%w: rest base URL is required", consolesync.ErrInvalidConfig)
	}
	base, err := url.Parse(strings.TrimSuffix(cfg.BaseURL, "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("%w: invalid rest base URL %q", consolesync.ErrInvalidConfig, cfg.BaseURL)
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Client{
		baseURL:     base,
		accessToken: cfg.AccessToken,
		httpClient:  httpClient,
		logger:      logger,
	}, nil
}

// OrgMetadata implements remote.API.
func (c *Client) OrgMetadata(ctx context.Context, orgID string) (*consolesync.OrgMetadata, error) {
	var metadata consolesync.OrgMetadata
	if err := c.do(ctx, http.MethodGet, "/organizations/"+url.PathEscape(orgID)+"/metadata", nil, &metadata); err != nil {
		return nil, fmt.Errorf("org metadata: %w", err)
	}
	if metadata.OrgID == "" {
		metadata.OrgID = orgID
	}
	return &metadata, nil
}

// Projects implements remote.API.
func (c *Client) Projects(ctx context.Context, orgID string) ([]consolesync.Project, error) {
	var response struct {
		Projects []consolesync.Project `json:"projects"`
	}
	if err := c.do(ctx, http.MethodGet, "/organizations/"+url.PathEscape(orgID)+"/projects", nil, &response); err != nil {
		return nil, fmt.Errorf("projects: %w", err)
	}
	if response.Projects == nil {
		response.Projects = []consolesync.Project{}
	}
	return response.Projects, nil
}

// InitOrg implements remote.API. The response body is ignored.
func (c *Client) InitOrg(ctx context.Context, orgID string) error {
	if err := c.do(ctx, http.MethodPost, "/organizations/"+url.PathEscape(orgID)+"/init", nil, nil); err != nil {
		return fmt.Errorf("init org: %w", err)
	}
	return nil
}

// Project implements remote.API.
func (c *Client) Project(ctx context.Context, projectID string) (*consolesync.Project, error) {
	var project consolesync.Project
	if err := c.do(ctx, http.MethodGet, "/projects/"+url.PathEscape(projectID), nil, &project); err != nil {
		return nil, fmt.Errorf("project: %w", err)
	}
	return &project, nil
}

// UpdateProject implements remote.API.
func (c *Client) UpdateProject(ctx context.Context, projectID string, update remote.ProjectUpdate) (*consolesync.Project, error) {
	var project consolesync.Project
	if err := c.do(ctx, http.MethodPost, "/projects/"+url.PathEscape(projectID), update, &project); err != nil {
		return nil, fmt.Errorf("update project: %w", err)
	}
	return &project, nil
}

// UniqueEvents implements remote.API.
func (c *Client) UniqueEvents(ctx context.Context, projectID string) ([]consolesync.Event, error) {
	var response struct {
		Events []consolesync.Event `json:"events"`
	}
	if err := c.do(ctx, http.MethodGet, "/projects/"+url.PathEscape(projectID)+"/unique-events", nil, &response); err != nil {
		return nil, fmt.Errorf("unique events: %w", err)
	}
	return response.Events, nil
}

// sessionsRequest is the wire body of POST /projects/{id}/sessions.
type sessionsRequest struct {
	Filters    remote.DataFilters `json:"filters"`
	Pagination struct {
		Page    int `json:"page"`
		PerPage int `json:"per_page"`
	} `json:"pagination"`
	Sorting []remote.SortField `json:"sorting,omitempty"`
}

// Sessions implements remote.API.
func (c *Client) Sessions(ctx context.Context, projectID string, query remote.SessionQuery) (*consolesync.SessionPage, error) {
	request := sessionsRequest{Filters: query.Filters, Sorting: query.Sorting}
	request.Pagination.Page = query.PageIndex
	request.Pagination.PerPage = query.PageSize

	var page consolesync.SessionPage
	if err := c.do(ctx, http.MethodPost, "/projects/"+url.PathEscape(projectID)+"/sessions", request, &page); err != nil {
		return nil, fmt.Errorf("sessions: %w", err)
	}
	if page.Sessions == nil {
		page.Sessions = []consolesync.Session{}
	}
	return &page, nil
}

// Tasks implements remote.API. Pagination, filters and sorting travel as
// query parameters; structured values are JSON encoded.
func (c *Client) Tasks(ctx context.Context, projectID string, query remote.SessionQuery) (*consolesync.TaskPage, error) {
	params := url.Values{}
	params.Set("page", strconv.Itoa(query.PageIndex))
	if query.PageSize > 0 {
		params.Set("per_page", strconv.Itoa(query.PageSize))
		params.Set("limit", strconv.Itoa(query.PageSize))
	}
	if !query.Filters.IsEmpty() {
		filters, err := json.Marshal(query.Filters)
		if err != nil {
			return nil, fmt.Errorf("tasks: encoding filters: %w", err)
		}
		params.Set("task_filter", string(filters))
	}
	if len(query.Sorting) > 0 {
		sorting, err := json.Marshal(query.Sorting)
		if err != nil {
			return nil, fmt.Errorf("tasks: encoding sorting: %w", err)
		}
		params.Set("sorting", string(sorting))
	}

	var page consolesync.TaskPage
	path := "/projects/" + url.PathEscape(projectID) + "/tasks?" + params.Encode()
	if err := c.do(ctx, http.MethodGet, path, nil, &page); err != nil {
		return nil, fmt.Errorf("tasks: %w", err)
	}
	if page.Tasks == nil {
		page.Tasks = []consolesync.Task{}
	}
	return &page, nil
}

// AddSessionEvent implements remote.API.
func (c *Client) AddSessionEvent(ctx context.Context, sessionID string, event consolesync.Event) (*consolesync.Session, error) {
	body := map[string]any{"event": event}
	var session consolesync.Session
	if err := c.do(ctx, http.MethodPost, "/sessions/"+url.PathEscape(sessionID)+"/add-event", body, &session); err != nil {
		return nil, fmt.Errorf("add session event: %w", err)
	}
	return &session, nil
}

// RemoveSessionEvent implements remote.API.
func (c *Client) RemoveSessionEvent(ctx context.Context, sessionID, eventName string) (*consolesync.Session, error) {
	body := map[string]any{"event_name": eventName}
	var session consolesync.Session
	if err := c.do(ctx, http.MethodPost, "/sessions/"+url.PathEscape(sessionID)+"/remove-event", body, &session); err != nil {
		return nil, fmt.Errorf("remove session event: %w", err)
	}
	return &session, nil
}

// do sends one JSON request. A nil result discards the response body. Any
// non-2xx status becomes a *remote.StatusError regardless of body shape.
func (c *Client) do(ctx context.Context, method, path string, body, result any) error {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	request, err := http.NewRequestWithContext(ctx, method, c.baseURL.String()+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		request.Header.Set("Content-Type", "application/json")
	}
	request.Header.Set("Accept", "application/json")
	if c.accessToken != "" {
		request.Header.Set("Authorization", "Bearer "+c.accessToken)
	}

	started := time.Now()
	response, err := c.httpClient.Do(request)
	if err != nil {
		return err
	}
	defer response.Body.Close()
	c.logger.Debug("api request", "method", method, "path", path,
		"status", response.StatusCode, "duration", time.Since(started))

	if response.StatusCode < 200 || response.StatusCode > 299 {
		excerpt, _ := io.ReadAll(io.LimitReader(response.Body, maxErrorBody))
		return &remote.StatusError{
			Method: method,
			Path:   path,
			Code:   response.StatusCode,
			Body:   strings.TrimSpace(string(excerpt)),
		}
	}

	if result == nil {
		_, _ = io.Copy(io.Discard, response.Body)
		return nil
	}
	if err := json.NewDecoder(response.Body).Decode(result); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

// Compile-time check that Client implements API.
var _ remote.API = (*Client)(nil)
