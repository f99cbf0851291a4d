package rest

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/creastat/consolesync"
	"github.com/creastat/consolesync/remote"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	client, err := New(Config{BaseURL: server.URL + "/api", AccessToken: "token-1"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return client
}

func TestNew(t *testing.T) {
	t.Run("valid URL", func(t *testing.T) {
		if _, err := New(Config{BaseURL: "https://console.example.com/api/"}); err != nil {
			t.Fatalf("New failed: %v", err)
		}
	})
	t.Run("empty URL", func(t *testing.T) {
		_, err := New(Config{})
		if !errors.Is(err, consolesync.ErrInvalidConfig) {
			t.Fatalf("err = %v, want ErrInvalidConfig", err)
		}
	})
	t.Run("relative URL", func(t *testing.T) {
		if _, err := New(Config{BaseURL: "/api"}); err == nil {
			t.Fatal("expected error for relative URL")
		}
	})
}

func TestProjects(t *testing.T) {
	client := newTestClient(t, func(writer http.ResponseWriter, request *http.Request) {
		if request.Method != http.MethodGet || request.URL.Path != "/api/organizations/org_a/projects" {
			t.Errorf("unexpected request %s %s", request.Method, request.URL.Path)
		}
		if got := request.Header.Get("Authorization"); got != "Bearer token-1" {
			t.Errorf("Authorization = %q", got)
		}
		json.NewEncoder(writer).Encode(map[string]any{
			"projects": []map[string]any{
				{"id": "p1", "org_id": "org_a", "settings": map[string]any{
					"events": map[string]any{"churn": map[string]any{"event_name": "churn", "description": "user leaves"}},
				}},
				{"id": "p2", "org_id": "org_a"},
			},
		})
	})

	projects, err := client.Projects(context.Background(), "org_a")
	if err != nil {
		t.Fatalf("Projects: %v", err)
	}
	if len(projects) != 2 || projects[0].ID != "p1" || projects[1].ID != "p2" {
		t.Fatalf("projects = %+v", projects)
	}
	if names := projects[0].EventNames(); len(names) != 1 || names[0] != "churn" {
		t.Fatalf("event names = %v", names)
	}
}

func TestProjectsEmptyBody(t *testing.T) {
	client := newTestClient(t, func(writer http.ResponseWriter, request *http.Request) {
		writer.Write([]byte(`{}`))
	})
	projects, err := client.Projects(context.Background(), "org_b")
	if err != nil {
		t.Fatalf("Projects: %v", err)
	}
	if projects == nil || len(projects) != 0 {
		t.Fatalf("projects = %#v, want empty non-nil slice", projects)
	}
}

func TestNon2xxIsStatusError(t *testing.T) {
	client := newTestClient(t, func(writer http.ResponseWriter, request *http.Request) {
		writer.WriteHeader(http.StatusForbidden)
		writer.Write([]byte(`{"detail":"not your org"}`))
	})

	_, err := client.Project(context.Background(), "p9")
	var statusErr *remote.StatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("err = %v, want *remote.StatusError", err)
	}
	if statusErr.Code != http.StatusForbidden || statusErr.Path != "/projects/p9" {
		t.Fatalf("status error = %+v", statusErr)
	}
}

func TestInitOrgIgnoresBody(t *testing.T) {
	calls := 0
	client := newTestClient(t, func(writer http.ResponseWriter, request *http.Request) {
		calls++
		if request.Method != http.MethodPost || request.URL.Path != "/api/organizations/org_b/init" {
			t.Errorf("unexpected request %s %s", request.Method, request.URL.Path)
		}
		writer.Write([]byte(`not json`))
	})
	if err := client.InitOrg(context.Background(), "org_b"); err != nil {
		t.Fatalf("InitOrg: %v", err)
	}
	if calls != 1 {
		t.Fatalf("calls = %d", calls)
	}
}

func TestUpdateProjectSendsSettings(t *testing.T) {
	client := newTestClient(t, func(writer http.ResponseWriter, request *http.Request) {
		var body map[string]any
		if err := json.NewDecoder(request.Body).Decode(&body); err != nil {
			t.Fatalf("decoding body: %v", err)
		}
		if _, ok := body["project_name"]; ok {
			t.Errorf("project_name sent although unset: %v", body)
		}
		settings, ok := body["settings"].(map[string]any)
		if !ok {
			t.Fatalf("settings missing: %v", body)
		}
		threshold := settings["sentiment_threshold"].(map[string]any)
		if threshold["score"] != 0.5 {
			t.Errorf("score = %v", threshold["score"])
		}
		json.NewEncoder(writer).Encode(map[string]any{"id": "p1", "settings": settings})
	})

	update := remote.ProjectUpdate{Settings: &consolesync.ProjectSettings{
		SentimentThreshold: &consolesync.SentimentThreshold{Score: 0.5, Magnitude: 1},
	}}
	project, err := client.UpdateProject(context.Background(), "p1", update)
	if err != nil {
		t.Fatalf("UpdateProject: %v", err)
	}
	if project.Settings.Threshold().Score != 0.5 {
		t.Fatalf("project = %+v", project)
	}
}

func TestSessionsRequestBody(t *testing.T) {
	client := newTestClient(t, func(writer http.ResponseWriter, request *http.Request) {
		var body sessionsRequest
		if err := json.NewDecoder(request.Body).Decode(&body); err != nil {
			t.Fatalf("decoding body: %v", err)
		}
		if body.Pagination.Page != 2 || body.Pagination.PerPage != 10 {
			t.Errorf("pagination = %+v", body.Pagination)
		}
		if len(body.Filters.EventName) != 1 || body.Filters.EventName[0] != "bug" {
			t.Errorf("filters = %+v", body.Filters)
		}
		json.NewEncoder(writer).Encode(consolesync.SessionPage{
			Sessions: []consolesync.Session{{ID: "s1", Events: []consolesync.Event{{EventName: "bug"}}}},
			Total:    21,
		})
	})

	page, err := client.Sessions(context.Background(), "p1", remote.SessionQuery{
		PageIndex: 2,
		PageSize:  10,
		Filters:   remote.DataFilters{EventName: []string{"bug"}},
	})
	if err != nil {
		t.Fatalf("Sessions: %v", err)
	}
	if page.Total != 21 || len(page.Sessions) != 1 || page.Sessions[0].ID != "s1" {
		t.Fatalf("page = %+v", page)
	}
}

func TestSessionEventEndpoints(t *testing.T) {
	var paths []string
	client := newTestClient(t, func(writer http.ResponseWriter, request *http.Request) {
		paths = append(paths, request.URL.Path)
		json.NewEncoder(writer).Encode(consolesync.Session{ID: "s1"})
	})
	ctx := context.Background()
	if _, err := client.AddSessionEvent(ctx, "s1", consolesync.Event{EventName: "bug"}); err != nil {
		t.Fatalf("AddSessionEvent: %v", err)
	}
	if _, err := client.RemoveSessionEvent(ctx, "s1", "bug"); err != nil {
		t.Fatalf("RemoveSessionEvent: %v", err)
	}
	want := []string{"/api/sessions/s1/add-event", "/api/sessions/s1/remove-event"}
	if len(paths) != 2 || paths[0] != want[0] || paths[1] != want[1] {
		t.Fatalf("paths = %v, want %v", paths, want)
	}
}

func TestTasksQuery(t *testing.T) {
	client := newTestClient(t, func(writer http.ResponseWriter, request *http.Request) {
		if request.Method != http.MethodGet || request.URL.Path != "/api/projects/p1/tasks" {
			t.Errorf("unexpected request %s %s", request.Method, request.URL.Path)
		}
		query := request.URL.Query()
		if query.Get("page") != "1" || query.Get("per_page") != "10" {
			t.Errorf("pagination = %v", query)
		}
		var filters remote.DataFilters
		if err := json.Unmarshal([]byte(query.Get("task_filter")), &filters); err != nil || filters.Flag != "failure" {
			t.Errorf("task_filter = %q", query.Get("task_filter"))
		}
		json.NewEncoder(writer).Encode(map[string]any{
			"tasks": []map[string]any{{"id": "t1", "project_id": "p1", "sentiment": map[string]any{"score": -0.4, "label": "negative"}}},
			"total": 11,
		})
	})

	page, err := client.Tasks(context.Background(), "p1", remote.SessionQuery{
		PageIndex: 1,
		PageSize:  10,
		Filters:   remote.DataFilters{Flag: "failure"},
	})
	if err != nil {
		t.Fatalf("Tasks: %v", err)
	}
	if page.Total != 11 || len(page.Tasks) != 1 || page.Tasks[0].Sentiment.Label != "negative" {
		t.Fatalf("page = %+v", page)
	}
}
