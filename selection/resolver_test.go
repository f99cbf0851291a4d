package selection

import (
	"context"
	"errors"
	"testing"

	"github.com/creastat/consolesync"
)

func identityWith(orgIDs ...string) *consolesync.Identity {
	identity := &consolesync.Identity{UserID: "u1"}
	for _, id := range orgIDs {
		identity.Memberships = append(identity.Memberships, consolesync.Membership{OrgID: id})
	}
	return identity
}

func projectsWith(ids ...string) []consolesync.Project {
	projects := make([]consolesync.Project, 0, len(ids))
	for _, id := range ids {
		projects = append(projects, consolesync.Project{ID: id})
	}
	return projects
}

func TestResolveOrg(t *testing.T) {
	tests := []struct {
		name        string
		identity    *consolesync.Identity
		current     string
		want        string
		wantChanged bool
	}{
		{"unset selects first", identityWith("org_a", "org_b"), "", "org_a", true},
		{"valid selection kept", identityWith("org_a", "org_b"), "org_b", "org_b", false},
		{"invalid selection replaced", identityWith("org_a", "org_b"), "org_z", "org_a", true},
		{"no memberships clears", identityWith(), "org_a", "", true},
		{"no memberships stays empty", identityWith(), "", "", false},
		{"nil identity", nil, "", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, changed := ResolveOrg(tt.identity, tt.current)
			if got != tt.want || changed != tt.wantChanged {
				t.Errorf("ResolveOrg() = (%q, %v), want (%q, %v)", got, changed, tt.want, tt.wantChanged)
			}
		})
	}
}

func TestResolveProject(t *testing.T) {
	tests := []struct {
		name         string
		projects     []consolesync.Project
		fetched      bool
		current      string
		want         string
		wantDecision ProjectDecision
	}{
		{"not fetched waits", nil, false, "p1", "p1", Wait},
		{"empty list awaits init", projectsWith(), true, "", "", AwaitInit},
		{"unset selects first", projectsWith("p1", "p2"), true, "", "p1", SelectFirst},
		{"present is kept", projectsWith("p1", "p2"), true, "p2", "p2", Keep},
		{"absent falls back", projectsWith("p1", "p2"), true, "p9", "p1", Fallback},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, decision := ResolveProject(tt.projects, tt.fetched, tt.current)
			if got != tt.want || decision != tt.wantDecision {
				t.Errorf("ResolveProject() = (%q, %v), want (%q, %v)", got, decision, tt.want, tt.wantDecision)
			}
		})
	}
}

func TestResolverInitializesEmptyOrgOnce(t *testing.T) {
	calls := 0
	resolver := NewResolver(func(ctx context.Context, orgID string) error {
		calls++
		if orgID != "org_b" {
			t.Errorf("init org = %q", orgID)
		}
		return nil
	}, nil)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		result, err := resolver.Project(ctx, "org_b", nil, true, "")
		if err != nil {
			t.Fatalf("Project: %v", err)
		}
		if result.Decision != AwaitInit || result.ProjectID != "" {
			t.Fatalf("result = %+v", result)
		}
		if result.Initialized != (i == 0) {
			t.Fatalf("evaluation %d: Initialized = %v", i, result.Initialized)
		}
	}
	if calls != 1 {
		t.Fatalf("init calls = %d, want 1", calls)
	}

	// The created project arrives and is selected.
	result, err := resolver.Project(ctx, "org_b", projectsWith("p_new"), true, "")
	if err != nil {
		t.Fatalf("Project: %v", err)
	}
	if result.ProjectID != "p_new" || result.Decision != SelectFirst || !result.Changed() {
		t.Fatalf("result = %+v", result)
	}

	// A non-empty list re-arms initialization for a later empty one.
	if _, err := resolver.Project(ctx, "org_b", nil, true, ""); err != nil {
		t.Fatalf("Project: %v", err)
	}
	if calls != 2 {
		t.Fatalf("init calls = %d, want 2", calls)
	}
}

func TestResolverRetriesFailedInit(t *testing.T) {
	calls := 0
	failure := errors.New("boom")
	resolver := NewResolver(func(ctx context.Context, orgID string) error {
		calls++
		if calls == 1 {
			return failure
		}
		return nil
	}, nil)
	ctx := context.Background()

	if _, err := resolver.Project(ctx, "org_b", nil, true, ""); !errors.Is(err, failure) {
		t.Fatalf("err = %v, want %v", err, failure)
	}
	if _, err := resolver.Project(ctx, "org_b", nil, true, ""); err != nil {
		t.Fatalf("retry: %v", err)
	}
	if _, err := resolver.Project(ctx, "org_b", nil, true, ""); err != nil {
		t.Fatalf("Project: %v", err)
	}
	if calls != 2 {
		t.Fatalf("init calls = %d, want 2", calls)
	}
}

func TestResolverEndOrgRearmsInit(t *testing.T) {
	calls := 0
	resolver := NewResolver(func(ctx context.Context, orgID string) error {
		calls++
		return nil
	}, nil)
	ctx := context.Background()

	resolver.Project(ctx, "org_b", nil, true, "")
	resolver.EndOrg("org_b")
	resolver.Project(ctx, "org_b", nil, true, "")
	resolver.Reset()
	resolver.Project(ctx, "org_b", nil, true, "")

	if calls != 3 {
		t.Fatalf("init calls = %d, want 3", calls)
	}
}

func TestResolverWithoutOrgWaits(t *testing.T) {
	resolver := NewResolver(func(ctx context.Context, orgID string) error {
		t.Fatal("init must not run without an organization")
		return nil
	}, nil)
	result, err := resolver.Project(context.Background(), "", nil, true, "")
	if err != nil || result.Decision != Wait {
		t.Fatalf("result = %+v, err = %v", result, err)
	}
}

func TestSelectionScenario(t *testing.T) {
	resolver := NewResolver(nil, nil)
	identity := identityWith("org_a", "org_b")

	orgID, changed := resolver.Org(identity, "")
	if orgID != "org_a" || !changed {
		t.Fatalf("org = %q changed = %v", orgID, changed)
	}
	result, err := resolver.Project(context.Background(), orgID, projectsWith("p1", "p2"), true, "")
	if err != nil {
		t.Fatalf("Project: %v", err)
	}
	if result.ProjectID != "p1" {
		t.Fatalf("project = %q, want p1", result.ProjectID)
	}
}
