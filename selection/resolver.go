package selection

import (
	"context"
	"log/slog"
	"slices"
	"sync"

	"github.com/creastat/consolesync"
)

// ProjectDecision is the outcome of the project rule.
type ProjectDecision int

const (
	// Wait: no organization selected or its project list not fetched yet.
	Wait ProjectDecision = iota
	// Keep: the selected project is in the fetched list.
	Keep
	// SelectFirst: nothing was selected and the list is non-empty.
	SelectFirst
	// Fallback: the selected project is absent from the fetched list.
	Fallback
	// AwaitInit: the organization has no project; one is being created.
	AwaitInit
)

func (d ProjectDecision) String() string {
	switch d {
	case Wait:
		return "wait"
	case Keep:
		return "keep"
	case SelectFirst:
		return "select-first"
	case Fallback:
		return "fallback"
	case AwaitInit:
		return "await-init"
	default:
		return "unknown"
	}
}

// ResolveOrg applies the organization rule: keep current when it is one of
// the identity's memberships, otherwise select the first membership. It
// returns "" only when the identity has no memberships.
func ResolveOrg(identity *consolesync.Identity, current string) (orgID string, changed bool) {
	ids := identity.OrgIDs()
	if len(ids) == 0 {
		return "", current != ""
	}
	if current != "" && slices.Contains(ids, current) {
		return current, false
	}
	return ids[0], true
}

// ResolveProject applies the project rule to a freshly fetched list. The
// selection never points at a project known not to exist in the list.
func ResolveProject(projects []consolesync.Project, fetched bool, current string) (string, ProjectDecision) {
	if !fetched {
		return current, Wait
	}
	if len(projects) == 0 {
		return "", AwaitInit
	}
	if current == "" {
		return projects[0].ID, SelectFirst
	}
	for _, p := range projects {
		if p.ID == current {
			return current, Keep
		}
	}
	return projects[0].ID, Fallback
}

// Initializer creates the default project of an organization.
type Initializer func(ctx context.Context, orgID string) error

// ProjectResult reports one evaluation of the project rule.
type ProjectResult struct {
	ProjectID string
	Decision  ProjectDecision
	// Initialized is set when this evaluation invoked the Initializer.
	Initialized bool
}

// Changed reports whether the evaluation moved the selection.
func (r ProjectResult) Changed() bool {
	return r.Decision == SelectFirst || r.Decision == Fallback
}

// Resolver runs the selection rules and keeps the per-organization
// bookkeeping that makes empty-organization initialization idempotent.
type Resolver struct {
	mu          sync.Mutex
	init        Initializer
	initialized map[string]bool
	logger      *slog.Logger
}

// NewResolver creates a Resolver. init may be nil, in which case empty
// organizations simply stay unselected.
func NewResolver(init Initializer, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Resolver{
		init:        init,
		initialized: make(map[string]bool),
		logger:      logger,
	}
}

// Org resolves the organization selection for identity.
func (r *Resolver) Org(identity *consolesync.Identity, current string) (string, bool) {
	orgID, changed := ResolveOrg(identity, current)
	if changed {
		r.logger.Info("organization selection resolved",
			"previous", current, "selected", orgID)
	}
	return orgID, changed
}

// Project resolves the project selection for orgID. When the fetched list is
// empty the Initializer is invoked once; later evaluations of the same empty
// list do nothing until a non-empty list is observed or the organization
// selection ends. A failed initialization is retried on the next evaluation.
func (r *Resolver) Project(ctx context.Context, orgID string, projects []consolesync.Project, fetched bool, current string) (ProjectResult, error) {
	if orgID == "" {
		return ProjectResult{ProjectID: current, Decision: Wait}, nil
	}
	projectID, decision := ResolveProject(projects, fetched, current)
	result := ProjectResult{ProjectID: projectID, Decision: decision}

	switch decision {
	case Wait:
		return result, nil
	case AwaitInit:
		r.mu.Lock()
		if r.initialized[orgID] || r.init == nil {
			r.mu.Unlock()
			return result, nil
		}
		r.initialized[orgID] = true
		r.mu.Unlock()

		r.logger.Info("organization has no project, initializing", "org_id", orgID)
		result.Initialized = true
		if err := r.init(ctx, orgID); err != nil {
			r.mu.Lock()
			delete(r.initialized, orgID)
			r.mu.Unlock()
			return result, err
		}
		return result, nil
	default:
		r.mu.Lock()
		delete(r.initialized, orgID)
		r.mu.Unlock()
		if result.Changed() {
			r.logger.Info("project selection resolved",
				"org_id", orgID, "previous", current, "selected", projectID, "decision", decision.String())
		}
		return result, nil
	}
}

// EndOrg forgets the initialization bookkeeping of orgID. Called when the
// organization is deselected so a later selection starts a new session.
func (r *Resolver) EndOrg(orgID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.initialized, orgID)
}

// Reset forgets all bookkeeping, e.g. on logout.
func (r *Resolver) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	clear(r.initialized)
}
