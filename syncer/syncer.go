// Package syncer keeps the selected organization and project, the derived
// view state and the resource cache consistent with the authenticated
// identity and the remote console API.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/creastat/consolesync"
	"github.com/creastat/consolesync/mutation"
	"github.com/creastat/consolesync/remote"
	"github.com/creastat/consolesync/resource"
	"github.com/creastat/consolesync/selection"
	"github.com/creastat/consolesync/viewstore"
)

// Config holds syncer dependencies. Only API is required.
type Config struct {
	API        remote.API
	Cache      *resource.Cache
	Views      *viewstore.Store
	Selections selection.Store
	Reporter   Reporter
	Logger     *slog.Logger
}

// Syncer is safe for concurrent use. Selection changes and reconciliation
// are serialized; reads run concurrently.
type Syncer struct {
	api        remote.API
	cache      *resource.Cache
	views      *viewstore.Store
	selections selection.Store
	resolver   *selection.Resolver
	mutator    *mutation.Mutator
	reporter   Reporter
	logger     *slog.Logger

	// serial orders selection changes. It is never taken by cache listeners.
	serial sync.Mutex

	mu           sync.Mutex
	identity     *consolesync.Identity
	current      selection.Selection
	unsubscribe  func()
	subscribedTo string
}

// New creates a Syncer.
func New(cfg Config) (*Syncer, error) {
	if cfg.API == nil {
		return nil, fmt.Errorf("%w: remote API is required", consolesync.ErrInvalidConfig)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}
	if cfg.Cache == nil {
		cfg.Cache = resource.New(resource.Config{Logger: cfg.Logger})
	}
	if cfg.Views == nil {
		cfg.Views = viewstore.New(0)
	}
	if cfg.Selections == nil {
		cfg.Selections = selection.NewInMemoryStore()
	}
	if cfg.Reporter == nil {
		cfg.Reporter = LogReporter{Logger: cfg.Logger}
	}

	return &Syncer{
		api:        cfg.API,
		cache:      cfg.Cache,
		views:      cfg.Views,
		selections: cfg.Selections,
		resolver:   selection.NewResolver(cfg.API.InitOrg, cfg.Logger),
		mutator:    mutation.New(cfg.Cache, cfg.Logger),
		reporter:   cfg.Reporter,
		logger:     cfg.Logger,
	}, nil
}

// Cache returns the shared resource cache.
func (s *Syncer) Cache() *resource.Cache { return s.cache }

// Views returns the derived view store.
func (s *Syncer) Views() *viewstore.Store { return s.views }

// Mutator returns the mutator bound to the shared cache.
func (s *Syncer) Mutator() *mutation.Mutator { return s.mutator }

// Selection returns the current selection.
func (s *Syncer) Selection() selection.Selection {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// SetIdentity records the authenticated identity and reconciles the
// selection. An identity equal to the current one is ignored. A new user
// starts from the selection persisted for them, if any.
func (s *Syncer) SetIdentity(ctx context.Context, identity *consolesync.Identity) error {
	s.serial.Lock()
	defer s.serial.Unlock()

	s.mu.Lock()
	previous := s.identity
	s.mu.Unlock()
	if sameIdentity(previous, identity) {
		return nil
	}

	if identity == nil {
		s.teardown()
		return nil
	}

	if previous == nil || previous.UserID != identity.UserID {
		s.teardown()
		start := selection.Selection{UserID: identity.UserID}
		stored, err := s.selections.Get(ctx, identity.UserID)
		if err != nil {
			s.logger.Warn("loading persisted selection failed", "user_id", identity.UserID, "error", err)
		} else if stored != nil {
			start = *stored
		}
		s.mu.Lock()
		s.current = start
		s.mu.Unlock()
	}

	s.mu.Lock()
	s.identity = identity
	s.mu.Unlock()
	s.logger.Info("identity changed", "user_id", identity.UserID, "memberships", len(identity.Memberships))

	return s.reconcile(ctx)
}

// Logout drops the identity, the persisted selection and the view state.
func (s *Syncer) Logout(ctx context.Context) error {
	s.serial.Lock()
	defer s.serial.Unlock()

	s.mu.Lock()
	userID := s.current.UserID
	s.mu.Unlock()

	s.teardown()
	if userID == "" {
		return nil
	}
	if err := s.selections.Delete(ctx, userID); err != nil {
		return fmt.Errorf("deleting persisted selection: %w", err)
	}
	return nil
}

// SelectOrg switches to orgID, which must be one of the identity's
// memberships. The project is re-resolved for the new organization.
func (s *Syncer) SelectOrg(ctx context.Context, orgID string) error {
	s.serial.Lock()
	defer s.serial.Unlock()

	s.mu.Lock()
	identity := s.identity
	s.mu.Unlock()
	if !identity.IsMember(orgID) {
		return fmt.Errorf("%w: not a member of organization %s", consolesync.ErrSelectionUnavailable, orgID)
	}
	s.setOrg(ctx, orgID)
	return s.reconcile(ctx)
}

// SelectProject switches to projectID, which must belong to the selected
// organization.
func (s *Syncer) SelectProject(ctx context.Context, projectID string) error {
	s.serial.Lock()
	defer s.serial.Unlock()

	orgID := s.Selection().OrgID
	if orgID == "" {
		return consolesync.ErrSelectionUnavailable
	}
	projects, err := s.projects(ctx, orgID)
	if err != nil && projects == nil {
		return err
	}
	listed := findProject(projects, projectID)
	if listed == nil {
		return fmt.Errorf("project %s in organization %s: %w", projectID, orgID, consolesync.ErrNotFound)
	}
	s.setProject(ctx, projectID, listed)
	s.loadProject(ctx, projectID)
	return nil
}

// Reconcile re-applies the selection rules against freshly fetched data.
func (s *Syncer) Reconcile(ctx context.Context) error {
	s.serial.Lock()
	defer s.serial.Unlock()
	return s.reconcile(ctx)
}

func (s *Syncer) reconcile(ctx context.Context) error {
	s.mu.Lock()
	identity := s.identity
	current := s.current
	s.mu.Unlock()
	if identity == nil {
		return nil
	}

	orgID, changed := s.resolver.Org(identity, current.OrgID)
	if changed {
		s.setOrg(ctx, orgID)
	} else {
		s.views.SetOrg(orgID)
	}
	if orgID == "" {
		s.reporter.Report(Notice{Kind: SelectionUnavailable, Operation: "select organization",
			Err: fmt.Errorf("%w: user %s has no organization", consolesync.ErrSelectionUnavailable, identity.UserID)})
		return nil
	}

	metadata, err := resource.Fetch(ctx, s.cache, viewstore.MetadataKey(orgID), func(ctx context.Context) (*consolesync.OrgMetadata, error) {
		return s.api.OrgMetadata(ctx, orgID)
	})
	if err != nil {
		s.reportFetch("load organization metadata", err)
	}
	if metadata != nil {
		s.views.SetOrgMetadata(metadata)
	}

	// One extra pass picks up the project an initialization created.
	for attempt := 0; attempt < 2; attempt++ {
		projects, err := s.projects(ctx, orgID)
		fetched := err == nil || projects != nil
		if err != nil {
			s.reportFetch("load projects", err)
		}

		result, err := s.resolver.Project(ctx, orgID, projects, fetched, s.Selection().ProjectID)
		if err != nil {
			s.reporter.Report(Notice{Kind: MutationFailure, Operation: "initialize organization " + orgID,
				Err: &consolesync.MutationError{Operation: "initialize organization " + orgID, Err: err}})
			return nil
		}

		switch result.Decision {
		case selection.Wait:
			return nil
		case selection.AwaitInit:
			s.setProject(ctx, "", nil)
			if result.Initialized {
				s.cache.Invalidate(viewstore.ProjectsKey(orgID))
				continue
			}
			s.reporter.Report(Notice{Kind: SelectionUnavailable, Operation: "select project",
				Err: fmt.Errorf("%w: organization %s has no project yet", consolesync.ErrSelectionUnavailable, orgID)})
			return nil
		default:
			s.setProject(ctx, result.ProjectID, findProject(projects, result.ProjectID))
			s.loadProject(ctx, result.ProjectID)
			return nil
		}
	}
	return nil
}

func (s *Syncer) projects(ctx context.Context, orgID string) ([]consolesync.Project, error) {
	return resource.Fetch(ctx, s.cache, viewstore.ProjectsKey(orgID), func(ctx context.Context) ([]consolesync.Project, error) {
		return s.api.Projects(ctx, orgID)
	})
}

// loadProject fetches the selected project and publishes it with its
// vocabulary. Later writes to the project's cache entry, such as a settings
// commit or a refetch, are republished through the subscription.
func (s *Syncer) loadProject(ctx context.Context, projectID string) {
	s.subscribeProject(projectID)
	project, err := resource.Fetch(ctx, s.cache, viewstore.ProjectKey(projectID), func(ctx context.Context) (*consolesync.Project, error) {
		return s.api.Project(ctx, projectID)
	})
	if err != nil {
		s.reportFetch("load project "+projectID, err)
	}
	if project != nil && s.Selection().ProjectID == projectID {
		s.views.SetProject(project)
	}
}

func (s *Syncer) subscribeProject(projectID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.subscribedTo == projectID {
		return
	}
	if s.unsubscribe != nil {
		s.unsubscribe()
		s.unsubscribe = nil
	}
	s.subscribedTo = projectID
	if projectID == "" {
		return
	}
	s.unsubscribe = s.cache.Subscribe(viewstore.ProjectKey(projectID), func(snapshot resource.Snapshot) {
		project, ok := snapshot.Value.(*consolesync.Project)
		if !ok || !snapshot.Present || s.Selection().ProjectID != projectID {
			return
		}
		s.views.SetProject(project)
	})
}

func (s *Syncer) setOrg(ctx context.Context, orgID string) {
	s.mu.Lock()
	previous := s.current.OrgID
	s.current.OrgID = orgID
	if previous != orgID {
		s.current.ProjectID = ""
	}
	s.mu.Unlock()

	if previous != orgID {
		if previous != "" {
			s.resolver.EndOrg(previous)
		}
		s.subscribeProject("")
		s.persist(ctx)
	}
	s.views.SetOrg(orgID)
}

// setProject moves the selection to projectID. listed is the project's entry
// in the fetched list; the view shows it until GET /projects/{id} answers,
// so the view never keeps a project the list no longer holds.
func (s *Syncer) setProject(ctx context.Context, projectID string, listed *consolesync.Project) {
	s.mu.Lock()
	previous := s.current.ProjectID
	s.current.ProjectID = projectID
	s.mu.Unlock()

	shown := s.views.View().ProjectID()
	switch {
	case projectID == "":
		if previous != "" || shown != "" {
			s.subscribeProject("")
			s.views.SetProject(nil)
		}
	case shown != projectID && listed != nil:
		s.views.SetProject(listed)
	}
	if previous != projectID {
		s.persist(ctx)
	}
}

// persist stores the current selection. Persistence failures are logged and
// otherwise ignored; the in-memory selection stays authoritative.
func (s *Syncer) persist(ctx context.Context) {
	s.mu.Lock()
	sel := s.current
	s.mu.Unlock()
	if sel.UserID == "" {
		return
	}

	err := s.write(ctx, &sel)
	if errors.Is(err, consolesync.ErrVersionConflict) || errors.Is(err, consolesync.ErrAlreadyExists) {
		// Another console wrote the selection; ours is newer.
		var latest *selection.Selection
		latest, err = s.selections.Get(ctx, sel.UserID)
		if err == nil && latest != nil {
			sel.Version = latest.Version
			sel.CreatedAt = latest.CreatedAt
			err = s.selections.Update(ctx, &sel)
		}
	}
	if err != nil {
		s.logger.Warn("persisting selection failed", "user_id", sel.UserID, "error", err)
		return
	}

	s.mu.Lock()
	if s.current.UserID == sel.UserID {
		s.current.Version = sel.Version
		s.current.CreatedAt = sel.CreatedAt
		s.current.UpdatedAt = sel.UpdatedAt
	}
	s.mu.Unlock()
}

func (s *Syncer) write(ctx context.Context, sel *selection.Selection) error {
	if sel.Version == 0 {
		return s.selections.Create(ctx, sel)
	}
	err := s.selections.Update(ctx, sel)
	if errors.Is(err, consolesync.ErrNotFound) {
		sel.Version = 0
		return s.selections.Create(ctx, sel)
	}
	return err
}

// teardown forgets the identity and everything derived from it.
func (s *Syncer) teardown() {
	s.mu.Lock()
	s.identity = nil
	s.current = selection.Selection{}
	s.mu.Unlock()

	s.subscribeProject("")
	s.resolver.Reset()
	s.views.Reset()
}

func (s *Syncer) reportFetch(operation string, err error) {
	s.reporter.Report(Notice{Kind: FetchFailure, Operation: operation, Err: err})
}

func findProject(projects []consolesync.Project, projectID string) *consolesync.Project {
	for i := range projects {
		if projects[i].ID == projectID {
			return &projects[i]
		}
	}
	return nil
}

func sameIdentity(a, b *consolesync.Identity) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.UserID == b.UserID && slices.Equal(a.OrgIDs(), b.OrgIDs())
}
