package cli

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/creastat/consolesync"
	"github.com/creastat/consolesync/config"
	"github.com/creastat/consolesync/resource"
	"github.com/creastat/consolesync/syncer"
	"github.com/creastat/consolesync/viewstore"
)

// App carries the state shared by every command of one invocation.
type App struct {
	ConfigPath string

	cfg    *config.Config
	logger *slog.Logger
	sync   *syncer.Syncer
	close  func() error
}

// NewRootCmd builds the consolesync command tree.
func NewRootCmd() *cobra.Command {
	app := &App{}

	cmd := &cobra.Command{
		Use:          "consolesync",
		Short:        "Inspect and edit console projects through the synchronization core",
		SilenceUsage: true,
		Example: strings.TrimSpace(`
  # Show the resolved organization and project
  consolesync --config consolesync.yaml status

  # List the second page of sessions tagged "bug"
  consolesync sessions list --page 1 --event bug

  # Tag a session
  consolesync sessions tag sess_123 churn
`),
	}
	cmd.PersistentFlags().StringVar(&app.ConfigPath, "config", "", "path to consolesync.yaml (default: $CONSOLESYNC_CONFIG)")

	cmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		switch cmd.Name() {
		case "help", "completion", "__complete":
			return nil
		}
		return app.open(cmd)
	}
	cmd.PersistentPostRunE = func(cmd *cobra.Command, args []string) error {
		return app.shutdown()
	}

	cmd.AddCommand(newStatusCmd(app))
	cmd.AddCommand(newSelectCmd(app))
	cmd.AddCommand(newEventsCmd(app))
	cmd.AddCommand(newSessionsCmd(app))
	cmd.AddCommand(newTasksCmd(app))
	cmd.AddCommand(newThresholdCmd(app))
	return cmd
}

func (a *App) open(cmd *cobra.Command) error {
	var (
		cfg *config.Config
		err error
	)
	if a.ConfigPath != "" {
		cfg, err = config.LoadFile(a.ConfigPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	a.cfg = cfg
	a.logger = cfg.NewLogger(cmd.ErrOrStderr())

	api, err := newAPI(cfg, a.logger)
	if err != nil {
		return err
	}
	selections, err := newSelectionStore(cfg)
	if err != nil {
		return err
	}
	a.close = selections.Close

	a.sync, err = syncer.New(syncer.Config{
		API: api,
		Cache: resource.New(resource.Config{
			DedupeInterval: cfg.DedupeInterval(),
			Logger:         a.logger,
		}),
		Views:      viewstore.New(cfg.Views.PageSize),
		Selections: selections,
		Reporter:   syncer.LogReporter{Logger: a.logger},
		Logger:     a.logger,
	})
	if err != nil {
		return err
	}

	identity := cfg.Identity()
	if identity == nil {
		return fmt.Errorf("%w: identity.user_id is required", consolesync.ErrInvalidConfig)
	}
	return a.sync.SetIdentity(contextOf(cmd), identity)
}

func (a *App) shutdown() error {
	if a.close == nil {
		return nil
	}
	return a.close()
}

// project returns the selected project or ErrSelectionUnavailable.
func (a *App) project() (*consolesync.Project, error) {
	project := a.sync.Views().View().Project
	if project == nil {
		return nil, consolesync.ErrSelectionUnavailable
	}
	return project, nil
}

func contextOf(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
