package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/creastat/consolesync"
)

func newStatusCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the resolved organization, project and event vocabulary",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			sel := app.sync.Selection()
			view := app.sync.Views().View()

			fmt.Fprintf(out, "User:         %s\n", sel.UserID)
			fmt.Fprintf(out, "Organization: %s\n", orNone(sel.OrgID))
			if view.OrgMetadata != nil && view.OrgMetadata.Plan != "" {
				fmt.Fprintf(out, "Plan:         %s\n", view.OrgMetadata.Plan)
			}
			if view.Project == nil {
				fmt.Fprintln(out, "Project:      -")
				return nil
			}
			fmt.Fprintf(out, "Project:      %s (%s)\n", view.Project.ProjectName, view.Project.ID)
			fmt.Fprintf(out, "Events:       %s\n", orNone(strings.Join(view.Vocabulary, ", ")))
			threshold := view.Project.Settings.Threshold()
			fmt.Fprintf(out, "Sentiment:    score %g, magnitude %g\n", threshold.Score, threshold.Magnitude)
			return nil
		},
	}
}

func newSelectCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "select",
		Short: "Change the selected organization or project",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := app.open(cmd); err != nil {
				return err
			}
			if !app.cfg.PersistsSelection() {
				return fmt.Errorf("%w: selection store %q forgets the selection when consolesync exits; use sqlite or redis",
					consolesync.ErrInvalidConfig, app.cfg.Selection.Store)
			}
			return nil
		},
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "org <org-id>",
		Short: "Select an organization you are a member of",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := app.sync.SelectOrg(contextOf(cmd), args[0]); err != nil {
				return err
			}
			sel := app.sync.Selection()
			fmt.Fprintf(cmd.OutOrStdout(), "Selected organization %s, project %s\n", sel.OrgID, orNone(sel.ProjectID))
			return nil
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "project <project-id>",
		Short: "Select a project of the current organization",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := app.sync.SelectProject(contextOf(cmd), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Selected project %s\n", args[0])
			return nil
		},
	})
	return cmd
}

func orNone(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
