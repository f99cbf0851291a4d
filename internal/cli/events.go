package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/creastat/consolesync"
)

func newEventsCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "events",
		Short: "Manage the event definitions of the selected project",
	}
	cmd.AddCommand(newEventsListCmd(app))
	cmd.AddCommand(newEventsAddCmd(app))
	cmd.AddCommand(newEventsDeleteCmd(app))
	return cmd
}

func newEventsListCmd(app *App) *cobra.Command {
	var detected bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List defined events, or with --detected the events found in sessions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			if detected {
				names, err := app.sync.UniqueEventNames(contextOf(cmd))
				if err != nil {
					return err
				}
				for _, name := range names {
					fmt.Fprintln(out, name)
				}
				return nil
			}

			project, err := app.project()
			if err != nil {
				return err
			}
			if len(project.EventNames()) == 0 {
				fmt.Fprintln(out, "No events defined; add one with 'consolesync events add'")
				return nil
			}
			fmt.Fprintf(out, "%-20s %-8s %s\n", "NAME", "WEBHOOK", "DESCRIPTION")
			for _, name := range project.EventNames() {
				def := project.Settings.Events[name]
				webhook := "no"
				if def.HasWebhook() {
					webhook = "yes"
				}
				fmt.Fprintf(out, "%-20s %-8s %s\n", name, webhook, def.Description)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&detected, "detected", false, "list event names detected in sessions instead")
	return cmd
}

func newEventsAddCmd(app *App) *cobra.Command {
	var definition consolesync.EventDefinition
	cmd := &cobra.Command{
		Use:   "add <name>",
		Short: "Define a new event",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			definition.EventName = args[0]
			if err := app.sync.AddEventDefinition(contextOf(cmd), definition); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Added event %s\n", definition.EventName)
			return nil
		},
	}
	cmd.Flags().StringVar(&definition.Description, "description", "", "what the event detects (required)")
	cmd.Flags().StringVar(&definition.Webhook, "webhook", "", "URL notified when the event is detected")
	return cmd
}

func newEventsDeleteCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <name>",
		Short: "Delete an event definition",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := app.sync.DeleteEventDefinition(contextOf(cmd), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted event %s\n", args[0])
			return nil
		},
	}
}
