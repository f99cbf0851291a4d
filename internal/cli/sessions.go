package cli

import (
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/creastat/consolesync"
)

// previewLength is how many runes of a session preview the table shows.
const previewLength = 50

func newSessionsCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "Browse and label the sessions of the selected project",
	}
	cmd.AddCommand(newSessionsListCmd(app))
	cmd.AddCommand(newSessionsTagCmd(app))
	cmd.AddCommand(newSessionsUntagCmd(app))
	return cmd
}

func newSessionsListCmd(app *App) *cobra.Command {
	var (
		page  int
		event string
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List one page of sessions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			views := app.sync.Views()
			if event != "" {
				views.SetSessionEventFilter(event)
			}
			views.SetSessionPage(page)

			result, err := app.sync.Sessions(contextOf(cmd))
			if err != nil && result == nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(result.Sessions) == 0 {
				fmt.Fprintln(out, "No sessions on this page")
				return nil
			}
			fmt.Fprintf(out, "%-24s %-16s %-24s %s\n", "ID", "CREATED", "EVENTS", "PREVIEW")
			for _, s := range result.Sessions {
				fmt.Fprintf(out, "%-24s %-16s %-24s %s\n",
					s.ID,
					humanize.Time(s.CreatedTime()),
					orNone(strings.Join(consolesync.UniqueEventNames(s.Events), ",")),
					consolesync.PreviewText(s.Preview, previewLength),
				)
			}
			if result.Total > 0 {
				fmt.Fprintf(out, "\nPage %d, %s sessions in total\n", page, humanize.Comma(int64(result.Total)))
			}
			return err
		},
	}
	cmd.Flags().IntVar(&page, "page", 0, "zero-based page index")
	cmd.Flags().StringVar(&event, "event", "", "only sessions with this event")
	return cmd
}

func newSessionsTagCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "tag <session-id> <event-name>",
		Short: "Attach an event to a session",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := app.sync.AttachEvent(contextOf(cmd), args[0], args[1]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Tagged %s with %s\n", args[0], args[1])
			return nil
		},
	}
}

func newSessionsUntagCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "untag <session-id> <event-name>",
		Short: "Remove an event from a session",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := app.sync.DetachEvent(contextOf(cmd), args[0], args[1]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %s from %s\n", args[1], args[0])
			return nil
		},
	}
}
