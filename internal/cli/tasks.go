package cli

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/creastat/consolesync"
	"github.com/creastat/consolesync/remote"
)

func newTasksCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tasks",
		Short: "Browse the tasks of the selected project",
	}
	cmd.AddCommand(newTasksListCmd(app))
	return cmd
}

func newTasksListCmd(app *App) *cobra.Command {
	var (
		page int
		flag string
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List one page of tasks with their sentiment",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			views := app.sync.Views()
			if flag != "" {
				views.SetTaskFilters(remote.DataFilters{Flag: flag})
			}
			views.SetTaskPage(page)

			result, err := app.sync.Tasks(contextOf(cmd))
			if err != nil && result == nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(result.Tasks) == 0 {
				fmt.Fprintln(out, "No tasks on this page")
				return nil
			}
			fmt.Fprintf(out, "%-24s %-16s %-10s %s\n", "ID", "CREATED", "SENTIMENT", "INPUT")
			for _, t := range result.Tasks {
				sentiment := "-"
				if t.Sentiment != nil {
					sentiment = orNone(t.Sentiment.Label)
				}
				fmt.Fprintf(out, "%-24s %-16s %-10s %s\n",
					t.ID,
					humanize.Time(t.CreatedTime()),
					sentiment,
					consolesync.PreviewText(t.Input, previewLength),
				)
			}
			if result.Total > 0 {
				fmt.Fprintf(out, "\nPage %d, %s tasks in total\n", page, humanize.Comma(int64(result.Total)))
			}
			return err
		},
	}
	cmd.Flags().IntVar(&page, "page", 0, "zero-based page index")
	cmd.Flags().StringVar(&flag, "flag", "", "only tasks with this flag (success or failure)")
	return cmd
}
