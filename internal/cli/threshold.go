package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/creastat/consolesync"
)

func newThresholdCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "threshold",
		Short: "Sentiment threshold of the selected project",
	}

	var threshold consolesync.SentimentThreshold
	set := &cobra.Command{
		Use:   "set",
		Short: "Set the sentiment score and magnitude thresholds",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := app.sync.SetSentimentThreshold(contextOf(cmd), threshold); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Sentiment threshold set to score %g, magnitude %g\n",
				threshold.Score, threshold.Magnitude)
			return nil
		},
	}
	set.Flags().Float64Var(&threshold.Score, "score", consolesync.DefaultSentimentScore, "score threshold, 0.05 to 1")
	set.Flags().Float64Var(&threshold.Magnitude, "magnitude", consolesync.DefaultSentimentMagnitude, "magnitude threshold, 0.1 to 100")
	cmd.AddCommand(set)
	return cmd
}
