package main

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/mathiasgse/screenfree/internal/model"
)

var discoverStatusCmd = &cobra.Command{
	Use:   "status [run-id]",
	Short: "Show discovery run status",
	Long:  "Display recent discovery runs, or one run by id, with progress and candidate counts.",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		limit, _ := cmd.Flags().GetInt("limit")

		env, err := initEnv(ctx, "review")
		if err != nil {
			return err
		}
		defer env.Close()

		var runs []model.Run
		if len(args) == 1 {
			run, err := env.Store.GetRun(ctx, args[0])
			if err != nil {
				return err
			}
			runs = []model.Run{*run}
		} else {
			runs, err = env.Store.ListRuns(ctx, limit)
			if err != nil {
				return err
			}
		}

		if len(runs) == 0 {
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), "no discovery runs found")
			return nil
		}
		formatRuns(cmd.OutOrStdout(), runs)
		return nil
	},
}

func init() {
	discoverStatusCmd.Flags().Int("limit", 20, "number of runs to show")
	discoverCmd.AddCommand(discoverStatusCmd)
}

func formatRuns(out io.Writer, runs []model.Run) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tPRESET\tSTATUS\tPROGRESS\tFOUND\tNEW\tSKIPPED\tERRORS\tSTARTED\tERROR")
	_, _ = fmt.Fprintln(w, "--\t------\t------\t--------\t-----\t---\t-------\t------\t-------\t-----")

	for _, r := range runs {
		errMsg := r.ErrorMessage
		if len([]rune(errMsg)) > 50 {
			errMsg = string([]rune(errMsg)[:47]) + "..."
		}
		progress := fmt.Sprintf("%d/%d", r.Progress.Processed, r.Progress.Total)
		if r.Status == model.RunRunning {
			progress = string(r.Progress.Phase) + " " + progress
		}

		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%d\t%d\t%d\t%s\t%s\n",
			shortUUID(r.ID),
			r.Preset,
			r.Status,
			progress,
			r.Stats.CandidatesFound,
			r.Stats.NewCandidates,
			r.Stats.DuplicatesSkipped,
			r.Stats.ErrorCount,
			r.StartedAt.Local().Format(time.DateTime),
			errMsg,
		)
	}
	_ = w.Flush()
}

func shortUUID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
