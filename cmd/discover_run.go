package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/mathiasgse/screenfree/internal/discovery"
)

var discoverRunCmd = &cobra.Command{
	Use:   "run",
	Short: "Search, enrich and score candidates",
	Long: "Expands the selected presets into search queries, enriches every hit's website, scores it " +
		"and upserts the result. Without --preset or --country all presets are searched.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		preset, _ := cmd.Flags().GetString("preset")
		country, _ := cmd.Flags().GetString("country")
		limit, _ := cmd.Flags().GetInt("limit")
		dryRun, _ := cmd.Flags().GetBool("dry-run")

		env, err := initEnv(ctx, "discover")
		if err != nil {
			return err
		}
		defer env.Close()

		stats, err := env.Runner.Run(ctx, discovery.RunOptions{
			Preset:  preset,
			Country: country,
			Limit:   limit,
			DryRun:  dryRun,
		})
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		_, _ = fmt.Fprintf(out, "candidates found:   %d\n", stats.CandidatesFound)
		_, _ = fmt.Fprintf(out, "new candidates:     %d\n", stats.NewCandidates)
		_, _ = fmt.Fprintf(out, "duplicates skipped: %d\n", stats.DuplicatesSkipped)
		_, _ = fmt.Fprintf(out, "errors:             %d\n", stats.ErrorCount)
		return nil
	},
}

func init() {
	discoverRunCmd.Flags().String("preset", "", "region preset key (see presets)")
	discoverRunCmd.Flags().String("country", "", "country code, e.g. AT")
	discoverRunCmd.Flags().Int("limit", 100, "max candidates to process")
	discoverRunCmd.Flags().Bool("dry-run", false, "score without writing to the store")
	discoverRunCmd.MarkFlagsMutuallyExclusive("preset", "country")
	discoverCmd.AddCommand(discoverRunCmd)
}
