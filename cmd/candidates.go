package main

import (
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/mathiasgse/screenfree/internal/discovery"
	"github.com/mathiasgse/screenfree/internal/model"
)

var candidatesCmd = &cobra.Command{
	Use:   "candidates",
	Short: "Review discovered candidates",
}

var candidatesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List candidates by score",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		status, _ := cmd.Flags().GetString("status")
		minScore, _ := cmd.Flags().GetInt("min-score")
		limit, _ := cmd.Flags().GetInt("limit")

		f := model.CandidateFilter{Status: model.CandidateStatus(status), MinScore: minScore, Limit: limit}
		if f.Status != "" && !f.Status.Valid() {
			return eris.Errorf("invalid status %q (new, maybe, accepted, rejected)", status)
		}

		env, err := initEnv(ctx, "review")
		if err != nil {
			return err
		}
		defer env.Close()

		cs, err := env.Store.ListCandidates(ctx, f)
		if err != nil {
			return err
		}
		if len(cs) == 0 {
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), "no candidates found")
			return nil
		}
		formatCandidates(cmd.OutOrStdout(), cs)
		return nil
	},
}

var candidatesAcceptCmd = &cobra.Command{
	Use:   "accept <id>",
	Short: "Accept a candidate as a draft place and print the outreach email",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		env, err := initEnv(ctx, "review")
		if err != nil {
			return err
		}
		defer env.Close()

		place, err := env.Reviewer.Accept(ctx, args[0])
		if err != nil {
			return err
		}
		c, err := env.Store.GetCandidate(ctx, args[0])
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		_, _ = fmt.Fprintf(out, "draft place %s (%s)\n", place.ID, place.Slug)
		if place.RegionID == "" {
			_, _ = fmt.Fprintln(out, "no matching region, assign one before publishing")
		}
		_, _ = fmt.Fprintf(out, "\n%s\n", c.GeneratedEmail)
		return nil
	},
}

var candidatesRejectCmd = &cobra.Command{
	Use:   "reject <id>",
	Short: "Reject a candidate",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		reason, _ := cmd.Flags().GetString("reason")
		env, err := initEnv(ctx, "review")
		if err != nil {
			return err
		}
		defer env.Close()
		return env.Reviewer.Reject(ctx, args[0], reason)
	},
}

var candidatesMaybeCmd = &cobra.Command{
	Use:   "maybe <id>",
	Short: "Park a candidate for a second look",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		env, err := initEnv(ctx, "review")
		if err != nil {
			return err
		}
		defer env.Close()
		return env.Reviewer.Maybe(ctx, args[0])
	},
}

var candidatesOutreachCmd = &cobra.Command{
	Use:   "outreach <id>",
	Short: "Print the outreach email for a candidate",
	Long:  "Prints the stored email of an accepted candidate, or drafts one for any other candidate.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		env, err := initEnv(ctx, "review")
		if err != nil {
			return err
		}
		defer env.Close()

		c, err := env.Store.GetCandidate(ctx, args[0])
		if err != nil {
			return err
		}
		mail := c.GeneratedEmail
		if mail == "" {
			mail = discovery.OutreachEmail(c)
		}
		if c.ContactEmail != "" {
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "An: %s\n", c.ContactEmail)
		}
		_, _ = fmt.Fprintln(cmd.OutOrStdout(), mail)
		return nil
	},
}

func init() {
	candidatesListCmd.Flags().String("status", "", "filter by status (new, maybe, accepted, rejected)")
	candidatesListCmd.Flags().Int("min-score", 0, "minimum quality score")
	candidatesListCmd.Flags().Int("limit", 50, "max candidates to show")
	candidatesRejectCmd.Flags().String("reason", "", "rejection reason")

	candidatesCmd.AddCommand(candidatesListCmd, candidatesAcceptCmd, candidatesRejectCmd,
		candidatesMaybeCmd, candidatesOutreachCmd)
	rootCmd.AddCommand(candidatesCmd)
}

func formatCandidates(out io.Writer, cs []model.Candidate) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tSCORE\tSTATUS\tNAME\tREGION\tWEBSITE\tFLAGS")
	_, _ = fmt.Fprintln(w, "--\t-----\t------\t----\t------\t-------\t-----")
	for _, c := range cs {
		flags := ""
		if n := len(c.RiskFlags); n > 0 {
			flags = strconv.Itoa(n)
		}
		_, _ = fmt.Fprintf(w, "%s\t%d\t%s\t%s\t%s\t%s\t%s\n",
			c.ID, c.QualityScore, c.Status, clip(c.Name, 40), clip(c.RegionGuess, 30), c.WebsiteURL, flags)
	}
	_ = w.Flush()
}

func clip(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
