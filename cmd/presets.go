package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/mathiasgse/screenfree/internal/rubric"
)

var presetsCmd = &cobra.Command{
	Use:   "presets",
	Short: "List region presets",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cat, err := rubric.LoadFile(cfg.Discovery.RubricPath)
		if err != nil {
			return err
		}
		formatPresets(cmd.OutOrStdout(), cat)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(presetsCmd)
}

func formatPresets(out io.Writer, cat *rubric.Catalog) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "KEY\tLABEL\tCOUNTRY\tMICROREGIONS")
	for _, p := range cat.Presets {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%d\n", p.Key, p.Label, p.Country, len(p.Microregions))
	}
	_ = w.Flush()
}
