package main

import (
	"github.com/spf13/cobra"
)

var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "Find lodging candidates",
	Long:  "Search region presets for quiet accommodations or import listings from hut-rental platforms.",
}

func init() {
	rootCmd.AddCommand(discoverCmd)
}
