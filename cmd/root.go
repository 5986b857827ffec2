package main

import (
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/mathiasgse/screenfree/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "screenfree",
	Short: "Discover quiet Alpine lodging for the Stille Orte collection",
	Long: "Searches the web for small, remote accommodations, scores them against an offgrid rubric, " +
		"imports hut-rental listings and manages the editorial review queue.",
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return eris.Wrap(err, "load config")
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return eris.Wrap(err, "init logger")
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
