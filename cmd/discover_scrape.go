package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/mathiasgse/screenfree/internal/discovery"
)

var discoverScrapeCmd = &cobra.Command{
	Use:   "scrape [urls...]",
	Short: "Import listings from hut-rental platforms",
	Long:  "Scrapes huetten.com and huettenland.com detail pages and upserts each listing as a candidate.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		file, _ := cmd.Flags().GetString("file")
		dryRun, _ := cmd.Flags().GetBool("dry-run")

		urls := append([]string(nil), args...)
		if file != "" {
			f, err := os.Open(file)
			if err != nil {
				return eris.Wrapf(err, "open %s", file)
			}
			fromFile, err := readURLs(f)
			_ = f.Close()
			if err != nil {
				return err
			}
			urls = append(urls, fromFile...)
		}

		env, err := initEnv(ctx, "scrape")
		if err != nil {
			return err
		}
		defer env.Close()

		if err := env.Scraper.Validate(urls); err != nil {
			return err
		}
		stats, err := env.Scraper.Run(ctx, discovery.ScrapeOptions{URLs: urls, DryRun: dryRun})
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		_, _ = fmt.Fprintf(out, "listings:           %d\n", stats.CandidatesFound)
		_, _ = fmt.Fprintf(out, "new or updated:     %d\n", stats.NewCandidates)
		_, _ = fmt.Fprintf(out, "duplicates skipped: %d\n", stats.DuplicatesSkipped)
		_, _ = fmt.Fprintf(out, "errors:             %d\n", stats.ErrorCount)
		return nil
	},
}

// readURLs reads one url per line, skipping blanks and # comments.
func readURLs(r io.Reader) ([]string, error) {
	var urls []string
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		urls = append(urls, line)
	}
	return urls, eris.Wrap(sc.Err(), "read url list")
}

func init() {
	discoverScrapeCmd.Flags().String("file", "", "file with one url per line")
	discoverScrapeCmd.Flags().Bool("dry-run", false, "scrape without writing to the store")
	discoverCmd.AddCommand(discoverScrapeCmd)
}
