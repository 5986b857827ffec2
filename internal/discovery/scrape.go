package discovery

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/mathiasgse/screenfree/internal/dedup"
	"github.com/mathiasgse/screenfree/internal/lock"
	"github.com/mathiasgse/screenfree/internal/model"
	"github.com/mathiasgse/screenfree/internal/platform"
	"github.com/mathiasgse/screenfree/internal/store"
)

const (
	// ScrapeRunLabel names runs started by the platform importer.
	ScrapeRunLabel = "scraper:huetten-import"
	// MaxScrapeURLs caps the urls of one scrape run.
	MaxScrapeURLs = 50

	scrapedScore      = 70
	scrapedConfidence = 0.6
	maxSnippet        = 500
)

// ScrapeOptions lists the aggregator pages to import.
type ScrapeOptions struct {
	URLs   []string
	DryRun bool
}

// ScrapeRunner imports listings from aggregator platforms. Listings skip
// search and the deterministic rubric; they start from a fixed score.
type ScrapeRunner struct {
	store    store.Store
	registry *platform.Registry
	enricher Enricher
	locker   lock.Locker
	delay    time.Duration

	wg sync.WaitGroup
}

// NewScrapeRunner creates a ScrapeRunner. locker may be nil.
func NewScrapeRunner(st store.Store, reg *platform.Registry, e Enricher, locker lock.Locker, delay time.Duration) *ScrapeRunner {
	if locker == nil {
		locker = lock.Noop{}
	}
	return &ScrapeRunner{store: st, registry: reg, enricher: e, locker: locker, delay: delay}
}

// Validate checks the url count and that every url has a scraper.
func (s *ScrapeRunner) Validate(urls []string) error {
	if len(urls) == 0 {
		return ErrNoURLs
	}
	if len(urls) > MaxScrapeURLs {
		return eris.Wrapf(ErrTooManyURLs, "%d (max %d)", len(urls), MaxScrapeURLs)
	}
	var bad []string
	for _, u := range urls {
		if s.registry.Detect(u) == "" {
			bad = append(bad, u)
		}
	}
	if len(bad) > 0 {
		shown := bad[:min(len(bad), 3)]
		return eris.Wrapf(ErrUnsupportedURL, "only %s allowed: %s",
			strings.Join(s.registry.Platforms(), ", "), strings.Join(shown, ", "))
	}
	return nil
}

// Run imports the urls in the foreground. Unsupported urls are counted as
// errors rather than rejected up front.
func (s *ScrapeRunner) Run(ctx context.Context, opts ScrapeOptions) (model.RunStats, error) {
	if len(opts.URLs) == 0 {
		return model.RunStats{}, ErrNoURLs
	}
	runID := ""
	if !opts.DryRun {
		run, err := s.store.CreateRun(ctx, ScrapeRunLabel, "", "")
		if err != nil {
			return model.RunStats{}, eris.Wrap(err, "scrape: create run")
		}
		runID = run.ID
	}
	return s.execute(ctx, runID, opts)
}

// Start validates the urls, records a run and imports in the background.
func (s *ScrapeRunner) Start(ctx context.Context, opts ScrapeOptions) (string, error) {
	if err := s.Validate(opts.URLs); err != nil {
		return "", err
	}
	run, err := s.store.CreateRun(ctx, ScrapeRunLabel, "", "")
	if err != nil {
		return "", eris.Wrap(err, "scrape: create run")
	}

	bg := context.WithoutCancel(ctx)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		_, _ = s.execute(bg, run.ID, opts)
	}()
	return run.ID, nil
}

// Wait blocks until every run started with Start has finished.
func (s *ScrapeRunner) Wait() {
	s.wg.Wait()
}

func (s *ScrapeRunner) execute(ctx context.Context, runID string, opts ScrapeOptions) (stats model.RunStats, err error) {
	log := zap.L().With(zap.String("run_id", runID), zap.Bool("dry_run", opts.DryRun))

	defer func() {
		if p := recover(); p != nil {
			err = eris.Errorf("scrape: panic: %v", p)
		}
		if err == nil {
			return
		}
		log.Error("scrape run failed", zap.Error(err))
		if runID == "" {
			return
		}
		if ferr := s.store.FailRun(context.WithoutCancel(ctx), runID, err.Error(), stats); ferr != nil {
			log.Error("scrape: record run failure", zap.Error(ferr))
		}
	}()

	urls := opts.URLs
	stats.CandidatesFound = len(urls)
	writeProgress(ctx, s.store, runID, model.RunProgress{Phase: model.PhaseProcessing, Total: len(urls)}, stats)

	for i, u := range urls {
		ulog := log.With(zap.String("url", u), zap.String("progress", fmt.Sprintf("%d/%d", i+1, len(urls))))
		if err := s.processOne(ctx, ulog, runID, u, opts.DryRun, &stats); err != nil {
			ulog.Warn("listing failed", zap.Error(err))
			stats.ErrorCount++
		}

		if checkpoint(i, len(urls)) {
			writeProgress(ctx, s.store, runID, model.RunProgress{Phase: model.PhaseProcessing, Processed: i + 1, Total: len(urls)}, stats)
		}
		if i < len(urls)-1 {
			if err := pause(ctx, s.delay); err != nil {
				return stats, eris.Wrap(err, "scrape: processing")
			}
		}
	}

	if runID != "" {
		final := model.RunProgress{Phase: model.PhaseFinalizing, Processed: len(urls), Total: len(urls)}
		if err := s.store.CompleteRun(ctx, runID, final, stats); err != nil {
			log.Error("scrape: complete run", zap.Error(err))
		}
	}
	log.Info("scrape run complete",
		zap.Int("new_candidates", stats.NewCandidates),
		zap.Int("duplicates_skipped", stats.DuplicatesSkipped),
		zap.Int("errors", stats.ErrorCount),
	)
	return stats, nil
}

func (s *ScrapeRunner) processOne(ctx context.Context, log *zap.Logger, runID, url string, dryRun bool, stats *model.RunStats) error {
	listing, err := s.registry.Scrape(ctx, url)
	if err != nil {
		return err
	}
	log.Info("scraped listing",
		zap.String("name", listing.Name),
		zap.String("region", listing.Region),
		zap.String("own_website", listing.OwnWebsiteURL),
	)

	var e *model.Enrichment
	if listing.OwnWebsiteURL != "" {
		e = s.enricher.Enrich(ctx, listing.OwnWebsiteURL)
		if e.ContactEmail != "" {
			log.Debug("contact email found", zap.String("email", e.ContactEmail))
		}
	}

	c := ScrapedCandidate(listing, e)
	if dryRun {
		log.Info("dry run: would upsert", zap.String("dedupe_key", c.DedupeKey))
		stats.NewCandidates++
		return nil
	}

	flagPossibleDuplicate(ctx, s.store, c)
	outcome, err := Upsert(ctx, s.store, s.locker, c, runID)
	if err != nil {
		return err
	}
	log.Debug("upserted", zap.String("result", string(outcome)))
	if outcome == Skipped {
		stats.DuplicatesSkipped++
	} else {
		stats.NewCandidates++
	}
	return nil
}

// ScrapedCandidate builds a candidate from a listing and the optional
// enrichment of its own website.
func ScrapedCandidate(l *model.Listing, e *model.Enrichment) *model.Candidate {
	website := l.OwnWebsiteURL
	if website == "" {
		website = l.PlatformURL
	}

	reasons := []string{}
	if l.Elevation != "" {
		reasons = append(reasons, "Höhe: "+l.Elevation)
	}
	if l.Capacity != "" {
		reasons = append(reasons, "Kapazität: "+l.Capacity)
	}
	if l.Price != "" {
		reasons = append(reasons, "Preis: "+l.Price)
	}
	if l.Rating != nil {
		r := "Bewertung: " + strconv.FormatFloat(*l.Rating, 'f', -1, 64)
		if l.ReviewCount != nil && *l.ReviewCount > 0 {
			r += fmt.Sprintf(" (%d Reviews)", *l.ReviewCount)
		}
		reasons = append(reasons, r)
	}

	risks := []string{}
	if l.OwnWebsiteURL == "" {
		risks = append(risks, "Keine eigene Website gefunden")
	}

	c := &model.Candidate{
		Name:         l.Name,
		WebsiteURL:   website,
		Snippet:      truncate(l.Description, maxSnippet),
		Coordinates:  l.Coordinates,
		RegionGuess:  l.Region,
		Source:       "scraper:" + l.Platform,
		QualityScore: scrapedScore,
		Confidence:   scrapedConfidence,
		RatingValue:  l.Rating,
		ReviewCount:  l.ReviewCount,
		Images:       l.Images,
		RawData: model.RawData{
			Kind: model.RawScraper,
			Scraper: &model.ScraperOrigin{
				Platform:    l.Platform,
				PlatformURL: l.PlatformURL,
				Elevation:   l.Elevation,
				Capacity:    l.Capacity,
				Price:       l.Price,
			},
		},
		DedupeKey: dedup.DedupeKey(website, l.Name),
	}

	if e != nil {
		if len(e.OffgridCues) > 0 {
			reasons = append(reasons, "Offgrid-Signale: "+strings.Join(e.OffgridCues, ", "))
		}
		if len(e.ResortPenalties) > 0 {
			risks = append(risks, "Resort-Signale: "+strings.Join(e.ResortPenalties, ", "))
		}
		if c.Coordinates == nil {
			c.Coordinates = e.Coordinates
		}
		c.ContactEmail = e.ContactEmail
		c.RawData.Enrichment = e.Summary()
	}
	c.Reasons, c.RiskFlags = reasons, risks
	return c
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
