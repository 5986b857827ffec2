// Package discovery finds lodging candidates: it expands region presets into
// search queries, enriches and scores each hit, and upserts the result while
// leaving reviewed candidates untouched. A second entry point imports
// listings from aggregator platforms.
package discovery

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/mathiasgse/screenfree/internal/model"
	"github.com/mathiasgse/screenfree/internal/scoring"
)

var (
	// ErrUnknownPreset is returned for a preset key missing from the catalog.
	ErrUnknownPreset = eris.New("discovery: unknown preset")
	// ErrUnknownCountry is returned for a country without presets.
	ErrUnknownCountry = eris.New("discovery: unknown country")
	// ErrNoURLs is returned when a scrape run has nothing to import.
	ErrNoURLs = eris.New("discovery: at least one url is required")
	// ErrTooManyURLs is returned when a scrape run exceeds MaxScrapeURLs.
	ErrTooManyURLs = eris.New("discovery: too many urls")
	// ErrUnsupportedURL is returned for a url no platform scraper handles.
	ErrUnsupportedURL = eris.New("discovery: unsupported url")
)

// progressEvery is how many items pass between progress checkpoints.
const progressEvery = 5

// Enricher inspects a candidate's own website.
type Enricher interface {
	Enrich(ctx context.Context, url string) *model.Enrichment
}

// AIReviewer gives a second opinion on a scored candidate.
type AIReviewer interface {
	Score(ctx context.Context, s scoring.Subject, e *model.Enrichment) (*scoring.AIResult, bool)
}

// checkpoint reports whether progress should be written after item i of n.
func checkpoint(i, n int) bool {
	return (i+1)%progressEvery == 0 || i == n-1
}

// pause waits for d or until ctx is done.
func pause(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
