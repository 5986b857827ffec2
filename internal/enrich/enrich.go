// Package enrich fetches a candidate's own website and extracts the signals
// the scorer needs: off-grid cues, resort penalties, size, location, images,
// accommodation evidence and a contact address.
package enrich

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/mathiasgse/screenfree/internal/fetcher"
	"github.com/mathiasgse/screenfree/internal/model"
	"github.com/mathiasgse/screenfree/internal/rubric"
)

// BlockedFetchError marks candidates on aggregator domains. They are never fetched.
const BlockedFetchError = "Blocked aggregator domain"

const aboutTextLimit = 2000

// Enricher inspects websites. Enrich never fails; problems are reported in
// Enrichment.FetchError.
type Enricher struct {
	cat   *rubric.Catalog
	fetch fetcher.Fetcher
}

// New creates an Enricher that retrieves pages through f.
func New(cat *rubric.Catalog, f fetcher.Fetcher) *Enricher {
	return &Enricher{cat: cat, fetch: f}
}

// NewFetcher returns the fetcher websites are enriched through. Each page
// gets exactly one GET bounded by timeout; third-party sites are never retried.
func NewFetcher(userAgent string, timeout time.Duration) *fetcher.HTTPFetcher {
	return fetcher.NewHTTPFetcher(fetcher.HTTPOptions{
		UserAgent:  userAgent,
		Timeout:    timeout,
		MaxRetries: 1,
	})
}

// Enrich fetches rawURL and extracts signals from the returned HTML.
func (e *Enricher) Enrich(ctx context.Context, rawURL string) *model.Enrichment {
	if u, err := url.Parse(rawURL); err == nil && e.cat.IsBlockedDomain(u.Hostname()) {
		no := false
		return &model.Enrichment{IsAccommodation: &no, FetchError: BlockedFetchError}
	}

	page, err := e.fetch.Fetch(ctx, rawURL)
	if err != nil {
		zap.L().Debug("enrich: fetch failed", zap.String("url", rawURL), zap.Error(err))
		return &model.Enrichment{FetchError: err.Error()}
	}
	if !page.OK() {
		return &model.Enrichment{FetchError: fmt.Sprintf("HTTP %d", page.StatusCode)}
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page.Body))
	if err != nil {
		return &model.Enrichment{FetchError: "enrich: parse html: " + err.Error()}
	}
	return e.extract(doc, page.URL)
}

// Extract runs the signal extraction on an already retrieved document.
func (e *Enricher) Extract(html []byte, pageURL string) (*model.Enrichment, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return nil, err
	}
	return e.extract(doc, pageURL), nil
}

func (e *Enricher) extract(doc *goquery.Document, pageURL string) *model.Enrichment {
	text := VisibleText(doc.Selection)
	lower := strings.ToLower(text)
	meta := metaIndex(doc)
	schemaType := lodgingSchemaType(doc, e.cat)

	out := &model.Enrichment{
		OffgridCues:       rubric.Keywords(rubric.MatchAll(lower, e.cat.OffgridKeywords)),
		ResortPenalties:   rubric.Keywords(rubric.MatchAll(lower, e.cat.ResortPenalties)),
		RoomCount:         roomCount(text),
		Coordinates:       coordinates(meta),
		Images:            images(doc, meta, pageURL),
		AboutText:         truncateRunes(text, aboutTextLimit),
		AccommodationType: schemaType,
		ContactEmail:      contactEmail(doc, text, e.cat.Email),
	}
	if schemaType != "" {
		yes := true
		out.IsAccommodation = &yes
	}
	_, out.HasBookingSignals = rubric.ContainsAny(lower, e.cat.BookingSignals)
	return out
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
