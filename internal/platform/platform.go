// Package platform scrapes lodging detail pages on hut-rental aggregators
// and recovers the host's own website from them.
package platform

import (
	"context"
	"net/url"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/mathiasgse/screenfree/internal/model"
)

// ErrUnsupported is returned for URLs no registered scraper handles.
var ErrUnsupported = eris.New("platform: unsupported url")

// Scraper extracts a listing from one aggregator's detail pages.
type Scraper interface {
	Scrape(ctx context.Context, url string) (*model.Listing, error)
	// Name is the platform domain, e.g. "huetten.com".
	Name() string
	Supports(url string) bool
}

// Registry dispatches URLs to the scraper of their platform.
type Registry struct {
	scrapers []Scraper
}

// NewRegistry creates a Registry. Scrapers are consulted in order.
func NewRegistry(scrapers ...Scraper) *Registry {
	return &Registry{scrapers: scrapers}
}

// Resolve returns the scraper responsible for rawURL.
func (r *Registry) Resolve(rawURL string) (Scraper, bool) {
	for _, s := range r.scrapers {
		if s.Supports(rawURL) {
			return s, true
		}
	}
	return nil, false
}

// Detect returns the platform name for rawURL, or "" when unsupported.
func (r *Registry) Detect(rawURL string) string {
	if s, ok := r.Resolve(rawURL); ok {
		return s.Name()
	}
	return ""
}

// Platforms lists the registered platform names, sorted.
func (r *Registry) Platforms() []string {
	out := make([]string, 0, len(r.scrapers))
	for _, s := range r.scrapers {
		out = append(out, s.Name())
	}
	sort.Strings(out)
	return out
}

// Scrape resolves rawURL and runs its scraper.
func (r *Registry) Scrape(ctx context.Context, rawURL string) (*model.Listing, error) {
	s, ok := r.Resolve(rawURL)
	if !ok {
		return nil, eris.Wrapf(ErrUnsupported, "platform: %s", rawURL)
	}
	zap.L().Debug("platform: scraping",
		zap.String("platform", s.Name()),
		zap.String("url", rawURL),
	)
	l, err := s.Scrape(ctx, rawURL)
	if err != nil {
		return nil, eris.Wrapf(err, "platform: scrape %s", s.Name())
	}
	return l, nil
}

// hostOf returns the lower-cased hostname of rawURL, or "".
func hostOf(rawURL string) string {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Hostname())
}

// onDomain reports whether host is domain or one of its subdomains.
func onDomain(host, domain string) bool {
	return host == domain || strings.HasSuffix(host, "."+domain)
}
