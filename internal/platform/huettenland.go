package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/mathiasgse/screenfree/internal/fetcher"
	"github.com/mathiasgse/screenfree/internal/model"
)

const (
	// HuettenlandDomain is the platform name of huettenland.com.
	HuettenlandDomain = "huettenland.com"

	defaultHuettenlandBase = "https://www.huettenland.com"
)

var (
	hlCountryRegion = regexp.MustCompile(`(?i)(?:ÖSTERREICH|DEUTSCHLAND|SCHWEIZ|ITALIEN|AUSTRIA|GERMANY|SWITZERLAND|ITALY)\s*\|\s*([^|]+(?:\|[^|]+)?)`)
	hlRegion        = regexp.MustCompile(`(?i)(?:Region|Lage|Ort|Gebiet)\s*[:]\s*([^.;\n]+)`)
	hlElevation     = regexp.MustCompile(`(?i)(?:[\d.,]+)\s*m\s*(?:Seehöhe|ü\.?\s*(?:d\.?\s*)?M\.?|Höhe)`)
	hlElevationTag  = regexp.MustCompile(`(?i)(?:Seehöhe|Höhe|Höhenlage)\s*[:]\s*([\d.,]+\s*m)`)
	hlMeters        = regexp.MustCompile(`(?i)([\d.]+)\s*m\b`)
	hlCapacity      = regexp.MustCompile(`(?i)(?:für\s+)?(\d[\d\s–\-]*\d?)\s*(?:Personen|Pers\.|Gäste|persons?|guests?)`)
	hlObjectID      = regexp.MustCompile(`(?i)/huette/(\d+)/`)
	hlIntroClass    = regexp.MustCompile(`(?i)description|intro|text|inhalt`)
)

var hlPageMarkers = []string{"huettenland", "uploads", "media"}

// Huettenland scrapes huettenland.com detail pages. Gallery images come
// from the site's image service.
type Huettenland struct {
	fetch fetcher.Fetcher
	base  string
}

// NewHuettenland creates a huettenland.com scraper. base overrides the
// image service origin; empty selects the live site.
func NewHuettenland(f fetcher.Fetcher, base string) *Huettenland {
	if base == "" {
		base = defaultHuettenlandBase
	}
	return &Huettenland{fetch: f, base: strings.TrimRight(base, "/")}
}

// Name implements Scraper.
func (h *Huettenland) Name() string { return HuettenlandDomain }

// Supports implements Scraper.
func (h *Huettenland) Supports(rawURL string) bool {
	return onDomain(hostOf(rawURL), HuettenlandDomain)
}

// Scrape implements Scraper.
func (h *Huettenland) Scrape(ctx context.Context, rawURL string) (*model.Listing, error) {
	p, err := loadPage(ctx, h.fetch, rawURL)
	if err != nil {
		return nil, err
	}

	images := h.gallery(ctx, submatch(hlObjectID, rawURL))
	if len(images) == 0 {
		all := imageCandidates(p.doc)
		images = filterImages(all, maxImages, hlPageMarkers...)
		if len(images) == 0 {
			images = filterImages(all, maxImages)
		}
	}

	return &model.Listing{
		Name:          p.name(),
		PlatformURL:   rawURL,
		OwnWebsiteURL: FindOwnWebsite(p.doc, HuettenlandDomain),
		Region:        huettenlandRegion(p),
		Elevation:     huettenlandElevation(p.text),
		Capacity:      strings.TrimSpace(hlCapacity.FindString(p.text)),
		Description:   p.description(hlIntroClass),
		Images:        images,
		Platform:      HuettenlandDomain,
	}, nil
}

// gallery asks the image service for the object's pictures. The service
// answers with a JSON list or an HTML fragment; any failure yields none.
func (h *Huettenland) gallery(ctx context.Context, objectID string) []string {
	if objectID == "" {
		return nil
	}
	q := url.Values{"todo": {"getimgs"}, "objektID": {objectID}}
	page, err := h.fetch.Fetch(ctx, h.base+"/services/myservices.php?"+q.Encode(),
		fetcher.WithHeader("Accept", "application/json, text/html"),
		fetcher.WithHeader("X-Requested-With", "XMLHttpRequest"),
	)
	if err != nil || !page.OK() {
		zap.L().Debug("platform: huettenland gallery unavailable",
			zap.String("object_id", objectID),
			zap.Error(err),
		)
		return nil
	}

	var entries []map[string]any
	if err := json.Unmarshal(page.Body, &entries); err == nil {
		out := make([]string, 0, len(entries))
		for _, e := range entries {
			for _, key := range []string{"src", "url", "image"} {
				if s, ok := e[key].(string); ok && s != "" {
					out = append(out, s)
					break
				}
			}
			if len(out) == maxImages {
				break
			}
		}
		return out
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page.Body))
	if err != nil {
		return nil
	}
	return filterImages(imageCandidates(doc), maxImages)
}

// huettenlandRegion reads the "COUNTRY | State | Valley" header line,
// else a "Region: ..." label.
func huettenlandRegion(p *detailPage) string {
	for _, t := range textNodes(p.doc.Selection) {
		m := submatch(hlCountryRegion, t)
		if m == "" {
			continue
		}
		var parts []string
		for _, part := range strings.Split(m, "|") {
			if part = strings.TrimSpace(part); part != "" {
				parts = append(parts, part)
			}
		}
		return strings.Join(parts, ", ")
	}
	return submatch(hlRegion, p.text)
}

// huettenlandElevation tries "1.450 m Seehöhe", then "Höhe: 1450 m", then
// any bare metre figure within a plausible altitude band.
func huettenlandElevation(text string) string {
	if m := strings.TrimSpace(hlElevation.FindString(text)); m != "" {
		return m
	}
	if m := submatch(hlElevationTag, text); m != "" {
		return m
	}
	for _, m := range hlMeters.FindAllStringSubmatch(text, -1) {
		n, err := strconv.Atoi(strings.ReplaceAll(m[1], ".", ""))
		if err == nil && n >= 300 && n <= 4000 {
			return m[1] + " m"
		}
	}
	return ""
}
