package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/rotisserie/eris"

	"github.com/mathiasgse/screenfree/internal/dedup"
	"github.com/mathiasgse/screenfree/internal/enrich"
	"github.com/mathiasgse/screenfree/internal/fetcher"
)

const (
	browserUserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	browserAccept    = "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8"
	acceptLanguage   = "de-DE,de;q=0.9"

	maxImages      = 10
	maxDescription = 500
)

var imageURL = regexp.MustCompile(`(?i)^https?://\S+\.(?:jpe?g|png|webp)(?:\?\S*)?$`)

// NewBrowserFetcher returns an HTTP fetcher that identifies as a desktop
// browser unless opts names another agent. The aggregators serve stripped
// markup to unknown agents.
func NewBrowserFetcher(opts fetcher.HTTPOptions) *fetcher.HTTPFetcher {
	if opts.UserAgent == "" {
		opts.UserAgent = browserUserAgent
	}
	opts.Accept = browserAccept
	return fetcher.NewHTTPFetcher(opts)
}

// detailPage is a parsed aggregator page.
type detailPage struct {
	raw  string
	doc  *goquery.Document
	text string
}

func loadPage(ctx context.Context, f fetcher.Fetcher, rawURL string) (*detailPage, error) {
	p, err := f.Fetch(ctx, rawURL, fetcher.WithHeader("Accept-Language", acceptLanguage))
	if err != nil {
		return nil, eris.Wrapf(err, "platform: fetch %s", rawURL)
	}
	if bt := DetectBlock(p); bt != BlockNone {
		return nil, eris.Errorf("platform: fetch %s: blocked (%s)", rawURL, bt)
	}
	if !p.OK() {
		return nil, eris.Errorf("platform: fetch %s: HTTP %d", rawURL, p.StatusCode)
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(p.Body))
	if err != nil {
		return nil, eris.Wrap(err, "platform: parse html")
	}
	return &detailPage{
		raw:  string(p.Body),
		doc:  doc,
		text: enrich.VisibleText(doc.Selection),
	}, nil
}

// name is the first non-empty h1, else the leading title segment.
func (p *detailPage) name() string {
	var name string
	p.doc.Find("h1").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		name = strings.TrimSpace(enrich.VisibleText(s))
		return name == ""
	})
	if name != "" {
		return name
	}
	title, _, _ := strings.Cut(p.doc.Find("title").First().Text(), "|")
	if title = strings.TrimSpace(title); title != "" {
		return title
	}
	return "Unknown"
}

// description prefers the meta description, then the first paragraph whose
// class matches intro, then the start of the page text.
func (p *detailPage) description(intro *regexp.Regexp) string {
	var desc string
	p.doc.Find("meta").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		key := strings.ToLower(s.AttrOr("property", s.AttrOr("name", "")))
		if key == "og:description" || key == "description" {
			desc = strings.TrimSpace(s.AttrOr("content", ""))
		}
		return desc == ""
	})
	if desc != "" {
		return desc
	}
	p.doc.Find("p[class]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if intro.MatchString(s.AttrOr("class", "")) {
			desc = truncateRunes(enrich.VisibleText(s), maxDescription)
		}
		return desc == ""
	})
	if desc != "" {
		return desc
	}
	return truncateRunes(p.text, maxDescription)
}

// imageCandidates returns absolute image URLs from src, data-src and
// data-lazy-src attributes in document order, deduplicated.
func imageCandidates(doc *goquery.Document) []string {
	seen := make(map[string]bool)
	var out []string
	doc.Find("[src], [data-src], [data-lazy-src]").Each(func(_ int, s *goquery.Selection) {
		for _, attr := range []string{"src", "data-src", "data-lazy-src"} {
			v := strings.TrimSpace(s.AttrOr(attr, ""))
			if v == "" || seen[v] || !imageURL.MatchString(v) {
				continue
			}
			seen[v] = true
			out = append(out, v)
		}
	})
	return out
}

// filterImages keeps URLs containing any marker, up to limit.
func filterImages(urls []string, limit int, markers ...string) []string {
	out := make([]string, 0, limit)
	for _, u := range urls {
		if len(out) == limit {
			break
		}
		lu := strings.ToLower(u)
		if len(markers) == 0 || containsAny(lu, markers) {
			out = append(out, u)
		}
	}
	return out
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// jsonLD returns every object in the page's JSON-LD blocks, flattening
// arrays and @graph containers.
func (p *detailPage) jsonLD() []map[string]any {
	var out []map[string]any
	var collect func(any)
	collect = func(v any) {
		switch t := v.(type) {
		case []any:
			for _, item := range t {
				collect(item)
			}
		case map[string]any:
			out = append(out, t)
			if g, ok := t["@graph"]; ok {
				collect(g)
			}
		}
	}
	p.doc.Find(`script[type="application/ld+json"]`).Each(func(_ int, s *goquery.Selection) {
		var data any
		if err := json.Unmarshal([]byte(s.Text()), &data); err == nil {
			collect(data)
		}
	})
	return out
}

// geoOf reads item.geo (or GeoCoordinates), falling back to address.geo.
func geoOf(item map[string]any) *dedup.Point {
	for _, g := range []any{item["geo"], item["GeoCoordinates"], nested(item, "address", "geo")} {
		m, ok := g.(map[string]any)
		if !ok {
			continue
		}
		lat, okLat := number(m["latitude"])
		lng, okLng := number(m["longitude"])
		if !okLat || !okLng {
			continue
		}
		pt := dedup.Point{Lat: lat, Lng: lng}
		if pt.Valid() {
			return &pt
		}
	}
	return nil
}

// ratingOf reads aggregateRating.ratingValue and reviewCount.
func ratingOf(item map[string]any) (*float64, *int) {
	agg, ok := item["aggregateRating"].(map[string]any)
	if !ok {
		return nil, nil
	}
	v, ok := number(agg["ratingValue"])
	if !ok {
		return nil, nil
	}
	var count *int
	for _, key := range []string{"reviewCount", "ratingCount"} {
		if n, ok := number(agg[key]); ok {
			c := int(n)
			count = &c
			break
		}
	}
	return &v, count
}

func nested(m map[string]any, keys ...string) any {
	var cur any = m
	for _, k := range keys {
		mm, ok := cur.(map[string]any)
		if !ok {
			return nil
		}
		cur = mm[k]
	}
	return cur
}

// number accepts JSON numbers and numeric strings.
func number(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		return f, err == nil
	}
	return 0, false
}

// submatch returns the trimmed first group of re in s.
func submatch(re *regexp.Regexp, s string) string {
	m := re.FindStringSubmatch(s)
	if len(m) < 2 {
		return ""
	}
	return strings.TrimSpace(m[1])
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
