package platform

import (
	"context"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"github.com/mathiasgse/screenfree/internal/dedup"
	"github.com/mathiasgse/screenfree/internal/fetcher"
	"github.com/mathiasgse/screenfree/internal/model"
)

// HuettenComDomain is the platform name of huetten.com.
const HuettenComDomain = "huetten.com"

var (
	hcCrumbSep   = regexp.MustCompile(`[›>/|]`)
	hcRegion     = regexp.MustCompile(`(?i)(?:Ort|Region|Lage|Standort)\s*[:]\s*([^.;\n]+)`)
	hcElevation  = regexp.MustCompile(`(?i)(?:Höhe|Seehöhe|Höhenlage|Altitude)\s*[:]\s*([\d.,]+\s*m)`)
	hcCapacity   = regexp.MustCompile(`(?i)(?:Max\.?\s*Personen|Personen|Schlafplätze|Betten|persons?|sleeps?)\s*[:]\s*(\d[\d\s–\-]*\d?)`)
	hcPrice      = regexp.MustCompile(`(?i)(?:ab\s*)?(?:€|EUR)\s*[\d.,]+(?:\s*[–\-]\s*(?:€|EUR)?\s*[\d.,]+)?(?:\s*/?\s*(?:Woche|Nacht|Tag|week|night))?`)
	hcInlineLat  = regexp.MustCompile(`(?i)["']?latitude["']?\s*[:=]\s*["']?([\d.]+)`)
	hcInlineLng  = regexp.MustCompile(`(?i)["']?longitude["']?\s*[:=]\s*["']?([\d.]+)`)
	hcIntroClass = regexp.MustCompile(`(?i)description|intro|text`)
)

var hcGalleryMarkers = []string{"cst-media", "viomassl", "huetten.com/media"}

// HuettenCom scrapes huetten.com detail pages.
type HuettenCom struct {
	fetch fetcher.Fetcher
}

// NewHuettenCom creates a huetten.com scraper.
func NewHuettenCom(f fetcher.Fetcher) *HuettenCom {
	return &HuettenCom{fetch: f}
}

// Name implements Scraper.
func (h *HuettenCom) Name() string { return HuettenComDomain }

// Supports implements Scraper.
func (h *HuettenCom) Supports(rawURL string) bool {
	return onDomain(hostOf(rawURL), HuettenComDomain)
}

// Scrape implements Scraper.
func (h *HuettenCom) Scrape(ctx context.Context, rawURL string) (*model.Listing, error) {
	p, err := loadPage(ctx, h.fetch, rawURL)
	if err != nil {
		return nil, err
	}

	l := &model.Listing{
		Name:          p.name(),
		PlatformURL:   rawURL,
		OwnWebsiteURL: FindOwnWebsite(p.doc, HuettenComDomain),
		Region:        huettenComRegion(p),
		Elevation:     submatch(hcElevation, p.text),
		Capacity:      submatch(hcCapacity, p.text),
		Price:         strings.TrimSpace(hcPrice.FindString(p.text)),
		Description:   p.description(hcIntroClass),
		Images:        huettenComImages(p.doc),
		Platform:      HuettenComDomain,
	}

	items := p.jsonLD()
	for _, item := range items {
		if pt := geoOf(item); pt != nil {
			l.Coordinates = pt
			break
		}
	}
	if l.Coordinates == nil {
		l.Coordinates = inlineCoordinates(p.raw)
	}
	for _, item := range items {
		if r, n := ratingOf(item); r != nil {
			l.Rating, l.ReviewCount = r, n
			break
		}
	}
	return l, nil
}

// huettenComRegion joins the breadcrumb trail without its first (home) and
// last (the hut itself) entries, else reads a "Region: ..." label.
func huettenComRegion(p *detailPage) string {
	crumbs := p.doc.Find(`nav[class*="breadcrumb"], ol[class*="breadcrumb"], ul[class*="breadcrumb"]`).First()
	if crumbs.Length() > 0 {
		var parts []string
		for _, t := range textNodes(crumbs) {
			for _, part := range hcCrumbSep.Split(t, -1) {
				if part = strings.TrimSpace(part); part != "" {
					parts = append(parts, part)
				}
			}
		}
		if len(parts) > 2 {
			return strings.Join(parts[1:len(parts)-1], ", ")
		}
	}
	return submatch(hcRegion, p.text)
}

// inlineCoordinates reads latitude/longitude assignments from inline
// scripts, accepting only points inside the Alpine region.
func inlineCoordinates(raw string) *dedup.Point {
	lat, err1 := strconv.ParseFloat(submatch(hcInlineLat, raw), 64)
	lng, err2 := strconv.ParseFloat(submatch(hcInlineLng, raw), 64)
	if err1 != nil || err2 != nil {
		return nil
	}
	if lat <= 40 || lat >= 55 || lng <= 5 || lng >= 20 {
		return nil
	}
	return &dedup.Point{Lat: lat, Lng: lng}
}

func huettenComImages(doc *goquery.Document) []string {
	all := imageCandidates(doc)
	if imgs := filterImages(all, maxImages, hcGalleryMarkers...); len(imgs) > 0 {
		return imgs
	}
	return filterImages(all, maxImages)
}

func textNodes(s *goquery.Selection) []string {
	var out []string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			if t := strings.TrimSpace(n.Data); t != "" {
				out = append(out, t)
			}
			return
		}
		if n.Type == html.ElementNode && (n.Data == "script" || n.Data == "style") {
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	for _, n := range s.Nodes {
		walk(n)
	}
	return out
}
