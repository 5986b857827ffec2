package enrich

import (
	"encoding/json"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"github.com/mathiasgse/screenfree/internal/dedup"
	"github.com/mathiasgse/screenfree/internal/rubric"
)

const (
	maxImgTags = 5
	maxImages  = 8
)

var (
	roomPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)(\d{1,3})\s*(?:zimmer|rooms?|suiten|chambres?|camere)`),
		regexp.MustCompile(`(?i)(?:zimmer|rooms?|suiten|chambres?|camere)\s*[:]\s*(\d{1,3})`),
	}
	emailPattern = regexp.MustCompile(`[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`)
	assetLocal   = regexp.MustCompile(`(?i)\.(png|jpg|jpeg|gif|svg|webp)$`)
)

// VisibleText concatenates the selection's text nodes outside script and
// style, with whitespace collapsed.
func VisibleText(s *goquery.Selection) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.TextNode:
			b.WriteString(n.Data)
			b.WriteByte(' ')
			return
		case html.ElementNode:
			if n.Data == "script" || n.Data == "style" {
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	for _, n := range s.Nodes {
		walk(n)
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// metaIndex maps lower-cased meta name/property to its content values in
// document order.
func metaIndex(doc *goquery.Document) map[string][]string {
	idx := make(map[string][]string)
	doc.Find("meta").Each(func(_ int, s *goquery.Selection) {
		content, ok := s.Attr("content")
		if !ok {
			return
		}
		for _, attr := range []string{"name", "property"} {
			if key, ok := s.Attr(attr); ok && key != "" {
				k := strings.ToLower(strings.TrimSpace(key))
				idx[k] = append(idx[k], strings.TrimSpace(content))
			}
		}
	})
	return idx
}

func roomCount(text string) *int {
	for _, re := range roomPatterns {
		m := re.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		n, err := strconv.Atoi(m[1])
		if err == nil && n > 0 && n < 500 {
			return &n
		}
	}
	return nil
}

// coordinates tries geo.position, then place:location, then ICBM.
func coordinates(meta map[string][]string) *dedup.Point {
	if v := first(meta["geo.position"]); v != "" {
		if p, ok := parsePair(v, ";"); ok {
			return p
		}
	}
	lat, lng := first(meta["place:location:latitude"]), first(meta["place:location:longitude"])
	if lat != "" && lng != "" {
		if p, ok := parsePair(lat+","+lng, ","); ok {
			return p
		}
	}
	if v := first(meta["icbm"]); v != "" {
		if p, ok := parsePair(v, ","); ok {
			return p
		}
	}
	return nil
}

func parsePair(s, sep string) (*dedup.Point, bool) {
	parts := strings.Split(s, sep)
	if len(parts) != 2 {
		return nil, false
	}
	lat, err1 := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	lng, err2 := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err1 != nil || err2 != nil {
		return nil, false
	}
	p := dedup.Point{Lat: lat, Lng: lng}
	if !p.Valid() {
		return nil, false
	}
	return &p, true
}

func first(vals []string) string {
	if len(vals) == 0 {
		return ""
	}
	return vals[0]
}

// images collects og:image entries and the first img sources, resolved
// against the page URL and deduplicated.
func images(doc *goquery.Document, meta map[string][]string, pageURL string) []string {
	base, _ := url.Parse(pageURL)
	seen := make(map[string]bool)
	var out []string
	add := func(ref string) {
		abs := resolve(base, ref)
		if abs == "" || seen[abs] || len(out) >= maxImages {
			return
		}
		seen[abs] = true
		out = append(out, abs)
	}

	for _, v := range meta["og:image"] {
		add(v)
	}
	n := 0
	doc.Find("img[src]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		src := strings.TrimSpace(s.AttrOr("src", ""))
		if src == "" {
			return true
		}
		add(src)
		n++
		return n < maxImgTags
	})
	return out
}

func resolve(base *url.URL, ref string) string {
	ref = strings.TrimSpace(ref)
	if ref == "" || strings.HasPrefix(ref, "data:") {
		return ""
	}
	u, err := url.Parse(ref)
	if err != nil {
		return ""
	}
	if base != nil {
		u = base.ResolveReference(u)
	}
	return u.String()
}

// lodgingSchemaType returns the first JSON-LD @type on the lodging
// allow-list. Blocks that fail to parse are skipped.
func lodgingSchemaType(doc *goquery.Document, cat *rubric.Catalog) string {
	var found string
	doc.Find(`script[type="application/ld+json"]`).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		var data any
		if err := json.Unmarshal([]byte(s.Text()), &data); err != nil {
			return true
		}
		found = matchSchemaType(data, cat)
		return found == ""
	})
	return found
}

func matchSchemaType(data any, cat *rubric.Catalog) string {
	switch v := data.(type) {
	case []any:
		for _, item := range v {
			if t := matchSchemaType(item, cat); t != "" {
				return t
			}
		}
	case map[string]any:
		switch t := v["@type"].(type) {
		case string:
			if cat.IsLodgingType(t) {
				return t
			}
		case []any:
			for _, tt := range t {
				if s, ok := tt.(string); ok && cat.IsLodgingType(s) {
					return s
				}
			}
		}
		if graph, ok := v["@graph"]; ok {
			return matchSchemaType(graph, cat)
		}
	}
	return ""
}

// contactEmail prefers mailto links over addresses found in text, drops
// placeholders and asset names, then picks a hospitality prefix if present.
func contactEmail(doc *goquery.Document, text string, rules rubric.EmailRules) string {
	var candidates []string
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href := strings.TrimSpace(s.AttrOr("href", ""))
		if len(href) < 7 || !strings.EqualFold(href[:7], "mailto:") {
			return
		}
		if m := emailPattern.FindString(href[7:]); m != "" {
			candidates = append(candidates, strings.ToLower(m))
		}
	})
	for _, m := range emailPattern.FindAllString(text, -1) {
		candidates = append(candidates, strings.ToLower(m))
	}

	seen := make(map[string]bool)
	var filtered []string
	for _, email := range candidates {
		if seen[email] {
			continue
		}
		seen[email] = true
		if blockedEmail(email, rules) {
			continue
		}
		filtered = append(filtered, email)
	}
	if len(filtered) == 0 {
		return ""
	}
	for _, email := range filtered {
		for _, p := range rules.PreferredPrefixes {
			if strings.HasPrefix(email, p) {
				return email
			}
		}
	}
	return filtered[0]
}

func blockedEmail(email string, rules rubric.EmailRules) bool {
	local, _, _ := strings.Cut(email, "@")
	for _, p := range rules.BlockedPrefixes {
		if local == p {
			return true
		}
	}
	for _, d := range rules.BlockedDomains {
		if strings.HasSuffix(email, d) {
			return true
		}
	}
	return assetLocal.MatchString(local)
}
