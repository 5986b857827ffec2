// Package dedup derives stable candidate keys and detects duplicate
// listings by domain, name similarity and geographic proximity.
package dedup

import (
	"net/url"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var umlauts = strings.NewReplacer(
	"ä", "ae", "ö", "oe", "ü", "ue", "ß", "ss",
	"Ä", "Ae", "Ö", "Oe", "Ü", "Ue",
)

// Slugify lower-cases s, transliterates German umlauts, strips remaining
// diacritics and joins alphanumeric runs with single dashes.
func Slugify(s string) string {
	s = umlauts.Replace(s)

	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err == nil {
		s = folded
	}
	s = strings.ToLower(s)

	var b strings.Builder
	b.Grow(len(s))
	dash := false
	for _, r := range s {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
			dash = false
			continue
		}
		if !dash && b.Len() > 0 {
			b.WriteByte('-')
			dash = true
		}
	}
	return strings.TrimRight(b.String(), "-")
}

// Domain returns the lower-cased host of link without a leading "www.".
// ok is false when link is not an absolute URL with a host.
func Domain(link string) (string, bool) {
	u, err := url.Parse(strings.TrimSpace(link))
	if err != nil || u.Host == "" {
		return "", false
	}
	return strings.TrimPrefix(strings.ToLower(u.Hostname()), "www."), true
}

// DedupeKey builds the stable "domain--name-slug" key for a listing.
// Unparseable links fall back to the first path segment after the scheme.
func DedupeKey(link, name string) string {
	domain, ok := Domain(link)
	if !ok {
		raw := strings.TrimSpace(link)
		raw = strings.TrimPrefix(strings.TrimPrefix(raw, "https://"), "http://")
		raw = strings.TrimPrefix(raw, "www.")
		domain, _, _ = strings.Cut(raw, "/")
		if domain == "" {
			domain = "unknown"
		}
	}
	return domain + "--" + Slugify(name)
}

// Linked is anything with a result URL.
type Linked interface {
	URL() string
}

// ByDomain keeps the first item per domain, preserving input order.
// Items whose link cannot be parsed are keyed by the raw link.
func ByDomain[T Linked](items []T) []T {
	seen := make(map[string]bool, len(items))
	out := make([]T, 0, len(items))
	for _, it := range items {
		key, ok := Domain(it.URL())
		if !ok {
			key = it.URL()
		}
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, it)
	}
	return out
}
