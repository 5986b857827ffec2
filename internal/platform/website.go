package platform

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/mathiasgse/screenfree/internal/enrich"
)

// Hosts that are never a lodging's own website.
var foreignHosts = []string{
	"facebook.com", "instagram.com", "twitter.com", "youtube.com", "tiktok.com",
	"pinterest.com", "linkedin.com", "booking.com", "airbnb.com", "tripadvisor.com",
	"expedia.com", "hrs.de", "trivago.com",
	"google.com", "google.at", "google.de", "google.ch", "goo.gl",
}

var (
	websiteLabel = regexp.MustCompile(`(?i)website|homepage|vermieter|eigene seite|zur website|zur homepage`)
	websiteText  = regexp.MustCompile(`(?i)website|homepage|vermieter|eigene seite|zur website|zur homepage|www\.`)
)

// FindOwnWebsite picks the host's own site among the outbound links of an
// aggregator page. A link placed right after a "Website"-style label wins,
// then a link whose text reads like one, then the first outbound link.
// It returns "" when the page links nowhere else.
func FindOwnWebsite(doc *goquery.Document, platformDomain string) string {
	var links []*goquery.Selection
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		if isOutbound(s.AttrOr("href", ""), platformDomain) {
			links = append(links, s)
		}
	})
	if len(links) == 0 {
		return ""
	}

	for _, a := range links {
		label := a.Prev()
		if label.Length() == 0 && a.Parent().Children().Length() == 1 {
			label = a.Parent().Prev()
		}
		if label.Length() > 0 && websiteLabel.MatchString(enrich.VisibleText(label)) {
			return href(a)
		}
	}
	for _, a := range links {
		if websiteText.MatchString(enrich.VisibleText(a)) {
			return href(a)
		}
	}
	return href(links[0])
}

func href(a *goquery.Selection) string {
	return strings.TrimSpace(a.AttrOr("href", ""))
}

func isOutbound(rawURL, platformDomain string) bool {
	rawURL = strings.TrimSpace(rawURL)
	if !strings.HasPrefix(rawURL, "http") {
		return false
	}
	if strings.Contains(strings.ToLower(rawURL), "maps.google") {
		return false
	}
	host := strings.TrimPrefix(hostOf(rawURL), "www.")
	if host == "" || onDomain(host, platformDomain) {
		return false
	}
	for _, d := range foreignHosts {
		if onDomain(host, d) {
			return false
		}
	}
	return true
}
