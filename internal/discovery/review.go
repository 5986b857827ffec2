package discovery

import (
	"context"
	"strings"
	"unicode"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/mathiasgse/screenfree/internal/dedup"
	"github.com/mathiasgse/screenfree/internal/model"
	"github.com/mathiasgse/screenfree/internal/store"
)

// ErrAlreadyAccepted is returned when accepting a candidate twice.
var ErrAlreadyAccepted = eris.New("discovery: candidate already accepted")

// Reviewer applies editorial decisions to candidates.
type Reviewer struct {
	store store.Store
}

// NewReviewer creates a Reviewer.
func NewReviewer(st store.Store) *Reviewer {
	return &Reviewer{store: st}
}

// Accept turns a candidate into a draft place and stores the outreach email
// for its owner.
func (r *Reviewer) Accept(ctx context.Context, id string) (*model.PlaceDraft, error) {
	c, err := r.store.GetCandidate(ctx, id)
	if err != nil {
		return nil, eris.Wrap(err, "review: load candidate")
	}
	if c.Status == model.StatusAccepted {
		return nil, eris.Wrapf(ErrAlreadyAccepted, "place %s", c.AcceptedPlaceID)
	}

	regions, err := r.store.ListRegions(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "review: list regions")
	}

	draft := DraftPlace(c, regions)
	if err := r.store.CreatePlaceDraft(ctx, draft); err != nil {
		return nil, eris.Wrap(err, "review: create place")
	}

	email := OutreachEmail(c)
	err = r.store.SetCandidateStatus(ctx, id, store.StatusUpdate{
		Status:          model.StatusAccepted,
		AcceptedPlaceID: draft.ID,
		GeneratedEmail:  email,
	})
	if err != nil {
		if derr := r.store.DeletePlaceDraft(context.WithoutCancel(ctx), draft.ID); derr != nil {
			zap.L().Warn("review: orphaned place draft",
				zap.String("candidate_id", id),
				zap.String("place_id", draft.ID),
				zap.Error(derr),
			)
		}
		return nil, eris.Wrap(err, "review: mark accepted")
	}

	zap.L().Info("candidate accepted",
		zap.String("candidate_id", id),
		zap.String("place_id", draft.ID),
		zap.String("region_id", draft.RegionID),
	)
	return draft, nil
}

// Reject marks a candidate rejected with an optional reason.
func (r *Reviewer) Reject(ctx context.Context, id, reason string) error {
	err := r.store.SetCandidateStatus(ctx, id, store.StatusUpdate{Status: model.StatusRejected, RejectionReason: reason})
	return eris.Wrap(err, "review: reject")
}

// Maybe parks a candidate for a second look.
func (r *Reviewer) Maybe(ctx context.Context, id string) error {
	err := r.store.SetCandidateStatus(ctx, id, store.StatusUpdate{Status: model.StatusMaybe})
	return eris.Wrap(err, "review: maybe")
}

// DraftPlace maps a candidate onto an unpublished place.
func DraftPlace(c *model.Candidate, regions []model.Region) *model.PlaceDraft {
	cues := c.RawData.OffgridCues()
	title, desc := SEO(c.Name, c.RegionGuess, cues)
	d := &model.PlaceDraft{
		Title:          c.Name,
		Slug:           dedup.Slugify(c.Name),
		Coordinates:    c.Coordinates,
		WhyDisconnect:  WhyDisconnect(c.Reasons, cues),
		Attributes:     SuggestAttributes(cues),
		SEOTitle:       title,
		SEODescription: desc,
		OutboundURL:    c.WebsiteURL,
		CandidateID:    c.ID,
	}
	if r := MatchRegion(c.RegionGuess, regions); r != nil {
		d.RegionID = r.ID
	}
	return d
}

// MatchRegion finds the region a guess like "Südtirol / Vinschgau" refers
// to: exact title first, then a part's slug, then containment either way.
func MatchRegion(guess string, regions []model.Region) *model.Region {
	guess = strings.ToLower(strings.TrimSpace(guess))
	if guess == "" {
		return nil
	}

	for i := range regions {
		if strings.ToLower(regions[i].Title) == guess {
			return &regions[i]
		}
	}

	parts := strings.FieldsFunc(guess, func(r rune) bool {
		return strings.ContainsRune("/,;|–—-", r)
	})
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	for _, p := range parts {
		if p == "" {
			continue
		}
		slug := dedup.Slugify(p)
		for i := range regions {
			if regions[i].Slug == slug {
				return &regions[i]
			}
		}
	}

	for i := range regions {
		title := strings.ToLower(regions[i].Title)
		if strings.Contains(guess, title) || strings.Contains(title, guess) {
			return &regions[i]
		}
		for _, p := range parts {
			if p != "" && (strings.Contains(p, title) || strings.Contains(title, p)) {
				return &regions[i]
			}
		}
	}
	return nil
}

var editorialCues = map[string]string{
	"alleinlage":        "Absolute Alleinlage, kein Nachbar weit und breit",
	"abgelegen":         "Abseits der ausgetretenen Pfade gelegen",
	"abgeschieden":      "Wunderbar abgeschieden in der Natur",
	"funkloch":          "Natürliches Funkloch, digitale Auszeit garantiert",
	"kein wlan":         "Bewusst kein WLAN, echte Offline-Zeit",
	"kein wifi":         "Bewusst kein WiFi, echte Offline-Zeit",
	"digital detox":     "Digital-Detox-Konzept als Teil der Philosophie",
	"offline":           "Offline-Erlebnis steht im Mittelpunkt",
	"ruhe":              "Absolute Ruhe als höchstes Gut",
	"stille":            "Stille, die man förmlich spüren kann",
	"ruhig":             "Ein Ort der Ruhe und Besinnung",
	"einsam":            "Wohltuende Einsamkeit inmitten der Natur",
	"fernab":            "Fernab vom Trubel des Alltags",
	"naturverbunden":    "Naturverbundenes Erleben im Alpenraum",
	"refugium":          "Ein echtes Refugium für Ruhesuchende",
	"hideaway":          "Verstecktes Hideaway mit Charakter",
	"adults only":       "Nur für Erwachsene: ungestörte Atmosphäre",
	"boutique":          "Liebevoll geführtes Boutique-Haus mit Persönlichkeit",
	"designhotel":       "Durchdachtes Design trifft alpine Tradition",
	"architektur":       "Bemerkenswerte Architektur, die zur Landschaft passt",
	"wenige zimmer":     "Wenige Zimmer garantieren Exklusivität und Ruhe",
	"familiengeführt":   "Familiär geführt: persönlich und authentisch",
	"retreat":           "Rückzugsort für bewusste Entschleunigung",
	"entschleunigung":   "Entschleunigung ist hier gelebte Philosophie",
	"geheimtipp":        "Ein echter Geheimtipp unter Kennern",
	"kleine unterkunft": "Kleine, feine Unterkunft mit persönlicher Note",
}

const (
	maxBullets    = 5
	maxAttributes = 5
)

// WhyDisconnect writes editorial bullets from the offgrid cues, topped up
// from scoring reasons. There is always at least one bullet.
func WhyDisconnect(reasons, cues []string) []string {
	var out []string
	for _, cue := range cues {
		if text, ok := editorialCues[strings.ToLower(cue)]; ok && len(out) < maxBullets {
			out = append(out, text)
		}
	}

	if len(out) < 2 {
		for _, r := range reasons {
			r = strings.ToLower(r)
			if strings.Contains(r, "small accommodation") && len(out) < maxBullets {
				out = append(out, "Überschaubare Größe für ein intimes Erlebnis")
			}
			if strings.Contains(r, "good rating") && len(out) < maxBullets {
				out = append(out, "Hervorragend bewertet von Gästen")
			}
		}
	}

	if len(out) == 0 {
		out = append(out, "Ruhige Lage in den Alpen")
	}
	return out
}

var cueAttributes = map[string]string{
	"funkloch":        "funkloch",
	"kein wlan":       "funkloch",
	"kein wifi":       "funkloch",
	"digital detox":   "funkloch",
	"offline":         "funkloch",
	"wald":            "wald",
	"berge":           "berge",
	"see":             "see",
	"boutique":        "boutique",
	"designhotel":     "design",
	"architektur":     "design",
	"adults only":     "adults-only",
	"nur erwachsene":  "adults-only",
	"eco":             "eco",
	"nachhaltig":      "eco",
	"retreat":         "retreat",
	"entschleunigung": "retreat",
	"refugium":        "retreat",
	"chalet":          "chalet",
	"almhütte":        "chalet",
}

// SuggestAttributes maps cues to place attributes, first occurrence order.
func SuggestAttributes(cues []string) []string {
	seen := map[string]bool{}
	out := []string{}
	for _, cue := range cues {
		attr, ok := cueAttributes[strings.ToLower(cue)]
		if !ok || seen[attr] {
			continue
		}
		seen[attr] = true
		out = append(out, attr)
		if len(out) == maxAttributes {
			break
		}
	}
	return out
}

const (
	maxSEOTitle       = 70
	maxSEODescription = 160
)

// SEO drafts a title and meta description.
func SEO(name, regionGuess string, cues []string) (title, description string) {
	region, _, _ := strings.Cut(regionGuess, "/")
	region = strings.TrimSpace(region)
	if region == "" {
		region = "Alpen"
	}

	title = name + ": Ruhiges Hideaway in " + region + " | Stille Orte"

	cueText := ""
	if len(cues) > 0 {
		cueText = " " + strings.Join(cues[:min(len(cues), 2)], ", ") + "."
	}
	description = name + " in " + region +
		": Ein handverlesener Rückzugsort für alle, die Ruhe und Disconnection suchen." +
		cueText + " Entdecke mehr auf Stille Orte."

	return truncate(title, maxSEOTitle), strings.TrimRightFunc(truncate(description, maxSEODescription), unicode.IsSpace)
}
