// Package scoring turns search and enrichment signals into a 0-100 quality
// score with auditable reasons, optionally refined by an AI review, and gates
// the result.
package scoring

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/mathiasgse/screenfree/internal/model"
	"github.com/mathiasgse/screenfree/internal/rubric"
	"github.com/mathiasgse/screenfree/pkg/serper"
)

// Result is a scored candidate. Every applied delta is explained in Reasons
// (positive) or RiskFlags (negative).
type Result struct {
	Score      int      `json:"score"`
	Reasons    []string `json:"reasons"`
	RiskFlags  []string `json:"riskFlags"`
	Confidence float64  `json:"confidence"`
}

// Scorer applies the catalog's deterministic weights.
type Scorer struct {
	cat *rubric.Catalog
}

// NewScorer creates a Scorer.
func NewScorer(cat *rubric.Catalog) *Scorer {
	return &Scorer{cat: cat}
}

// Score rates a search hit together with what its website revealed.
func (s *Scorer) Score(hit serper.Result, e *model.Enrichment) Result {
	w := s.cat.Scoring
	if e == nil {
		e = &model.Enrichment{}
	}
	res := Result{Reasons: []string{}, RiskFlags: []string{}}
	score := w.Base

	// Snippet evidence is weaker than the full page, so it counts half.
	snippet := strings.ToLower(hit.Snippet)
	pre := 0
	for _, k := range rubric.MatchAll(snippet, s.cat.OffgridKeywords) {
		pre += roundHalfUp(float64(k.Weight) * w.SnippetWeight)
	}
	for _, k := range rubric.MatchAll(snippet, s.cat.ResortPenalties) {
		pre += roundHalfUp(float64(k.Weight) * w.SnippetWeight)
	}
	pre = clamp(pre, w.SnippetMin, w.SnippetMax)
	if pre != 0 {
		score += pre
		res.Reasons = append(res.Reasons, fmt.Sprintf("Snippet keyword signals (%s)", signed(pre)))
	}

	if offgrid := min(weightOf(e.OffgridCues, s.cat.OffgridKeywords), w.MaxOffgridBonus); offgrid > 0 {
		score += offgrid
		res.Reasons = append(res.Reasons, fmt.Sprintf("Offgrid cues found: %s (+%d)",
			strings.Join(e.OffgridCues, ", "), offgrid))
	}

	if penalty := max(weightOf(e.ResortPenalties, s.cat.ResortPenalties), w.MaxResortPenalty); penalty < 0 {
		score += penalty
		res.RiskFlags = append(res.RiskFlags, fmt.Sprintf("Resort indicators: %s (%d)",
			strings.Join(e.ResortPenalties, ", "), penalty))
	}

	confirmed := e.IsAccommodation != nil && *e.IsAccommodation
	if confirmed {
		score += w.SchemaBonus
		res.Reasons = append(res.Reasons, fmt.Sprintf("Accommodation confirmed via Schema.org: %s (+%d)",
			e.AccommodationType, w.SchemaBonus))
	}
	if e.HasBookingSignals {
		score += w.BookingBonus
		res.Reasons = append(res.Reasons, fmt.Sprintf("Booking signals found (Preise/Buchen/Verfügbarkeit) (+%d)",
			w.BookingBonus))
	}
	// A failed fetch says nothing about whether this is a lodging.
	if !confirmed && !e.HasBookingSignals && e.Fetched() {
		score += w.NoAccommodationPenalty
		res.RiskFlags = append(res.RiskFlags, fmt.Sprintf("No accommodation signals found, might not be a lodging (%d)",
			w.NoAccommodationPenalty))
	}

	if e.RoomCount != nil && *e.RoomCount <= w.SmallRoomThreshold {
		score += w.SmallBonus
		res.Reasons = append(res.Reasons, fmt.Sprintf("Small accommodation: %d rooms (+%d)", *e.RoomCount, w.SmallBonus))
	}

	if hit.Rating != nil && *hit.Rating >= w.RatingThreshold &&
		hit.RatingCount != nil && *hit.RatingCount >= w.RatingMinReviews {
		score += w.RatingBonus
		res.Reasons = append(res.Reasons, fmt.Sprintf("Good rating: %s/5 (%d reviews) (+%d)",
			strconv.FormatFloat(*hit.Rating, 'f', -1, 64), *hit.RatingCount, w.RatingBonus))
	}

	res.Score = clamp(score, 0, 100)
	res.Confidence = confidence(hit, e)
	return res
}

func confidence(hit serper.Result, e *model.Enrichment) float64 {
	c := 0.5
	if e.Fetched() {
		c += 0.2
	}
	if e.Coordinates != nil {
		c += 0.1
	}
	if e.RoomCount != nil {
		c += 0.1
	}
	if hit.Rating != nil {
		c += 0.1
	}
	return math.Min(roundTo(c, 2), 1.0)
}

func weightOf(found []string, table []rubric.WeightedKeyword) int {
	sum := 0
	for _, f := range found {
		for _, k := range table {
			if k.Keyword == f {
				sum += k.Weight
				break
			}
		}
	}
	return sum
}

// roundHalfUp rounds .5 towards positive infinity, so -7.5 becomes -7.
func roundHalfUp(x float64) int {
	return int(math.Floor(x + 0.5))
}

func roundTo(x float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(x*p) / p
}

func clamp(v, lo, hi int) int {
	return max(lo, min(v, hi))
}

func signed(n int) string {
	if n > 0 {
		return "+" + strconv.Itoa(n)
	}
	return strconv.Itoa(n)
}
