package scoring

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/mathiasgse/screenfree/internal/model"
	"github.com/mathiasgse/screenfree/internal/resilience"
	"github.com/mathiasgse/screenfree/pkg/anthropic"
)

const aiExcerptChars = 2500

const curatorPrompt = `You are a travel curator for Stille Orte, a publication about quiet, disconnection-focused boutique accommodations in the Alpine region.

FIRST decide whether this is a bookable accommodation at all (hotel, B&B, chalet, pension, Almhütte, Refugium). A tourism board, blog, booking aggregator, restaurant or anything else that is not a place to stay gets score 0 and recommendation "no".

For a real accommodation, weigh:
1. SIZE: ideally under 20 rooms, under 10 is excellent, over 50 disqualifies.
2. LOCATION: secluded and Alpine, away from mass tourism. Alleinlage is ideal.
3. CHARACTER: design-conscious, architecturally interesting or authentically rustic. Family-run and locally rooted beats corporate.
4. DISCONNECTION: digital detox, no WiFi, off-grid or Funkloch are strong positives. Their absence is not disqualifying when the rest is strong.
5. ATMOSPHERE: calm and intimate. No animation programme, no kids club, no party vibe.

HARD DISQUALIFIERS (score 0):
- not an accommodation
- chain hotel (Hilton, Marriott, Accor, Best Western and similar)
- all-inclusive family resort with kids club
- hostel or party hotel
- more than 100 rooms

Answer with JSON of exactly this shape:
{
  "score": <number 0-100>,
  "reasons": [<positive signals>],
  "riskFlags": [<concerns>],
  "confidence": <number 0-1>,
  "summary": "<one editorial sentence>",
  "recommendation": "<strong_yes|yes|maybe|no>"
}`

var recommendations = map[string]bool{"strong_yes": true, "yes": true, "maybe": true, "no": true}

// AIConfig selects the model and sampling.
type AIConfig struct {
	Model       string
	MaxTokens   int64
	Temperature float64
}

// Subject is what the AI reviewer is told about a candidate.
type Subject struct {
	Name        string
	WebsiteURL  string
	Snippet     string
	RegionGuess string
	Rating      *float64
	ReviewCount *int
	Scored      Result
}

// Verdict is a validated AI answer before merging.
type Verdict struct {
	Score          float64
	Reasons        []string
	RiskFlags      []string
	Confidence     float64
	Summary        string
	Recommendation string
}

// AIResult is the merged deterministic and AI assessment.
type AIResult struct {
	Result
	Summary        string `json:"summary"`
	Recommendation string `json:"recommendation"`
}

// AIScorer asks a language model for a second opinion.
type AIScorer struct {
	client  anthropic.Client
	cfg     AIConfig
	breaker *resilience.CircuitBreaker
}

// NewAIScorer creates an AIScorer. A nil breaker disables circuit breaking.
func NewAIScorer(client anthropic.Client, cfg AIConfig, breaker *resilience.CircuitBreaker) *AIScorer {
	return &AIScorer{client: client, cfg: cfg, breaker: breaker}
}

// Score returns the merged assessment, or false when the model could not
// deliver a valid verdict. Failures never propagate.
func (a *AIScorer) Score(ctx context.Context, s Subject, e *model.Enrichment) (*AIResult, bool) {
	log := zap.L().With(zap.String("candidate", s.Name))

	call := func(ctx context.Context) (*anthropic.MessageResponse, error) {
		temp := a.cfg.Temperature
		return a.client.CreateMessage(ctx, anthropic.MessageRequest{
			Model:       a.cfg.Model,
			MaxTokens:   a.cfg.MaxTokens,
			System:      curatorPrompt,
			Messages:    []anthropic.Message{{Role: "user", Content: buildPrompt(s, e)}},
			Temperature: &temp,
		})
	}

	var (
		resp *anthropic.MessageResponse
		err  error
	)
	if a.breaker != nil {
		resp, err = resilience.ExecuteVal(ctx, a.breaker, call)
	} else {
		resp, err = call(ctx)
	}
	if err != nil {
		log.Warn("ai scorer: request failed", zap.Error(err))
		return nil, false
	}
	resp.Usage.LogCost(a.cfg.Model, "ai-score")

	v, err := ParseVerdict(resp.Text())
	if err != nil {
		log.Warn("ai scorer: invalid response", zap.Error(err))
		return nil, false
	}
	merged := Merge(s.Scored, v)
	return &merged, true
}

// ParseVerdict extracts and validates the JSON object in text.
func ParseVerdict(text string) (Verdict, error) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return Verdict{}, eris.New("ai scorer: no JSON object in response")
	}

	var raw struct {
		Score          *float64  `json:"score"`
		Reasons        *[]string `json:"reasons"`
		RiskFlags      *[]string `json:"riskFlags"`
		Confidence     *float64  `json:"confidence"`
		Summary        *string   `json:"summary"`
		Recommendation string    `json:"recommendation"`
	}
	if err := json.Unmarshal([]byte(text[start:end+1]), &raw); err != nil {
		return Verdict{}, eris.Wrap(err, "ai scorer: parse response")
	}
	if raw.Score == nil || raw.Reasons == nil || raw.RiskFlags == nil ||
		raw.Confidence == nil || raw.Summary == nil || !recommendations[raw.Recommendation] {
		return Verdict{}, eris.New("ai scorer: response is missing required fields")
	}
	return Verdict{
		Score:          *raw.Score,
		Reasons:        *raw.Reasons,
		RiskFlags:      *raw.RiskFlags,
		Confidence:     *raw.Confidence,
		Summary:        *raw.Summary,
		Recommendation: raw.Recommendation,
	}, nil
}

// Merge averages the two scores and confidences and concatenates reasons
// and risk flags. A negative AI confidence counts as zero and the merged
// confidence is capped at 1.
func Merge(det Result, v Verdict) AIResult {
	ai := math.Max(0, math.Min(100, v.Score))
	aiConfidence := math.Max(0, v.Confidence)
	score := clamp(roundHalfUp((float64(det.Score)+ai)/2), 0, 100)

	reasons := make([]string, 0, len(det.Reasons)+len(v.Reasons))
	reasons = append(append(reasons, det.Reasons...), v.Reasons...)
	flags := make([]string, 0, len(det.RiskFlags)+len(v.RiskFlags))
	flags = append(append(flags, det.RiskFlags...), v.RiskFlags...)

	return AIResult{
		Result: Result{
			Score:      score,
			Reasons:    reasons,
			RiskFlags:  flags,
			Confidence: math.Min(1.0, (det.Confidence+aiConfidence)/2),
		},
		Summary:        v.Summary,
		Recommendation: v.Recommendation,
	}
}

func buildPrompt(s Subject, e *model.Enrichment) string {
	if e == nil {
		e = &model.Enrichment{}
	}
	rating := "unknown"
	if s.Rating != nil {
		rating = strconv.FormatFloat(*s.Rating, 'f', -1, 64)
	}
	reviews := 0
	if s.ReviewCount != nil {
		reviews = *s.ReviewCount
	}
	rooms := "unknown"
	if e.RoomCount != nil {
		rooms = strconv.Itoa(*e.RoomCount)
	}
	schema := e.AccommodationType
	if schema == "" {
		schema = "not detected"
	}
	booking := "no"
	if e.HasBookingSignals {
		booking = "yes"
	}

	var b strings.Builder
	b.WriteString("Evaluate this accommodation candidate:\n\n")
	fmt.Fprintf(&b, "Name: %s\n", s.Name)
	fmt.Fprintf(&b, "Website: %s\n", s.WebsiteURL)
	fmt.Fprintf(&b, "Search snippet: %s\n", s.Snippet)
	fmt.Fprintf(&b, "Region guess: %s\n", s.RegionGuess)
	fmt.Fprintf(&b, "Current deterministic score: %d\n", s.Scored.Score)
	fmt.Fprintf(&b, "Discovered cues: %s\n", joinOr(s.Scored.Reasons, "; "))
	fmt.Fprintf(&b, "Risk flags: %s\n", joinOr(s.Scored.RiskFlags, "; "))
	fmt.Fprintf(&b, "Rating: %s (%d reviews)\n", rating, reviews)
	fmt.Fprintf(&b, "Schema.org type: %s\n", schema)
	fmt.Fprintf(&b, "Booking signals: %s\n", booking)
	fmt.Fprintf(&b, "Room count: %s\n", rooms)
	fmt.Fprintf(&b, "Offgrid cues: %s\n", joinOr(e.OffgridCues, ", "))
	fmt.Fprintf(&b, "Resort penalties: %s\n\n", joinOr(e.ResortPenalties, ", "))
	b.WriteString("Website text (excerpt):\n")
	b.WriteString(truncateRunes(e.AboutText, aiExcerptChars))
	b.WriteString("\n\nReturn your evaluation as JSON only, no markdown fences.")
	return b.String()
}

func joinOr(items []string, sep string) string {
	if len(items) == 0 {
		return "none"
	}
	return strings.Join(items, sep)
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
