package discovery

import (
	"context"
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mathiasgse/screenfree/internal/dedup"
	"github.com/mathiasgse/screenfree/internal/model"
	"github.com/mathiasgse/screenfree/internal/store"
)

var testRegions = []model.Region{
	{ID: "r-tirol", Title: "Tirol", Slug: "tirol"},
	{ID: "r-suedtirol", Title: "Südtirol", Slug: "suedtirol"},
	{ID: "r-engadin", Title: "Engadin", Slug: "engadin"},
}

func seededCandidate(st *mockStore) *model.Candidate {
	c := &model.Candidate{
		ID:          "cand-berghof",
		Name:        "Berghof Alleinlage",
		WebsiteURL:  "https://berghof.at/",
		RegionGuess: "Tirol / Ötztal",
		Reasons:     []string{"Small accommodation: 8 rooms (+10)"},
		Coordinates: &dedup.Point{Lat: 47.0, Lng: 10.9},
		RawData: model.RawData{Kind: model.RawSearch, Enrichment: &model.EnrichmentSummary{
			OffgridCues: []string{"alleinlage", "funkloch", "chalet"},
		}},
		DedupeKey: "berghof.at--berghof-alleinlage",
		Status:    model.StatusMaybe,
	}
	st.candidates[c.DedupeKey] = c
	return c
}

func TestReviewer_Accept(t *testing.T) {
	st := newMockStore()
	st.regions = testRegions
	seededCandidate(st)

	draft, err := NewReviewer(st).Accept(context.Background(), "cand-berghof")
	require.NoError(t, err)

	assert.Equal(t, "berghof-alleinlage", draft.Slug)
	assert.Equal(t, "r-tirol", draft.RegionID)
	assert.Equal(t, "https://berghof.at/", draft.OutboundURL)
	assert.Equal(t, "cand-berghof", draft.CandidateID)
	assert.Equal(t, []string{
		"Absolute Alleinlage, kein Nachbar weit und breit",
		"Natürliches Funkloch, digitale Auszeit garantiert",
	}, draft.WhyDisconnect)
	assert.Equal(t, []string{"funkloch", "chalet"}, draft.Attributes)
	require.Len(t, st.places, 1)

	u := st.statusUpdates["cand-berghof"]
	assert.Equal(t, model.StatusAccepted, u.Status)
	assert.Equal(t, draft.ID, u.AcceptedPlaceID)
	assert.Contains(t, u.GeneratedEmail, "«Berghof Alleinlage»")
}

func TestReviewer_AcceptTwice(t *testing.T) {
	st := newMockStore()
	seededCandidate(st)
	r := NewReviewer(st)

	_, err := r.Accept(context.Background(), "cand-berghof")
	require.NoError(t, err)
	_, err = r.Accept(context.Background(), "cand-berghof")
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrAlreadyAccepted))
	assert.Len(t, st.places, 1)
}

func TestReviewer_AcceptStatusFailureRemovesDraft(t *testing.T) {
	st := newMockStore()
	seededCandidate(st)
	st.setStatusErr = errors.New("connection reset")
	r := NewReviewer(st)

	_, err := r.Accept(context.Background(), "cand-berghof")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "review: mark accepted")
	assert.Empty(t, st.places)
	require.Len(t, st.deletedPlaces, 1)

	st.setStatusErr = nil
	draft, err := r.Accept(context.Background(), "cand-berghof")
	require.NoError(t, err)
	require.Len(t, st.places, 1)
	assert.Equal(t, draft.ID, st.places[0].ID)
	assert.NotEqual(t, st.deletedPlaces[0], draft.ID)
}

func TestReviewer_AcceptUnknown(t *testing.T) {
	_, err := NewReviewer(newMockStore()).Accept(context.Background(), "nope")
	require.Error(t, err)
	assert.True(t, eris.Is(err, store.ErrNotFound))
}

func TestReviewer_RejectAndMaybe(t *testing.T) {
	st := newMockStore()
	seededCandidate(st)
	r := NewReviewer(st)

	require.NoError(t, r.Reject(context.Background(), "cand-berghof", "Zu nah an der Skipiste"))
	assert.Equal(t, store.StatusUpdate{Status: model.StatusRejected, RejectionReason: "Zu nah an der Skipiste"}, st.statusUpdates["cand-berghof"])

	require.NoError(t, r.Maybe(context.Background(), "cand-berghof"))
	assert.Equal(t, model.StatusMaybe, st.statusUpdates["cand-berghof"].Status)

	assert.True(t, eris.Is(r.Maybe(context.Background(), "nope"), store.ErrNotFound))
}

func TestMatchRegion(t *testing.T) {
	tests := []struct {
		guess string
		want  string
	}{
		{"Tirol", "r-tirol"},
		{"südtirol", "r-suedtirol"},
		{"Südtirol / Vinschgau", "r-suedtirol"},
		{"Graubünden - Engadin", "r-engadin"},
		{"Oberengadin", "r-engadin"},
		{"Wallis", ""},
		{"", ""},
	}
	for _, tt := range tests {
		t.Run(tt.guess, func(t *testing.T) {
			got := MatchRegion(tt.guess, testRegions)
			if tt.want == "" {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.Equal(t, tt.want, got.ID)
		})
	}
}

func TestWhyDisconnect(t *testing.T) {
	cues := []string{"alleinlage", "funkloch", "ruhe", "stille", "fernab", "hideaway", "unbekannt"}
	assert.Len(t, WhyDisconnect(nil, cues), 5)

	got := WhyDisconnect([]string{"Small accommodation: 6 rooms (+10)", "Good rating: 4.9/5 (80 reviews) (+8)"}, []string{"retreat"})
	assert.Equal(t, []string{
		"Rückzugsort für bewusste Entschleunigung",
		"Überschaubare Größe für ein intimes Erlebnis",
		"Hervorragend bewertet von Gästen",
	}, got)

	assert.Equal(t, []string{"Ruhige Lage in den Alpen"}, WhyDisconnect(nil, nil))
}

func TestSuggestAttributes(t *testing.T) {
	got := SuggestAttributes([]string{"kein wlan", "funkloch", "wald", "see", "eco", "chalet", "retreat"})
	assert.Equal(t, []string{"funkloch", "wald", "see", "eco", "chalet"}, got)
	assert.Empty(t, SuggestAttributes([]string{"unbekannt"}))
}

func TestSEO(t *testing.T) {
	title, desc := SEO("Berghof", "Tirol / Ötztal", []string{"alleinlage", "funkloch", "stille"})
	assert.Equal(t, "Berghof: Ruhiges Hideaway in Tirol | Stille Orte", title)
	assert.True(t, strings.HasPrefix(desc, "Berghof in Tirol: Ein handverlesener Rückzugsort"))
	assert.Contains(t, desc, "alleinlage, funkloch.")
	assert.NotContains(t, desc, "stille.")

	title, _ = SEO("Berghof", "", nil)
	assert.Contains(t, title, "in Alpen")

	long := strings.Repeat("Großartiges Haus ", 10)
	title, desc = SEO(long, "Südtirol", nil)
	assert.Equal(t, 70, utf8.RuneCountInString(title))
	assert.LessOrEqual(t, utf8.RuneCountInString(desc), 160)
}

func TestOutreachEmail(t *testing.T) {
	c := &model.Candidate{Name: "Seehaus"}
	mail := OutreachEmail(c)
	assert.True(t, strings.HasPrefix(mail, "Betreff: Stille Orte Magazin: Ihr Haus «Seehaus» in unserer Sammlung"))
	assert.Contains(t, mail, "- Genaue Adresse oder Koordinaten Ihres Hauses")
	assert.NotContains(t, mail, "—")

	c.Coordinates = &dedup.Point{Lat: 47, Lng: 11}
	assert.NotContains(t, OutreachEmail(c), "Genaue Adresse")
	assert.Equal(t, 4, strings.Count(OutreachEmail(c), "\n- "))
}
