package discovery

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mathiasgse/screenfree/internal/dedup"
	"github.com/mathiasgse/screenfree/internal/model"
	"github.com/mathiasgse/screenfree/internal/platform"
	"github.com/mathiasgse/screenfree/internal/store"
)

const hutURL = "https://www.huetten.test/at/tirol/almhuette-sonnberg"

func testRegistry() *platform.Registry {
	return platform.NewRegistry(&mockScraper{
		domain: "huetten.test",
		listings: map[string]*model.Listing{
			hutURL: {
				Name:          "Almhütte Sonnberg",
				PlatformURL:   hutURL,
				OwnWebsiteURL: "https://sonnberg.at/",
				Region:        "Tirol / Zillertal",
				Elevation:     "1.650 m",
				Capacity:      "8 Personen",
				Price:         "ab 180 €",
				Description:   strings.Repeat("Ruhe ", 200),
				Rating:        ptr(4.7),
				ReviewCount:   ptr(23),
				Platform:      "huetten.test",
			},
		},
	})
}

func newTestScrapeRunner(st *mockStore) *ScrapeRunner {
	e := &mockEnricher{pages: map[string]*model.Enrichment{
		"https://sonnberg.at/": {
			OffgridCues:     []string{"alleinlage", "funkloch"},
			ResortPenalties: []string{"wellnessresort"},
			ContactEmail:    "info@sonnberg.at",
			Coordinates:     &dedup.Point{Lat: 47.2, Lng: 11.9},
		},
	}}
	return NewScrapeRunner(st, testRegistry(), e, nil, 0)
}

func TestScrapeRunner_Validate(t *testing.T) {
	r := newTestScrapeRunner(newMockStore())

	assert.NoError(t, r.Validate([]string{hutURL}))
	assert.True(t, eris.Is(r.Validate(nil), ErrNoURLs))

	many := make([]string, MaxScrapeURLs+1)
	for i := range many {
		many[i] = fmt.Sprintf("https://huetten.test/hut-%d", i)
	}
	assert.True(t, eris.Is(r.Validate(many), ErrTooManyURLs))

	err := r.Validate([]string{hutURL, "https://booking.com/a", "https://airbnb.com/b", "https://x.com/c", "https://y.com/d"})
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrUnsupportedURL))
	assert.Contains(t, err.Error(), "only huetten.test allowed")
	assert.Contains(t, err.Error(), "https://x.com/c")
	assert.NotContains(t, err.Error(), "https://y.com/d")
}

func TestScrapeRunner_Run(t *testing.T) {
	st := newMockStore()
	stats, err := newTestScrapeRunner(st).Run(context.Background(), ScrapeOptions{
		URLs: []string{hutURL, "https://huetten.test/missing", "https://booking.com/a"},
	})
	require.NoError(t, err)

	assert.Equal(t, model.RunStats{CandidatesFound: 3, NewCandidates: 1, ErrorCount: 2}, stats)
	assert.Equal(t, []string{ScrapeRunLabel}, st.createdRuns)
	assert.Len(t, st.completedRuns, 1)

	c := st.byName("Almhütte Sonnberg")
	require.NotNil(t, c)
	assert.Equal(t, "sonnberg.at--almhuette-sonnberg", c.DedupeKey)
	assert.Equal(t, "info@sonnberg.at", c.ContactEmail)
	assert.Equal(t, model.StatusNew, c.Status)
}

func TestScrapeRunner_RerunCountsUpdatesAsNew(t *testing.T) {
	st := newMockStore()
	r := newTestScrapeRunner(st)

	_, err := r.Run(context.Background(), ScrapeOptions{URLs: []string{hutURL}})
	require.NoError(t, err)
	stats, err := r.Run(context.Background(), ScrapeOptions{URLs: []string{hutURL}})
	require.NoError(t, err)
	assert.Equal(t, 1, stats.NewCandidates)

	c := st.byName("Almhütte Sonnberg")
	require.NotNil(t, c)
	require.NoError(t, st.SetCandidateStatus(context.Background(), c.ID, store.StatusUpdate{Status: model.StatusAccepted}))

	stats, err = r.Run(context.Background(), ScrapeOptions{URLs: []string{hutURL}})
	require.NoError(t, err)
	assert.Equal(t, 1, stats.DuplicatesSkipped)
}

func TestScrapeRunner_StartValidates(t *testing.T) {
	st := newMockStore()
	r := newTestScrapeRunner(st)

	_, err := r.Start(context.Background(), ScrapeOptions{URLs: []string{"https://booking.com/a"}})
	require.Error(t, err)
	assert.Empty(t, st.createdRuns)

	id, err := r.Start(context.Background(), ScrapeOptions{URLs: []string{hutURL}})
	require.NoError(t, err)
	r.Wait()
	assert.Equal(t, []string{id}, st.completedRuns)
}

func TestScrapedCandidate(t *testing.T) {
	l := &model.Listing{
		Name:        "Hütte am See",
		PlatformURL: "https://huetten.test/h/1",
		Region:      "Kärnten",
		Elevation:   "1.200 m",
		Rating:      ptr(4.5),
		ReviewCount: ptr(0),
		Description: strings.Repeat("ä", 600),
		Platform:    "huetten.test",
	}

	c := ScrapedCandidate(l, nil)
	assert.Equal(t, "https://huetten.test/h/1", c.WebsiteURL)
	assert.Equal(t, "huetten.test--huette-am-see", c.DedupeKey)
	assert.Equal(t, 70, c.QualityScore)
	assert.InDelta(t, 0.6, c.Confidence, 1e-9)
	assert.Equal(t, "scraper:huetten.test", c.Source)
	assert.Equal(t, []string{"Höhe: 1.200 m", "Bewertung: 4.5"}, c.Reasons)
	assert.Equal(t, []string{"Keine eigene Website gefunden"}, c.RiskFlags)
	assert.Len(t, []rune(c.Snippet), 500)
	assert.Equal(t, model.RawScraper, c.RawData.Kind)
	assert.Equal(t, "1.200 m", c.RawData.Scraper.Elevation)
	assert.Nil(t, c.RawData.Enrichment)
}

func TestScrapedCandidate_WithEnrichment(t *testing.T) {
	l := &model.Listing{
		Name:          "Chalet Lärche",
		PlatformURL:   "https://huetten.test/h/2",
		OwnWebsiteURL: "https://laerche.ch/",
		Capacity:      "6 Personen",
		Price:         "ab 220 CHF",
		Rating:        ptr(4.8),
		ReviewCount:   ptr(12),
		Platform:      "huetten.test",
	}
	e := &model.Enrichment{
		OffgridCues:     []string{"abgelegen"},
		ResortPenalties: []string{"spa resort"},
		Coordinates:     &dedup.Point{Lat: 46.5, Lng: 9.8},
	}

	c := ScrapedCandidate(l, e)
	assert.Equal(t, "https://laerche.ch/", c.WebsiteURL)
	assert.Equal(t, []string{
		"Kapazität: 6 Personen",
		"Preis: ab 220 CHF",
		"Bewertung: 4.8 (12 Reviews)",
		"Offgrid-Signale: abgelegen",
	}, c.Reasons)
	assert.Equal(t, []string{"Resort-Signale: spa resort"}, c.RiskFlags)
	assert.Equal(t, e.Coordinates, c.Coordinates)
	require.NotNil(t, c.RawData.Enrichment)
	assert.Equal(t, []string{"abgelegen"}, c.RawData.OffgridCues())
}
