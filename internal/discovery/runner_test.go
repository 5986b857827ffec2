package discovery

import (
	"context"
	"errors"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/mathiasgse/screenfree/internal/dedup"
	"github.com/mathiasgse/screenfree/internal/model"
	"github.com/mathiasgse/screenfree/internal/resilience"
	"github.com/mathiasgse/screenfree/internal/scoring"
	"github.com/mathiasgse/screenfree/pkg/serper"
	"github.com/mathiasgse/screenfree/pkg/serper/mocks"
)

func ptr[T any](v T) *T { return &v }

func testSettings() Settings {
	retry := resilience.DefaultRetryConfig()
	retry.MaxAttempts = 1
	return Settings{ResultsPerQuery: 10, MaxQueries: 50, SearchRate: 1000, SearchRetry: retry}
}

// testPages returns enrichments that land in each gate band.
func testPages() map[string]*model.Enrichment {
	return map[string]*model.Enrichment{
		"https://berghof.at/": {HasBookingSignals: true},
		"https://resort.at/":  {ResortPenalties: []string{"resort", "kinderhotel", "hilton"}},
		"https://alm.at/": {
			OffgridCues:       []string{"alleinlage", "funkloch", "kein wlan", "abgelegen", "stille"},
			RoomCount:         ptr(6),
			IsAccommodation:   ptr(true),
			AccommodationType: "BedAndBreakfast",
			HasBookingSignals: true,
			Coordinates:       &dedup.Point{Lat: 47.1, Lng: 10.9},
		},
	}
}

func newTestRunner(t *testing.T, st *mockStore, search serper.Client, ai AIReviewer) *Runner {
	t.Helper()
	return NewRunner(Deps{
		Catalog:  testCatalog(),
		Store:    st,
		Search:   search,
		Enricher: &mockEnricher{pages: testPages()},
		AI:       ai,
	}, testSettings())
}

func threeHits() []serper.Result {
	return []serper.Result{
		{Title: "Berghof", Link: "https://berghof.at/", Position: 1},
		{Title: "Resort Tirol", Link: "https://resort.at/", Position: 2},
		{Title: "Almhaus", Link: "https://alm.at/", Position: 3, Rating: ptr(4.9), RatingCount: ptr(40)},
		{Title: "Berghof Zimmer", Link: "https://www.berghof.at/zimmer", Position: 4},
	}
}

func TestRun_ScoresGatesAndRecords(t *testing.T) {
	st := newMockStore()
	search := mocks.NewMockClient(t)
	search.On("Search", mock.Anything, "Berghotel Ötztal ruhig", "AT", 10).Return(threeHits(), nil).Once()
	search.On("Search", mock.Anything, mock.Anything, "AT", 10).Return(nil, nil)

	stats, err := newTestRunner(t, st, search, nil).Run(context.Background(), RunOptions{Preset: "tyrol", Limit: 10})
	require.NoError(t, err)

	assert.Equal(t, model.RunStats{CandidatesFound: 3, NewCandidates: 3}, stats)
	assert.Equal(t, []string{"Tirol"}, st.createdRuns)
	require.Len(t, st.completedRuns, 1)
	assert.Equal(t, stats, st.completedStats)
	assert.Empty(t, st.failedRuns)

	berghof := st.byName("Berghof")
	require.NotNil(t, berghof)
	assert.Equal(t, model.StatusNew, berghof.Status)
	assert.Equal(t, 55, berghof.QualityScore)
	assert.Equal(t, "Tirol / Ötztal", berghof.RegionGuess)
	assert.Equal(t, "berghof.at--berghof", berghof.DedupeKey)
	assert.Equal(t, model.RawSearch, berghof.RawData.Kind)
	assert.Equal(t, "Berghotel Ötztal ruhig", berghof.RawData.Search.Query)

	resort := st.byName("Resort Tirol")
	require.NotNil(t, resort)
	assert.Equal(t, model.StatusRejected, resort.Status)
	assert.Contains(t, resort.RejectionReason, "below auto-reject threshold")
	assert.True(t, resort.RawData.AutoRejected)

	alm := st.byName("Almhaus")
	require.NotNil(t, alm)
	assert.Equal(t, model.StatusMaybe, alm.Status)
	assert.Equal(t, 100, alm.QualityScore)

	assert.Nil(t, st.byName("Berghof Zimmer"), "second hit on the same domain is dropped")
}

func TestRun_QueryBudget(t *testing.T) {
	st := newMockStore()
	search := mocks.NewMockClient(t)
	search.On("Search", mock.Anything, mock.Anything, mock.Anything, 10).Return(nil, nil).Times(4)

	_, err := newTestRunner(t, st, search, nil).Run(context.Background(), RunOptions{Limit: 2})
	require.NoError(t, err)

	// limit 2 allows 4 queries; searching writes an initial and a final checkpoint
	require.NotEmpty(t, st.progress)
	assert.Equal(t, model.RunProgress{Phase: model.PhaseSearching, Total: 4}, st.progress[0])
	assert.Equal(t, model.RunProgress{Phase: model.PhaseSearching, Processed: 4, Total: 4}, st.progress[1])
}

func TestRun_SearchErrorsAreCounted(t *testing.T) {
	st := newMockStore()
	search := mocks.NewMockClient(t)
	search.On("Search", mock.Anything, "Berghotel Ötztal ruhig", "AT", 10).Return(nil, errors.New("serper: http 500")).Once()
	search.On("Search", mock.Anything, mock.Anything, "AT", 10).Return(nil, nil)

	stats, err := newTestRunner(t, st, search, nil).Run(context.Background(), RunOptions{Country: "AT", Limit: 1})
	require.NoError(t, err)
	assert.Equal(t, 1, stats.ErrorCount)
	assert.Len(t, st.completedRuns, 1)
}

func TestRun_GateStatusFailureIsNotAnError(t *testing.T) {
	st := newMockStore()
	st.setStatusErr = errors.New("connection reset")
	search := mocks.NewMockClient(t)
	search.On("Search", mock.Anything, "Berghotel Ötztal ruhig", "AT", 10).Return(threeHits(), nil).Once()
	search.On("Search", mock.Anything, mock.Anything, "AT", 10).Return(nil, nil)

	stats, err := newTestRunner(t, st, search, nil).Run(context.Background(), RunOptions{Preset: "tyrol", Limit: 10})
	require.NoError(t, err)

	assert.Equal(t, model.RunStats{CandidatesFound: 3, NewCandidates: 3}, stats)
	resort := st.byName("Resort Tirol")
	require.NotNil(t, resort)
	assert.Equal(t, model.StatusNew, resort.Status, "gate status was not applied")
	assert.True(t, resort.RawData.AutoRejected)
}

func TestRun_DryRunWritesNothing(t *testing.T) {
	st := newMockStore()
	search := mocks.NewMockClient(t)
	search.On("Search", mock.Anything, mock.Anything, "AT", 10).Return(threeHits(), nil)

	stats, err := newTestRunner(t, st, search, nil).Run(context.Background(), RunOptions{Preset: "tyrol", Limit: 2, DryRun: true})
	require.NoError(t, err)

	assert.Equal(t, 2, stats.CandidatesFound)
	assert.Equal(t, 2, stats.NewCandidates)
	assert.Empty(t, st.createdRuns)
	assert.Empty(t, st.progress)
	assert.Empty(t, st.candidates)
}

func TestRun_SkipsReviewedDuplicates(t *testing.T) {
	st := newMockStore()
	st.candidates["berghof.at--berghof"] = &model.Candidate{ID: "c0", Name: "Berghof", DedupeKey: "berghof.at--berghof", Status: model.StatusAccepted}
	search := mocks.NewMockClient(t)
	search.On("Search", mock.Anything, mock.Anything, "AT", 10).Return(threeHits()[:1], nil)

	stats, err := newTestRunner(t, st, search, nil).Run(context.Background(), RunOptions{Preset: "tyrol", Limit: 5})
	require.NoError(t, err)
	assert.Equal(t, 1, stats.DuplicatesSkipped)
	assert.Equal(t, 0, stats.NewCandidates)
}

func TestRun_UnknownPreset(t *testing.T) {
	st := newMockStore()
	_, err := newTestRunner(t, st, mocks.NewMockClient(t), nil).Run(context.Background(), RunOptions{Preset: "atlantis"})
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrUnknownPreset))
	assert.Empty(t, st.createdRuns)
}

func TestRun_CreateRunError(t *testing.T) {
	st := newMockStore()
	st.createRunErr = errors.New("db down")
	_, err := newTestRunner(t, st, mocks.NewMockClient(t), nil).Run(context.Background(), RunOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "db down")
}

func TestRun_CancelledContextFailsRun(t *testing.T) {
	st := newMockStore()
	ctx, cancel := context.WithCancel(context.Background())
	search := mocks.NewMockClient(t)
	search.On("Search", mock.Anything, mock.Anything, mock.Anything, 10).
		Run(func(mock.Arguments) { cancel() }).
		Return(nil, context.Canceled).Once()

	_, err := newTestRunner(t, st, search, nil).Run(ctx, RunOptions{Preset: "tyrol"})
	require.Error(t, err)
	require.Len(t, st.failedRuns, 1)
	assert.Contains(t, st.failedMessages[0], "context canceled")
	assert.Empty(t, st.completedRuns)
}

type panickingEnricher struct{}

func (panickingEnricher) Enrich(context.Context, string) *model.Enrichment { panic("boom") }

func TestStart_PanicMarksRunFailed(t *testing.T) {
	st := newMockStore()
	search := mocks.NewMockClient(t)
	search.On("Search", mock.Anything, mock.Anything, "AT", 10).Return(threeHits()[:1], nil)

	r := NewRunner(Deps{Catalog: testCatalog(), Store: st, Search: search, Enricher: panickingEnricher{}}, testSettings())
	id, err := r.Start(context.Background(), RunOptions{Preset: "tyrol", Limit: 1})
	require.NoError(t, err)
	r.Wait()

	assert.Equal(t, []string{id}, st.failedRuns)
	assert.Contains(t, st.failedMessages[0], "panic: boom")
}

func TestStart_RunsInBackground(t *testing.T) {
	st := newMockStore()
	search := mocks.NewMockClient(t)
	search.On("Search", mock.Anything, mock.Anything, "AT", 10).Return(threeHits(), nil)

	r := newTestRunner(t, st, search, nil)
	ctx, cancel := context.WithCancel(context.Background())
	id, err := r.Start(ctx, RunOptions{Preset: "tyrol", Limit: 3, DryRun: true})
	cancel()
	require.NoError(t, err)
	require.NotEmpty(t, id)
	r.Wait()

	assert.Equal(t, []string{id}, st.completedRuns, "the run outlives the request context")
	assert.Empty(t, st.candidates, "dry runs keep the run record but skip candidate writes")
	assert.Equal(t, 3, st.completedStats.NewCandidates)
}

type stubAI struct {
	calls  int
	result *scoring.AIResult
}

func (a *stubAI) Score(_ context.Context, s scoring.Subject, _ *model.Enrichment) (*scoring.AIResult, bool) {
	a.calls++
	if a.result == nil {
		return nil, false
	}
	res := *a.result
	res.Reasons = append(s.Scored.Reasons, res.Reasons...)
	return &res, true
}

func TestRun_AIVerdictAboveThreshold(t *testing.T) {
	st := newMockStore()
	search := mocks.NewMockClient(t)
	search.On("Search", mock.Anything, mock.Anything, "AT", 10).Return(threeHits()[:2], nil)

	ai := &stubAI{result: &scoring.AIResult{
		Result:         scoring.Result{Score: 88, Reasons: []string{"Stille Lage"}, RiskFlags: []string{}, Confidence: 0.9},
		Summary:        "Ruhiges Haus",
		Recommendation: "yes",
	}}
	_, err := newTestRunner(t, st, search, ai).Run(context.Background(), RunOptions{Preset: "tyrol", Limit: 2})
	require.NoError(t, err)

	// the resort scores 0 and never reaches the model
	assert.Equal(t, 1, ai.calls)
	berghof := st.byName("Berghof")
	require.NotNil(t, berghof)
	assert.Equal(t, 88, berghof.QualityScore)
	assert.Equal(t, model.StatusMaybe, berghof.Status, "the gate sees the merged score")
	require.NotNil(t, berghof.RawData.AI)
	assert.Equal(t, "yes", berghof.RawData.AI.Recommendation)
}
