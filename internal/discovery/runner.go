package discovery

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/mathiasgse/screenfree/internal/config"
	"github.com/mathiasgse/screenfree/internal/dedup"
	"github.com/mathiasgse/screenfree/internal/lock"
	"github.com/mathiasgse/screenfree/internal/model"
	"github.com/mathiasgse/screenfree/internal/resilience"
	"github.com/mathiasgse/screenfree/internal/rubric"
	"github.com/mathiasgse/screenfree/internal/scoring"
	"github.com/mathiasgse/screenfree/internal/store"
	"github.com/mathiasgse/screenfree/pkg/serper"
)

// RunOptions selects what a discovery run searches.
type RunOptions struct {
	Preset  string
	Country string
	Limit   int
	// DryRun scores candidates without writing them.
	DryRun bool
}

// Settings tunes a Runner.
type Settings struct {
	ResultsPerQuery  int
	MaxQueries       int
	AIScoreThreshold int
	EnrichmentDelay  time.Duration
	SearchRate       rate.Limit
	SearchRetry      resilience.RetryConfig
}

// SettingsFromConfig derives runner settings from the loaded configuration.
func SettingsFromConfig(cfg *config.Config) Settings {
	retry := resilience.DefaultRetryConfig()
	retry.MaxAttempts = max(cfg.Serper.Retries, 1)
	retry.OnRetry = resilience.RetryLogger("serper", "search")
	return Settings{
		ResultsPerQuery:  cfg.Serper.ResultsPerQuery,
		MaxQueries:       cfg.Discovery.MaxQueries,
		AIScoreThreshold: cfg.Discovery.AIScoreThreshold,
		EnrichmentDelay:  time.Duration(cfg.Discovery.EnrichmentDelayMs) * time.Millisecond,
		SearchRate:       rate.Limit(cfg.Serper.RatePerSec),
		SearchRetry:      retry,
	}
}

// Deps are the collaborators of a Runner. AI and Locker are optional.
type Deps struct {
	Catalog  *rubric.Catalog
	Store    store.Store
	Search   serper.Client
	Enricher Enricher
	AI       AIReviewer
	Locker   lock.Locker
}

// Runner executes discovery runs.
type Runner struct {
	cat      *rubric.Catalog
	store    store.Store
	search   serper.Client
	enricher Enricher
	ai       AIReviewer
	locker   lock.Locker
	scorer   *scoring.Scorer
	limiter  *rate.Limiter
	settings Settings

	wg sync.WaitGroup
}

// NewRunner creates a Runner.
func NewRunner(d Deps, s Settings) *Runner {
	if s.ResultsPerQuery <= 0 {
		s.ResultsPerQuery = 10
	}
	if s.MaxQueries <= 0 {
		s.MaxQueries = 50
	}
	if s.AIScoreThreshold <= 0 {
		s.AIScoreThreshold = d.Catalog.Thresholds.AIScore
	}
	if s.SearchRate <= 0 {
		s.SearchRate = 5
	}
	if s.SearchRetry.MaxAttempts <= 0 {
		s.SearchRetry = resilience.DefaultRetryConfig()
	}
	locker := d.Locker
	if locker == nil {
		locker = lock.Noop{}
	}
	return &Runner{
		cat:      d.Catalog,
		store:    d.Store,
		search:   d.Search,
		enricher: d.Enricher,
		ai:       d.AI,
		locker:   locker,
		scorer:   scoring.NewScorer(d.Catalog),
		limiter:  rate.NewLimiter(s.SearchRate, 1),
		settings: s,
	}
}

// Run executes a discovery run in the foreground. Unless DryRun is set the
// run is recorded in the store.
func (r *Runner) Run(ctx context.Context, opts RunOptions) (model.RunStats, error) {
	presets, err := ResolvePresets(r.cat, opts.Preset, opts.Country)
	if err != nil {
		return model.RunStats{}, err
	}

	runID := ""
	if !opts.DryRun {
		run, err := r.store.CreateRun(ctx, RunLabel(r.cat, opts.Preset, opts.Country), "", opts.Country)
		if err != nil {
			return model.RunStats{}, eris.Wrap(err, "discovery: create run")
		}
		runID = run.ID
	}
	return r.execute(ctx, runID, presets, opts)
}

// Start validates opts, records a run and executes it in the background.
// It returns the run id for polling. The run outlives ctx's cancellation.
func (r *Runner) Start(ctx context.Context, opts RunOptions) (string, error) {
	presets, err := ResolvePresets(r.cat, opts.Preset, opts.Country)
	if err != nil {
		return "", err
	}
	run, err := r.store.CreateRun(ctx, RunLabel(r.cat, opts.Preset, opts.Country), "", opts.Country)
	if err != nil {
		return "", eris.Wrap(err, "discovery: create run")
	}

	bg := context.WithoutCancel(ctx)
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		_, _ = r.execute(bg, run.ID, presets, opts)
	}()
	return run.ID, nil
}

// Wait blocks until every run started with Start has finished.
func (r *Runner) Wait() {
	r.wg.Wait()
}

// hit is a search result tagged with the query that found it.
type hit struct {
	serper.Result
	Region string
	Query  string
}

// execute runs the pipeline and always leaves a recorded run terminal.
func (r *Runner) execute(ctx context.Context, runID string, presets []rubric.RegionPreset, opts RunOptions) (stats model.RunStats, err error) {
	log := zap.L().With(zap.String("run_id", runID), zap.Bool("dry_run", opts.DryRun))

	defer func() {
		if p := recover(); p != nil {
			err = eris.Errorf("discovery: panic: %v", p)
		}
		if err == nil {
			return
		}
		log.Error("discovery run failed", zap.Error(err))
		if runID == "" {
			return
		}
		if ferr := r.store.FailRun(context.WithoutCancel(ctx), runID, err.Error(), stats); ferr != nil {
			log.Error("discovery: record run failure", zap.Error(ferr))
		}
	}()

	stats, err = r.pipeline(ctx, log, runID, presets, opts)
	return stats, err
}

func (r *Runner) pipeline(ctx context.Context, log *zap.Logger, runID string, presets []rubric.RegionPreset, opts RunOptions) (model.RunStats, error) {
	var stats model.RunStats
	limit := opts.Limit
	if limit <= 0 {
		limit = 100
	}

	labels := make([]string, len(presets))
	for i, p := range presets {
		labels[i] = p.Label
	}
	log.Info("using presets", zap.Int("count", len(presets)), zap.Strings("presets", labels))

	queries := BuildQueries(presets, r.cat.QueryTemplates, min(limit*2, r.settings.MaxQueries))
	log.Info("built search queries", zap.Int("count", len(queries)))

	r.progress(ctx, runID, model.RunProgress{Phase: model.PhaseSearching, Total: len(queries)}, stats)

	var hits []hit
	for i, q := range queries {
		results, err := r.searchOne(ctx, q)
		if err != nil {
			if ctx.Err() != nil {
				return stats, eris.Wrap(ctx.Err(), "discovery: search")
			}
			log.Warn("search failed", zap.String("query", q.Text), zap.Error(err))
			stats.ErrorCount++
		}
		for _, res := range results {
			hits = append(hits, hit{Result: res, Region: q.Region, Query: q.Text})
		}
		if checkpoint(i, len(queries)) {
			r.progress(ctx, runID, model.RunProgress{Phase: model.PhaseSearching, Processed: i + 1, Total: len(queries)}, stats)
		}
	}
	log.Info("search complete", zap.Int("raw_results", len(hits)))

	hits = dedup.ByDomain(hits)
	if len(hits) > limit {
		hits = hits[:limit]
	}
	stats.CandidatesFound = len(hits)
	log.Info("processing candidates", zap.Int("count", len(hits)), zap.Int("limit", limit))

	r.progress(ctx, runID, model.RunProgress{Phase: model.PhaseProcessing, Total: len(hits)}, stats)

	for i, h := range hits {
		clog := log.With(zap.String("candidate", h.Title), zap.String("progress", fmt.Sprintf("%d/%d", i+1, len(hits))))
		if err := r.processOne(ctx, clog, runID, h, opts.DryRun, &stats); err != nil {
			clog.Warn("candidate failed", zap.Error(err))
			stats.ErrorCount++
		}

		if checkpoint(i, len(hits)) {
			r.progress(ctx, runID, model.RunProgress{Phase: model.PhaseProcessing, Processed: i + 1, Total: len(hits)}, stats)
		}
		if i < len(hits)-1 {
			if err := pause(ctx, r.settings.EnrichmentDelay); err != nil {
				return stats, eris.Wrap(err, "discovery: processing")
			}
		}
	}

	if runID != "" {
		final := model.RunProgress{Phase: model.PhaseFinalizing, Processed: len(hits), Total: len(hits)}
		if err := r.store.CompleteRun(ctx, runID, final, stats); err != nil {
			log.Error("discovery: complete run", zap.Error(err))
		}
	}
	log.Info("discovery run complete",
		zap.Int("candidates_found", stats.CandidatesFound),
		zap.Int("new_candidates", stats.NewCandidates),
		zap.Int("duplicates_skipped", stats.DuplicatesSkipped),
		zap.Int("errors", stats.ErrorCount),
	)
	return stats, nil
}

// searchOne runs one query through the rate limiter with retries on
// transient failures.
func (r *Runner) searchOne(ctx context.Context, q Query) ([]serper.Result, error) {
	return resilience.DoVal(ctx, r.settings.SearchRetry, func(ctx context.Context) ([]serper.Result, error) {
		if err := r.limiter.Wait(ctx); err != nil {
			return nil, eris.Wrap(err, "discovery: search rate limit")
		}
		return r.search.Search(ctx, q.Text, q.Country, r.settings.ResultsPerQuery)
	})
}

func (r *Runner) processOne(ctx context.Context, log *zap.Logger, runID string, h hit, dryRun bool, stats *model.RunStats) error {
	e := r.enricher.Enrich(ctx, h.Link)
	if e.FetchError != "" {
		log.Debug("fetch warning", zap.String("fetch_error", e.FetchError))
	}

	scored := r.scorer.Score(h.Result, e)
	var verdict *model.AIVerdict
	if r.ai != nil && scored.Score >= r.settings.AIScoreThreshold {
		subject := scoring.Subject{
			Name:        h.Title,
			WebsiteURL:  h.Link,
			Snippet:     h.Snippet,
			RegionGuess: h.Region,
			Rating:      h.Rating,
			ReviewCount: h.RatingCount,
			Scored:      scored,
		}
		if res, ok := r.ai.Score(ctx, subject, e); ok {
			scored = res.Result
			verdict = &model.AIVerdict{Summary: res.Summary, Recommendation: res.Recommendation}
			log.Debug("ai verdict", zap.Int("score", res.Score), zap.String("recommendation", res.Recommendation))
		}
	}
	gate := scoring.Gate(scored.Score, r.cat.Thresholds)
	log.Info("scored",
		zap.Int("score", scored.Score),
		zap.Float64("confidence", scored.Confidence),
		zap.String("gate", string(gate.Action)),
	)

	c := &model.Candidate{
		Name:         h.Title,
		WebsiteURL:   h.Link,
		ContactEmail: e.ContactEmail,
		Snippet:      h.Snippet,
		Coordinates:  e.Coordinates,
		RegionGuess:  h.Region,
		Source:       h.Query,
		QualityScore: scored.Score,
		Reasons:      scored.Reasons,
		RiskFlags:    scored.RiskFlags,
		Confidence:   scored.Confidence,
		RatingValue:  h.Rating,
		ReviewCount:  h.RatingCount,
		Images:       e.Images,
		RawData: model.RawData{
			Kind:         model.RawSearch,
			Search:       &model.SearchOrigin{Query: h.Query, Position: h.Position},
			Enrichment:   e.Summary(),
			AI:           verdict,
			AutoRejected: gate.Action == scoring.GateAutoReject,
		},
		DedupeKey: dedup.DedupeKey(h.Link, h.Title),
	}

	if dryRun {
		log.Info("dry run: would upsert", zap.String("dedupe_key", c.DedupeKey))
		stats.NewCandidates++
		return nil
	}

	flagPossibleDuplicate(ctx, r.store, c)
	outcome, err := Upsert(ctx, r.store, r.locker, c, runID)
	if err != nil {
		return err
	}
	log.Debug("upserted", zap.String("result", string(outcome)))

	switch outcome {
	case Created:
		stats.NewCandidates++
	case Skipped:
		stats.DuplicatesSkipped++
	}
	if outcome != Created {
		return nil
	}

	// Gate decisions only apply to fresh candidates. The candidate is already
	// stored, so a failed status write leaves it pending and is not a run error.
	var u store.StatusUpdate
	switch gate.Action {
	case scoring.GateAutoReject:
		u = store.StatusUpdate{Status: model.StatusRejected, RejectionReason: gate.Reason}
	case scoring.GateAutoPromote:
		u = store.StatusUpdate{Status: model.StatusMaybe}
	default:
		return nil
	}
	if err := r.store.SetCandidateStatus(ctx, c.ID, u); err != nil {
		log.Warn("gate status not applied", zap.String("candidate_id", c.ID), zap.String("status", string(u.Status)), zap.Error(err))
	}
	return nil
}

// progress writes a checkpoint. Failures are logged and ignored.
func (r *Runner) progress(ctx context.Context, runID string, p model.RunProgress, stats model.RunStats) {
	writeProgress(ctx, r.store, runID, p, stats)
}

func writeProgress(ctx context.Context, st store.Store, runID string, p model.RunProgress, stats model.RunStats) {
	if runID == "" {
		return
	}
	if err := st.UpdateRunProgress(ctx, runID, p, stats); err != nil {
		zap.L().Warn("discovery: update progress", zap.String("run_id", runID), zap.Error(err))
	}
}
