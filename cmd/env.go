package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/mathiasgse/screenfree/internal/discovery"
	"github.com/mathiasgse/screenfree/internal/enrich"
	"github.com/mathiasgse/screenfree/internal/fetcher"
	"github.com/mathiasgse/screenfree/internal/lock"
	"github.com/mathiasgse/screenfree/internal/platform"
	"github.com/mathiasgse/screenfree/internal/resilience"
	"github.com/mathiasgse/screenfree/internal/rubric"
	"github.com/mathiasgse/screenfree/internal/scoring"
	"github.com/mathiasgse/screenfree/internal/store"
	"github.com/mathiasgse/screenfree/pkg/anthropic"
	"github.com/mathiasgse/screenfree/pkg/serper"
)

// appEnv holds the store and everything built on it for one command.
type appEnv struct {
	Catalog  *rubric.Catalog
	Store    store.Store
	Runner   *discovery.Runner
	Scraper  *discovery.ScrapeRunner
	Reviewer *discovery.Reviewer
	Breakers *resilience.ServiceBreakers

	closers []func()
}

// Close releases resources in reverse order of acquisition.
func (e *appEnv) Close() {
	for i := len(e.closers) - 1; i >= 0; i-- {
		e.closers[i]()
	}
}

// initStore opens the configured store and applies the schema.
func initStore(ctx context.Context) (store.Store, error) {
	st, err := store.Open(ctx, cfg.Store)
	if err != nil {
		return nil, eris.Wrap(err, "open store")
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}
	return st, nil
}

// initEnv validates the config for mode and builds the pipeline. Search and
// AI clients are only created for modes that run discovery. Callers should
// defer env.Close().
func initEnv(ctx context.Context, mode string) (*appEnv, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}

	cat, err := rubric.LoadFile(cfg.Discovery.RubricPath)
	if err != nil {
		return nil, err
	}

	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	env := &appEnv{Catalog: cat, Store: st, Reviewer: discovery.NewReviewer(st)}
	env.closers = append(env.closers, func() { _ = st.Close() })

	if mode == "review" || mode == "migrate" {
		return env, nil
	}

	locker, err := initLocker(ctx, env)
	if err != nil {
		env.Close()
		return nil, err
	}

	f := enrich.NewFetcher(cfg.Discovery.UserAgent,
		time.Duration(cfg.Discovery.EnrichmentTimeoutSecs)*time.Second)
	enricher := enrich.New(cat, f)

	browser := platform.NewBrowserFetcher(fetcher.HTTPOptions{
		UserAgent:  cfg.Discovery.ScraperUserAgent,
		Timeout:    time.Duration(cfg.Discovery.EnrichmentTimeoutSecs) * time.Second,
		MaxRetries: 2,
	})
	registry := platform.NewRegistry(
		platform.NewHuettenCom(browser),
		platform.NewHuettenland(browser, ""),
	)
	env.Scraper = discovery.NewScrapeRunner(st, registry, enricher, locker,
		time.Duration(cfg.Discovery.ScrapeDelayMs)*time.Millisecond)

	if mode == "scrape" {
		return env, nil
	}

	search := serper.NewClient(cfg.Serper.Key,
		serper.WithBaseURL(cfg.Serper.BaseURL),
		serper.WithLanguage(cfg.Serper.CountryLanguage),
	)

	deps := discovery.Deps{
		Catalog:  cat,
		Store:    st,
		Search:   search,
		Enricher: enricher,
		Locker:   locker,
	}
	if ai := initAIScorer(env); ai != nil {
		deps.AI = ai
	}
	env.Runner = discovery.NewRunner(deps, discovery.SettingsFromConfig(cfg))
	return env, nil
}

// initLocker connects to Redis when configured and falls back to a no-op
// lock for single-process use.
func initLocker(ctx context.Context, env *appEnv) (lock.Locker, error) {
	if cfg.Redis.URL == "" {
		zap.L().Debug("redis not configured, upserts are not locked across processes")
		return lock.Noop{}, nil
	}
	client, err := lock.Connect(ctx, cfg.Redis.URL)
	if err != nil {
		return nil, err
	}
	env.closers = append(env.closers, func() { _ = client.Close() })
	return lock.NewRedis(client, time.Duration(cfg.Redis.LockTTLSecs)*time.Second), nil
}

// initAIScorer returns nil when no Anthropic key is configured.
func initAIScorer(env *appEnv) *scoring.AIScorer {
	if cfg.Anthropic.Key == "" {
		zap.L().Info("anthropic key not set, AI scoring disabled")
		return nil
	}
	var opts []anthropic.Option
	if cfg.Anthropic.BaseURL != "" {
		opts = append(opts, anthropic.WithBaseURL(cfg.Anthropic.BaseURL))
	}
	client := anthropic.NewClient(cfg.Anthropic.Key, opts...)
	env.Breakers = resilience.NewServiceBreakers(resilience.DefaultCircuitBreakerConfig())
	breaker := env.Breakers.Get("anthropic")
	return scoring.NewAIScorer(client, scoring.AIConfig{
		Model:       cfg.Anthropic.Model,
		MaxTokens:   int64(cfg.Anthropic.MaxTokens),
		Temperature: cfg.Anthropic.Temperature,
	}, breaker)
}
