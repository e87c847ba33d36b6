package main

import (
	"context"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/sniffer-group/propintel-cli/internal/pipeline"
	"github.com/sniffer-group/propintel-cli/internal/resilience"
	"github.com/sniffer-group/propintel-cli/internal/store"
	"github.com/sniffer-group/propintel-cli/pkg/anthropic"
	"github.com/sniffer-group/propintel-cli/pkg/gemini"
)

// pipelineEnv holds the initialized store and pipeline shared by the
// discover/refresh/batch/lenders/serve commands.
type pipelineEnv struct {
	Store    store.Store
	Pipeline *pipeline.Pipeline
	Breakers *resilience.ServiceBreakers
}

// Close releases resources held by the pipeline environment.
func (pe *pipelineEnv) Close() {
	if pe.Store != nil {
		_ = pe.Store.Close()
	}
}

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "propintel.db"
		}
		return store.NewSQLite(dsn)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, nil)
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

// initPipeline sets up the store, provider clients, and the pipeline.
// Callers should defer env.Close().
func initPipeline(ctx context.Context) (*pipelineEnv, error) {
	if err := cfg.Validate("pipeline"); err != nil {
		return nil, err
	}

	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}

	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	// One shared limiter so single and bulk paths draw from the same
	// client-side quota budget.
	limiter := rate.NewLimiter(rate.Limit(cfg.Gemini.QPS), 1)
	geminiOpts := func(model string) []gemini.Option {
		return []gemini.Option{
			gemini.WithBaseURL(cfg.Gemini.BaseURL),
			gemini.WithModel(model),
			gemini.WithLimiter(limiter),
		}
	}

	var fallback gemini.Client
	if cfg.Gemini.FallbackKey != "" {
		fallback = gemini.NewClient(cfg.Gemini.FallbackKey, geminiOpts(cfg.Gemini.Model)...)
	}

	retry := resilience.FromRetryConfig(
		cfg.Retry.MaxAttempts,
		cfg.Retry.InitialBackoffMs,
		cfg.Retry.MaxBackoffMs,
		cfg.Retry.Multiplier,
		cfg.Retry.JitterFraction,
	)

	breakers := resilience.NewServiceBreakers(resilience.DefaultCircuitBreakerConfig())

	single := pipeline.NewSearcher(
		gemini.NewClient(cfg.Gemini.Key, geminiOpts(cfg.Gemini.Model)...),
		fallback, cfg.Gemini.Model, retry,
	).UseBreaker(breakers.Get("gemini_single"))

	// Bulk runs burn quota fast, so they get their own key and a cheaper
	// model when configured.
	bulkKey := cfg.Gemini.MultiKey
	if bulkKey == "" {
		bulkKey = cfg.Gemini.Key
	}
	bulk := pipeline.NewSearcher(
		gemini.NewClient(bulkKey, geminiOpts(cfg.Gemini.MultiModel)...),
		fallback, cfg.Gemini.MultiModel, retry,
	).UseBreaker(breakers.Get("gemini_bulk"))

	extractor := pipeline.NewExtractor(anthropic.NewClient(cfg.Anthropic.Key), cfg.Anthropic.Model, retry)
	resolver := pipeline.NewResolver(cfg.Pipeline.LenderCutoff)

	queries, err := pipeline.LoadQueries(cfg.Pipeline.SourcesFile)
	if err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "load source queries")
	}

	p := pipeline.New(single, bulk, extractor, resolver, st, queries)

	return &pipelineEnv{Store: st, Pipeline: p, Breakers: breakers}, nil
}
