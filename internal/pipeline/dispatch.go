package pipeline

import (
	"context"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sniffer-group/propintel-cli/internal/resilience"
	"github.com/sniffer-group/propintel-cli/pkg/gemini"
)

// maxSearchConcurrency caps concurrent Gemini queries within one dispatch.
const maxSearchConcurrency = 5

// Searcher runs grounded Gemini queries with retry, a circuit breaker, and
// quota fallback. The primary client carries the path-specific API key;
// fallback (optional) takes over when the primary's quota is exhausted.
type Searcher struct {
	primary  gemini.Client
	fallback gemini.Client
	model    string
	retry    resilience.RetryConfig
	breaker  *resilience.CircuitBreaker
}

// NewSearcher creates a Searcher. fallback may be nil.
func NewSearcher(primary, fallback gemini.Client, model string, retry resilience.RetryConfig) *Searcher {
	return &Searcher{
		primary:  primary,
		fallback: fallback,
		model:    model,
		retry:    retry,
		breaker:  resilience.NewCircuitBreaker(resilience.DefaultCircuitBreakerConfig()),
	}
}

// UseBreaker replaces the searcher's circuit breaker so callers can hand
// out breakers from a shared registry and observe their states.
func (s *Searcher) UseBreaker(cb *resilience.CircuitBreaker) *Searcher {
	s.breaker = cb
	return s
}

// Search runs a single grounded query and returns the answer text.
func (s *Searcher) Search(ctx context.Context, key, prompt string) (string, error) {
	text, err := s.searchWith(ctx, s.primary, key, prompt)
	if err != nil && s.fallback != nil && resilience.IsQuotaExhausted(err) {
		zap.L().Warn("gemini quota exhausted, switching to fallback key",
			zap.String("query", key))
		return s.searchWith(ctx, s.fallback, key, prompt)
	}
	return text, err
}

func (s *Searcher) searchWith(ctx context.Context, client gemini.Client, key, prompt string) (string, error) {
	req := gemini.GenerateContentRequest{
		Model:    s.model,
		Contents: []gemini.Content{{Role: "user", Parts: []gemini.Part{{Text: prompt}}}},
		Tools:    []gemini.Tool{{GoogleSearch: &gemini.GoogleSearch{}}},
	}

	cfg := s.retry
	cfg.OnRetry = resilience.RetryLogger("gemini", key)

	resp, err := resilience.DoVal(ctx, cfg, func(ctx context.Context) (*gemini.GenerateContentResponse, error) {
		return resilience.ExecuteVal(ctx, s.breaker, func(ctx context.Context) (*gemini.GenerateContentResponse, error) {
			return client.GenerateContent(ctx, req)
		})
	})
	if err != nil {
		return "", err
	}
	return resp.Text(), nil
}

// SourceAnswers maps a query key to the raw answer text.
type SourceAnswers map[string]string

// Dispatch renders and runs one query per key concurrently. Answers are
// collected per key; failures do not abort the other queries and are
// returned separately.
func (s *Searcher) Dispatch(ctx context.Context, queries map[string]string, keys []string, projectName, city string) (SourceAnswers, map[string]error) {
	answers := make(SourceAnswers, len(keys))
	failures := make(map[string]error)
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxSearchConcurrency)

	for _, key := range keys {
		tmpl, ok := queries[key]
		if !ok {
			continue
		}
		g.Go(func() error {
			text, err := s.Search(gctx, key, RenderQuery(tmpl, projectName, city))

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				zap.L().Warn("search query failed",
					zap.String("query", key),
					zap.String("project", projectName),
					zap.Error(err))
				failures[key] = err
				return nil
			}
			if text != "" {
				answers[key] = text
			}
			return nil
		})
	}

	_ = g.Wait()
	return answers, failures
}
