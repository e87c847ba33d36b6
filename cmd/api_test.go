package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sniffer-group/propintel-cli/internal/config"
	"github.com/sniffer-group/propintel-cli/internal/model"
	"github.com/sniffer-group/propintel-cli/internal/pipeline"
	"github.com/sniffer-group/propintel-cli/internal/resilience"
	"github.com/sniffer-group/propintel-cli/internal/store"
)

type stubService struct {
	research func(ctx context.Context, projectName, city string) (*pipeline.ResearchOutcome, error)
	bulk     func(ctx context.Context, f store.StaleFilter, sources []string, concurrency int) (*model.BatchSummary, error)

	lastFilter      store.StaleFilter
	lastSources     []string
	lastConcurrency int
}

func (s *stubService) ResearchProperty(ctx context.Context, projectName, city string) (*pipeline.ResearchOutcome, error) {
	return s.research(ctx, projectName, city)
}

func (s *stubService) BulkRefreshPrices(ctx context.Context, f store.StaleFilter, sources []string, concurrency int) (*model.BatchSummary, error) {
	s.lastFilter = f
	s.lastSources = sources
	s.lastConcurrency = concurrency
	return s.bulk(ctx, f, sources, concurrency)
}

func testBatchConfig() config.BatchConfig {
	return config.BatchConfig{MaxConcurrentProjects: 5, StaleDays: 30, Limit: 100}
}

func doJSON(t *testing.T, handler http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	r := newRouter(&stubService{}, testBatchConfig(), nil)
	rec := doJSON(t, r, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestHealth_ReportsCircuitStates(t *testing.T) {
	breakers := resilience.NewServiceBreakers(resilience.DefaultCircuitBreakerConfig())
	breakers.Get("gemini_single")
	r := newRouter(&stubService{}, testBatchConfig(), breakers)

	rec := doJSON(t, r, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok","circuits":{"gemini_single":"closed"}}`, rec.Body.String())
}

func TestPropertyPrice_Success(t *testing.T) {
	svc := &stubService{
		research: func(_ context.Context, projectName, city string) (*pipeline.ResearchOutcome, error) {
			assert.Equal(t, "Lodha Park", projectName)
			assert.Equal(t, "Mumbai", city)
			return &pipeline.ResearchOutcome{
				Status:   model.StatusSuccess,
				Projects: []model.Property{{ProjectName: "Lodha Park", City: "Mumbai"}},
			}, nil
		},
	}
	r := newRouter(svc, testBatchConfig(), nil)

	rec := doJSON(t, r, http.MethodPost, "/ai/property_price", `{"project_name": " Lodha Park ", "city": " Mumbai "}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var out pipeline.ResearchOutcome
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Equal(t, model.StatusSuccess, out.Status)
	require.Len(t, out.Projects, 1)
}

func TestPropertyPrice_NotFoundIs404(t *testing.T) {
	svc := &stubService{
		research: func(context.Context, string, string) (*pipeline.ResearchOutcome, error) {
			return &pipeline.ResearchOutcome{Status: model.StatusNotFound, Message: "no matching property"}, nil
		},
	}
	r := newRouter(svc, testBatchConfig(), nil)

	rec := doJSON(t, r, http.MethodPost, "/ai/property_price", `{"project_name": "Ghost Towers", "city": "Pune"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPropertyPrice_Validation(t *testing.T) {
	r := newRouter(&stubService{}, testBatchConfig(), nil)

	rec := doJSON(t, r, http.MethodPost, "/ai/property_price", `{"city": "Mumbai"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "project_name and city are required")

	rec = doJSON(t, r, http.MethodPost, "/ai/property_price", `not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPropertyPrice_PipelineErrorIs500(t *testing.T) {
	svc := &stubService{
		research: func(context.Context, string, string) (*pipeline.ResearchOutcome, error) {
			return nil, eris.New("store: connection refused")
		},
	}
	r := newRouter(svc, testBatchConfig(), nil)

	rec := doJSON(t, r, http.MethodPost, "/ai/property_price", `{"project_name": "Lodha Park", "city": "Mumbai"}`)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	// Internal detail stays in the logs, not the response.
	assert.NotContains(t, rec.Body.String(), "connection refused")
}

func TestBulkUpdate_DefaultsAndPassthrough(t *testing.T) {
	svc := &stubService{
		bulk: func(context.Context, store.StaleFilter, []string, int) (*model.BatchSummary, error) {
			return &model.BatchSummary{
				TableName: "approved_projects", TotalSelected: 2, Processed: 2, Succeeded: 2,
				Results: []model.BatchItemResult{},
			}, nil
		},
	}
	r := newRouter(svc, testBatchConfig(), nil)

	rec := doJSON(t, r, http.MethodPost, "/ai/property_prices/update-prices-only-bulk",
		`{"cities": ["Mumbai"], "sources": ["magicbricks", "google"]}`)
	require.Equal(t, http.StatusOK, rec.Code)

	assert.Equal(t, store.StaleFilter{Days: 30, Cities: []string{"Mumbai"}, Limit: 100}, svc.lastFilter)
	assert.Equal(t, []string{"magicbricks", "google"}, svc.lastSources)
	assert.Equal(t, 5, svc.lastConcurrency)

	var summary model.BatchSummary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &summary))
	assert.Equal(t, 2, summary.Succeeded)
}

func TestBulkUpdate_ExplicitValuesWin(t *testing.T) {
	svc := &stubService{
		bulk: func(context.Context, store.StaleFilter, []string, int) (*model.BatchSummary, error) {
			return &model.BatchSummary{Results: []model.BatchItemResult{}}, nil
		},
	}
	r := newRouter(svc, testBatchConfig(), nil)

	rec := doJSON(t, r, http.MethodPost, "/ai/property_prices/update-prices-only-bulk",
		`{"table_name": "approved_projects", "days": 7, "limit": 10, "concurrency": 2}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, store.StaleFilter{Days: 7, Limit: 10}, svc.lastFilter)
	assert.Equal(t, 2, svc.lastConcurrency)
}

func TestBulkUpdate_RejectsUnknownTable(t *testing.T) {
	r := newRouter(&stubService{}, testBatchConfig(), nil)

	rec := doJSON(t, r, http.MethodPost, "/ai/property_prices/update-prices-only-bulk",
		`{"table_name": "lenders"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "unknown table_name lenders")
}

func TestBulkUpdate_RejectsUnknownSource(t *testing.T) {
	r := newRouter(&stubService{}, testBatchConfig(), nil)

	rec := doJSON(t, r, http.MethodPost, "/ai/property_prices/update-prices-only-bulk",
		`{"sources": ["zillow"]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "unknown source zillow")
}

func TestBulkUpdate_ServiceErrorIs500(t *testing.T) {
	svc := &stubService{
		bulk: func(context.Context, store.StaleFilter, []string, int) (*model.BatchSummary, error) {
			return nil, eris.New("select stale projects")
		},
	}
	r := newRouter(svc, testBatchConfig(), nil)

	rec := doJSON(t, r, http.MethodPost, "/ai/property_prices/update-prices-only-bulk", `{}`)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
