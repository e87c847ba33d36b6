package main

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/sniffer-group/propintel-cli/internal/config"
	"github.com/sniffer-group/propintel-cli/internal/model"
	"github.com/sniffer-group/propintel-cli/internal/pipeline"
	"github.com/sniffer-group/propintel-cli/internal/resilience"
	"github.com/sniffer-group/propintel-cli/internal/store"
)

// propertyService is the pipeline surface the HTTP API drives.
type propertyService interface {
	ResearchProperty(ctx context.Context, projectName, city string) (*pipeline.ResearchOutcome, error)
	BulkRefreshPrices(ctx context.Context, f store.StaleFilter, sources []string, concurrency int) (*model.BatchSummary, error)
}

// bulkTables is the allow-list for the bulk endpoint's table_name field.
// The request names a table so the API shape can grow to other entity
// tables, but only approved_projects is served today.
var bulkTables = map[string]bool{
	"approved_projects": true,
}

type propertyPriceRequest struct {
	ProjectName string `json:"project_name"`
	City        string `json:"city"`
}

type bulkPriceUpdateRequest struct {
	TableName   string   `json:"table_name"`
	Days        int      `json:"days"`
	Cities      []string `json:"cities"`
	Limit       int      `json:"limit"`
	Sources     []string `json:"sources"`
	Concurrency int      `json:"concurrency"`
}

func newRouter(svc propertyService, batchCfg config.BatchConfig, breakers *resilience.ServiceBreakers) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		body := map[string]any{"status": "ok"}
		if breakers != nil {
			circuits := make(map[string]string)
			for name, state := range breakers.States() {
				circuits[name] = state.String()
			}
			body["circuits"] = circuits
		}
		writeJSON(w, http.StatusOK, body)
	})

	r.Post("/ai/property_price", func(w http.ResponseWriter, req *http.Request) {
		var body propertyPriceRequest
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		body.ProjectName = strings.TrimSpace(body.ProjectName)
		body.City = strings.TrimSpace(body.City)
		if body.ProjectName == "" || body.City == "" {
			writeError(w, http.StatusBadRequest, "project_name and city are required")
			return
		}

		out, err := svc.ResearchProperty(req.Context(), body.ProjectName, body.City)
		if err != nil {
			zap.L().Error("property price research failed",
				zap.String("project", body.ProjectName),
				zap.String("city", body.City),
				zap.Error(err),
			)
			writeError(w, http.StatusInternalServerError, "research failed")
			return
		}

		code := http.StatusOK
		if out.Status == model.StatusNotFound {
			code = http.StatusNotFound
		}
		writeJSON(w, code, out)
	})

	r.Post("/ai/property_prices/update-prices-only-bulk", func(w http.ResponseWriter, req *http.Request) {
		var body bulkPriceUpdateRequest
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		if body.TableName == "" {
			body.TableName = "approved_projects"
		}
		if !bulkTables[body.TableName] {
			writeError(w, http.StatusBadRequest, "unknown table_name "+body.TableName)
			return
		}
		for _, s := range body.Sources {
			if _, ok := model.PriceColumns[s]; !ok {
				writeError(w, http.StatusBadRequest, "unknown source "+s)
				return
			}
		}

		if body.Days <= 0 {
			body.Days = batchCfg.StaleDays
		}
		if body.Limit <= 0 {
			body.Limit = batchCfg.Limit
		}
		if body.Concurrency <= 0 {
			body.Concurrency = batchCfg.MaxConcurrentProjects
		}

		summary, err := svc.BulkRefreshPrices(req.Context(), store.StaleFilter{
			Days:   body.Days,
			Cities: body.Cities,
			Limit:  body.Limit,
		}, body.Sources, body.Concurrency)
		if err != nil {
			zap.L().Error("bulk price refresh failed", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "bulk refresh failed")
			return
		}

		writeJSON(w, http.StatusOK, summary)
	})

	return r
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
