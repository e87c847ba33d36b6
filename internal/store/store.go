package store

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sniffer-group/propintel-cli/internal/model"
)

// ErrNotFound is returned when an update or lookup targets a row that does
// not exist. Callers distinguish it from provider errors with eris.Is.
var ErrNotFound = eris.New("store: not found")

// StaleFilter selects projects whose research has gone stale.
type StaleFilter struct {
	// Days is the staleness horizon: rows updated within the last Days
	// days are excluded. Rows never updated always qualify.
	Days int
	// Cities restricts selection to the given cities (case-insensitive).
	// Empty means all cities.
	Cities []string
	// Limit caps the number of selected rows. Zero means no cap.
	Limit int
}

// Store defines the persistence interface for the property intelligence
// pipeline.
type Store interface {
	// Projects
	GetProject(ctx context.Context, id string) (*model.Property, error)
	FindProject(ctx context.Context, projectName, city string) (*model.Property, error)
	InsertProject(ctx context.Context, p *model.Property) error
	UpdateProjectResearch(ctx context.Context, p *model.Property) error
	UpdateProjectPrices(ctx context.Context, id string, columns map[string]string) error
	SelectStaleProjects(ctx context.Context, f StaleFilter) ([]model.ProjectRef, error)
	LinkLenders(ctx context.Context, projectID string, lenderIDs []string) error

	// Lenders
	FetchLenders(ctx context.Context) ([]model.Lender, error)
	InsertLender(ctx context.Context, l *model.Lender) error
	SelectStaleLenders(ctx context.Context, days, limit int) ([]model.Lender, error)
	UpdateLenderTerms(ctx context.Context, l *model.Lender) error

	// Lifecycle
	Ping(ctx context.Context) error
	Migrate(ctx context.Context) error
	Close() error
}

var (
	_ Store = (*PostgresStore)(nil)
	_ Store = (*SQLiteStore)(nil)
)

// validatePriceColumns rejects any column not in the known price column
// set. Column names reach SQL as identifiers, so this is the only gate
// between request input and the generated statement.
func validatePriceColumns(columns map[string]string) error {
	allowed := make(map[string]bool, len(model.PriceColumns))
	for _, col := range model.PriceColumns {
		allowed[col] = true
	}
	for col := range columns {
		if !allowed[col] {
			return eris.Errorf("store: unknown price column %q", col)
		}
	}
	return nil
}

func strVal(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func intVal(n *int) int {
	if n == nil {
		return 0
	}
	return *n
}

func int64Val(n *int64) int64 {
	if n == nil {
		return 0
	}
	return *n
}

func timeVal(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return *t
}
