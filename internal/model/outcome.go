package model

// Status classifies the outcome of one entity refresh.
type Status string

const (
	// StatusSuccess means the record was refreshed and persisted.
	StatusSuccess Status = "success"
	// StatusNotFound means the entity was absent: either no property
	// matched in the sources (extraction flagged a non-match) or no row
	// matched the id on a prices-only update.
	StatusNotFound Status = "not_found"
	// StatusNoData means sources responded but nothing usable survived
	// extraction; distinct from not_found.
	StatusNoData Status = "no_data"
	// StatusError covers provider failures and local pipeline errors.
	StatusError Status = "error"
)

// RefreshOutcome is the result of one single-entity pipeline pass.
type RefreshOutcome struct {
	Status         Status    `json:"status"`
	Project        *Property `json:"project,omitempty"`
	UpdatedColumns []string  `json:"updated_columns,omitempty"`
	Message        string    `json:"message,omitempty"`
}

// BatchItemResult is the per-entity outcome of a bulk run. It exists only
// for the duration of the batch response.
type BatchItemResult struct {
	ID             string   `json:"id"`
	ProjectName    string   `json:"project_name"`
	City           string   `json:"city,omitempty"`
	Status         Status   `json:"status"`
	UpdatedColumns []string `json:"updated_columns"`
	Message        string   `json:"message"`
}

// BatchSummary aggregates a bulk run: counts plus every item result.
// Processed == Succeeded + Failed always holds.
type BatchSummary struct {
	TableName     string            `json:"table_name"`
	TotalSelected int               `json:"total_selected"`
	Processed     int               `json:"processed"`
	Succeeded     int               `json:"succeeded"`
	Failed        int               `json:"failed"`
	Results       []BatchItemResult `json:"results"`
}
