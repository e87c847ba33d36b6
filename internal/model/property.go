package model

import "time"

// Property represents one real-estate project tracked in approved_projects.
// Identity is either the opaque ID or the (ProjectName, City) natural key
// when no ID has been assigned yet.
type Property struct {
	ID             string `json:"id,omitempty"`
	ProjectName    string `json:"project_name"`
	PropertyType   string `json:"property_type,omitempty"`
	BuilderName    string `json:"builder_name,omitempty"`
	City           string `json:"city,omitempty"`
	ApprovalStatus string `json:"approval_status,omitempty"`
	Source         string `json:"source,omitempty"`

	MagicbricksURL   string `json:"magicbricks_url,omitempty"`
	MagicbricksPrice string `json:"magicbricks_price,omitempty"`
	NobrokerURL      string `json:"nobroker_url,omitempty"`
	NobrokerPrice    string `json:"nobroker_price,omitempty"`
	Acres99URL       string `json:"acres99_url,omitempty"`
	Acres99Price     string `json:"acres99_price,omitempty"`
	HousingURL       string `json:"housing_url,omitempty"`
	HousingPrice     string `json:"housing_price,omitempty"`
	GooglePrice      string `json:"google_price,omitempty"`

	// Lenders holds resolved canonical lender names. Raw extracted strings
	// never reach this field; resolution happens before assignment.
	Lenders []string `json:"lenders,omitempty"`

	CreatedAt     time.Time `json:"created_at,omitempty"`
	UpdatedAt     time.Time `json:"updated_at,omitempty"`
	LastScrapedAt time.Time `json:"last_scraped_at,omitempty"`
}

// ProjectRef is the minimal identity of a property row, used by batch
// candidate selection and single refreshes.
type ProjectRef struct {
	ID          string `json:"id"`
	ProjectName string `json:"project_name"`
	City        string `json:"city,omitempty"`
}

// Listing platform source names. The column spelling for 99acres differs
// from the source name because identifiers cannot start with a digit.
// SourceName marks rows written by the search pipeline.
const SourceName = "Gemini"

// Approval status values derived from resolved lenders.
const (
	ApprovalApproved    = "Approved"
	ApprovalNotApproved = "Not Approved"
)

const (
	SourceMagicbricks = "magicbricks"
	SourceNobroker    = "nobroker"
	Source99Acres     = "99acres"
	SourceHousing     = "housing"
	SourceGoogle      = "google"
)

// PriceColumns maps a price source name to its approved_projects column.
var PriceColumns = map[string]string{
	SourceMagicbricks: "magicbricks_price",
	SourceNobroker:    "nobroker_price",
	Source99Acres:     "acres99_price",
	SourceHousing:     "housing_price",
	SourceGoogle:      "google_price",
}

// AllPriceSources returns the full allowed source set in stable order.
func AllPriceSources() []string {
	return []string{Source99Acres, SourceGoogle, SourceHousing, SourceMagicbricks, SourceNobroker}
}

// FilterPriceSources intersects requested with the allowed source set,
// deduplicating and preserving stable order. An empty request means all
// sources.
func FilterPriceSources(requested []string) []string {
	if len(requested) == 0 {
		return AllPriceSources()
	}
	want := make(map[string]bool, len(requested))
	for _, s := range requested {
		want[s] = true
	}
	var out []string
	for _, s := range AllPriceSources() {
		if want[s] {
			out = append(out, s)
		}
	}
	return out
}
