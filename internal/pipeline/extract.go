package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"

	"github.com/sniffer-group/propintel-cli/internal/model"
	"github.com/sniffer-group/propintel-cli/internal/resilience"
	"github.com/sniffer-group/propintel-cli/pkg/anthropic"
)

// extractMaxTokens bounds the structured response size.
const extractMaxTokens = 2048

// extractSystemText holds the static extraction rules. It carries no
// per-property data so it can sit behind a prompt-cache breakpoint for the
// whole of a bulk run.
const extractSystemText = `You are a property price extraction agent. Rules:
1) Parse and return ONLY valid JSON per schema. No extra text.
2) Match the property and city named in the request. If not matching, set property_found=false.
3) Lenders: capitalize names; if none valid, lenders=[].
4) Freshness: values should be the most recent for today.
5) Price: extract numeric min-max only; normalize K/L/Cr; reject phrases like "Price on request"; if missing -> "".
6) Include source URL if present; else empty string.
7) If multiple similar properties, include unique ones.`

const propertySchema = `{"property_found": <bool>, "project_name": "", "property_type": "", "builder_name": "", "city": "", "lenders": [""], "magicbricks_url": "", "magicbricks_price": "", "nobroker_url": "", "nobroker_price": "", "acres99_url": "", "acres99_price": "", "housing_url": "", "housing_price": "", "google_price": ""}`

const propertyListSchema = `{"property_found": <bool>, "properties": [{"project_name": "", "property_type": "", "builder_name": "", "city": "", "lenders": [""], "magicbricks_url": "", "magicbricks_price": "", "nobroker_url": "", "nobroker_price": "", "acres99_url": "", "acres99_price": "", "housing_url": "", "housing_price": "", "google_price": ""}]}`

const lenderSchema = `{"lender_name": "", "home_loan_roi": "", "loan_to_value": "", "min_credit_score": 0, "min_loan_amount": 0, "max_loan_amount": 0, "min_tenure_years": 0, "max_tenure_years": 0, "approval_time": "", "processing_fees": "", "special_offers": ""}`

const lenderSystemText = `You are a home loan terms extraction agent. Parse the search findings into the given JSON schema. Return ONLY valid JSON, no extra text. Use "" for missing text fields and 0 for missing numbers.`

// Extractor turns an aggregated search corpus into structured records via
// the Anthropic API.
type Extractor struct {
	client anthropic.Client
	model  string
	retry  resilience.RetryConfig
}

// NewExtractor creates an Extractor.
func NewExtractor(client anthropic.Client, model string, retry resilience.RetryConfig) *Extractor {
	return &Extractor{client: client, model: model, retry: retry}
}

// PropertyRecord mirrors the JSON the extraction model returns for one
// property.
type PropertyRecord struct {
	PropertyFound    bool     `json:"property_found"`
	ProjectName      string   `json:"project_name"`
	PropertyType     string   `json:"property_type"`
	BuilderName      string   `json:"builder_name"`
	City             string   `json:"city"`
	Lenders          []string `json:"lenders"`
	MagicbricksURL   string   `json:"magicbricks_url"`
	MagicbricksPrice string   `json:"magicbricks_price"`
	NobrokerURL      string   `json:"nobroker_url"`
	NobrokerPrice    string   `json:"nobroker_price"`
	Acres99URL       string   `json:"acres99_url"`
	Acres99Price     string   `json:"acres99_price"`
	HousingURL       string   `json:"housing_url"`
	HousingPrice     string   `json:"housing_price"`
	GooglePrice      string   `json:"google_price"`
}

// propertyList is the list-mode envelope for discovery extractions.
type propertyList struct {
	PropertyFound bool             `json:"property_found"`
	Properties    []PropertyRecord `json:"properties"`
}

// lenderRecord mirrors the JSON the extraction model returns for lender
// home-loan terms.
type lenderRecord struct {
	LenderName     string `json:"lender_name"`
	HomeLoanROI    string `json:"home_loan_roi"`
	LoanToValue    string `json:"loan_to_value"`
	MinCreditScore int    `json:"min_credit_score"`
	MinLoanAmount  int64  `json:"min_loan_amount"`
	MaxLoanAmount  int64  `json:"max_loan_amount"`
	MinTenureYears int    `json:"min_tenure_years"`
	MaxTenureYears int    `json:"max_tenure_years"`
	ApprovalTime   string `json:"approval_time"`
	ProcessingFees string `json:"processing_fees"`
	SpecialOffers  string `json:"special_offers"`
}

// titleValue title-cases a scalar value. URLs and empty strings pass
// through unchanged, matching how records are stored.
func titleValue(s string) string {
	if s == "" || strings.HasPrefix(s, "http") {
		return s
	}
	return titleCaser.String(s)
}

// ToProperty converts an extracted record into a model.Property with
// title-cased scalar values. The caller assigns ID, approval status, and
// timestamps.
func (r *PropertyRecord) ToProperty() model.Property {
	return model.Property{
		ProjectName:      titleValue(r.ProjectName),
		PropertyType:     titleValue(r.PropertyType),
		BuilderName:      titleValue(r.BuilderName),
		City:             titleValue(r.City),
		Source:           model.SourceName,
		MagicbricksURL:   r.MagicbricksURL,
		MagicbricksPrice: titleValue(r.MagicbricksPrice),
		NobrokerURL:      r.NobrokerURL,
		NobrokerPrice:    titleValue(r.NobrokerPrice),
		Acres99URL:       r.Acres99URL,
		Acres99Price:     titleValue(r.Acres99Price),
		HousingURL:       r.HousingURL,
		HousingPrice:     titleValue(r.HousingPrice),
		GooglePrice:      titleValue(r.GooglePrice),
		Lenders:          r.Lenders,
	}
}

// ExtractProperty parses a corpus into a single flat property record.
func (e *Extractor) ExtractProperty(ctx context.Context, projectName, city, corpus string) (*PropertyRecord, error) {
	text, err := e.complete(ctx, extractSystemText, e.userPrompt(projectName, city, corpus, propertySchema), "extract_property")
	if err != nil {
		return nil, err
	}

	var rec PropertyRecord
	if err := json.Unmarshal([]byte(cleanJSON(text)), &rec); err != nil {
		return nil, eris.Wrap(err, "extract: unmarshal property record")
	}
	return &rec, nil
}

// ExtractProperties parses a corpus into a list of unique matching
// properties for the discovery path. Each returned record gets a fresh ID
// assigned by the caller.
func (e *Extractor) ExtractProperties(ctx context.Context, projectName, city, corpus string) (bool, []PropertyRecord, error) {
	text, err := e.complete(ctx, extractSystemText, e.userPrompt(projectName, city, corpus, propertyListSchema), "extract_properties")
	if err != nil {
		return false, nil, err
	}

	var list propertyList
	if err := json.Unmarshal([]byte(cleanJSON(text)), &list); err != nil {
		return false, nil, eris.Wrap(err, "extract: unmarshal property list")
	}
	return list.PropertyFound, list.Properties, nil
}

// ExtractLenderTerms parses a corpus of home-loan terms into a lender
// record. ID and timestamps are assigned here; the caller persists it.
func (e *Extractor) ExtractLenderTerms(ctx context.Context, lenderName, corpus string) (*model.Lender, error) {
	prompt := fmt.Sprintf("Lender: %s\n\nSearch findings:\n%s\n\nReturn JSON matching this schema:\n%s",
		lenderName, corpus, lenderSchema)

	text, err := e.complete(ctx, lenderSystemText, prompt, "extract_lender_terms")
	if err != nil {
		return nil, err
	}

	var rec lenderRecord
	if err := json.Unmarshal([]byte(cleanJSON(text)), &rec); err != nil {
		return nil, eris.Wrap(err, "extract: unmarshal lender record")
	}

	lender := &model.Lender{
		ID:             uuid.NewString(),
		LenderName:     lenderName,
		HomeLoanROI:    rec.HomeLoanROI,
		LoanToValue:    rec.LoanToValue,
		MinCreditScore: rec.MinCreditScore,
		MinLoanAmount:  rec.MinLoanAmount,
		MaxLoanAmount:  rec.MaxLoanAmount,
		MinTenureYears: rec.MinTenureYears,
		MaxTenureYears: rec.MaxTenureYears,
		ApprovalTime:   rec.ApprovalTime,
		ProcessingFees: rec.ProcessingFees,
		SpecialOffers:  rec.SpecialOffers,
	}
	return lender, nil
}

func (e *Extractor) userPrompt(projectName, city, corpus, schema string) string {
	return fmt.Sprintf("Property: %s, %s\n\nSearch findings:\n%s\n\nReturn JSON matching this schema:\n%s",
		projectName, city, corpus, schema)
}

// warmCache sends one primer request so the concurrent workers of a bulk
// run hit a warm prompt cache instead of each paying the cache write.
func (e *Extractor) warmCache(ctx context.Context, system string) error {
	_, err := anthropic.PrimerRequest(ctx, e.client, anthropic.MessageRequest{
		Model:     e.model,
		MaxTokens: 1,
		System:    anthropic.BuildCachedSystemBlocks(system),
		Messages:  []anthropic.Message{{Role: "user", Content: "ok"}},
	})
	return err
}

func (e *Extractor) complete(ctx context.Context, system, prompt, phase string) (string, error) {
	cfg := e.retry
	cfg.OnRetry = resilience.RetryLogger("anthropic", phase)

	resp, err := resilience.DoVal(ctx, cfg, func(ctx context.Context) (*anthropic.MessageResponse, error) {
		return e.client.CreateMessage(ctx, anthropic.MessageRequest{
			Model:     e.model,
			MaxTokens: extractMaxTokens,
			System:    anthropic.BuildCachedSystemBlocks(system),
			Messages:  []anthropic.Message{{Role: "user", Content: prompt}},
		})
	})
	if err != nil {
		return "", eris.Wrapf(err, "extract: %s", phase)
	}

	resp.Usage.LogCost(e.model, phase)
	return extractText(resp), nil
}

// extractText joins the text blocks of a message response.
func extractText(resp *anthropic.MessageResponse) string {
	if resp == nil {
		return ""
	}
	var parts []string
	for _, block := range resp.Content {
		if block.Text != "" {
			parts = append(parts, block.Text)
		}
	}
	return strings.Join(parts, "\n")
}

// cleanJSON strips markdown fences and trims to the outermost JSON object.
func cleanJSON(text string) string {
	text = strings.TrimSpace(text)

	// Strip markdown code fences.
	if strings.HasPrefix(text, "```json") {
		text = strings.TrimPrefix(text, "```json")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	} else if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	}

	// Find first { and last }.
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start >= 0 && end > start {
		text = text[start : end+1]
	}

	return strings.TrimSpace(text)
}
