// Package pipeline implements the property intelligence flow: dispatch
// search queries per listing source, aggregate the answers into a corpus,
// extract a structured record, resolve lender names against the registry,
// and persist the result.
package pipeline

import (
	"os"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sniffer-group/propintel-cli/internal/model"
)

// Non-price query keys. Price queries are keyed by source name.
const (
	QueryApprovalFinance = "apf"
	QueryLenders         = "lenders"
)

// DefaultQueries returns the built-in query templates keyed by source or
// query kind. Templates use {project_name} and {city} placeholders.
func DefaultQueries() map[string]string {
	return map[string]string{
		model.SourceMagicbricks: "what is the latest price for {project_name}, {city} or similar properties on magicbricks, share only the price range",
		model.SourceNobroker:    "what is the latest price for {project_name}, {city} or similar properties on nobroker, share only the price range",
		model.Source99Acres:     "what is the latest price for {project_name}, {city} or similar properties on 99acres, share only the price range",
		model.SourceHousing:     "what is the latest price for {project_name}, {city} or similar properties on housing.com, share only the price range",
		model.SourceGoogle:      "what is the latest price for {project_name}, {city} or similar properties on google, share only the price range",
		QueryApprovalFinance:    "what is the approved project finance status of {project_name}, {city} just the status and lenders",
		QueryLenders:            "what are the lenders/banks providing pre-approved loan on {project_name}, {city} (not factual). Provide full names.",
	}
}

// LoadQueries reads query template overrides from a YAML file and merges
// them over the defaults. Unknown keys are rejected so typos in an override
// file fail loudly.
func LoadQueries(path string) (map[string]string, error) {
	queries := DefaultQueries()
	if path == "" {
		return queries, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "pipeline: read queries file %s", path)
	}

	var overrides map[string]string
	if err := yaml.Unmarshal(data, &overrides); err != nil {
		return nil, eris.Wrapf(err, "pipeline: parse queries file %s", path)
	}

	for key, tmpl := range overrides {
		if _, ok := queries[key]; !ok {
			return nil, eris.Errorf("pipeline: unknown query key %q in %s", key, path)
		}
		queries[key] = tmpl
	}
	return queries, nil
}

// RenderQuery substitutes the project placeholders into a template.
func RenderQuery(tmpl, projectName, city string) string {
	r := strings.NewReplacer("{project_name}", projectName, "{city}", city)
	return r.Replace(tmpl)
}

// priceQueryKeys returns the price query keys for the requested sources in
// deterministic order.
func priceQueryKeys(sources []string) []string {
	keys := make([]string, len(sources))
	copy(keys, sources)
	sort.Strings(keys)
	return keys
}
