package pipeline

import (
	"sort"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var titleCaser = cases.Title(language.English)

// displayName renders a query key as a corpus section label.
func displayName(key string) string {
	switch key {
	case QueryApprovalFinance:
		return "Approved Project Finance"
	case QueryLenders:
		return "Lenders"
	default:
		return titleCaser.String(key)
	}
}

// BuildCorpus concatenates per-source answers into a single labeled text
// block for extraction. Keys are emitted in sorted order so the corpus is
// deterministic for a given answer set. Returns "" when every answer is
// empty or missing.
func BuildCorpus(answers SourceAnswers) string {
	keys := make([]string, 0, len(answers))
	for key, text := range answers {
		if strings.TrimSpace(text) != "" {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)

	var sb strings.Builder
	for _, key := range keys {
		if sb.Len() > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString(displayName(key))
		sb.WriteString(": ")
		sb.WriteString(strings.TrimSpace(answers[key]))
	}
	return sb.String()
}
