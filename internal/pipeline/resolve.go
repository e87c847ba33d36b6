package pipeline

import (
	"regexp"
	"sort"
	"strings"

	"go.uber.org/zap"
)

// DefaultLenderCutoff is the minimum similarity for a registry match.
const DefaultLenderCutoff = 0.6

var entitySuffixes = regexp.MustCompile(
	`(?i)\s*,?\s*(LLC|L\.?L\.?C\.?|INC\.?|INCORPORATED|CORP\.?|CORPORATION|` +
		`CO\.?|COMPANY|LTD\.?|LIMITED|L\.?P\.?|LLP|L\.?L\.?P\.?|` +
		`PLLC|P\.?L\.?L\.?C\.?|P\.?C\.?|BANK|FINANCE|HOUSING FINANCE|HFC|NBFC)\s*\.?\s*$`)

var multiSpace = regexp.MustCompile(`\s{2,}`)

// normalizeLender strips entity suffixes and normalizes case and whitespace
// so "HDFC Bank Ltd." and "hdfc bank" compare equal.
func normalizeLender(name string) string {
	n := strings.ToUpper(strings.TrimSpace(name))
	for {
		stripped := entitySuffixes.ReplaceAllString(n, "")
		if stripped == n {
			break
		}
		n = stripped
	}
	n = multiSpace.ReplaceAllString(n, " ")
	return strings.TrimSpace(n)
}

// Resolver fuzzy-matches extracted lender names against the canonical
// lender registry.
type Resolver struct {
	cutoff float64
}

// NewResolver creates a Resolver. A non-positive cutoff falls back to the
// default.
func NewResolver(cutoff float64) *Resolver {
	if cutoff <= 0 {
		cutoff = DefaultLenderCutoff
	}
	return &Resolver{cutoff: cutoff}
}

// Resolve maps each extracted lender name to its best registry match above
// the cutoff. Unmatched names are dropped; duplicates collapse to one
// canonical name. The result is sorted for determinism.
func (r *Resolver) Resolve(extracted, registry []string) []string {
	if len(extracted) == 0 || len(registry) == 0 {
		return nil
	}

	normalized := make([]string, len(registry))
	for i, name := range registry {
		normalized[i] = normalizeLender(name)
	}

	seen := make(map[string]bool)
	var resolved []string
	for _, name := range extracted {
		q := normalizeLender(name)
		if q == "" {
			continue
		}

		best, score := -1, 0.0
		for i, cand := range normalized {
			if cand == "" {
				continue
			}
			if s := jaroWinkler(q, cand); s > score {
				best, score = i, s
			}
		}

		if best < 0 || score < r.cutoff {
			zap.L().Debug("no registry match for lender",
				zap.String("lender", name),
				zap.Float64("best_score", score))
			continue
		}

		canonical := registry[best]
		if !seen[canonical] {
			seen[canonical] = true
			resolved = append(resolved, canonical)
		}
	}

	sort.Strings(resolved)
	return resolved
}

// jaroWinkler calculates the Jaro-Winkler similarity between two strings,
// between 0.0 (no similarity) and 1.0 (exact match).
func jaroWinkler(a, b string) float64 {
	if a == b {
		return 1.0
	}

	j := jaro(a, b)

	// Winkler modification: boost for common prefix.
	prefixLen := 0
	const maxPrefix = 4
	for i := 0; i < len(a) && i < len(b) && i < maxPrefix; i++ {
		if a[i] == b[i] {
			prefixLen++
		} else {
			break
		}
	}

	const scalingFactor = 0.1
	return j + float64(prefixLen)*scalingFactor*(1.0-j)
}

// jaro calculates the Jaro similarity between two strings.
func jaro(a, b string) float64 {
	if a == b {
		return 1.0
	}
	if len(a) == 0 || len(b) == 0 {
		return 0.0
	}

	matchDist := max(len(a), len(b))/2 - 1
	if matchDist < 0 {
		matchDist = 0
	}

	aMatches := make([]bool, len(a))
	bMatches := make([]bool, len(b))

	matches := 0
	transpositions := 0

	for i := 0; i < len(a); i++ {
		start := max(0, i-matchDist)
		end := min(len(b), i+matchDist+1)

		for j := start; j < end; j++ {
			if bMatches[j] || a[i] != b[j] {
				continue
			}
			aMatches[i] = true
			bMatches[j] = true
			matches++
			break
		}
	}

	if matches == 0 {
		return 0.0
	}

	k := 0
	for i := 0; i < len(a); i++ {
		if !aMatches[i] {
			continue
		}
		for !bMatches[k] {
			k++
		}
		if a[i] != b[k] {
			transpositions++
		}
		k++
	}

	m := float64(matches)
	t := float64(transpositions) / 2

	return (m/float64(len(a)) + m/float64(len(b)) + (m-t)/m) / 3
}
