package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeLender(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"HDFC Bank Ltd.", "HDFC"},
		{"hdfc bank", "HDFC"},
		{"State Bank of India", "STATE BANK OF INDIA"},
		{"LIC Housing Finance Limited", "LIC"},
		{"Bajaj Housing Finance", "BAJAJ"},
		{"PNB Housing Finance Ltd", "PNB"},
		{"ICICI Bank", "ICICI"},
		{"  Axis   Bank  ", "AXIS"},
		{"Tata Capital", "TATA CAPITAL"},
		{"", ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, normalizeLender(tt.in))
		})
	}
}

func TestResolve_MatchesVariantsToCanonicalNames(t *testing.T) {
	registry := []string{"HDFC Bank", "State Bank of India", "ICICI Bank", "LIC Housing Finance"}
	r := NewResolver(0)

	resolved := r.Resolve([]string{"HDFC Bank Ltd.", "SBI"}, registry)
	assert.Contains(t, resolved, "HDFC Bank")
}

func TestResolve_DropsUnrelatedNames(t *testing.T) {
	registry := []string{"HDFC Bank", "ICICI Bank"}
	r := NewResolver(0.85)

	resolved := r.Resolve([]string{"Qwerty Nonexistent Collective"}, registry)
	assert.Empty(t, resolved)
}

func TestResolve_DeduplicatesAndSorts(t *testing.T) {
	registry := []string{"State Bank of India", "HDFC Bank"}
	r := NewResolver(0)

	resolved := r.Resolve(
		[]string{"State Bank of India", "HDFC Bank Ltd", "state bank of india", "HDFC Bank"},
		registry)
	assert.Equal(t, []string{"HDFC Bank", "State Bank of India"}, resolved)
}

func TestResolve_EmptyInputs(t *testing.T) {
	r := NewResolver(0)
	assert.Nil(t, r.Resolve(nil, []string{"HDFC Bank"}))
	assert.Nil(t, r.Resolve([]string{"HDFC Bank"}, nil))
	assert.Nil(t, r.Resolve([]string{"", "   "}, []string{"HDFC Bank"}))
}

func TestResolve_CutoffExcludesWeakMatches(t *testing.T) {
	registry := []string{"HDFC Bank"}

	strict := NewResolver(0.99)
	assert.Empty(t, strict.Resolve([]string{"HDFG"}, registry))

	loose := NewResolver(0.7)
	assert.Equal(t, []string{"HDFC Bank"}, loose.Resolve([]string{"HDFG"}, registry))
}

func TestJaroWinkler(t *testing.T) {
	assert.Equal(t, 1.0, jaroWinkler("HDFC", "HDFC"))
	assert.Equal(t, 0.0, jaroWinkler("ABCD", "WXYZ"))

	// Shared prefix outranks same-distance suffix difference.
	prefix := jaroWinkler("ICICI", "ICICX")
	suffix := jaroWinkler("ICICI", "XCICI")
	assert.Greater(t, prefix, suffix)

	assert.InDelta(t, 1.0, jaroWinkler("STATE BANK OF INDIA", "STATE BANK OF INDIA"), 1e-9)
}

func TestJaro_EmptyStrings(t *testing.T) {
	assert.Equal(t, 0.0, jaro("", "HDFC"))
	assert.Equal(t, 0.0, jaro("HDFC", ""))
	assert.Equal(t, 1.0, jaro("", ""))
}
