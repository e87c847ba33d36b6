package pipeline

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultQueries_CoversAllSourcesAndKinds(t *testing.T) {
	queries := DefaultQueries()

	for _, key := range []string{"magicbricks", "nobroker", "99acres", "housing", "google", QueryApprovalFinance, QueryLenders} {
		assert.Contains(t, queries, key)
		assert.Contains(t, queries[key], "{project_name}")
		assert.Contains(t, queries[key], "{city}")
	}
	assert.Len(t, queries, 7)
}

func TestLoadQueries_NoPathReturnsDefaults(t *testing.T) {
	queries, err := LoadQueries("")
	require.NoError(t, err)
	assert.Equal(t, DefaultQueries(), queries)
}

func TestLoadQueries_MergesOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "queries.yaml")
	require.NoError(t, os.WriteFile(path, []byte(
		"magicbricks: custom price query for {project_name} in {city}\n"), 0o644))

	queries, err := LoadQueries(path)
	require.NoError(t, err)
	assert.Equal(t, "custom price query for {project_name} in {city}", queries["magicbricks"])
	// Untouched keys keep their defaults.
	assert.Equal(t, DefaultQueries()["nobroker"], queries["nobroker"])
}

func TestLoadQueries_RejectsUnknownKey(t *testing.T) {
	path := filepath.Join(t.TempDir(), "queries.yaml")
	require.NoError(t, os.WriteFile(path, []byte("zillow: usa query\n"), 0o644))

	_, err := LoadQueries(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown query key "zillow"`)
}

func TestLoadQueries_MissingFile(t *testing.T) {
	_, err := LoadQueries(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}

func TestRenderQuery(t *testing.T) {
	got := RenderQuery("price of {project_name}, {city} on {project_name} day", "Lodha Park", "Mumbai")
	assert.Equal(t, "price of Lodha Park, Mumbai on Lodha Park day", got)
}

func TestPriceQueryKeys_SortedCopy(t *testing.T) {
	sources := []string{"nobroker", "google", "99acres"}
	keys := priceQueryKeys(sources)
	assert.Equal(t, []string{"99acres", "google", "nobroker"}, keys)
	// Input slice is not reordered.
	assert.Equal(t, []string{"nobroker", "google", "99acres"}, sources)
}
