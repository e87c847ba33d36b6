package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sniffer-group/propintel-cli/internal/model"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	st, err := NewSQLite(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func testProperty(name, city string) *model.Property {
	return &model.Property{
		ProjectName:      name,
		PropertyType:     "Residential",
		BuilderName:      "Lodha Group",
		City:             city,
		ApprovalStatus:   "Approved",
		Source:           "Gemini",
		MagicbricksPrice: "₹1.2 Cr - ₹1.8 Cr",
		GooglePrice:      "₹1.3 Cr onwards",
	}
}

// --- Projects ---

func TestSQLite_InsertProject_And_GetProject(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	p := testProperty("Lodha Park", "Mumbai")
	require.NoError(t, st.InsertProject(ctx, p))
	require.NotEmpty(t, p.ID)

	got, err := st.GetProject(ctx, p.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "Lodha Park", got.ProjectName)
	assert.Equal(t, "₹1.2 Cr - ₹1.8 Cr", got.MagicbricksPrice)
	assert.Empty(t, got.NobrokerPrice)
	assert.False(t, got.CreatedAt.IsZero())
}

func TestSQLite_GetProject_Missing(t *testing.T) {
	st := newTestSQLiteStore(t)

	got, err := st.GetProject(context.Background(), "nonexistent")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestSQLite_FindProject_CaseInsensitive(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	p := testProperty("Lodha Park", "Mumbai")
	require.NoError(t, st.InsertProject(ctx, p))

	got, err := st.FindProject(ctx, "LODHA PARK", "mumbai")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, p.ID, got.ID)
}

func TestSQLite_FindProject_Missing(t *testing.T) {
	st := newTestSQLiteStore(t)

	got, err := st.FindProject(context.Background(), "Unknown Towers", "Pune")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestSQLite_UpdateProjectResearch(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	p := testProperty("Lodha Park", "Mumbai")
	require.NoError(t, st.InsertProject(ctx, p))

	p.ApprovalStatus = "Not Approved"
	p.NobrokerPrice = "₹1.15 Cr"
	require.NoError(t, st.UpdateProjectResearch(ctx, p))

	got, err := st.GetProject(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "Not Approved", got.ApprovalStatus)
	assert.Equal(t, "₹1.15 Cr", got.NobrokerPrice)
	// Identity columns survive research updates untouched.
	assert.Equal(t, "Lodha Park", got.ProjectName)
	assert.Equal(t, "Lodha Group", got.BuilderName)
}

func TestSQLite_UpdateProjectResearch_NotFound(t *testing.T) {
	st := newTestSQLiteStore(t)

	err := st.UpdateProjectResearch(context.Background(), &model.Property{ID: "ghost-id"})
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrNotFound))
}

func TestSQLite_UpdateProjectPrices_PartialUpdate(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	p := testProperty("Lodha Park", "Mumbai")
	require.NoError(t, st.InsertProject(ctx, p))

	err := st.UpdateProjectPrices(ctx, p.ID, map[string]string{
		"google_price":  "₹1.45 Cr onwards",
		"housing_price": "₹1.4 Cr",
	})
	require.NoError(t, err)

	got, err := st.GetProject(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "₹1.45 Cr onwards", got.GooglePrice)
	assert.Equal(t, "₹1.4 Cr", got.HousingPrice)
	// Untouched columns keep their values.
	assert.Equal(t, "₹1.2 Cr - ₹1.8 Cr", got.MagicbricksPrice)
	assert.Equal(t, "Approved", got.ApprovalStatus)
}

func TestSQLite_UpdateProjectPrices_UnknownColumn(t *testing.T) {
	st := newTestSQLiteStore(t)

	err := st.UpdateProjectPrices(context.Background(), "any-id", map[string]string{
		"builder_name": "Evil Corp",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown price column")
}

func TestSQLite_UpdateProjectPrices_NotFound(t *testing.T) {
	st := newTestSQLiteStore(t)

	err := st.UpdateProjectPrices(context.Background(), "ghost-id", map[string]string{
		"google_price": "₹1 Cr",
	})
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrNotFound))
}

func TestSQLite_SelectStaleProjects_FindsStale(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	p := testProperty("Lodha Park", "Mumbai")
	require.NoError(t, st.InsertProject(ctx, p))

	// Push updated_at into the past.
	old := time.Now().UTC().AddDate(0, 0, -30)
	_, err := st.db.ExecContext(ctx, `UPDATE approved_projects SET updated_at = ?, created_at = ? WHERE id = ?`, old, old, p.ID)
	require.NoError(t, err)

	refs, err := st.SelectStaleProjects(ctx, StaleFilter{Days: 7, Limit: 10})
	require.NoError(t, err)
	require.Len(t, refs, 1)
	assert.Equal(t, p.ID, refs[0].ID)
	assert.Equal(t, "Mumbai", refs[0].City)
}

func TestSQLite_SelectStaleProjects_ExcludesRecent(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	require.NoError(t, st.InsertProject(ctx, testProperty("Lodha Park", "Mumbai")))

	refs, err := st.SelectStaleProjects(ctx, StaleFilter{Days: 7})
	require.NoError(t, err)
	assert.Empty(t, refs)
}

func TestSQLite_SelectStaleProjects_FiltersByCity(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	mumbai := testProperty("Lodha Park", "Mumbai")
	pune := testProperty("Kolte Patil Life Republic", "Pune")
	require.NoError(t, st.InsertProject(ctx, mumbai))
	require.NoError(t, st.InsertProject(ctx, pune))

	old := time.Now().UTC().AddDate(0, 0, -30)
	_, err := st.db.ExecContext(ctx, `UPDATE approved_projects SET updated_at = ?`, old)
	require.NoError(t, err)

	refs, err := st.SelectStaleProjects(ctx, StaleFilter{Days: 7, Cities: []string{"PUNE"}})
	require.NoError(t, err)
	require.Len(t, refs, 1)
	assert.Equal(t, pune.ID, refs[0].ID)
}

func TestSQLite_SelectStaleProjects_OrdersOldestFirstWithLimit(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	older := testProperty("Older Project", "Mumbai")
	newer := testProperty("Newer Project", "Mumbai")
	require.NoError(t, st.InsertProject(ctx, older))
	require.NoError(t, st.InsertProject(ctx, newer))

	_, err := st.db.ExecContext(ctx, `UPDATE approved_projects SET updated_at = ? WHERE id = ?`,
		time.Now().UTC().AddDate(0, 0, -60), older.ID)
	require.NoError(t, err)
	_, err = st.db.ExecContext(ctx, `UPDATE approved_projects SET updated_at = ? WHERE id = ?`,
		time.Now().UTC().AddDate(0, 0, -10), newer.ID)
	require.NoError(t, err)

	refs, err := st.SelectStaleProjects(ctx, StaleFilter{Days: 7, Limit: 1})
	require.NoError(t, err)
	require.Len(t, refs, 1)
	assert.Equal(t, older.ID, refs[0].ID)
}

// --- Lenders ---

func TestSQLite_InsertLender_And_FetchLenders(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	require.NoError(t, st.InsertLender(ctx, &model.Lender{LenderName: "State Bank of India"}))
	require.NoError(t, st.InsertLender(ctx, &model.Lender{LenderName: "HDFC Bank"}))

	lenders, err := st.FetchLenders(ctx)
	require.NoError(t, err)
	require.Len(t, lenders, 2)
	// Ordered by name.
	assert.Equal(t, "HDFC Bank", lenders[0].LenderName)
	assert.Equal(t, "State Bank of India", lenders[1].LenderName)
}

func TestSQLite_InsertLender_DuplicateNameIgnored(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	require.NoError(t, st.InsertLender(ctx, &model.Lender{LenderName: "HDFC Bank"}))
	require.NoError(t, st.InsertLender(ctx, &model.Lender{LenderName: "HDFC Bank"}))

	lenders, err := st.FetchLenders(ctx)
	require.NoError(t, err)
	assert.Len(t, lenders, 1)
}

func TestSQLite_UpdateLenderTerms(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	l := &model.Lender{LenderName: "HDFC Bank"}
	require.NoError(t, st.InsertLender(ctx, l))

	l.HomeLoanROI = "8.4% - 9.1%"
	l.LoanToValue = "80%"
	l.MinCreditScore = 750
	l.MinLoanAmount = 500_000
	l.MaxLoanAmount = 100_000_000
	l.MinTenureYears = 5
	l.MaxTenureYears = 30
	l.ApprovalTime = "3-5 working days"
	l.ProcessingFees = "0.5% or ₹3,000, whichever is higher"
	require.NoError(t, st.UpdateLenderTerms(ctx, l))

	lenders, err := st.FetchLenders(ctx)
	require.NoError(t, err)
	require.Len(t, lenders, 1)
	assert.Equal(t, "8.4% - 9.1%", lenders[0].HomeLoanROI)
	assert.Equal(t, 750, lenders[0].MinCreditScore)
	assert.Equal(t, int64(100_000_000), lenders[0].MaxLoanAmount)
	assert.Equal(t, 30, lenders[0].MaxTenureYears)
}

func TestSQLite_UpdateLenderTerms_NotFound(t *testing.T) {
	st := newTestSQLiteStore(t)

	err := st.UpdateLenderTerms(context.Background(), &model.Lender{ID: "ghost-lender"})
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrNotFound))
}

func TestSQLite_SelectStaleLenders(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	stale := &model.Lender{LenderName: "HDFC Bank"}
	fresh := &model.Lender{LenderName: "ICICI Bank"}
	require.NoError(t, st.InsertLender(ctx, stale))
	require.NoError(t, st.InsertLender(ctx, fresh))

	_, err := st.db.ExecContext(ctx, `UPDATE lenders SET updated_at = ? WHERE id = ?`,
		time.Now().UTC().AddDate(0, 0, -90), stale.ID)
	require.NoError(t, err)

	lenders, err := st.SelectStaleLenders(ctx, 30, 10)
	require.NoError(t, err)
	require.Len(t, lenders, 1)
	assert.Equal(t, "HDFC Bank", lenders[0].LenderName)
}

// --- Links ---

func TestSQLite_LinkLenders_Idempotent(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	p := testProperty("Lodha Park", "Mumbai")
	require.NoError(t, st.InsertProject(ctx, p))
	l := &model.Lender{LenderName: "HDFC Bank"}
	require.NoError(t, st.InsertLender(ctx, l))

	require.NoError(t, st.LinkLenders(ctx, p.ID, []string{l.ID}))
	require.NoError(t, st.LinkLenders(ctx, p.ID, []string{l.ID}))

	var count int
	err := st.db.QueryRowContext(ctx, `SELECT count(*) FROM approved_projects_lenders WHERE project_id = ?`, p.ID).Scan(&count)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

// --- Lifecycle ---

func TestSQLite_Migrate_Idempotent(t *testing.T) {
	st := newTestSQLiteStore(t)
	require.NoError(t, st.Migrate(context.Background()))
	require.NoError(t, st.Ping(context.Background()))
}
