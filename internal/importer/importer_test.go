package importer

import (
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"
)

func createTestXLSX(t *testing.T, sheets map[string][][]string) string {
	t.Helper()
	f := xlsx.NewFile()
	for name, rows := range sheets {
		sheet, err := f.AddSheet(name)
		require.NoError(t, err)
		for _, rowData := range rows {
			row := sheet.AddRow()
			for _, cellData := range rowData {
				row.AddCell().SetString(cellData)
			}
		}
	}
	path := filepath.Join(t.TempDir(), "projects.xlsx")
	require.NoError(t, f.Save(path))
	return path
}

func TestReadXLSX_MapsAliasedHeaders(t *testing.T) {
	path := createTestXLSX(t, map[string][][]string{
		"Sheet1": {
			{"Project Name", "Developer", "Type", "Location"},
			{"lodha park", "lodha group", "residential apartment", "mumbai"},
			{"prestige falcon city", "prestige group", "residential apartment", "bengaluru"},
		},
	})

	sheet, err := ReadXLSX(path, Options{})
	require.NoError(t, err)
	assert.Equal(t, []string{"project_name", "builder_name", "property_type", "city"}, sheet.Columns)
	require.Len(t, sheet.Records, 2)
	assert.Equal(t, Record{
		"project_name":  "Lodha Park",
		"builder_name":  "Lodha Group",
		"property_type": "Residential Apartment",
		"city":          "Mumbai",
	}, sheet.Records[0])
}

func TestReadXLSX_SheetSelection(t *testing.T) {
	path := createTestXLSX(t, map[string][][]string{
		"Approved Projects": {
			{"Project Name", "City"},
			{"Lodha Park", "Mumbai"},
		},
	})

	sheet, err := ReadXLSX(path, Options{SheetName: "Approved Projects"})
	require.NoError(t, err)
	require.Len(t, sheet.Records, 1)

	_, err = ReadXLSX(path, Options{SheetName: "Nope"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `sheet "Nope" not found`)

	_, err = ReadXLSX(path, Options{SheetIndex: 3})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "out of range")
}

func TestReadXLSX_SkipRowsBeforeHeader(t *testing.T) {
	path := createTestXLSX(t, map[string][][]string{
		"Sheet1": {
			{"Approved Project List - August 2026"},
			{"Project Name", "City"},
			{"Lodha Park", "Mumbai"},
		},
	})

	sheet, err := ReadXLSX(path, Options{SkipRows: 1})
	require.NoError(t, err)
	require.Len(t, sheet.Records, 1)
	assert.Equal(t, "Lodha Park", sheet.Records[0]["project_name"])
}

func TestReadCSV_Basics(t *testing.T) {
	data := strings.Join([]string{
		"Project Name,City,Status,Magicbricks Price",
		"lodha park,mumbai,approved,₹1.2 Cr - ₹1.8 Cr",
		"ghost towers,pune,pending,",
	}, "\n")

	sheet, err := ReadCSV(strings.NewReader(data), Options{})
	require.NoError(t, err)
	assert.Equal(t, []string{"project_name", "city", "approval_status", "magicbricks_price"}, sheet.Columns)
	require.Len(t, sheet.Records, 2)
	assert.Equal(t, "Approved", sheet.Records[0]["approval_status"])
	assert.Equal(t, "₹1.2 Cr - ₹1.8 Cr", sheet.Records[0]["magicbricks_price"])
	assert.Equal(t, "Not Approved", sheet.Records[1]["approval_status"])
}

func TestReadCSV_CustomDelimiter(t *testing.T) {
	data := "Project Name;City\nLodha Park;Mumbai\n"
	sheet, err := ReadCSV(strings.NewReader(data), Options{Delimiter: ';'})
	require.NoError(t, err)
	require.Len(t, sheet.Records, 1)
}

func TestBuildSheet_RequiresNaturalKeyColumns(t *testing.T) {
	_, err := ReadCSV(strings.NewReader("Project Name,Builder\nLodha Park,Lodha Group\n"), Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no city column")

	_, err = ReadCSV(strings.NewReader(""), Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no header row")
}

func TestBuildSheet_SkipsIncompleteAndDeduplicates(t *testing.T) {
	data := strings.Join([]string{
		"Project Name,City,Builder",
		"Lodha Park,Mumbai,Lodha Group",
		",Mumbai,Nameless Builder",
		"Lodha Park,,Lodha Group",
		"LODHA PARK,MUMBAI,Macrotech Developers", // later duplicate wins
	}, "\n")

	sheet, err := ReadCSV(strings.NewReader(data), Options{})
	require.NoError(t, err)
	require.Len(t, sheet.Records, 1)
	assert.Equal(t, "Macrotech Developers", sheet.Records[0]["builder_name"])
	assert.Equal(t, "Lodha Park", sheet.Records[0]["project_name"])
}

func TestUpsertConfig_NeverUpdatesIdentityOrBookkeeping(t *testing.T) {
	sheet := &Sheet{Columns: []string{"project_name", "city", "builder_name", "magicbricks_price"}}

	cfg := sheet.UpsertConfig("approved_projects")
	assert.Equal(t, "approved_projects", cfg.Table)
	assert.Equal(t, []string{"id", "project_name", "city", "builder_name", "magicbricks_price", "source", "created_at", "updated_at"}, cfg.Columns)
	assert.Equal(t, []string{"project_name", "city"}, cfg.ConflictKeys)
	assert.Equal(t, []string{"builder_name", "magicbricks_price", "updated_at"}, cfg.UpdateCols)
}

func TestRows_MatchUpsertColumnOrder(t *testing.T) {
	sheet := &Sheet{
		Columns: []string{"project_name", "city"},
		Records: []Record{{"project_name": "Lodha Park", "city": "Mumbai"}},
	}

	now := time.Date(2026, 8, 26, 12, 0, 0, 0, time.UTC)
	rows := sheet.Rows(now)
	require.Len(t, rows, 1)
	require.Len(t, rows[0], 6)
	assert.NotEmpty(t, rows[0][0])
	assert.Equal(t, "Lodha Park", rows[0][1])
	assert.Equal(t, "Mumbai", rows[0][2])
	assert.Equal(t, "Import", rows[0][3])
	assert.Equal(t, now, rows[0][4])
	assert.Equal(t, now, rows[0][5])
}
