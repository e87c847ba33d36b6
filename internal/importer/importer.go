// Package importer loads approved-project spreadsheets (XLSX or CSV) and
// turns them into bulk upsert rows for the approved_projects table.
package importer

import (
	"encoding/csv"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/sniffer-group/propintel-cli/internal/db"
	"github.com/sniffer-group/propintel-cli/internal/model"
)

// Options configures spreadsheet parsing.
type Options struct {
	SheetIndex int    // XLSX only, default 0
	SheetName  string // XLSX only, overrides SheetIndex when set
	SkipRows   int    // rows to skip before the header row
	Delimiter  rune   // CSV only, default ','
}

// headerAliases maps normalized sheet headers to approved_projects columns.
// Sheets come from several banks and portals, so spellings vary.
var headerAliases = map[string]string{
	"project name":      "project_name",
	"project":           "project_name",
	"name":              "project_name",
	"property type":     "property_type",
	"type":              "property_type",
	"builder name":      "builder_name",
	"builder":           "builder_name",
	"developer":         "builder_name",
	"city":              "city",
	"location":          "city",
	"approval status":   "approval_status",
	"status":            "approval_status",
	"magicbricks price": "magicbricks_price",
	"nobroker price":    "nobroker_price",
	"99acres price":     "acres99_price",
	"housing price":     "housing_price",
	"google price":      "google_price",
}

var titleCaser = cases.Title(language.English)

// Record holds one parsed sheet row, keyed by canonical column name. Only
// columns recognized in the header appear.
type Record map[string]string

// Sheet is a parsed spreadsheet: the canonical columns its header mapped to
// and the cleaned, deduplicated records.
type Sheet struct {
	Columns []string
	Records []Record
}

// ReadXLSX parses an XLSX workbook into a Sheet.
func ReadXLSX(path string, opts Options) (*Sheet, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "import: open xlsx")
	}

	sheet, err := pickSheet(f, opts)
	if err != nil {
		return nil, err
	}

	var rows [][]string
	for i, row := range sheet.Rows {
		if i < opts.SkipRows {
			continue
		}
		cells := make([]string, len(row.Cells))
		for j, cell := range row.Cells {
			cells[j] = cell.String()
		}
		rows = append(rows, cells)
	}

	return buildSheet(rows)
}

// ReadCSV parses CSV data into a Sheet.
func ReadCSV(r io.Reader, opts Options) (*Sheet, error) {
	reader := csv.NewReader(r)
	if opts.Delimiter != 0 {
		reader.Comma = opts.Delimiter
	}
	reader.FieldsPerRecord = -1

	var rows [][]string
	for i := 0; ; i++ {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, eris.Wrap(err, "import: read csv row")
		}
		if i < opts.SkipRows {
			continue
		}
		rows = append(rows, record)
	}

	return buildSheet(rows)
}

func pickSheet(f *xlsx.File, opts Options) (*xlsx.Sheet, error) {
	if opts.SheetName != "" {
		sheet, ok := f.Sheet[opts.SheetName]
		if !ok {
			return nil, eris.Errorf("import: sheet %q not found", opts.SheetName)
		}
		return sheet, nil
	}
	if opts.SheetIndex >= len(f.Sheets) {
		return nil, eris.Errorf("import: sheet index %d out of range (workbook has %d sheets)", opts.SheetIndex, len(f.Sheets))
	}
	return f.Sheets[opts.SheetIndex], nil
}

// buildSheet maps the header row, cleans each data row, and deduplicates on
// the (project_name, city) natural key. Later rows win so corrected entries
// at the bottom of a sheet override earlier ones.
func buildSheet(rows [][]string) (*Sheet, error) {
	if len(rows) == 0 {
		return nil, eris.New("import: sheet has no header row")
	}

	colByIndex := make(map[int]string)
	seen := make(map[string]bool)
	var columns []string
	for i, h := range rows[0] {
		col, ok := headerAliases[strings.ToLower(strings.TrimSpace(h))]
		if !ok || seen[col] {
			continue
		}
		colByIndex[i] = col
		seen[col] = true
		columns = append(columns, col)
	}

	for _, required := range []string{"project_name", "city"} {
		if !seen[required] {
			return nil, eris.Errorf("import: header has no %s column", required)
		}
	}

	byKey := make(map[string]int)
	var records []Record
	for _, cells := range rows[1:] {
		rec := make(Record, len(colByIndex))
		for i, col := range colByIndex {
			if i >= len(cells) {
				continue
			}
			rec[col] = cleanValue(col, cells[i])
		}
		if rec["project_name"] == "" || rec["city"] == "" {
			continue
		}

		key := strings.ToLower(rec["project_name"]) + "|" + strings.ToLower(rec["city"])
		if at, dup := byKey[key]; dup {
			records[at] = rec
			continue
		}
		byKey[key] = len(records)
		records = append(records, rec)
	}

	return &Sheet{Columns: columns, Records: records}, nil
}

// cleanValue trims a cell and normalizes casing for name-like columns.
// Approval status collapses to the two known values.
func cleanValue(col, v string) string {
	v = strings.TrimSpace(v)
	switch col {
	case "project_name", "property_type", "builder_name", "city":
		return titleCaser.String(v)
	case "approval_status":
		if strings.EqualFold(v, model.ApprovalApproved) {
			return model.ApprovalApproved
		}
		return model.ApprovalNotApproved
	default:
		return v
	}
}

// UpsertConfig builds the bulk upsert parameters for this sheet. Conflicts
// on the natural key update only the columns the sheet actually carries,
// so a re-import never blanks prices fetched by the research pipeline.
func (s *Sheet) UpsertConfig(table string) db.UpsertConfig {
	columns := []string{"id"}
	columns = append(columns, s.Columns...)
	columns = append(columns, "source", "created_at", "updated_at")

	var updateCols []string
	for _, col := range s.Columns {
		if col == "project_name" || col == "city" {
			continue
		}
		updateCols = append(updateCols, col)
	}
	updateCols = append(updateCols, "updated_at")
	sort.Strings(updateCols)

	return db.UpsertConfig{
		Table:        table,
		Columns:      columns,
		ConflictKeys: []string{"project_name", "city"},
		UpdateCols:   updateCols,
	}
}

// Rows renders the records in the column order UpsertConfig declares. Each
// row gets a fresh ID; existing rows keep theirs because id is never in the
// conflict update set.
func (s *Sheet) Rows(now time.Time) [][]any {
	rows := make([][]any, 0, len(s.Records))
	for _, rec := range s.Records {
		row := make([]any, 0, len(s.Columns)+4)
		row = append(row, uuid.NewString())
		for _, col := range s.Columns {
			row = append(row, rec[col])
		}
		row = append(row, "Import", now, now)
		rows = append(rows, row)
	}
	return rows
}
