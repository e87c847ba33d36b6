package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sniffer-group/propintel-cli/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS approved_projects (
	id                TEXT PRIMARY KEY,
	project_name      TEXT NOT NULL,
	property_type     TEXT,
	builder_name      TEXT,
	city              TEXT,
	approval_status   TEXT,
	source            TEXT,
	magicbricks_url   TEXT,
	magicbricks_price TEXT,
	nobroker_url      TEXT,
	nobroker_price    TEXT,
	acres99_url       TEXT,
	acres99_price     TEXT,
	housing_url       TEXT,
	housing_price     TEXT,
	google_price      TEXT,
	created_at        DATETIME,
	updated_at        DATETIME,
	last_scraped_at   DATETIME,
	UNIQUE (project_name, city)
);

CREATE INDEX IF NOT EXISTS idx_approved_projects_updated_at ON approved_projects(updated_at);
CREATE INDEX IF NOT EXISTS idx_approved_projects_city_lower ON approved_projects(lower(city));
CREATE INDEX IF NOT EXISTS idx_approved_projects_name_lower ON approved_projects(lower(project_name));

CREATE TABLE IF NOT EXISTS lenders (
	id               TEXT PRIMARY KEY,
	lender_name      TEXT NOT NULL UNIQUE,
	home_loan_roi    TEXT,
	loan_to_value    TEXT,
	min_credit_score INTEGER,
	min_loan_amount  INTEGER,
	max_loan_amount  INTEGER,
	min_tenure_years INTEGER,
	max_tenure_years INTEGER,
	approval_time    TEXT,
	processing_fees  TEXT,
	special_offers   TEXT,
	created_at       DATETIME,
	updated_at       DATETIME
);

CREATE TABLE IF NOT EXISTS approved_projects_lenders (
	project_id TEXT NOT NULL REFERENCES approved_projects(id) ON DELETE CASCADE,
	lender_id  TEXT NOT NULL REFERENCES lenders(id) ON DELETE CASCADE,
	created_at DATETIME,
	UNIQUE (project_id, lender_id)
);

CREATE INDEX IF NOT EXISTS idx_approved_projects_lenders_project ON approved_projects_lenders(project_id);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.db.PingContext(ctx), "sqlite: ping")
}

// DB exposes the underlying handle for use by the XLSX importer.
func (s *SQLiteStore) DB() *sql.DB {
	return s.db
}

// scanProjectRow reads one approved_projects row via database/sql.
func scanProjectRow(row interface{ Scan(...any) error }) (*model.Property, error) {
	var p model.Property
	var propertyType, builderName, city, approvalStatus, source sql.NullString
	var mbURL, mbPrice, nbURL, nbPrice, acURL, acPrice, hoURL, hoPrice, goPrice sql.NullString
	var createdAt, updatedAt, lastScrapedAt sql.NullTime

	err := row.Scan(
		&p.ID, &p.ProjectName, &propertyType, &builderName, &city, &approvalStatus, &source,
		&mbURL, &mbPrice, &nbURL, &nbPrice,
		&acURL, &acPrice, &hoURL, &hoPrice, &goPrice,
		&createdAt, &updatedAt, &lastScrapedAt,
	)
	if err != nil {
		return nil, err
	}

	p.PropertyType = propertyType.String
	p.BuilderName = builderName.String
	p.City = city.String
	p.ApprovalStatus = approvalStatus.String
	p.Source = source.String
	p.MagicbricksURL = mbURL.String
	p.MagicbricksPrice = mbPrice.String
	p.NobrokerURL = nbURL.String
	p.NobrokerPrice = nbPrice.String
	p.Acres99URL = acURL.String
	p.Acres99Price = acPrice.String
	p.HousingURL = hoURL.String
	p.HousingPrice = hoPrice.String
	p.GooglePrice = goPrice.String
	p.CreatedAt = createdAt.Time
	p.UpdatedAt = updatedAt.Time
	p.LastScrapedAt = lastScrapedAt.Time
	return &p, nil
}

func (s *SQLiteStore) GetProject(ctx context.Context, id string) (*model.Property, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+projectColumns+` FROM approved_projects WHERE id = ?`,
		id,
	)
	p, err := scanProjectRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get project %s", id)
	}
	return p, nil
}

func (s *SQLiteStore) FindProject(ctx context.Context, projectName, city string) (*model.Property, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+projectColumns+` FROM approved_projects
		WHERE lower(project_name) = lower(?) AND lower(city) = lower(?)
		ORDER BY updated_at DESC LIMIT 1`,
		projectName, city,
	)
	p, err := scanProjectRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: find project %s, %s", projectName, city)
	}
	return p, nil
}

func (s *SQLiteStore) InsertProject(ctx context.Context, p *model.Property) error {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	p.CreatedAt = now
	p.UpdatedAt = now
	p.LastScrapedAt = now

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO approved_projects (
			id, project_name, property_type, builder_name, city, approval_status, source,
			magicbricks_url, magicbricks_price, nobroker_url, nobroker_price,
			acres99_url, acres99_price, housing_url, housing_price, google_price,
			created_at, updated_at, last_scraped_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.ProjectName, p.PropertyType, p.BuilderName, p.City, p.ApprovalStatus, p.Source,
		p.MagicbricksURL, p.MagicbricksPrice, p.NobrokerURL, p.NobrokerPrice,
		p.Acres99URL, p.Acres99Price, p.HousingURL, p.HousingPrice, p.GooglePrice,
		p.CreatedAt, p.UpdatedAt, p.LastScrapedAt,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: insert project %s", p.ProjectName)
	}
	return nil
}

func (s *SQLiteStore) UpdateProjectResearch(ctx context.Context, p *model.Property) error {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`UPDATE approved_projects SET
			approval_status = ?, source = ?,
			magicbricks_url = ?, magicbricks_price = ?, nobroker_url = ?, nobroker_price = ?,
			acres99_url = ?, acres99_price = ?, housing_url = ?, housing_price = ?, google_price = ?,
			updated_at = ?, last_scraped_at = ?
		WHERE id = ?`,
		p.ApprovalStatus, p.Source,
		p.MagicbricksURL, p.MagicbricksPrice, p.NobrokerURL, p.NobrokerPrice,
		p.Acres99URL, p.Acres99Price, p.HousingURL, p.HousingPrice, p.GooglePrice,
		now, now, p.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update project %s", p.ID)
	}
	if err := checkRowsAffected(res, "project", p.ID); err != nil {
		return err
	}
	p.UpdatedAt = now
	p.LastScrapedAt = now
	return nil
}

func (s *SQLiteStore) UpdateProjectPrices(ctx context.Context, id string, columns map[string]string) error {
	if len(columns) == 0 {
		return eris.New("sqlite: no price columns to update")
	}
	if err := validatePriceColumns(columns); err != nil {
		return err
	}

	cols := make([]string, 0, len(columns))
	for col := range columns {
		cols = append(cols, col)
	}
	sort.Strings(cols)

	var sets []string
	var args []any
	for _, col := range cols {
		sets = append(sets, fmt.Sprintf("%s = ?", col))
		args = append(args, columns[col])
	}
	now := time.Now().UTC()
	query := fmt.Sprintf(
		"UPDATE approved_projects SET %s, updated_at = ?, last_scraped_at = ? WHERE id = ?",
		strings.Join(sets, ", "),
	)
	args = append(args, now, now, id)

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update prices %s", id)
	}
	return checkRowsAffected(res, "project", id)
}

func (s *SQLiteStore) SelectStaleProjects(ctx context.Context, f StaleFilter) ([]model.ProjectRef, error) {
	cutoff := time.Now().UTC().AddDate(0, 0, -f.Days)
	query := `SELECT id, project_name, city FROM approved_projects
		WHERE (updated_at IS NULL OR updated_at <= ?)`
	args := []any{cutoff}

	if len(f.Cities) > 0 {
		placeholders := make([]string, len(f.Cities))
		for i, c := range f.Cities {
			placeholders[i] = "?"
			args = append(args, strings.ToLower(strings.TrimSpace(c)))
		}
		query += fmt.Sprintf(` AND lower(city) IN (%s)`, strings.Join(placeholders, ", "))
	}
	query += ` ORDER BY updated_at ASC, created_at ASC`
	if f.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, f.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: select stale projects")
	}
	defer rows.Close()

	var refs []model.ProjectRef
	for rows.Next() {
		var ref model.ProjectRef
		var city sql.NullString
		if err := rows.Scan(&ref.ID, &ref.ProjectName, &city); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan stale project")
		}
		ref.City = city.String
		refs = append(refs, ref)
	}
	return refs, eris.Wrap(rows.Err(), "sqlite: iterate stale projects")
}

func (s *SQLiteStore) LinkLenders(ctx context.Context, projectID string, lenderIDs []string) error {
	for _, lenderID := range lenderIDs {
		_, err := s.db.ExecContext(ctx,
			`INSERT INTO approved_projects_lenders (project_id, lender_id, created_at) VALUES (?, ?, ?)
			ON CONFLICT (project_id, lender_id) DO NOTHING`,
			projectID, lenderID, time.Now().UTC(),
		)
		if err != nil {
			return eris.Wrapf(err, "sqlite: link lender %s to project %s", lenderID, projectID)
		}
	}
	return nil
}

func scanLenderRow(row interface{ Scan(...any) error }) (*model.Lender, error) {
	var l model.Lender
	var roi, ltv, approvalTime, fees, offers sql.NullString
	var minScore, minTenure, maxTenure sql.NullInt64
	var minAmount, maxAmount sql.NullInt64
	var createdAt, updatedAt sql.NullTime

	err := row.Scan(
		&l.ID, &l.LenderName, &roi, &ltv, &minScore,
		&minAmount, &maxAmount, &minTenure, &maxTenure,
		&approvalTime, &fees, &offers, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	l.HomeLoanROI = roi.String
	l.LoanToValue = ltv.String
	l.MinCreditScore = int(minScore.Int64)
	l.MinLoanAmount = minAmount.Int64
	l.MaxLoanAmount = maxAmount.Int64
	l.MinTenureYears = int(minTenure.Int64)
	l.MaxTenureYears = int(maxTenure.Int64)
	l.ApprovalTime = approvalTime.String
	l.ProcessingFees = fees.String
	l.SpecialOffers = offers.String
	l.CreatedAt = createdAt.Time
	l.UpdatedAt = updatedAt.Time
	return &l, nil
}

func (s *SQLiteStore) FetchLenders(ctx context.Context) ([]model.Lender, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+lenderColumns+` FROM lenders ORDER BY lender_name`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: fetch lenders")
	}
	defer rows.Close()

	var lenders []model.Lender
	for rows.Next() {
		l, err := scanLenderRow(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan lender")
		}
		lenders = append(lenders, *l)
	}
	return lenders, eris.Wrap(rows.Err(), "sqlite: iterate lenders")
}

func (s *SQLiteStore) SelectStaleLenders(ctx context.Context, days, limit int) ([]model.Lender, error) {
	cutoff := time.Now().UTC().AddDate(0, 0, -days)
	query := `SELECT ` + lenderColumns + ` FROM lenders
		WHERE (updated_at IS NULL OR updated_at <= ?)
		ORDER BY updated_at ASC`
	args := []any{cutoff}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: select stale lenders")
	}
	defer rows.Close()

	var lenders []model.Lender
	for rows.Next() {
		l, err := scanLenderRow(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan stale lender")
		}
		lenders = append(lenders, *l)
	}
	return lenders, eris.Wrap(rows.Err(), "sqlite: iterate stale lenders")
}

func (s *SQLiteStore) UpdateLenderTerms(ctx context.Context, l *model.Lender) error {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`UPDATE lenders SET
			home_loan_roi = ?, loan_to_value = ?, min_credit_score = ?,
			min_loan_amount = ?, max_loan_amount = ?, min_tenure_years = ?, max_tenure_years = ?,
			approval_time = ?, processing_fees = ?, special_offers = ?, updated_at = ?
		WHERE id = ?`,
		l.HomeLoanROI, l.LoanToValue, l.MinCreditScore,
		l.MinLoanAmount, l.MaxLoanAmount, l.MinTenureYears, l.MaxTenureYears,
		l.ApprovalTime, l.ProcessingFees, l.SpecialOffers, now, l.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update lender %s", l.ID)
	}
	if err := checkRowsAffected(res, "lender", l.ID); err != nil {
		return err
	}
	l.UpdatedAt = now
	return nil
}

// InsertLender adds a registry entry, used by the import path when a
// canonical lender is referenced for the first time.
func (s *SQLiteStore) InsertLender(ctx context.Context, l *model.Lender) error {
	if l.ID == "" {
		l.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	l.CreatedAt = now
	l.UpdatedAt = now
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO lenders (id, lender_name, created_at, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT (lender_name) DO NOTHING`,
		l.ID, l.LenderName, l.CreatedAt, l.UpdatedAt,
	)
	return eris.Wrapf(err, "sqlite: insert lender %s", l.LenderName)
}

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrapf(err, "sqlite: rows affected for %s %s", entity, id)
	}
	if n == 0 {
		return eris.Wrapf(ErrNotFound, "sqlite: %s %s", entity, id)
	}
	return nil
}
