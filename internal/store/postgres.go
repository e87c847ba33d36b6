package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sniffer-group/propintel-cli/internal/db"
	"github.com/sniffer-group/propintel-cli/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

const projectColumns = `id, project_name, property_type, builder_name, city, approval_status, source,
	magicbricks_url, magicbricks_price, nobroker_url, nobroker_price,
	acres99_url, acres99_price, housing_url, housing_price, google_price,
	created_at, updated_at, last_scraped_at`

const lenderColumns = `id, lender_name, home_loan_roi, loan_to_value, min_credit_score,
	min_loan_amount, max_loan_amount, min_tenure_years, max_tenure_years,
	approval_time, processing_fees, special_offers, created_at, updated_at`

// preparedStatements lists queries to prepare on each new connection for
// faster execution of the most frequently used store operations. Bulk runs
// hit find_project and the update statements once per property.
var preparedStatements = map[string]string{
	"get_project":   `SELECT ` + projectColumns + ` FROM approved_projects WHERE id = $1`,
	"find_project":  `SELECT ` + projectColumns + ` FROM approved_projects WHERE lower(project_name) = lower($1) AND lower(city) = lower($2) ORDER BY updated_at DESC NULLS LAST LIMIT 1`,
	"fetch_lenders": `SELECT ` + lenderColumns + ` FROM lenders ORDER BY lender_name`,
	"link_lenders":  `INSERT INTO approved_projects_lenders (project_id, lender_id) VALUES ($1, $2) ON CONFLICT (project_id, lender_id) DO NOTHING`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	// Apply pool sizing from config with sensible defaults.
	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	// Prepare frequently-used statements on each new connection.
	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// Pool returns the underlying database pool for use by subsystems
// that need direct query access (e.g., bulk XLSX import).
func (s *PostgresStore) Pool() db.Pool {
	return s.pool
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS approved_projects (
	id                TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
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
	created_at        TIMESTAMPTZ DEFAULT now(),
	updated_at        TIMESTAMPTZ DEFAULT now(),
	last_scraped_at   TIMESTAMPTZ,
	UNIQUE (project_name, city)
);

CREATE INDEX IF NOT EXISTS idx_approved_projects_updated_at ON approved_projects(updated_at);
CREATE INDEX IF NOT EXISTS idx_approved_projects_city_lower ON approved_projects(lower(city));
CREATE INDEX IF NOT EXISTS idx_approved_projects_name_lower ON approved_projects(lower(project_name));

CREATE TABLE IF NOT EXISTS lenders (
	id               TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	lender_name      TEXT NOT NULL UNIQUE,
	home_loan_roi    TEXT,
	loan_to_value    TEXT,
	min_credit_score INTEGER,
	min_loan_amount  BIGINT,
	max_loan_amount  BIGINT,
	min_tenure_years INTEGER,
	max_tenure_years INTEGER,
	approval_time    TEXT,
	processing_fees  TEXT,
	special_offers   TEXT,
	created_at       TIMESTAMPTZ DEFAULT now(),
	updated_at       TIMESTAMPTZ DEFAULT now()
);

CREATE TABLE IF NOT EXISTS approved_projects_lenders (
	project_id TEXT NOT NULL REFERENCES approved_projects(id) ON DELETE CASCADE,
	lender_id  TEXT NOT NULL REFERENCES lenders(id) ON DELETE CASCADE,
	created_at TIMESTAMPTZ DEFAULT now(),
	UNIQUE (project_id, lender_id)
);

CREATE INDEX IF NOT EXISTS idx_approved_projects_lenders_project ON approved_projects_lenders(project_id);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

// scanProject reads one approved_projects row in projectColumns order.
func scanProject(row pgx.Row) (*model.Property, error) {
	var p model.Property
	var propertyType, builderName, city, approvalStatus, source *string
	var mbURL, mbPrice, nbURL, nbPrice, acURL, acPrice, hoURL, hoPrice, goPrice *string
	var createdAt, updatedAt, lastScrapedAt *time.Time

	err := row.Scan(
		&p.ID, &p.ProjectName, &propertyType, &builderName, &city, &approvalStatus, &source,
		&mbURL, &mbPrice, &nbURL, &nbPrice,
		&acURL, &acPrice, &hoURL, &hoPrice, &goPrice,
		&createdAt, &updatedAt, &lastScrapedAt,
	)
	if err != nil {
		return nil, err
	}

	p.PropertyType = strVal(propertyType)
	p.BuilderName = strVal(builderName)
	p.City = strVal(city)
	p.ApprovalStatus = strVal(approvalStatus)
	p.Source = strVal(source)
	p.MagicbricksURL = strVal(mbURL)
	p.MagicbricksPrice = strVal(mbPrice)
	p.NobrokerURL = strVal(nbURL)
	p.NobrokerPrice = strVal(nbPrice)
	p.Acres99URL = strVal(acURL)
	p.Acres99Price = strVal(acPrice)
	p.HousingURL = strVal(hoURL)
	p.HousingPrice = strVal(hoPrice)
	p.GooglePrice = strVal(goPrice)
	p.CreatedAt = timeVal(createdAt)
	p.UpdatedAt = timeVal(updatedAt)
	p.LastScrapedAt = timeVal(lastScrapedAt)
	return &p, nil
}

func (s *PostgresStore) GetProject(ctx context.Context, id string) (*model.Property, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+projectColumns+` FROM approved_projects WHERE id = $1`,
		id,
	)
	p, err := scanProject(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get project %s", id)
	}
	return p, nil
}

func (s *PostgresStore) FindProject(ctx context.Context, projectName, city string) (*model.Property, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+projectColumns+` FROM approved_projects WHERE lower(project_name) = lower($1) AND lower(city) = lower($2) ORDER BY updated_at DESC NULLS LAST LIMIT 1`,
		projectName, city,
	)
	p, err := scanProject(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: find project %s, %s", projectName, city)
	}
	return p, nil
}

func (s *PostgresStore) InsertProject(ctx context.Context, p *model.Property) error {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	p.CreatedAt = now
	p.UpdatedAt = now
	p.LastScrapedAt = now

	_, err := s.pool.Exec(ctx,
		`INSERT INTO approved_projects (
			id, project_name, property_type, builder_name, city, approval_status, source,
			magicbricks_url, magicbricks_price, nobroker_url, nobroker_price,
			acres99_url, acres99_price, housing_url, housing_price, google_price,
			created_at, updated_at, last_scraped_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)`,
		p.ID, p.ProjectName, p.PropertyType, p.BuilderName, p.City, p.ApprovalStatus, p.Source,
		p.MagicbricksURL, p.MagicbricksPrice, p.NobrokerURL, p.NobrokerPrice,
		p.Acres99URL, p.Acres99Price, p.HousingURL, p.HousingPrice, p.GooglePrice,
		p.CreatedAt, p.UpdatedAt, p.LastScrapedAt,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: insert project %s", p.ProjectName)
	}
	return nil
}

// UpdateProjectResearch overwrites the research columns of an existing row.
// Identity columns (project_name, city, property_type, builder_name) are
// never touched on update.
func (s *PostgresStore) UpdateProjectResearch(ctx context.Context, p *model.Property) error {
	now := time.Now().UTC()
	tag, err := s.pool.Exec(ctx,
		`UPDATE approved_projects SET
			approval_status = $1, source = $2,
			magicbricks_url = $3, magicbricks_price = $4, nobroker_url = $5, nobroker_price = $6,
			acres99_url = $7, acres99_price = $8, housing_url = $9, housing_price = $10, google_price = $11,
			updated_at = $12, last_scraped_at = $13
		WHERE id = $14`,
		p.ApprovalStatus, p.Source,
		p.MagicbricksURL, p.MagicbricksPrice, p.NobrokerURL, p.NobrokerPrice,
		p.Acres99URL, p.Acres99Price, p.HousingURL, p.HousingPrice, p.GooglePrice,
		now, now, p.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update project %s", p.ID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "postgres: project %s", p.ID)
	}
	p.UpdatedAt = now
	p.LastScrapedAt = now
	return nil
}

// UpdateProjectPrices updates only the given price columns plus the scrape
// timestamps, leaving everything else untouched. Columns are sorted so the
// generated statement is deterministic.
func (s *PostgresStore) UpdateProjectPrices(ctx context.Context, id string, columns map[string]string) error {
	if len(columns) == 0 {
		return eris.New("postgres: no price columns to update")
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
	for i, col := range cols {
		sets = append(sets, fmt.Sprintf("%s = $%d", col, i+1))
		args = append(args, columns[col])
	}
	n := len(args)
	now := time.Now().UTC()
	query := fmt.Sprintf(
		"UPDATE approved_projects SET %s, updated_at = $%d, last_scraped_at = $%d WHERE id = $%d",
		strings.Join(sets, ", "), n+1, n+2, n+3,
	)
	args = append(args, now, now, id)

	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return eris.Wrapf(err, "postgres: update prices %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "postgres: project %s", id)
	}
	return nil
}

func (s *PostgresStore) SelectStaleProjects(ctx context.Context, f StaleFilter) ([]model.ProjectRef, error) {
	query := `SELECT id, project_name, city FROM approved_projects
		WHERE (updated_at IS NULL OR updated_at <= (now() - make_interval(days => $1)))`
	args := []any{f.Days}

	if len(f.Cities) > 0 {
		lowered := make([]string, len(f.Cities))
		for i, c := range f.Cities {
			lowered[i] = strings.ToLower(strings.TrimSpace(c))
		}
		query += ` AND lower(city) = ANY($2)`
		args = append(args, lowered)
	}
	query += ` ORDER BY updated_at NULLS FIRST, created_at NULLS FIRST`
	if f.Limit > 0 {
		query += fmt.Sprintf(` LIMIT $%d`, len(args)+1)
		args = append(args, f.Limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: select stale projects")
	}
	defer rows.Close()

	var refs []model.ProjectRef
	for rows.Next() {
		var ref model.ProjectRef
		var city *string
		if err := rows.Scan(&ref.ID, &ref.ProjectName, &city); err != nil {
			return nil, eris.Wrap(err, "postgres: scan stale project")
		}
		ref.City = strVal(city)
		refs = append(refs, ref)
	}
	return refs, eris.Wrap(rows.Err(), "postgres: iterate stale projects")
}

// LinkLenders associates a project with its approving lenders. Existing
// links are left alone, so re-linking is idempotent.
func (s *PostgresStore) LinkLenders(ctx context.Context, projectID string, lenderIDs []string) error {
	for _, lenderID := range lenderIDs {
		_, err := s.pool.Exec(ctx,
			`INSERT INTO approved_projects_lenders (project_id, lender_id) VALUES ($1, $2) ON CONFLICT (project_id, lender_id) DO NOTHING`,
			projectID, lenderID,
		)
		if err != nil {
			return eris.Wrapf(err, "postgres: link lender %s to project %s", lenderID, projectID)
		}
	}
	return nil
}

// scanLender reads one lenders row in lenderColumns order.
func scanLender(row pgx.Row) (*model.Lender, error) {
	var l model.Lender
	var roi, ltv, approvalTime, fees, offers *string
	var minScore, minTenure, maxTenure *int
	var minAmount, maxAmount *int64
	var createdAt, updatedAt *time.Time

	err := row.Scan(
		&l.ID, &l.LenderName, &roi, &ltv, &minScore,
		&minAmount, &maxAmount, &minTenure, &maxTenure,
		&approvalTime, &fees, &offers, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	l.HomeLoanROI = strVal(roi)
	l.LoanToValue = strVal(ltv)
	l.MinCreditScore = intVal(minScore)
	l.MinLoanAmount = int64Val(minAmount)
	l.MaxLoanAmount = int64Val(maxAmount)
	l.MinTenureYears = intVal(minTenure)
	l.MaxTenureYears = intVal(maxTenure)
	l.ApprovalTime = strVal(approvalTime)
	l.ProcessingFees = strVal(fees)
	l.SpecialOffers = strVal(offers)
	l.CreatedAt = timeVal(createdAt)
	l.UpdatedAt = timeVal(updatedAt)
	return &l, nil
}

// FetchLenders returns the full canonical lender registry, ordered by name.
func (s *PostgresStore) FetchLenders(ctx context.Context) ([]model.Lender, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+lenderColumns+` FROM lenders ORDER BY lender_name`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: fetch lenders")
	}
	defer rows.Close()

	var lenders []model.Lender
	for rows.Next() {
		l, err := scanLender(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan lender")
		}
		lenders = append(lenders, *l)
	}
	return lenders, eris.Wrap(rows.Err(), "postgres: iterate lenders")
}

// InsertLender adds a registry entry, used when seeding the canonical
// lender list. Names already present are left untouched.
func (s *PostgresStore) InsertLender(ctx context.Context, l *model.Lender) error {
	if l.ID == "" {
		l.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	l.CreatedAt = now
	l.UpdatedAt = now
	_, err := s.pool.Exec(ctx,
		`INSERT INTO lenders (id, lender_name, created_at, updated_at) VALUES ($1, $2, $3, $4)
		ON CONFLICT (lender_name) DO NOTHING`,
		l.ID, l.LenderName, l.CreatedAt, l.UpdatedAt,
	)
	return eris.Wrapf(err, "postgres: insert lender %s", l.LenderName)
}

func (s *PostgresStore) SelectStaleLenders(ctx context.Context, days, limit int) ([]model.Lender, error) {
	query := `SELECT ` + lenderColumns + ` FROM lenders
		WHERE (updated_at IS NULL OR updated_at <= (now() - make_interval(days => $1)))
		ORDER BY updated_at NULLS FIRST`
	args := []any{days}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: select stale lenders")
	}
	defer rows.Close()

	var lenders []model.Lender
	for rows.Next() {
		l, err := scanLender(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan stale lender")
		}
		lenders = append(lenders, *l)
	}
	return lenders, eris.Wrap(rows.Err(), "postgres: iterate stale lenders")
}

func (s *PostgresStore) UpdateLenderTerms(ctx context.Context, l *model.Lender) error {
	now := time.Now().UTC()
	tag, err := s.pool.Exec(ctx,
		`UPDATE lenders SET
			home_loan_roi = $1, loan_to_value = $2, min_credit_score = $3,
			min_loan_amount = $4, max_loan_amount = $5, min_tenure_years = $6, max_tenure_years = $7,
			approval_time = $8, processing_fees = $9, special_offers = $10, updated_at = $11
		WHERE id = $12`,
		l.HomeLoanROI, l.LoanToValue, l.MinCreditScore,
		l.MinLoanAmount, l.MaxLoanAmount, l.MinTenureYears, l.MaxTenureYears,
		l.ApprovalTime, l.ProcessingFees, l.SpecialOffers, now, l.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update lender %s", l.ID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "postgres: lender %s", l.ID)
	}
	l.UpdatedAt = now
	return nil
}
