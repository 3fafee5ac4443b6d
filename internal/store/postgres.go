package store

import (
	"context"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sunscout/installer-cli/internal/classify"
	"github.com/sunscout/installer-cli/internal/db"
	"github.com/sunscout/installer-cli/internal/match"
	"github.com/sunscout/installer-cli/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
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

// NewPostgresWithPool creates a PostgresStore over an existing pool.
// Used by tests with a pgxmock pool.
func NewPostgresWithPool(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS installers (
	id                TEXT PRIMARY KEY,
	source_id         TEXT UNIQUE,
	name              TEXT NOT NULL,
	name_key          TEXT NOT NULL,
	latitude          DOUBLE PRECISION NOT NULL,
	longitude         DOUBLE PRECISION NOT NULL,
	street            TEXT NOT NULL DEFAULT '',
	city              TEXT NOT NULL DEFAULT '',
	state             TEXT NOT NULL DEFAULT '',
	zip_code          TEXT NOT NULL DEFAULT '',
	phone             TEXT NOT NULL DEFAULT '',
	website           TEXT NOT NULL DEFAULT '',
	total_reviews     INTEGER NOT NULL DEFAULT 0,
	years_in_business INTEGER NOT NULL DEFAULT 0,
	last_seen_at      TIMESTAMPTZ NOT NULL,
	last_enriched_at  TIMESTAMPTZ,
	created_at        TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS specialty_tags (
	slug  TEXT PRIMARY KEY,
	label TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS installer_specialties (
	installer_id TEXT NOT NULL REFERENCES installers(id),
	slug         TEXT NOT NULL REFERENCES specialty_tags(slug),
	PRIMARY KEY (installer_id, slug)
);

CREATE TABLE IF NOT EXISTS reference_links (
	installer_id TEXT NOT NULL REFERENCES installers(id),
	kind         TEXT NOT NULL,
	url          TEXT NOT NULL,
	PRIMARY KEY (installer_id, kind)
);

CREATE TABLE IF NOT EXISTS portfolio_projects (
	installer_id TEXT NOT NULL REFERENCES installers(id),
	size_kw      DOUBLE PRECISION NOT NULL,
	completed_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS scan_log (
	id           TEXT PRIMARY KEY,
	installer_id TEXT,
	source       TEXT NOT NULL,
	status       TEXT NOT NULL,
	message      TEXT NOT NULL,
	created_at   TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_installers_name_key ON installers(name_key);
CREATE INDEX IF NOT EXISTS idx_installers_coords ON installers(latitude, longitude);
CREATE INDEX IF NOT EXISTS idx_scan_log_installer ON scan_log(installer_id);
CREATE INDEX IF NOT EXISTS idx_portfolio_installer ON portfolio_projects(installer_id);
`

// Migrate creates the schema and seeds the specialty vocabulary.
// installer_specialties.slug carries a foreign key to specialty_tags, so
// crawl results cannot be applied until the vocabulary rows exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, postgresMigration); err != nil {
		return eris.Wrap(err, "postgres: migrate")
	}
	return s.SeedSpecialtyTags(ctx, classify.Tags())
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

const pgInstallerColumns = `id, source_id, name, latitude, longitude, street, city, state, zip_code,
	phone, website, total_reviews, years_in_business, last_seen_at, last_enriched_at, created_at`

func (s *PostgresStore) FindBySourceID(ctx context.Context, sourceID string) (*model.Installer, error) {
	if sourceID == "" {
		return nil, nil
	}
	row := s.pool.QueryRow(ctx,
		`SELECT `+pgInstallerColumns+` FROM installers WHERE source_id = $1`, sourceID)
	return s.scanInstaller(ctx, row)
}

func (s *PostgresStore) FindByNameNear(ctx context.Context, name string, lat, lon, tolerance float64) (*model.Installer, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+pgInstallerColumns+` FROM installers
		 WHERE name_key = $1
		   AND latitude BETWEEN $2 AND $3
		   AND longitude BETWEEN $4 AND $5
		 LIMIT 1`,
		match.NormalizeName(name),
		lat-tolerance, lat+tolerance,
		lon-tolerance, lon+tolerance,
	)
	return s.scanInstaller(ctx, row)
}

func (s *PostgresStore) GetInstaller(ctx context.Context, id string) (*model.Installer, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+pgInstallerColumns+` FROM installers WHERE id = $1`, id)
	return s.scanInstaller(ctx, row)
}

func (s *PostgresStore) ListInstallers(ctx context.Context, filter InstallerFilter) ([]model.Installer, error) {
	query := `SELECT ` + pgInstallerColumns + ` FROM installers`
	var args []any
	if filter.Specialty != "" {
		query += ` WHERE id IN (SELECT installer_id FROM installer_specialties WHERE slug = $1)`
		args = append(args, filter.Specialty)
	}
	query += ` ORDER BY name`
	if filter.Limit > 0 {
		query += ` LIMIT ` + placeholder(len(args)+1)
		args = append(args, filter.Limit)
		if filter.Offset > 0 {
			query += ` OFFSET ` + placeholder(len(args)+1)
			args = append(args, filter.Offset)
		}
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list installers")
	}
	defer rows.Close()

	var out []model.Installer
	for rows.Next() {
		inst, err := scanPgInstaller(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *inst)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "postgres: list installers rows")
	}

	for i := range out {
		specs, err := s.loadSpecialties(ctx, out[i].ID)
		if err != nil {
			return nil, err
		}
		out[i].Specialties = specs
	}
	return out, nil
}

func (s *PostgresStore) CreateInstaller(ctx context.Context, installer *model.Installer) error {
	if installer.ID == "" {
		installer.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	if installer.CreatedAt.IsZero() {
		installer.CreatedAt = now
	}
	if installer.LastSeenAt.IsZero() {
		installer.LastSeenAt = now
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO installers (`+pgInstallerColumns+`, name_key)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`,
		installer.ID, pgNullIfEmpty(installer.SourceID), installer.Name,
		installer.Latitude, installer.Longitude,
		installer.Street, installer.City, installer.State, installer.ZipCode,
		installer.Phone, installer.Website,
		installer.TotalReviews, installer.YearsInBusiness,
		installer.LastSeenAt, installer.LastEnrichedAt, installer.CreatedAt,
		match.NormalizeName(installer.Name),
	)
	return eris.Wrapf(err, "postgres: insert installer %s", installer.Name)
}

func (s *PostgresStore) UpdateInstaller(ctx context.Context, installer *model.Installer) error {
	installer.LastSeenAt = time.Now().UTC()

	tag, err := s.pool.Exec(ctx,
		`UPDATE installers SET
			source_id = $1, name = $2, name_key = $3, latitude = $4, longitude = $5,
			street = $6, city = $7, state = $8, zip_code = $9, phone = $10, website = $11,
			total_reviews = $12, years_in_business = $13, last_seen_at = $14, last_enriched_at = $15
		 WHERE id = $16`,
		pgNullIfEmpty(installer.SourceID), installer.Name, match.NormalizeName(installer.Name),
		installer.Latitude, installer.Longitude,
		installer.Street, installer.City, installer.State, installer.ZipCode,
		installer.Phone, installer.Website,
		installer.TotalReviews, installer.YearsInBusiness,
		installer.LastSeenAt, installer.LastEnrichedAt,
		installer.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update installer %s", installer.ID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("postgres: installer %s not found", installer.ID)
	}
	return nil
}

func (s *PostgresStore) SeedSpecialtyTags(ctx context.Context, tags map[string]string) error {
	for slug, label := range tags {
		_, err := s.pool.Exec(ctx,
			`INSERT INTO specialty_tags (slug, label) VALUES ($1, $2)
			 ON CONFLICT (slug) DO UPDATE SET label = EXCLUDED.label`,
			slug, label)
		if err != nil {
			return eris.Wrapf(err, "postgres: seed tag %s", slug)
		}
	}
	return nil
}

func (s *PostgresStore) ReplaceSpecialties(ctx context.Context, installerID string, slugs []string) error {
	if _, err := s.pool.Exec(ctx,
		`DELETE FROM installer_specialties WHERE installer_id = $1`, installerID); err != nil {
		return eris.Wrapf(err, "postgres: clear specialties for %s", installerID)
	}
	for _, slug := range slugs {
		if _, err := s.pool.Exec(ctx,
			`INSERT INTO installer_specialties (installer_id, slug) VALUES ($1, $2)`,
			installerID, slug); err != nil {
			return eris.Wrapf(err, "postgres: add specialty %s", slug)
		}
	}
	return nil
}

func (s *PostgresStore) AddReferenceLinks(ctx context.Context, links []model.ReferenceLink) error {
	for _, l := range links {
		_, err := s.pool.Exec(ctx,
			`INSERT INTO reference_links (installer_id, kind, url) VALUES ($1, $2, $3)
			 ON CONFLICT (installer_id, kind) DO NOTHING`,
			l.InstallerID, l.Kind, l.URL)
		if err != nil {
			return eris.Wrapf(err, "postgres: add reference link %s", l.Kind)
		}
	}
	return nil
}

func (s *PostgresStore) ListReferenceLinks(ctx context.Context, installerID string) ([]model.ReferenceLink, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT installer_id, kind, url FROM reference_links WHERE installer_id = $1 ORDER BY kind`,
		installerID)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list reference links")
	}
	defer rows.Close()

	var out []model.ReferenceLink
	for rows.Next() {
		var l model.ReferenceLink
		if err := rows.Scan(&l.InstallerID, &l.Kind, &l.URL); err != nil {
			return nil, eris.Wrap(err, "postgres: scan reference link")
		}
		out = append(out, l)
	}
	return out, eris.Wrap(rows.Err(), "postgres: reference link rows")
}

func (s *PostgresStore) ListPortfolio(ctx context.Context, installerID string) ([]model.PortfolioProject, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT installer_id, size_kw, completed_at FROM portfolio_projects WHERE installer_id = $1`,
		installerID)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list portfolio")
	}
	defer rows.Close()

	var out []model.PortfolioProject
	for rows.Next() {
		var p model.PortfolioProject
		if err := rows.Scan(&p.InstallerID, &p.SizeKW, &p.CompletedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan portfolio project")
		}
		out = append(out, p)
	}
	return out, eris.Wrap(rows.Err(), "postgres: portfolio rows")
}

func (s *PostgresStore) AppendScanLog(ctx context.Context, entry *model.ScanLogEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO scan_log (id, installer_id, source, status, message, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		entry.ID, pgNullIfEmpty(entry.InstallerID), entry.Source,
		string(entry.Status), entry.Message, entry.CreatedAt)
	return eris.Wrap(err, "postgres: append scan log")
}

func (s *PostgresStore) ListScanLog(ctx context.Context, filter ScanLogFilter) ([]model.ScanLogEntry, error) {
	query := `SELECT id, installer_id, source, status, message, created_at FROM scan_log`
	var args []any
	if filter.InstallerID != "" {
		query += ` WHERE installer_id = $1`
		args = append(args, filter.InstallerID)
	}
	query += ` ORDER BY created_at DESC`
	if filter.Limit > 0 {
		query += ` LIMIT ` + placeholder(len(args)+1)
		args = append(args, filter.Limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list scan log")
	}
	defer rows.Close()

	var out []model.ScanLogEntry
	for rows.Next() {
		var e model.ScanLogEntry
		var installerID *string
		if err := rows.Scan(&e.ID, &installerID, &e.Source, &e.Status, &e.Message, &e.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan log row")
		}
		if installerID != nil {
			e.InstallerID = *installerID
		}
		out = append(out, e)
	}
	return out, eris.Wrap(rows.Err(), "postgres: scan log rows")
}

func (s *PostgresStore) scanInstaller(ctx context.Context, row pgx.Row) (*model.Installer, error) {
	inst, err := scanPgInstaller(row)
	if err != nil {
		return nil, err
	}
	if inst == nil {
		return nil, nil
	}
	specs, err := s.loadSpecialties(ctx, inst.ID)
	if err != nil {
		return nil, err
	}
	inst.Specialties = specs
	return inst, nil
}

func scanPgInstaller(row pgx.Row) (*model.Installer, error) {
	var inst model.Installer
	var sourceID *string
	var enrichedAt *time.Time

	err := row.Scan(
		&inst.ID, &sourceID, &inst.Name, &inst.Latitude, &inst.Longitude,
		&inst.Street, &inst.City, &inst.State, &inst.ZipCode,
		&inst.Phone, &inst.Website,
		&inst.TotalReviews, &inst.YearsInBusiness,
		&inst.LastSeenAt, &enrichedAt, &inst.CreatedAt,
	)
	if err != nil {
		if eris.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrap(err, "postgres: scan installer")
	}
	if sourceID != nil {
		inst.SourceID = *sourceID
	}
	inst.LastEnrichedAt = enrichedAt
	return &inst, nil
}

func (s *PostgresStore) loadSpecialties(ctx context.Context, installerID string) ([]string, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT slug FROM installer_specialties WHERE installer_id = $1 ORDER BY slug`,
		installerID)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: load specialties")
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var slug string
		if err := rows.Scan(&slug); err != nil {
			return nil, eris.Wrap(err, "postgres: scan specialty")
		}
		out = append(out, slug)
	}
	return out, eris.Wrap(rows.Err(), "postgres: specialty rows")
}

func pgNullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func placeholder(n int) string {
	return "$" + strconv.Itoa(n)
}
