package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sunscout/installer-cli/internal/classify"
	"github.com/sunscout/installer-cli/internal/match"
	"github.com/sunscout/installer-cli/internal/model"
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
CREATE TABLE IF NOT EXISTS installers (
	id                TEXT PRIMARY KEY,
	source_id         TEXT UNIQUE,
	name              TEXT NOT NULL,
	name_key          TEXT NOT NULL,
	latitude          REAL NOT NULL,
	longitude         REAL NOT NULL,
	street            TEXT NOT NULL DEFAULT '',
	city              TEXT NOT NULL DEFAULT '',
	state             TEXT NOT NULL DEFAULT '',
	zip_code          TEXT NOT NULL DEFAULT '',
	phone             TEXT NOT NULL DEFAULT '',
	website           TEXT NOT NULL DEFAULT '',
	total_reviews     INTEGER NOT NULL DEFAULT 0,
	years_in_business INTEGER NOT NULL DEFAULT 0,
	last_seen_at      DATETIME NOT NULL,
	last_enriched_at  DATETIME,
	created_at        DATETIME NOT NULL
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
	size_kw      REAL NOT NULL,
	completed_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS scan_log (
	id           TEXT PRIMARY KEY,
	installer_id TEXT,
	source       TEXT NOT NULL,
	status       TEXT NOT NULL,
	message      TEXT NOT NULL,
	created_at   DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_installers_name_key ON installers(name_key);
CREATE INDEX IF NOT EXISTS idx_installers_coords ON installers(latitude, longitude);
CREATE INDEX IF NOT EXISTS idx_scan_log_installer ON scan_log(installer_id);
CREATE INDEX IF NOT EXISTS idx_portfolio_installer ON portfolio_projects(installer_id);
`

// Migrate creates the schema and seeds the specialty vocabulary.
// installer_specialties.slug carries a foreign key to specialty_tags, so
// crawl results cannot be applied until the vocabulary rows exist.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, sqliteMigration); err != nil {
		return eris.Wrap(err, "sqlite: migrate")
	}
	return s.SeedSpecialtyTags(ctx, classify.Tags())
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

const installerColumns = `id, source_id, name, latitude, longitude, street, city, state, zip_code,
	phone, website, total_reviews, years_in_business, last_seen_at, last_enriched_at, created_at`

func (s *SQLiteStore) FindBySourceID(ctx context.Context, sourceID string) (*model.Installer, error) {
	if sourceID == "" {
		return nil, nil
	}
	row := s.db.QueryRowContext(ctx,
		`SELECT `+installerColumns+` FROM installers WHERE source_id = ?`, sourceID)
	return s.scanInstaller(ctx, row)
}

func (s *SQLiteStore) FindByNameNear(ctx context.Context, name string, lat, lon, tolerance float64) (*model.Installer, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+installerColumns+` FROM installers
		 WHERE name_key = ?
		   AND latitude BETWEEN ? AND ?
		   AND longitude BETWEEN ? AND ?
		 LIMIT 1`,
		match.NormalizeName(name),
		lat-tolerance, lat+tolerance,
		lon-tolerance, lon+tolerance,
	)
	return s.scanInstaller(ctx, row)
}

func (s *SQLiteStore) GetInstaller(ctx context.Context, id string) (*model.Installer, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+installerColumns+` FROM installers WHERE id = ?`, id)
	return s.scanInstaller(ctx, row)
}

func (s *SQLiteStore) ListInstallers(ctx context.Context, filter InstallerFilter) ([]model.Installer, error) {
	query := `SELECT ` + installerColumns + ` FROM installers`
	var args []any
	if filter.Specialty != "" {
		query += ` WHERE id IN (SELECT installer_id FROM installer_specialties WHERE slug = ?)`
		args = append(args, filter.Specialty)
	}
	query += ` ORDER BY name`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
		if filter.Offset > 0 {
			query += ` OFFSET ?`
			args = append(args, filter.Offset)
		}
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list installers")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.Installer
	for rows.Next() {
		inst, err := scanInstallerRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *inst)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "sqlite: list installers rows")
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

func (s *SQLiteStore) CreateInstaller(ctx context.Context, installer *model.Installer) error {
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

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO installers (`+installerColumns+`, name_key)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		installer.ID, nullIfEmpty(installer.SourceID), installer.Name,
		installer.Latitude, installer.Longitude,
		installer.Street, installer.City, installer.State, installer.ZipCode,
		installer.Phone, installer.Website,
		installer.TotalReviews, installer.YearsInBusiness,
		installer.LastSeenAt, installer.LastEnrichedAt, installer.CreatedAt,
		match.NormalizeName(installer.Name),
	)
	return eris.Wrapf(err, "sqlite: insert installer %s", installer.Name)
}

func (s *SQLiteStore) UpdateInstaller(ctx context.Context, installer *model.Installer) error {
	installer.LastSeenAt = time.Now().UTC()

	res, err := s.db.ExecContext(ctx,
		`UPDATE installers SET
			source_id = ?, name = ?, name_key = ?, latitude = ?, longitude = ?,
			street = ?, city = ?, state = ?, zip_code = ?, phone = ?, website = ?,
			total_reviews = ?, years_in_business = ?, last_seen_at = ?, last_enriched_at = ?
		 WHERE id = ?`,
		nullIfEmpty(installer.SourceID), installer.Name, match.NormalizeName(installer.Name),
		installer.Latitude, installer.Longitude,
		installer.Street, installer.City, installer.State, installer.ZipCode,
		installer.Phone, installer.Website,
		installer.TotalReviews, installer.YearsInBusiness,
		installer.LastSeenAt, installer.LastEnrichedAt,
		installer.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update installer %s", installer.ID)
	}
	return checkRowsAffected(res, "installer", installer.ID)
}

func (s *SQLiteStore) SeedSpecialtyTags(ctx context.Context, tags map[string]string) error {
	for slug, label := range tags {
		_, err := s.db.ExecContext(ctx,
			`INSERT INTO specialty_tags (slug, label) VALUES (?, ?)
			 ON CONFLICT (slug) DO UPDATE SET label = excluded.label`,
			slug, label)
		if err != nil {
			return eris.Wrapf(err, "sqlite: seed tag %s", slug)
		}
	}
	return nil
}

func (s *SQLiteStore) ReplaceSpecialties(ctx context.Context, installerID string, slugs []string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin replace specialties")
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM installer_specialties WHERE installer_id = ?`, installerID); err != nil {
		return eris.Wrapf(err, "sqlite: clear specialties for %s", installerID)
	}
	for _, slug := range slugs {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO installer_specialties (installer_id, slug) VALUES (?, ?)`,
			installerID, slug); err != nil {
			return eris.Wrapf(err, "sqlite: add specialty %s", slug)
		}
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit replace specialties")
}

func (s *SQLiteStore) AddReferenceLinks(ctx context.Context, links []model.ReferenceLink) error {
	for _, l := range links {
		_, err := s.db.ExecContext(ctx,
			`INSERT INTO reference_links (installer_id, kind, url) VALUES (?, ?, ?)
			 ON CONFLICT (installer_id, kind) DO NOTHING`,
			l.InstallerID, l.Kind, l.URL)
		if err != nil {
			return eris.Wrapf(err, "sqlite: add reference link %s", l.Kind)
		}
	}
	return nil
}

func (s *SQLiteStore) ListReferenceLinks(ctx context.Context, installerID string) ([]model.ReferenceLink, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT installer_id, kind, url FROM reference_links WHERE installer_id = ? ORDER BY kind`,
		installerID)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list reference links")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.ReferenceLink
	for rows.Next() {
		var l model.ReferenceLink
		if err := rows.Scan(&l.InstallerID, &l.Kind, &l.URL); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan reference link")
		}
		out = append(out, l)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: reference link rows")
}

func (s *SQLiteStore) ListPortfolio(ctx context.Context, installerID string) ([]model.PortfolioProject, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT installer_id, size_kw, completed_at FROM portfolio_projects WHERE installer_id = ?`,
		installerID)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list portfolio")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.PortfolioProject
	for rows.Next() {
		var p model.PortfolioProject
		if err := rows.Scan(&p.InstallerID, &p.SizeKW, &p.CompletedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan portfolio project")
		}
		out = append(out, p)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: portfolio rows")
}

func (s *SQLiteStore) AppendScanLog(ctx context.Context, entry *model.ScanLogEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO scan_log (id, installer_id, source, status, message, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		entry.ID, nullIfEmpty(entry.InstallerID), entry.Source,
		string(entry.Status), entry.Message, entry.CreatedAt)
	return eris.Wrap(err, "sqlite: append scan log")
}

func (s *SQLiteStore) ListScanLog(ctx context.Context, filter ScanLogFilter) ([]model.ScanLogEntry, error) {
	query := `SELECT id, installer_id, source, status, message, created_at FROM scan_log`
	var args []any
	if filter.InstallerID != "" {
		query += ` WHERE installer_id = ?`
		args = append(args, filter.InstallerID)
	}
	query += ` ORDER BY created_at DESC`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list scan log")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.ScanLogEntry
	for rows.Next() {
		var e model.ScanLogEntry
		var installerID sql.NullString
		if err := rows.Scan(&e.ID, &installerID, &e.Source, &e.Status, &e.Message, &e.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan log row")
		}
		e.InstallerID = installerID.String
		out = append(out, e)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: scan log rows")
}

// rowScanner covers *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func (s *SQLiteStore) scanInstaller(ctx context.Context, row *sql.Row) (*model.Installer, error) {
	inst, err := scanInstallerRow(row)
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

func scanInstallerRow(row rowScanner) (*model.Installer, error) {
	var inst model.Installer
	var sourceID sql.NullString
	var enrichedAt sql.NullTime

	err := row.Scan(
		&inst.ID, &sourceID, &inst.Name, &inst.Latitude, &inst.Longitude,
		&inst.Street, &inst.City, &inst.State, &inst.ZipCode,
		&inst.Phone, &inst.Website,
		&inst.TotalReviews, &inst.YearsInBusiness,
		&inst.LastSeenAt, &enrichedAt, &inst.CreatedAt,
	)
	if err != nil {
		if eris.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrap(err, "sqlite: scan installer")
	}
	inst.SourceID = sourceID.String
	if enrichedAt.Valid {
		t := enrichedAt.Time
		inst.LastEnrichedAt = &t
	}
	return &inst, nil
}

func (s *SQLiteStore) loadSpecialties(ctx context.Context, installerID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT slug FROM installer_specialties WHERE installer_id = ? ORDER BY slug`,
		installerID)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: load specialties")
	}
	defer rows.Close() //nolint:errcheck

	var out []string
	for rows.Next() {
		var slug string
		if err := rows.Scan(&slug); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan specialty")
		}
		out = append(out, slug)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: specialty rows")
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func checkRowsAffected(res sql.Result, kind, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: rows affected")
	}
	if n == 0 {
		return eris.Errorf("sqlite: %s %s not found", kind, id)
	}
	return nil
}
