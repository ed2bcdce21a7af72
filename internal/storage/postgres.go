package storage

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed migrations/postgres/*.sql
var postgresMigrations embed.FS

// PostgresConfig holds PostgreSQL connection settings.
type PostgresConfig struct {
	Host     string
	Port     int
	Database string
	User     string
	Password string
}

// Enabled reports whether enough settings are present to connect.
func (c PostgresConfig) Enabled() bool {
	return c.Host != "" && c.Database != ""
}

func (c PostgresConfig) url(scheme string) string {
	u := url.URL{
		Scheme:   scheme,
		User:     url.UserPassword(c.User, c.Password),
		Host:     fmt.Sprintf("%s:%d", c.Host, c.Port),
		Path:     "/" + c.Database,
		RawQuery: "sslmode=disable",
	}
	return u.String()
}

// PostgresDB wraps a PostgreSQL connection pool holding the shared catalog mirror.
type PostgresDB struct {
	pool *pgxpool.Pool
	cfg  PostgresConfig
}

// OpenPostgres opens a connection pool to PostgreSQL.
func OpenPostgres(ctx context.Context, cfg PostgresConfig) (*PostgresDB, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.url("postgres"))
	if err != nil {
		return nil, fmt.Errorf("parse postgres config: %w", err)
	}

	poolCfg.MaxConns = 10
	poolCfg.MinConns = 1
	poolCfg.MaxConnLifetime = time.Hour
	poolCfg.MaxConnIdleTime = 30 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	// Test the connection.
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return &PostgresDB{pool: pool, cfg: cfg}, nil
}

// Close closes the PostgreSQL connection pool.
func (d *PostgresDB) Close() {
	d.pool.Close()
}

// CreateSchema applies the mirror migrations.
func (d *PostgresDB) CreateSchema(_ context.Context) error {
	src, err := iofs.New(postgresMigrations, "migrations/postgres")
	if err != nil {
		return fmt.Errorf("load migrations: %w", err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", src, d.cfg.url("pgx5"))
	if err != nil {
		return fmt.Errorf("init migrations: %w", err)
	}
	defer func() { _, _ = m.Close() }()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}

// MirrorSite is a site as stored in the mirror.
type MirrorSite struct {
	ShortName string
	LongName  string
	State     string
	Notes     string
	Mobile    bool
}

// MirrorType is a sounding type as stored in the mirror.
type MirrorType struct {
	Source       string
	FileKind     string
	Observed     bool
	HoursBetween int // 0 = unknown cadence
}

// MirrorLocation is a location as stored in the mirror.
type MirrorLocation struct {
	LatitudeMicro  int64
	LongitudeMicro int64
	Elevation      int
	Latitude       float64
	Longitude      float64
	TZOffset       *int
}

// MirrorFile is one indexed file as stored in the mirror.
type MirrorFile struct {
	FileName       string
	Site           string
	Source         string
	InitTime       time.Time
	LatitudeMicro  int64
	LongitudeMicro int64
	Elevation      int
}

func nullText(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func nullInt(i int) *int {
	if i <= 0 {
		return nil
	}
	return &i
}

// UpsertSites inserts or updates site records.
func (d *PostgresDB) UpsertSites(ctx context.Context, sites []MirrorSite) error {
	batch := &pgx.Batch{}
	for _, s := range sites {
		batch.Queue(`
			INSERT INTO sounding_sites (short_name, long_name, state, notes, mobile, synced_at)
			VALUES ($1, $2, $3, $4, $5, NOW())
			ON CONFLICT (short_name) DO UPDATE SET
				long_name = EXCLUDED.long_name,
				state = EXCLUDED.state,
				notes = EXCLUDED.notes,
				mobile = EXCLUDED.mobile,
				synced_at = EXCLUDED.synced_at
		`, s.ShortName, nullText(s.LongName), nullText(s.State), nullText(s.Notes), s.Mobile)
	}
	return d.sendBatch(ctx, batch, "upsert sites")
}

// UpsertTypes inserts or updates sounding type records.
func (d *PostgresDB) UpsertTypes(ctx context.Context, types []MirrorType) error {
	batch := &pgx.Batch{}
	for _, t := range types {
		batch.Queue(`
			INSERT INTO sounding_types (source, file_kind, observed, hours_between, synced_at)
			VALUES ($1, $2, $3, $4, NOW())
			ON CONFLICT (source) DO UPDATE SET
				file_kind = EXCLUDED.file_kind,
				observed = EXCLUDED.observed,
				hours_between = EXCLUDED.hours_between,
				synced_at = EXCLUDED.synced_at
		`, t.Source, t.FileKind, t.Observed, nullInt(t.HoursBetween))
	}
	return d.sendBatch(ctx, batch, "upsert sounding types")
}

// UpsertLocations inserts or updates location records.
func (d *PostgresDB) UpsertLocations(ctx context.Context, locs []MirrorLocation) error {
	batch := &pgx.Batch{}
	for _, l := range locs {
		batch.Queue(`
			INSERT INTO sounding_locations (latitude_micro, longitude_micro, elevation_meters, latitude, longitude, tz_offset_seconds, synced_at)
			VALUES ($1, $2, $3, $4, $5, $6, NOW())
			ON CONFLICT (latitude_micro, longitude_micro, elevation_meters) DO UPDATE SET
				tz_offset_seconds = EXCLUDED.tz_offset_seconds,
				synced_at = EXCLUDED.synced_at
		`, l.LatitudeMicro, l.LongitudeMicro, l.Elevation, l.Latitude, l.Longitude, l.TZOffset)
	}
	return d.sendBatch(ctx, batch, "upsert locations")
}

// UpsertFiles inserts or updates the file records of one archive.
func (d *PostgresDB) UpsertFiles(ctx context.Context, archive string, files []MirrorFile) error {
	batch := &pgx.Batch{}
	for _, f := range files {
		batch.Queue(`
			INSERT INTO sounding_files (archive, file_name, site, source, init_time, latitude_micro, longitude_micro, elevation_meters, synced_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW())
			ON CONFLICT (archive, file_name) DO UPDATE SET
				site = EXCLUDED.site,
				source = EXCLUDED.source,
				init_time = EXCLUDED.init_time,
				latitude_micro = EXCLUDED.latitude_micro,
				longitude_micro = EXCLUDED.longitude_micro,
				elevation_meters = EXCLUDED.elevation_meters,
				synced_at = EXCLUDED.synced_at
		`, archive, f.FileName, f.Site, f.Source, f.InitTime.UTC(), f.LatitudeMicro, f.LongitudeMicro, f.Elevation)
	}
	return d.sendBatch(ctx, batch, "upsert files")
}

// DeleteFilesExcept removes the mirrored files of an archive whose names are not in keep.
// It returns the number of rows deleted.
func (d *PostgresDB) DeleteFilesExcept(ctx context.Context, archive string, keep []string) (int64, error) {
	if keep == nil {
		keep = []string{}
	}
	tag, err := d.pool.Exec(ctx, `
		DELETE FROM sounding_files
		WHERE archive = $1 AND NOT (file_name = ANY($2))
	`, archive, keep)
	if err != nil {
		return 0, fmt.Errorf("delete files: %w", err)
	}
	return tag.RowsAffected(), nil
}

// ListFiles returns the mirrored file names of an archive in name order.
func (d *PostgresDB) ListFiles(ctx context.Context, archive string) ([]string, error) {
	rows, err := d.pool.Query(ctx, `
		SELECT file_name FROM sounding_files WHERE archive = $1 ORDER BY file_name
	`, archive)
	if err != nil {
		return nil, err
	}
	names, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("list files: %w", err)
	}
	return names, nil
}

// GetSite retrieves a mirrored site. It returns nil if the site is not mirrored.
func (d *PostgresDB) GetSite(ctx context.Context, shortName string) (*MirrorSite, error) {
	var s MirrorSite
	var longName, state, notes *string
	err := d.pool.QueryRow(ctx, `
		SELECT short_name, long_name, state, notes, mobile
		FROM sounding_sites WHERE short_name = $1
	`, shortName).Scan(&s.ShortName, &longName, &state, &notes, &s.Mobile)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if longName != nil {
		s.LongName = *longName
	}
	if state != nil {
		s.State = *state
	}
	if notes != nil {
		s.Notes = *notes
	}
	return &s, nil
}

func (d *PostgresDB) sendBatch(ctx context.Context, batch *pgx.Batch, what string) error {
	if batch.Len() == 0 {
		return nil
	}
	br := d.pool.SendBatch(ctx, batch)
	for i := 0; i < batch.Len(); i++ {
		if _, err := br.Exec(); err != nil {
			_ = br.Close()
			return fmt.Errorf("%s: %w", what, err)
		}
	}
	if err := br.Close(); err != nil {
		return fmt.Errorf("%s: %w", what, err)
	}
	return nil
}
