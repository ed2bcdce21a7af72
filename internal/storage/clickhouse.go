package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
)

// ClickHouseConfig holds ClickHouse connection settings.
type ClickHouseConfig struct {
	Host     string
	Port     int
	Database string
	User     string
	Password string
}

// Enabled reports whether enough settings are present to connect.
func (c ClickHouseConfig) Enabled() bool {
	return c.Host != ""
}

// ClickHouseDB wraps a ClickHouse connection holding inventory coverage history.
type ClickHouseDB struct {
	conn driver.Conn
}

// OpenClickHouse opens a connection to ClickHouse.
func OpenClickHouse(ctx context.Context, cfg ClickHouseConfig) (*ClickHouseDB, error) {
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.User,
			Password: cfg.Password,
		},
		Settings: clickhouse.Settings{
			"max_execution_time": 60,
		},
		DialTimeout:     10 * time.Second,
		MaxOpenConns:    5,
		MaxIdleConns:    2,
		ConnMaxLifetime: time.Hour,
	})
	if err != nil {
		return nil, fmt.Errorf("open clickhouse: %w", err)
	}

	// Test the connection.
	if err := conn.Ping(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("ping clickhouse: %w", err)
	}

	return &ClickHouseDB{conn: conn}, nil
}

// Close closes the ClickHouse connection.
func (d *ClickHouseDB) Close() error {
	return d.conn.Close()
}

// CreateSchema creates the ClickHouse tables.
func (d *ClickHouseDB) CreateSchema(ctx context.Context) error {
	err := d.conn.Exec(ctx, `CREATE TABLE IF NOT EXISTS sounding_coverage (
			archive         LowCardinality(String),
			site            LowCardinality(String),
			source          LowCardinality(String),
			first_init      Nullable(DateTime('UTC')),
			last_init       Nullable(DateTime('UTC')),
			file_count      UInt32,
			missing_ranges  UInt32,
			missing_slots   UInt32,
			location_count  UInt16,
			recorded_at     DateTime64(3, 'UTC') DEFAULT now64(3)
		)
		ENGINE = ReplacingMergeTree(recorded_at)
		ORDER BY (archive, site, source)`)
	if err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Coverage summarizes the inventory of one (site, sounding type) pair.
type Coverage struct {
	Site          string
	Source        string
	First         *time.Time // nil when no files are stored
	Last          *time.Time
	FileCount     uint32
	MissingRanges uint32
	MissingSlots  uint32
	LocationCount uint16
	RecordedAt    time.Time
}

// InsertCoverage stores coverage rows for an archive in one batch.
func (d *ClickHouseDB) InsertCoverage(ctx context.Context, archive string, rows []Coverage) error {
	if len(rows) == 0 {
		return nil
	}

	batch, err := d.conn.PrepareBatch(ctx, `
		INSERT INTO sounding_coverage (archive, site, source, first_init, last_init, file_count, missing_ranges, missing_slots, location_count, recorded_at)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, c := range rows {
		err := batch.Append(archive, c.Site, c.Source, c.First, c.Last, c.FileCount,
			c.MissingRanges, c.MissingSlots, c.LocationCount, c.RecordedAt.UTC())
		if err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}

	return nil
}

// LatestCoverage returns the most recent coverage row per (site, source) for an archive.
func (d *ClickHouseDB) LatestCoverage(ctx context.Context, archive string) ([]Coverage, error) {
	rows, err := d.conn.Query(ctx, `
		SELECT site, source, first_init, last_init, file_count, missing_ranges, missing_slots, location_count, recorded_at
		FROM sounding_coverage FINAL
		WHERE archive = ?
		ORDER BY site, source
	`, archive)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Coverage
	for rows.Next() {
		var c Coverage
		if err := rows.Scan(&c.Site, &c.Source, &c.First, &c.Last, &c.FileCount,
			&c.MissingRanges, &c.MissingSlots, &c.LocationCount, &c.RecordedAt); err != nil {
			return nil, fmt.Errorf("scan coverage: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate coverage: %w", err)
	}
	return out, nil
}
