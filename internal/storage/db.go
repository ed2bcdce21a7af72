package storage

import (
	"context"
	"fmt"
)

// Config holds connection settings for the shared mirror databases.
type Config struct {
	ClickHouse ClickHouseConfig
	Postgres   PostgresConfig
}

// DefaultConfig returns a configuration with default local development settings.
func DefaultConfig() Config {
	return Config{
		ClickHouse: ClickHouseConfig{
			Port:     9000,
			Database: "soundings",
			User:     "default",
		},
		Postgres: PostgresConfig{
			Port:     5432,
			Database: "soundings",
			User:     "soundings",
		},
	}
}

// Mirror wraps the optional ClickHouse and PostgreSQL connections. Either may be nil.
type Mirror struct {
	CH *ClickHouseDB // coverage history
	PG *PostgresDB   // catalog and file listings
}

// OpenMirror opens the databases that are enabled in cfg.
func OpenMirror(ctx context.Context, cfg Config) (*Mirror, error) {
	m := &Mirror{}
	if cfg.ClickHouse.Enabled() {
		ch, err := OpenClickHouse(ctx, cfg.ClickHouse)
		if err != nil {
			return nil, fmt.Errorf("clickhouse: %w", err)
		}
		m.CH = ch
	}

	if cfg.Postgres.Enabled() {
		pg, err := OpenPostgres(ctx, cfg.Postgres)
		if err != nil {
			_ = m.Close()
			return nil, fmt.Errorf("postgres: %w", err)
		}
		m.PG = pg
	}

	return m, nil
}

// Close closes the open connections.
func (m *Mirror) Close() error {
	var errs []error
	if m.CH != nil {
		if err := m.CH.Close(); err != nil {
			errs = append(errs, fmt.Errorf("clickhouse: %w", err))
		}
	}
	if m.PG != nil {
		m.PG.Close()
	}
	if len(errs) > 0 {
		return errs[0]
	}
	return nil
}

// CreateSchemas creates the schemas in the open databases.
func (m *Mirror) CreateSchemas(ctx context.Context) error {
	if m.CH != nil {
		if err := m.CH.CreateSchema(ctx); err != nil {
			return fmt.Errorf("clickhouse schema: %w", err)
		}
	}
	if m.PG != nil {
		if err := m.PG.CreateSchema(ctx); err != nil {
			return fmt.Errorf("postgres schema: %w", err)
		}
	}
	return nil
}
