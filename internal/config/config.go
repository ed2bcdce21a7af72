// Package config reads the settings shared by the sounding archive commands from the
// environment, after an optional .env file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"sounding_archive/internal/storage"
)

// Config holds all command settings, populated from environment variables.
type Config struct {
	ArchiveRoot string
	LogLevel    string
	LogFormat   string
	HTTPAddr    string

	// Decompressed payload cache; a size of 0 disables it.
	BlobCacheSize int
	BlobCacheTTL  time.Duration

	// gzip level for new blobs, -1 for the library default.
	CompressionLevel int

	// Event publication is disabled when NATSURL is empty.
	NATSURL     string
	NATSSubject string

	// Mirrors are disabled when their host is empty.
	Storage storage.Config

	MetricsFile string
}

// EnvOrDefault returns the value of key, or def when it is unset or empty.
func EnvOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// LoadEnvFile sets variables from a .env style file. Variables already present in the
// environment win. A missing file is not an error.
func LoadEnvFile(path string) error {
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

// Load reads configuration from environment variables, applying defaults where unset.
// A .env file in the working directory is read first if present.
func Load() (*Config, error) {
	if err := LoadEnvFile(".env"); err != nil {
		return nil, err
	}

	cacheSize, err := intVar("BLOB_CACHE_SIZE", 0)
	if err != nil {
		return nil, err
	}
	if cacheSize < 0 {
		return nil, errors.New("invalid BLOB_CACHE_SIZE")
	}

	cacheTTL, err := time.ParseDuration(EnvOrDefault("BLOB_CACHE_TTL", "5m"))
	if err != nil || cacheTTL <= 0 {
		return nil, errors.New("invalid BLOB_CACHE_TTL")
	}

	level, err := intVar("COMPRESSION_LEVEL", -1)
	if err != nil {
		return nil, err
	}
	if level < -3 || level > 9 {
		return nil, errors.New("invalid COMPRESSION_LEVEL")
	}

	store := storage.DefaultConfig()
	store.Postgres.Host = os.Getenv("POSTGRES_HOST")
	store.Postgres.Database = EnvOrDefault("POSTGRES_DATABASE", store.Postgres.Database)
	store.Postgres.User = EnvOrDefault("POSTGRES_USER", store.Postgres.User)
	store.Postgres.Password = os.Getenv("POSTGRES_PASSWORD")
	if store.Postgres.Port, err = intVar("POSTGRES_PORT", store.Postgres.Port); err != nil {
		return nil, err
	}

	store.ClickHouse.Host = os.Getenv("CLICKHOUSE_HOST")
	store.ClickHouse.Database = EnvOrDefault("CLICKHOUSE_DATABASE", store.ClickHouse.Database)
	store.ClickHouse.User = EnvOrDefault("CLICKHOUSE_USER", store.ClickHouse.User)
	store.ClickHouse.Password = os.Getenv("CLICKHOUSE_PASSWORD")
	if store.ClickHouse.Port, err = intVar("CLICKHOUSE_PORT", store.ClickHouse.Port); err != nil {
		return nil, err
	}

	cfg := &Config{
		ArchiveRoot:      EnvOrDefault("ARCHIVE_ROOT", "./archive"),
		LogLevel:         EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:        EnvOrDefault("LOG_FORMAT", "text"),
		HTTPAddr:         EnvOrDefault("HTTP_ADDR", ":8082"),
		BlobCacheSize:    cacheSize,
		BlobCacheTTL:     cacheTTL,
		CompressionLevel: level,
		NATSURL:          os.Getenv("NATS_URL"),
		NATSSubject:      EnvOrDefault("NATS_SUBJECT", "soundings"),
		Storage:          store,
		MetricsFile:      os.Getenv("METRICS_FILE"),
	}

	switch cfg.LogFormat {
	case "text", "json":
	default:
		return nil, fmt.Errorf("invalid LOG_FORMAT %q", cfg.LogFormat)
	}

	return cfg, nil
}

func intVar(key string, def int) (int, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}
