// Package main provides the archive-api server, a read-only REST API over one
// sounding archive.
//
// Usage:
//
//	archive-api [options]
//
// Options:
//
//	-root DIR           Archive root (env: ARCHIVE_ROOT)
//	-addr ADDR          Listen address (default: :8082, env: HTTP_ADDR)
//	-auth               Enable API key authentication
//	-api-keys KEYS      Comma-separated list of valid API keys (env: API_KEYS)
//
// API Endpoints:
//
//	GET /health
//	GET /metrics
//	GET /api/v1/sites
//	GET /api/v1/types
//	GET /api/v1/sites/{site}/inventory
//	GET /api/v1/sites/{site}/types/{type}/times
//	GET /api/v1/sites/{site}/types/{type}/latest
//	GET /api/v1/files/{site}/{type}/{init_time}
//	    Download the stored file, uncompressed.
//	GET /api/v1/soundings/{site}/{type}/{init_time}
//	    Decoded sounding headers of the stored file as JSON.
//
// Authentication:
//
//	When -auth is enabled, requests under /api/v1 must include an API key via:
//	  - X-API-Key header
//	  - Authorization: Bearer <key> header
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"sounding_archive/internal/api"
	"sounding_archive/internal/archive"
	"sounding_archive/internal/config"
	_ "sounding_archive/internal/decoder/bufkit" // register decoders via init()
	"sounding_archive/internal/observability"
)

// serveOptions are the command-line settings of the server.
type serveOptions struct {
	root        string
	addr        string
	authEnabled bool
	apiKeys     string
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		os.Exit(1)
	}

	var opts serveOptions
	flag.StringVar(&opts.root, "root", cfg.ArchiveRoot, "Archive root directory")
	flag.StringVar(&opts.addr, "addr", cfg.HTTPAddr, "HTTP listen address")
	flag.BoolVar(&opts.authEnabled, "auth", false, "Enable API key authentication")
	flag.StringVar(&opts.apiKeys, "api-keys", config.EnvOrDefault("API_KEYS", ""), "Comma-separated list of valid API keys (when auth enabled)")
	flag.Parse()

	logger, err := observability.NewLogger(os.Stderr, cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err = run(ctx, cfg, opts, logger)
	stop()
	if err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
}

// run serves the archive until ctx is done. The archive is closed before it returns.
func run(ctx context.Context, cfg *config.Config, opts serveOptions, logger *slog.Logger) error {
	var archOpts []archive.Option
	if cfg.BlobCacheSize > 0 {
		archOpts = append(archOpts, archive.WithBlobCache(cfg.BlobCacheSize, cfg.BlobCacheTTL))
	}
	arch, err := archive.Connect(ctx, opts.root, archOpts...)
	if err != nil {
		return fmt.Errorf("open archive %s: %w", opts.root, err)
	}
	defer func() { _ = arch.Close() }()

	metrics := observability.NewMetrics()
	if res, err := arch.Check(ctx); err != nil {
		logger.Warn("startup check failed", "error", err)
	} else if n, err := arch.Count(ctx); err == nil {
		metrics.ObserveCheck(n, len(res.MissingOnDisk), len(res.MissingFromIndex))
		if !res.Consistent() {
			logger.Warn("archive is inconsistent, run sounding_archive check",
				"missing_on_disk", len(res.MissingOnDisk), "missing_from_index", len(res.MissingFromIndex))
		}
	}

	server := api.NewServer(arch, api.Config{
		Addr:        opts.addr,
		AuthEnabled: opts.authEnabled,
		APIKeys:     splitKeys(opts.apiKeys),
		Metrics:     metrics.Handler(),
	}, logger)
	return server.Run(ctx)
}

func splitKeys(s string) []string {
	if s == "" {
		return nil
	}
	keys := strings.Split(s, ",")
	for i := range keys {
		keys[i] = strings.TrimSpace(keys[i])
	}
	return keys
}
