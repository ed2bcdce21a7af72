// Package api serves a read-only REST API over one sounding archive.
package api

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"sounding_archive/internal/catalog"
	"sounding_archive/internal/decoder"
	"sounding_archive/internal/inventory"
)

// Store is the archive the server reads from. *archive.Archive implements it.
type Store interface {
	Sites(ctx context.Context) ([]catalog.Site, error)
	Site(ctx context.Context, shortName string) (catalog.Site, error)
	SoundingTypes(ctx context.Context) ([]catalog.SoundingType, error)
	SoundingType(ctx context.Context, source string) (catalog.SoundingType, error)
	Inventory(ctx context.Context, site catalog.Site) (*inventory.Inventory, error)
	InitTimes(ctx context.Context, site catalog.Site, typ catalog.SoundingType) ([]time.Time, error)
	MostRecentValidTime(ctx context.Context, site catalog.Site, typ catalog.SoundingType) (time.Time, error)
	Export(ctx context.Context, site catalog.Site, typ catalog.SoundingType, initTime time.Time) (io.ReadCloser, error)
	Retrieve(ctx context.Context, site catalog.Site, typ catalog.SoundingType, initTime time.Time) ([]decoder.Analysis, error)
}

// Config holds configuration for the API server.
type Config struct {
	Addr        string
	AuthEnabled bool
	APIKeys     []string     // valid keys when AuthEnabled
	Metrics     http.Handler // served at /metrics when set
}

// Server provides REST access to an archive.
type Server struct {
	store       Store
	addr        string
	authEnabled bool
	apiKeys     map[string]bool
	metrics     http.Handler
	logger      *slog.Logger
}

// NewServer creates an API server over store.
func NewServer(store Store, cfg Config, logger *slog.Logger) *Server {
	keys := make(map[string]bool)
	for _, k := range cfg.APIKeys {
		if k != "" {
			keys[k] = true
		}
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Server{
		store:       store,
		addr:        cfg.Addr,
		authEnabled: cfg.AuthEnabled,
		apiKeys:     keys,
		metrics:     cfg.Metrics,
		logger:      logger,
	}
}

// Router returns the configured chi router.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.RequestLogger(&middleware.DefaultLogFormatter{
		Logger:  slog.NewLogLogger(s.logger.Handler(), slog.LevelInfo),
		NoColor: true,
	}))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(corsMiddleware)

	r.Get("/health", s.handleHealth)
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics)
	}

	r.Route("/api/v1", func(r chi.Router) {
		if s.authEnabled {
			r.Use(s.authMiddleware)
		}

		r.Get("/sites", s.handleSites)
		r.Get("/types", s.handleTypes)
		r.Get("/sites/{site}/inventory", s.handleInventory)
		r.Get("/sites/{site}/types/{type}/times", s.handleInitTimes)
		r.Get("/sites/{site}/types/{type}/latest", s.handleLatest)
		r.Get("/files/{site}/{type}/{init_time}", s.handleFile)
		r.Get("/soundings/{site}/{type}/{init_time}", s.handleSounding)
	})

	return r
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("archive API listening", "addr", s.addr, "auth", s.authEnabled)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// corsMiddleware adds CORS headers for browser access.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type, X-API-Key")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// authMiddleware validates API key authentication.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		apiKey := r.Header.Get("X-API-Key")
		if apiKey == "" {
			if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
				apiKey = strings.TrimPrefix(auth, "Bearer ")
			}
		}

		if apiKey == "" {
			writeError(w, http.StatusUnauthorized, "API key required")
			return
		}
		if !s.apiKeys[apiKey] {
			writeError(w, http.StatusForbidden, "Invalid API key")
			return
		}

		next.ServeHTTP(w, r)
	})
}
