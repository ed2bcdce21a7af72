// Package mirror copies the catalog of an archive into the shared PostgreSQL database
// and records per-site coverage in ClickHouse, so that several archives can be queried
// together.
package mirror

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"

	"sounding_archive/internal/archive"
	"sounding_archive/internal/catalog"
	"sounding_archive/internal/inventory"
	"sounding_archive/internal/storage"
)

// Source is the archive being mirrored.
type Source interface {
	Sites(ctx context.Context) ([]catalog.Site, error)
	SoundingTypes(ctx context.Context) ([]catalog.SoundingType, error)
	Locations(ctx context.Context) ([]catalog.Location, error)
	Files(ctx context.Context) ([]archive.FileRecord, error)
	Inventory(ctx context.Context, site catalog.Site) (*inventory.Inventory, error)
}

// CatalogSink receives the catalog and file listing. *storage.PostgresDB implements it.
type CatalogSink interface {
	UpsertSites(ctx context.Context, sites []storage.MirrorSite) error
	UpsertTypes(ctx context.Context, types []storage.MirrorType) error
	UpsertLocations(ctx context.Context, locs []storage.MirrorLocation) error
	UpsertFiles(ctx context.Context, archive string, files []storage.MirrorFile) error
	DeleteFilesExcept(ctx context.Context, archive string, keep []string) (int64, error)
}

// CoverageSink receives inventory coverage rows. *storage.ClickHouseDB implements it.
type CoverageSink interface {
	InsertCoverage(ctx context.Context, archive string, rows []storage.Coverage) error
}

// Stats summarizes one sync.
type Stats struct {
	Sites        int
	Types        int
	Locations    int
	Files        int
	FilesDeleted int64
	Coverage     int
}

// Syncer pushes one archive to the configured sinks. Either sink may be nil.
type Syncer struct {
	name     string
	catalog  CatalogSink
	coverage CoverageSink
	clock    clockwork.Clock
	logger   *slog.Logger
}

// Option configures a Syncer.
type Option func(*Syncer)

// WithCatalog sets the sink for sites, types, locations and files.
func WithCatalog(s CatalogSink) Option {
	return func(m *Syncer) { m.catalog = s }
}

// WithCoverage sets the sink for coverage rows.
func WithCoverage(s CoverageSink) Option {
	return func(m *Syncer) { m.coverage = s }
}

// WithClock sets the clock stamping coverage rows.
func WithClock(c clockwork.Clock) Option {
	return func(m *Syncer) { m.clock = c }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Syncer) { m.logger = l }
}

// New returns a Syncer mirroring under the given archive name.
func New(name string, opts ...Option) *Syncer {
	m := &Syncer{name: name, clock: clockwork.NewRealClock(), logger: slog.Default()}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// NewFromStorage returns a Syncer writing to the open connections of a storage.Mirror.
func NewFromStorage(name string, db *storage.Mirror, opts ...Option) *Syncer {
	if db.PG != nil {
		opts = append(opts, WithCatalog(db.PG))
	}
	if db.CH != nil {
		opts = append(opts, WithCoverage(db.CH))
	}
	return New(name, opts...)
}

// Sync mirrors src. The catalog is written parents first so that foreign keys in the
// shared database hold, then mirrored files no longer in src are deleted. Coverage rows
// are appended; the sink keeps the latest per site and type.
func (m *Syncer) Sync(ctx context.Context, src Source) (Stats, error) {
	var st Stats
	if m.catalog == nil && m.coverage == nil {
		m.logger.Warn("no mirror configured, nothing to sync", "archive", m.name)
		return st, nil
	}

	sites, err := src.Sites(ctx)
	if err != nil {
		return st, err
	}

	if m.catalog != nil {
		if err := m.syncCatalog(ctx, src, sites, &st); err != nil {
			return st, err
		}
	}

	if m.coverage != nil {
		rows, err := m.coverageRows(ctx, src, sites)
		if err != nil {
			return st, err
		}
		if err := m.coverage.InsertCoverage(ctx, m.name, rows); err != nil {
			return st, fmt.Errorf("insert coverage: %w", err)
		}
		st.Coverage = len(rows)
	}

	m.logger.Info("mirror synced",
		"archive", m.name,
		"sites", st.Sites,
		"types", st.Types,
		"locations", st.Locations,
		"files", st.Files,
		"files_deleted", st.FilesDeleted,
		"coverage_rows", st.Coverage,
	)
	return st, nil
}

func (m *Syncer) syncCatalog(ctx context.Context, src Source, sites []catalog.Site, st *Stats) error {
	types, err := src.SoundingTypes(ctx)
	if err != nil {
		return err
	}
	locs, err := src.Locations(ctx)
	if err != nil {
		return err
	}
	files, err := src.Files(ctx)
	if err != nil {
		return err
	}

	if err := m.catalog.UpsertSites(ctx, mirrorSites(sites)); err != nil {
		return err
	}
	if err := m.catalog.UpsertTypes(ctx, mirrorTypes(types)); err != nil {
		return err
	}
	if err := m.catalog.UpsertLocations(ctx, mirrorLocations(locs)); err != nil {
		return err
	}

	mf, err := mirrorFiles(files, locs)
	if err != nil {
		return err
	}
	if err := m.catalog.UpsertFiles(ctx, m.name, mf); err != nil {
		return err
	}

	keep := make([]string, len(files))
	for i, f := range files {
		keep[i] = f.FileName
	}
	deleted, err := m.catalog.DeleteFilesExcept(ctx, m.name, keep)
	if err != nil {
		return err
	}

	st.Sites, st.Types, st.Locations, st.Files, st.FilesDeleted = len(sites), len(types), len(locs), len(files), deleted
	return nil
}

func (m *Syncer) coverageRows(ctx context.Context, src Source, sites []catalog.Site) ([]storage.Coverage, error) {
	now := m.clock.Now().UTC()

	var rows []storage.Coverage
	for _, site := range sites {
		inv, err := src.Inventory(ctx, site)
		if err != nil {
			return nil, fmt.Errorf("inventory %s: %w", site.ShortName(), err)
		}
		for _, e := range inv.Entries() {
			first, last := e.Range.First.UTC(), e.Range.Last.UTC()
			rows = append(rows, storage.Coverage{
				Site:          site.ShortName(),
				Source:        e.Type.Source(),
				First:         &first,
				Last:          &last,
				FileCount:     uint32(e.Count),
				MissingRanges: uint32(len(e.Missing)),
				MissingSlots:  uint32(e.MissingSlots()),
				LocationCount: uint16(len(e.Locations)),
				RecordedAt:    now,
			})
		}
	}
	return rows, nil
}

func mirrorSites(sites []catalog.Site) []storage.MirrorSite {
	out := make([]storage.MirrorSite, len(sites))
	for i, s := range sites {
		out[i] = storage.MirrorSite{
			ShortName: s.ShortName(),
			LongName:  s.LongName(),
			State:     string(s.State()),
			Notes:     s.Notes(),
			Mobile:    s.IsMobile(),
		}
	}
	return out
}

func mirrorTypes(types []catalog.SoundingType) []storage.MirrorType {
	out := make([]storage.MirrorType, len(types))
	for i, t := range types {
		out[i] = storage.MirrorType{
			Source:       t.Source(),
			FileKind:     string(t.FileKind()),
			Observed:     t.IsObserved(),
			HoursBetween: t.HoursBetween(),
		}
	}
	return out
}

func mirrorLocations(locs []catalog.Location) []storage.MirrorLocation {
	out := make([]storage.MirrorLocation, len(locs))
	for i, l := range locs {
		key := l.Key()
		ml := storage.MirrorLocation{
			LatitudeMicro:  key.Latitude,
			LongitudeMicro: key.Longitude,
			Elevation:      key.Elevation,
			Latitude:       l.Latitude(),
			Longitude:      l.Longitude(),
		}
		if tz, ok := l.TZOffset(); ok {
			ml.TZOffset = &tz
		}
		out[i] = ml
	}
	return out
}

func mirrorFiles(files []archive.FileRecord, locs []catalog.Location) ([]storage.MirrorFile, error) {
	byID := make(map[int64]catalog.LocationKey, len(locs))
	for _, l := range locs {
		byID[l.ID()] = l.Key()
	}

	out := make([]storage.MirrorFile, len(files))
	for i, f := range files {
		key, ok := byID[f.LocationID]
		if !ok {
			return nil, fmt.Errorf("file %s: location %d: %w", f.FileName, f.LocationID, catalog.ErrNotFound)
		}
		out[i] = storage.MirrorFile{
			FileName:       f.FileName,
			Site:           f.Site,
			Source:         f.Source,
			InitTime:       f.InitTime.UTC(),
			LatitudeMicro:  key.Latitude,
			LongitudeMicro: key.Longitude,
			Elevation:      key.Elevation,
		}
	}
	return out, nil
}

// Age returns how long ago the newest coverage row of an archive was recorded, from
// rows returned by storage.ClickHouseDB.LatestCoverage.
func Age(rows []storage.Coverage, now time.Time) (time.Duration, bool) {
	var newest time.Time
	for _, r := range rows {
		if r.RecordedAt.After(newest) {
			newest = r.RecordedAt
		}
	}
	if newest.IsZero() {
		return 0, false
	}
	return now.Sub(newest), true
}
