// Package archive stores sounding files under one root directory: a flat directory of
// compressed blobs and a relational index binding each blob to its site, sounding
// type, location and init time.
package archive

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"sounding_archive/internal/blobstore"
	"sounding_archive/internal/catalog"
	"sounding_archive/internal/decoder"
	"sounding_archive/internal/storage"
)

// Layout of an archive root.
const (
	FileDir   = "files"
	IndexFile = "index.sqlite"
)

var (
	// ErrArchiveExists is returned by Create when the root is not empty.
	ErrArchiveExists = errors.New("archive root is not empty")

	// ErrNotArchive is returned by Connect when the root lacks the archive layout.
	ErrNotArchive = errors.New("not an archive")
)

// Archive is an open archive. It is safe for concurrent use; writers to the same
// logical key race and the last one wins.
type Archive struct {
	root     string
	db       *sql.DB
	blobs    *blobstore.Store
	decoders *decoder.Registry
}

type options struct {
	cacheSize int
	cacheTTL  time.Duration
	level     *int
	decoders  *decoder.Registry
}

// Option configures an Archive.
type Option func(*options)

// WithBlobCache keeps up to size decompressed payloads in memory for ttl.
func WithBlobCache(size int, ttl time.Duration) Option {
	return func(o *options) {
		o.cacheSize = size
		o.cacheTTL = ttl
	}
}

// WithCompressionLevel sets the gzip level used for new blobs.
func WithCompressionLevel(level int) Option {
	return func(o *options) { o.level = &level }
}

// WithDecoders sets the decoders used by Retrieve. The default registry is used
// otherwise.
func WithDecoders(r *decoder.Registry) Option {
	return func(o *options) { o.decoders = r }
}

func buildOptions(opts []Option) options {
	o := options{cacheTTL: 5 * time.Minute, decoders: decoder.Default()}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Create lays out a new archive under root. The root may exist only if it is an
// empty directory.
func Create(ctx context.Context, root string, opts ...Option) (*Archive, error) {
	entries, err := os.ReadDir(root)
	switch {
	case err == nil && len(entries) > 0:
		return nil, fmt.Errorf("create archive %s: %w", root, ErrArchiveExists)
	case err != nil && !errors.Is(err, fs.ErrNotExist):
		return nil, fmt.Errorf("create archive: %w", err)
	}

	if err := os.MkdirAll(filepath.Join(root, FileDir), 0o755); err != nil {
		return nil, fmt.Errorf("create archive: %w", err)
	}

	db, err := storage.CreateIndex(ctx, filepath.Join(root, IndexFile))
	if err != nil {
		return nil, fmt.Errorf("create archive: %w", err)
	}
	return open(root, db, buildOptions(opts))
}

// Connect opens an existing archive.
func Connect(ctx context.Context, root string, opts ...Option) (*Archive, error) {
	info, err := os.Stat(filepath.Join(root, FileDir))
	if err != nil || !info.IsDir() {
		return nil, fmt.Errorf("connect %s: missing %s directory: %w", root, FileDir, ErrNotArchive)
	}
	if _, err := os.Stat(filepath.Join(root, IndexFile)); err != nil {
		return nil, fmt.Errorf("connect %s: missing %s: %w", root, IndexFile, ErrNotArchive)
	}

	db, err := storage.OpenIndex(ctx, filepath.Join(root, IndexFile))
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", root, err)
	}
	return open(root, db, buildOptions(opts))
}

func open(root string, db *sql.DB, o options) (*Archive, error) {
	blobOpts := []blobstore.Option{blobstore.WithCache(o.cacheSize, o.cacheTTL)}
	if o.level != nil {
		blobOpts = append(blobOpts, blobstore.WithLevel(*o.level))
	}
	blobs, err := blobstore.New(filepath.Join(root, FileDir), blobOpts...)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Archive{root: root, db: db, blobs: blobs, decoders: o.decoders}, nil
}

// Close closes the index connection.
func (a *Archive) Close() error {
	return a.db.Close()
}

// Root returns the archive root directory.
func (a *Archive) Root() string { return a.root }

// Sites

func (a *Archive) AddSite(ctx context.Context, site catalog.Site) (catalog.Site, error) {
	return catalog.Sites.ValidateOrAdd(ctx, a.db, site)
}

func (a *Archive) ValidateSite(ctx context.Context, site catalog.Site) (catalog.Site, error) {
	return catalog.Sites.Validate(ctx, a.db, site)
}

// UpdateSite overwrites the descriptive fields of the stored site with those of site.
func (a *Archive) UpdateSite(ctx context.Context, site catalog.Site) (catalog.Site, error) {
	return catalog.Sites.Update(ctx, a.db, site.ShortName(), site.Update())
}

// Site returns the stored site with the given short name.
func (a *Archive) Site(ctx context.Context, shortName string) (catalog.Site, error) {
	return catalog.Sites.Validate(ctx, a.db, catalog.NewSite(shortName))
}

func (a *Archive) Sites(ctx context.Context) ([]catalog.Site, error) {
	return catalog.Sites.All(ctx, a.db)
}

// Sounding types

func (a *Archive) AddSoundingType(ctx context.Context, typ catalog.SoundingType) (catalog.SoundingType, error) {
	return catalog.SoundingTypes.ValidateOrAdd(ctx, a.db, typ)
}

func (a *Archive) ValidateSoundingType(ctx context.Context, typ catalog.SoundingType) (catalog.SoundingType, error) {
	return catalog.SoundingTypes.Validate(ctx, a.db, typ)
}

// UpdateSoundingType overwrites the observed flag and cadence of the stored type.
func (a *Archive) UpdateSoundingType(ctx context.Context, typ catalog.SoundingType) (catalog.SoundingType, error) {
	return catalog.SoundingTypes.Update(ctx, a.db, typ.Source(), typ.Update())
}

// SoundingType returns the stored type with the given source name.
func (a *Archive) SoundingType(ctx context.Context, source string) (catalog.SoundingType, error) {
	typ, ok, err := catalog.SoundingTypes.ByKey(ctx, a.db, source)
	if err != nil {
		return typ, err
	}
	if !ok {
		return typ, fmt.Errorf("sounding type %s: %w", catalog.NormalizeName(source), catalog.ErrNotFound)
	}
	return typ, nil
}

func (a *Archive) SoundingTypes(ctx context.Context) ([]catalog.SoundingType, error) {
	return catalog.SoundingTypes.All(ctx, a.db)
}

// SoundingTypesForSite returns the types with at least one file at site, by source name.
func (a *Archive) SoundingTypesForSite(ctx context.Context, site catalog.Site) ([]catalog.SoundingType, error) {
	return catalog.SoundingTypes.Where(ctx, a.db, `
		JOIN files ON files.type_id = types.id
		JOIN sites ON sites.id = files.site_id
		WHERE sites.short_name = ?
		ORDER BY types.type`, site.ShortName())
}

// Locations

func (a *Archive) AddLocation(ctx context.Context, loc catalog.Location) (catalog.Location, error) {
	return catalog.Locations.ValidateOrAdd(ctx, a.db, loc)
}

func (a *Archive) ValidateLocation(ctx context.Context, loc catalog.Location) (catalog.Location, error) {
	return catalog.Locations.Validate(ctx, a.db, loc)
}

// UpdateLocation overwrites the time zone offset of the stored location.
func (a *Archive) UpdateLocation(ctx context.Context, loc catalog.Location) (catalog.Location, error) {
	return catalog.Locations.Update(ctx, a.db, loc.Key(), loc.Update())
}

func (a *Archive) Locations(ctx context.Context) ([]catalog.Location, error) {
	return catalog.Locations.All(ctx, a.db)
}

// LocationsForSite returns the locations of the files stored for site and typ.
func (a *Archive) LocationsForSite(ctx context.Context, site catalog.Site, typ catalog.SoundingType) ([]catalog.Location, error) {
	return catalog.Locations.Where(ctx, a.db, `
		JOIN files ON files.location_id = locations.id
		JOIN sites ON sites.id = files.site_id
		JOIN types ON types.id = files.type_id
		WHERE sites.short_name = ? AND types.type = ?
		ORDER BY locations.id`, site.ShortName(), typ.Source())
}
