package archive

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"sounding_archive/internal/catalog"
	"sounding_archive/internal/decoder"
	"sounding_archive/internal/inventory"
)

// FileRecord is one row of the file index with its natural keys resolved.
type FileRecord struct {
	Site       string
	Source     string
	Kind       catalog.FileKind
	InitTime   time.Time
	FileName   string
	LocationID int64
}

// Add compresses the payload read from src into the archive and indexes it under
// (site, typ, initTime). A file already stored for that key is replaced. All three
// entities must have been validated against this archive.
//
// The blob is written before the index row, so an interrupted Add leaves at most an
// orphaned blob, which Check reports.
func (a *Archive) Add(ctx context.Context, site catalog.Site, typ catalog.SoundingType, loc catalog.Location, initTime time.Time, src io.Reader) error {
	switch {
	case !site.IsKnown():
		return fmt.Errorf("add: site %s: %w", site.ShortName(), catalog.ErrInvalidEntity)
	case !typ.IsKnown():
		return fmt.Errorf("add: sounding type %s: %w", typ.Source(), catalog.ErrInvalidEntity)
	case !loc.IsKnown():
		return fmt.Errorf("add: location %s: %w", loc, catalog.ErrInvalidEntity)
	}

	name := FileName(site, typ, initTime)
	if _, err := a.blobs.Put(name, src); err != nil {
		return fmt.Errorf("add %s: %w", name, err)
	}

	_, err := a.db.ExecContext(ctx, `
		INSERT INTO files (type_id, site_id, location_id, init_time, file_name)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (site_id, type_id, init_time) DO UPDATE SET
			location_id = excluded.location_id,
			file_name = excluded.file_name`,
		typ.ID(), site.ID(), loc.ID(), catalog.FormatIndexTime(initTime), name)
	if err != nil {
		return fmt.Errorf("index %s: %w", name, err)
	}
	return nil
}

// lookup returns the stored file name and file kind for a logical key.
func (a *Archive) lookup(ctx context.Context, site catalog.Site, typ catalog.SoundingType, initTime time.Time) (string, catalog.FileKind, error) {
	var name, kind string
	err := a.db.QueryRowContext(ctx, `
		SELECT files.file_name, types.file_kind
		FROM files
		JOIN sites ON sites.id = files.site_id
		JOIN types ON types.id = files.type_id
		WHERE sites.short_name = ? AND types.type = ? AND files.init_time = ?`,
		site.ShortName(), typ.Source(), catalog.FormatIndexTime(initTime)).Scan(&name, &kind)
	if errors.Is(err, sql.ErrNoRows) {
		return "", "", fmt.Errorf("file %s: %w", FileName(site, typ, initTime), catalog.ErrNotFound)
	}
	if err != nil {
		return "", "", fmt.Errorf("lookup file: %w", err)
	}
	k, err := catalog.ParseFileKind(kind)
	if err != nil {
		return "", "", err
	}
	return name, k, nil
}

// Retrieve decodes the file stored for a logical key with the decoder registered for
// the type's file kind.
func (a *Archive) Retrieve(ctx context.Context, site catalog.Site, typ catalog.SoundingType, initTime time.Time) ([]decoder.Analysis, error) {
	name, kind, err := a.lookup(ctx, site, typ, initTime)
	if err != nil {
		return nil, err
	}
	raw, err := a.blobs.Get(name)
	if err != nil {
		return nil, err
	}
	return a.decoders.Decode(kind, raw, name)
}

// Export returns the decompressed payload stored for a logical key, byte for byte as
// it was added. The caller must close the reader.
func (a *Archive) Export(ctx context.Context, site catalog.Site, typ catalog.SoundingType, initTime time.Time) (io.ReadCloser, error) {
	name, _, err := a.lookup(ctx, site, typ, initTime)
	if err != nil {
		return nil, err
	}
	return a.blobs.Open(name)
}

// ExportTo writes the decompressed payload for a logical key into dir and returns the
// path of the written file.
func (a *Archive) ExportTo(ctx context.Context, site catalog.Site, typ catalog.SoundingType, initTime time.Time, dir string) (string, error) {
	name, kind, err := a.lookup(ctx, site, typ, initTime)
	if err != nil {
		return "", err
	}
	rc, err := a.blobs.Open(name)
	if err != nil {
		return "", err
	}
	defer func() { _ = rc.Close() }()

	path := filepath.Join(dir, baseName(site.ShortName(), typ.Source(), initTime)+kind.Extension())
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("export %s: %w", name, err)
	}
	if _, err := io.Copy(f, rc); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return "", fmt.Errorf("export %s: %w", name, err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(path)
		return "", fmt.Errorf("export %s: %w", name, err)
	}
	return path, nil
}

// MostRecentValidTime returns the latest init time stored for site and typ.
func (a *Archive) MostRecentValidTime(ctx context.Context, site catalog.Site, typ catalog.SoundingType) (time.Time, error) {
	var latest sql.NullString
	err := a.db.QueryRowContext(ctx, `
		SELECT MAX(files.init_time)
		FROM files
		JOIN sites ON sites.id = files.site_id
		JOIN types ON types.id = files.type_id
		WHERE sites.short_name = ? AND types.type = ?`,
		site.ShortName(), typ.Source()).Scan(&latest)
	if err != nil {
		return time.Time{}, fmt.Errorf("most recent time: %w", err)
	}
	if !latest.Valid {
		return time.Time{}, fmt.Errorf("files for %s %s: %w", site.ShortName(), typ.Source(), catalog.ErrNotFound)
	}
	return catalog.ParseIndexTime(latest.String)
}

// MostRecentFile decodes the latest file stored for site and typ.
func (a *Archive) MostRecentFile(ctx context.Context, site catalog.Site, typ catalog.SoundingType) ([]decoder.Analysis, error) {
	t, err := a.MostRecentValidTime(ctx, site, typ)
	if err != nil {
		return nil, err
	}
	return a.Retrieve(ctx, site, typ, t)
}

// FileExists reports whether a file is indexed for a logical key.
func (a *Archive) FileExists(ctx context.Context, site catalog.Site, typ catalog.SoundingType, initTime time.Time) (bool, error) {
	_, _, err := a.lookup(ctx, site, typ, initTime)
	if errors.Is(err, catalog.ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}

// Count returns the number of indexed files.
func (a *Archive) Count(ctx context.Context) (int, error) {
	var n int
	if err := a.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM files`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count files: %w", err)
	}
	return n, nil
}

// InitTimes returns the init times stored for site and typ in ascending order.
func (a *Archive) InitTimes(ctx context.Context, site catalog.Site, typ catalog.SoundingType) ([]time.Time, error) {
	rows, err := a.db.QueryContext(ctx, `
		SELECT files.init_time
		FROM files
		JOIN sites ON sites.id = files.site_id
		JOIN types ON types.id = files.type_id
		WHERE sites.short_name = ? AND types.type = ?
		ORDER BY files.init_time`, site.ShortName(), typ.Source())
	if err != nil {
		return nil, fmt.Errorf("query init times: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var times []time.Time
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, fmt.Errorf("scan init time: %w", err)
		}
		t, err := catalog.ParseIndexTime(s)
		if err != nil {
			return nil, err
		}
		times = append(times, t)
	}
	return times, rows.Err()
}

// Files returns every indexed file ordered by site, source and init time.
func (a *Archive) Files(ctx context.Context) ([]FileRecord, error) {
	rows, err := a.db.QueryContext(ctx, `
		SELECT sites.short_name, types.type, types.file_kind, files.init_time, files.file_name, files.location_id
		FROM files
		JOIN sites ON sites.id = files.site_id
		JOIN types ON types.id = files.type_id
		ORDER BY sites.short_name, types.type, files.init_time`)
	if err != nil {
		return nil, fmt.Errorf("query files: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []FileRecord
	for rows.Next() {
		var r FileRecord
		var kind, initTime string
		if err := rows.Scan(&r.Site, &r.Source, &kind, &initTime, &r.FileName, &r.LocationID); err != nil {
			return nil, fmt.Errorf("scan file: %w", err)
		}
		if r.Kind, err = catalog.ParseFileKind(kind); err != nil {
			return nil, err
		}
		if r.InitTime, err = catalog.ParseIndexTime(initTime); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Remove deletes the file stored for a logical key. The index row is deleted first and
// the blob last, not the other way round: a failure part way then leaves an orphaned
// blob that Check reports, never an index row whose blob is gone.
func (a *Archive) Remove(ctx context.Context, site catalog.Site, typ catalog.SoundingType, initTime time.Time) error {
	name, _, err := a.lookup(ctx, site, typ, initTime)
	if err != nil {
		return err
	}
	if _, err := a.db.ExecContext(ctx, `DELETE FROM files WHERE file_name = ?`, name); err != nil {
		return fmt.Errorf("unindex %s: %w", name, err)
	}
	if err := a.blobs.Delete(name); err != nil {
		return fmt.Errorf("remove %s: %w", name, err)
	}
	return nil
}

// Inventory computes the inventory of a site.
func (a *Archive) Inventory(ctx context.Context, site catalog.Site) (*inventory.Inventory, error) {
	return inventory.Compute(ctx, a.db, site)
}
