package archive

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"sounding_archive/internal/blobstore"
)

// CheckResult lists the differences between the index and the blob directory. Both
// lists are sorted.
type CheckResult struct {
	// MissingOnDisk holds indexed file names with no blob.
	MissingOnDisk []string
	// MissingFromIndex holds blobs, including leftovers of interrupted writes, that no
	// index row refers to.
	MissingFromIndex []string
}

// Consistent reports whether the index and the blob directory agree.
func (r CheckResult) Consistent() bool {
	return len(r.MissingOnDisk) == 0 && len(r.MissingFromIndex) == 0
}

// Check compares the file names in the index with the files present on disk. It
// repairs nothing.
func (a *Archive) Check(ctx context.Context) (CheckResult, error) {
	indexed, err := a.indexedNames(ctx)
	if err != nil {
		return CheckResult{}, err
	}
	onDisk, err := a.blobs.List()
	if err != nil {
		return CheckResult{}, err
	}

	present := make(map[string]bool, len(onDisk))
	var res CheckResult
	for _, name := range onDisk {
		present[name] = true
		if !indexed[name] {
			res.MissingFromIndex = append(res.MissingFromIndex, name)
		}
	}
	for name := range indexed {
		if !present[name] {
			res.MissingOnDisk = append(res.MissingOnDisk, name)
		}
	}
	sort.Strings(res.MissingOnDisk)
	sort.Strings(res.MissingFromIndex)
	return res, nil
}

func (a *Archive) indexedNames(ctx context.Context) (map[string]bool, error) {
	rows, err := a.db.QueryContext(ctx, `SELECT file_name FROM files`)
	if err != nil {
		return nil, fmt.Errorf("query file names: %w", err)
	}
	defer func() { _ = rows.Close() }()

	names := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan file name: %w", err)
		}
		names[name] = true
	}
	return names, rows.Err()
}

// RemoveFromIndex deletes the index rows of the named files without touching their
// blobs. It is meant for entries Check reported as missing on disk. It returns the
// number of rows deleted.
func (a *Archive) RemoveFromIndex(ctx context.Context, names []string) (int, error) {
	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	total := 0
	for _, name := range names {
		res, err := tx.ExecContext(ctx, `DELETE FROM files WHERE file_name = ?`, name)
		if err != nil {
			return 0, fmt.Errorf("unindex %s: %w", name, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, fmt.Errorf("unindex %s: %w", name, err)
		}
		total += int(n)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return total, nil
}

// ErrStillIndexed is returned by RemoveFromDataStore for blobs the index refers to.
var ErrStillIndexed = errors.New("file is still indexed")

// RemoveFromDataStore deletes the named blobs, or leftover temporary files, without
// touching the index. Names still referenced by the index are refused so the index
// never points at a deleted blob. All names are attempted; the errors are joined.
func (a *Archive) RemoveFromDataStore(ctx context.Context, names []string) error {
	indexed, err := a.indexedNames(ctx)
	if err != nil {
		return err
	}

	var errs []error
	for _, name := range names {
		switch {
		case indexed[name]:
			errs = append(errs, fmt.Errorf("%s: %w", name, ErrStillIndexed))
		case blobstore.IsTemp(name):
			if err := a.blobs.RemoveTemp(name); err != nil {
				errs = append(errs, err)
			}
		default:
			if err := a.blobs.Delete(name); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}
