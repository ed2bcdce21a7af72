package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateIndex(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "index.sqlite")

	db, err := CreateIndex(ctx, path)
	require.NoError(t, err)
	defer db.Close()

	for _, table := range []string{"types", "sites", "locations", "files"} {
		var n int
		err := db.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?`, table).Scan(&n)
		require.NoError(t, err)
		assert.Equal(t, 1, n, "table %s", table)
	}
}

func TestCreateIndexRefusesExistingFile(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "index.sqlite")
	require.NoError(t, os.WriteFile(path, []byte("not a database"), 0o644))

	_, err := CreateIndex(ctx, path)
	assert.ErrorIs(t, err, os.ErrExist)
}

func TestOpenIndexMissing(t *testing.T) {
	_, err := OpenIndex(context.Background(), filepath.Join(t.TempDir(), "index.sqlite"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestOpenIndexReopens(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "index.sqlite")

	db, err := CreateIndex(ctx, path)
	require.NoError(t, err)
	_, err = db.ExecContext(ctx, `INSERT INTO sites (short_name) VALUES ('KMSO')`)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	db, err = OpenIndex(ctx, path)
	require.NoError(t, err)
	defer db.Close()

	var name string
	require.NoError(t, db.QueryRowContext(ctx, `SELECT short_name FROM sites`).Scan(&name))
	assert.Equal(t, "KMSO", name)
}

func TestIndexEnforcesForeignKeys(t *testing.T) {
	ctx := context.Background()
	db, err := CreateIndex(ctx, filepath.Join(t.TempDir(), "index.sqlite"))
	require.NoError(t, err)
	defer db.Close()

	_, err = db.ExecContext(ctx, `
		INSERT INTO files (type_id, site_id, location_id, init_time, file_name)
		VALUES (1, 1, 1, '2017-04-01T00:00:00Z', 'x.gz')`)
	assert.Error(t, err)
}

func TestIndexUniqueFileKey(t *testing.T) {
	ctx := context.Background()
	db, err := CreateIndex(ctx, filepath.Join(t.TempDir(), "index.sqlite"))
	require.NoError(t, err)
	defer db.Close()

	stmts := []string{
		`INSERT INTO types (type, file_kind) VALUES ('GFS', 'BUFKIT')`,
		`INSERT INTO sites (short_name) VALUES ('KMSO')`,
		`INSERT INTO locations (latitude, longitude, elevation_meters) VALUES (46920000, -114090000, 972)`,
		`INSERT INTO files (type_id, site_id, location_id, init_time, file_name)
		 VALUES (1, 1, 1, '2017-04-01T00:00:00Z', 'a.gz')`,
	}
	for _, s := range stmts {
		_, err := db.ExecContext(ctx, s)
		require.NoError(t, err, s)
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO files (type_id, site_id, location_id, init_time, file_name)
		VALUES (1, 1, 1, '2017-04-01T00:00:00Z', 'b.gz')`)
	assert.Error(t, err)

	_, err = db.ExecContext(ctx, `INSERT INTO types (type, file_kind) VALUES ('NAM', 'GRIB')`)
	assert.Error(t, err)
}
