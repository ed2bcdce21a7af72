package storage

import (
	"context"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// setupTestPostgres starts PostgreSQL in a container. Skipped unless TEST_INTEGRATION is set.
func setupTestPostgres(t *testing.T) *PostgresDB {
	t.Helper()

	if os.Getenv("TEST_INTEGRATION") == "" {
		t.Skip("skipping integration test: TEST_INTEGRATION not set")
	}

	ctx := context.Background()
	container, err := postgres.Run(ctx,
		"docker.io/postgres:17-alpine",
		postgres.WithDatabase("soundings_test"),
		postgres.WithUsername("soundings"),
		postgres.WithPassword("test-password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("terminate container: %v", err)
		}
	})

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5432")
	require.NoError(t, err)
	portNum, err := strconv.Atoi(port.Port())
	require.NoError(t, err)

	pg, err := OpenPostgres(ctx, PostgresConfig{
		Host:     host,
		Port:     portNum,
		Database: "soundings_test",
		User:     "soundings",
		Password: "test-password",
	})
	require.NoError(t, err)
	t.Cleanup(pg.Close)

	require.NoError(t, pg.CreateSchema(ctx))
	// A second run is a no-op.
	require.NoError(t, pg.CreateSchema(ctx))
	return pg
}

func TestPostgresMirrorRoundTrip(t *testing.T) {
	pg := setupTestPostgres(t)
	ctx := context.Background()

	require.NoError(t, pg.UpsertSites(ctx, []MirrorSite{
		{ShortName: "KMSO", LongName: "Missoula", State: "MT"},
		{ShortName: "KBOI"},
	}))
	require.NoError(t, pg.UpsertTypes(ctx, []MirrorType{
		{Source: "GFS", FileKind: "BUFKIT", HoursBetween: 6},
	}))
	require.NoError(t, pg.UpsertLocations(ctx, []MirrorLocation{
		{LatitudeMicro: 46920000, LongitudeMicro: -114090000, Elevation: 972, Latitude: 46.92, Longitude: -114.09},
	}))

	t0 := time.Date(2017, 4, 1, 0, 0, 0, 0, time.UTC)
	files := []MirrorFile{
		{FileName: "a.gz", Site: "KMSO", Source: "GFS", InitTime: t0, LatitudeMicro: 46920000, LongitudeMicro: -114090000, Elevation: 972},
		{FileName: "b.gz", Site: "KMSO", Source: "GFS", InitTime: t0.Add(6 * time.Hour), LatitudeMicro: 46920000, LongitudeMicro: -114090000, Elevation: 972},
	}
	require.NoError(t, pg.UpsertFiles(ctx, "test", files))
	require.NoError(t, pg.UpsertFiles(ctx, "test", files))

	names, err := pg.ListFiles(ctx, "test")
	require.NoError(t, err)
	assert.Equal(t, []string{"a.gz", "b.gz"}, names)

	n, err := pg.DeleteFilesExcept(ctx, "test", []string{"b.gz"})
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	names, err = pg.ListFiles(ctx, "test")
	require.NoError(t, err)
	assert.Equal(t, []string{"b.gz"}, names)

	site, err := pg.GetSite(ctx, "KMSO")
	require.NoError(t, err)
	require.NotNil(t, site)
	assert.Equal(t, "Missoula", site.LongName)
	assert.Equal(t, "MT", site.State)

	missing, err := pg.GetSite(ctx, "KXXX")
	require.NoError(t, err)
	assert.Nil(t, missing)
}
