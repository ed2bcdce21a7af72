package catalog_test

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sounding_archive/internal/catalog"
	"sounding_archive/internal/storage"
)

func newIndex(t *testing.T) *sql.DB {
	t.Helper()
	db, err := storage.CreateIndex(context.Background(), filepath.Join(t.TempDir(), "index.sqlite"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestSiteValidateOrAdd(t *testing.T) {
	ctx := context.Background()
	db := newIndex(t)

	site := catalog.NewSite(" kmso ").WithLongName("Missoula").WithState(catalog.MT)
	assert.Equal(t, "KMSO", site.ShortName())
	assert.False(t, site.IsKnown())

	_, err := catalog.Sites.Validate(ctx, db, site)
	require.ErrorIs(t, err, catalog.ErrNotFound)

	added, err := catalog.Sites.ValidateOrAdd(ctx, db, site)
	require.NoError(t, err)
	assert.True(t, added.IsKnown())
	assert.Equal(t, "Missoula", added.LongName())
	assert.Equal(t, catalog.MT, added.State())

	// Stored values win over the ones carried by the argument.
	again, err := catalog.Sites.ValidateOrAdd(ctx, db, catalog.NewSite("KMSO").WithLongName("Other"))
	require.NoError(t, err)
	assert.Equal(t, added.ID(), again.ID())
	assert.Equal(t, "Missoula", again.LongName())

	validated, err := catalog.Sites.Validate(ctx, db, catalog.NewSite("kmso"))
	require.NoError(t, err)
	assert.Equal(t, added, validated)

	all, err := catalog.Sites.All(ctx, db)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestSiteUpdate(t *testing.T) {
	ctx := context.Background()
	db := newIndex(t)

	_, err := catalog.Sites.Update(ctx, db, "KMSO", catalog.SiteUpdate{LongName: "Missoula"})
	require.ErrorIs(t, err, catalog.ErrNotFound)

	added, err := catalog.Sites.ValidateOrAdd(ctx, db, catalog.NewSite("KMSO"))
	require.NoError(t, err)

	updated, err := catalog.Sites.Update(ctx, db, "kmso", catalog.SiteUpdate{
		LongName: "Missoula",
		State:    catalog.MT,
		Notes:    "airport",
		Mobile:   true,
	})
	require.NoError(t, err)
	assert.Equal(t, added.ID(), updated.ID())
	assert.Equal(t, "KMSO", updated.ShortName())
	assert.Equal(t, "Missoula", updated.LongName())
	assert.Equal(t, "airport", updated.Notes())
	assert.True(t, updated.IsMobile())
	assert.False(t, updated.Incomplete())

	stored, ok, err := catalog.Sites.ByKey(ctx, db, "KMSO")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, updated, stored)
}

func TestSoundingTypeRegistry(t *testing.T) {
	ctx := context.Background()
	db := newIndex(t)

	gfs, err := catalog.SoundingTypes.ValidateOrAdd(ctx, db, catalog.NewModelType("gfs", catalog.KindBufkit, 6))
	require.NoError(t, err)
	assert.Equal(t, "GFS", gfs.Source())
	assert.True(t, gfs.IsModeled())
	assert.Equal(t, catalog.KindBufkit, gfs.FileKind())
	cadence, ok := gfs.Cadence()
	require.True(t, ok)
	assert.Equal(t, "6h0m0s", cadence.String())

	raob, err := catalog.SoundingTypes.ValidateOrAdd(ctx, db, catalog.NewObservedType("RAOB", catalog.KindBufr, 0))
	require.NoError(t, err)
	_, ok = raob.Cadence()
	assert.False(t, ok)
	assert.True(t, raob.IsObserved())

	updated, err := catalog.SoundingTypes.Update(ctx, db, "RAOB", catalog.SoundingTypeUpdate{Observed: true, HoursBetween: 12})
	require.NoError(t, err)
	assert.Equal(t, 12, updated.HoursBetween())
	assert.Equal(t, catalog.KindBufr, updated.FileKind())
}

func TestLocationRegistry(t *testing.T) {
	ctx := context.Background()
	db := newIndex(t)

	loc := catalog.MustLocation(46.92, -114.09, 972)
	added, err := catalog.Locations.ValidateOrAdd(ctx, db, loc)
	require.NoError(t, err)
	assert.True(t, added.IsKnown())
	assert.InDelta(t, 46.92, added.Latitude(), 1e-9)
	assert.InDelta(t, -114.09, added.Longitude(), 1e-9)
	_, hasTZ := added.TZOffset()
	assert.False(t, hasTZ)

	// Coordinates that quantize to the same microdegree are the same location.
	same, err := catalog.Locations.Validate(ctx, db, catalog.MustLocation(46.9200000001, -114.09, 972))
	require.NoError(t, err)
	assert.Equal(t, added.ID(), same.ID())

	again, err := catalog.Locations.ValidateOrAdd(ctx, db, catalog.MustLocation(46.9200000001, -114.09, 972))
	require.NoError(t, err)
	assert.Equal(t, added.ID(), again.ID())
	all, err := catalog.Locations.All(ctx, db)
	require.NoError(t, err)
	assert.Len(t, all, 1)

	// A different elevation is a different location.
	_, err = catalog.Locations.Validate(ctx, db, catalog.MustLocation(46.92, -114.09, 973))
	require.ErrorIs(t, err, catalog.ErrNotFound)

	tz := -7 * 3600
	updated, err := catalog.Locations.Update(ctx, db, loc.Key(), catalog.LocationUpdate{TZOffset: &tz})
	require.NoError(t, err)
	got, ok := updated.TZOffset()
	require.True(t, ok)
	assert.Equal(t, tz, got)

	cleared, err := catalog.Locations.Update(ctx, db, loc.Key(), catalog.LocationUpdate{})
	require.NoError(t, err)
	_, ok = cleared.TZOffset()
	assert.False(t, ok)
}

func TestValidateOrAddRejectsUnstorableNames(t *testing.T) {
	ctx := context.Background()
	db := newIndex(t)

	siteTests := []struct {
		name    string
		wantErr bool
	}{
		{"KMSO", false},
		{" kboi ", false},
		{"", true},
		{"   ", true},
		{"K_MSO", true},
		{"K/MSO", true},
		{`K\MSO`, true},
		{"K MSO", true},
		{"K\tMSO", true},
	}
	for _, tt := range siteTests {
		t.Run("site "+tt.name, func(t *testing.T) {
			_, err := catalog.Sites.ValidateOrAdd(ctx, db, catalog.NewSite(tt.name))
			if tt.wantErr {
				assert.ErrorIs(t, err, catalog.ErrInvalidEntity)
			} else {
				assert.NoError(t, err)
			}
		})
	}

	typeTests := []struct {
		name    string
		wantErr bool
	}{
		{"GFS", false},
		{"NAM_4KM", false},
		{"", true},
		{"NAM/4KM", true},
		{`NAM\4KM`, true},
		{"NAM 4KM", true},
	}
	for _, tt := range typeTests {
		t.Run("type "+tt.name, func(t *testing.T) {
			_, err := catalog.SoundingTypes.ValidateOrAdd(ctx, db, catalog.NewModelType(tt.name, catalog.KindBufkit, 6))
			if tt.wantErr {
				assert.ErrorIs(t, err, catalog.ErrInvalidEntity)
			} else {
				assert.NoError(t, err)
			}
		})
	}

	sites, err := catalog.Sites.All(ctx, db)
	require.NoError(t, err)
	assert.Len(t, sites, 2)
	types, err := catalog.SoundingTypes.All(ctx, db)
	require.NoError(t, err)
	assert.Len(t, types, 2)
}

func TestNewLocationRange(t *testing.T) {
	tests := []struct {
		name     string
		lat, lon float64
		wantErr  bool
	}{
		{"origin", 0, 0, false},
		{"corners", -90, 180, false},
		{"lat too high", 90.1, 0, true},
		{"lon too low", 0, -180.5, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := catalog.NewLocation(tt.lat, tt.lon, 0)
			if tt.wantErr {
				assert.ErrorIs(t, err, catalog.ErrRange)
			} else {
				assert.NoError(t, err)
			}
		})
	}
	assert.Panics(t, func() { catalog.MustLocation(100, 0, 0) })
}

func TestWhereJoin(t *testing.T) {
	ctx := context.Background()
	db := newIndex(t)

	site, err := catalog.Sites.ValidateOrAdd(ctx, db, catalog.NewSite("KMSO"))
	require.NoError(t, err)
	gfs, err := catalog.SoundingTypes.ValidateOrAdd(ctx, db, catalog.NewModelType("GFS", catalog.KindBufkit, 6))
	require.NoError(t, err)
	_, err = catalog.SoundingTypes.ValidateOrAdd(ctx, db, catalog.NewModelType("NAM", catalog.KindBufkit, 6))
	require.NoError(t, err)
	loc, err := catalog.Locations.ValidateOrAdd(ctx, db, catalog.MustLocation(46.92, -114.09, 972))
	require.NoError(t, err)

	for _, ts := range []string{"2017-04-01T00:00:00Z", "2017-04-01T06:00:00Z"} {
		_, err = db.ExecContext(ctx, `
			INSERT INTO files (type_id, site_id, location_id, init_time, file_name)
			VALUES (?, ?, ?, ?, ?)`, gfs.ID(), site.ID(), loc.ID(), ts, ts+".gz")
		require.NoError(t, err)
	}

	types, err := catalog.SoundingTypes.Where(ctx, db,
		`JOIN files ON files.type_id = types.id WHERE files.site_id = ? ORDER BY types.type`, site.ID())
	require.NoError(t, err)
	require.Len(t, types, 1)
	assert.Equal(t, "GFS", types[0].Source())
}

func TestParseStateProv(t *testing.T) {
	sp, err := catalog.ParseStateProv("mt")
	require.NoError(t, err)
	assert.Equal(t, catalog.MT, sp)

	sp, err = catalog.ParseStateProv("")
	require.NoError(t, err)
	assert.Equal(t, catalog.StateProv(""), sp)

	_, err = catalog.ParseStateProv("XX")
	assert.Error(t, err)
}

func TestParseFileKind(t *testing.T) {
	k, err := catalog.ParseFileKind("bufr")
	require.NoError(t, err)
	assert.Equal(t, catalog.KindBufr, k)
	assert.Equal(t, ".bufr", k.Extension())
	assert.Equal(t, ".buf", catalog.KindBufkit.Extension())

	_, err = catalog.ParseFileKind("grib")
	assert.Error(t, err)
}

func TestParseInitTime(t *testing.T) {
	want := time.Date(2024, 4, 26, 12, 0, 0, 0, time.UTC)
	for _, in := range []string{
		"2024-04-26T12:00:00Z",
		"2024-04-26T06:00:00-06:00",
		"2024-04-26T1200Z",
		"2024-04-26T12Z",
		"2024-04-26T12:00",
		"2024-04-26-12",
		"2024-04-26T12:00:30Z",
	} {
		got, err := catalog.ParseInitTime(in)
		require.NoError(t, err, in)
		assert.True(t, want.Equal(got), "%s parsed as %s", in, got)
		assert.Equal(t, time.UTC, got.Location())
	}

	_, err := catalog.ParseInitTime("yesterday")
	assert.Error(t, err)
}

func TestIndexTimeRoundTrip(t *testing.T) {
	in := time.Date(2017, 4, 1, 6, 0, 45, 0, time.FixedZone("MDT", -6*3600))
	s := catalog.FormatIndexTime(in)
	assert.Equal(t, "2017-04-01T12:00:00Z", s)

	got, err := catalog.ParseIndexTime(s)
	require.NoError(t, err)
	assert.True(t, catalog.InitTime(in).Equal(got))
}
