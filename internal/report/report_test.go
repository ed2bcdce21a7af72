package report

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sounding_archive/internal/archive"
	"sounding_archive/internal/catalog"
)

func TestWriteFilesCSV(t *testing.T) {
	files := []archive.FileRecord{
		{
			Site:     "KMSO",
			Source:   "GFS",
			Kind:     catalog.KindBufkit,
			InitTime: time.Date(2024, 4, 26, 12, 0, 0, 0, time.UTC),
			FileName: "2024-04-26T1200Z_GFS_KMSO.gz",
		},
	}

	var buf bytes.Buffer
	require.NoError(t, WriteFilesCSV(&buf, files))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "site,type,kind,init_time,file_name", lines[0])
	assert.Equal(t, "KMSO,GFS,BUFKIT,2024-04-26T12:00:00Z,2024-04-26T1200Z_GFS_KMSO.gz", lines[1])
}

func TestWriteFilesCSV_Empty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteFilesCSV(&buf, nil))
	assert.Equal(t, "site,type,kind,init_time,file_name\n", buf.String())
}

func TestWriteInventoryCSV(t *testing.T) {
	ctx := context.Background()
	arch, err := archive.Create(ctx, filepath.Join(t.TempDir(), "archive"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = arch.Close() })

	site, err := arch.AddSite(ctx, catalog.NewSite("KMSO"))
	require.NoError(t, err)
	gfs, err := arch.AddSoundingType(ctx, catalog.NewModelType("GFS", catalog.KindBufkit, 6))
	require.NoError(t, err)
	loc, err := arch.AddLocation(ctx, catalog.MustLocation(46.92, -114.09, 972))
	require.NoError(t, err)

	base := time.Date(2024, 4, 26, 0, 0, 0, 0, time.UTC)
	for _, h := range []int{0, 6, 18} {
		err := arch.Add(ctx, site, gfs, loc, base.Add(time.Duration(h)*time.Hour), strings.NewReader("payload"))
		require.NoError(t, err)
	}

	inv, err := arch.Inventory(ctx, site)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, WriteInventoryCSV(&buf, inv))
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "site,type,first,last,count,hours_between,missing_ranges,missing_slots,locations", lines[0])
	assert.Equal(t, "KMSO,GFS,2024-04-26T00:00:00Z,2024-04-26T18:00:00Z,3,6,1,1,1", lines[1])

	buf.Reset()
	require.NoError(t, WriteMissingCSV(&buf, inv))
	lines = strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "KMSO,GFS,2024-04-26T12:00:00Z,2024-04-26T12:00:00Z,1", lines[1])
}

func TestReadManifest(t *testing.T) {
	in := `# files from the nightly pull
site,type,kind,hours_between,init_time,lat,lon,elev_m,path
kmso,gfs,,6,2024-04-26T12:00:00Z,46.92,-114.09,972,gfs/kmso.buf
KMSO,RAOB,bufr,12,2024-04-26T1200Z,46.92,-114.09,972,/abs/raob.bufr
`
	entries, err := ReadManifest(strings.NewReader(in))
	require.NoError(t, err)
	require.Len(t, entries, 2)

	typ, err := entries[0].SoundingType()
	require.NoError(t, err)
	assert.Equal(t, "GFS", typ.Source())
	assert.Equal(t, catalog.KindBufkit, typ.FileKind())
	assert.Equal(t, 6, typ.HoursBetween())

	typ, err = entries[1].SoundingType()
	require.NoError(t, err)
	assert.Equal(t, catalog.KindBufr, typ.FileKind())

	want := time.Date(2024, 4, 26, 12, 0, 0, 0, time.UTC)
	for _, e := range entries {
		got, err := e.Time()
		require.NoError(t, err)
		assert.True(t, want.Equal(got))
	}

	loc, err := entries[0].Location()
	require.NoError(t, err)
	assert.Equal(t, 972, loc.Elevation())
}

func TestReadManifest_Errors(t *testing.T) {
	_, err := ReadManifest(strings.NewReader("site,type,init_time,path\nKMSO,,2024-04-26T12:00:00Z,x.buf\n"))
	assert.Error(t, err)

	entries, err := ReadManifest(strings.NewReader(""))
	require.NoError(t, err)
	assert.Empty(t, entries)

	_, err = ManifestEntry{InitTime: "yesterday"}.Time()
	assert.Error(t, err)

	_, err = ManifestEntry{Type: "GFS", Kind: "grib"}.SoundingType()
	assert.Error(t, err)

	_, err = ManifestEntry{Latitude: 91}.Location()
	assert.ErrorIs(t, err, catalog.ErrRange)
}
