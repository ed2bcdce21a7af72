package archive

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sounding_archive/internal/catalog"
)

func TestFileName(t *testing.T) {
	site := catalog.NewSite("kmso")
	typ := catalog.NewModelType("gfs", catalog.KindBufkit, 6)
	initTime := time.Date(2017, 4, 1, 6, 0, 0, 0, time.UTC)

	assert.Equal(t, "2017-04-01T0600Z_GFS_KMSO.gz", FileName(site, typ, initTime))
	assert.Equal(t, "2017-04-01T0600Z_GFS_KMSO.buf", RawFileName(site, typ, initTime))

	bufr := catalog.NewObservedType("raob", catalog.KindBufr, 12)
	assert.Equal(t, "2017-04-01T0600Z_RAOB_KMSO.bufr", RawFileName(site, bufr, initTime))

	// Non-UTC input names the same instant.
	mdt := time.FixedZone("MDT", -6*3600)
	assert.Equal(t, "2017-04-01T0600Z_GFS_KMSO.gz", FileName(site, typ, initTime.In(mdt)))
}

func TestParseFileName(t *testing.T) {
	site, source, initTime, err := ParseFileName("2017-04-01T0600Z_NAM4KM_KMSO.gz")
	require.NoError(t, err)
	assert.Equal(t, "KMSO", site)
	assert.Equal(t, "NAM4KM", source)
	assert.Equal(t, time.Date(2017, 4, 1, 6, 0, 0, 0, time.UTC), initTime)

	site, source, _, err = ParseFileName("2017-04-01T0600Z_HRRR_SUB_KMSO.gz")
	require.NoError(t, err)
	assert.Equal(t, "KMSO", site)
	assert.Equal(t, "HRRR_SUB", source)

	for _, bad := range []string{
		"",
		"2017-04-01T0600Z_GFS_KMSO.buf",
		"2017-04-01T0600Z_KMSO.gz",
		"2017-04-01T0600Z_GFS_.gz",
		"20170401T0600Z_GFS_KMSO.gz",
		"2017-04-01T0600Z.GFS_KMSO.gz",
	} {
		_, _, _, err := ParseFileName(bad)
		assert.Error(t, err, bad)
	}
}
