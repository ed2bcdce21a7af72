package archive

import (
	"fmt"
	"strings"
	"time"

	"sounding_archive/internal/catalog"
)

const (
	nameTimeLayout = "2006-01-02T1504Z"
	blobSuffix     = ".gz"
)

// FileName returns the stored blob name for a logical key, e.g.
// 2017-04-01T0600Z_GFS_KMSO.gz.
func FileName(site catalog.Site, typ catalog.SoundingType, initTime time.Time) string {
	return baseName(site.ShortName(), typ.Source(), initTime) + blobSuffix
}

// RawFileName returns the name used when a payload is written out uncompressed. The
// extension follows the type's file kind.
func RawFileName(site catalog.Site, typ catalog.SoundingType, initTime time.Time) string {
	return baseName(site.ShortName(), typ.Source(), initTime) + typ.FileKind().Extension()
}

func baseName(site, source string, initTime time.Time) string {
	return catalog.InitTime(initTime).Format(nameTimeLayout) + "_" + source + "_" + site
}

// ParseFileName recovers the site short name, type source and init time from a name
// produced by FileName.
func ParseFileName(name string) (site, source string, initTime time.Time, err error) {
	base, ok := strings.CutSuffix(name, blobSuffix)
	if !ok || len(base) < len(nameTimeLayout)+4 || base[len(nameTimeLayout)] != '_' {
		return "", "", time.Time{}, fmt.Errorf("not an archive file name: %q", name)
	}

	initTime, err = time.ParseInLocation(nameTimeLayout, base[:len(nameTimeLayout)], time.UTC)
	if err != nil {
		return "", "", time.Time{}, fmt.Errorf("not an archive file name: %q", name)
	}

	rest := base[len(nameTimeLayout)+1:]
	i := strings.LastIndexByte(rest, '_')
	if i <= 0 || i == len(rest)-1 {
		return "", "", time.Time{}, fmt.Errorf("not an archive file name: %q", name)
	}
	return rest[i+1:], rest[:i], initTime, nil
}
