package report

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/jszwec/csvutil"

	"sounding_archive/internal/catalog"
)

// ManifestEntry is one file to load into an archive. Path is relative to the manifest
// unless absolute.
type ManifestEntry struct {
	Site      string  `csv:"site"`
	Type      string  `csv:"type"`
	Kind      string  `csv:"kind,omitempty"`
	Observed  bool    `csv:"observed,omitempty"`
	Hours     int     `csv:"hours_between,omitempty"`
	InitTime  string  `csv:"init_time"`
	Latitude  float64 `csv:"lat"`
	Longitude float64 `csv:"lon"`
	Elevation int     `csv:"elev_m"`
	Path      string  `csv:"path"`
}

// Time parses the init time.
func (m ManifestEntry) Time() (time.Time, error) {
	return catalog.ParseInitTime(strings.TrimSpace(m.InitTime))
}

// SoundingType builds the unvalidated type named by the entry. A blank kind defaults
// to BUFKIT.
func (m ManifestEntry) SoundingType() (catalog.SoundingType, error) {
	kind := catalog.KindBufkit
	if strings.TrimSpace(m.Kind) != "" {
		k, err := catalog.ParseFileKind(m.Kind)
		if err != nil {
			return catalog.SoundingType{}, err
		}
		kind = k
	}
	return catalog.NewSoundingType(m.Type, m.Observed, kind, m.Hours), nil
}

// Location builds the unvalidated location of the entry.
func (m ManifestEntry) Location() (catalog.Location, error) {
	return catalog.NewLocation(m.Latitude, m.Longitude, m.Elevation)
}

// ReadManifest decodes a CSV manifest. The first line is the header; columns may come
// in any order.
func ReadManifest(r io.Reader) ([]ManifestEntry, error) {
	dec, err := csvutil.NewDecoder(newCSVReader(r))
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("read manifest header: %w", err)
	}

	var entries []ManifestEntry
	if err := dec.Decode(&entries); err != nil {
		return nil, fmt.Errorf("decode manifest: %w", err)
	}
	for i, e := range entries {
		if strings.TrimSpace(e.Site) == "" || strings.TrimSpace(e.Type) == "" || strings.TrimSpace(e.Path) == "" {
			return nil, fmt.Errorf("manifest row %d: site, type and path are required", i+1)
		}
	}
	return entries, nil
}

func newCSVReader(r io.Reader) *csv.Reader {
	cr := csv.NewReader(r)
	cr.Comment = '#'
	cr.TrimLeadingSpace = true
	return cr
}
