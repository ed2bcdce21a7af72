package catalog

import (
	"database/sql"
	"fmt"
	"math"
)

// Location is a geographic point with an elevation. One site may be associated with
// several locations over time, e.g. a model grid point that moves between versions.
type Location struct {
	latitude  float64
	longitude float64
	elevation int
	tzOffset  int
	hasTZ     bool
	id        int64
}

// NewLocation creates an unvalidated location. It returns ErrRange if the latitude is
// outside [-90, 90] or the longitude is outside [-180, 180].
func NewLocation(lat, lon float64, elevationM int) (Location, error) {
	if math.IsNaN(lat) || lat < -90 || lat > 90 {
		return Location{}, fmt.Errorf("latitude %v: %w", lat, ErrRange)
	}
	if math.IsNaN(lon) || lon < -180 || lon > 180 {
		return Location{}, fmt.Errorf("longitude %v: %w", lon, ErrRange)
	}
	return Location{latitude: lat, longitude: lon, elevation: elevationM}, nil
}

// MustLocation is like NewLocation but panics on out of range coordinates.
func MustLocation(lat, lon float64, elevationM int) Location {
	loc, err := NewLocation(lat, lon, elevationM)
	if err != nil {
		panic(err)
	}
	return loc
}

// WithTZOffset returns a copy carrying a UTC offset in seconds.
func (l Location) WithTZOffset(seconds int) Location {
	l.tzOffset = seconds
	l.hasTZ = true
	return l
}

// Accessors. Latitude and longitude are in degrees, elevation in meters; the id is 0
// until the location is validated.
func (l Location) Latitude() float64  { return l.latitude }
func (l Location) Longitude() float64 { return l.longitude }
func (l Location) Elevation() int     { return l.elevation }
func (l Location) ID() int64          { return l.id }
func (l Location) IsKnown() bool      { return l.id > 0 }

// TZOffset returns the UTC offset in seconds and whether one is recorded.
func (l Location) TZOffset() (int, bool) { return l.tzOffset, l.hasTZ }

// Key returns the quantized natural key of the location.
func (l Location) Key() LocationKey {
	return LocationKey{
		Latitude:  Microdegrees(l.latitude),
		Longitude: Microdegrees(l.longitude),
		Elevation: l.elevation,
	}
}

// Update returns the settable fields of the location.
func (l Location) Update() LocationUpdate {
	if !l.hasTZ {
		return LocationUpdate{}
	}
	tz := l.tzOffset
	return LocationUpdate{TZOffset: &tz}
}

func (l Location) String() string {
	return fmt.Sprintf("(%.6f, %.6f, %dm)", l.latitude, l.longitude, l.elevation)
}

// LocationKey is the natural key of a location. Coordinates are in microdegrees so
// that equality is exact.
type LocationKey struct {
	Latitude  int64
	Longitude int64
	Elevation int
}

// LocationUpdate holds the only field of a location that may change after creation.
// A nil TZOffset clears the stored offset.
type LocationUpdate struct {
	TZOffset *int
}

// Microdegrees quantizes decimal degrees to integer millionths of a degree.
func Microdegrees(deg float64) int64 {
	return int64(math.Round(deg * 1_000_000))
}

// Locations is the registry for the locations table, keyed by quantized coordinates
// and elevation.
var Locations = NewRegistry(Mapping[Location, LocationKey, LocationUpdate]{
	Table:         "locations",
	Entity:        "location",
	KeyColumns:    []string{"latitude", "longitude", "elevation_meters"},
	DataColumns:   []string{"tz_offset_seconds"},
	UpdateColumns: []string{"tz_offset_seconds"},
	Key:           func(l Location) LocationKey { return l.Key() },
	KeyArgs: func(k LocationKey) []any {
		return []any{k.Latitude, k.Longitude, k.Elevation}
	},
	InsertArgs: func(l Location) []any {
		return []any{sql.NullInt64{Int64: int64(l.tzOffset), Valid: l.hasTZ}}
	},
	UpdateArgs: func(u LocationUpdate) []any {
		if u.TZOffset == nil {
			return []any{sql.NullInt64{}}
		}
		return []any{sql.NullInt64{Int64: int64(*u.TZOffset), Valid: true}}
	},
	Scan: scanLocation,
	ID:   func(l Location) int64 { return l.id },
})

func scanLocation(row Scanner) (Location, error) {
	var l Location
	var lat, lon int64
	var tz sql.NullInt64
	if err := row.Scan(&l.id, &lat, &lon, &l.elevation, &tz); err != nil {
		return Location{}, err
	}
	l.latitude = float64(lat) / 1_000_000
	l.longitude = float64(lon) / 1_000_000
	if tz.Valid {
		l.tzOffset = int(tz.Int64)
		l.hasTZ = true
	}
	return l, nil
}
