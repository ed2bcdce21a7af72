package catalog

import (
	"database/sql"
	"time"
)

// SoundingType describes a source of soundings: a model or an observation network.
type SoundingType struct {
	source       string
	observed     bool
	kind         FileKind
	hoursBetween int
	id           int64
}

// NewSoundingType creates an unvalidated sounding type. hoursBetween is the expected
// number of hours between initializations or launches; zero or less means the cadence
// is unknown.
func NewSoundingType(source string, observed bool, kind FileKind, hoursBetween int) SoundingType {
	if hoursBetween < 0 {
		hoursBetween = 0
	}
	return SoundingType{
		source:       NormalizeName(source),
		observed:     observed,
		kind:         kind,
		hoursBetween: hoursBetween,
	}
}

// NewModelType creates a modeled sounding type.
func NewModelType(source string, kind FileKind, hoursBetween int) SoundingType {
	return NewSoundingType(source, false, kind, hoursBetween)
}

// NewObservedType creates an observed sounding type.
func NewObservedType(source string, kind FileKind, hoursBetween int) SoundingType {
	return NewSoundingType(source, true, kind, hoursBetween)
}

// Accessors. ID is 0 and IsKnown false until the type is validated.
func (t SoundingType) Source() string     { return t.source }
func (t SoundingType) IsObserved() bool   { return t.observed }
func (t SoundingType) IsModeled() bool    { return !t.observed }
func (t SoundingType) FileKind() FileKind { return t.kind }
func (t SoundingType) ID() int64          { return t.id }
func (t SoundingType) IsKnown() bool      { return t.id > 0 }

// HoursBetween returns the cadence in hours, or 0 when it is not known.
func (t SoundingType) HoursBetween() int { return t.hoursBetween }

// Cadence returns the expected time between soundings and whether it is known.
func (t SoundingType) Cadence() (time.Duration, bool) {
	if t.hoursBetween <= 0 {
		return 0, false
	}
	return time.Duration(t.hoursBetween) * time.Hour, true
}

// Update returns the settable fields of the sounding type.
func (t SoundingType) Update() SoundingTypeUpdate {
	return SoundingTypeUpdate{Observed: t.observed, HoursBetween: t.hoursBetween}
}

// SoundingTypeUpdate holds the fields of a sounding type that may change after creation.
type SoundingTypeUpdate struct {
	Observed     bool
	HoursBetween int
}

// SoundingTypes is the registry for the types table, keyed by source name.
var SoundingTypes = NewRegistry(Mapping[SoundingType, string, SoundingTypeUpdate]{
	Table:         "types",
	Entity:        "sounding type",
	KeyColumns:    []string{"type"},
	DataColumns:   []string{"file_kind", "observed", "hours_between"},
	UpdateColumns: []string{"observed", "hours_between"},
	Key:           func(t SoundingType) string { return t.source },
	NormalizeKey:  NormalizeName,
	CheckKey:      func(k string) error { return checkName(k, sourceNameForbidden) },
	KeyArgs:       func(k string) []any { return []any{k} },
	InsertArgs: func(t SoundingType) []any {
		return []any{string(t.kind), t.observed, nullHours(t.hoursBetween)}
	},
	UpdateArgs: func(u SoundingTypeUpdate) []any {
		return []any{u.Observed, nullHours(u.HoursBetween)}
	},
	Scan: scanSoundingType,
	ID:   func(t SoundingType) int64 { return t.id },
})

func scanSoundingType(row Scanner) (SoundingType, error) {
	var t SoundingType
	var kind string
	var hours sql.NullInt64
	if err := row.Scan(&t.id, &t.source, &kind, &t.observed, &hours); err != nil {
		return SoundingType{}, err
	}
	k, err := ParseFileKind(kind)
	if err != nil {
		return SoundingType{}, err
	}
	t.kind = k
	if hours.Valid {
		t.hoursBetween = int(hours.Int64)
	}
	return t, nil
}

func nullHours(h int) sql.NullInt64 {
	return sql.NullInt64{Int64: int64(h), Valid: h > 0}
}
