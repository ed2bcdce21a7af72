package catalog

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"unicode"
)

// Site is a fixed or mobile location that soundings are produced for, identified by a
// short station code. Sites are values; builders return modified copies.
type Site struct {
	shortName string
	longName  string
	notes     string
	state     StateProv
	mobile    bool
	id        int64
}

// NewSite creates an unvalidated site. The short name is trimmed and upper-cased.
func NewSite(shortName string) Site {
	return Site{shortName: NormalizeName(shortName)}
}

// WithLongName returns a copy with the human readable name set.
func (s Site) WithLongName(name string) Site {
	s.longName = name
	return s
}

// WithNotes returns a copy with free-text notes set.
func (s Site) WithNotes(notes string) Site {
	s.notes = notes
	return s
}

// WithState returns a copy with the state/province set.
func (s Site) WithState(state StateProv) Site {
	s.state = state
	return s
}

// WithMobile returns a copy marked as a mobile platform (or not).
func (s Site) WithMobile(mobile bool) Site {
	s.mobile = mobile
	return s
}

// Accessors for the site's fields.
func (s Site) ShortName() string { return s.shortName }
func (s Site) LongName() string  { return s.longName }
func (s Site) Notes() string     { return s.notes }
func (s Site) State() StateProv  { return s.state }
func (s Site) IsMobile() bool    { return s.mobile }

// ID returns the index row id, or 0 if the site has not been validated.
func (s Site) ID() int64 { return s.id }

// IsKnown reports whether the site has been validated against the index.
func (s Site) IsKnown() bool { return s.id > 0 }

// Incomplete reports whether the long name or state is missing. Notes are ignored.
func (s Site) Incomplete() bool {
	return s.longName == "" || s.state == ""
}

// Update returns the settable fields of the site.
func (s Site) Update() SiteUpdate {
	return SiteUpdate{
		LongName: s.longName,
		State:    s.state,
		Notes:    s.notes,
		Mobile:   s.mobile,
	}
}

// SiteUpdate holds the descriptive fields of a site that may change after creation.
type SiteUpdate struct {
	LongName string
	State    StateProv
	Notes    string
	Mobile   bool
}

// Sites is the registry for the sites table, keyed by short name.
var Sites = NewRegistry(Mapping[Site, string, SiteUpdate]{
	Table:         "sites",
	Entity:        "site",
	KeyColumns:    []string{"short_name"},
	DataColumns:   []string{"long_name", "state", "notes", "mobile_sounding_site"},
	UpdateColumns: []string{"long_name", "state", "notes", "mobile_sounding_site"},
	Key:           func(s Site) string { return s.shortName },
	NormalizeKey:  NormalizeName,
	CheckKey:      func(k string) error { return checkName(k, siteNameForbidden) },
	KeyArgs:       func(k string) []any { return []any{k} },
	InsertArgs: func(s Site) []any {
		return []any{nullString(s.longName), nullString(string(s.state)), nullString(s.notes), s.mobile}
	},
	UpdateArgs: func(u SiteUpdate) []any {
		return []any{nullString(u.LongName), nullString(string(u.State)), nullString(u.Notes), u.Mobile}
	},
	Scan: scanSite,
	ID:   func(s Site) int64 { return s.id },
})

func scanSite(row Scanner) (Site, error) {
	var s Site
	var longName, state, notes sql.NullString
	if err := row.Scan(&s.id, &s.shortName, &longName, &state, &notes, &s.mobile); err != nil {
		return Site{}, err
	}
	s.longName = longName.String
	s.notes = notes.String
	if state.Valid {
		sp, err := ParseStateProv(state.String)
		if err != nil {
			return Site{}, fmt.Errorf("site %s: %w", s.shortName, err)
		}
		s.state = sp
	}
	return s, nil
}

// NormalizeName trims and upper-cases a site short name or type source name.
func NormalizeName(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

// Characters that may not appear in names, which become part of blob file names.
// The underscore separates the site from the type source.
const (
	sourceNameForbidden = `/\`
	siteNameForbidden   = sourceNameForbidden + "_"
)

func checkName(name, forbidden string) error {
	switch {
	case name == "":
		return errors.New("empty name")
	case strings.ContainsAny(name, forbidden):
		return fmt.Errorf("name may not contain any of %q", forbidden)
	case strings.IndexFunc(name, func(r rune) bool { return unicode.IsSpace(r) || !unicode.IsPrint(r) }) >= 0:
		return errors.New("name may not contain spaces or control characters")
	}
	return nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
