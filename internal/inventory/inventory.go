// Package inventory summarizes what an archive holds for one site: the sounding
// types present, the span of init times for each, the cadence slots missing inside
// that span and the locations the files were recorded at.
package inventory

import (
	"context"
	"fmt"
	"time"

	"sounding_archive/internal/catalog"
)

// Entry is the inventory of one sounding type at a site.
type Entry struct {
	Type      catalog.SoundingType
	Range     Range
	Count     int
	Missing   []Range // nil when the type has no cadence
	Locations []catalog.Location
}

// HasCadence reports whether missing ranges were computed for the entry.
func (e Entry) HasCadence() bool {
	_, ok := e.Type.Cadence()
	return ok
}

// MissingSlots returns the total number of missing cadence slots.
func (e Entry) MissingSlots() int {
	step, ok := e.Type.Cadence()
	if !ok {
		return 0
	}
	n := 0
	for _, r := range e.Missing {
		n += r.Slots(step)
	}
	return n
}

// Inventory aggregates the entries of one site, ordered by source name.
type Inventory struct {
	site    catalog.Site
	entries []Entry
}

func (inv *Inventory) Site() catalog.Site { return inv.site }

// Entries returns every per-type entry.
func (inv *Inventory) Entries() []Entry { return inv.entries }

// SoundingTypes returns the types with at least one file at the site.
func (inv *Inventory) SoundingTypes() []catalog.SoundingType {
	types := make([]catalog.SoundingType, len(inv.entries))
	for i, e := range inv.entries {
		types[i] = e.Type
	}
	return types
}

// Entry returns the entry for a source name.
func (inv *Inventory) Entry(source string) (Entry, bool) {
	key := catalog.NormalizeName(source)
	for _, e := range inv.entries {
		if e.Type.Source() == key {
			return e, true
		}
	}
	return Entry{}, false
}

// Range returns the first and last init time stored for a source.
func (inv *Inventory) Range(source string) (Range, bool) {
	e, ok := inv.Entry(source)
	return e.Range, ok
}

// Missing returns the missing ranges for a source. The boolean is false when the source
// is absent or has no cadence.
func (inv *Inventory) Missing(source string) ([]Range, bool) {
	e, ok := inv.Entry(source)
	if !ok || !e.HasCadence() {
		return nil, false
	}
	return e.Missing, true
}

// Locations returns the distinct locations of a source's files.
func (inv *Inventory) Locations(source string) []catalog.Location {
	e, _ := inv.Entry(source)
	return e.Locations
}

// Compute builds the inventory of a site. The site must be in the index.
func Compute(ctx context.Context, db catalog.DBTX, site catalog.Site) (*Inventory, error) {
	site, err := catalog.Sites.Validate(ctx, db, site)
	if err != nil {
		return nil, err
	}

	types, err := catalog.SoundingTypes.Where(ctx, db, `
		JOIN files ON files.type_id = types.id
		WHERE files.site_id = ?
		ORDER BY types.type`, site.ID())
	if err != nil {
		return nil, err
	}

	inv := &Inventory{site: site, entries: make([]Entry, 0, len(types))}
	for _, typ := range types {
		times, err := initTimes(ctx, db, site.ID(), typ.ID())
		if err != nil {
			return nil, err
		}
		if len(times) == 0 {
			continue
		}

		e := Entry{
			Type:  typ,
			Range: Range{First: times[0], Last: times[len(times)-1]},
			Count: len(times),
		}
		if step, ok := typ.Cadence(); ok {
			e.Missing = MissingRanges(times, step)
			if e.Missing == nil {
				e.Missing = []Range{}
			}
		}

		e.Locations, err = catalog.Locations.Where(ctx, db, `
			JOIN files ON files.location_id = locations.id
			WHERE files.site_id = ? AND files.type_id = ?
			ORDER BY locations.id`, site.ID(), typ.ID())
		if err != nil {
			return nil, err
		}
		inv.entries = append(inv.entries, e)
	}
	return inv, nil
}

func initTimes(ctx context.Context, db catalog.DBTX, siteID, typeID int64) ([]time.Time, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT init_time FROM files
		WHERE site_id = ? AND type_id = ?
		ORDER BY init_time`, siteID, typeID)
	if err != nil {
		return nil, fmt.Errorf("query init times: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var times []time.Time
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, fmt.Errorf("scan init time: %w", err)
		}
		t, err := catalog.ParseIndexTime(s)
		if err != nil {
			return nil, err
		}
		times = append(times, t)
	}
	return times, rows.Err()
}
