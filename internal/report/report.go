// Package report renders archive listings and inventories as CSV and reads the CSV
// manifests used to load files in bulk.
package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"time"

	"github.com/jszwec/csvutil"

	"sounding_archive/internal/archive"
	"sounding_archive/internal/inventory"
)

type fileRow struct {
	Site     string    `csv:"site"`
	Type     string    `csv:"type"`
	Kind     string    `csv:"kind"`
	InitTime time.Time `csv:"init_time"`
	FileName string    `csv:"file_name"`
}

type inventoryRow struct {
	Site          string    `csv:"site"`
	Type          string    `csv:"type"`
	First         time.Time `csv:"first"`
	Last          time.Time `csv:"last"`
	Count         int       `csv:"count"`
	HoursBetween  int       `csv:"hours_between,omitempty"`
	MissingRanges int       `csv:"missing_ranges"`
	MissingSlots  int       `csv:"missing_slots"`
	Locations     int       `csv:"locations"`
}

type missingRow struct {
	Site  string    `csv:"site"`
	Type  string    `csv:"type"`
	First time.Time `csv:"first"`
	Last  time.Time `csv:"last"`
	Slots int       `csv:"slots"`
}

// WriteFilesCSV writes one row per indexed file.
func WriteFilesCSV(w io.Writer, files []archive.FileRecord) error {
	rows := make([]fileRow, len(files))
	for i, f := range files {
		rows[i] = fileRow{
			Site:     f.Site,
			Type:     f.Source,
			Kind:     string(f.Kind),
			InitTime: f.InitTime.UTC(),
			FileName: f.FileName,
		}
	}
	return encode(w, rows, fileRow{})
}

// WriteInventoryCSV writes one summary row per sounding type of the inventory.
func WriteInventoryCSV(w io.Writer, inv *inventory.Inventory) error {
	entries := inv.Entries()
	rows := make([]inventoryRow, len(entries))
	for i, e := range entries {
		rows[i] = inventoryRow{
			Site:          inv.Site().ShortName(),
			Type:          e.Type.Source(),
			First:         e.Range.First.UTC(),
			Last:          e.Range.Last.UTC(),
			Count:         e.Count,
			HoursBetween:  e.Type.HoursBetween(),
			MissingRanges: len(e.Missing),
			MissingSlots:  e.MissingSlots(),
			Locations:     len(e.Locations),
		}
	}
	return encode(w, rows, inventoryRow{})
}

// WriteMissingCSV writes one row per missing range of the inventory.
func WriteMissingCSV(w io.Writer, inv *inventory.Inventory) error {
	var rows []missingRow
	for _, e := range inv.Entries() {
		step, ok := e.Type.Cadence()
		if !ok {
			continue
		}
		for _, r := range e.Missing {
			rows = append(rows, missingRow{
				Site:  inv.Site().ShortName(),
				Type:  e.Type.Source(),
				First: r.First.UTC(),
				Last:  r.Last.UTC(),
				Slots: r.Slots(step),
			})
		}
	}
	return encode(w, rows, missingRow{})
}

func encode[T any](w io.Writer, rows []T, header T) error {
	cw := csv.NewWriter(w)
	enc := csvutil.NewEncoder(cw)

	var err error
	if len(rows) == 0 {
		err = enc.EncodeHeader(header)
	} else {
		err = enc.Encode(rows)
	}
	if err != nil {
		return fmt.Errorf("encode csv: %w", err)
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("write csv: %w", err)
	}
	return nil
}
