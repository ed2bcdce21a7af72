package inventory

import "time"

// Range is an inclusive span of init times.
type Range struct {
	First time.Time
	Last  time.Time
}

// Slots returns the number of cadence slots the range covers.
func (r Range) Slots(step time.Duration) int {
	if step <= 0 || r.Last.Before(r.First) {
		return 0
	}
	return int(r.Last.Sub(r.First)/step) + 1
}

// MissingRanges walks sorted init times on a fixed cadence and returns the runs of
// expected slots that have no file. Each range runs from the first missing slot to
// the last missing slot before the next present time.
//
// A time earlier than the expected slot, e.g. an off-cadence special run, neither
// closes a gap nor moves the expectation. A non-positive step yields nil.
func MissingRanges(times []time.Time, step time.Duration) []Range {
	if step <= 0 || len(times) == 0 {
		return nil
	}

	var missing []Range
	cursor := times[0]
	for _, t := range times {
		if t.Before(cursor) {
			continue
		}
		if t.After(cursor) {
			gap := Range{First: cursor}
			for cursor.Before(t) {
				gap.Last = cursor
				cursor = cursor.Add(step)
			}
			missing = append(missing, gap)
		}
		if t.Equal(cursor) {
			cursor = cursor.Add(step)
		}
	}
	return missing
}
