package inventory

import (
	"slices"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

var t0 = time.Date(2017, 4, 1, 0, 0, 0, 0, time.UTC)

func hours(hs ...int) []time.Time {
	out := make([]time.Time, len(hs))
	for i, h := range hs {
		out[i] = t0.Add(time.Duration(h) * time.Hour)
	}
	return out
}

func rng(first, last int) Range {
	return Range{First: t0.Add(time.Duration(first) * time.Hour), Last: t0.Add(time.Duration(last) * time.Hour)}
}

func TestMissingRanges(t *testing.T) {
	step := 6 * time.Hour
	tests := []struct {
		name  string
		times []time.Time
		step  time.Duration
		want  []Range
	}{
		{name: "no files", times: nil, step: step, want: nil},
		{name: "single file", times: hours(0), step: step, want: nil},
		{name: "complete", times: hours(0, 6, 12, 18), step: step, want: nil},
		{name: "one missing slot", times: hours(0, 6, 18), step: step, want: []Range{rng(12, 12)}},
		{name: "run of missing slots", times: hours(0, 30), step: step, want: []Range{rng(6, 24)}},
		{name: "two gaps", times: hours(0, 12, 36, 42), step: step, want: []Range{rng(6, 6), rng(18, 30)}},
		{name: "no cadence", times: hours(0, 18), step: 0, want: nil},
		{name: "off-cadence run ignored", times: hours(0, 3, 6, 12), step: step, want: nil},
		{name: "gap ending off cadence", times: hours(0, 15, 18), step: step, want: []Range{rng(6, 12)}},
		{name: "repeated time", times: hours(0, 0, 6), step: step, want: nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, MissingRanges(tt.times, tt.step))
		})
	}
}

func TestFillingMissingRangesLeavesNone(t *testing.T) {
	step := 6 * time.Hour
	for _, times := range [][]time.Time{
		hours(0, 6, 18, 42),
		hours(0, 7, 30),
		hours(0, 15, 18, 60),
	} {
		filled := append([]time.Time(nil), times...)
		for _, r := range MissingRanges(times, step) {
			for ts := r.First; !ts.After(r.Last); ts = ts.Add(step) {
				filled = append(filled, ts)
			}
		}
		slices.SortFunc(filled, time.Time.Compare)
		assert.Empty(t, MissingRanges(filled, step), "%v", times)
	}
}

func TestRangeSlots(t *testing.T) {
	assert.Equal(t, 1, rng(12, 12).Slots(6*time.Hour))
	assert.Equal(t, 4, rng(6, 24).Slots(6*time.Hour))
	assert.Equal(t, 0, rng(6, 24).Slots(0))
}
