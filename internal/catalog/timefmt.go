package catalog

import (
	"fmt"
	"time"
)

// IndexTimeLayout is the text form of init times in the index. It is fixed width and
// always UTC, so string order is chronological order.
const IndexTimeLayout = "2006-01-02T15:04:05Z"

// InitTime normalizes a time to the resolution the archive keys files on: UTC,
// truncated to the minute.
func InitTime(t time.Time) time.Time {
	return t.UTC().Truncate(time.Minute)
}

// FormatIndexTime renders an init time for storage in the index.
func FormatIndexTime(t time.Time) string {
	return InitTime(t).Format(IndexTimeLayout)
}

// ParseIndexTime parses an init time read from the index.
func ParseIndexTime(s string) (time.Time, error) {
	t, err := time.ParseInLocation(IndexTimeLayout, s, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse init time %q: %w", s, err)
	}
	return t, nil
}

// initTimeLayouts are the forms accepted from users, most specific first.
var initTimeLayouts = []string{
	time.RFC3339,
	"2006-01-02T1504Z",
	"2006-01-02T15Z",
	"2006-01-02T15:04",
	"2006-01-02-15",
}

// ParseInitTime parses an init time given on a command line, in a URL or in a
// manifest. Times without a zone are UTC.
func ParseInitTime(s string) (time.Time, error) {
	for _, layout := range initTimeLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return InitTime(t), nil
		}
	}
	return time.Time{}, fmt.Errorf("init time %q: want RFC 3339 or YYYY-MM-DDTHHMMZ", s)
}
