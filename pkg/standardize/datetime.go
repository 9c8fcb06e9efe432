package standardize

import (
	"time"
)

// Accepted layouts, tried in order. Outputs re-parse under the first
// layout of each list, which keeps both functions idempotent.
var dateLayouts = []string{
	"2006-01-02",
	"2006/01/02",
	"01/02/2006",
	"1/2/2006",
	"01-02-2006",
	"Jan 2, 2006",
	"January 2, 2006",
	"2 Jan 2006",
	"2 January 2006",
}

var dateTimeLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"01/02/2006 15:04:05",
	"01/02/2006 15:04",
	"01/02/2006 03:04 PM",
	"1/2/2006 15:04",
	time.RFC1123Z,
	time.RFC1123,
	"2006-01-02 15:04:05 -0700",
}

// DateOnly parses a flexible set of common date layouts and emits a fixed
// YYYY-MM-DD string.
func DateOnly(value string) (string, bool) {
	v, ok := trimmed(value)
	if !ok {
		return "", false
	}

	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, v); err == nil {
			return t.Format("2006-01-02"), true
		}
	}
	return "", false
}

// DateTime parses a flexible set of common date-time layouts and emits a
// fixed RFC 3339 string. Zone-less inputs are treated as UTC.
func DateTime(value string) (string, bool) {
	v, ok := trimmed(value)
	if !ok {
		return "", false
	}

	for _, layout := range dateTimeLayouts {
		if t, err := time.Parse(layout, v); err == nil {
			return t.Format(time.RFC3339), true
		}
	}
	return "", false
}
