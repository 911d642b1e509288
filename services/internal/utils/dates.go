package utils

import (
	"fmt"
	"strings"
	"time"
)

// ISODate is the layout accepted for date filters.
const ISODate = "2006-01-02"

var dateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006/01/02 15:04:05",
	"2006/01/02",
	ISODate,
	"02/01/2006 15:04",
	"02/01/2006",
}

// ParseDate accepts the date spellings found in the imported collections.
// Unknown formats yield nil.
func ParseDate(s string) *time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			tt := t.UTC()
			return &tt
		}
	}
	return nil
}

// ParseISODate parses a YYYY-MM-DD filter bound.
func ParseISODate(s string) (time.Time, error) {
	t, err := time.Parse(ISODate, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, fmt.Errorf("expected YYYY-MM-DD, got %q", s)
	}
	return t, nil
}

// WithinWindow reports whether t lies in the closed interval
// [center-window, center+window].
func WithinWindow(t, center time.Time, window time.Duration) bool {
	return !t.Before(center.Add(-window)) && !t.After(center.Add(window))
}
