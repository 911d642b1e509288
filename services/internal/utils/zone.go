package utils

import "strings"

// RegionFilterMaxLen is the longest zone filter treated as a prefix.
// Longer filters match a commune code exactly.
const RegionFilterMaxLen = 3

// IsPrefixZone reports whether a zone filter selects by prefix.
func IsPrefixZone(zone string) bool {
	return len(zone) <= RegionFilterMaxLen
}

// MatchZone applies zone filter semantics to a single code. An empty filter
// matches everything, including records without a code.
func MatchZone(zone string, code *string) bool {
	if zone == "" {
		return true
	}
	if code == nil {
		return false
	}
	if IsPrefixZone(zone) {
		return strings.HasPrefix(*code, zone)
	}
	return *code == zone
}

// NormalizeZoneCode keeps 5-digit INSEE codes and drops anything else.
func NormalizeZoneCode(code *string) *string {
	if code == nil {
		return nil
	}
	c := strings.TrimSpace(*code)
	if len(c) != 5 {
		return nil
	}
	for _, r := range c {
		if r < '0' || r > '9' {
			return nil
		}
	}
	return &c
}

// EscapeLike escapes LIKE metacharacters so a filter matches literally.
func EscapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
