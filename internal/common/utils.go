package common

import "strings"

// placeholders are cell values spreadsheet exports use for an empty cell.
var placeholders = []string{"nan", "null", "none", "n/a", "-"}

// HasAny returns true if s equals any of the values, ignoring case.
func HasAny(s string, values ...string) bool {
	for _, v := range values {
		if strings.EqualFold(s, v) {
			return true
		}
	}
	return false
}

// CleanField trims a CSV cell, strips a UTF-8 byte order mark and collapses
// inner runs of whitespace.
func CleanField(s string) string {
	s = strings.TrimPrefix(s, "\ufeff")
	return strings.Join(strings.Fields(s), " ")
}

// IsMissing reports whether a cleaned cell carries no value.
func IsMissing(s string) bool {
	return s == "" || HasAny(s, placeholders...)
}
