package document

import (
	"fmt"
	"strings"
	"time"
)

// dateLayouts are tried in order after the D: prefix and the apostrophes of
// the offset have been removed
var dateLayouts = []string{
	"20060102150405Z0700",
	"20060102150405Z07",
	"20060102150405",
	"200601021504",
	"2006010215",
	"20060102",
	"200601",
	"2006",
}

// ParseDate parses a PDF date string such as D:20250115103000+01'00'.
// Producers disagree on the offset syntax; Z followed by anything is UTC.
func ParseDate(s string) (time.Time, error) {
	raw := s
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "D:")
	s = strings.ReplaceAll(s, "'", "")
	if i := strings.IndexByte(s, 'Z'); i >= 0 {
		s = s[:i+1]
	}

	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}

	return time.Time{}, fmt.Errorf("invalid PDF date %q", raw)
}
