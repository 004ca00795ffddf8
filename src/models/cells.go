package models

import (
	"strconv"
	"strings"
	"time"
)

// ParseNumber coerces a cell to float64, accepting pt-BR decimal commas,
// thousand separators, currency prefixes and percent suffixes. Anything
// unparseable yields nil.
func ParseNumber(v any) any {
	switch n := v.(type) {
	case nil:
		return nil
	case float64:
		return n
	case int:
		return float64(n)
	case string:
		s := strings.TrimSpace(n)
		s = strings.TrimPrefix(s, "R$")
		s = strings.TrimSuffix(s, "%")
		s = strings.TrimSpace(s)
		if s == "" {
			return nil
		}
		if strings.Contains(s, ",") {
			// "1.234,56": dots are thousand separators.
			s = strings.ReplaceAll(s, ".", "")
			s = strings.ReplaceAll(s, ",", ".")
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil
		}
		return f
	default:
		return nil
	}
}

var dateLayouts = []string{
	"2006-01-02",
	"2006-01-02 15:04:05",
	"02/01/2006",
	"02-01-2006",
	time.RFC3339,
}

// ParseDate coerces a cell to a date. The second return is false when the
// cell holds nothing a date can be recovered from.
func ParseDate(v any) (time.Time, bool) {
	switch d := v.(type) {
	case time.Time:
		return d, true
	case string:
		s := strings.TrimSpace(d)
		for _, layout := range dateLayouts {
			if parsed, err := time.Parse(layout, s); err == nil {
				return parsed, true
			}
		}
	}
	return time.Time{}, false
}
