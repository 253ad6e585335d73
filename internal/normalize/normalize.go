// Package normalize coerces raw spreadsheet cell text into canonical values.
// Every function degrades to nil on input it cannot interpret; none of them
// return errors or panic.
package normalize

import (
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"
)

// blank markers written by tools that round-trip sheets through data frames
var nullMarkers = map[string]struct{}{
	"nan":  {},
	"NaN":  {},
	"None": {},
	"NaT":  {},
}

var dateLayouts = []string{
	"2006-01-02",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	time.RFC3339,
	"02/01/2006",
	"2/1/2006",
	"02-01-2006",
	"02/01/2006 15:04",
}

// String trims and collapses internal whitespace. Blank input yields nil.
func String(raw string) *string {
	s := strings.Join(strings.Fields(raw), " ")
	if s == "" {
		return nil
	}
	if _, ok := nullMarkers[s]; ok {
		return nil
	}
	return &s
}

// Key returns the normalized course identifier, or "" when absent.
func Key(raw string) string {
	if s := String(raw); s != nil {
		return *s
	}
	return ""
}

// Float parses a finite decimal number. Expressions like "16+4" yield nil.
func Float(raw string) *float64 {
	s := String(raw)
	if s == nil {
		return nil
	}
	f, err := strconv.ParseFloat(*s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	return &f
}

// Int accepts "2", "2.0" and " 2 ". Fractions truncate toward zero.
func Int(raw string) *int {
	f := Float(raw)
	if f == nil || *f > math.MaxInt32 || *f < math.MinInt32 {
		return nil
	}
	n := int(*f)
	return &n
}

// Date reads an Excel serial day number or one of the common text layouts and
// returns the calendar day at UTC midnight.
func Date(raw string) *time.Time {
	s := String(raw)
	if s == nil {
		return nil
	}

	if serial, err := strconv.ParseFloat(*s, 64); err == nil {
		if math.IsNaN(serial) || math.IsInf(serial, 0) || serial <= 0 {
			return nil
		}
		t, err := excelize.ExcelDateToTime(serial, false)
		if err != nil {
			return nil
		}
		return dayOf(t)
	}

	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, *s); err == nil {
			return dayOf(t)
		}
	}
	return nil
}

func dayOf(t time.Time) *time.Time {
	d := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	return &d
}

// Text renders an optional value for change logs and messages; nil prints as "".
func Text(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}
