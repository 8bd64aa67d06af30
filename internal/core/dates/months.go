package dates

import (
	"sort"
	"strings"
	"time"
)

const isoLayout = "2006-01-02"

// monthNames covers Indonesian and English month names plus the common
// abbreviations seen in report filenames.
var monthNames = map[string]time.Month{
	"januari":   time.January,
	"februari":  time.February,
	"pebruari":  time.February,
	"maret":     time.March,
	"april":     time.April,
	"mei":       time.May,
	"juni":      time.June,
	"juli":      time.July,
	"agustus":   time.August,
	"september": time.September,
	"oktober":   time.October,
	"november":  time.November,
	"nopember":  time.November,
	"desember":  time.December,

	"january":  time.January,
	"february": time.February,
	"march":    time.March,
	"may":      time.May,
	"june":     time.June,
	"july":     time.July,
	"august":   time.August,
	"october":  time.October,
	"december": time.December,

	"jan":  time.January,
	"feb":  time.February,
	"mar":  time.March,
	"apr":  time.April,
	"jun":  time.June,
	"jul":  time.July,
	"aug":  time.August,
	"agu":  time.August,
	"agt":  time.August,
	"agus": time.August,
	"sep":  time.September,
	"sept": time.September,
	"oct":  time.October,
	"okt":  time.October,
	"nov":  time.November,
	"dec":  time.December,
	"des":  time.December,
}

var monthAlternation = buildMonthAlternation()

// buildMonthAlternation orders names longest first so "maret" wins over "mar".
func buildMonthAlternation() string {
	names := make([]string, 0, len(monthNames))
	for name := range monthNames {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		if len(names[i]) != len(names[j]) {
			return len(names[i]) > len(names[j])
		}
		return names[i] < names[j]
	})
	return "(?:" + strings.Join(names, "|") + ")"
}

// MonthPattern returns a non-capturing regexp alternation of every known
// month name. It expects lowercased input.
func MonthPattern() string {
	return monthAlternation
}

// MonthNumber resolves a month name, case-insensitively.
func MonthNumber(name string) (time.Month, bool) {
	m, ok := monthNames[strings.ToLower(strings.TrimSpace(name))]
	return m, ok
}

// Normalize validates a calendar date and formats it as YYYY-MM-DD.
func Normalize(year int, month time.Month, day int) (string, bool) {
	if year < 1900 || year > 2999 || month < time.January || month > time.December || day < 1 || day > 31 {
		return "", false
	}
	t := time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
	if t.Day() != day || t.Month() != month {
		return "", false
	}
	return t.Format(isoLayout), true
}

// IsISO reports whether s is a valid YYYY-MM-DD calendar date.
func IsISO(s string) bool {
	t, err := time.Parse(isoLayout, s)
	return err == nil && t.Format(isoLayout) == s
}

// MonthDates lists every calendar date of a month in ascending order.
func MonthDates(year int, month time.Month) []string {
	first := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	out := make([]string, 0, 31)
	for d := first; d.Month() == month; d = d.AddDate(0, 0, 1) {
		out = append(out, d.Format(isoLayout))
	}
	return out
}

func daySpan(start, end time.Time, limit int) []string {
	out := make([]string, 0, int(end.Sub(start).Hours()/24)+1)
	for d := start; !d.After(end) && len(out) < limit; d = d.AddDate(0, 0, 1) {
		out = append(out, d.Format(isoLayout))
	}
	return out
}
