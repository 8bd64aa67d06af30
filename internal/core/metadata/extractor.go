package metadata

import (
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/kirillkom/shiftlog-retrieval/internal/core/dates"
	"github.com/kirillkom/shiftlog-retrieval/internal/core/domain"
)

var (
	wordDate      = regexp.MustCompile(`(?:^|[^a-z0-9])(\d{1,2})\s+(` + dates.MonthPattern() + `)(?:\s+(\d{4}))?(?:[^a-z0-9]|$)`)
	monthDayYear  = regexp.MustCompile(`(?:^|[^a-z0-9])(` + dates.MonthPattern() + `)\s+(\d{1,2})\s+(\d{4})(?:[^a-z0-9]|$)`)
	isoDate       = regexp.MustCompile(`(?:^|[^0-9])(20\d{2})[-_./](\d{1,2})[-_./](\d{1,2})(?:[^0-9]|$)`)
	dayMonthYear  = regexp.MustCompile(`(?:^|[^0-9])(\d{1,2})[-_./](\d{1,2})[-_./](\d{4})(?:[^0-9]|$)`)
	compactDate   = regexp.MustCompile(`(?:^|[^0-9])(\d{8})(?:[^0-9]|$)`)
	unitPattern   = regexp.MustCompile(`(?:^|[^a-z])(?:unit|u)[\s_-]*(\d{1,3})(?:[^0-9]|$)`)
	shiftPattern  = regexp.MustCompile(`(?:^|[^a-z])shift[\s_-]*(\d{1,2}|pagi|siang|sore|malam|[abc])(?:[^a-z0-9]|$)`)
	pagePattern   = regexp.MustCompile(`(?:^|[^a-z])(?:page|hal|halaman|pg|p)[\s_-]*(\d{1,4})(?:[^0-9]|$)`)
)

// Extractor infers report metadata from a filename or path. Unmatched fields
// stay empty; nothing is guessed.
type Extractor struct {
	canonicalYear int
}

func NewExtractor(canonicalYear int) *Extractor {
	return &Extractor{canonicalYear: canonicalYear}
}

type span struct {
	start, end int
}

func (s span) contains(i int) bool {
	return i >= s.start && i < s.end
}

func (e *Extractor) Extract(path string) domain.Metadata {
	file := filepath.Base(strings.ReplaceAll(path, `\`, "/"))
	name := strings.ToLower(strings.TrimSuffix(file, filepath.Ext(file)))
	words := strings.Map(func(r rune) rune {
		switch r {
		case '_', '.', '-':
			return ' '
		}
		return r
	}, name)

	meta := domain.Metadata{File: file}
	date, dateSpan := e.extractDate(name, words)
	meta.Date = date

	// Unit, shift and page numbers inside the date expression belong to it.
	if m := unitPattern.FindStringSubmatchIndex(words); m != nil && !dateSpan.contains(m[2]) {
		meta.Unit = "Unit " + strings.TrimLeft(words[m[2]:m[3]], "0")
		if meta.Unit == "Unit " {
			meta.Unit = "Unit 0"
		}
	}
	if m := shiftPattern.FindStringSubmatchIndex(words); m != nil && !dateSpan.contains(m[2]) {
		meta.Shift = normalizeShift(words[m[2]:m[3]])
	}
	if m := pagePattern.FindStringSubmatchIndex(words); m != nil && !dateSpan.contains(m[2]) {
		meta.Page = strings.TrimLeft(words[m[2]:m[3]], "0")
	}
	return meta
}

// extractDate tries the textual forms on words and the numeric forms on the
// raw name. Both share byte offsets, so the returned span is valid for either.
func (e *Extractor) extractDate(name, words string) (string, span) {
	for _, m := range wordDate.FindAllStringSubmatchIndex(words, -1) {
		// "unit 7 maret" names unit 7, not the 7th.
		if dates.Labelled(words, m[2]) {
			continue
		}
		month, _ := dates.MonthNumber(words[m[4]:m[5]])
		year := e.canonicalYear
		if m[6] >= 0 {
			year = atoi(words[m[6]:m[7]])
		}
		if iso, ok := dates.Normalize(year, month, atoi(words[m[2]:m[3]])); ok {
			return iso, span{m[2], max(m[5], m[7])}
		}
	}
	if m := monthDayYear.FindStringSubmatchIndex(words); m != nil {
		month, _ := dates.MonthNumber(words[m[2]:m[3]])
		if iso, ok := dates.Normalize(atoi(words[m[6]:m[7]]), month, atoi(words[m[4]:m[5]])); ok {
			return iso, span{m[2], m[7]}
		}
	}
	if m := isoDate.FindStringSubmatchIndex(name); m != nil {
		g := submatches(name, m)
		if iso, ok := dates.Normalize(atoi(g[1]), time.Month(atoi(g[2])), atoi(g[3])); ok {
			return iso, span{m[2], m[7]}
		}
	}
	if m := dayMonthYear.FindStringSubmatchIndex(name); m != nil {
		g := submatches(name, m)
		if iso, ok := dates.Normalize(atoi(g[3]), time.Month(atoi(g[2])), atoi(g[1])); ok {
			return iso, span{m[2], m[7]}
		}
	}
	if m := compactDate.FindStringSubmatchIndex(name); m != nil {
		digits := name[m[2]:m[3]]
		// DDMMYYYY first, then YYYYMMDD.
		if iso, ok := dates.Normalize(atoi(digits[4:]), time.Month(atoi(digits[2:4])), atoi(digits[:2])); ok {
			return iso, span{m[2], m[3]}
		}
		if iso, ok := dates.Normalize(atoi(digits[:4]), time.Month(atoi(digits[4:6])), atoi(digits[6:])); ok {
			return iso, span{m[2], m[3]}
		}
	}
	return "", span{-1, -1}
}

func submatches(text string, loc []int) []string {
	out := make([]string, len(loc)/2)
	for i := range out {
		if loc[2*i] >= 0 {
			out[i] = text[loc[2*i]:loc[2*i+1]]
		}
	}
	return out
}

func normalizeShift(raw string) string {
	switch raw {
	case "a":
		return "1"
	case "b":
		return "2"
	case "c":
		return "3"
	}
	if n, err := strconv.Atoi(raw); err == nil {
		return strconv.Itoa(n)
	}
	return raw
}

func atoi(s string) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return -1
	}
	return n
}
