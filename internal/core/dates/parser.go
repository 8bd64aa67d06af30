package dates

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
)

const (
	dayGroup   = `(\d{1,2})(?:st|nd|rd|th)?`
	yearGroup  = `(\d{4})`
	rangeWords = `(?:-|–|—|s/d|s\.d\.?|sampai(?:\s+dengan)?|hingga|until|through|to|ke)`
	dayPrefix  = `(?:(?:tanggal|tgl\.?|tg\.?|date)\s*)?`

	// maxRangeDays caps a single range expression to one year of dates.
	maxRangeDays = 366
)

var (
	monthGroup = `(` + monthAlternation + `)\b`
	yearTail   = `(?:\s*,?\s*` + yearGroup + `\b)?`

	// Groups: start day, start month, start year, end day, end month, end year.
	rangePatterns = []*regexp.Regexp{
		regexp.MustCompile(`\b` + dayGroup + `(?:\s+` + monthGroup + yearTail + `)?\s*` + rangeWords + `\s*` + dayPrefix + dayGroup + `\s+` + monthGroup + yearTail),
		regexp.MustCompile(`\b(?:antara|between)\s+` + dayPrefix + dayGroup + `(?:\s+` + monthGroup + yearTail + `)?\s+(?:dan|and|&)\s+` + dayPrefix + dayGroup + `\s+` + monthGroup + yearTail),
	}

	// Groups: day list, month, year.
	listPattern = regexp.MustCompile(`\b(\d{1,2}(?:\s*,\s*\d{1,2})*(?:\s*,?\s*(?:dan|and|&)\s*\d{1,2})?)\s+` + monthGroup + yearTail)
	listDays    = regexp.MustCompile(`\d{1,2}`)

	dayMonthPattern = regexp.MustCompile(`\b` + dayGroup + `\s+` + monthGroup + yearTail)
	monthDayPattern = regexp.MustCompile(`\b` + monthGroup + `\s+` + dayGroup + `\b` + yearTail)
	isoPattern      = regexp.MustCompile(`\b(\d{4})-(\d{1,2})-(\d{1,2})\b`)
	numericPattern  = regexp.MustCompile(`\b(\d{1,2})[/.](\d{1,2})[/.](\d{4})\b`)

	monthContextPatterns = []*regexp.Regexp{
		regexp.MustCompile(`\b(?:di|pada|bulan|selama|sepanjang|in|during|for|of|month)\s+(?:bulan\s+)?` + monthGroup + yearTail),
		regexp.MustCompile(`\b` + monthGroup + `\s+` + yearGroup + `\b`),
	}

	// A number right after one of these labels names a unit, shift or page,
	// not a day.
	labelBefore = regexp.MustCompile(`(?:^|[^\p{L}\d])(?:unit|u|shift|halaman|hal\.?|page|pg|no\.?|nomor|nomer)\s*$`)
)

// Parser extracts date expressions from free text. Missing years default to
// the corpus canonical year.
type Parser struct {
	defaultYear int
}

func NewParser(defaultYear int) *Parser {
	if defaultYear <= 0 {
		defaultYear = time.Now().UTC().Year()
	}
	return &Parser{defaultYear: defaultYear}
}

func (p *Parser) DefaultYear() int {
	return p.defaultYear
}

// Parse returns ISO dates in ascending order without duplicates. Ranges take
// priority over lists, lists over single dates. No date is not an error.
func (p *Parser) Parse(text string) []string {
	lowered := normalizeText(text)
	if lowered == "" {
		return []string{}
	}
	if out := p.parseRanges(lowered); len(out) > 0 {
		return sortedUnique(out)
	}
	if out := p.parseLists(lowered); len(out) > 0 {
		return sortedUnique(out)
	}
	return sortedUnique(p.parseSingles(lowered))
}

// MonthContext reports the month a text talks about without naming a day,
// as in "paling stabil di bulan April 2025".
func (p *Parser) MonthContext(text string) (int, time.Month, bool) {
	lowered := normalizeText(text)
	bestStart := -1
	var year int
	var month time.Month
	for _, re := range monthContextPatterns {
		loc := re.FindStringSubmatchIndex(lowered)
		if loc == nil || (bestStart >= 0 && loc[0] >= bestStart) {
			continue
		}
		m, ok := MonthNumber(lowered[loc[2]:loc[3]])
		if !ok {
			continue
		}
		y := p.defaultYear
		if loc[4] >= 0 {
			y = atoi(lowered[loc[4]:loc[5]])
		}
		bestStart, year, month = loc[0], y, m
	}
	if bestStart < 0 {
		return 0, 0, false
	}
	return year, month, true
}

func (p *Parser) parseRanges(text string) []string {
	var out []string
	for _, re := range rangePatterns {
		for _, m := range re.FindAllStringSubmatchIndex(text, -1) {
			if Labelled(text, m[0]) {
				continue
			}
			g := submatches(text, m)
			out = append(out, p.expandRange(g[1], g[2], g[3], g[4], g[5], g[6])...)
		}
	}
	return out
}

func (p *Parser) expandRange(d1, m1, y1, d2, m2, y2 string) []string {
	endMonth, ok := MonthNumber(m2)
	if !ok {
		return nil
	}
	endYear := p.yearOr(y2, p.defaultYear)
	startMonth := endMonth
	if m1 != "" {
		if startMonth, ok = MonthNumber(m1); !ok {
			return nil
		}
	}
	startYear := p.yearOr(y1, endYear)

	endISO, ok := Normalize(endYear, endMonth, atoi(d2))
	if !ok {
		return nil
	}
	startISO, ok := Normalize(startYear, startMonth, atoi(d1))
	if !ok {
		return nil
	}
	start, _ := time.Parse(isoLayout, startISO)
	end, _ := time.Parse(isoLayout, endISO)
	// "28 Desember - 2 Januari 2026" crosses into the stated year.
	if start.After(end) && m1 != "" && y1 == "" {
		start = start.AddDate(-1, 0, 0)
	}
	if start.After(end) {
		return nil
	}
	return daySpan(start, end, maxRangeDays)
}

func (p *Parser) parseLists(text string) []string {
	var out []string
	for _, m := range listPattern.FindAllStringSubmatchIndex(text, -1) {
		g := submatches(text, m)
		days := listDays.FindAllString(g[1], -1)
		if Labelled(text, m[0]) && len(days) > 0 {
			days = days[1:]
		}
		if len(days) < 2 {
			continue
		}
		month, ok := MonthNumber(g[2])
		if !ok {
			continue
		}
		year := p.yearOr(g[3], p.defaultYear)
		for _, d := range days {
			if iso, ok := Normalize(year, month, atoi(d)); ok {
				out = append(out, iso)
			}
		}
	}
	return out
}

func (p *Parser) parseSingles(text string) []string {
	var out []string
	var taken [][2]int

	collect := func(re *regexp.Regexp, build func(g []string) (string, bool)) {
		for _, m := range re.FindAllStringSubmatchIndex(text, -1) {
			if overlaps(taken, m[0], m[1]) || Labelled(text, m[0]) {
				continue
			}
			iso, ok := build(submatches(text, m))
			if !ok {
				continue
			}
			taken = append(taken, [2]int{m[0], m[1]})
			out = append(out, iso)
		}
	}

	collect(isoPattern, func(g []string) (string, bool) {
		return Normalize(atoi(g[1]), time.Month(atoi(g[2])), atoi(g[3]))
	})
	collect(numericPattern, func(g []string) (string, bool) {
		return Normalize(atoi(g[3]), time.Month(atoi(g[2])), atoi(g[1]))
	})
	collect(dayMonthPattern, func(g []string) (string, bool) {
		month, ok := MonthNumber(g[2])
		if !ok {
			return "", false
		}
		return Normalize(p.yearOr(g[3], p.defaultYear), month, atoi(g[1]))
	})
	collect(monthDayPattern, func(g []string) (string, bool) {
		// "may" is too often a verb to anchor a date without a year.
		if g[1] == "may" && g[3] == "" {
			return "", false
		}
		month, ok := MonthNumber(g[1])
		if !ok {
			return "", false
		}
		return Normalize(p.yearOr(g[3], p.defaultYear), month, atoi(g[2]))
	})
	return out
}

func (p *Parser) yearOr(raw string, fallback int) int {
	if raw == "" {
		return fallback
	}
	return atoi(raw)
}

func normalizeText(text string) string {
	text = strings.ReplaceAll(text, "\u00a0", " ")
	return strings.ToLower(strings.TrimSpace(text))
}

// Labelled reports whether the number at start of lowercased text follows a
// unit, shift, page or number label.
func Labelled(text string, start int) bool {
	return labelBefore.MatchString(text[:start])
}

func overlaps(spans [][2]int, start, end int) bool {
	for _, s := range spans {
		if start < s[1] && s[0] < end {
			return true
		}
	}
	return false
}

// submatches expands an index match into strings, "" for unmatched groups.
func submatches(text string, loc []int) []string {
	out := make([]string, len(loc)/2)
	for i := range out {
		if loc[2*i] >= 0 {
			out[i] = text[loc[2*i]:loc[2*i+1]]
		}
	}
	return out
}

func sortedUnique(values []string) []string {
	out := make([]string, 0, len(values))
	seen := make(map[string]struct{}, len(values))
	for _, v := range values {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

func atoi(s string) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return -1
	}
	return n
}
