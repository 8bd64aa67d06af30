package analyzer

import (
	"time"

	"github.com/kirillkom/shiftlog-retrieval/internal/core/dates"
	"github.com/kirillkom/shiftlog-retrieval/internal/core/domain"
)

// MonthLocator finds a month named in a question without a day.
type MonthLocator interface {
	MonthContext(text string) (int, time.Month, bool)
}

// Analyzer picks the date strategy for a question:
//
//  1. parsed dates present: explicit, dates unchanged
//  2. comparative phrase matched: month_range over the month the question
//     names, or the canonical month when it names none
//  3. otherwise: no_filter with no dates
type Analyzer struct {
	lexicon        *Lexicon
	months         MonthLocator
	canonicalYear  int
	canonicalMonth time.Month
}

func New(lexicon *Lexicon, months MonthLocator, canonicalYear int, canonicalMonth time.Month) *Analyzer {
	if canonicalMonth < time.January || canonicalMonth > time.December {
		canonicalMonth = time.March
	}
	return &Analyzer{
		lexicon:        lexicon,
		months:         months,
		canonicalYear:  canonicalYear,
		canonicalMonth: canonicalMonth,
	}
}

func (a *Analyzer) Analyze(text string, parsed []string) domain.Analysis {
	if len(parsed) > 0 {
		return domain.Analysis{
			Dates:    append([]string{}, parsed...),
			Strategy: domain.StrategyExplicit,
		}
	}

	if phrase, ok := a.lexicon.Match(text); ok {
		year, month := a.canonicalYear, a.canonicalMonth
		if a.months != nil {
			if y, m, found := a.months.MonthContext(text); found {
				year, month = y, m
			}
		}
		return domain.Analysis{
			Dates:    dates.MonthDates(year, month),
			Strategy: domain.StrategyMonthRange,
			Phrase:   phrase.ID,
		}
	}

	return domain.Analysis{
		Dates:    []string{},
		Strategy: domain.StrategyNoFilter,
	}
}

// LexiconVersion reports the version of the phrase table in use.
func (a *Analyzer) LexiconVersion() int {
	if a.lexicon == nil {
		return 0
	}
	return a.lexicon.Version
}
