package corpus

import (
	"strings"
	"unicode"
)

// stopwords holds high-frequency Indonesian and English function words that
// only add noise to keyword scores.
var stopwords = map[string]struct{}{
	"yang": {}, "dan": {}, "di": {}, "ke": {}, "dari": {}, "pada": {}, "untuk": {},
	"dengan": {}, "adalah": {}, "ini": {}, "itu": {}, "atau": {}, "dalam": {},
	"berapa": {}, "apa": {}, "bagaimana": {}, "tanggal": {}, "saat": {}, "oleh": {},
	"juga": {}, "sebagai": {}, "akan": {}, "telah": {}, "sudah": {}, "tidak": {},
	"the": {}, "a": {}, "an": {}, "and": {}, "of": {}, "to": {}, "in": {}, "on": {},
	"for": {}, "is": {}, "was": {}, "are": {}, "what": {}, "which": {}, "how": {},
	"at": {}, "by": {}, "with": {}, "be": {}, "it": {}, "as": {}, "or": {},
}

// Tokenize lowercases text and splits it on anything that is not a letter or
// digit. Stopwords and single letters are dropped; single digits are kept.
func Tokenize(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	out := fields[:0]
	for _, f := range fields {
		if _, stop := stopwords[f]; stop {
			continue
		}
		if len([]rune(f)) < 2 && !unicode.IsDigit([]rune(f)[0]) {
			continue
		}
		out = append(out, f)
	}
	return out
}
