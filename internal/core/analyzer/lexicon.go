package analyzer

import (
	_ "embed"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed lexicon.yaml
var defaultLexiconYAML []byte

// Phrase is one entry of the comparative-intent table.
type Phrase struct {
	ID      string `yaml:"id"`
	Lang    string `yaml:"lang"`
	Kind    string `yaml:"kind"`
	Pattern string `yaml:"pattern"`

	re *regexp.Regexp
}

// Lexicon is a versioned, ordered table of comparative phrases. The first
// matching phrase wins.
type Lexicon struct {
	Version int      `yaml:"version"`
	Phrases []Phrase `yaml:"phrases"`
}

// DefaultLexicon returns the embedded lexicon.
func DefaultLexicon() (*Lexicon, error) {
	return ParseLexicon(defaultLexiconYAML)
}

// ParseLexicon decodes and compiles a lexicon document.
func ParseLexicon(data []byte) (*Lexicon, error) {
	var lex Lexicon
	if err := yaml.Unmarshal(data, &lex); err != nil {
		return nil, fmt.Errorf("decode lexicon: %w", err)
	}
	if lex.Version <= 0 {
		return nil, errors.New("lexicon version must be positive")
	}
	if len(lex.Phrases) == 0 {
		return nil, errors.New("lexicon has no phrases")
	}

	seen := make(map[string]struct{}, len(lex.Phrases))
	for i := range lex.Phrases {
		p := &lex.Phrases[i]
		p.ID = strings.TrimSpace(p.ID)
		if p.ID == "" {
			return nil, fmt.Errorf("lexicon phrase %d has no id", i)
		}
		if _, dup := seen[p.ID]; dup {
			return nil, fmt.Errorf("duplicate lexicon phrase %q", p.ID)
		}
		seen[p.ID] = struct{}{}

		re, err := regexp.Compile(`(?i)` + p.Pattern)
		if err != nil {
			return nil, fmt.Errorf("compile lexicon phrase %q: %w", p.ID, err)
		}
		p.re = re
	}
	return &lex, nil
}

// Match returns the first phrase found in text.
func (l *Lexicon) Match(text string) (Phrase, bool) {
	if l == nil {
		return Phrase{}, false
	}
	for _, p := range l.Phrases {
		if p.re != nil && p.re.MatchString(text) {
			return p, true
		}
	}
	return Phrase{}, false
}
