package corpus

import (
	"math"
	"sort"

	"github.com/kirillkom/shiftlog-retrieval/internal/core/domain"
)

const (
	bm25K1 = 1.5
	bm25B  = 0.75
)

// Snapshot is an immutable BM25 index over corpus entries. It is never
// modified after construction, so any number of retrievals may read it
// while a newer snapshot is being built.
type Snapshot struct {
	version  uint64
	entries  []domain.CorpusEntry
	termFreq []map[string]int
	docLen   []int
	avgLen   float64
	postings map[string][]int
	dates    []string
	digest   string
}

func NewSnapshot(version uint64, entries []domain.CorpusEntry) *Snapshot {
	s := &Snapshot{
		version:  version,
		entries:  entries,
		termFreq: make([]map[string]int, len(entries)),
		docLen:   make([]int, len(entries)),
		postings: make(map[string][]int),
		digest:   domain.CorpusFingerprint(entries),
	}

	dates := make(map[string]struct{})
	total := 0
	for i, e := range entries {
		tokens := Tokenize(e.Text)
		tf := make(map[string]int, len(tokens))
		for _, tok := range tokens {
			tf[tok]++
		}
		for tok := range tf {
			s.postings[tok] = append(s.postings[tok], i)
		}
		s.termFreq[i] = tf
		s.docLen[i] = len(tokens)
		total += len(tokens)
		if e.Metadata.Date != "" {
			dates[e.Metadata.Date] = struct{}{}
		}
	}
	if len(entries) > 0 {
		s.avgLen = float64(total) / float64(len(entries))
	}

	s.dates = make([]string, 0, len(dates))
	for d := range dates {
		s.dates = append(s.dates, d)
	}
	sort.Strings(s.dates)
	return s
}

func (s *Snapshot) Version() uint64 {
	return s.version
}

// Fingerprint is domain.CorpusFingerprint of the indexed entries.
func (s *Snapshot) Fingerprint() string {
	return s.digest
}

func (s *Snapshot) Len() int {
	return len(s.entries)
}

// Dates lists the distinct fragment dates in ascending order.
func (s *Snapshot) Dates() []string {
	return append([]string(nil), s.dates...)
}

// Search scores entries allowed by scope and returns the top limit with a
// positive score, best first.
func (s *Snapshot) Search(query string, limit int, scope domain.DateScope) []domain.Candidate {
	if limit <= 0 || len(s.entries) == 0 {
		return nil
	}
	terms := uniqueTerms(Tokenize(query))
	if len(terms) == 0 {
		return nil
	}

	n := float64(len(s.entries))
	scores := make(map[int]float64)
	for _, term := range terms {
		posting := s.postings[term]
		if len(posting) == 0 {
			continue
		}
		df := float64(len(posting))
		idf := math.Log(1 + (n-df+0.5)/(df+0.5))
		for _, i := range posting {
			if !scope.Allows(s.entries[i].Metadata.Date) {
				continue
			}
			tf := float64(s.termFreq[i][term])
			norm := 1 - bm25B
			if s.avgLen > 0 {
				norm += bm25B * float64(s.docLen[i]) / s.avgLen
			}
			scores[i] += idf * tf * (bm25K1 + 1) / (tf + bm25K1*norm)
		}
	}

	ranked := make([]int, 0, len(scores))
	for i, score := range scores {
		if score > 0 {
			ranked = append(ranked, i)
		}
	}
	sort.Slice(ranked, func(a, b int) bool {
		ia, ib := ranked[a], ranked[b]
		if scores[ia] != scores[ib] {
			return scores[ia] > scores[ib]
		}
		ea, eb := s.entries[ia], s.entries[ib]
		if ea.DocumentID != eb.DocumentID {
			return ea.DocumentID < eb.DocumentID
		}
		return ea.Index < eb.Index
	})
	if len(ranked) > limit {
		ranked = ranked[:limit]
	}

	out := make([]domain.Candidate, 0, len(ranked))
	for _, i := range ranked {
		e := s.entries[i]
		out = append(out, domain.Candidate{
			FragmentID: e.ID,
			DocumentID: e.DocumentID,
			Index:      e.Index,
			Text:       e.Text,
			Metadata:   e.Metadata,
			Score:      scores[i],
		})
	}
	return out
}

func uniqueTerms(tokens []string) []string {
	seen := make(map[string]struct{}, len(tokens))
	out := tokens[:0]
	for _, t := range tokens {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}
