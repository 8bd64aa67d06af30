package usecase

import (
	"sort"

	"github.com/kirillkom/shiftlog-retrieval/internal/core/domain"
)

// RankingMode selects how the filtered union is ordered.
type RankingMode string

const (
	// RankDenseFirst orders by dense similarity and breaks ties by keyword score.
	RankDenseFirst RankingMode = "dense_first"
	// RankRRF orders by reciprocal rank fusion of both candidate lists.
	RankRRF RankingMode = "rrf"
)

// mergedCandidate is one distinct text in the union. Ranks are zero-based
// positions in the dense and sparse lists, -1 when absent.
type mergedCandidate struct {
	fragment   domain.RetrievedFragment
	denseRank  int
	sparseRank int
}

// mergeCandidates unions both lists, keeping one entry per exact text. The
// kept fragment is the one scope allows, then the lowest document and index.
func mergeCandidates(dense, sparse []domain.Candidate, scope domain.DateScope) []mergedCandidate {
	byText := make(map[string]int, len(dense)+len(sparse))
	out := make([]mergedCandidate, 0, len(dense)+len(sparse))

	add := func(c domain.Candidate, rank int, isDense bool) {
		i, ok := byText[c.Text]
		if !ok {
			i = len(out)
			byText[c.Text] = i
			out = append(out, mergedCandidate{
				fragment:   fragmentFrom(c),
				denseRank:  -1,
				sparseRank: -1,
			})
		} else if preferFragment(c, out[i].fragment, scope) {
			kept := out[i].fragment
			out[i].fragment = fragmentFrom(c)
			out[i].fragment.Dense, out[i].fragment.DenseScore = kept.Dense, kept.DenseScore
			out[i].fragment.Sparse, out[i].fragment.SparseScore = kept.Sparse, kept.SparseScore
		}

		m := &out[i]
		if isDense {
			if !m.fragment.Dense || c.Score > m.fragment.DenseScore {
				m.fragment.DenseScore = c.Score
			}
			m.fragment.Dense = true
			if m.denseRank < 0 || rank < m.denseRank {
				m.denseRank = rank
			}
			return
		}
		if !m.fragment.Sparse || c.Score > m.fragment.SparseScore {
			m.fragment.SparseScore = c.Score
		}
		m.fragment.Sparse = true
		if m.sparseRank < 0 || rank < m.sparseRank {
			m.sparseRank = rank
		}
	}

	for rank, c := range dense {
		add(c, rank, true)
	}
	for rank, c := range sparse {
		add(c, rank, false)
	}
	return out
}

func fragmentFrom(c domain.Candidate) domain.RetrievedFragment {
	return domain.RetrievedFragment{
		ID:         c.FragmentID,
		DocumentID: c.DocumentID,
		Index:      c.Index,
		Text:       c.Text,
		Metadata:   c.Metadata,
	}
}

func preferFragment(c domain.Candidate, kept domain.RetrievedFragment, scope domain.DateScope) bool {
	inScope, keptInScope := scope.Allows(c.Metadata.Date), scope.Allows(kept.Metadata.Date)
	if inScope != keptInScope {
		return inScope
	}
	if c.DocumentID != kept.DocumentID {
		return c.DocumentID < kept.DocumentID
	}
	return c.Index < kept.Index
}

// applyScope is the strict date filter. An inactive scope passes the union
// through; an active one keeps only member dates. Nothing else is tried.
func applyScope(items []mergedCandidate, scope domain.DateScope) []mergedCandidate {
	if !scope.Active() {
		return items
	}
	out := make([]mergedCandidate, 0, len(items))
	for _, it := range items {
		if scope.Allows(it.fragment.Metadata.Date) {
			out = append(out, it)
		}
	}
	return out
}

func rankCandidates(items []mergedCandidate, mode RankingMode, rrfK int) []domain.RetrievedFragment {
	out := make([]domain.RetrievedFragment, 0, len(items))
	switch mode {
	case RankRRF:
		if rrfK <= 0 {
			rrfK = 60
		}
		for _, it := range items {
			f := it.fragment
			f.Score = 0
			if it.denseRank >= 0 {
				f.Score += 1.0 / float64(rrfK+it.denseRank+1)
			}
			if it.sparseRank >= 0 {
				f.Score += 1.0 / float64(rrfK+it.sparseRank+1)
			}
			out = append(out, f)
		}
		sort.SliceStable(out, func(i, j int) bool {
			if out[i].Score != out[j].Score {
				return out[i].Score > out[j].Score
			}
			return fragmentLess(out[i], out[j])
		})
	default:
		for _, it := range items {
			f := it.fragment
			if f.Dense {
				f.Score = f.DenseScore
			} else {
				f.Score = f.SparseScore
			}
			out = append(out, f)
		}
		sort.SliceStable(out, func(i, j int) bool {
			a, b := out[i], out[j]
			if a.Dense != b.Dense {
				return a.Dense
			}
			if a.DenseScore != b.DenseScore {
				return a.DenseScore > b.DenseScore
			}
			if a.SparseScore != b.SparseScore {
				return a.SparseScore > b.SparseScore
			}
			return fragmentLess(a, b)
		})
	}
	return out
}

func fragmentLess(a, b domain.RetrievedFragment) bool {
	if a.DocumentID != b.DocumentID {
		return a.DocumentID < b.DocumentID
	}
	return a.Index < b.Index
}

func trimFragments(fragments []domain.RetrievedFragment, limit int) []domain.RetrievedFragment {
	if limit <= 0 || len(fragments) <= limit {
		return fragments
	}
	return fragments[:limit]
}
