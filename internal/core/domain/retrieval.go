package domain

import "sort"

type Strategy string

const (
	StrategyExplicit   Strategy = "explicit"
	StrategyMonthRange Strategy = "month_range"
	StrategyNoFilter   Strategy = "no_filter"
)

// Analysis is the outcome of query analysis: the date set a retrieval is
// scoped to and why.
type Analysis struct {
	Dates    []string `json:"dates"`
	Strategy Strategy `json:"strategy"`
	Phrase   string   `json:"phrase,omitempty"`
}

type RetrievalQuery struct {
	Text     string   `json:"text"`
	Dates    []string `json:"target_dates"`
	Strategy Strategy `json:"strategy"`
}

type RetrievalLimits struct {
	Dense  int `json:"k_dense"`
	Sparse int `json:"k_sparse"`
	Final  int `json:"k_final"`
}

// RetrievalRequest is what callers of the retrieval service send. Dates, when
// present, are caller-chosen and bypass date parsing of the question.
type RetrievalRequest struct {
	Question string
	Dates    []string
	Final    int
}

// Candidate is a single hit from either search path.
type Candidate struct {
	FragmentID string
	DocumentID string
	Index      int
	Text       string
	Metadata   Metadata
	Score      float64
}

type RetrievedFragment struct {
	ID          string   `json:"id"`
	DocumentID  string   `json:"document_id"`
	Index       int      `json:"index"`
	Text        string   `json:"text"`
	Metadata    Metadata `json:"metadata"`
	Score       float64  `json:"score"`
	DenseScore  float64  `json:"dense_score"`
	SparseScore float64  `json:"sparse_score"`
	Dense       bool     `json:"dense"`
	Sparse      bool     `json:"sparse"`
}

type StageCounts struct {
	Dense    int `json:"dense"`
	Sparse   int `json:"sparse"`
	Union    int `json:"union"`
	Filtered int `json:"filtered"`
	Returned int `json:"returned"`
}

// RetrievalResult carries the ranked fragments. An empty Fragments list with
// NoEvidence set is a valid answer, not a failure.
type RetrievalResult struct {
	Query      RetrievalQuery      `json:"query"`
	Fragments  []RetrievedFragment `json:"fragments"`
	Counts     StageCounts         `json:"counts"`
	Degraded   []string            `json:"degraded,omitempty"`
	NoEvidence bool                `json:"no_evidence"`
	Phrase     string              `json:"phrase,omitempty"`
}

// DateRange summarizes which report dates the corpus holds.
type DateRange struct {
	Min   string   `json:"min,omitempty"`
	Max   string   `json:"max,omitempty"`
	Dates []string `json:"dates"`
}

func NewDateRange(dates []string) DateRange {
	out := DateRange{Dates: append([]string{}, dates...)}
	sort.Strings(out.Dates)
	if len(out.Dates) > 0 {
		out.Min = out.Dates[0]
		out.Max = out.Dates[len(out.Dates)-1]
	}
	return out
}

// DateScope is the strict date filter of one retrieval. An inactive scope
// allows everything; an active one allows only its member dates, and never
// a fragment without a date.
type DateScope struct {
	dates map[string]struct{}
}

func NewDateScope(dates []string) DateScope {
	if len(dates) == 0 {
		return DateScope{}
	}
	set := make(map[string]struct{}, len(dates))
	for _, d := range dates {
		set[d] = struct{}{}
	}
	return DateScope{dates: set}
}

func (s DateScope) Active() bool {
	return len(s.dates) > 0
}

func (s DateScope) Allows(date string) bool {
	if !s.Active() {
		return true
	}
	if date == "" {
		return false
	}
	_, ok := s.dates[date]
	return ok
}

func (s DateScope) Dates() []string {
	out := make([]string, 0, len(s.dates))
	for d := range s.dates {
		out = append(out, d)
	}
	sort.Strings(out)
	return out
}
