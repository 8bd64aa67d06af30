package usecase

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/kirillkom/shiftlog-retrieval/internal/core/domain"
	"github.com/kirillkom/shiftlog-retrieval/internal/core/ports"
)

// RetrievalService is the entry point for the reasoning layer. It composes
// date parsing, query analysis and hybrid retrieval.
type RetrievalService struct {
	parser    ports.DateParser
	analyzer  ports.QueryAnalyzer
	retriever *HybridRetriever
	corpus    SnapshotSource
}

func NewRetrievalService(
	parser ports.DateParser,
	analyzer ports.QueryAnalyzer,
	retriever *HybridRetriever,
	corpus SnapshotSource,
) *RetrievalService {
	return &RetrievalService{
		parser:    parser,
		analyzer:  analyzer,
		retriever: retriever,
		corpus:    corpus,
	}
}

func (s *RetrievalService) Retrieve(ctx context.Context, question string) (*domain.RetrievalResult, error) {
	return s.RetrieveWith(ctx, domain.RetrievalRequest{Question: question})
}

// RetrieveWith retrieves for a question. Caller-supplied dates replace date
// parsing and always select the explicit strategy.
func (s *RetrievalService) RetrieveWith(ctx context.Context, req domain.RetrievalRequest) (*domain.RetrievalResult, error) {
	question := strings.TrimSpace(req.Question)
	if question == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "retrieve", errors.New("question is required"))
	}
	if req.Final < 0 {
		return nil, domain.WrapError(domain.ErrInvalidInput, "retrieve", fmt.Errorf("k must not be negative, got %d", req.Final))
	}

	analysis, err := s.analyze(question, req.Dates)
	if err != nil {
		return nil, err
	}

	query := domain.RetrievalQuery{
		Text:     question,
		Dates:    analysis.Dates,
		Strategy: analysis.Strategy,
	}
	result, err := s.retriever.Retrieve(ctx, query, domain.RetrievalLimits{Final: req.Final})
	if err != nil {
		return nil, err
	}
	result.Phrase = analysis.Phrase
	return result, nil
}

func (s *RetrievalService) analyze(question string, supplied []string) (domain.Analysis, error) {
	if len(supplied) == 0 {
		return s.analyzer.Analyze(question, s.parser.Parse(question)), nil
	}

	set := make(map[string]struct{}, len(supplied))
	for _, raw := range supplied {
		parsed := s.parser.Parse(raw)
		if len(parsed) == 0 {
			return domain.Analysis{}, domain.WrapError(domain.ErrInvalidInput, "retrieve", fmt.Errorf("unrecognized date %q", raw))
		}
		for _, d := range parsed {
			set[d] = struct{}{}
		}
	}
	out := make([]string, 0, len(set))
	for d := range set {
		out = append(out, d)
	}
	sort.Strings(out)
	return domain.Analysis{Dates: out, Strategy: domain.StrategyExplicit}, nil
}

// AvailableDates reports the report dates present in the current corpus.
func (s *RetrievalService) AvailableDates(context.Context) (domain.DateRange, error) {
	snap, err := s.corpus.Snapshot()
	if err != nil {
		return domain.DateRange{}, err
	}
	return domain.NewDateRange(snap.Dates()), nil
}
