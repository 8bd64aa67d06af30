package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/kirillkom/shiftlog-retrieval/internal/core/domain"
	"github.com/kirillkom/shiftlog-retrieval/internal/core/ports"
)

// DegradePolicy decides what a retrieval does when one search path fails.
type DegradePolicy string

const (
	// DegradeFail fails the whole retrieval when either path fails.
	DegradeFail DegradePolicy = "fail"
	// DegradeToHealthy answers from the healthy path and marks the result
	// degraded. Both paths failing is still an error.
	DegradeToHealthy DegradePolicy = "degrade"
)

const (
	pathDense  = "dense"
	pathSparse = "sparse"
)

type RetrieverConfig struct {
	Limits        domain.RetrievalLimits
	MaxConcurrent int64
	Timeout       time.Duration
	Degrade       DegradePolicy
	Ranking       RankingMode
	RRFK          int
}

func DefaultRetrieverConfig() RetrieverConfig {
	return RetrieverConfig{
		Limits:        domain.RetrievalLimits{Dense: 50, Sparse: 50, Final: 8},
		MaxConcurrent: 3,
		Timeout:       20 * time.Second,
		Degrade:       DegradeFail,
		Ranking:       RankDenseFirst,
		RRFK:          60,
	}
}

func (c RetrieverConfig) normalize() RetrieverConfig {
	out := c
	def := DefaultRetrieverConfig()
	if out.Limits.Dense <= 0 {
		out.Limits.Dense = def.Limits.Dense
	}
	if out.Limits.Sparse <= 0 {
		out.Limits.Sparse = def.Limits.Sparse
	}
	if out.Limits.Final <= 0 {
		out.Limits.Final = def.Limits.Final
	}
	if out.MaxConcurrent <= 0 {
		out.MaxConcurrent = def.MaxConcurrent
	}
	if out.Timeout <= 0 {
		out.Timeout = def.Timeout
	}
	if out.Degrade != DegradeToHealthy {
		out.Degrade = DegradeFail
	}
	if out.Ranking != RankRRF {
		out.Ranking = RankDenseFirst
	}
	if out.RRFK <= 0 {
		out.RRFK = def.RRFK
	}
	return out
}

// SnapshotSource hands out the current immutable sparse snapshot.
type SnapshotSource interface {
	Snapshot() (ports.SparseSnapshot, error)
}

// CorpusRebuilder restores a missing or corrupt sparse corpus.
type CorpusRebuilder interface {
	RebuildCorpus(ctx context.Context) error
}

// RetrievalObserver receives one call per finished retrieval.
type RetrievalObserver interface {
	ObserveRetrieval(query domain.RetrievalQuery, result *domain.RetrievalResult, duration time.Duration, err error)
}

// HybridRetriever runs dense and sparse search concurrently, unions the
// candidates, applies the strict date filter, ranks and truncates.
type HybridRetriever struct {
	embedder  ports.Embedder
	vectors   ports.VectorStore
	corpus    SnapshotSource
	rebuilder CorpusRebuilder
	cfg       RetrieverConfig
	inFlight  *semaphore.Weighted
	observer  RetrievalObserver
}

func NewHybridRetriever(
	embedder ports.Embedder,
	vectors ports.VectorStore,
	corpus SnapshotSource,
	rebuilder CorpusRebuilder,
	cfg RetrieverConfig,
) *HybridRetriever {
	cfg = cfg.normalize()
	return &HybridRetriever{
		embedder:  embedder,
		vectors:   vectors,
		corpus:    corpus,
		rebuilder: rebuilder,
		cfg:       cfg,
		inFlight:  semaphore.NewWeighted(cfg.MaxConcurrent),
	}
}

func (r *HybridRetriever) SetObserver(observer RetrievalObserver) {
	r.observer = observer
}

func (r *HybridRetriever) Config() RetrieverConfig {
	return r.cfg
}

// Retrieve answers one query. Requests beyond MaxConcurrent wait for a slot
// until ctx ends. Zero fields in limits fall back to the configured limits.
func (r *HybridRetriever) Retrieve(ctx context.Context, query domain.RetrievalQuery, limits domain.RetrievalLimits) (*domain.RetrievalResult, error) {
	started := time.Now()
	result, err := r.retrieve(ctx, query, r.limitsFor(limits))
	duration := time.Since(started)

	if r.observer != nil {
		r.observer.ObserveRetrieval(query, result, duration, err)
	}
	if err != nil {
		slog.Warn("retrieval_failed",
			"strategy", string(query.Strategy),
			"target_dates", len(query.Dates),
			"duration_ms", duration.Milliseconds(),
			"error", err,
		)
		return nil, err
	}
	slog.Info("retrieval_completed",
		"strategy", string(query.Strategy),
		"target_dates", len(query.Dates),
		"dense", result.Counts.Dense,
		"sparse", result.Counts.Sparse,
		"union", result.Counts.Union,
		"filtered", result.Counts.Filtered,
		"returned", result.Counts.Returned,
		"degraded", result.Degraded,
		"duration_ms", duration.Milliseconds(),
	)
	return result, nil
}

func (r *HybridRetriever) retrieve(ctx context.Context, query domain.RetrievalQuery, limits domain.RetrievalLimits) (*domain.RetrievalResult, error) {
	if err := r.inFlight.Acquire(ctx, 1); err != nil {
		return nil, domain.WrapError(domain.ErrTemporary, "wait for retrieval slot", err)
	}
	defer r.inFlight.Release(1)

	ctx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	defer cancel()

	scope := scopeFor(query)

	var (
		dense, sparse       []domain.Candidate
		denseErr, sparseErr error
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		dense, denseErr = r.searchDense(gctx, query.Text, limits.Dense, scope)
		if denseErr != nil && r.cfg.Degrade == DegradeFail {
			return fmt.Errorf("dense search: %w", denseErr)
		}
		return nil
	})
	g.Go(func() error {
		sparse, sparseErr = r.searchSparse(gctx, query.Text, limits.Sparse, scope)
		if sparseErr != nil && r.cfg.Degrade == DegradeFail {
			return fmt.Errorf("sparse search: %w", sparseErr)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, asRetrievalFailure(err)
	}

	var degraded []string
	switch {
	case denseErr != nil && sparseErr != nil:
		return nil, asRetrievalFailure(errors.Join(
			fmt.Errorf("dense search: %w", denseErr),
			fmt.Errorf("sparse search: %w", sparseErr),
		))
	case denseErr != nil:
		degraded = []string{pathDense}
		slog.Warn("retrieval_degraded", "failed_path", pathDense, "error", denseErr)
	case sparseErr != nil:
		degraded = []string{pathSparse}
		slog.Warn("retrieval_degraded", "failed_path", pathSparse, "error", sparseErr)
	}

	union := mergeCandidates(dense, sparse, scope)
	filtered := applyScope(union, scope)
	ranked := rankCandidates(filtered, r.cfg.Ranking, r.cfg.RRFK)
	final := trimFragments(ranked, limits.Final)

	return &domain.RetrievalResult{
		Query:     query,
		Fragments: final,
		Counts: domain.StageCounts{
			Dense:    len(dense),
			Sparse:   len(sparse),
			Union:    len(union),
			Filtered: len(filtered),
			Returned: len(final),
		},
		Degraded:   degraded,
		NoEvidence: len(final) == 0,
	}, nil
}

// scopeFor is the single place that decides whether a retrieval is date
// scoped. Both searches and the post-union filter use the same scope.
func scopeFor(query domain.RetrievalQuery) domain.DateScope {
	if query.Strategy == domain.StrategyNoFilter || len(query.Dates) == 0 {
		return domain.DateScope{}
	}
	return domain.NewDateScope(query.Dates)
}

func (r *HybridRetriever) searchDense(ctx context.Context, text string, limit int, scope domain.DateScope) ([]domain.Candidate, error) {
	vector, err := r.embedder.EmbedQuery(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	hits, err := r.vectors.Search(ctx, vector, limit, scope)
	if err != nil {
		return nil, fmt.Errorf("search vector store: %w", err)
	}
	return hits, nil
}

// searchSparse reads one snapshot for the whole search. A missing or corrupt
// corpus is rebuilt once before giving up.
func (r *HybridRetriever) searchSparse(ctx context.Context, text string, limit int, scope domain.DateScope) ([]domain.Candidate, error) {
	snap, err := r.corpus.Snapshot()
	if err != nil && domain.IsKind(err, domain.ErrCorpusUnavailable) && r.rebuilder != nil {
		slog.Warn("corpus_unavailable_rebuilding", "error", err)
		if rebuildErr := r.rebuilder.RebuildCorpus(ctx); rebuildErr != nil {
			return nil, fmt.Errorf("rebuild corpus: %w", rebuildErr)
		}
		snap, err = r.corpus.Snapshot()
	}
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return snap.Search(text, limit, scope), nil
}

func (r *HybridRetriever) limitsFor(override domain.RetrievalLimits) domain.RetrievalLimits {
	out := r.cfg.Limits
	if override.Dense > 0 {
		out.Dense = override.Dense
	}
	if override.Sparse > 0 {
		out.Sparse = override.Sparse
	}
	if override.Final > 0 {
		out.Final = override.Final
	}
	return out
}

// asRetrievalFailure keeps typed errors and reports everything else as a
// temporary failure, distinct from an empty result.
func asRetrievalFailure(err error) error {
	if domain.IsKind(err, domain.ErrTemporary) || domain.IsKind(err, domain.ErrInvalidInput) {
		return err
	}
	return domain.WrapError(domain.ErrTemporary, "retrieve", err)
}
