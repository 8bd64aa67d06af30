package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/kirillkom/shiftlog-retrieval/internal/core/domain"
	"github.com/kirillkom/shiftlog-retrieval/internal/core/ports"
)

const defaultRebuildTimeout = 2 * time.Minute

// CorpusService keeps the process-local sparse corpus in step with the
// fragment table. The corpus log is only a startup cache; the fragment table
// decides what the corpus holds.
type CorpusService struct {
	repo           ports.FragmentRepository
	store          ports.CorpusStore
	rebuilds       singleflight.Group
	rebuildTimeout time.Duration
}

func NewCorpusService(repo ports.FragmentRepository, store ports.CorpusStore) *CorpusService {
	return &CorpusService{repo: repo, store: store, rebuildTimeout: defaultRebuildTimeout}
}

func (s *CorpusService) Snapshot() (ports.SparseSnapshot, error) {
	return s.store.Snapshot()
}

// Reload replays the corpus log at startup, then reconciles it with the
// fragment table. A missing or corrupt log is rebuilt.
func (s *CorpusService) Reload(ctx context.Context) error {
	err := s.store.Load(ctx)
	if err != nil {
		if !domain.IsKind(err, domain.ErrCorpusUnavailable) {
			return fmt.Errorf("load corpus: %w", err)
		}
		slog.Warn("corpus_log_unusable", "error", err)
		return s.RebuildCorpus(ctx)
	}
	_, err = s.Reconcile(ctx)
	return err
}

// Reconcile rebuilds the corpus when its content differs from the fragment
// table, which happens after change events were missed. It reports whether a
// rebuild ran.
func (s *CorpusService) Reconcile(ctx context.Context) (bool, error) {
	fragments, err := s.repo.ListAllFragments(ctx)
	if err != nil {
		return false, fmt.Errorf("list fragments: %w", err)
	}
	want := domain.CorpusFingerprint(corpusEntries(fragments))

	var have string
	snap, err := s.store.Snapshot()
	switch {
	case err == nil:
		have = snap.Fingerprint()
	case domain.IsKind(err, domain.ErrCorpusUnavailable):
		have = "unavailable"
	default:
		return false, err
	}
	if have == want {
		return false, nil
	}

	slog.Warn("corpus_out_of_sync", "fragments", len(fragments))
	return true, s.RebuildCorpus(ctx)
}

// RebuildCorpus replaces the corpus with every stored fragment. Concurrent
// callers share one rebuild, which outlives a caller that gives up.
func (s *CorpusService) RebuildCorpus(ctx context.Context) error {
	ch := s.rebuilds.DoChan("rebuild", func() (any, error) {
		rebuildCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.rebuildTimeout)
		defer cancel()
		return nil, s.rebuild(rebuildCtx)
	})
	select {
	case <-ctx.Done():
		return ctx.Err()
	case res := <-ch:
		if res.Shared {
			slog.Debug("corpus_rebuild_shared")
		}
		return res.Err
	}
}

func (s *CorpusService) rebuild(ctx context.Context) error {
	fragments, err := s.repo.ListAllFragments(ctx)
	if err != nil {
		return fmt.Errorf("list fragments: %w", err)
	}
	entries := corpusEntries(fragments)
	if err := s.store.Rebuild(ctx, entries); err != nil {
		return fmt.Errorf("rebuild corpus: %w", err)
	}
	slog.Info("corpus_rebuilt", "entries", len(entries))
	return nil
}

// RunReconciler calls Reconcile every interval until ctx ends.
func (s *CorpusService) RunReconciler(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.Reconcile(ctx); err != nil && ctx.Err() == nil {
				slog.Error("corpus_reconcile_failed", "error", err)
			}
		}
	}
}

func corpusEntries(fragments []domain.Fragment) []domain.CorpusEntry {
	entries := make([]domain.CorpusEntry, 0, len(fragments))
	for _, f := range fragments {
		entries = append(entries, f.CorpusEntry())
	}
	return entries
}

// ApplyChange applies a corpus change announced by an indexing process.
func (s *CorpusService) ApplyChange(ctx context.Context, change domain.CorpusChange) error {
	err := s.applyChange(ctx, change)
	if domain.IsKind(err, domain.ErrCorpusUnavailable) {
		return s.RebuildCorpus(ctx)
	}
	return err
}

func (s *CorpusService) applyChange(ctx context.Context, change domain.CorpusChange) error {
	switch change.Kind {
	case domain.CorpusDocumentIndexed:
		fragments, err := s.repo.ListFragments(ctx, change.DocumentID)
		if err != nil {
			return fmt.Errorf("list fragments: %w", err)
		}
		if len(fragments) == 0 {
			return s.store.RemoveDocument(ctx, change.DocumentID)
		}
		return s.store.AddDocument(ctx, change.DocumentID, corpusEntries(fragments))
	case domain.CorpusDocumentRemoved:
		return s.store.RemoveDocument(ctx, change.DocumentID)
	default:
		return domain.WrapError(domain.ErrInvalidInput, "apply corpus change", fmt.Errorf("unknown kind %q", change.Kind))
	}
}

// CorpusAnnouncer is the corpus index of a process that holds no corpus of
// its own: every update is published for the corpus owners to apply.
type CorpusAnnouncer struct {
	events ports.CorpusEvents
}

func NewCorpusAnnouncer(events ports.CorpusEvents) *CorpusAnnouncer {
	return &CorpusAnnouncer{events: events}
}

func (a *CorpusAnnouncer) AddDocument(ctx context.Context, documentID string, _ []domain.CorpusEntry) error {
	return a.events.PublishCorpusChanged(ctx, domain.CorpusChange{Kind: domain.CorpusDocumentIndexed, DocumentID: documentID})
}

func (a *CorpusAnnouncer) RemoveDocument(ctx context.Context, documentID string) error {
	return a.events.PublishCorpusChanged(ctx, domain.CorpusChange{Kind: domain.CorpusDocumentRemoved, DocumentID: documentID})
}

// CorpusFanout applies each update to every index in order and stops at the
// first failure.
type CorpusFanout []ports.CorpusIndex

func (f CorpusFanout) AddDocument(ctx context.Context, documentID string, entries []domain.CorpusEntry) error {
	for _, idx := range f {
		if err := idx.AddDocument(ctx, documentID, entries); err != nil {
			return err
		}
	}
	return nil
}

func (f CorpusFanout) RemoveDocument(ctx context.Context, documentID string) error {
	for _, idx := range f {
		if err := idx.RemoveDocument(ctx, documentID); err != nil {
			return err
		}
	}
	return nil
}
