package usecase

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/kirillkom/shiftlog-retrieval/internal/core/domain"
	"github.com/kirillkom/shiftlog-retrieval/internal/infrastructure/corpus"
)

func storedFragments(repo *repoFake, documentID string, texts ...string) {
	for i, text := range texts {
		repo.fragments[documentID] = append(repo.fragments[documentID], domain.Fragment{
			ID:         documentID + "-" + text,
			DocumentID: documentID,
			Index:      i,
			Text:       text,
		})
	}
}

func TestReloadRebuildsUnusableCorpus(t *testing.T) {
	repo := newRepoFake()
	storedFragments(repo, "doc-1", "a", "b")
	storedFragments(repo, "doc-2", "c")
	corpus := newCorpusFake()
	corpus.loadErr = domain.WrapError(domain.ErrCorpusUnavailable, "load corpus", errors.New("corrupt line 3"))

	if err := NewCorpusService(repo, corpus).Reload(context.Background()); err != nil {
		t.Fatalf("Reload() error = %v", err)
	}
	if corpus.rebuilds != 1 || len(corpus.rebuilt) != 3 {
		t.Fatalf("expected one rebuild of 3 entries, got %d rebuilds of %d", corpus.rebuilds, len(corpus.rebuilt))
	}
}

func TestReloadKeepsHealthyCorpus(t *testing.T) {
	corpus := newCorpusFake()
	if err := NewCorpusService(newRepoFake(), corpus).Reload(context.Background()); err != nil {
		t.Fatalf("Reload() error = %v", err)
	}
	if corpus.rebuilds != 0 {
		t.Fatalf("expected no rebuild, got %d", corpus.rebuilds)
	}
}

func TestReloadDropsDocumentRemovedWhileProcessWasDown(t *testing.T) {
	repo := newRepoFake()
	storedFragments(repo, "doc-1", "tekanan turbin unit 7 naik")
	logPath := filepath.Join(t.TempDir(), "corpus", "api.jsonl")

	first := NewCorpusService(repo, corpus.NewStore(corpus.NewLog(logPath)))
	if err := first.Reload(context.Background()); err != nil {
		t.Fatalf("first Reload() error = %v", err)
	}

	// The removal event never reaches this process.
	delete(repo.fragments, "doc-1")

	restarted := NewCorpusService(repo, corpus.NewStore(corpus.NewLog(logPath)))
	if err := restarted.Reload(context.Background()); err != nil {
		t.Fatalf("second Reload() error = %v", err)
	}
	snap, err := restarted.Snapshot()
	if err != nil {
		t.Fatalf("Snapshot() error = %v", err)
	}
	if snap.Len() != 0 {
		t.Fatalf("expected empty corpus after restart, got %d entries", snap.Len())
	}
	if hits := snap.Search("tekanan turbin", 5, domain.DateScope{}); len(hits) != 0 {
		t.Fatalf("expected removed document to be unsearchable, got %+v", hits)
	}
}

func TestReloadKeepsLogMatchingFragments(t *testing.T) {
	repo := newRepoFake()
	storedFragments(repo, "doc-1", "a", "b")
	corpusStore := newCorpusFake()
	fragments, _ := repo.ListAllFragments(context.Background())
	corpusStore.snap.fingerprint = domain.CorpusFingerprint(corpusEntries(fragments))

	if err := NewCorpusService(repo, corpusStore).Reload(context.Background()); err != nil {
		t.Fatalf("Reload() error = %v", err)
	}
	if corpusStore.rebuilds != 0 {
		t.Fatalf("expected matching log to be kept, got %d rebuilds", corpusStore.rebuilds)
	}
}

func TestReconcileRebuildsDivergedCorpus(t *testing.T) {
	repo := newRepoFake()
	storedFragments(repo, "doc-2", "c")
	corpusStore := newCorpusFake()
	corpusStore.snap.fingerprint = "stale"
	svc := NewCorpusService(repo, corpusStore)

	rebuilt, err := svc.Reconcile(context.Background())
	if err != nil {
		t.Fatalf("Reconcile() error = %v", err)
	}
	if !rebuilt || corpusStore.rebuilds != 1 || len(corpusStore.rebuilt) != 1 {
		t.Fatalf("expected one rebuild of 1 entry, got rebuilt=%v rebuilds=%d entries=%d", rebuilt, corpusStore.rebuilds, len(corpusStore.rebuilt))
	}

	rebuilt, err = svc.Reconcile(context.Background())
	if err != nil {
		t.Fatalf("second Reconcile() error = %v", err)
	}
	if rebuilt {
		t.Fatalf("expected corpus to be in sync after rebuild")
	}
}

func TestReconcilePropagatesListFailure(t *testing.T) {
	repo := newRepoFake()
	repo.listErr = errors.New("connection refused")
	corpusStore := newCorpusFake()

	if _, err := NewCorpusService(repo, corpusStore).Reconcile(context.Background()); err == nil {
		t.Fatalf("expected list error")
	}
	if corpusStore.rebuilds != 0 {
		t.Fatalf("expected no rebuild, got %d", corpusStore.rebuilds)
	}
}

func TestRebuildCorpusOutlivesCancelledCaller(t *testing.T) {
	repo := newRepoFake()
	storedFragments(repo, "doc-1", "a")
	repo.listStarted = make(chan struct{}, 1)
	repo.listGate = make(chan struct{})
	corpusStore := newCorpusFake()
	svc := NewCorpusService(repo, corpusStore)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- svc.RebuildCorpus(ctx) }()

	<-repo.listStarted
	cancel()
	if err := <-errCh; !errors.Is(err, context.Canceled) {
		t.Fatalf("expected cancelled caller to return context.Canceled, got %v", err)
	}
	close(repo.listGate)

	deadline := time.Now().Add(time.Second)
	for corpusStore.rebuildCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatalf("expected shared rebuild to finish after caller cancelled")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestRunReconcilerStopsWithContext(t *testing.T) {
	repo := newRepoFake()
	storedFragments(repo, "doc-1", "a")
	corpusStore := newCorpusFake()
	corpusStore.snap.fingerprint = "stale"
	svc := NewCorpusService(repo, corpusStore)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		svc.RunReconciler(ctx, 5*time.Millisecond)
		close(done)
	}()

	deadline := time.Now().Add(time.Second)
	for corpusStore.rebuildCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatalf("expected reconciler to rebuild diverged corpus")
		}
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("expected reconciler to stop after cancel")
	}
}

func TestReloadPropagatesOtherFailures(t *testing.T) {
	corpus := newCorpusFake()
	corpus.loadErr = errors.New("permission denied")
	if err := NewCorpusService(newRepoFake(), corpus).Reload(context.Background()); err == nil {
		t.Fatalf("expected load error")
	}
	if corpus.rebuilds != 0 {
		t.Fatalf("expected no rebuild, got %d", corpus.rebuilds)
	}
}

func TestApplyChangeIndexedLoadsFragments(t *testing.T) {
	repo := newRepoFake()
	storedFragments(repo, "doc-1", "a", "b")
	corpus := newCorpusFake()
	svc := NewCorpusService(repo, corpus)

	err := svc.ApplyChange(context.Background(), domain.CorpusChange{Kind: domain.CorpusDocumentIndexed, DocumentID: "doc-1"})
	if err != nil {
		t.Fatalf("ApplyChange() error = %v", err)
	}
	if len(corpus.added["doc-1"]) != 2 {
		t.Fatalf("expected 2 entries added, got %d", len(corpus.added["doc-1"]))
	}

	err = svc.ApplyChange(context.Background(), domain.CorpusChange{Kind: domain.CorpusDocumentIndexed, DocumentID: "gone"})
	if err != nil {
		t.Fatalf("ApplyChange() error = %v", err)
	}
	if len(corpus.removed) != 1 || corpus.removed[0] != "gone" {
		t.Fatalf("expected document without fragments removed, got %v", corpus.removed)
	}
}

func TestApplyChangeRemoved(t *testing.T) {
	corpus := newCorpusFake()
	svc := NewCorpusService(newRepoFake(), corpus)

	if err := svc.ApplyChange(context.Background(), domain.CorpusChange{Kind: domain.CorpusDocumentRemoved, DocumentID: "doc-1"}); err != nil {
		t.Fatalf("ApplyChange() error = %v", err)
	}
	if len(corpus.removed) != 1 {
		t.Fatalf("expected removal, got %v", corpus.removed)
	}
}

func TestApplyChangeRebuildsUnavailableCorpus(t *testing.T) {
	repo := newRepoFake()
	storedFragments(repo, "doc-1", "a")
	corpus := newCorpusFake()
	corpus.unavailable = true

	err := NewCorpusService(repo, corpus).ApplyChange(context.Background(), domain.CorpusChange{Kind: domain.CorpusDocumentIndexed, DocumentID: "doc-1"})
	if err != nil {
		t.Fatalf("ApplyChange() error = %v", err)
	}
	if corpus.rebuilds != 1 || len(corpus.rebuilt) != 1 {
		t.Fatalf("expected rebuild from fragment table, got %d rebuilds", corpus.rebuilds)
	}
}

func TestApplyChangeRejectsUnknownKind(t *testing.T) {
	svc := NewCorpusService(newRepoFake(), newCorpusFake())
	err := svc.ApplyChange(context.Background(), domain.CorpusChange{Kind: "renamed", DocumentID: "doc-1"})
	if !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
}

func TestCorpusAnnouncerPublishesChanges(t *testing.T) {
	events := &eventsFake{}
	a := NewCorpusAnnouncer(events)

	if err := a.AddDocument(context.Background(), "doc-1", nil); err != nil {
		t.Fatalf("AddDocument() error = %v", err)
	}
	if err := a.RemoveDocument(context.Background(), "doc-2"); err != nil {
		t.Fatalf("RemoveDocument() error = %v", err)
	}
	want := []domain.CorpusChange{
		{Kind: domain.CorpusDocumentIndexed, DocumentID: "doc-1"},
		{Kind: domain.CorpusDocumentRemoved, DocumentID: "doc-2"},
	}
	if len(events.published) != 2 || events.published[0] != want[0] || events.published[1] != want[1] {
		t.Fatalf("expected %v, got %v", want, events.published)
	}
}

func TestCorpusFanoutStopsAtFirstFailure(t *testing.T) {
	local := newCorpusFake()
	local.unavailable = true
	events := &eventsFake{}
	fanout := CorpusFanout{local, NewCorpusAnnouncer(events)}

	if err := fanout.AddDocument(context.Background(), "doc-1", nil); err == nil {
		t.Fatalf("expected local corpus failure")
	}
	if len(events.published) != 0 {
		t.Fatalf("expected nothing announced after local failure")
	}

	local.unavailable = false
	if err := fanout.AddDocument(context.Background(), "doc-1", nil); err != nil {
		t.Fatalf("AddDocument() error = %v", err)
	}
	if len(events.published) != 1 {
		t.Fatalf("expected one announcement, got %d", len(events.published))
	}
}
