package corpus

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/kirillkom/shiftlog-retrieval/internal/core/domain"
)

func newTestStore(t *testing.T) (*Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "corpus", "corpus.jsonl")
	return NewStore(NewLog(path)), path
}

func docEntries(doc, date string, n int) []domain.CorpusEntry {
	out := make([]domain.CorpusEntry, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, entry(doc, i, date, "beban unit 7 laporan "+doc))
	}
	return out
}

func TestStoreLoadMissingLogIsUnavailable(t *testing.T) {
	store, _ := newTestStore(t)
	err := store.Load(context.Background())
	if !domain.IsKind(err, domain.ErrCorpusUnavailable) {
		t.Fatalf("expected ErrCorpusUnavailable, got %v", err)
	}
	if _, err := store.Snapshot(); !domain.IsKind(err, domain.ErrCorpusUnavailable) {
		t.Fatalf("expected snapshot to be unavailable, got %v", err)
	}
}

func TestStoreLoadCorruptLogIsUnavailable(t *testing.T) {
	store, path := newTestStore(t)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte("{\"op\":\"add\"\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := store.Load(context.Background()); !domain.IsKind(err, domain.ErrCorpusUnavailable) {
		t.Fatalf("expected ErrCorpusUnavailable, got %v", err)
	}
}

func TestStoreAddRemoveAndReplay(t *testing.T) {
	ctx := context.Background()
	store, path := newTestStore(t)
	if err := store.Rebuild(ctx, nil); err != nil {
		t.Fatalf("Rebuild() error = %v", err)
	}

	if err := store.AddDocument(ctx, "d1", docEntries("d1", "2025-03-01", 3)); err != nil {
		t.Fatalf("AddDocument(d1) error = %v", err)
	}
	if err := store.AddDocument(ctx, "d2", docEntries("d2", "2025-03-02", 2)); err != nil {
		t.Fatalf("AddDocument(d2) error = %v", err)
	}
	// Re-adding replaces instead of appending.
	if err := store.AddDocument(ctx, "d1", docEntries("d1", "2025-03-01", 1)); err != nil {
		t.Fatalf("AddDocument(d1 again) error = %v", err)
	}
	if err := store.RemoveDocument(ctx, "d2"); err != nil {
		t.Fatalf("RemoveDocument() error = %v", err)
	}

	snap, err := store.Snapshot()
	if err != nil {
		t.Fatalf("Snapshot() error = %v", err)
	}
	if snap.Len() != 1 {
		t.Fatalf("expected 1 live entry, got %d", snap.Len())
	}

	reloaded := NewStore(NewLog(path))
	if err := reloaded.Load(ctx); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	again, _ := reloaded.Snapshot()
	if again.Len() != 1 || again.Dates()[0] != "2025-03-01" {
		t.Fatalf("replayed corpus differs: len=%d dates=%v", again.Len(), again.Dates())
	}
}

func TestStoreRebuildCompactsLog(t *testing.T) {
	ctx := context.Background()
	store, path := newTestStore(t)
	if err := store.Rebuild(ctx, nil); err != nil {
		t.Fatalf("Rebuild() error = %v", err)
	}
	for i := 0; i < 5; i++ {
		if err := store.AddDocument(ctx, "d1", docEntries("d1", "2025-03-01", 2)); err != nil {
			t.Fatalf("AddDocument() error = %v", err)
		}
	}
	if err := store.Rebuild(ctx, docEntries("d1", "2025-03-01", 2)); err != nil {
		t.Fatalf("Rebuild() error = %v", err)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	lines := 0
	for _, b := range raw {
		if b == '\n' {
			lines++
		}
	}
	if lines != 2 {
		t.Fatalf("expected compacted log with 2 lines, got %d", lines)
	}
}

func TestStoreHeldSnapshotIsImmutable(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t)
	if err := store.Rebuild(ctx, docEntries("d1", "2025-03-01", 2)); err != nil {
		t.Fatalf("Rebuild() error = %v", err)
	}
	before, _ := store.Snapshot()

	if err := store.AddDocument(ctx, "d2", docEntries("d2", "2025-03-02", 4)); err != nil {
		t.Fatalf("AddDocument() error = %v", err)
	}
	after, _ := store.Snapshot()

	if before.Len() != 2 {
		t.Fatalf("held snapshot changed: len=%d", before.Len())
	}
	if after.Len() != 6 || after.Version() <= before.Version() {
		t.Fatalf("expected newer snapshot, got len=%d version=%d", after.Len(), after.Version())
	}
}

func TestStoreReadersNeverSeePartialDocuments(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t)
	if err := store.Rebuild(ctx, nil); err != nil {
		t.Fatalf("Rebuild() error = %v", err)
	}

	const perDoc = 3
	var wg sync.WaitGroup
	stop := make(chan struct{})
	errs := make(chan string, 4)
	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				snap, err := store.Snapshot()
				if err != nil {
					errs <- err.Error()
					return
				}
				if snap.Len()%perDoc != 0 {
					errs <- "observed partial document"
					return
				}
			}
		}()
	}

	for i := 0; i < 20; i++ {
		doc := string(rune('a' + i))
		if err := store.AddDocument(ctx, doc, docEntries(doc, "2025-03-01", perDoc)); err != nil {
			t.Fatalf("AddDocument() error = %v", err)
		}
	}
	close(stop)
	wg.Wait()
	close(errs)
	for msg := range errs {
		t.Fatalf("reader failure: %s", msg)
	}
}

func TestStoreWritesRequireLoadedCorpus(t *testing.T) {
	store, _ := newTestStore(t)
	err := store.AddDocument(context.Background(), "d1", docEntries("d1", "", 1))
	if !domain.IsKind(err, domain.ErrCorpusUnavailable) {
		t.Fatalf("expected ErrCorpusUnavailable, got %v", err)
	}
}
