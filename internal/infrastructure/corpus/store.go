package corpus

import (
	"context"
	"errors"
	"log/slog"
	"maps"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/kirillkom/shiftlog-retrieval/internal/core/domain"
	"github.com/kirillkom/shiftlog-retrieval/internal/core/ports"
)

// Store owns the process-local corpus. Writers are serialized and publish a
// fresh Snapshot with an atomic swap; readers never observe a partial update.
type Store struct {
	log *Log

	mu      sync.Mutex
	live    map[string][]domain.CorpusEntry
	version uint64

	current atomic.Pointer[Snapshot]
}

func NewStore(log *Log) *Store {
	return &Store{log: log}
}

// Load replays the log into a new snapshot.
func (s *Store) Load(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	live, err := s.log.Replay()
	if err != nil {
		return err
	}
	s.publish(live)
	return nil
}

func (s *Store) Snapshot() (ports.SparseSnapshot, error) {
	snap := s.current.Load()
	if snap == nil {
		return nil, domain.WrapError(domain.ErrCorpusUnavailable, "corpus snapshot", errors.New("corpus not loaded"))
	}
	return snap, nil
}

// AddDocument replaces every entry of documentID with entries.
func (s *Store) AddDocument(ctx context.Context, documentID string, entries []domain.CorpusEntry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.live == nil {
		return domain.WrapError(domain.ErrCorpusUnavailable, "add corpus document", errors.New("corpus not loaded"))
	}

	records := make([]record, 0, len(entries)+1)
	records = append(records, record{Op: opRemove, DocumentID: documentID})
	for i := range entries {
		records = append(records, record{Op: opAdd, DocumentID: documentID, Entry: &entries[i]})
	}
	if err := s.log.Append(records); err != nil {
		return err
	}

	next := maps.Clone(s.live)
	if len(entries) == 0 {
		delete(next, documentID)
	} else {
		next[documentID] = append([]domain.CorpusEntry(nil), entries...)
	}
	s.publish(next)
	return nil
}

func (s *Store) RemoveDocument(ctx context.Context, documentID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.live == nil {
		return domain.WrapError(domain.ErrCorpusUnavailable, "remove corpus document", errors.New("corpus not loaded"))
	}
	if _, ok := s.live[documentID]; !ok {
		return nil
	}

	if err := s.log.Append([]record{{Op: opRemove, DocumentID: documentID}}); err != nil {
		return err
	}
	next := maps.Clone(s.live)
	delete(next, documentID)
	s.publish(next)
	return nil
}

// Rebuild replaces the whole corpus and compacts the log.
func (s *Store) Rebuild(ctx context.Context, entries []domain.CorpusEntry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	live := make(map[string][]domain.CorpusEntry)
	for _, e := range entries {
		live[e.DocumentID] = append(live[e.DocumentID], e)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.log.Rewrite(live); err != nil {
		return err
	}
	s.publish(live)
	return nil
}

// publish must be called with mu held.
func (s *Store) publish(live map[string][]domain.CorpusEntry) {
	docIDs := make([]string, 0, len(live))
	total := 0
	for id, entries := range live {
		docIDs = append(docIDs, id)
		total += len(entries)
	}
	sort.Strings(docIDs)

	flat := make([]domain.CorpusEntry, 0, total)
	for _, id := range docIDs {
		entries := append([]domain.CorpusEntry(nil), live[id]...)
		sort.Slice(entries, func(i, j int) bool { return entries[i].Index < entries[j].Index })
		flat = append(flat, entries...)
	}

	s.live = live
	s.version++
	snap := NewSnapshot(s.version, flat)
	s.current.Store(snap)
	slog.Info("corpus_swapped",
		"version", snap.Version(),
		"documents", len(docIDs),
		"entries", snap.Len(),
	)
}
