package usecase

import (
	"context"
	"io"
	"sort"
	"strings"
	"sync"

	"github.com/kirillkom/shiftlog-retrieval/internal/core/domain"
	"github.com/kirillkom/shiftlog-retrieval/internal/core/ports"
)

type statusCall struct {
	status domain.DocumentStatus
	errMsg string
}

type repoFake struct {
	mu          sync.Mutex
	docs        map[string]*domain.Document
	fragments   map[string][]domain.Fragment
	statusCalls []statusCall
	createErr   error
	getErr      error
	listErr     error
	replaceErr  error
	listStarted chan struct{}
	listGate    chan struct{}
	deleted     []string
}

func newRepoFake(docs ...*domain.Document) *repoFake {
	r := &repoFake{docs: map[string]*domain.Document{}, fragments: map[string][]domain.Fragment{}}
	for _, d := range docs {
		r.docs[d.ID] = d
	}
	return r
}

func (f *repoFake) Create(_ context.Context, doc *domain.Document) error {
	if f.createErr != nil {
		return f.createErr
	}
	copyDoc := *doc
	f.docs[doc.ID] = &copyDoc
	return nil
}

func (f *repoFake) GetByID(_ context.Context, id string) (*domain.Document, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	doc, ok := f.docs[id]
	if !ok {
		return nil, domain.WrapError(domain.ErrDocumentNotFound, "get document", io.EOF)
	}
	copyDoc := *doc
	return &copyDoc, nil
}

func (f *repoFake) UpdateStatus(_ context.Context, _ string, status domain.DocumentStatus, errMessage string) error {
	f.statusCalls = append(f.statusCalls, statusCall{status: status, errMsg: errMessage})
	return nil
}

func (f *repoFake) Delete(_ context.Context, id string) error {
	if _, ok := f.docs[id]; !ok {
		return domain.ErrDocumentNotFound
	}
	delete(f.docs, id)
	delete(f.fragments, id)
	f.deleted = append(f.deleted, id)
	return nil
}

func (f *repoFake) ReplaceFragments(_ context.Context, documentID string, fragments []domain.Fragment) error {
	if f.replaceErr != nil {
		return f.replaceErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fragments[documentID] = append([]domain.Fragment(nil), fragments...)
	return nil
}

func (f *repoFake) ListFragments(_ context.Context, documentID string) ([]domain.Fragment, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.Fragment(nil), f.fragments[documentID]...), nil
}

func (f *repoFake) ListAllFragments(ctx context.Context) ([]domain.Fragment, error) {
	if f.listStarted != nil {
		f.listStarted <- struct{}{}
	}
	if f.listGate != nil {
		<-f.listGate
		if err := ctx.Err(); err != nil {
			return nil, err
		}
	}
	if f.listErr != nil {
		return nil, f.listErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	ids := make([]string, 0, len(f.fragments))
	for id := range f.fragments {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	var out []domain.Fragment
	for _, id := range ids {
		out = append(out, f.fragments[id]...)
	}
	return out, nil
}

type storageFake struct {
	savedKey  string
	savedBody string
	deleted   []string
	err       error
}

func (f *storageFake) Save(_ context.Context, key string, data io.Reader) error {
	if f.err != nil {
		return f.err
	}
	raw, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	f.savedKey = key
	f.savedBody = string(raw)
	return nil
}

func (f *storageFake) Open(context.Context, string) (io.ReadCloser, error) {
	return io.NopCloser(strings.NewReader("")), nil
}

func (f *storageFake) Delete(_ context.Context, key string) error {
	f.deleted = append(f.deleted, key)
	return nil
}

type queueFake struct {
	documentID string
	err        error
}

func (f *queueFake) PublishDocumentIngested(_ context.Context, documentID string) error {
	if f.err != nil {
		return f.err
	}
	f.documentID = documentID
	return nil
}

func (f *queueFake) SubscribeDocumentIngested(context.Context, func(context.Context, string) error) error {
	return nil
}

type embedderFake struct {
	mu       sync.Mutex
	batches  int
	err      error
	short    bool
	queryErr error
}

func (f *embedderFake) Embed(_ context.Context, texts []string) ([][]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.mu.Lock()
	f.batches++
	f.mu.Unlock()
	n := len(texts)
	if f.short {
		n--
	}
	out := make([][]float32, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, []float32{float32(len(texts[i])), 1})
	}
	return out, nil
}

func (f *embedderFake) EmbedQuery(context.Context, string) ([]float32, error) {
	if f.queryErr != nil {
		return nil, f.queryErr
	}
	return []float32{1, 0}, nil
}

// vectorFake returns hits in order. It ignores the scope unless
// honorScope is set, so tests can prove the post-union filter on its own.
type vectorFake struct {
	mu         sync.Mutex
	hits       []domain.Candidate
	honorScope bool
	err        error
	block      chan struct{}
	entered    chan struct{}
	searches   int
	scopes     []domain.DateScope
	upserted   []domain.VectorRecord
	deleted    []string
}

func (f *vectorFake) Upsert(_ context.Context, records []domain.VectorRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.upserted = append(f.upserted, records...)
	return f.err
}

func (f *vectorFake) Search(ctx context.Context, _ []float32, limit int, scope domain.DateScope) ([]domain.Candidate, error) {
	f.mu.Lock()
	f.searches++
	f.scopes = append(f.scopes, scope)
	f.mu.Unlock()

	if f.entered != nil {
		f.entered <- struct{}{}
	}
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	var out []domain.Candidate
	for _, h := range f.hits {
		if f.honorScope && !scope.Allows(h.Metadata.Date) {
			continue
		}
		out = append(out, h)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (f *vectorFake) Delete(_ context.Context, ids []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, ids...)
	return nil
}

func (f *vectorFake) searchCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.searches
}

func (f *vectorFake) lastScope() domain.DateScope {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.scopes) == 0 {
		return domain.DateScope{}
	}
	return f.scopes[len(f.scopes)-1]
}

type snapshotFake struct {
	hits        []domain.Candidate
	dates       []string
	fingerprint string
}

func (s *snapshotFake) Search(_ string, limit int, scope domain.DateScope) []domain.Candidate {
	var out []domain.Candidate
	for _, h := range s.hits {
		if !scope.Allows(h.Metadata.Date) {
			continue
		}
		out = append(out, h)
		if len(out) == limit {
			break
		}
	}
	return out
}

func (s *snapshotFake) Dates() []string { return s.dates }
func (s *snapshotFake) Len() int        { return len(s.hits) }
func (s *snapshotFake) Version() uint64 { return 1 }

func (s *snapshotFake) Fingerprint() string { return s.fingerprint }

// corpusFake is a CorpusStore and SnapshotSource in one.
type corpusFake struct {
	mu          sync.Mutex
	snap        *snapshotFake
	err         error
	loadErr     error
	added       map[string][]domain.CorpusEntry
	removed     []string
	rebuilt     []domain.CorpusEntry
	rebuilds    int
	unavailable bool
}

func newCorpusFake(hits ...domain.Candidate) *corpusFake {
	return &corpusFake{snap: &snapshotFake{hits: hits}, added: map[string][]domain.CorpusEntry{}}
}

func (c *corpusFake) Snapshot() (ports.SparseSnapshot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.unavailable {
		return nil, domain.WrapError(domain.ErrCorpusUnavailable, "snapshot", io.ErrUnexpectedEOF)
	}
	if c.err != nil {
		return nil, c.err
	}
	return c.snap, nil
}

func (c *corpusFake) Load(context.Context) error { return c.loadErr }

func (c *corpusFake) rebuildCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rebuilds
}

func (c *corpusFake) Rebuild(_ context.Context, entries []domain.CorpusEntry) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rebuilds++
	c.rebuilt = entries
	c.snap.fingerprint = domain.CorpusFingerprint(entries)
	c.unavailable = false
	return nil
}

func (c *corpusFake) AddDocument(_ context.Context, documentID string, entries []domain.CorpusEntry) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.unavailable {
		return domain.WrapError(domain.ErrCorpusUnavailable, "add", io.ErrUnexpectedEOF)
	}
	c.added[documentID] = entries
	return nil
}

func (c *corpusFake) RemoveDocument(_ context.Context, documentID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.removed = append(c.removed, documentID)
	return nil
}

type rebuilderFake struct {
	corpus *corpusFake
	calls  int
}

func (r *rebuilderFake) RebuildCorpus(ctx context.Context) error {
	r.calls++
	return r.corpus.Rebuild(ctx, nil)
}

type eventsFake struct {
	published []domain.CorpusChange
}

func (e *eventsFake) PublishCorpusChanged(_ context.Context, change domain.CorpusChange) error {
	e.published = append(e.published, change)
	return nil
}

func (e *eventsFake) SubscribeCorpusChanged(context.Context, func(context.Context, domain.CorpusChange) error) error {
	return nil
}

func candidate(doc string, index int, date, text string, score float64) domain.Candidate {
	return domain.Candidate{
		FragmentID: doc + "-" + text,
		DocumentID: doc,
		Index:      index,
		Text:       text,
		Metadata:   domain.Metadata{File: doc, Date: date},
		Score:      score,
	}
}
