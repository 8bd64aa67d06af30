package httpadapter

import (
	"context"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/kirillkom/shiftlog-retrieval/internal/config"
	"github.com/kirillkom/shiftlog-retrieval/internal/core/domain"
)

type ingestFake struct {
	owner string
	err   error
}

func (f *ingestFake) Upload(_ context.Context, filename, mimeType, owner string, body io.Reader) (*domain.Document, error) {
	if f.err != nil {
		return nil, f.err
	}
	raw, err := io.ReadAll(body)
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		return nil, domain.WrapError(domain.ErrInvalidInput, "upload", io.EOF)
	}
	f.owner = owner

	now := time.Now().UTC()
	return &domain.Document{
		ID:          "doc-1",
		Filename:    filename,
		MimeType:    mimeType,
		Owner:       owner,
		StoragePath: "doc-1_file.txt",
		Status:      domain.StatusUploaded,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

type docsFake struct {
	err error
}

func (f docsFake) GetByID(_ context.Context, id string) (*domain.Document, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &domain.Document{ID: id, Filename: "a.txt", MimeType: "text/plain", StoragePath: "a", Status: domain.StatusReady}, nil
}

type removerFake struct {
	removed string
	err     error
}

func (f *removerFake) RemoveDocument(_ context.Context, id string) error {
	f.removed = id
	return f.err
}

type retrieverFake struct {
	last   domain.RetrievalRequest
	result *domain.RetrievalResult
	dates  domain.DateRange
	err    error
}

func (f *retrieverFake) Retrieve(ctx context.Context, question string) (*domain.RetrievalResult, error) {
	return f.RetrieveWith(ctx, domain.RetrievalRequest{Question: question})
}

func (f *retrieverFake) RetrieveWith(_ context.Context, req domain.RetrievalRequest) (*domain.RetrievalResult, error) {
	f.last = req
	if f.err != nil {
		return nil, f.err
	}
	if f.result != nil {
		return f.result, nil
	}
	return &domain.RetrievalResult{Fragments: []domain.RetrievedFragment{}, NoEvidence: true}, nil
}

func (f *retrieverFake) AvailableDates(context.Context) (domain.DateRange, error) {
	return f.dates, f.err
}

type rebuilderFake struct {
	calls int
	err   error
}

func (f *rebuilderFake) RebuildCorpus(context.Context) error {
	f.calls++
	return f.err
}

type testServices struct {
	ingest    *ingestFake
	docs      docsFake
	remover   *removerFake
	retriever *retrieverFake
	rebuilder *rebuilderFake
}

func newTestServices() *testServices {
	return &testServices{
		ingest:    &ingestFake{},
		remover:   &removerFake{},
		retriever: &retrieverFake{},
		rebuilder: &rebuilderFake{},
	}
}

func (s *testServices) handler(t *testing.T, cfg config.Config) http.Handler {
	t.Helper()
	h, err := NewRouter(cfg, Services{
		Ingest:    s.ingest,
		Documents: s.docs,
		Remover:   s.remover,
		Retriever: s.retriever,
		Corpus:    s.rebuilder,
	}).Handler()
	if err != nil {
		t.Fatalf("Handler() error = %v", err)
	}
	return h
}
