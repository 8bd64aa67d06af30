package usecase

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/kirillkom/shiftlog-retrieval/internal/core/domain"
)

type extractorFake struct {
	text string
	err  error
}

func (f *extractorFake) Extract(context.Context, *domain.Document) (string, error) {
	return f.text, f.err
}

type indexerFake struct {
	documentID string
	text       string
	sourcePath string
	err        error
}

func (f *indexerFake) IndexDocument(_ context.Context, documentID, text, sourcePath string) error {
	f.documentID, f.text, f.sourcePath = documentID, text, sourcePath
	return f.err
}

func (f *indexerFake) RemoveDocument(context.Context, string) error { return nil }

func TestProcessByIDMarksReady(t *testing.T) {
	repo := newRepoFake(&domain.Document{ID: "doc-1", Filename: "Laporan 3 Maret 2025 Unit 7.pdf"})
	indexer := &indexerFake{}
	uc := NewProcessDocumentUseCase(repo, &extractorFake{text: "beban stabil"}, indexer)

	if err := uc.ProcessByID(context.Background(), "doc-1"); err != nil {
		t.Fatalf("ProcessByID() error = %v", err)
	}
	if indexer.sourcePath != "Laporan 3 Maret 2025 Unit 7.pdf" || indexer.text != "beban stabil" {
		t.Fatalf("unexpected index call %+v", indexer)
	}
	if len(repo.statusCalls) != 2 || repo.statusCalls[0].status != domain.StatusProcessing || repo.statusCalls[1].status != domain.StatusReady {
		t.Fatalf("unexpected status transitions %+v", repo.statusCalls)
	}
}

func TestProcessByIDMarksFailed(t *testing.T) {
	tests := []struct {
		name      string
		extractor *extractorFake
		indexer   *indexerFake
	}{
		{name: "extract error", extractor: &extractorFake{err: errors.New("broken pdf")}, indexer: &indexerFake{}},
		{name: "empty text", extractor: &extractorFake{}, indexer: &indexerFake{}},
		{name: "index error", extractor: &extractorFake{text: "x"}, indexer: &indexerFake{err: errors.New("qdrant down")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := newRepoFake(&domain.Document{ID: "doc-1", Filename: "r.txt"})
			uc := NewProcessDocumentUseCase(repo, tt.extractor, tt.indexer)

			if err := uc.ProcessByID(context.Background(), "doc-1"); err == nil {
				t.Fatalf("expected error")
			}
			last := repo.statusCalls[len(repo.statusCalls)-1]
			if last.status != domain.StatusFailed || last.errMsg == "" {
				t.Fatalf("expected failed status with message, got %+v", last)
			}
		})
	}
}

func TestProcessByIDFailureNamesStage(t *testing.T) {
	repo := newRepoFake(&domain.Document{ID: "doc-1", Filename: "r.pdf"})
	uc := NewProcessDocumentUseCase(repo, &extractorFake{text: "x"}, &indexerFake{err: errors.New("qdrant down")})

	err := uc.ProcessByID(context.Background(), "doc-1")
	if err == nil || !strings.HasPrefix(err.Error(), "index document: ") {
		t.Fatalf("expected index stage in error, got %v", err)
	}
	last := repo.statusCalls[len(repo.statusCalls)-1]
	if last.errMsg != err.Error() {
		t.Fatalf("expected stored message %q, got %q", err.Error(), last.errMsg)
	}
}

func TestProcessByIDSkipsReadyDocument(t *testing.T) {
	repo := newRepoFake(&domain.Document{ID: "doc-1", Filename: "r.txt", Status: domain.StatusReady})
	indexer := &indexerFake{}
	uc := NewProcessDocumentUseCase(repo, &extractorFake{text: "x"}, indexer)

	if err := uc.ProcessByID(context.Background(), "doc-1"); err != nil {
		t.Fatalf("ProcessByID() error = %v", err)
	}
	if indexer.documentID != "" || len(repo.statusCalls) != 0 {
		t.Fatalf("expected redelivery to be a no-op, got index %q and %d status calls", indexer.documentID, len(repo.statusCalls))
	}
}

func TestProcessByIDDropsDeletedDocument(t *testing.T) {
	repo := newRepoFake()
	indexer := &indexerFake{}
	uc := NewProcessDocumentUseCase(repo, &extractorFake{text: "x"}, indexer)

	if err := uc.ProcessByID(context.Background(), "doc-gone"); err != nil {
		t.Fatalf("expected deleted document to be acknowledged, got %v", err)
	}
	if indexer.documentID != "" {
		t.Fatalf("expected no indexing for deleted document")
	}
}

func TestProcessByIDPropagatesLookupFailure(t *testing.T) {
	repo := newRepoFake(&domain.Document{ID: "doc-1"})
	repo.getErr = errors.New("db down")
	uc := NewProcessDocumentUseCase(repo, &extractorFake{text: "x"}, &indexerFake{})

	if err := uc.ProcessByID(context.Background(), "doc-1"); err == nil {
		t.Fatalf("expected lookup error")
	}
	if len(repo.statusCalls) != 0 {
		t.Fatalf("expected no status change, got %+v", repo.statusCalls)
	}
}
