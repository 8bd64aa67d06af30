package ports

import (
	"context"
	"io"

	"github.com/kirillkom/shiftlog-retrieval/internal/core/domain"
)

// DocumentIngestor is the inbound contract for document upload orchestration.
type DocumentIngestor interface {
	Upload(ctx context.Context, filename, mimeType, owner string, body io.Reader) (*domain.Document, error)
}

// DocumentReader is the inbound read model for document metadata/state.
type DocumentReader interface {
	GetByID(ctx context.Context, id string) (*domain.Document, error)
}

// DocumentProcessor is the inbound contract for asynchronous document processing.
type DocumentProcessor interface {
	ProcessByID(ctx context.Context, documentID string) error
}

// DocumentIndexer derives fragments and both search projections for a document.
type DocumentIndexer interface {
	IndexDocument(ctx context.Context, documentID, text, sourcePath string) error
	RemoveDocument(ctx context.Context, documentID string) error
}

// Retriever is the single entry point used by the reasoning layer.
type Retriever interface {
	Retrieve(ctx context.Context, question string) (*domain.RetrievalResult, error)
	RetrieveWith(ctx context.Context, req domain.RetrievalRequest) (*domain.RetrievalResult, error)
	AvailableDates(ctx context.Context) (domain.DateRange, error)
}

// CorpusMaintainer owns the sparse corpus of one process.
type CorpusMaintainer interface {
	RebuildCorpus(ctx context.Context) error
	ApplyChange(ctx context.Context, change domain.CorpusChange) error
}
