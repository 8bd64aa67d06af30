package ports

import (
	"context"
	"io"

	"github.com/kirillkom/shiftlog-retrieval/internal/core/domain"
)

// DocumentRepository persists documents and their fragments. Fragments are the
// source of truth both search projections are rebuilt from.
type DocumentRepository interface {
	Create(ctx context.Context, doc *domain.Document) error
	GetByID(ctx context.Context, id string) (*domain.Document, error)
	UpdateStatus(ctx context.Context, id string, status domain.DocumentStatus, errMessage string) error
	Delete(ctx context.Context, id string) error
	FragmentRepository
}

type FragmentRepository interface {
	ReplaceFragments(ctx context.Context, documentID string, fragments []domain.Fragment) error
	ListFragments(ctx context.Context, documentID string) ([]domain.Fragment, error)
	ListAllFragments(ctx context.Context) ([]domain.Fragment, error)
}

// ObjectStorage stores source documents.
type ObjectStorage interface {
	Save(ctx context.Context, key string, data io.Reader) error
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
}

// MessageQueue publishes/consumes ingestion events.
type MessageQueue interface {
	PublishDocumentIngested(ctx context.Context, documentID string) error
	SubscribeDocumentIngested(ctx context.Context, handler func(context.Context, string) error) error
}

// CorpusEvents fans corpus changes out to every process holding a corpus.
type CorpusEvents interface {
	PublishCorpusChanged(ctx context.Context, change domain.CorpusChange) error
	SubscribeCorpusChanged(ctx context.Context, handler func(context.Context, domain.CorpusChange) error) error
}

// TextExtractor extracts plain text from a stored document.
type TextExtractor interface {
	Extract(ctx context.Context, doc *domain.Document) (string, error)
}

// Embedder builds vectors for fragments and query text.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// Chunker splits document text into fragments carrying path metadata.
type Chunker interface {
	Chunk(documentID, text, sourcePath string) []domain.Fragment
}

// VectorStore is the dense index. Search must honor an active scope.
type VectorStore interface {
	Upsert(ctx context.Context, records []domain.VectorRecord) error
	Search(ctx context.Context, queryVector []float32, limit int, scope domain.DateScope) ([]domain.Candidate, error)
	Delete(ctx context.Context, ids []string) error
}

// CorpusIndex receives per-document corpus updates.
type CorpusIndex interface {
	AddDocument(ctx context.Context, documentID string, entries []domain.CorpusEntry) error
	RemoveDocument(ctx context.Context, documentID string) error
}

// SparseSnapshot is an immutable view of the corpus.
type SparseSnapshot interface {
	Search(query string, limit int, scope domain.DateScope) []domain.Candidate
	Dates() []string
	Len() int
	Version() uint64
	Fingerprint() string
}

// CorpusStore is the process-local corpus: per-document updates, full rebuilds,
// and atomic snapshot reads.
type CorpusStore interface {
	CorpusIndex
	Load(ctx context.Context) error
	Rebuild(ctx context.Context, entries []domain.CorpusEntry) error
	Snapshot() (SparseSnapshot, error)
}

// DateParser extracts normalized ISO dates from free text.
type DateParser interface {
	Parse(text string) []string
}

// QueryAnalyzer selects the date strategy for a question.
type QueryAnalyzer interface {
	Analyze(text string, parsed []string) domain.Analysis
}
