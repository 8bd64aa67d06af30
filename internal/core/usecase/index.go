package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/kirillkom/shiftlog-retrieval/internal/core/domain"
	"github.com/kirillkom/shiftlog-retrieval/internal/core/ports"
)

const defaultEmbedBatch = 32

// IndexService derives fragments for a document and keeps the fragment
// table, the vector store and the sparse corpus in step.
type IndexService struct {
	repo      ports.DocumentRepository
	storage   ports.ObjectStorage
	chunker   ports.Chunker
	embedder  ports.Embedder
	vectors   ports.VectorStore
	corpus    ports.CorpusIndex
	batchSize int
}

func NewIndexService(
	repo ports.DocumentRepository,
	storage ports.ObjectStorage,
	chunker ports.Chunker,
	embedder ports.Embedder,
	vectors ports.VectorStore,
	corpus ports.CorpusIndex,
) *IndexService {
	return &IndexService{
		repo:      repo,
		storage:   storage,
		chunker:   chunker,
		embedder:  embedder,
		vectors:   vectors,
		corpus:    corpus,
		batchSize: defaultEmbedBatch,
	}
}

// IndexDocument (re)builds every projection of one document. Fragment ids
// are stable per document and index, so re-indexing overwrites in place and
// only surplus fragments from a longer previous version are deleted.
func (s *IndexService) IndexDocument(ctx context.Context, documentID, text, sourcePath string) error {
	if documentID == "" {
		return domain.WrapError(domain.ErrInvalidInput, "index document", errors.New("document id is required"))
	}
	fragments := s.chunker.Chunk(documentID, text, sourcePath)
	if len(fragments) == 0 {
		return domain.WrapError(domain.ErrInvalidInput, "chunk document", errors.New("chunking produced zero fragments"))
	}

	previous, err := s.repo.ListFragments(ctx, documentID)
	if err != nil {
		return fmt.Errorf("list previous fragments: %w", err)
	}

	vectors, err := s.embed(ctx, fragments)
	if err != nil {
		return err
	}

	if err := s.repo.ReplaceFragments(ctx, documentID, fragments); err != nil {
		return fmt.Errorf("store fragments: %w", err)
	}

	records := make([]domain.VectorRecord, 0, len(fragments))
	entries := make([]domain.CorpusEntry, 0, len(fragments))
	current := make(map[string]struct{}, len(fragments))
	for i, f := range fragments {
		records = append(records, f.VectorRecord(vectors[i]))
		entries = append(entries, f.CorpusEntry())
		current[f.ID] = struct{}{}
	}
	if err := s.vectors.Upsert(ctx, records); err != nil {
		return fmt.Errorf("upsert vectors: %w", err)
	}

	var stale []string
	for _, f := range previous {
		if _, ok := current[f.ID]; !ok {
			stale = append(stale, f.ID)
		}
	}
	if err := s.vectors.Delete(ctx, stale); err != nil {
		return fmt.Errorf("delete stale vectors: %w", err)
	}

	if err := s.corpus.AddDocument(ctx, documentID, entries); err != nil {
		return fmt.Errorf("update corpus: %w", err)
	}

	slog.Info("document_indexed",
		"document_id", documentID,
		"fragments", len(fragments),
		"stale_removed", len(stale),
		"date", fragments[0].Metadata.Date,
	)
	return nil
}

// RemoveDocument deletes a document and everything derived from it.
func (s *IndexService) RemoveDocument(ctx context.Context, documentID string) error {
	doc, err := s.repo.GetByID(ctx, documentID)
	if err != nil {
		return fmt.Errorf("fetch document by id: %w", err)
	}
	fragments, err := s.repo.ListFragments(ctx, documentID)
	if err != nil {
		return fmt.Errorf("list fragments: %w", err)
	}

	ids := make([]string, 0, len(fragments))
	for _, f := range fragments {
		ids = append(ids, f.ID)
	}
	if err := s.vectors.Delete(ctx, ids); err != nil {
		return fmt.Errorf("delete vectors: %w", err)
	}
	if err := s.corpus.RemoveDocument(ctx, documentID); err != nil {
		return fmt.Errorf("remove from corpus: %w", err)
	}
	if err := s.repo.Delete(ctx, documentID); err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	if s.storage != nil && doc.StoragePath != "" {
		if err := s.storage.Delete(ctx, doc.StoragePath); err != nil {
			slog.Warn("stored_document_not_removed", "document_id", documentID, "error", err)
		}
	}

	slog.Info("document_removed", "document_id", documentID, "fragments", len(ids))
	return nil
}

func (s *IndexService) embed(ctx context.Context, fragments []domain.Fragment) ([][]float32, error) {
	out := make([][]float32, 0, len(fragments))
	for start := 0; start < len(fragments); start += s.batchSize {
		end := min(start+s.batchSize, len(fragments))
		texts := make([]string, 0, end-start)
		for _, f := range fragments[start:end] {
			texts = append(texts, f.Text)
		}
		vectors, err := s.embedder.Embed(ctx, texts)
		if err != nil {
			return nil, fmt.Errorf("embed fragments: %w", err)
		}
		if len(vectors) != len(texts) {
			return nil, domain.WrapError(
				domain.ErrInvalidInput,
				"embed fragments",
				fmt.Errorf("vectors/fragments mismatch: %d/%d", len(vectors), len(texts)),
			)
		}
		out = append(out, vectors...)
	}
	return out, nil
}
