package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/kirillkom/shiftlog-retrieval/internal/core/domain"
	"github.com/kirillkom/shiftlog-retrieval/internal/core/ports"
)

// ProcessDocumentUseCase is the worker side of an upload: extract the report
// text, then hand it to the indexer. Status moves processing -> ready|failed.
type ProcessDocumentUseCase struct {
	repo      ports.DocumentRepository
	extractor ports.TextExtractor
	indexer   ports.DocumentIndexer
}

func NewProcessDocumentUseCase(
	repo ports.DocumentRepository,
	extractor ports.TextExtractor,
	indexer ports.DocumentIndexer,
) *ProcessDocumentUseCase {
	return &ProcessDocumentUseCase{
		repo:      repo,
		extractor: extractor,
		indexer:   indexer,
	}
}

// ProcessByID is safe to call again for the same document: a report already
// ready is skipped and one deleted in the meantime is dropped.
func (uc *ProcessDocumentUseCase) ProcessByID(ctx context.Context, documentID string) error {
	doc, err := uc.repo.GetByID(ctx, documentID)
	if domain.IsKind(err, domain.ErrDocumentNotFound) {
		slog.Info("document_gone_before_processing", "document_id", documentID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("fetch document by id: %w", err)
	}
	if doc.Status == domain.StatusReady {
		slog.Info("document_already_ready", "document_id", documentID)
		return nil
	}

	if err := uc.repo.UpdateStatus(ctx, doc.ID, domain.StatusProcessing, ""); err != nil {
		return fmt.Errorf("set status=processing: %w", err)
	}

	if stage, err := uc.run(ctx, doc); err != nil {
		err = fmt.Errorf("%s: %w", stage, err)
		if markErr := uc.repo.UpdateStatus(ctx, doc.ID, domain.StatusFailed, err.Error()); markErr != nil {
			return errors.Join(err, fmt.Errorf("set status=failed: %w", markErr))
		}
		return err
	}

	if err := uc.repo.UpdateStatus(ctx, doc.ID, domain.StatusReady, ""); err != nil {
		return fmt.Errorf("set status=ready: %w", err)
	}
	return nil
}

// run returns the failing stage name with its error.
func (uc *ProcessDocumentUseCase) run(ctx context.Context, doc *domain.Document) (string, error) {
	text, err := uc.extractor.Extract(ctx, doc)
	if err != nil {
		return "extract text", err
	}
	if strings.TrimSpace(text) == "" {
		return "extract text", domain.WrapError(domain.ErrInvalidInput, "extract text", errors.New("no text in report"))
	}

	// The original filename carries the report date, unit and shift.
	if err := uc.indexer.IndexDocument(ctx, doc.ID, text, doc.Filename); err != nil {
		return "index document", err
	}
	return "", nil
}
