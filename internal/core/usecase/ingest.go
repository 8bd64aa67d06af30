package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/shiftlog-retrieval/internal/core/domain"
	"github.com/kirillkom/shiftlog-retrieval/internal/core/ports"
)

// FormatChecker reports whether text can be extracted from a file name's
// format.
type FormatChecker interface {
	Supported(filename string) bool
}

// IngestDocumentUseCase accepts a shift report upload: the raw file goes to
// object storage, a document row is created in status uploaded and the
// worker is notified.
type IngestDocumentUseCase struct {
	repo    ports.DocumentRepository
	storage ports.ObjectStorage
	queue   ports.MessageQueue
	formats FormatChecker
	now     func() time.Time
}

// NewIngestDocumentUseCase accepts every format when formats is nil.
func NewIngestDocumentUseCase(
	repo ports.DocumentRepository,
	storage ports.ObjectStorage,
	queue ports.MessageQueue,
	formats FormatChecker,
) *IngestDocumentUseCase {
	return &IngestDocumentUseCase{
		repo:    repo,
		storage: storage,
		queue:   queue,
		formats: formats,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Upload keeps the original base filename on the document: it is the only
// place a report's date, unit and shift are written down.
func (uc *IngestDocumentUseCase) Upload(ctx context.Context, filename, mimeType, owner string, body io.Reader) (*domain.Document, error) {
	const op = "upload document"

	filename = strings.TrimSpace(path.Base(strings.ReplaceAll(filename, "\\", "/")))
	if filename == "" || filename == "." || filename == "/" {
		return nil, domain.WrapError(domain.ErrInvalidInput, op, errors.New("filename is required"))
	}
	if uc.formats != nil && !uc.formats.Supported(filename) {
		return nil, domain.WrapError(domain.ErrInvalidInput, op, fmt.Errorf("unsupported file format %q", path.Ext(filename)))
	}
	if strings.TrimSpace(mimeType) == "" || mimeType == "application/octet-stream" {
		if guessed := mime.TypeByExtension(strings.ToLower(path.Ext(filename))); guessed != "" {
			mimeType = guessed
		}
	}

	now := uc.now()
	doc := &domain.Document{
		ID:        uuid.NewString(),
		Filename:  filename,
		MimeType:  mimeType,
		Owner:     strings.TrimSpace(owner),
		Status:    domain.StatusUploaded,
		CreatedAt: now,
		UpdatedAt: now,
	}
	doc.StoragePath = storageKey(doc.ID, filename)

	if err := uc.storage.Save(ctx, doc.StoragePath, body); err != nil {
		return nil, fmt.Errorf("save to object storage: %w", err)
	}
	if err := uc.repo.Create(ctx, doc); err != nil {
		if delErr := uc.storage.Delete(ctx, doc.StoragePath); delErr != nil {
			slog.Warn("orphaned_upload", "storage_path", doc.StoragePath, "error", delErr)
		}
		return nil, fmt.Errorf("create document metadata: %w", err)
	}

	if err := uc.queue.PublishDocumentIngested(ctx, doc.ID); err != nil {
		// The row stays so the upload can be inspected and retried.
		if markErr := uc.repo.UpdateStatus(ctx, doc.ID, domain.StatusFailed, "ingest event not published: "+err.Error()); markErr != nil {
			slog.Warn("mark_failed_upload", "document_id", doc.ID, "error", markErr)
		}
		return nil, fmt.Errorf("publish ingestion event: %w", err)
	}

	slog.Info("document_uploaded", "document_id", doc.ID, "filename", filename, "owner", doc.Owner)
	return doc, nil
}

// storageKey prefixes the document id to an ASCII-only copy of the name.
func storageKey(id, filename string) string {
	return id + "_" + sanitizeFilename(filename)
}

func sanitizeFilename(name string) string {
	var b strings.Builder
	b.Grow(len(name))
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '.' || r == '-' || r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	if b.Len() == 0 {
		return "document.bin"
	}
	return b.String()
}
