// Package extractor picks a text extractor by file extension.
package extractor

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/kirillkom/shiftlog-retrieval/internal/core/domain"
	"github.com/kirillkom/shiftlog-retrieval/internal/core/ports"
	"github.com/kirillkom/shiftlog-retrieval/internal/infrastructure/extractor/pdftext"
	"github.com/kirillkom/shiftlog-retrieval/internal/infrastructure/extractor/plaintext"
	"github.com/kirillkom/shiftlog-retrieval/internal/infrastructure/extractor/spreadsheet"
)

type Router struct {
	byExt    map[string]ports.TextExtractor
	fallback ports.TextExtractor
}

// New wires plain text, xlsx and pdf extraction. Unknown extensions are read
// as plain text.
func New(storage ports.ObjectStorage) *Router {
	text := plaintext.NewExtractor(storage)
	sheet := spreadsheet.NewExtractor(storage)
	return &Router{
		byExt: map[string]ports.TextExtractor{
			".txt":  text,
			".md":   text,
			".csv":  text,
			".log":  text,
			".xlsx": sheet,
			".xlsm": sheet,
			".pdf":  pdftext.NewExtractor(storage),
		},
		fallback: text,
	}
}

func (r *Router) Extract(ctx context.Context, doc *domain.Document) (string, error) {
	if doc == nil {
		return "", domain.WrapError(domain.ErrInvalidInput, "extract text", fmt.Errorf("nil document"))
	}
	ext := strings.ToLower(filepath.Ext(doc.Filename))
	if ex, ok := r.byExt[ext]; ok {
		return ex.Extract(ctx, doc)
	}
	return r.fallback.Extract(ctx, doc)
}

// Supported reports whether filename has a dedicated extractor.
func (r *Router) Supported(filename string) bool {
	_, ok := r.byExt[strings.ToLower(filepath.Ext(filename))]
	return ok
}
