package chunking

import (
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/kirillkom/shiftlog-retrieval/internal/core/domain"
)

// fragmentNamespace keeps fragment ids stable across re-indexing so vector
// points are overwritten instead of duplicated.
var fragmentNamespace = uuid.MustParse("6f1d3b52-8c0e-4f43-9a3c-2f4f3d9c7a10")

type MetadataExtractor interface {
	Extract(path string) domain.Metadata
}

// Chunker turns extracted document text into fragments that all carry the
// metadata derived from the source path.
type Chunker struct {
	splitter  *Splitter
	extractor MetadataExtractor
}

func NewChunker(splitter *Splitter, extractor MetadataExtractor) *Chunker {
	return &Chunker{splitter: splitter, extractor: extractor}
}

func (c *Chunker) Chunk(documentID, text, sourcePath string) []domain.Fragment {
	spans := c.splitter.Split(text)
	if len(spans) == 0 {
		return nil
	}

	meta := domain.Metadata{File: sourcePath}
	if c.extractor != nil {
		meta = c.extractor.Extract(sourcePath)
	}

	runes := []rune(text)
	out := make([]domain.Fragment, 0, len(spans))
	for i, sp := range spans {
		chunk := string(runes[sp.Start:sp.End])
		out = append(out, domain.Fragment{
			ID:         FragmentID(documentID, i),
			DocumentID: documentID,
			Index:      i,
			Text:       chunk,
			Start:      sp.Start,
			End:        sp.End,
			CharCount:  utf8.RuneCountInString(chunk),
			TokenCount: len(strings.Fields(chunk)),
			Metadata:   meta,
		})
	}
	return out
}

// FragmentID derives a deterministic UUID for a document's i-th fragment.
func FragmentID(documentID string, index int) string {
	return uuid.NewSHA1(fragmentNamespace, []byte(documentID+":"+strconv.Itoa(index))).String()
}
