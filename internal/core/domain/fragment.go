package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strconv"
)

// Metadata is derived from the source path once, at chunk time.
type Metadata struct {
	File  string `json:"file"`
	Date  string `json:"date,omitempty"`
	Unit  string `json:"unit,omitempty"`
	Shift string `json:"shift,omitempty"`
	Page  string `json:"page,omitempty"`
}

// Fragment is the immutable retrieval unit. Start and End are rune offsets
// into the extracted document text.
type Fragment struct {
	ID         string   `json:"id"`
	DocumentID string   `json:"document_id"`
	Index      int      `json:"index"`
	Text       string   `json:"text"`
	Start      int      `json:"start"`
	End        int      `json:"end"`
	CharCount  int      `json:"char_count"`
	TokenCount int      `json:"token_count"`
	Metadata   Metadata `json:"metadata"`
}

// CorpusEntry is the sparse-index view of a fragment.
type CorpusEntry struct {
	ID         string   `json:"id"`
	DocumentID string   `json:"document_id"`
	Index      int      `json:"index"`
	Text       string   `json:"text"`
	Metadata   Metadata `json:"metadata"`
}

// VectorRecord is the dense-index view of a fragment.
type VectorRecord struct {
	ID         string
	DocumentID string
	Index      int
	Text       string
	Vector     []float32
	Metadata   Metadata
}

func (f Fragment) CorpusEntry() CorpusEntry {
	return CorpusEntry{
		ID:         f.ID,
		DocumentID: f.DocumentID,
		Index:      f.Index,
		Text:       f.Text,
		Metadata:   f.Metadata,
	}
}

func (f Fragment) VectorRecord(vector []float32) VectorRecord {
	return VectorRecord{
		ID:         f.ID,
		DocumentID: f.DocumentID,
		Index:      f.Index,
		Text:       f.Text,
		Vector:     vector,
		Metadata:   f.Metadata,
	}
}

// CorpusChangeKind tells corpus replicas how to treat a document.
type CorpusChangeKind string

const (
	CorpusDocumentIndexed CorpusChangeKind = "indexed"
	CorpusDocumentRemoved CorpusChangeKind = "removed"
)

type CorpusChange struct {
	Kind       CorpusChangeKind `json:"kind"`
	DocumentID string           `json:"document_id"`
}

// CorpusFingerprint identifies a set of corpus entries by content, in any
// order. An empty set has an empty fingerprint.
func CorpusFingerprint(entries []CorpusEntry) string {
	if len(entries) == 0 {
		return ""
	}
	order := make([]int, len(entries))
	for i := range order {
		order[i] = i
	}
	sort.Slice(order, func(a, b int) bool { return entries[order[a]].ID < entries[order[b]].ID })

	h := sha256.New()
	for _, i := range order {
		e := entries[i]
		for _, field := range []string{
			e.ID, e.DocumentID, strconv.Itoa(e.Index), e.Text,
			e.Metadata.File, e.Metadata.Date, e.Metadata.Unit, e.Metadata.Shift, e.Metadata.Page,
		} {
			h.Write([]byte(strconv.Itoa(len(field))))
			h.Write([]byte{':'})
			h.Write([]byte(field))
		}
	}
	return hex.EncodeToString(h.Sum(nil))
}
