package corpus

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/kirillkom/shiftlog-retrieval/internal/core/domain"
)

const (
	opAdd    = "add"
	opRemove = "remove"

	maxLineBytes = 4 << 20
)

type record struct {
	Op         string              `json:"op"`
	DocumentID string              `json:"document_id"`
	Entry      *domain.CorpusEntry `json:"entry,omitempty"`
}

// Log is the durable, append-only JSONL form of the corpus. Replaying it
// yields the live entries per document; Rewrite compacts it.
type Log struct {
	path string
}

func NewLog(path string) *Log {
	if path == "" {
		path = "./data/corpus/corpus.jsonl"
	}
	return &Log{path: path}
}

func (l *Log) Path() string {
	return l.path
}

func (l *Log) Append(records []record) error {
	if len(records) == 0 {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return fmt.Errorf("create corpus dir: %w", err)
	}
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open corpus log: %w", err)
	}
	defer f.Close()

	if err := writeRecords(f, records); err != nil {
		return err
	}
	if err := f.Sync(); err != nil {
		return fmt.Errorf("sync corpus log: %w", err)
	}
	return nil
}

// Replay reads the whole log. A missing file or an undecodable line makes the
// corpus unavailable until it is rebuilt.
func (l *Log) Replay() (map[string][]domain.CorpusEntry, error) {
	f, err := os.Open(l.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, domain.WrapError(domain.ErrCorpusUnavailable, "replay corpus log", err)
		}
		return nil, fmt.Errorf("open corpus log: %w", err)
	}
	defer f.Close()

	live := make(map[string][]domain.CorpusEntry)
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	line := 0
	for scanner.Scan() {
		line++
		raw := scanner.Bytes()
		if len(raw) == 0 {
			continue
		}
		var rec record
		if err := json.Unmarshal(raw, &rec); err != nil {
			return nil, domain.WrapError(domain.ErrCorpusUnavailable, "replay corpus log", fmt.Errorf("line %d: %w", line, err))
		}
		switch rec.Op {
		case opAdd:
			if rec.Entry == nil || rec.Entry.ID == "" {
				return nil, domain.WrapError(domain.ErrCorpusUnavailable, "replay corpus log", fmt.Errorf("line %d: add without entry", line))
			}
			live[rec.DocumentID] = append(live[rec.DocumentID], *rec.Entry)
		case opRemove:
			delete(live, rec.DocumentID)
		default:
			return nil, domain.WrapError(domain.ErrCorpusUnavailable, "replay corpus log", fmt.Errorf("line %d: unknown op %q", line, rec.Op))
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, domain.WrapError(domain.ErrCorpusUnavailable, "replay corpus log", err)
	}
	return live, nil
}

// Rewrite replaces the log with add records for the live entries only.
func (l *Log) Rewrite(live map[string][]domain.CorpusEntry) error {
	dir := filepath.Dir(l.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create corpus dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(l.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create corpus temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	docIDs := make([]string, 0, len(live))
	for id := range live {
		docIDs = append(docIDs, id)
	}
	sort.Strings(docIDs)

	records := make([]record, 0, len(docIDs))
	for _, id := range docIDs {
		for i := range live[id] {
			records = append(records, record{Op: opAdd, DocumentID: id, Entry: &live[id][i]})
		}
	}
	if err := writeRecords(tmp, records); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("sync corpus temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close corpus temp file: %w", err)
	}
	if err := os.Rename(tmpPath, l.path); err != nil {
		return fmt.Errorf("replace corpus log: %w", err)
	}
	return nil
}

func writeRecords(f *os.File, records []record) error {
	w := bufio.NewWriter(f)
	enc := json.NewEncoder(w)
	for _, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return fmt.Errorf("encode corpus record: %w", err)
		}
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("write corpus log: %w", err)
	}
	return nil
}
