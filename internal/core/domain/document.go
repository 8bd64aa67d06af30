package domain

import "time"

type DocumentStatus string

const (
	StatusUploaded   DocumentStatus = "uploaded"
	StatusProcessing DocumentStatus = "processing"
	StatusReady      DocumentStatus = "ready"
	StatusFailed     DocumentStatus = "failed"
)

// Document is an uploaded report. Fragments, vector records and corpus
// entries are all derived from it and go away with it.
type Document struct {
	ID            string         `json:"id"`
	Filename      string         `json:"filename"`
	MimeType      string         `json:"mime_type"`
	Owner         string         `json:"owner,omitempty"`
	StoragePath   string         `json:"storage_path"`
	Status        DocumentStatus `json:"status"`
	Error         string         `json:"error,omitempty"`
	FragmentCount int            `json:"fragment_count"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
}
