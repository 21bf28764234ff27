package models

import "time"

// Metadata is the mutable, non-secret side-table entry for a document.
// It carries its own optimistic-concurrency counter, independent of the
// node's: tagging a document does not create a content revision and must
// not conflict with concurrent content writes.
type Metadata struct {
	DocumentID    string     `json:"document_id" db:"document_id"`
	Tags          []string   `json:"tags" db:"tags"`
	IsPublished   bool       `json:"is_published" db:"is_published"`
	Version       int64      `json:"version" db:"version"`
	LastIndexedAt *time.Time `json:"last_indexed_at,omitempty" db:"last_indexed_at"` // reserved for the indexing collaborator
}
