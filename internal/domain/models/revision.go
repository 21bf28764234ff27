package models

import "time"

// Revision is one immutable encrypted snapshot of a document's content.
//
// Revisions are append-only: rows are never mutated after creation except
// for the wrapped-DEK columns (DEKCiphertext, KEKVersion), which the
// rotation worker rewrites without ever touching Ciphertext. RevisionNo is
// gapless and strictly increasing per document, starting at 1.
type Revision struct {
	ID            string    `json:"id" db:"id"`
	DocumentID    string    `json:"document_id" db:"document_id"`
	RevisionNo    int64     `json:"revision_no" db:"revision_no"`
	Ciphertext    []byte    `json:"-" db:"ciphertext"`
	DEKCiphertext []byte    `json:"-" db:"dek_ciphertext"` // DEK wrapped under KEKVersion
	KEKVersion    int64     `json:"kek_version" db:"kek_version"`
	NonceBase     []byte    `json:"-" db:"nonce_base"`
	Checksum      string    `json:"checksum" db:"checksum"` // sha256 of plaintext, hex
	SizeBytes     int64     `json:"size_bytes" db:"size_bytes"`
	ContentType   string    `json:"content_type" db:"content_type"`
	CreatedBy     string    `json:"created_by" db:"created_by"`
	CreatedAt     time.Time `json:"created_at" db:"created_at"`
}
