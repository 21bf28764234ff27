package repositories

import (
	"context"

	"docvault/internal/domain/models"
)

// StaleRevision is the projection the rotation worker scans: enough to
// re-wrap the DEK without ever loading ciphertext.
type StaleRevision struct {
	ID            string
	DocumentID    string
	RevisionNo    int64
	DEKCiphertext []byte
	KEKVersion    int64
}

// RevisionRepository persists the append-only revision ledger.
type RevisionRepository interface {
	// Insert appends a revision, assigning the next gapless revision_no for
	// the document. Must run inside the transaction that bumped the owning
	// node's version: the node row lock serializes concurrent appenders.
	Insert(ctx context.Context, rev *models.Revision) error

	// GetByNo fetches one revision including ciphertext.
	GetByNo(ctx context.Context, documentID string, revisionNo int64) (*models.Revision, error)

	// GetLatest fetches the highest-numbered revision for a document.
	GetLatest(ctx context.Context, documentID string) (*models.Revision, error)

	// List returns revision metadata (no ciphertext) ordered by revision_no
	// descending.
	List(ctx context.Context, documentID string) ([]models.Revision, error)

	// ListStale returns up to limit revisions belonging to the tenant whose
	// kek_version is older than activeVersion, never a full-table scan.
	ListStale(ctx context.Context, tenantID string, activeVersion int64, limit int) ([]StaleRevision, error)

	// UpdateWrappedDEK replaces the wrapped-DEK columns iff the row still
	// carries oldVersion. Returns false when another pass already rewrapped
	// the row, which makes retries idempotent.
	UpdateWrappedDEK(ctx context.Context, id string, oldVersion int64, dekCiphertext []byte, newVersion int64) (bool, error)

	// DeleteByDocuments removes all revisions owned by the given documents.
	// Used only by cascading node deletion.
	DeleteByDocuments(ctx context.Context, documentIDs []string) error
}
