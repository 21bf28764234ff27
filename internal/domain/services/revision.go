package services

import (
	"context"
	"io"

	"docvault/internal/domain/models"
)

// RevisionService handles the encrypted revision ledger
type RevisionService interface {
	// AppendRevision encrypts content from the request's reader and
	// appends it as a new revision, bumping the owning node's version.
	// Exactly one of two concurrent appends with the same expected
	// version succeeds; the loser gets the version-conflict sentinel and
	// nothing is persisted.
	AppendRevision(ctx context.Context, req *AppendRevisionRequest) (*models.Revision, error)

	// GetRevision returns the decrypted plaintext stream and revision
	// metadata. revisionNo <= 0 selects the latest revision. The returned
	// reader verifies chunk authentication while streaming and the content
	// checksum at EOF.
	GetRevision(ctx context.Context, tenantID, documentID string, revisionNo int64) (io.Reader, *models.Revision, error)

	// ListRevisions returns revision metadata newest-first, without
	// ciphertext.
	ListRevisions(ctx context.Context, tenantID, documentID string) ([]models.Revision, error)
}

// AppendRevisionRequest represents a content write
type AppendRevisionRequest struct {
	TenantID        string
	DocumentID      string
	ExpectedVersion int64
	Content         io.Reader
	ContentType     string
	CreatedBy       string
}
