package repositories

import (
	"context"

	"docvault/internal/domain/models"
)

// MetadataRepository persists the mutable document side-table.
type MetadataRepository interface {
	// Create inserts the initial metadata row for a new document.
	Create(ctx context.Context, md *models.Metadata) error

	// Get fetches a document's metadata.
	Get(ctx context.Context, documentID string) (*models.Metadata, error)

	// Update replaces tags/is_published iff the stored version equals
	// expectedVersion, bumping the counter. Independent of the node's
	// version: tagging never conflicts with content writes.
	Update(ctx context.Context, documentID string, tags []string, isPublished bool, expectedVersion int64) (*models.Metadata, error)

	// DeleteByDocuments removes metadata rows for the given documents.
	DeleteByDocuments(ctx context.Context, documentIDs []string) error
}
