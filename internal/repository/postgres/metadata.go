package postgres

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"

	"docvault/internal/domain"
	"docvault/internal/domain/models"
	"docvault/internal/domain/repositories"
)

// PostgresMetadataRepository implements the MetadataRepository interface
type PostgresMetadataRepository struct {
	pool   *pgxpool.Pool
	tables *TableNames
	logger *slog.Logger
}

// NewMetadataRepository creates a new metadata repository
func NewMetadataRepository(config *RepositoryConfig) repositories.MetadataRepository {
	return &PostgresMetadataRepository{
		pool:   config.Pool,
		tables: config.Tables,
		logger: config.Logger,
	}
}

// Create inserts the initial metadata row for a document
func (r *PostgresMetadataRepository) Create(ctx context.Context, md *models.Metadata) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (document_id, tags, is_published, version, last_indexed_at)
		VALUES ($1, $2, $3, $4, $5)
	`, r.tables.Metadata)

	executor := GetExecutor(ctx, r.pool)
	if _, err := executor.Exec(ctx, query, md.DocumentID, md.Tags, md.IsPublished, md.Version, md.LastIndexedAt); err != nil {
		if IsPgDuplicateError(err) {
			return &domain.ConflictError{
				Message:      fmt.Sprintf("metadata for document %s already exists", md.DocumentID),
				ResourceType: "metadata",
				ResourceID:   md.DocumentID,
			}
		}
		return fmt.Errorf("create metadata: %w", err)
	}
	return nil
}

// Get fetches a document's metadata
func (r *PostgresMetadataRepository) Get(ctx context.Context, documentID string) (*models.Metadata, error) {
	query := fmt.Sprintf(`
		SELECT document_id, tags, is_published, version, last_indexed_at
		FROM %s WHERE document_id = $1
	`, r.tables.Metadata)

	var md models.Metadata
	executor := GetExecutor(ctx, r.pool)
	err := executor.QueryRow(ctx, query, documentID).Scan(
		&md.DocumentID,
		&md.Tags,
		&md.IsPublished,
		&md.Version,
		&md.LastIndexedAt,
	)
	if err != nil {
		if IsPgNoRowsError(err) {
			return nil, fmt.Errorf("metadata for document %s: %w", documentID, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("get metadata: %w", err)
	}
	return &md, nil
}

// Update replaces tags/is_published with a version check
func (r *PostgresMetadataRepository) Update(ctx context.Context, documentID string, tags []string, isPublished bool, expectedVersion int64) (*models.Metadata, error) {
	query := fmt.Sprintf(`
		UPDATE %s SET tags = $1, is_published = $2, version = version + 1
		WHERE document_id = $3 AND version = $4
		RETURNING document_id, tags, is_published, version, last_indexed_at
	`, r.tables.Metadata)

	var md models.Metadata
	executor := GetExecutor(ctx, r.pool)
	err := executor.QueryRow(ctx, query, tags, isPublished, documentID, expectedVersion).Scan(
		&md.DocumentID,
		&md.Tags,
		&md.IsPublished,
		&md.Version,
		&md.LastIndexedAt,
	)
	if err != nil {
		if IsPgNoRowsError(err) {
			if _, getErr := r.Get(ctx, documentID); getErr != nil {
				return nil, getErr
			}
			return nil, &domain.VersionConflictError{
				ResourceType: "metadata",
				ResourceID:   documentID,
				Expected:     expectedVersion,
			}
		}
		return nil, fmt.Errorf("update metadata: %w", err)
	}
	return &md, nil
}

// DeleteByDocuments removes metadata rows for the given documents
func (r *PostgresMetadataRepository) DeleteByDocuments(ctx context.Context, documentIDs []string) error {
	if len(documentIDs) == 0 {
		return nil
	}
	query := fmt.Sprintf(`DELETE FROM %s WHERE document_id = ANY($1)`, r.tables.Metadata)

	executor := GetExecutor(ctx, r.pool)
	if _, err := executor.Exec(ctx, query, documentIDs); err != nil {
		return fmt.Errorf("delete metadata: %w", err)
	}
	return nil
}
