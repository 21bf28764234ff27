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

// PostgresRevisionRepository implements the RevisionRepository interface
type PostgresRevisionRepository struct {
	pool   *pgxpool.Pool
	tables *TableNames
	logger *slog.Logger
}

// NewRevisionRepository creates a new revision repository
func NewRevisionRepository(config *RepositoryConfig) repositories.RevisionRepository {
	return &PostgresRevisionRepository{
		pool:   config.Pool,
		tables: config.Tables,
		logger: config.Logger,
	}
}

// Insert appends a revision with the next gapless revision_no. The caller
// must already hold the owning node's row lock (via CompareAndBumpVersion in
// the same transaction), which serializes concurrent appenders per document.
func (r *PostgresRevisionRepository) Insert(ctx context.Context, rev *models.Revision) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (id, document_id, revision_no, ciphertext, dek_ciphertext, kek_version,
		                nonce_base, checksum, size_bytes, content_type, created_by, created_at)
		VALUES ($1, $2,
		        (SELECT COALESCE(MAX(revision_no), 0) + 1 FROM %s WHERE document_id = $2),
		        $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING revision_no, created_at
	`, r.tables.Revisions, r.tables.Revisions)

	executor := GetExecutor(ctx, r.pool)
	err := executor.QueryRow(ctx, query,
		rev.ID,
		rev.DocumentID,
		rev.Ciphertext,
		rev.DEKCiphertext,
		rev.KEKVersion,
		rev.NonceBase,
		rev.Checksum,
		rev.SizeBytes,
		rev.ContentType,
		rev.CreatedBy,
		rev.CreatedAt,
	).Scan(&rev.RevisionNo, &rev.CreatedAt)

	if err != nil {
		return fmt.Errorf("insert revision: %w", err)
	}
	return nil
}

const revisionColumns = "id, document_id, revision_no, ciphertext, dek_ciphertext, kek_version, nonce_base, checksum, size_bytes, content_type, created_by, created_at"

// GetByNo fetches one revision including ciphertext
func (r *PostgresRevisionRepository) GetByNo(ctx context.Context, documentID string, revisionNo int64) (*models.Revision, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM %s WHERE document_id = $1 AND revision_no = $2
	`, revisionColumns, r.tables.Revisions)

	return r.getOne(ctx, query, documentID, revisionNo)
}

// GetLatest fetches the highest-numbered revision for a document
func (r *PostgresRevisionRepository) GetLatest(ctx context.Context, documentID string) (*models.Revision, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM %s WHERE document_id = $1
		ORDER BY revision_no DESC LIMIT 1
	`, revisionColumns, r.tables.Revisions)

	return r.getOne(ctx, query, documentID)
}

func (r *PostgresRevisionRepository) getOne(ctx context.Context, query string, args ...interface{}) (*models.Revision, error) {
	var rev models.Revision
	executor := GetExecutor(ctx, r.pool)
	err := executor.QueryRow(ctx, query, args...).Scan(
		&rev.ID,
		&rev.DocumentID,
		&rev.RevisionNo,
		&rev.Ciphertext,
		&rev.DEKCiphertext,
		&rev.KEKVersion,
		&rev.NonceBase,
		&rev.Checksum,
		&rev.SizeBytes,
		&rev.ContentType,
		&rev.CreatedBy,
		&rev.CreatedAt,
	)
	if err != nil {
		if IsPgNoRowsError(err) {
			return nil, fmt.Errorf("revision: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("get revision: %w", err)
	}
	return &rev, nil
}

// List returns revision metadata without ciphertext, newest first
func (r *PostgresRevisionRepository) List(ctx context.Context, documentID string) ([]models.Revision, error) {
	query := fmt.Sprintf(`
		SELECT id, document_id, revision_no, kek_version, checksum, size_bytes, content_type, created_by, created_at
		FROM %s WHERE document_id = $1
		ORDER BY revision_no DESC
	`, r.tables.Revisions)

	executor := GetExecutor(ctx, r.pool)
	rows, err := executor.Query(ctx, query, documentID)
	if err != nil {
		return nil, fmt.Errorf("list revisions: %w", err)
	}
	defer rows.Close()

	var revs []models.Revision
	for rows.Next() {
		var rev models.Revision
		if err := rows.Scan(
			&rev.ID,
			&rev.DocumentID,
			&rev.RevisionNo,
			&rev.KEKVersion,
			&rev.Checksum,
			&rev.SizeBytes,
			&rev.ContentType,
			&rev.CreatedBy,
			&rev.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan revision: %w", err)
		}
		revs = append(revs, rev)
	}
	return revs, rows.Err()
}

// ListStale returns revisions still wrapped under a KEK older than
// activeVersion, bounded by limit. Ciphertext is never loaded.
func (r *PostgresRevisionRepository) ListStale(ctx context.Context, tenantID string, activeVersion int64, limit int) ([]repositories.StaleRevision, error) {
	query := fmt.Sprintf(`
		SELECT r.id, r.document_id, r.revision_no, r.dek_ciphertext, r.kek_version
		FROM %s r
		JOIN %s n ON n.id = r.document_id
		WHERE n.tenant_id = $1 AND r.kek_version < $2
		ORDER BY r.kek_version, r.id
		LIMIT $3
	`, r.tables.Revisions, r.tables.Nodes)

	executor := GetExecutor(ctx, r.pool)
	rows, err := executor.Query(ctx, query, tenantID, activeVersion, limit)
	if err != nil {
		return nil, fmt.Errorf("list stale revisions: %w", err)
	}
	defer rows.Close()

	var stale []repositories.StaleRevision
	for rows.Next() {
		var s repositories.StaleRevision
		if err := rows.Scan(&s.ID, &s.DocumentID, &s.RevisionNo, &s.DEKCiphertext, &s.KEKVersion); err != nil {
			return nil, fmt.Errorf("scan stale revision: %w", err)
		}
		stale = append(stale, s)
	}
	return stale, rows.Err()
}

// UpdateWrappedDEK rewrites the wrapped-DEK columns iff kek_version still
// matches oldVersion. A row already rewrapped by a racing pass is skipped.
func (r *PostgresRevisionRepository) UpdateWrappedDEK(ctx context.Context, id string, oldVersion int64, dekCiphertext []byte, newVersion int64) (bool, error) {
	query := fmt.Sprintf(`
		UPDATE %s SET dek_ciphertext = $1, kek_version = $2
		WHERE id = $3 AND kek_version = $4
	`, r.tables.Revisions)

	executor := GetExecutor(ctx, r.pool)
	tag, err := executor.Exec(ctx, query, dekCiphertext, newVersion, id, oldVersion)
	if err != nil {
		return false, fmt.Errorf("update wrapped dek: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// DeleteByDocuments removes all revisions owned by the given documents
func (r *PostgresRevisionRepository) DeleteByDocuments(ctx context.Context, documentIDs []string) error {
	if len(documentIDs) == 0 {
		return nil
	}
	query := fmt.Sprintf(`DELETE FROM %s WHERE document_id = ANY($1)`, r.tables.Revisions)

	executor := GetExecutor(ctx, r.pool)
	if _, err := executor.Exec(ctx, query, documentIDs); err != nil {
		return fmt.Errorf("delete revisions: %w", err)
	}
	return nil
}
