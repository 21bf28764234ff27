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

// PostgresTenantKeyRepository implements the TenantKeyRepository interface
type PostgresTenantKeyRepository struct {
	pool   *pgxpool.Pool
	tables *TableNames
	logger *slog.Logger
}

// NewTenantKeyRepository creates a new tenant key repository
func NewTenantKeyRepository(config *RepositoryConfig) repositories.TenantKeyRepository {
	return &PostgresTenantKeyRepository{
		pool:   config.Pool,
		tables: config.Tables,
		logger: config.Logger,
	}
}

// GetActive returns the tenant's current KEK row
func (r *PostgresTenantKeyRepository) GetActive(ctx context.Context, tenantID string) (*models.TenantKey, error) {
	query := fmt.Sprintf(`
		SELECT tenant_id, kek_ciphertext, kek_version, created_at, rotated_at
		FROM %s WHERE tenant_id = $1
	`, r.tables.TenantKeys)

	var tk models.TenantKey
	executor := GetExecutor(ctx, r.pool)
	err := executor.QueryRow(ctx, query, tenantID).Scan(
		&tk.TenantID,
		&tk.KEKCiphertext,
		&tk.KEKVersion,
		&tk.CreatedAt,
		&tk.RotatedAt,
	)
	if err != nil {
		if IsPgNoRowsError(err) {
			return nil, fmt.Errorf("tenant key for %s: %w", tenantID, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("get active tenant key: %w", err)
	}
	return &tk, nil
}

// GetVersion returns a specific (possibly retired) KEK version
func (r *PostgresTenantKeyRepository) GetVersion(ctx context.Context, tenantID string, version int64) (*models.TenantKey, error) {
	query := fmt.Sprintf(`
		SELECT tenant_id, kek_ciphertext, kek_version, created_at
		FROM %s WHERE tenant_id = $1 AND kek_version = $2
	`, r.tables.TenantKeyVersions)

	var tk models.TenantKey
	executor := GetExecutor(ctx, r.pool)
	err := executor.QueryRow(ctx, query, tenantID, version).Scan(
		&tk.TenantID,
		&tk.KEKCiphertext,
		&tk.KEKVersion,
		&tk.CreatedAt,
	)
	if err != nil {
		if IsPgNoRowsError(err) {
			return nil, fmt.Errorf("tenant key version %d for %s: %w", version, tenantID, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("get tenant key version: %w", err)
	}
	return &tk, nil
}

// InsertVersion appends a version row and flips the active pointer. The
// version table is append-only: retired versions stay unwrappable until all
// revisions have migrated off them.
func (r *PostgresTenantKeyRepository) InsertVersion(ctx context.Context, tk *models.TenantKey) error {
	executor := GetExecutor(ctx, r.pool)

	versionQuery := fmt.Sprintf(`
		INSERT INTO %s (tenant_id, kek_version, kek_ciphertext, created_at)
		VALUES ($1, $2, $3, $4)
	`, r.tables.TenantKeyVersions)

	if _, err := executor.Exec(ctx, versionQuery, tk.TenantID, tk.KEKVersion, tk.KEKCiphertext, tk.CreatedAt); err != nil {
		if IsPgDuplicateError(err) {
			return &domain.ConflictError{
				Message:      fmt.Sprintf("kek version %d for tenant %s already exists", tk.KEKVersion, tk.TenantID),
				ResourceType: "tenant_key",
				ResourceID:   tk.TenantID,
			}
		}
		return fmt.Errorf("insert tenant key version: %w", err)
	}

	activeQuery := fmt.Sprintf(`
		INSERT INTO %s (tenant_id, kek_ciphertext, kek_version, created_at, rotated_at)
		VALUES ($1, $2, $3, $4, NULL)
		ON CONFLICT (tenant_id) DO UPDATE
		SET kek_ciphertext = EXCLUDED.kek_ciphertext,
		    kek_version = EXCLUDED.kek_version,
		    rotated_at = now()
	`, r.tables.TenantKeys)

	if _, err := executor.Exec(ctx, activeQuery, tk.TenantID, tk.KEKCiphertext, tk.KEKVersion, tk.CreatedAt); err != nil {
		return fmt.Errorf("update active tenant key: %w", err)
	}
	return nil
}

// ListTenants enumerates tenants with at least one KEK
func (r *PostgresTenantKeyRepository) ListTenants(ctx context.Context) ([]string, error) {
	query := fmt.Sprintf(`SELECT tenant_id FROM %s ORDER BY tenant_id`, r.tables.TenantKeys)

	executor := GetExecutor(ctx, r.pool)
	rows, err := executor.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list tenants: %w", err)
	}
	defer rows.Close()

	var tenants []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan tenant id: %w", err)
		}
		tenants = append(tenants, id)
	}
	return tenants, rows.Err()
}
