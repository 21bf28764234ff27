package repositories

import (
	"context"

	"docvault/internal/domain/models"
)

// TenantKeyRepository persists wrapped tenant KEKs.
//
// The active pointer row holds the current version; every version ever
// issued also lives in an append-only version table keyed by
// (tenant_id, kek_version). Historical versions are never deleted while
// revisions may still reference them.
type TenantKeyRepository interface {
	// GetActive returns the tenant's current KEK row.
	GetActive(ctx context.Context, tenantID string) (*models.TenantKey, error)

	// GetVersion returns a specific (possibly retired) KEK version.
	GetVersion(ctx context.Context, tenantID string, version int64) (*models.TenantKey, error)

	// InsertVersion appends a version row and flips the active pointer to
	// it. Must run in a transaction with the read that chose the version
	// number.
	InsertVersion(ctx context.Context, tk *models.TenantKey) error

	// ListTenants enumerates tenants that have at least one KEK.
	ListTenants(ctx context.Context) ([]string, error)
}
