package models

import "time"

// TenantKey is tenant-scoped KEK metadata. KEKCiphertext is the KEK wrapped
// by the root key custodian; the raw KEK never reaches persistent storage.
//
// Exactly one version is active per tenant at any time. Superseded versions
// are retained in an append-only version table so that DEKs wrapped under
// them remain unwrappable until the rotation worker has migrated every
// revision.
type TenantKey struct {
	TenantID      string     `json:"tenant_id" db:"tenant_id"`
	KEKCiphertext []byte     `json:"-" db:"kek_ciphertext"`
	KEKVersion    int64      `json:"kek_version" db:"kek_version"`
	CreatedAt     time.Time  `json:"created_at" db:"created_at"`
	RotatedAt     *time.Time `json:"rotated_at,omitempty" db:"rotated_at"`
}
