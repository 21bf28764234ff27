package models

import "time"

// Audit actions emitted by this subsystem.
const (
	AuditActionNodeDeleted    = "node.deleted"
	AuditActionKEKRotated     = "kek.rotated"
	AuditActionRewrapPass     = "kek.rewrap_pass"
	AuditActionUnwrapFailed   = "crypto.unwrap_failed"
	AuditActionAuthFailed     = "crypto.auth_failed"
	AuditActionChecksumFailed = "crypto.checksum_failed"
)

// AuditEvent is the write-only contract with the external audit sink.
// Events are immutable and never read back by this subsystem.
type AuditEvent struct {
	ID        string         `json:"id"`
	TenantID  string         `json:"tenant_id"`
	ActorID   string         `json:"actor_id"`
	Action    string         `json:"action"`
	TargetID  string         `json:"target_id"`
	Payload   map[string]any `json:"payload,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}
