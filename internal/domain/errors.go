package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors - use with errors.Is()
var (
	ErrNotFound        = errors.New("not found")
	ErrConflict        = errors.New("already exists")
	ErrValidation      = errors.New("validation failed")
	ErrVersionConflict = errors.New("version conflict")
	ErrCycleRejected   = errors.New("move would create a cycle")
	ErrNotEmpty        = errors.New("node has children")

	ErrUnwrap                 = errors.New("key unwrap failed")
	ErrAuthentication         = errors.New("ciphertext authentication failed")
	ErrIntegrity              = errors.New("content checksum mismatch")
	ErrKeyProviderUnavailable = errors.New("key provider unavailable")
)

// ConflictError represents a resource conflict with details about the existing resource
type ConflictError struct {
	Message      string
	ResourceType string // node, revision, tenant_key
	ResourceID   string
}

func (e *ConflictError) Error() string { return e.Message }

// Is allows errors.Is() to match against ErrConflict
func (e *ConflictError) Is(target error) bool { return target == ErrConflict }

// VersionConflictError is returned when an optimistic-lock precondition fails.
// Callers are expected to re-read the entity and retry.
type VersionConflictError struct {
	ResourceType string
	ResourceID   string
	Expected     int64
}

func (e *VersionConflictError) Error() string {
	return fmt.Sprintf("%s %s: expected version %d is stale", e.ResourceType, e.ResourceID, e.Expected)
}

func (e *VersionConflictError) Is(target error) bool { return target == ErrVersionConflict }

// UnwrapError indicates a wrapped DEK or KEK could not be decrypted.
// Never retried automatically: a failed unwrap may indicate tampering.
type UnwrapError struct {
	TenantID   string
	KEKVersion int64
	Err        error
}

func (e *UnwrapError) Error() string {
	return fmt.Sprintf("unwrap with kek version %d for tenant %s: %v", e.KEKVersion, e.TenantID, e.Err)
}

func (e *UnwrapError) Is(target error) bool { return target == ErrUnwrap }
func (e *UnwrapError) Unwrap() error        { return e.Err }

// AuthenticationError indicates an encrypted chunk failed AEAD verification.
type AuthenticationError struct {
	Chunk int64
	Err   error
}

func (e *AuthenticationError) Error() string {
	return fmt.Sprintf("chunk %d failed authentication: %v", e.Chunk, e.Err)
}

func (e *AuthenticationError) Is(target error) bool { return target == ErrAuthentication }
func (e *AuthenticationError) Unwrap() error        { return e.Err }

// IntegrityError indicates the content digest recomputed from decrypted
// plaintext did not match the stored checksum. Distinct from AEAD failure:
// this catches logical corruption (e.g. a storage-layer bit flip in the
// checksum column) even when every chunk authenticated.
type IntegrityError struct {
	RevisionID string
	Expected   string
	Actual     string
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("revision %s: computed checksum %s does not match stored %s", e.RevisionID, e.Actual, e.Expected)
}

func (e *IntegrityError) Is(target error) bool { return target == ErrIntegrity }

// KeyProviderUnavailableError indicates the key custodian could not be
// reached. Retryable with backoff, unlike UnwrapError.
type KeyProviderUnavailableError struct {
	Backend string
	Err     error
}

func (e *KeyProviderUnavailableError) Error() string {
	return fmt.Sprintf("key provider %s unavailable: %v", e.Backend, e.Err)
}

func (e *KeyProviderUnavailableError) Is(target error) bool {
	return target == ErrKeyProviderUnavailable
}

func (e *KeyProviderUnavailableError) Unwrap() error { return e.Err }
