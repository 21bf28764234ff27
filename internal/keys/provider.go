// Package keys manages tenant key-encryption-keys. KEKs live wrapped in
// the tenant key tables; the raw bytes exist only transiently, unwrapped by
// a pluggable root custodian.
package keys

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"docvault/internal/audit"
	"docvault/internal/crypto/envelope"
	"docvault/internal/domain"
	"docvault/internal/domain/models"
	"docvault/internal/domain/repositories"
)

// KEK is an unwrapped tenant key-encryption-key. Callers must treat Raw as
// transient and never persist it.
type KEK struct {
	Raw     []byte
	Version int64
}

// Provider supplies and rotates tenant KEKs.
type Provider interface {
	// ActiveKEK returns the tenant's current KEK, unwrapped.
	ActiveKEK(ctx context.Context, tenantID string) (*KEK, error)

	// KEKByVersion returns a specific KEK version. Retired versions stay
	// retrievable so old revisions remain decryptable mid-rotation.
	KEKByVersion(ctx context.Context, tenantID string, version int64) (*KEK, error)

	// Rotate issues a new KEK version and makes it active. Document
	// ciphertext is untouched: only the rotation worker's re-wrap pass
	// migrates wrapped DEKs afterwards.
	Rotate(ctx context.Context, tenantID string) (int64, error)

	// EnsureTenant provisions the initial KEK for a tenant if none exists.
	EnsureTenant(ctx context.Context, tenantID string) error
}

// Custodian wraps and unwraps tenant KEKs with the root key. Unwrap must
// not be called while holding document-level locks: remote custodians can
// stall for the full request timeout.
type Custodian interface {
	Name() string
	Wrap(ctx context.Context, plaintext []byte) ([]byte, error)
	Unwrap(ctx context.Context, blob []byte) ([]byte, error)
}

type envelopeProvider struct {
	repo      repositories.TenantKeyRepository
	custodian Custodian
	txManager repositories.TransactionManager
	auditSink audit.Sink
	logger    *slog.Logger
}

// NewProvider creates a Provider backed by the tenant key repository and
// the given root custodian.
func NewProvider(
	repo repositories.TenantKeyRepository,
	custodian Custodian,
	txManager repositories.TransactionManager,
	auditSink audit.Sink,
	logger *slog.Logger,
) Provider {
	return &envelopeProvider{
		repo:      repo,
		custodian: custodian,
		txManager: txManager,
		auditSink: auditSink,
		logger:    logger,
	}
}

func (p *envelopeProvider) ActiveKEK(ctx context.Context, tenantID string) (*KEK, error) {
	tk, err := p.repo.GetActive(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	return p.unwrap(ctx, tk)
}

func (p *envelopeProvider) KEKByVersion(ctx context.Context, tenantID string, version int64) (*KEK, error) {
	tk, err := p.repo.GetVersion(ctx, tenantID, version)
	if err != nil {
		return nil, err
	}
	return p.unwrap(ctx, tk)
}

func (p *envelopeProvider) unwrap(ctx context.Context, tk *models.TenantKey) (*KEK, error) {
	raw, err := p.custodian.Unwrap(ctx, tk.KEKCiphertext)
	if err != nil {
		// The custodian signals reachability problems itself; anything else
		// is a hard unwrap failure, surfaced and audited.
		if errors.Is(err, domain.ErrKeyProviderUnavailable) {
			return nil, err
		}
		p.auditSink.Emit(ctx, models.AuditEvent{
			TenantID: tk.TenantID,
			Action:   models.AuditActionUnwrapFailed,
			TargetID: tk.TenantID,
			Payload:  map[string]any{"kek_version": tk.KEKVersion},
		})
		return nil, &domain.UnwrapError{TenantID: tk.TenantID, KEKVersion: tk.KEKVersion, Err: err}
	}
	return &KEK{Raw: raw, Version: tk.KEKVersion}, nil
}

func (p *envelopeProvider) Rotate(ctx context.Context, tenantID string) (int64, error) {
	var newVersion int64
	err := p.txManager.ExecTx(ctx, func(txCtx context.Context) error {
		current, err := p.repo.GetActive(txCtx, tenantID)
		if err != nil {
			return err
		}
		newVersion = current.KEKVersion + 1
		return p.issueVersion(txCtx, tenantID, newVersion)
	})
	if err != nil {
		return 0, err
	}

	p.auditSink.Emit(ctx, models.AuditEvent{
		TenantID: tenantID,
		Action:   models.AuditActionKEKRotated,
		TargetID: tenantID,
		Payload:  map[string]any{"kek_version": newVersion},
	})
	p.logger.Info("kek rotated", "tenant_id", tenantID, "kek_version", newVersion)
	return newVersion, nil
}

func (p *envelopeProvider) EnsureTenant(ctx context.Context, tenantID string) error {
	_, err := p.repo.GetActive(ctx, tenantID)
	if err == nil {
		return nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return err
	}
	return p.txManager.ExecTx(ctx, func(txCtx context.Context) error {
		return p.issueVersion(txCtx, tenantID, 1)
	})
}

func (p *envelopeProvider) issueVersion(ctx context.Context, tenantID string, version int64) error {
	kek, err := envelope.GenerateDEK()
	if err != nil {
		return err
	}
	defer envelope.Wipe(kek)

	wrapped, err := p.custodian.Wrap(ctx, kek)
	if err != nil {
		return err
	}
	return p.repo.InsertVersion(ctx, &models.TenantKey{
		TenantID:      tenantID,
		KEKCiphertext: wrapped,
		KEKVersion:    version,
		CreatedAt:     time.Now().UTC(),
	})
}
