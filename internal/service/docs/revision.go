package docs

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"docvault/internal/audit"
	"docvault/internal/crypto/envelope"
	"docvault/internal/domain"
	"docvault/internal/domain/models"
	"docvault/internal/domain/repositories"
	"docvault/internal/domain/services"
	"docvault/internal/keys"
	"docvault/internal/metrics"
)

type revisionService struct {
	nodeRepo     repositories.NodeRepository
	revisionRepo repositories.RevisionRepository
	txManager    repositories.TransactionManager
	keyProvider  keys.Provider
	crypto       *envelope.Crypto
	auditSink    audit.Sink
	logger       *slog.Logger
}

// NewRevisionService creates a new revision service
func NewRevisionService(
	nodeRepo repositories.NodeRepository,
	revisionRepo repositories.RevisionRepository,
	txManager repositories.TransactionManager,
	keyProvider keys.Provider,
	crypto *envelope.Crypto,
	auditSink audit.Sink,
	logger *slog.Logger,
) services.RevisionService {
	return &revisionService{
		nodeRepo:     nodeRepo,
		revisionRepo: revisionRepo,
		txManager:    txManager,
		keyProvider:  keyProvider,
		crypto:       crypto,
		auditSink:    auditSink,
		logger:       logger,
	}
}

// AppendRevision encrypts content and appends it under optimistic concurrency
func (s *revisionService) AppendRevision(ctx context.Context, req *services.AppendRevisionRequest) (*models.Revision, error) {
	if err := validateAppendRevision(req); err != nil {
		return nil, err
	}

	node, err := s.nodeRepo.GetByID(ctx, req.TenantID, req.DocumentID)
	if err != nil {
		return nil, err
	}
	if node.Kind != models.NodeKindDocument {
		return nil, fmt.Errorf("%w: node %s is not a document", domain.ErrValidation, req.DocumentID)
	}

	// Fetch the KEK before entering the write transaction: a remote
	// custodian can stall for its full timeout, and nothing here should
	// hold row locks across that.
	kek, err := s.keyProvider.ActiveKEK(ctx, req.TenantID)
	if err != nil {
		return nil, err
	}
	defer envelope.Wipe(kek.Raw)

	dek, err := envelope.GenerateDEK()
	if err != nil {
		return nil, err
	}
	defer envelope.Wipe(dek)

	nonceBase, err := envelope.GenerateNonceBase()
	if err != nil {
		return nil, err
	}

	wrappedDEK, err := envelope.Wrap(ctx, kek.Raw, dek)
	if err != nil {
		return nil, fmt.Errorf("wrap dek: %w", err)
	}

	// The encryptor seals one chunk at a time, but the bytea column holds a
	// whole revision, so the full ciphertext is buffered here before insert.
	var ciphertext bytes.Buffer
	checksum, size, err := s.crypto.StreamEncrypt(ctx, dek, nonceBase, req.Content, &ciphertext)
	if err != nil {
		return nil, err
	}

	rev := &models.Revision{
		ID:            uuid.New().String(),
		DocumentID:    req.DocumentID,
		Ciphertext:    ciphertext.Bytes(),
		DEKCiphertext: wrappedDEK,
		KEKVersion:    kek.Version,
		NonceBase:     nonceBase,
		Checksum:      checksum,
		SizeBytes:     size,
		ContentType:   req.ContentType,
		CreatedBy:     req.CreatedBy,
		CreatedAt:     time.Now().UTC(),
	}

	err = s.txManager.ExecTx(ctx, func(txCtx context.Context) error {
		// The conditional version bump takes the node row lock, which also
		// serializes the gapless revision_no assignment in Insert.
		if _, err := s.nodeRepo.CompareAndBumpVersion(txCtx, req.TenantID, req.DocumentID, req.ExpectedVersion); err != nil {
			return err
		}
		return s.revisionRepo.Insert(txCtx, rev)
	})
	if err != nil {
		if errors.Is(err, domain.ErrVersionConflict) {
			metrics.VersionConflicts.Inc()
		}
		return nil, err
	}

	metrics.RevisionsEncrypted.Inc()
	s.logger.Info("revision appended",
		"tenant_id", req.TenantID,
		"document_id", req.DocumentID,
		"revision_no", rev.RevisionNo,
		"size_bytes", rev.SizeBytes,
		"kek_version", rev.KEKVersion,
	)

	// Metadata-only copy back to the caller; ciphertext stays internal.
	out := *rev
	out.Ciphertext = nil
	out.DEKCiphertext = nil
	out.NonceBase = nil
	return &out, nil
}

// GetRevision decrypts one revision into a verified plaintext stream
func (s *revisionService) GetRevision(ctx context.Context, tenantID, documentID string, revisionNo int64) (io.Reader, *models.Revision, error) {
	node, err := s.nodeRepo.GetByID(ctx, tenantID, documentID)
	if err != nil {
		return nil, nil, err
	}
	if node.Kind != models.NodeKindDocument {
		return nil, nil, fmt.Errorf("%w: node %s is not a document", domain.ErrValidation, documentID)
	}

	var rev *models.Revision
	if revisionNo <= 0 {
		rev, err = s.revisionRepo.GetLatest(ctx, documentID)
	} else {
		rev, err = s.revisionRepo.GetByNo(ctx, documentID, revisionNo)
	}
	if err != nil {
		return nil, nil, err
	}

	kek, err := s.keyProvider.KEKByVersion(ctx, tenantID, rev.KEKVersion)
	if err != nil {
		return nil, nil, err
	}
	defer envelope.Wipe(kek.Raw)

	dek, err := envelope.Unwrap(ctx, kek.Raw, rev.DEKCiphertext)
	if err != nil {
		metrics.CryptoFailures.WithLabelValues("unwrap").Inc()
		s.auditSink.Emit(ctx, models.AuditEvent{
			TenantID: tenantID,
			Action:   models.AuditActionUnwrapFailed,
			TargetID: rev.ID,
			Payload:  map[string]any{"kek_version": rev.KEKVersion},
		})
		return nil, nil, &domain.UnwrapError{TenantID: tenantID, KEKVersion: rev.KEKVersion, Err: err}
	}

	plaintext, err := s.crypto.StreamDecrypt(dek, rev.NonceBase, bytes.NewReader(rev.Ciphertext))
	envelope.Wipe(dek)
	if err != nil {
		return nil, nil, err
	}

	metrics.RevisionsDecrypted.Inc()

	reader := &auditedReader{
		src:      envelope.NewVerifyingReader(plaintext, rev.Checksum, rev.ID),
		service:  s,
		tenantID: tenantID,
		targetID: rev.ID,
	}

	meta := *rev
	meta.Ciphertext = nil
	meta.DEKCiphertext = nil
	meta.NonceBase = nil
	return reader, &meta, nil
}

// ListRevisions returns metadata newest-first
func (s *revisionService) ListRevisions(ctx context.Context, tenantID, documentID string) ([]models.Revision, error) {
	node, err := s.nodeRepo.GetByID(ctx, tenantID, documentID)
	if err != nil {
		return nil, err
	}
	if node.Kind != models.NodeKindDocument {
		return nil, fmt.Errorf("%w: node %s is not a document", domain.ErrValidation, documentID)
	}
	return s.revisionRepo.List(ctx, documentID)
}

// auditedReader raises an audit event the first time the stream fails
// authentication or checksum verification. The original error is passed
// through untouched.
type auditedReader struct {
	src      io.Reader
	service  *revisionService
	tenantID string
	targetID string
	reported bool
}

func (r *auditedReader) Read(p []byte) (int, error) {
	n, err := r.src.Read(p)
	if err == nil || errors.Is(err, io.EOF) || r.reported {
		return n, err
	}
	r.reported = true
	switch {
	case errors.Is(err, domain.ErrAuthentication):
		metrics.CryptoFailures.WithLabelValues("authentication").Inc()
		r.service.auditSink.Emit(context.Background(), models.AuditEvent{
			TenantID: r.tenantID,
			Action:   models.AuditActionAuthFailed,
			TargetID: r.targetID,
		})
	case errors.Is(err, domain.ErrIntegrity):
		metrics.CryptoFailures.WithLabelValues("checksum").Inc()
		r.service.auditSink.Emit(context.Background(), models.AuditEvent{
			TenantID: r.tenantID,
			Action:   models.AuditActionChecksumFailed,
			TargetID: r.targetID,
		})
	}
	return n, err
}
