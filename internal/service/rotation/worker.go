// Package rotation implements the background re-wrap worker. After a KEK
// rotation, revisions still carry DEKs wrapped under retired KEK versions;
// the worker walks those rows in batches and re-wraps each DEK under the
// active version, without ever reading or rewriting content ciphertext.
package rotation

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"docvault/internal/audit"
	"docvault/internal/crypto/envelope"
	"docvault/internal/domain"
	"docvault/internal/domain/models"
	"docvault/internal/domain/repositories"
	"docvault/internal/keys"
	"docvault/internal/metrics"
)

// State of a tenant's rotation progress.
type State string

const (
	StateIdle       State = "idle"
	StateScanning   State = "scanning"
	StateRewrapping State = "rewrapping"
)

// Config tunes the worker's pacing
type Config struct {
	BatchSize   int
	Interval    time.Duration
	RatePerSec  float64
	Concurrency int // tenants processed in parallel
}

// Worker drives the re-wrap passes
type Worker struct {
	revisionRepo repositories.RevisionRepository
	keyRepo      repositories.TenantKeyRepository
	keyProvider  keys.Provider
	auditSink    audit.Sink
	logger       *slog.Logger
	cfg          Config
	limiter      *rate.Limiter

	mu     sync.Mutex
	states map[string]State
}

// NewWorker creates a rotation worker
func NewWorker(
	revisionRepo repositories.RevisionRepository,
	keyRepo repositories.TenantKeyRepository,
	keyProvider keys.Provider,
	auditSink audit.Sink,
	cfg Config,
	logger *slog.Logger,
) *Worker {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 200
	}
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = 500
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	return &Worker{
		revisionRepo: revisionRepo,
		keyRepo:      keyRepo,
		keyProvider:  keyProvider,
		auditSink:    auditSink,
		logger:       logger,
		cfg:          cfg,
		limiter:      rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.BatchSize),
	}
}

// Status reports a tenant's current rotation state.
func (w *Worker) Status(tenantID string) State {
	w.mu.Lock()
	defer w.mu.Unlock()
	if st, ok := w.states[tenantID]; ok {
		return st
	}
	return StateIdle
}

func (w *Worker) setState(tenantID string, st State) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.states == nil {
		w.states = make(map[string]State)
	}
	if st == StateIdle {
		delete(w.states, tenantID)
		return
	}
	w.states[tenantID] = st
}

// Run loops until ctx is cancelled, sweeping all tenants every interval.
// Passes are idempotent, so a crash mid-pass just means the next sweep
// picks up the remaining stale rows.
func (w *Worker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.cfg.Interval)
	defer ticker.Stop()

	for {
		if err := w.Sweep(ctx); err != nil && !errors.Is(err, context.Canceled) {
			w.logger.Error("rotation sweep failed", "error", err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Sweep runs one re-wrap pass over every tenant
func (w *Worker) Sweep(ctx context.Context) error {
	tenants, err := w.keyRepo.ListTenants(ctx)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(w.cfg.Concurrency)
	for _, tenantID := range tenants {
		tenantID := tenantID
		g.Go(func() error {
			if err := w.RewrapTenant(gctx, tenantID); err != nil {
				if errors.Is(err, context.Canceled) {
					return err
				}
				// A failed tenant never blocks the others; the next sweep
				// retries it.
				w.logger.Warn("tenant rewrap pass failed", "tenant_id", tenantID, "error", err)
			}
			return nil
		})
	}
	return g.Wait()
}

// RewrapTenant re-wraps all stale revisions for one tenant under its active
// KEK version. Safe to call concurrently with appends, reads, and other
// rewrap passes: each row update is conditional on the old version.
func (w *Worker) RewrapTenant(ctx context.Context, tenantID string) error {
	w.setState(tenantID, StateScanning)
	defer w.setState(tenantID, StateIdle)

	active, err := w.keyProvider.ActiveKEK(ctx, tenantID)
	if err != nil {
		return err
	}
	defer envelope.Wipe(active.Raw)

	// Retired KEKs unwrapped during this pass, keyed by version. Wiped on
	// exit; a pass touches few distinct versions regardless of row count.
	oldKEKs := make(map[int64][]byte)
	defer func() {
		for _, raw := range oldKEKs {
			envelope.Wipe(raw)
		}
	}()

	var rewrapped, failed int
	for {
		stale, err := w.revisionRepo.ListStale(ctx, tenantID, active.Version, w.cfg.BatchSize)
		if err != nil {
			return err
		}
		if len(stale) == 0 {
			break
		}
		w.setState(tenantID, StateRewrapping)

		progress := 0
		for _, row := range stale {
			if err := w.limiter.Wait(ctx); err != nil {
				return err
			}
			done, err := w.rewrapOne(ctx, tenantID, active, oldKEKs, row)
			if err != nil {
				// Custodian outage: abandon the pass, the remaining rows
				// stay stale for the next sweep.
				if errors.Is(err, domain.ErrKeyProviderUnavailable) {
					return err
				}
				metrics.RewrapFailures.Inc()
				failed++
				w.logger.Warn("rewrap failed",
					"tenant_id", tenantID,
					"revision_id", row.ID,
					"kek_version", row.KEKVersion,
					"error", err,
				)
				continue
			}
			if done {
				rewrapped++
				progress++
			}
		}

		// Nothing in the batch actually migrated; without this guard a
		// batch of permanently failing rows would be rescanned in a hot
		// loop.
		if progress == 0 {
			break
		}
	}

	if rewrapped > 0 || failed > 0 {
		w.auditSink.Emit(ctx, models.AuditEvent{
			TenantID: tenantID,
			Action:   models.AuditActionRewrapPass,
			TargetID: tenantID,
			Payload: map[string]any{
				"kek_version": active.Version,
				"rewrapped":   rewrapped,
				"failed":      failed,
			},
		})
		w.logger.Info("rewrap pass complete",
			"tenant_id", tenantID,
			"kek_version", active.Version,
			"rewrapped", rewrapped,
			"failed", failed,
		)
	}
	return nil
}

// rewrapOne migrates a single revision's wrapped DEK. Returns false with a
// nil error when a concurrent pass got there first.
func (w *Worker) rewrapOne(ctx context.Context, tenantID string, active *keys.KEK, oldKEKs map[int64][]byte, row repositories.StaleRevision) (bool, error) {
	metrics.RewrapAttempts.Inc()

	oldRaw, ok := oldKEKs[row.KEKVersion]
	if !ok {
		kek, err := w.keyProvider.KEKByVersion(ctx, tenantID, row.KEKVersion)
		if err != nil {
			return false, err
		}
		oldRaw = kek.Raw
		oldKEKs[row.KEKVersion] = oldRaw
	}

	dek, err := envelope.Unwrap(ctx, oldRaw, row.DEKCiphertext)
	if err != nil {
		return false, &domain.UnwrapError{TenantID: tenantID, KEKVersion: row.KEKVersion, Err: err}
	}
	rewrapped, err := envelope.Wrap(ctx, active.Raw, dek)
	envelope.Wipe(dek)
	if err != nil {
		return false, err
	}

	updated, err := w.revisionRepo.UpdateWrappedDEK(ctx, row.ID, row.KEKVersion, rewrapped, active.Version)
	if err != nil {
		return false, err
	}
	if !updated {
		metrics.RewrapSkipped.Inc()
	}
	return updated, nil
}
