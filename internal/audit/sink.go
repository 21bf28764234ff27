// Package audit defines the write-only audit event contract. Events are a
// side effect: this subsystem never reads them back.
package audit

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"docvault/internal/domain/models"
)

// Sink receives structured audit events. Implementations must not block
// request processing on delivery failures.
type Sink interface {
	Emit(ctx context.Context, ev models.AuditEvent)
}

// LogSink writes audit events to structured logs. The real deployment
// swaps in a sink backed by the external audit pipeline.
type LogSink struct {
	logger *slog.Logger
}

// NewLogSink creates a log-backed audit sink
func NewLogSink(logger *slog.Logger) *LogSink {
	return &LogSink{logger: logger}
}

func (s *LogSink) Emit(ctx context.Context, ev models.AuditEvent) {
	if ev.ID == "" {
		ev.ID = uuid.New().String()
	}
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now().UTC()
	}
	s.logger.InfoContext(ctx, "audit event",
		"audit_id", ev.ID,
		"tenant_id", ev.TenantID,
		"actor_id", ev.ActorID,
		"action", ev.Action,
		"target_id", ev.TargetID,
		"payload", ev.Payload,
	)
}
