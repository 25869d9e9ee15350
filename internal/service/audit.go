package service

import (
	"context"
	"time"

	"github.com/ayo6706/payout-ledger/internal/models"
	"go.uber.org/zap"
)

// AuditService writes immutable audit trail entries. Without a sink, events go
// to the structured log only.
type AuditService struct {
	sink AuditSink
	now  func() time.Time
}

func NewAuditService(sink AuditSink, now func() time.Time) *AuditService {
	if now == nil {
		now = time.Now
	}
	return &AuditService{sink: sink, now: now}
}

// Write records a single audit event. Sink failures are logged and never fail
// the ledger operation that produced the event.
func (s *AuditService) Write(ctx context.Context, entityType, entityID, projectID, action, prevState, nextState string, amount int64, metadata map[string]any) {
	event := models.AuditEvent{
		EntityType: entityType,
		EntityID:   entityID,
		ProjectID:  projectID,
		Action:     action,
		PrevState:  prevState,
		NextState:  nextState,
		Amount:     amount,
		Metadata:   metadata,
		CreatedAt:  s.now().UTC(),
	}

	zap.L().Debug("audit",
		zap.String("entity_type", entityType),
		zap.String("entity_id", entityID),
		zap.String("project_id", projectID),
		zap.String("action", action),
		zap.String("prev_state", prevState),
		zap.String("next_state", nextState),
		zap.Int64("amount", amount),
	)

	if s.sink == nil {
		return
	}
	if err := s.sink.InsertAuditEvent(context.WithoutCancel(ctx), event); err != nil {
		zap.L().Warn("audit sink write failed", zap.Error(err), zap.String("action", action), zap.String("entity_id", entityID))
	}
}
