package service

import (
	"context"

	"github.com/ayo6706/payout-ledger/internal/models"
)

// AuditSink persists ledger audit events.
type AuditSink interface {
	InsertAuditEvent(ctx context.Context, event models.AuditEvent) error
}

// CallbackSource exposes the callback log to consumers that tail it.
type CallbackSource interface {
	CallbacksAfter(seq int64, limit int) []models.CallbackEntry
}
