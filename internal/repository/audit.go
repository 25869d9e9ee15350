package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ayo6706/payout-ledger/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// AuditRepository persists ledger audit events to ledger_audit_log.
type AuditRepository struct {
	db *pgxpool.Pool
}

func NewAuditRepository(db *pgxpool.Pool) *AuditRepository {
	return &AuditRepository{db: db}
}

func (r *AuditRepository) InsertAuditEvent(ctx context.Context, event models.AuditEvent) error {
	metadata, err := json.Marshal(event.Metadata)
	if err != nil {
		return fmt.Errorf("marshal audit metadata: %w", err)
	}

	query := `
		INSERT INTO ledger_audit_log
			(id, entity_type, entity_id, project_id, action, prev_state, next_state, amount, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err = r.db.Exec(ctx, query,
		uuid.New(),
		event.EntityType,
		event.EntityID,
		event.ProjectID,
		event.Action,
		event.PrevState,
		event.NextState,
		event.Amount,
		metadata,
		event.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert audit event: %w", err)
	}
	return nil
}

// ListAuditEvents returns the most recent events for an entity, newest first.
func (r *AuditRepository) ListAuditEvents(ctx context.Context, entityID string, limit int) ([]models.AuditEvent, error) {
	query := `
		SELECT entity_type, entity_id, project_id, action, prev_state, next_state, amount, metadata, created_at
		FROM ledger_audit_log
		WHERE entity_id = $1
		ORDER BY created_at DESC, id
		LIMIT $2
	`
	rows, err := r.db.Query(ctx, query, entityID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit events: %w", err)
	}
	defer rows.Close()

	var events []models.AuditEvent
	for rows.Next() {
		var e models.AuditEvent
		var metadata []byte
		if err := rows.Scan(&e.EntityType, &e.EntityID, &e.ProjectID, &e.Action, &e.PrevState, &e.NextState, &e.Amount, &metadata, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan audit event: %w", err)
		}
		if len(metadata) > 0 {
			if err := json.Unmarshal(metadata, &e.Metadata); err != nil {
				return nil, fmt.Errorf("decode audit metadata: %w", err)
			}
		}
		events = append(events, e)
	}
	return events, rows.Err()
}
