package models

import (
	"time"
)

type Project struct {
	ID      string `json:"projectId"`
	Balance int64  `json:"balance"`
	Funded  int64  `json:"funded"`
	Spent   int64  `json:"spent"`
}

type Payout struct {
	ID             string     `json:"id"`
	Gamertag       string     `json:"gamertag"`
	Amount         int64      `json:"amount"`
	Fee            int64      `json:"fee"`
	TotalCost      int64      `json:"totalCost"`
	ProjectID      string     `json:"projectId"`
	IdempotencyKey string     `json:"idempotencyKey,omitempty"`
	InternalID     string     `json:"internalId,omitempty"`
	Description    string     `json:"description,omitempty"`
	CallbackURL    string     `json:"callbackUrl,omitempty"`
	Status         string     `json:"status"`
	CreatedAt      time.Time  `json:"createdAt"`
	UpdatedAt      time.Time  `json:"updatedAt"`
	ExpiresAt      time.Time  `json:"expiresAt"`
	ExpiredAt      *time.Time `json:"expiredAt,omitempty"`
}

// CallbackEntry records one simulated webhook delivery.
type CallbackEntry struct {
	Seq       int64           `json:"seq"`
	URL       string          `json:"url"`
	Event     string          `json:"event"`
	Payload   CallbackPayload `json:"payload"`
	Signature string          `json:"signature,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

type CallbackPayload struct {
	Event  string `json:"event"`
	Payout Payout `json:"payout"`
}

// FailureInjection controls simulated gateway timeouts.
type FailureInjection struct {
	Enabled           bool    `json:"enabled"`
	TimeoutRate       float64 `json:"timeoutRate"`
	RollbackOnTimeout bool    `json:"rollbackOnTimeout"`
}

// AuditEvent is an immutable record of a ledger mutation.
type AuditEvent struct {
	EntityType string         `json:"entity_type"`
	EntityID   string         `json:"entity_id"`
	ProjectID  string         `json:"project_id,omitempty"`
	Action     string         `json:"action"`
	PrevState  string         `json:"prev_state,omitempty"`
	NextState  string         `json:"next_state,omitempty"`
	Amount     int64          `json:"amount,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
}
