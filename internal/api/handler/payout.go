package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/ayo6706/payout-ledger/internal/api/middleware"
	"github.com/ayo6706/payout-ledger/internal/domain"
	"github.com/ayo6706/payout-ledger/internal/service"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// PayoutHandler handles HTTP requests for payouts.
type PayoutHandler struct {
	ledger *service.LedgerService
}

// NewPayoutHandler creates a new PayoutHandler instance.
func NewPayoutHandler(ledger *service.LedgerService) *PayoutHandler {
	return &PayoutHandler{ledger: ledger}
}

// CreatePayoutRequest represents the request body for creating a payout.
// Amount and ExpiresIn stay raw so that absent, null and non-integer values
// can be told apart.
type CreatePayoutRequest struct {
	Gamertag       string          `json:"gamertag"`
	Amount         json.RawMessage `json:"amount"`
	ProjectID      string          `json:"projectId"`
	IdempotencyKey string          `json:"idempotencyKey"`
	CallbackURL    string          `json:"callbackUrl"`
	Description    string          `json:"description"`
	ExpiresIn      json.RawMessage `json:"expiresIn"`
	InternalID     string          `json:"internalId"`
}

// UpdateStatusRequest represents the request body for PATCH /payouts/{id}/status.
type UpdateStatusRequest struct {
	Status string `json:"status"`
}

// CreatePayout handles POST /payouts.
// 201 for a new payout, 200 when the idempotency key resolves to an existing one.
func (h *PayoutHandler) CreatePayout(w http.ResponseWriter, r *http.Request) {
	var req CreatePayoutRequest
	if err := decodeBody(r, &req); err != nil {
		RespondError(w, r, http.StatusBadRequest, domain.CodeValidationError, "Invalid request body")
		return
	}

	in := service.CreatePayoutRequest{
		Gamertag:       req.Gamertag,
		ProjectID:      req.ProjectID,
		IdempotencyKey: req.IdempotencyKey,
		CallbackURL:    req.CallbackURL,
		Description:    req.Description,
		InternalID:     req.InternalID,
	}
	if strings.TrimSpace(in.IdempotencyKey) == "" {
		in.IdempotencyKey = r.Header.Get("Idempotency-Key")
	}

	amount, present, err := parseInteger(req.Amount)
	if err != nil {
		RespondError(w, r, http.StatusBadRequest, domain.CodeInvalidAmount, "amount must be an integer number of sats")
		return
	}
	if present {
		in.Amount = &amount
	}

	expiresIn, present, err := parseInteger(req.ExpiresIn)
	if err != nil {
		RespondError(w, r, http.StatusBadRequest, domain.CodeValidationError, "expiresIn must be an integer number of seconds")
		return
	}
	if present && expiresIn > domain.MaxExpiresIn {
		RespondError(w, r, http.StatusBadRequest, domain.CodeValidationError,
			fmt.Sprintf("expiresIn must be at most %d seconds", domain.MaxExpiresIn))
		return
	}
	if present {
		in.ExpiresIn = &expiresIn
	}

	middleware.AddLogFields(r.Context(),
		zap.String("project_id", in.ProjectID),
		zap.String("gamertag", in.Gamertag),
	)
	result, err := h.ledger.CreatePayout(r.Context(), in)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	middleware.AddLogFields(r.Context(),
		zap.String("payout_id", result.Payout.ID),
		zap.Bool("idempotent_replay", result.Duplicate),
	)
	if result.Duplicate {
		w.Header().Set("X-Idempotent-Replay", "true")
		RespondJSON(w, http.StatusOK, "Payout already processed", result.Payout)
		return
	}
	RespondJSON(w, http.StatusCreated, "Payout created successfully", result.Payout)
}

// GetPayout handles GET /payouts/{id}.
func (h *PayoutHandler) GetPayout(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	middleware.AddLogFields(r.Context(), zap.String("payout_id", id))
	payout, err := h.ledger.GetPayout(r.Context(), id)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	RespondJSON(w, http.StatusOK, "Payout retrieved", payout)
}

// GetPayoutByInternalID handles GET /payouts/by-internal-id/{internalId}.
func (h *PayoutHandler) GetPayoutByInternalID(w http.ResponseWriter, r *http.Request) {
	payout, err := h.ledger.GetPayoutByInternalID(r.Context(), chi.URLParam(r, "internalId"))
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	RespondJSON(w, http.StatusOK, "Payout retrieved", payout)
}

// UpdateStatus handles PATCH /payouts/{id}/status.
func (h *PayoutHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	var req UpdateStatusRequest
	if err := decodeBody(r, &req); err != nil {
		RespondError(w, r, http.StatusBadRequest, domain.CodeValidationError, "Invalid request body")
		return
	}

	id := chi.URLParam(r, "id")
	middleware.AddLogFields(r.Context(), zap.String("payout_id", id), zap.String("status", req.Status))
	payout, err := h.ledger.UpdateStatus(r.Context(), id, req.Status)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	RespondJSON(w, http.StatusOK, "Payout status updated", payout)
}
