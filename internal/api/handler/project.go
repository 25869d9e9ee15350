package handler

import (
	"encoding/json"
	"net/http"

	"github.com/ayo6706/payout-ledger/internal/api/middleware"
	"github.com/ayo6706/payout-ledger/internal/domain"
	"github.com/ayo6706/payout-ledger/internal/service"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// ProjectHandler exposes project balances and funding.
type ProjectHandler struct {
	ledger *service.LedgerService
}

func NewProjectHandler(ledger *service.LedgerService) *ProjectHandler {
	return &ProjectHandler{ledger: ledger}
}

type FundProjectRequest struct {
	Amount json.RawMessage `json:"amount"`
}

// GetBalance handles GET /projects/{id}/balance.
func (h *ProjectHandler) GetBalance(w http.ResponseWriter, r *http.Request) {
	projectID := chi.URLParam(r, "id")
	middleware.AddLogFields(r.Context(), zap.String("project_id", projectID))
	project, err := h.ledger.GetBalance(r.Context(), projectID)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	RespondJSON(w, http.StatusOK, "Balance retrieved", project)
}

// Fund handles POST /projects/{id}/fund.
func (h *ProjectHandler) Fund(w http.ResponseWriter, r *http.Request) {
	var req FundProjectRequest
	if err := decodeBody(r, &req); err != nil {
		RespondError(w, r, http.StatusBadRequest, domain.CodeValidationError, "Invalid request body")
		return
	}

	amount, _, err := parseInteger(req.Amount)
	if err != nil {
		RespondError(w, r, http.StatusBadRequest, domain.CodeInvalidAmount, "amount must be a positive integer")
		return
	}

	projectID := chi.URLParam(r, "id")
	middleware.AddLogFields(r.Context(), zap.String("project_id", projectID), zap.Int64("amount", amount))
	project, err := h.ledger.FundProject(r.Context(), projectID, amount)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	RespondJSON(w, http.StatusOK, "Project funded", project)
}
