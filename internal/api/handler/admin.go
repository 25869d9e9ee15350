package handler

import (
	"encoding/json"
	"net/http"

	"github.com/ayo6706/payout-ledger/internal/domain"
	"github.com/ayo6706/payout-ledger/internal/gateway"
	"github.com/ayo6706/payout-ledger/internal/service"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// AdminHandler serves the /test surface used by integration suites and load
// tests. It is not meant for production traffic.
type AdminHandler struct {
	ledger     *service.LedgerService
	reconciler *service.ReconciliationService
}

func NewAdminHandler(ledger *service.LedgerService, reconciler *service.ReconciliationService) *AdminHandler {
	return &AdminHandler{ledger: ledger, reconciler: reconciler}
}

// GetFailureInjection handles GET /test/failure-injection.
func (h *AdminHandler) GetFailureInjection(w http.ResponseWriter, r *http.Request) {
	RespondJSON(w, http.StatusOK, "Failure injection configuration", h.ledger.FailureInjection())
}

// ConfigureFailureInjection handles POST /test/failure-injection. Each field is
// applied only when present with the right JSON type.
func (h *AdminHandler) ConfigureFailureInjection(w http.ResponseWriter, r *http.Request) {
	var body map[string]json.RawMessage
	if err := decodeBody(r, &body); err != nil {
		RespondError(w, r, http.StatusBadRequest, domain.CodeValidationError, "Invalid request body")
		return
	}

	var update gateway.FailureInjectionUpdate
	if raw, ok := body["enabled"]; ok {
		var v bool
		if json.Unmarshal(raw, &v) == nil && string(raw) != "null" {
			update.Enabled = &v
		}
	}
	if raw, ok := body["timeoutRate"]; ok {
		var v float64
		if json.Unmarshal(raw, &v) == nil && string(raw) != "null" {
			update.TimeoutRate = &v
		}
	}
	if raw, ok := body["rollbackOnTimeout"]; ok {
		var v bool
		if json.Unmarshal(raw, &v) == nil && string(raw) != "null" {
			update.RollbackOnTimeout = &v
		}
	}

	cfg := h.ledger.ConfigureFailureInjection(r.Context(), update)
	RespondJSON(w, http.StatusOK, "Failure injection updated", cfg)
}

// ExpirePayout handles POST /test/expire/{id}.
func (h *AdminHandler) ExpirePayout(w http.ResponseWriter, r *http.Request) {
	payout, err := h.ledger.ExpirePayout(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	RespondJSON(w, http.StatusOK, "Payout expired", payout)
}

// Callbacks handles GET /test/callbacks.
func (h *AdminHandler) Callbacks(w http.ResponseWriter, r *http.Request) {
	callbacks := h.ledger.Callbacks()
	RespondJSON(w, http.StatusOK, "Callback log", map[string]any{
		"callbacks": callbacks,
		"count":     len(callbacks),
	})
}

// Payouts handles GET /test/payouts, optionally filtered by ?projectId=.
func (h *AdminHandler) Payouts(w http.ResponseWriter, r *http.Request) {
	payouts := h.ledger.ListPayouts(r.URL.Query().Get("projectId"))
	RespondJSON(w, http.StatusOK, "Payouts", map[string]any{
		"payouts": payouts,
		"count":   len(payouts),
	})
}

// Reconciliation handles GET /test/reconciliation.
func (h *AdminHandler) Reconciliation(w http.ResponseWriter, r *http.Request) {
	report := h.reconciler.Check()
	message := "Ledger balanced"
	if !report.Balanced {
		message = "Ledger imbalance detected"
	}
	RespondJSON(w, http.StatusOK, message, report)
}

// Reset handles DELETE /test/reset.
func (h *AdminHandler) Reset(w http.ResponseWriter, r *http.Request) {
	h.ledger.Reset(r.Context())

	data := map[string]any{}
	if seedID := h.ledger.Options().SeedProjectID; seedID != "" {
		if project, err := h.ledger.GetBalance(r.Context(), seedID); err == nil {
			data["project"] = project
		} else {
			zap.L().Warn("seed project missing after reset", zap.String("project_id", seedID), zap.Error(err))
		}
	}
	RespondJSON(w, http.StatusOK, "State reset", data)
}
