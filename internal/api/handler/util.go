package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/ayo6706/payout-ledger/internal/api/envelope"
	"github.com/ayo6706/payout-ledger/internal/domain"
	"github.com/ayo6706/payout-ledger/internal/service"
	"go.uber.org/zap"
)

// RespondJSON writes a successful envelope.
func RespondJSON(w http.ResponseWriter, status int, message string, data any) {
	envelope.Write(w, status, message, data)
}

// RespondError writes a failed envelope.
func RespondError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	envelope.Error(w, r, status, code, message, nil)
}

type errorMapping struct {
	kind   error
	status int
	code   string
}

var ledgerErrors = []errorMapping{
	{service.ErrValidation, http.StatusBadRequest, domain.CodeValidationError},
	{service.ErrInvalidAmount, http.StatusBadRequest, domain.CodeInvalidAmount},
	{service.ErrDescriptionTooLong, http.StatusBadRequest, domain.CodeDescriptionTooLong},
	{service.ErrInvalidCallbackURL, http.StatusBadRequest, domain.CodeInvalidCallbackURL},
	{service.ErrInvalidStatus, http.StatusBadRequest, domain.CodeInvalidStatus},
	{service.ErrInsufficientBalance, http.StatusPaymentRequired, domain.CodeInsufficientBalance},
	{service.ErrProjectNotFound, http.StatusNotFound, domain.CodeProjectNotFound},
	{service.ErrPayoutNotFound, http.StatusNotFound, domain.CodePayoutNotFound},
	{service.ErrInvalidStatusTransition, http.StatusConflict, domain.CodeInvalidStatusTransition},
	{service.ErrRateLimitExceeded, http.StatusTooManyRequests, domain.CodeRateLimitExceeded},
	{service.ErrGatewayTimeout, http.StatusGatewayTimeout, domain.CodeGatewayTimeout},
}

// respondServiceError maps ledger errors onto status codes. Anything that is
// not a ledger error is logged and reported as INTERNAL_ERROR.
func respondServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var ledgerErr *service.Error
	if errors.As(err, &ledgerErr) {
		for _, m := range ledgerErrors {
			if errors.Is(ledgerErr.Kind, m.kind) {
				if m.kind == service.ErrRateLimitExceeded {
					if secs, ok := ledgerErr.Details["retryAfter"].(int64); ok {
						w.Header().Set("Retry-After", strconv.FormatInt(secs, 10))
					}
				}
				envelope.Error(w, r, m.status, m.code, ledgerErr.Message, ledgerErr.Details)
				return
			}
		}
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		zap.L().Warn("request ended before the ledger finished", zap.Error(err), zap.String("path", r.URL.Path))
		RespondError(w, r, http.StatusServiceUnavailable, domain.CodeRequestTimeout, "request timed out before completion")
		return
	}

	zap.L().Error("unexpected ledger error", zap.Error(err), zap.String("path", r.URL.Path))
	RespondError(w, r, http.StatusInternalServerError, domain.CodeInternalError, "unexpected server error")
}

// decodeBody decodes a JSON object into dst. Numbers are kept as json.Number.
func decodeBody(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.UseNumber()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("decode request body: %w", err)
	}
	return nil
}

// parseInteger interprets raw as a JSON integer. ok is false when raw is
// absent or null; err is set when raw is present but not an integer.
func parseInteger(raw json.RawMessage) (value int64, ok bool, err error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return 0, false, nil
	}
	if raw[0] == '"' {
		return 0, true, fmt.Errorf("not a number: %s", raw)
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return 0, true, fmt.Errorf("not a number: %s", raw)
	}
	value, err = n.Int64()
	if err != nil {
		return 0, true, fmt.Errorf("not an integer: %s", raw)
	}
	return value, true, nil
}
