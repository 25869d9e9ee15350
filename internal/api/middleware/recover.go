package middleware

import (
	"net/http"

	"github.com/ayo6706/payout-ledger/internal/api/envelope"
	"github.com/ayo6706/payout-ledger/internal/domain"
	"go.uber.org/zap"
)

// RecoverMiddleware converts panics into INTERNAL_ERROR envelopes and logs stack context.
func RecoverMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					logger.Error("panic recovered",
						zap.Any("panic", rec),
						zap.String("path", r.URL.Path),
						zap.String("method", r.Method),
						zap.String("request_id", TraceIDFromContext(r.Context())),
						zap.Stack("stack"),
					)

					envelope.Error(
						w,
						r,
						http.StatusInternalServerError,
						domain.CodeInternalError,
						"unexpected server error",
						nil,
					)
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}
