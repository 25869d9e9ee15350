package middleware

import (
	"fmt"
	"net/http"
	"time"

	"github.com/ayo6706/payout-ledger/internal/api/envelope"
	"github.com/ayo6706/payout-ledger/internal/domain"
	"github.com/go-chi/httprate"
)

// PublicRateLimiter limits requests per IP. It guards the HTTP surface and is
// unrelated to the per-recipient payout limit enforced by the ledger.
func PublicRateLimiter(rps int) func(http.Handler) http.Handler {
	return httprate.Limit(rps, time.Second,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			envelope.Error(
				w,
				r,
				http.StatusTooManyRequests,
				domain.CodeTooManyRequests,
				fmt.Sprintf("Rate limit of %d req/s exceeded for this IP", rps),
				nil,
			)
		}),
	)
}
