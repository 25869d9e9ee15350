package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"
)

// TraceHeader carries the request's trace id in both directions.
const TraceHeader = "X-Trace-ID"

const maxTraceIDLength = 128

// TraceMiddleware propagates the caller's X-Trace-ID (or X-Request-ID) through
// the context and response headers. Missing, oversized or non-printable ids are
// replaced with a fresh UUID.
func TraceMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		traceID := incomingTraceID(r)
		w.Header().Set(TraceHeader, traceID)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), traceContextKey, traceID)))
	})
}

func incomingTraceID(r *http.Request) string {
	for _, header := range []string{TraceHeader, "X-Request-ID"} {
		if id := strings.TrimSpace(r.Header.Get(header)); validTraceID(id) {
			return id
		}
	}
	return uuid.NewString()
}

func validTraceID(id string) bool {
	if id == "" || len(id) > maxTraceIDLength {
		return false
	}
	for i := 0; i < len(id); i++ {
		if id[i] < 0x21 || id[i] > 0x7e {
			return false
		}
	}
	return true
}
