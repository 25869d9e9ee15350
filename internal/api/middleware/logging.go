package middleware

import (
	"context"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
)

const logFieldsContextKey contextKey = "log_fields"

type requestFields struct {
	mu     sync.Mutex
	fields []zap.Field
}

// AddLogFields attaches ledger context such as project_id or payout_id to the
// request's access log line. It is a no-op outside LoggingMiddleware.
func AddLogFields(ctx context.Context, fields ...zap.Field) {
	rf, ok := ctx.Value(logFieldsContextKey).(*requestFields)
	if !ok {
		return
	}
	rf.mu.Lock()
	rf.fields = append(rf.fields, fields...)
	rf.mu.Unlock()
}

// LoggingMiddleware emits one structured line per request with the trace id,
// any fields handlers attached, and a level that follows the status class.
func LoggingMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rw := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			rf := &requestFields{}

			next.ServeHTTP(rw, r.WithContext(context.WithValue(r.Context(), logFieldsContextKey, rf)))

			fields := []zap.Field{
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", rw.status),
				zap.String("trace_id", TraceIDFromContext(r.Context())),
				zap.Duration("duration", time.Since(start)),
			}
			rf.mu.Lock()
			fields = append(fields, rf.fields...)
			rf.mu.Unlock()

			switch {
			case rw.status >= http.StatusInternalServerError:
				logger.Error("http_request", fields...)
			case rw.status >= http.StatusBadRequest:
				logger.Warn("http_request", fields...)
			default:
				logger.Info("http_request", fields...)
			}
		})
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.status = code
	sr.ResponseWriter.WriteHeader(code)
}

func (sr *statusRecorder) Write(b []byte) (int, error) {
	if sr.status == 0 {
		sr.status = http.StatusOK
	}
	return sr.ResponseWriter.Write(b)
}
