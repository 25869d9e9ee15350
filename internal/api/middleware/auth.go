package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/ayo6706/payout-ledger/internal/api/envelope"
	"github.com/ayo6706/payout-ledger/internal/domain"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

type contextKey string

const traceContextKey contextKey = "trace_id"

// AdminRole is the role claim required on admin tokens.
const AdminRole = "admin"

type adminClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// AdminAuth guards the administrative surface with HS256 bearer tokens carrying
// role=admin. An empty secret disables the guard.
func AdminAuth(secret string) func(http.Handler) http.Handler {
	key := []byte(secret)
	return func(next http.Handler) http.Handler {
		if len(key) == 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				envelope.Error(w, r, http.StatusUnauthorized, domain.CodeUnauthorized, "Authorization header required", nil)
				return
			}

			tokenString := strings.TrimPrefix(authHeader, "Bearer ")
			if tokenString == authHeader {
				envelope.Error(w, r, http.StatusUnauthorized, domain.CodeUnauthorized, "Invalid token format", nil)
				return
			}

			claims := &adminClaims{}
			token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
				if token.Method.Alg() != jwt.SigningMethodHS256.Alg() {
					return nil, fmt.Errorf("unexpected signing method: %s", token.Method.Alg())
				}
				return key, nil
			}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
			if err != nil || !token.Valid {
				envelope.Error(w, r, http.StatusUnauthorized, domain.CodeUnauthorized, "Invalid token", nil)
				return
			}
			if claims.Role != AdminRole {
				envelope.Error(w, r, http.StatusUnauthorized, domain.CodeUnauthorized, "admin role required", nil)
				return
			}

			AddLogFields(r.Context(), zap.String("admin_subject", claims.Subject))
			next.ServeHTTP(w, r)
		})
	}
}

// NewAdminToken signs an admin token for subject valid for ttl.
func NewAdminToken(secret, subject string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := adminClaims{
		Role: AdminRole,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

// TraceIDFromContext returns the trace id for the request.
func TraceIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(traceContextKey).(string); ok {
		return v
	}
	return ""
}
