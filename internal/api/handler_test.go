package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ayo6706/payout-ledger/internal/api"
	"github.com/ayo6706/payout-ledger/internal/api/middleware"
	"github.com/ayo6706/payout-ledger/internal/domain"
	"github.com/ayo6706/payout-ledger/internal/gateway"
	"github.com/ayo6706/payout-ledger/internal/observability"
	"github.com/ayo6706/payout-ledger/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const (
	seedProject = "test-project"
	testSecret  = "test-admin-secret-0123456789-abcdef"
)

type envelopeBody struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type testAPI struct {
	router  chi.Router
	ledger  *service.LedgerService
	gateway *gateway.MockGateway
}

type apiOption func(*service.Options, *api.Options)

func setupAPI(t *testing.T, opts ...apiOption) *testAPI {
	t.Helper()
	observability.Init()

	gw := gateway.NewMockGateway(
		gateway.WithSettlementDelay(0, 0),
		gateway.WithTimeoutDelay(0),
		gateway.WithRandom(func() float64 { return 0.5 }),
	)

	ledgerOpts := service.DefaultOptions()
	ledgerOpts.SeedProjectID = seedProject
	ledgerOpts.SeedProjectBalance = 100_000
	routerOpts := api.Options{PublicRateLimitRPS: 10_000}
	for _, opt := range opts {
		opt(&ledgerOpts, &routerOpts)
	}

	ledger := service.NewLedgerService(gw, nil, ledgerOpts)
	router := api.NewRouter(routerOpts, zap.NewNop(), ledger, nil, nil, nil)
	return &testAPI{router: router.Routes(), ledger: ledger, gateway: gw}
}

func (a *testAPI) do(t *testing.T, method, path string, body any, headers ...string) (*httptest.ResponseRecorder, envelopeBody) {
	t.Helper()
	return a.doCtx(t, context.Background(), method, path, body, headers...)
}

func (a *testAPI) doCtx(t *testing.T, ctx context.Context, method, path string, body any, headers ...string) (*httptest.ResponseRecorder, envelopeBody) {
	t.Helper()

	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, reader).WithContext(ctx)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)

	var env envelopeBody
	if strings.HasPrefix(w.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	}
	return w, env
}

func decodeData(t *testing.T, env envelopeBody) map[string]any {
	t.Helper()
	var data map[string]any
	require.NoError(t, json.Unmarshal(env.Data, &data))
	return data
}

func payoutBody(gamertag string, amount any) map[string]any {
	return map[string]any{
		"gamertag":  gamertag,
		"amount":    amount,
		"projectId": seedProject,
	}
}

func TestCreatePayoutAndIdempotentReplay(t *testing.T) {
	a := setupAPI(t)

	body := payoutBody("player1", 1000)
	body["idempotencyKey"] = "reward-1"

	w, env := a.do(t, http.MethodPost, "/payouts", body)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.True(t, env.Success)
	created := decodeData(t, env)
	assert.EqualValues(t, 20, created["fee"])
	assert.EqualValues(t, 1020, created["totalCost"])
	assert.Equal(t, domain.PayoutStatusCompleted, created["status"])
	assert.NotEmpty(t, w.Header().Get("X-Trace-ID"))

	w, env = a.do(t, http.MethodPost, "/payouts", body)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "true", w.Header().Get("X-Idempotent-Replay"))
	assert.Equal(t, created["id"], decodeData(t, env)["id"])

	w, env = a.do(t, http.MethodGet, "/projects/"+seedProject+"/balance", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 98_980, decodeData(t, env)["balance"])
}

func TestCreatePayoutIdempotencyHeaderFallback(t *testing.T) {
	a := setupAPI(t)

	w, first := a.do(t, http.MethodPost, "/payouts", payoutBody("player1", 500), "Idempotency-Key", "hdr-1")
	require.Equal(t, http.StatusCreated, w.Code)

	w, second := a.do(t, http.MethodPost, "/payouts", payoutBody("player1", 500), "Idempotency-Key", "hdr-1")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, decodeData(t, first)["id"], decodeData(t, second)["id"])
}

func TestCreatePayoutErrorResponses(t *testing.T) {
	cases := []struct {
		name   string
		body   any
		status int
		code   string
	}{
		{name: "malformed_json", body: `{"gamertag":`, status: http.StatusBadRequest, code: domain.CodeValidationError},
		{name: "missing_fields", body: map[string]any{"amount": 10}, status: http.StatusBadRequest, code: domain.CodeValidationError},
		{name: "zero_amount", body: payoutBody("p", 0), status: http.StatusBadRequest, code: domain.CodeInvalidAmount},
		{name: "fractional_amount", body: payoutBody("p", 10.5), status: http.StatusBadRequest, code: domain.CodeInvalidAmount},
		{name: "string_amount", body: payoutBody("p", "100"), status: http.StatusBadRequest, code: domain.CodeInvalidAmount},
		{name: "too_large", body: payoutBody("p", 100_001), status: http.StatusBadRequest, code: domain.CodeInvalidAmount},
		{name: "long_description", body: func() map[string]any {
			b := payoutBody("p", 10)
			b["description"] = strings.Repeat("x", 145)
			return b
		}(), status: http.StatusBadRequest, code: domain.CodeDescriptionTooLong},
		{name: "bad_callback", body: func() map[string]any {
			b := payoutBody("p", 10)
			b["callbackUrl"] = "ws://example.com"
			return b
		}(), status: http.StatusBadRequest, code: domain.CodeInvalidCallbackURL},
		{name: "expires_in_too_large", body: func() map[string]any {
			b := payoutBody("p", 10)
			b["expiresIn"] = int64(10_000_000_000)
			return b
		}(), status: http.StatusBadRequest, code: domain.CodeValidationError},
		{name: "unknown_project", body: map[string]any{"gamertag": "p", "amount": 10, "projectId": "ghost"}, status: http.StatusNotFound, code: domain.CodeProjectNotFound},
		{name: "insufficient_balance", body: payoutBody("p", 99_000), status: http.StatusPaymentRequired, code: domain.CodeInsufficientBalance},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			a := setupAPI(t)
			w, env := a.do(t, http.MethodPost, "/payouts", tc.body)
			require.Equal(t, tc.status, w.Code, w.Body.String())
			assert.False(t, env.Success)
			assert.NotEmpty(t, env.Message)
			assert.Equal(t, tc.code, decodeData(t, env)["error"])
		})
	}
}

func TestInsufficientBalanceCarriesBreakdown(t *testing.T) {
	a := setupAPI(t)

	w, env := a.do(t, http.MethodPost, "/payouts", payoutBody("player1", 99_000))
	require.Equal(t, http.StatusPaymentRequired, w.Code)
	data := decodeData(t, env)
	assert.EqualValues(t, 99_000, data["amount"])
	assert.EqualValues(t, 1980, data["fee"])
	assert.EqualValues(t, 100_980, data["totalCost"])
	assert.EqualValues(t, 100_000, data["balance"])
}

func TestRateLimitReturns429WithRetryAfter(t *testing.T) {
	a := setupAPI(t)

	for i := 0; i < domain.RateLimitMaxPayouts; i++ {
		w, _ := a.do(t, http.MethodPost, "/payouts", payoutBody("player1", 10))
		require.Equal(t, http.StatusCreated, w.Code)
	}

	w, env := a.do(t, http.MethodPost, "/payouts", payoutBody("player1", 10))
	require.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, domain.CodeRateLimitExceeded, decodeData(t, env)["error"])
	assert.NotEmpty(t, w.Header().Get("Retry-After"))
	assert.EqualValues(t, domain.RateLimitMaxPayouts, decodeData(t, env)["limit"])
}

func TestGatewayTimeoutReturns504(t *testing.T) {
	a := setupAPI(t)

	w, env := a.do(t, http.MethodPost, "/test/failure-injection", map[string]any{
		"enabled":           true,
		"timeoutRate":       1.0,
		"rollbackOnTimeout": true,
	})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, decodeData(t, env)["enabled"])

	w, env = a.do(t, http.MethodPost, "/payouts", payoutBody("player1", 1000))
	require.Equal(t, http.StatusGatewayTimeout, w.Code)
	data := decodeData(t, env)
	assert.Equal(t, domain.CodeGatewayTimeout, data["error"])
	assert.Equal(t, true, data["rolledBack"])
	assert.EqualValues(t, 100_000, data["balance"])
}

func TestCallerTimeoutReturns503(t *testing.T) {
	slow := gateway.NewMockGateway(gateway.WithSettlementDelay(time.Second, time.Second))
	ledgerOpts := service.DefaultOptions()
	ledgerOpts.SeedProjectID = seedProject
	ledgerOpts.SeedProjectBalance = 100_000
	ledger := service.NewLedgerService(slow, nil, ledgerOpts)
	a := &testAPI{
		router:  api.NewRouter(api.Options{}, zap.NewNop(), ledger, nil, nil, nil).Routes(),
		ledger:  ledger,
		gateway: slow,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	w, env := a.doCtx(t, ctx, http.MethodPost, "/payouts", payoutBody("player1", 1000))
	require.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, domain.CodeRequestTimeout, decodeData(t, env)["error"])

	p, err := ledger.GetBalance(context.Background(), seedProject)
	require.NoError(t, err)
	assert.Equal(t, int64(100_000), p.Balance)
}

func TestPayoutLookupRoutes(t *testing.T) {
	a := setupAPI(t)

	body := payoutBody("player1", 100)
	body["internalId"] = "order-9"
	w, env := a.do(t, http.MethodPost, "/payouts", body)
	require.Equal(t, http.StatusCreated, w.Code)
	id := decodeData(t, env)["id"].(string)

	w, env = a.do(t, http.MethodGet, "/payouts/"+id, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, id, decodeData(t, env)["id"])

	w, env = a.do(t, http.MethodGet, "/payouts/by-internal-id/order-9", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, id, decodeData(t, env)["id"])

	w, env = a.do(t, http.MethodGet, "/payouts/nope", nil)
	require.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, domain.CodePayoutNotFound, decodeData(t, env)["error"])

	w, _ = a.do(t, http.MethodGet, "/payouts/by-internal-id/nope", nil)
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestUpdateStatusRoute(t *testing.T) {
	a := setupAPI(t)
	w, env := a.do(t, http.MethodPost, "/payouts", payoutBody("player1", 100))
	require.Equal(t, http.StatusCreated, w.Code)
	id := decodeData(t, env)["id"].(string)

	w, env = a.do(t, http.MethodPatch, "/payouts/"+id+"/status", map[string]string{"status": "processing"})
	require.Equal(t, http.StatusBadRequest, w.Code)
	data := decodeData(t, env)
	assert.Equal(t, domain.CodeInvalidStatus, data["error"])
	assert.Len(t, data["validStatuses"], 4)

	w, env = a.do(t, http.MethodPatch, "/payouts/"+id+"/status", map[string]string{"status": "error"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "error", decodeData(t, env)["status"])

	w, _ = a.do(t, http.MethodPatch, "/payouts/missing/status", map[string]string{"status": "error"})
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestStrictStatusTransitionReturns409(t *testing.T) {
	a := setupAPI(t, func(o *service.Options, _ *api.Options) { o.StrictStatusTransitions = true })
	w, env := a.do(t, http.MethodPost, "/payouts", payoutBody("player1", 100))
	require.Equal(t, http.StatusCreated, w.Code)
	id := decodeData(t, env)["id"].(string)

	w, env = a.do(t, http.MethodPatch, "/payouts/"+id+"/status", map[string]string{"status": "pending"})
	require.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, domain.CodeInvalidStatusTransition, decodeData(t, env)["error"])
}

func TestFundAndBalanceRoutes(t *testing.T) {
	a := setupAPI(t)

	w, env := a.do(t, http.MethodGet, "/projects/new-proj/balance", nil)
	require.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, domain.CodeProjectNotFound, decodeData(t, env)["error"])

	w, env = a.do(t, http.MethodPost, "/projects/new-proj/fund", map[string]any{"amount": 2500})
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 2500, decodeData(t, env)["balance"])

	w, env = a.do(t, http.MethodPost, "/projects/new-proj/fund", map[string]any{"amount": 500})
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 3000, decodeData(t, env)["balance"])

	for _, bad := range []any{map[string]any{"amount": 0}, map[string]any{"amount": -5}, map[string]any{"amount": 1.5}, map[string]any{}} {
		w, env = a.do(t, http.MethodPost, "/projects/new-proj/fund", bad)
		require.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, domain.CodeInvalidAmount, decodeData(t, env)["error"])
	}

	w, env = a.do(t, http.MethodGet, "/projects/new-proj/balance", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 3000, decodeData(t, env)["balance"])
}

func TestFailureInjectionPartialUpdate(t *testing.T) {
	a := setupAPI(t)

	w, env := a.do(t, http.MethodPost, "/test/failure-injection", map[string]any{
		"enabled":     "yes",
		"timeoutRate": 2.5,
	})
	require.Equal(t, http.StatusOK, w.Code)
	data := decodeData(t, env)
	assert.Equal(t, false, data["enabled"], "non-boolean is ignored")
	assert.EqualValues(t, 1, data["timeoutRate"], "rate is clamped")

	w, env = a.do(t, http.MethodPost, "/test/failure-injection", map[string]any{"rollbackOnTimeout": true})
	require.Equal(t, http.StatusOK, w.Code)

	w, env = a.do(t, http.MethodGet, "/test/failure-injection", nil)
	require.Equal(t, http.StatusOK, w.Code)
	data = decodeData(t, env)
	assert.Equal(t, false, data["enabled"])
	assert.EqualValues(t, 1, data["timeoutRate"])
	assert.Equal(t, true, data["rollbackOnTimeout"])

	w, _ = a.do(t, http.MethodPost, "/test/failure-injection", `not json`)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestExpireAndCallbackLog(t *testing.T) {
	a := setupAPI(t)

	body := payoutBody("player1", 100)
	body["callbackUrl"] = "https://example.com/hook"
	w, env := a.do(t, http.MethodPost, "/payouts", body)
	require.Equal(t, http.StatusCreated, w.Code)
	id := decodeData(t, env)["id"].(string)

	w, env = a.do(t, http.MethodPost, "/test/expire/"+id, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, domain.PayoutStatusExpired, decodeData(t, env)["status"])

	w, _ = a.do(t, http.MethodPost, "/test/expire/missing", nil)
	require.Equal(t, http.StatusNotFound, w.Code)

	w, env = a.do(t, http.MethodGet, "/test/callbacks", nil)
	require.Equal(t, http.StatusOK, w.Code)
	data := decodeData(t, env)
	assert.EqualValues(t, 2, data["count"])
	callbacks := data["callbacks"].([]any)
	last := callbacks[1].(map[string]any)
	assert.Equal(t, domain.EventPayoutExpired, last["event"])
	assert.Equal(t, "https://example.com/hook", last["url"])
}

func TestResetReseedsProject(t *testing.T) {
	a := setupAPI(t)

	w, _ := a.do(t, http.MethodPost, "/payouts", payoutBody("player1", 1000))
	require.Equal(t, http.StatusCreated, w.Code)
	w, _ = a.do(t, http.MethodPost, "/projects/other/fund", map[string]any{"amount": 10})
	require.Equal(t, http.StatusOK, w.Code)

	w, env := a.do(t, http.MethodDelete, "/test/reset", nil)
	require.Equal(t, http.StatusOK, w.Code)
	project := decodeData(t, env)["project"].(map[string]any)
	assert.EqualValues(t, 100_000, project["balance"])

	w, _ = a.do(t, http.MethodGet, "/projects/other/balance", nil)
	require.Equal(t, http.StatusNotFound, w.Code)

	w, env = a.do(t, http.MethodGet, "/test/payouts", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 0, decodeData(t, env)["count"])

	w, env = a.do(t, http.MethodGet, "/test/reconciliation", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, decodeData(t, env)["balanced"])
}

func TestAdminAuthGuardsTestRoutes(t *testing.T) {
	a := setupAPI(t, func(_ *service.Options, o *api.Options) { o.AdminJWTSecret = testSecret })

	w, env := a.do(t, http.MethodGet, "/test/callbacks", nil)
	require.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, domain.CodeUnauthorized, decodeData(t, env)["error"])

	w, _ = a.do(t, http.MethodGet, "/test/callbacks", nil, "Authorization", "Bearer not-a-token")
	require.Equal(t, http.StatusUnauthorized, w.Code)

	wrongKey, err := middleware.NewAdminToken("some-other-secret-0123456789-abcdef", "ops", time.Minute)
	require.NoError(t, err)
	w, _ = a.do(t, http.MethodGet, "/test/callbacks", nil, "Authorization", "Bearer "+wrongKey)
	require.Equal(t, http.StatusUnauthorized, w.Code)

	token, err := middleware.NewAdminToken(testSecret, "ops", time.Minute)
	require.NoError(t, err)
	w, _ = a.do(t, http.MethodGet, "/test/callbacks", nil, "Authorization", "Bearer "+token)
	require.Equal(t, http.StatusOK, w.Code)

	w, _ = a.do(t, http.MethodPost, "/payouts", payoutBody("player1", 10))
	require.Equal(t, http.StatusCreated, w.Code, "public routes are not guarded")
}

func TestUnknownRouteReturnsEnvelope(t *testing.T) {
	a := setupAPI(t)

	w, env := a.do(t, http.MethodGet, "/nowhere", nil)
	require.Equal(t, http.StatusNotFound, w.Code)
	assert.False(t, env.Success)
	assert.Equal(t, domain.CodeNotFound, decodeData(t, env)["error"])
}

func TestHealthAndMetrics(t *testing.T) {
	a := setupAPI(t)

	cases := []struct {
		name string
		path string
	}{
		{name: "live", path: "/health"},
		{name: "ready", path: "/health/ready"},
		{name: "metrics", path: "/metrics"},
		{name: "openapi", path: "/openapi.yaml"},
		{name: "swagger", path: "/docs/index.html"},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tc.path, nil)
			w := httptest.NewRecorder()
			a.router.ServeHTTP(w, req)
			assert.Equal(t, http.StatusOK, w.Code)
		})
	}
}

func TestOpenAPIRevalidation(t *testing.T) {
	a := setupAPI(t)

	w, _ := a.do(t, http.MethodGet, "/openapi.yaml", nil)
	require.Equal(t, http.StatusOK, w.Code)
	etag := w.Header().Get("ETag")
	require.NotEmpty(t, etag)
	assert.Contains(t, w.Body.String(), "openapi:")

	w, _ = a.do(t, http.MethodGet, "/openapi.yaml", nil, "If-None-Match", etag)
	assert.Equal(t, http.StatusNotModified, w.Code)
	assert.Empty(t, w.Body.String())
}

func TestErrorEnvelopeUsesPropagatedTraceID(t *testing.T) {
	a := setupAPI(t)

	w, env := a.do(t, http.MethodGet, "/payouts/missing", nil, "X-Trace-ID", "caller-trace-1")
	require.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "caller-trace-1", w.Header().Get("X-Trace-ID"))
	assert.Equal(t, "caller-trace-1", decodeData(t, env)["traceId"])

	w, env = a.do(t, http.MethodGet, "/payouts/missing", nil, "X-Trace-ID", "has spaces")
	require.Equal(t, http.StatusNotFound, w.Code)
	generated := w.Header().Get("X-Trace-ID")
	assert.NotEqual(t, "has spaces", generated)
	assert.Equal(t, generated, decodeData(t, env)["traceId"])
}
