package api

import (
	"net/http"

	"github.com/ayo6706/payout-ledger/internal/api/envelope"
	"github.com/ayo6706/payout-ledger/internal/api/handler"
	"github.com/ayo6706/payout-ledger/internal/api/middleware"
	"github.com/ayo6706/payout-ledger/internal/api/spec"
	"github.com/ayo6706/payout-ledger/internal/domain"
	"github.com/ayo6706/payout-ledger/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	httpSwagger "github.com/swaggo/http-swagger/v2"
	"go.uber.org/zap"
)

// Options configures the HTTP surface.
type Options struct {
	PublicRateLimitRPS int
	// AdminJWTSecret guards /test/* when set.
	AdminJWTSecret string
}

type Router struct {
	opts       Options
	logger     *zap.Logger
	ledger     *service.LedgerService
	reconciler *service.ReconciliationService
	db         *pgxpool.Pool
	redis      redis.Cmdable
}

// NewRouter wires handlers over the ledger. db and redis may be nil.
func NewRouter(opts Options, logger *zap.Logger, ledger *service.LedgerService, reconciler *service.ReconciliationService, db *pgxpool.Pool, redis redis.Cmdable) *Router {
	if logger == nil {
		logger = zap.L()
	}
	if reconciler == nil {
		reconciler = service.NewReconciliationService(ledger)
	}
	return &Router{
		opts:       opts,
		logger:     logger,
		ledger:     ledger,
		reconciler: reconciler,
		db:         db,
		redis:      redis,
	}
}

func (api *Router) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.TraceMiddleware)
	r.Use(middleware.RecoverMiddleware(api.logger))
	r.Use(middleware.LoggingMiddleware(api.logger))
	r.Use(middleware.MetricsMiddleware)

	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		envelope.Error(w, req, http.StatusNotFound, domain.CodeNotFound, "route not found", nil)
	})

	payoutHandler := handler.NewPayoutHandler(api.ledger)
	projectHandler := handler.NewProjectHandler(api.ledger)
	adminHandler := handler.NewAdminHandler(api.ledger, api.reconciler)
	healthHandler := handler.NewHealthHandler(api.db, api.redis)

	r.Get("/health", healthHandler.Live)
	r.Get("/health/ready", healthHandler.Ready)
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/openapi.yaml", spec.OpenAPIHandler())
	r.Get("/docs/*", httpSwagger.Handler(httpSwagger.URL("/openapi.yaml")))

	r.Group(func(r chi.Router) {
		if api.opts.PublicRateLimitRPS > 0 {
			r.Use(middleware.PublicRateLimiter(api.opts.PublicRateLimitRPS))
		}

		r.Post("/payouts", payoutHandler.CreatePayout)
		r.Get("/payouts/by-internal-id/{internalId}", payoutHandler.GetPayoutByInternalID)
		r.Get("/payouts/{id}", payoutHandler.GetPayout)
		r.Patch("/payouts/{id}/status", payoutHandler.UpdateStatus)

		r.Get("/projects/{id}/balance", projectHandler.GetBalance)
		r.Post("/projects/{id}/fund", projectHandler.Fund)

		r.Route("/test", func(r chi.Router) {
			r.Use(middleware.AdminAuth(api.opts.AdminJWTSecret))

			r.Get("/failure-injection", adminHandler.GetFailureInjection)
			r.Post("/failure-injection", adminHandler.ConfigureFailureInjection)
			r.Post("/expire/{id}", adminHandler.ExpirePayout)
			r.Get("/callbacks", adminHandler.Callbacks)
			r.Get("/payouts", adminHandler.Payouts)
			r.Get("/reconciliation", adminHandler.Reconciliation)
			r.Delete("/reset", adminHandler.Reset)
		})
	})

	return r
}
