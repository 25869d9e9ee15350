package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce           sync.Once
	httpDurationHistogram  *prometheus.HistogramVec
	payoutCounter          *prometheus.CounterVec
	payoutAmountCounter    *prometheus.CounterVec
	idempotencyCounter     *prometheus.CounterVec
	gatewayTimeoutCounter  *prometheus.CounterVec
	ledgerImbalanceCounter *prometheus.CounterVec
	callbackCounter        *prometheus.CounterVec
	workerRunCounter       *prometheus.CounterVec
)

// Init registers all Prometheus collectors.
func Init() {
	registerOnce.Do(func() {
		httpDurationHistogram = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path", "status"})

		payoutCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "payout_attempts_total",
			Help: "Payout attempts by outcome",
		}, []string{"outcome"})

		payoutAmountCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "payout_sats_total",
			Help: "Sats moved by committed payouts, split into amount and fee",
		}, []string{"component"})

		idempotencyCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "idempotency_events_total",
			Help: "Idempotency index outcomes",
		}, []string{"outcome"})

		gatewayTimeoutCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gateway_timeouts_total",
			Help: "Simulated gateway timeouts by rollback outcome",
		}, []string{"rolled_back"})

		ledgerImbalanceCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ledger_imbalance_total",
			Help: "Number of times project balances diverged from funded minus spent",
		}, []string{"kind"})

		callbackCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "callbacks_total",
			Help: "Callback log entries by event and publish result",
		}, []string{"event", "result"})

		workerRunCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "worker_runs_total",
			Help: "Background worker run outcomes",
		}, []string{"worker", "result"})

		prometheus.MustRegister(
			httpDurationHistogram,
			payoutCounter,
			payoutAmountCounter,
			idempotencyCounter,
			gatewayTimeoutCounter,
			ledgerImbalanceCounter,
			callbackCounter,
			workerRunCounter,
		)
	})
}

func ObserveHTTP(method, path string, status int, duration time.Duration) {
	if httpDurationHistogram == nil {
		return
	}
	httpDurationHistogram.WithLabelValues(method, path, strconv.Itoa(status)).Observe(duration.Seconds())
}

func IncrementPayout(outcome string) {
	if payoutCounter == nil {
		return
	}
	payoutCounter.WithLabelValues(outcome).Inc()
}

func AddPayoutSats(amount, fee int64) {
	if payoutAmountCounter == nil {
		return
	}
	payoutAmountCounter.WithLabelValues("amount").Add(float64(amount))
	payoutAmountCounter.WithLabelValues("fee").Add(float64(fee))
}

func IncrementIdempotencyEvent(outcome string) {
	if idempotencyCounter == nil {
		return
	}
	idempotencyCounter.WithLabelValues(outcome).Inc()
}

func IncrementGatewayTimeout(rolledBack bool) {
	if gatewayTimeoutCounter == nil {
		return
	}
	gatewayTimeoutCounter.WithLabelValues(strconv.FormatBool(rolledBack)).Inc()
}

func IncrementLedgerImbalance(kind string) {
	if ledgerImbalanceCounter == nil {
		return
	}
	ledgerImbalanceCounter.WithLabelValues(kind).Inc()
}

func IncrementCallback(event, result string) {
	if callbackCounter == nil {
		return
	}
	callbackCounter.WithLabelValues(event, result).Inc()
}

func IncrementWorkerRun(worker, result string) {
	if workerRunCounter == nil {
		return
	}
	workerRunCounter.WithLabelValues(worker, result).Inc()
}
