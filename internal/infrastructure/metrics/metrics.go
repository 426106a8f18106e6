// Package metrics exposes ledger and transport metrics to Prometheus from a
// dedicated registry.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sony/gobreaker"

	"storeledger/internal/core/apperror"
	"storeledger/internal/core/types"
	"storeledger/internal/infrastructure/storage/postgres"
)

// Result label of a successful operation.
const ResultOK = "ok"

// Metrics holds all storeledger collectors.
type Metrics struct {
	registry *prometheus.Registry

	LedgerOperations *prometheus.CounterVec
	LedgerAmount     *prometheus.CounterVec
	DocumentEvents   *prometheus.CounterVec

	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPPanics          *prometheus.CounterVec

	OutboxPublished *prometheus.CounterVec
	OutboxDLQ       prometheus.Counter

	CacheLookups        *prometheus.CounterVec
	CircuitBreakerState prometheus.Gauge
}

// New creates the registry and registers every collector.
func New() *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	m := &Metrics{registry: registry}

	m.LedgerOperations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledger_operations_total",
			Help: "Ledger operations by outcome; result is ok or the rejection code",
		},
		[]string{"operation", "result"},
	)

	m.LedgerAmount = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledger_amount_total",
			Help: "Money volume of created purchases and receipts",
		},
		[]string{"ledger"},
	)

	m.DocumentEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledger_document_events_total",
			Help: "Committed purchase and receipt lifecycle events",
		},
		[]string{"ledger", "event"},
	)

	m.HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	m.HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "route"},
	)

	m.HTTPPanics = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_panics_total",
			Help: "Handler panics recovered, by route",
		},
		[]string{"route"},
	)

	m.OutboxPublished = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "outbox_published_total",
			Help: "Outbox messages handled by the relay",
		},
		[]string{"result"},
	)

	m.OutboxDLQ = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "outbox_dead_lettered_total",
		Help: "Outbox messages moved to the dead letter table",
	})

	m.CacheLookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "catalog_cache_lookups_total",
			Help: "Catalog cache lookups by kind and hit/miss",
		},
		[]string{"kind", "result"},
	)

	m.CircuitBreakerState = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "kafka_circuit_breaker_state",
		Help: "Kafka breaker state (0=closed, 1=half-open, 2=open)",
	})

	registry.MustRegister(
		m.LedgerOperations,
		m.LedgerAmount,
		m.DocumentEvents,
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPPanics,
		m.OutboxPublished,
		m.OutboxDLQ,
		m.CacheLookups,
		m.CircuitBreakerState,
	)

	return m
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns the /metrics handler.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// ObserveOperation counts one ledger operation. Rejections are labelled with
// their AppError code, anything else with INTERNAL_ERROR.
func (m *Metrics) ObserveOperation(operation string, err error) {
	result := ResultOK
	if err != nil {
		result = apperror.CodeInternal
		if appErr, ok := apperror.AsAppError(err); ok {
			result = appErr.Code
		}
	}
	m.LedgerOperations.WithLabelValues(operation, result).Inc()
}

// AddAmount adds a document amount to the ledger volume.
func (m *Metrics) AddAmount(ledger string, amount types.Money) {
	if amount.IsNegative() {
		return
	}
	m.LedgerAmount.WithLabelValues(ledger).Add(amount.InexactFloat64())
}

// ObserveDocument counts a committed lifecycle event of a ledger document.
func (m *Metrics) ObserveDocument(ledger, event string) {
	m.DocumentEvents.WithLabelValues(ledger, event).Inc()
}

// ObserveHTTP records one served request.
func (m *Metrics) ObserveHTTP(method, route string, status int, elapsed time.Duration) {
	m.HTTPRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

// ObservePanic counts a recovered handler panic.
func (m *Metrics) ObservePanic(route string) {
	m.HTTPPanics.WithLabelValues(route).Inc()
}

// ObserveRelay records one relay batch.
func (m *Metrics) ObserveRelay(res postgres.RelayResult) {
	m.OutboxPublished.WithLabelValues("published").Add(float64(res.Published))
	m.OutboxPublished.WithLabelValues("failed").Add(float64(res.Failed))
}

// ObserveCache records a catalog cache lookup.
func (m *Metrics) ObserveCache(kind string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	m.CacheLookups.WithLabelValues(kind, result).Inc()
}

// ObserveBreaker records a breaker transition.
func (m *Metrics) ObserveBreaker(_, to gobreaker.State) {
	m.CircuitBreakerState.Set(float64(to))
}

// RegisterPool exports connection pool gauges read on every scrape.
func (m *Metrics) RegisterPool(pool *postgres.Pool) {
	gauge := func(name, help string, read func(postgres.PoolStats) int32) prometheus.GaugeFunc {
		return prometheus.NewGaugeFunc(prometheus.GaugeOpts{Name: name, Help: help}, func() float64 {
			return float64(read(pool.Stats()))
		})
	}
	m.registry.MustRegister(
		gauge("db_pool_total_connections", "Open connections", func(s postgres.PoolStats) int32 { return s.TotalConns }),
		gauge("db_pool_acquired_connections", "Connections in use", func(s postgres.PoolStats) int32 { return s.AcquiredConns }),
		gauge("db_pool_idle_connections", "Idle connections", func(s postgres.PoolStats) int32 { return s.IdleConns }),
		gauge("db_pool_max_connections", "Pool size limit", func(s postgres.PoolStats) int32 { return s.MaxConns }),
	)
}
