// Package metrics exposes Prometheus instruments for equipctl.
//
// Instruments live on the default registry and are created once by Init.
// Every recorder is safe to call before Init; it is then a no-op.
package metrics

import (
	"database/sql"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const metricPrefix = "equipctl_"

// Result labels.
const (
	ResultOK       = "ok"
	ResultRejected = "rejected"
	ResultError    = "error"
	ResultDropped  = "dropped"

	CommandPublished     = "published"
	CommandPublishFailed = "publish_failed"
	CommandRejected      = "rejected"
)

// Logger receives gauge query failures.
type Logger interface {
	Warn(msg string, args ...any)
}

var (
	registerOnce sync.Once

	ingestMessages *prometheus.CounterVec
	ingestLatency  *prometheus.HistogramVec
	ingestWorkers  prometheus.Gauge

	commandsTotal   *prometheus.CounterVec
	simulatedTotal  *prometheus.CounterVec
	reservationsOps *prometheus.CounterVec

	httpRequests *prometheus.CounterVec
	httpLatency  *prometheus.HistogramVec
)

// Init registers all instruments. When db is non-nil, gauges backed by
// COUNT(*) queries are registered too and evaluated on every scrape.
// Calls after the first are ignored.
func Init(db *sql.DB, logger Logger) {
	registerOnce.Do(func() {
		ingestMessages = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "ingest_messages_total",
				Help: "Inbound device messages by kind and result",
			},
			[]string{"kind", "result"},
		)
		ingestLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "ingest_latency_seconds",
				Help:    "Time from enqueue to handled, by kind",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"kind"},
		)
		ingestWorkers = prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: metricPrefix + "ingest_workers",
				Help: "Per-equipment ingest workers currently running",
			},
		)

		commandsTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "commands_total",
				Help: "Submitted commands by outcome",
			},
			[]string{"result"},
		)
		simulatedTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "simulated_commands_total",
				Help: "Commands executed by the device simulator, by type",
			},
			[]string{"command_type"},
		)
		reservationsOps = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "reservation_operations_total",
				Help: "Reservation ledger operations by operation and result",
			},
			[]string{"op", "result"},
		)

		httpRequests = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "http_requests_total",
				Help: "HTTP requests by method, route pattern and status code",
			},
			[]string{"method", "route", "code"},
		)
		httpLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "http_request_duration_seconds",
				Help:    "HTTP request latency by method and route pattern",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		)

		prometheus.MustRegister(
			ingestMessages,
			ingestLatency,
			ingestWorkers,
			commandsTotal,
			simulatedTotal,
			reservationsOps,
			httpRequests,
			httpLatency,
		)

		if db != nil {
			registerDBMetrics(db, logger)
		}
	})
}

// ObserveIngest records one handled inbound message.
func ObserveIngest(kind, result string, queued time.Duration) {
	if kind == "" {
		kind = "unknown"
	}
	if result == "" {
		result = ResultOK
	}
	if ingestMessages != nil {
		ingestMessages.WithLabelValues(kind, result).Inc()
	}
	if ingestLatency != nil {
		ingestLatency.WithLabelValues(kind).Observe(queued.Seconds())
	}
}

// IncIngestDropped counts a message rejected before it reached a worker.
func IncIngestDropped(kind string) {
	if kind == "" {
		kind = "unknown"
	}
	if ingestMessages != nil {
		ingestMessages.WithLabelValues(kind, ResultDropped).Inc()
	}
}

// AddIngestWorkers moves the running worker gauge by delta.
func AddIngestWorkers(delta int) {
	if ingestWorkers != nil {
		ingestWorkers.Add(float64(delta))
	}
}

// IncCommand counts a submitted command by outcome.
func IncCommand(result string) {
	if result == "" {
		result = "unknown"
	}
	if commandsTotal != nil {
		commandsTotal.WithLabelValues(result).Inc()
	}
}

// IncSimulated counts a simulator run.
func IncSimulated(commandType string) {
	if simulatedTotal != nil {
		simulatedTotal.WithLabelValues(commandType).Inc()
	}
}

// IncReservationOp counts a ledger operation.
func IncReservationOp(op, result string) {
	if reservationsOps != nil {
		reservationsOps.WithLabelValues(op, result).Inc()
	}
}

// ObserveHTTP records one served request. route is the chi pattern,
// never the raw path, to keep label cardinality bounded.
func ObserveHTTP(method, route string, code int, duration time.Duration) {
	if route == "" {
		route = "unmatched"
	}
	if httpRequests != nil {
		httpRequests.WithLabelValues(method, route, statusCode(code)).Inc()
	}
	if httpLatency != nil {
		httpLatency.WithLabelValues(method, route).Observe(duration.Seconds())
	}
}

func statusCode(code int) string {
	if code < 100 || code > 999 {
		return "unknown"
	}
	return strconv.Itoa(code)
}
