package metrics

import (
	"log"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.mongodb.org/mongo-driver/v2/mongo"
)

const (
	metricPrefix = "freight_"

	resultSuccess = "success"
	resultError   = "error"
)

var (
	registerOnce sync.Once

	pipelineTotal   *prometheus.CounterVec
	pipelineLatency *prometheus.HistogramVec

	exportTotal   *prometheus.CounterVec
	exportLatency *prometheus.HistogramVec

	currencyRefreshTotal   *prometheus.CounterVec
	currencyRefreshLatency *prometheus.HistogramVec

	loginTotal      *prometheus.CounterVec
	invitationTotal *prometheus.CounterVec
)

// Init registers observability metrics and DB-backed gauges.
func Init(db *mongo.Database, logger *log.Logger) {
	registerOnce.Do(func() {
		pipelineTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "pipeline_executions_total",
				Help: "Total aggregation pipeline executions by variant and result",
			},
			[]string{"variant", "result"},
		)
		pipelineLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "pipeline_latency_seconds",
				Help:    "Aggregation pipeline latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"variant", "result"},
		)

		exportTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "export_total",
				Help: "Total export operations by format and result",
			},
			[]string{"format", "result"},
		)
		exportLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "export_latency_seconds",
				Help:    "Export latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"format", "result"},
		)

		currencyRefreshTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "currency_refresh_total",
				Help: "Total currency snapshot refreshes by result",
			},
			[]string{"result"},
		)
		currencyRefreshLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "currency_refresh_latency_seconds",
				Help:    "Currency refresh latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"result"},
		)

		loginTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "login_total",
				Help: "Total login attempts by result",
			},
			[]string{"result"},
		)
		invitationTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "invitation_events_total",
				Help: "Total invitation lifecycle events by type",
			},
			[]string{"event"},
		)

		prometheus.MustRegister(
			pipelineTotal,
			pipelineLatency,
			exportTotal,
			exportLatency,
			currencyRefreshTotal,
			currencyRefreshLatency,
			loginTotal,
			invitationTotal,
		)

		if db != nil {
			registerDBMetrics(db, logger)
		}
	})
}

// ObservePipeline records pipeline execution duration and result.
func ObservePipeline(variant, result string, duration time.Duration) {
	if variant == "" {
		variant = "unknown"
	}
	if result == "" {
		result = resultSuccess
	}
	if pipelineTotal != nil {
		pipelineTotal.WithLabelValues(variant, result).Inc()
	}
	if pipelineLatency != nil {
		pipelineLatency.WithLabelValues(variant, result).Observe(duration.Seconds())
	}
}

// ObserveExport records export latency and result.
func ObserveExport(format, result string, duration time.Duration) {
	if format == "" {
		format = "unknown"
	}
	if result == "" {
		result = resultSuccess
	}
	if exportTotal != nil {
		exportTotal.WithLabelValues(format, result).Inc()
	}
	if exportLatency != nil {
		exportLatency.WithLabelValues(format, result).Observe(duration.Seconds())
	}
}

// ObserveCurrencyRefresh records refresh latency and result.
func ObserveCurrencyRefresh(result string, duration time.Duration) {
	if result == "" {
		result = resultSuccess
	}
	if currencyRefreshTotal != nil {
		currencyRefreshTotal.WithLabelValues(result).Inc()
	}
	if currencyRefreshLatency != nil {
		currencyRefreshLatency.WithLabelValues(result).Observe(duration.Seconds())
	}
}

// IncLogin increments the login counter.
func IncLogin(result string) {
	if result == "" {
		result = "unknown"
	}
	if loginTotal != nil {
		loginTotal.WithLabelValues(result).Inc()
	}
}

// IncInvitationEvent increments invitation lifecycle counters.
func IncInvitationEvent(event string) {
	if event == "" {
		event = "unknown"
	}
	if invitationTotal != nil {
		invitationTotal.WithLabelValues(event).Inc()
	}
}

// Exported constants for callers.
const (
	ResultSuccess = resultSuccess
	ResultError   = resultError

	InvitationSent     = "sent"
	InvitationAccepted = "accepted"
	InvitationRevoked  = "revoked"
)
