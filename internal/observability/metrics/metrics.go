package metrics

import (
	"database/sql"
	"log"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	metricPrefix = "settlement_"

	resultSuccess = "success"
	resultError   = "error"
)

var (
	registerOnce sync.Once

	periodTotal   *prometheus.CounterVec
	periodLatency *prometheus.HistogramVec

	runsTotal *prometheus.CounterVec

	lockWait prometheus.Histogram

	advanceTotal *prometheus.CounterVec

	correctionTotal *prometheus.CounterVec

	exportTotal   *prometheus.CounterVec
	exportLatency *prometheus.HistogramVec

	outboxDispatchTotal   *prometheus.CounterVec
	outboxDispatchLatency *prometheus.HistogramVec
	outboxEvents          *prometheus.CounterVec
)

// Init registers settlement metrics and DB-backed gauges.
func Init(db *sql.DB, logger *log.Logger) {
	registerOnce.Do(func() {
		periodTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "period_total",
				Help: "Total settled periods by result",
			},
			[]string{"result"},
		)
		periodLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "period_latency_seconds",
				Help:    "Period settlement latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"result"},
		)

		runsTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "runs_total",
				Help: "Total persisted settlement runs by status",
			},
			[]string{"status"},
		)

		lockWait = prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "lock_wait_seconds",
				Help:    "Time spent waiting for the period lock",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
			},
		)

		advanceTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "advance_total",
				Help: "Total metering point advancements by outcome",
			},
			[]string{"outcome"},
		)

		correctionTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "correction_total",
				Help: "Total correction previews by result",
			},
			[]string{"result"},
		)

		exportTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "export_total",
				Help: "Total run export operations by format and result",
			},
			[]string{"format", "result"},
		)
		exportLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "export_latency_seconds",
				Help:    "Run export latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"format", "result"},
		)

		outboxDispatchTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "outbox_dispatch_total",
				Help: "Total outbox dispatch runs by result",
			},
			[]string{"result"},
		)
		outboxDispatchLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "outbox_dispatch_latency_seconds",
				Help:    "Outbox dispatch latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"result"},
		)
		outboxEvents = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "outbox_events_total",
				Help: "Outbox events by delivery outcome",
			},
			[]string{"outcome"},
		)

		prometheus.MustRegister(
			periodTotal,
			periodLatency,
			runsTotal,
			lockWait,
			advanceTotal,
			correctionTotal,
			exportTotal,
			exportLatency,
			outboxDispatchTotal,
			outboxDispatchLatency,
			outboxEvents,
		)

		if db != nil {
			registerDBMetrics(db, logger)
		}
	})
}

// ObservePeriod records one period settlement attempt.
func ObservePeriod(result string, duration time.Duration) {
	if result == "" {
		result = resultSuccess
	}
	if periodTotal != nil {
		periodTotal.WithLabelValues(result).Inc()
	}
	if periodLatency != nil {
		periodLatency.WithLabelValues(result).Observe(duration.Seconds())
	}
}

// IncRun increments persisted runs by status.
func IncRun(status string) {
	if status == "" {
		status = "unknown"
	}
	if runsTotal != nil {
		runsTotal.WithLabelValues(status).Inc()
	}
}

// ObserveLockWait records how long a store waited for its period lock.
func ObserveLockWait(duration time.Duration) {
	if lockWait != nil {
		lockWait.Observe(duration.Seconds())
	}
}

// IncAdvance increments advancement outcomes.
func IncAdvance(outcome string) {
	if outcome == "" {
		outcome = "unknown"
	}
	if advanceTotal != nil {
		advanceTotal.WithLabelValues(outcome).Inc()
	}
}

// IncCorrection increments correction previews by result.
func IncCorrection(result string) {
	if result == "" {
		result = resultSuccess
	}
	if correctionTotal != nil {
		correctionTotal.WithLabelValues(result).Inc()
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

// ObserveOutboxDispatch records one dispatch run and its per-event outcomes.
func ObserveOutboxDispatch(result string, duration time.Duration, sent, failed, dlq int) {
	if result == "" {
		result = resultSuccess
	}
	if outboxDispatchTotal != nil {
		outboxDispatchTotal.WithLabelValues(result).Inc()
	}
	if outboxDispatchLatency != nil {
		outboxDispatchLatency.WithLabelValues(result).Observe(duration.Seconds())
	}
	if outboxEvents != nil {
		outboxEvents.WithLabelValues("sent").Add(float64(sent))
		outboxEvents.WithLabelValues("failed").Add(float64(failed))
		outboxEvents.WithLabelValues("dlq").Add(float64(dlq))
	}
}

// Exported constants for callers.
const (
	ResultSuccess = resultSuccess
	ResultError   = resultError
)
