package formstage

import (
	"context"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics collects Prometheus metrics for engine operations and storage recoveries.
type Metrics struct {
	operationsTotal   *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
	storageRecoveries *prometheus.CounterVec
	activeSessions    prometheus.Gauge
}

// NewMetrics registers the engine collectors on reg. A nil reg uses the default registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		operationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "formstage_operations_total",
				Help: "Total number of engine operations by outcome",
			},
			[]string{"operation", "outcome"},
		),
		operationDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "formstage_operation_duration_seconds",
				Help:    "Engine operation duration in seconds",
				Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 1},
			},
			[]string{"operation"},
		),
		storageRecoveries: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "formstage_storage_recoveries_total",
				Help: "Stored documents that failed to parse and were replaced by an empty collection",
			},
			[]string{"collection"},
		),
		activeSessions: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "formstage_active_sessions",
				Help: "Number of sessions with a stage open for configuration",
			},
		),
	}
}

// Middleware returns an operation middleware that counts and times every operation
func (m *Metrics) Middleware() Middleware {
	return func(next OperationFunc) OperationFunc {
		return func(ctx context.Context, op *Operation, logger Logger) error {
			start := time.Now()
			err := next(ctx, op, logger)

			m.operationDuration.WithLabelValues(op.Name).Observe(time.Since(start).Seconds())
			m.operationsTotal.WithLabelValues(op.Name, outcome(err)).Inc()
			return err
		}
	}
}

// RecordCorrupt counts one recovered corrupt document. key is reduced to its collection name
// so per-category keys don't explode cardinality.
func (m *Metrics) RecordCorrupt(key string) {
	m.storageRecoveries.WithLabelValues(collectionOf(key)).Inc()
}

func (m *Metrics) sessionOpened() {
	m.activeSessions.Inc()
}

func (m *Metrics) sessionClosed() {
	m.activeSessions.Dec()
}

func outcome(err error) string {
	if err == nil {
		return "ok"
	}
	if kind := KindOf(err); kind != "" {
		return string(kind)
	}
	return "error"
}

func collectionOf(key string) string {
	if strings.HasPrefix(key, PrefixFormVersions) {
		return "formVersions"
	}
	return key
}
