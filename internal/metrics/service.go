// Package metrics exposes the service's Prometheus collectors.
package metrics

import (
	"database/sql"
	"math/big"
	"time"

	"github.com/dlmiddlecote/sqlstats"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Service owns the registry and every application collector.
type Service struct {
	registry *prometheus.Registry

	batchesTotal  *prometheus.CounterVec
	subCallsTotal *prometheus.CounterVec
	batchDuration prometheus.Histogram
	refundedValue prometheus.Counter
}

func New() *Service {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	s := &Service{
		registry: registry,
		batchesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "relayer_batches_total",
			Help: "Executed batches by outcome.",
		}, []string{"status"}),
		subCallsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "relayer_sub_calls_total",
			Help: "Dispatched sub-calls by kind.",
		}, []string{"kind"}),
		batchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "relayer_batch_duration_seconds",
			Help:    "Wall time of batch execution.",
			Buckets: prometheus.DefBuckets,
		}),
		refundedValue: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "relayer_refunded_value_wei_total",
			Help: "Unspent attached value refunded to callers, in wei.",
		}),
	}

	registry.MustRegister(s.batchesTotal, s.subCallsTotal, s.batchDuration, s.refundedValue)

	return s
}

// Registry returns the registry backing the metrics endpoint.
func (s *Service) Registry() *prometheus.Registry {
	return s.registry
}

func (s *Service) ObserveBatch(status string, duration time.Duration) {
	s.batchesTotal.WithLabelValues(status).Inc()
	s.batchDuration.Observe(duration.Seconds())
}

func (s *Service) CountSubCall(kind string) {
	s.subCallsTotal.WithLabelValues(kind).Inc()
}

// AddRefundedValue accumulates the refunded wei. Amounts beyond float64
// precision lose precision in the counter, which is acceptable for a metric.
func (s *Service) AddRefundedValue(wei *big.Int) {
	if wei == nil || wei.Sign() <= 0 {
		return
	}

	f, _ := new(big.Float).SetInt(wei).Float64()
	s.refundedValue.Add(f)
}

// RegisterDBStats exposes connection pool stats of the given database.
func (s *Service) RegisterDBStats(db *sql.DB, dbName string) {
	s.registry.MustRegister(sqlstats.NewStatsCollector(dbName, db))
}
