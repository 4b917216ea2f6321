// Package metrics exposes a Collector interface the executor and
// scheduler report through, with a Prometheus-backed implementation and
// a no-op default so the rest of the module never has to nil-check a
// caller-supplied collector.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Collector captures the metrics this module emits. Implementations
// should be inexpensive to call since hooks run inline with every
// transaction and poll tick.
type Collector interface {
	ObserveTransactionDuration(endpoint string, seconds float64)
	IncTransactionRetries(endpoint string, count int)
	IncConnectFailure(endpoint string)
	ObservePollDuration(pollKey string, seconds float64)
	SetBorrowQueueDepth(endpoint string, depth int)
}

type noopCollector struct{}

// Noop returns a Collector that discards everything.
func Noop() Collector { return noopCollector{} }

func (noopCollector) ObserveTransactionDuration(string, float64) {}
func (noopCollector) IncTransactionRetries(string, int)          {}
func (noopCollector) IncConnectFailure(string)                   {}
func (noopCollector) ObservePollDuration(string, float64)        {}
func (noopCollector) SetBorrowQueueDepth(string, int)            {}

// PrometheusCollector exposes this module's metrics via Prometheus.
type PrometheusCollector struct {
	transactionDuration *prometheus.HistogramVec
	transactionRetries  *prometheus.CounterVec
	connectFailures     *prometheus.CounterVec
	pollDuration        *prometheus.HistogramVec
	borrowQueueDepth    *prometheus.GaugeVec
}

var (
	transactionDuration *prometheus.HistogramVec
	transactionRetries  *prometheus.CounterVec
	connectFailures     *prometheus.CounterVec
	pollDuration        *prometheus.HistogramVec
	borrowQueueDepth    *prometheus.GaugeVec
	registerLock        sync.Mutex
)

// NewPrometheusCollector creates this module's metrics and registers them
// with reg (or the default registerer if reg is nil) on the first call in
// a process. Later calls reuse those package-level collectors and register
// nothing with their reg, so tests that build several Managers in one
// process don't hit a duplicate-registration panic.
func NewPrometheusCollector(reg prometheus.Registerer) (*PrometheusCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	registerLock.Lock()
	defer registerLock.Unlock()

	if transactionDuration == nil {
		transactionDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "modbusmgr_transaction_duration_seconds",
			Help:    "Duration of a single Modbus transaction attempt, by endpoint.",
			Buckets: prometheus.DefBuckets,
		}, []string{"endpoint"})
		if err := registerOrReuse(reg, transactionDuration); err != nil {
			return nil, err
		}
	}
	if transactionRetries == nil {
		transactionRetries = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "modbusmgr_transaction_retries_total",
			Help: "Number of retry attempts made per endpoint.",
		}, []string{"endpoint"})
		if err := registerOrReuse(reg, transactionRetries); err != nil {
			return nil, err
		}
	}
	if connectFailures == nil {
		connectFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "modbusmgr_connect_failures_total",
			Help: "Number of failed connection attempts per endpoint.",
		}, []string{"endpoint"})
		if err := registerOrReuse(reg, connectFailures); err != nil {
			return nil, err
		}
	}
	if pollDuration == nil {
		pollDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "modbusmgr_poll_duration_seconds",
			Help:    "Duration of one scheduled poll's task execution.",
			Buckets: prometheus.DefBuckets,
		}, []string{"poll"})
		if err := registerOrReuse(reg, pollDuration); err != nil {
			return nil, err
		}
	}
	if borrowQueueDepth == nil {
		borrowQueueDepth = prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "modbusmgr_borrow_queue_depth",
			Help: "Number of callers currently waiting to borrow an endpoint's connection.",
		}, []string{"endpoint"})
		if err := registerOrReuse(reg, borrowQueueDepth); err != nil {
			return nil, err
		}
	}

	return &PrometheusCollector{
		transactionDuration: transactionDuration,
		transactionRetries:  transactionRetries,
		connectFailures:     connectFailures,
		pollDuration:        pollDuration,
		borrowQueueDepth:    borrowQueueDepth,
	}, nil
}

func registerOrReuse(reg prometheus.Registerer, c prometheus.Collector) error {
	if err := reg.Register(c); err != nil {
		if _, ok := err.(prometheus.AlreadyRegisteredError); ok {
			return nil
		}
		return err
	}
	return nil
}

// ObserveTransactionDuration implements Collector.
func (p *PrometheusCollector) ObserveTransactionDuration(endpoint string, seconds float64) {
	p.transactionDuration.WithLabelValues(endpoint).Observe(seconds)
}

// IncTransactionRetries implements Collector.
func (p *PrometheusCollector) IncTransactionRetries(endpoint string, count int) {
	if count <= 0 {
		return
	}
	p.transactionRetries.WithLabelValues(endpoint).Add(float64(count))
}

// IncConnectFailure implements Collector.
func (p *PrometheusCollector) IncConnectFailure(endpoint string) {
	p.connectFailures.WithLabelValues(endpoint).Inc()
}

// ObservePollDuration implements Collector.
func (p *PrometheusCollector) ObservePollDuration(pollKey string, seconds float64) {
	p.pollDuration.WithLabelValues(pollKey).Observe(seconds)
}

// SetBorrowQueueDepth implements Collector.
func (p *PrometheusCollector) SetBorrowQueueDepth(endpoint string, depth int) {
	p.borrowQueueDepth.WithLabelValues(endpoint).Set(float64(depth))
}
