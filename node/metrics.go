package node

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	metricsNamespace = "craftberry"
	metricsSubsystem = "node"
)

// Metrics tracks the node's message flow.
type Metrics struct {
	submitted       prometheus.Counter
	rejected        *prometheus.CounterVec
	dispatchSeconds prometheus.Histogram
}

// NewMetrics registers the node's metrics with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		submitted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "messages_submitted_total",
			Help:      "Messages handed to Submit.",
		}),
		rejected: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "messages_rejected_total",
			Help:      "Messages rejected before dispatch, by reason.",
		}, []string{"reason"}),
		dispatchSeconds: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "dispatch_seconds",
			Help:      "Time spent dispatching one message through the registry.",
			Buckets:   prometheus.DefBuckets,
		}),
	}
}

// RecordSubmitted counts one inbound message.
func (m *Metrics) RecordSubmitted() {
	m.submitted.Inc()
}

// RecordRejected counts one pre-dispatch rejection.
func (m *Metrics) RecordRejected(reason string) {
	m.rejected.WithLabelValues(reason).Inc()
}

// RecordDispatch observes one dispatch duration.
func (m *Metrics) RecordDispatch(d time.Duration) {
	m.dispatchSeconds.Observe(d.Seconds())
}
