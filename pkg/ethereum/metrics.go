package ethereum

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics are shared by every pool in the process.
type Metrics struct {
	nodesTotal   *prometheus.GaugeVec
	nodeReady    *prometheus.GaugeVec
	nodeWaits    *prometheus.CounterVec
	nodeWaitTime prometheus.Histogram
}

var (
	metricsInstance *Metrics
	once            sync.Once
)

func GetMetricsInstance(namespace string) *Metrics {
	once.Do(func() {
		metricsInstance = &Metrics{
			nodesTotal: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "nodes_total",
				Help:      "Number of execution nodes in the pool by health",
			}, []string{"type", "status"}),
			nodeReady: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "node_ready",
				Help:      "Whether an execution node is ready and synced (1) or not (0)",
			}, []string{"node"}),
			nodeWaits: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "node_waits_total",
				Help:      "Waits for a healthy execution node by outcome",
			}, []string{"outcome"}),
			nodeWaitTime: prometheus.NewHistogram(prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "node_wait_duration_seconds",
				Help:      "Time spent waiting for a healthy execution node",
				Buckets:   []float64{0.001, 0.01, 0.1, 0.5, 1, 5, 15, 60},
			}),
		}

		prometheus.MustRegister(
			metricsInstance.nodesTotal,
			metricsInstance.nodeReady,
			metricsInstance.nodeWaits,
			metricsInstance.nodeWaitTime,
		)
	})

	return metricsInstance
}

func (m *Metrics) SetNodesTotal(count float64, labels []string) {
	if m == nil || m.nodesTotal == nil {
		return
	}

	m.nodesTotal.WithLabelValues(labels...).Set(count)
}

func (m *Metrics) SetNodeReady(node string, ready bool) {
	if m == nil {
		return
	}

	v := 0.0
	if ready {
		v = 1
	}

	m.nodeReady.WithLabelValues(node).Set(v)
}

// ObserveWait records one WaitForHealthyExecutionNode call. outcome is
// "found" or "timeout".
func (m *Metrics) ObserveWait(outcome string, waited time.Duration) {
	if m == nil {
		return
	}

	m.nodeWaits.WithLabelValues(outcome).Inc()
	m.nodeWaitTime.Observe(waited.Seconds())
}
