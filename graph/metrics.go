package graph

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PrometheusMetrics collects engine execution metrics for production
// monitoring. It is a LifeCycleObserver; register it with WithMetrics or
// AddLifeCycleObserver.
//
// Metrics exposed (all namespaced with "hgraph_"):
//
//  1. ticks_total (counter): evaluation passes completed.
//     Labels: graph_id.
//
//  2. node_evaluations_total (counter): node evaluations performed.
//     Labels: graph_id, node_id.
//
//  3. tick_duration_ms (histogram): wall duration of one evaluation pass.
//     Labels: graph_id.
//
//  4. node_eval_duration_ms (histogram): wall duration of one node
//     evaluation. Labels: graph_id, node_id.
//
//  5. engine_lag_seconds (gauge): wall-clock lead over engine time,
//     sampled after each pass. Labels: graph_id.
//
// Example:
//
//	registry := prometheus.NewRegistry()
//	metrics := NewPrometheusMetrics(registry)
//	engine := NewGraphEngine(g, RunModeRealTime, WithMetrics(metrics))
//	http.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
type PrometheusMetrics struct {
	BaseLifeCycleObserver

	ticks        *prometheus.CounterVec
	nodeEvals    *prometheus.CounterVec
	tickLatency  *prometheus.HistogramVec
	nodeLatency  *prometheus.HistogramVec
	engineLag    *prometheus.GaugeVec
	tickStarted  time.Time
	nodeStarted  time.Time
}

// NewPrometheusMetrics creates and registers the engine metrics with the
// provided registry. A nil registry falls back to the default registerer.
func NewPrometheusMetrics(registry prometheus.Registerer) *PrometheusMetrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}
	factory := promauto.With(registry)

	latencyBuckets := []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 50, 100, 500, 1000}

	return &PrometheusMetrics{
		ticks: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "hgraph",
			Name:      "ticks_total",
			Help:      "Total evaluation passes completed.",
		}, []string{"graph_id"}),
		nodeEvals: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "hgraph",
			Name:      "node_evaluations_total",
			Help:      "Total node evaluations performed.",
		}, []string{"graph_id", "node_id"}),
		tickLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "hgraph",
			Name:      "tick_duration_ms",
			Help:      "Wall duration of one evaluation pass in milliseconds.",
			Buckets:   latencyBuckets,
		}, []string{"graph_id"}),
		nodeLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "hgraph",
			Name:      "node_eval_duration_ms",
			Help:      "Wall duration of one node evaluation in milliseconds.",
			Buckets:   latencyBuckets,
		}, []string{"graph_id", "node_id"}),
		engineLag: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "hgraph",
			Name:      "engine_lag_seconds",
			Help:      "Wall-clock lead over engine time, sampled after each pass.",
		}, []string{"graph_id"}),
	}
}

// OnBeforeEvaluation stamps the tick start.
func (m *PrometheusMetrics) OnBeforeEvaluation(*Graph) error {
	m.tickStarted = time.Now()
	return nil
}

// OnAfterEvaluation counts the tick and observes its latency and lag.
func (m *PrometheusMetrics) OnAfterEvaluation(g *Graph) error {
	gid := GraphIDString(g)
	m.ticks.WithLabelValues(gid).Inc()
	m.tickLatency.WithLabelValues(gid).
		Observe(float64(time.Since(m.tickStarted)) / float64(time.Millisecond))
	if ctx := g.Context(); ctx != nil {
		m.engineLag.WithLabelValues(gid).Set(ctx.EngineLag().Seconds())
	}
	return nil
}

// OnBeforeNodeEvaluation stamps the node evaluation start.
func (m *PrometheusMetrics) OnBeforeNodeEvaluation(Node) error {
	m.nodeStarted = time.Now()
	return nil
}

// OnAfterNodeEvaluation counts the evaluation and observes its latency.
func (m *PrometheusMetrics) OnAfterNodeEvaluation(n Node) error {
	gid := GraphIDString(n.Graph())
	nid := NodeIDString(n)
	m.nodeEvals.WithLabelValues(gid, nid).Inc()
	m.nodeLatency.WithLabelValues(gid, nid).
		Observe(float64(time.Since(m.nodeStarted)) / float64(time.Millisecond))
	return nil
}
