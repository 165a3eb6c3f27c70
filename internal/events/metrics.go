package events

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics exports the Prometheus counters/gauges a host scrapes alongside
// the CallbackMessage stream: iteration throughput, tool latency, and
// circuit-breaker state, grounded on the teacher's promauto.NewGauge/
// NewCounter/NewHistogram construction idiom.
type Metrics struct {
	IterationsTotal prometheus.Counter
	ToolCallsTotal  *prometheus.CounterVec
	ToolLatency     *prometheus.HistogramVec
	CircuitOpen     *prometheus.GaugeVec
	TasksRunning    prometheus.Gauge
}

var (
	metricsOnce     sync.Once
	metricsInstance *Metrics
)

// NewMetrics returns the process-wide Metrics singleton, registering its
// collectors with the default Prometheus registry on first call.
func NewMetrics() *Metrics {
	metricsOnce.Do(func() {
		metricsInstance = &Metrics{
			IterationsTotal: promauto.NewCounter(prometheus.CounterOpts{
				Name: "agentcore_react_iterations_total",
				Help: "Total ReAct iterations run across all tasks",
			}),
			ToolCallsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "agentcore_tool_calls_total",
				Help: "Total tool calls dispatched, by tool name and outcome",
			}, []string{"tool", "outcome"}),
			ToolLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
				Name:    "agentcore_tool_call_duration_seconds",
				Help:    "Tool call latency in seconds",
				Buckets: prometheus.DefBuckets,
			}, []string{"tool"}),
			CircuitOpen: promauto.NewGaugeVec(prometheus.GaugeOpts{
				Name: "agentcore_circuit_open",
				Help: "1 if the named operation's circuit breaker is open, else 0",
			}, []string{"op_id"}),
			TasksRunning: promauto.NewGauge(prometheus.GaugeOpts{
				Name: "agentcore_tasks_running",
				Help: "Current number of tasks in the running state",
			}),
		}
	})
	return metricsInstance
}

// RecordIteration increments the iteration counter.
func (m *Metrics) RecordIteration() {
	if m == nil || m.IterationsTotal == nil {
		return
	}
	m.IterationsTotal.Inc()
}

// RecordToolCall observes a tool call's outcome and latency.
func (m *Metrics) RecordToolCall(tool, outcome string, seconds float64) {
	if m == nil || m.ToolCallsTotal == nil {
		return
	}
	m.ToolCallsTotal.WithLabelValues(tool, outcome).Inc()
	m.ToolLatency.WithLabelValues(tool).Observe(seconds)
}

// SetCircuitOpen records whether opID's circuit breaker is currently open.
func (m *Metrics) SetCircuitOpen(opID string, open bool) {
	if m == nil || m.CircuitOpen == nil {
		return
	}
	value := 0.0
	if open {
		value = 1.0
	}
	m.CircuitOpen.WithLabelValues(opID).Set(value)
}
