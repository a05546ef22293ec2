// Package observability holds the Prometheus meters and tracing helpers
// shared by the bridge, tool dispatch, and command session.
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus registry and pupper meters.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	Registry      *prometheus.Registry
	BridgeFrames  *prometheus.CounterVec
	BridgeErrors  *prometheus.CounterVec
	ToolCalls     *prometheus.CounterVec
	ToolDuration  *prometheus.HistogramVec
	LLMDuration   *prometheus.HistogramVec
	CommandsTotal *prometheus.CounterVec
}

// NewMetrics creates a custom Prometheus registry with the pupper meters.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()

	frames := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "pupper_bridge_frames_total",
		Help: "Rosbridge frames by direction and op.",
	}, []string{"direction", "op"})

	bridgeErrors := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "pupper_bridge_errors_total",
		Help: "Rosbridge failures by kind.",
	}, []string{"kind"})

	toolCalls := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "pupper_tool_calls_total",
		Help: "Tool invocations by tool and outcome.",
	}, []string{"tool", "status"})

	toolDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "pupper_tool_duration_seconds",
		Help:    "Tool invocation latency including retries.",
		Buckets: prometheus.DefBuckets,
	}, []string{"tool"})

	llmDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "pupper_llm_request_duration_seconds",
		Help:    "LLM completion latency.",
		Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
	}, []string{"status"})

	commands := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "pupper_commands_total",
		Help: "Handled commands by outcome.",
	}, []string{"outcome"})

	reg.MustRegister(frames, bridgeErrors, toolCalls, toolDuration, llmDuration, commands)

	return &Metrics{
		Registry:      reg,
		BridgeFrames:  frames,
		BridgeErrors:  bridgeErrors,
		ToolCalls:     toolCalls,
		ToolDuration:  toolDuration,
		LLMDuration:   llmDuration,
		CommandsTotal: commands,
	}
}

// Frame counts one rosbridge frame.
func (m *Metrics) Frame(direction, op string) {
	if m == nil {
		return
	}
	m.BridgeFrames.WithLabelValues(direction, op).Inc()
}

// BridgeError counts one bridge failure.
func (m *Metrics) BridgeError(kind string) {
	if m == nil {
		return
	}
	m.BridgeErrors.WithLabelValues(kind).Inc()
}

// Tool records a finished tool invocation.
func (m *Metrics) Tool(name, status string, d time.Duration) {
	if m == nil {
		return
	}
	m.ToolCalls.WithLabelValues(name, status).Inc()
	m.ToolDuration.WithLabelValues(name).Observe(d.Seconds())
}

// LLM records one completion request.
func (m *Metrics) LLM(status string, d time.Duration) {
	if m == nil {
		return
	}
	m.LLMDuration.WithLabelValues(status).Observe(d.Seconds())
}

// Command counts one handled command.
func (m *Metrics) Command(outcome string) {
	if m == nil {
		return
	}
	m.CommandsTotal.WithLabelValues(outcome).Inc()
}

// Status maps an error to the "ok"/"error" label.
func Status(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
