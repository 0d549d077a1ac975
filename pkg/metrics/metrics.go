// Package metrics holds the Prometheus collectors exported by the assistant.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry is the assistant's own registry so tests and embedders are not
// coupled to the global default registerer.
var Registry = prometheus.NewRegistry()

func init() {
	Registry.MustRegister(
		ToolInvocations, ToolDuration,
		LLMTokensTotal, LLMCostUSD,
		TurnDuration,
	)
}

// ToolInvocations counts tool runs by outcome (ok | unavailable | invalid_input | upstream | gate_closed).
var ToolInvocations = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "assistant_tool_invocations_total",
		Help: "Tool invocations by tool and outcome.",
	},
	[]string{"tool", "outcome"},
)

// ToolDuration tool execution time in seconds.
var ToolDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "assistant_tool_duration_seconds",
		Help:    "Tool execution time in seconds.",
		Buckets: prometheus.DefBuckets,
	},
	[]string{"tool"},
)

// LLMTokensTotal token usage reported by the chat model.
var LLMTokensTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "assistant_llm_tokens_total",
		Help: "Chat model tokens by direction.",
	},
	[]string{"model", "direction"}, // input | output
)

// LLMCostUSD accumulated chat model cost.
var LLMCostUSD = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "assistant_llm_cost_usd_total",
		Help: "Estimated chat model cost in USD.",
	},
	[]string{"model"},
)

// TurnDuration end-to-end time of one orchestrator call.
var TurnDuration = prometheus.NewHistogram(
	prometheus.HistogramOpts{
		Name:    "assistant_turn_duration_seconds",
		Help:    "Orchestrator turn duration in seconds.",
		Buckets: []float64{0.5, 1, 2, 5, 10, 20, 40, 80},
	},
)

// Handler serves the registry in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}
