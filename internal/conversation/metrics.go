package conversation

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var llmLatency = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: "staffix",
		Subsystem: "conversation",
		Name:      "llm_latency_seconds",
		Help:      "Latency of language model calls.",
		Buckets:   []float64{0.25, 0.5, 1, 2, 4, 8, 16, 32},
	},
	[]string{"model", "status"},
)

var llmTokensTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "staffix",
		Subsystem: "conversation",
		Name:      "llm_tokens_total",
		Help:      "Tokens consumed by language model calls.",
	},
	[]string{"model", "direction"},
)

var toolCallsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "staffix",
		Subsystem: "conversation",
		Name:      "tool_calls_total",
		Help:      "Tool calls executed for the assistant, by outcome.",
	},
	[]string{"tool", "outcome"},
)

var agentRounds = prometheus.NewHistogram(
	prometheus.HistogramOpts{
		Namespace: "staffix",
		Subsystem: "conversation",
		Name:      "agent_rounds",
		Help:      "Tool rounds per conversation turn.",
		Buckets:   []float64{0, 1, 2, 3, 4, 5, 8},
	},
)

func init() {
	prometheus.MustRegister(llmLatency)
	prometheus.MustRegister(llmTokensTotal)
	prometheus.MustRegister(toolCallsTotal)
	prometheus.MustRegister(agentRounds)
}

// RegisterMetrics registers conversation metrics with a custom registry.
// Use this when exposing a non-default registry.
func RegisterMetrics(reg prometheus.Registerer) {
	if reg == nil || reg == prometheus.DefaultRegisterer {
		return
	}
	reg.MustRegister(llmLatency, llmTokensTotal, toolCallsTotal, agentRounds)
}

func observeLLM(model, status string, latency time.Duration, usage TokenUsage) {
	llmLatency.WithLabelValues(model, status).Observe(latency.Seconds())
	if usage.InputTokens > 0 {
		llmTokensTotal.WithLabelValues(model, "input").Add(float64(usage.InputTokens))
	}
	if usage.OutputTokens > 0 {
		llmTokensTotal.WithLabelValues(model, "output").Add(float64(usage.OutputTokens))
	}
}

func observeRounds(rounds int) {
	agentRounds.Observe(float64(rounds))
}
