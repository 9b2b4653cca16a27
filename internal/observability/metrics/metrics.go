package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

// EngineMetrics exposes counters/histograms for template, draft and
// recommendation flows.
type EngineMetrics struct {
	templateMutations *prometheus.CounterVec
	draftsAssembled   *prometheus.CounterVec
	violations        *prometheus.CounterVec
	recommendations   *prometheus.CounterVec
	sendsConfirmed    *prometheus.CounterVec
	llmLatency        *prometheus.HistogramVec
}

func NewEngineMetrics(reg prometheus.Registerer) *EngineMetrics {
	m := &EngineMetrics{
		templateMutations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "eventra",
			Subsystem: "templates",
			Name:      "mutations_total",
			Help:      "Template store mutations by operation and outcome",
		}, []string{"op", "status"}),
		draftsAssembled: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "eventra",
			Subsystem: "drafts",
			Name:      "assembled_total",
			Help:      "Drafts assembled by outcome",
		}, []string{"status"}),
		violations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "eventra",
			Subsystem: "drafts",
			Name:      "guardrail_violations_total",
			Help:      "Guardrail violations reported on drafts",
		}, []string{"kind"}),
		recommendations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "eventra",
			Subsystem: "recommend",
			Name:      "decisions_total",
			Help:      "Recommendation decisions by outcome and scoring mode",
		}, []string{"decision", "fallback"}),
		sendsConfirmed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "eventra",
			Subsystem: "drafts",
			Name:      "sends_confirmed_total",
			Help:      "Send confirmations by outcome",
		}, []string{"status"}),
		llmLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "eventra",
			Subsystem: "llm",
			Name:      "call_latency_seconds",
			Help:      "Latency of language-model calls",
			Buckets:   prometheus.DefBuckets,
		}, []string{"purpose", "status"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.templateMutations, m.draftsAssembled, m.violations, m.recommendations, m.sendsConfirmed, m.llmLatency)
	return m
}

func (m *EngineMetrics) ObserveTemplateMutation(op, status string) {
	if m == nil {
		return
	}
	m.templateMutations.WithLabelValues(op, status).Inc()
}

func (m *EngineMetrics) ObserveDraft(status string) {
	if m == nil {
		return
	}
	m.draftsAssembled.WithLabelValues(status).Inc()
}

func (m *EngineMetrics) ObserveViolation(kind string) {
	if m == nil {
		return
	}
	m.violations.WithLabelValues(kind).Inc()
}

func (m *EngineMetrics) ObserveRecommendation(decision string, fallback bool) {
	if m == nil {
		return
	}
	m.recommendations.WithLabelValues(decision, strconv.FormatBool(fallback)).Inc()
}

func (m *EngineMetrics) ObserveSend(status string) {
	if m == nil {
		return
	}
	m.sendsConfirmed.WithLabelValues(status).Inc()
}

func (m *EngineMetrics) ObserveLLMLatency(purpose, status string, seconds float64) {
	if m == nil {
		return
	}
	m.llmLatency.WithLabelValues(purpose, status).Observe(seconds)
}
