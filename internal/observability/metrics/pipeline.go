package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

// PipelineMetrics observes analysis pipeline executions. It satisfies
// the pipeline metrics port and registers into the caller's registry so
// api and worker each expose it on their own /metrics endpoint.
type PipelineMetrics struct {
	service string

	analysesTotal     *prometheus.CounterVec
	analysisDuration  *prometheus.HistogramVec
	stageDuration     *prometheus.HistogramVec
	cacheLookupsTotal *prometheus.CounterVec
	suspiciousTotal   prometheus.Counter
	chatTurnsTotal    *prometheus.CounterVec
	chatTurnDuration  prometheus.Histogram
	llmTokensTotal    *prometheus.CounterVec
}

func NewPipelineMetrics(service string, registerer prometheus.Registerer) *PipelineMetrics {
	analysesTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "creditlens",
			Subsystem: "pipeline",
			Name:      "analyses_total",
			Help:      "Total finished analyses by outcome.",
		},
		[]string{"service", "outcome", "fallback"},
	)
	analysisDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "creditlens",
			Subsystem: "pipeline",
			Name:      "analysis_duration_seconds",
			Help:      "End-to-end analysis duration in seconds by outcome.",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 240, 300},
		},
		[]string{"service", "outcome"},
	)
	stageDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "creditlens",
			Subsystem: "pipeline",
			Name:      "stage_duration_seconds",
			Help:      "Per-stage duration in seconds by outcome.",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 180},
		},
		[]string{"service", "stage", "outcome"},
	)
	cacheLookupsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "creditlens",
			Subsystem: "pipeline",
			Name:      "cache_lookups_total",
			Help:      "Fingerprint cache lookups by result.",
		},
		[]string{"service", "result"},
	)
	suspiciousTotal := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "creditlens",
			Subsystem: "pipeline",
			Name:      "suspicious_results_total",
			Help:      "Analyses flagged for placeholder or sample content.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	chatTurnsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "creditlens",
			Subsystem: "chat",
			Name:      "turns_total",
			Help:      "Total chat turns by outcome.",
		},
		[]string{"service", "outcome"},
	)
	chatTurnDuration := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "creditlens",
			Subsystem: "chat",
			Name:      "turn_duration_seconds",
			Help:      "Chat turn duration in seconds.",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 20, 30},
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)

	llmTokensTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "creditlens",
			Subsystem: "llm",
			Name:      "tokens_total",
			Help:      "Token usage reported by the reasoning provider.",
		},
		[]string{"service", "model", "kind"},
	)

	registerer.MustRegister(
		analysesTotal,
		analysisDuration,
		stageDuration,
		cacheLookupsTotal,
		suspiciousTotal,
		chatTurnsTotal,
		chatTurnDuration,
		llmTokensTotal,
	)

	return &PipelineMetrics{
		service:           service,
		analysesTotal:     analysesTotal,
		analysisDuration:  analysisDuration,
		stageDuration:     stageDuration,
		cacheLookupsTotal: cacheLookupsTotal,
		suspiciousTotal:   suspiciousTotal,
		chatTurnsTotal:    chatTurnsTotal,
		chatTurnDuration:  chatTurnDuration,
		llmTokensTotal:    llmTokensTotal,
	}
}

func (m *PipelineMetrics) RecordAnalysis(outcome string, fallback bool, duration float64) {
	m.analysesTotal.WithLabelValues(m.service, outcome, strconv.FormatBool(fallback)).Inc()
	m.analysisDuration.WithLabelValues(m.service, outcome).Observe(duration)
}

func (m *PipelineMetrics) RecordStage(stage, outcome string, duration float64) {
	m.stageDuration.WithLabelValues(m.service, stage, outcome).Observe(duration)
}

func (m *PipelineMetrics) RecordCacheLookup(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheLookupsTotal.WithLabelValues(m.service, result).Inc()
}

func (m *PipelineMetrics) RecordSuspiciousResult() {
	m.suspiciousTotal.Inc()
}

func (m *PipelineMetrics) RecordChatTurn(outcome string, duration float64) {
	m.chatTurnsTotal.WithLabelValues(m.service, outcome).Inc()
	m.chatTurnDuration.Observe(duration)
}

func (m *PipelineMetrics) RecordTokenUsage(model string, promptTokens, completionTokens int) {
	m.llmTokensTotal.WithLabelValues(m.service, model, "prompt").Add(float64(promptTokens))
	m.llmTokensTotal.WithLabelValues(m.service, model, "completion").Add(float64(completionTokens))
}
