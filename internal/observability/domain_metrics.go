package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	pipelineStageDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "spendlens_pipeline_stage_duration_seconds",
			Help:    "Duration of ask pipeline stages.",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		},
		[]string{"stage", "outcome"},
	)
	llmCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "spendlens_llm_calls_total",
			Help: "Total number of LLM chat and embedding calls.",
		},
		[]string{"purpose", "outcome"},
	)
	llmTokensTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "spendlens_llm_tokens_total",
			Help: "Prompt and completion tokens consumed, the cost accounting unit.",
		},
		[]string{"purpose", "kind"},
	)
	sqlCacheLookupsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "spendlens_sql_cache_lookups_total",
			Help: "SQL cache lookups split by hit and miss.",
		},
		[]string{"result"},
	)
	engineDryRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "spendlens_engine_dry_runs_total",
			Help: "Engine dry-run validations split by outcome.",
		},
		[]string{"outcome"},
	)
	sqlCorrectionsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "spendlens_sql_corrections_total",
			Help: "Total number of correction rounds taken.",
		},
	)
	benchmarkClustersTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "spendlens_benchmark_clusters_total",
			Help: "Benchmark clusters processed split by outcome.",
		},
		[]string{"outcome"},
	)
	benchmarkMatchesEmittedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "spendlens_benchmark_matches_emitted_total",
			Help: "Benchmark matches that passed the hybrid-score gate.",
		},
	)
	benchmarkMatchesDroppedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "spendlens_benchmark_matches_dropped_total",
			Help: "Benchmark matches dropped before emission.",
		},
		[]string{"reason"},
	)
)

func init() {
	prometheus.MustRegister(
		pipelineStageDurationSeconds,
		llmCallsTotal,
		llmTokensTotal,
		sqlCacheLookupsTotal,
		engineDryRunsTotal,
		sqlCorrectionsTotal,
		benchmarkClustersTotal,
		benchmarkMatchesEmittedTotal,
		benchmarkMatchesDroppedTotal,
	)
}

func ObserveStage(stage string, elapsed time.Duration, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	pipelineStageDurationSeconds.WithLabelValues(stage, outcome).Observe(elapsed.Seconds())
}

func ObserveLLMCall(purpose string, promptTokens, completionTokens int, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	llmCallsTotal.WithLabelValues(purpose, outcome).Inc()
	if promptTokens > 0 {
		llmTokensTotal.WithLabelValues(purpose, "prompt").Add(float64(promptTokens))
	}
	if completionTokens > 0 {
		llmTokensTotal.WithLabelValues(purpose, "completion").Add(float64(completionTokens))
	}
}

func ObserveCacheLookup(hit bool) {
	if hit {
		sqlCacheLookupsTotal.WithLabelValues("hit").Inc()
		return
	}
	sqlCacheLookupsTotal.WithLabelValues("miss").Inc()
}

func ObserveDryRun(valid bool) {
	if valid {
		engineDryRunsTotal.WithLabelValues("valid").Inc()
		return
	}
	engineDryRunsTotal.WithLabelValues("invalid").Inc()
}

func IncrementCorrection() {
	sqlCorrectionsTotal.Inc()
}

func ObserveBenchmarkCluster(outcome string) {
	benchmarkClustersTotal.WithLabelValues(outcome).Inc()
}

func AddBenchmarkMatchesEmitted(count int) {
	if count > 0 {
		benchmarkMatchesEmittedTotal.Add(float64(count))
	}
}

func IncrementBenchmarkMatchDropped(reason string) {
	benchmarkMatchesDroppedTotal.WithLabelValues(reason).Inc()
}
