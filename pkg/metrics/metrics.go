package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	TriggerEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "followup_trigger_events_total",
			Help: "Total number of inbound trigger events by source and outcome (count)",
		},
		[]string{"source", "outcome"},
	)

	PipelineDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "followup_pipeline_duration_ms",
			Help:    "End-to-end pipeline duration per trigger event in milliseconds",
			Buckets: []float64{50, 100, 250, 500, 1000, 2500, 5000, 10000, 30000, 60000},
		},
		[]string{"outcome"},
	)

	StageDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "followup_stage_duration_ms",
			Help:    "Duration of each pipeline stage in milliseconds",
			Buckets: []float64{10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000, 30000},
		},
		[]string{"stage", "status"},
	)

	StageRetriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "followup_stage_retries_total",
			Help: "Total number of retry attempts per pipeline stage (count)",
		},
		[]string{"stage"},
	)

	DeliveriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "followup_deliveries_total",
			Help: "Total number of sink deliveries by kind and status (count)",
		},
		[]string{"kind", "status"},
	)

	DuplicateEventsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "followup_duplicate_events_total",
			Help: "Total number of trigger events suppressed as duplicates (count)",
		},
	)

	DedupRecordCount = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "followup_dedup_records",
			Help: "Approximate number of delivery records in the dedup store (count)",
		},
	)

	ModelTokensTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "followup_model_tokens_total",
			Help: "Total tokens consumed by generative model calls (count)",
		},
		[]string{"direction"},
	)

	RateLimitRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "followup_ratelimit_requests_total",
			Help: "Total number of requests seen by the rate limiter (count)",
		},
		[]string{"status"},
	)

	CircuitBreakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "followup_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)
)

var registerOnce sync.Once

// Register registers all pipeline metrics with the default registry.
// Safe to call from multiple init paths.
func Register() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			TriggerEventsTotal,
			PipelineDuration,
			StageDuration,
			StageRetriesTotal,
			DeliveriesTotal,
			DuplicateEventsTotal,
			DedupRecordCount,
			ModelTokensTotal,
			RateLimitRequestsTotal,
			CircuitBreakerState,
		)
	})
}

func ObserveStageDuration(stage, status string, d time.Duration) {
	StageDuration.WithLabelValues(stage, status).Observe(float64(d.Milliseconds()))
}

func ObservePipelineDuration(outcome string, d time.Duration) {
	PipelineDuration.WithLabelValues(outcome).Observe(float64(d.Milliseconds()))
}
