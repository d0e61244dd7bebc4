// Package metrics exposes the service's Prometheus collectors and the
// lifecycle hook bridge that feeds the per-stage ones.
package metrics

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/aretw0/quartet/pkg/domain"
)

// Request outcome label values.
const (
	OutcomeOK       = "ok"
	OutcomeError    = "error"
	OutcomeCanceled = "canceled"
)

var (
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quartet_requests_total",
			Help: "Total number of asks, by outcome",
		},
		[]string{"outcome"},
	)

	StageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "quartet_stage_duration_seconds",
			Help: "Pipeline stage duration in seconds",
		},
		[]string{"stage"},
	)

	ToolCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quartet_tool_calls_total",
			Help: "Total number of Executor tool calls, by status",
		},
		[]string{"status"},
	)

	PipelineRetriesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "quartet_pipeline_retries_total",
			Help: "Total number of validation-triggered retry passes",
		},
	)

	TTFTSeconds = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name: "quartet_ttft_seconds",
			Help: "Time to first streamed token in seconds",
		},
	)

	ActiveStreams = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "quartet_active_streams",
			Help: "Number of asks currently streaming",
		},
	)
)

// Hooks returns lifecycle hooks recording stage durations, retry passes
// and tool call outcomes. Subscribe them alongside the relay's hooks.
func Hooks() domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnStageEnter: func(_ context.Context, ev *domain.StageEvent) {
			// The retry pass re-enters the Executor first.
			if ev.Stage == domain.StageExecutor && ev.Pass > 1 {
				PipelineRetriesTotal.Inc()
			}
		},
		OnStageLeave: func(_ context.Context, ev *domain.StageEvent) {
			StageDuration.WithLabelValues(string(ev.Stage)).Observe(float64(ev.ElapsedMs) / 1000.0)
		},
		OnToolReturn: func(_ context.Context, ev *domain.ToolEvent) {
			ToolCallsTotal.WithLabelValues(ev.Status).Inc()
		},
	}
}
