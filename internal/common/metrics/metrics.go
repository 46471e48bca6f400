package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	StagesCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipeline_stages_completed_total",
			Help: "Total number of assessment stages completed, by status",
		},
		[]string{"stage", "status"},
	)

	StageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pipeline_stage_duration_seconds",
			Help:    "Duration of stage processing in seconds",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10),
		},
		[]string{"stage"},
	)

	WorkflowsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "pipeline_workflows_active",
			Help: "Number of applications currently being processed",
		},
	)

	Decisions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipeline_decisions_total",
			Help: "Total number of terminal decisions, by outcome",
		},
		[]string{"outcome"},
	)

	ToolInvocations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipeline_tool_invocations_total",
			Help: "Total number of tool service invocation attempts, by result",
		},
		[]string{"service", "operation", "result"},
	)
)
