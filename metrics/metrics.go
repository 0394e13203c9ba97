package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	EventsReceivedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "autoflow_events_received_total",
			Help: "Total number of events received, by subtype",
		},
		[]string{"subtype"},
	)

	EventsDroppedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "autoflow_events_dropped_total",
			Help: "Total number of events dropped before matching",
		},
		[]string{"reason"},
	)

	TriggerMatchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "autoflow_trigger_matches_total",
			Help: "Total number of trigger matches, by trigger subtype",
		},
		[]string{"subtype"},
	)

	AdmissionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "autoflow_admissions_total",
			Help: "Admission decisions taken for trigger matches",
		},
		[]string{"result"},
	)

	ExecutionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "autoflow_executions_total",
			Help: "Finished executions, by final status",
		},
		[]string{"status"},
	)

	ExecutionDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "autoflow_execution_duration_seconds",
			Help:    "Wall clock duration of finished executions",
			Buckets: prometheus.ExponentialBuckets(0.01, 4, 10),
		},
	)

	RunningExecutions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "autoflow_running_executions",
			Help: "Number of executions currently running",
		},
	)

	ActionAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "autoflow_action_attempts_total",
			Help: "Action backend invocations, by subtype and result",
		},
		[]string{"subtype", "result"},
	)

	OutcomeDispatchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "autoflow_outcome_dispatches_total",
			Help: "Outcome channel dispatches, by subtype and result",
		},
		[]string{"subtype", "result"},
	)

	EscalationsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "autoflow_escalations_total",
			Help: "Executions that missed their escalation deadline",
		},
	)
)
