package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Sweep metrics
	SweepDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "dealradar_sweep_duration_seconds",
			Help:    "Wall-clock duration of one full rule sweep",
			Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120},
		},
	)

	SweepsSkippedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "dealradar_sweeps_skipped_total",
			Help: "Ticks skipped because the previous sweep was still running",
		},
	)

	SweepOverrunsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "dealradar_sweep_overruns_total",
			Help: "Sweeps that hit their soft deadline before reaching every rule",
		},
	)

	RulesEvaluatedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "dealradar_rules_evaluated_total",
			Help: "Rules whose condition tree was evaluated",
		},
	)

	RulesSuppressedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dealradar_rules_suppressed_total",
			Help: "Rules suppressed by the throttle gate",
		},
		[]string{"reason"},
	)

	// Dispatch metrics
	AlertsTriggeredTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dealradar_alerts_triggered_total",
			Help: "Triggered alerts persisted",
		},
		[]string{"priority"},
	)

	ChannelSendFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dealradar_channel_send_failures_total",
			Help: "Permanent delivery failures per channel",
		},
		[]string{"channel"},
	)

	// Feedback metrics
	FeedbackEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dealradar_feedback_events_total",
			Help: "Engagement events consumed from the feedback topic",
		},
		[]string{"kind"},
	)
)
