// Package metrics defines the engine's Prometheus instrumentation,
// registered on the default registry so internal/api's /metrics handler
// exposes them without any extra wiring. One package-level promauto var
// per signal.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ─── Bandit ──────────────────────────────────────────────────────────────

// ArmPulls counts every arm selection, labeled by whether it was a
// cold-start sweep or a scored UCB1 pick.
var ArmPulls = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "skillengine",
	Subsystem: "bandit",
	Name:      "arm_pulls_total",
	Help:      "Total arm selections, labeled by selection reason.",
}, []string{"reason"})

// RewardObserved tracks the distribution of combined rewards fed back
// into the bandit.
var RewardObserved = promauto.NewHistogram(prometheus.HistogramOpts{
	Namespace: "skillengine",
	Subsystem: "reward",
	Name:      "observed",
	Help:      "Distribution of combined reward values fed back to the bandit.",
	Buckets:   prometheus.LinearBuckets(0, 0.1, 11),
})

// RewardFallbacks counts evaluations that degraded to the neutral score.
var RewardFallbacks = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "skillengine",
	Subsystem: "reward",
	Name:      "fallbacks_total",
	Help:      "Total evaluator invocations that fell back to the neutral score.",
})

// ─── Reflection ──────────────────────────────────────────────────────────

// ReflectionTriggers counts reflection runs, labeled by outcome.
var ReflectionTriggers = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "skillengine",
	Subsystem: "reflection",
	Name:      "triggers_total",
	Help:      "Total reflection runs, labeled by outcome (completed, skipped, lock_lost).",
}, []string{"outcome"})

// ─── Bootstrap ───────────────────────────────────────────────────────────

// BootstrapCompletions counts rubric bootstrap runs, labeled by outcome.
var BootstrapCompletions = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "skillengine",
	Subsystem: "bootstrap",
	Name:      "completions_total",
	Help:      "Total rubric bootstrap runs, labeled by outcome (completed, skipped, lock_lost).",
}, []string{"outcome"})

// ─── Locks ───────────────────────────────────────────────────────────────

// LockContention counts failed lock acquisitions, labeled by lock kind.
var LockContention = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "skillengine",
	Subsystem: "lock",
	Name:      "contention_total",
	Help:      "Total lock acquisitions that lost the race or the CAS, labeled by kind.",
}, []string{"kind"})
