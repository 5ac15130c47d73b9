package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Core collectors. Label values are small fixed sets; no ids are used as
// labels.
var (
	// LedgerOutcomes counts idempotency submissions by outcome:
	// accepted, reclaimed, replayed, conflict, in_flight.
	LedgerOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "setlogs",
		Subsystem: "ledger",
		Name:      "submissions_total",
		Help:      "Idempotency ledger submissions by outcome.",
	}, []string{"outcome"})

	// LedgerReaped counts records removed by the reaper.
	LedgerReaped = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "setlogs",
		Subsystem: "ledger",
		Name:      "reaped_total",
		Help:      "Idempotency records removed after the retention window.",
	})

	// LockOutcomes counts optimistic updates by entity and outcome:
	// applied, stale, not_found.
	LockOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "setlogs",
		Subsystem: "locking",
		Name:      "updates_total",
		Help:      "Optimistic lock coordinator decisions.",
	}, []string{"entity", "outcome"})

	// VersionsCreated counts exercise versions appended to a chain.
	VersionsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "setlogs",
		Subsystem: "versioning",
		Name:      "versions_created_total",
		Help:      "Exercise versions appended.",
	})

	// AuditFailures counts audit appends that failed and aborted a mutation.
	AuditFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "setlogs",
		Subsystem: "audit",
		Name:      "failures_total",
		Help:      "Audit appends that failed.",
	})

	// CacheEvents counts progression cache events by backend and event:
	// hit, miss, stale, error, collapsed, timeout.
	CacheEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "setlogs",
		Subsystem: "progression",
		Name:      "cache_events_total",
		Help:      "Progression report cache events.",
	}, []string{"backend", "event"})

	// Recomputations observes the duration of progression recomputes.
	Recomputations = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "setlogs",
		Subsystem: "progression",
		Name:      "recompute_duration_seconds",
		Help:      "Time spent recomputing progression aggregates.",
		Buckets:   prometheus.DefBuckets,
	})
)
