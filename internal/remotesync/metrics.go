package remotesync

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SyncWritesTotal counts document writes by path (debounced, forced, tier).
	SyncWritesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "examprep_sync_writes_total",
			Help: "Total number of remote document writes",
		},
		[]string{"path"},
	)

	SyncFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "examprep_sync_failures_total",
			Help: "Total number of failed remote document writes",
		},
		[]string{"path", "reason"}, // permission_denied, error
	)

	// SyncCoalescedTotal counts field changes overwritten before being written.
	SyncCoalescedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "examprep_sync_coalesced_fields_total",
			Help: "Total number of pending field values replaced by a newer change",
		},
	)

	SyncDroppedBillingTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "examprep_sync_dropped_billing_fields_total",
			Help: "Billing fields removed from generic sync payloads",
		},
	)

	SyncRateLimitedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "examprep_sync_rate_limited_total",
			Help: "Debounced writes deferred by the minimum write interval",
		},
	)

	RemoteLoadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "examprep_remote_loads_total",
			Help: "Login-time document loads by outcome",
		},
		[]string{"outcome"}, // merged, new_user, created, failed
	)
)

func failureReason(permissionDenied bool) string {
	if permissionDenied {
		return "permission_denied"
	}
	return "error"
}
