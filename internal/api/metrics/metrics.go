// Package metrics defines and registers all custom Prometheus metrics for the
// recycling ledger. It is the single source of truth for metric names,
// labels, and help strings.
//
// Metrics are registered with the default Prometheus registry on package
// init through promauto.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "recycling"

// ── Ledger metrics ────────────────────────────────────────────────────────────

// EventsRecordedTotal counts recycling events committed to the ledger.
// Label:
//   - material: normalised material name (e.g. "plastic", "can")
var EventsRecordedTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "events_recorded_total",
		Help:      "Total number of recycling events recorded.",
	},
	[]string{"material"},
)

// PointsAwardedTotal sums points credited (or debited, for negative rates).
// Counters cannot go down, so negative awards are tracked as their absolute value
// under the same material label.
var PointsAwardedTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "points_awarded_total",
		Help:      "Total absolute points moved by recorded recycling events.",
	},
	[]string{"material"},
)

// EventsRejectedTotal counts RecordEvent calls that returned an error.
// Label:
//   - reason: "user_not_found", "invalid_material", "invalid_quantity",
//     "duplicate_scan", "negative_balance" or "operation_failed"
var EventsRejectedTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "events_rejected_total",
		Help:      "Total number of recycling events rejected, by reason.",
	},
	[]string{"reason"},
)

// RecordDuration measures a single RecordEvent call, lock wait included.
// Label:
//   - outcome: "recorded" or "rejected"
var RecordDuration = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "record_duration_seconds",
		Help:      "Duration of RecordEvent from lock acquisition to commit.",
		Buckets:   prometheus.DefBuckets, // .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10
	},
	[]string{"outcome"},
)

// ── Ingestion metrics ─────────────────────────────────────────────────────────

// IngestQueueDepth tracks the number of events waiting in each dispatcher worker channel.
// Label:
//   - worker_id: numeric worker index (e.g. "0", "1", …)
var IngestQueueDepth = promauto.NewGaugeVec(
	prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "ingest_queue_depth",
		Help:      "Current number of events pending in each dispatcher worker channel.",
	},
	[]string{"worker_id"},
)

// ── User metrics ──────────────────────────────────────────────────────────────

// UsersRegisteredTotal counts successful registrations.
var UsersRegisteredTotal = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "users_registered_total",
		Help:      "Total number of users registered.",
	},
)
