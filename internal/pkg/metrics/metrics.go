// Package metrics defines and registers all custom Prometheus metrics for the
// direct-messaging server. It is the single source of truth for metric names,
// labels, and help strings.
//
// Every metric is registered with the default Prometheus registry on import
// via promauto; GET /metrics exposes them.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "dm"

// ── Session metrics ───────────────────────────────────────────────────────────

// SessionsActive tracks the number of identities currently present.
var SessionsActive = promauto.NewGauge(
	prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "sessions_active",
		Help:      "Number of identities with a registered realtime session.",
	},
)

// SessionEvictionsTotal counts sessions force-closed by a newer connection
// for the same identity.
var SessionEvictionsTotal = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "session_evictions_total",
		Help:      "Total number of sessions replaced by a newer connection.",
	},
)

// HandshakeRejectionsTotal counts rejected realtime handshakes.
// Label:
//   - reason: "expired", "invalid" or "missing"
var HandshakeRejectionsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "handshake_rejections_total",
		Help:      "Total number of realtime handshakes rejected before upgrade.",
	},
	[]string{"reason"},
)

// ── Routing metrics ───────────────────────────────────────────────────────────

// MessagesRoutedTotal counts send_message outcomes.
// Label:
//   - result: "delivered", "offline", "self", "undelivered", "storage_error",
//     "duplicate" or "rejected"
var MessagesRoutedTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "messages_routed_total",
		Help:      "Total number of send_message events handled, by outcome.",
	},
	[]string{"result"},
)

// DeliveryFailuresTotal counts stored messages the receiver's connection
// could not take.
var DeliveryFailuresTotal = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "delivery_failures_total",
		Help:      "Total number of live deliveries that failed after the message was stored.",
	},
)

// StoreAppendDuration measures message store append latency.
// Label:
//   - result: "ok" or "error"
var StoreAppendDuration = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "store_append_duration_seconds",
		Help:      "Duration of durable message appends.",
		Buckets:   prometheus.DefBuckets, // .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10
	},
	[]string{"result"},
)

// RosterBroadcastsTotal counts update_users fan-outs.
var RosterBroadcastsTotal = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "roster_broadcasts_total",
		Help:      "Total number of roster broadcasts.",
	},
)

// TypingRelaysTotal counts typing notices.
// Label:
//   - result: "relayed", "offline", "throttled" or "dropped"
var TypingRelaysTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "typing_relays_total",
		Help:      "Total number of typing notices handled, by outcome.",
	},
	[]string{"result"},
)

// MessagesDedupTotal counts client message id checks.
// Label:
//   - result: "hit" (duplicate, skipped) or "miss" (new message, routed)
var MessagesDedupTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "messages_dedup_total",
		Help:      "Total number of deduplication checks, labelled by result (hit/miss).",
	},
	[]string{"result"},
)

// ── Mirror metrics ────────────────────────────────────────────────────────────

// MirrorPublishedTotal counts messages mirrored to the stream.
// Label:
//   - result: "ok", "error" or "dropped"
var MirrorPublishedTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "mirror_published_total",
		Help:      "Total number of stored messages mirrored to the message stream.",
	},
	[]string{"result"},
)

// MirrorQueueDepth tracks the number of messages waiting in each mirror worker.
// Label:
//   - worker_id: numeric worker index (e.g. "0", "1", …)
var MirrorQueueDepth = promauto.NewGaugeVec(
	prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "mirror_queue_depth",
		Help:      "Current number of messages pending in each mirror worker channel.",
	},
	[]string{"worker_id"},
)
