// Package metrics defines and registers all custom Prometheus metrics for the
// crewd server. It is the single source of truth for metric names, labels, and
// help strings. Everything registers against the default registry via
// promauto, so importing the package is enough.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "crewd"

// ── Pipeline metrics ──────────────────────────────────────────────────────────

// ConnectionsAcceptedTotal counts TCP connections accepted by the listener.
var ConnectionsAcceptedTotal = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "connections_accepted_total",
		Help:      "Total number of client connections accepted.",
	},
)

// TransportErrorsTotal counts connections torn down before a response was sent.
// Label:
//   - stage: pipeline stage where the failure happened ("read" or "send")
var TransportErrorsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "transport_errors_total",
		Help:      "Total number of connections dropped due to transport errors.",
	},
	[]string{"stage"},
)

// StageQueueDepth tracks how many jobs are waiting in each pipeline stage.
// Label:
//   - stage: "read", "dispatch", or "send"
var StageQueueDepth = promauto.NewGaugeVec(
	prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "stage_queue_depth",
		Help:      "Current number of jobs pending in each pipeline stage.",
	},
	[]string{"stage"},
)

// ── Command metrics ───────────────────────────────────────────────────────────

// CommandsTotal counts dispatched commands.
// Labels:
//   - command: the command name ("add", "show", ...)
//   - result: "ok" or "error"
var CommandsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "commands_total",
		Help:      "Total number of commands dispatched, by command and result.",
	},
	[]string{"command", "result"},
)

// CommandDuration measures how long a single command takes inside the
// dispatcher, store lock included.
// Label:
//   - command: the command name
var CommandDuration = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "command_duration_seconds",
		Help:      "Duration of command dispatch from decode to response build.",
		Buckets:   prometheus.DefBuckets, // .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10
	},
	[]string{"command"},
)

// ── Store metrics ─────────────────────────────────────────────────────────────

// ReconciliationsTotal counts full reloads triggered by a detected mismatch
// between the durable store and the in-memory collection.
var ReconciliationsTotal = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "reconciliations_total",
		Help:      "Total number of full collection reloads triggered by detected desync.",
	},
)

// CollectionSize tracks the number of workers currently held in memory.
var CollectionSize = promauto.NewGauge(
	prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "collection_size",
		Help:      "Current number of workers in the in-memory collection.",
	},
)

// AuthCacheTotal counts credential cache decisions.
// Label:
//   - result: "hit" or "miss"
var AuthCacheTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "auth_cache_total",
		Help:      "Total number of credential cache lookups, labelled by result (hit/miss).",
	},
	[]string{"result"},
)
