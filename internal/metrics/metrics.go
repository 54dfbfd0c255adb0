package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "ikommunicate"

// Connector holds the gateway connection metrics.
type Connector struct {
	State             prometheus.Gauge
	ConnectAttempts   prometheus.Counter
	Opens             prometheus.Counter
	Closes            prometheus.Counter
	TransportErrors   prometheus.Counter
	ConstructFailures prometheus.Counter
	RetriesScheduled  prometheus.Counter
	DeltasForwarded   prometheus.Counter
	DecodeFailures    prometheus.Counter
}

// NewConnector creates and registers connector metrics on reg. A nil reg
// gets a private registry, which keeps the collectors usable but unexported.
func NewConnector(reg prometheus.Registerer) *Connector {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	f := promauto.With(reg)
	return &Connector{
		State: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "connector",
			Name:      "state",
			Help:      "Connector state: 0 idle, 1 connecting, 2 connected, 3 retrying, 4 stopped",
		}),
		ConnectAttempts: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "connector",
			Name:      "connect_attempts_total",
			Help:      "Connection attempts issued to the gateway",
		}),
		Opens: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "connector",
			Name:      "opens_total",
			Help:      "Connections that completed the WebSocket handshake",
		}),
		Closes: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "connector",
			Name:      "closes_total",
			Help:      "Connection close events, including failed dials",
		}),
		TransportErrors: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "connector",
			Name:      "transport_errors_total",
			Help:      "Transport error events reported to the host",
		}),
		ConstructFailures: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "connector",
			Name:      "construct_failures_total",
			Help:      "Connection attempts rejected before dialling",
		}),
		RetriesScheduled: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "connector",
			Name:      "retries_scheduled_total",
			Help:      "Reconnect timers armed",
		}),
		DeltasForwarded: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "connector",
			Name:      "deltas_forwarded_total",
			Help:      "Deltas tagged and handed to the host",
		}),
		DecodeFailures: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "connector",
			Name:      "decode_failures_total",
			Help:      "Frames discarded because they were not a JSON object",
		}),
	}
}

// Archive holds the delta archive metrics.
type Archive struct {
	ValuesRouted  prometheus.Counter
	DeltasSkipped prometheus.Counter
	BufferDepth   prometheus.Gauge
	BufferDropped prometheus.Counter
	RowsWritten   prometheus.Counter
	Flushes       prometheus.Counter
	FlushErrors   prometheus.Counter
	FlushDuration prometheus.Histogram
}

// NewArchive creates and registers archive metrics on reg.
func NewArchive(reg prometheus.Registerer) *Archive {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	f := promauto.With(reg)
	return &Archive{
		ValuesRouted: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "archive",
			Name:      "values_routed_total",
			Help:      "Path values queued for the archive",
		}),
		DeltasSkipped: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "archive",
			Name:      "deltas_skipped_total",
			Help:      "Deltas with no usable updates",
		}),
		BufferDepth: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "archive",
			Name:      "buffer_depth",
			Help:      "Values waiting to be written",
		}),
		BufferDropped: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "archive",
			Name:      "buffer_dropped_total",
			Help:      "Values dropped because the buffer hit its maximum size",
		}),
		RowsWritten: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "archive",
			Name:      "rows_written_total",
			Help:      "Rows copied into signalk_values",
		}),
		Flushes: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "archive",
			Name:      "flushes_total",
			Help:      "Successful batch flushes",
		}),
		FlushErrors: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "archive",
			Name:      "flush_errors_total",
			Help:      "Batch flushes that failed",
		}),
		FlushDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "archive",
			Name:      "flush_duration_seconds",
			Help:      "Time spent copying one batch",
			Buckets:   []float64{.001, .005, .01, .05, .1, .5, 1, 5},
		}),
	}
}
