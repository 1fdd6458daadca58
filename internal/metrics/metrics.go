// Package metrics exposes pipeline counters to Prometheus.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Drop reasons used as the "reason" label of MessagesDropped.
const (
	ReasonMalformed   = "malformed"
	ReasonUnknownKind = "unknown_kind"
	ReasonStale       = "stale"
)

var (
	// MessagesReceived counts raw frames handed to the pipeline.
	MessagesReceived = promauto.NewCounter(prometheus.CounterOpts{
		Name: "simviewer_messages_received_total",
		Help: "Raw frames delivered by the event source",
	})

	// MessagesDropped counts frames that produced no state change.
	// Labels: "malformed", "unknown_kind", "stale"
	MessagesDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "simviewer_messages_dropped_total",
		Help: "Frames dropped by the pipeline by reason",
	}, []string{"reason"})

	// EventsProcessed counts decoded events folded by the reducer.
	EventsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "simviewer_events_total",
		Help: "Decoded events by kind",
	}, []string{"kind"})

	// RenderCommands counts commands forwarded to a render sink.
	RenderCommands = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "simviewer_render_commands_total",
		Help: "Render commands delivered to the sink by kind",
	}, []string{"kind"})

	// RenderCommandsDiscarded counts commands lost before a sink attached.
	RenderCommandsDiscarded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "simviewer_render_commands_discarded_total",
		Help: "Render commands discarded because the pre-attach buffer was full",
	})

	// ConnectionStatus is 0 disconnected, 1 connecting, 2 connected.
	ConnectionStatus = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "simviewer_connection_status",
		Help: "Current connection status (0 disconnected, 1 connecting, 2 connected)",
	})
)
