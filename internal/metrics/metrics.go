// Package metrics registers the Prometheus instruments for the protocol
// core. Served by internal/api on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	SessionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "naxcloud_sessions_active",
		Help: "Camera sessions not in the Disconnected state",
	})

	SessionsSuperseded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "naxcloud_sessions_superseded_total",
		Help: "Sessions retired because the same device registered again",
	})

	FragmentsReceived = promauto.NewCounter(prometheus.CounterOpts{
		Name: "naxcloud_fragments_received_total",
		Help: "Media fragments received on the datagram transport",
	})

	FragmentsOrphaned = promauto.NewCounter(prometheus.CounterOpts{
		Name: "naxcloud_fragments_orphaned_total",
		Help: "Continuation or end fragments dropped because their start was lost",
	})

	FramesAssembled = promauto.NewCounter(prometheus.CounterOpts{
		Name: "naxcloud_frames_assembled_total",
		Help: "Complete media frames emitted to the sink",
	})

	FramesDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "naxcloud_frames_dropped_total",
		Help: "Complete frames dropped because the sink was full",
	})

	BuffersStale = promauto.NewCounter(prometheus.CounterOpts{
		Name: "naxcloud_buffers_stale_total",
		Help: "In-progress frame buffers discarded by the staleness sweep",
	})

	ConfirmsSent = promauto.NewCounter(prometheus.CounterOpts{
		Name: "naxcloud_confirms_sent_total",
		Help: "Retransmission confirmations sent (command 605)",
	})

	Malformed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "naxcloud_malformed_messages_total",
		Help: "Messages rejected by the codec",
	})
)
