// Package rgmetrics exposes the reader group coordinator's Prometheus
// metrics, grounded on weed/stats/metrics.go's collector-variable
// pattern: package-level collectors registered against a dedicated
// registry, updated from wherever the coordinator observes the
// underlying event.
package rgmetrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/anirudhkovuru/pravega/model"
)

// Namespace mirrors the teacher's use of a fixed Namespace constant on
// every collector.
const Namespace = "readergroup"

var (
	// Gather is the registry coordinator processes serve via
	// promhttp.HandlerFor.
	Gather = prometheus.NewRegistry()

	CheckpointsOutstanding = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "checkpoints_outstanding",
			Help:      "Number of checkpoints currently outstanding for a reader group.",
		}, []string{"group"})

	CheckpointDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "checkpoint_duration_seconds",
			Help:      "Time from checkpoint admission to completion.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"group"})

	CheckpointsRejectedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "checkpoints_rejected_total",
			Help:      "Checkpoints rejected by admission or completion, by reason.",
		}, []string{"group", "reason"})

	UnreadBytes = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "unread_bytes",
			Help:      "Bytes between a stream's current position and its ending cut or tail.",
		}, []string{"group", "stream"})
)

func init() {
	Gather.MustRegister(CheckpointsOutstanding, CheckpointDurationSeconds, CheckpointsRejectedTotal, UnreadBytes)
}

// RejectReason enumerates the label values CheckpointsRejectedTotal
// accepts.
type RejectReason string

const (
	RejectMaxOutstanding    RejectReason = "max_outstanding"
	RejectCleared           RejectReason = "cleared_before_consumption"
	RejectReinitialization  RejectReason = "reinitialization_required"
)

// ObserveUnreadBytes records the current unread-byte distance for one
// stream of one group.
func ObserveUnreadBytes(group string, stream model.Stream, bytes int64) {
	UnreadBytes.WithLabelValues(group, stream.String()).Set(float64(bytes))
}

// SetOutstanding records the current outstanding-checkpoint count for a
// group.
func SetOutstanding(group string, count int) {
	CheckpointsOutstanding.WithLabelValues(group).Set(float64(count))
}

// ObserveCheckpointDuration records the wall-clock seconds a completed
// checkpoint took from admission to consumption.
func ObserveCheckpointDuration(group string, seconds float64) {
	CheckpointDurationSeconds.WithLabelValues(group).Observe(seconds)
}

// IncRejected increments the rejection counter for reason.
func IncRejected(group string, reason RejectReason) {
	CheckpointsRejectedTotal.WithLabelValues(group, string(reason)).Inc()
}
