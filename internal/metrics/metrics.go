package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const (
	// OutcomeSuccess labels a snapshot that was published.
	OutcomeSuccess = "success"
	// OutcomeError labels a publish attempt that failed.
	OutcomeError = "error"
	// OutcomeSkipped labels a publish attempt with no snapshot to send.
	OutcomeSkipped = "skipped"
)

var (
	reportsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "mirador_slowpeers",
			Name:      "reports_total",
			Help:      "Total number of slow peer reports ingested.",
		},
	)

	snapshotFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "mirador_slowpeers",
			Name:      "snapshot_failures_total",
			Help:      "Snapshots that could not be serialized.",
		},
	)

	snapshotDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "mirador_slowpeers",
			Name:      "snapshot_seconds",
			Help:      "Time spent building and serializing a ranked snapshot.",
			Buckets:   prometheus.ExponentialBuckets(0.00005, 2, 14),
		},
	)

	trackedNodes = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "mirador_slowpeers",
			Name:      "tracked_nodes",
			Help:      "Slow nodes currently held by the tracker, stale ones included.",
		},
	)

	slowNodes = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "mirador_slowpeers",
			Name:      "slow_nodes",
			Help:      "Number of slow nodes returned by the most recent ranking.",
		},
	)

	sweptNodesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "mirador_slowpeers",
			Name:      "swept_nodes_total",
			Help:      "Slow nodes removed by the stale entry sweep.",
		},
	)

	publishTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mirador_slowpeers",
			Name:      "publish_total",
			Help:      "Snapshot publish attempts, partitioned by outcome.",
		},
		[]string{"outcome"},
	)
)

// Register attaches slow peer collectors to the supplied Prometheus registerer.
func Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		reportsTotal,
		snapshotFailuresTotal,
		snapshotDurationSeconds,
		trackedNodes,
		slowNodes,
		sweptNodesTotal,
		publishTotal,
		httpRequestsTotal,
		httpRequestDuration,
	}

	for _, collector := range collectors {
		if err := reg.Register(collector); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); ok {
				continue
			}
			return err
		}
	}
	return nil
}

// ObserveReports counts ingested reports.
func ObserveReports(n int) {
	if n > 0 {
		reportsTotal.Add(float64(n))
	}
}

// SetTrackedNodes records how many slow nodes the tracker holds.
func SetTrackedNodes(n int) {
	trackedNodes.Set(float64(n))
}

// ObserveSnapshot records a snapshot build; ok=false counts a serialization failure.
func ObserveSnapshot(seconds float64, ok bool) {
	if seconds < 0 {
		seconds = 0
	}
	snapshotDurationSeconds.Observe(seconds)
	if !ok {
		snapshotFailuresTotal.Inc()
	}
}

// SetSlowNodes records how many slow nodes the last ranking returned.
func SetSlowNodes(n int) {
	slowNodes.Set(float64(n))
}

// ObserveSweep counts nodes dropped by a sweep.
func ObserveSweep(removed int) {
	if removed > 0 {
		sweptNodesTotal.Add(float64(removed))
	}
}

// ObservePublish records a publish attempt outcome.
func ObservePublish(outcome string) {
	switch outcome {
	case OutcomeSuccess, OutcomeSkipped:
	default:
		outcome = OutcomeError
	}
	publishTotal.WithLabelValues(outcome).Inc()
}
