package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	entryPersistGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "progress_service",
		Subsystem: "persistence",
		Name:      "last_entry_persisted_timestamp_seconds",
		Help:      "Unix timestamp of the most recent activity entry persisted to Postgres.",
	})
	computeDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "progress_service",
		Subsystem: "engine",
		Name:      "achievement_compute_duration_seconds",
		Help:      "Time spent computing a plan's achievement from its entry snapshot.",
		Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 8),
	})
	tierReachedCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "progress_service",
		Subsystem: "engine",
		Name:      "tiers_reached_total",
		Help:      "Number of tier milestones crossed, labeled by tier name.",
	}, []string{"tier"})
)

func init() {
	prometheus.MustRegister(entryPersistGauge, computeDuration, tierReachedCounter)
}

// RecordEntryPersisted updates the persistence watermark gauge.
func RecordEntryPersisted(ts time.Time) {
	if ts.IsZero() {
		return
	}
	entryPersistGauge.Set(float64(ts.Unix()))
}

// ObserveComputeDuration records one achievement computation.
func ObserveComputeDuration(d time.Duration) {
	computeDuration.Observe(d.Seconds())
}

// RecordTierReached counts a crossed tier milestone.
func RecordTierReached(tier string) {
	tierReachedCounter.WithLabelValues(tier).Inc()
}
