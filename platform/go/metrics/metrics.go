package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	applyDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "leadpilot_segment_apply_duration_seconds",
		Help:    "Duration of segment apply runs",
		Buckets: prometheus.DefBuckets,
	}, []string{"mode", "result"})

	appliesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "leadpilot_segment_applies_total",
		Help: "Count of segment apply runs by mode and result",
	}, []string{"mode", "result"})

	matchedProspects = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "leadpilot_segment_apply_matched_prospects",
		Help:    "Distribution of matched prospect counts per apply run",
		Buckets: prometheus.ExponentialBuckets(1, 4, 10),
	})
)

// ObserveApply records one segment apply run.
func ObserveApply(mode, result string, matched int64, duration time.Duration) {
	applyDuration.WithLabelValues(mode, result).Observe(duration.Seconds())
	appliesTotal.WithLabelValues(mode, result).Inc()
	if result == "success" {
		matchedProspects.Observe(float64(matched))
	}
}
