package handlers

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics aggregates the Prometheus collectors exposed on /metrics.
type Metrics struct {
	AttendanceMarked  *prometheus.CounterVec
	FaceComparisons   prometheus.Counter
	FaceMismatches    prometheus.Counter
	ComparisonSeconds prometheus.Histogram
}

// NewMetrics registers the collectors on the given registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		AttendanceMarked: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "attendance_marked_total",
			Help: "Attendance records created, by status.",
		}, []string{"status"}),
		FaceComparisons: factory.NewCounter(prometheus.CounterOpts{
			Name: "face_comparisons_total",
			Help: "Face comparison requests served.",
		}),
		FaceMismatches: factory.NewCounter(prometheus.CounterOpts{
			Name: "face_mismatches_total",
			Help: "Comparisons scored below the acceptance threshold.",
		}),
		ComparisonSeconds: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "face_comparison_duration_seconds",
			Help:    "Wall time of one face comparison round trip.",
			Buckets: prometheus.DefBuckets,
		}),
	}
}
