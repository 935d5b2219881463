package queue

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// rowsProcessed counts row-level outcomes per role.
	rowsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "transcriptq_rows_total",
		Help: "Rows handled by a worker pass, by role and outcome",
	}, []string{"role", "outcome"})

	// passDuration tracks how long a full table scan takes.
	passDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "transcriptq_pass_duration_seconds",
		Help:    "Duration of one worker pass by role",
		Buckets: []float64{1, 10, 60, 300, 900, 1800, 3600},
	}, []string{"role"})

	// passErrors counts passes aborted by a pass-level error.
	passErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "transcriptq_pass_errors_total",
		Help: "Passes that ended with a pass-level error, by role",
	}, []string{"role"})

	// captionLookups counts caption lookups by result.
	captionLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "transcriptq_caption_lookups_total",
		Help: "Caption lookups by result (found, unavailable)",
	}, []string{"result"})

	jitterDelay = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "transcriptq_jitter_delay_seconds",
		Help:    "Randomized delay applied before audio downloads",
		Buckets: []float64{1, 5, 15, 30, 60, 90, 120, 180, 300},
	})
)
