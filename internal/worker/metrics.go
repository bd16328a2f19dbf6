package worker

import "github.com/prometheus/client_golang/prometheus"

var (
	// classificationsTotal counts Process outcomes: completed, retry,
	// failed, lost, skipped, abandoned.
	classificationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "feedback_classifications_total",
			Help: "Classification attempts by outcome.",
		},
		[]string{"outcome"},
	)

	// classifyDuration measures classifier calls, successful or not.
	classifyDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "feedback_classification_duration_seconds",
		Help:    "Latency of calls to the classification service.",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 20, 30},
	})

	sweepReclaimedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "feedback_sweep_reclaimed_total",
		Help: "Processing records whose lease expired and were returned to pending.",
	})

	sweepRequeuedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "feedback_sweep_requeued_total",
		Help: "Stale pending or overdue retry records re-enqueued by the sweep.",
	})
)

func init() {
	prometheus.MustRegister(classificationsTotal, classifyDuration, sweepReclaimedTotal, sweepRequeuedTotal)
}
