package services

import "github.com/prometheus/client_golang/prometheus"

var (
	// ingestedTotal counts ingest outcomes by source. result is one of
	// created, duplicate, invalid, quota, error.
	ingestedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "feedback_ingested_total",
			Help: "Feedback ingest attempts by source and result.",
		},
		[]string{"source", "result"},
	)

	// queueFullTotal counts records persisted while the queue was full. The
	// reconciliation sweep picks them up later.
	queueFullTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "feedback_queue_full_total",
		Help: "Records left pending because the classification queue was full.",
	})
)

func init() {
	prometheus.MustRegister(ingestedTotal, queueFullTotal)
}
