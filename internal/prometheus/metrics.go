package prometheus

import "github.com/prometheus/client_golang/prometheus"

const (
	intakeDurationBucketStart  = 0.05
	intakeDurationBucketFactor = 2.0
	intakeDurationBucketCount  = 12
)

const (
	drainDurationBucketStart  = 0.5
	drainDurationBucketFactor = 2.0
	drainDurationBucketCount  = 10
)

var WebhookOutcomes = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "webhook_outcomes_total",
		Help: "Webhook intake results by outcome",
	},
	[]string{"outcome"},
)

var IntakeDuration = prometheus.NewHistogram(
	prometheus.HistogramOpts{
		Name: "webhook_intake_duration_seconds",
		Help: "Time taken to handle an inbound webhook",
		Buckets: prometheus.ExponentialBuckets(
			intakeDurationBucketStart,
			intakeDurationBucketFactor,
			intakeDurationBucketCount,
		),
	},
)

var DrainDuration = prometheus.NewHistogram(
	prometheus.HistogramOpts{
		Name: "webhook_drain_duration_seconds",
		Help: "Time taken for one retry drain pass",
		Buckets: prometheus.ExponentialBuckets(
			drainDurationBucketStart,
			drainDurationBucketFactor,
			drainDurationBucketCount,
		),
	},
)

var QueueDepth = prometheus.NewGaugeVec(
	prometheus.GaugeOpts{
		Name: "webhook_queue_depth",
		Help: "Queue items by status, sampled after each drain pass",
	},
	[]string{"status"},
)

func init() {
	prometheus.MustRegister(WebhookOutcomes)
	prometheus.MustRegister(IntakeDuration)
	prometheus.MustRegister(DrainDuration)
	prometheus.MustRegister(QueueDepth)
}
