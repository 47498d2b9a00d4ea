package classifier

import "github.com/prometheus/client_golang/prometheus"

var (
	predictionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "imgclassd",
			Subsystem: "classifier",
			Name:      "predictions_total",
			Help:      "Successful predictions by predicted class",
		},
		[]string{"class"},
	)

	inferenceDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "imgclassd",
			Subsystem: "classifier",
			Name:      "inference_duration_seconds",
			Help:      "Decode, preprocess and forward latency in seconds",
			Buckets:   prometheus.DefBuckets,
		},
	)

	rejectionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "imgclassd",
			Subsystem: "classifier",
			Name:      "rejections_total",
			Help:      "Requests rejected before inference",
		},
		[]string{"reason"},
	)
)

func init() {
	prometheus.MustRegister(predictionsTotal, inferenceDuration, rejectionsTotal)
}
