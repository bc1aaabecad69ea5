package bridge

import "github.com/prometheus/client_golang/prometheus"

var (
	generationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "chatd",
			Subsystem: "bridge",
			Name:      "generations_total",
			Help:      "Generations run by the worker, by outcome",
		},
		[]string{"outcome"},
	)

	fragmentsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "chatd",
			Subsystem: "bridge",
			Name:      "fragments_total",
			Help:      "Fragments pushed to the outbound queue",
		},
	)

	streamsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "chatd",
			Subsystem: "bridge",
			Name:      "streams_total",
			Help:      "Client streams by final state",
		},
		[]string{"outcome"},
	)

	discardedItemsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "chatd",
			Subsystem: "bridge",
			Name:      "discarded_items_total",
			Help:      "Outbound items dropped because their client had left",
		},
	)

	gateWaitSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "chatd",
			Subsystem: "bridge",
			Name:      "gate_wait_seconds",
			Help:      "Time spent waiting for the session gate",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 10),
		},
	)

	queueDepth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "chatd",
			Subsystem: "bridge",
			Name:      "queue_depth",
			Help:      "Items currently buffered per queue",
		},
		[]string{"queue"},
	)
)

func init() {
	prometheus.MustRegister(generationsTotal, fragmentsTotal, streamsTotal, discardedItemsTotal, gateWaitSeconds, queueDepth)
}
