package kafka

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	metricsOnce sync.Once
	registerer  prometheus.Registerer = prometheus.DefaultRegisterer

	producedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "stockpulse",
			Subsystem: "kafka",
			Name:      "produced_messages_total",
			Help:      "Messages written to Kafka by topic and result",
		},
		[]string{"topic", "result"},
	)
	produceLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "stockpulse",
			Subsystem: "kafka",
			Name:      "produce_seconds",
			Help:      "Write latency per batch",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"topic"},
	)
	consumedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "stockpulse",
			Subsystem: "kafka",
			Name:      "consumed_messages_total",
			Help:      "Messages handled by topic and result",
		},
		[]string{"topic", "result"},
	)
	queueDepth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "stockpulse",
			Subsystem: "kafka",
			Name:      "consumer_queue_depth",
			Help:      "Messages waiting for a consumer worker",
		},
		[]string{"topic"},
	)
)

// SetMetricsRegisterer must be called before the first producer or consumer
// is built; tests pass a private registry.
func SetMetricsRegisterer(reg prometheus.Registerer) {
	if reg != nil {
		registerer = reg
	}
}

func registerMetrics() {
	metricsOnce.Do(func() {
		registerer.MustRegister(producedTotal, produceLatency, consumedTotal, queueDepth)
	})
}

func observeProduce(topic string, count int, dur time.Duration, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	producedTotal.WithLabelValues(topic, result).Add(float64(count))
	produceLatency.WithLabelValues(topic).Observe(dur.Seconds())
}

func observeConsume(topic string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	consumedTotal.WithLabelValues(topic, result).Inc()
}
