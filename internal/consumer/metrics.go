package consumer

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	processedCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sportisimo",
		Subsystem: "notifier",
		Name:      "messages_processed_total",
		Help:      "Number of Kafka messages turned into notifications.",
	}, []string{"topic", "event_type"})

	failedCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sportisimo",
		Subsystem: "notifier",
		Name:      "messages_failed_total",
		Help:      "Number of Kafka messages whose handler returned an error.",
	}, []string{"topic", "event_type"})

	lastMessageGauge = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "sportisimo",
		Subsystem: "notifier",
		Name:      "last_message_timestamp_seconds",
		Help:      "Timestamp of the most recent Kafka message processed.",
	}, []string{"topic"})
)

func init() {
	prometheus.MustRegister(processedCounter, failedCounter, lastMessageGauge)
}

// RecordProcessed updates counters for successfully handled messages.
func RecordProcessed(msg Message) {
	processedCounter.WithLabelValues(msg.Topic, msg.EventType()).Inc()
	if !msg.Timestamp.IsZero() {
		lastMessageGauge.WithLabelValues(msg.Topic).Set(float64(msg.Timestamp.Unix()))
	}
}

func recordFailed(msg Message) {
	failedCounter.WithLabelValues(msg.Topic, msg.EventType()).Inc()
}
