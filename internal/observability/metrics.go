// Package observability registers the service's Prometheus metrics and error reporting.
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	profilesCreatedCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "sportisimo",
		Subsystem: "profile",
		Name:      "created_total",
		Help:      "Number of profile rows created on first authenticated access.",
	})

	profileConflictsCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "sportisimo",
		Subsystem: "profile",
		Name:      "create_conflicts_total",
		Help:      "Number of concurrent profile creations resolved by re-reading the stored row.",
	})

	profileDegradedCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "sportisimo",
		Subsystem: "profile",
		Name:      "degraded_reads_total",
		Help:      "Number of profile reads served from in-memory defaults because the store failed.",
	})

	profileWriteGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "sportisimo",
		Subsystem: "profile",
		Name:      "last_write_timestamp_seconds",
		Help:      "Unix timestamp of the most recent profile insert or update.",
	})

	authFailuresCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sportisimo",
		Subsystem: "auth",
		Name:      "failures_total",
		Help:      "Number of failed authentication attempts grouped by flow.",
	}, []string{"flow"})

	activityFetchCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sportisimo",
		Subsystem: "activity",
		Name:      "fetches_total",
		Help:      "Number of activity provider fetches grouped by outcome.",
	}, []string{"outcome"})
)

func init() {
	prometheus.MustRegister(
		profilesCreatedCounter,
		profileConflictsCounter,
		profileDegradedCounter,
		profileWriteGauge,
		authFailuresCounter,
		activityFetchCounter,
	)
}

// Activity fetch outcomes.
const (
	FetchOK       = "ok"
	FetchSkipped  = "skipped"
	FetchFailed   = "failed"
	FetchNoAccess = "no_access"
)

// RecordProfileCreated counts a new profile row.
func RecordProfileCreated(ts time.Time) {
	profilesCreatedCounter.Inc()
	RecordProfileWrite(ts)
}

// RecordProfileWrite updates the profile write watermark.
func RecordProfileWrite(ts time.Time) {
	if ts.IsZero() {
		return
	}
	profileWriteGauge.Set(float64(ts.Unix()))
}

// RecordProfileConflict counts a duplicate insert recovered by re-reading.
func RecordProfileConflict() {
	profileConflictsCounter.Inc()
}

// RecordProfileDegraded counts a read served from defaults.
func RecordProfileDegraded() {
	profileDegradedCounter.Inc()
}

// RecordAuthFailure counts an authentication failure for flow.
func RecordAuthFailure(flow string) {
	authFailuresCounter.WithLabelValues(flow).Inc()
}

// RecordActivityFetch counts an activity provider call by outcome.
func RecordActivityFetch(outcome string) {
	activityFetchCounter.WithLabelValues(outcome).Inc()
}
