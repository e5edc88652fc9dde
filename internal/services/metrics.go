package services

import "github.com/prometheus/client_golang/prometheus"

var (
	// relayOutcomes counts relay results per platform. Skipped relays are
	// reported as outcome "skipped".
	relayOutcomes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_outcomes_total",
			Help: "Total number of relay attempts by outcome.",
		},
		[]string{"platform", "outcome"},
	)

	// relayRemoteCalls counts remote API calls by protocol path and call.
	relayRemoteCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_remote_calls_total",
			Help: "Total number of remote platform calls.",
		},
		[]string{"platform", "path", "call"},
	)

	relayDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "relay_duration_seconds",
			Help:    "Duration of relay attempts in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"platform"},
	)
)

func init() {
	prometheus.MustRegister(relayOutcomes, relayRemoteCalls, relayDuration)
}

func outcomeLabel(kind string, skipped bool) string {
	if skipped {
		return "skipped"
	}
	return kind
}
