// Package metrics exposes Prometheus collectors for the connection and
// compound layers: calls in flight per connection and compound/RPC latency
// per program. Nothing in this package is required for the
// library to function — callers that never read the registry pay only the
// cost of a few atomic increments per call.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Registry is the dedicated collector registry (not the prometheus global
// default) this package's metrics are registered against. The collectors
// are registered when the package is initialized, so assigning another
// registry to this variable afterwards does not move them.
var Registry = prometheus.NewRegistry()

var (
	callsInFlight = promauto.With(Registry).NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "nfsclient",
		Subsystem: "rpc",
		Name:      "calls_in_flight",
		Help:      "Number of RPC calls currently awaiting a reply, per connection key.",
	}, []string{"server", "transport"})

	compoundLatency = promauto.With(Registry).NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "nfsclient",
		Subsystem: "rpc",
		Name:      "call_latency_seconds",
		Help:      "Round-trip latency from send to matched reply, per RPC program.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"program"})
)

// CallStarted increments the in-flight gauge for a connection key and
// returns a func that decrements it and observes the call's latency
// against program's histogram when invoked.
func CallStarted(server, transport, program string) func() {
	callsInFlight.WithLabelValues(server, transport).Inc()
	start := time.Now()
	return func() {
		callsInFlight.WithLabelValues(server, transport).Dec()
		compoundLatency.WithLabelValues(program).Observe(time.Since(start).Seconds())
	}
}
