package upstream

import (
	"fmt"

	"github.com/VictoriaMetrics/metrics"
)

// Metric names follow the {requestsHistogram,totalHandledRequests}-style
// naming the forwarder/nameserver modules use: a verb, the subsystem, then
// the dimension.
func queryDuration(providerName string) *metrics.Histogram {
	return metrics.GetOrCreateHistogram(fmt.Sprintf(`sdfw_upstream_query_duration_seconds{provider=%q}`, providerName))
}

func queryAttempts(providerName string) *metrics.Counter {
	return metrics.GetOrCreateCounter(fmt.Sprintf(`sdfw_upstream_query_attempts_total{provider=%q}`, providerName))
}

func queryFailures(providerName string) *metrics.Counter {
	return metrics.GetOrCreateCounter(fmt.Sprintf(`sdfw_upstream_query_failures_total{provider=%q}`, providerName))
}

func bootstrapCacheHits() *metrics.Counter {
	return metrics.GetOrCreateCounter(`sdfw_upstream_bootstrap_cache_hits_total`)
}
