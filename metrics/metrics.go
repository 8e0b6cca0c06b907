// Package metrics centralizes the rcrowley/go-metrics registry used across
// this repository, mirroring the gauge/counter naming style of
// datasync/chaindatafetcher/chaindata_fetcher.go (checkpointGauge,
// handledBlockNumberGauge, *InsertionTimeGauge, *InsertionRetryGauge) but
// generalized to this domain's components instead of being declared ad hoc
// per file.
package metrics

import "github.com/rcrowley/go-metrics"

var registry = metrics.NewRegistry()

// Registry exposes the shared registry for future wiring (e.g. a reporter);
// no HTTP exposition surface is implemented here since admin surfaces are
// out of scope for this repository.
func Registry() metrics.Registry { return registry }

// Gauge returns (creating if necessary) a named int64 gauge.
func Gauge(name string) metrics.Gauge {
	return metrics.GetOrRegisterGauge(name, registry)
}

// Counter returns (creating if necessary) a named counter.
func Counter(name string) metrics.Counter {
	return metrics.GetOrRegisterCounter(name, registry)
}

// Meter returns (creating if necessary) a named meter, used for rate-style
// stats such as match ratio sampling.
func Meter(name string) metrics.Meter {
	return metrics.GetOrRegisterMeter(name, registry)
}
