// Package metrics defines the Collector interface through which the
// scheduler, the sorted cache and the cache builder report operational
// metrics, plus no-op, in-memory and Prometheus implementations.
package metrics
