// Package metrics exposes registry statistics to Prometheus.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/shammianand/smartcache"
)

// StatsSource is satisfied by *smartcache.Registry.
type StatsSource interface {
	Stats() map[string]smartcache.Stats
}

// Collector reads cache statistics on every scrape, so values are never
// stale and nothing has to be updated on the cache hot path.
type Collector struct {
	source StatsSource

	entries     *prometheus.Desc
	capacity    *prometheus.Desc
	hits        *prometheus.Desc
	misses      *prometheus.Desc
	evictions   *prometheus.Desc
	expirations *prometheus.Desc
}

func NewCollector(namespace string, source StatsSource) *Collector {
	desc := func(name, help string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName(namespace, "", name), help, []string{"cache"}, nil)
	}
	return &Collector{
		source:      source,
		entries:     desc("entries", "Number of entries currently stored"),
		capacity:    desc("capacity", "Maximum number of entries"),
		hits:        desc("hits_total", "Total number of cache hits"),
		misses:      desc("misses_total", "Total number of cache misses"),
		evictions:   desc("evictions_total", "Total number of entries evicted for capacity"),
		expirations: desc("expirations_total", "Total number of entries removed after expiring"),
	}
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.entries
	ch <- c.capacity
	ch <- c.hits
	ch <- c.misses
	ch <- c.evictions
	ch <- c.expirations
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	for name, s := range c.source.Stats() {
		ch <- prometheus.MustNewConstMetric(c.entries, prometheus.GaugeValue, float64(s.Size), name)
		ch <- prometheus.MustNewConstMetric(c.capacity, prometheus.GaugeValue, float64(s.MaxSize), name)
		ch <- prometheus.MustNewConstMetric(c.hits, prometheus.CounterValue, float64(s.Hits), name)
		ch <- prometheus.MustNewConstMetric(c.misses, prometheus.CounterValue, float64(s.Misses), name)
		ch <- prometheus.MustNewConstMetric(c.evictions, prometheus.CounterValue, float64(s.Evictions), name)
		ch <- prometheus.MustNewConstMetric(c.expirations, prometheus.CounterValue, float64(s.Expirations), name)
	}
}

// NewRegistry returns a Prometheus registry holding the Go and process
// collectors plus a cache collector for source.
func NewRegistry(namespace string, source StatsSource) *prometheus.Registry {
	registry := prometheus.NewRegistry()
	registry.MustRegister(prometheus.NewGoCollector())
	registry.MustRegister(prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))
	registry.MustRegister(NewCollector(namespace, source))
	return registry
}

// Handler returns the HTTP handler for the /metrics endpoint.
func Handler(registry *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
