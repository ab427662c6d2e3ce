// Package metrics exposes the gateway's Prometheus collectors.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// CacheHits counts read-path hits per tier ("redis" or "postgres").
	CacheHits = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ptgen_cache_hits_total",
		Help: "Cache hits by backing tier.",
	}, []string{"tier"})

	// CacheMisses counts read-paths that fell through to an upstream fetch.
	CacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ptgen_cache_misses_total",
		Help: "Cache misses that triggered an upstream fetch.",
	})

	// CacheWriteErrors counts best-effort tier writes that failed.
	CacheWriteErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ptgen_cache_write_errors_total",
		Help: "Failed cache tier writes (logged, never surfaced).",
	}, []string{"tier"})

	// RateLimited counts requests rejected by the gateway's own limiter.
	RateLimited = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ptgen_rate_limited_total",
		Help: "Requests rejected by the sliding-window limiter.",
	})

	// ProviderErrors counts upstream failures per source.
	ProviderErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ptgen_provider_errors_total",
		Help: "Upstream provider failures by source.",
	}, []string{"source"})

	// Requests counts handled requests by outcome kind.
	Requests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ptgen_requests_total",
		Help: "Handled requests by outcome.",
	}, []string{"outcome"})
)

// Handler serves the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
