package cache

import "github.com/prometheus/client_golang/prometheus"

var requestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
	Name: "cache_requests_total",
	Help: "Cache operations by category, tier and result",
}, []string{"category", "tier", "result"})

func init() {
	prometheus.MustRegister(requestsTotal)
}

func observe(category string, tier Tier, result string) {
	requestsTotal.WithLabelValues(category, string(tier), result).Inc()
}
