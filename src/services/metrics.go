package services

import "github.com/prometheus/client_golang/prometheus"

var (
	apiKeyValidations = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "api_key_validations_total",
		Help: "API key validations by result",
	}, []string{"result"})

	apiKeyLifecycle = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "api_key_lifecycle_events_total",
		Help: "API key create, rotate and revoke events",
	}, []string{"action"})
)

func init() {
	prometheus.MustRegister(apiKeyValidations)
	prometheus.MustRegister(apiKeyLifecycle)
}
