package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Métricas Prometheus del mesh. Paquete standalone para evitar ciclos de
// import entre gateway, rpc y HTTP.

var (
	GatewayRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "gridgate_gateway_requests_total",
		Help: "Requests procesados por el gateway, por operación y resultado",
	}, []string{"op", "outcome"})

	CallRetries = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "gridgate_call_retries_total",
		Help: "Reintentos del call client, por topic",
	}, []string{"topic"})

	CallDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "gridgate_call_duration_ms",
		Help:    "Latencia de llamadas remotas en milisegundos",
		Buckets: prometheus.ExponentialBuckets(1, 2, 14),
	}, []string{"topic", "op"})

	RateLimited = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "gridgate_rate_limited_total",
		Help: "Admisiones bloqueadas por cuota",
	})
)

// Register registers the mesh metrics on the given registry (or default if nil).
func Register(reg prometheus.Registerer) error {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	for _, c := range []prometheus.Collector{GatewayRequests, CallRetries, CallDuration, RateLimited} {
		if err := reg.Register(c); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); !ok {
				return err
			}
		}
	}
	return nil
}
