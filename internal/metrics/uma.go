package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// UMA grant-flow Prometheus metrics. Standalone package to avoid import
// cycles between the token service and HTTP packages.

var (
	GrantsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "uma_grants_total",
		Help: "RPTs emitidos o actualizados con éxito",
	})

	DenialsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "uma_denials_total",
		Help: "Requests de token rechazados, por código de error",
	}, []string{"error"})

	NeedInfoTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "uma_need_info_total",
		Help: "Respuestas need_info (claims gathering requerido)",
	})

	TicketRotationsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "uma_ticket_rotations_total",
		Help: "Tickets rotados durante needs-info",
	})

	PolicyEvalLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "uma_policy_eval_latency_ms",
		Help:    "Latencia de evaluación de policies en milisegundos",
		Buckets: prometheus.ExponentialBuckets(1, 2, 12),
	})
)

// Register registers the UMA metrics on the given registry (or default if nil).
func Register(reg prometheus.Registerer) error {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	for _, c := range []prometheus.Collector{
		GrantsTotal, DenialsTotal, NeedInfoTotal, TicketRotationsTotal, PolicyEvalLatency,
	} {
		if err := reg.Register(c); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); !ok {
				return err
			}
		}
	}
	return nil
}
