package coordinator

import (
	"github.com/prometheus/client_golang/prometheus"
)

type metrics struct {
	requests       *prometheus.CounterVec
	paymentLookups *prometheus.CounterVec
	sessionItems   prometheus.Gauge
}

func newMetrics(reg prometheus.Registerer) *metrics {
	m := &metrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rentharvest",
			Name:      "bus_requests_total",
			Help:      "Coordinator requests handled, by command.",
		}, []string{"command"}),
		paymentLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rentharvest",
			Name:      "payment_lookups_total",
			Help:      "Payment cache lookups, by resolution tier.",
		}, []string{"tier"}),
		sessionItems: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "rentharvest",
			Name:      "session_items",
			Help:      "Items collected by the current session.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.requests, m.paymentLookups, m.sessionItems)
	}
	return m
}
