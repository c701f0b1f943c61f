package api

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// metrics owns a private registry so tests can spin up servers without
// tripping duplicate-registration panics on the global one.
type metrics struct {
	registry     *prometheus.Registry
	stepsTotal   *prometheus.CounterVec
	plansTotal   *prometheus.CounterVec
	requestTimes *prometheus.HistogramVec
}

func newMetrics() *metrics {
	m := &metrics{
		registry: prometheus.NewRegistry(),
		stepsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "voxpilot_steps_total",
			Help: "Executed intent steps by type and outcome.",
		}, []string{"type", "ok"}),
		plansTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "voxpilot_plans_validated_total",
			Help: "Plan generation outcomes.",
		}, []string{"outcome"}),
		requestTimes: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "voxpilot_http_request_duration_seconds",
			Help:    "HTTP request latency by route and status.",
			Buckets: prometheus.DefBuckets,
		}, []string{"path", "status"}),
	}
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		m.stepsTotal,
		m.plansTotal,
		m.requestTimes,
	)
	return m
}
