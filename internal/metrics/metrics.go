// Package metrics provides Prometheus metrics for the approval bot.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
)

const namespace = "approvalbot"

// Metrics holds the bot's collectors on a registry of its own.
type Metrics struct {
	Registry *prometheus.Registry

	ActivitiesTotal    *prometheus.CounterVec
	InvokesTotal       *prometheus.CounterVec
	InvokeDuration     *prometheus.HistogramVec
	TransitionsTotal   *prometheus.CounterVec
	CardRendersTotal   *prometheus.CounterVec
	ErrorsTotal        *prometheus.CounterVec
	NotificationsTotal *prometheus.CounterVec
}

// New creates the collectors and registers them together with the Go and
// process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		Registry: reg,
		ActivitiesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "activities_total",
			Help:      "Inbound activities by type.",
		}, []string{"type"}),
		InvokesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "invokes_total",
			Help:      "Invoke activities by name and response status.",
		}, []string{"name", "status"}),
		InvokeDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "invoke_duration_seconds",
			Help:      "Invoke handling duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"name"}),
		TransitionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transitions_total",
			Help:      "Approval transitions by verb and resulting state.",
		}, []string{"verb", "state"}),
		CardRendersTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "card_renders_total",
			Help:      "Rendered cards by card id.",
		}, []string{"card"}),
		ErrorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "errors_total",
			Help:      "Errors returned to the channel by code.",
		}, []string{"code"}),
		NotificationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "approver_notifications_total",
			Help:      "Approver notifications by outcome.",
		}, []string{"outcome"}),
	}

	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.ActivitiesTotal,
		m.InvokesTotal,
		m.InvokeDuration,
		m.TransitionsTotal,
		m.CardRendersTotal,
		m.ErrorsTotal,
		m.NotificationsTotal,
	)
	return m
}

// Handler exposes the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{Registry: m.Registry})
}

func Module() fx.Option {
	return fx.Provide(New)
}
