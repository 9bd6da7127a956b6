// Package metrics holds the prometheus collectors shared by the auth core.
package metrics

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	GatewayDecisions *prometheus.CounterVec
	Sessions         *prometheus.CounterVec
	ServiceTokens    *prometheus.CounterVec

	gatherer prometheus.Gatherer
}

// New registers the collectors on reg. A nil reg uses a private registry,
// which keeps repeated construction in tests from panicking.
func New(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	m := &Metrics{
		GatewayDecisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "auth_gateway_decisions_total",
			Help: "Token validation gateway outcomes by reason.",
		}, []string{"outcome"}),
		Sessions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "auth_sessions_total",
			Help: "Login, refresh and logout attempts by result.",
		}, []string{"op", "result"}),
		ServiceTokens: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "servicetoken_fetch_total",
			Help: "Service token lookups by result (hit, fetched, failed).",
		}, []string{"result"}),
		gatherer: reg,
	}
	reg.MustRegister(m.GatewayDecisions, m.Sessions, m.ServiceTokens)
	return m
}

func (m *Metrics) Decision(outcome string) {
	if m == nil {
		return
	}
	m.GatewayDecisions.WithLabelValues(outcome).Inc()
}

func (m *Metrics) Session(op, result string) {
	if m == nil {
		return
	}
	m.Sessions.WithLabelValues(op, result).Inc()
}

func (m *Metrics) ServiceToken(result string) {
	if m == nil {
		return
	}
	m.ServiceTokens.WithLabelValues(result).Inc()
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

func (m *Metrics) Register(e *echo.Echo) {
	e.GET("/metrics", echo.WrapHandler(m.Handler()))
}
