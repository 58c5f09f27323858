// Copyright (c) 2026 Parley. All rights reserved.
// Author: tai.buivan.jp@gmail.com

// Package metrics provides Prometheus collection and exposition for the
// identity service.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector is the interface consumed by the identity service so that tests
// can pass a no-op implementation.
type Collector interface {
	RecordLogin(outcome, provider string)
	RecordDelegationFallback(flow string)
	RecordSessionRevoked(reason string)
	RecordSweep(revoked, deleted int)
}

// PromCollector records identity metrics into a Prometheus registry.
type PromCollector struct {
	logins       *prometheus.CounterVec
	fallbacks    *prometheus.CounterVec
	revocations  *prometheus.CounterVec
	sweepRevoked prometheus.Counter
	sweepDeleted prometheus.Counter
}

// NewCollector registers the identity metric families on reg.
func NewCollector(reg prometheus.Registerer) *PromCollector {
	c := &PromCollector{
		logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "parley_logins_total",
			Help: "Login attempts by outcome and authenticating authority.",
		}, []string{"outcome", "provider"}),
		fallbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "parley_delegation_fallback_total",
			Help: "Remote-authority calls that fell back to local handling, by flow.",
		}, []string{"flow"}),
		revocations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "parley_sessions_revoked_total",
			Help: "Sessions revoked, by reason.",
		}, []string{"reason"}),
		sweepRevoked: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "parley_sweep_sessions_revoked_total",
			Help: "Expired sessions flagged revoked by the background sweep.",
		}),
		sweepDeleted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "parley_sweep_sessions_deleted_total",
			Help: "Sessions hard-deleted past the retention window.",
		}),
	}

	reg.MustRegister(c.logins, c.fallbacks, c.revocations, c.sweepRevoked, c.sweepDeleted)
	return c
}

// RecordLogin implements [Collector].
func (c *PromCollector) RecordLogin(outcome, provider string) {
	c.logins.WithLabelValues(outcome, provider).Inc()
}

// RecordDelegationFallback implements [Collector].
func (c *PromCollector) RecordDelegationFallback(flow string) {
	c.fallbacks.WithLabelValues(flow).Inc()
}

// RecordSessionRevoked implements [Collector].
func (c *PromCollector) RecordSessionRevoked(reason string) {
	c.revocations.WithLabelValues(reason).Inc()
}

// RecordSweep implements [Collector].
func (c *PromCollector) RecordSweep(revoked, deleted int) {
	c.sweepRevoked.Add(float64(revoked))
	c.sweepDeleted.Add(float64(deleted))
}

// Handler returns the /metrics exposition handler for reg.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}

// # No-op Implementation

// Noop discards every observation. Used in tests.
type Noop struct{}

func (Noop) RecordLogin(string, string)      {}
func (Noop) RecordDelegationFallback(string) {}
func (Noop) RecordSessionRevoked(string)     {}
func (Noop) RecordSweep(int, int)            {}
