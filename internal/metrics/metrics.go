// Package metrics exposes the Prometheus counters for the membership service.
// All recording methods are safe to call on a nil *Metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "bankroll"

// Metrics holds the service collectors and the registry they live in
type Metrics struct {
	registry *prometheus.Registry

	invitationsIssued   *prometheus.CounterVec
	invitationsResolved *prometheus.CounterVec
	joinRequests        *prometheus.CounterVec
	notifications       *prometheus.CounterVec
	memberships         *prometheus.CounterVec
}

// New creates a registry with the Go/process collectors and the service counters
func New() *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	m := &Metrics{
		registry: registry,
		invitationsIssued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "invitations_issued_total",
			Help:      "Invitations created, by kind.",
		}, []string{"kind"}),
		invitationsResolved: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "invitations_resolved_total",
			Help:      "Invitation state transitions out of pending, by outcome.",
		}, []string{"outcome"}),
		joinRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "join_requests_total",
			Help:      "Join request events, by outcome.",
		}, []string{"outcome"}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      "Notification deliveries, by channel and result.",
		}, []string{"channel", "result"}),
		memberships: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "memberships_changed_total",
			Help:      "Membership ledger mutations, by change.",
		}, []string{"change"}),
	}

	registry.MustRegister(
		m.invitationsIssued,
		m.invitationsResolved,
		m.joinRequests,
		m.notifications,
		m.memberships,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{EnableOpenMetrics: true})
}

// Registry returns the underlying registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) InvitationIssued(kind string) {
	if m == nil {
		return
	}
	m.invitationsIssued.WithLabelValues(kind).Inc()
}

func (m *Metrics) InvitationResolved(outcome string) {
	if m == nil {
		return
	}
	m.invitationsResolved.WithLabelValues(outcome).Inc()
}

// InvitationsExpired records n invitations flipped to expired by a sweep
func (m *Metrics) InvitationsExpired(n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.invitationsResolved.WithLabelValues("expired").Add(float64(n))
}

func (m *Metrics) JoinRequest(outcome string) {
	if m == nil {
		return
	}
	m.joinRequests.WithLabelValues(outcome).Inc()
}

func (m *Metrics) Notification(channel string, err error) {
	if m == nil {
		return
	}
	result := "sent"
	if err != nil {
		result = "failed"
	}
	m.notifications.WithLabelValues(channel, result).Inc()
}

func (m *Metrics) MembershipChanged(change string) {
	if m == nil {
		return
	}
	m.memberships.WithLabelValues(change).Inc()
}
