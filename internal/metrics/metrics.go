package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTPRequestsTotal counts responses by method, route pattern and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "expense_tracker_http_requests_total",
		Help: "The total number of HTTP requests",
	}, []string{"method", "route", "status"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "expense_tracker_http_request_duration_seconds",
		Help:    "The HTTP request duration in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route"})

	// LoginAttemptsTotal counts login outcomes: success, invalid, locked, disabled, error.
	LoginAttemptsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "expense_tracker_login_attempts_total",
		Help: "The total number of login attempts",
	}, []string{"result"})

	RegistrationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "expense_tracker_registrations_total",
		Help: "The total number of registration attempts",
	}, []string{"result"})

	AccountLocksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "expense_tracker_account_locks_total",
		Help: "The total number of accounts locked after repeated login failures",
	})

	ExpenseEventsPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "expense_tracker_expense_events_published_total",
		Help: "The total number of expense change events published",
	}, []string{"type"})

	WebSocketConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "expense_tracker_websocket_connections",
		Help: "The number of open expense feed connections",
	})
)
