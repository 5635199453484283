// Package metrics holds the Prometheus collectors of the app. They are served at /metrics.
package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "examtrack"

var (
	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "http_requests_total",
		Help:      "Total HTTP requests by method, route and status",
	}, []string{"method", "route", "status"})

	Logins = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "logins_total",
		Help:      "Total login attempts by method and result",
	}, []string{"method", "result"})

	GoalsCompleted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "goals_completed_total",
		Help:      "Total daily goal lists completed",
	})

	CodesRedeemed = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "premium_codes_redeemed_total",
		Help:      "Total premium codes redeemed",
	})

	CodesGenerated = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "premium_codes_generated_total",
		Help:      "Total premium codes generated by admins",
	})

	MessagesSent = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "group_messages_sent_total",
		Help:      "Total group messages sent",
	})

	WSConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "websocket_connections",
		Help:      "Open websocket connections",
	})

	EventsDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "realtime_events_dropped_total",
		Help:      "Realtime events dropped because a subscriber was too slow",
	}, []string{"broker"})
)

// Login results
const (
	LoginSuccess = "success"
	LoginFailure = "failure"
	LoginBanned  = "banned"
)

func ObserveRequest(method, route string, status int) {
	if route == "" {
		route = "unmatched"
	}
	HTTPRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
}

func Handler() http.Handler {
	return promhttp.Handler()
}
