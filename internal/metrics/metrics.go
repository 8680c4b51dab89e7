package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	Connections = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "ws_active_connections",
		Help: "Active websocket connections",
	})
	MessagesSent = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "messages_sent_total",
		Help: "Messages persisted and fanned out",
	})
	EventsBroadcast = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ws_events_broadcast_total",
		Help: "Events delivered to subscribed connections",
	}, []string{"event"})
	ToggleOps = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "toggle_ops_total",
		Help: "Like/follow toggle operations",
	}, []string{"kind", "result"})
	EventPublishFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "event_publish_failures_total",
		Help: "Kafka event publishes that failed",
	})
)

func Init() {
	prometheus.MustRegister(Connections, MessagesSent, EventsBroadcast, ToggleOps, EventPublishFailures)
}

// Handler returns an http.Handler for Prometheus scraping.
func Handler() http.Handler {
	return promhttp.Handler()
}
