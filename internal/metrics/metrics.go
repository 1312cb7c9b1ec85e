package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	WsConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "chat_ws_connections",
		Help: "Current number of active websocket connections",
	})
	OnlineUsers = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "chat_online_users",
		Help: "Number of users in the last broadcast roster",
	})
	RoutedEventsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "chat_routed_events_total",
		Help: "Routed point-to-point events by kind and delivery outcome",
	}, []string{"kind", "outcome"})
	RosterBroadcastsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "chat_roster_broadcasts_total",
		Help: "Total number of roster snapshots pushed to clients",
	})
	SessionsIssuedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "chat_sessions_issued_total",
		Help: "Total number of sessions issued",
	})
	SessionsSweptTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "chat_sessions_swept_total",
		Help: "Total number of expired sessions removed by the sweeper",
	})
	HttpRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})
	HttpRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})
)

func init() {
	prometheus.MustRegister(
		WsConnections, OnlineUsers, RoutedEventsTotal, RosterBroadcastsTotal,
		SessionsIssuedTotal, SessionsSweptTotal, HttpRequestsTotal, HttpRequestDuration,
	)
}

// GinMiddleware 统计基础请求指标，供 Prometheus 拉取。
func GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		status := strconv.Itoa(c.Writer.Status())
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		labels := prometheus.Labels{"method": c.Request.Method, "path": path, "status": status}
		HttpRequestsTotal.With(labels).Inc()
		HttpRequestDuration.With(labels).Observe(time.Since(start).Seconds())
	}
}
