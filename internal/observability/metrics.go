package observability

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"google.golang.org/grpc"
	"google.golang.org/grpc/status"
)

const namespace = "social_chat"

var (
	// HTTP
	httpRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "HTTP requests by method, route template and status.",
	}, []string{"method", "route", "status"})

	httpLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request latency.",
		Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5},
	}, []string{"route"})

	rateLimited = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "rate_limited_total",
		Help:      "Requests rejected by the rate limiter, by key kind.",
	}, []string{"kind"})

	// gRPC
	grpcHandled = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "grpc",
		Name:      "server_handled_total",
		Help:      "Unary gRPC calls by service, method and code.",
	}, []string{"grpc_service", "grpc_method", "grpc_code"})

	// Realtime
	wsConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "ws",
		Name:      "active_connections",
		Help:      "Open websocket connections.",
	})

	wsLifecycle = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "ws",
		Name:      "events_total",
		Help:      "Websocket lifecycle and control events.",
	}, []string{"event"})

	realtimeQueued = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "realtime",
		Name:      "queued_total",
		Help:      "Room events queued to client send buffers.",
	}, []string{"event"})

	realtimeDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "realtime",
		Name:      "dropped_total",
		Help:      "Room events dropped on a full client buffer.",
	}, []string{"event"})

	// Notifications and broker
	notificationsDelivered = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "notifications",
		Name:      "delivered_total",
		Help:      "Notifications stored and pushed, by type.",
	}, []string{"type"})

	amqpPublishErrors = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "amqp",
		Name:      "publish_errors_total",
		Help:      "Failed broker publishes.",
	})
)

// HTTPMetricsMiddleware records request counts and latency keyed by the
// route template, so path ids never become label values.
func HTTPMetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		httpRequests.WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).Inc()
		httpLatency.WithLabelValues(route).Observe(time.Since(start).Seconds())
	}
}

func GRPCServerMetricsUnaryInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		resp, err := handler(ctx, req)
		svc, method := splitFullMethod(info.FullMethod)
		grpcHandled.WithLabelValues(svc, method, status.Code(err).String()).Inc()
		return resp, err
	}
}

// splitFullMethod parses "/pkg.Service/Method".
func splitFullMethod(fullMethod string) (string, string) {
	svc, method, ok := strings.Cut(strings.TrimPrefix(fullMethod, "/"), "/")
	if !ok || svc == "" || method == "" {
		return "unknown", "unknown"
	}
	return svc, method
}

func IncRateLimited(kind string) { rateLimited.WithLabelValues(kind).Inc() }

func IncWSActive() { wsConnections.Inc() }

func DecWSActive() { wsConnections.Dec() }

func IncWSEvent(event string) { wsLifecycle.WithLabelValues(event).Inc() }

// ObserveRealtime records one room fanout.
func ObserveRealtime(event string, queued, dropped int) {
	if queued > 0 {
		realtimeQueued.WithLabelValues(event).Add(float64(queued))
	}
	if dropped > 0 {
		realtimeDropped.WithLabelValues(event).Add(float64(dropped))
	}
}

func IncNotificationDelivered(notificationType string) {
	notificationsDelivered.WithLabelValues(notificationType).Inc()
}

func IncAMQPPublishError() { amqpPublishErrors.Inc() }
