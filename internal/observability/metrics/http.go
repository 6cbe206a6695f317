package metrics

import (
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// HTTPMetrics holds the server instruments. Routes are labelled by their
// registered pattern so unmatched paths collapse into one series.
type HTTPMetrics struct {
	duration metric.Float64Histogram
	active   metric.Int64UpDownCounter
}

func NewHTTPMetrics(cfg Config, provider metric.MeterProvider) (*HTTPMetrics, error) {
	name := strings.TrimSpace(cfg.ServiceName)
	if name == "" {
		name = "accessgate"
	}
	meter := provider.Meter(name + "/http")

	duration, err := meter.Float64Histogram("accessgate.http.server.duration",
		metric.WithUnit("s"),
		metric.WithDescription("Time to serve an HTTP request."),
		metric.WithExplicitBucketBoundaries(0.005, 0.025, 0.1, 0.25, 0.5, 1, 2.5, 5, 10),
	)
	if err != nil {
		return nil, err
	}
	active, err := meter.Int64UpDownCounter("accessgate.http.server.active_requests",
		metric.WithDescription("Requests currently being served."),
	)
	if err != nil {
		return nil, err
	}
	return &HTTPMetrics{duration: duration, active: active}, nil
}

// GinMiddleware records latency and concurrency per route. A nil receiver
// turns it into a pass-through.
func GinMiddleware(m *HTTPMetrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		if m == nil {
			c.Next()
			return
		}
		ctx := c.Request.Context()
		base := FilterAttributes(
			attribute.String("http.route", routeLabel(c.FullPath())),
			attribute.String("http.method", c.Request.Method),
		)
		m.active.Add(ctx, 1, metric.WithAttributes(base...))
		start := time.Now()

		c.Next()

		m.active.Add(ctx, -1, metric.WithAttributes(base...))
		attrs := append(base, attribute.String("http.status_class", statusClass(c.Writer.Status())))
		m.duration.Record(ctx, time.Since(start).Seconds(), metric.WithAttributes(attrs...))
	}
}

func routeLabel(route string) string {
	route = strings.TrimSpace(route)
	if route == "" {
		return "unmatched"
	}
	return route
}

func statusClass(status int) string {
	if status < 100 || status > 599 {
		return "unknown"
	}
	return strconv.Itoa(status/100) + "xx"
}
