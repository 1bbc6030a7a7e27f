package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/wms-platform/ingredient-stock/pkg/tracing"
)

// TracingConfig holds tracing middleware configuration
type TracingConfig struct {
	ServiceName string
	Propagator  propagation.TextMapPropagator
}

// DefaultTracingConfig uses the globally installed propagator
func DefaultTracingConfig(serviceName string) *TracingConfig {
	return &TracingConfig{
		ServiceName: serviceName,
		Propagator:  otel.GetTextMapPropagator(),
	}
}

// TracingMiddleware starts a server span per request, continuing the caller's
// trace. Spans on item routes carry the stock key. Only server errors mark the
// span failed; rejections such as insufficient stock are expected answers.
func TracingMiddleware(config *TracingConfig) gin.HandlerFunc {
	tracer := otel.Tracer(config.ServiceName + "/http")

	return func(c *gin.Context) {
		if isProbePath(c.Request.URL.Path) {
			c.Next()
			return
		}

		ctx := config.Propagator.Extract(c.Request.Context(), propagation.HeaderCarrier(c.Request.Header))
		route := routeOf(c)

		attrs := []attribute.KeyValue{
			semconv.HTTPMethodKey.String(c.Request.Method),
			semconv.HTTPRouteKey.String(route),
			attribute.String("request.id", GetRequestID(c)),
		}
		if org, site, item := c.Param("orgId"), c.Param("siteId"), c.Param("itemId"); item != "" {
			attrs = append(attrs, tracing.StockKeySpanAttributes(org, site, item)...)
		}
		if key := GetIdempotencyKey(c); key != "" {
			attrs = append(attrs, attribute.String("stock.idempotency_key", key))
		}

		ctx, span := tracer.Start(ctx, c.Request.Method+" "+route,
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(attrs...),
		)
		defer span.End()

		c.Request = c.Request.WithContext(ctx)
		c.Next()

		status := c.Writer.Status()
		span.SetAttributes(semconv.HTTPStatusCodeKey.Int(status))
		if status >= http.StatusInternalServerError {
			span.SetStatus(codes.Error, http.StatusText(status))
		}
	}
}
