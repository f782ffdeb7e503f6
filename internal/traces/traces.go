// Package traces wires OpenTelemetry tracing into the decision path.
package traces

import (
	"context"
	"log/slog"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/jaineelmodi11/KingsHacks"

// Options configures the exporter and the service resource.
type Options struct {
	Endpoint       string // OTLP gRPC host:port; empty disables export
	ServiceVersion string
	Environment    string
}

// Init installs a batching OTLP tracer provider and the W3C propagators.
// With no endpoint it installs nothing and the returned shutdown is a no-op.
func Init(ctx context.Context, opts Options, logger *slog.Logger) (func(context.Context) error, error) {
	noop := func(context.Context) error { return nil }
	if opts.Endpoint == "" {
		logger.Info("tracing disabled", "reason", "OTEL_EXPORTER_OTLP_ENDPOINT not set")
		return noop, nil
	}

	exporter, err := otlptracegrpc.New(ctx,
		otlptracegrpc.WithEndpoint(opts.Endpoint),
		otlptracegrpc.WithInsecure(),
	)
	if err != nil {
		return noop, err
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName("travelproof"),
			semconv.ServiceVersion(opts.ServiceVersion),
			semconv.DeploymentEnvironment(opts.Environment),
		),
	)
	if err != nil {
		return noop, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.AlwaysSample())),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{}, propagation.Baggage{},
	))

	logger.Info("tracing enabled", "endpoint", opts.Endpoint)
	return tp.Shutdown, nil
}

// StartSpan starts an internal span on the global provider.
func StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, name, trace.WithAttributes(attrs...))
}

// Fail records err on span and marks it failed with msg.
func Fail(span trace.Span, err error, msg string) {
	span.RecordError(err)
	span.SetStatus(codes.Error, msg)
}

// Middleware starts a server span per request, continuing any trace
// carried in the incoming headers. The span is named after the matched
// route so path parameters do not explode cardinality.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := otel.GetTextMapPropagator().Extract(c.Request.Context(), propagation.HeaderCarrier(c.Request.Header))
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		ctx, span := otel.Tracer(tracerName).Start(ctx, c.Request.Method+" "+route,
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(
				semconv.HTTPRequestMethodKey.String(c.Request.Method),
				semconv.HTTPRoute(route),
			),
		)
		defer span.End()

		c.Request = c.Request.WithContext(ctx)
		c.Next()

		status := c.Writer.Status()
		span.SetAttributes(semconv.HTTPResponseStatusCode(status))
		if status >= 500 {
			span.SetStatus(codes.Error, "server error")
		}
	}
}

func SessionID(id string) attribute.KeyValue   { return attribute.String("session.id", id) }
func CardID(id string) attribute.KeyValue      { return attribute.String("card.id", id) }
func ChallengeID(id string) attribute.KeyValue { return attribute.String("challenge.id", id) }

// Purchase describes the attempted purchase. Amounts are recorded in the
// purchase currency.
func Purchase(merchant string, amount float64, currency, country, channel string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String("purchase.merchant", merchant),
		attribute.Float64("purchase.amount", amount),
		attribute.String("purchase.currency", currency),
		attribute.String("purchase.country", country),
		attribute.String("purchase.channel", channel),
	}
}

// Decision describes the scorer's verdict.
func Decision(decision string, score int, level, method, tier string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String("risk.decision", decision),
		attribute.Int("risk.score", score),
		attribute.String("risk.level", level),
		attribute.String("risk.challenge_method", method),
		attribute.String("merchant.tier", tier),
	}
}
