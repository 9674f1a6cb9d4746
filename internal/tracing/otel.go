package tracing

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

// ServiceName is the resource name every fablebot span is exported under
const ServiceName = "fablebot"

// ProviderConfig tunes the process tracer provider
type ProviderConfig struct {
	ServiceVersion string
	// SampleRatio is the share of new turn traces recorded, clamped to [0, 1].
	// Child spans follow their parent's decision.
	SampleRatio float64
}

var (
	providerMu sync.Mutex
	provider   *sdktrace.TracerProvider
)

// Sampler returns the parent-based ratio sampler for cfg
func (cfg ProviderConfig) Sampler() sdktrace.Sampler {
	ratio := cfg.SampleRatio
	switch {
	case ratio <= 0:
		return sdktrace.ParentBased(sdktrace.NeverSample())
	case ratio >= 1:
		return sdktrace.ParentBased(sdktrace.AlwaysSample())
	}
	return sdktrace.ParentBased(sdktrace.TraceIDRatioBased(ratio))
}

// Init installs a tracer provider for the bot, replacing and flushing any earlier one
func Init(cfg ProviderConfig) error {
	attrs := []attribute.KeyValue{semconv.ServiceName(ServiceName)}
	if cfg.ServiceVersion != "" {
		attrs = append(attrs, semconv.ServiceVersion(cfg.ServiceVersion))
	}
	res, err := resource.New(context.Background(), resource.WithAttributes(attrs...))
	if err != nil {
		return err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(cfg.Sampler()),
		sdktrace.WithResource(res),
	)

	providerMu.Lock()
	previous := provider
	provider = tp
	providerMu.Unlock()

	otel.SetTracerProvider(tp)
	if previous != nil {
		return previous.Shutdown(context.Background())
	}
	return nil
}

// Shutdown flushes and removes the tracer provider installed by Init
func Shutdown(ctx context.Context) error {
	providerMu.Lock()
	tp := provider
	provider = nil
	providerMu.Unlock()
	if tp == nil {
		return nil
	}
	return tp.Shutdown(ctx)
}

// StartSpan starts a span tagged with the turn fields found in ctx.
// A valid span's trace id becomes the context trace id when none is set.
func StartSpan(ctx context.Context, tracerName, spanName string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	if ctx == nil {
		ctx = context.Background()
	}

	if key := GetSessionKey(ctx); key != "" {
		attrs = append(attrs, attribute.String("fablebot.session_key", key))
	}
	if event := GetEvent(ctx); event != "" {
		attrs = append(attrs, attribute.String("fablebot.event", event))
	}

	ctx, span := otel.Tracer(tracerName).Start(ctx, spanName, trace.WithAttributes(attrs...))

	if GetTraceID(ctx) == "" {
		if sc := span.SpanContext(); sc.IsValid() {
			ctx = WithTraceID(ctx, sc.TraceID().String())
		}
	}

	return ctx, span
}
