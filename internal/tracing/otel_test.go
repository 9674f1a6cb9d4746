package tracing

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestStartSpanSetsTraceID(t *testing.T) {
	if err := Init(ProviderConfig{SampleRatio: 1}); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	defer Shutdown(context.Background())

	ctx, span := StartSpan(context.Background(), "fablebot/test", "turn")
	defer span.End()

	if GetTraceID(ctx) == "" {
		t.Error("Expected trace ID from span context")
	}
	if !span.SpanContext().IsSampled() {
		t.Error("Expected span to be sampled at ratio 1")
	}
}

func TestInitZeroRatioDropsSpans(t *testing.T) {
	if err := Init(ProviderConfig{SampleRatio: 0}); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	defer Shutdown(context.Background())

	_, span := StartSpan(context.Background(), "fablebot/test", "turn")
	defer span.End()

	if span.SpanContext().IsSampled() {
		t.Error("Expected span to be dropped at ratio 0")
	}
}

func TestInitReplacesProvider(t *testing.T) {
	if err := Init(ProviderConfig{SampleRatio: 0}); err != nil {
		t.Fatalf("first Init failed: %v", err)
	}
	if err := Init(ProviderConfig{SampleRatio: 1, ServiceVersion: "1.2.3"}); err != nil {
		t.Fatalf("second Init failed: %v", err)
	}
	defer Shutdown(context.Background())

	_, span := StartSpan(context.Background(), "fablebot/test", "turn")
	defer span.End()

	if !span.SpanContext().IsSampled() {
		t.Error("Expected the second provider's sampler to apply")
	}
}

func TestShutdownWithoutInit(t *testing.T) {
	if err := Shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown without Init returned %v", err)
	}
}

func TestSamplerClampsRatio(t *testing.T) {
	tests := []struct {
		ratio   float64
		sampled bool
	}{
		{-1, false},
		{0, false},
		{1, true},
		{7, true},
	}

	for _, tt := range tests {
		sampler := ProviderConfig{SampleRatio: tt.ratio}.Sampler()
		result := sampler.ShouldSample(sdktrace.SamplingParameters{
			ParentContext: context.Background(),
			TraceID:       [16]byte{1},
			Name:          "turn",
		})
		got := result.Decision == sdktrace.RecordAndSample
		if got != tt.sampled {
			t.Errorf("ratio %v: sampled = %v, want %v", tt.ratio, got, tt.sampled)
		}
	}
}

func TestStartSpanTagsTurnFields(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	defer tp.Shutdown(context.Background())
	otel.SetTracerProvider(tp)

	ctx := NewTurnContext(context.Background(), "42", 7, "text")
	_, span := StartSpan(ctx, "fablebot/test", "turn")
	span.End()

	ended := recorder.Ended()
	if len(ended) != 1 {
		t.Fatalf("Expected 1 ended span, got %d", len(ended))
	}
	found := map[string]string{}
	for _, kv := range ended[0].Attributes() {
		found[string(kv.Key)] = kv.Value.Emit()
	}
	if found["fablebot.session_key"] != "42" {
		t.Errorf("session key attribute = %q, want 42", found["fablebot.session_key"])
	}
	if found["fablebot.event"] != "text" {
		t.Errorf("event attribute = %q, want text", found["fablebot.event"])
	}
}
