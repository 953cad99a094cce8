package observability

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/shaurya4531/insta-chat-appv2/internal/config"
)

func preserveOTelGlobals(t *testing.T) {
	t.Helper()
	prevTP := otel.GetTracerProvider()
	prevProp := otel.GetTextMapPropagator()
	t.Cleanup(func() {
		otel.SetTracerProvider(prevTP)
		otel.SetTextMapPropagator(prevProp)
	})
}

func enabled(name string) config.OTELConfig {
	return config.OTELConfig{
		Enabled:     true,
		Insecure:    true,
		Endpoint:    "localhost:4317",
		ServiceName: name,
		SampleRatio: 1.0,
	}
}

func TestSetupTracing_Disabled_NoOp(t *testing.T) {
	preserveOTelGlobals(t)
	prev := otel.GetTracerProvider()

	shutdown, err := SetupTracing(context.Background(), config.OTELConfig{Enabled: false, Endpoint: "ignored:4317"}, "v0.0.0")
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("no-op shutdown returned error: %v", err)
	}
	if otel.GetTracerProvider() != prev {
		t.Fatalf("disabled tracing must not replace the provider")
	}
}

func TestSetupTracing_Insecure_SetsProviderAndPropagator(t *testing.T) {
	preserveOTelGlobals(t)

	shutdown, err := SetupTracing(context.Background(), enabled("chat-insecure"), "v1.2.3")
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	defer func() { _ = shutdown(context.Background()) }()

	if _, ok := otel.GetTracerProvider().(*sdktrace.TracerProvider); !ok {
		t.Fatalf("expected *sdktrace.TracerProvider")
	}

	// A sampled span propagates through the installed propagator.
	carrier := propagation.MapCarrier{}
	ctx, span := otel.Tracer("test").Start(context.Background(), "span")
	otel.GetTextMapPropagator().Inject(ctx, carrier)
	span.End()
	if !strings.HasPrefix(carrier.Get("traceparent"), "00-") {
		t.Fatalf("traceparent not injected: %v", carrier)
	}
}

func TestSetupTracing_SecureTLS_SetsProvider(t *testing.T) {
	preserveOTelGlobals(t)

	cfg := enabled("chat-tls")
	cfg.Insecure = false
	shutdown, err := SetupTracing(context.Background(), cfg, "v9.9.9")
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	defer func() { _ = shutdown(context.Background()) }()

	if _, ok := otel.GetTracerProvider().(*sdktrace.TracerProvider); !ok {
		t.Fatalf("expected *sdktrace.TracerProvider")
	}
}

func TestSetupTracing_MissingEndpoint(t *testing.T) {
	preserveOTelGlobals(t)
	cfg := enabled("chat")
	cfg.Endpoint = ""
	if _, err := SetupTracing(context.Background(), cfg, "v0"); err == nil {
		t.Fatalf("expected error for empty endpoint")
	}
}

func TestSetupTracing_ExporterError_GlobalsIntact(t *testing.T) {
	preserveOTelGlobals(t)

	orig := newExporter
	t.Cleanup(func() { newExporter = orig })
	newExporter = func(context.Context, otlptrace.Client) (*otlptrace.Exporter, error) {
		return nil, errors.New("boom-exporter")
	}

	prevTP := otel.GetTracerProvider()
	if _, err := SetupTracing(context.Background(), enabled("chat"), "v0"); err == nil {
		t.Fatalf("expected error, got nil")
	}
	if otel.GetTracerProvider() != prevTP {
		t.Fatalf("tracer provider changed on failure")
	}
}

func TestSetupTracing_ResourceError_GlobalsIntact(t *testing.T) {
	preserveOTelGlobals(t)

	orig := newResource
	t.Cleanup(func() { newResource = orig })
	newResource = func(context.Context, string, string) (*resource.Resource, error) {
		return nil, errors.New("boom-resource")
	}

	prevTP := otel.GetTracerProvider()
	prevProp := otel.GetTextMapPropagator()
	if _, err := SetupTracing(context.Background(), enabled("chat"), "v0"); err == nil {
		t.Fatalf("expected error, got nil")
	}
	if otel.GetTracerProvider() != prevTP || otel.GetTextMapPropagator() != prevProp {
		t.Fatalf("globals changed on failure")
	}
}

func TestSetupTracing_ShutdownWithDeadline(t *testing.T) {
	preserveOTelGlobals(t)

	shutdown, err := SetupTracing(context.Background(), enabled("chat-shutdown"), "v1")
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 250*time.Millisecond)
	defer cancel()
	if err := shutdown(ctx); err != nil {
		t.Fatalf("shutdown returned error: %v", err)
	}
}

func TestSampler_Bounds(t *testing.T) {
	cases := map[float64]string{
		1:    "AlwaysOnSampler",
		2:    "AlwaysOnSampler",
		0:    "AlwaysOffSampler",
		-1:   "AlwaysOffSampler",
		0.25: "TraceIDRatioBased{0.25}",
	}
	for ratio, want := range cases {
		if got := sampler(ratio).Description(); !strings.Contains(got, "root:"+want) {
			t.Fatalf("sampler(%v) = %q; want root %q", ratio, got, want)
		}
	}
}
