package otel

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/log/global"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

func TestNewProviders_EmptyEndpoint(t *testing.T) {
	ctx := context.Background()
	for _, endpoint := range []string{"", "   "} {
		providers, err := NewProviders(ctx, Options{Endpoint: endpoint, ServiceName: "invitations"})
		if err != nil {
			t.Fatalf("NewProviders(%q): %v", endpoint, err)
		}
		if providers.TracerProvider == nil || providers.MeterProvider == nil || providers.LoggerProvider == nil {
			t.Fatal("providers should not be nil")
		}
		if providers.Exporting {
			t.Error("Exporting should be false without an endpoint")
		}
		if err := providers.Shutdown(ctx); err != nil {
			t.Errorf("shutdown should be no-op for empty endpoint, got error: %v", err)
		}
	}
}

func TestNewProviders_InvalidEndpoint(t *testing.T) {
	for _, endpoint := range []string{"://invalid", "http://[invalid", "http://"} {
		if _, err := NewProviders(context.Background(), Options{Endpoint: endpoint}); err == nil {
			t.Errorf("NewProviders(%q) should return error", endpoint)
		}
	}
}

func TestCollectorTarget(t *testing.T) {
	tests := []struct {
		endpoint      string
		forceInsecure bool
		wantTarget    string
		wantInsecure  bool
	}{
		{"localhost:4317", false, "localhost:4317", true},
		{"http://collector:4317/v1/traces", false, "collector:4317", true},
		{"https://collector:4317", false, "collector:4317", false},
		{"https://collector:4317", true, "collector:4317", true},
	}
	for _, tt := range tests {
		target, insecure, err := collectorTarget(tt.endpoint, tt.forceInsecure)
		if err != nil {
			t.Fatalf("collectorTarget(%q): %v", tt.endpoint, err)
		}
		if target != tt.wantTarget || insecure != tt.wantInsecure {
			t.Errorf("collectorTarget(%q, %v) = %q, %v; want %q, %v",
				tt.endpoint, tt.forceInsecure, target, insecure, tt.wantTarget, tt.wantInsecure)
		}
	}
}

func TestNewProviders_WithEndpoint(t *testing.T) {
	ctx := context.Background()
	// OTLP gRPC exporters connect lazily, so construction succeeds without a collector.
	providers, err := NewProviders(ctx, Options{Endpoint: "localhost:4317", ServiceName: "invitations", Environment: "test"})
	if err != nil {
		t.Fatalf("NewProviders: %v", err)
	}
	if !providers.Exporting {
		t.Error("Exporting should be true with an endpoint")
	}
	shutdownCtx, cancel := context.WithCancel(ctx)
	cancel()
	_ = providers.Shutdown(shutdownCtx)
}

func TestSetGlobal(t *testing.T) {
	providers, err := NewProviders(context.Background(), Options{ServiceName: "invitations"})
	if err != nil {
		t.Fatalf("NewProviders: %v", err)
	}
	providers.SetGlobal()
	if otel.GetTracerProvider() != providers.TracerProvider {
		t.Error("TracerProvider should be updated")
	}
	if otel.GetMeterProvider() != providers.MeterProvider {
		t.Error("MeterProvider should be updated")
	}
	if global.GetLoggerProvider() != providers.LoggerProvider {
		t.Error("LoggerProvider should be updated")
	}
}

func TestParseLevel(t *testing.T) {
	if ParseLevel("DEBUG").String() != "DEBUG" || ParseLevel("warning").String() != "WARN" ||
		ParseLevel("error").String() != "ERROR" || ParseLevel("bogus").String() != "INFO" {
		t.Error("unexpected level mapping")
	}
}

func TestNewLogger_AddsTraceIDs(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(LogOptions{JSON: true, Output: &buf}, nil, false)

	tp := sdktrace.NewTracerProvider()
	ctx, span := tp.Tracer("test").Start(context.Background(), "op")
	logger.InfoContext(ctx, "hello", "operation", "create")
	span.End()

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("log line is not JSON: %v (%s)", err, buf.String())
	}
	if rec["trace_id"] != span.SpanContext().TraceID().String() {
		t.Errorf("trace_id = %v", rec["trace_id"])
	}
	if rec["operation"] != "create" {
		t.Errorf("operation = %v", rec["operation"])
	}
}

func TestNewLogger_TextWithoutSpan(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(LogOptions{Level: "warn", Output: &buf}, nil, false)
	logger.Info("dropped")
	logger.With("component", "mail").Warn("kept")
	out := buf.String()
	if strings.Contains(out, "dropped") || !strings.Contains(out, "kept") || !strings.Contains(out, "component=mail") {
		t.Errorf("unexpected output %q", out)
	}
	if strings.Contains(out, "trace_id") {
		t.Error("trace_id added without a span")
	}
}
