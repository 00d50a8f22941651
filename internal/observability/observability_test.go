package observability

import (
	"context"
	"testing"
)

func TestInitDisabled(t *testing.T) {
	if err := Init(Config{ServiceName: "test", Enabled: false}); err != nil {
		t.Fatalf("Init failed: %v", err)
	}

	ctx, span := StartSpan(context.Background(), "test.span", map[string]any{
		"thread_id": "t",
		"turns":     3,
	})
	if ctx == nil || span == nil {
		t.Fatal("StartSpan returned nil")
	}
	if span.Name() != "test.span" {
		t.Errorf("span name: %q", span.Name())
	}
	span.End()
	span.End()
}

func TestInitUnknownExporter(t *testing.T) {
	err := Init(Config{ServiceName: "test", Enabled: true, ExporterType: "carrier-pigeon"})
	if err == nil {
		t.Fatal("expected an error for an unknown exporter")
	}
}

func TestParseHeaders(t *testing.T) {
	h := parseHeaders("Authorization=Bearer abc, X-Tenant=acme")
	if h["Authorization"] != "Bearer abc" {
		t.Errorf("Authorization: %q", h["Authorization"])
	}
	if h["X-Tenant"] != "acme" {
		t.Errorf("X-Tenant: %q", h["X-Tenant"])
	}
	if parseHeaders("") != nil {
		t.Error("empty input should yield nil")
	}
}
