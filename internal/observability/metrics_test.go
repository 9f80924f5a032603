package observability

import (
	"context"
	"testing"
)

func TestNewMetrics(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	metrics, handler, err := NewMetrics(ctx)
	if err != nil {
		t.Fatalf("Failed to create metrics: %v", err)
	}

	if metrics == nil {
		t.Fatal("Expected metrics to be non-nil")
	}

	if handler == nil {
		t.Fatal("Expected handler to be non-nil")
	}
}

func TestRecordHTTPRequest(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	metrics, _, err := NewMetrics(ctx)
	if err != nil {
		t.Fatalf("Failed to create metrics: %v", err)
	}

	// Should not panic
	metrics.RecordHTTPRequest(ctx, "GET", "/livez", 200, 0.001)
	metrics.RecordHTTPRequest(ctx, "POST", "/v1/pipelines", 201, 0.050)
	metrics.RecordHTTPRequest(ctx, "GET", "/v1/pipelines/release", 200, 0.010)
	metrics.RecordHTTPRequest(ctx, "GET", "/v1/pipelines/missing", 404, 0.005)
	metrics.RecordHTTPRequest(ctx, "POST", "/v1/pipelines/release/runs", 500, 0.001)
}

func TestRecordRunAndStepMetrics(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	metrics, _, err := NewMetrics(ctx)
	if err != nil {
		t.Fatalf("Failed to create metrics: %v", err)
	}

	// Should not panic
	metrics.RecordRunStarted(ctx, "release")
	metrics.RecordStepStarted(ctx, "build")
	metrics.RecordStepCompleted(ctx, "build", "success", 5.5)
	metrics.RecordStepStarted(ctx, "deploy")
	metrics.RecordStepRetry(ctx, "deploy")
	metrics.RecordStepCompleted(ctx, "deploy", "failed", 120.0)
	metrics.RecordRunCompleted(ctx, "release", "failed", 130.0)
}

func TestNormalizePath(t *testing.T) {
	t.Parallel()
	tests := []struct {
		input    string
		expected string
	}{
		{"/livez", "/livez"},
		{"/metrics", "/metrics"},
		{"/v1/pipelines", "/v1/pipelines"},
		{"/v1/pipelines/release", "/v1/pipelines/{name}"},
		{"/v1/pipelines/release/runs", "/v1/pipelines/{name}/runs"},
		{"/v1/pipelines/release/runs/abc-123", "/v1/pipelines/{name}/runs/{runId}"},
		{"/other/path", "/other/path"},
	}

	for _, tt := range tests {
		result := normalizePath(tt.input)
		if result != tt.expected {
			t.Errorf("normalizePath(%q) = %q, want %q", tt.input, result, tt.expected)
		}
	}
}
