package health

import (
	"context"
	"errors"
	"testing"
)

type fakeRunner struct {
	err error
}

func (f *fakeRunner) Ready(ctx context.Context) error { return f.err }

func TestChecker_Liveness(t *testing.T) {
	t.Parallel()
	checker := NewChecker(nil, "")

	response := checker.Liveness(context.Background())

	if response.Status != StatusHealthy {
		t.Errorf("Expected healthy status, got %s", response.Status)
	}
}

func TestChecker_Readiness_NoRunner(t *testing.T) {
	t.Parallel()
	checker := NewChecker(nil, "")

	response := checker.Readiness(context.Background())

	if response.Status != StatusUnhealthy {
		t.Errorf("Expected unhealthy status, got %s", response.Status)
	}

	runnerCheck, ok := response.Checks["runner"]
	if !ok {
		t.Fatal("Expected runner check to be present")
	}
	if runnerCheck.Status != StatusUnhealthy {
		t.Errorf("Expected runner check to be unhealthy, got %s", runnerCheck.Status)
	}
}

func TestChecker_Readiness_Healthy(t *testing.T) {
	t.Parallel()
	checker := NewChecker(&fakeRunner{}, t.TempDir())

	response := checker.Readiness(context.Background())

	if !response.IsHealthy() {
		t.Errorf("Expected healthy response, got %+v", response)
	}
	if response.Checks["storage"].Status != StatusHealthy {
		t.Errorf("Expected storage healthy, got %s", response.Checks["storage"].Status)
	}
}

func TestChecker_Readiness_RunnerDown(t *testing.T) {
	t.Parallel()
	checker := NewChecker(&fakeRunner{err: errors.New("daemon unreachable")}, t.TempDir())

	response := checker.Readiness(context.Background())

	if response.IsHealthy() {
		t.Error("Expected unhealthy response")
	}
	if response.Checks["runner"].Message != "daemon unreachable" {
		t.Errorf("Expected runner error message, got %q", response.Checks["runner"].Message)
	}
}

func TestChecker_Readiness_StorageUnwritable(t *testing.T) {
	t.Parallel()
	checker := NewChecker(&fakeRunner{}, "/proc/no-such-dir")

	response := checker.Readiness(context.Background())

	if response.IsHealthy() {
		t.Error("Expected unhealthy response for unwritable artifact root")
	}
}

func TestChecker_SetShuttingDown(t *testing.T) {
	t.Parallel()
	checker := NewChecker(&fakeRunner{}, "")

	if !checker.Readiness(context.Background()).IsHealthy() {
		t.Fatal("Expected healthy before shutdown")
	}

	checker.SetShuttingDown()

	response := checker.Readiness(context.Background())
	if response.IsHealthy() {
		t.Error("Expected unhealthy after SetShuttingDown")
	}
	if _, ok := response.Checks["shutdown"]; !ok {
		t.Error("Expected shutdown check to be present")
	}
}

func TestResponse_IsHealthy(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name     string
		status   Status
		expected bool
	}{
		{"healthy", StatusHealthy, true},
		{"unhealthy", StatusUnhealthy, false},
		{"degraded", StatusDegraded, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			response := &Response{Status: tt.status}
			if response.IsHealthy() != tt.expected {
				t.Errorf("IsHealthy() = %v, want %v", response.IsHealthy(), tt.expected)
			}
		})
	}
}
