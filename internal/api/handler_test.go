package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"pipeline/internal/executor"
	"pipeline/internal/health"
	"pipeline/internal/pipeline"
	"pipeline/internal/service"
)

const testDocument = `
name: demo
version: "1.0"
steps:
  - name: hello
    command: "true"
`

func newTestRouter(t *testing.T, apiKey string) (http.Handler, *service.Service) {
	t.Helper()
	exec := executor.New(executor.NewLocalRunner(), executor.Config{
		RetryBase: 5 * time.Millisecond,
	})
	svc := service.New(exec, service.Options{})
	router := NewRouter(RouterConfig{
		Service:       svc,
		HealthChecker: health.NewChecker(readyRunner{}, t.TempDir()),
		APIKey:        apiKey,
	})
	return router, svc
}

type readyRunner struct{}

func (readyRunner) Ready(ctx context.Context) error { return nil }

func TestHandler_Livez(t *testing.T) {
	t.Parallel()
	router, _ := newTestRouter(t, "")

	req := httptest.NewRequest(http.MethodGet, "/livez", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Expected status %d, got %d", http.StatusOK, w.Code)
	}

	var response health.Response
	json.NewDecoder(w.Body).Decode(&response)
	if response.Status != health.StatusHealthy {
		t.Errorf("Expected status healthy, got %s", response.Status)
	}
}

func TestHandler_Readyz_RunnerMissing(t *testing.T) {
	t.Parallel()
	handler := &Handler{health: health.NewChecker(nil, "")}

	req := httptest.NewRequest(http.MethodGet, "/readyz", nil)
	w := httptest.NewRecorder()
	handler.Readyz(w, req)

	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("Expected status %d, got %d", http.StatusServiceUnavailable, w.Code)
	}
}

func TestHandler_SubmitPipeline(t *testing.T) {
	t.Parallel()
	router, svc := newTestRouter(t, "")

	req := httptest.NewRequest(http.MethodPost, "/v1/pipelines", strings.NewReader(testDocument))
	req.Header.Set("Content-Type", "application/yaml")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusAccepted {
		t.Fatalf("Expected status %d, got %d: %s", http.StatusAccepted, w.Code, w.Body.String())
	}

	var resp service.SubmitResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.RunID == "" || resp.Pipeline != "demo" {
		t.Errorf("unexpected response %+v", resp)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := svc.Wait(ctx, resp.RunID); err != nil {
		t.Fatalf("Wait failed: %v", err)
	}

	// Run status is queryable afterwards.
	req = httptest.NewRequest(http.MethodGet, "/v1/runs/"+resp.RunID, nil)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status %d, got %d", http.StatusOK, w.Code)
	}
	var summary struct {
		Status pipeline.Status `json:"status"`
	}
	json.NewDecoder(w.Body).Decode(&summary)
	if summary.Status != pipeline.StatusSuccess {
		t.Errorf("Expected success, got %s", summary.Status)
	}
}

func TestHandler_SubmitPipeline_Invalid(t *testing.T) {
	t.Parallel()
	router, _ := newTestRouter(t, "")

	doc := `
name: broken
version: "1.0"
steps:
  - name: a
    command: "true"
    depends_on: [ghost]
`
	req := httptest.NewRequest(http.MethodPost, "/v1/pipelines", strings.NewReader(doc))
	req.Header.Set("Content-Type", "application/yaml")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status %d, got %d", http.StatusBadRequest, w.Code)
	}
}

func TestHandler_ValidatePipeline(t *testing.T) {
	t.Parallel()
	router, _ := newTestRouter(t, "")

	req := httptest.NewRequest(http.MethodPost, "/v1/pipelines/validate", strings.NewReader(testDocument))
	req.Header.Set("Content-Type", "application/yaml")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status %d, got %d", http.StatusOK, w.Code)
	}

	var resp struct {
		Valid bool `json:"valid"`
	}
	json.NewDecoder(w.Body).Decode(&resp)
	if !resp.Valid {
		t.Error("Expected document to be valid")
	}
}

func TestHandler_GetRun_NotFound(t *testing.T) {
	t.Parallel()
	router, _ := newTestRouter(t, "")

	req := httptest.NewRequest(http.MethodGet, "/v1/runs/missing", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("Expected status %d, got %d", http.StatusNotFound, w.Code)
	}
}

func TestHandler_StopRun(t *testing.T) {
	t.Parallel()
	router, svc := newTestRouter(t, "")

	resp, err := svc.Submit(strings.NewReader(testDocument))
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	req := httptest.NewRequest(http.MethodDelete, "/v1/runs/"+resp.RunID, nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusNoContent {
		t.Errorf("Expected status %d, got %d", http.StatusNoContent, w.Code)
	}
}

func TestMiddleware_Auth(t *testing.T) {
	t.Parallel()
	router, _ := newTestRouter(t, "secret-key")

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"missing header", "", http.StatusUnauthorized},
		{"malformed header", "secret-key", http.StatusUnauthorized},
		{"wrong key", "Bearer wrong", http.StatusUnauthorized},
		{"correct key", "Bearer secret-key", http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/v1/runs", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			if w.Code != tt.want {
				t.Errorf("Expected status %d, got %d", tt.want, w.Code)
			}
		})
	}
}

func TestMiddleware_AuthSkipsHealth(t *testing.T) {
	t.Parallel()
	router, _ := newTestRouter(t, "secret-key")

	req := httptest.NewRequest(http.MethodGet, "/livez", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Expected health endpoints to skip auth, got %d", w.Code)
	}
}

func TestMiddleware_ContentType(t *testing.T) {
	t.Parallel()
	router, _ := newTestRouter(t, "")

	req := httptest.NewRequest(http.MethodPost, "/v1/pipelines", strings.NewReader(testDocument))
	req.Header.Set("Content-Type", "text/plain")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusUnsupportedMediaType {
		t.Errorf("Expected status %d, got %d", http.StatusUnsupportedMediaType, w.Code)
	}
}

func TestMiddleware_Recovery(t *testing.T) {
	t.Parallel()
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("test panic")
	})
	handler := RecoveryMiddleware()(inner)

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	w := httptest.NewRecorder()

	// Should not panic
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusInternalServerError {
		t.Errorf("Expected status %d, got %d", http.StatusInternalServerError, w.Code)
	}
}

func TestMiddleware_CORS_Options(t *testing.T) {
	t.Parallel()
	router, _ := newTestRouter(t, "")

	req := httptest.NewRequest(http.MethodOptions, "/v1/runs", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Expected status %d, got %d", http.StatusOK, w.Code)
	}
	if w.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Error("Expected CORS headers to be set")
	}
}
