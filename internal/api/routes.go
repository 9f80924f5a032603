package api

import (
	"net/http"

	"pipeline/internal/health"
	"pipeline/internal/observability"
	"pipeline/internal/service"
)

// RouterConfig holds dependencies for the router.
type RouterConfig struct {
	Service       *service.Service
	Metrics       *observability.Metrics
	HealthChecker *health.Checker
	APIKey        string
}

// NewRouter creates a new HTTP router with all routes configured.
func NewRouter(cfg RouterConfig) http.Handler {
	handler := NewHandler(cfg.Service, cfg.HealthChecker)

	mux := http.NewServeMux()

	// Health check endpoints (liveness/readiness probes) - no auth required
	mux.HandleFunc("GET /livez", handler.Livez)
	mux.HandleFunc("GET /readyz", handler.Readyz)

	// Pipeline and run endpoints - auth required
	authMiddleware := AuthMiddleware(cfg.APIKey)
	mux.Handle("POST /v1/pipelines", authMiddleware(http.HandlerFunc(handler.SubmitPipeline)))
	mux.Handle("POST /v1/pipelines/validate", authMiddleware(http.HandlerFunc(handler.ValidatePipeline)))
	mux.Handle("GET /v1/runs", authMiddleware(http.HandlerFunc(handler.ListRuns)))
	mux.Handle("GET /v1/runs/{runId}", authMiddleware(http.HandlerFunc(handler.GetRun)))
	mux.Handle("GET /v1/runs/{runId}/results", authMiddleware(http.HandlerFunc(handler.GetRunResults)))
	mux.Handle("GET /v1/runs/{runId}/metrics", authMiddleware(http.HandlerFunc(handler.GetRunMetrics)))
	mux.Handle("GET /v1/runs/{runId}/steps/{step}/error", authMiddleware(http.HandlerFunc(handler.GetStepError)))
	mux.Handle("DELETE /v1/runs/{runId}", authMiddleware(http.HandlerFunc(handler.StopRun)))

	// Apply middleware chain (order matters: outermost first)
	var h http.Handler = mux
	h = ContentTypeMiddleware()(h)
	h = CORSMiddleware()(h)
	if cfg.Metrics != nil {
		h = MetricsMiddleware(cfg.Metrics)(h)
	}
	h = LoggingMiddleware()(h)
	h = RecoveryMiddleware()(h)

	return h
}
