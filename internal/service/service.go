// Package service manages pipeline runs for the HTTP API: it accepts
// pipeline documents, launches engines asynchronously, and tracks live runs.
package service

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"

	"pipeline/internal/apperrors"
	"pipeline/internal/artifact"
	"pipeline/internal/engine"
	"pipeline/internal/executor"
	"pipeline/internal/history"
	"pipeline/internal/notifier"
	"pipeline/internal/observability"
	"pipeline/internal/pipeline"
)

// Options carries the service's collaborators. Store, History, Notifier,
// and Metrics may be nil.
type Options struct {
	Store    *artifact.Store
	History  *history.Store
	Notifier notifier.Notifier
	Metrics  *observability.Metrics
	Logger   *slog.Logger
}

// Run pairs a run identifier with its engine.
type Run struct {
	ID       string
	Pipeline string
	engine   *engine.Engine
	done     chan struct{}
}

// Service accepts pipeline documents and runs them asynchronously.
type Service struct {
	executor *executor.Executor
	opts     Options
	logger   *slog.Logger

	mu   sync.RWMutex
	runs map[string]*Run
}

// New creates a run service backed by the given executor.
func New(exec *executor.Executor, opts Options) *Service {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		executor: exec,
		opts:     opts,
		logger:   logger.With("component", "service"),
		runs:     make(map[string]*Run),
	}
}

// SubmitResponse is returned when a run is accepted.
type SubmitResponse struct {
	RunID    string `json:"runId"`
	Pipeline string `json:"pipeline"`
}

// Validate parses a pipeline document and returns its validation problems
// without executing anything.
func (s *Service) Validate(doc io.Reader) ([]string, error) {
	cfg, err := pipeline.Parse(doc)
	if err != nil {
		return nil, apperrors.Validation("document", err.Error())
	}
	eng := engine.New(cfg, s.executor, engine.Options{Logger: s.logger})
	return eng.Validate(), nil
}

// Submit parses a pipeline document, validates it, and starts executing it
// asynchronously. The returned run ID can be polled for status.
func (s *Service) Submit(doc io.Reader) (*SubmitResponse, error) {
	cfg, err := pipeline.Parse(doc)
	if err != nil {
		return nil, apperrors.Validation("document", err.Error())
	}

	eng := engine.New(cfg, s.executor, engine.Options{
		Store:    s.opts.Store,
		History:  s.opts.History,
		Notifier: s.opts.Notifier,
		Metrics:  s.opts.Metrics,
		Logger:   s.logger,
	})
	if errs := eng.Validate(); len(errs) > 0 {
		return nil, apperrors.Validation("pipeline", strings.Join(errs, "; "))
	}

	runID := uuid.NewString()
	eng.SetRunID(runID)

	run := &Run{
		ID:       runID,
		Pipeline: cfg.Name,
		engine:   eng,
		done:     make(chan struct{}),
	}
	s.mu.Lock()
	s.runs[runID] = run
	s.mu.Unlock()

	go func() {
		defer close(run.done)
		eng.Execute(context.Background())
	}()

	s.logger.Info("Run accepted", "run", runID, "pipeline", cfg.Name)
	return &SubmitResponse{RunID: runID, Pipeline: cfg.Name}, nil
}

func (s *Service) run(id string) (*Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	run, ok := s.runs[id]
	if !ok {
		return nil, apperrors.NotFound("run", id)
	}
	return run, nil
}

// Status returns the live summary of a run.
func (s *Service) Status(id string) (engine.Summary, error) {
	run, err := s.run(id)
	if err != nil {
		return engine.Summary{}, err
	}
	return run.engine.Status(), nil
}

// Results returns a run's recorded attempts in completion order.
func (s *Service) Results(id string) ([]pipeline.Result, error) {
	run, err := s.run(id)
	if err != nil {
		return nil, err
	}
	return run.engine.Results(), nil
}

// StepError returns the captured stderr of a step's last attempt.
func (s *Service) StepError(id, step string) (string, error) {
	run, err := s.run(id)
	if err != nil {
		return "", err
	}
	return run.engine.StepError(step), nil
}

// PerformanceMetrics returns a run's per-step timing.
func (s *Service) PerformanceMetrics(id string) ([]engine.StepPerf, error) {
	run, err := s.run(id)
	if err != nil {
		return nil, err
	}
	return run.engine.PerformanceMetrics(), nil
}

// Stop cancels a run's in-flight steps.
func (s *Service) Stop(id string) error {
	run, err := s.run(id)
	if err != nil {
		return err
	}
	run.engine.Stop()
	return nil
}

// List returns live summaries of all tracked runs.
func (s *Service) List() []engine.Summary {
	s.mu.RLock()
	defer s.mu.RUnlock()

	summaries := make([]engine.Summary, 0, len(s.runs))
	for _, run := range s.runs {
		summaries = append(summaries, run.engine.Status())
	}
	return summaries
}

// History returns persisted runs, newest first, when a history store is
// configured.
func (s *Service) History(pipelineName string, limit int) ([]*history.Run, error) {
	if s.opts.History == nil {
		return nil, nil
	}
	return s.opts.History.ListRuns(pipelineName, limit)
}

// Wait blocks until a run finishes. Intended for tests and shutdown.
func (s *Service) Wait(ctx context.Context, id string) error {
	run, err := s.run(id)
	if err != nil {
		return err
	}
	select {
	case <-run.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// StopAll cancels every live run. Used during shutdown.
func (s *Service) StopAll() {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, run := range s.runs {
		run.engine.Stop()
	}
}
