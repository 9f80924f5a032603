// Package engine orchestrates pipeline runs: it validates the configuration,
// walks the dependency graph in topological batches, dispatches steps to the
// executor under the parallelism cap, captures artifacts, and drives hooks
// and notifications.
package engine

import (
	"context"
	"log/slog"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"pipeline/internal/apperrors"
	"pipeline/internal/artifact"
	"pipeline/internal/executor"
	"pipeline/internal/graph"
	"pipeline/internal/history"
	"pipeline/internal/notifier"
	"pipeline/internal/observability"
	"pipeline/internal/pipeline"
)

// Options carries the engine's optional collaborators. Any field may be nil.
type Options struct {
	Store    *artifact.Store
	Notifier notifier.Notifier
	History  *history.Store
	Metrics  *observability.Metrics
	Logger   *slog.Logger
}

// Engine runs one pipeline configuration. A single Engine owns its config:
// step mutations go through the engine and are rejected while a run is
// in flight.
type Engine struct {
	cfg      *pipeline.Config
	executor *executor.Executor
	store    *artifact.Store
	notifier notifier.Notifier
	history  *history.Store
	metrics  *observability.Metrics
	logger   *slog.Logger

	hooks hookSet

	mu         sync.Mutex
	status     pipeline.Status
	stepStatus map[string]pipeline.Status
	results    []pipeline.Result // completion order, all attempts
	startedAt  time.Time
	finishedAt time.Time
	runID      string
	nextRunID  string
	running    bool
	paused     bool
	cancelled  bool
	cancel     context.CancelFunc
}

// New creates an engine for one pipeline configuration.
func New(cfg *pipeline.Config, exec *executor.Executor, opts Options) *Engine {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		cfg:        cfg,
		executor:   exec,
		store:      opts.Store,
		notifier:   opts.Notifier,
		history:    opts.History,
		metrics:    opts.Metrics,
		logger:     logger.With("component", "engine", "pipeline", cfg.Name),
		status:     pipeline.StatusPending,
		stepStatus: make(map[string]pipeline.Status),
	}
}

// SetRunID fixes the identifier for the next run. When unset, Execute
// assigns a fresh UUID per run.
func (e *Engine) SetRunID(id string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.nextRunID = id
}

// Validate runs structural checks, graph construction, cycle detection, and
// condition syntax checks. It returns every problem found, not just the
// first; execution is refused while the list is non-empty.
func (e *Engine) Validate() []string {
	var errs []string
	for _, err := range e.cfg.Validate() {
		errs = append(errs, err.Error())
	}

	g, gerrs := graph.Build(e.cfg.Steps)
	for _, err := range gerrs {
		errs = append(errs, err.Error())
	}
	if len(gerrs) == 0 {
		if err := g.DetectCycles(); err != nil {
			errs = append(errs, err.Error())
		}
	}

	for i := range e.cfg.Steps {
		step := &e.cfg.Steps[i]
		if err := executor.CheckCondition(step.Condition); err != nil {
			errs = append(errs, apperrors.StepValidation(step.Name, "condition", err.Error()).Error())
		}
	}
	return errs
}

// Execute runs the pipeline to completion and reports overall success.
// Detailed failure reasons are available via Status, Results, and
// StepError afterwards.
func (e *Engine) Execute(ctx context.Context) bool {
	if errs := e.Validate(); len(errs) > 0 {
		for _, msg := range errs {
			e.logger.Error("Validation failed", "error", msg)
		}
		return false
	}

	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		e.logger.Warn("Execution already in progress")
		return false
	}
	runCtx, cancel := context.WithCancel(ctx)
	e.running = true
	e.paused = false
	e.cancelled = false
	e.cancel = cancel
	if e.nextRunID != "" {
		e.runID = e.nextRunID
		e.nextRunID = ""
	} else {
		e.runID = uuid.NewString()
	}
	e.status = pipeline.StatusRunning
	e.startedAt = time.Now()
	e.finishedAt = time.Time{}
	e.results = nil
	e.stepStatus = make(map[string]pipeline.Status, len(e.cfg.Steps))
	for i := range e.cfg.Steps {
		e.stepStatus[e.cfg.Steps[i].Name] = pipeline.StatusPending
	}
	runID := e.runID
	e.mu.Unlock()
	defer cancel()

	logger := e.logger.With("run", runID)
	logger.Info("Pipeline started", "steps", len(e.cfg.Steps))

	e.dispatchPipelineHooks("pre_pipeline", pipeline.StatusRunning)
	events := notifier.NewBuilder(e.cfg.Name, runID, e.cfg.Notifications)
	e.notify(events.PipelineStarted())
	if e.metrics != nil {
		e.metrics.RecordRunStarted(runCtx, e.cfg.Name)
	}
	if e.history != nil {
		if err := e.history.CreateRun(&history.Run{ID: runID, Pipeline: e.cfg.Name}); err != nil {
			logger.Warn("Failed to record run start", "error", err)
		}
	}

	// Validation passed, so graph construction cannot fail here.
	g, _ := graph.Build(e.cfg.Steps)
	batches, _ := g.Batches()

	e.runBatches(runCtx, batches, nil, events)

	e.mu.Lock()
	e.finishedAt = time.Now()
	final := pipeline.StatusSuccess
	if e.cancelled || runCtx.Err() != nil {
		final = pipeline.StatusCancelled
	} else if e.anyCriticalFailedLocked() {
		final = pipeline.StatusFailed
	}
	e.status = final
	duration := e.finishedAt.Sub(e.startedAt)
	results := slices.Clone(e.results)
	e.running = false
	e.cancel = nil
	e.mu.Unlock()

	logger.Info("Pipeline finished", "status", final, "duration", duration)

	e.dispatchPipelineHooks("post_pipeline", final)
	e.notify(events.PipelineFinished(final, duration.Seconds()))
	if e.metrics != nil {
		e.metrics.RecordRunCompleted(context.Background(), e.cfg.Name, string(final), duration.Seconds())
	}
	if e.history != nil {
		if err := e.history.FinishRun(runID, final, results); err != nil {
			logger.Warn("Failed to record run completion", "error", err)
		}
	}

	return final == pipeline.StatusSuccess
}

// runBatches walks the topological batches in order. Within a batch,
// parallel-flagged steps overlap under the max_parallel_jobs cap with worker
// slots granted in declaration order; non-parallel steps run one at a time.
// A critical failure lets already-dispatched steps finish, then stops
// scheduling.
func (e *Engine) runBatches(ctx context.Context, batches [][]string, only map[string]bool, events *notifier.Builder) {
	sem := make(chan struct{}, e.cfg.MaxParallelJobs)
	abort := false
	var abortMu sync.Mutex

	criticalFailed := func(step *pipeline.Step, status pipeline.Status) {
		if step.IsCritical() && (status == pipeline.StatusFailed || status == pipeline.StatusTimeout) {
			abortMu.Lock()
			abort = true
			abortMu.Unlock()
		}
	}
	aborted := func() bool {
		abortMu.Lock()
		defer abortMu.Unlock()
		return abort
	}

	for _, batch := range batches {
		if aborted() || ctx.Err() != nil {
			break
		}

		var wg sync.WaitGroup
		for _, name := range batch {
			if only != nil && !only[name] {
				continue
			}
			if aborted() || ctx.Err() != nil {
				break
			}

			step, _ := e.cfg.GetStep(name)
			if step.Parallel {
				sem <- struct{}{}
				wg.Add(1)
				go func(step *pipeline.Step) {
					defer wg.Done()
					defer func() { <-sem }()
					criticalFailed(step, e.runStep(ctx, step, events))
				}(step)
				continue
			}
			// Non-parallel steps may not overlap any other step: drain
			// the in-flight group, then take a slot for the inline run.
			wg.Wait()
			sem <- struct{}{}
			status := e.runStep(ctx, step, events)
			<-sem
			criticalFailed(step, status)
		}
		wg.Wait()
	}
}

// runStep executes one step including retries, records its results, captures
// artifacts, and fires step hooks. Returns the step's final status.
func (e *Engine) runStep(ctx context.Context, step *pipeline.Step, events *notifier.Builder) pipeline.Status {
	e.dispatchStepHooks("pre_step", *step, nil)

	e.mu.Lock()
	e.stepStatus[step.Name] = pipeline.StatusRunning
	e.mu.Unlock()
	if e.metrics != nil {
		e.metrics.RecordStepStarted(ctx, step.Name)
	}

	attempts := e.executor.Execute(ctx, step, e.cfg.Environment)
	final := attempts[len(attempts)-1]

	e.mu.Lock()
	e.results = append(e.results, attempts...)
	e.stepStatus[step.Name] = final.Status
	e.mu.Unlock()

	if e.metrics != nil {
		for range len(attempts) - 1 {
			e.metrics.RecordStepRetry(ctx, step.Name)
		}
		e.metrics.RecordStepCompleted(context.Background(), step.Name, string(final.Status), final.Duration().Seconds())
	}

	if final.Status == pipeline.StatusSuccess {
		e.captureArtifacts(step)
	}

	e.dispatchStepHooks("post_step", *step, &final)
	if final.Status == pipeline.StatusFailed || final.Status == pipeline.StatusTimeout {
		e.dispatchStepHooks("error", *step, &final)
		e.notify(events.StepFailed(final))
	}
	return final.Status
}

// captureArtifacts stores the step's declared outputs. A capture failure
// logs a warning and leaves the step's SUCCESS status untouched.
func (e *Engine) captureArtifacts(step *pipeline.Step) {
	if e.store == nil || len(step.Artifacts) == 0 {
		return
	}
	for _, path := range step.Artifacts {
		source := path
		if !filepath.IsAbs(source) && step.WorkingDir != "" {
			source = filepath.Join(step.WorkingDir, source)
		}
		name := filepath.Base(path)
		if _, err := e.store.Store(step.Name, source, name); err != nil {
			e.logger.Warn("Artifact capture failed", "step", step.Name, "artifact", name, "error", err)
		}
	}
}

// Stop cancels any in-flight steps and marks the pipeline CANCELLED.
// Idempotent: stopping an idle pipeline still yields CANCELLED.
func (e *Engine) Stop() {
	e.mu.Lock()
	e.cancelled = true
	e.status = pipeline.StatusCancelled
	cancel := e.cancel
	e.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	e.logger.Info("Pipeline stop requested")
}

// RetryFailedSteps re-runs only the steps whose last status is FAILED or
// TIMEOUT, in dependency order. Already-successful upstream steps are not
// re-run. Reports whether the pipeline reached SUCCESS afterwards.
func (e *Engine) RetryFailedSteps(ctx context.Context) bool {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		e.logger.Warn("Cannot retry while execution is in progress")
		return false
	}

	failed := make(map[string]bool)
	for name, status := range e.stepStatus {
		if status == pipeline.StatusFailed || status == pipeline.StatusTimeout {
			failed[name] = true
		}
	}
	if len(failed) == 0 {
		status := e.status
		e.mu.Unlock()
		return status == pipeline.StatusSuccess
	}

	runCtx, cancel := context.WithCancel(ctx)
	e.running = true
	e.cancelled = false
	e.cancel = cancel
	e.status = pipeline.StatusRunning
	runID := e.runID
	e.mu.Unlock()
	defer cancel()

	e.logger.Info("Retrying failed steps", "count", len(failed))
	events := notifier.NewBuilder(e.cfg.Name, runID, e.cfg.Notifications)

	g, _ := graph.Build(e.cfg.Steps)
	batches, _ := g.Batches()
	e.runBatches(runCtx, batches, failed, events)

	e.mu.Lock()
	e.finishedAt = time.Now()
	final := pipeline.StatusSuccess
	if e.cancelled || runCtx.Err() != nil {
		final = pipeline.StatusCancelled
	} else if e.anyCriticalFailedLocked() {
		final = pipeline.StatusFailed
	}
	e.status = final
	e.running = false
	e.cancel = nil
	e.mu.Unlock()

	return final == pipeline.StatusSuccess
}

// Pause marks the pipeline paused. In-flight steps are not suspended; the
// flag is advisory only and Resume clears it.
func (e *Engine) Pause() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.running && !e.paused {
		e.paused = true
		e.status = pipeline.StatusPaused
	}
}

// Resume clears the advisory pause flag.
func (e *Engine) Resume() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.paused {
		e.paused = false
		e.status = pipeline.StatusRunning
	}
}

// AddStep adds a step to the configuration. Rejected while a run is in
// flight.
func (e *Engine) AddStep(step pipeline.Step) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.running {
		return apperrors.Conflict("pipeline", e.cfg.Name, "cannot modify steps while running")
	}
	return e.cfg.AddStep(step)
}

// RemoveStep removes a step from the configuration. Rejected while a run is
// in flight or while other steps depend on it.
func (e *Engine) RemoveStep(name string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.running {
		return apperrors.Conflict("pipeline", e.cfg.Name, "cannot modify steps while running")
	}
	return e.cfg.RemoveStep(name)
}

// UpdateStep replaces a step definition. Rejected while a run is in flight.
func (e *Engine) UpdateStep(step pipeline.Step) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.running {
		return apperrors.Conflict("pipeline", e.cfg.Name, "cannot modify steps while running")
	}
	return e.cfg.UpdateStep(step)
}

func (e *Engine) notify(events []*notifier.Event) {
	if e.notifier == nil {
		return
	}
	for _, evt := range events {
		if err := e.notifier.Notify(evt); err != nil {
			e.logger.Warn("Notification dropped", "type", evt.Payload.Type, "error", err)
		}
	}
}

func (e *Engine) anyCriticalFailedLocked() bool {
	for i := range e.cfg.Steps {
		step := &e.cfg.Steps[i]
		if !step.IsCritical() {
			continue
		}
		switch e.stepStatus[step.Name] {
		case pipeline.StatusFailed, pipeline.StatusTimeout, pipeline.StatusCancelled:
			return true
		}
	}
	return false
}

// SweepArtifacts removes stored artifacts older than the configured
// retention window. Returns how many were removed.
func (e *Engine) SweepArtifacts() (int, error) {
	if e.store == nil {
		return 0, nil
	}
	return e.store.CleanOlderThan(e.cfg.ArtifactsRetention)
}
