// Package executor runs single pipeline steps: condition evaluation,
// environment composition, timeout enforcement, and retry with backoff.
// It never mutates config or artifact state; it hands results back for the
// engine to act on.
package executor

import (
	"context"
	"log/slog"
	"maps"
	"time"

	"pipeline/internal/pipeline"
	"pipeline/pkg/backoff"
)

// DefaultStepTimeout applies when a step does not set its own timeout.
const DefaultStepTimeout = 30 * time.Minute

// Config tunes the executor. Zero values use defaults.
type Config struct {
	DefaultTimeout time.Duration // default: 30m
	RetryBase      time.Duration // base delay for retry backoff (default: 1s)
}

// Executor executes step attempts through a Runner backend.
type Executor struct {
	runner    Runner
	cfg       Config
	logger    *slog.Logger
	sleepFunc func(ctx context.Context, d time.Duration) error // test seam
}

// New creates an executor over the given runner.
func New(runner Runner, cfg Config) *Executor {
	if cfg.DefaultTimeout <= 0 {
		cfg.DefaultTimeout = DefaultStepTimeout
	}
	if cfg.RetryBase <= 0 {
		cfg.RetryBase = time.Second
	}
	return &Executor{
		runner:    runner,
		cfg:       cfg,
		logger:    slog.With("component", "executor"),
		sleepFunc: sleepCtx,
	}
}

// ResolveEnv merges the pipeline-global environment with the step's own.
// The step wins on conflict.
func ResolveEnv(global, step map[string]string) map[string]string {
	resolved := make(map[string]string, len(global)+len(step))
	maps.Copy(resolved, global)
	maps.Copy(resolved, step)
	return resolved
}

// Execute runs one step to completion and returns every attempt's result in
// order. The last result is the step's final status:
//
//   - A false condition yields a single zero-duration SKIPPED result with no
//     process spawned.
//   - A timeout is terminal: no retries follow it.
//   - Non-zero exits are retried up to the step's retry count with
//     exponential backoff and ±50% jitter.
//   - Context cancellation yields CANCELLED and stops further attempts.
func (e *Executor) Execute(ctx context.Context, step *pipeline.Step, globalEnv map[string]string) []pipeline.Result {
	logger := e.logger.With("step", step.Name)
	resolvedEnv := ResolveEnv(globalEnv, step.Environment)

	if step.Condition != "" {
		ok, err := EvalCondition(step.Condition, resolvedEnv)
		if err != nil {
			// Malformed conditions are caught at validation time; if one
			// slips through, skipping is safer than running.
			logger.Warn("Condition evaluation failed, skipping step", "error", err)
			ok = false
		}
		if !ok {
			now := time.Now().UTC()
			logger.Info("Step skipped by condition", "condition", step.Condition)
			return []pipeline.Result{{
				StepName: step.Name,
				Status:   pipeline.StatusSkipped,
				Start:    now,
				End:      now,
				Attempt:  1,
			}}
		}
	}

	spec := RunSpec{
		Command:    step.Command,
		WorkingDir: step.WorkingDir,
		Env:        resolvedEnv,
		Timeout:    step.TimeoutDuration(e.cfg.DefaultTimeout),
	}

	var results []pipeline.Result
	totalAttempts := 1 + step.RetryCount

	for attempt := 1; attempt <= totalAttempts; attempt++ {
		result := e.runAttempt(ctx, step, spec, attempt)
		results = append(results, result)

		switch result.Status {
		case pipeline.StatusSuccess, pipeline.StatusTimeout, pipeline.StatusCancelled:
			// Timeout is terminal: a hung process is assumed not transient.
			return results
		}

		if attempt == totalAttempts {
			logger.Warn("Step failed after all attempts", "attempts", totalAttempts, "exitCode", result.ExitCode)
			return results
		}

		delay := backoff.Exponential(attempt, &backoff.Config{
			Initial: e.cfg.RetryBase,
			Max:     5 * time.Minute,
			Jitter:  true,
		})
		logger.Info("Step failed, retrying", "attempt", attempt, "delay", delay)
		if err := e.sleepFunc(ctx, delay); err != nil {
			// Cancellation during backoff records a final cancelled attempt.
			now := time.Now().UTC()
			results = append(results, pipeline.Result{
				StepName: step.Name,
				Status:   pipeline.StatusCancelled,
				Start:    now,
				End:      now,
				ExitCode: -1,
				Attempt:  attempt + 1,
			})
			return results
		}
	}
	return results
}

// runAttempt executes one attempt and maps the runner output to a result.
func (e *Executor) runAttempt(ctx context.Context, step *pipeline.Step, spec RunSpec, attempt int) pipeline.Result {
	result := pipeline.Result{
		StepName: step.Name,
		Status:   pipeline.StatusRunning,
		Start:    time.Now().UTC(),
		Attempt:  attempt,
		ExitCode: -1,
	}

	out, err := e.runner.Run(ctx, spec)
	result.End = time.Now().UTC()

	if err != nil {
		// The command could not be run at all (bad working dir, backend
		// down). Recorded as a failed attempt, eligible for retry.
		result.Status = pipeline.StatusFailed
		result.Stderr = err.Error()
		return result
	}

	result.Stdout = out.Stdout
	result.Stderr = out.Stderr
	result.ExitCode = out.ExitCode
	result.UserTime = out.UserTime
	result.SystemTime = out.SystemTime

	switch {
	case out.TimedOut:
		result.Status = pipeline.StatusTimeout
	case ctx.Err() != nil:
		result.Status = pipeline.StatusCancelled
	case out.ExitCode == 0:
		result.Status = pipeline.StatusSuccess
	default:
		result.Status = pipeline.StatusFailed
	}
	return result
}

// sleepCtx waits for the duration unless the context is cancelled first.
func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
