package engine

import (
	"slices"
	"time"

	"pipeline/internal/pipeline"
)

// Summary is a point-in-time view of a run.
type Summary struct {
	RunID      string                     `json:"runId,omitempty"`
	Pipeline   string                     `json:"pipeline"`
	Status     pipeline.Status            `json:"status"`
	StartedAt  time.Time                  `json:"startedAt,omitempty"`
	FinishedAt time.Time                  `json:"finishedAt,omitempty"`
	Steps      map[string]pipeline.Status `json:"steps"`
}

// RunMetrics aggregates step outcomes for the current or last run.
type RunMetrics struct {
	Duration  time.Duration `json:"duration"`
	Steps     int           `json:"steps"`
	Attempts  int           `json:"attempts"`
	Succeeded int           `json:"succeeded"`
	Failed    int           `json:"failed"`
	TimedOut  int           `json:"timedOut"`
	Skipped   int           `json:"skipped"`
	Cancelled int           `json:"cancelled"`
}

// StepPerf carries per-step timing, including CPU time where the local
// runner reports it (zero for container-run steps).
type StepPerf struct {
	Step       string          `json:"step"`
	Status     pipeline.Status `json:"status"`
	Attempts   int             `json:"attempts"`
	Duration   time.Duration   `json:"duration"`
	UserTime   time.Duration   `json:"userTime"`
	SystemTime time.Duration   `json:"systemTime"`
}

// Status returns the current run summary.
func (e *Engine) Status() Summary {
	e.mu.Lock()
	defer e.mu.Unlock()

	steps := make(map[string]pipeline.Status, len(e.cfg.Steps))
	for i := range e.cfg.Steps {
		name := e.cfg.Steps[i].Name
		status, ok := e.stepStatus[name]
		if !ok {
			status = pipeline.StatusPending
		}
		steps[name] = status
	}

	return Summary{
		RunID:      e.runID,
		Pipeline:   e.cfg.Name,
		Status:     e.status,
		StartedAt:  e.startedAt,
		FinishedAt: e.finishedAt,
		Steps:      steps,
	}
}

// Results returns all recorded attempts in completion order.
func (e *Engine) Results() []pipeline.Result {
	e.mu.Lock()
	defer e.mu.Unlock()
	return slices.Clone(e.results)
}

// StepError returns the captured stderr of a step's last attempt, or empty
// if the step has not run or did not fail.
func (e *Engine) StepError(name string) string {
	e.mu.Lock()
	defer e.mu.Unlock()

	for i := len(e.results) - 1; i >= 0; i-- {
		if e.results[i].StepName == name {
			return e.results[i].Stderr
		}
	}
	return ""
}

// Metrics aggregates the run's step outcomes.
func (e *Engine) Metrics() RunMetrics {
	e.mu.Lock()
	defer e.mu.Unlock()

	m := RunMetrics{Attempts: len(e.results)}
	if !e.startedAt.IsZero() {
		end := e.finishedAt
		if end.IsZero() {
			end = time.Now()
		}
		m.Duration = end.Sub(e.startedAt)
	}

	for _, status := range e.stepStatus {
		switch status {
		case pipeline.StatusSuccess:
			m.Succeeded++
		case pipeline.StatusFailed:
			m.Failed++
		case pipeline.StatusTimeout:
			m.TimedOut++
		case pipeline.StatusSkipped:
			m.Skipped++
		case pipeline.StatusCancelled:
			m.Cancelled++
		}
	}
	m.Steps = len(e.stepStatus)
	return m
}

// PerformanceMetrics returns per-step timing in declaration order, summing
// wall and CPU time across attempts.
func (e *Engine) PerformanceMetrics() []StepPerf {
	e.mu.Lock()
	defer e.mu.Unlock()

	byStep := make(map[string]*StepPerf, len(e.cfg.Steps))
	for _, r := range e.results {
		perf, ok := byStep[r.StepName]
		if !ok {
			perf = &StepPerf{Step: r.StepName}
			byStep[r.StepName] = perf
		}
		perf.Attempts++
		perf.Status = r.Status
		perf.Duration += r.Duration()
		perf.UserTime += r.UserTime
		perf.SystemTime += r.SystemTime
	}

	perfs := make([]StepPerf, 0, len(byStep))
	for i := range e.cfg.Steps {
		if perf, ok := byStep[e.cfg.Steps[i].Name]; ok {
			perfs = append(perfs, *perf)
		}
	}
	return perfs
}
