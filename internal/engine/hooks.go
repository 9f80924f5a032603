package engine

import (
	"sync"

	"pipeline/internal/pipeline"
)

// StepHook observes a single step. For pre-step dispatch the result is nil;
// for post-step and error dispatch it carries the step's final attempt.
type StepHook func(step pipeline.Step, result *pipeline.Result) error

// PipelineHook observes the pipeline as a whole.
type PipelineHook func(cfg *pipeline.Config, status pipeline.Status) error

// Hooks are best-effort observers: a hook that returns an error or panics is
// logged and never alters step or pipeline state.
type hookSet struct {
	mu           sync.Mutex
	prePipeline  []PipelineHook
	postPipeline []PipelineHook
	preStep      []StepHook
	postStep     []StepHook
	onError      []StepHook
}

// OnPrePipeline registers a hook invoked before execution starts.
func (e *Engine) OnPrePipeline(h PipelineHook) {
	e.hooks.mu.Lock()
	defer e.hooks.mu.Unlock()
	e.hooks.prePipeline = append(e.hooks.prePipeline, h)
}

// OnPostPipeline registers a hook invoked after the run finishes.
func (e *Engine) OnPostPipeline(h PipelineHook) {
	e.hooks.mu.Lock()
	defer e.hooks.mu.Unlock()
	e.hooks.postPipeline = append(e.hooks.postPipeline, h)
}

// OnPreStep registers a hook invoked before each step is dispatched.
func (e *Engine) OnPreStep(h StepHook) {
	e.hooks.mu.Lock()
	defer e.hooks.mu.Unlock()
	e.hooks.preStep = append(e.hooks.preStep, h)
}

// OnPostStep registers a hook invoked after each step completes.
func (e *Engine) OnPostStep(h StepHook) {
	e.hooks.mu.Lock()
	defer e.hooks.mu.Unlock()
	e.hooks.postStep = append(e.hooks.postStep, h)
}

// OnStepError registers a hook invoked when a step ends FAILED or TIMEOUT,
// in addition to the post-step hooks.
func (e *Engine) OnStepError(h StepHook) {
	e.hooks.mu.Lock()
	defer e.hooks.mu.Unlock()
	e.hooks.onError = append(e.hooks.onError, h)
}

func (h *hookSet) stepHooks(kind string) []StepHook {
	h.mu.Lock()
	defer h.mu.Unlock()
	switch kind {
	case "pre_step":
		return append([]StepHook(nil), h.preStep...)
	case "post_step":
		return append([]StepHook(nil), h.postStep...)
	default:
		return append([]StepHook(nil), h.onError...)
	}
}

func (h *hookSet) pipelineHooks(kind string) []PipelineHook {
	h.mu.Lock()
	defer h.mu.Unlock()
	if kind == "pre_pipeline" {
		return append([]PipelineHook(nil), h.prePipeline...)
	}
	return append([]PipelineHook(nil), h.postPipeline...)
}

func (e *Engine) dispatchStepHooks(kind string, step pipeline.Step, result *pipeline.Result) {
	for _, h := range e.hooks.stepHooks(kind) {
		func() {
			defer func() {
				if r := recover(); r != nil {
					e.logger.Error("Hook panicked", "hook", kind, "step", step.Name, "panic", r)
				}
			}()
			if err := h(step, result); err != nil {
				e.logger.Warn("Hook failed", "hook", kind, "step", step.Name, "error", err)
			}
		}()
	}
}

func (e *Engine) dispatchPipelineHooks(kind string, status pipeline.Status) {
	for _, h := range e.hooks.pipelineHooks(kind) {
		func() {
			defer func() {
				if r := recover(); r != nil {
					e.logger.Error("Hook panicked", "hook", kind, "panic", r)
				}
			}()
			if err := h(e.cfg, status); err != nil {
				e.logger.Warn("Hook failed", "hook", kind, "error", err)
			}
		}()
	}
}
