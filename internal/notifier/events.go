package notifier

import (
	"github.com/google/uuid"

	"pipeline/internal/pipeline"
	"pipeline/pkg/cloudevent"
)

// Event types emitted over webhooks.
const (
	EventPipelineStarted   = "pipeline.started"
	EventPipelineSucceeded = "pipeline.succeeded"
	EventPipelineFailed    = "pipeline.failed"
	EventPipelineCancelled = "pipeline.cancelled"
	EventStepFailed        = "step.failed"
)

const eventSource = "pipeline/engine"

// Builder constructs webhook events for a pipeline's configured destinations.
type Builder struct {
	pipeline string
	runID    string
	cfg      pipeline.Notifications
}

// NewBuilder creates a Builder for one pipeline run.
func NewBuilder(pipelineName, runID string, cfg pipeline.Notifications) *Builder {
	return &Builder{pipeline: pipelineName, runID: runID, cfg: cfg}
}

// PipelineStarted builds events announcing the run has begun.
func (b *Builder) PipelineStarted() []*Event {
	return b.build(EventPipelineStarted, map[string]any{
		"pipeline": b.pipeline,
		"runId":    b.runID,
	})
}

// PipelineFinished builds events for the run's terminal status.
// Success events are only built when on_success is set, failure and
// cancellation events only when on_failure is set.
func (b *Builder) PipelineFinished(status pipeline.Status, durationSeconds float64) []*Event {
	var eventType string
	switch status {
	case pipeline.StatusSuccess:
		if !b.cfg.OnSuccess {
			return nil
		}
		eventType = EventPipelineSucceeded
	case pipeline.StatusCancelled:
		if !b.cfg.OnFailure {
			return nil
		}
		eventType = EventPipelineCancelled
	default:
		if !b.cfg.OnFailure {
			return nil
		}
		eventType = EventPipelineFailed
	}

	return b.build(eventType, map[string]any{
		"pipeline": b.pipeline,
		"runId":    b.runID,
		"status":   string(status),
		"duration": durationSeconds,
	})
}

// StepFailed builds events for a step that exhausted its attempts.
func (b *Builder) StepFailed(result pipeline.Result) []*Event {
	if !b.cfg.OnFailure {
		return nil
	}
	return b.build(EventStepFailed, map[string]any{
		"pipeline": b.pipeline,
		"runId":    b.runID,
		"step":     result.StepName,
		"status":   string(result.Status),
		"exitCode": result.ExitCode,
		"attempt":  result.Attempt,
	})
}

func (b *Builder) build(eventType string, data map[string]any) []*Event {
	events := make([]*Event, 0, len(b.cfg.Webhooks))
	for _, destination := range b.cfg.Webhooks {
		events = append(events, &Event{
			Payload:     cloudevent.New(eventType, eventSource, b.runID, uuid.NewString(), data),
			Destination: destination,
			SigningKey:  b.cfg.Key,
		})
	}
	return events
}
