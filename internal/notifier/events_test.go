package notifier

import (
	"testing"

	"pipeline/internal/pipeline"
)

func TestBuilder_PipelineStarted(t *testing.T) {
	t.Parallel()
	b := NewBuilder("release", "run-1", pipeline.Notifications{
		OnSuccess: true,
		Webhooks:  []string{"https://ci.example.com/hook", "https://chat.example.com/hook"},
		Key:       "secret",
	})

	events := b.PipelineStarted()
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}

	for _, evt := range events {
		if evt.Payload.Type != EventPipelineStarted {
			t.Errorf("unexpected event type %q", evt.Payload.Type)
		}
		if evt.Payload.Subject != "run-1" {
			t.Errorf("unexpected subject %q", evt.Payload.Subject)
		}
		if evt.SigningKey != "secret" {
			t.Error("expected signing key to be carried over")
		}
	}

	if events[0].Payload.ID == events[1].Payload.ID {
		t.Error("expected unique event IDs")
	}
}

func TestBuilder_PipelineFinished(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name      string
		cfg       pipeline.Notifications
		status    pipeline.Status
		wantCount int
		wantType  string
	}{
		{
			name:      "success with on_success",
			cfg:       pipeline.Notifications{OnSuccess: true, Webhooks: []string{"https://x/hook"}},
			status:    pipeline.StatusSuccess,
			wantCount: 1,
			wantType:  EventPipelineSucceeded,
		},
		{
			name:      "success without on_success",
			cfg:       pipeline.Notifications{OnFailure: true, Webhooks: []string{"https://x/hook"}},
			status:    pipeline.StatusSuccess,
			wantCount: 0,
		},
		{
			name:      "failure with on_failure",
			cfg:       pipeline.Notifications{OnFailure: true, Webhooks: []string{"https://x/hook"}},
			status:    pipeline.StatusFailed,
			wantCount: 1,
			wantType:  EventPipelineFailed,
		},
		{
			name:      "failure without on_failure",
			cfg:       pipeline.Notifications{OnSuccess: true, Webhooks: []string{"https://x/hook"}},
			status:    pipeline.StatusFailed,
			wantCount: 0,
		},
		{
			name:      "cancelled reported as failure",
			cfg:       pipeline.Notifications{OnFailure: true, Webhooks: []string{"https://x/hook"}},
			status:    pipeline.StatusCancelled,
			wantCount: 1,
			wantType:  EventPipelineCancelled,
		},
		{
			name:      "no webhooks",
			cfg:       pipeline.Notifications{OnSuccess: true, OnFailure: true},
			status:    pipeline.StatusSuccess,
			wantCount: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			b := NewBuilder("release", "run-1", tt.cfg)
			events := b.PipelineFinished(tt.status, 12.5)

			if len(events) != tt.wantCount {
				t.Fatalf("expected %d events, got %d", tt.wantCount, len(events))
			}
			if tt.wantCount > 0 && events[0].Payload.Type != tt.wantType {
				t.Errorf("expected type %q, got %q", tt.wantType, events[0].Payload.Type)
			}
		})
	}
}

func TestBuilder_StepFailed(t *testing.T) {
	t.Parallel()
	result := pipeline.Result{StepName: "deploy", Status: pipeline.StatusFailed, ExitCode: 2, Attempt: 3}

	b := NewBuilder("release", "run-1", pipeline.Notifications{
		OnFailure: true,
		Webhooks:  []string{"https://x/hook"},
	})
	events := b.StepFailed(result)
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	if events[0].Payload.Type != EventStepFailed {
		t.Errorf("unexpected type %q", events[0].Payload.Type)
	}
	if events[0].Payload.Data["step"] != "deploy" {
		t.Errorf("unexpected step %v", events[0].Payload.Data["step"])
	}

	quiet := NewBuilder("release", "run-1", pipeline.Notifications{Webhooks: []string{"https://x/hook"}})
	if events := quiet.StepFailed(result); len(events) != 0 {
		t.Errorf("expected no events without on_failure, got %d", len(events))
	}
}
