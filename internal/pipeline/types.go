// Package pipeline defines the pipeline configuration model: steps, global
// settings, and the execution result types shared across the engine.
package pipeline

import "time"

// Status is the shared state vocabulary for steps and pipelines.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusSuccess   Status = "success"
	StatusFailed    Status = "failed"
	StatusTimeout   Status = "timeout"
	StatusSkipped   Status = "skipped"
	StatusCancelled Status = "cancelled"

	// StatusPaused is advisory only: the engine records it but does not
	// suspend in-flight steps.
	StatusPaused Status = "paused"
)

// Terminal reports whether the status is a final state.
func (s Status) Terminal() bool {
	switch s {
	case StatusSuccess, StatusFailed, StatusTimeout, StatusSkipped, StatusCancelled:
		return true
	}
	return false
}

// Step is a single named unit of work within a pipeline.
type Step struct {
	Name        string            `yaml:"name" json:"name"`
	Command     string            `yaml:"command" json:"command"`
	WorkingDir  string            `yaml:"working_dir,omitempty" json:"workingDir,omitempty"`
	Timeout     int               `yaml:"timeout,omitempty" json:"timeout,omitempty"` // seconds
	RetryCount  int               `yaml:"retry_count,omitempty" json:"retryCount,omitempty"`
	Environment map[string]string `yaml:"environment,omitempty" json:"environment,omitempty"`
	DependsOn   []string          `yaml:"depends_on,omitempty" json:"dependsOn,omitempty"`
	Parallel    bool              `yaml:"parallel,omitempty" json:"parallel,omitempty"`
	Critical    *bool             `yaml:"critical,omitempty" json:"critical,omitempty"` // nil = true
	Condition   string            `yaml:"condition,omitempty" json:"condition,omitempty"`
	Artifacts   []string          `yaml:"artifacts,omitempty" json:"artifacts,omitempty"`
}

// IsCritical reports whether a failure of this step aborts the pipeline.
// Steps are critical unless explicitly marked otherwise.
func (s *Step) IsCritical() bool {
	return s.Critical == nil || *s.Critical
}

// TimeoutDuration returns the step timeout as a duration, or the given
// fallback when the step does not set one.
func (s *Step) TimeoutDuration(fallback time.Duration) time.Duration {
	if s.Timeout > 0 {
		return time.Duration(s.Timeout) * time.Second
	}
	return fallback
}

// Notifications configures webhook delivery of pipeline lifecycle events.
type Notifications struct {
	OnSuccess bool     `yaml:"on_success" json:"onSuccess"`
	OnFailure bool     `yaml:"on_failure" json:"onFailure"`
	Webhooks  []string `yaml:"webhooks,omitempty" json:"webhooks,omitempty"`
	Key       string   `yaml:"key,omitempty" json:"key,omitempty"` // HMAC signing key
}

// Config is the in-memory representation of one pipeline. Step order is
// declaration order, not execution order.
type Config struct {
	Name               string            `yaml:"name" json:"name"`
	Version            string            `yaml:"version,omitempty" json:"version,omitempty"`
	Description        string            `yaml:"description,omitempty" json:"description,omitempty"`
	Environment        map[string]string `yaml:"environment,omitempty" json:"environment,omitempty"`
	Triggers           []string          `yaml:"triggers,omitempty" json:"triggers,omitempty"`
	MaxParallelJobs    int               `yaml:"max_parallel_jobs,omitempty" json:"maxParallelJobs,omitempty"`
	ArtifactsRetention int               `yaml:"artifacts_retention,omitempty" json:"artifactsRetention,omitempty"` // days
	Notifications      Notifications     `yaml:"notifications,omitempty" json:"notifications,omitempty"`
	Steps              []Step            `yaml:"steps" json:"steps"`
}

// Result records one execution attempt of one step. Immutable once EndTime
// is set.
type Result struct {
	StepName string    `json:"stepName"`
	Status   Status    `json:"status"`
	Start    time.Time `json:"start"`
	End      time.Time `json:"end"`
	Stdout   string    `json:"stdout,omitempty"`
	Stderr   string    `json:"stderr,omitempty"`
	ExitCode int       `json:"exitCode"`
	Attempt  int       `json:"attempt"` // 1 = initial attempt

	// CPU time of the spawned process, when the runner can observe it.
	UserTime   time.Duration `json:"userTime,omitempty"`
	SystemTime time.Duration `json:"systemTime,omitempty"`
}

// Duration returns the wall-clock duration of the attempt.
func (r *Result) Duration() time.Duration {
	return r.End.Sub(r.Start)
}
