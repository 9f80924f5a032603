package pipeline

import (
	"regexp"
	"slices"

	"pipeline/internal/apperrors"
)

// Validation limits
const (
	maxNameLength     = 128
	maxStepCount      = 256
	maxEnvEntries     = 128
	maxEnvKeyLen      = 128
	maxEnvValueLen    = 4096
	maxArtifactsCount = 64
	maxTimeoutSecs    = 86400 // 24 hours
)

// DefaultMaxParallelJobs is used when a config does not set a concurrency cap.
const DefaultMaxParallelJobs = 4

// stepNamePattern allows alphanumeric, hyphens, and underscores.
var stepNamePattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9_-]*$`)

// ApplyDefaults fills in unset fields. Called before validation so a minimal
// document round-trips to a runnable config.
func (c *Config) ApplyDefaults() {
	if c.Version == "" {
		c.Version = "1.0"
	}
	if c.MaxParallelJobs == 0 {
		c.MaxParallelJobs = DefaultMaxParallelJobs
	}
}

// Validate checks structural invariants and returns every problem found,
// not just the first. An empty slice means the config is valid.
func (c *Config) Validate() []error {
	var errs []error

	if c.Name == "" {
		errs = append(errs, apperrors.Validation("name", "pipeline name is required"))
	}
	if len(c.Steps) == 0 {
		errs = append(errs, apperrors.Validation("steps", "at least one step required"))
	}
	if len(c.Steps) > maxStepCount {
		errs = append(errs, apperrors.Validation("steps", "too many steps"))
	}
	if c.MaxParallelJobs < 1 {
		errs = append(errs, apperrors.Validation("max_parallel_jobs", "max_parallel_jobs must be >= 1"))
	}
	if c.ArtifactsRetention < 0 {
		errs = append(errs, apperrors.Validation("artifacts_retention", "artifacts_retention must be >= 0"))
	}

	seen := make(map[string]bool, len(c.Steps))
	for i := range c.Steps {
		step := &c.Steps[i]
		if seen[step.Name] {
			errs = append(errs, apperrors.StepValidation(step.Name, "name", "duplicate step name"))
			continue
		}
		seen[step.Name] = true
		errs = append(errs, validateStep(step)...)
	}

	return errs
}

// validateStep checks one step's structural invariants. Dependency
// references are the graph's concern, not checked here.
func validateStep(step *Step) []error {
	var errs []error

	if step.Name == "" {
		errs = append(errs, apperrors.Validation("name", "step name is required"))
		return errs
	}
	if len(step.Name) > maxNameLength {
		errs = append(errs, apperrors.StepValidation(step.Name, "name", "step name too long"))
	}
	if !stepNamePattern.MatchString(step.Name) {
		errs = append(errs, apperrors.StepValidation(step.Name, "name", "step name must be alphanumeric with hyphens or underscores"))
	}
	if step.Command == "" {
		errs = append(errs, apperrors.StepValidation(step.Name, "command", "command is required"))
	}
	if step.Timeout < 0 {
		errs = append(errs, apperrors.StepValidation(step.Name, "timeout", "timeout must be positive"))
	}
	if step.Timeout > maxTimeoutSecs {
		errs = append(errs, apperrors.StepValidation(step.Name, "timeout", "timeout exceeds 24 hours"))
	}
	if step.RetryCount < 0 {
		errs = append(errs, apperrors.StepValidation(step.Name, "retry_count", "retry_count must be non-negative"))
	}
	if len(step.Environment) > maxEnvEntries {
		errs = append(errs, apperrors.StepValidation(step.Name, "environment", "too many environment entries"))
	}
	for k, v := range step.Environment {
		if len(k) == 0 || len(k) > maxEnvKeyLen {
			errs = append(errs, apperrors.StepValidation(step.Name, "environment", "invalid environment key"))
		}
		if len(v) > maxEnvValueLen {
			errs = append(errs, apperrors.StepValidation(step.Name, "environment", "environment value too long"))
		}
	}
	if len(step.Artifacts) > maxArtifactsCount {
		errs = append(errs, apperrors.StepValidation(step.Name, "artifacts", "too many artifacts"))
	}
	for _, a := range step.Artifacts {
		if a == "" {
			errs = append(errs, apperrors.StepValidation(step.Name, "artifacts", "artifact path must not be empty"))
		}
	}

	return errs
}

// AddStep appends a step after structural validation. Duplicate names are
// rejected, never silently corrected.
func (c *Config) AddStep(step Step) error {
	if _, ok := c.GetStep(step.Name); ok {
		return apperrors.Conflict("step", step.Name, "step "+step.Name+" already exists")
	}
	if errs := validateStep(&step); len(errs) > 0 {
		return errs[0]
	}
	c.Steps = append(c.Steps, step)
	return nil
}

// RemoveStep deletes a step by name. Removal is refused while other steps
// depend on it.
func (c *Config) RemoveStep(name string) error {
	idx := -1
	for i := range c.Steps {
		if c.Steps[i].Name == name {
			idx = i
			break
		}
	}
	if idx < 0 {
		return apperrors.NotFound("step", name)
	}
	for i := range c.Steps {
		if c.Steps[i].Name == name {
			continue
		}
		if slices.Contains(c.Steps[i].DependsOn, name) {
			return apperrors.Conflict("step", name, "step "+c.Steps[i].Name+" depends on "+name)
		}
	}
	c.Steps = slices.Delete(c.Steps, idx, idx+1)
	return nil
}

// UpdateStep replaces the step with the same name.
func (c *Config) UpdateStep(step Step) error {
	if errs := validateStep(&step); len(errs) > 0 {
		return errs[0]
	}
	for i := range c.Steps {
		if c.Steps[i].Name == step.Name {
			c.Steps[i] = step
			return nil
		}
	}
	return apperrors.NotFound("step", step.Name)
}

// GetStep returns the step with the given name.
func (c *Config) GetStep(name string) (*Step, bool) {
	for i := range c.Steps {
		if c.Steps[i].Name == name {
			return &c.Steps[i], true
		}
	}
	return nil, false
}

// StepNames returns all step names in declaration order.
func (c *Config) StepNames() []string {
	names := make([]string, len(c.Steps))
	for i := range c.Steps {
		names[i] = c.Steps[i].Name
	}
	return names
}
