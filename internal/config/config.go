// Package config provides configuration loading from environment variables.
package config

import (
	"time"
)

// ServiceConfig holds configuration for the pipeline service.
type ServiceConfig struct {
	Port              string
	MetricsPort       string
	APIKey            string
	ShutdownDrainWait time.Duration // Time to wait for load balancer to drain (0 to skip)

	WorkspaceRoot string // base directory for step working directories
	ArtifactRoot  string // base directory for stored artifacts
	HistoryPath   string // sqlite database for run history ("" disables persistence)

	Runner    string // step runner backend: "local" or "docker"
	StepImage string // container image for docker runner steps

	DefaultStepTimeout time.Duration
}

// LoadServiceConfig loads service configuration from environment variables.
func LoadServiceConfig() *ServiceConfig {
	return &ServiceConfig{
		Port:              GetEnv("PORT", "8080"),
		MetricsPort:       GetEnv("METRICS_PORT", "9090"),
		APIKey:            GetSecretEnv("API_KEY"),
		ShutdownDrainWait: GetDurationEnv("SHUTDOWN_DRAIN_WAIT", 5*time.Second),

		WorkspaceRoot: GetEnv("WORKSPACE_ROOT", "/var/lib/pipeline/workspace"),
		ArtifactRoot:  GetEnv("ARTIFACT_ROOT", "/var/lib/pipeline/artifacts"),
		HistoryPath:   GetEnv("HISTORY_DB", "/var/lib/pipeline/history.db"),

		Runner:    GetEnv("STEP_RUNNER", "local"),
		StepImage: GetEnv("STEP_IMAGE", "alpine:3.20"),

		DefaultStepTimeout: GetDurationEnv("DEFAULT_STEP_TIMEOUT", 30*time.Minute),
	}
}
