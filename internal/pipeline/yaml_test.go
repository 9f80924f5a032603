package pipeline

import (
	"path/filepath"
	"strings"
	"testing"
)

const sampleDocument = `
name: release
version: "2.1"
description: build, test and package
environment:
  CI: "true"
max_parallel_jobs: 2
artifacts_retention: 7
notifications:
  on_failure: true
  webhooks:
    - https://hooks.example.com/ci
steps:
  - name: build
    command: make build
    timeout: 600
    artifacts:
      - dist/app
  - name: unit-tests
    command: make test
    depends_on: [build]
    parallel: true
  - name: lint
    command: make lint
    depends_on: [build]
    parallel: true
    critical: false
  - name: package
    command: make package
    depends_on: [unit-tests, lint]
    condition: "$CI == true"
`

func TestParse(t *testing.T) {
	t.Parallel()

	cfg, err := Parse(strings.NewReader(sampleDocument))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	if cfg.Name != "release" {
		t.Errorf("expected name 'release', got %q", cfg.Name)
	}
	if len(cfg.Steps) != 4 {
		t.Fatalf("expected 4 steps, got %d", len(cfg.Steps))
	}
	if cfg.MaxParallelJobs != 2 {
		t.Errorf("expected max_parallel_jobs 2, got %d", cfg.MaxParallelJobs)
	}
	if !cfg.Notifications.OnFailure {
		t.Error("expected on_failure notifications enabled")
	}

	lint, ok := cfg.GetStep("lint")
	if !ok {
		t.Fatal("missing lint step")
	}
	if lint.IsCritical() {
		t.Error("lint step should be non-critical")
	}

	pkg, _ := cfg.GetStep("package")
	if pkg.Condition != "$CI == true" {
		t.Errorf("unexpected condition: %q", pkg.Condition)
	}
	if len(pkg.DependsOn) != 2 {
		t.Errorf("expected 2 dependencies, got %d", len(pkg.DependsOn))
	}

	if errs := cfg.Validate(); len(errs) != 0 {
		t.Errorf("sample document should validate, got %v", errs)
	}
}

func TestParse_RejectsUnknownFields(t *testing.T) {
	t.Parallel()

	_, err := Parse(strings.NewReader("name: x\nstages: []\n"))
	if err == nil {
		t.Error("expected error for unknown field 'stages'")
	}
}

func TestParse_AppliesDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := Parse(strings.NewReader("name: minimal\nsteps:\n  - name: s\n    command: \"true\"\n"))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if cfg.MaxParallelJobs != DefaultMaxParallelJobs {
		t.Errorf("expected default max_parallel_jobs, got %d", cfg.MaxParallelJobs)
	}
	if cfg.Version == "" {
		t.Error("expected default version")
	}
}

func TestSaveLoad_RoundTrip(t *testing.T) {
	t.Parallel()

	cfg, err := Parse(strings.NewReader(sampleDocument))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	path := filepath.Join(t.TempDir(), "pipeline.yaml")
	if err := cfg.Save(path); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if loaded.Name != cfg.Name || len(loaded.Steps) != len(cfg.Steps) {
		t.Errorf("round trip mismatch: %+v vs %+v", loaded, cfg)
	}
	for i := range cfg.Steps {
		if loaded.Steps[i].Name != cfg.Steps[i].Name {
			t.Errorf("step %d name mismatch: %q vs %q", i, loaded.Steps[i].Name, cfg.Steps[i].Name)
		}
	}
	lint, _ := loaded.GetStep("lint")
	if lint.IsCritical() {
		t.Error("critical=false lost in round trip")
	}
}
