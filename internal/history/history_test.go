package history

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"pipeline/internal/apperrors"
	"pipeline/internal/pipeline"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestCreateAndGetRun(t *testing.T) {
	s := openTestStore(t)

	run := &Run{Pipeline: "release"}
	if err := s.CreateRun(run); err != nil {
		t.Fatalf("CreateRun failed: %v", err)
	}
	if run.ID == "" {
		t.Fatal("expected run ID to be assigned")
	}
	if run.Status != pipeline.StatusRunning {
		t.Errorf("expected running status, got %s", run.Status)
	}

	got, err := s.GetRun(run.ID)
	if err != nil {
		t.Fatalf("GetRun failed: %v", err)
	}
	if got.Pipeline != "release" {
		t.Errorf("unexpected pipeline %q", got.Pipeline)
	}
}

func TestGetRun_NotFound(t *testing.T) {
	s := openTestStore(t)

	_, err := s.GetRun("missing")
	if !errors.Is(err, apperrors.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestFinishRun(t *testing.T) {
	s := openTestStore(t)

	run := &Run{Pipeline: "release"}
	if err := s.CreateRun(run); err != nil {
		t.Fatalf("CreateRun failed: %v", err)
	}

	now := time.Now().UTC()
	results := []pipeline.Result{
		{StepName: "build", Status: pipeline.StatusSuccess, Start: now, End: now.Add(time.Second), Attempt: 1},
		{StepName: "test", Status: pipeline.StatusFailed, ExitCode: 1, Start: now, End: now.Add(2 * time.Second), Attempt: 3},
	}
	if err := s.FinishRun(run.ID, pipeline.StatusFailed, results); err != nil {
		t.Fatalf("FinishRun failed: %v", err)
	}

	got, err := s.GetRun(run.ID)
	if err != nil {
		t.Fatalf("GetRun failed: %v", err)
	}
	if got.Status != pipeline.StatusFailed {
		t.Errorf("expected failed status, got %s", got.Status)
	}
	if got.FinishedAt.IsZero() {
		t.Error("expected finished timestamp")
	}
	if len(got.Results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(got.Results))
	}
	if got.Results[1].ExitCode != 1 {
		t.Errorf("unexpected exit code %d", got.Results[1].ExitCode)
	}
}

func TestListRuns(t *testing.T) {
	s := openTestStore(t)

	base := time.Now().UTC().Add(-time.Hour)
	for i, name := range []string{"release", "release", "nightly"} {
		run := &Run{Pipeline: name, StartedAt: base.Add(time.Duration(i) * time.Minute)}
		if err := s.CreateRun(run); err != nil {
			t.Fatalf("CreateRun failed: %v", err)
		}
	}

	all, err := s.ListRuns("", 0)
	if err != nil {
		t.Fatalf("ListRuns failed: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 runs, got %d", len(all))
	}
	if all[0].Pipeline != "nightly" {
		t.Errorf("expected newest run first, got %q", all[0].Pipeline)
	}

	release, err := s.ListRuns("release", 0)
	if err != nil {
		t.Fatalf("ListRuns failed: %v", err)
	}
	if len(release) != 2 {
		t.Errorf("expected 2 release runs, got %d", len(release))
	}

	limited, err := s.ListRuns("", 1)
	if err != nil {
		t.Fatalf("ListRuns failed: %v", err)
	}
	if len(limited) != 1 {
		t.Errorf("expected 1 run with limit, got %d", len(limited))
	}
}

func TestStepFailures(t *testing.T) {
	s := openTestStore(t)

	now := time.Now().UTC()
	for i := 0; i < 3; i++ {
		run := &Run{Pipeline: "release"}
		if err := s.CreateRun(run); err != nil {
			t.Fatalf("CreateRun failed: %v", err)
		}
		status := pipeline.StatusFailed
		if i == 2 {
			status = pipeline.StatusSuccess
		}
		results := []pipeline.Result{
			{StepName: "deploy", Status: status, Start: now, End: now, Attempt: 1},
		}
		if err := s.FinishRun(run.ID, status, results); err != nil {
			t.Fatalf("FinishRun failed: %v", err)
		}
	}

	count, err := s.StepFailures("release", "deploy")
	if err != nil {
		t.Fatalf("StepFailures failed: %v", err)
	}
	if count != 2 {
		t.Errorf("expected 2 failures, got %d", count)
	}
}
