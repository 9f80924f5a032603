package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

func writeDocument(t *testing.T, doc string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "pipeline.yaml")
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func execute(t *testing.T, args ...string) error {
	t.Helper()
	cmd := NewRootCommand()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	return cmd.Execute()
}

func TestRunCommand_EnvOverride(t *testing.T) {
	path := writeDocument(t, `
name: greeter
version: "1.0"
steps:
  - name: check
    command: test "$GREETING" = hello
`)

	if err := execute(t, "run", path, "--env", "GREETING=hello"); err != nil {
		t.Errorf("expected overridden environment to reach the step: %v", err)
	}

	if err := execute(t, "run", path); err == nil {
		t.Error("expected failure without the environment override")
	}
}

func TestRunCommand_RejectsMalformedEnvFlag(t *testing.T) {
	path := writeDocument(t, `
name: greeter
version: "1.0"
steps:
  - name: check
    command: "true"
`)

	if err := execute(t, "run", path, "--env", "no-equals-sign"); err == nil {
		t.Error("expected an error for a malformed --env entry")
	}
}

func TestValidateCommand(t *testing.T) {
	good := writeDocument(t, `
name: ok
version: "1.0"
steps:
  - name: only
    command: "true"
`)
	if err := execute(t, "validate", good); err != nil {
		t.Errorf("expected valid document to pass: %v", err)
	}

	bad := writeDocument(t, `
name: broken
version: "1.0"
steps:
  - name: a
    command: "true"
    depends_on: [ghost]
`)
	if err := execute(t, "validate", bad); err == nil {
		t.Error("expected missing dependency to fail validation")
	}
}
