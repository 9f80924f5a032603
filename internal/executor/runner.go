package executor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"syscall"
	"time"
)

// RunSpec describes one command invocation with its fully resolved
// environment.
type RunSpec struct {
	Command    string
	WorkingDir string
	Env        map[string]string // resolved global ∪ step environment
	Timeout    time.Duration
}

// RunOutput is the raw outcome of one command invocation.
type RunOutput struct {
	Stdout   string
	Stderr   string
	ExitCode int
	TimedOut bool

	// CPU time of the process, zero when the backend cannot observe it.
	UserTime   time.Duration
	SystemTime time.Duration
}

// Runner executes a single command attempt. Implementations must honor the
// spec timeout and context cancellation.
type Runner interface {
	// Run executes the command. A non-zero exit is not an error; errors are
	// reserved for failures to run at all (bad working dir, backend down).
	Run(ctx context.Context, spec RunSpec) (*RunOutput, error)

	// Ready checks the backend is able to run commands.
	Ready(ctx context.Context) error

	// Close releases backend resources.
	Close() error
}

// maxCapturedOutput caps captured stdout/stderr per attempt so a chatty
// step cannot exhaust memory.
const maxCapturedOutput = 1 << 20 // 1 MB

// LocalRunner runs commands on the host via the shell.
type LocalRunner struct {
	Shell string // default: /bin/sh
}

// NewLocalRunner creates a runner using the default shell.
func NewLocalRunner() *LocalRunner {
	return &LocalRunner{}
}

func (r *LocalRunner) shell() string {
	if r.Shell != "" {
		return r.Shell
	}
	return "/bin/sh"
}

// Run executes the command with the process environment extended by the
// resolved step environment (step values win on conflict).
func (r *LocalRunner) Run(ctx context.Context, spec RunSpec) (*RunOutput, error) {
	runCtx := ctx
	var cancel context.CancelFunc
	if spec.Timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, spec.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(runCtx, r.shell(), "-c", spec.Command)
	cmd.Dir = spec.WorkingDir
	cmd.Env = composeProcessEnv(spec.Env)
	cmd.WaitDelay = 5 * time.Second

	// Kill the whole process group on timeout or cancellation so children
	// of the shell do not outlive the step.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		if cmd.Process == nil {
			return nil
		}
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &boundedWriter{w: &stdout}
	cmd.Stderr = &boundedWriter{w: &stderr}

	err := cmd.Run()

	out := &RunOutput{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		ExitCode: -1,
		TimedOut: errors.Is(runCtx.Err(), context.DeadlineExceeded),
	}
	if cmd.ProcessState != nil {
		out.ExitCode = cmd.ProcessState.ExitCode()
		out.UserTime = cmd.ProcessState.UserTime()
		out.SystemTime = cmd.ProcessState.SystemTime()
	}

	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) || out.TimedOut || ctx.Err() != nil {
			// Non-zero exit, timeout, and cancellation are all expressed
			// through the output, not as runner errors.
			return out, nil
		}
		return nil, fmt.Errorf("failed to start command: %w", err)
	}
	return out, nil
}

// Ready verifies the shell exists.
func (r *LocalRunner) Ready(ctx context.Context) error {
	if _, err := exec.LookPath(r.shell()); err != nil {
		return fmt.Errorf("shell unavailable: %w", err)
	}
	return nil
}

// Close is a no-op for the local runner.
func (r *LocalRunner) Close() error { return nil }

// composeProcessEnv layers the resolved step environment over the process
// environment.
func composeProcessEnv(resolved map[string]string) []string {
	env := os.Environ()
	for k, v := range resolved {
		env = append(env, k+"="+v)
	}
	return env
}

// boundedWriter discards bytes past maxCapturedOutput.
type boundedWriter struct {
	w *bytes.Buffer
	n int
}

func (b *boundedWriter) Write(p []byte) (int, error) {
	remaining := maxCapturedOutput - b.n
	if remaining > 0 {
		if len(p) < remaining {
			remaining = len(p)
		}
		b.w.Write(p[:remaining])
	}
	b.n += len(p)
	return len(p), nil
}

var _ Runner = (*LocalRunner)(nil)
