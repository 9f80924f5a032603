package executor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/mount"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/google/uuid"
)

// DockerRunner runs each step attempt in a fresh container. The step's
// working directory is bind-mounted into the container at the same path so
// artifact paths resolve identically to the local runner.
type DockerRunner struct {
	client *client.Client
	image  string
}

// DefaultStepImage is used when no image is configured.
const DefaultStepImage = "alpine:3.20"

// NewDockerRunner connects to the Docker daemon.
func NewDockerRunner(image string) (*DockerRunner, error) {
	dockerClient, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("failed to create docker client: %w", err)
	}
	if image == "" {
		image = DefaultStepImage
	}
	return &DockerRunner{client: dockerClient, image: image}, nil
}

// Run executes the command in a container and waits for it to exit.
func (r *DockerRunner) Run(ctx context.Context, spec RunSpec) (*RunOutput, error) {
	runCtx := ctx
	var cancel context.CancelFunc
	if spec.Timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, spec.Timeout)
		defer cancel()
	}

	if err := r.pullImageIfNeeded(runCtx, r.image); err != nil {
		return nil, fmt.Errorf("failed to pull image %s: %w", r.image, err)
	}

	env := make([]string, 0, len(spec.Env))
	for k, v := range spec.Env {
		env = append(env, k+"="+v)
	}

	containerConfig := &container.Config{
		Image:      r.image,
		Cmd:        []string{"/bin/sh", "-c", spec.Command},
		Env:        env,
		WorkingDir: spec.WorkingDir,
		Labels: map[string]string{
			"managed-by": "pipeline-engine",
			"step.type":  "attempt",
		},
	}

	hostConfig := &container.HostConfig{}
	if spec.WorkingDir != "" {
		hostConfig.Mounts = []mount.Mount{
			{
				Type:   mount.TypeBind,
				Source: spec.WorkingDir,
				Target: spec.WorkingDir,
			},
		}
	}

	containerName := "step-" + uuid.NewString()
	resp, err := r.client.ContainerCreate(runCtx, containerConfig, hostConfig, nil, nil, containerName)
	if err != nil {
		return nil, fmt.Errorf("failed to create container: %w", err)
	}
	defer r.remove(resp.ID)

	if err := r.client.ContainerStart(runCtx, resp.ID, container.StartOptions{}); err != nil {
		return nil, fmt.Errorf("failed to start container: %w", err)
	}

	exitCode, waitErr := r.waitForExit(runCtx, resp.ID)

	out := &RunOutput{
		ExitCode: exitCode,
		TimedOut: errors.Is(runCtx.Err(), context.DeadlineExceeded),
	}
	r.collectLogs(context.WithoutCancel(ctx), resp.ID, out)

	if waitErr != nil && !out.TimedOut && ctx.Err() == nil {
		return nil, fmt.Errorf("failed to wait for container: %w", waitErr)
	}
	return out, nil
}

func (r *DockerRunner) waitForExit(ctx context.Context, containerID string) (int, error) {
	statusCh, errCh := r.client.ContainerWait(ctx, containerID, container.WaitConditionNotRunning)

	select {
	case <-ctx.Done():
		return -1, ctx.Err()
	case err := <-errCh:
		return -1, err
	case status := <-statusCh:
		if status.Error != nil {
			return int(status.StatusCode), fmt.Errorf("%s", status.Error.Message)
		}
		return int(status.StatusCode), nil
	}
}

// collectLogs demultiplexes the container's stdout/stderr into the output.
func (r *DockerRunner) collectLogs(ctx context.Context, containerID string, out *RunOutput) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	logs, err := r.client.ContainerLogs(ctx, containerID, container.LogsOptions{
		ShowStdout: true,
		ShowStderr: true,
	})
	if err != nil {
		return
	}
	defer logs.Close()

	var stdout, stderr bytes.Buffer
	_, _ = stdcopy.StdCopy(&boundedWriter{w: &stdout}, &boundedWriter{w: &stderr}, logs)
	out.Stdout = stdout.String()
	out.Stderr = stderr.String()
}

func (r *DockerRunner) pullImageIfNeeded(ctx context.Context, imageName string) error {
	if _, err := r.client.ImageInspect(ctx, imageName); err == nil {
		return nil
	}
	reader, err := r.client.ImagePull(ctx, imageName, image.PullOptions{})
	if err != nil {
		return err
	}
	defer reader.Close()
	_, err = io.Copy(io.Discard, reader)
	return err
}

func (r *DockerRunner) remove(containerID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	_ = r.client.ContainerRemove(ctx, containerID, container.RemoveOptions{Force: true})
}

// Ready verifies the Docker daemon is reachable.
func (r *DockerRunner) Ready(ctx context.Context) error {
	if _, err := r.client.Ping(ctx); err != nil {
		return fmt.Errorf("docker daemon unreachable: %w", err)
	}
	return nil
}

// Close releases the Docker client.
func (r *DockerRunner) Close() error {
	return r.client.Close()
}

var _ Runner = (*DockerRunner)(nil)
