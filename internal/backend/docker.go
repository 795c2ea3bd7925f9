package backend

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
)

// Docker runs commands inside containers using the Docker SDK. The spec's
// working directory is bind-mounted read/write at the same path.
type Docker struct {
	client *client.Client
}

// NewDocker creates a Docker-based backend. The client is initialized from
// standard environment variables (DOCKER_HOST, etc.).
func NewDocker() (*Docker, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("failed to create docker client: %w", err)
	}
	return &Docker{client: cli}, nil
}

// Ping reports whether the Docker daemon is reachable.
func (d *Docker) Ping(ctx context.Context) error {
	_, err := d.client.Ping(ctx)
	return err
}

// Start implements Backend using Docker containers.
func (d *Docker) Start(ctx context.Context, spec Spec) (Handle, error) {
	if spec.Image == "" {
		return nil, fmt.Errorf("docker backend requires an image")
	}

	// Pull only when the image is missing locally.
	if _, err := d.client.ImageInspect(ctx, spec.Image); err != nil {
		reader, err := d.client.ImagePull(ctx, spec.Image, image.PullOptions{})
		if err != nil {
			return nil, fmt.Errorf("failed to pull image %s: %w", spec.Image, err)
		}
		defer reader.Close()
		io.Copy(io.Discard, reader)
	}

	cmd := append([]string{spec.Command}, spec.Args...)
	containerConfig := &container.Config{
		Image:      spec.Image,
		Cmd:        cmd,
		Env:        envList(spec.Env),
		WorkingDir: spec.Dir,
	}
	var hostConfig *container.HostConfig
	if spec.Dir != "" {
		hostConfig = &container.HostConfig{
			Binds: []string{fmt.Sprintf("%s:%s:rw", spec.Dir, spec.Dir)},
		}
	}

	resp, err := d.client.ContainerCreate(ctx, containerConfig, hostConfig, nil, nil, "")
	if err != nil {
		return nil, fmt.Errorf("failed to create container: %w", err)
	}

	if err := d.client.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		d.client.ContainerRemove(context.Background(), resp.ID, container.RemoveOptions{Force: true})
		return nil, fmt.Errorf("failed to start container: %w", err)
	}

	return &dockerHandle{client: d.client, containerID: resp.ID}, nil
}

type dockerHandle struct {
	client      *client.Client
	containerID string

	stderr     bytes.Buffer
	streamOnce sync.Once
	streamDone chan struct{}
}

// StreamOutput follows the container's output. Only stdout flows to the
// returned reader; stderr is kept for error reporting.
func (h *dockerHandle) StreamOutput(ctx context.Context) (io.ReadCloser, error) {
	logs, err := h.client.ContainerLogs(ctx, h.containerID, container.LogsOptions{
		ShowStdout: true,
		ShowStderr: true,
		Follow:     true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to attach logs: %w", err)
	}

	pr, pw := io.Pipe()
	h.streamOnce.Do(func() { h.streamDone = make(chan struct{}) })
	go func() {
		defer close(h.streamDone)
		defer logs.Close()
		// Demultiplex the attach stream: stdout to the caller, stderr
		// into the capture buffer.
		_, err := stdcopy.StdCopy(pw, &h.stderr, logs)
		pw.CloseWithError(err)
	}()
	return pr, nil
}

func (h *dockerHandle) Wait(ctx context.Context) (ExitResult, error) {
	statusCh, errCh := h.client.ContainerWait(ctx, h.containerID, container.WaitConditionNotRunning)

	defer func() {
		h.client.ContainerRemove(context.Background(), h.containerID, container.RemoveOptions{Force: true})
	}()

	select {
	case err := <-errCh:
		return ExitResult{ExitCode: -1}, err
	case status := <-statusCh:
		if h.streamDone != nil {
			<-h.streamDone
		}
		res := ExitResult{ExitCode: int(status.StatusCode), Stderr: h.stderr.String()}
		if status.Error != nil && res.Stderr == "" {
			res.Stderr = status.Error.Message
		}
		return res, nil
	case <-ctx.Done():
		return ExitResult{ExitCode: -1}, ctx.Err()
	}
}

func (h *dockerHandle) Stop(ctx context.Context) error {
	timeout := 5
	return h.client.ContainerStop(ctx, h.containerID, container.StopOptions{Timeout: &timeout})
}

var _ Backend = (*Docker)(nil)
