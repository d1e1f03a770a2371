package sandbox

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/mount"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
)

// Container defaults.
const (
	DefaultContainerImage = "python:3.12-slim"
	containerName         = "yui-sandbox"
	containerWorkdir      = "/workspace"
	LabelManagedBy        = "yui.managed-by"
)

// ContainerExecutor runs sandbox code inside a Docker container with
// the workspace bind-mounted, when a daemon is reachable. Callers fall
// back to the subprocess Executor when IsAvailable reports false.
type ContainerExecutor struct {
	client    *client.Client
	root      string
	image     string
	admit     AdmitFunc
	available bool
	mu        sync.Mutex
}

// ContainerOption configures a ContainerExecutor.
type ContainerOption func(*ContainerExecutor)

// WithImage sets the container image.
func WithImage(img string) ContainerOption {
	return func(c *ContainerExecutor) {
		c.image = img
	}
}

// NewContainerExecutor probes for a Docker daemon. When none responds,
// the executor is returned with available=false rather than an error.
func NewContainerExecutor(root string, opts ...ContainerOption) (*ContainerExecutor, error) {
	c := &ContainerExecutor{
		root:  root,
		image: DefaultContainerImage,
	}
	for _, opt := range opts {
		opt(c)
	}

	cli, err := createDockerClient()
	if err != nil {
		return c, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := cli.Ping(ctx); err != nil {
		cli.Close()
		return c, nil
	}

	c.client = cli
	c.available = true
	return c, nil
}

// createDockerClient creates a Docker client, trying multiple socket
// locations for compatibility with Docker Desktop.
func createDockerClient() (*client.Client, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err == nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if _, err := cli.Ping(ctx); err == nil {
			return cli, nil
		}
		cli.Close()
	}

	socketPaths := []string{
		"unix://" + os.Getenv("HOME") + "/.docker/run/docker.sock",
		"unix:///var/run/docker.sock",
		"unix://" + os.Getenv("HOME") + "/.colima/docker.sock",
	}

	for _, socketPath := range socketPaths {
		cli, err := client.NewClientWithOpts(
			client.WithHost(socketPath),
			client.WithAPIVersionNegotiation(),
		)
		if err != nil {
			continue
		}

		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		_, err = cli.Ping(ctx)
		cancel()

		if err == nil {
			return cli, nil
		}
		cli.Close()
	}

	return nil, fmt.Errorf("could not connect to Docker daemon")
}

// WithAdmission installs the admission gate.
func (c *ContainerExecutor) WithAdmission(admit AdmitFunc) *ContainerExecutor {
	c.admit = admit
	return c
}

// IsAvailable returns whether container execution can be used.
func (c *ContainerExecutor) IsAvailable() bool {
	return c.available
}

// Run executes code inside the sandbox container. The script is written
// to the bind-mounted workspace on the host side, then the interpreter
// runs it in the container.
func (c *ContainerExecutor) Run(ctx context.Context, req RunRequest) RunResult {
	if !c.available {
		return RunResult{OK: false, Stderr: "docker not available", ExitCode: -1}
	}
	if c.admit != nil {
		if ok, reason := c.admit(); !ok {
			return RunResult{OK: false, Stderr: reason, ExitCode: -1}
		}
	}

	lang := normalizeLang(req.Lang)
	if lang == "" {
		return RunResult{OK: false, Stderr: fmt.Sprintf("Linguagem '%s' não suportada", req.Lang), ExitCode: -1}
	}
	if strings.TrimSpace(req.Code) == "" {
		return RunResult{OK: false, Stderr: "Código vazio", ExitCode: -1}
	}

	scriptName := "_run_script.py"
	cmd := []string{"python3", containerWorkdir + "/" + scriptName}
	if lang == "javascript" {
		scriptName = "_run_script.js"
		cmd = []string{"node", containerWorkdir + "/" + scriptName}
	}

	if err := os.WriteFile(filepath.Join(c.root, scriptName), []byte(req.Code), 0o644); err != nil {
		return RunResult{OK: false, Stderr: err.Error(), ExitCode: -1}
	}

	timeout := clampTimeout(req.Timeout, req.Explicit)
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	result, err := c.exec(runCtx, cmd)
	if runCtx.Err() == context.DeadlineExceeded {
		return RunResult{
			OK:       false,
			Stderr:   fmt.Sprintf("Timeout na execução (%ds).", int(timeout.Seconds())),
			ExitCode: -1,
			TimedOut: true,
			Feedback: "O código demorou demais para responder. Verifique loops infinitos.",
		}
	}
	if err != nil {
		return RunResult{OK: false, Stderr: err.Error(), ExitCode: -1}
	}
	return *result
}

// exec runs one command in the sandbox container, creating it on first
// use.
func (c *ContainerExecutor) exec(ctx context.Context, cmd []string) (*RunResult, error) {
	c.mu.Lock()
	containerID, err := c.ensureContainer(ctx)
	c.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("start container: %w", err)
	}

	execResp, err := c.client.ContainerExecCreate(ctx, containerID, container.ExecOptions{
		Cmd:          cmd,
		WorkingDir:   containerWorkdir,
		AttachStdout: true,
		AttachStderr: true,
	})
	if err != nil {
		return nil, fmt.Errorf("create exec: %w", err)
	}

	attachResp, err := c.client.ContainerExecAttach(ctx, execResp.ID, container.ExecStartOptions{})
	if err != nil {
		return nil, fmt.Errorf("attach exec: %w", err)
	}
	defer attachResp.Close()

	var stdout, stderr strings.Builder
	if _, err := stdcopy.StdCopy(&stdout, &stderr, attachResp.Reader); err != nil {
		return nil, fmt.Errorf("read output: %w", err)
	}

	inspectResp, err := c.client.ContainerExecInspect(ctx, execResp.ID)
	if err != nil {
		return nil, fmt.Errorf("inspect exec: %w", err)
	}

	return &RunResult{
		OK:       inspectResp.ExitCode == 0,
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		ExitCode: inspectResp.ExitCode,
	}, nil
}

// ensureContainer finds or creates the long-lived sandbox container
// with the workspace bind-mounted. Caller holds c.mu.
func (c *ContainerExecutor) ensureContainer(ctx context.Context) (string, error) {
	containers, err := c.client.ContainerList(ctx, container.ListOptions{
		All:     true,
		Filters: filters.NewArgs(filters.Arg("name", containerName)),
	})
	if err != nil {
		return "", err
	}
	for _, existing := range containers {
		for _, n := range existing.Names {
			if n != "/"+containerName {
				continue
			}
			inspect, err := c.client.ContainerInspect(ctx, existing.ID)
			if err != nil {
				continue
			}
			if inspect.State.Running {
				return existing.ID, nil
			}
			if err := c.client.ContainerStart(ctx, existing.ID, container.StartOptions{}); err != nil {
				return "", err
			}
			return existing.ID, nil
		}
	}

	if err := c.ensureImage(ctx); err != nil {
		return "", err
	}

	absRoot, err := filepath.Abs(c.root)
	if err != nil {
		return "", err
	}

	resp, err := c.client.ContainerCreate(ctx,
		&container.Config{
			Image:      c.image,
			WorkingDir: containerWorkdir,
			Labels:     map[string]string{LabelManagedBy: "yui"},
			Tty:        true,
			Cmd:        []string{"tail", "-f", "/dev/null"},
			User:       "1000:1000",
		},
		&container.HostConfig{
			Mounts: []mount.Mount{{
				Type:   mount.TypeBind,
				Source: absRoot,
				Target: containerWorkdir,
			}},
			RestartPolicy: container.RestartPolicy{Name: container.RestartPolicyUnlessStopped},
		},
		nil, nil, containerName)
	if err != nil {
		return "", err
	}

	if err := c.client.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		return "", err
	}
	return resp.ID, nil
}

func (c *ContainerExecutor) ensureImage(ctx context.Context) error {
	_, _, err := c.client.ImageInspectWithRaw(ctx, c.image)
	if err == nil {
		return nil
	}

	reader, err := c.client.ImagePull(ctx, c.image, image.PullOptions{})
	if err != nil {
		return err
	}
	defer reader.Close()

	// Consume the reader to complete the pull
	_, err = io.Copy(io.Discard, reader)
	return err
}

// Close releases the Docker client.
func (c *ContainerExecutor) Close() error {
	if c.client != nil {
		return c.client.Close()
	}
	return nil
}
