package docker

import (
	"context"
	"fmt"
	"sort"
	"strconv"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/client"
	"github.com/docker/go-connections/nat"

	"github.com/p-arndt/leethack/internal/runtime"
)

var _ runtime.Driver = (*Client)(nil)

type Client struct {
	docker *client.Client
}

func New() (*Client, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("docker client: %w", err)
	}
	return &Client{docker: cli}, nil
}

func (c *Client) Close() error {
	return c.docker.Close()
}

// Ping verifies the Docker daemon is reachable.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.docker.Ping(ctx)
	return err
}

// ImageExists reports whether image is present locally. It never pulls.
func (c *Client) ImageExists(ctx context.Context, image string) (bool, error) {
	if _, err := c.docker.ImageInspect(ctx, image); err != nil {
		if client.IsErrNotFound(err) {
			return false, nil
		}
		return false, fmt.Errorf("image inspect: %w", err)
	}
	return true, nil
}

// CreateContainer creates (but does not start) a sandbox container.
func (c *Client) CreateContainer(ctx context.Context, spec runtime.ContainerSpec) (string, error) {
	containerCfg, hostCfg, err := buildContainerConfig(spec)
	if err != nil {
		return "", err
	}
	resp, err := c.docker.ContainerCreate(ctx, containerCfg, hostCfg, nil, nil, spec.Name)
	if err != nil {
		return "", fmt.Errorf("container create: %w", err)
	}
	return resp.ID, nil
}

func (c *Client) StartContainer(ctx context.Context, containerID string) error {
	if err := c.docker.ContainerStart(ctx, containerID, container.StartOptions{}); err != nil {
		return fmt.Errorf("container start: %w", err)
	}
	return nil
}

// IsContainerRunning checks if a container is currently running. A missing
// container is reported as not running.
func (c *Client) IsContainerRunning(ctx context.Context, containerID string) (bool, error) {
	info, err := c.docker.ContainerInspect(ctx, containerID)
	if err != nil {
		if client.IsErrNotFound(err) {
			return false, nil
		}
		return false, err
	}
	return info.ContainerJSONBase != nil && info.State != nil && info.State.Running, nil
}

func (c *Client) CreateExec(ctx context.Context, containerID string, spec runtime.ExecSpec) (string, error) {
	resp, err := c.docker.ContainerExecCreate(ctx, containerID, buildExecOptions(spec))
	if err != nil {
		return "", fmt.Errorf("exec create: %w", err)
	}
	return resp.ID, nil
}

// StartExec starts the exec process and attaches to its terminal.
func (c *Client) StartExec(ctx context.Context, execID string) (runtime.ExecStream, error) {
	resp, err := c.docker.ContainerExecAttach(ctx, execID, container.ExecAttachOptions{Tty: true})
	if err != nil {
		return nil, fmt.Errorf("exec attach: %w", err)
	}
	return newExecStream(resp.Conn, resp.Reader), nil
}

func (c *Client) InspectExec(ctx context.Context, execID string) (runtime.ExecStatus, error) {
	info, err := c.docker.ContainerExecInspect(ctx, execID)
	if err != nil {
		return runtime.ExecStatus{}, fmt.Errorf("exec inspect: %w", err)
	}
	return runtime.ExecStatus{ExitCode: info.ExitCode, Running: info.Running}, nil
}

func (c *Client) StopContainer(ctx context.Context, containerID string) error {
	if err := c.docker.ContainerStop(ctx, containerID, container.StopOptions{}); err != nil {
		return fmt.Errorf("container stop: %w", err)
	}
	return nil
}

// RemoveContainer removes a container and its anonymous volumes. Removing a
// container that no longer exists is not an error.
func (c *Client) RemoveContainer(ctx context.Context, containerID string, force bool) error {
	err := c.docker.ContainerRemove(ctx, containerID, container.RemoveOptions{
		Force:         force,
		RemoveVolumes: true,
	})
	if err != nil && !client.IsErrNotFound(err) {
		return fmt.Errorf("container remove: %w", err)
	}
	return nil
}

// ListManagedContainers returns all containers, running or not, that carry
// the leethack management label.
func (c *Client) ListManagedContainers(ctx context.Context) ([]runtime.ContainerInfo, error) {
	f := filters.NewArgs()
	f.Add("label", runtime.LabelManaged+"=true")

	containers, err := c.docker.ContainerList(ctx, container.ListOptions{
		All:     true,
		Filters: f,
	})
	if err != nil {
		return nil, fmt.Errorf("container list: %w", err)
	}

	var result []runtime.ContainerInfo
	for _, ctr := range containers {
		result = append(result, runtime.ContainerInfo{
			ID:        ctr.ID,
			SessionID: ctr.Labels[runtime.LabelSessionID],
		})
	}
	return result, nil
}

func buildContainerConfig(spec runtime.ContainerSpec) (*container.Config, *container.HostConfig, error) {
	labels := map[string]string{
		runtime.LabelManaged: "true",
	}
	for k, v := range spec.Labels {
		labels[k] = v
	}

	exposed := nat.PortSet{}
	bindings := nat.PortMap{}
	for _, pb := range spec.Ports {
		port, err := nat.NewPort("tcp", strconv.Itoa(pb.ContainerPort))
		if err != nil {
			return nil, nil, fmt.Errorf("container port %d: %w", pb.ContainerPort, err)
		}
		exposed[port] = struct{}{}
		bindings[port] = append(bindings[port], nat.PortBinding{
			HostIP:   pb.HostIP,
			HostPort: strconv.Itoa(pb.HostPort),
		})
	}

	containerCfg := &container.Config{
		Image:        spec.Image,
		Env:          envList(spec.Env),
		ExposedPorts: exposed,
		WorkingDir:   spec.WorkingDir,
		Labels:       labels,
	}
	hostCfg := &container.HostConfig{
		PortBindings: bindings,
		Privileged:   false,
		Resources: container.Resources{
			Memory:    spec.MemoryBytes,
			CPUShares: spec.CPUShares,
		},
	}
	return containerCfg, hostCfg, nil
}

func buildExecOptions(spec runtime.ExecSpec) container.ExecOptions {
	return container.ExecOptions{
		User:         spec.User,
		Tty:          spec.Tty,
		AttachStdin:  spec.AttachStdin,
		AttachStdout: true,
		AttachStderr: true,
		WorkingDir:   spec.WorkingDir,
		Cmd:          spec.Cmd,
	}
}

// envList renders env as sorted KEY=VALUE pairs.
func envList(env map[string]string) []string {
	if len(env) == 0 {
		return nil
	}
	out := make([]string, 0, len(env))
	for k, v := range env {
		out = append(out, k+"="+v)
	}
	sort.Strings(out)
	return out
}
