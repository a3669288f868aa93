package agent

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/mount"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/rs/zerolog/log"
)

// containerWorkDir is where the project root is bind-mounted.
const containerWorkDir = "/workspace"

// DockerRunner runs the agent CLI in a throwaway container with the project
// root bind-mounted at /workspace.
type DockerRunner struct {
	client    *client.Client
	image     string
	resources container.Resources
}

var _ Runner = (*DockerRunner)(nil)

func NewDockerRunner(host, image, cpuLimit, memLimit string) (*DockerRunner, error) {
	res, err := parseResources(cpuLimit, memLimit)
	if err != nil {
		return nil, fmt.Errorf("agent.NewDockerRunner: %w", err)
	}

	c, err := client.NewClientWithOpts(
		client.WithHost(host),
		client.WithAPIVersionNegotiation(),
	)
	if err != nil {
		return nil, fmt.Errorf("agent.NewDockerRunner: %w", err)
	}

	return &DockerRunner{client: c, image: image, resources: res}, nil
}

type dockerProcess struct {
	ctx         context.Context
	runner      *DockerRunner
	containerID string
	stdout      *io.PipeReader
}

func (p *dockerProcess) Stdout() io.Reader { return p.stdout }

// Wait blocks until the container exits, then removes it. A cancelled
// context stops the container first.
func (p *dockerProcess) Wait() error {
	cleanupCtx := context.WithoutCancel(p.ctx)
	defer p.runner.remove(cleanupCtx, p.containerID)

	waitCh, errCh := p.runner.client.ContainerWait(cleanupCtx, p.containerID, container.WaitConditionNotRunning)
	select {
	case result := <-waitCh:
		if result.Error != nil {
			return fmt.Errorf("agent.dockerProcess.Wait: %s", result.Error.Message)
		}
		if result.StatusCode != 0 {
			return fmt.Errorf("agent.dockerProcess.Wait: agent exited with code %d", result.StatusCode)
		}
		return nil
	case err := <-errCh:
		return fmt.Errorf("agent.dockerProcess.Wait: %w", err)
	case <-p.ctx.Done():
		p.runner.stop(cleanupCtx, p.containerID)
		return fmt.Errorf("agent.dockerProcess.Wait: %w", p.ctx.Err())
	}
}

// Start creates and starts the container and streams its demultiplexed
// stdout. Stderr goes to the log.
func (r *DockerRunner) Start(ctx context.Context, spec RunSpec) (Process, error) {
	if len(spec.Args) == 0 {
		return nil, errors.New("agent.DockerRunner.Start: empty command")
	}

	env := make([]string, 0, len(spec.Env)+1)
	env = append(env, "VRC_SESSION_ID="+spec.SessionID.String())
	for k, v := range spec.Env {
		env = append(env, k+"="+v)
	}

	cfg := &container.Config{
		Image:      r.image,
		Env:        env,
		Cmd:        spec.Args,
		WorkingDir: containerWorkDir,
	}
	hostCfg := &container.HostConfig{
		Resources: r.resources,
		Mounts: []mount.Mount{
			{
				Type:   mount.TypeBind,
				Source: spec.WorkDir,
				Target: containerWorkDir,
			},
		},
		// The agent needs the model API and this server's /mcp endpoint.
		NetworkMode: "host",
	}

	name := "vrcreator-agent-" + spec.SessionID.String()
	resp, err := r.client.ContainerCreate(ctx, cfg, hostCfg, &network.NetworkingConfig{}, nil, name)
	if err != nil {
		return nil, fmt.Errorf("agent.DockerRunner.Start: create: %w", err)
	}

	if err := r.client.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		r.remove(context.WithoutCancel(ctx), resp.ID)
		return nil, fmt.Errorf("agent.DockerRunner.Start: start: %w", err)
	}

	logs, err := r.client.ContainerLogs(ctx, resp.ID, container.LogsOptions{
		ShowStdout: true,
		ShowStderr: true,
		Follow:     true,
	})
	if err != nil {
		r.stop(context.WithoutCancel(ctx), resp.ID)
		r.remove(context.WithoutCancel(ctx), resp.ID)
		return nil, fmt.Errorf("agent.DockerRunner.Start: logs: %w", err)
	}

	pr, pw := io.Pipe()
	stderr := log.Logger.With().Str("session_id", spec.SessionID.String()).Str("stream", "stderr").Logger()
	go func() {
		defer logs.Close()
		_, copyErr := stdcopy.StdCopy(pw, stderr, logs)
		pw.CloseWithError(copyErr)
	}()

	log.Info().Str("session_id", spec.SessionID.String()).Str("container_id", resp.ID).Msg("agent.DockerRunner: started")
	return &dockerProcess{ctx: ctx, runner: r, containerID: resp.ID, stdout: pr}, nil
}

func (r *DockerRunner) stop(ctx context.Context, id string) {
	timeout := 10 // seconds
	if err := r.client.ContainerStop(ctx, id, container.StopOptions{Timeout: &timeout}); err != nil {
		log.Error().Err(err).Str("container_id", id).Msg("agent.DockerRunner: failed to stop container")
	}
}

func (r *DockerRunner) remove(ctx context.Context, id string) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := r.client.ContainerRemove(ctx, id, container.RemoveOptions{Force: true}); err != nil {
		log.Error().Err(err).Str("container_id", id).Msg("agent.DockerRunner: failed to remove container")
	}
}

// Close closes the Docker client.
func (r *DockerRunner) Close() error {
	if err := r.client.Close(); err != nil {
		return fmt.Errorf("agent.DockerRunner.Close: %w", err)
	}
	return nil
}
