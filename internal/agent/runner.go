package agent

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// RunSpec describes one agent CLI invocation.
type RunSpec struct {
	SessionID uuid.UUID
	Args      []string // argv; Args[0] is the executable
	Env       map[string]string
	WorkDir   string // host project root
}

// Process is a started agent run. Stdout must be read to EOF before Wait.
type Process interface {
	Stdout() io.Reader
	Wait() error
}

// Runner starts agent processes. Cancelling ctx stops the process.
type Runner interface {
	Start(ctx context.Context, spec RunSpec) (Process, error)
	Close() error
}

// LocalRunner runs the agent CLI as a child process.
type LocalRunner struct {
	// WaitDelay bounds how long Wait blocks on pipes after the process is
	// killed.
	WaitDelay time.Duration
}

var _ Runner = (*LocalRunner)(nil)

func NewLocalRunner() *LocalRunner {
	return &LocalRunner{WaitDelay: 5 * time.Second}
}

type localProcess struct {
	cmd    *exec.Cmd
	stdout io.Reader
}

func (p *localProcess) Stdout() io.Reader { return p.stdout }

func (p *localProcess) Wait() error {
	if err := p.cmd.Wait(); err != nil {
		return fmt.Errorf("agent.localProcess.Wait: %w", err)
	}
	return nil
}

func (r *LocalRunner) Start(ctx context.Context, spec RunSpec) (Process, error) {
	if len(spec.Args) == 0 {
		return nil, errors.New("agent.LocalRunner.Start: empty command")
	}
	cmd := exec.CommandContext(ctx, spec.Args[0], spec.Args[1:]...) //nolint:gosec // operator-configured agent command
	cmd.Dir = spec.WorkDir
	cmd.Env = os.Environ()
	for k, v := range spec.Env {
		cmd.Env = append(cmd.Env, k+"="+v)
	}
	cmd.Stderr = log.Logger.With().Str("session_id", spec.SessionID.String()).Str("stream", "stderr").Logger()
	cmd.WaitDelay = r.WaitDelay

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("agent.LocalRunner.Start: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("agent.LocalRunner.Start: %w", err)
	}
	log.Info().Str("session_id", spec.SessionID.String()).Int("pid", cmd.Process.Pid).Msg("agent.LocalRunner: started")
	return &localProcess{cmd: cmd, stdout: stdout}, nil
}

func (r *LocalRunner) Close() error { return nil }
