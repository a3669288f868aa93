package agent

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/gosuda/vrcreator/internal/domain"
	"github.com/gosuda/vrcreator/internal/notify"
)

// ErrSessionManagerClosed is returned by Start after Close.
var ErrSessionManagerClosed = errors.New("agent: session manager closed") //nolint:gochecknoglobals // sentinel error

// maxStreamLine bounds one stream-json line. Tool inputs carrying whole
// module files can be large.
const maxStreamLine = 1 << 20

// SessionStatus is the lifecycle state of an agent run.
type SessionStatus string

const (
	SessionRunning   SessionStatus = "running"
	SessionCompleted SessionStatus = "completed"
	SessionFailed    SessionStatus = "failed"
	SessionCancelled SessionStatus = "cancelled"
)

// Session is one agent run driven by a user prompt.
type Session struct {
	ID             uuid.UUID     `json:"id"`
	AgentSessionID string        `json:"agentSessionId,omitempty"`
	Prompt         string        `json:"prompt"`
	Status         SessionStatus `json:"status"`
	StartedAt      time.Time     `json:"startedAt"`
	EndedAt        *time.Time    `json:"endedAt,omitempty"`
	Result         string        `json:"result,omitempty"`
	Error          string        `json:"error,omitempty"`
}

// SessionOptions configures a SessionManager.
type SessionOptions struct {
	Runner   Runner
	Command  CommandOptions
	WorkDir  string
	Env      map[string]string
	Notify   func(domain.Event) // relay sink; may be nil
	Notifier *notify.Notifier   // chat notifications; may be nil
}

// SessionManager runs at most one agent session at a time and reports its
// progress as relay events.
type SessionManager struct {
	opts SessionOptions

	ctx    context.Context //nolint:containedctx // parent of every run
	stop   context.CancelFunc
	mu     sync.Mutex
	cur    *Session
	cancel context.CancelFunc
	closed bool
	wg     sync.WaitGroup
}

func NewSessionManager(ctx context.Context, opts SessionOptions) *SessionManager {
	if opts.Notify == nil {
		opts.Notify = func(domain.Event) {}
	}
	ctx, stop := context.WithCancel(ctx)
	return &SessionManager{opts: opts, ctx: ctx, stop: stop}
}

// Start launches a run for prompt. It fails with domain.ErrConflict while
// another run is active. The run itself is bound to the manager, not ctx.
func (m *SessionManager) Start(ctx context.Context, prompt string) (Session, error) {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return Session{}, fmt.Errorf("agent.SessionManager.Start: %w", domain.ErrEmptyPrompt)
	}
	if err := ctx.Err(); err != nil {
		return Session{}, fmt.Errorf("agent.SessionManager.Start: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return Session{}, fmt.Errorf("agent.SessionManager.Start: %w", ErrSessionManagerClosed)
	}
	if m.cur != nil && m.cur.Status == SessionRunning {
		return Session{}, fmt.Errorf("agent.SessionManager.Start: session %s is running: %w", m.cur.ID, domain.ErrConflict)
	}

	args, err := BuildCommand(m.opts.Command, prompt)
	if err != nil {
		return Session{}, fmt.Errorf("agent.SessionManager.Start: %w", err)
	}

	s := &Session{
		ID:        uuid.New(),
		Prompt:    prompt,
		Status:    SessionRunning,
		StartedAt: time.Now(),
	}

	runCtx, cancel := context.WithCancel(m.ctx)
	proc, err := m.opts.Runner.Start(runCtx, RunSpec{
		SessionID: s.ID,
		Args:      args,
		Env:       m.opts.Env,
		WorkDir:   m.opts.WorkDir,
	})
	if err != nil {
		cancel()
		return Session{}, fmt.Errorf("agent.SessionManager.Start: %w", err)
	}

	m.cur = s
	m.cancel = cancel
	snapshot := *s

	log.Info().Str("session_id", s.ID.String()).Msg("agent.SessionManager: session started")
	m.opts.Notify(statusEvent(snapshot))

	m.wg.Add(1)
	go m.run(runCtx, cancel, s, proc)
	return snapshot, nil
}

// Current returns the latest session, running or finished.
func (m *SessionManager) Current() (Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cur == nil {
		return Session{}, false
	}
	return *m.cur, true
}

// Cancel stops the running session. It returns domain.ErrNotFound when
// nothing is running.
func (m *SessionManager) Cancel() (Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cur == nil || m.cur.Status != SessionRunning {
		return Session{}, fmt.Errorf("agent.SessionManager.Cancel: no running session: %w", domain.ErrNotFound)
	}
	m.cancel()
	return *m.cur, nil
}

// Close cancels any running session, waits for it to finish and closes the
// runner.
func (m *SessionManager) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()

	m.stop()
	m.wg.Wait()

	if err := m.opts.Runner.Close(); err != nil {
		return fmt.Errorf("agent.SessionManager.Close: %w", err)
	}
	return nil
}

func (m *SessionManager) run(ctx context.Context, cancel context.CancelFunc, s *Session, proc Process) {
	defer m.wg.Done()
	defer cancel()

	// Chat calls must not be cut short by a cancelled run.
	notifyCtx := context.WithoutCancel(ctx)
	receipt := m.notifyStart(notifyCtx, s)

	parser := NewStreamParser()
	sc := bufio.NewScanner(proc.Stdout())
	sc.Buffer(make([]byte, 0, 64*1024), maxStreamLine)
	for sc.Scan() {
		for _, e := range parser.Feed(sc.Text()) {
			e.SessionID = s.ID.String()
			m.opts.Notify(e)
		}
		if sid := parser.SessionID(); sid != "" {
			m.mu.Lock()
			s.AgentSessionID = sid
			m.mu.Unlock()
		}
	}
	if err := sc.Err(); err != nil {
		log.Warn().Err(err).Str("session_id", s.ID.String()).Msg("agent.SessionManager: stream read failed")
		_, _ = io.Copy(io.Discard, proc.Stdout())
	}

	waitErr := proc.Wait()

	m.mu.Lock()
	now := time.Now()
	s.EndedAt = &now
	result := parser.Result()
	switch {
	case ctx.Err() != nil:
		s.Status = SessionCancelled
	case waitErr != nil:
		s.Status = SessionFailed
		s.Error = waitErr.Error()
	case result == nil:
		s.Status = SessionFailed
		s.Error = "agent exited without a result"
	case result.IsError:
		s.Status = SessionFailed
		s.Error = result.Text
	default:
		s.Status = SessionCompleted
		s.Result = result.Text
	}
	final := *s
	m.mu.Unlock()

	log.Info().
		Str("session_id", final.ID.String()).
		Str("status", string(final.Status)).
		Dur("duration", now.Sub(final.StartedAt)).
		Msg("agent.SessionManager: session finished")

	m.opts.Notify(statusEvent(final))
	m.notifyEnd(notifyCtx, receipt, final)
}

func (m *SessionManager) notifyStart(ctx context.Context, s *Session) notify.Receipt {
	if m.opts.Notifier == nil {
		return notify.Receipt{}
	}
	r, err := m.opts.Notifier.Notify(ctx, fmt.Sprintf("Agent session %s\n> %s", SessionRunning, s.Prompt))
	if err != nil {
		log.Warn().Err(err).Str("session_id", s.ID.String()).Msg("agent.SessionManager: notify failed")
	}
	return r
}

func (m *SessionManager) notifyEnd(ctx context.Context, r notify.Receipt, s Session) {
	if m.opts.Notifier == nil {
		return
	}
	if err := m.opts.Notifier.Update(ctx, r, fmt.Sprintf("Agent session %s\n> %s", s.Status, s.Prompt)); err != nil {
		log.Warn().Err(err).Str("session_id", s.ID.String()).Msg("agent.SessionManager: notify update failed")
	}
	detail := s.Result
	if s.Error != "" {
		detail = s.Error
	}
	if detail == "" {
		return
	}
	if err := m.opts.Notifier.Reply(ctx, r, detail); err != nil {
		log.Warn().Err(err).Str("session_id", s.ID.String()).Msg("agent.SessionManager: notify reply failed")
	}
}

func statusEvent(s Session) domain.Event {
	e := domain.NewEvent(domain.ActionAgentStatus)
	e.SessionID = s.ID.String()
	e.Status = string(s.Status)
	e.Text = s.Prompt
	switch {
	case s.Error != "":
		e.Message = s.Error
	case s.Result != "":
		e.Message = s.Result
	}
	return e
}
