package process

import (
	stderrors "errors"
	"io"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/grovetools/relay/command"
	"github.com/grovetools/relay/errors"
	"github.com/grovetools/relay/logging"
	"github.com/sirupsen/logrus"
)

const readChunkSize = 32 * 1024

// Invocation is a fully resolved command line for one agent turn.
type Invocation struct {
	Command string
	Args    []string
	Dir     string
	Env     []string
}

// Handlers receive a process's output and exit. Stdout and stderr callbacks
// may run concurrently with each other; OnExit runs once, after both streams
// are drained.
type Handlers struct {
	OnStdout func(chunk []byte)
	OnStderr func(chunk []byte)
	OnExit   func(code int, err error)
}

// Handle is a live, supervised process.
type Handle struct {
	cmd       *exec.Cmd
	pid       int
	startedAt time.Time
	done      chan struct{}

	mu       sync.Mutex
	exitCode int
	exitErr  error
}

// Pid returns the process id, which is also its process group id.
func (h *Handle) Pid() int {
	return h.pid
}

// StartedAt returns when the process was started.
func (h *Handle) StartedAt() time.Time {
	return h.startedAt
}

// Done is closed once the process has exited and its output is drained.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Alive reports whether the process has not yet been reaped.
func (h *Handle) Alive() bool {
	select {
	case <-h.done:
		return false
	default:
		return true
	}
}

// Wait blocks until exit and returns the exit code and any non-exit error.
func (h *Handle) Wait() (int, error) {
	<-h.done
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.exitCode, h.exitErr
}

// Supervisor spawns agent processes as process-group leaders and kills them
// as a group.
type Supervisor struct {
	executor  command.Executor
	logger    *logrus.Entry
	groupKill func(pid int) error
}

// Option configures a Supervisor.
type Option func(*Supervisor)

// WithExecutor sets the command factory.
func WithExecutor(e command.Executor) Option {
	return func(s *Supervisor) { s.executor = e }
}

// WithLogger sets the logger.
func WithLogger(l *logrus.Entry) Option {
	return func(s *Supervisor) { s.logger = l }
}

// WithGroupKill replaces the process-group kill used by Terminate.
func WithGroupKill(fn func(pid int) error) Option {
	return func(s *Supervisor) { s.groupKill = fn }
}

// NewSupervisor creates a Supervisor.
func NewSupervisor(opts ...Option) *Supervisor {
	s := &Supervisor{
		executor:  &command.RealExecutor{},
		groupKill: killGroup,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logging.NewLogger("supervisor")
	}
	return s
}

// Spawn starts inv and streams its output to h. The returned error is a
// SPAWN_FAILED RelayError; once Spawn succeeds every outcome arrives via OnExit.
func (s *Supervisor) Spawn(inv Invocation, h Handlers) (*Handle, error) {
	cmd := s.executor.Command(inv.Command, inv.Args...)
	cmd.Dir = inv.Dir
	if inv.Env != nil {
		cmd.Env = inv.Env
	}
	setProcessGroup(cmd)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, errors.SpawnFailed(inv.Command, err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, errors.SpawnFailed(inv.Command, err)
	}

	if err := cmd.Start(); err != nil {
		return nil, errors.SpawnFailed(inv.Command, err).WithDetail("dir", inv.Dir)
	}

	handle := &Handle{
		cmd:       cmd,
		pid:       cmd.Process.Pid,
		startedAt: time.Now(),
		done:      make(chan struct{}),
	}

	s.logger.WithFields(logrus.Fields{
		"pid":     handle.pid,
		"command": inv.Command,
		"dir":     inv.Dir,
	}).Debug("Spawned agent process")

	var wg sync.WaitGroup
	wg.Add(2)
	go pump(stdout, h.OnStdout, &wg)
	go pump(stderr, h.OnStderr, &wg)

	go func() {
		wg.Wait()
		waitErr := cmd.Wait()

		code := 0
		var exitErr error
		if waitErr != nil {
			var ee *exec.ExitError
			if stderrors.As(waitErr, &ee) {
				code = ee.ExitCode()
			} else {
				code = -1
				exitErr = waitErr
			}
		}

		handle.mu.Lock()
		handle.exitCode = code
		handle.exitErr = exitErr
		handle.mu.Unlock()

		s.logger.WithFields(logrus.Fields{
			"pid":      handle.pid,
			"code":     code,
			"duration": time.Since(handle.startedAt).Round(time.Millisecond),
		}).Debug("Agent process exited")

		close(handle.done)
		if h.OnExit != nil {
			h.OnExit(code, exitErr)
		}
	}()

	return handle, nil
}

// Terminate kills the process group, falling back to the single process.
// Failures are logged, never returned.
func (s *Supervisor) Terminate(h *Handle) {
	if h == nil || !h.Alive() {
		return
	}

	log := s.logger.WithField("pid", h.pid)

	err := s.groupKill(h.pid)
	if err == nil {
		log.Debug("Killed agent process group")
		return
	}
	log.WithError(err).Debug("Process group kill failed, killing process directly")

	if err := h.cmd.Process.Kill(); err != nil && !stderrors.Is(err, os.ErrProcessDone) {
		log.WithError(err).Warn("Failed to kill agent process")
	}
}

func pump(r io.Reader, fn func([]byte), wg *sync.WaitGroup) {
	defer wg.Done()
	buf := make([]byte, readChunkSize)
	for {
		n, err := r.Read(buf)
		if n > 0 && fn != nil {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			fn(chunk)
		}
		if err != nil {
			return
		}
	}
}
