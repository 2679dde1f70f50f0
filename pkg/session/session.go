package session

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/grovetools/relay/config"
	"github.com/grovetools/relay/logging"
	"github.com/grovetools/relay/pkg/driver"
	"github.com/grovetools/relay/pkg/models"
	"github.com/grovetools/relay/pkg/normalize"
	"github.com/grovetools/relay/pkg/process"
	"github.com/sirupsen/logrus"
)

const mailboxSize = 256

// Spawner starts and kills agent processes.
type Spawner interface {
	Spawn(inv process.Invocation, h process.Handlers) (*process.Handle, error)
	Terminate(h *process.Handle)
}

// DriverSource resolves the driver for an agent family.
type DriverSource interface {
	Driver(family models.Family) driver.Driver
}

// Emitter receives everything a session publishes, in order.
type Emitter interface {
	Log(ev models.LogEvent)
	StateChanged(change models.StateChange)
}

// Tracker is told when agent processes start and exit.
type Tracker interface {
	ProcessStarted(sessionID string, family models.Family, pid int, inv process.Invocation)
	ProcessExited(sessionID string, pid int)
}

// Deps are the collaborators a session needs. Spawner, Drivers and Emitter
// are required.
type Deps struct {
	Spawner  Spawner
	Drivers  DriverSource
	Decoders *normalize.Registry
	Emitter  Emitter
	Tracker  Tracker
	// Config returns the current configuration; defaults when nil.
	Config func() *config.Config
	// Secrets returns the filter applied to snapshots; the default
	// patterns are used when nil.
	Secrets  func() *SecretFilter
	HomesDir string
	Logger   *logrus.Entry
}

// Session is a single-writer actor around the state machine. Every mutation
// runs on the session's own goroutine; readers see a copy published after
// each step.
type Session struct {
	id   string
	deps Deps
	log  *logrus.Entry

	mailbox   chan func()
	quit      chan struct{}
	stopped   chan struct{}
	closeOnce sync.Once

	// Owned by the run loop.
	state       models.SessionState
	ctx         models.SessionContext
	family      models.Family
	command     string
	turn        *turn
	draining    *process.Handle
	turnSeq     int
	graceTimer  *time.Timer
	retryTimer  *time.Timer
	tickPending bool
	dirty       bool

	mu   sync.RWMutex
	view view
}

type view struct {
	state   models.SessionState
	ctx     models.SessionContext
	family  models.Family
	command string
	pid     int
	running bool
}

// New creates a session and starts its actor. When snap is non-nil and was
// recorded for the same family, the session resumes from it; otherwise the
// snapshot is discarded and reported.
func New(id, command string, cfg models.SessionConfig, deps Deps, snap *models.Snapshot) *Session {
	if deps.Decoders == nil {
		deps.Decoders = normalize.NewRegistry()
	}
	if deps.Config == nil {
		defaults := &config.Config{}
		defaults.SetDefaults()
		deps.Config = func() *config.Config { return defaults }
	}
	if deps.Secrets == nil {
		defaults, _ := NewSecretFilter(nil)
		deps.Secrets = func() *SecretFilter { return defaults }
	}
	logger := deps.Logger
	if logger == nil {
		logger = logging.NewLogger("relay-session")
	}

	s := &Session{
		id:      id,
		deps:    deps,
		log:     logger.WithField("session", id),
		mailbox: make(chan func(), mailboxSize),
		quit:    make(chan struct{}),
		stopped: make(chan struct{}),
		state:   models.StateIdle,
		ctx:     NewContext(id, cfg),
		family:  FamilyFor(command, cfg),
		command: command,
	}

	var discarded models.Family
	restored := false
	if snap != nil {
		if snap.Family == s.family {
			s.ctx = restoreContext(id, *snap, cfg)
			restored = true
		} else {
			discarded = snap.Family
		}
	}

	s.sync()
	go s.run()

	s.submit(func() {
		s.dirty = true
		if discarded != "" {
			s.log.WithFields(logrus.Fields{"recorded": discarded, "current": s.family}).Info("Discarding snapshot from a different agent family")
			s.notify(models.KindSystem, fmt.Sprintf("Discarded saved %s session; starting a fresh %s session", discarded, s.family))
		}
		if restored {
			s.log.WithField("messages", s.ctx.MessageCount).Debug("Restored session from snapshot")
			s.applyPendingWorktree()
		}
	})
	return s
}

// FamilyFor resolves the agent family for a command and configuration.
func FamilyFor(command string, cfg models.SessionConfig) models.Family {
	if cfg.Family != "" {
		return cfg.Family
	}
	if command != "" {
		return models.InferFamily(command)
	}
	return cfg.ResolvedFamily()
}

func (s *Session) run() {
	defer close(s.stopped)
	for {
		select {
		case fn := <-s.mailbox:
			fn()
			s.sync()
		case <-s.quit:
			return
		}
	}
}

// submit queues fn on the actor. It must not be called from the actor itself.
func (s *Session) submit(fn func()) bool {
	select {
	case <-s.quit:
		return false
	default:
	}
	select {
	case s.mailbox <- fn:
		return true
	case <-s.quit:
		return false
	}
}

// call runs fn on the actor and waits until its effects are visible to
// readers.
func (s *Session) call(fn func()) bool {
	done := make(chan struct{})
	if !s.submit(func() {
		fn()
		s.sync()
		close(done)
	}) {
		return false
	}
	select {
	case <-done:
		return true
	case <-s.stopped:
		select {
		case <-done:
			return true
		default:
			return false
		}
	}
}

// sync publishes the read view and, after an observable transition, a
// state change carrying a persistable snapshot.
func (s *Session) sync() {
	pid, running := 0, false
	if s.turn != nil && s.turn.handle != nil {
		pid = s.turn.handle.Pid()
		running = s.turn.handle.Alive()
	}
	if s.draining != nil && s.draining.Alive() {
		running = true
		if pid == 0 {
			pid = s.draining.Pid()
		}
	}

	s.mu.Lock()
	s.view = view{
		state:   s.state,
		ctx:     s.ctx.Clone(),
		family:  s.family,
		command: s.command,
		pid:     pid,
		running: running,
	}
	s.mu.Unlock()

	if !s.dirty {
		return
	}
	s.dirty = false
	snap := BuildSnapshot(s.family, s.state, s.ctx, s.deps.Secrets())
	s.deps.Emitter.StateChanged(models.StateChange{
		SessionID:  s.id,
		StateValue: s.state,
		Context:    s.ctx.Clone(),
		Snapshot:   &snap,
	})
}

func (s *Session) apply(ev Event) []Effect {
	state, ctx, effects := Transition(s.state, s.ctx, ev)
	s.state, s.ctx = state, ctx
	if ev.Type == EventAgentOutput || ev.Type == EventConsumeBuffer {
		return effects
	}
	for _, e := range effects {
		if e.Type == EffectIgnored || e.Type == EffectRejectBusy {
			return effects
		}
	}
	s.dirty = true
	return effects
}

func (s *Session) emit(ev models.CanonicalEvent) {
	s.deps.Emitter.Log(models.LogEvent{
		SessionID:   s.id,
		Data:        ev.Text,
		Kind:        ev.Kind,
		Raw:         ev.Raw,
		ResumeToken: s.ctx.ResumeToken,
		Time:        time.Now(),
	})
}

func (s *Session) notify(kind models.EventKind, text string) {
	s.emit(models.CanonicalEvent{Kind: kind, Text: text})
}

func (s *Session) settings() config.SessionSettings {
	if cfg := s.deps.Config(); cfg != nil {
		return cfg.Session
	}
	return config.SessionSettings{}
}

func (s *Session) agentConfig() config.AgentConfig {
	if cfg := s.deps.Config(); cfg != nil {
		agent, _ := cfg.Agent(string(s.family))
		return agent
	}
	return config.AgentConfig{}
}

// ID returns the session id.
func (s *Session) ID() string {
	return s.id
}

// Send submits a user message. A message sent while a turn is running is
// rejected with a "busy" system event. It returns false once the session is
// closed.
func (s *Session) Send(message string) bool {
	return s.submit(func() { s.handleSend(message, false) })
}

// Stop terminates the running turn, if any, and returns the session to idle.
// A pending worktree relocation is kept and replays once the process is gone.
func (s *Session) Stop() bool {
	return s.call(func() {
		t := s.turn
		if t == nil {
			return
		}
		s.abandonTurn(t)
		s.apply(Event{Type: EventStop})
		s.log.WithField("turn", t.id).Info("Session stopped")
		s.notify(models.KindSystem, stoppedMessage)
		if s.draining == nil {
			s.applyPendingWorktree()
		}
	})
}

// Reset adopts a new command and configuration. A hard reset starts a new
// conversation; a soft reset keeps the resume token, home and worktree.
// Any running turn is terminated.
func (s *Session) Reset(command string, cfg models.SessionConfig, hard bool) bool {
	return s.call(func() {
		if s.turn != nil {
			s.abandonTurn(s.turn)
		}
		s.stopTimer(&s.retryTimer)

		next := cfg.Clone()
		s.apply(Event{Type: EventReset, Hard: hard, Config: &next})
		s.command = command
		s.family = FamilyFor(command, cfg)

		kind := "soft"
		if hard {
			kind = "hard"
		}
		s.log.WithFields(logrus.Fields{"family": s.family, "reset": kind}).Info("Session reset")
		s.notify(models.KindSystem, fmt.Sprintf(resetFormat, kind, s.family))
	})
}

// SetHandover stores text in the single-slot handover channel, replacing
// anything not yet consumed.
func (s *Session) SetHandover(text string) bool {
	return s.call(func() {
		s.apply(Event{Type: EventSetHandover, Text: text})
	})
}

// TakeHandover consumes the handover text, leaving the slot empty.
func (s *Session) TakeHandover() (string, bool) {
	var text string
	ok := s.call(func() {
		for _, e := range s.apply(Event{Type: EventConsumeHandover}) {
			if e.Type == EffectHandover {
				text = e.Text
			}
		}
	})
	return text, ok
}

// Close terminates any live process and stops the actor. It is idempotent.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.call(func() {
			if s.turn != nil {
				s.abandonTurn(s.turn)
			}
			if s.draining != nil {
				s.deps.Spawner.Terminate(s.draining)
			}
			s.stopTimer(&s.graceTimer)
			s.stopTimer(&s.retryTimer)
		})
		close(s.quit)
		<-s.stopped
	})
}

func (s *Session) stopTimer(timer **time.Timer) {
	if *timer != nil {
		(*timer).Stop()
		*timer = nil
	}
}

func (s *Session) read() view {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.view
}

// State returns the current state.
func (s *Session) State() models.SessionState {
	return s.read().state
}

// IsProcessing reports whether a turn is in progress.
func (s *Session) IsProcessing() bool {
	return s.read().state == models.StateProcessing
}

// IsRunning reports whether an agent process is alive.
func (s *Session) IsRunning() bool {
	return s.read().running
}

// Family returns the agent family currently in use.
func (s *Session) Family() models.Family {
	return s.read().family
}

// Context returns a copy of the session context.
func (s *Session) Context() models.SessionContext {
	return s.read().ctx
}

// Command returns the command the session was started or last reset with.
func (s *Session) Command() string {
	return s.read().command
}

// Config returns a copy of the session configuration.
func (s *Session) Config() models.SessionConfig {
	return s.read().ctx.Config
}

// Cwd returns the directory the next turn runs in.
func (s *Session) Cwd() string {
	return s.read().ctx.Config.Cwd
}

// Homes reports the isolated home in use and the variable that selects it.
func (s *Session) Homes() models.SessionHomes {
	v := s.read()
	return models.SessionHomes{
		IsolatedHome: v.ctx.IsolatedHome,
		HomeEnv:      s.deps.Drivers.Driver(v.family).HomeEnv(),
	}
}

// Snapshot returns the persistable form of the session.
func (s *Session) Snapshot() models.Snapshot {
	v := s.read()
	return BuildSnapshot(v.family, v.state, v.ctx, s.deps.Secrets())
}

// Metadata returns a read-only projection of the session.
func (s *Session) Metadata() models.SessionMetadata {
	v := s.read()
	return models.SessionMetadata{
		ID:              s.id,
		Family:          v.family,
		State:           v.state,
		Running:         v.running,
		Processing:      v.state == models.StateProcessing,
		MessageCount:    v.ctx.MessageCount,
		ResumeToken:     v.ctx.ResumeToken,
		InvalidResume:   v.ctx.InvalidResume,
		Cwd:             v.ctx.Config.Cwd,
		ProjectRoot:     v.ctx.ProjectRoot,
		ActiveWorktree:  v.ctx.ActiveWorktree,
		PendingWorktree: v.ctx.PendingWorktreeResume != nil,
		PendingHandover: v.ctx.PendingHandover != "",
		Pid:             v.pid,
	}
}

// ensureHome returns the session's isolated agent home, creating it on
// first use when the family supports one.
func (s *Session) ensureHome(drv driver.Driver) string {
	if s.ctx.IsolatedHome != "" {
		return s.ctx.IsolatedHome
	}
	if !s.settings().HomesIsolated() || drv.HomeEnv() == "" || s.deps.HomesDir == "" {
		return ""
	}

	home := filepath.Join(s.deps.HomesDir, s.id, string(s.family))
	if err := os.MkdirAll(home, 0700); err != nil {
		s.log.WithError(err).WithField("home", home).Warn("Failed to create isolated home, using the agent default")
		return ""
	}
	s.apply(Event{Type: EventSetIsolatedHome, Text: home})
	return home
}
