// Package relay is the public entry point for running agent sessions. A
// Registry owns every session, wires them to their collaborators and fans
// their events out on a bus.
package relay

import (
	"sort"
	"sync"

	"github.com/grovetools/relay/command"
	"github.com/grovetools/relay/config"
	"github.com/grovetools/relay/errors"
	"github.com/grovetools/relay/logging"
	"github.com/grovetools/relay/pkg/driver"
	"github.com/grovetools/relay/pkg/events"
	"github.com/grovetools/relay/pkg/models"
	"github.com/grovetools/relay/pkg/normalize"
	"github.com/grovetools/relay/pkg/process"
	"github.com/grovetools/relay/pkg/session"
	"github.com/grovetools/relay/state"
	"github.com/sirupsen/logrus"
)

// Registry tracks sessions by id.
type Registry struct {
	spawner  session.Spawner
	drivers  *driver.Registry
	env      driver.EnvBuilder
	decoders *normalize.Registry
	store    *state.Store
	tracker  session.Tracker
	bus      *events.Bus
	homesDir string
	logger   *logrus.Entry

	cfgMu   sync.RWMutex
	cfg     *config.Config
	secrets *session.SecretFilter

	mu       sync.RWMutex
	sessions map[string]*session.Session
	closed   bool
}

// New creates a registry. Without options it spawns real processes with
// the default drivers and keeps everything in memory.
func New(opts ...Option) *Registry {
	r := &Registry{sessions: make(map[string]*session.Session)}
	for _, opt := range opts {
		opt(r)
	}

	if r.cfg == nil {
		r.cfg = &config.Config{}
		r.cfg.SetDefaults()
	}
	if r.logger == nil {
		r.logger = logging.NewLogger("relay")
	}
	if r.spawner == nil {
		r.spawner = process.NewSupervisor()
	}
	if r.env == nil {
		r.env = &driver.DefaultEnv{}
	}
	if r.drivers == nil {
		r.drivers = driver.NewRegistry(r.cfg, r.env)
	}
	if r.decoders == nil {
		r.decoders = normalize.NewRegistry()
	}
	if r.bus == nil {
		r.bus = events.New()
	}
	r.secrets = r.compileSecrets(r.cfg.Session.SecretEnvPatterns)
	return r
}

// Config returns the configuration currently in effect.
func (r *Registry) Config() *config.Config {
	r.cfgMu.RLock()
	defer r.cfgMu.RUnlock()
	return r.cfg
}

// UpdateConfig swaps in a new configuration. Turns already running keep the
// invocation they were started with.
func (r *Registry) UpdateConfig(cfg *config.Config) {
	secrets := r.compileSecrets(cfg.Session.SecretEnvPatterns)

	r.cfgMu.Lock()
	r.cfg = cfg
	r.secrets = secrets
	r.cfgMu.Unlock()

	r.drivers.Update(cfg)
	r.logger.WithField("agents", len(cfg.Agents)).Info("Configuration updated")
}

// compileSecrets builds the snapshot secret filter. Invalid patterns are
// logged and replaced by the defaults so secrets are never persisted.
func (r *Registry) compileSecrets(patterns []string) *session.SecretFilter {
	filter, err := session.NewSecretFilter(patterns)
	if err == nil {
		return filter
	}
	r.logger.WithError(err).Warn("Invalid secret_env_patterns, using defaults")
	filter, err = session.NewSecretFilter(config.DefaultSecretEnvPatterns)
	if err != nil {
		r.logger.WithError(err).Error("Default secret_env_patterns do not compile")
	}
	return filter
}

func (r *Registry) secretFilter() *session.SecretFilter {
	r.cfgMu.RLock()
	defer r.cfgMu.RUnlock()
	return r.secrets
}

func (r *Registry) deps() session.Deps {
	return session.Deps{
		Spawner:  r.spawner,
		Drivers:  r.drivers,
		Decoders: r.decoders,
		Emitter:  &emitter{registry: r},
		Tracker:  r.tracker,
		Config:   r.Config,
		Secrets:  r.secretFilter,
		HomesDir: r.homesDir,
		Logger:   r.logger,
	}
}

func (r *Registry) get(id string) (*session.Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	return s, ok
}

// StartSession creates a session, resuming it from a saved snapshot when one
// exists for the same agent family. Starting an id that is already
// registered resets it instead.
func (r *Registry) StartSession(id, cmd string, cfg models.SessionConfig) error {
	if err := command.ValidateSessionID(id); err != nil {
		return errors.InvalidInput(err.Error())
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return errors.New(errors.ErrCodeInternal, "registry is closed")
	}
	if _, ok := r.sessions[id]; ok {
		r.mu.Unlock()
		return r.ResetSession(id, cmd, cfg)
	}

	snap := r.loadSnapshot(id)
	s := session.New(id, cmd, cfg, r.deps(), snap)
	r.sessions[id] = s
	r.mu.Unlock()

	r.logger.WithFields(logrus.Fields{
		"session":  id,
		"family":   s.Family(),
		"restored": snap != nil && snap.Family == s.Family(),
	}).Info("Session started")
	return nil
}

func (r *Registry) loadSnapshot(id string) *models.Snapshot {
	if r.store == nil || !r.Config().Session.SnapshotsEnabled() {
		return nil
	}
	snap, err := r.store.Load(id)
	if err != nil {
		r.logger.WithError(err).WithField("session", id).Warn("Ignoring unreadable snapshot")
		return nil
	}
	return snap
}

// RestoreSessions starts every session that has a saved snapshot and is not
// already registered, using the configuration recorded in the snapshot.
func (r *Registry) RestoreSessions() ([]string, error) {
	if r.store == nil || !r.Config().Session.SnapshotsEnabled() {
		return nil, nil
	}
	ids, err := r.store.List()
	if err != nil {
		return nil, err
	}

	var restored []string
	for _, id := range ids {
		if _, ok := r.get(id); ok {
			continue
		}
		snap := r.loadSnapshot(id)
		if snap == nil {
			continue
		}
		cfg := snap.Context.Config.Clone()
		cfg.Family = snap.Family
		if err := r.StartSession(id, cfg.Command, cfg); err != nil {
			r.logger.WithError(err).WithField("session", id).Warn("Failed to restore session")
			continue
		}
		restored = append(restored, id)
	}
	return restored, nil
}

// ResetSession adopts a new command and configuration. Changing the agent
// family starts a new conversation; keeping it preserves the resume token.
func (r *Registry) ResetSession(id, cmd string, cfg models.SessionConfig) error {
	s, ok := r.get(id)
	if !ok {
		return errors.SessionNotFound(id)
	}

	hard := session.FamilyFor(cmd, cfg) != s.Family()
	s.Reset(cmd, cfg, hard)
	return nil
}

// SendToSession submits a user message. It returns once the message is
// queued; a busy session reports the rejection as an event.
func (r *Registry) SendToSession(id, text string) error {
	s, ok := r.get(id)
	if !ok {
		return errors.SessionNotFound(id)
	}
	if !s.Send(text) {
		return errors.SessionNotFound(id)
	}
	return nil
}

// StopSession terminates the running turn. It returns false for unknown ids.
func (r *Registry) StopSession(id string) bool {
	s, ok := r.get(id)
	if !ok {
		return false
	}
	return s.Stop()
}

// IsRunning reports whether the session has a live agent process.
func (r *Registry) IsRunning(id string) bool {
	s, ok := r.get(id)
	return ok && s.IsRunning()
}

// IsProcessing reports whether the session is in the middle of a turn.
func (r *Registry) IsProcessing(id string) bool {
	s, ok := r.get(id)
	return ok && s.IsProcessing()
}

// ListSessions returns the registered session ids in sorted order.
func (r *Registry) ListSessions() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.sessions))
	for id := range r.sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// RequestWorktreeResume moves the session to another worktree. It returns
// false when the session is unknown or the target fails validation.
func (r *Registry) RequestWorktreeResume(id string, req models.WorktreeRequest) bool {
	s, ok := r.get(id)
	if !ok {
		return false
	}
	return s.RequestWorktreeResume(req)
}

// SessionMetadata returns a read-only description of the session.
func (r *Registry) SessionMetadata(id string) (models.SessionMetadata, error) {
	s, ok := r.get(id)
	if !ok {
		return models.SessionMetadata{}, errors.SessionNotFound(id)
	}
	return s.Metadata(), nil
}

// SessionCwd returns the directory the session's next turn runs in.
func (r *Registry) SessionCwd(id string) (string, error) {
	s, ok := r.get(id)
	if !ok {
		return "", errors.SessionNotFound(id)
	}
	return s.Cwd(), nil
}

// SessionHomes returns the session's isolated agent home.
func (r *Registry) SessionHomes(id string) (models.SessionHomes, error) {
	s, ok := r.get(id)
	if !ok {
		return models.SessionHomes{}, errors.SessionNotFound(id)
	}
	return s.Homes(), nil
}

// SessionConfig returns the session's configuration.
func (r *Registry) SessionConfig(id string) (models.SessionConfig, error) {
	s, ok := r.get(id)
	if !ok {
		return models.SessionConfig{}, errors.SessionNotFound(id)
	}
	return s.Config(), nil
}

// SetPendingHandover stores text for the next agent to pick up.
func (r *Registry) SetPendingHandover(id, text string) bool {
	s, ok := r.get(id)
	if !ok {
		return false
	}
	return s.SetHandover(text)
}

// ConsumePendingHandover returns and clears the handover text. It is empty
// when nothing was stored or the session is unknown.
func (r *Registry) ConsumePendingHandover(id string) string {
	s, ok := r.get(id)
	if !ok {
		return ""
	}
	text, _ := s.TakeHandover()
	return text
}

// RemoveSession stops and forgets a session, including its saved snapshot.
func (r *Registry) RemoveSession(id string) bool {
	r.mu.Lock()
	s, ok := r.sessions[id]
	delete(r.sessions, id)
	r.mu.Unlock()
	if !ok {
		return false
	}

	s.Close()
	if r.store != nil {
		if err := r.store.Delete(id); err != nil {
			r.logger.WithError(err).WithField("session", id).Warn("Failed to delete snapshot")
		}
	}
	r.bus.SessionRemoved(id)
	r.logger.WithField("session", id).Info("Session removed")
	return true
}

// Subscribe returns a subscription to one session's events, or to every
// session's when id is empty.
func (r *Registry) Subscribe(id string, buffer int) *events.Subscription {
	return r.bus.Subscribe(id, buffer)
}

// Bus returns the bus sessions publish to.
func (r *Registry) Bus() *events.Bus {
	return r.bus
}

// Close terminates every session. Saved snapshots are kept so the sessions
// can be restored later.
func (r *Registry) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	all := make([]*session.Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		all = append(all, s)
	}
	r.sessions = make(map[string]*session.Session)
	r.mu.Unlock()

	var wg sync.WaitGroup
	for _, s := range all {
		wg.Add(1)
		go func(s *session.Session) {
			defer wg.Done()
			s.Close()
		}(s)
	}
	wg.Wait()
	r.bus.Close()
}
