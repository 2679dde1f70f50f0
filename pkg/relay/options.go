package relay

import (
	"github.com/grovetools/relay/config"
	"github.com/grovetools/relay/pkg/driver"
	"github.com/grovetools/relay/pkg/events"
	"github.com/grovetools/relay/pkg/normalize"
	"github.com/grovetools/relay/pkg/session"
	"github.com/grovetools/relay/state"
	"github.com/sirupsen/logrus"
)

// Option configures a Registry.
type Option func(*Registry)

// WithConfig sets the initial configuration. Defaults are used otherwise.
func WithConfig(cfg *config.Config) Option {
	return func(r *Registry) {
		r.cfg = cfg
	}
}

// WithSupervisor sets what starts and kills agent processes.
func WithSupervisor(s session.Spawner) Option {
	return func(r *Registry) {
		r.spawner = s
	}
}

// WithDrivers sets the invocation drivers. When unset they are built from
// the configuration and the environment builder.
func WithDrivers(d *driver.Registry) Option {
	return func(r *Registry) {
		r.drivers = d
	}
}

// WithEnv sets the environment builder used by the default drivers.
func WithEnv(env driver.EnvBuilder) Option {
	return func(r *Registry) {
		r.env = env
	}
}

// WithDecoders replaces the output decoder registry.
func WithDecoders(d *normalize.Registry) Option {
	return func(r *Registry) {
		r.decoders = d
	}
}

// WithStore enables snapshot persistence.
func WithStore(store *state.Store) Option {
	return func(r *Registry) {
		r.store = store
	}
}

// WithTracker records live agent processes.
func WithTracker(t session.Tracker) Option {
	return func(r *Registry) {
		r.tracker = t
	}
}

// WithBus publishes to an existing bus instead of a private one.
func WithBus(bus *events.Bus) Option {
	return func(r *Registry) {
		r.bus = bus
	}
}

// WithHomesDir sets where isolated agent homes are created.
func WithHomesDir(dir string) Option {
	return func(r *Registry) {
		r.homesDir = dir
	}
}

// WithLogger sets the logger.
func WithLogger(logger *logrus.Entry) Option {
	return func(r *Registry) {
		r.logger = logger
	}
}
