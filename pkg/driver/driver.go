// Package driver turns a session turn into a concrete agent command line.
package driver

import (
	"fmt"
	"strings"
	"sync"

	"github.com/grovetools/relay/command"
	"github.com/grovetools/relay/config"
	"github.com/grovetools/relay/errors"
	"github.com/grovetools/relay/pkg/models"
	"github.com/grovetools/relay/pkg/process"
)

// Request carries everything needed to build one turn's invocation.
type Request struct {
	Command     string
	Config      models.SessionConfig
	Message     string
	ResumeToken string
	Home        string
}

// Driver builds invocations for one agent family.
type Driver interface {
	Family() models.Family
	// HomeEnv names the variable pointing the agent at its home directory,
	// empty when the family does not support relocation of its home.
	HomeEnv() string
	Invocation(req Request) (process.Invocation, error)
}

type familySpec struct {
	command string
	homeEnv string
	args    func(req Request, model string) []string
}

var specs = map[models.Family]familySpec{
	models.FamilyCodex: {
		command: "codex",
		homeEnv: "CODEX_HOME",
		args: func(req Request, model string) []string {
			args := []string{"exec", "--json", "--skip-git-repo-check"}
			if model != "" {
				args = append(args, "--model", model)
			}
			if req.Config.Mode.ReadOnly() {
				args = append(args, "--sandbox", "read-only")
			}
			if req.ResumeToken != "" {
				args = append(args, "resume", req.ResumeToken)
			}
			return append(args, req.Message)
		},
	},
	models.FamilyGemini: {
		command: "gemini",
		args: func(req Request, model string) []string {
			args := []string{"--output-format", "stream-json"}
			if model != "" {
				args = append(args, "--model", model)
			}
			if req.ResumeToken != "" {
				args = append(args, "--resume", req.ResumeToken)
			}
			return append(args, "--prompt", req.Message)
		},
	},
	models.FamilyClaude: {
		command: "claude",
		homeEnv: "CLAUDE_CONFIG_DIR",
		args: func(req Request, model string) []string {
			args := []string{"--print", "--output-format", "stream-json", "--verbose"}
			if model != "" {
				args = append(args, "--model", model)
			}
			if req.ResumeToken != "" {
				args = append(args, "--resume", req.ResumeToken)
			}
			if req.Config.Mode.ReadOnly() {
				args = append(args, "--permission-mode", "plan")
			}
			return append(args, req.Message)
		},
	},
	models.FamilyGeneric: {
		args: func(req Request, model string) []string {
			return []string{req.Message}
		},
	},
}

type familyDriver struct {
	family models.Family
	spec   familySpec
	agent  config.AgentConfig
	env    EnvBuilder
}

func (d *familyDriver) Family() models.Family {
	return d.family
}

func (d *familyDriver) HomeEnv() string {
	if d.agent.HomeEnv != "" {
		return d.agent.HomeEnv
	}
	return d.spec.homeEnv
}

func (d *familyDriver) Invocation(req Request) (process.Invocation, error) {
	commandLine := req.Command
	if commandLine == "" {
		commandLine = req.Config.Command
	}
	if commandLine == "" {
		commandLine = d.agent.Command
	}
	if commandLine == "" {
		commandLine = d.spec.command
	}
	if err := command.ValidateCommand(commandLine); err != nil {
		return process.Invocation{}, errors.Wrap(err, errors.ErrCodeInvalidInput, "invalid agent command").
			WithDetail("family", string(d.family))
	}

	fields := strings.Fields(commandLine)
	model := req.Config.Model
	if model == "" {
		model = d.agent.Model
	}

	var args []string
	args = append(args, fields[1:]...)
	args = append(args, d.agent.Args...)
	args = append(args, req.Config.Args...)
	args = append(args, d.spec.args(req, model)...)

	return process.Invocation{
		Command: fields[0],
		Args:    args,
		Dir:     req.Config.Cwd,
		Env:     d.env.Build(d.agent.Env, req.Config.Env, d.HomeEnv(), req.Home),
	}, nil
}

// Registry resolves drivers from the current configuration.
type Registry struct {
	mu  sync.RWMutex
	cfg *config.Config
	env EnvBuilder
}

// NewRegistry creates a driver registry. A nil cfg uses built-in defaults.
func NewRegistry(cfg *config.Config, env EnvBuilder) *Registry {
	if cfg == nil {
		cfg = &config.Config{}
		cfg.SetDefaults()
	}
	if env == nil {
		env = &DefaultEnv{}
	}
	return &Registry{cfg: cfg, env: env}
}

// Update swaps in a reloaded configuration. Turns already running keep
// the invocation they were started with.
func (r *Registry) Update(cfg *config.Config) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cfg = cfg
}

// Driver returns the driver for family; unknown families use the generic spec.
func (r *Registry) Driver(family models.Family) Driver {
	r.mu.RLock()
	defer r.mu.RUnlock()

	spec, ok := specs[family]
	if !ok {
		spec = specs[models.FamilyGeneric]
	}
	agent, _ := r.cfg.Agent(string(family))
	return &familyDriver{family: family, spec: spec, agent: agent, env: r.env}
}

// Describe renders an invocation as a single loggable line.
func Describe(inv process.Invocation) string {
	parts := append([]string{inv.Command}, inv.Args...)
	for i, p := range parts {
		if strings.ContainsAny(p, " \t\n\"'") {
			parts[i] = fmt.Sprintf("%q", p)
		}
	}
	return strings.Join(parts, " ")
}
