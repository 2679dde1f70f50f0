package models

import "time"

// SessionState is the state machine's current state.
type SessionState string

const (
	StateIdle       SessionState = "idle"
	StateProcessing SessionState = "processing"
	// StateWorktreeSwitching is reserved. Relocation is modelled as idle
	// plus a pending request.
	StateWorktreeSwitching SessionState = "worktree_switching"
)

// SessionConfig describes how a session's agent is invoked.
type SessionConfig struct {
	Family    Family            `json:"family,omitempty" yaml:"family,omitempty"`
	Command   string            `json:"command,omitempty" yaml:"command,omitempty"`
	Args      []string          `json:"args,omitempty" yaml:"args,omitempty"`
	Model     string            `json:"model,omitempty" yaml:"model,omitempty"`
	Cwd       string            `json:"cwd,omitempty" yaml:"cwd,omitempty"`
	Mode      Mode              `json:"mode,omitempty" yaml:"mode,omitempty"`
	Env       map[string]string `json:"env,omitempty" yaml:"env,omitempty"`
	Streaming bool              `json:"streaming" yaml:"streaming"`
}

// ResolvedFamily returns the explicit family or one inferred from the command.
func (c SessionConfig) ResolvedFamily() Family {
	if c.Family != "" {
		return c.Family
	}
	return InferFamily(c.Command)
}

// Clone returns a deep copy.
func (c SessionConfig) Clone() SessionConfig {
	out := c
	if c.Args != nil {
		out.Args = append([]string(nil), c.Args...)
	}
	if c.Env != nil {
		out.Env = make(map[string]string, len(c.Env))
		for k, v := range c.Env {
			out.Env[k] = v
		}
	}
	return out
}

// WorktreeContext locates a git worktree a session runs in.
type WorktreeContext struct {
	Cwd      string `json:"cwd" yaml:"cwd"`
	Branch   string `json:"branch,omitempty" yaml:"branch,omitempty"`
	RepoPath string `json:"repoPath,omitempty" yaml:"repo_path,omitempty"`
}

// WorktreeRequest asks for a session to continue in another worktree.
type WorktreeRequest struct {
	WorktreeContext `yaml:",inline"`
	ResumeMessage   string `json:"resumeMessage,omitempty" yaml:"resume_message,omitempty"`
}

// PendingWorktreeResume is a relocation waiting for the current turn to end.
type PendingWorktreeResume struct {
	Request       WorktreeContext `json:"request" yaml:"request"`
	ResumeMessage string          `json:"resumeMessage" yaml:"resume_message"`
}

// SessionContext is the data owned by a session's state machine.
type SessionContext struct {
	SessionID             string                 `json:"sessionId" yaml:"session_id"`
	Config                SessionConfig          `json:"config" yaml:"config"`
	MessageCount          int                    `json:"messageCount" yaml:"message_count"`
	Buffer                string                 `json:"buffer,omitempty" yaml:"-"`
	LastUserMessage       string                 `json:"lastUserMessage,omitempty" yaml:"last_user_message,omitempty"`
	ResumeToken           string                 `json:"resumeToken,omitempty" yaml:"resume_token,omitempty"`
	IsolatedHome          string                 `json:"isolatedHome,omitempty" yaml:"isolated_home,omitempty"`
	InvalidResume         bool                   `json:"invalidResume" yaml:"invalid_resume"`
	ProjectRoot           string                 `json:"projectRoot,omitempty" yaml:"project_root,omitempty"`
	ActiveWorktree        *WorktreeContext       `json:"activeWorktree,omitempty" yaml:"active_worktree,omitempty"`
	PendingWorktreeResume *PendingWorktreeResume `json:"pendingWorktreeResume,omitempty" yaml:"pending_worktree_resume,omitempty"`
	PendingHandover       string                 `json:"pendingHandover,omitempty" yaml:"pending_handover,omitempty"`
	RetryCount            int                    `json:"retryCount,omitempty" yaml:"retry_count,omitempty"`
}

// Clone returns a deep copy so snapshots never alias live state.
func (c SessionContext) Clone() SessionContext {
	out := c
	out.Config = c.Config.Clone()
	if c.ActiveWorktree != nil {
		wt := *c.ActiveWorktree
		out.ActiveWorktree = &wt
	}
	if c.PendingWorktreeResume != nil {
		pending := *c.PendingWorktreeResume
		out.PendingWorktreeResume = &pending
	}
	return out
}

// SnapshotVersion is the current persisted snapshot layout.
const SnapshotVersion = 1

// Snapshot is the persistable form of a session.
type Snapshot struct {
	Version int            `json:"version" yaml:"version"`
	Family  Family         `json:"family" yaml:"family"`
	State   SessionState   `json:"state" yaml:"state"`
	Context SessionContext `json:"context" yaml:"context"`
	SavedAt time.Time      `json:"savedAt" yaml:"saved_at"`
}

// SessionMetadata is a read-only projection for external tooling.
type SessionMetadata struct {
	ID              string           `json:"id"`
	Family          Family           `json:"family"`
	State           SessionState     `json:"state"`
	Running         bool             `json:"running"`
	Processing      bool             `json:"processing"`
	MessageCount    int              `json:"messageCount"`
	ResumeToken     string           `json:"resumeToken,omitempty"`
	InvalidResume   bool             `json:"invalidResume"`
	Cwd             string           `json:"cwd"`
	ProjectRoot     string           `json:"projectRoot"`
	ActiveWorktree  *WorktreeContext `json:"activeWorktree,omitempty"`
	PendingWorktree bool             `json:"pendingWorktree"`
	PendingHandover bool             `json:"pendingHandover"`
	Pid             int              `json:"pid,omitempty"`
}

// SessionHomes reports the isolated agent home a session uses.
type SessionHomes struct {
	IsolatedHome string `json:"isolatedHome,omitempty"`
	HomeEnv      string `json:"homeEnv,omitempty"`
}
