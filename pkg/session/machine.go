// Package session implements the per-session state machine and the actor
// that drives agent turns through it.
package session

import (
	"github.com/grovetools/relay/pkg/models"
)

// EventType names a state machine input.
type EventType string

const (
	EventUserMessage                EventType = "USER_MESSAGE"
	EventAgentOutput                EventType = "AGENT_OUTPUT"
	EventConsumeBuffer              EventType = "CONSUME_BUFFER"
	EventComplete                   EventType = "COMPLETE"
	EventStop                       EventType = "STOP"
	EventSetResumeToken             EventType = "SET_RESUME_TOKEN"
	EventInvalidateResume           EventType = "INVALIDATE_RESUME"
	EventResetResumeFlag            EventType = "RESET_RESUME_FLAG"
	EventSetPendingWorktreeResume   EventType = "SET_PENDING_WORKTREE_RESUME"
	EventClearPendingWorktreeResume EventType = "CLEAR_PENDING_WORKTREE_RESUME"
	EventActivateWorktree           EventType = "ACTIVATE_WORKTREE"
	EventClearActiveWorktree        EventType = "CLEAR_ACTIVE_WORKTREE"
	EventReset                      EventType = "RESET"
	EventSetIsolatedHome            EventType = "SET_ISOLATED_HOME"
	EventSetHandover                EventType = "SET_HANDOVER"
	EventConsumeHandover            EventType = "CONSUME_HANDOVER"
	EventRecordRetry                EventType = "RECORD_RETRY"
)

// Event is a state machine input. Only the fields relevant to Type are read.
type Event struct {
	Type EventType
	// Text is the message, output chunk, buffer remainder, token, home path
	// or handover text, depending on Type.
	Text     string
	Retry    bool
	Hard     bool
	Config   *models.SessionConfig
	Worktree *models.WorktreeContext
	Pending  *models.PendingWorktreeResume
}

// EffectType names something the caller must do after a transition.
type EffectType string

const (
	// EffectRejectBusy means a message arrived while processing and was dropped.
	EffectRejectBusy EffectType = "REJECT_BUSY"
	// EffectStartTurn means a turn was accepted and the agent must be started.
	EffectStartTurn EffectType = "START_TURN"
	// EffectHandover carries the consumed handover text.
	EffectHandover EffectType = "HANDOVER"
	// EffectIgnored means the event does not apply in the current state.
	EffectIgnored EffectType = "IGNORED"
)

// Effect is an instruction produced by Transition.
type Effect struct {
	Type EffectType
	Text string
}

func ignored() []Effect {
	return []Effect{{Type: EffectIgnored}}
}

// Transition computes the next state and context. It never mutates its
// inputs, so a rejected event leaves the caller's values untouched.
func Transition(state models.SessionState, current models.SessionContext, ev Event) (models.SessionState, models.SessionContext, []Effect) {
	ctx := current.Clone()

	switch ev.Type {
	case EventUserMessage:
		if state == models.StateProcessing {
			return state, current, []Effect{{Type: EffectRejectBusy, Text: ev.Text}}
		}
		ctx.MessageCount++
		ctx.LastUserMessage = ev.Text
		ctx.Buffer = ""
		if !ev.Retry {
			ctx.RetryCount = 0
		}
		return models.StateProcessing, ctx, []Effect{{Type: EffectStartTurn, Text: ev.Text}}

	case EventAgentOutput:
		if state != models.StateProcessing {
			return state, current, ignored()
		}
		ctx.Buffer += ev.Text
		return state, ctx, nil

	case EventConsumeBuffer:
		ctx.Buffer = ev.Text
		return state, ctx, nil

	case EventComplete, EventStop:
		if state == models.StateIdle {
			return state, current, ignored()
		}
		ctx.Buffer = ""
		return models.StateIdle, ctx, nil

	case EventSetResumeToken:
		if ctx.InvalidResume || ev.Text == "" || ev.Text == ctx.ResumeToken {
			return state, current, ignored()
		}
		ctx.ResumeToken = ev.Text
		return state, ctx, nil

	case EventInvalidateResume:
		ctx.InvalidResume = true
		ctx.ResumeToken = ""
		ctx.MessageCount = 0
		return state, ctx, nil

	case EventResetResumeFlag:
		ctx.InvalidResume = false
		return state, ctx, nil

	case EventSetPendingWorktreeResume:
		if ev.Pending == nil {
			return state, current, ignored()
		}
		pending := *ev.Pending
		ctx.PendingWorktreeResume = &pending
		return state, ctx, nil

	case EventClearPendingWorktreeResume:
		ctx.PendingWorktreeResume = nil
		return state, ctx, nil

	case EventActivateWorktree:
		if ev.Worktree == nil {
			return state, current, ignored()
		}
		wt := *ev.Worktree
		ctx.ActiveWorktree = &wt
		ctx.Config.Cwd = wt.Cwd
		return state, ctx, nil

	case EventClearActiveWorktree:
		ctx.ActiveWorktree = nil
		ctx.Config.Cwd = ctx.ProjectRoot
		return state, ctx, nil

	case EventReset:
		return models.StateIdle, reset(ctx, ev), nil

	case EventSetIsolatedHome:
		if ctx.IsolatedHome != "" {
			return state, current, ignored()
		}
		ctx.IsolatedHome = ev.Text
		return state, ctx, nil

	case EventSetHandover:
		ctx.PendingHandover = ev.Text
		return state, ctx, nil

	case EventConsumeHandover:
		text := ctx.PendingHandover
		ctx.PendingHandover = ""
		return state, ctx, []Effect{{Type: EffectHandover, Text: text}}

	case EventRecordRetry:
		ctx.RetryCount++
		return state, ctx, nil
	}

	return state, current, ignored()
}

// reset applies a soft or hard reset. A soft reset keeps the conversation
// (token, home, last message and worktree) and adopts the new configuration
// but zeroes the counters; a hard reset starts over. The handover slot
// survives both.
func reset(ctx models.SessionContext, ev Event) models.SessionContext {
	cfg := ctx.Config
	if ev.Config != nil {
		cfg = ev.Config.Clone()
	}

	projectRoot := ctx.ProjectRoot
	if cfg.Cwd != "" {
		projectRoot = cfg.Cwd
	}
	cfg.Cwd = projectRoot

	if ev.Hard {
		return models.SessionContext{
			SessionID:       ctx.SessionID,
			Config:          cfg,
			ProjectRoot:     projectRoot,
			PendingHandover: ctx.PendingHandover,
		}
	}

	next := ctx
	next.Config = cfg
	next.ProjectRoot = projectRoot
	next.Buffer = ""
	next.RetryCount = 0
	next.MessageCount = 0
	next.PendingWorktreeResume = nil
	if next.ActiveWorktree != nil {
		next.Config.Cwd = next.ActiveWorktree.Cwd
	}
	return next
}

// NewContext builds the initial context for a session.
func NewContext(id string, cfg models.SessionConfig) models.SessionContext {
	return models.SessionContext{
		SessionID:   id,
		Config:      cfg.Clone(),
		ProjectRoot: cfg.Cwd,
	}
}
