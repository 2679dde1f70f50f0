package session

import (
	"testing"

	"github.com/grovetools/relay/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func baseContext() models.SessionContext {
	ctx := NewContext("s1", models.SessionConfig{Command: "codex", Cwd: "/repo", Env: map[string]string{"A": "1"}})
	ctx.ResumeToken = "tok"
	ctx.IsolatedHome = "/homes/s1/codex"
	ctx.LastUserMessage = "earlier"
	ctx.MessageCount = 4
	return ctx
}

func TestUserMessage(t *testing.T) {
	ctx := baseContext()
	ctx.RetryCount = 2

	state, next, effects := Transition(models.StateIdle, ctx, Event{Type: EventUserMessage, Text: "hello"})
	assert.Equal(t, models.StateProcessing, state)
	assert.Equal(t, 5, next.MessageCount)
	assert.Equal(t, "hello", next.LastUserMessage)
	assert.Equal(t, 0, next.RetryCount)
	require.Len(t, effects, 1)
	assert.Equal(t, EffectStartTurn, effects[0].Type)

	_, retried, _ := Transition(models.StateIdle, ctx, Event{Type: EventUserMessage, Text: "hello", Retry: true})
	assert.Equal(t, 2, retried.RetryCount)
}

func TestUserMessageWhileBusy(t *testing.T) {
	ctx := baseContext()
	ctx.Buffer = "partial"

	state, next, effects := Transition(models.StateProcessing, ctx, Event{Type: EventUserMessage, Text: "again"})
	assert.Equal(t, models.StateProcessing, state)
	assert.Equal(t, ctx, next)
	require.Len(t, effects, 1)
	assert.Equal(t, EffectRejectBusy, effects[0].Type)
}

func TestOutputBuffering(t *testing.T) {
	ctx := baseContext()

	_, next, _ := Transition(models.StateProcessing, ctx, Event{Type: EventAgentOutput, Text: `{"a":`})
	_, next, _ = Transition(models.StateProcessing, next, Event{Type: EventAgentOutput, Text: `1}`})
	assert.Equal(t, `{"a":1}`, next.Buffer)

	_, next, _ = Transition(models.StateProcessing, next, Event{Type: EventConsumeBuffer, Text: "rest"})
	assert.Equal(t, "rest", next.Buffer)

	_, idle, effects := Transition(models.StateIdle, ctx, Event{Type: EventAgentOutput, Text: "late"})
	assert.Empty(t, idle.Buffer)
	assert.Equal(t, EffectIgnored, effects[0].Type)

	state, done, _ := Transition(models.StateProcessing, next, Event{Type: EventComplete})
	assert.Equal(t, models.StateIdle, state)
	assert.Empty(t, done.Buffer)
}

func TestResumeTokenGuard(t *testing.T) {
	ctx := baseContext()

	_, invalid, _ := Transition(models.StateProcessing, ctx, Event{Type: EventInvalidateResume})
	assert.True(t, invalid.InvalidResume)
	assert.Empty(t, invalid.ResumeToken)
	assert.Zero(t, invalid.MessageCount)

	_, still, effects := Transition(models.StateProcessing, invalid, Event{Type: EventSetResumeToken, Text: "new"})
	assert.Empty(t, still.ResumeToken)
	assert.Equal(t, EffectIgnored, effects[0].Type)

	_, cleared, _ := Transition(models.StateProcessing, still, Event{Type: EventResetResumeFlag})
	_, set, _ := Transition(models.StateProcessing, cleared, Event{Type: EventSetResumeToken, Text: "new"})
	assert.Equal(t, "new", set.ResumeToken)
}

func TestWorktreeTransitions(t *testing.T) {
	ctx := baseContext()
	wt := &models.WorktreeContext{Cwd: "/repo/.worktrees/feat", Branch: "feat"}

	_, pending, _ := Transition(models.StateProcessing, ctx, Event{
		Type:    EventSetPendingWorktreeResume,
		Pending: &models.PendingWorktreeResume{Request: *wt, ResumeMessage: "continue"},
	})
	require.NotNil(t, pending.PendingWorktreeResume)
	assert.Nil(t, ctx.PendingWorktreeResume)

	_, active, _ := Transition(models.StateIdle, pending, Event{Type: EventActivateWorktree, Worktree: wt})
	assert.Equal(t, wt.Cwd, active.Config.Cwd)
	assert.Equal(t, wt.Cwd, active.ActiveWorktree.Cwd)

	wt.Cwd = "/mutated"
	assert.Equal(t, "/repo/.worktrees/feat", active.ActiveWorktree.Cwd)

	_, back, _ := Transition(models.StateIdle, active, Event{Type: EventClearActiveWorktree})
	assert.Nil(t, back.ActiveWorktree)
	assert.Equal(t, "/repo", back.Config.Cwd)

	_, consumed, _ := Transition(models.StateIdle, back, Event{Type: EventClearPendingWorktreeResume})
	assert.Nil(t, consumed.PendingWorktreeResume)
}

func TestReset(t *testing.T) {
	ctx := baseContext()
	ctx.ActiveWorktree = &models.WorktreeContext{Cwd: "/repo/wt"}
	ctx.Config.Cwd = "/repo/wt"
	ctx.PendingHandover = "notes"
	ctx.PendingWorktreeResume = &models.PendingWorktreeResume{ResumeMessage: "x"}

	cfg := models.SessionConfig{Command: "codex", Model: "o3", Cwd: "/repo"}

	t.Run("soft", func(t *testing.T) {
		state, next, _ := Transition(models.StateProcessing, ctx, Event{Type: EventReset, Config: &cfg})
		assert.Equal(t, models.StateIdle, state)
		assert.Equal(t, "tok", next.ResumeToken)
		assert.Equal(t, "/homes/s1/codex", next.IsolatedHome)
		assert.Equal(t, "earlier", next.LastUserMessage)
		assert.Zero(t, next.MessageCount)
		assert.Equal(t, "o3", next.Config.Model)
		assert.Equal(t, "/repo/wt", next.Config.Cwd)
		assert.Equal(t, "notes", next.PendingHandover)
		assert.Nil(t, next.PendingWorktreeResume)
	})

	t.Run("hard", func(t *testing.T) {
		claude := models.SessionConfig{Command: "claude", Cwd: "/repo"}
		state, next, _ := Transition(models.StateIdle, ctx, Event{Type: EventReset, Hard: true, Config: &claude})
		assert.Equal(t, models.StateIdle, state)
		assert.Equal(t, "s1", next.SessionID)
		assert.Empty(t, next.ResumeToken)
		assert.Empty(t, next.IsolatedHome)
		assert.Empty(t, next.LastUserMessage)
		assert.Nil(t, next.ActiveWorktree)
		assert.Zero(t, next.MessageCount)
		assert.Equal(t, "/repo", next.Config.Cwd)
		assert.Equal(t, "notes", next.PendingHandover)
	})
}

func TestHandoverSlot(t *testing.T) {
	ctx := baseContext()

	_, set, _ := Transition(models.StateIdle, ctx, Event{Type: EventSetHandover, Text: "first"})
	_, set, _ = Transition(models.StateIdle, set, Event{Type: EventSetHandover, Text: "second"})

	_, taken, effects := Transition(models.StateIdle, set, Event{Type: EventConsumeHandover})
	require.Len(t, effects, 1)
	assert.Equal(t, "second", effects[0].Text)
	assert.Empty(t, taken.PendingHandover)

	_, _, again := Transition(models.StateIdle, taken, Event{Type: EventConsumeHandover})
	assert.Empty(t, again[0].Text)
}

func TestIsolatedHomeIsSetOnce(t *testing.T) {
	ctx := NewContext("s1", models.SessionConfig{})

	_, first, _ := Transition(models.StateIdle, ctx, Event{Type: EventSetIsolatedHome, Text: "/a"})
	_, second, effects := Transition(models.StateIdle, first, Event{Type: EventSetIsolatedHome, Text: "/b"})
	assert.Equal(t, "/a", second.IsolatedHome)
	assert.Equal(t, EffectIgnored, effects[0].Type)
}

func TestUnknownEvent(t *testing.T) {
	ctx := baseContext()
	state, next, effects := Transition(models.StateIdle, ctx, Event{Type: "BOGUS"})
	assert.Equal(t, models.StateIdle, state)
	assert.Equal(t, ctx, next)
	assert.Equal(t, EffectIgnored, effects[0].Type)
}
