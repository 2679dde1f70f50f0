package session

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/grovetools/relay/command"
	"github.com/grovetools/relay/errors"
	"github.com/grovetools/relay/pkg/models"
	"github.com/sirupsen/logrus"
)

// ValidateWorktree checks that a relocation target is usable.
func ValidateWorktree(wt models.WorktreeContext) error {
	if reason := worktreeProblem(wt); reason != "" {
		return errors.WorktreeUnavailable(wt.Cwd, reason)
	}
	return nil
}

func worktreeProblem(wt models.WorktreeContext) string {
	if strings.TrimSpace(wt.Cwd) == "" {
		return "no path given"
	}
	info, err := os.Stat(wt.Cwd)
	if os.IsNotExist(err) {
		return "directory does not exist"
	}
	if err != nil {
		return err.Error()
	}
	if !info.IsDir() {
		return "not a directory"
	}
	if wt.Branch != "" {
		if err := command.ValidateGitRef(wt.Branch); err != nil {
			return fmt.Sprintf("invalid branch %q", wt.Branch)
		}
	}
	return ""
}

// RequestWorktreeResume asks the session to continue in another worktree.
// The request is rejected when the target is unusable. A running turn gets
// the grace delay to flush output before it is stopped; the replay runs once
// the process exits. An idle session replays on the next scheduling tick.
// A second request before the first is consumed replaces it.
func (s *Session) RequestWorktreeResume(req models.WorktreeRequest) bool {
	accepted := false
	s.call(func() {
		accepted = s.requestWorktree(req)
	})
	return accepted
}

func (s *Session) requestWorktree(req models.WorktreeRequest) bool {
	wt := req.WorktreeContext
	if reason := worktreeProblem(wt); reason != "" {
		s.log.WithFields(logrus.Fields{"cwd": wt.Cwd, "reason": reason}).Warn("Rejected worktree relocation")
		s.notify(models.KindSystem, fmt.Sprintf("Worktree unavailable: %s (%s)", wt.Cwd, reason))
		return false
	}

	message := req.ResumeMessage
	if strings.TrimSpace(message) == "" {
		message = resumeMessage(wt, s.ctx)
	}
	s.apply(Event{
		Type:    EventSetPendingWorktreeResume,
		Pending: &models.PendingWorktreeResume{Request: wt, ResumeMessage: message},
	})
	s.log.WithFields(logrus.Fields{"cwd": wt.Cwd, "branch": wt.Branch}).Info("Worktree relocation requested")

	t := s.turn
	switch {
	case t != nil && t.handle == nil:
		// Never spawned; the replay supersedes it once the old process exits.
		s.turn = nil
		s.apply(Event{Type: EventStop})
	case t != nil:
		if s.graceTimer == nil {
			s.startGrace(t, s.settings().GraceDelay())
		}
	case s.draining == nil:
		s.scheduleTick()
	}
	return true
}

func (s *Session) startGrace(t *turn, delay time.Duration) {
	var timer *time.Timer
	timer = time.AfterFunc(delay, func() {
		s.submit(func() {
			if s.graceTimer != timer {
				return
			}
			s.graceTimer = nil
			if s.turn == t && t.handle != nil {
				s.log.WithField("turn", t.id).Debug("Grace delay elapsed, stopping turn for relocation")
				t.stopped = true
				s.deps.Spawner.Terminate(t.handle)
			}
		})
	})
	s.graceTimer = timer
}

func (s *Session) scheduleTick() {
	if s.tickPending {
		return
	}
	s.tickPending = true
	go s.submit(func() {
		s.tickPending = false
		s.applyPendingWorktree()
	})
}

// applyPendingWorktree consumes a pending relocation: it activates the
// worktree and replays the resume message as a new turn.
func (s *Session) applyPendingWorktree() {
	p := s.ctx.PendingWorktreeResume
	if p == nil || s.state != models.StateIdle || s.turn != nil || s.draining != nil {
		return
	}
	pending := *p
	s.apply(Event{Type: EventClearPendingWorktreeResume})

	if reason := worktreeProblem(pending.Request); reason != "" {
		s.notify(models.KindSystem, fmt.Sprintf("Worktree unavailable: %s (%s)", pending.Request.Cwd, reason))
		return
	}

	s.apply(Event{Type: EventActivateWorktree, Worktree: &pending.Request})
	text := "Switched to worktree " + pending.Request.Cwd
	if pending.Request.Branch != "" {
		text += " (branch " + pending.Request.Branch + ")"
	}
	s.notify(models.KindSystem, text)
	s.handleSend(pending.ResumeMessage, false)
}

// revalidateWorktree falls back to the project root when the active
// worktree has disappeared.
func (s *Session) revalidateWorktree() {
	wt := s.ctx.ActiveWorktree
	if wt == nil || worktreeProblem(*wt) == "" {
		return
	}
	gone := wt.Cwd
	s.apply(Event{Type: EventClearActiveWorktree})
	s.log.WithField("cwd", gone).Warn("Active worktree disappeared, falling back to project root")
	s.notify(models.KindSystem, fmt.Sprintf("Worktree %s no longer exists; continuing in %s", gone, s.ctx.ProjectRoot))
}

func resumeMessage(wt models.WorktreeContext, ctx models.SessionContext) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Your working directory has moved to the git worktree at %s.", wt.Cwd)
	if wt.Branch != "" {
		fmt.Fprintf(&b, " It has branch %s checked out.", wt.Branch)
	}
	if ctx.ProjectRoot != "" && ctx.ProjectRoot != wt.Cwd {
		fmt.Fprintf(&b, " The main checkout remains at %s.", ctx.ProjectRoot)
	}
	b.WriteString(" Continue the task you were working on from there.")
	if ctx.LastUserMessage != "" {
		fmt.Fprintf(&b, "\n\nThe last request was:\n%s", ctx.LastUserMessage)
	}
	return b.String()
}
