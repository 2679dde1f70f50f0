package session

import (
	"fmt"
	"strings"
	"time"

	"github.com/grovetools/relay/pkg/driver"
	"github.com/grovetools/relay/pkg/models"
	"github.com/grovetools/relay/pkg/normalize"
	"github.com/grovetools/relay/pkg/process"
	"github.com/sirupsen/logrus"
)

const stderrTailLines = 20

// turn is one agent invocation. A turn with a nil handle is waiting for a
// previously stopped process to exit before it spawns.
type turn struct {
	id        int
	message   string
	family    models.Family
	streaming bool
	resumed   bool
	handle    *process.Handle
	detector  *Detector
	timer     *time.Timer

	stopped  bool
	stale    bool
	quota    bool
	reported bool

	stderrBuf  string
	stderrTail []string
}

func (s *Session) handleSend(text string, retry bool) {
	if s.state == models.StateProcessing {
		s.apply(Event{Type: EventUserMessage, Text: text, Retry: retry})
		s.notify(models.KindSystem, busyMessage)
		return
	}

	if !retry {
		s.stopTimer(&s.retryTimer)
		if s.ctx.InvalidResume {
			s.apply(Event{Type: EventResetResumeFlag})
		}
	}
	s.revalidateWorktree()

	for _, e := range s.apply(Event{Type: EventUserMessage, Text: text, Retry: retry}) {
		if e.Type == EffectStartTurn {
			s.startTurn(e.Text)
		}
	}
}

func (s *Session) startTurn(message string) {
	s.turnSeq++
	t := &turn{
		id:        s.turnSeq,
		message:   message,
		family:    s.family,
		streaming: s.ctx.Config.Streaming,
	}
	s.turn = t

	if s.draining != nil {
		s.log.WithField("turn", t.id).Debug("Deferring spawn until the previous process exits")
		return
	}
	s.spawn(t)
}

func (s *Session) spawn(t *turn) {
	drv := s.deps.Drivers.Driver(t.family)
	agent := s.agentConfig()
	t.detector = NewDetector(agent.StalePatterns, agent.QuotaPatterns)

	home := s.ensureHome(drv)
	token := ""
	if !s.ctx.InvalidResume {
		token = s.ctx.ResumeToken
	}
	t.resumed = token != ""

	inv, err := drv.Invocation(driver.Request{
		Command:     s.command,
		Config:      s.ctx.Config,
		Message:     t.message,
		ResumeToken: token,
		Home:        home,
	})
	if err != nil {
		s.failTurn(t, err)
		return
	}

	handle, err := s.deps.Spawner.Spawn(inv, process.Handlers{
		OnStdout: func(chunk []byte) { s.submit(func() { s.onStdout(t, chunk) }) },
		OnStderr: func(chunk []byte) { s.submit(func() { s.onStderr(t, chunk) }) },
		OnExit:   func(code int, err error) { s.submit(func() { s.onExit(t, code, err) }) },
	})
	if err != nil {
		s.failTurn(t, err)
		return
	}
	t.handle = handle

	s.log.WithFields(logrus.Fields{
		"turn":    t.id,
		"pid":     handle.Pid(),
		"resumed": t.resumed,
		"dir":     inv.Dir,
	}).Debugf("Spawned %s", driver.Describe(inv))

	if s.deps.Tracker != nil {
		s.deps.Tracker.ProcessStarted(s.id, t.family, handle.Pid(), inv)
	}
	if timeout := s.settings().Timeout(); timeout > 0 {
		t.timer = time.AfterFunc(timeout, func() {
			s.submit(func() { s.onTimeout(t, timeout) })
		})
	}
}

func (s *Session) failTurn(t *turn, err error) {
	s.log.WithError(err).WithField("turn", t.id).Warn("Failed to start agent")
	if s.turn == t {
		s.turn = nil
	}
	s.notify(models.KindError, fmt.Sprintf(spawnFailedFormat, err))
	s.apply(Event{Type: EventComplete})
	s.applyPendingWorktree()
}

// abandonTurn detaches t from the session and kills its process. Output that
// arrives afterwards is discarded; the exit is tracked through draining.
func (s *Session) abandonTurn(t *turn) {
	t.stopped = true
	s.stopTimer(&t.timer)
	s.stopTimer(&s.graceTimer)
	if s.turn == t {
		s.turn = nil
	}
	if t.handle != nil && t.handle.Alive() {
		s.deps.Spawner.Terminate(t.handle)
		s.draining = t.handle
	}
}

func (s *Session) onStdout(t *turn, chunk []byte) {
	if t != s.turn || t.stale {
		return
	}
	s.apply(Event{Type: EventAgentOutput, Text: string(chunk)})
	if !t.streaming {
		return
	}

	lines, rest := normalize.Split(s.ctx.Buffer)
	s.apply(Event{Type: EventConsumeBuffer, Text: rest})
	for _, line := range lines {
		s.handleEvents(t, s.deps.Decoders.Decode([]byte(line), t.family))
	}
}

func (s *Session) onStderr(t *turn, chunk []byte) {
	if t != s.turn || t.stale {
		return
	}
	lines, rest := normalize.Split(t.stderrBuf + string(chunk))
	t.stderrBuf = rest
	for _, line := range lines {
		s.handleStderrLine(t, line)
	}
}

func (s *Session) handleStderrLine(t *turn, line string) {
	line = strings.TrimSpace(line)
	if line == "" || t.stale {
		return
	}
	s.log.WithField("turn", t.id).Debugf("stderr: %s", line)

	if strings.HasPrefix(line, "{") {
		if events := s.deps.Decoders.Decode([]byte(line), t.family); len(events) > 0 {
			s.handleEvents(t, events)
			return
		}
	}

	t.stderrTail = append(t.stderrTail, line)
	if len(t.stderrTail) > stderrTailLines {
		t.stderrTail = t.stderrTail[len(t.stderrTail)-stderrTailLines:]
	}
	s.classify(t, line)
}

func (s *Session) handleEvents(t *turn, events []models.CanonicalEvent) {
	for _, ev := range events {
		if t.stale {
			return
		}
		if ev.ResumeTokenHint != "" {
			s.apply(Event{Type: EventSetResumeToken, Text: ev.ResumeTokenHint})
		}
		if ev.Kind == models.KindError {
			if s.classify(t, ev.Text) {
				continue
			}
			t.reported = true
		}
		s.emit(ev)
	}
}

// classify applies the stale-token and quota heuristics to error text. It
// returns true when the text was handled and must not be forwarded as is.
func (s *Session) classify(t *turn, text string) bool {
	if t.detector == nil {
		return false
	}
	if t.resumed && t.detector.IsStaleResume(text) {
		s.handleStale(t)
		return true
	}
	if t.detector.IsQuotaExhausted(text) {
		if !t.quota {
			t.quota = true
			t.reported = true
			s.log.WithField("turn", t.id).Warn("Agent quota exhausted")
			s.notify(models.KindError, quotaMessage(text))
		}
		return true
	}
	return false
}

func (s *Session) handleStale(t *turn) {
	if t.stale {
		return
	}
	t.stale = true
	t.reported = true
	s.log.WithFields(logrus.Fields{"turn": t.id, "token": s.ctx.ResumeToken}).Warn("Agent rejected resume token")

	s.apply(Event{Type: EventInvalidateResume})
	s.notify(models.KindSystem, "Saved conversation could not be resumed; starting a new one")
	s.stopTimer(&t.timer)
	if t.handle != nil {
		s.deps.Spawner.Terminate(t.handle)
	}
}

func (s *Session) onTimeout(t *turn, timeout time.Duration) {
	if t != s.turn || t.handle == nil {
		return
	}
	t.stopped = true
	t.reported = true
	s.log.WithField("turn", t.id).Warnf("Turn exceeded %s, terminating", timeout)
	s.notify(models.KindError, fmt.Sprintf("Turn timed out after %s", timeout))
	s.deps.Spawner.Terminate(t.handle)
}

func (s *Session) onExit(t *turn, code int, err error) {
	if s.deps.Tracker != nil && t.handle != nil {
		s.deps.Tracker.ProcessExited(s.id, t.handle.Pid())
	}

	if t != s.turn {
		if s.draining != nil && s.draining == t.handle {
			s.draining = nil
			if next := s.turn; next != nil && next.handle == nil {
				s.spawn(next)
				return
			}
			s.applyPendingWorktree()
		}
		return
	}
	s.finishTurn(t, code, err)
}

func (s *Session) finishTurn(t *turn, code int, err error) {
	s.stopTimer(&t.timer)
	s.stopTimer(&s.graceTimer)

	if t.stderrBuf != "" {
		s.handleStderrLine(t, t.stderrBuf)
		t.stderrBuf = ""
	}
	rest := s.ctx.Buffer
	s.apply(Event{Type: EventConsumeBuffer})
	if strings.TrimSpace(rest) != "" && !t.stale {
		s.handleEvents(t, s.deps.Decoders.Decode([]byte(rest), t.family))
	}

	s.turn = nil
	s.apply(Event{Type: EventComplete})

	switch {
	case t.stale, t.stopped, t.reported:
	case err != nil:
		s.notify(models.KindError, fmt.Sprintf("Agent process failed: %v", err))
	case code != 0:
		msg := fmt.Sprintf("Agent exited with code %d", code)
		if len(t.stderrTail) > 0 {
			msg += ": " + strings.Join(t.stderrTail, "\n")
		}
		s.notify(models.KindError, msg)
	}

	s.log.WithFields(logrus.Fields{"turn": t.id, "code": code, "stale": t.stale}).Debug("Turn finished")

	if s.ctx.PendingWorktreeResume != nil {
		s.applyPendingWorktree()
		return
	}
	if t.stale {
		s.scheduleRetry()
		return
	}
	s.notify(models.KindSystem, fmt.Sprintf(exitedFormat, code))
}

// scheduleRetry replays the last user message without a resume token,
// waiting longer before each attempt.
func (s *Session) scheduleRetry() {
	limit := s.settings().Retries()
	if s.ctx.LastUserMessage == "" || s.ctx.RetryCount >= limit {
		s.apply(Event{Type: EventResetResumeFlag})
		s.notify(models.KindError, fmt.Sprintf(retryGiveUpFormat, s.ctx.RetryCount))
		return
	}

	s.apply(Event{Type: EventRecordRetry})
	attempt := s.ctx.RetryCount
	delay := s.settings().Backoff() * time.Duration(attempt)
	s.notify(models.KindSystem, fmt.Sprintf("Retrying without resume token (attempt %d of %d)", attempt, limit))

	var timer *time.Timer
	timer = time.AfterFunc(delay, func() {
		s.submit(func() {
			if s.retryTimer != timer {
				return
			}
			s.retryTimer = nil
			s.apply(Event{Type: EventResetResumeFlag})
			s.handleSend(s.ctx.LastUserMessage, true)
		})
	})
	s.retryTimer = timer
}
