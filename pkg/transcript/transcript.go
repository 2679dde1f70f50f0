// Package transcript records session events as NDJSON files, one per
// session, and reads them back for the logs command.
package transcript

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	stdlog "log"
	"os"
	"path/filepath"
	"time"

	"github.com/grovetools/relay/logging"
	"github.com/grovetools/relay/pkg/events"
	"github.com/grovetools/relay/pkg/models"
	"github.com/grovetools/relay/util/sanitize"
	"github.com/hpcloud/tail"
	"github.com/sirupsen/logrus"
)

const fileExt = ".ndjson"

// Entry types.
const (
	TypeLog   = "log"
	TypeState = "state"
)

// Entry is one line of a transcript.
type Entry struct {
	Time        time.Time           `json:"time"`
	Seq         uint64              `json:"seq"`
	SessionID   string              `json:"session_id"`
	Type        string              `json:"type"`
	Kind        models.EventKind    `json:"kind,omitempty"`
	Data        string              `json:"data,omitempty"`
	State       models.SessionState `json:"state,omitempty"`
	ResumeToken string              `json:"resume_token,omitempty"`
}

// Path returns the transcript file for a session.
func Path(dir, sessionID string) string {
	return filepath.Join(dir, sanitize.ForFilename(sessionID)+fileExt)
}

// Recorder appends bus events to per-session transcript files.
type Recorder struct {
	dir    string
	sub    *events.Subscription
	logger *logrus.Entry
	done   chan struct{}

	files     map[string]*os.File
	lastState map[string]models.SessionState
}

// NewRecorder subscribes to every session on bus. Call Start to begin
// writing.
func NewRecorder(dir string, bus *events.Bus) *Recorder {
	return &Recorder{
		dir:       dir,
		sub:       bus.Subscribe("", events.DefaultBuffer*4),
		logger:    logging.NewLogger("relay-transcript"),
		done:      make(chan struct{}),
		files:     make(map[string]*os.File),
		lastState: make(map[string]models.SessionState),
	}
}

// Start consumes events until the subscription or the bus is closed.
func (r *Recorder) Start() {
	go func() {
		defer close(r.done)
		defer r.closeFiles()
		for ev := range r.sub.C {
			r.handle(ev)
		}
		if dropped := r.sub.Dropped(); dropped > 0 {
			r.logger.WithField("dropped", dropped).Warn("Transcript recorder fell behind and lost events")
		}
	}()
}

// Close stops recording and waits for pending writes.
func (r *Recorder) Close() {
	r.sub.Close()
	<-r.done
}

func (r *Recorder) handle(ev events.Event) {
	switch ev.Type {
	case events.TypeLog:
		r.write(ev.SessionID, Entry{
			Time:        ev.Log.Time,
			Seq:         ev.Seq,
			SessionID:   ev.SessionID,
			Type:        TypeLog,
			Kind:        ev.Log.Kind,
			Data:        ev.Log.Data,
			ResumeToken: ev.Log.ResumeToken,
		})
	case events.TypeStateChanged:
		// Only record transitions between states, not every context update.
		if r.lastState[ev.SessionID] == ev.State.StateValue {
			return
		}
		r.lastState[ev.SessionID] = ev.State.StateValue
		r.write(ev.SessionID, Entry{
			Time:      time.Now(),
			Seq:       ev.Seq,
			SessionID: ev.SessionID,
			Type:      TypeState,
			State:     ev.State.StateValue,
		})
	case events.TypeSessionRemoved:
		delete(r.lastState, ev.SessionID)
		if f, ok := r.files[ev.SessionID]; ok {
			f.Close()
			delete(r.files, ev.SessionID)
		}
	}
}

func (r *Recorder) write(sessionID string, entry Entry) {
	f, err := r.file(sessionID)
	if err != nil {
		r.logger.WithError(err).WithField("session", sessionID).Warn("Failed to open transcript")
		return
	}
	line, err := json.Marshal(entry)
	if err != nil {
		return
	}
	if _, err := f.Write(append(line, '\n')); err != nil {
		r.logger.WithError(err).WithField("session", sessionID).Warn("Failed to write transcript")
	}
}

func (r *Recorder) file(sessionID string) (*os.File, error) {
	if f, ok := r.files[sessionID]; ok {
		return f, nil
	}
	if err := os.MkdirAll(r.dir, 0700); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(Path(r.dir, sessionID), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0600)
	if err != nil {
		return nil, err
	}
	r.files[sessionID] = f
	return f, nil
}

func (r *Recorder) closeFiles() {
	for id, f := range r.files {
		f.Close()
		delete(r.files, id)
	}
}

// Read returns the entries in a transcript. When last is positive only the
// final last entries are returned. Lines that do not parse are skipped.
func Read(path string, last int) ([]Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var entries []Entry
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		var entry Entry
		if err := json.Unmarshal(scanner.Bytes(), &entry); err != nil {
			continue
		}
		entries = append(entries, entry)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read transcript: %w", err)
	}
	if last > 0 && len(entries) > last {
		entries = entries[len(entries)-last:]
	}
	return entries, nil
}

// Follow calls fn for every entry appended to the transcript at path until
// ctx is cancelled. With fromStart it first replays existing entries. The
// file does not need to exist yet.
func Follow(ctx context.Context, path string, fromStart bool, fn func(Entry)) error {
	whence := io.SeekEnd
	if fromStart {
		whence = io.SeekStart
	}
	t, err := tail.TailFile(path, tail.Config{
		Follow:    true,
		ReOpen:    true,
		MustExist: false,
		Location:  &tail.SeekInfo{Offset: 0, Whence: whence},
		Logger:    stdlog.New(io.Discard, "", 0),
	})
	if err != nil {
		return fmt.Errorf("follow transcript: %w", err)
	}
	defer t.Cleanup()
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-t.Lines:
			if !ok {
				return t.Err()
			}
			if line.Err != nil {
				continue
			}
			var entry Entry
			if err := json.Unmarshal([]byte(line.Text), &entry); err != nil {
				continue
			}
			fn(entry)
		}
	}
}
