package transcript

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/grovetools/relay/pkg/events"
	"github.com/grovetools/relay/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorderWritesTranscripts(t *testing.T) {
	dir := t.TempDir()
	bus := events.New()
	rec := NewRecorder(dir, bus)
	rec.Start()

	now := time.Now()
	bus.StateChanged(models.StateChange{SessionID: "s1", StateValue: models.StateProcessing})
	bus.Log(models.LogEvent{SessionID: "s1", Data: "hello", Kind: models.KindText, Time: now})
	bus.StateChanged(models.StateChange{SessionID: "s1", StateValue: models.StateProcessing})
	bus.Log(models.LogEvent{SessionID: "team/b", Data: "other", Kind: models.KindSystem, Time: now})
	bus.StateChanged(models.StateChange{SessionID: "s1", StateValue: models.StateIdle})
	rec.Close()

	entries, err := Read(Path(dir, "s1"), 0)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, TypeState, entries[0].Type)
	assert.Equal(t, models.StateProcessing, entries[0].State)
	assert.Equal(t, "hello", entries[1].Data)
	assert.Equal(t, models.KindText, entries[1].Kind)
	assert.Equal(t, models.StateIdle, entries[2].State)

	last, err := Read(Path(dir, "s1"), 1)
	require.NoError(t, err)
	require.Len(t, last, 1)
	assert.Equal(t, models.StateIdle, last[0].State)

	other, err := Read(Path(dir, "team/b"), 0)
	require.NoError(t, err)
	require.Len(t, other, 1)
	assert.Equal(t, "team/b", other[0].SessionID)
}

func TestReadSkipsGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "x.ndjson")
	require.NoError(t, os.WriteFile(path, []byte("not json\n{\"type\":\"log\",\"data\":\"ok\"}\n"), 0600))

	entries, err := Read(path, 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "ok", entries[0].Data)

	_, err = Read(filepath.Join(t.TempDir(), "missing"), 0)
	assert.True(t, os.IsNotExist(err))
}

func TestFollow(t *testing.T) {
	path := filepath.Join(t.TempDir(), "s.ndjson")
	require.NoError(t, os.WriteFile(path, []byte("{\"type\":\"log\",\"data\":\"first\"}\n"), 0600))

	ctx, cancel := context.WithCancel(context.Background())
	got := make(chan Entry, 10)
	done := make(chan error, 1)
	go func() {
		done <- Follow(ctx, path, true, func(e Entry) { got <- e })
	}()

	select {
	case e := <-got:
		assert.Equal(t, "first", e.Data)
	case <-time.After(5 * time.Second):
		t.Fatal("existing entry not replayed")
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0600)
	require.NoError(t, err)
	_, err = f.WriteString("{\"type\":\"log\",\"data\":\"second\"}\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	select {
	case e := <-got:
		assert.Equal(t, "second", e.Data)
	case <-time.After(5 * time.Second):
		t.Fatal("appended entry not delivered")
	}

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("follow did not stop")
	}
}
