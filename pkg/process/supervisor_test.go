package process

import (
	"bytes"
	stderrors "errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/grovetools/relay/errors"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type capture struct {
	mu     sync.Mutex
	stdout bytes.Buffer
	stderr bytes.Buffer
	exited chan int
}

func newCapture() *capture {
	return &capture{exited: make(chan int, 1)}
}

func (c *capture) handlers() Handlers {
	return Handlers{
		OnStdout: func(b []byte) {
			c.mu.Lock()
			defer c.mu.Unlock()
			c.stdout.Write(b)
		},
		OnStderr: func(b []byte) {
			c.mu.Lock()
			defer c.mu.Unlock()
			c.stderr.Write(b)
		},
		OnExit: func(code int, err error) {
			c.exited <- code
		},
	}
}

func (c *capture) waitExit(t *testing.T) int {
	t.Helper()
	select {
	case code := <-c.exited:
		return code
	case <-time.After(10 * time.Second):
		t.Fatal("process did not exit")
		return 0
	}
}

func quietSupervisor(opts ...Option) *Supervisor {
	logger := logrus.New()
	logger.SetOutput(os.Stderr)
	logger.SetLevel(logrus.WarnLevel)
	return NewSupervisor(append([]Option{WithLogger(logrus.NewEntry(logger))}, opts...)...)
}

func TestSpawnStreamsOutputAndExitCode(t *testing.T) {
	s := quietSupervisor()
	c := newCapture()

	h, err := s.Spawn(Invocation{
		Command: "sh",
		Args:    []string{"-c", "echo out; echo err 1>&2; exit 3"},
	}, c.handlers())
	require.NoError(t, err)
	assert.Greater(t, h.Pid(), 0)

	assert.Equal(t, 3, c.waitExit(t))
	assert.Equal(t, "out\n", c.stdout.String())
	assert.Equal(t, "err\n", c.stderr.String())
	assert.False(t, h.Alive())

	code, waitErr := h.Wait()
	assert.Equal(t, 3, code)
	assert.NoError(t, waitErr)
}

func TestSpawnUsesDirAndEnv(t *testing.T) {
	dir, err := filepath.EvalSymlinks(t.TempDir())
	require.NoError(t, err)

	s := quietSupervisor()
	c := newCapture()
	_, err = s.Spawn(Invocation{
		Command: "sh",
		Args:    []string{"-c", "pwd; echo $RELAY_SUPERVISOR_TEST"},
		Dir:     dir,
		Env:     append(os.Environ(), "RELAY_SUPERVISOR_TEST=hello"),
	}, c.handlers())
	require.NoError(t, err)

	assert.Equal(t, 0, c.waitExit(t))
	lines := strings.Split(strings.TrimSpace(c.stdout.String()), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, dir, lines[0])
	assert.Equal(t, "hello", lines[1])
}

func TestSpawnFailure(t *testing.T) {
	s := quietSupervisor()

	h, err := s.Spawn(Invocation{Command: "/nonexistent/relay-agent"}, Handlers{})
	assert.Nil(t, h)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrCodeSpawnFailed))
}

func TestTerminateKillsGroup(t *testing.T) {
	s := quietSupervisor()
	c := newCapture()

	h, err := s.Spawn(Invocation{Command: "sleep", Args: []string{"30"}}, c.handlers())
	require.NoError(t, err)

	s.Terminate(h)
	c.waitExit(t)
	assert.False(t, h.Alive())
}

func TestTerminateFallsBackWhenGroupKillFails(t *testing.T) {
	var calls atomic.Int32
	s := quietSupervisor(WithGroupKill(func(pid int) error {
		calls.Add(1)
		return stderrors.New("simulated group kill failure")
	}))
	c := newCapture()

	h, err := s.Spawn(Invocation{Command: "sleep", Args: []string{"30"}}, c.handlers())
	require.NoError(t, err)

	assert.NotPanics(t, func() { s.Terminate(h) })
	c.waitExit(t)
	assert.Equal(t, int32(1), calls.Load())
	assert.False(t, h.Alive())
}

func TestTerminateIsSafeOnFinishedHandles(t *testing.T) {
	s := quietSupervisor()
	c := newCapture()

	h, err := s.Spawn(Invocation{Command: "true"}, c.handlers())
	require.NoError(t, err)
	c.waitExit(t)

	assert.NotPanics(t, func() {
		s.Terminate(h)
		s.Terminate(nil)
	})
}

func TestIsProcessAlive(t *testing.T) {
	assert.True(t, IsProcessAlive(os.Getpid()))
	assert.False(t, IsProcessAlive(0))
	assert.False(t, IsProcessAlive(-1))
}
