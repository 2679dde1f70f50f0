package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLogger(t *testing.T) {
	t.Setenv("RELAY_HOME", t.TempDir())

	logger := NewLogger("test-component")
	if logger == nil {
		t.Fatal("Expected logger to be created")
	}

	if logger.Data["component"] != "test-component" {
		t.Errorf("Expected component to be 'test-component', got %v", logger.Data["component"])
	}

	// Cached per component
	if NewLogger("test-component") != logger {
		t.Error("Expected the same logger instance for the same component")
	}
}

func TestLoggerOutput(t *testing.T) {
	var buf bytes.Buffer

	logger := logrus.New()
	logger.SetOutput(&buf)
	logger.SetFormatter(&TextFormatter{Config: FormatConfig{}})

	entry := logger.WithField("component", "test")
	entry.Info("Test message")

	output := buf.String()

	if !strings.Contains(output, "[INFO]") {
		t.Errorf("Expected output to contain [INFO], got: %s", output)
	}
	if !strings.Contains(output, "[test]") {
		t.Errorf("Expected output to contain [test], got: %s", output)
	}
	if !strings.Contains(output, "Test message") {
		t.Errorf("Expected output to contain 'Test message', got: %s", output)
	}
}

func TestTextFormatter(t *testing.T) {
	tests := []struct {
		name    string
		config  FormatConfig
		entry   *logrus.Entry
		want    []string
		notWant []string
	}{
		{
			name:   "default format",
			config: FormatConfig{},
			entry: &logrus.Entry{
				Level:   logrus.InfoLevel,
				Message: "test message",
				Data: logrus.Fields{
					"component": "session",
					"session":   "s1",
					"pid":       42,
				},
			},
			want: []string{"[INFO]", "[session]", "test message", "pid=42 session=s1"},
		},
		{
			name: "simple format",
			config: FormatConfig{
				DisableTimestamp: true,
				DisableComponent: true,
			},
			entry: &logrus.Entry{
				Level:   logrus.WarnLevel,
				Message: "warning message",
				Data: logrus.Fields{
					"component": "session",
				},
			},
			want:    []string{"[WARN]", "warning message"},
			notWant: []string{"[session]", "2024"},
		},
		{
			name:   "caller information with function name",
			config: FormatConfig{},
			entry: func() *logrus.Entry {
				logger := logrus.New()
				logger.SetReportCaller(true)
				return &logrus.Entry{
					Logger:  logger,
					Level:   logrus.InfoLevel,
					Message: "test message with caller",
					Data:    logrus.Fields{"component": "supervisor"},
					Caller: &runtime.Frame{
						File:     "/path/to/supervisor.go",
						Line:     42,
						Function: "github.com/example/process.Spawn",
					},
				}
			}(),
			want: []string{"[supervisor.go:42 process.Spawn]"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			formatter := &TextFormatter{Config: tt.config}
			tt.entry.Time = time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)

			out, err := formatter.Format(tt.entry)
			require.NoError(t, err)

			for _, want := range tt.want {
				assert.Contains(t, string(out), want)
			}
			for _, notWant := range tt.notWant {
				assert.NotContains(t, string(out), notWant)
			}
		})
	}
}

func TestLevelFromEnvironment(t *testing.T) {
	t.Setenv("RELAY_LOG_LEVEL", "debug")
	logger := newLogger("env-test", Config{Level: "error"})
	assert.Equal(t, logrus.DebugLevel, logger.GetLevel())

	t.Setenv("RELAY_LOG_LEVEL", "")
	logger = newLogger("env-test", Config{Level: "error"})
	assert.Equal(t, logrus.ErrorLevel, logger.GetLevel())

	logger = newLogger("env-test", Config{Level: "nonsense"})
	assert.Equal(t, logrus.InfoLevel, logger.GetLevel())
}

func TestFileSink(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "relay.log")

	logger := newLogger("file-test", Config{
		File:   FileSinkConfig{Enabled: true, Path: path},
		Format: FormatConfig{StructuredToStderr: "never"},
	})
	logger.WithField("component", "file-test").Info("written to file")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "written to file")
}

func TestShouldLogToStderr(t *testing.T) {
	assert.True(t, shouldLogToStderr("always", logrus.InfoLevel))
	assert.False(t, shouldLogToStderr("never", logrus.DebugLevel))
	assert.True(t, shouldLogToStderr("auto", logrus.DebugLevel))
}

func TestPrettyEvent(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrettyLogger().WithWriter(&buf)

	p.Event("text", "hello")
	p.Event("tool_call", "ls -la")
	p.Event("tool_result", "a\nb")
	p.Event("error", "boom")

	out := buf.String()
	assert.Contains(t, out, "hello\n")
	assert.Contains(t, out, "ls -la")
	assert.Contains(t, out, "  a\n")
	assert.Contains(t, out, "boom")
}
