package cli

import (
	"bytes"
	"fmt"
	"strings"
	"testing"

	"github.com/grovetools/relay/config"
	"github.com/grovetools/relay/errors"
	"github.com/grovetools/relay/pkg/paths"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWrapText(t *testing.T) {
	got := wrapText("one two three four\nfive", 9)
	assert.Equal(t, "one two\nthree\nfour\nfive", got)
}

func TestErrorHandlerMessages(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"session", errors.SessionNotFound("s1"), "relay ls"},
		{"daemon", errors.DaemonUnavailable("/tmp/x.sock", fmt.Errorf("refused")), "relay serve start"},
		{"input", errors.InvalidInput("bad id"), "bad id"},
		{"wrapped", fmt.Errorf("send: %w", errors.SessionNotFound("s2")), "s2"},
		{"plain", fmt.Errorf("boom"), "boom"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			err := NewErrorHandler(&out, false).Handle(tt.err)
			assert.Equal(t, tt.err, err)
			assert.Contains(t, out.String(), tt.want)
		})
	}
}

func TestVerboseShowsDetails(t *testing.T) {
	var out bytes.Buffer
	NewErrorHandler(&out, true).Handle(errors.SessionNotFound("s1"))
	assert.Contains(t, out.String(), "SESSION_NOT_FOUND")
}

func TestStyledHelpListsCommandsAndFlags(t *testing.T) {
	root := NewStandardCommand("relay", "Drive AI agents")
	child := &cobra.Command{Use: "send <session> <text>", Short: "Send a message", Run: func(*cobra.Command, []string) {}}
	child.Flags().Bool("wait", false, "Wait for the turn")
	root.AddCommand(child)

	var out bytes.Buffer
	renderHelp(&out, root, 60)
	assert.Contains(t, out.String(), "COMMANDS")
	assert.Contains(t, out.String(), "send")

	out.Reset()
	renderHelp(&out, child, 60)
	assert.Contains(t, out.String(), "--wait")
	assert.True(t, strings.HasPrefix(strings.TrimSpace(out.String()), "RELAY SEND") ||
		strings.Contains(out.String(), "RELAY SEND"))
}

func TestSocketPathPrecedence(t *testing.T) {
	t.Setenv("RELAY_HOME", "/tmp/relay-home")

	cmd := NewStandardCommand("relay", "x")
	opts := GetOptions(cmd)
	assert.Empty(t, opts.Socket)
	assert.Equal(t, paths.SocketPath(), opts.SocketPath(nil))

	cfg := &config.Config{Daemon: config.DaemonSettings{Socket: "/run/relay.sock"}}
	assert.Equal(t, "/run/relay.sock", opts.SocketPath(cfg))

	require.NoError(t, cmd.ParseFlags([]string{"--socket=/tmp/flag.sock"}))
	assert.Equal(t, "/tmp/flag.sock", GetOptions(cmd).SocketPath(cfg))
}
