package daemon

import (
	"net"
	"os"
	"time"

	"github.com/grovetools/relay/errors"
	"github.com/grovetools/relay/pkg/relay"
)

// Dial returns a RemoteClient if a daemon is listening on socketPath.
func Dial(socketPath string) (*RemoteClient, error) {
	if _, err := os.Stat(socketPath); err != nil {
		return nil, errors.DaemonUnavailable(socketPath, err)
	}
	conn, err := net.DialTimeout("unix", socketPath, 100*time.Millisecond)
	if err != nil {
		return nil, errors.DaemonUnavailable(socketPath, err)
	}
	conn.Close()
	return NewRemoteClient(socketPath)
}

// New returns a Client that will use the daemon if available, otherwise an
// in-process registry built by local.
//
// Callers don't need to know whether the daemon is running; the same API
// works in both modes.
func New(socketPath string, local func() (*relay.Registry, error)) (Client, error) {
	if client, err := Dial(socketPath); err == nil {
		return client, nil
	}
	registry, err := local()
	if err != nil {
		return nil, err
	}
	return NewLocalClient(registry), nil
}
