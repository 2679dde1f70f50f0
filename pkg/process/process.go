package process

import (
	"errors"
	"os"
	"syscall"
)

// IsProcessAlive reports whether pid names a running process. A process we
// may not signal still counts as alive.
func IsProcessAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	err = proc.Signal(syscall.Signal(0))
	return err == nil || errors.Is(err, syscall.EPERM)
}
