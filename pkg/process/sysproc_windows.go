//go:build windows

package process

import (
	"errors"
	"os/exec"
)

func setProcessGroup(cmd *exec.Cmd) {}

func killGroup(pid int) error {
	return errors.New("process groups are not supported on windows")
}
