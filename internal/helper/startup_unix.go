//go:build !windows

package helper

import (
	"os/exec"
	"syscall"
)

// setDetached puts the spawned daemon in its own session so it outlives
// the helper that spawned it.
func setDetached(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
}
