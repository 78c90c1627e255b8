//go:build windows

package helper

import (
	"os/exec"
	"syscall"
)

// setDetached uses CREATE_NEW_PROCESS_GROUP so the daemon isn't killed
// when the spawning helper's console is torn down.
func setDetached(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{CreationFlags: syscall.CREATE_NEW_PROCESS_GROUP}
}
