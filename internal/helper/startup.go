package helper

import (
	"fmt"
	"os"
	"os/exec"
	"time"

	"github.com/zhaopengme/browser-agent-extension/internal/config"
	"github.com/zhaopengme/browser-agent-extension/internal/daemon"
)

// spawnDaemon implements §4.4 step 2-3 and §9's "mutual-exclusion for
// daemon spawn": acquire an exclusive-create lock file next to the
// socket; the loser of the race polls instead of spawning a second
// daemon. The winner re-execs its own binary with --daemon, detached
// (Setsid, so the daemon outlives this helper process), and releases
// the lock once the socket is observed or the wait window elapses.
func spawnDaemon(cfg config.Config) error {
	lockFile, err := os.OpenFile(cfg.LockPath(), os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		if os.IsExist(err) {
			// Someone else is already spawning; poll for the socket
			// instead of racing them for the lock.
			return waitForLockRelease(cfg)
		}
		return fmt.Errorf("acquire startup lock: %w", err)
	}
	defer os.Remove(cfg.LockPath())
	lockFile.Close()

	exe, err := os.Executable()
	if err != nil {
		return fmt.Errorf("resolve own executable: %w", err)
	}

	cmd := exec.Command(exe, "--daemon")
	cmd.Stdout = nil
	cmd.Stderr = nil
	setDetached(cmd)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("spawn daemon: %w", err)
	}
	// Keep holding the lock until the new daemon's socket answers or the
	// wait window elapses; the deferred Remove releases it afterwards.
	deadline := time.Now().Add(config.StartupLockWait)
	for time.Now().Before(deadline) && !daemon.IsRunning(cfg) {
		time.Sleep(100 * time.Millisecond)
	}
	return cmd.Process.Release()
}

// waitForLockRelease polls for the lock file to disappear (the winner
// releases it once its daemon is up, or on failure), bounded by the
// same startup window §4.4 gives followers for the socket itself.
func waitForLockRelease(cfg config.Config) error {
	deadline := time.Now().Add(config.StartupLockWait)
	for time.Now().Before(deadline) {
		if _, err := os.Stat(cfg.LockPath()); os.IsNotExist(err) {
			return nil
		}
		time.Sleep(100 * time.Millisecond)
	}
	return fmt.Errorf("startup lock held past wait window")
}
