// Package config resolves the router's handful of environment-variable
// knobs (§6) and the filesystem paths its persisted state (PID file,
// socket file) lives at. There is no config file to bind here — unlike
// the rest of the stack this package has no need for a YAML/viper
// layer; see DESIGN.md for why viper was left out of this module.
package config

import (
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"time"
)

const (
	envSocket  = "BROWSER_AGENT_DAEMON_SOCKET"
	envWSHost  = "BROWSER_AGENT_WS_HOST"
	envWSPort  = "BROWSER_AGENT_WS_PORT"
	envLogFile = "BROWSER_AGENT_LOG_FILE"

	DefaultWSHost = "127.0.0.1"
	DefaultWSPort = 3026

	MaxSessions = 100
)

// These are declared as vars, not consts, so tests can shrink them (an
// idle-shutdown test that actually waited 60s would be unusable).
var (
	RequestDeadline   = 30 * time.Second
	IdleShutdown      = 60 * time.Second
	StartupLockWait   = 5 * time.Second
)

// Config holds the resolved runtime configuration shared by the helper,
// the daemon, and the side panel's dev CLI.
type Config struct {
	SocketPath string
	WSHost     string
	WSPort     int
	LogFile    string
}

// Load resolves Config from environment variables, falling back to
// per-OS defaults for anything unset, via a single entry point that
// does all env/home-dir resolution in one place.
func Load() Config {
	c := Config{
		SocketPath: os.Getenv(envSocket),
		WSHost:     os.Getenv(envWSHost),
		LogFile:    os.Getenv(envLogFile),
	}
	if c.SocketPath == "" {
		c.SocketPath = defaultSocketPath()
	}
	if c.WSHost == "" {
		c.WSHost = DefaultWSHost
	}
	if p := os.Getenv(envWSPort); p != "" {
		if n, err := strconv.Atoi(p); err == nil {
			c.WSPort = n
		}
	}
	if c.WSPort == 0 {
		c.WSPort = DefaultWSPort
	}
	return c
}

// PIDPath returns the PID file path, kept colocated next to the socket
// so a process's lifecycle files live in one place.
func (c Config) PIDPath() string {
	return c.SocketPath + ".pid"
}

// LockPath returns the cross-process startup lock file path (§4.4 step
// 2, §9 "Mutual-exclusion for daemon spawn") sitting next to the socket.
func (c Config) LockPath() string {
	return c.SocketPath + ".lock"
}

func runtimeDir() string {
	if d := os.Getenv("XDG_RUNTIME_DIR"); d != "" {
		return d
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".browser-agent", "run")
	}
	return os.TempDir()
}

func defaultSocketPath() string {
	if runtime.GOOS == "windows" {
		// Named pipes live in their own namespace, not the filesystem;
		// the daemon still needs a stable string to identify itself.
		return `\\.\pipe\browser-agent`
	}
	dir := runtimeDir()
	_ = os.MkdirAll(dir, 0o700)
	return filepath.Join(dir, "browser-agent.sock")
}
