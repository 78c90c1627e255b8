package daemon

import (
	"net"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/zhaopengme/browser-agent-extension/internal/config"
)

// listenHelperSocket opens the daemon's helper-facing listener: a Unix
// domain socket on POSIX, or — since the standard library has no named
// pipe support — a loopback TCP listener whose ephemeral port is
// recorded in the socket path itself on Windows, mirroring the
// teacher's own port-file fallback for that platform.
func (d *Daemon) listenHelperSocket() (net.Listener, error) {
	if runtime.GOOS == "windows" {
		ln, err := net.Listen("tcp", "127.0.0.1:0")
		if err != nil {
			return nil, err
		}
		port := ln.Addr().(*net.TCPAddr).Port
		if err := os.WriteFile(d.cfg.SocketPath, []byte(strconv.Itoa(port)), 0o600); err != nil {
			ln.Close()
			return nil, err
		}
		return ln, nil
	}

	if err := os.MkdirAll(filepath.Dir(d.cfg.SocketPath), 0o700); err != nil {
		return nil, err
	}
	os.Remove(d.cfg.SocketPath)
	ln, err := net.Listen("unix", d.cfg.SocketPath)
	if err != nil {
		return nil, err
	}
	os.Chmod(d.cfg.SocketPath, 0o600)
	return ln, nil
}

// DialHelperSocket connects to a running daemon's helper socket,
// honoring the same per-platform convention as listenHelperSocket.
func DialHelperSocket(cfg config.Config, timeout time.Duration) (net.Conn, error) {
	if runtime.GOOS == "windows" {
		data, err := os.ReadFile(cfg.SocketPath)
		if err != nil {
			return nil, err
		}
		return net.DialTimeout("tcp", "127.0.0.1:"+strings.TrimSpace(string(data)), timeout)
	}
	return net.DialTimeout("unix", cfg.SocketPath, timeout)
}
