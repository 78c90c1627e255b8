// Command browseragent is the single-binary entrypoint for all three
// processes in this system. Bare invocation runs the MCP Helper
// (stdio mode, the form an agent host execs); --daemon selects the
// Router Daemon, for use both directly and as the self-spawn target the
// helper re-execs itself as per §4.4 step 3. "daemon status" queries a
// running daemon over its IPC socket and "daemon stop" sends SIGTERM to
// the pid in its PID file; both are ops conveniences. "sidepanel" runs the Side Panel against the in-memory fake
// executor for local testing without a real browser extension attached.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/zhaopengme/browser-agent-extension/internal/config"
	"github.com/zhaopengme/browser-agent-extension/internal/daemon"
	"github.com/zhaopengme/browser-agent-extension/internal/executor"
	"github.com/zhaopengme/browser-agent-extension/internal/helper"
	"github.com/zhaopengme/browser-agent-extension/internal/protocol"
	"github.com/zhaopengme/browser-agent-extension/internal/sidepanel"
)

func main() {
	var daemonFlag bool

	root := &cobra.Command{
		Use:   "browseragent",
		Short: "MCP bridge between an agent host and a browser extension",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := setupLogging(config.Load())
			ctx := signalContext()
			if daemonFlag {
				return runDaemon(ctx, cfg)
			}
			return runHelper(ctx, cfg)
		},
	}
	root.Flags().BoolVar(&daemonFlag, "daemon", false, "run the router daemon instead of the MCP helper")

	daemonCmd := &cobra.Command{
		Use:   "daemon",
		Short: "router daemon operations",
	}
	daemonCmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "report whether a daemon is running and reachable",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDaemonStatus(config.Load())
		},
	})
	daemonCmd.AddCommand(&cobra.Command{
		Use:   "stop",
		Short: "stop a running daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDaemonStop(config.Load())
		},
	})
	root.AddCommand(daemonCmd)

	root.AddCommand(&cobra.Command{
		Use:   "sidepanel",
		Short: "run the side panel against the in-memory fake executor",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := setupLogging(config.Load())
			return runSidepanel(signalContext(), cfg)
		},
	})

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func setupLogging(cfg config.Config) config.Config {
	if cfg.LogFile == "" {
		return cfg
	}
	f, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		fmt.Fprintf(os.Stderr, "could not open log file %s: %v\n", cfg.LogFile, err)
		return cfg
	}
	log.SetOutput(f)
	return cfg
}

func signalContext() context.Context {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	_ = stop
	return ctx
}

func runDaemon(ctx context.Context, cfg config.Config) error {
	d := daemon.New(cfg)
	go func() {
		<-ctx.Done()
		d.Shutdown("signal")
		os.Exit(0)
	}()
	if err := d.Start(ctx); err != nil {
		return err
	}
	return nil
}

func runHelper(ctx context.Context, cfg config.Config) error {
	h := helper.New(cfg)

	// Exit code 1 on fatal initialization/daemon-loss errors, 0 on clean
	// shutdown (§6 Exit codes). A force-exit watchdog guarantees the
	// process terminates even if some goroutine is stuck mid-teardown.
	done := make(chan error, 1)
	go func() { done <- h.Run(ctx) }()

	select {
	case err := <-done:
		if err != nil {
			return err
		}
		return nil
	case <-ctx.Done():
		select {
		case err := <-done:
			return err
		case <-time.After(5 * time.Second):
			os.Exit(1)
		}
	}
	return nil
}

func runDaemonStatus(cfg config.Config) error {
	conn, err := daemon.DialHelperSocket(cfg, 500*time.Millisecond)
	if err != nil {
		fmt.Println("daemon: not running")
		return nil
	}
	defer conn.Close()

	enc := protocol.NewEncoder(conn)
	dec := protocol.NewDecoder(conn)
	if err := enc.Encode(protocol.Message{Kind: protocol.KindRegister}); err != nil {
		return err
	}
	reg, _, err := dec.Next()
	if err != nil || reg.Kind != protocol.KindRegisterOK {
		fmt.Println("daemon: running but REGISTER failed")
		return nil
	}
	if err := enc.Encode(protocol.Message{Kind: protocol.KindStatus}); err != nil {
		return err
	}
	status, _, err := dec.Next()
	if err != nil {
		return err
	}
	fmt.Printf("daemon: running, extensionConnected=%v activeSessions=%d\n", status.ExtensionConnected, status.ActiveSessions)
	printRecentActivity(enc, dec)
	enc.Encode(protocol.Message{Kind: protocol.KindDisconnect, SessionID: reg.SessionID})
	return nil
}

// printRecentActivity asks the daemon for its bounded in-memory
// activity log (§3.1) and renders it as a human-facing table; purely
// an operability aid, best-effort on any error.
func printRecentActivity(enc *protocol.Encoder, dec *protocol.Decoder) {
	if err := enc.Encode(protocol.Message{Kind: protocol.KindActivity}); err != nil {
		return
	}
	reply, _, err := dec.Next()
	if err != nil || reply.Kind != protocol.KindActivityOK {
		return
	}
	var entries []daemon.Activity
	if err := json.Unmarshal(reply.Data, &entries); err != nil || len(entries) == 0 {
		return
	}
	fmt.Printf("recent activity (last %d):\n", len(entries))
	for _, a := range entries {
		status := "ok"
		if !a.Success {
			status = "error: " + a.Error
		}
		fmt.Printf("  %s  %-20s session=%s %dms %s\n",
			a.Timestamp.Format(time.RFC3339), a.Action, a.SessionID, a.LatencyMS, status)
	}
}

func runDaemonStop(cfg config.Config) error {
	data, err := os.ReadFile(cfg.PIDPath())
	if err != nil {
		fmt.Println("daemon: not running (no pid file)")
		return nil
	}
	var pid int
	if _, err := fmt.Sscanf(string(data), "%d", &pid); err != nil {
		return fmt.Errorf("malformed pid file: %w", err)
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return err
	}
	if err := proc.Signal(syscall.SIGTERM); err != nil {
		return fmt.Errorf("signal daemon pid %d: %w", pid, err)
	}
	fmt.Printf("sent SIGTERM to daemon pid %d\n", pid)
	return nil
}

func runSidepanel(ctx context.Context, cfg config.Config) error {
	fake, err := newFakeExecutor()
	if err != nil {
		return err
	}
	p := sidepanel.New(cfg, fake, fake)
	return p.Run(ctx)
}

// newFakeExecutor builds the in-memory executor, optionally preloaded
// from a fixtures file named by BROWSER_AGENT_FIXTURES so a local run
// can start with a known, reproducible tab set (§8 S1-S6).
func newFakeExecutor() (*executor.Fake, error) {
	if path := os.Getenv("BROWSER_AGENT_FIXTURES"); path != "" {
		fake, err := executor.NewFakeFromFixtures(path)
		if err != nil {
			return nil, fmt.Errorf("load fixtures: %w", err)
		}
		return fake, nil
	}
	return executor.NewFake(), nil
}
