package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"meetscribe/internal/backup"
	"meetscribe/internal/config"
	"meetscribe/internal/daemon"
	"meetscribe/internal/ipc"
	"meetscribe/internal/logging"
	"meetscribe/internal/recorder"
	"meetscribe/internal/session"
	"meetscribe/internal/store"
	"meetscribe/internal/testsupport"
)

type cliTestEnv struct {
	cfg        *config.Config
	store      *store.Store
	daemon     *daemon.Daemon
	socketPath string
	configPath string
}

func setupCLITestEnv(t *testing.T) *cliTestEnv {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.DataDir = filepath.Join(base, "data")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Paths.SocketPath = filepath.Join(base, "cli.sock")
	cfgVal.Paths.APIBind = ""
	cfg := &cfgVal

	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("ensure directories: %v", err)
	}

	configPath := filepath.Join(base, "config.toml")
	data, err := toml.Marshal(cfg)
	if err != nil {
		t.Fatalf("marshal config: %v", err)
	}
	if err := os.WriteFile(configPath, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	st, err := store.Open(cfg)
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}

	logger := logging.NewNop()
	rec := recorder.NewService(st, logger)
	mgr := backup.NewManager(st, rec, cfg, logger)
	d, err := daemon.New(cfg, st, logger, rec, mgr)
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	if err := d.Start(ctx); err != nil {
		t.Fatalf("daemon start: %v", err)
	}
	srv, err := ipc.NewServer(ctx, cfg.Paths.SocketPath, d, logger)
	if err != nil {
		if strings.Contains(err.Error(), "operation not permitted") {
			cancel()
			t.Skipf("skipping CLI test: %v", err)
		}
		t.Fatalf("ipc.NewServer: %v", err)
	}
	srv.Serve()

	t.Cleanup(func() {
		cancel()
		srv.Close()
		d.Close()
		st.Close()
	})

	return &cliTestEnv{
		cfg:        cfg,
		store:      st,
		daemon:     d,
		socketPath: cfg.Paths.SocketPath,
		configPath: configPath,
	}
}

func runCLI(t *testing.T, args []string, socket, configPath string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	flags := []string{"--socket", socket}
	if configPath != "" {
		flags = append(flags, "--config", configPath)
	}
	cmd.SetArgs(append(flags, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func TestCLISessionsCommands(t *testing.T) {
	env := setupCLITestEnv(t)
	ctx := context.Background()

	saved := testsupport.NewRecord(t, 2)
	if result, err := env.store.SaveSession(ctx, saved); err != nil || result.Skipped {
		t.Fatalf("seed session: result=%#v err=%v", result, err)
	}

	out, _, err := runCLI(t, []string{"sessions"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("sessions: %v", err)
	}
	if !strings.Contains(out, "Weekly Sync") || !strings.Contains(out, "Google Meet") {
		t.Fatalf("unexpected sessions output: %q", out)
	}

	out, _, err = runCLI(t, []string{"sessions", "last"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("sessions last: %v", err)
	}
	if !strings.Contains(out, "caption 0") || !strings.Contains(out, "Alice") {
		t.Fatalf("unexpected transcript output: %q", out)
	}

	entries, err := env.store.History(ctx, 0)
	if err != nil || len(entries) != 1 {
		t.Fatalf("history seed: entries=%d err=%v", len(entries), err)
	}
	out, _, err = runCLI(t, []string{"sessions", "show", "1"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("sessions show: %v", err)
	}
	if !strings.Contains(out, "Weekly Sync") {
		t.Fatalf("unexpected show output: %q", out)
	}
}

func TestCLIRecordCommands(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"record", "start", "--session", "tab-1"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("record start: %v", err)
	}
	if !strings.Contains(out, "Recording start requested") {
		t.Fatalf("unexpected start output: %q", out)
	}
	if state := env.daemon.Recorder().State("tab-1"); state.State != session.StateStarting {
		t.Fatalf("state after start = %q, want starting", state.State)
	}

	out, _, err = runCLI(t, []string{"record", "delete", "--session", "tab-1"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("record delete: %v", err)
	}
	if !strings.Contains(out, "Recording discarded") {
		t.Fatalf("unexpected delete output: %q", out)
	}

	if _, _, err := runCLI(t, []string{"record", "pause"}, env.socketPath, env.configPath); err == nil {
		t.Fatal("expected error when session flag is missing")
	}
}

func TestCLIStatusCommand(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"status"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if !strings.Contains(out, "Running") {
		t.Fatalf("unexpected status output: %q", out)
	}
	if !strings.Contains(out, "No capture contexts connected") {
		t.Fatalf("expected empty session section: %q", out)
	}
}

func TestCLIConfigInit(t *testing.T) {
	base := t.TempDir()
	target := filepath.Join(base, "config.toml")

	cmd := newRootCommand()
	var stdout bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetArgs([]string{"config", "init", "--path", target})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("config init: %v", err)
	}
	if !strings.Contains(stdout.String(), target) {
		t.Fatalf("unexpected init output: %q", stdout.String())
	}
	if _, err := os.Stat(target); err != nil {
		t.Fatalf("sample config missing: %v", err)
	}
}
