// Package daemonrun wires the scribed process: logging, the session store,
// the recording state machine, the backup loop, and the IPC and HTTP
// servers, running until a termination signal arrives.
package daemonrun

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"

	"meetscribe/internal/api"
	"meetscribe/internal/backup"
	"meetscribe/internal/config"
	"meetscribe/internal/daemon"
	"meetscribe/internal/ipc"
	"meetscribe/internal/logging"
	"meetscribe/internal/recorder"
	"meetscribe/internal/store"
)

// Options configures daemon process runtime behavior.
type Options struct {
	LogLevel string
}

// Run starts the scribed daemon runtime loop.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := cfg.EnsureDirectories(); err != nil {
		return fmt.Errorf("ensure directories: %w", err)
	}

	level := cfg.Logging.Level
	if opts.LogLevel != "" {
		level = opts.LogLevel
	}
	logPath := filepath.Join(cfg.Paths.LogDir, "scribed.log")
	logger, err := logging.New(logging.Options{
		Level:       level,
		Format:      cfg.Logging.Format,
		OutputPaths: []string{"stdout", logPath},
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	pidPath := filepath.Join(cfg.Paths.LogDir, "scribed.pid")
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	st, err := store.Open(cfg)
	if err != nil {
		logger.Error("open session store", logging.Error(err))
		return err
	}
	defer st.Close()

	rec := recorder.NewService(st, logger)
	backups := backup.NewManager(st, rec, cfg, logger)

	d, err := daemon.New(cfg, st, logger, rec, backups)
	if err != nil {
		return fmt.Errorf("create daemon: %w", err)
	}
	defer d.Close()

	hub := api.NewStateHub(logger)
	rec.AddObserver(hub)

	apiServer := api.NewServer(cfg, d, hub, logger)
	if apiServer != nil {
		if err := apiServer.Start(signalCtx); err != nil {
			return fmt.Errorf("start api server: %w", err)
		}
		defer apiServer.Stop()
	}

	ipcServer, err := ipc.NewServer(signalCtx, cfg.Paths.SocketPath, d, logger)
	if err != nil {
		return fmt.Errorf("start IPC server: %w", err)
	}
	defer ipcServer.Close()
	ipcServer.Serve()

	if err := d.Start(signalCtx); err != nil {
		logger.Error("daemon start failed", logging.Error(err))
		return err
	}
	logger.Info("scribed daemon ready",
		logging.String("socket", cfg.Paths.SocketPath),
		logging.Int("pid", os.Getpid()))

	<-signalCtx.Done()
	logger.Info("scribed daemon shutting down")
	d.Stop()
	return nil
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	value := strconv.Itoa(os.Getpid()) + "\n"
	return os.WriteFile(path, []byte(value), 0o644)
}
