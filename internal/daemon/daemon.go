package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"

	"meetscribe/internal/api"
	"meetscribe/internal/backup"
	"meetscribe/internal/config"
	"meetscribe/internal/logging"
	"meetscribe/internal/recorder"
	"meetscribe/internal/session"
	"meetscribe/internal/store"
)

// Daemon coordinates the recording state machine, the backup loop, and the
// session store, and enforces single-instance execution.
type Daemon struct {
	cfg      *config.Config
	logger   *slog.Logger
	store    *store.Store
	recorder *recorder.Service
	backups  *backup.Manager
	logPath  string

	lockPath string
	lock     *flock.Flock

	running atomic.Bool
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// Status represents daemon runtime information.
type Status struct {
	Running        bool
	PID            int
	StoreDBPath    string
	LockFilePath   string
	ActiveSessions int
	Sessions       map[string]session.State
	LastSaved      *session.Record
}

// New constructs a daemon with initialized dependencies.
func New(cfg *config.Config, st *store.Store, logger *slog.Logger, rec *recorder.Service, backups *backup.Manager) (*Daemon, error) {
	if cfg == nil || st == nil || logger == nil || rec == nil || backups == nil {
		return nil, errors.New("daemon requires config, store, logger, recorder, and backup manager")
	}

	lockPath := filepath.Join(cfg.Paths.LogDir, "scribed.lock")
	return &Daemon{
		cfg:      cfg,
		logger:   logger,
		store:    st,
		recorder: rec,
		backups:  backups,
		logPath:  filepath.Join(cfg.Paths.LogDir, "scribed.log"),
		lockPath: lockPath,
		lock:     flock.New(lockPath),
	}, nil
}

// Start acquires the daemon lock, recovers orphaned backups, and launches
// the backup loop.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another scribed instance is already running")
	}

	d.ctx, d.cancel = context.WithCancel(ctx)

	recovered, err := d.backups.RecoverOrphans(d.ctx)
	if err != nil {
		_ = d.lock.Unlock()
		d.cancel()
		d.ctx = nil
		d.cancel = nil
		return fmt.Errorf("recover orphaned backups: %w", err)
	}
	if recovered > 0 {
		d.logger.Info("orphaned sessions saved at startup", logging.Int("count", recovered))
	}

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.backups.Run(d.ctx)
	}()

	d.running.Store(true)
	d.logger.Info("scribed daemon started", logging.String("lock", d.lockPath))
	return nil
}

// Stop stops background processing and releases the daemon lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}

	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.wg.Wait()
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.ctx = nil
	d.running.Store(false)
	d.logger.Info("scribed daemon stopped")
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	if d.store != nil {
		return d.store.Close()
	}
	return nil
}

// Recorder exposes the state machine for observers.
func (d *Daemon) Recorder() *recorder.Service {
	return d.recorder
}

// StartRecording asks the page context behind the session key to begin.
func (d *Daemon) StartRecording(key string) {
	d.recorder.Start(key)
}

// StopRecording finalizes and persists the session.
func (d *Daemon) StopRecording(ctx context.Context, key string) recorder.SaveResult {
	return d.recorder.Stop(ctx, key)
}

// PauseRecording suspends caption accumulation for the session.
func (d *Daemon) PauseRecording(key string) {
	d.recorder.Pause(key)
}

// ResumeRecording resumes a paused session.
func (d *Daemon) ResumeRecording(key string) {
	d.recorder.Resume(key)
}

// DeleteRecording discards the session without saving.
func (d *Daemon) DeleteRecording(ctx context.Context, key string) {
	d.recorder.Delete(ctx, key)
}

// ReportStarted acknowledges that the adapter began recording.
func (d *Daemon) ReportStarted(key string, at time.Time) {
	d.recorder.ReportStarted(key, at)
}

// ReportResumed acknowledges that the adapter resumed recording.
func (d *Daemon) ReportResumed(key string, at time.Time) {
	d.recorder.ReportResumed(key, at)
}

// ReportStopped acknowledges that the adapter flushed and stopped.
func (d *Daemon) ReportStopped(key string) {
	d.recorder.ReportStopped(key)
}

// ReportCommandFailed moves the session into the error state.
func (d *Daemon) ReportCommandFailed(key string, kind session.ErrorKind, command string) {
	d.recorder.ReportFailed(key, kind, command)
}

// SetMeetingStatus records meeting presence for the session.
func (d *Daemon) SetMeetingStatus(key string, inMeeting bool) {
	d.recorder.SetMeetingStatus(key, inMeeting)
}

// SetPlatformInfo records the detected platform for the session.
func (d *Daemon) SetPlatformInfo(key string, platform session.Platform, initialized bool) {
	d.recorder.SetPlatformInfo(key, platform, initialized)
}

// SetPanelVisible records panel visibility for the session.
func (d *Daemon) SetPanelVisible(key string, visible bool) {
	d.recorder.SetPanelVisible(key, visible)
}

// SetExtensionEnabled records the global enablement flag for the session.
func (d *Daemon) SetExtensionEnabled(key string, enabled bool) {
	d.recorder.SetExtensionEnabled(key, enabled)
}

// UpsertSessionData merges captured data into the live session.
func (d *Daemon) UpsertSessionData(key string, delta recorder.DataDelta) bool {
	return d.recorder.UpsertData(key, delta)
}

// CheckBackup offers a recovered session to a page context rejoining the
// meeting at the given URL.
func (d *Daemon) CheckBackup(ctx context.Context, key, url string) (*session.Record, error) {
	return d.backups.CheckBackup(ctx, key, url)
}

// PollInstructions collects pending instructions for the session key.
func (d *Daemon) PollInstructions(ctx context.Context, key string, maxWait time.Duration) []recorder.Instruction {
	return d.recorder.PollInstructions(ctx, key, maxWait)
}

// ContextClosing finalizes state for a page context that is going away.
func (d *Daemon) ContextClosing(ctx context.Context, key string) {
	d.recorder.ContextGone(ctx, key)
}

// SessionSnapshot returns a deep copy of the session record.
func (d *Daemon) SessionSnapshot(key string) *session.Record {
	return d.recorder.Snapshot(key)
}

// History lists saved sessions, newest first.
func (d *Daemon) History(ctx context.Context, limit int) ([]store.HistoryEntry, error) {
	if d.store == nil {
		return nil, errors.New("session store unavailable")
	}
	return d.store.History(ctx, limit)
}

// LastSaved returns the most recently saved session, or nil.
func (d *Daemon) LastSaved(ctx context.Context) (*session.Record, error) {
	if d.store == nil {
		return nil, errors.New("session store unavailable")
	}
	return d.store.LastSaved(ctx)
}

// HistoryRecord loads the full saved record for a history row.
func (d *Daemon) HistoryRecord(ctx context.Context, id int64) (*session.Record, error) {
	if d.store == nil {
		return nil, errors.New("session store unavailable")
	}
	return d.store.HistoryRecord(ctx, id)
}

// StatusPayload shapes daemon status for the HTTP API.
func (d *Daemon) StatusPayload(ctx context.Context) api.StatusPayload {
	status := d.Status(ctx)
	return api.StatusPayload{
		Running:        status.Running,
		PID:            status.PID,
		ActiveSessions: status.ActiveSessions,
		Sessions:       status.Sessions,
		LastSaved:      status.LastSaved,
	}
}

// LogPath returns the path to the daemon log file.
func (d *Daemon) LogPath() string {
	return d.logPath
}

// Status returns the current daemon status.
func (d *Daemon) Status(ctx context.Context) Status {
	status := Status{
		Running:      d.running.Load(),
		PID:          os.Getpid(),
		StoreDBPath:  d.store.Path(),
		LockFilePath: d.lockPath,
		Sessions:     make(map[string]session.State),
	}
	for _, key := range d.recorder.SessionKeys() {
		state := d.recorder.State(key)
		status.Sessions[key] = state
		if state.State.IsActive() {
			status.ActiveSessions++
		}
	}
	if last, err := d.store.LastSaved(ctx); err == nil {
		status.LastSaved = last
	}
	return status
}
