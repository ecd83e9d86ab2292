package backup

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"meetscribe/internal/config"
	"meetscribe/internal/logging"
	"meetscribe/internal/meeting"
	"meetscribe/internal/metrics"
	"meetscribe/internal/session"
	"meetscribe/internal/store"
)

// Recorder is the slice of the state machine the manager needs: a snapshot
// of active sessions to back up, plus restore and rebind hooks for the two
// recovery paths.
type Recorder interface {
	ActiveSessions() map[string]*session.Record
	Restore(key string, rec *session.Record)
	Rebind(oldKey, newKey string) *session.Record
}

// Manager owns the periodic backup loop and crash recovery.
type Manager struct {
	store    *store.Store
	recorder Recorder
	logger   *slog.Logger
	interval time.Duration
	now      func() time.Time

	mu        sync.Mutex
	wroteLast bool
}

// NewManager creates a backup manager.
func NewManager(st *store.Store, rec Recorder, cfg *config.Config, logger *slog.Logger) *Manager {
	return &Manager{
		store:    st,
		recorder: rec,
		logger:   logging.WithComponent(logger, "backup"),
		interval: time.Duration(cfg.Backup.IntervalSeconds) * time.Second,
		now:      time.Now,
	}
}

// Run ticks the backup loop until context cancellation, then writes one
// final snapshot so an in-flight session survives a clean shutdown.
func (m *Manager) Run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			if err := m.Tick(flushCtx); err != nil {
				m.logger.Warn("final backup flush failed", logging.Error(err))
			}
			cancel()
			return
		case <-ticker.C:
			if err := m.Tick(ctx); err != nil {
				m.logger.Warn("backup tick failed", logging.Error(err))
			}
		}
	}
}

// Tick writes one backup snapshot. The backup key is present exactly when
// at least one session is active: an empty snapshot clears the key once
// and further empty ticks touch nothing.
func (m *Manager) Tick(ctx context.Context) error {
	active := m.recorder.ActiveSessions()
	metrics.ActiveSessions.Set(float64(len(active)))

	m.mu.Lock()
	defer m.mu.Unlock()

	if len(active) == 0 {
		if !m.wroteLast {
			return nil
		}
		if err := m.store.ClearBackup(ctx); err != nil {
			return err
		}
		m.wroteLast = false
		return nil
	}

	for _, rec := range active {
		rec.IsBackup = true
		rec.IsAutoSave = true
	}
	blob := store.BackupBlob{SavedAt: m.now().UTC(), Sessions: active}
	if err := m.store.WriteBackup(ctx, blob); err != nil {
		return err
	}
	m.wroteLast = true
	metrics.BackupsWritten.Inc()
	return nil
}

// RecoverOrphans handles a backup snapshot left behind by a crashed daemon.
// Each orphaned session with data is saved to history immediately, so
// nothing is lost even if no page context ever reclaims it. The snapshot
// then moves to the pending key for URL-matched recovery and the backup
// key is cleared. Safe to call on every startup.
func (m *Manager) RecoverOrphans(ctx context.Context) (int, error) {
	blob, err := m.store.ReadBackup(ctx)
	if err != nil {
		return 0, err
	}
	if blob == nil || len(blob.Sessions) == 0 {
		if blob != nil {
			return 0, m.store.ClearBackup(ctx)
		}
		return 0, nil
	}

	saved := 0
	pending := store.BackupBlob{SavedAt: m.now().UTC(), Sessions: make(map[string]*session.Record)}
	for key, rec := range blob.Sessions {
		rec.IsBackup = true
		rec.IsAutoSave = true
		if rec.HasData() {
			if _, err := m.store.SaveSession(ctx, rec); err != nil {
				m.logger.Warn("orphan save failed",
					logging.String(logging.FieldSessionKey, key),
					logging.Error(err))
				continue
			}
			saved++
		}
		pending.Sessions[key] = rec
	}

	if len(pending.Sessions) > 0 {
		if err := m.store.SetPendingBackup(ctx, pending); err != nil {
			return saved, err
		}
	}
	if err := m.store.ClearBackup(ctx); err != nil {
		return saved, err
	}
	if saved > 0 {
		m.logger.Info("orphaned sessions recovered", logging.Int("count", saved))
	}
	return saved, nil
}

// CheckBackup answers a context that just entered a meeting with any
// recoverable session for that URL. Matching compares host and path only,
// so rejoining the same meeting through a different query string still
// recovers. Two sources are consulted in order: the live arena (the daemon
// survived, only the page context died) and the pending snapshot staged
// from a crashed daemon. A pending entry under this context's key whose
// URL no longer matches is stale and is pruned.
func (m *Manager) CheckBackup(ctx context.Context, sessionKey, url string) (*session.Record, error) {
	if rec := m.rebindLive(sessionKey, url); rec != nil {
		return rec, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	pending, err := m.store.PendingBackup(ctx)
	if err != nil || pending == nil {
		return nil, err
	}

	for key, rec := range pending.Sessions {
		if !meeting.SameMeeting(rec.MeetingInfo.URL, url) {
			continue
		}
		if _, err := m.store.RemoveHistoryByRecordID(ctx, rec.ID); err != nil {
			m.logger.Warn("drop duplicate history row failed", logging.Error(err))
		}
		delete(pending.Sessions, key)
		if len(pending.Sessions) == 0 {
			err = m.store.ClearPendingBackup(ctx)
		} else {
			err = m.store.SetPendingBackup(ctx, *pending)
		}
		if err != nil {
			return nil, err
		}
		m.recorder.Restore(sessionKey, rec)
		metrics.SessionsRecovered.Inc()
		m.logger.Info("session recovered from backup",
			logging.String(logging.FieldSessionKey, sessionKey),
			logging.String("meeting_url", rec.MeetingInfo.URL))
		return rec, nil
	}

	// No candidate: a leftover entry under this key points at a meeting
	// the context is no longer in. Drop it so it cannot linger forever.
	if stale, ok := pending.Sessions[sessionKey]; ok {
		m.logger.Info("stale backup pruned",
			logging.String(logging.FieldSessionKey, sessionKey),
			logging.String("meeting_url", stale.MeetingInfo.URL))
		delete(pending.Sessions, sessionKey)
		if len(pending.Sessions) == 0 {
			return nil, m.store.ClearPendingBackup(ctx)
		}
		return nil, m.store.SetPendingBackup(ctx, *pending)
	}
	return nil, nil
}

// rebindLive moves a still-running session for the same meeting onto the
// reconnecting context's key. The durable backup stays in place until the
// session naturally stops, so a second interruption loses nothing.
func (m *Manager) rebindLive(sessionKey, url string) *session.Record {
	for key, rec := range m.recorder.ActiveSessions() {
		if !meeting.SameMeeting(rec.MeetingInfo.URL, url) {
			continue
		}
		if key == sessionKey {
			// Already bound: the re-check is an idempotent no-op.
			return rec
		}
		moved := m.recorder.Rebind(key, sessionKey)
		if moved == nil {
			continue
		}
		metrics.SessionsRecovered.Inc()
		m.logger.Info("live session rebound to new context",
			logging.String(logging.FieldSessionKey, sessionKey),
			logging.String("previous_key", key),
			logging.String("meeting_url", moved.MeetingInfo.URL))
		return moved
	}
	return nil
}
