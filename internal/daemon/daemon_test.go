package daemon_test

import (
	"context"
	"testing"
	"time"

	"meetscribe/internal/backup"
	"meetscribe/internal/daemon"
	"meetscribe/internal/logging"
	"meetscribe/internal/recorder"
	"meetscribe/internal/session"
	"meetscribe/internal/testsupport"
)

func newDaemon(t *testing.T) *daemon.Daemon {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	logger := logging.NewNop()
	rec := recorder.NewService(st, logger)
	mgr := backup.NewManager(st, rec, cfg, logger)
	d, err := daemon.New(cfg, st, logger, rec, mgr)
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	t.Cleanup(func() {
		d.Close()
	})
	return d
}

func TestDaemonStartStop(t *testing.T) {
	d := newDaemon(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := d.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	status := d.Status(ctx)
	if !status.Running {
		t.Fatal("expected daemon to report running")
	}

	// Second start should fail
	if err := d.Start(ctx); err == nil {
		t.Fatal("expected second start to fail")
	}

	d.Stop()
	time.Sleep(50 * time.Millisecond)
	status = d.Status(ctx)
	if status.Running {
		t.Fatal("expected daemon to be stopped")
	}
}

func TestDaemonRecordingRoundTrip(t *testing.T) {
	d := newDaemon(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := d.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	key := "tab-1"
	d.StartRecording(key)
	d.ReportStarted(key, time.Now())
	if !d.UpsertSessionData(key, recorder.DataDelta{
		Captions: []session.CaptionEntry{{ID: "c1", Speaker: "Alice", Text: "hello"}},
	}) {
		t.Fatal("recording session rejected data")
	}

	result := d.StopRecording(ctx, key)
	if result.Skipped {
		t.Fatalf("stop save skipped: %s", result.Reason)
	}

	entries, err := d.History(ctx, 0)
	if err != nil {
		t.Fatalf("History failed: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("history entries = %d, want 1", len(entries))
	}
	last, err := d.LastSaved(ctx)
	if err != nil || last == nil {
		t.Fatalf("LastSaved = %+v, err = %v", last, err)
	}

	status := d.Status(ctx)
	if status.ActiveSessions != 0 {
		t.Fatalf("active sessions = %d, want 0", status.ActiveSessions)
	}
	if status.LastSaved == nil {
		t.Fatal("status missing last saved record")
	}
}
