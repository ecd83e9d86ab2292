package logs_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"meetscribe/internal/logs"
)

func writeLog(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "scribed.log")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write log: %v", err)
	}
	return path
}

func appendLog(t *testing.T, path, content string) {
	t.Helper()
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatalf("open append: %v", err)
	}
	defer f.Close()
	if _, err := f.WriteString(content); err != nil {
		t.Fatalf("append log: %v", err)
	}
}

func TestReadNewestLines(t *testing.T) {
	path := writeLog(t, "a\nb\nc\n")

	win, err := logs.Read(context.Background(), path, logs.Request{Cursor: -1, MaxLines: 2})
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if len(win.Lines) != 2 || win.Lines[0] != "b" || win.Lines[1] != "c" {
		t.Fatalf("unexpected lines: %#v", win.Lines)
	}
	if win.Cursor == 0 {
		t.Fatal("expected the cursor to land at end of file")
	}
}

func TestReadResumesFromCursor(t *testing.T) {
	path := writeLog(t, "first\n")

	win, err := logs.Read(context.Background(), path, logs.Request{Cursor: 0})
	if err != nil {
		t.Fatalf("initial read: %v", err)
	}
	if len(win.Lines) != 1 || win.Lines[0] != "first" {
		t.Fatalf("unexpected initial lines: %#v", win.Lines)
	}

	appendLog(t, path, "second\n")
	next, err := logs.Read(context.Background(), path, logs.Request{Cursor: win.Cursor})
	if err != nil {
		t.Fatalf("resumed read: %v", err)
	}
	if len(next.Lines) != 1 || next.Lines[0] != "second" {
		t.Fatalf("resume must return only new lines, got %#v", next.Lines)
	}
}

func TestReadMissingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "absent.log")

	win, err := logs.Read(context.Background(), path, logs.Request{Cursor: -1, MaxLines: 10})
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if len(win.Lines) != 0 || win.Cursor != 0 {
		t.Fatalf("missing file window = %+v, want empty", win)
	}
}

func TestFollowDeliversAppendedLine(t *testing.T) {
	path := writeLog(t, "start\n")

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	initial, err := logs.Read(ctx, path, logs.Request{Cursor: -1, MaxLines: 1})
	if err != nil {
		t.Fatalf("initial read: %v", err)
	}

	done := make(chan struct{})
	go func(cursor int64) {
		defer close(done)
		win, err := logs.Read(ctx, path, logs.Request{Cursor: cursor, Follow: true, Wait: 5 * time.Second})
		if err != nil {
			t.Errorf("follow read error: %v", err)
			return
		}
		if len(win.Lines) != 1 || win.Lines[0] != "later" {
			t.Errorf("unexpected follow lines: %#v", win.Lines)
		}
	}(initial.Cursor)

	time.Sleep(200 * time.Millisecond)
	appendLog(t, path, "later\n")

	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("follow read did not return")
	}
}
