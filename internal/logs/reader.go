// Package logs reads the scribed log file for the logs command: a bounded
// tail of the newest lines, cursor-based catch-up reads, and a short follow
// wait backing the LogTail long poll.
package logs

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"
)

const (
	scanBufSize    = 64 * 1024
	maxLineSize    = 1024 * 1024
	followInterval = 250 * time.Millisecond
)

// Request selects a window of the daemon log.
type Request struct {
	// Cursor is the byte position to resume from. Negative means start at
	// the tail and return up to MaxLines of the newest lines.
	Cursor int64
	// MaxLines bounds a tail read. Catch-up reads ignore it.
	MaxLines int
	// Follow keeps the read open for up to Wait when no new lines exist.
	Follow bool
	Wait   time.Duration
}

// Window is one read of the log: the lines plus the cursor for the next
// read. A missing log file yields an empty window, not an error.
type Window struct {
	Lines  []string
	Cursor int64
}

// Read serves one log request. Follow reads poll until a line arrives,
// Wait elapses, or ctx ends; the returned cursor always reflects how far
// the read got, so the caller can resume without gaps.
func Read(ctx context.Context, path string, req Request) (Window, error) {
	if req.Wait < 0 {
		req.Wait = 0
	}

	var win Window
	var err error
	if req.Cursor < 0 {
		win, err = tailNewest(path, req.MaxLines)
	} else {
		win, err = readFrom(path, req.Cursor)
	}
	if err != nil || len(win.Lines) > 0 || !req.Follow || req.Wait == 0 {
		return win, err
	}
	return awaitLines(ctx, path, win.Cursor, req.Wait)
}

// tailNewest scans the whole file keeping only the newest limit lines, and
// returns the end-of-file cursor. A limit of zero returns just the cursor.
func tailNewest(path string, limit int) (Window, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Window{}, nil
		}
		return Window{}, fmt.Errorf("open log: %w", err)
	}
	defer f.Close()

	var keep []string
	sc := newScanner(f)
	for sc.Scan() {
		keep = append(keep, sc.Text())
		if limit > 0 && len(keep) > limit {
			keep = keep[1:]
		}
	}
	if err := sc.Err(); err != nil {
		return Window{}, fmt.Errorf("scan log: %w", err)
	}
	if limit <= 0 {
		keep = nil
	}

	end, err := f.Seek(0, io.SeekEnd)
	if err != nil {
		return Window{}, fmt.Errorf("seek log: %w", err)
	}
	return Window{Lines: keep, Cursor: end}, nil
}

// readFrom returns every complete line at or after the cursor. A cursor
// past the end of the file, as after truncation, snaps back to the end.
func readFrom(path string, cursor int64) (Window, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Window{}, nil
		}
		return Window{}, fmt.Errorf("open log: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return Window{}, fmt.Errorf("stat log: %w", err)
	}
	if cursor > info.Size() {
		cursor = info.Size()
	}
	if _, err := f.Seek(cursor, io.SeekStart); err != nil {
		return Window{}, fmt.Errorf("seek log: %w", err)
	}

	win := Window{Cursor: cursor}
	sc := newScanner(f)
	for sc.Scan() {
		win.Lines = append(win.Lines, sc.Text())
	}
	if err := sc.Err(); err != nil {
		return win, fmt.Errorf("scan log: %w", err)
	}
	win.Cursor, err = f.Seek(0, io.SeekCurrent)
	if err != nil {
		return win, fmt.Errorf("seek log: %w", err)
	}
	return win, nil
}

func awaitLines(ctx context.Context, path string, cursor int64, wait time.Duration) (Window, error) {
	timer := time.NewTimer(wait)
	defer timer.Stop()
	ticker := time.NewTicker(followInterval)
	defer ticker.Stop()

	for {
		win, err := readFrom(path, cursor)
		if err != nil || len(win.Lines) > 0 {
			return win, err
		}
		cursor = win.Cursor

		select {
		case <-ctx.Done():
			return win, ctx.Err()
		case <-timer.C:
			return win, nil
		case <-ticker.C:
		}
	}
}

func newScanner(f *os.File) *bufio.Scanner {
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, scanBufSize), maxLineSize)
	return sc
}
