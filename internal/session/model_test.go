package session_test

import (
	"testing"
	"time"

	"meetscribe/internal/session"
)

func TestParseState(t *testing.T) {
	if state, ok := session.ParseState(" Recording "); !ok || state != session.StateRecording {
		t.Fatalf("ParseState: got %q ok=%v", state, ok)
	}
	if _, ok := session.ParseState("bogus"); ok {
		t.Fatal("expected bogus state to be rejected")
	}
}

func TestIsActive(t *testing.T) {
	active := []session.RecordingState{session.StateRecording, session.StatePaused, session.StateResuming}
	for _, state := range active {
		if !state.IsActive() {
			t.Errorf("expected %s to be active", state)
		}
	}
	inactive := []session.RecordingState{session.StateIdle, session.StateStarting, session.StateError}
	for _, state := range inactive {
		if state.IsActive() {
			t.Errorf("expected %s to be inactive", state)
		}
	}
}

func TestTotalAtRecomputes(t *testing.T) {
	start := time.Unix(1000, 0)
	timings := session.Timings{StartTime: &start}

	at := start.Add(100 * time.Millisecond)
	if got := timings.TotalAt(at); got != 100*time.Millisecond {
		t.Fatalf("TotalAt from start = %s", got)
	}
	// Repeated reads with no intervening mutation stay consistent.
	if got := timings.TotalAt(at); got != 100*time.Millisecond {
		t.Fatalf("TotalAt not idempotent: %s", got)
	}

	resume := start.Add(150 * time.Millisecond)
	timings = session.Timings{StartTime: &start, LastPauseTime: &resume, TotalDuration: 100 * time.Millisecond}
	if got := timings.TotalAt(start.Add(200 * time.Millisecond)); got != 150*time.Millisecond {
		t.Fatalf("TotalAt after resume = %s, want 150ms", got)
	}
}

func TestCloneIsDeep(t *testing.T) {
	start := time.Unix(2000, 0)
	rec := session.NewRecord()
	rec.ID = "rec-1"
	rec.RecordTimings.StartTime = &start
	rec.Captions = append(rec.Captions, session.CaptionEntry{ID: "c1", Speaker: "Alice", Text: "hello"})
	rec.MeetingInfo.Attendees["Alice"] = true

	cp := rec.Clone()
	cp.Captions[0].Text = "changed"
	cp.MeetingInfo.Attendees["Bob"] = true
	*cp.RecordTimings.StartTime = start.Add(time.Hour)

	if rec.Captions[0].Text != "hello" {
		t.Fatal("clone shares caption backing array")
	}
	if _, ok := rec.MeetingInfo.Attendees["Bob"]; ok {
		t.Fatal("clone shares attendee map")
	}
	if !rec.RecordTimings.StartTime.Equal(start) {
		t.Fatal("clone shares timing pointers")
	}
}

func TestHasData(t *testing.T) {
	rec := session.NewRecord()
	if rec.HasData() {
		t.Fatal("empty record should have no data")
	}
	rec.AttendeeEvents = append(rec.AttendeeEvents, session.AttendeeEvent{Name: "Alice", Action: session.AttendeeJoined})
	if !rec.HasData() {
		t.Fatal("record with attendee event should have data")
	}
}

func TestClearDataKeepsState(t *testing.T) {
	rec := session.NewRecord()
	rec.SessionState.State = session.StateRecording
	rec.Captions = append(rec.Captions, session.CaptionEntry{ID: "c1"})
	now := time.Now()
	rec.RecordTimings.StartTime = &now

	rec.ClearData()
	if len(rec.Captions) != 0 || rec.RecordTimings.StartTime != nil {
		t.Fatal("expected data and timings cleared")
	}
	if rec.SessionState.State != session.StateRecording {
		t.Fatal("expected broadcastable state untouched")
	}
}
