package recorder

import (
	"context"
	"sync"
	"testing"
	"time"

	"meetscribe/internal/logging"
	"meetscribe/internal/session"
)

type fakeSaver struct {
	mu    sync.Mutex
	saved []*session.Record
	err   error
}

func (f *fakeSaver) SaveSession(_ context.Context, rec *session.Record) (SaveResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return SaveResult{}, f.err
	}
	if !rec.HasData() {
		return SaveResult{Skipped: true, Reason: "no data"}, nil
	}
	f.saved = append(f.saved, rec)
	return SaveResult{}, nil
}

func (f *fakeSaver) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.saved)
}

func newTestService(t *testing.T) (*Service, *fakeSaver) {
	t.Helper()
	saver := &fakeSaver{}
	return NewService(saver, logging.NewNop()), saver
}

func setClock(svc *Service, at time.Time) *time.Time {
	now := at
	svc.now = func() time.Time { return now }
	return &now
}

func startRecording(t *testing.T, svc *Service, key string, at time.Time) {
	t.Helper()
	svc.Start(key)
	svc.ReportStarted(key, at)
	if got := svc.State(key).State; got != session.StateRecording {
		t.Fatalf("state after start ack = %q, want %q", got, session.StateRecording)
	}
}

func TestStartTransitionsThroughStarting(t *testing.T) {
	svc, _ := newTestService(t)
	key := "tab-1"

	svc.Start(key)
	if got := svc.State(key).State; got != session.StateStarting {
		t.Fatalf("state after Start = %q, want %q", got, session.StateStarting)
	}

	ins := svc.PollInstructions(context.Background(), key, 0)
	if len(ins) != 1 || ins[0] != InstructionStart {
		t.Fatalf("instructions = %v, want [%s]", ins, InstructionStart)
	}

	reported := time.Date(2025, 3, 10, 14, 0, 0, 0, time.UTC)
	svc.ReportStarted(key, reported)
	rec := svc.Snapshot(key)
	if rec.SessionState.State != session.StateRecording {
		t.Fatalf("state after ack = %q, want %q", rec.SessionState.State, session.StateRecording)
	}
	if rec.RecordTimings.StartTime == nil || !rec.RecordTimings.StartTime.Equal(reported) {
		t.Fatalf("StartTime = %v, want %v", rec.RecordTimings.StartTime, reported)
	}
	if rec.ID == "" {
		t.Fatal("expected a record ID after Start")
	}
}

func TestStartDismissesErrorState(t *testing.T) {
	svc, _ := newTestService(t)
	key := "tab-err"

	svc.ReportFailed(key, session.ErrorSubtitlesDisabled, "begin_recording")
	state := svc.State(key)
	if state.State != session.StateError || state.Error != session.ErrorSubtitlesDisabled {
		t.Fatalf("error state = %+v", state)
	}

	svc.Start(key)
	state = svc.State(key)
	if state.State != session.StateStarting || state.Error != session.ErrorNone {
		t.Fatalf("state after retry = %+v, want starting with no error", state)
	}
}

func TestInvalidTransitionsAreSilentNoOps(t *testing.T) {
	svc, _ := newTestService(t)
	key := "tab-2"

	var broadcasts int
	svc.AddObserver(ObserverFunc(func(string, session.State) { broadcasts++ }))

	before := svc.State(key)
	svc.Pause(key)
	svc.Resume(key)
	svc.ReportStarted(key, time.Now())
	svc.ReportResumed(key, time.Now())
	after := svc.State(key)

	if before != after {
		t.Fatalf("state changed by invalid transitions: %+v -> %+v", before, after)
	}
	if broadcasts != 0 {
		t.Fatalf("broadcasts = %d, want 0", broadcasts)
	}
	if ins := svc.PollInstructions(context.Background(), key, 0); len(ins) != 0 {
		t.Fatalf("instructions = %v, want none", ins)
	}
}

func TestPauseResumeDurationAccounting(t *testing.T) {
	svc, _ := newTestService(t)
	key := "tab-3"
	base := time.Date(2025, 3, 10, 14, 0, 0, 0, time.UTC)
	clock := setClock(svc, base)

	startRecording(t, svc, key, base)

	*clock = base.Add(100 * time.Second)
	svc.Pause(key)
	rec := svc.Snapshot(key)
	if rec.SessionState.State != session.StatePaused {
		t.Fatalf("state = %q, want paused", rec.SessionState.State)
	}
	if got := rec.RecordTimings.TotalDuration; got != 100*time.Second {
		t.Fatalf("TotalDuration after pause = %v, want 100s", got)
	}

	// Time spent paused must not count.
	*clock = base.Add(130 * time.Second)
	svc.Resume(key)
	svc.ReportResumed(key, *clock)

	*clock = base.Add(180 * time.Second)
	rec = svc.Snapshot(key)
	if got := rec.RecordTimings.TotalAt(*clock); got != 150*time.Second {
		t.Fatalf("running total = %v, want 150s", got)
	}

	*clock = base.Add(200 * time.Second)
	svc.Stop(context.Background(), key)
}

func TestStopPersistsAndClears(t *testing.T) {
	svc, saver := newTestService(t)
	key := "tab-4"
	base := time.Date(2025, 3, 10, 14, 0, 0, 0, time.UTC)
	clock := setClock(svc, base)

	startRecording(t, svc, key, base)
	svc.UpsertData(key, DataDelta{Captions: []session.CaptionEntry{{ID: "c1", Speaker: "Alice", Text: "hello"}}})

	*clock = base.Add(60 * time.Second)
	result := svc.Stop(context.Background(), key)
	if result.Skipped {
		t.Fatalf("stop save skipped: %s", result.Reason)
	}
	if saver.count() != 1 {
		t.Fatalf("saved sessions = %d, want 1", saver.count())
	}

	saved := saver.saved[0]
	if saved.RecordTimings.TotalDuration != 60*time.Second {
		t.Fatalf("saved duration = %v, want 60s", saved.RecordTimings.TotalDuration)
	}
	if saved.RecordTimings.EndTime == nil {
		t.Fatal("saved record has no end time")
	}

	rec := svc.Snapshot(key)
	if rec.SessionState.State != session.StateIdle {
		t.Fatalf("state after stop = %q, want idle", rec.SessionState.State)
	}
	if rec.HasData() {
		t.Fatal("live record still holds data after stop")
	}
	if rec.ID != "" {
		t.Fatal("record ID survived stop")
	}
}

func TestStopPausedSessionUsesStoredDuration(t *testing.T) {
	svc, saver := newTestService(t)
	key := "tab-5"
	base := time.Date(2025, 3, 10, 14, 0, 0, 0, time.UTC)
	clock := setClock(svc, base)

	startRecording(t, svc, key, base)
	svc.UpsertData(key, DataDelta{Captions: []session.CaptionEntry{{ID: "c1", Text: "x"}}})

	*clock = base.Add(100 * time.Second)
	svc.Pause(key)

	// Stopping long after the pause must not inflate the total.
	*clock = base.Add(500 * time.Second)
	svc.Stop(context.Background(), key)

	if saver.count() != 1 {
		t.Fatalf("saved sessions = %d, want 1", saver.count())
	}
	if got := saver.saved[0].RecordTimings.TotalDuration; got != 100*time.Second {
		t.Fatalf("stored duration = %v, want 100s", got)
	}
}

func TestDeleteDiscardsWithoutSaving(t *testing.T) {
	svc, saver := newTestService(t)
	key := "tab-6"

	startRecording(t, svc, key, time.Now())
	svc.UpsertData(key, DataDelta{Captions: []session.CaptionEntry{{ID: "c1", Text: "x"}}})

	svc.Delete(context.Background(), key)
	if saver.count() != 0 {
		t.Fatalf("delete persisted %d sessions, want 0", saver.count())
	}
	if svc.Snapshot(key).HasData() {
		t.Fatal("data survived delete")
	}
	if got := svc.State(key).State; got != session.StateIdle {
		t.Fatalf("state after delete = %q, want idle", got)
	}

	ins := svc.PollInstructions(context.Background(), key, 0)
	want := []Instruction{InstructionStart, InstructionHardStop}
	if len(ins) != len(want) || ins[0] != want[0] || ins[1] != want[1] {
		t.Fatalf("instructions = %v, want %v", ins, want)
	}
}

func TestUpsertDataStateGate(t *testing.T) {
	svc, _ := newTestService(t)
	key := "tab-7"

	delta := DataDelta{Captions: []session.CaptionEntry{{ID: "c1", Text: "dropped"}}}
	if svc.UpsertData(key, delta) {
		t.Fatal("idle session accepted data")
	}

	startRecording(t, svc, key, time.Now())
	if !svc.UpsertData(key, delta) {
		t.Fatal("recording session rejected data")
	}

	// The adapter's pause-time buffer flush arrives after the pause
	// transition; the paused window stays open for it.
	svc.Pause(key)
	if !svc.UpsertData(key, DataDelta{Captions: []session.CaptionEntry{{ID: "c2", Text: "pause flush"}}}) {
		t.Fatal("paused session rejected the flush delta")
	}
	if got := len(svc.Snapshot(key).Captions); got != 2 {
		t.Fatalf("captions = %d, want 2", got)
	}

	svc.Stop(context.Background(), key)
	if svc.UpsertData(key, delta) {
		t.Fatal("stopped session accepted data")
	}
}

func TestUpsertMergesByID(t *testing.T) {
	svc, _ := newTestService(t)
	key := "tab-8"
	startRecording(t, svc, key, time.Now())

	svc.UpsertData(key, DataDelta{Captions: []session.CaptionEntry{
		{ID: "c1", Speaker: "Alice", Text: "hel"},
		{ID: "c2", Speaker: "Bob", Text: "hi"},
	}})
	svc.UpsertData(key, DataDelta{
		Captions:     []session.CaptionEntry{{ID: "c1", Speaker: "Alice", Text: "hello there"}},
		ChatMessages: []session.ChatMessage{{ID: "m1", Speaker: "Bob", Message: "yo"}},
	})
	svc.UpsertData(key, DataDelta{
		ChatMessages: []session.ChatMessage{{ID: "m1", Speaker: "Bob", Message: "yo"}},
		AttendeeEvents: []session.AttendeeEvent{
			{Name: "Carol", Action: session.AttendeeJoined},
		},
	})

	rec := svc.Snapshot(key)
	if len(rec.Captions) != 2 {
		t.Fatalf("captions = %d, want 2", len(rec.Captions))
	}
	if rec.Captions[0].ID != "c1" || rec.Captions[0].Text != "hello there" {
		t.Fatalf("caption c1 not updated in place: %+v", rec.Captions[0])
	}
	if len(rec.ChatMessages) != 1 {
		t.Fatalf("chat messages = %d, want 1", len(rec.ChatMessages))
	}
	if len(rec.AttendeeEvents) != 1 {
		t.Fatalf("attendee events = %d, want 1", len(rec.AttendeeEvents))
	}
	if !rec.MeetingInfo.Attendees["Carol"] {
		t.Fatal("joined attendee missing from roster")
	}
}

func TestBroadcastOnlyOnStateChange(t *testing.T) {
	svc, _ := newTestService(t)
	key := "tab-9"

	var mu sync.Mutex
	var states []session.State
	svc.AddObserver(ObserverFunc(func(_ string, state session.State) {
		mu.Lock()
		states = append(states, state)
		mu.Unlock()
	}))

	svc.SetMeetingStatus(key, true)
	svc.SetMeetingStatus(key, true) // unchanged, no broadcast
	startRecording(t, svc, key, time.Now())
	svc.UpsertData(key, DataDelta{Captions: []session.CaptionEntry{{ID: "c1", Text: "x"}}})
	svc.SetPanelVisible(key, true)

	mu.Lock()
	defer mu.Unlock()
	// meeting status, starting, recording, panel visible
	if len(states) != 4 {
		t.Fatalf("broadcasts = %d, want 4: %+v", len(states), states)
	}
	if !states[0].IsInMeeting {
		t.Fatalf("first broadcast = %+v, want in-meeting", states[0])
	}
	if states[1].State != session.StateStarting || states[2].State != session.StateRecording {
		t.Fatalf("state broadcasts = %q, %q", states[1].State, states[2].State)
	}
	if !states[3].IsPanelVisible {
		t.Fatalf("last broadcast = %+v, want panel visible", states[3])
	}
}

func TestRestoreReplacesWholesale(t *testing.T) {
	svc, _ := newTestService(t)
	key := "tab-10"

	backup := session.NewRecord()
	backup.ID = "recovered"
	backup.SessionState.State = session.StateRecording
	backup.Captions = []session.CaptionEntry{{ID: "c1", Text: "from backup"}}
	backup.IsBackup = true

	svc.Restore(key, backup)
	svc.Restore(key, backup) // applying twice is safe

	rec := svc.Snapshot(key)
	if rec.ID != "recovered" || len(rec.Captions) != 1 {
		t.Fatalf("restored record = %+v", rec)
	}
	if rec.IsBackup {
		t.Fatal("restored record still flagged as backup")
	}

	// Mutating the original backup must not reach the live record.
	backup.Captions[0].Text = "tampered"
	if svc.Snapshot(key).Captions[0].Text != "from backup" {
		t.Fatal("restore aliased the caller's record")
	}
}

func TestContextGoneFinalizesActiveSession(t *testing.T) {
	svc, saver := newTestService(t)
	key := "tab-11"

	startRecording(t, svc, key, time.Now())
	svc.UpsertData(key, DataDelta{Captions: []session.CaptionEntry{{ID: "c1", Text: "x"}}})

	svc.ContextGone(context.Background(), key)
	if saver.count() != 1 {
		t.Fatalf("saved sessions = %d, want 1", saver.count())
	}
	if keys := svc.SessionKeys(); len(keys) != 0 {
		t.Fatalf("live sessions = %v, want none", keys)
	}
}

func TestActiveSessionsExcludesIdleAndStarting(t *testing.T) {
	svc, _ := newTestService(t)

	svc.SetMeetingStatus("idle-tab", true)
	svc.Start("starting-tab")
	startRecording(t, svc, "rec-tab", time.Now())
	startRecording(t, svc, "paused-tab", time.Now())
	svc.Pause("paused-tab")

	active := svc.ActiveSessions()
	if len(active) != 2 {
		t.Fatalf("active sessions = %d, want 2", len(active))
	}
	if _, ok := active["rec-tab"]; !ok {
		t.Fatal("recording session missing from active set")
	}
	if _, ok := active["paused-tab"]; !ok {
		t.Fatal("paused session missing from active set")
	}
}

func TestPollInstructionsLongPollWakes(t *testing.T) {
	svc, _ := newTestService(t)
	key := "tab-12"

	done := make(chan []Instruction, 1)
	go func() {
		done <- svc.PollInstructions(context.Background(), key, 2*time.Second)
	}()

	time.Sleep(50 * time.Millisecond)
	svc.Start(key)

	select {
	case ins := <-done:
		if len(ins) != 1 || ins[0] != InstructionStart {
			t.Fatalf("instructions = %v, want [%s]", ins, InstructionStart)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("long poll never woke")
	}
}

func TestStopWaitsForContextFlush(t *testing.T) {
	svc, saver := newTestService(t)
	key := "tab-13"

	startRecording(t, svc, key, time.Now())
	// Drain the queued start instruction so the poll below observes only
	// the stop instruction.
	svc.PollInstructions(context.Background(), key, 0)
	svc.SetPlatformInfo(key, session.PlatformMeet, true)
	svc.UpsertData(key, DataDelta{Captions: []session.CaptionEntry{{ID: "c1", Speaker: "You", Text: "almost"}}})

	done := make(chan SaveResult, 1)
	go func() {
		done <- svc.Stop(context.Background(), key)
	}()

	instrs := svc.PollInstructions(context.Background(), key, 2*time.Second)
	if len(instrs) != 1 || instrs[0] != InstructionStop {
		t.Fatalf("instructions = %v, want [%s]", instrs, InstructionStop)
	}

	select {
	case <-done:
		t.Fatal("stop finalized before the flush acknowledgment")
	case <-time.After(50 * time.Millisecond):
	}

	// The adapter flushes its buffer as a last upsert before acknowledging.
	if !svc.UpsertData(key, DataDelta{Captions: []session.CaptionEntry{{ID: "c1", Speaker: "Carol", Text: "almost done"}}}) {
		t.Fatal("mid-stop flush rejected")
	}
	svc.ReportStopped(key)

	select {
	case result := <-done:
		if result.Skipped {
			t.Fatalf("save skipped: %s", result.Reason)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("stop never returned after acknowledgment")
	}

	saver.mu.Lock()
	defer saver.mu.Unlock()
	if len(saver.saved) != 1 {
		t.Fatalf("saved %d records, want 1", len(saver.saved))
	}
	caps := saver.saved[0].Captions
	if len(caps) != 1 || caps[0].Speaker != "Carol" || caps[0].Text != "almost done" {
		t.Fatalf("persisted captions = %+v, want the flushed delta", caps)
	}
}

func TestStopWithoutAdapterFinalizesImmediately(t *testing.T) {
	svc, saver := newTestService(t)
	key := "tab-14"

	startRecording(t, svc, key, time.Now())
	svc.UpsertData(key, DataDelta{Captions: []session.CaptionEntry{{ID: "c1", Text: "hi"}}})

	done := make(chan SaveResult, 1)
	go func() {
		done <- svc.Stop(context.Background(), key)
	}()
	select {
	case result := <-done:
		if result.Skipped {
			t.Fatalf("save skipped: %s", result.Reason)
		}
	case <-time.After(time.Second):
		t.Fatal("stop blocked with no attached adapter")
	}
	if saver.count() != 1 {
		t.Fatalf("saved %d records, want 1", saver.count())
	}
}

func TestRebindMovesLiveSession(t *testing.T) {
	svc, _ := newTestService(t)

	startRecording(t, svc, "tab-old", time.Now())
	svc.UpsertData("tab-old", DataDelta{Captions: []session.CaptionEntry{{ID: "c1", Text: "hello"}}})

	rec := svc.Rebind("tab-old", "tab-new")
	if rec == nil {
		t.Fatal("rebind returned nil for a live session")
	}
	if len(rec.Captions) != 1 {
		t.Fatalf("captions = %d, want 1", len(rec.Captions))
	}

	active := svc.ActiveSessions()
	if _, ok := active["tab-old"]; ok {
		t.Fatal("old key still active after rebind")
	}
	if _, ok := active["tab-new"]; !ok {
		t.Fatal("new key missing after rebind")
	}

	if svc.Rebind("tab-missing", "tab-x") != nil {
		t.Fatal("rebind of unknown key returned a record")
	}
	if svc.Rebind("tab-new", "tab-new") != nil {
		t.Fatal("rebind onto the same key returned a record")
	}
}
