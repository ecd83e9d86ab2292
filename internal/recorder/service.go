package recorder

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"meetscribe/internal/logging"
	"meetscribe/internal/metrics"
	"meetscribe/internal/session"
)

// SaveResult reports what a durable save did with the record.
type SaveResult struct {
	Skipped bool   `json:"skipped"`
	Reason  string `json:"reason,omitempty"`
}

// Saver persists a finished session. Implementations must declare a no-op
// for records that carry no captured data.
type Saver interface {
	SaveSession(ctx context.Context, rec *session.Record) (SaveResult, error)
}

// Observer is notified when a session's broadcastable state changes.
// Data-only mutations never reach observers.
type Observer interface {
	StateChanged(sessionKey string, state session.State)
}

// ObserverFunc adapts a function to the Observer interface.
type ObserverFunc func(sessionKey string, state session.State)

func (f ObserverFunc) StateChanged(sessionKey string, state session.State) { f(sessionKey, state) }

// DataDelta carries incremental captured data from a page context.
type DataDelta struct {
	Captions       []session.CaptionEntry  `json:"captions,omitempty"`
	ChatMessages   []session.ChatMessage   `json:"chat_messages,omitempty"`
	AttendeeEvents []session.AttendeeEvent `json:"attendee_events,omitempty"`
	MeetingInfo    *session.MeetingInfo    `json:"meeting_info,omitempty"`
}

// Service is the recording state machine over an arena of session records
// keyed by session key. Every record has exactly one writer: this service.
type Service struct {
	logger *slog.Logger
	saver  Saver
	queue  *instructionQueue
	now    func() time.Time

	mu       sync.Mutex
	sessions map[string]*session.Record

	flushMu sync.Mutex
	flushes map[string]chan struct{}

	obsMu     sync.Mutex
	observers []Observer
}

// stopFlushWait bounds how long Stop waits for an attached page context to
// flush its in-progress caption buffer before the record is finalized.
const stopFlushWait = 3 * time.Second

// NewService constructs the state machine service.
func NewService(saver Saver, logger *slog.Logger) *Service {
	return &Service{
		logger:   logging.WithComponent(logger, "recorder"),
		saver:    saver,
		queue:    newInstructionQueue(),
		now:      time.Now,
		sessions: make(map[string]*session.Record),
		flushes:  make(map[string]chan struct{}),
	}
}

// AddObserver registers a state-change observer.
func (s *Service) AddObserver(obs Observer) {
	if obs == nil {
		return
	}
	s.obsMu.Lock()
	s.observers = append(s.observers, obs)
	s.obsMu.Unlock()
}

// record materializes the lazy default record on first reference, so
// commands for unknown session keys never fail.
func (s *Service) record(key string) *session.Record {
	rec, ok := s.sessions[key]
	if !ok {
		rec = session.NewRecord()
		s.sessions[key] = rec
	}
	return rec
}

// mutate runs fn against the record for key and broadcasts when one of the
// broadcastable state fields changed (or when fn forces it).
func (s *Service) mutate(key string, fn func(rec *session.Record) (force bool)) {
	s.mu.Lock()
	rec := s.record(key)
	before := rec.SessionState
	force := fn(rec)
	after := rec.SessionState
	s.mu.Unlock()

	if force || before != after {
		s.broadcast(key, after)
	}
}

func (s *Service) broadcast(key string, state session.State) {
	s.obsMu.Lock()
	observers := append([]Observer(nil), s.observers...)
	s.obsMu.Unlock()
	for _, obs := range observers {
		obs.StateChanged(key, state)
	}
}

// Start begins recording: idle (or a dismissed error) moves to starting and
// a begin-recording instruction is queued for the page context.
func (s *Service) Start(key string) {
	started := false
	s.mutate(key, func(rec *session.Record) bool {
		switch rec.SessionState.State {
		case session.StateIdle, session.StateError:
		default:
			return false
		}
		if rec.ID == "" {
			rec.ID = uuid.NewString()
		}
		rec.SessionState.State = session.StateStarting
		rec.SessionState.Error = session.ErrorNone
		rec.FailedCommand = ""
		started = true
		return false
	})
	if started {
		s.queue.push(key, InstructionStart)
		s.logger.Info("recording starting", logging.String(logging.FieldSessionKey, key))
	}
}

// ReportStarted is the adapter's acknowledgment that recording is live.
func (s *Service) ReportStarted(key string, at time.Time) {
	if at.IsZero() {
		at = s.now()
	}
	s.mutate(key, func(rec *session.Record) bool {
		if rec.SessionState.State != session.StateStarting {
			return false
		}
		rec.SessionState.State = session.StateRecording
		rec.SessionState.Error = session.ErrorNone
		start := at
		rec.RecordTimings.StartTime = &start
		rec.RecordTimings.LastPauseTime = nil
		if rec.MeetingInfo.StartTime.IsZero() {
			rec.MeetingInfo.StartTime = at
		}
		return false
	})
}

// Pause suspends recording and folds the open interval into the stored
// total. The open-interval reference is the last resume, or the start.
func (s *Service) Pause(key string) {
	paused := false
	s.mutate(key, func(rec *session.Record) bool {
		if rec.SessionState.State != session.StateRecording {
			return false
		}
		now := s.now()
		rec.RecordTimings.TotalDuration = rec.RecordTimings.TotalAt(now)
		pause := now
		rec.RecordTimings.LastPauseTime = &pause
		rec.SessionState.State = session.StatePaused
		rec.SessionState.Error = session.ErrorNone
		paused = true
		return false
	})
	if paused {
		s.queue.push(key, InstructionPause)
	}
}

// Resume asks the page context to resume; recording state follows the
// adapter's ReportResumed acknowledgment.
func (s *Service) Resume(key string) {
	resumed := false
	s.mutate(key, func(rec *session.Record) bool {
		if rec.SessionState.State != session.StatePaused {
			return false
		}
		rec.SessionState.State = session.StateResuming
		rec.SessionState.Error = session.ErrorNone
		resumed = true
		return false
	})
	if resumed {
		s.queue.push(key, InstructionResume)
	}
}

// ReportResumed flips resuming back to recording and re-opens the duration
// interval at the report time.
func (s *Service) ReportResumed(key string, at time.Time) {
	if at.IsZero() {
		at = s.now()
	}
	s.mutate(key, func(rec *session.Record) bool {
		if rec.SessionState.State != session.StateResuming {
			return false
		}
		rec.SessionState.State = session.StateRecording
		rec.SessionState.Error = session.ErrorNone
		resume := at
		rec.RecordTimings.LastPauseTime = &resume
		return false
	})
}

// ReportFailed moves the session into the error state. The next successful
// command dismisses it.
func (s *Service) ReportFailed(key string, kind session.ErrorKind, failedCommand string) {
	if kind == session.ErrorNone {
		kind = session.ErrorUnknown
	}
	s.mutate(key, func(rec *session.Record) bool {
		rec.SessionState.State = session.StateError
		rec.SessionState.Error = kind
		rec.FailedCommand = failedCommand
		return false
	})
	s.logger.Warn("recording command failed",
		logging.String(logging.FieldSessionKey, key),
		logging.String("error_kind", string(kind)),
		logging.String("command", failedCommand))
}

// Stop finalizes the session: computes the final duration, persists it
// through the save callback, clears captured data, and returns to idle.
// When a page context drives the session, the stop instruction goes out
// first and finalization waits for the context's flush acknowledgment, so
// the last in-flight utterance reaches the record before it is saved.
func (s *Service) Stop(ctx context.Context, key string) SaveResult {
	ch := s.requestStopFlush(key)
	if ch == nil {
		return s.finish(ctx, key, true, true)
	}
	select {
	case <-ch:
	case <-ctx.Done():
	case <-time.After(stopFlushWait):
		s.logger.Warn("stop flush acknowledgment timed out",
			logging.String(logging.FieldSessionKey, key))
	}
	s.clearStopFlush(key)
	return s.finish(ctx, key, true, false)
}

// requestStopFlush queues the stop instruction for a session driven by a
// live page context and returns a channel closed by ReportStopped. Nil
// means no context is attached and the caller finalizes immediately.
func (s *Service) requestStopFlush(key string) <-chan struct{} {
	s.mu.Lock()
	rec, ok := s.sessions[key]
	attached := ok && rec.SessionState.IsInitializedAdapter && rec.SessionState.State.IsActive()
	s.mu.Unlock()
	if !attached {
		return nil
	}
	ch := make(chan struct{})
	s.flushMu.Lock()
	s.flushes[key] = ch
	s.flushMu.Unlock()
	s.queue.push(key, InstructionStop)
	return ch
}

// ReportStopped is the page context's acknowledgment that the adapter
// flushed its buffer and stopped. A Stop call blocked on the flush
// proceeds to finalize.
func (s *Service) ReportStopped(key string) {
	s.flushMu.Lock()
	if ch, ok := s.flushes[key]; ok {
		close(ch)
		delete(s.flushes, key)
	}
	s.flushMu.Unlock()
}

func (s *Service) clearStopFlush(key string) {
	s.flushMu.Lock()
	delete(s.flushes, key)
	s.flushMu.Unlock()
}

// Delete discards the session without persisting anything.
func (s *Service) Delete(ctx context.Context, key string) {
	s.finish(ctx, key, false, true)
}

func (s *Service) finish(ctx context.Context, key string, save, notify bool) SaveResult {
	var toSave *session.Record
	stopped := false
	s.mutate(key, func(rec *session.Record) bool {
		switch rec.SessionState.State {
		case session.StateStarting, session.StateRecording, session.StatePaused, session.StateResuming:
		default:
			return false
		}
		now := s.now()
		if rec.SessionState.State == session.StateRecording {
			rec.RecordTimings.TotalDuration = rec.RecordTimings.TotalAt(now)
		}
		end := now
		rec.RecordTimings.EndTime = &end
		if save {
			toSave = rec.Clone()
		}
		rec.ClearData()
		rec.ID = ""
		rec.SessionState.State = session.StateIdle
		rec.SessionState.Error = session.ErrorNone
		rec.FailedCommand = ""
		stopped = true
		return false
	})
	if !stopped {
		return SaveResult{Skipped: true, Reason: "not recording"}
	}
	if notify {
		if save {
			s.queue.push(key, InstructionStop)
		} else {
			s.queue.push(key, InstructionHardStop)
		}
	}

	if toSave == nil {
		return SaveResult{Skipped: true, Reason: "discarded"}
	}
	result, err := s.saver.SaveSession(ctx, toSave)
	if err != nil {
		// Non-fatal: the periodic backup still holds the data until the
		// next save attempt or orphan recovery.
		s.logger.Error("durable save failed", logging.String(logging.FieldSessionKey, key), logging.Error(err))
		return SaveResult{Skipped: true, Reason: "save failed"}
	}
	if !result.Skipped {
		metrics.SessionsSaved.Inc()
	}
	return result
}

// UpsertData merges incremental captured data. Accepted while the session
// is recording or paused: the pause transition lands before the adapter's
// buffer flush, so the paused window stays open for that final delta.
// Deltas in any other state are dropped.
func (s *Service) UpsertData(key string, delta DataDelta) bool {
	accepted := false
	s.mutate(key, func(rec *session.Record) bool {
		switch rec.SessionState.State {
		case session.StateRecording, session.StatePaused:
		default:
			return false
		}
		accepted = true
		mergeDelta(rec, delta)
		return false
	})
	return accepted
}

func mergeDelta(rec *session.Record, delta DataDelta) {
	if len(delta.Captions) > 0 {
		index := make(map[string]int, len(rec.Captions))
		for i, entry := range rec.Captions {
			index[entry.ID] = i
		}
		for _, entry := range delta.Captions {
			if i, ok := index[entry.ID]; ok {
				rec.Captions[i] = entry
				continue
			}
			index[entry.ID] = len(rec.Captions)
			rec.Captions = append(rec.Captions, entry)
			metrics.CaptionsCommitted.Inc()
		}
	}

	if len(delta.ChatMessages) > 0 {
		seen := make(map[string]bool, len(rec.ChatMessages))
		for _, msg := range rec.ChatMessages {
			seen[msg.ID] = true
		}
		for _, msg := range delta.ChatMessages {
			if !seen[msg.ID] {
				seen[msg.ID] = true
				rec.ChatMessages = append(rec.ChatMessages, msg)
			}
		}
	}

	rec.AttendeeEvents = append(rec.AttendeeEvents, delta.AttendeeEvents...)
	for _, event := range delta.AttendeeEvents {
		if event.Action == session.AttendeeJoined {
			rec.MeetingInfo.Attendees[event.Name] = true
		}
	}

	if delta.MeetingInfo != nil {
		if delta.MeetingInfo.Title != "" {
			rec.MeetingInfo.Title = delta.MeetingInfo.Title
		}
		if !delta.MeetingInfo.StartTime.IsZero() && rec.MeetingInfo.StartTime.IsZero() {
			rec.MeetingInfo.StartTime = delta.MeetingInfo.StartTime
		}
		if delta.MeetingInfo.Platform != session.PlatformUnknown {
			rec.MeetingInfo.Platform = delta.MeetingInfo.Platform
		}
		if delta.MeetingInfo.URL != "" {
			rec.MeetingInfo.URL = delta.MeetingInfo.URL
		}
		for name := range delta.MeetingInfo.Attendees {
			rec.MeetingInfo.Attendees[name] = true
		}
	}
}

// SetMeetingStatus records whether the context is currently in a meeting.
func (s *Service) SetMeetingStatus(key string, inMeeting bool) {
	s.mutate(key, func(rec *session.Record) bool {
		rec.SessionState.IsInMeeting = inMeeting
		return false
	})
}

// SetPlatformInfo records the detected platform for the context.
func (s *Service) SetPlatformInfo(key string, platform session.Platform, initialized bool) {
	s.mutate(key, func(rec *session.Record) bool {
		rec.SessionState.CurrentPlatform = platform
		rec.SessionState.IsSupportedPlatform = platform != session.PlatformUnknown
		rec.SessionState.IsInitializedAdapter = initialized
		rec.MeetingInfo.Platform = platform
		return false
	})
}

// SetPanelVisible records panel visibility reported by the UI layer.
func (s *Service) SetPanelVisible(key string, visible bool) {
	s.mutate(key, func(rec *session.Record) bool {
		rec.SessionState.IsPanelVisible = visible
		return false
	})
}

// SetExtensionEnabled records the global enablement flag.
func (s *Service) SetExtensionEnabled(key string, enabled bool) {
	s.mutate(key, func(rec *session.Record) bool {
		rec.SessionState.IsExtensionEnabled = enabled
		return false
	})
}

// Restore installs a recovered backup as the live record for the key.
// Restoring the same backup twice is safe: the record is replaced
// wholesale, never merged.
func (s *Service) Restore(key string, backup *session.Record) {
	if backup == nil {
		return
	}
	clone := backup.Clone()
	clone.IsBackup = false
	s.mu.Lock()
	before := session.State{}
	if existing, ok := s.sessions[key]; ok {
		before = existing.SessionState
	}
	s.sessions[key] = clone
	after := clone.SessionState
	s.mu.Unlock()
	if before != after {
		s.broadcast(key, after)
	}
}

// Rebind moves a live session to a new key for a page context that
// reconnected under a fresh identity. Pending instructions for the old
// key are dropped; the record itself is untouched. Returns a clone of
// the moved record, or nil when the old key holds nothing.
func (s *Service) Rebind(oldKey, newKey string) *session.Record {
	if oldKey == newKey {
		return nil
	}
	s.mu.Lock()
	rec, ok := s.sessions[oldKey]
	if !ok {
		s.mu.Unlock()
		return nil
	}
	delete(s.sessions, oldKey)
	s.sessions[newKey] = rec
	clone := rec.Clone()
	state := rec.SessionState
	s.mu.Unlock()
	s.queue.drop(oldKey)
	s.ReportStopped(oldKey)
	s.broadcast(newKey, state)
	return clone
}

// Snapshot returns a deep copy of the record for the key, materializing
// the default record for unknown keys.
func (s *Service) Snapshot(key string) *session.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.record(key).Clone()
}

// State returns just the broadcastable state for the key.
func (s *Service) State(key string) session.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.record(key).SessionState
}

// ActiveSessions returns clones of every record whose state qualifies for
// durable backup.
func (s *Service) ActiveSessions() map[string]*session.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	active := make(map[string]*session.Record)
	for key, rec := range s.sessions {
		if rec.SessionState.State.IsActive() {
			active[key] = rec.Clone()
		}
	}
	return active
}

// SessionKeys lists every live session key.
func (s *Service) SessionKeys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := make([]string, 0, len(s.sessions))
	for key := range s.sessions {
		keys = append(keys, key)
	}
	return keys
}

// PollInstructions collects pending daemon-to-context instructions,
// long-polling up to maxWait.
func (s *Service) PollInstructions(ctx context.Context, key string, maxWait time.Duration) []Instruction {
	return s.queue.poll(ctx, key, maxWait)
}

// ContextGone applies the unexpected-ending rule for a torn-down page
// context: the session is forced through stop (persisting what it had)
// and removed from live memory. The durable backup, if any, stays put
// until consumed or pruned by the backup manager.
func (s *Service) ContextGone(ctx context.Context, key string) {
	s.mu.Lock()
	rec, ok := s.sessions[key]
	active := ok && (rec.SessionState.State.IsActive() || rec.SessionState.State == session.StateStarting)
	s.mu.Unlock()

	if active {
		// The context is already gone, so no flush acknowledgment will
		// ever arrive: finalize directly with whatever data landed.
		result := s.finish(ctx, key, true, false)
		s.logger.Info("session ended unexpectedly",
			logging.String(logging.FieldSessionKey, key),
			logging.Bool("save_skipped", result.Skipped))
	}

	s.mu.Lock()
	delete(s.sessions, key)
	s.mu.Unlock()
	s.queue.drop(key)
	// Release any Stop call still blocked on this context's flush.
	s.ReportStopped(key)
}
