package session

import (
	"strings"
	"time"
)

// RecordingState represents the lifecycle of a recording session.
type RecordingState string

const (
	StateIdle      RecordingState = "idle"
	StateStarting  RecordingState = "starting"
	StateRecording RecordingState = "recording"
	StatePaused    RecordingState = "paused"
	StateResuming  RecordingState = "resuming"
	StateError     RecordingState = "error"
)

var allStates = []RecordingState{
	StateIdle,
	StateStarting,
	StateRecording,
	StatePaused,
	StateResuming,
	StateError,
}

var stateSet = func() map[RecordingState]struct{} {
	set := make(map[RecordingState]struct{}, len(allStates))
	for _, state := range allStates {
		set[state] = struct{}{}
	}
	return set
}()

// activeStates are the states whose sessions qualify for durable backup.
var activeStates = map[RecordingState]struct{}{
	StateRecording: {},
	StatePaused:    {},
	StateResuming:  {},
}

// ParseState validates a raw state string.
func ParseState(raw string) (RecordingState, bool) {
	state := RecordingState(strings.ToLower(strings.TrimSpace(raw)))
	_, ok := stateSet[state]
	return state, ok
}

// IsActive reports whether the state qualifies the session for periodic backup.
func (s RecordingState) IsActive() bool {
	_, ok := activeStates[s]
	return ok
}

// ErrorKind classifies recoverable recording failures.
type ErrorKind string

const (
	ErrorNone              ErrorKind = ""
	ErrorNotAuthorized     ErrorKind = "not_authorized"
	ErrorSubtitlesDisabled ErrorKind = "subtitles_disabled"
	ErrorIncorrectLanguage ErrorKind = "incorrect_language"
	ErrorUnknown           ErrorKind = "unknown_error"
)

// Platform identifies the meeting product a session observes.
type Platform string

const (
	PlatformUnknown Platform = ""
	PlatformMeet    Platform = "google_meet"
	PlatformTeams   Platform = "teams"
)

// AttendeeAction records whether an attendee joined or left.
type AttendeeAction string

const (
	AttendeeJoined AttendeeAction = "joined"
	AttendeeLeft   AttendeeAction = "left"
)

// CaptionEntry is one utterance. Text stays mutable until the utterance is
// flushed; ID is assigned once and never changes across text updates.
type CaptionEntry struct {
	ID        string     `json:"id"`
	Speaker   string     `json:"speaker"`
	Text      string     `json:"text"`
	Timestamp time.Time  `json:"timestamp"`
	StartTime *time.Time `json:"start_time,omitempty"`
	EndTime   *time.Time `json:"end_time,omitempty"`
}

// ChatMessage is one committed chat message.
type ChatMessage struct {
	ID        string    `json:"id"`
	Speaker   string    `json:"speaker"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// AttendeeEvent records a join or leave observed in the attendee region.
type AttendeeEvent struct {
	Name   string         `json:"name"`
	Role   string         `json:"role,omitempty"`
	Action AttendeeAction `json:"action"`
	Time   time.Time      `json:"time"`
}

// MeetingInfo carries meeting-level metadata captured from the page.
type MeetingInfo struct {
	Title     string          `json:"title"`
	StartTime time.Time       `json:"start_time"`
	Attendees map[string]bool `json:"attendees"`
	Platform  Platform        `json:"platform"`
	URL       string          `json:"url"`
}

// State is the broadcastable slice of a session record. Only changes to
// these fields trigger a state-changed notification; caption/chat/attendee
// mutations are pulled on demand and never broadcast.
type State struct {
	State                RecordingState `json:"state"`
	Error                ErrorKind      `json:"error,omitempty"`
	IsInMeeting          bool           `json:"is_in_meeting"`
	IsSupportedPlatform  bool           `json:"is_supported_platform"`
	CurrentPlatform      Platform       `json:"current_platform"`
	IsPanelVisible       bool           `json:"is_panel_visible"`
	IsExtensionEnabled   bool           `json:"is_extension_enabled"`
	IsInitializedAdapter bool           `json:"is_initialized_adapter"`
}

// Timings tracks cumulative recording duration bookkeeping.
type Timings struct {
	StartTime     *time.Time    `json:"start_time,omitempty"`
	LastPauseTime *time.Time    `json:"last_pause_time,omitempty"`
	EndTime       *time.Time    `json:"end_time,omitempty"`
	TotalDuration time.Duration `json:"total_duration"`
}

// Record is the canonical session record. Owned exclusively by the recorder
// service; the backup manager only ever reads clones of it.
type Record struct {
	ID             string          `json:"id"`
	SessionState   State           `json:"session_state"`
	RecordTimings  Timings         `json:"record_timings"`
	Captions       []CaptionEntry  `json:"captions"`
	ChatMessages   []ChatMessage   `json:"chat_messages"`
	AttendeeEvents []AttendeeEvent `json:"attendee_events"`
	MeetingInfo    MeetingInfo     `json:"meeting_info"`

	// FailedCommand names the command that produced the current error
	// state, when there is one.
	FailedCommand string `json:"failed_command,omitempty"`

	// Transient flags, not part of durable identity.
	IsBackup   bool `json:"is_backup,omitempty"`
	IsAutoSave bool `json:"is_auto_save,omitempty"`
}

// NewRecord returns the lazy default record materialized on first reference
// to a session key.
func NewRecord() *Record {
	return &Record{
		SessionState: State{State: StateIdle, IsExtensionEnabled: true},
		MeetingInfo:  MeetingInfo{Attendees: make(map[string]bool)},
	}
}

// HasData reports whether the record carries anything worth saving. Durable
// saves are declared no-ops for empty records.
func (r *Record) HasData() bool {
	if r == nil {
		return false
	}
	return len(r.Captions) > 0 || len(r.ChatMessages) > 0 || len(r.AttendeeEvents) > 0
}

// Clone returns a deep copy safe to hand to another goroutine or serialize.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	cp := *r
	cp.RecordTimings = r.RecordTimings.clone()
	cp.Captions = make([]CaptionEntry, len(r.Captions))
	for i, entry := range r.Captions {
		cp.Captions[i] = entry
		cp.Captions[i].StartTime = cloneTime(entry.StartTime)
		cp.Captions[i].EndTime = cloneTime(entry.EndTime)
	}
	cp.ChatMessages = append([]ChatMessage(nil), r.ChatMessages...)
	cp.AttendeeEvents = append([]AttendeeEvent(nil), r.AttendeeEvents...)
	cp.MeetingInfo.Attendees = make(map[string]bool, len(r.MeetingInfo.Attendees))
	for name, present := range r.MeetingInfo.Attendees {
		cp.MeetingInfo.Attendees[name] = present
	}
	return &cp
}

// ClearData resets captured data and timings while leaving the broadcastable
// state untouched. Used by both stop and delete.
func (r *Record) ClearData() {
	r.Captions = nil
	r.ChatMessages = nil
	r.AttendeeEvents = nil
	r.RecordTimings = Timings{}
	r.MeetingInfo.Attendees = make(map[string]bool)
	r.MeetingInfo.Title = ""
	r.MeetingInfo.StartTime = time.Time{}
}

func (t Timings) clone() Timings {
	cp := t
	cp.StartTime = cloneTime(t.StartTime)
	cp.LastPauseTime = cloneTime(t.LastPauseTime)
	cp.EndTime = cloneTime(t.EndTime)
	return cp
}

// TotalAt recomputes cumulative duration at the given instant. The value is
// derived from the stored total plus the open interval, never incrementally
// summed, so repeated reads with no intervening pause/resume are idempotent.
func (t Timings) TotalAt(now time.Time) time.Duration {
	switch {
	case t.LastPauseTime != nil:
		return t.TotalDuration + now.Sub(*t.LastPauseTime)
	case t.StartTime != nil:
		return t.TotalDuration + now.Sub(*t.StartTime)
	default:
		return t.TotalDuration
	}
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	cp := *t
	return &cp
}
