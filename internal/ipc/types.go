package ipc

import (
	"meetscribe/internal/recorder"
	"meetscribe/internal/session"
	"meetscribe/internal/store"
)

// SessionRequest addresses an operation at one session key.
type SessionRequest struct {
	SessionKey string `json:"session_key"`
}

// Ack is the empty response for fire-and-forget operations.
type Ack struct{}

// RecordingStopResponse reports what the durable save did.
type RecordingStopResponse struct {
	Skipped bool   `json:"skipped"`
	Reason  string `json:"reason,omitempty"`
}

// ReportStartedRequest acknowledges recording is live in the page context.
type ReportStartedRequest struct {
	SessionKey string `json:"session_key"`
	AtMillis   int64  `json:"at_millis"`
}

// ReportResumedRequest acknowledges recording resumed in the page context.
type ReportResumedRequest struct {
	SessionKey string `json:"session_key"`
	AtMillis   int64  `json:"at_millis"`
}

// ReportFailedRequest reports a recording command failure.
type ReportFailedRequest struct {
	SessionKey string `json:"session_key"`
	ErrorKind  string `json:"error_kind"`
	Command    string `json:"command"`
}

// MeetingStatusRequest records meeting presence for a session.
type MeetingStatusRequest struct {
	SessionKey string `json:"session_key"`
	InMeeting  bool   `json:"in_meeting"`
}

// PlatformInfoRequest records the detected platform for a session.
type PlatformInfoRequest struct {
	SessionKey  string `json:"session_key"`
	Platform    string `json:"platform"`
	Initialized bool   `json:"initialized"`
}

// PanelVisibilityRequest records panel visibility for a session.
type PanelVisibilityRequest struct {
	SessionKey string `json:"session_key"`
	Visible    bool   `json:"visible"`
}

// ExtensionEnabledRequest records the global enablement flag for a session.
type ExtensionEnabledRequest struct {
	SessionKey string `json:"session_key"`
	Enabled    bool   `json:"enabled"`
}

// UpsertDataRequest merges captured data into the live session.
type UpsertDataRequest struct {
	SessionKey string             `json:"session_key"`
	Delta      recorder.DataDelta `json:"delta"`
}

// UpsertDataResponse reports whether the delta was accepted.
type UpsertDataResponse struct {
	Accepted bool `json:"accepted"`
}

// CheckBackupRequest asks for a recovered session matching the meeting URL.
type CheckBackupRequest struct {
	SessionKey string `json:"session_key"`
	URL        string `json:"url"`
}

// CheckBackupResponse carries the recovered session, if any.
type CheckBackupResponse struct {
	Found  bool            `json:"found"`
	Record *session.Record `json:"record,omitempty"`
}

// PollInstructionsRequest long-polls for daemon-to-context instructions.
type PollInstructionsRequest struct {
	SessionKey string `json:"session_key"`
	WaitMillis int    `json:"wait_millis"`
}

// PollInstructionsResponse lists pending instructions in arrival order.
type PollInstructionsResponse struct {
	Instructions []string `json:"instructions"`
}

// SnapshotResponse carries a deep copy of one session record.
type SnapshotResponse struct {
	Record *session.Record `json:"record"`
}

// StatusRequest fetches daemon status.
type StatusRequest struct{}

// StatusResponse represents daemon runtime information.
type StatusResponse struct {
	Running        bool                     `json:"running"`
	PID            int                      `json:"pid"`
	StoreDBPath    string                   `json:"store_db_path"`
	LockPath       string                   `json:"lock_path"`
	ActiveSessions int                      `json:"active_sessions"`
	Sessions       map[string]session.State `json:"sessions"`
	LastSaved      *session.Record          `json:"last_saved,omitempty"`
}

// HistoryRequest lists saved sessions.
type HistoryRequest struct {
	Limit int `json:"limit"`
}

// HistoryResponse carries saved session summaries, newest first.
type HistoryResponse struct {
	Entries []store.HistoryEntry `json:"entries"`
}

// HistoryRecordRequest fetches one saved session by history id.
type HistoryRecordRequest struct {
	ID int64 `json:"id"`
}

// HistoryRecordResponse carries the full saved session, if found.
type HistoryRecordResponse struct {
	Record *session.Record `json:"record,omitempty"`
}

// LastSavedRequest fetches the most recently saved session.
type LastSavedRequest struct{}

// LastSavedResponse carries the most recently saved session, if any.
type LastSavedResponse struct {
	Record *session.Record `json:"record,omitempty"`
}

// StopDaemonRequest stops background processing.
type StopDaemonRequest struct{}

// StopDaemonResponse indicates stop result.
type StopDaemonResponse struct {
	Stopped bool `json:"stopped"`
}

// LogTailRequest fetches log lines based on offset and follow semantics.
type LogTailRequest struct {
	Offset     int64 `json:"offset"`
	Limit      int   `json:"limit"`
	Follow     bool  `json:"follow"`
	WaitMillis int   `json:"wait_millis"`
}

// LogTailResponse returns log lines and the next offset.
type LogTailResponse struct {
	Lines  []string `json:"lines"`
	Offset int64    `json:"offset"`
}
