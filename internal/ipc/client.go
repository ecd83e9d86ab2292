package ipc

import (
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"time"
)

// Client provides RPC access to the daemon.
type Client struct {
	conn   net.Conn
	client *rpc.Client
}

// Dial connects to the IPC server at the given socket path.
func Dial(path string) (*Client, error) {
	conn, err := net.DialTimeout("unix", path, 2*time.Second)
	if err != nil {
		return nil, err
	}
	rpcClient := rpc.NewClientWithCodec(jsonrpc.NewClientCodec(conn))
	return &Client{conn: conn, client: rpcClient}, nil
}

// Close closes the underlying connection.
func (c *Client) Close() error {
	if c.client != nil {
		_ = c.client.Close()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

// RecordingStart asks the daemon to begin recording for the session.
func (c *Client) RecordingStart(sessionKey string) error {
	var ack Ack
	return c.client.Call("Scribe.RecordingStart", SessionRequest{SessionKey: sessionKey}, &ack)
}

// RecordingStop finalizes and persists the session.
func (c *Client) RecordingStop(sessionKey string) (*RecordingStopResponse, error) {
	var resp RecordingStopResponse
	if err := c.client.Call("Scribe.RecordingStop", SessionRequest{SessionKey: sessionKey}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// RecordingPause suspends the session.
func (c *Client) RecordingPause(sessionKey string) error {
	var ack Ack
	return c.client.Call("Scribe.RecordingPause", SessionRequest{SessionKey: sessionKey}, &ack)
}

// RecordingResume resumes a paused session.
func (c *Client) RecordingResume(sessionKey string) error {
	var ack Ack
	return c.client.Call("Scribe.RecordingResume", SessionRequest{SessionKey: sessionKey}, &ack)
}

// RecordingDelete discards the session without saving.
func (c *Client) RecordingDelete(sessionKey string) error {
	var ack Ack
	return c.client.Call("Scribe.RecordingDelete", SessionRequest{SessionKey: sessionKey}, &ack)
}

// ReportStarted acknowledges that the adapter began recording.
func (c *Client) ReportStarted(sessionKey string, at time.Time) error {
	var ack Ack
	req := ReportStartedRequest{SessionKey: sessionKey, AtMillis: at.UnixMilli()}
	return c.client.Call("Scribe.ReportStarted", req, &ack)
}

// ReportResumed acknowledges that the adapter resumed recording.
func (c *Client) ReportResumed(sessionKey string, at time.Time) error {
	var ack Ack
	req := ReportResumedRequest{SessionKey: sessionKey, AtMillis: at.UnixMilli()}
	return c.client.Call("Scribe.ReportResumed", req, &ack)
}

// ReportStopped acknowledges that the adapter flushed its caption buffer
// and stopped recording.
func (c *Client) ReportStopped(sessionKey string) error {
	var ack Ack
	return c.client.Call("Scribe.ReportStopped", SessionRequest{SessionKey: sessionKey}, &ack)
}

// ReportCommandFailed reports a recording command failure.
func (c *Client) ReportCommandFailed(sessionKey, errorKind, command string) error {
	var ack Ack
	req := ReportFailedRequest{SessionKey: sessionKey, ErrorKind: errorKind, Command: command}
	return c.client.Call("Scribe.ReportCommandFailed", req, &ack)
}

// MeetingStatusChanged records meeting presence.
func (c *Client) MeetingStatusChanged(sessionKey string, inMeeting bool) error {
	var ack Ack
	req := MeetingStatusRequest{SessionKey: sessionKey, InMeeting: inMeeting}
	return c.client.Call("Scribe.MeetingStatusChanged", req, &ack)
}

// PlatformInfo records the detected platform.
func (c *Client) PlatformInfo(sessionKey, platform string, initialized bool) error {
	var ack Ack
	req := PlatformInfoRequest{SessionKey: sessionKey, Platform: platform, Initialized: initialized}
	return c.client.Call("Scribe.PlatformInfo", req, &ack)
}

// PanelVisibility records panel visibility.
func (c *Client) PanelVisibility(sessionKey string, visible bool) error {
	var ack Ack
	req := PanelVisibilityRequest{SessionKey: sessionKey, Visible: visible}
	return c.client.Call("Scribe.PanelVisibility", req, &ack)
}

// ExtensionEnabled records the global enablement flag.
func (c *Client) ExtensionEnabled(sessionKey string, enabled bool) error {
	var ack Ack
	req := ExtensionEnabledRequest{SessionKey: sessionKey, Enabled: enabled}
	return c.client.Call("Scribe.ExtensionEnabled", req, &ack)
}

// UpsertSessionData merges captured data into the live session.
func (c *Client) UpsertSessionData(req UpsertDataRequest) (*UpsertDataResponse, error) {
	var resp UpsertDataResponse
	if err := c.client.Call("Scribe.UpsertSessionData", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// CheckBackup asks for a recovered session matching the meeting URL.
func (c *Client) CheckBackup(sessionKey, url string) (*CheckBackupResponse, error) {
	var resp CheckBackupResponse
	req := CheckBackupRequest{SessionKey: sessionKey, URL: url}
	if err := c.client.Call("Scribe.CheckBackup", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// PollInstructions long-polls for daemon-to-context instructions.
func (c *Client) PollInstructions(sessionKey string, wait time.Duration) (*PollInstructionsResponse, error) {
	var resp PollInstructionsResponse
	req := PollInstructionsRequest{SessionKey: sessionKey, WaitMillis: int(wait / time.Millisecond)}
	if err := c.client.Call("Scribe.PollInstructions", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ContextClosing tells the daemon the page context is going away.
func (c *Client) ContextClosing(sessionKey string) error {
	var ack Ack
	return c.client.Call("Scribe.ContextClosing", SessionRequest{SessionKey: sessionKey}, &ack)
}

// SessionSnapshot fetches a deep copy of the session record.
func (c *Client) SessionSnapshot(sessionKey string) (*SnapshotResponse, error) {
	var resp SnapshotResponse
	if err := c.client.Call("Scribe.SessionSnapshot", SessionRequest{SessionKey: sessionKey}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Status retrieves the daemon status.
func (c *Client) Status() (*StatusResponse, error) {
	var resp StatusResponse
	if err := c.client.Call("Scribe.Status", StatusRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// SessionHistory lists saved sessions, newest first.
func (c *Client) SessionHistory(limit int) (*HistoryResponse, error) {
	var resp HistoryResponse
	if err := c.client.Call("Scribe.SessionHistory", HistoryRequest{Limit: limit}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// HistoryRecord fetches one saved session by history id.
func (c *Client) HistoryRecord(id int64) (*HistoryRecordResponse, error) {
	var resp HistoryRecordResponse
	if err := c.client.Call("Scribe.HistoryRecord", HistoryRecordRequest{ID: id}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// LastSaved fetches the most recently saved session.
func (c *Client) LastSaved() (*LastSavedResponse, error) {
	var resp LastSavedResponse
	if err := c.client.Call("Scribe.LastSaved", LastSavedRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// StopDaemon stops background processing.
func (c *Client) StopDaemon() (*StopDaemonResponse, error) {
	var resp StopDaemonResponse
	if err := c.client.Call("Scribe.StopDaemon", StopDaemonRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// LogTail returns log lines from the daemon.
func (c *Client) LogTail(req LogTailRequest) (*LogTailResponse, error) {
	var resp LogTailResponse
	if err := c.client.Call("Scribe.LogTail", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}
