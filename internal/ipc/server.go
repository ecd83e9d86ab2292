package ipc

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"os"
	"sync"
	"time"

	"log/slog"

	"meetscribe/internal/daemon"
	"meetscribe/internal/logging"
	"meetscribe/internal/logs"
	"meetscribe/internal/session"
)

// Server exposes daemon control via JSON-RPC over a Unix domain socket.
type Server struct {
	path      string
	daemon    *daemon.Daemon
	logger    *slog.Logger
	listener  net.Listener
	rpcServer *rpc.Server

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewServer configures the IPC server at the given socket path.
func NewServer(ctx context.Context, path string, d *daemon.Daemon, logger *slog.Logger) (*Server, error) {
	if d == nil {
		return nil, errors.New("ipc server requires daemon")
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	if err := os.RemoveAll(path); err != nil {
		return nil, fmt.Errorf("remove existing socket: %w", err)
	}

	listener, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("listen on socket: %w", err)
	}

	rpcServer := rpc.NewServer()
	srv := &service{daemon: d, logger: logger, ctx: ctx}
	if err := rpcServer.RegisterName("Scribe", srv); err != nil {
		listener.Close()
		return nil, fmt.Errorf("register rpc service: %w", err)
	}

	serverCtx, cancel := context.WithCancel(ctx)
	return &Server{
		path:      path,
		daemon:    d,
		logger:    logger,
		listener:  listener,
		rpcServer: rpcServer,
		ctx:       serverCtx,
		cancel:    cancel,
	}, nil
}

// Serve starts accepting RPC connections until the context is canceled.
func (s *Server) Serve() {
	s.logger.Debug("IPC server listening", logging.String("socket", s.path))
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			conn, err := s.listener.Accept()
			if err != nil {
				select {
				case <-s.ctx.Done():
					return
				default:
				}
				s.logger.Warn("accept failed", logging.Error(err))
				continue
			}
			s.wg.Add(1)
			go func(c net.Conn) {
				defer s.wg.Done()
				s.rpcServer.ServeCodec(jsonrpc.NewServerCodec(c))
			}(conn)
		}
	}()
}

// Close stops the server and removes the socket file.
func (s *Server) Close() {
	s.cancel()
	if s.listener != nil {
		_ = s.listener.Close()
	}
	s.wg.Wait()
	if err := os.RemoveAll(s.path); err != nil {
		s.logger.Warn("failed to remove socket",
			logging.String("socket", s.path),
			logging.Error(err))
	}
}

type service struct {
	daemon *daemon.Daemon
	logger *slog.Logger
	ctx    context.Context
}

func (s *service) log() *slog.Logger {
	if s.logger == nil {
		return logging.NewNop()
	}
	return s.logger.With(logging.String(logging.FieldComponent, "ipc"))
}

func millisToTime(millis int64) time.Time {
	if millis <= 0 {
		return time.Time{}
	}
	return time.UnixMilli(millis)
}

func (s *service) RecordingStart(req SessionRequest, _ *Ack) error {
	s.log().Debug("recording start requested", logging.String(logging.FieldSessionKey, req.SessionKey))
	s.daemon.StartRecording(req.SessionKey)
	return nil
}

func (s *service) RecordingStop(req SessionRequest, resp *RecordingStopResponse) error {
	s.log().Debug("recording stop requested", logging.String(logging.FieldSessionKey, req.SessionKey))
	result := s.daemon.StopRecording(s.ctx, req.SessionKey)
	resp.Skipped = result.Skipped
	resp.Reason = result.Reason
	return nil
}

func (s *service) RecordingPause(req SessionRequest, _ *Ack) error {
	s.daemon.PauseRecording(req.SessionKey)
	return nil
}

func (s *service) RecordingResume(req SessionRequest, _ *Ack) error {
	s.daemon.ResumeRecording(req.SessionKey)
	return nil
}

func (s *service) RecordingDelete(req SessionRequest, _ *Ack) error {
	s.log().Debug("recording delete requested", logging.String(logging.FieldSessionKey, req.SessionKey))
	s.daemon.DeleteRecording(s.ctx, req.SessionKey)
	return nil
}

func (s *service) ReportStarted(req ReportStartedRequest, _ *Ack) error {
	s.daemon.ReportStarted(req.SessionKey, millisToTime(req.AtMillis))
	return nil
}

func (s *service) ReportResumed(req ReportResumedRequest, _ *Ack) error {
	s.daemon.ReportResumed(req.SessionKey, millisToTime(req.AtMillis))
	return nil
}

func (s *service) ReportStopped(req SessionRequest, _ *Ack) error {
	s.daemon.ReportStopped(req.SessionKey)
	return nil
}

func (s *service) ReportCommandFailed(req ReportFailedRequest, _ *Ack) error {
	s.daemon.ReportCommandFailed(req.SessionKey, session.ErrorKind(req.ErrorKind), req.Command)
	return nil
}

func (s *service) MeetingStatusChanged(req MeetingStatusRequest, _ *Ack) error {
	s.daemon.SetMeetingStatus(req.SessionKey, req.InMeeting)
	return nil
}

func (s *service) PlatformInfo(req PlatformInfoRequest, _ *Ack) error {
	s.daemon.SetPlatformInfo(req.SessionKey, session.Platform(req.Platform), req.Initialized)
	return nil
}

func (s *service) PanelVisibility(req PanelVisibilityRequest, _ *Ack) error {
	s.daemon.SetPanelVisible(req.SessionKey, req.Visible)
	return nil
}

func (s *service) ExtensionEnabled(req ExtensionEnabledRequest, _ *Ack) error {
	s.daemon.SetExtensionEnabled(req.SessionKey, req.Enabled)
	return nil
}

func (s *service) UpsertSessionData(req UpsertDataRequest, resp *UpsertDataResponse) error {
	resp.Accepted = s.daemon.UpsertSessionData(req.SessionKey, req.Delta)
	return nil
}

func (s *service) CheckBackup(req CheckBackupRequest, resp *CheckBackupResponse) error {
	rec, err := s.daemon.CheckBackup(s.ctx, req.SessionKey, req.URL)
	if err != nil {
		return err
	}
	resp.Found = rec != nil
	resp.Record = rec
	return nil
}

func (s *service) PollInstructions(req PollInstructionsRequest, resp *PollInstructionsResponse) error {
	wait := time.Duration(req.WaitMillis) * time.Millisecond
	instructions := s.daemon.PollInstructions(s.ctx, req.SessionKey, wait)
	resp.Instructions = make([]string, 0, len(instructions))
	for _, ins := range instructions {
		resp.Instructions = append(resp.Instructions, string(ins))
	}
	return nil
}

func (s *service) ContextClosing(req SessionRequest, _ *Ack) error {
	s.log().Debug("page context closing", logging.String(logging.FieldSessionKey, req.SessionKey))
	s.daemon.ContextClosing(s.ctx, req.SessionKey)
	return nil
}

func (s *service) SessionSnapshot(req SessionRequest, resp *SnapshotResponse) error {
	resp.Record = s.daemon.SessionSnapshot(req.SessionKey)
	return nil
}

func (s *service) Status(_ StatusRequest, resp *StatusResponse) error {
	status := s.daemon.Status(s.ctx)
	resp.Running = status.Running
	resp.PID = status.PID
	resp.StoreDBPath = status.StoreDBPath
	resp.LockPath = status.LockFilePath
	resp.ActiveSessions = status.ActiveSessions
	resp.Sessions = status.Sessions
	resp.LastSaved = status.LastSaved
	return nil
}

func (s *service) SessionHistory(req HistoryRequest, resp *HistoryResponse) error {
	entries, err := s.daemon.History(s.ctx, req.Limit)
	if err != nil {
		return err
	}
	resp.Entries = entries
	return nil
}

func (s *service) HistoryRecord(req HistoryRecordRequest, resp *HistoryRecordResponse) error {
	rec, err := s.daemon.HistoryRecord(s.ctx, req.ID)
	if err != nil {
		return err
	}
	resp.Record = rec
	return nil
}

func (s *service) LastSaved(_ LastSavedRequest, resp *LastSavedResponse) error {
	rec, err := s.daemon.LastSaved(s.ctx)
	if err != nil {
		return err
	}
	resp.Record = rec
	return nil
}

func (s *service) StopDaemon(_ StopDaemonRequest, resp *StopDaemonResponse) error {
	s.log().Debug("daemon stop requested")
	s.daemon.Stop()
	resp.Stopped = true
	return nil
}

func (s *service) LogTail(req LogTailRequest, resp *LogTailResponse) error {
	logPath := s.daemon.LogPath()
	if logPath == "" {
		resp.Offset = 0
		return nil
	}
	wait := time.Duration(req.WaitMillis) * time.Millisecond
	if wait <= 0 && req.Follow {
		wait = time.Second
	}
	request := logs.Request{
		Cursor:   req.Offset,
		MaxLines: req.Limit,
		Follow:   req.Follow,
		Wait:     wait,
	}
	ctx := s.ctx
	if req.Follow && wait > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(s.ctx, wait+500*time.Millisecond)
		defer cancel()
	}
	win, err := logs.Read(ctx, logPath, request)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			resp.Offset = win.Cursor
			return nil
		}
		return err
	}
	resp.Lines = win.Lines
	resp.Offset = win.Cursor
	return nil
}
