// Package capturerun drives one page-bound capture context: it connects to
// the page shim and the scribed daemon, relays adapter events upstream, and
// executes the instructions the daemon queues for this session.
package capturerun

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"meetscribe/internal/capture"
	"meetscribe/internal/config"
	"meetscribe/internal/ipc"
	"meetscribe/internal/logging"
	"meetscribe/internal/meeting"
	"meetscribe/internal/page"
	"meetscribe/internal/recorder"
	"meetscribe/internal/session"
)

const defaultPollWait = 25 * time.Second

// Options configures one capture context run.
type Options struct {
	// SessionKey identifies this context to the daemon. Required.
	SessionKey string
	// ShimURL is the websocket endpoint of the page shim. Required.
	ShimURL string
	// PollWait bounds each instruction long-poll. Zero means the default.
	PollWait time.Duration
}

// Run connects a capture context and blocks until the page goes away, the
// daemon becomes unreachable, or ctx is cancelled.
func Run(ctx context.Context, cfg *config.Config, logger *slog.Logger, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}
	if opts.SessionKey == "" {
		return fmt.Errorf("session key is required")
	}
	if opts.ShimURL == "" {
		return fmt.Errorf("shim URL is required")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	logger = logging.WithComponent(logger, "capture-context")

	client, err := ipc.Dial(cfg.Paths.SocketPath)
	if err != nil {
		return fmt.Errorf("connect to daemon: %w", err)
	}
	defer client.Close()

	doc, err := page.DialShim(ctx, opts.ShimURL, logger)
	if err != nil {
		return fmt.Errorf("connect to page shim: %w", err)
	}
	defer doc.Close()

	return runWithDocument(ctx, cfg, logger, client, doc, doc.Done(), opts)
}

// runWithDocument is the transport-independent half of Run: it takes an
// already-connected daemon client and page document.
func runWithDocument(ctx context.Context, cfg *config.Config, logger *slog.Logger, client *ipc.Client, doc page.Document, pageGone <-chan struct{}, opts Options) error {
	platform := meeting.Detect(doc.URL())
	if platform == session.PlatformUnknown {
		return fmt.Errorf("unsupported meeting URL %q", doc.URL())
	}

	adapter, err := capture.New(platform, doc, cfg.Capture, logger)
	if err != nil {
		return err
	}
	defer adapter.Cleanup()

	relay := &relay{
		client:  client,
		adapter: adapter,
		key:     opts.SessionKey,
		logger:  logger,
	}
	relay.subscribe()

	if err := adapter.Initialize(ctx); err != nil {
		return fmt.Errorf("initialize %s adapter: %w", platform, err)
	}
	if err := client.PlatformInfo(opts.SessionKey, string(platform), true); err != nil {
		return fmt.Errorf("report platform: %w", err)
	}
	if err := client.MeetingStatusChanged(opts.SessionKey, adapter.IsInMeeting()); err != nil {
		return fmt.Errorf("report meeting status: %w", err)
	}

	// Interrupted recordings for this meeting resume transparently: the
	// daemon hands back the staged snapshot and the adapter re-seeds its
	// caption and chat caches from it.
	if resp, err := client.CheckBackup(opts.SessionKey, doc.URL()); err != nil {
		logger.Warn("backup check failed", logging.Error(err))
	} else if resp.Found && resp.Record != nil {
		adapter.Hydrate(resp.Record)
		relay.pushMeetingInfo()
		logger.Info("recovered interrupted recording",
			logging.String("title", resp.Record.MeetingInfo.Title),
			logging.Int("captions", len(resp.Record.Captions)))
		if err := adapter.StartRecording(ctx); err != nil {
			logger.Warn("resume after recovery failed", logging.Error(err))
		}
	}

	logger.Info("capture context ready",
		logging.String("platform", string(platform)),
		logging.String("url", doc.URL()))

	err = relay.pollLoop(ctx, opts.pollWait(), pageGone)

	// Best effort on the way out; the daemon also notices the dropped
	// connection and finalizes the session on its own.
	relay.teardown(ctx)
	return err
}

func (o Options) pollWait() time.Duration {
	if o.PollWait > 0 {
		return o.PollWait
	}
	return defaultPollWait
}

// relay forwards adapter events to the daemon and daemon instructions back
// to the adapter.
type relay struct {
	client  *ipc.Client
	adapter capture.Adapter
	key     string
	logger  *slog.Logger

	mu          sync.Mutex
	lastCommand string
}

func (r *relay) subscribe() {
	r.adapter.On(capture.EventCaptionAdded, r.onCaption)
	r.adapter.On(capture.EventCaptionUpdated, r.onCaption)
	r.adapter.On(capture.EventChatMessage, func(ev capture.Event) {
		if ev.Chat == nil {
			return
		}
		r.upsert(recorder.DataDelta{ChatMessages: []session.ChatMessage{*ev.Chat}})
	})
	r.adapter.On(capture.EventAttendeeChange, func(ev capture.Event) {
		if ev.Attendee == nil {
			return
		}
		r.upsert(recorder.DataDelta{AttendeeEvents: []session.AttendeeEvent{*ev.Attendee}})
	})
	r.adapter.On(capture.EventRecordingStarted, func(capture.Event) {
		if err := r.client.ReportStarted(r.key, time.Now()); err != nil {
			r.logger.Warn("report recording started failed", logging.Error(err))
			return
		}
		r.pushMeetingInfo()
	})
	r.adapter.On(capture.EventRecordingResumed, func(capture.Event) {
		if err := r.client.ReportResumed(r.key, time.Now()); err != nil {
			r.logger.Warn("report recording resumed failed", logging.Error(err))
		}
	})
	r.adapter.On(capture.EventMeetingStarted, func(capture.Event) {
		r.reportPresence(true)
	})
	r.adapter.On(capture.EventMeetingEnded, func(capture.Event) {
		r.reportPresence(false)
	})
	r.adapter.On(capture.EventError, func(ev capture.Event) {
		kind := ev.ErrorKind
		if kind == session.ErrorNone {
			kind = session.ErrorUnknown
		}
		if err := r.client.ReportCommandFailed(r.key, string(kind), r.currentCommand()); err != nil {
			r.logger.Warn("report capture error failed", logging.Error(err))
		}
	})
}

func (r *relay) onCaption(ev capture.Event) {
	if ev.Caption == nil {
		return
	}
	r.upsert(recorder.DataDelta{Captions: []session.CaptionEntry{*ev.Caption}})
}

func (r *relay) upsert(delta recorder.DataDelta) {
	resp, err := r.client.UpsertSessionData(ipc.UpsertDataRequest{SessionKey: r.key, Delta: delta})
	if err != nil {
		r.logger.Warn("session data upsert failed", logging.Error(err))
		return
	}
	if !resp.Accepted {
		r.logger.Debug("session data rejected while not recording")
	}
}

// pushMeetingInfo ships the adapter's current meeting metadata so the
// daemon's record carries title, URL, and attendee roster.
func (r *relay) pushMeetingInfo() {
	info := r.adapter.MeetingInfo()
	r.upsert(recorder.DataDelta{MeetingInfo: &info})
}

func (r *relay) reportPresence(inMeeting bool) {
	if err := r.client.MeetingStatusChanged(r.key, inMeeting); err != nil {
		r.logger.Warn("report meeting status failed", logging.Error(err))
	}
}

func (r *relay) currentCommand() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastCommand
}

func (r *relay) setCommand(name string) {
	r.mu.Lock()
	r.lastCommand = name
	r.mu.Unlock()
}

// pollLoop long-polls the daemon for instructions and executes them in
// order until the context ends or the page document closes.
func (r *relay) pollLoop(ctx context.Context, wait time.Duration, pageGone <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-pageGone:
			r.logger.Info("page connection closed")
			return nil
		default:
		}

		resp, err := r.client.PollInstructions(r.key, wait)
		if err != nil {
			if errors.Is(err, context.Canceled) || ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("daemon connection lost: %w", err)
		}
		for _, name := range resp.Instructions {
			r.dispatch(ctx, name)
		}
	}
}

func (r *relay) dispatch(ctx context.Context, name string) {
	r.setCommand(name)
	var err error
	switch recorder.Instruction(name) {
	case recorder.InstructionStart:
		err = r.adapter.StartRecording(ctx)
	case recorder.InstructionPause:
		err = r.adapter.PauseRecording(ctx)
	case recorder.InstructionResume:
		err = r.adapter.ResumeRecording(ctx)
	case recorder.InstructionStop:
		err = r.adapter.StopRecording(ctx)
		// The buffer flush upserts have gone out by now; the daemon holds
		// finalization until this acknowledgment.
		if ackErr := r.client.ReportStopped(r.key); ackErr != nil {
			r.logger.Warn("report recording stopped failed", logging.Error(ackErr))
		}
	case recorder.InstructionHardStop:
		err = r.adapter.HardStopRecording(ctx)
	default:
		r.logger.Warn("unknown instruction", logging.String("instruction", name))
		return
	}
	if err != nil {
		r.logger.Warn("instruction failed",
			logging.String("instruction", name),
			logging.Error(err))
		if reportErr := r.client.ReportCommandFailed(r.key, string(session.ErrorUnknown), name); reportErr != nil {
			r.logger.Warn("report command failure failed", logging.Error(reportErr))
		}
	}
}

func (r *relay) teardown(ctx context.Context) {
	_ = r.adapter.HardStopRecording(ctx)
	if err := r.client.ContextClosing(r.key); err != nil {
		r.logger.Warn("context closing report failed", logging.Error(err))
	}
}
