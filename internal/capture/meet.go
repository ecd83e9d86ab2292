package capture

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"meetscribe/internal/config"
	"meetscribe/internal/page"
	"meetscribe/internal/session"
)

// meetAdapter captures Google Meet. Meet renders captions as one transient
// node per active speaker with no history, so utterances are reconciled
// through the in-progress buffer: same-speaker changes update in place and
// a speaker change flushes the previous utterance.
type meetAdapter struct {
	*core

	bufMu sync.Mutex
	buf   reconcileBuffer
}

func newMeetAdapter(doc page.Document, cfg config.Capture, logger *slog.Logger) *meetAdapter {
	return &meetAdapter{core: newCore(doc, cfg, logger, "capture.meet")}
}

func (m *meetAdapter) Platform() session.Platform { return session.PlatformMeet }

func (m *meetAdapter) Initialize(ctx context.Context) error {
	if !m.markInitialized() {
		return nil
	}
	if _, err := m.waitForElement(ctx, selLeaveButton); err != nil {
		return fmt.Errorf("meet page not ready: %w", err)
	}
	m.refreshMeetingMetadata()
	m.setMeetingPresence(true)

	if err := m.watchMeetingPresence(); err != nil {
		return err
	}
	if err := m.observeDebounced(selCaptions, m.captionWindow, m.onCaptionChange); err != nil {
		return err
	}
	// Chat and roster capture degrade independently of captions.
	_ = m.watchChat()
	_ = m.watchParticipants()
	return nil
}

func (m *meetAdapter) IsCaptionsEnabled() bool {
	if toggle := m.cache.lookup(selCaptionsToggle); toggle != nil {
		if pressed, ok := toggle.Attr("aria-pressed"); ok {
			return pressed == "true"
		}
	}
	return m.doc.Query(selCaptions) != nil
}

func (m *meetAdapter) EnableCaptions(ctx context.Context) error {
	if m.IsCaptionsEnabled() {
		return nil
	}
	if !m.guard.allow("enable_captions") {
		m.logger.Warn("enable_captions dropped by action guard")
		return nil
	}
	if err := m.doc.Click(ctx, selCaptionsToggle); err != nil {
		return fmt.Errorf("click captions toggle: %w", err)
	}
	m.cache.invalidate(selCaptionsToggle)
	return nil
}

func (m *meetAdapter) DisableCaptions(ctx context.Context) error {
	if !m.IsCaptionsEnabled() {
		return nil
	}
	if !m.guard.allow("disable_captions") {
		m.logger.Warn("disable_captions dropped by action guard")
		return nil
	}
	if err := m.doc.Click(ctx, selCaptionsToggle); err != nil {
		return fmt.Errorf("click captions toggle: %w", err)
	}
	m.cache.invalidate(selCaptionsToggle)
	return nil
}

func (m *meetAdapter) StartRecording(ctx context.Context) error {
	if !m.guard.allow("start_recording") {
		m.logger.Warn("start_recording dropped by action guard")
		return nil
	}
	if err := m.ensureCaptionsEnabled(ctx, m); err != nil {
		err = fmt.Errorf("start recording: %w", err)
		m.emitter.emit(Event{Type: EventError, ErrorKind: session.ErrorSubtitlesDisabled, Err: err})
		return err
	}
	if !m.beginRecording() {
		return nil
	}
	m.refreshMeetingMetadata()
	m.emitter.emit(Event{Type: EventRecordingStarted})
	return nil
}

func (m *meetAdapter) PauseRecording(context.Context) error {
	m.flushBuffer()
	if m.setPaused(true) {
		m.emitter.emit(Event{Type: EventRecordingPaused})
	}
	return nil
}

func (m *meetAdapter) ResumeRecording(context.Context) error {
	if m.setPaused(false) {
		m.emitter.emit(Event{Type: EventRecordingResumed})
	}
	return nil
}

func (m *meetAdapter) StopRecording(context.Context) error {
	m.flushBuffer()
	if m.endRecording() {
		m.emitter.emit(Event{Type: EventRecordingStopped})
	}
	return nil
}

func (m *meetAdapter) HardStopRecording(context.Context) error {
	m.flushBuffer()
	m.endRecording()
	return nil
}

// onCaptionChange runs the streaming-diff reconciliation against the
// current last-speaker caption node.
func (m *meetAdapter) onCaptionChange(change page.Change) {
	if !m.capturing() {
		return
	}

	node := activeCaptionNode(change.Root)
	if node == nil {
		// Region reset: the speaker stopped, close out the utterance.
		m.flushBuffer()
		return
	}
	speaker, _ := node.Attr("speaker")
	text := node.Text
	if text == "" {
		// Not yet ready; never commit empty captions.
		return
	}

	now := m.now()
	m.bufMu.Lock()
	switch {
	case m.buf.empty():
		seeded := m.buf.seed(speaker, text, now)
		m.bufMu.Unlock()
		// Surface the new utterance immediately rather than on completion.
		m.emitter.emit(Event{Type: EventCaptionAdded, Caption: &seeded})
	case m.buf.speaker != speaker:
		flushed, ok := m.buf.flush(m.currentSelfName(), now)
		seeded := m.buf.seed(speaker, text, now)
		m.bufMu.Unlock()
		if ok {
			m.commitCaption(flushed)
			m.emitter.emit(Event{Type: EventCaptionAdded, Caption: &flushed})
		}
		m.emitter.emit(Event{Type: EventCaptionAdded, Caption: &seeded})
	default:
		updated := m.buf.update(text)
		m.bufMu.Unlock()
		m.emitter.emit(Event{Type: EventCaptionUpdated, Caption: &updated})
	}
}

// flushBuffer commits any in-progress utterance. Runs before pause, stop,
// and hard stop so no in-flight utterance is lost.
func (m *meetAdapter) flushBuffer() {
	m.bufMu.Lock()
	flushed, ok := m.buf.flush(m.currentSelfName(), m.now())
	m.bufMu.Unlock()
	if ok {
		m.commitCaption(flushed)
		m.emitter.emit(Event{Type: EventCaptionAdded, Caption: &flushed})
	}
}

// activeCaptionNode picks the caption node being mutated, or nil when the
// region is empty or collapsed to a bare placeholder.
func activeCaptionNode(root *page.Element) *page.Element {
	if root == nil || len(root.Children) == 0 {
		return nil
	}
	node := root.LastChild()
	if node == nil {
		return nil
	}
	if _, ok := node.Attr("speaker"); !ok && node.Text == "" {
		return nil
	}
	return node
}
