package capture

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"meetscribe/internal/config"
	"meetscribe/internal/page"
	"meetscribe/internal/session"
)

// tagAttr is the attribute written onto Teams caption nodes the first time
// they are seen, so later notifications resolve to the same entry.
const tagAttr = "data-scribe-id"

// teamsAdapter captures Microsoft Teams. Teams keeps a persistent list of
// caption elements, so no utterance buffer is needed: each element is
// tagged with a generated id on first sight and later notifications update
// the matching entry's text in place.
type teamsAdapter struct {
	*core

	tagMu sync.Mutex
	// tags maps the source node id to the caption entry id for nodes whose
	// attribute write-back has not landed yet.
	tags map[string]string
}

func newTeamsAdapter(doc page.Document, cfg config.Capture, logger *slog.Logger) *teamsAdapter {
	return &teamsAdapter{
		core: newCore(doc, cfg, logger, "capture.teams"),
		tags: make(map[string]string),
	}
}

func (t *teamsAdapter) Platform() session.Platform { return session.PlatformTeams }

func (t *teamsAdapter) Initialize(ctx context.Context) error {
	if !t.markInitialized() {
		return nil
	}
	if _, err := t.waitForElement(ctx, selLeaveButton); err != nil {
		return fmt.Errorf("teams page not ready: %w", err)
	}
	t.refreshMeetingMetadata()
	t.setMeetingPresence(true)

	if err := t.watchMeetingPresence(); err != nil {
		return err
	}
	if err := t.observeDebounced(selCaptions, t.captionWindow, t.onCaptionChange); err != nil {
		return err
	}
	_ = t.watchChat()
	_ = t.watchParticipants()
	return nil
}

func (t *teamsAdapter) IsCaptionsEnabled() bool {
	return t.doc.Query(selCaptions) != nil
}

func (t *teamsAdapter) EnableCaptions(ctx context.Context) error {
	if t.IsCaptionsEnabled() {
		return nil
	}
	if !t.guard.allow("enable_captions") {
		t.logger.Warn("enable_captions dropped by action guard")
		return nil
	}
	if err := t.doc.Click(ctx, selCaptionsToggle); err != nil {
		return fmt.Errorf("click captions toggle: %w", err)
	}
	t.cache.invalidate(selCaptions)
	return nil
}

func (t *teamsAdapter) DisableCaptions(ctx context.Context) error {
	if !t.IsCaptionsEnabled() {
		return nil
	}
	if !t.guard.allow("disable_captions") {
		t.logger.Warn("disable_captions dropped by action guard")
		return nil
	}
	if err := t.doc.Click(ctx, selCaptionsToggle); err != nil {
		return fmt.Errorf("click captions toggle: %w", err)
	}
	t.cache.invalidate(selCaptions)
	return nil
}

func (t *teamsAdapter) StartRecording(ctx context.Context) error {
	if !t.guard.allow("start_recording") {
		t.logger.Warn("start_recording dropped by action guard")
		return nil
	}
	if err := t.ensureCaptionsEnabled(ctx, t); err != nil {
		err = fmt.Errorf("start recording: %w", err)
		t.emitter.emit(Event{Type: EventError, ErrorKind: session.ErrorSubtitlesDisabled, Err: err})
		return err
	}
	if !t.beginRecording() {
		return nil
	}
	t.refreshMeetingMetadata()
	t.emitter.emit(Event{Type: EventRecordingStarted})
	return nil
}

func (t *teamsAdapter) PauseRecording(context.Context) error {
	if t.setPaused(true) {
		t.emitter.emit(Event{Type: EventRecordingPaused})
	}
	return nil
}

func (t *teamsAdapter) ResumeRecording(context.Context) error {
	if t.setPaused(false) {
		t.emitter.emit(Event{Type: EventRecordingResumed})
	}
	return nil
}

func (t *teamsAdapter) StopRecording(context.Context) error {
	if t.endRecording() {
		t.emitter.emit(Event{Type: EventRecordingStopped})
	}
	return nil
}

func (t *teamsAdapter) HardStopRecording(context.Context) error {
	t.endRecording()
	return nil
}

// onCaptionChange walks the persistent caption list, tagging unseen nodes
// and updating known ones only when their text actually changed.
func (t *teamsAdapter) onCaptionChange(change page.Change) {
	if change.Root == nil || !t.capturing() {
		return
	}
	for _, node := range change.Root.Children {
		t.reconcileNode(node)
	}
}

func (t *teamsAdapter) reconcileNode(node *page.Element) {
	if node == nil || node.Text == "" {
		return
	}
	speaker, _ := node.Attr("speaker")
	if speaker == selfSpeakerLabel {
		if self := t.currentSelfName(); self != "" {
			speaker = self
		}
	}

	id, known := t.nodeTag(node)
	if !known {
		id = uuid.NewString()
		t.rememberTag(node.NodeID, id)
		// Best effort: a failed write-back is fine, the in-memory tag map
		// still resolves this node next time.
		if err := t.doc.SetAttr(context.Background(), node.NodeID, tagAttr, id); err != nil {
			t.logFailureOnce("caption_tagging", err)
		}
		entry := session.CaptionEntry{
			ID:        id,
			Speaker:   speaker,
			Text:      node.Text,
			Timestamp: t.now(),
		}
		t.commitCaption(entry)
		t.emitter.emit(Event{Type: EventCaptionAdded, Caption: &entry})
		return
	}

	t.mu.Lock()
	idx, ok := t.captionIndex[id]
	var current session.CaptionEntry
	if ok {
		current = t.captions[idx]
	}
	t.mu.Unlock()
	if !ok || current.Text == node.Text {
		return
	}
	current.Text = node.Text
	t.commitCaption(current)
	t.emitter.emit(Event{Type: EventCaptionUpdated, Caption: &current})
}

func (t *teamsAdapter) nodeTag(node *page.Element) (string, bool) {
	if id, ok := node.Attr(tagAttr); ok && id != "" {
		return id, true
	}
	t.tagMu.Lock()
	defer t.tagMu.Unlock()
	id, ok := t.tags[node.NodeID]
	return id, ok && node.NodeID != ""
}

func (t *teamsAdapter) rememberTag(nodeID, id string) {
	if nodeID == "" {
		return
	}
	t.tagMu.Lock()
	defer t.tagMu.Unlock()
	t.tags[nodeID] = id
}
