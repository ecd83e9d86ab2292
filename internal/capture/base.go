package capture

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"meetscribe/internal/config"
	"meetscribe/internal/logging"
	"meetscribe/internal/page"
	"meetscribe/internal/session"
)

// core bundles the behavior shared by every adapter variant: the element
// cache, the action guard, the event emitter, the meeting-presence watcher,
// chat and attendee capture, hydration, and cleanup. Variants compose it
// and add their caption reconciliation on top.
type core struct {
	doc     page.Document
	logger  *slog.Logger
	emitter *emitter
	cache   *elementCache
	guard   *actionGuard
	now     func() time.Time

	autoEnable     bool
	presenceWindow time.Duration
	captionWindow  time.Duration
	verifyDelay    time.Duration
	waitTimeout    time.Duration

	mu             sync.Mutex
	initialized    bool
	cleaned        bool
	recording      bool
	paused         bool
	inMeeting      bool
	selfName       string
	captions       []session.CaptionEntry
	captionIndex   map[string]int
	chat           []session.ChatMessage
	chatSeen       map[string]bool
	attendees      []session.AttendeeEvent
	attendeeSet    map[string]bool
	info           session.MeetingInfo
	loggedFailures map[string]bool
	cancels        []page.CancelFunc
	debouncers     []*debouncer
}

func newCore(doc page.Document, cfg config.Capture, logger *slog.Logger, component string) *core {
	return &core{
		doc:            doc,
		logger:         logging.WithComponent(logger, component),
		emitter:        newEmitter(),
		cache:          newElementCache(doc, time.Duration(cfg.ElementCacheTTLSeconds)*time.Second),
		guard:          newActionGuard(time.Duration(cfg.ActionDebounceSeconds) * time.Second),
		now:            time.Now,
		autoEnable:     cfg.AutoEnableCaptions,
		presenceWindow: time.Duration(cfg.PresenceDebounceMillis) * time.Millisecond,
		captionWindow:  time.Duration(cfg.CaptionDebounceMillis) * time.Millisecond,
		verifyDelay:    time.Duration(cfg.CaptionVerifyDelayMillis) * time.Millisecond,
		waitTimeout:    time.Duration(cfg.WaitElementTimeoutSeconds) * time.Second,
		captionIndex:   make(map[string]int),
		chatSeen:       make(map[string]bool),
		attendeeSet:    make(map[string]bool),
		info:           session.MeetingInfo{Attendees: make(map[string]bool)},
		loggedFailures: make(map[string]bool),
	}
}

func (c *core) On(eventType EventType, handler Handler) int { return c.emitter.on(eventType, handler) }

func (c *core) Off(eventType EventType, id int) { c.emitter.off(eventType, id) }

func (c *core) IsInMeeting() bool {
	c.mu.Lock()
	inMeeting := c.inMeeting
	c.mu.Unlock()
	if inMeeting {
		return true
	}
	return c.cache.lookup(selLeaveButton).Exists()
}

func (c *core) Captions() []session.CaptionEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]session.CaptionEntry(nil), c.captions...)
}

func (c *core) ChatMessages() []session.ChatMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]session.ChatMessage(nil), c.chat...)
}

func (c *core) AttendeeEvents() []session.AttendeeEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]session.AttendeeEvent(nil), c.attendees...)
}

func (c *core) MeetingInfo() session.MeetingInfo {
	c.mu.Lock()
	defer c.mu.Unlock()
	info := c.info
	info.Attendees = make(map[string]bool, len(c.info.Attendees))
	for name, present := range c.info.Attendees {
		info.Attendees[name] = present
	}
	if info.URL == "" {
		info.URL = c.doc.URL()
	}
	return info
}

// Hydrate seeds captured data from a recovered snapshot. Applying the same
// snapshot twice is safe: entries are keyed by id and replace wholesale.
func (c *core) Hydrate(snapshot *session.Record) {
	if snapshot == nil {
		return
	}
	clone := snapshot.Clone()
	c.mu.Lock()
	defer c.mu.Unlock()
	c.captions = clone.Captions
	c.captionIndex = make(map[string]int, len(clone.Captions))
	for i, entry := range clone.Captions {
		c.captionIndex[entry.ID] = i
	}
	c.chat = clone.ChatMessages
	c.chatSeen = make(map[string]bool, len(clone.ChatMessages))
	for _, msg := range clone.ChatMessages {
		c.chatSeen[msg.ID] = true
	}
	c.attendees = clone.AttendeeEvents
	c.info = clone.MeetingInfo
	if c.info.Attendees == nil {
		c.info.Attendees = make(map[string]bool)
	}
	c.attendeeSet = make(map[string]bool, len(c.info.Attendees))
	for name := range c.info.Attendees {
		c.attendeeSet[name] = true
	}
}

// Cleanup disconnects every subscription, cancels pending debounces, and
// clears the element cache. Safe to call repeatedly.
func (c *core) Cleanup() {
	c.mu.Lock()
	if c.cleaned {
		c.mu.Unlock()
		return
	}
	c.cleaned = true
	cancels := c.cancels
	debouncers := c.debouncers
	c.cancels = nil
	c.debouncers = nil
	c.mu.Unlock()

	for _, cancel := range cancels {
		cancel()
	}
	for _, deb := range debouncers {
		deb.cancel()
	}
	c.cache.clear()
	c.emitter.clear()
}

// observe registers a document observer and tracks its cancel for Cleanup.
func (c *core) observe(selector string, fn page.ChangeFunc) error {
	cancel, err := c.doc.Observe(selector, fn)
	if err != nil {
		return fmt.Errorf("observe %s: %w", selector, err)
	}
	c.mu.Lock()
	c.cancels = append(c.cancels, cancel)
	c.mu.Unlock()
	return nil
}

// observeDebounced wraps observe with burst coalescing: only the last
// change in a window is delivered.
func (c *core) observeDebounced(selector string, window time.Duration, fn page.ChangeFunc) error {
	deb := newDebouncer(window)
	c.mu.Lock()
	c.debouncers = append(c.debouncers, deb)
	c.mu.Unlock()
	return c.observe(selector, func(change page.Change) {
		deb.trigger(func() { fn(change) })
	})
}

// waitForElement polls for a region until it appears or the bounded wait
// elapses.
func (c *core) waitForElement(ctx context.Context, selector string) (*page.Element, error) {
	deadline := c.now().Add(c.waitTimeout)
	for {
		if el := c.doc.Query(selector); el != nil {
			return el, nil
		}
		if c.now().After(deadline) {
			return nil, fmt.Errorf("element %q not found within %s", selector, c.waitTimeout)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(100 * time.Millisecond):
		}
	}
}

// logFailureOnce logs one warning per failure category so repeated
// mutation bursts cannot storm the log.
func (c *core) logFailureOnce(category string, err error) {
	c.mu.Lock()
	seen := c.loggedFailures[category]
	c.loggedFailures[category] = true
	c.mu.Unlock()
	if !seen {
		c.logger.Warn("capture degraded", logging.String("category", category), logging.Error(err))
	}
}

// captionControl is the variant-specific caption toggle surface used by
// ensureCaptionsEnabled.
type captionControl interface {
	IsCaptionsEnabled() bool
	EnableCaptions(ctx context.Context) error
}

// ensureCaptionsEnabled verifies the host page's caption feature is on,
// auto-enabling it when allowed. The re-check after a short delay exists
// because the page's own toggle is asynchronous and unreliable.
func (c *core) ensureCaptionsEnabled(ctx context.Context, ctl captionControl) error {
	if ctl.IsCaptionsEnabled() {
		return nil
	}
	if !c.autoEnable {
		return fmt.Errorf("captions are disabled and auto-enable is off")
	}
	if err := ctl.EnableCaptions(ctx); err != nil {
		return fmt.Errorf("auto-enable captions: %w", err)
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(c.verifyDelay):
	}
	c.cache.invalidate(selCaptionsToggle)
	c.cache.invalidate(selCaptions)
	if !ctl.IsCaptionsEnabled() {
		return fmt.Errorf("captions still disabled after auto-enable")
	}
	return nil
}

// beginRecording flips the shared recording flags. Returns false when the
// adapter is already active, making StartRecording idempotent.
func (c *core) beginRecording() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.recording && !c.paused {
		return false
	}
	c.recording = true
	c.paused = false
	if c.info.StartTime.IsZero() {
		c.info.StartTime = c.now()
	}
	return true
}

func (c *core) setPaused(paused bool) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.recording || c.paused == paused {
		return false
	}
	c.paused = paused
	return true
}

func (c *core) endRecording() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.recording {
		return false
	}
	c.recording = false
	c.paused = false
	return true
}

// capturing reports whether caption/chat data should be committed right now.
func (c *core) capturing() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.recording && !c.paused
}

// commitCaption appends or updates a caption entry by id, preserving
// first-appearance order.
func (c *core) commitCaption(entry session.CaptionEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if i, ok := c.captionIndex[entry.ID]; ok {
		c.captions[i] = entry
		return
	}
	c.captionIndex[entry.ID] = len(c.captions)
	c.captions = append(c.captions, entry)
}

// appendChat records a chat message unless its id was already seen.
func (c *core) appendChat(msg session.ChatMessage) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.chatSeen[msg.ID] {
		return false
	}
	c.chatSeen[msg.ID] = true
	c.chat = append(c.chat, msg)
	return true
}

// setMeetingPresence updates the in-meeting flag and reports whether the
// value actually flipped, so the watcher emits only on edge transitions.
func (c *core) setMeetingPresence(present bool) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.inMeeting == present {
		return false
	}
	c.inMeeting = present
	if present && c.info.StartTime.IsZero() {
		c.info.StartTime = c.now()
	}
	return true
}

// watchMeetingPresence observes the leave control and emits
// meeting_started/meeting_ended on debounced edge transitions only.
func (c *core) watchMeetingPresence() error {
	return c.observeDebounced(selLeaveButton, c.presenceWindow, func(change page.Change) {
		present := change.Root.Exists()
		if !c.setMeetingPresence(present) {
			return
		}
		if present {
			c.refreshMeetingMetadata()
			c.emitter.emit(Event{Type: EventMeetingStarted})
		} else {
			c.emitter.emit(Event{Type: EventMeetingEnded})
		}
	})
}

// watchChat captures committed chat messages. Chat nodes are persistent on
// every supported platform, so reconciliation is id tagging plus
// duplicate suppression.
func (c *core) watchChat() error {
	err := c.observeDebounced(selChat, c.captionWindow, func(change page.Change) {
		if change.Root == nil || !c.capturing() {
			return
		}
		for _, node := range change.Root.Children {
			c.captureChatNode(node)
		}
	})
	if err != nil {
		// Degraded mode: captions keep working without chat capture.
		c.logFailureOnce("chat_observer", err)
	}
	return nil
}

func (c *core) captureChatNode(node *page.Element) {
	if node == nil || node.Text == "" {
		return
	}
	speaker, _ := node.Attr("speaker")
	if speaker == selfSpeakerLabel {
		if self := c.currentSelfName(); self != "" {
			speaker = self
		}
	}
	id, ok := node.Attr("data-scribe-id")
	if !ok || id == "" {
		id = chatNodeKey(node)
	}
	msg := session.ChatMessage{
		ID:        id,
		Speaker:   speaker,
		Message:   node.Text,
		Timestamp: c.now(),
	}
	if c.appendChat(msg) {
		c.emitter.emit(Event{Type: EventChatMessage, Chat: &msg})
	}
}

// watchParticipants diffs the attendee roster and records joined/left
// events.
func (c *core) watchParticipants() error {
	err := c.observeDebounced(selParticipants, c.presenceWindow, func(change page.Change) {
		if change.Root == nil {
			return
		}
		current := make(map[string]bool, len(change.Root.Children))
		for _, node := range change.Root.Children {
			name := node.Text
			if name == "" {
				continue
			}
			current[name] = true
		}
		c.applyRoster(current)
	})
	if err != nil {
		c.logFailureOnce("participants_observer", err)
	}
	return nil
}

func (c *core) applyRoster(current map[string]bool) {
	now := c.now()
	var events []session.AttendeeEvent
	c.mu.Lock()
	for name := range current {
		if !c.attendeeSet[name] {
			c.attendeeSet[name] = true
			c.info.Attendees[name] = true
			events = append(events, session.AttendeeEvent{Name: name, Action: session.AttendeeJoined, Time: now})
		}
	}
	for name := range c.attendeeSet {
		if !current[name] {
			delete(c.attendeeSet, name)
			events = append(events, session.AttendeeEvent{Name: name, Action: session.AttendeeLeft, Time: now})
		}
	}
	c.attendees = append(c.attendees, events...)
	c.mu.Unlock()

	for i := range events {
		c.emitter.emit(Event{Type: EventAttendeeChange, Attendee: &events[i]})
	}
}

// refreshMeetingMetadata reads title and local user name from the page.
func (c *core) refreshMeetingMetadata() {
	title := c.cache.lookup(selMeetingTitle)
	self := c.cache.lookup(selSelfName)
	c.mu.Lock()
	defer c.mu.Unlock()
	if title != nil && title.Text != "" {
		c.info.Title = title.Text
	}
	if self != nil && self.Text != "" {
		c.selfName = self.Text
	}
	if c.info.URL == "" {
		c.info.URL = c.doc.URL()
	}
}

func (c *core) currentSelfName() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.selfName
}

func (c *core) markInitialized() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.initialized {
		return false
	}
	c.initialized = true
	return true
}

// chatNodeKey derives a stable fallback id for chat nodes whose platform
// never lets us tag them.
func chatNodeKey(node *page.Element) string {
	if node.NodeID != "" {
		return "node:" + node.NodeID
	}
	return uuid.NewString()
}
