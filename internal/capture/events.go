package capture

import (
	"sync"

	"meetscribe/internal/session"
)

// EventType enumerates the adapter event surface.
type EventType string

const (
	EventCaptionAdded     EventType = "caption_added"
	EventCaptionUpdated   EventType = "caption_updated"
	EventRecordingStarted EventType = "recording_started"
	EventRecordingStopped EventType = "recording_stopped"
	EventRecordingPaused  EventType = "recording_paused"
	EventRecordingResumed EventType = "recording_resumed"
	EventMeetingStarted   EventType = "meeting_started"
	EventMeetingEnded     EventType = "meeting_ended"
	EventChatMessage      EventType = "chat_message"
	EventAttendeeChange   EventType = "attendee_change"
	EventError            EventType = "error"
)

// Event carries the payload for one adapter notification. Only the fields
// relevant to the event type are populated.
type Event struct {
	Type      EventType
	Caption   *session.CaptionEntry
	Chat      *session.ChatMessage
	Attendee  *session.AttendeeEvent
	ErrorKind session.ErrorKind
	Err       error
}

// Handler receives adapter events. Handlers for one adapter are invoked
// sequentially, never concurrently.
type Handler func(Event)

type emitter struct {
	mu       sync.Mutex
	handlers map[EventType]map[int]Handler
	nextID   int
}

func newEmitter() *emitter {
	return &emitter{handlers: make(map[EventType]map[int]Handler)}
}

func (e *emitter) on(eventType EventType, handler Handler) int {
	if handler == nil {
		return -1
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.handlers[eventType] == nil {
		e.handlers[eventType] = make(map[int]Handler)
	}
	id := e.nextID
	e.nextID++
	e.handlers[eventType][id] = handler
	return id
}

func (e *emitter) off(eventType EventType, id int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.handlers[eventType], id)
}

func (e *emitter) emit(event Event) {
	e.mu.Lock()
	fns := make([]Handler, 0, len(e.handlers[event.Type]))
	for _, fn := range e.handlers[event.Type] {
		fns = append(fns, fn)
	}
	e.mu.Unlock()
	for _, fn := range fns {
		fn(event)
	}
}

func (e *emitter) clear() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.handlers = make(map[EventType]map[int]Handler)
}
