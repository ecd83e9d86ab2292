package capture

import (
	"context"
	"fmt"
	"log/slog"

	"meetscribe/internal/config"
	"meetscribe/internal/page"
	"meetscribe/internal/session"
)

// Region selectors resolved by the page shim. Both variants observe the
// same logical regions; what differs is how their caption nodes behave.
const (
	selCaptions       = "captions"
	selChat           = "chat"
	selParticipants   = "participants"
	selLeaveButton    = "leave-button"
	selCaptionsToggle = "captions-toggle"
	selMeetingTitle   = "meeting-title"
	selSelfName       = "self-name"
)

// selfSpeakerLabel is the placeholder label the host page uses for the
// local user's own captions.
const selfSpeakerLabel = "You"

// Adapter is the uniform capture lifecycle implemented per platform.
type Adapter interface {
	// Initialize wires region observers and the meeting-presence watcher.
	Initialize(ctx context.Context) error
	// Platform identifies the variant.
	Platform() session.Platform

	IsCaptionsEnabled() bool
	IsInMeeting() bool
	EnableCaptions(ctx context.Context) error
	DisableCaptions(ctx context.Context) error

	// StartRecording is idempotent. It verifies captions are enabled,
	// auto-enabling them when config allows, before flipping to active.
	StartRecording(ctx context.Context) error
	PauseRecording(ctx context.Context) error
	ResumeRecording(ctx context.Context) error
	// StopRecording flushes any in-progress utterance before stopping.
	StopRecording(ctx context.Context) error
	// HardStopRecording stops without emitting lifecycle events, used when
	// the surrounding context is being torn down.
	HardStopRecording(ctx context.Context) error

	Captions() []session.CaptionEntry
	ChatMessages() []session.ChatMessage
	AttendeeEvents() []session.AttendeeEvent
	MeetingInfo() session.MeetingInfo

	// Hydrate seeds the adapter from a recovered session snapshot.
	Hydrate(snapshot *session.Record)
	// Cleanup disconnects all subscriptions and clears caches. Idempotent.
	Cleanup()

	On(eventType EventType, handler Handler) int
	Off(eventType EventType, id int)
}

// New constructs the adapter for an already-detected platform. Callers run
// platform detection themselves; there is no hidden page-inspecting
// singleton here.
func New(platform session.Platform, doc page.Document, cfg config.Capture, logger *slog.Logger) (Adapter, error) {
	switch platform {
	case session.PlatformMeet:
		return newMeetAdapter(doc, cfg, logger), nil
	case session.PlatformTeams:
		return newTeamsAdapter(doc, cfg, logger), nil
	default:
		return nil, fmt.Errorf("unsupported platform %q", platform)
	}
}
