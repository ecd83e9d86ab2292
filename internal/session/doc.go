// Package session defines the canonical per-session data model: the
// session record, caption/chat/attendee entries, recording states, and
// the error kinds surfaced to observers.
package session
