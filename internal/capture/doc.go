// Package capture implements the platform capture adapters that turn a
// live meeting page's mutating caption/chat/attendee regions into ordered
// session data. The Google Meet variant reconciles transient caption nodes
// through an in-progress utterance buffer; the Teams variant tags
// persistent caption elements and updates them by stable id.
package capture
