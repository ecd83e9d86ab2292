// Package backup keeps active sessions durable across daemon and page
// context crashes. A periodic snapshot of every active session is written
// to the store; on startup, orphaned snapshots are saved to history and
// staged for recovery by a page context that returns to the same meeting.
package backup
