// Package store persists session data in SQLite: durable backups of
// in-flight sessions, the saved session history, and small state blobs
// shared between daemon restarts.
package store
