// Package page abstracts the host meeting page as a push-based stream of
// region change events. Capture adapters consume a Document without caring
// whether it is backed by a live browser shim over websocket or an
// in-memory scripted document.
package page
