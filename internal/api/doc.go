// Package api serves the daemon's HTTP surface: status and history
// endpoints for dashboards, Prometheus metrics, and a WebSocket feed of
// session state changes.
//
// The state feed carries one JSON frame per broadcast, tagged with the
// session key. Consumers receive a snapshot of every known session on
// connect, then deltas as the recorder broadcasts them. Payload shapes are
// the session package types serialized as-is; keep them stable for
// JavaScript consumers.
package api
