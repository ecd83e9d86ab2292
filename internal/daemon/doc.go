// Package daemon coordinates the long-running scribed process.
//
// It wires configuration, the session store, the recording state machine,
// and the backup manager into a single lifecycle with flock-based locking
// to prevent multiple instances. The daemon exposes the operations the IPC
// surface delegates to: recording commands, page context reports, data
// upserts, backup recovery, and status queries.
//
// Keep orchestration logic here: state machine rules live in recorder and
// persistence in store while the daemon focuses on startup, shutdown, and
// high level coordination.
package daemon
