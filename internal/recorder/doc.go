// Package recorder implements the per-session recording state machine that
// runs in the daemon. It owns every canonical session record, applies user
// commands and adapter reports, computes cumulative recording duration, and
// decides when observers hear about state changes.
package recorder
