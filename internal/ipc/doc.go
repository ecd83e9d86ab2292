// Package ipc exposes the daemon over JSON-RPC Unix sockets and ships the
// matching client used by the CLI and the page-bound capture runner.
//
// It owns socket lifecycle management and the request/response DTOs of the
// wire protocol. The server embeds the daemon; the client is a thin typed
// wrapper over rpc.Client so callers fail fast when the daemon is offline.
//
// Reuse these types when adding new RPC endpoints to keep the protocol
// stable and compatible with existing command implementations.
package ipc
