// Package protocol is the bidirectional JSON-RPC dispatcher sitting between
// a Transport and the registries/handshake negotiator: it correlates
// outbound requests with their responses, routes inbound requests and
// notifications through an explicit handler table, and owns a session's
// progress, cancellation, and list-changed notification machinery.
package protocol

import (
	"context"

	"github.com/jamesprial/mcpcore/internal/jsonrpc"
)

// Transport is the long-lived, bidirectional byte pipe an Engine drives.
// Implementations (stdio, streamable HTTP, in-memory) own framing; the
// Engine only ever sees parsed Messages.
type Transport interface {
	// Start begins reading incoming messages, delivering each to the
	// handler registered via OnMessage. Start returns once the transport's
	// read loop exits (on Close or a fatal read error).
	Start(ctx context.Context) error

	// Send writes a single outbound message.
	Send(ctx context.Context, msg jsonrpc.Message) error

	// Close shuts the transport down, unblocking a concurrent Start.
	Close() error

	// OnMessage registers the callback invoked for every inbound message.
	// Must be called before Start.
	OnMessage(func(jsonrpc.Message))

	// OnClose registers the callback invoked once the transport has shut
	// down, whether via Close or a fatal read error.
	OnClose(func(error))

	// OnError registers the callback invoked for a non-fatal transport
	// error, such as a malformed inbound message the read loop discards and
	// continues past. Implementations with no such errors to report (e.g.
	// in-memory) may treat this as a no-op.
	OnError(func(error))
}
