// Package streamhttp implements the Streamable HTTP transport: a POST
// endpoint carrying request/response JSON-RPC traffic and a GET endpoint
// opening a resumable Server-Sent-Events stream, joined by an
// Mcp-Session-Id the server assigns on first contact. It satisfies
// protocol.Transport per session, so the same protocol.Engine/mcpserver
// wiring that drives the stdio and in-memory transports drives this one.
package streamhttp

import (
	"context"
	"sync"

	"github.com/jamesprial/mcpcore/internal/jsonrpc"
	"github.com/jamesprial/mcpcore/internal/protocol"
)

// Transport is the protocol.Transport for one HTTP session. Unlike stdio,
// it has no standing read loop: inbound messages arrive in bursts via
// DeliverBatch (one call per POST body), and outbound messages are either
// captured as that POST's synchronous response or, when no POST is
// in-flight, broadcast to the session's live SSE subscribers and recorded
// in the replay buffer.
type Transport struct {
	mu    sync.Mutex
	scope *deliveryScope

	onMessage func(jsonrpc.Message)
	onClose   func(error)
	onError   func(error)

	replay *replayBuffer

	subsMu sync.Mutex
	subs   map[int]chan sseEvent
	nextID int

	closeOnce sync.Once
	closed    chan struct{}
}

// deliveryScope captures the outbound effects of one DeliverBatch call:
// responses matched by request id, plus any notifications emitted as a
// side effect (e.g. progress) in the order they were sent, so a POST
// handler that upgrades to SSE can stream them before the final response.
type deliveryScope struct {
	waiters map[string]chan jsonrpc.Response
	events  []sseEvent
}

// NewTransport creates a Transport with its own bounded replay buffer.
// maxEvents/maxBytes of 0 select the package defaults.
func NewTransport(maxEvents, maxBytes int) *Transport {
	return &Transport{
		replay: newReplayBuffer(maxEvents, maxBytes),
		subs:   make(map[int]chan sseEvent),
		closed: make(chan struct{}),
	}
}

func (t *Transport) OnMessage(f func(jsonrpc.Message)) { t.onMessage = f }
func (t *Transport) OnClose(f func(error))              { t.onClose = f }

// OnError registers the non-fatal-error callback. DeliverBatch receives
// already-parsed jsonrpc.Message values (HTTP-body decoding errors are
// rejected by the handler before reaching the transport), so this transport
// never has anything to report; the setter exists to satisfy
// protocol.Transport.
func (t *Transport) OnError(f func(error)) { t.onError = f }

// Start blocks until the transport is closed. There is no byte-level read
// loop to run; POST requests deliver messages directly via DeliverBatch.
func (t *Transport) Start(ctx context.Context) error {
	select {
	case <-ctx.Done():
		t.fireClose(ctx.Err())
		return ctx.Err()
	case <-t.closed:
		t.fireClose(nil)
		return nil
	}
}

func (t *Transport) fireClose(err error) {
	if t.onClose != nil {
		t.onClose(err)
	}
}

// Close shuts the transport down: the Start call unblocks and every live
// SSE subscriber is disconnected.
func (t *Transport) Close() error {
	t.closeOnce.Do(func() {
		close(t.closed)
		t.subsMu.Lock()
		for _, ch := range t.subs {
			close(ch)
		}
		t.subs = make(map[int]chan sseEvent)
		t.subsMu.Unlock()
	})
	return nil
}

// Send implements protocol.Transport. When called from within a
// DeliverBatch for this message's matching request id, the message is
// captured synchronously as that request's response. Otherwise (a
// server-initiated notification, or a response to a request this
// connection no longer has a POST waiting on) it is buffered and broadcast
// to any live SSE subscribers.
func (t *Transport) Send(ctx context.Context, msg jsonrpc.Message) error {
	ev, err := t.replay.append(msg)
	if err != nil {
		return err
	}

	t.mu.Lock()
	scope := t.scope
	t.mu.Unlock()

	if scope != nil {
		if msg.Kind() == jsonrpc.KindResponse {
			resp := msg.Response()
			if ch, ok := scope.waiters[resp.ID.String()]; ok {
				ch <- *resp
				return nil
			}
		}
		scope.events = append(scope.events, ev)
		return nil
	}

	t.broadcast(ev)
	return nil
}

// DeliverBatch feeds msgs into the engine synchronously and serially
// (matching the spec's "per-session operations are serialized"
// requirement), returning the responses to every request in msgs, in
// order, plus any notifications the engine emitted as a side effect of
// processing them (e.g. progress updates), suitable for replaying over SSE
// ahead of the final JSON response.
func (t *Transport) DeliverBatch(msgs []jsonrpc.Message) ([]jsonrpc.Response, []sseEvent) {
	scope := &deliveryScope{waiters: make(map[string]chan jsonrpc.Response)}
	for _, msg := range msgs {
		if msg.Kind() == jsonrpc.KindRequest {
			scope.waiters[msg.Request().ID.String()] = make(chan jsonrpc.Response, 1)
		}
	}

	t.mu.Lock()
	t.scope = scope
	t.mu.Unlock()

	for _, msg := range msgs {
		if t.onMessage != nil {
			t.onMessage(msg)
		}
	}

	responses := make([]jsonrpc.Response, 0, len(scope.waiters))
	for _, msg := range msgs {
		if msg.Kind() != jsonrpc.KindRequest {
			continue
		}
		resp := <-scope.waiters[msg.Request().ID.String()]
		responses = append(responses, resp)
	}

	t.mu.Lock()
	t.scope = nil
	t.mu.Unlock()

	return responses, scope.events
}

// subscribe registers a live SSE listener and returns its event channel and
// an unsubscribe func. Replay of missed events is the caller's
// responsibility (via Since) before relying on live delivery.
func (t *Transport) subscribe() (<-chan sseEvent, func()) {
	ch := make(chan sseEvent, 64)
	t.subsMu.Lock()
	id := t.nextID
	t.nextID++
	t.subs[id] = ch
	t.subsMu.Unlock()

	return ch, func() {
		t.subsMu.Lock()
		if existing, ok := t.subs[id]; ok {
			delete(t.subs, id)
			close(existing)
			_ = existing
		}
		t.subsMu.Unlock()
	}
}

func (t *Transport) broadcast(ev sseEvent) {
	t.subsMu.Lock()
	defer t.subsMu.Unlock()
	for _, ch := range t.subs {
		select {
		case ch <- ev:
		default:
			// Slow subscriber: drop rather than block Send; it can resync
			// via Last-Event-ID on reconnect.
		}
	}
}

// Since replays buffered events after lastID. See replayBuffer.since.
func (t *Transport) Since(lastID uint64) (events []sseEvent, ok bool) {
	return t.replay.since(lastID)
}

var _ protocol.Transport = (*Transport)(nil)
