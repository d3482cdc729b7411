package protocol

import (
	"sync"

	"github.com/jamesprial/mcpcore/internal/jsonrpc"
)

// pendingRequest tracks one outbound request awaiting its matching response.
// Shaped after a correlation-table entry: a result channel, the method name
// for diagnostics, and a progress sink for requests that carry a
// progressToken. progressToken holds whatever token the caller supplied;
// resetCh is only populated for requests sent with ResetTimeoutOnProgress,
// so broadcastProgress can tell SendRequest's wait loop to push its deadline
// out.
type pendingRequest struct {
	method        string
	resultCh      chan jsonrpc.Response
	progress      func(token any, progress, total float64, message string)
	progressToken any
	resetCh       chan struct{}
}

// pendingTable is a thread-safe map[id]*pendingRequest, modeled on
// creachadair/jrpc2's Client.pending correlation table: every outbound
// request is registered before it is sent, and delivered exactly once
// either by a matching inbound Response or by cancellation/shutdown.
type pendingTable struct {
	mu      sync.Mutex
	entries map[string]*pendingRequest
	closed  bool
}

func newPendingTable() *pendingTable {
	return &pendingTable{entries: make(map[string]*pendingRequest)}
}

// register records a pending request under id. It fails if the table has
// already been shut down. progressToken, when non-nil, limits which progress
// updates broadcastProgress routes to this request; wantsReset additionally
// registers it for deadline-reset signaling.
func (t *pendingTable) register(id jsonrpc.ID, method string, progress func(token any, progress, total float64, message string), progressToken any, wantsReset bool) (*pendingRequest, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return nil, false
	}
	entry := &pendingRequest{
		method:        method,
		resultCh:      make(chan jsonrpc.Response, 1),
		progress:      progress,
		progressToken: progressToken,
	}
	if wantsReset {
		entry.resetCh = make(chan struct{}, 1)
	}
	t.entries[id.String()] = entry
	return entry, true
}

// deliver resolves the pending request matching resp.ID, if any. It reports
// whether a matching entry was found.
func (t *pendingTable) deliver(resp jsonrpc.Response) bool {
	t.mu.Lock()
	entry, ok := t.entries[resp.ID.String()]
	if ok {
		delete(t.entries, resp.ID.String())
	}
	t.mu.Unlock()

	if !ok {
		return false
	}
	entry.resultCh <- resp
	return true
}

// cancel drops the entry for id without delivering a result, used when a
// caller's context is done before a response arrives.
func (t *pendingTable) cancel(id jsonrpc.ID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.entries, id.String())
}

// progressFor looks up the progress sink for an in-flight request, used to
// route notifications/progress deliveries.
func (t *pendingTable) progressFor(id jsonrpc.ID) (func(token any, progress, total float64, message string), bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	entry, ok := t.entries[id.String()]
	if !ok || entry.progress == nil {
		return nil, false
	}
	return entry.progress, true
}

// broadcastProgress delivers a progress update to every pending request
// whose registered progressToken matches (a request that registered no
// token is treated as listening to every progress update, preserving
// pre-token broadcast behavior for callers that only passed a sink). Any
// matching entry with reset-on-progress enabled also gets a non-blocking
// signal on resetCh, which SendRequest's wait loop uses to push its deadline
// out.
func (t *pendingTable) broadcastProgress(token any, progress, total float64, message string) {
	t.mu.Lock()
	sinks := make([]func(any, float64, float64, string), 0, len(t.entries))
	var resetChs []chan struct{}
	for _, entry := range t.entries {
		if entry.progressToken != nil && !tokensEqual(entry.progressToken, token) {
			continue
		}
		if entry.progress != nil {
			sinks = append(sinks, entry.progress)
		}
		if entry.resetCh != nil {
			resetChs = append(resetChs, entry.resetCh)
		}
	}
	t.mu.Unlock()

	for _, sink := range sinks {
		sink(token, progress, total, message)
	}
	for _, ch := range resetChs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

// tokensEqual compares progress tokens, which per spec are either a string
// or a number decoded as float64 by encoding/json.
func tokensEqual(a, b any) bool {
	return a == b
}

// closeAll marks the table closed and closes the result channel of every
// still-pending request, which SendRequest reports as ErrEngineClosed.
func (t *pendingTable) closeAll() {
	t.mu.Lock()
	entries := t.entries
	t.entries = make(map[string]*pendingRequest)
	t.closed = true
	t.mu.Unlock()

	for _, entry := range entries {
		close(entry.resultCh)
	}
}
