package streamhttp

import (
	"sync"

	"github.com/jamesprial/mcpcore/internal/jsonrpc"
)

// DefaultReplayMaxEvents and DefaultReplayMaxBytes bound a session's SSE
// replay buffer when the server doesn't configure its own. The spec leaves
// the exact limit to implementers; 1024 events or 1 MiB, whichever is hit
// first, is the size note §9 suggests.
const (
	DefaultReplayMaxEvents = 1024
	DefaultReplayMaxBytes  = 1 << 20
)

// sseEvent is one buffered, already-serialized outbound message, tagged
// with its monotonic stream id.
type sseEvent struct {
	id   uint64
	data []byte
}

// replayBuffer is a bounded, FIFO-eviction ring of recently sent events for
// one session's SSE stream, used to answer a reconnecting client's
// Last-Event-ID by replaying exactly the events it missed.
type replayBuffer struct {
	mu        sync.Mutex
	events    []sseEvent
	nextID    uint64
	maxEvents int
	maxBytes  int
	curBytes  int
}

func newReplayBuffer(maxEvents, maxBytes int) *replayBuffer {
	if maxEvents <= 0 {
		maxEvents = DefaultReplayMaxEvents
	}
	if maxBytes <= 0 {
		maxBytes = DefaultReplayMaxBytes
	}
	return &replayBuffer{maxEvents: maxEvents, maxBytes: maxBytes}
}

// append serializes msg, assigns it the next stream id, and stores it,
// evicting the oldest buffered events if the bound is exceeded.
func (b *replayBuffer) append(msg jsonrpc.Message) (sseEvent, error) {
	raw, err := jsonrpc.Serialize(msg)
	if err != nil {
		return sseEvent{}, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	ev := sseEvent{id: b.nextID, data: raw}
	b.events = append(b.events, ev)
	b.curBytes += len(raw)
	for len(b.events) > 0 && (len(b.events) > b.maxEvents || b.curBytes > b.maxBytes) {
		b.curBytes -= len(b.events[0].data)
		b.events = b.events[1:]
	}
	return ev, nil
}

// since returns every buffered event with id > lastID, in order. ok is
// false when lastID predates the oldest buffered event (i.e. some events
// the caller needs were already evicted) and the caller should emit a
// terminal "events-gone" notice instead of a partial replay.
func (b *replayBuffer) since(lastID uint64) (events []sseEvent, ok bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if lastID >= b.nextID {
		return nil, true
	}
	if len(b.events) == 0 {
		return nil, lastID == 0
	}
	oldest := b.events[0].id
	if lastID+1 < oldest {
		return nil, false
	}

	out := make([]sseEvent, 0, len(b.events))
	for _, ev := range b.events {
		if ev.id > lastID {
			out = append(out, ev)
		}
	}
	return out, true
}
