// Package inmemory provides a Transport pair joined by Go channels, used to
// compose a same-process client and server without any byte-level framing.
package inmemory

import (
	"context"
	"sync"

	"github.com/jamesprial/mcpcore/internal/jsonrpc"
	"github.com/jamesprial/mcpcore/internal/protocol"
)

// Pipe is one end of an in-memory, channel-backed transport pair.
type Pipe struct {
	out chan jsonrpc.Message
	in  chan jsonrpc.Message

	onMessage func(jsonrpc.Message)
	onClose   func(error)
	onError   func(error)

	closeOnce sync.Once
	closed    chan struct{}
}

// New returns two Pipe values, each the Transport for one side of a
// same-process client/server pair: messages sent on one arrive on the
// other's OnMessage callback.
func New(bufSize int) (client, server protocol.Transport) {
	ab := make(chan jsonrpc.Message, bufSize)
	ba := make(chan jsonrpc.Message, bufSize)

	c := &Pipe{out: ab, in: ba, closed: make(chan struct{})}
	s := &Pipe{out: ba, in: ab, closed: make(chan struct{})}
	return c, s
}

// OnMessage registers the inbound message callback.
func (p *Pipe) OnMessage(f func(jsonrpc.Message)) { p.onMessage = f }

// OnClose registers the shutdown callback.
func (p *Pipe) OnClose(f func(error)) { p.onClose = f }

// OnError registers the non-fatal-error callback. Pipe carries already-parsed
// jsonrpc.Message values with no framing step of its own, so it never has
// anything to report here; the setter exists only to satisfy
// protocol.Transport.
func (p *Pipe) OnError(f func(error)) { p.onError = f }

// Start reads from the peer's outbound channel until Close or ctx is done.
func (p *Pipe) Start(ctx context.Context) error {
	for {
		select {
		case msg, ok := <-p.in:
			if !ok {
				if p.onClose != nil {
					p.onClose(nil)
				}
				return nil
			}
			if p.onMessage != nil {
				p.onMessage(msg)
			}
		case <-ctx.Done():
			if p.onClose != nil {
				p.onClose(ctx.Err())
			}
			return ctx.Err()
		case <-p.closed:
			if p.onClose != nil {
				p.onClose(nil)
			}
			return nil
		}
	}
}

// Send delivers msg to the peer.
func (p *Pipe) Send(ctx context.Context, msg jsonrpc.Message) error {
	select {
	case p.out <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-p.closed:
		return protocol.ErrEngineClosed
	}
}

// Close shuts this end of the pipe down; it does not close the peer.
func (p *Pipe) Close() error {
	p.closeOnce.Do(func() { close(p.closed) })
	return nil
}
