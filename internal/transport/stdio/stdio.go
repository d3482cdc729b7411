// Package stdio implements the newline-delimited stdio Transport: a server
// mode reading stdin/writing stdout (diagnostics go to stderr), and a client
// mode that spawns a child process with an explicit environment allowlist.
package stdio

import (
	"bufio"
	"context"
	"io"
	"log/slog"
	"sync"

	"github.com/jamesprial/mcpcore/internal/jsonrpc"
	"github.com/jamesprial/mcpcore/internal/protocol"
)

// Transport frames JSON-RPC messages as one JSON document per line over a
// pair of io.Reader/io.Writer, matching the MCP stdio framing contract.
type Transport struct {
	reader *bufio.Reader
	writer io.Writer
	logger *slog.Logger

	writeMu sync.Mutex

	onMessage func(jsonrpc.Message)
	onClose   func(error)
	onError   func(error)

	closeOnce sync.Once
	closed    chan struct{}
}

// New wraps r/w as a stdio Transport. r is typically os.Stdin (server) or a
// spawned child's stdout (client); w is the matching stdout/stdin.
func New(r io.Reader, w io.Writer, logger *slog.Logger) *Transport {
	if logger == nil {
		logger = slog.Default()
	}
	return &Transport{
		reader: bufio.NewReaderSize(r, 64*1024),
		writer: w,
		logger: logger,
		closed: make(chan struct{}),
	}
}

func (t *Transport) OnMessage(f func(jsonrpc.Message)) { t.onMessage = f }
func (t *Transport) OnClose(f func(error))              { t.onClose = f }
func (t *Transport) OnError(f func(error))              { t.onError = f }

// Start reads newline-delimited JSON messages until ctx is done, Close is
// called, or the underlying reader returns io.EOF.
func (t *Transport) Start(ctx context.Context) error {
	lines := make(chan []byte)
	errs := make(chan error, 1)

	go func() {
		for {
			line, err := t.reader.ReadBytes('\n')
			if len(line) > 0 {
				select {
				case lines <- line:
				case <-t.closed:
					return
				}
			}
			if err != nil {
				errs <- err
				return
			}
		}
	}()

	for {
		select {
		case line := <-lines:
			msg, err := jsonrpc.Parse(trimNewline(line))
			if err != nil {
				t.logger.Warn("stdio: failed to parse message", "error", err)
				if t.onError != nil {
					t.onError(err)
				}
				continue
			}
			if t.onMessage != nil {
				t.onMessage(msg)
			}
		case err := <-errs:
			if err == io.EOF {
				err = nil
			}
			if t.onClose != nil {
				t.onClose(err)
			}
			return err
		case <-ctx.Done():
			if t.onClose != nil {
				t.onClose(ctx.Err())
			}
			return ctx.Err()
		case <-t.closed:
			if t.onClose != nil {
				t.onClose(nil)
			}
			return nil
		}
	}
}

// Send writes msg as a single JSON line.
func (t *Transport) Send(ctx context.Context, msg jsonrpc.Message) error {
	raw, err := jsonrpc.Serialize(msg)
	if err != nil {
		return err
	}
	raw = append(raw, '\n')

	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	_, err = t.writer.Write(raw)
	return err
}

// Close stops the read loop. It does not close the underlying reader/writer;
// the caller owns their lifecycle (e.g. os.Stdin should never be closed).
func (t *Transport) Close() error {
	t.closeOnce.Do(func() { close(t.closed) })
	return nil
}

func trimNewline(b []byte) []byte {
	n := len(b)
	for n > 0 && (b[n-1] == '\n' || b[n-1] == '\r') {
		n--
	}
	return b[:n]
}

var _ protocol.Transport = (*Transport)(nil)
