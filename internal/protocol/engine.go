package protocol

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jamesprial/mcpcore/internal/handshake"
	"github.com/jamesprial/mcpcore/internal/jsonrpc"
)

// HandlerFunc processes one inbound request or notification's params and
// returns its result (nil for notifications). Handlers return a *jsonrpc.Error
// rather than a plain error so the dispatcher can preserve MCP-specific
// error codes without re-classifying a generic error.
type HandlerFunc func(ctx context.Context, params json.RawMessage) (result any, rpcErr *jsonrpc.Error)

// Options configures an Engine.
type Options struct {
	Negotiator *handshake.Negotiator
	Logger     *slog.Logger
	// RequestTimeout bounds how long SendRequest waits for a response before
	// failing with ErrRequestTimedOut. Zero means no timeout. A progress
	// notification for the request's token resets this deadline when the
	// request was sent with ResetTimeoutOnProgress; MaxTotalTimeout, if set,
	// is an absolute ceiling progress can never extend past.
	RequestTimeout time.Duration
	// ListChangedDebounce is the coalescing window for list-changed
	// notifications triggered via NotifyListChanged. Zero uses a 100ms default.
	ListChangedDebounce time.Duration
	// MaxConcurrentHandlers bounds how many inbound requests this Engine
	// runs at once. Each is dispatched on its own goroutine so a
	// long-running handler never head-of-line-blocks the transport's read
	// loop (and, with it, a notifications/cancelled meant to abort that very
	// handler). Zero uses a default of 64.
	MaxConcurrentHandlers int
}

// Engine is the bidirectional JSON-RPC dispatcher for one session: it wires
// a Transport to a handler table, correlates outbound requests with their
// responses, and gates dispatch through a handshake.Negotiator.
type Engine struct {
	transport Transport
	neg       *handshake.Negotiator
	logger    *slog.Logger
	timeout   time.Duration

	pending  *pendingTable
	debounce *listChangedDebounce

	handlersMu sync.RWMutex
	handlers   map[string]HandlerFunc

	cancelMu    sync.Mutex
	cancelFuncs map[string]context.CancelFunc

	// handlerSem bounds the number of inbound requests running
	// concurrently; handlerWG counts the handlers still running. Close does
	// not wait on it.
	handlerSem chan struct{}
	handlerWG  sync.WaitGroup

	nextID    atomic.Int64
	closeOnce sync.Once
	done      chan struct{}
}

const defaultMaxConcurrentHandlers = 64

// New wires an Engine on top of transport. Call Register for each method the
// session should handle beyond the built-in initialize/initialized/ping,
// then Start to begin the read loop.
func New(transport Transport, opts Options) *Engine {
	if opts.Negotiator == nil {
		panic("protocol: Options.Negotiator is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	maxConcurrent := opts.MaxConcurrentHandlers
	if maxConcurrent <= 0 {
		maxConcurrent = defaultMaxConcurrentHandlers
	}

	e := &Engine{
		transport:   transport,
		neg:         opts.Negotiator,
		logger:      logger,
		timeout:     opts.RequestTimeout,
		pending:     newPendingTable(),
		debounce:    newListChangedDebounce(opts.ListChangedDebounce),
		handlers:    make(map[string]HandlerFunc),
		cancelFuncs: make(map[string]context.CancelFunc),
		handlerSem:  make(chan struct{}, maxConcurrent),
		done:        make(chan struct{}),
	}

	e.registerBuiltins()
	transport.OnMessage(e.handleIncoming)
	transport.OnClose(e.handleTransportClosed)
	return e
}

// Register installs (or replaces) the handler for method. Safe to call
// concurrently with dispatch.
func (e *Engine) Register(method string, handler HandlerFunc) {
	e.handlersMu.Lock()
	defer e.handlersMu.Unlock()
	e.handlers[method] = handler
}

// Start begins the transport's read loop; it blocks until the transport
// stops.
func (e *Engine) Start(ctx context.Context) error {
	return e.transport.Start(ctx)
}

// Close shuts the engine down: any requests still awaiting a response fail
// with ErrEngineClosed, every still-running inbound handler has its context
// cancelled, and the underlying transport is closed. Close does not wait for
// those handlers to return: a handler is expected to check ctx.Done(), but
// shutdown must not hang on one that doesn't.
func (e *Engine) Close() error {
	var err error
	e.closeOnce.Do(func() {
		e.neg.BeginClose()
		e.pending.closeAll()
		e.cancelAll()
		err = e.transport.Close()
		e.neg.Closed()
		close(e.done)
	})
	return err
}

func (e *Engine) cancelAll() {
	e.cancelMu.Lock()
	defer e.cancelMu.Unlock()
	for _, cancel := range e.cancelFuncs {
		cancel()
	}
}

// Done returns a channel closed once the engine has shut down.
func (e *Engine) Done() <-chan struct{} { return e.done }

// ServerState reports this engine's session lifecycle state, as tracked by
// its handshake.Negotiator.
func (e *Engine) ServerState() handshake.State { return e.neg.State() }

// NotifyListChanged schedules a notifications/{kind}/list_changed
// notification, coalesced with other calls inside the debounce window.
func (e *Engine) NotifyListChanged(ctx context.Context, method string) {
	e.debounce.Trigger(func() {
		if err := e.SendNotification(ctx, method, nil); err != nil {
			e.logger.Warn("failed to send list_changed notification", "method", method, "error", err)
		}
	})
}

func (e *Engine) handleTransportClosed(err error) {
	if err != nil {
		e.logger.Warn("transport closed", "error", err)
	}
}

func (e *Engine) lookupHandler(method string) (HandlerFunc, bool) {
	e.handlersMu.RLock()
	defer e.handlersMu.RUnlock()
	h, ok := e.handlers[method]
	return h, ok
}
