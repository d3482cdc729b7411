package protocol

import (
	"context"
	"encoding/json"

	"github.com/jamesprial/mcpcore/internal/handshake"
	"github.com/jamesprial/mcpcore/internal/jsonrpc"
)

// handleIncoming is the Transport's OnMessage callback: it classifies msg by
// kind and routes accordingly. Requests and notifications are dispatched to
// the handler table; responses are delivered to the correlation table.
func (e *Engine) handleIncoming(msg jsonrpc.Message) {
	switch msg.Kind() {
	case jsonrpc.KindRequest:
		e.dispatchRequestAsync(msg.Request())
	case jsonrpc.KindNotification:
		e.dispatchNotification(msg.Notification())
	case jsonrpc.KindResponse:
		e.dispatchResponse(msg.Response())
	}
}

// dispatchRequestAsync runs req's handler on its own goroutine, bounded by
// handlerSem, so a long-running handler never head-of-line-blocks the
// transport's read loop. That loop is what delivers notifications/cancelled,
// so keeping it free is what makes cancelling an in-flight handler possible
// at all. The semaphore acquire happens synchronously on the read-loop
// goroutine: once MaxConcurrentHandlers requests are in flight, a new
// request waits for a slot before its handler starts, rather than spawning
// unbounded goroutines.
func (e *Engine) dispatchRequestAsync(req *jsonrpc.Request) {
	e.handlerWG.Add(1)
	e.handlerSem <- struct{}{}
	go func() {
		defer e.handlerWG.Done()
		defer func() { <-e.handlerSem }()
		e.dispatchRequest(req)
	}()
}

func (e *Engine) dispatchRequest(req *jsonrpc.Request) {
	ctx, cancel := context.WithCancel(context.Background())
	e.trackCancel(req.ID, cancel)
	defer e.untrackCancel(req.ID)
	defer cancel()

	if !e.neg.Allows(req.Method) {
		e.sendErrorResponse(ctx, req.ID, jsonrpc.CodeCapabilityNotSupported, "method not allowed before session is operational")
		return
	}

	handler, ok := e.lookupHandler(req.Method)
	if !ok {
		e.sendErrorResponse(ctx, req.ID, jsonrpc.CodeMethodNotFound, "method not found: "+req.Method)
		return
	}

	result, rpcErr := handler(ctx, req.Params)
	if rpcErr != nil {
		e.sendResponse(ctx, req.ID, nil, rpcErr)
		return
	}
	e.sendResponse(ctx, req.ID, result, nil)
}

func (e *Engine) dispatchNotification(note *jsonrpc.Notification) {
	switch note.Method {
	case "notifications/initialized":
		if err := e.neg.HandleInitialized(); err != nil {
			e.logger.Warn("initialized notification rejected", "error", err)
		}
		return
	case "notifications/cancelled":
		e.handleCancelled(note.Params)
		return
	case "notifications/progress":
		e.handleProgress(note.Params)
		return
	}

	handler, ok := e.lookupHandler(note.Method)
	if !ok {
		e.logger.Debug("no handler for notification", "method", note.Method)
		return
	}
	if _, rpcErr := handler(context.Background(), note.Params); rpcErr != nil {
		e.logger.Warn("notification handler returned an error", "method", note.Method, "error", rpcErr)
	}
}

func (e *Engine) dispatchResponse(resp *jsonrpc.Response) {
	if !e.pending.deliver(*resp) {
		e.logger.Warn("response matched no pending request", "id", resp.ID.String())
	}
}

type cancelledParams struct {
	RequestID jsonrpc.ID `json:"requestId"`
	Reason    string     `json:"reason,omitempty"`
}

func (e *Engine) handleCancelled(params json.RawMessage) {
	var p cancelledParams
	if err := json.Unmarshal(params, &p); err != nil {
		e.logger.Warn("invalid notifications/cancelled params", "error", err)
		return
	}
	e.cancelMu.Lock()
	cancel, ok := e.cancelFuncs[p.RequestID.String()]
	e.cancelMu.Unlock()
	if ok {
		cancel()
	}
}

type progressParams struct {
	ProgressToken any     `json:"progressToken"`
	Progress      float64 `json:"progress"`
	Total         float64 `json:"total,omitempty"`
	Message       string  `json:"message,omitempty"`
}

func (e *Engine) handleProgress(params json.RawMessage) {
	var p progressParams
	if err := json.Unmarshal(params, &p); err != nil {
		e.logger.Warn("invalid notifications/progress params", "error", err)
		return
	}
	e.pending.broadcastProgress(p.ProgressToken, p.Progress, p.Total, p.Message)
}

func (e *Engine) trackCancel(id jsonrpc.ID, cancel context.CancelFunc) {
	if id.IsZero() {
		return
	}
	e.cancelMu.Lock()
	e.cancelFuncs[id.String()] = cancel
	e.cancelMu.Unlock()
}

func (e *Engine) untrackCancel(id jsonrpc.ID) {
	if id.IsZero() {
		return
	}
	e.cancelMu.Lock()
	delete(e.cancelFuncs, id.String())
	e.cancelMu.Unlock()
}

func (e *Engine) sendResponse(ctx context.Context, id jsonrpc.ID, result any, rpcErr *jsonrpc.Error) {
	raw, err := encodeResult(result)
	if err != nil {
		rpcErr = jsonrpc.NewError(jsonrpc.CodeInternalError, "failed to encode result", err.Error())
		raw = nil
	}
	resp := jsonrpc.NewResponseMessage(&jsonrpc.Response{
		JSONRPC: jsonrpc.Version,
		ID:      id,
		Result:  raw,
		Error:   rpcErr,
	})
	if err := e.transport.Send(ctx, resp); err != nil {
		e.logger.Warn("failed to send response", "error", err)
	}
}

func (e *Engine) sendErrorResponse(ctx context.Context, id jsonrpc.ID, code int, message string) {
	e.sendResponse(ctx, id, nil, jsonrpc.NewError(code, message, nil))
}

func encodeResult(result any) (json.RawMessage, error) {
	if result == nil {
		return nil, nil
	}
	if raw, ok := result.(json.RawMessage); ok {
		return raw, nil
	}
	return json.Marshal(result)
}

// registerBuiltins installs the handlers every MCP session needs regardless
// of which registries the host wires in: initialize and ping. initialized
// is handled directly in dispatchNotification since it has no result.
func (e *Engine) registerBuiltins() {
	e.Register("initialize", func(ctx context.Context, params json.RawMessage) (any, *jsonrpc.Error) {
		var p handshake.InitializeParams
		if len(params) > 0 {
			if err := json.Unmarshal(params, &p); err != nil {
				return nil, jsonrpc.NewError(jsonrpc.CodeInvalidParams, "invalid initialize params", err.Error())
			}
		}
		result, err := e.neg.HandleInitialize(p)
		if err != nil {
			return nil, jsonrpc.NewError(jsonrpc.CodeInvalidRequest, err.Error(), nil)
		}
		return result, nil
	})

	e.Register("ping", func(ctx context.Context, params json.RawMessage) (any, *jsonrpc.Error) {
		return struct{}{}, nil
	})
}
