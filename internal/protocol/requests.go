package protocol

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jamesprial/mcpcore/internal/jsonrpc"
)

// ProgressSink receives notifications/progress deliveries for a request
// that supplied a progressToken.
type ProgressSink func(token any, progress, total float64, message string)

// RequestOptions configures SendRequest's timeout behavior beyond the
// Engine-wide default. The zero value is the degenerate case: a single fixed
// RequestTimeout deadline that progress never touches.
type RequestOptions struct {
	// ProgressToken identifies this request in inbound notifications/progress
	// deliveries; it must equal the progressToken the caller put in params,
	// if any. Required for ResetTimeoutOnProgress to have any effect.
	ProgressToken any
	// ResetTimeoutOnProgress: each notifications/progress delivery matching
	// ProgressToken pushes the RequestTimeout deadline out by another
	// RequestTimeout, rather than letting it fire on its original schedule.
	// MaxTotalTimeout, if set, still bounds how far it can be pushed.
	ResetTimeoutOnProgress bool
	// MaxTotalTimeout is an absolute ceiling on how long SendRequest waits,
	// regardless of how many progress notifications reset the deadline.
	// Zero means no ceiling beyond RequestTimeout itself.
	MaxTotalTimeout time.Duration
}

// SendRequest sends method as an outbound request and blocks for the
// matching response, honoring ctx cancellation and the Engine's configured
// RequestTimeout. progress may be nil. Equivalent to
// SendRequestWithOptions(ctx, method, params, progress, RequestOptions{}).
func (e *Engine) SendRequest(ctx context.Context, method string, params any, progress ProgressSink) (json.RawMessage, error) {
	return e.SendRequestWithOptions(ctx, method, params, progress, RequestOptions{})
}

// SendRequestWithOptions is SendRequest with control over progress-driven
// timeout reset and an absolute ceiling; see RequestOptions.
func (e *Engine) SendRequestWithOptions(ctx context.Context, method string, params any, progress ProgressSink, opts RequestOptions) (json.RawMessage, error) {
	raw, err := encodeParams(params)
	if err != nil {
		return nil, err
	}

	id := jsonrpc.NewIntID(e.nextID.Add(1))
	wantsReset := opts.ResetTimeoutOnProgress && e.timeout > 0
	entry, ok := e.pending.register(id, method, progress, opts.ProgressToken, wantsReset)
	if !ok {
		return nil, ErrEngineClosed
	}

	req := jsonrpc.NewRequestMessage(&jsonrpc.Request{
		JSONRPC: jsonrpc.Version,
		ID:      id,
		Method:  method,
		Params:  raw,
	})
	if err := e.transport.Send(ctx, req); err != nil {
		e.pending.cancel(id)
		return nil, err
	}

	var totalDeadline <-chan time.Time
	if opts.MaxTotalTimeout > 0 {
		totalTimer := time.NewTimer(opts.MaxTotalTimeout)
		defer totalTimer.Stop()
		totalDeadline = totalTimer.C
	}

	for {
		waitCtx := ctx
		var cancelTimeout context.CancelFunc
		if e.timeout > 0 {
			waitCtx, cancelTimeout = context.WithTimeout(ctx, e.timeout)
		}

		select {
		case resp, ok := <-entry.resultCh:
			if cancelTimeout != nil {
				cancelTimeout()
			}
			if !ok {
				return nil, ErrEngineClosed
			}
			if resp.IsError() {
				return nil, resp.Error
			}
			return resp.Result, nil
		case <-totalDeadline:
			if cancelTimeout != nil {
				cancelTimeout()
			}
			e.pending.cancel(id)
			e.sendCancelledNotification(ctx, id)
			return nil, ErrRequestTimedOut
		case <-entry.resetCh:
			if cancelTimeout != nil {
				cancelTimeout()
			}
			continue
		case <-waitCtx.Done():
			if cancelTimeout != nil {
				cancelTimeout()
			}
			e.pending.cancel(id)
			e.sendCancelledNotification(ctx, id)
			if ctx.Err() != nil {
				return nil, ErrRequestCancelled
			}
			return nil, ErrRequestTimedOut
		}
	}
}

// SendNotification sends method as an outbound notification; there is no
// response to wait for.
func (e *Engine) SendNotification(ctx context.Context, method string, params any) error {
	raw, err := encodeParams(params)
	if err != nil {
		return err
	}
	note := jsonrpc.NewNotificationMessage(&jsonrpc.Notification{
		JSONRPC: jsonrpc.Version,
		Method:  method,
		Params:  raw,
	})
	return e.transport.Send(ctx, note)
}

func (e *Engine) sendCancelledNotification(ctx context.Context, id jsonrpc.ID) {
	_ = e.SendNotification(ctx, "notifications/cancelled", cancelledParams{RequestID: id})
}

func encodeParams(params any) (json.RawMessage, error) {
	if params == nil {
		return nil, nil
	}
	if raw, ok := params.(json.RawMessage); ok {
		return raw, nil
	}
	return json.Marshal(params)
}
