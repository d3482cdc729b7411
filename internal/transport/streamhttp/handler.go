package streamhttp

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/jamesprial/mcpcore/internal/jsonrpc"
)

// SessionIDHeader is the header a server uses to assign a session on its
// first response and a client echoes on every subsequent request.
const SessionIDHeader = "Mcp-Session-Id"

// LastEventIDHeader is the header a reconnecting SSE client sends to
// request replay of events after the given stream id.
const LastEventIDHeader = "Last-Event-ID"

// Handler is the MCP Streamable HTTP endpoint: POST for request/response
// traffic (optionally upgrading to an SSE reply when the handler emitted
// notifications mid-call), GET for the long-lived SSE stream, and DELETE to
// terminate a session explicitly.
type Handler struct {
	sessions *SessionStore
	logger   *slog.Logger
}

// NewHandler builds the Streamable HTTP endpoint over sessions. Wrap the
// result with dnsRebindingCheck/bodySizeLimit (see Wrap) before mounting it.
func NewHandler(sessions *SessionStore, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{sessions: sessions, logger: logger}
}

// Wrap applies the transport's security posture (Host/Origin allowlists,
// request size cap) around h.
func Wrap(h http.Handler, cfg SecurityConfig) http.Handler {
	return dnsRebindingCheck(cfg, bodySizeLimit(cfg, h))
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		h.handlePost(w, r)
	case http.MethodGet:
		h.handleGet(w, r)
	case http.MethodDelete:
		h.handleDelete(w, r)
	default:
		w.Header().Set("Allow", "GET, POST, DELETE")
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func writeJSONError(w http.ResponseWriter, status int, rpcErr *jsonrpc.Error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(jsonrpc.NewResponseMessage(&jsonrpc.Response{
		JSONRPC: jsonrpc.Version,
		Error:   rpcErr,
	}).Response())
}

func (h *Handler) resolveSession(r *http.Request) (*Session, bool, error) {
	id := r.Header.Get(SessionIDHeader)
	if id == "" {
		return nil, true, nil
	}
	sess, ok := h.sessions.Get(id)
	if !ok {
		return nil, false, fmt.Errorf("unknown session %q", id)
	}
	return sess, false, nil
}

func (h *Handler) handlePost(w http.ResponseWriter, r *http.Request) {
	sess, isNew, err := h.resolveSession(r)
	if err != nil {
		writeSessionNotFound(w)
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, jsonrpc.NewError(jsonrpc.CodeParseError, "failed to read request body", err.Error()))
		return
	}

	msgs, perr := jsonrpc.ParseBatch(body)
	if perr != nil {
		rpcErr, _ := perr.(*jsonrpc.Error)
		if rpcErr == nil {
			rpcErr = jsonrpc.NewError(jsonrpc.CodeParseError, perr.Error(), nil)
		}
		writeJSONError(w, http.StatusBadRequest, rpcErr)
		return
	}

	if isNew {
		sess = h.sessions.Create(r.Header.Get("Origin"))
	}
	sess.touch()

	sess.postMu.Lock()
	responses, sideEvents := sess.Transport.DeliverBatch(msgs)
	sess.postMu.Unlock()

	w.Header().Set(SessionIDHeader, sess.ID)

	hasRequests := len(responses) > 0
	if !hasRequests {
		w.WriteHeader(http.StatusAccepted)
		return
	}

	if wantsSSE(r) && len(sideEvents) > 0 {
		h.streamUpgrade(w, sideEvents, responses)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if len(responses) == 1 && !isBatchRequest(body) {
		_ = json.NewEncoder(w).Encode(responses[0])
		return
	}
	_ = json.NewEncoder(w).Encode(responses)
}

func isBatchRequest(body []byte) bool {
	for _, b := range body {
		switch b {
		case ' ', '\t', '\n', '\r':
			continue
		case '[':
			return true
		default:
			return false
		}
	}
	return false
}

func wantsSSE(r *http.Request) bool {
	accept := r.Header.Get("Accept")
	return accept == "text/event-stream" || containsToken(accept, "text/event-stream")
}

func containsToken(header, token string) bool {
	for i := 0; i+len(token) <= len(header); i++ {
		if header[i:i+len(token)] == token {
			return true
		}
	}
	return false
}

// streamUpgrade replies to a POST with an SSE body carrying every
// notification emitted during dispatch, followed by the final response(s),
// matching the spec's "upgrades to SSE when the server wishes to stream
// multiple events before the final reply".
func (h *Handler) streamUpgrade(w http.ResponseWriter, sideEvents []sseEvent, responses []jsonrpc.Response) {
	flusher, ok := w.(http.Flusher)
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	for _, ev := range sideEvents {
		writeSSEEvent(w, ev)
	}
	for _, resp := range responses {
		raw, err := json.Marshal(resp)
		if err != nil {
			continue
		}
		writeSSEEvent(w, sseEvent{data: raw})
	}
	if ok {
		flusher.Flush()
	}
}

func writeSSEEvent(w http.ResponseWriter, ev sseEvent) {
	if ev.id != 0 {
		fmt.Fprintf(w, "id: %d\n", ev.id)
	}
	fmt.Fprintf(w, "event: message\ndata: %s\n\n", ev.data)
}

func writeSessionNotFound(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusNotFound)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": "session_not_found"})
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	id := r.Header.Get(SessionIDHeader)
	if id == "" {
		writeSessionNotFound(w)
		return
	}
	sess, ok := h.sessions.Get(id)
	if !ok {
		writeSessionNotFound(w)
		return
	}
	sess.touch()

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, `{"error":"streaming_unsupported"}`, http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set(SessionIDHeader, sess.ID)
	w.WriteHeader(http.StatusOK)

	if raw := r.Header.Get(LastEventIDHeader); raw != "" {
		lastID, err := strconv.ParseUint(raw, 10, 64)
		if err == nil {
			missed, stillValid := sess.Transport.Since(lastID)
			if !stillValid {
				fmt.Fprintf(w, "event: events-gone\ndata: {}\n\n")
				flusher.Flush()
				return
			}
			for _, ev := range missed {
				writeSSEEvent(w, ev)
			}
			flusher.Flush()
		}
	}

	live, unsubscribe := sess.Transport.subscribe()
	defer unsubscribe()

	for {
		select {
		case ev, ok := <-live:
			if !ok {
				return
			}
			writeSSEEvent(w, ev)
			flusher.Flush()
		case <-r.Context().Done():
			return
		}
	}
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	id := r.Header.Get(SessionIDHeader)
	if id == "" {
		writeSessionNotFound(w)
		return
	}
	if _, ok := h.sessions.Get(id); !ok {
		writeSessionNotFound(w)
		return
	}
	h.sessions.Delete(id)
	w.WriteHeader(http.StatusNoContent)
}
