// Package mcpserver wires the registry, schema validator, and handshake
// negotiator into a complete MCP server: it builds one protocol.Engine per
// session, registers the tools/resources/prompts method handlers every
// session needs, and fans out list-changed and resources/updated
// notifications to the sessions that should hear them.
package mcpserver

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/jamesprial/mcpcore/internal/handshake"
	"github.com/jamesprial/mcpcore/internal/protocol"
	"github.com/jamesprial/mcpcore/internal/registry"
	"github.com/jamesprial/mcpcore/internal/schema"
)

// ProtocolVersion is the MCP protocol version this server negotiates.
const ProtocolVersion = "2025-06-18"

// Config carries the static identity a server advertises during
// initialize, generalizing the teacher's Config{ServerName, ServerVersion}.
type Config struct {
	ServerName    string
	ServerVersion string
	Instructions  string
	// SupportedVersions is ordered newest-first. Defaults to []string{ProtocolVersion}.
	SupportedVersions []string
	// RequestTimeout bounds outbound requests each session's engine sends
	// (e.g. sampling/elicitation callbacks). Zero means no timeout.
	RequestTimeout time.Duration
	// ListChangedDebounce is the coalescing window for list-changed
	// notifications. Zero uses the protocol package's default.
	ListChangedDebounce time.Duration
	Logger              *slog.Logger
}

// Server owns the catalogs shared by every session and the hub that routes
// registry-driven notifications to the sessions subscribed to hear them.
type Server struct {
	cfg Config

	Tools     *registry.ToolRegistry
	Resources *registry.ResourceRegistry
	Prompts   *registry.PromptRegistry
	Validator *schema.Validator

	hub *sessionHub
}

// New constructs a Server with empty catalogs. Register tools, resources,
// templates, and prompts on the returned Server's catalogs before serving
// any session.
func New(cfg Config) *Server {
	if len(cfg.SupportedVersions) == 0 {
		cfg.SupportedVersions = []string{ProtocolVersion}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	s := &Server{cfg: cfg, Validator: schema.New(), hub: newSessionHub()}
	s.Tools = registry.NewToolRegistry(func() {
		s.hub.notifyAll("notifications/tools/list_changed")
	})
	s.Resources = registry.NewResourceRegistry(
		func() { s.hub.notifyAll("notifications/resources/list_changed") },
		func(uri string) { s.hub.notifyResourceUpdated(s.Resources, uri) },
	)
	s.Prompts = registry.NewPromptRegistry(func() {
		s.hub.notifyAll("notifications/prompts/list_changed")
	})
	return s
}

// NewSession builds a protocol.Engine bound to transport for one session,
// registers every MCP method handler on it, and tracks it under sessionID
// so registry notifications and resource updates can reach it. Callers must
// call Server.CloseSession when the session ends.
func (s *Server) NewSession(sessionID string, transport protocol.Transport) *protocol.Engine {
	neg := handshake.New(handshake.ServerOptions{
		Info: handshake.ImplementationInfo{
			Name:    s.cfg.ServerName,
			Version: s.cfg.ServerVersion,
		},
		Capabilities:      s.capabilities(),
		Instructions:      s.cfg.Instructions,
		SupportedVersions: s.cfg.SupportedVersions,
	})

	engine := protocol.New(transport, protocol.Options{
		Negotiator:          neg,
		Logger:              s.cfg.Logger,
		RequestTimeout:      s.cfg.RequestTimeout,
		ListChangedDebounce: s.cfg.ListChangedDebounce,
	})

	s.registerHandlers(engine, sessionID)
	s.hub.add(sessionID, engine)
	return engine
}

// CloseSession drops sessionID's resource subscriptions and notification
// routing. It does not close the engine itself; callers that own the
// transport lifecycle should call engine.Close() separately.
func (s *Server) CloseSession(sessionID string) {
	s.hub.remove(sessionID)
	s.Resources.UnsubscribeAll(sessionID)
}

func (s *Server) capabilities() handshake.ServerCapabilities {
	return handshake.ServerCapabilities{
		Tools:     &handshake.ToolsCapability{ListChanged: true},
		Resources: &handshake.ResourcesCapability{Subscribe: true, ListChanged: true},
		Prompts:   &handshake.PromptsCapability{ListChanged: true},
	}
}

// sessionHub maps live session ids to their engine, so a mutation on a
// shared registry (tool registered, resource updated) can be delivered to
// every session, or to exactly the sessions subscribed to one resource.
type sessionHub struct {
	mu      sync.RWMutex
	engines map[string]*protocol.Engine
}

func newSessionHub() *sessionHub {
	return &sessionHub{engines: make(map[string]*protocol.Engine)}
}

func (h *sessionHub) add(sessionID string, e *protocol.Engine) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.engines[sessionID] = e
}

func (h *sessionHub) remove(sessionID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.engines, sessionID)
}

func (h *sessionHub) notifyAll(method string) {
	h.mu.RLock()
	engines := make([]*protocol.Engine, 0, len(h.engines))
	for _, e := range h.engines {
		engines = append(engines, e)
	}
	h.mu.RUnlock()

	for _, e := range engines {
		e.NotifyListChanged(context.Background(), method)
	}
}

type resourceUpdatedParams struct {
	URI string `json:"uri"`
}

func (h *sessionHub) notifyResourceUpdated(resources *registry.ResourceRegistry, uri string) {
	subscribers := resources.Subscribers(uri)
	if len(subscribers) == 0 {
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, sessionID := range subscribers {
		engine, ok := h.engines[sessionID]
		if !ok {
			continue
		}
		if err := engine.SendNotification(context.Background(), "notifications/resources/updated", resourceUpdatedParams{URI: uri}); err != nil {
			slog.Default().Warn("failed to deliver resources/updated", "uri", uri, "session", sessionID, "error", err)
		}
	}
}
