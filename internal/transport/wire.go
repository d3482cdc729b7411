package transport

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/jamesprial/mcpcore/internal/config"
	"github.com/jamesprial/mcpcore/internal/oauth"
	"github.com/jamesprial/mcpcore/internal/transport/internal/handlers"
	transporthttp "github.com/jamesprial/mcpcore/internal/transport/internal/http"
	"github.com/jamesprial/mcpcore/internal/transport/internal/middleware"
	"github.com/jamesprial/mcpcore/internal/transport/streamhttp"
	pkgoauth "github.com/jamesprial/mcpcore/pkg/oauth"
)

// NewServer creates a configured HTTP server.
// The server is configured with timeouts from the config and uses the provided router.
func NewServer(cfg *config.Config, router Router) Server {
	return transporthttp.NewServer(cfg, router)
}

// NewRouter creates a new HTTP router backed by http.ServeMux.
func NewRouter() Router {
	return transporthttp.NewRouter()
}

// NewAuthMiddleware creates OAuth authentication middleware.
// It validates Bearer tokens and enforces scope requirements.
// The metadataURL is included in WWW-Authenticate headers for client discovery.
func NewAuthMiddleware(
	validator oauth.TokenValidator,
	responder ErrorResponder,
	metadataURL string,
) AuthMiddleware {
	// Use default scopes for authentication
	defaultScopes := []string{pkgoauth.ScopeRead}
	return middleware.NewAuthMiddleware(validator, responder, metadataURL, defaultScopes)
}

// NewErrorResponder creates an error responder with the given metadata URL.
// The responder formats HTTP error responses according to OAuth 2.1 and RFC 9728.
func NewErrorResponder(metadataURL string) ErrorResponder {
	return transporthttp.NewErrorResponder(metadataURL)
}

// NewMetadataHandler creates the OAuth protected resource metadata handler.
// It serves metadata at /.well-known/oauth-protected-resource per RFC 9728.
func NewMetadataHandler(service oauth.MetadataService, responder ErrorResponder) http.Handler {
	return handlers.NewMetadataHandler(service, responder)
}

// NewMCPHandler builds the Streamable HTTP endpoint (POST/GET/DELETE) over
// sessions, wrapped with the transport's Host/Origin allowlists and request
// size cap.
func NewMCPHandler(sessions *streamhttp.SessionStore, security streamhttp.SecurityConfig, logger *slog.Logger) http.Handler {
	return streamhttp.Wrap(streamhttp.NewHandler(sessions, logger), security)
}

// NewHealthHandler creates the health check handler.
// It provides a simple health status endpoint.
func NewHealthHandler(responder ErrorResponder) http.Handler {
	return handlers.NewHealthHandler(responder)
}

// NewLoggingMiddleware creates request logging middleware.
// It logs HTTP request details using structured logging.
// If logger is nil, it uses the default slog logger.
func NewLoggingMiddleware(logger *slog.Logger) Middleware {
	return middleware.NewLoggingMiddleware(logger)
}

// NewRecoveryMiddleware creates panic recovery middleware.
// It recovers from panics and returns a 500 error to the client.
// If logger is nil, it uses the default slog logger.
func NewRecoveryMiddleware(responder ErrorResponder, logger *slog.Logger) Middleware {
	return middleware.NewRecoveryMiddleware(responder, logger)
}

// Config holds the configuration needed for the transport layer.
type Config struct {
	// ServerConfig is the server configuration.
	ServerConfig *config.Config

	// OAuthValidator validates access tokens.
	OAuthValidator oauth.TokenValidator

	// MetadataService provides protected resource metadata.
	MetadataService oauth.MetadataService

	// Sessions backs the Streamable HTTP MCP endpoint.
	Sessions *streamhttp.SessionStore

	// Security bounds the MCP endpoint's Host/Origin allowlists and request
	// size cap.
	Security streamhttp.SecurityConfig
}

// NewTransportServices creates all transport layer services from the configuration.
// This is a convenience function for dependency injection that wires up the complete
// HTTP transport layer with routing, middleware, and handlers.
func NewTransportServices(cfg *Config) (Server, Router, error) {
	if cfg == nil {
		return nil, nil, fmt.Errorf("config cannot be nil")
	}
	if cfg.ServerConfig == nil {
		return nil, nil, fmt.Errorf("server config cannot be nil")
	}
	if cfg.OAuthValidator == nil {
		return nil, nil, fmt.Errorf("oauth validator cannot be nil")
	}
	if cfg.MetadataService == nil {
		return nil, nil, fmt.Errorf("metadata service cannot be nil")
	}
	if cfg.Sessions == nil {
		return nil, nil, fmt.Errorf("sessions cannot be nil")
	}

	// Get metadata URL from service
	metadataURL := cfg.MetadataService.GetMetadataURL()

	// Create error responder
	responder := NewErrorResponder(metadataURL)

	// Create middleware
	recoveryMiddleware := NewRecoveryMiddleware(responder, nil)
	loggingMiddleware := NewLoggingMiddleware(nil)
	authMiddleware := NewAuthMiddleware(cfg.OAuthValidator, responder, metadataURL)

	// Create handlers
	metadataHandler := NewMetadataHandler(cfg.MetadataService, responder)
	mcpHandler := NewMCPHandler(cfg.Sessions, cfg.Security, nil)
	healthHandler := NewHealthHandler(responder)

	// Create router
	router := NewRouter()

	// Apply global middleware
	router.Use(recoveryMiddleware, loggingMiddleware)

	// Register routes
	// Public endpoints (no auth required)
	router.Handle("GET /.well-known/oauth-protected-resource", metadataHandler)
	router.Handle("GET /health", healthHandler)

	// Protected endpoint (auth required): POST/GET/DELETE all join the
	// streamable-HTTP session via Mcp-Session-Id, dispatched inside mcpHandler.
	authenticatedMCP := authMiddleware.Authenticate()(mcpHandler)
	router.Handle("/mcp", authenticatedMCP)

	// Create server
	server := NewServer(cfg.ServerConfig, router)

	return server, router, nil
}
