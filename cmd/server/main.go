// Package main provides the entry point for the MCP core protocol server.
// It wires together all components using dependency injection and manages
// the server lifecycle with graceful shutdown.
package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jamesprial/mcpcore/internal/config"
	"github.com/jamesprial/mcpcore/internal/mcpserver"
	"github.com/jamesprial/mcpcore/internal/oauth"
	"github.com/jamesprial/mcpcore/internal/protocol"
	"github.com/jamesprial/mcpcore/internal/transport"
	"github.com/jamesprial/mcpcore/internal/transport/streamhttp"
)

func main() {
	// Set up structured logging
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	// Load configuration from environment
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	slog.Info("server configuration loaded",
		"addr", cfg.Addr,
		"base_url", cfg.BaseURL,
		"auth_servers", cfg.AuthorizationServers,
	)

	// Wire OAuth components
	oauthCfg := &oauth.Config{
		BaseURL:              cfg.BaseURL,
		AuthorizationServers: cfg.AuthorizationServers,
		Audience:             cfg.Audience,
		ScopesSupported:      cfg.ScopesSupported,
		JWKSCacheTTL:         cfg.JWKSCacheTTL,
		ClockSkew:            cfg.ClockSkew,
	}

	tokenValidator, metadataService, scopeChecker, jwksClient := oauth.NewOAuthServices(oauthCfg)
	_ = scopeChecker // Currently unused but available for future scope checking
	_ = jwksClient   // Currently unused but available for manual key refresh

	slog.Info("oauth services initialized",
		"jwks_cache_ttl", cfg.JWKSCacheTTL,
		"clock_skew", cfg.ClockSkew,
	)

	// Wire the MCP protocol engine: one Server owns the shared tool,
	// resource, and prompt catalogs; it hands out a fresh session (protocol
	// engine + handlers) per connection.
	mcpSrv := mcpserver.New(mcpserver.Config{
		ServerName:    "mcpcore",
		ServerVersion: "1.0.0",
		Logger:        logger,
	})

	slog.Info("mcp server initialized",
		"server_name", "mcpcore",
		"protocol_version", mcpserver.ProtocolVersion,
	)

	// Wire the Streamable HTTP transport: a session store that builds one
	// protocol.Engine per Mcp-Session-Id via mcpSrv.NewSession, with idle
	// sessions swept on a timer.
	sessions := streamhttp.NewSessionStore(
		func(sessionID string, t protocol.Transport) *protocol.Engine {
			return mcpSrv.NewSession(sessionID, t)
		},
		cfg.SessionTTL,
		cfg.SSEReplayMaxEvents,
		cfg.SSEReplayMaxBytes,
		mcpSrv.CloseSession,
	)

	sweepCtx, stopSweep := context.WithCancel(context.Background())
	defer stopSweep()
	go runSweeper(sweepCtx, sessions, cfg.SessionTTL)

	// Wire transport layer
	transportCfg := &transport.Config{
		ServerConfig:    cfg,
		OAuthValidator:  tokenValidator,
		MetadataService: metadataService,
		Sessions:        sessions,
		Security: streamhttp.SecurityConfig{
			AllowedHosts:   cfg.AllowedHosts,
			AllowedOrigins: cfg.AllowedOrigins,
			MaxBodyBytes:   cfg.MaxRequestBytes,
		},
	}

	server, router, err := transport.NewTransportServices(transportCfg)
	if err != nil {
		log.Fatalf("failed to create transport services: %v", err)
	}
	_ = router // Router is used internally by server

	slog.Info("transport services initialized",
		"metadata_url", metadataService.GetMetadataURL(),
	)

	// Create context for graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Start server in background goroutine
	serverErrCh := make(chan error, 1)
	go func() {
		slog.Info("starting server", "addr", cfg.Addr)
		if err := server.Start(); err != nil {
			serverErrCh <- err
		}
	}()

	// Wait for shutdown signal or server error
	select {
	case <-ctx.Done():
		slog.Info("shutdown signal received, stopping server gracefully...")
	case err := <-serverErrCh:
		slog.Error("server error", "error", err)
		stop()
	}

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "error", err)
		os.Exit(1)
	}

	slog.Info("server stopped successfully")
}

// runSweeper periodically evicts idle MCP sessions until ctx is cancelled.
// It ticks at a quarter of the idle TTL so a session is never kept alive
// much past its deadline, with a floor to avoid a busy loop when the TTL is
// very short.
func runSweeper(ctx context.Context, sessions *streamhttp.SessionStore, idleTTL time.Duration) {
	if idleTTL <= 0 {
		return
	}
	interval := idleTTL / 4
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sessions.Sweep()
		}
	}
}
