package protocol_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/jamesprial/mcpcore/internal/handshake"
	"github.com/jamesprial/mcpcore/internal/jsonrpc"
	"github.com/jamesprial/mcpcore/internal/protocol"
)

func initParams() handshake.InitializeParams {
	return handshake.InitializeParams{
		ProtocolVersion: "2025-06-18",
		ClientInfo:      handshake.ImplementationInfo{Name: "test-client", Version: "1.0"},
	}
}

func waitOperational(t *testing.T, e *protocol.Engine) {
	t.Helper()
	deadline := time.After(time.Second)
	for e.ServerState() != handshake.StateOperational {
		select {
		case <-deadline:
			t.Fatalf("engine never reached Operational state, got %v", e.ServerState())
		case <-time.After(5 * time.Millisecond):
		}
	}
}

// TestEngineCancelledNotificationReachesInFlightHandler proves inbound
// requests run concurrently with the read loop: it blocks a handler on its
// ctx, sends notifications/cancelled for that same request while the
// handler is still running, and expects the handler's ctx to be cancelled.
// Before async dispatch, the read loop could never reach the cancellation
// notification until the handler had already returned.
func TestEngineCancelledNotificationReachesInFlightHandler(t *testing.T) {
	client, server := newTestPair(t)

	if _, err := client.SendRequest(context.Background(), "initialize", initParams(), nil); err != nil {
		t.Fatalf("SendRequest(initialize) error = %v", err)
	}
	if err := client.SendNotification(context.Background(), "notifications/initialized", nil); err != nil {
		t.Fatalf("SendNotification(initialized) error = %v", err)
	}
	waitOperational(t, server)

	handlerCancelled := make(chan struct{})
	server.Register("long/running", func(ctx context.Context, params json.RawMessage) (any, *jsonrpc.Error) {
		<-ctx.Done()
		close(handlerCancelled)
		return nil, jsonrpc.NewError(jsonrpc.CodeInternalError, "cancelled", nil)
	})

	done := make(chan error, 1)
	go func() {
		_, err := client.SendRequest(context.Background(), "long/running", nil, nil)
		done <- err
	}()

	// The initialize call claimed request id 1, so this is the second
	// request this client has sent.
	if err := client.SendNotification(context.Background(), "notifications/cancelled", struct {
		RequestID jsonrpc.ID `json:"requestId"`
	}{RequestID: jsonrpc.NewIntID(2)}); err != nil {
		t.Fatalf("SendNotification(cancelled) error = %v", err)
	}

	select {
	case <-handlerCancelled:
	case <-time.After(2 * time.Second):
		t.Fatal("handler never observed cancellation; read loop was blocked")
	}

	select {
	case err := <-done:
		if err == nil {
			t.Fatal("SendRequest(long/running) error = nil, want the handler's cancelled error")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("SendRequest(long/running) never returned")
	}
}

// TestEngineConcurrentHandlersDoNotBlockEachOther starts a request whose
// handler blocks until released, then expects an unrelated second request
// to complete while the first is still in flight, proving handlers no
// longer serialize on the read loop.
func TestEngineConcurrentHandlersDoNotBlockEachOther(t *testing.T) {
	client, server := newTestPair(t)

	if _, err := client.SendRequest(context.Background(), "initialize", initParams(), nil); err != nil {
		t.Fatalf("SendRequest(initialize) error = %v", err)
	}
	if err := client.SendNotification(context.Background(), "notifications/initialized", nil); err != nil {
		t.Fatalf("SendNotification(initialized) error = %v", err)
	}
	waitOperational(t, server)

	release := make(chan struct{})
	server.Register("blocking", func(ctx context.Context, params json.RawMessage) (any, *jsonrpc.Error) {
		<-release
		return struct{}{}, nil
	})

	blockedDone := make(chan error, 1)
	go func() {
		_, err := client.SendRequest(context.Background(), "blocking", nil, nil)
		blockedDone <- err
	}()

	pingDone := make(chan error, 1)
	go func() {
		_, err := client.SendRequest(context.Background(), "ping", nil, nil)
		pingDone <- err
	}()

	select {
	case err := <-pingDone:
		if err != nil {
			t.Fatalf("SendRequest(ping) while another handler was blocked error = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("ping never completed while another handler was blocked")
	}

	close(release)
	select {
	case err := <-blockedDone:
		if err != nil {
			t.Fatalf("SendRequest(blocking) error = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("blocking request never completed")
	}
}
