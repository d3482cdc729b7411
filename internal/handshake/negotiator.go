package handshake

import (
	"sync"

	internalerrors "github.com/jamesprial/mcpcore/internal/errors"
)

// ServerOptions carries the static identity and capability set a Negotiator
// advertises; supplied once at construction, generalizing the teacher's
// Config{ServerName, ServerVersion} to the full capability surface.
type ServerOptions struct {
	Info         ImplementationInfo
	Capabilities ServerCapabilities
	Instructions string
	// SupportedVersions is ordered newest-first; the first entry is offered
	// when a client requests a version the server does not recognize.
	SupportedVersions []string
}

// Negotiator drives one session's initialize/initialized handshake and
// tracks its lifecycle state. It is not safe to share across sessions; the
// protocol engine constructs one per session.
type Negotiator struct {
	mu      sync.Mutex
	opts    ServerOptions
	state   State
	version string
	client  ClientCapabilities
}

// New creates a Negotiator for a single session.
func New(opts ServerOptions) *Negotiator {
	if len(opts.SupportedVersions) == 0 {
		panic("handshake: ServerOptions.SupportedVersions must not be empty")
	}
	return &Negotiator{opts: opts, state: StateCreated}
}

// State reports the session's current lifecycle state.
func (n *Negotiator) State() State {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.state
}

// Allows reports whether method may be dispatched given the current state.
func (n *Negotiator) Allows(method string) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return AllowsMethod(n.state, method)
}

// HandleInitialize processes the initialize request: negotiates a protocol
// version (the requested version if supported, else the server's own
// newest) and records the client's capabilities. A session may only
// initialize once.
func (n *Negotiator) HandleInitialize(params InitializeParams) (InitializeResult, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.state != StateCreated {
		return InitializeResult{}, internalerrors.New("handshake", "HandleInitialize", internalerrors.ErrBadRequest, ErrAlreadyInitializing)
	}

	version := n.opts.SupportedVersions[0]
	for _, v := range n.opts.SupportedVersions {
		if v == params.ProtocolVersion {
			version = v
			break
		}
	}

	n.version = version
	n.client = params.Capabilities
	n.state = StateInitializing

	return InitializeResult{
		ProtocolVersion: version,
		ServerInfo:      n.opts.Info,
		Capabilities:    n.opts.Capabilities,
		Instructions:    n.opts.Instructions,
	}, nil
}

// HandleInitialized processes the initialized notification, completing the
// handshake. A duplicate notification after the session is already
// Operational is treated as a harmless no-op, matching MCP's tolerance of a
// redundant initialized delivery.
func (n *Negotiator) HandleInitialized() error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.state == StateOperational {
		return nil
	}
	if n.state != StateInitializing {
		return internalerrors.New("handshake", "HandleInitialized", internalerrors.ErrBadRequest, ErrNotInitializing)
	}
	n.state = StateOperational
	return nil
}

// BeginClose transitions the session toward shutdown; further
// non-close-related dispatch should be rejected by the caller once this
// returns.
func (n *Negotiator) BeginClose() {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.state != StateClosed {
		n.state = StateClosing
	}
}

// Closed marks the session fully torn down.
func (n *Negotiator) Closed() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.state = StateClosed
}

// NegotiatedVersion returns the protocol version agreed during initialize,
// or "" if the handshake has not completed the initialize step yet.
func (n *Negotiator) NegotiatedVersion() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.version
}

// ClientCapabilities returns the capability set the client advertised
// during initialize.
func (n *Negotiator) ClientCapabilities() ClientCapabilities {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.client
}
