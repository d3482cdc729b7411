// Package client implements the client-side half of OAuth 2.1 that the
// teacher's resource-server-only package never needed: an authorization
// code + PKCE (S256) flow and proactive token refresh, built on
// golang.org/x/oauth2 rather than hand-rolled HTTP calls.
package client

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/oauth2"
)

// Config identifies the authorization server and client registration used
// to drive the flow.
type Config struct {
	ClientID     string
	ClientSecret string // empty for a public client
	AuthURL      string
	TokenURL     string
	RedirectURL  string
	Scopes       []string
}

// Flow drives one authorization-code-with-PKCE exchange from AuthCodeURL
// through Exchange.
type Flow struct {
	oauthCfg *oauth2.Config
	verifier string
	state    string
}

// dangerousSchemes are URL schemes that must never appear in an
// authorization server endpoint or redirect URI: each is a known vector
// for script injection or local-resource disclosure if a client is ever
// tricked into navigating a user agent to one.
var dangerousSchemes = []string{"javascript", "data", "vbscript"}

// validateURL rejects empty values and dangerous schemes in one of the
// flow's configured URLs.
func validateURL(field, raw string) error {
	if raw == "" {
		return fmt.Errorf("oauth client: %s must not be empty", field)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("oauth client: %s: %w", field, err)
	}
	scheme := strings.ToLower(u.Scheme)
	for _, s := range dangerousSchemes {
		if scheme == s {
			return fmt.Errorf("oauth client: %s uses disallowed scheme %q", field, u.Scheme)
		}
	}
	return nil
}

// NewFlow starts a new authorization flow, generating a fresh PKCE verifier
// and CSRF state value. It returns an error if AuthURL, TokenURL, or
// RedirectURL is missing or uses a disallowed scheme.
func NewFlow(cfg Config) (*Flow, error) {
	if err := validateURL("AuthURL", cfg.AuthURL); err != nil {
		return nil, err
	}
	if err := validateURL("TokenURL", cfg.TokenURL); err != nil {
		return nil, err
	}
	if err := validateURL("RedirectURL", cfg.RedirectURL); err != nil {
		return nil, err
	}

	return &Flow{
		oauthCfg: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint: oauth2.Endpoint{
				AuthURL:  cfg.AuthURL,
				TokenURL: cfg.TokenURL,
			},
			RedirectURL: cfg.RedirectURL,
			Scopes:      cfg.Scopes,
		},
		verifier: oauth2.GenerateVerifier(),
		state:    uuid.NewString(),
	}, nil
}

// State returns the CSRF state value to compare against the redirect callback.
func (f *Flow) State() string { return f.state }

// AuthCodeURL builds the authorization-server URL the client should send
// the resource owner to, with the S256 code challenge attached per RFC 7636.
func (f *Flow) AuthCodeURL() string {
	return f.oauthCfg.AuthCodeURL(f.state, oauth2.AccessTypeOffline, oauth2.S256ChallengeOption(f.verifier))
}

// Exchange trades an authorization code (and the matching state) for a
// token, replaying the PKCE verifier generated in NewFlow.
func (f *Flow) Exchange(ctx context.Context, state, code string) (*oauth2.Token, error) {
	if state != f.state {
		return nil, fmt.Errorf("oauth client: state mismatch, possible CSRF")
	}
	return f.oauthCfg.Exchange(ctx, code, oauth2.VerifierOption(f.verifier))
}

// TokenSource wraps a token in a TokenSource that refreshes it automatically
// once it is within its own expiry margin, per oauth2.ReuseTokenSource.
func (f *Flow) TokenSource(ctx context.Context, tok *oauth2.Token) oauth2.TokenSource {
	return f.oauthCfg.TokenSource(ctx, tok)
}
