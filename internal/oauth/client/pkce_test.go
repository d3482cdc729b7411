package client

import (
	"strings"
	"testing"
)

func TestNewFlowAuthCodeURLIncludesPKCEChallenge(t *testing.T) {
	f, err := NewFlow(Config{
		ClientID:    "test-client",
		AuthURL:     "https://as.example.com/authorize",
		TokenURL:    "https://as.example.com/token",
		RedirectURL: "https://client.example.com/callback",
		Scopes:      []string{"mcp:read"},
	})
	if err != nil {
		t.Fatalf("NewFlow() error = %v", err)
	}

	u := f.AuthCodeURL()
	if !strings.Contains(u, "code_challenge=") {
		t.Errorf("AuthCodeURL() = %q, want code_challenge param", u)
	}
	if !strings.Contains(u, "code_challenge_method=S256") {
		t.Errorf("AuthCodeURL() = %q, want code_challenge_method=S256", u)
	}
	if !strings.Contains(u, "state="+f.State()) {
		t.Errorf("AuthCodeURL() = %q, want state=%s", u, f.State())
	}
}

func TestExchangeRejectsStateMismatch(t *testing.T) {
	f, err := NewFlow(Config{
		ClientID:    "test-client",
		AuthURL:     "https://as.example.com/authorize",
		TokenURL:    "https://as.example.com/token",
		RedirectURL: "https://client.example.com/callback",
	})
	if err != nil {
		t.Fatalf("NewFlow() error = %v", err)
	}

	_, err = f.Exchange(nil, "wrong-state", "some-code")
	if err == nil {
		t.Fatal("Exchange() error = nil, want state-mismatch error")
	}
}

func TestNewFlowRejectsDangerousSchemes(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{
			name: "javascript AuthURL",
			cfg: Config{
				AuthURL:     "javascript:alert(1)",
				TokenURL:    "https://as.example.com/token",
				RedirectURL: "https://client.example.com/callback",
			},
		},
		{
			name: "data RedirectURL",
			cfg: Config{
				AuthURL:     "https://as.example.com/authorize",
				TokenURL:    "https://as.example.com/token",
				RedirectURL: "data:text/html,<script>alert(1)</script>",
			},
		},
		{
			name: "vbscript TokenURL",
			cfg: Config{
				AuthURL:     "https://as.example.com/authorize",
				TokenURL:    "vbscript:msgbox(1)",
				RedirectURL: "https://client.example.com/callback",
			},
		},
		{
			name: "empty RedirectURL",
			cfg: Config{
				AuthURL:  "https://as.example.com/authorize",
				TokenURL: "https://as.example.com/token",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewFlow(tt.cfg); err == nil {
				t.Fatal("NewFlow() error = nil, want rejection")
			}
		})
	}
}
