package webhook

import (
	"errors"
	"testing"
)

func TestCheckDestination(t *testing.T) {
	tests := []struct {
		name    string
		url     string
		allowed []string
		wantOK  bool
	}{
		{"https host no allow-list", "https://hooks.example.com/consultas", nil, true},
		{"http rejected", "http://hooks.example.com/consultas", nil, false},
		{"scheme case variant rejected", "HTTPS://hooks.example.com", nil, false},
		{"missing scheme", "hooks.example.com/consultas", nil, false},
		{"ipv4 literal rejected", "https://203.0.113.10/hook", nil, false},
		{"ipv4 loopback rejected", "https://127.0.0.1/hook", nil, false},
		{"ipv6 literal rejected", "https://[2001:db8::1]/hook", nil, false},
		{"allow-list exact match", "https://hooks.example.com/x", []string{"hooks.example.com"}, true},
		{"allow-list subdomain match", "https://eu.hooks.example.com/x", []string{"hooks.example.com"}, true},
		{"allow-list suffix but not subdomain", "https://evilhooks.example.com.attacker.net/x", []string{"hooks.example.com"}, false},
		{"allow-list miss", "https://other.example.org/x", []string{"hooks.example.com"}, false},
		{"host case-insensitive", "https://HOOKS.Example.COM/x", []string{"hooks.example.com"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := CheckDestination(tt.url, tt.allowed)
			if tt.wantOK && err != nil {
				t.Errorf("CheckDestination(%q) = %v, want nil", tt.url, err)
			}
			if !tt.wantOK {
				var unsafeErr *UnsafeDestinationError
				if !errors.As(err, &unsafeErr) {
					t.Errorf("CheckDestination(%q) = %v, want UnsafeDestinationError", tt.url, err)
				}
			}
		})
	}
}
