package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOriginPolicy_EmptyWhitelistAdmitsEverything(t *testing.T) {
	p := NewOriginPolicy("")
	assert.False(t, p.Enforced())
	assert.True(t, p.Allow("https://anywhere.example"))
	assert.True(t, p.Allow(""))
}

func TestOriginPolicy_Wildcard(t *testing.T) {
	p := NewOriginPolicy("*")
	assert.True(t, p.Enforced())
	assert.True(t, p.Allow("https://anywhere.example"))
	// Wildcard admits even requests without an Origin header.
	assert.True(t, p.Allow(""))
}

func TestOriginPolicy_AbsentOriginRejectedWhenEnforced(t *testing.T) {
	p := NewOriginPolicy("https://example.com")
	assert.False(t, p.Allow(""))
}

func TestOriginPolicy_Allow(t *testing.T) {
	tests := []struct {
		name      string
		whitelist string
		origin    string
		want      bool
	}{
		// Absolute URL entries match on canonical scheme://host:port.
		{"url exact", "https://example.com", "https://example.com", true},
		{"url default port explicit", "https://example.com", "https://example.com:443", true},
		{"url trailing slash", "https://example.com/", "https://example.com", true},
		{"url scheme mismatch", "https://example.com", "http://example.com", false},
		{"url port mismatch", "https://example.com", "https://example.com:8443", false},
		{"url other host", "https://example.com", "https://evil.com", false},
		{"http default port", "http://localhost:3000", "http://localhost:3000", true},
		{"http port mismatch", "http://localhost:3000", "http://localhost:4000", false},

		// Suffix entries match subdomains and the bare suffix itself.
		{"suffix subdomain", "*.example.com", "https://app.example.com", true},
		{"suffix deep subdomain", "*.example.com", "https://a.b.example.com", true},
		{"suffix bare host", "*.example.com", "https://example.com", true},
		{"suffix dot form", ".example.com", "https://app.example.com", true},
		{"suffix no partial label", "*.example.com", "https://notexample.com", false},

		// host:port entries require the explicit origin port.
		{"host port match", "api.example.net:8443", "https://api.example.net:8443", true},
		{"host port missing", "api.example.net:8443", "https://api.example.net", false},
		{"host port wrong", "api.example.net:8443", "https://api.example.net:9000", false},

		// Bare host entries ignore scheme and port.
		{"bare host", "example.com", "https://example.com", true},
		{"bare host with port", "example.com", "http://example.com:8080", true},
		{"bare host mismatch", "example.com", "https://other.com", false},

		// Multiple entries: any match admits.
		{"second entry matches", "https://a.com, *.b.org", "https://x.b.org", true},
		{"no entry matches", "https://a.com, *.b.org", "https://c.net", false},

		// Case-insensitive on both sides.
		{"case insensitive", "https://Example.COM", "https://EXAMPLE.com", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewOriginPolicy(tt.whitelist)
			assert.Equal(t, tt.want, p.Allow(tt.origin))
		})
	}
}
