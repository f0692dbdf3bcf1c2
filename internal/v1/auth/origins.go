// Package auth implements the origin authorization policy applied to
// WebSocket upgrade requests.
package auth

import (
	"context"
	"net"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/visitly/presence-gateway/internal/v1/logging"
)

// OriginPolicy decides whether an upgrade request's Origin header is
// permitted. A nil or empty whitelist admits everything; once a whitelist is
// configured, requests without an Origin header are rejected unless the
// wildcard entry "*" is present.
type OriginPolicy struct {
	entries []string
}

// NewOriginPolicy builds a policy from a comma-separated whitelist, e.g.
// "https://example.com, *.example.org, api.example.net:8443". Empty items are
// dropped; entries are lowercased.
func NewOriginPolicy(raw string) *OriginPolicy {
	var entries []string
	for _, item := range strings.Split(raw, ",") {
		item = strings.ToLower(strings.TrimSpace(item))
		if item != "" {
			entries = append(entries, item)
		}
	}
	return &OriginPolicy{entries: entries}
}

// Enforced reports whether a non-empty whitelist is configured.
func (p *OriginPolicy) Enforced() bool {
	return p != nil && len(p.entries) > 0
}

// Allow applies the whitelist to the given Origin header value.
//
// Entry forms, checked in order per entry:
//  1. "*" admits everything.
//  2. "http://..." / "https://..." match on canonical scheme://host:port
//     with default ports made explicit.
//  3. "*.suffix" / ".suffix" match the host against a DNS suffix (the bare
//     suffix itself also matches).
//  4. "host:port" matches host and explicit origin port.
//  5. A bare host matches the host, port ignored.
func (p *OriginPolicy) Allow(origin string) bool {
	if !p.Enforced() {
		return true
	}
	for _, e := range p.entries {
		if e == "*" {
			return true
		}
	}

	origin = strings.ToLower(strings.TrimSpace(origin))
	origin = strings.TrimSuffix(origin, "/")
	if origin == "" {
		return false
	}

	host, port := splitHostPort(origin)
	for _, entry := range p.entries {
		if matchEntry(entry, origin, host, port) {
			logging.GetLogger().Debug("origin admitted", zap.String("origin", origin), zap.String("entry", entry))
			return true
		}
	}

	logging.Warn(context.Background(), "origin rejected", zap.String("origin", origin))
	return false
}

func matchEntry(entry, origin, host, port string) bool {
	if strings.HasPrefix(entry, "http://") || strings.HasPrefix(entry, "https://") {
		return canonicalize(entry) == canonicalize(origin)
	}

	if suffix, ok := cutSuffixEntry(entry); ok {
		return host == suffix || strings.HasSuffix(host, "."+suffix)
	}

	if eh, ep, found := strings.Cut(entry, ":"); found {
		return eh == host && ep == port
	}

	return entry == host
}

// cutSuffixEntry extracts the DNS suffix from "*.example.com" or
// ".example.com" style entries.
func cutSuffixEntry(entry string) (string, bool) {
	var rest string
	switch {
	case strings.HasPrefix(entry, "*."):
		rest = entry[2:]
	case strings.HasPrefix(entry, "."):
		rest = entry[1:]
	default:
		return "", false
	}
	return strings.TrimPrefix(rest, "."), true
}

// canonicalize normalizes an absolute origin URL to scheme://host:port with
// the default port made explicit and the host lowercased. Unparseable input
// is returned trimmed so it can only match itself.
func canonicalize(origin string) string {
	origin = strings.TrimSuffix(origin, "/")
	u, err := url.Parse(origin)
	if err != nil || u.Host == "" {
		return origin
	}
	host := strings.ToLower(u.Hostname())
	port := u.Port()
	if port == "" {
		switch u.Scheme {
		case "https":
			port = "443"
		default:
			port = "80"
		}
	}
	return u.Scheme + "://" + host + ":" + port
}

// splitHostPort extracts host and explicit port from an origin value that may
// or may not carry a scheme. The port is empty when not explicit.
func splitHostPort(origin string) (string, string) {
	authority := origin
	if _, rest, found := strings.Cut(origin, "://"); found {
		authority = rest
	}
	if idx := strings.IndexByte(authority, '/'); idx >= 0 {
		authority = authority[:idx]
	}
	if host, port, err := net.SplitHostPort(authority); err == nil {
		return host, port
	}
	return strings.Trim(authority, "[]"), ""
}
