package types

import (
	"net"
	"net/url"
	"strings"
)

// StripHostPort removes the port from a host string, handling IPv6 brackets.
func StripHostPort(host string) string {
	if host == "" {
		return host
	}
	if h, _, err := net.SplitHostPort(host); err == nil {
		return h
	}
	if strings.HasPrefix(host, "[") && strings.HasSuffix(host, "]") {
		return strings.TrimPrefix(strings.TrimSuffix(host, "]"), "[")
	}
	return host
}

// OriginHost extracts the hostname from an origin URL string.
func OriginHost(origin string) string {
	parsed, err := url.Parse(origin)
	if err == nil && parsed.Host != "" {
		return StripHostPort(parsed.Host)
	}
	return StripHostPort(origin)
}

// OriginAllowed matches origin against an allowlist. Entries may be "*",
// a full origin, a bare host, or a "*.example.com" suffix pattern.
func OriginAllowed(allowlist []string, origin string) bool {
	originHost := OriginHost(origin)
	for _, allowed := range allowlist {
		allowed = strings.TrimSpace(allowed)
		switch {
		case allowed == "":
			continue
		case allowed == "*":
			return true
		case strings.EqualFold(allowed, origin):
			return true
		case strings.HasPrefix(allowed, "*."):
			suffix := strings.TrimPrefix(allowed, "*.")
			if originHost != "" && (strings.EqualFold(originHost, suffix) || strings.HasSuffix(strings.ToLower(originHost), "."+strings.ToLower(suffix))) {
				return true
			}
		default:
			if h := OriginHost(allowed); h != "" && originHost != "" && strings.EqualFold(h, originHost) {
				return true
			}
		}
	}
	return false
}

// AllowsAll reports whether the allowlist contains "*".
func AllowsAll(allowlist []string) bool {
	for _, allowed := range allowlist {
		if strings.TrimSpace(allowed) == "*" {
			return true
		}
	}
	return false
}
