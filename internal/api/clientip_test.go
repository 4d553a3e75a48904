package api

import (
	"net/http/httptest"
	"testing"
)

func TestClientIPResolverTrustedProxy(t *testing.T) {
	resolver := NewClientIPResolver(true, []string{"127.0.0.0/8", "10.0.0.0/8"})
	req := httptest.NewRequest("GET", "http://example.com", nil)
	req.RemoteAddr = "127.0.0.1:1234"
	req.Header.Set("X-Forwarded-For", "198.51.100.1, 203.0.113.10, 10.0.0.1")

	if ip := resolver.FromRequest(req); ip != "203.0.113.10" {
		t.Fatalf("client ip = %s, want 203.0.113.10", ip)
	}
}

func TestClientIPResolverUntrustedPeerIgnoresHeaders(t *testing.T) {
	resolver := NewClientIPResolver(true, []string{"10.0.0.0/8"})
	req := httptest.NewRequest("GET", "http://example.com", nil)
	req.RemoteAddr = "127.0.0.1:1234"
	req.Header.Set("X-Forwarded-For", "203.0.113.10")

	if ip := resolver.FromRequest(req); ip != "127.0.0.1" {
		t.Fatalf("client ip = %s, want 127.0.0.1", ip)
	}
}

func TestClientIPResolverHeadersDisabled(t *testing.T) {
	resolver := NewClientIPResolver(false, []string{"127.0.0.0/8"})
	req := httptest.NewRequest("GET", "http://example.com", nil)
	req.RemoteAddr = "127.0.0.1:1234"
	req.Header.Set("X-Real-IP", "198.51.100.5")

	if ip := resolver.FromRequest(req); ip != "127.0.0.1" {
		t.Fatalf("client ip = %s, want 127.0.0.1", ip)
	}
}

func TestClientIPResolverFallbackToRealIP(t *testing.T) {
	resolver := NewClientIPResolver(true, []string{"127.0.0.0/8"})
	req := httptest.NewRequest("GET", "http://example.com", nil)
	req.RemoteAddr = "127.0.0.1:1234"
	req.Header.Set("X-Real-IP", "198.51.100.5")

	if ip := resolver.FromRequest(req); ip != "198.51.100.5" {
		t.Fatalf("client ip = %s, want 198.51.100.5", ip)
	}
}

func TestClientIPResolverNilAndIPv6(t *testing.T) {
	var resolver *ClientIPResolver
	req := httptest.NewRequest("GET", "http://example.com", nil)
	req.RemoteAddr = "[2001:db8::1]:443"
	if ip := resolver.FromRequest(req); ip != "2001:db8::1" {
		t.Fatalf("client ip = %s, want 2001:db8::1", ip)
	}

	req.RemoteAddr = "garbage"
	if ip := resolver.FromRequest(req); ip != unknownIP {
		t.Fatalf("client ip = %s, want %s", ip, unknownIP)
	}
}
