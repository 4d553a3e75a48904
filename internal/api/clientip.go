package api

import (
	"net"
	"net/http"
	"net/netip"
	"strings"
)

const unknownIP = "unknown"

// ClientIPResolver extracts the caller address, honouring X-Forwarded-For
// and X-Real-IP only when the direct peer is a trusted proxy.
type ClientIPResolver struct {
	trustProxyHeaders bool
	trusted           []netip.Prefix
}

func NewClientIPResolver(trustProxyHeaders bool, trustedCIDRs []string) *ClientIPResolver {
	resolver := &ClientIPResolver{trustProxyHeaders: trustProxyHeaders}
	for _, entry := range trustedCIDRs {
		if prefix, err := netip.ParsePrefix(strings.TrimSpace(entry)); err == nil {
			resolver.trusted = append(resolver.trusted, prefix.Masked())
		}
	}
	return resolver
}

// FromRequest is safe on a nil resolver, which trusts no headers.
func (c *ClientIPResolver) FromRequest(req *http.Request) string {
	peer, ok := parseAddr(req.RemoteAddr)
	if !ok {
		return unknownIP
	}
	if c == nil || !c.trustProxyHeaders || !c.isTrusted(peer) {
		return peer.String()
	}

	// Walk right to left so values prepended by the client are ignored.
	hops := strings.Split(req.Header.Get("X-Forwarded-For"), ",")
	for i := len(hops) - 1; i >= 0; i-- {
		hop, ok := parseAddr(hops[i])
		if !ok || c.isTrusted(hop) {
			continue
		}
		return hop.String()
	}
	if realIP, ok := parseAddr(req.Header.Get("X-Real-IP")); ok {
		return realIP.String()
	}
	return peer.String()
}

func (c *ClientIPResolver) isTrusted(addr netip.Addr) bool {
	for _, prefix := range c.trusted {
		if prefix.Contains(addr) {
			return true
		}
	}
	return false
}

// parseAddr accepts a bare IP, a bracketed IPv6 address, or host:port.
func parseAddr(raw string) (netip.Addr, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return netip.Addr{}, false
	}
	if host, _, err := net.SplitHostPort(raw); err == nil {
		raw = host
	}
	raw = strings.TrimSuffix(strings.TrimPrefix(raw, "["), "]")
	addr, err := netip.ParseAddr(raw)
	if err != nil {
		return netip.Addr{}, false
	}
	return addr.Unmap(), true
}
