package utils

import (
	"net"
	"net/http"
	"net/netip"
	"strings"
)

// proxyHeaders are consulted in order when the proxy is trusted.
var proxyHeaders = []string{"CF-Connecting-IP", "X-Forwarded-For", "X-Real-IP"}

// ParseHostNoPort returns the host part of "ip:port", "[v6]:port" or "ip".
func ParseHostNoPort(s string) string {
	s = strings.TrimSpace(s)
	if h, _, err := net.SplitHostPort(s); err == nil {
		return h
	}
	return s
}

// FirstForwardedFor returns the left-most entry of an X-Forwarded-For value.
func FirstForwardedFor(xff string) string {
	first, _, _ := strings.Cut(xff, ",")
	return strings.TrimSpace(first)
}

// ClientIP resolves the caller's address. With trustProxy the proxy headers
// win over RemoteAddr; only enable it when the origin is reachable solely
// through that proxy (e.g. cloudflared on localhost).
func ClientIP(r *http.Request, trustProxy bool) string {
	if trustProxy {
		for _, h := range proxyHeaders {
			if ip := ParseHostNoPort(FirstForwardedFor(r.Header.Get(h))); ip != "" {
				return ip
			}
		}
	}
	return ParseHostNoPort(r.RemoteAddr)
}

// IPMatcher matches addresses against a list of IPs and CIDRs.
type IPMatcher struct {
	prefixes []netip.Prefix
}

// NewIPMatcher parses list, skipping entries that are neither an IP nor a CIDR.
func NewIPMatcher(list []string) *IPMatcher {
	m := &IPMatcher{}
	for _, raw := range list {
		s := strings.TrimSpace(raw)
		if s == "" {
			continue
		}
		if p, err := netip.ParsePrefix(s); err == nil {
			m.prefixes = append(m.prefixes, p.Masked())
			continue
		}
		if a, err := netip.ParseAddr(s); err == nil {
			a = a.Unmap()
			m.prefixes = append(m.prefixes, netip.PrefixFrom(a, a.BitLen()))
		}
	}
	return m
}

func (m *IPMatcher) IsEmpty() bool {
	return len(m.prefixes) == 0
}

// Allow reports whether ipStr falls in any configured prefix.
// IPv4-mapped IPv6 addresses match their IPv4 rules.
func (m *IPMatcher) Allow(ipStr string) bool {
	a, err := netip.ParseAddr(ipStr)
	if err != nil {
		return false
	}
	a = a.Unmap()
	for _, p := range m.prefixes {
		if p.Contains(a) {
			return true
		}
	}
	return false
}
