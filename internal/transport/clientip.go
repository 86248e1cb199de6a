package transport

import (
	"fmt"
	"net"
	"net/http"
	"strings"
)

// ProxyTrust lists the proxies allowed to report a client address through
// X-Forwarded-For. A nil or empty ProxyTrust believes no header.
type ProxyTrust struct {
	nets []*net.IPNet
}

// NewProxyTrust parses CIDRs or bare addresses.
func NewProxyTrust(entries []string) (*ProxyTrust, error) {
	p := &ProxyTrust{}
	for _, entry := range entries {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		if !strings.Contains(entry, "/") {
			ip := net.ParseIP(entry)
			if ip == nil {
				return nil, fmt.Errorf("invalid trusted proxy %q", entry)
			}
			bits := 128
			if ip.To4() != nil {
				bits = 32
			}
			entry = fmt.Sprintf("%s/%d", entry, bits)
		}
		_, ipNet, err := net.ParseCIDR(entry)
		if err != nil {
			return nil, fmt.Errorf("invalid trusted proxy %q: %w", entry, err)
		}
		p.nets = append(p.nets, ipNet)
	}
	return p, nil
}

func (p *ProxyTrust) trusts(ip net.IP) bool {
	if p == nil || ip == nil {
		return false
	}
	for _, n := range p.nets {
		if n.Contains(ip) {
			return true
		}
	}
	return false
}

// ClientIP is the socket peer unless that peer is a trusted proxy. Then
// X-Forwarded-For is read from the nearest hop back, and the first address
// that is not a trusted proxy wins.
func (p *ProxyTrust) ClientIP(r *http.Request) string {
	peer := ClientIP(r)
	if !p.trusts(net.ParseIP(peer)) {
		return peer
	}

	var hops []string
	for _, v := range r.Header.Values("X-Forwarded-For") {
		hops = append(hops, strings.Split(v, ",")...)
	}
	for i := len(hops) - 1; i >= 0; i-- {
		hop := strings.TrimSpace(hops[i])
		ip := net.ParseIP(hop)
		if ip == nil {
			return peer
		}
		if !p.trusts(ip) {
			return hop
		}
	}
	return peer
}

// ClientIP is the socket peer address without its port.
func ClientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
