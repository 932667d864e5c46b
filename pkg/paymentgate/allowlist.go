package paymentgate

import (
	"net"
	"net/http"
	"strings"
)

// PeerAllowList decides whether a request originates from a peer trusted
// to present the test-bypass key or to self-query another wallet's usage,
// per spec.md §4.2/§4.3.
type PeerAllowList struct {
	Loopback bool
	CIDRs    []*net.IPNet
}

// NewPeerAllowList parses a comma-separated list of CIDRs (e.g.
// "10.0.0.0/8,172.20.0.0/16") into a PeerAllowList. Malformed entries are
// skipped rather than failing startup — an unparseable allow-list entry
// should narrow trust, not widen it.
func NewPeerAllowList(loopback bool, cidrs string) PeerAllowList {
	list := PeerAllowList{Loopback: loopback}
	for _, raw := range strings.Split(cidrs, ",") {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		_, n, err := net.ParseCIDR(raw)
		if err != nil {
			continue
		}
		list.CIDRs = append(list.CIDRs, n)
	}
	return list
}

// Allows reports whether addr (an IP, no port) is trusted.
func (l PeerAllowList) Allows(addr string) bool {
	ip := net.ParseIP(addr)
	if ip == nil {
		return false
	}
	if l.Loopback && ip.IsLoopback() {
		return true
	}
	for _, n := range l.CIDRs {
		if n.Contains(ip) {
			return true
		}
	}
	return false
}

// PeerIP extracts the caller's IP from r, preferring the left-most hop of
// X-Forwarded-For (the original client) over RemoteAddr, and stripping any
// port. This is also the IP pkg/ratelimit buckets on.
func PeerIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first := strings.TrimSpace(strings.Split(fwd, ",")[0])
		if first != "" {
			return first
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// AllowsRequest is the convenience form used by the gate and usage handlers.
func (l PeerAllowList) AllowsRequest(r *http.Request) bool {
	return l.Allows(PeerIP(r))
}
