package paymentgate

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestPeerAllowListLoopback(t *testing.T) {
	l := NewPeerAllowList(true, "")
	if !l.Allows("127.0.0.1") {
		t.Errorf("allowlist_test - expected loopback to be allowed")
	}
	if l.Allows("203.0.113.5") {
		t.Errorf("allowlist_test - expected non-loopback to be rejected with no CIDRs configured")
	}
}

func TestPeerAllowListCIDR(t *testing.T) {
	l := NewPeerAllowList(false, "10.0.0.0/8, 192.168.1.0/24")
	if !l.Allows("10.1.2.3") {
		t.Errorf("allowlist_test - expected 10.1.2.3 to match 10.0.0.0/8")
	}
	if !l.Allows("192.168.1.42") {
		t.Errorf("allowlist_test - expected 192.168.1.42 to match 192.168.1.0/24")
	}
	if l.Allows("192.168.2.1") {
		t.Errorf("allowlist_test - expected 192.168.2.1 to be outside 192.168.1.0/24")
	}
}

func TestPeerAllowListMalformedCIDRSkipped(t *testing.T) {
	l := NewPeerAllowList(false, "not-a-cidr,10.0.0.0/8")
	if len(l.CIDRs) != 1 {
		t.Fatalf("allowlist_test - expected malformed entry to be skipped, got %d CIDRs", len(l.CIDRs))
	}
}

func TestPeerIPPrefersForwardedFor(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.1:5555"
	req.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")

	if got := PeerIP(req); got != "203.0.113.9" {
		t.Errorf("allowlist_test - PeerIP() = %q, want %q", got, "203.0.113.9")
	}
}

func TestPeerIPFallsBackToRemoteAddr(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "198.51.100.2:5555"

	if got := PeerIP(req); got != "198.51.100.2" {
		t.Errorf("allowlist_test - PeerIP() = %q, want %q", got, "198.51.100.2")
	}
}
