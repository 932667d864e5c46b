package backend

import (
	"fmt"
	"net"
	"net/url"
)

// blockedCIDRs are the RFC1918/loopback/link-local/ULA ranges a discovered
// endpoint must not resolve into.
var blockedCIDRs = mustParseCIDRs(
	"10.0.0.0/8",
	"172.16.0.0/12",
	"192.168.0.0/16",
	"127.0.0.0/8",
	"169.254.0.0/16",
	"100.64.0.0/10",
	"fc00::/7",
	"fe80::/10",
)

const blockedMetadataHost = "metadata.google.internal"

func mustParseCIDRs(cidrs ...string) []*net.IPNet {
	nets := make([]*net.IPNet, 0, len(cidrs))
	for _, c := range cidrs {
		_, n, err := net.ParseCIDR(c)
		if err != nil {
			panic(fmt.Sprintf("backend: invalid blocked CIDR %q: %v", c, err))
		}
		nets = append(nets, n)
	}
	return nets
}

// CheckSSRF rejects endpoint if it cannot be parsed, has no host, names the
// GCP metadata host literally, fails a DNS lookup (net.LookupIP), or has any
// looked-up address inside a blocked range.
// Used before any call to a discovered capability's endpoint.
func CheckSSRF(endpoint string) error {
	u, err := url.Parse(endpoint)
	if err != nil {
		return fmt.Errorf("backend: invalid endpoint url: %w", err)
	}
	host := u.Hostname()
	if host == "" {
		return fmt.Errorf("backend: endpoint has no host")
	}
	if host == blockedMetadataHost {
		return fmt.Errorf("backend: endpoint targets blocked metadata host")
	}

	ips, err := net.LookupIP(host)
	if err != nil {
		return fmt.Errorf("backend: endpoint host did not resolve: %w", err)
	}
	for _, ip := range ips {
		for _, blocked := range blockedCIDRs {
			if blocked.Contains(ip) {
				return fmt.Errorf("backend: endpoint resolves into blocked range %s", blocked.String())
			}
		}
	}
	return nil
}
