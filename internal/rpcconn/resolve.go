package rpcconn

import (
	"fmt"
	"net"

	"golang.org/x/sys/unix"
)

// resolveIP resolves host to a raw address matching domain (AF_INET or
// AF_INET6). Resolution itself uses the stdlib resolver; only the
// subsequent socket/connect calls are done with raw non-blocking syscalls,
// since net.LookupIP has no non-blocking equivalent worth reimplementing.
func resolveIP(host string, domain int) ([]byte, error) {
	if ip := net.ParseIP(host); ip != nil {
		return normalizeIP(ip, domain)
	}
	ips, err := net.LookupIP(host)
	if err != nil {
		return nil, fmt.Errorf("resolve %q: %w", host, err)
	}
	for _, ip := range ips {
		if out, err := normalizeIP(ip, domain); err == nil {
			return out, nil
		}
	}
	return nil, fmt.Errorf("no address for %q matching requested family", host)
}

func normalizeIP(ip net.IP, domain int) ([]byte, error) {
	if domain == unix.AF_INET6 {
		v6 := ip.To16()
		if v6 == nil {
			return nil, fmt.Errorf("%s is not a valid IPv6 address", ip)
		}
		return v6, nil
	}
	v4 := ip.To4()
	if v4 == nil {
		return nil, fmt.Errorf("%s is not a valid IPv4 address", ip)
	}
	return v4, nil
}
