package protocol

import (
	"net"
	"strconv"
	"strings"
)

func isPortNumber(s string) bool {
	port, err := strconv.Atoi(s)
	return err == nil && port > 0 && port < 65536
}

// NormalizeAddress returns address in "host:port" form.
// - "host" or "1.2.3.4" gets defaultPort appended.
// - "host:port" and "[v6]:port" are kept.
// - a bare IPv6 literal (with or without brackets) gets bracketed and defaultPort appended.
// An empty address stays empty.
func NormalizeAddress(address string, defaultPort int) string {
	address = strings.TrimSpace(address)
	if address == "" {
		return ""
	}
	port := strconv.Itoa(defaultPort)

	if host, p, err := net.SplitHostPort(address); err == nil {
		if host == "" {
			return ""
		}
		if !isPortNumber(p) {
			p = port
		}
		return net.JoinHostPort(host, p)
	}

	// "[::1]" without a port
	trimmed := strings.TrimSuffix(strings.TrimPrefix(address, "["), "]")
	return net.JoinHostPort(trimmed, port)
}

// HostOnly strips a port from address, if present
func HostOnly(address string) string {
	address = strings.TrimSpace(address)
	if host, _, err := net.SplitHostPort(address); err == nil {
		return host
	}
	return strings.TrimSuffix(strings.TrimPrefix(address, "["), "]")
}
