// Package discovery finds streaming servers advertised over mDNS.
package discovery

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/grandcat/zeroconf"

	"github.com/streamhosts/pkg/logging"
)

const (
	DefaultServiceType = "_nvstream._tcp"
	DefaultDomain      = "local."
)

var (
	// ErrNoAddress is returned when a service has no usable IPv4 address yet
	ErrNoAddress = errors.New("discovery: no ipv4 address")
)

// Service is one advertised server instance.
type Service struct {
	Instance string
	HostName string
	Port     int
	AddrIPv4 []net.IP
}

// Browser reports advertised services until ctx ends.
type Browser interface {
	Browse(ctx context.Context, found func(Service)) error
}

// Resolver looks up host names. *net.Resolver satisfies it.
type Resolver interface {
	LookupIP(ctx context.Context, network, host string) ([]net.IP, error)
}

// ZeroconfBrowser browses with grandcat/zeroconf.
type ZeroconfBrowser struct {
	serviceType string
	domain      string
}

func NewZeroconfBrowser(serviceType, domain string) *ZeroconfBrowser {
	if serviceType == "" {
		serviceType = DefaultServiceType
	}
	if domain == "" {
		domain = DefaultDomain
	}
	return &ZeroconfBrowser{serviceType: serviceType, domain: domain}
}

// Browse blocks until ctx is cancelled. Each instance is reported once per call.
func (b *ZeroconfBrowser) Browse(ctx context.Context, found func(Service)) error {
	resolver, err := zeroconf.NewResolver()
	if err != nil {
		return fmt.Errorf("failed to create mdns resolver: %w", err)
	}

	entries := make(chan *zeroconf.ServiceEntry, 16)
	if err := resolver.Browse(ctx, b.serviceType, b.domain, entries); err != nil {
		return fmt.Errorf("failed to browse %s.%s: %w", b.serviceType, b.domain, err)
	}
	logging.Logf("[discovery] browsing service=%s domain=%s", b.serviceType, b.domain)

	seen := make(map[string]bool)
	for {
		select {
		case <-ctx.Done():
			return nil
		case entry, ok := <-entries:
			if !ok {
				return nil
			}
			if entry == nil || seen[entry.Instance] {
				continue
			}
			seen[entry.Instance] = true
			svc := serviceFromEntry(entry)
			logging.Debugf("[discovery] found instance=%q host=%s port=%d", svc.Instance, svc.HostName, svc.Port)
			found(svc)
		}
	}
}

func serviceFromEntry(e *zeroconf.ServiceEntry) Service {
	return Service{
		Instance: e.Instance,
		HostName: strings.TrimSuffix(e.HostName, "."),
		Port:     e.Port,
		AddrIPv4: append([]net.IP(nil), e.AddrIPv4...),
	}
}
