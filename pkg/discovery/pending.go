package discovery

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/streamhosts/pkg/logging"
)

const defaultRetryInterval = 2 * time.Second

// PendingHost resolves the IPv4 address of a discovered service in the background.
// onResolved is called at most once, and never after Cancel.
type PendingHost struct {
	svc        Service
	resolver   Resolver
	retry      time.Duration
	onResolved func(p *PendingHost, address string)

	ctx    context.Context
	cancel context.CancelFunc
	once   sync.Once
	done   chan struct{}
}

// NewPendingHost prepares a resolution. Nothing happens until Start.
func NewPendingHost(svc Service, resolver Resolver, retry time.Duration, onResolved func(*PendingHost, string)) *PendingHost {
	if resolver == nil {
		resolver = net.DefaultResolver
	}
	if retry <= 0 {
		retry = defaultRetryInterval
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &PendingHost{
		svc:        svc,
		resolver:   resolver,
		retry:      retry,
		onResolved: onResolved,
		ctx:        ctx,
		cancel:     cancel,
		done:       make(chan struct{}),
	}
}

// HostName returns the advertised host name
func (p *PendingHost) HostName() string {
	return p.svc.HostName
}

func (p *PendingHost) Service() Service {
	return p.svc
}

// Start launches the resolution goroutine. Further calls do nothing.
func (p *PendingHost) Start() {
	p.once.Do(func() {
		go p.run()
	})
}

// Cancel stops the resolution without waiting for it
func (p *PendingHost) Cancel() {
	p.cancel()
}

// Done is closed when the resolution goroutine exits
func (p *PendingHost) Done() <-chan struct{} {
	return p.done
}

func (p *PendingHost) run() {
	defer close(p.done)

	for attempt := 1; ; attempt++ {
		addr, err := p.resolve()
		if err == nil {
			if p.ctx.Err() != nil {
				return
			}
			logging.Debugf("[discovery] resolved host=%s addr=%s attempts=%d", p.svc.HostName, addr, attempt)
			p.onResolved(p, addr)
			return
		}
		logging.Debugf("[discovery] resolve host=%s attempt=%d failed: %v", p.svc.HostName, attempt, err)

		t := time.NewTimer(p.retry)
		select {
		case <-p.ctx.Done():
			t.Stop()
			return
		case <-t.C:
		}
	}
}

func (p *PendingHost) resolve() (string, error) {
	for _, ip := range p.svc.AddrIPv4 {
		if v4 := ip.To4(); v4 != nil {
			return v4.String(), nil
		}
	}
	if p.svc.HostName == "" {
		return "", ErrNoAddress
	}

	ips, err := p.resolver.LookupIP(p.ctx, "ip4", p.svc.HostName)
	if err != nil {
		return "", err
	}
	for _, ip := range ips {
		if v4 := ip.To4(); v4 != nil {
			return v4.String(), nil
		}
	}
	return "", ErrNoAddress
}
