package hostmgr

import (
	"context"
	"fmt"

	"github.com/streamhosts/pkg/discovery"
	"github.com/streamhosts/pkg/host"
	"github.com/streamhosts/pkg/logging"
	"github.com/streamhosts/pkg/poller"
)

// StartPolling starts discovery and a worker for every known host. Calling it
// while already polling does nothing.
func (m *Manager) StartPolling() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.opts.PollingDisabled {
		logging.Logf("[hostmgr] polling disabled by configuration")
		return
	}
	if m.polling {
		return
	}
	m.polling = true

	if m.opts.Browser != nil {
		ctx, cancel := context.WithCancel(m.ctx)
		m.browseCancel = cancel
		go m.browse(ctx)
	}
	for _, h := range m.hosts {
		m.startPollingWorker(h)
	}
	logging.Logf("[hostmgr] polling started hosts=%d discovery=%t", len(m.hosts), m.opts.Browser != nil)
}

// StopPollingAsync stops discovery and asks every worker to stop without
// waiting for any of them. The worker registry is empty when it returns.
func (m *Manager) StopPollingAsync() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.browseCancel != nil {
		m.browseCancel()
		m.browseCancel = nil
	}
	for _, p := range m.pending {
		p.Cancel()
	}
	m.pending = nil

	stopped := len(m.workers)
	for id, w := range m.workers {
		w.RequestStop()
		delete(m.workers, id)
	}
	if m.polling {
		logging.Logf("[hostmgr] polling stopped workers=%d", stopped)
	}
	m.polling = false
}

// startPollingWorker must be called with m.mu held for writing.
func (m *Manager) startPollingWorker(h *host.Host) {
	if !m.polling {
		return
	}
	if w, ok := m.workers[h.ID()]; ok {
		if !w.Running() {
			panic(fmt.Sprintf("hostmgr: registered worker for %q is not running", h.ID()))
		}
		return
	}

	w := poller.New(h, m.opts.Querier, m.opts.Poll, m.handlePollResult)
	w.Start()
	m.workers[h.ID()] = w
}

// handlePollResult runs on a worker goroutine. It takes the host lock only.
func (m *Manager) handlePollResult(ctx context.Context, bound, observed *host.Host) {
	var changed bool
	if observed == nil {
		changed = bound.MarkOffline()
	} else {
		changed = bound.Update(observed)
	}
	if changed {
		m.post(ctx, event{host: bound})
	}
}

func (m *Manager) browse(ctx context.Context) {
	err := m.opts.Browser.Browse(ctx, func(svc discovery.Service) {
		m.serviceFound(ctx, svc)
	})
	if err != nil && ctx.Err() == nil {
		logging.Warnf("[discovery] browse failed: %v", err)
	}
}

func (m *Manager) serviceFound(ctx context.Context, svc discovery.Service) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.polling || ctx.Err() != nil {
		return
	}
	p := discovery.NewPendingHost(svc, m.opts.Resolver, m.opts.ResolveRetry, m.pendingResolved)
	m.pending = append(m.pending, p)
	p.Start()
	logging.Debugf("[discovery] resolving instance=%q host=%s pending=%d", svc.Instance, svc.HostName, len(m.pending))
}

func (m *Manager) pendingResolved(p *discovery.PendingHost, address string) {
	m.mu.Lock()
	idx := -1
	for i, candidate := range m.pending {
		if candidate == p {
			idx = i
			break
		}
	}
	if idx < 0 {
		// Cancelled while resolving
		m.mu.Unlock()
		return
	}
	m.pending = append(m.pending[:idx], m.pending[idx+1:]...)
	m.mu.Unlock()

	if !m.addHost(m.ctx, address, true) {
		logging.Logf("[discovery] host=%s addr=%s did not answer", p.HostName(), address)
	}
}
