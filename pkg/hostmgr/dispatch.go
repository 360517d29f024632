package hostmgr

import (
	"context"

	"github.com/streamhosts/pkg/host"
)

// event is either a changed host or a fence to be released once
// everything posted before it has been handled.
type event struct {
	host  *host.Host
	fence chan struct{}
}

// post hands ev to the dispatcher. Gives up when ctx ends or the manager closes.
func (m *Manager) post(ctx context.Context, ev event) bool {
	select {
	case m.events <- ev:
		return true
	case <-ctx.Done():
		return false
	case <-m.closed:
		return false
	}
}

// fence returns once every event posted before it has been delivered.
func (m *Manager) fence() {
	ch := make(chan struct{})
	if !m.post(context.Background(), event{fence: ch}) {
		return
	}
	select {
	case <-ch:
	case <-m.closed:
	}
}

func (m *Manager) dispatch() {
	defer close(m.dispatcherDone)
	for {
		select {
		case <-m.closed:
			return
		case ev := <-m.events:
			if ev.fence != nil {
				close(ev.fence)
				continue
			}
			if !m.isCurrent(ev.host) {
				continue
			}
			m.notifyListeners(ev.host)
			m.saveHosts()
		}
	}
}

// isCurrent reports whether h is still the registered record for its id
func (m *Manager) isCurrent(h *host.Host) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.hosts[h.ID()] == h
}

func (m *Manager) notifyListeners(h *host.Host) {
	m.listenersLock.RLock()
	listeners := make([]HostListener, 0, len(m.listeners))
	for _, l := range m.listeners {
		listeners = append(listeners, l)
	}
	m.listenersLock.RUnlock()

	for _, l := range listeners {
		l.HostChanged(h)
	}
	m.collector.RecordNotification()
}
