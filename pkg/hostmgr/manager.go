// Package hostmgr owns the table of known hosts and keeps it current from
// manual additions, mDNS discovery and per-host polling workers.
//
// Locking: Manager.mu is always taken before a host's own lock, never after.
package hostmgr

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/streamhosts/pkg/discovery"
	"github.com/streamhosts/pkg/host"
	"github.com/streamhosts/pkg/logging"
	"github.com/streamhosts/pkg/metrics"
	"github.com/streamhosts/pkg/poller"
	"github.com/streamhosts/pkg/protocol"
	"github.com/streamhosts/pkg/store"
)

// HostListener is told about every host whose state changed.
// Listeners run on the manager's dispatch goroutine and must not call
// AddHost or DeleteHost synchronously.
type HostListener interface {
	HostChanged(h *host.Host)
}

// HostListenerFunc adapts a function to HostListener
type HostListenerFunc func(h *host.Host)

func (f HostListenerFunc) HostChanged(h *host.Host) { f(h) }

// Options configures a Manager. Querier is required.
type Options struct {
	Querier protocol.Querier
	// Store defaults to an in-memory store
	Store store.Store
	// Browser enables discovery while polling. Nil disables it.
	Browser      discovery.Browser
	Resolver     discovery.Resolver
	ResolveRetry time.Duration
	Poll         poller.Config
	// PollingDisabled keeps StartPolling from starting workers and discovery
	PollingDisabled bool
	Waker           *host.Waker
}

// Manager is the host table
type Manager struct {
	opts Options

	mu           sync.RWMutex
	hosts        map[string]*host.Host
	workers      map[string]*poller.Worker
	pending      []*discovery.PendingHost
	polling      bool
	browseCancel context.CancelFunc

	listenersLock sync.RWMutex
	listeners     map[uint64]HostListener
	nextListener  uint64

	events         chan event
	closed         chan struct{}
	closeOnce      sync.Once
	dispatcherDone chan struct{}

	// ctx bounds background add attempts; cancelled by Close
	ctx    context.Context
	cancel context.CancelFunc

	saveMu sync.Mutex

	registry  *prometheus.Registry
	collector *metrics.Collector
}

// NewManager loads the persisted hosts and starts the dispatcher. Polling is not started.
func NewManager(opts Options) (*Manager, error) {
	if opts.Querier == nil {
		return nil, errors.New("hostmgr: querier is required")
	}
	if opts.Store == nil {
		opts.Store = store.NewMemoryStore()
	}
	if opts.Waker == nil {
		opts.Waker = host.DefaultWaker
	}

	entries, err := opts.Store.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load hosts: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		opts:           opts,
		hosts:          make(map[string]*host.Host),
		workers:        make(map[string]*poller.Worker),
		listeners:      make(map[uint64]HostListener),
		events:         make(chan event, 64),
		closed:         make(chan struct{}),
		dispatcherDone: make(chan struct{}),
		ctx:            ctx,
		cancel:         cancel,
		registry:       prometheus.NewRegistry(),
	}

	for _, e := range entries {
		if e.ID == "" {
			logging.Warnf("[hostmgr] skipping stored host without uuid name=%q", e.Name)
			continue
		}
		if e.LocalAddress == "" && e.RemoteAddress == "" && e.ManualAddress == "" {
			logging.Warnf("[hostmgr] skipping stored host without addresses id=%s name=%q", e.ID, e.Name)
			continue
		}
		if _, dup := m.hosts[e.ID]; dup {
			logging.Warnf("[hostmgr] skipping duplicate stored host id=%s", e.ID)
			continue
		}
		m.hosts[e.ID] = host.NewFromEntry(e)
	}
	logging.Logf("[hostmgr] loaded hosts=%d", len(m.hosts))

	// Collector with callbacks that use this manager instance
	m.collector = metrics.NewCollector(m.snapshots, m.pendingCount)
	m.registry.MustRegister(m.collector)
	m.registry.MustRegister(poller.NewMetricsCollector())

	go m.dispatch()
	m.logHostsTable()
	return m, nil
}

// Registry holds the manager's metrics
func (m *Manager) Registry() *prometheus.Registry {
	return m.registry
}

// Subscribe registers l and returns a function that removes it.
func (m *Manager) Subscribe(l HostListener) func() {
	m.listenersLock.Lock()
	id := m.nextListener
	m.nextListener++
	m.listeners[id] = l
	m.listenersLock.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			m.listenersLock.Lock()
			delete(m.listeners, id)
			m.listenersLock.Unlock()
		})
	}
}

// GetHosts returns the known hosts sorted by name, then id.
func (m *Manager) GetHosts() []*host.Host {
	m.mu.RLock()
	defer m.mu.RUnlock()

	type named struct {
		name string
		h    *host.Host
	}
	list := make([]named, 0, len(m.hosts))
	for _, h := range m.hosts {
		list = append(list, named{name: h.Name(), h: h})
	}
	sort.Slice(list, func(i, j int) bool {
		if list[i].name != list[j].name {
			return list[i].name < list[j].name
		}
		return list[i].h.ID() < list[j].h.ID()
	})

	out := make([]*host.Host, len(list))
	for i, n := range list {
		out[i] = n.h
	}
	return out
}

// Host looks up a host by id
func (m *Manager) Host(id string) (*host.Host, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	h, ok := m.hosts[id]
	return h, ok
}

// Wake sends wake packets to a known host. False if the id is unknown or nothing was sent.
func (m *Manager) Wake(ctx context.Context, id string) bool {
	h, ok := m.Host(id)
	if !ok {
		return false
	}
	sent := m.opts.Waker.Wake(ctx, h)
	m.collector.RecordWake(id, sent)
	return sent
}

// Close stops polling and the dispatcher. Workers still exiting finish on their own.
func (m *Manager) Close() {
	m.StopPollingAsync()
	m.closeOnce.Do(func() {
		m.cancel()
		close(m.closed)
	})
	<-m.dispatcherDone
}

func (m *Manager) snapshots() []host.Info {
	hosts := m.GetHosts()
	out := make([]host.Info, len(hosts))
	for i, h := range hosts {
		out[i] = h.Snapshot()
	}
	return out
}

func (m *Manager) pendingCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.pending)
}
