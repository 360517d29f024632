package hostmgr

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/streamhosts/pkg/host"
	"github.com/streamhosts/pkg/logging"
	"github.com/streamhosts/pkg/metrics"
	"github.com/streamhosts/pkg/store"
)

// AddHost queries address and adds the server to the table, or merges into the
// existing record with the same id. The address is recorded as the manual address.
// Returns false if the server could not be queried.
func (m *Manager) AddHost(ctx context.Context, address string) bool {
	return m.addHost(ctx, address, false)
}

func (m *Manager) addHost(ctx context.Context, address string, discovered bool) bool {
	source := metrics.SourceManual
	if discovered {
		source = metrics.SourceDiscovery
	}

	info, err := m.opts.Querier.ServerInfo(ctx, address)
	if err != nil {
		logging.Logf("[hostmgr] add addr=%s source=%s failed: %v", address, source, err)
		m.collector.RecordAdd(source, false)
		return false
	}
	m.collector.RecordAdd(source, true)

	observed := host.NewFromServerInfo(address, info)
	if discovered {
		observed.SetLocalAddress(address)
	} else {
		observed.SetManualAddress(address)
	}
	if apps, err := m.opts.Querier.AppList(ctx, address); err != nil {
		logging.Debugf("[hostmgr] app list addr=%s failed: %v", address, err)
	} else {
		observed.SetApps(host.AppsFromInfo(apps))
	}

	m.mu.Lock()
	target, exists := m.hosts[observed.ID()]
	changed := true
	if exists {
		changed = target.Update(observed)
	} else {
		target = observed
		m.hosts[observed.ID()] = observed
		m.startPollingWorker(observed)
	}
	m.mu.Unlock()

	logging.Logf("[hostmgr] added id=%s name=%q addr=%s source=%s new=%t changed=%t",
		target.ID(), target.Name(), address, source, !exists, changed)

	if changed {
		m.post(context.Background(), event{host: target})
		m.fence()
	}
	return true
}

// DeleteHost removes a host and waits for its polling worker to exit.
// No notification about the host is delivered after it returns.
func (m *Manager) DeleteHost(id string) bool {
	m.mu.Lock()
	if _, ok := m.hosts[id]; !ok {
		m.mu.Unlock()
		return false
	}
	if w, ok := m.workers[id]; ok {
		w.RequestStop()
		w.Wait()
		delete(m.workers, id)
	}
	delete(m.hosts, id)
	m.mu.Unlock()

	m.fence()
	m.collector.ForgetHost(id)
	m.saveHosts()
	logging.Logf("[hostmgr] deleted id=%s", id)
	return true
}

// saveHosts writes every host over its previously stored entry, so fields the
// live record does not know (an app list) survive.
func (m *Manager) saveHosts() {
	m.saveMu.Lock()
	defer m.saveMu.Unlock()

	prev, err := m.opts.Store.Load()
	if err != nil {
		logging.Warnf("[hostmgr] load before save failed: %v", err)
		m.collector.RecordStoreError()
		prev = nil
	}
	byID := make(map[string]store.HostEntry, len(prev))
	for _, e := range prev {
		byID[e.ID] = e
	}

	m.mu.RLock()
	ids := make([]string, 0, len(m.hosts))
	for id := range m.hosts {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	entries := make([]store.HostEntry, 0, len(ids))
	for _, id := range ids {
		e := byID[id]
		m.hosts[id].Serialize(&e)
		entries = append(entries, e)
	}
	m.mu.RUnlock()

	if err := m.opts.Store.Save(entries); err != nil {
		logging.Errorf("[hostmgr] save hosts=%d failed: %v", len(entries), err)
		m.collector.RecordStoreError()
		return
	}
	logging.Debugf("[hostmgr] saved hosts=%d", len(entries))
}

// hostsTableLines returns a stable one-line summary of the table.
func (m *Manager) hostsTableLines() []string {
	infos := m.snapshots()
	if len(infos) == 0 {
		return []string{"hosts=[]"}
	}
	items := make([]string, 0, len(infos))
	for _, info := range infos {
		items = append(items, fmt.Sprintf("%s@%s(%s)", info.Name, info.ID, info.Status))
	}
	return []string{fmt.Sprintf("hosts=[%s]", strings.Join(items, ","))}
}

// logHostsTable prints the table in debug mode only.
func (m *Manager) logHostsTable() {
	if !logging.IsDebug() {
		return
	}
	logging.Debugf("[hostmgr] client=%s %s", logging.GetClientID(), strings.Join(m.hostsTableLines(), ""))
}
