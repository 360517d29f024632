package poller

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/streamhosts/pkg/host"
	"github.com/streamhosts/pkg/protocol"
	"github.com/streamhosts/pkg/store"
)

type fakeQuerier struct {
	mu       sync.Mutex
	infos    map[string]*protocol.ServerInfo
	apps     []protocol.AppInfo
	asked    []string
	appCalls int
}

func (q *fakeQuerier) ServerInfo(ctx context.Context, address string) (*protocol.ServerInfo, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.asked = append(q.asked, address)
	if info, ok := q.infos[address]; ok {
		copied := *info
		return &copied, nil
	}
	return nil, errors.New("connection refused")
}

func (q *fakeQuerier) AppList(ctx context.Context, address string) ([]protocol.AppInfo, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.appCalls++
	return q.apps, nil
}

func (q *fakeQuerier) askedAddresses() []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]string(nil), q.asked...)
}

type report struct {
	bound, observed *host.Host
}

func collect() (ReportFunc, <-chan report) {
	ch := make(chan report, 16)
	return func(ctx context.Context, bound, observed *host.Host) {
		select {
		case ch <- report{bound, observed}:
		case <-ctx.Done():
		}
	}, ch
}

func next(t *testing.T, ch <-chan report) report {
	t.Helper()
	select {
	case r := <-ch:
		return r
	case <-time.After(2 * time.Second):
		t.Fatal("no report from worker")
		return report{}
	}
}

func boundHost(local, manual string) *host.Host {
	return host.NewFromEntry(store.HostEntry{ID: "X", Name: "Den-PC", LocalAddress: local, ManualAddress: manual})
}

func TestWorkerReportsFirstAnsweringAddress(t *testing.T) {
	q := &fakeQuerier{
		infos: map[string]*protocol.ServerInfo{
			"192.0.2.20": {UniqueID: "X", Hostname: "Den-PC", State: "SUNSHINE_SERVER_FREE"},
		},
		apps: []protocol.AppInfo{{Title: "Game A", ID: 1}},
	}
	fn, ch := collect()
	h := boundHost("192.0.2.10", "192.0.2.20")
	w := New(h, q, Config{Interval: time.Hour}, fn)
	w.Start()
	defer func() { w.RequestStop(); w.Wait() }()

	r := next(t, ch)
	assert.Same(t, h, r.bound)
	require.NotNil(t, r.observed)
	snap := r.observed.Snapshot()
	assert.Equal(t, "192.0.2.20", snap.ActiveAddress)
	assert.Equal(t, host.StateOnline, snap.State)
	assert.Equal(t, []host.App{{Name: "Game A", ID: 1}}, snap.Apps)
	assert.Equal(t, []string{"192.0.2.10", "192.0.2.20"}, q.askedAddresses())
}

func TestWorkerReportsOfflineAfterRepeatedFailures(t *testing.T) {
	q := &fakeQuerier{}
	fn, ch := collect()
	w := New(boundHost("192.0.2.10", ""), q, Config{Interval: 5 * time.Millisecond, FailuresBeforeOffline: 2}, fn)
	w.Start()
	defer func() { w.RequestStop(); w.Wait() }()

	r := next(t, ch)
	assert.Nil(t, r.observed)
	assert.GreaterOrEqual(t, len(q.askedAddresses()), 2)
}

func TestWorkerSkipsForeignHost(t *testing.T) {
	q := &fakeQuerier{infos: map[string]*protocol.ServerInfo{
		"192.0.2.10": {UniqueID: "OTHER", Hostname: "Office"},
	}}
	fn, ch := collect()
	w := New(boundHost("192.0.2.10", ""), q, Config{Interval: 5 * time.Millisecond, FailuresBeforeOffline: 1}, fn)
	w.Start()
	defer func() { w.RequestStop(); w.Wait() }()

	assert.Nil(t, next(t, ch).observed)
}

func TestWorkerSkipsAppListWhenFresh(t *testing.T) {
	q := &fakeQuerier{infos: map[string]*protocol.ServerInfo{"192.0.2.10": {UniqueID: "X"}}}
	fn, ch := collect()
	h := boundHost("192.0.2.10", "")
	h.SetApps([]host.App{{Name: "Game A", ID: 1}})
	w := New(h, q, Config{Interval: 5 * time.Millisecond, AppListInterval: time.Hour}, fn)
	w.Start()
	defer func() { w.RequestStop(); w.Wait() }()

	next(t, ch)
	next(t, ch)
	q.mu.Lock()
	defer q.mu.Unlock()
	assert.Equal(t, 1, q.appCalls, "first round always refreshes")
}

func TestWorkerLifecycle(t *testing.T) {
	NewMetricsCollector()
	w := New(boundHost("192.0.2.10", ""), &fakeQuerier{}, Config{Interval: time.Hour}, func(context.Context, *host.Host, *host.Host) {})
	assert.False(t, w.Running())

	w.Start()
	w.Start()
	assert.True(t, w.Running())

	w.RequestStop()
	w.RequestStop()
	select {
	case <-w.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not exit")
	}
	w.Wait()
	assert.False(t, w.Running())

	pollerMetrics.mu.RLock()
	defer pollerMetrics.mu.RUnlock()
	assert.NotContains(t, pollerMetrics.active, "X")
}
