package web

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/streamhosts/pkg/host"
	"github.com/streamhosts/pkg/hostmgr"
	"github.com/streamhosts/pkg/store"
)

type fakeController struct {
	mu        sync.Mutex
	hosts     map[string]*host.Host
	reachable map[string]string // address -> id
	wakeOK    bool
	listener  hostmgr.HostListener
}

func newFakeController() *fakeController {
	return &fakeController{
		hosts:     make(map[string]*host.Host),
		reachable: make(map[string]string),
	}
}

func (c *fakeController) GetHosts() []*host.Host {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*host.Host, 0, len(c.hosts))
	for _, h := range c.hosts {
		out = append(out, h)
	}
	return out
}

func (c *fakeController) Host(id string) (*host.Host, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	h, ok := c.hosts[id]
	return h, ok
}

func (c *fakeController) AddHost(ctx context.Context, address string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	id, ok := c.reachable[address]
	if !ok {
		return false
	}
	c.hosts[id] = host.NewFromEntry(store.HostEntry{ID: id, Name: id, ManualAddress: address})
	return true
}

func (c *fakeController) DeleteHost(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.hosts[id]; !ok {
		return false
	}
	delete(c.hosts, id)
	return true
}

func (c *fakeController) Wake(ctx context.Context, id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.wakeOK
}

func (c *fakeController) Subscribe(l hostmgr.HostListener) func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listener = l
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		c.listener = nil
	}
}

func (c *fakeController) notify(h *host.Host) {
	c.mu.Lock()
	l := c.listener
	c.mu.Unlock()
	if l != nil {
		l.HostChanged(h)
	}
}

func newTestServer(t *testing.T, ctrl *fakeController, opts Options) *httptest.Server {
	t.Helper()
	s := NewServer(ctrl, prometheus.NewRegistry(), opts)
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(func() {
		s.Close()
		srv.Close()
	})
	return srv
}

func do(t *testing.T, method, url, body string) (int, string) {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(data)
}

func TestHostsAPI(t *testing.T) {
	ctrl := newFakeController()
	ctrl.reachable["192.0.2.10"] = "X"
	srv := newTestServer(t, ctrl, Options{})

	code, body := do(t, http.MethodGet, srv.URL+"/api/hosts", "")
	assert.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `[]`, body)

	code, _ = do(t, http.MethodPost, srv.URL+"/api/hosts", `{"address":"192.0.2.99"}`)
	assert.Equal(t, http.StatusBadGateway, code)

	code, _ = do(t, http.MethodPost, srv.URL+"/api/hosts", `{"address":" "}`)
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = do(t, http.MethodPost, srv.URL+"/api/hosts", `not json`)
	assert.Equal(t, http.StatusBadRequest, code)

	code, body = do(t, http.MethodPost, srv.URL+"/api/hosts", `{"address":"192.0.2.10"}`)
	assert.Equal(t, http.StatusCreated, code)
	var list []host.Info
	require.NoError(t, json.Unmarshal([]byte(body), &list))
	require.Len(t, list, 1)
	assert.Equal(t, "X", list[0].ID)
	assert.Equal(t, "192.0.2.10", list[0].ManualAddress)
	assert.Equal(t, "unknown", list[0].Status)

	code, body = do(t, http.MethodGet, srv.URL+"/api/hosts/X", "")
	assert.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, `"id":"X"`)

	code, _ = do(t, http.MethodGet, srv.URL+"/api/hosts/nope", "")
	assert.Equal(t, http.StatusNotFound, code)

	code, _ = do(t, http.MethodDelete, srv.URL+"/api/hosts/X", "")
	assert.Equal(t, http.StatusNoContent, code)
	code, _ = do(t, http.MethodDelete, srv.URL+"/api/hosts/X", "")
	assert.Equal(t, http.StatusNotFound, code)
}

func TestWakeAPI(t *testing.T) {
	ctrl := newFakeController()
	ctrl.reachable["192.0.2.10"] = "X"
	srv := newTestServer(t, ctrl, Options{WakeRate: 0.001, WakeBurst: 2})

	code, _ := do(t, http.MethodPost, srv.URL+"/api/hosts/X/wake", "")
	assert.Equal(t, http.StatusNotFound, code)

	require.True(t, ctrl.AddHost(context.Background(), "192.0.2.10"))
	code, _ = do(t, http.MethodPost, srv.URL+"/api/hosts/X/wake", "")
	assert.Equal(t, http.StatusBadGateway, code)

	ctrl.mu.Lock()
	ctrl.wakeOK = true
	ctrl.mu.Unlock()
	code, body := do(t, http.MethodPost, srv.URL+"/api/hosts/X/wake", "")
	assert.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `{"sent":true}`, body)

	code, _ = do(t, http.MethodPost, srv.URL+"/api/hosts/X/wake", "")
	assert.Equal(t, http.StatusTooManyRequests, code)
}

func TestHealthIndexAndMetrics(t *testing.T) {
	srv := newTestServer(t, newFakeController(), Options{TelemetryPath: "/metrics"})

	code, body := do(t, http.MethodGet, srv.URL+"/healthz", "")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", body)

	code, body = do(t, http.MethodGet, srv.URL+"/", "")
	assert.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, `href="/metrics"`)

	code, _ = do(t, http.MethodGet, srv.URL+"/metrics", "")
	assert.Equal(t, http.StatusOK, code)

	code, _ = do(t, http.MethodGet, srv.URL+"/nothing-here", "")
	assert.Equal(t, http.StatusNotFound, code)
}

func TestEventsFeed(t *testing.T) {
	ctrl := newFakeController()
	s := NewServer(ctrl, prometheus.NewRegistry(), Options{})
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()
	defer s.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/events"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return s.events.count() == 1 }, 2*time.Second, time.Millisecond)

	h := host.NewFromEntry(store.HostEntry{ID: "X", Name: "Den-PC", ManualAddress: "192.0.2.10"})
	h.MarkOffline()
	ctrl.notify(h)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var ev Event
	require.NoError(t, conn.ReadJSON(&ev))
	assert.Equal(t, "host_changed", ev.Type)
	assert.Equal(t, "X", ev.Host.ID)
	assert.Equal(t, "offline", ev.Host.Status)
}
