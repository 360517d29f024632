package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/streamhosts/pkg/host"
	"github.com/streamhosts/pkg/logging"
)

// Add sources
const (
	SourceManual    = "manual"
	SourceDiscovery = "discovery"
)

// Collector Prometheus metrics collector for the host table
type Collector struct {
	GetHosts        func() []host.Info
	GetPendingCount func() int

	// Info metric (always 1)
	clientInfo *prometheus.Desc

	// Host table
	hostsTotal  *prometheus.Desc
	hostsOnline *prometheus.Desc
	hostUp      *prometheus.Desc
	pending     *prometheus.Desc

	// Operations
	addAttemptsTotal   *prometheus.Desc
	addFailuresTotal   *prometheus.Desc
	wakeAttemptsTotal  *prometheus.Desc
	wakeSuccessTotal   *prometheus.Desc
	notificationsTotal *prometheus.Desc
	storeErrorsTotal   *prometheus.Desc

	// Counters (protected by mutex)
	metricsLock   sync.RWMutex
	addAttempts   map[string]float64
	addFailures   map[string]float64
	wakeAttempts  map[string]float64
	wakeSuccess   map[string]float64
	notifications float64
	storeErrors   float64
}

// NewCollector creates a collector reading live state through the given callbacks
func NewCollector(getHosts func() []host.Info, getPendingCount func() int) *Collector {
	return &Collector{
		GetHosts:        getHosts,
		GetPendingCount: getPendingCount,
		clientInfo: prometheus.NewDesc(
			"streamhosts_client_info",
			"Host manager process info metric (always 1)",
			[]string{"client"},
			nil,
		),
		hostsTotal: prometheus.NewDesc(
			"streamhosts_hosts_total",
			"Number of hosts in the host table",
			[]string{"client"},
			nil,
		),
		hostsOnline: prometheus.NewDesc(
			"streamhosts_hosts_online",
			"Number of hosts last observed online",
			[]string{"client"},
			nil,
		),
		hostUp: prometheus.NewDesc(
			"streamhosts_host_up",
			"Host reachability by id (1=online, 0=offline or unknown)",
			[]string{"host_id", "host_name", "client"},
			nil,
		),
		pending: prometheus.NewDesc(
			"streamhosts_pending_resolutions",
			"Discovered services still waiting for an address",
			[]string{"client"},
			nil,
		),
		addAttemptsTotal: prometheus.NewDesc(
			"streamhosts_add_attempts_total",
			"Total add-or-update attempts by source (manual, discovery)",
			[]string{"source", "client"},
			nil,
		),
		addFailuresTotal: prometheus.NewDesc(
			"streamhosts_add_failures_total",
			"Total add-or-update attempts whose status query failed, by source",
			[]string{"source", "client"},
			nil,
		),
		wakeAttemptsTotal: prometheus.NewDesc(
			"streamhosts_wake_attempts_total",
			"Total wake requests by host id",
			[]string{"host_id", "client"},
			nil,
		),
		wakeSuccessTotal: prometheus.NewDesc(
			"streamhosts_wake_success_total",
			"Total wake requests that sent at least one packet, by host id",
			[]string{"host_id", "client"},
			nil,
		),
		notificationsTotal: prometheus.NewDesc(
			"streamhosts_notifications_total",
			"Total host state change notifications delivered",
			[]string{"client"},
			nil,
		),
		storeErrorsTotal: prometheus.NewDesc(
			"streamhosts_store_errors_total",
			"Total failed host list loads and saves",
			[]string{"client"},
			nil,
		),
		addAttempts:  make(map[string]float64),
		addFailures:  make(map[string]float64),
		wakeAttempts: make(map[string]float64),
		wakeSuccess:  make(map[string]float64),
	}
}

// RecordAdd records one add-or-update attempt. A nil collector ignores it.
func (c *Collector) RecordAdd(source string, ok bool) {
	if c == nil {
		return
	}
	c.metricsLock.Lock()
	defer c.metricsLock.Unlock()
	c.addAttempts[source]++
	if !ok {
		c.addFailures[source]++
	}
}

// RecordWake records a wake request
func (c *Collector) RecordWake(hostID string, ok bool) {
	if c == nil {
		return
	}
	c.metricsLock.Lock()
	defer c.metricsLock.Unlock()
	c.wakeAttempts[hostID]++
	if ok {
		c.wakeSuccess[hostID]++
	}
}

func (c *Collector) RecordNotification() {
	if c == nil {
		return
	}
	c.metricsLock.Lock()
	defer c.metricsLock.Unlock()
	c.notifications++
}

func (c *Collector) RecordStoreError() {
	if c == nil {
		return
	}
	c.metricsLock.Lock()
	defer c.metricsLock.Unlock()
	c.storeErrors++
}

// ForgetHost drops per-host series of a deleted host
func (c *Collector) ForgetHost(hostID string) {
	if c == nil {
		return
	}
	c.metricsLock.Lock()
	defer c.metricsLock.Unlock()
	delete(c.wakeAttempts, hostID)
	delete(c.wakeSuccess, hostID)
}

// Describe implements prometheus.Collector interface
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.clientInfo
	ch <- c.hostsTotal
	ch <- c.hostsOnline
	ch <- c.hostUp
	ch <- c.pending
	ch <- c.addAttemptsTotal
	ch <- c.addFailuresTotal
	ch <- c.wakeAttemptsTotal
	ch <- c.wakeSuccessTotal
	ch <- c.notificationsTotal
	ch <- c.storeErrorsTotal
}

// Collect implements prometheus.Collector interface
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	client := logging.GetClientID()

	ch <- prometheus.MustNewConstMetric(c.clientInfo, prometheus.GaugeValue, 1, client)

	var hosts []host.Info
	if c.GetHosts != nil {
		hosts = c.GetHosts()
	}
	online := 0
	for _, h := range hosts {
		v := 0.0
		if h.State == host.StateOnline {
			online++
			v = 1.0
		}
		ch <- prometheus.MustNewConstMetric(c.hostUp, prometheus.GaugeValue, v, h.ID, h.Name, client)
	}
	ch <- prometheus.MustNewConstMetric(c.hostsTotal, prometheus.GaugeValue, float64(len(hosts)), client)
	ch <- prometheus.MustNewConstMetric(c.hostsOnline, prometheus.GaugeValue, float64(online), client)

	pending := 0
	if c.GetPendingCount != nil {
		pending = c.GetPendingCount()
	}
	ch <- prometheus.MustNewConstMetric(c.pending, prometheus.GaugeValue, float64(pending), client)

	c.metricsLock.RLock()
	defer c.metricsLock.RUnlock()

	for source, value := range c.addAttempts {
		ch <- prometheus.MustNewConstMetric(c.addAttemptsTotal, prometheus.CounterValue, value, source, client)
	}
	for source, value := range c.addFailures {
		ch <- prometheus.MustNewConstMetric(c.addFailuresTotal, prometheus.CounterValue, value, source, client)
	}
	for id, value := range c.wakeAttempts {
		ch <- prometheus.MustNewConstMetric(c.wakeAttemptsTotal, prometheus.CounterValue, value, id, client)
	}
	for id, value := range c.wakeSuccess {
		ch <- prometheus.MustNewConstMetric(c.wakeSuccessTotal, prometheus.CounterValue, value, id, client)
	}
	ch <- prometheus.MustNewConstMetric(c.notificationsTotal, prometheus.CounterValue, c.notifications, client)
	ch <- prometheus.MustNewConstMetric(c.storeErrorsTotal, prometheus.CounterValue, c.storeErrors, client)
}
