package poller

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/streamhosts/pkg/logging"
)

const (
	pollOnline      = "online"
	pollUnreachable = "unreachable"
)

// metricsCollector exports poller metrics.
// This is separate from the host table collector in pkg/metrics.
type metricsCollector struct {
	activeWorkers *prometheus.Desc
	workersTotal  *prometheus.Desc
	pollsTotal    *prometheus.Desc

	// state
	mu      sync.RWMutex
	active  map[string]float64            // host_id -> running workers
	started float64                       // all workers ever started
	polls   map[string]map[string]float64 // host_id -> result -> count
}

var (
	pollerMetricsOnce sync.Once
	pollerMetrics     *metricsCollector
)

// NewMetricsCollector returns a singleton prometheus.Collector for poller metrics.
func NewMetricsCollector() prometheus.Collector {
	pollerMetricsOnce.Do(func() {
		pollerMetrics = &metricsCollector{
			activeWorkers: prometheus.NewDesc(
				"streamhosts_poller_active_workers",
				"Current number of running polling workers (by host id)",
				[]string{"host_id", "client"},
				nil,
			),
			workersTotal: prometheus.NewDesc(
				"streamhosts_poller_workers_started_total",
				"Total number of polling workers started",
				[]string{"client"},
				nil,
			),
			pollsTotal: prometheus.NewDesc(
				"streamhosts_poller_polls_total",
				"Total number of poll rounds (by host id and result)",
				[]string{"host_id", "result", "client"},
				nil,
			),
			active: make(map[string]float64),
			polls:  make(map[string]map[string]float64),
		}
	})
	return pollerMetrics
}

func (m *metricsCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- m.activeWorkers
	ch <- m.workersTotal
	ch <- m.pollsTotal
}

func (m *metricsCollector) Collect(ch chan<- prometheus.Metric) {
	client := logging.GetClientID()

	m.mu.RLock()
	defer m.mu.RUnlock()

	ch <- prometheus.MustNewConstMetric(m.workersTotal, prometheus.CounterValue, m.started, client)
	for id, v := range m.active {
		ch <- prometheus.MustNewConstMetric(m.activeWorkers, prometheus.GaugeValue, v, id, client)
	}
	for id, byResult := range m.polls {
		for result, v := range byResult {
			ch <- prometheus.MustNewConstMetric(m.pollsTotal, prometheus.CounterValue, v, id, result, client)
		}
	}
}

func recordWorkerStart(hostID string) {
	if pollerMetrics == nil {
		return
	}
	pollerMetrics.mu.Lock()
	defer pollerMetrics.mu.Unlock()
	pollerMetrics.active[hostID]++
	pollerMetrics.started++
}

func recordWorkerExit(hostID string) {
	if pollerMetrics == nil {
		return
	}
	pollerMetrics.mu.Lock()
	defer pollerMetrics.mu.Unlock()
	if pollerMetrics.active[hostID] > 1 {
		pollerMetrics.active[hostID]--
		return
	}
	delete(pollerMetrics.active, hostID)
	delete(pollerMetrics.polls, hostID)
}

func recordPoll(hostID, result string) {
	if pollerMetrics == nil {
		return
	}
	pollerMetrics.mu.Lock()
	defer pollerMetrics.mu.Unlock()
	if _, ok := pollerMetrics.polls[hostID]; !ok {
		pollerMetrics.polls[hostID] = make(map[string]float64)
	}
	pollerMetrics.polls[hostID][result]++
}
