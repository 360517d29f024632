package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/streamhosts/pkg/host"
)

func gather(t *testing.T, c prometheus.Collector) map[string]*dto.MetricFamily {
	t.Helper()
	reg := prometheus.NewPedanticRegistry()
	require.NoError(t, reg.Register(c))
	families, err := reg.Gather()
	require.NoError(t, err)
	out := make(map[string]*dto.MetricFamily, len(families))
	for _, mf := range families {
		out[mf.GetName()] = mf
	}
	return out
}

func label(m *dto.Metric, name string) string {
	for _, lp := range m.GetLabel() {
		if lp.GetName() == name {
			return lp.GetValue()
		}
	}
	return ""
}

func TestCollectorHostGauges(t *testing.T) {
	c := NewCollector(func() []host.Info {
		return []host.Info{
			{ID: "X", Name: "Den-PC", State: host.StateOnline},
			{ID: "Y", Name: "Office", State: host.StateOffline},
		}
	}, func() int { return 3 })

	families := gather(t, c)

	require.Contains(t, families, "streamhosts_host_up")
	up := map[string]float64{}
	for _, m := range families["streamhosts_host_up"].GetMetric() {
		up[label(m, "host_id")] = m.GetGauge().GetValue()
	}
	assert.Equal(t, map[string]float64{"X": 1, "Y": 0}, up)

	assert.Equal(t, 2.0, families["streamhosts_hosts_total"].GetMetric()[0].GetGauge().GetValue())
	assert.Equal(t, 1.0, families["streamhosts_hosts_online"].GetMetric()[0].GetGauge().GetValue())
	assert.Equal(t, 3.0, families["streamhosts_pending_resolutions"].GetMetric()[0].GetGauge().GetValue())
}

func TestCollectorCounters(t *testing.T) {
	c := NewCollector(nil, nil)
	c.RecordAdd(SourceManual, true)
	c.RecordAdd(SourceManual, false)
	c.RecordAdd(SourceDiscovery, true)
	c.RecordWake("X", true)
	c.RecordNotification()

	families := gather(t, c)

	attempts := map[string]float64{}
	for _, m := range families["streamhosts_add_attempts_total"].GetMetric() {
		attempts[label(m, "source")] = m.GetCounter().GetValue()
	}
	assert.Equal(t, map[string]float64{SourceManual: 2, SourceDiscovery: 1}, attempts)

	failures := families["streamhosts_add_failures_total"].GetMetric()
	require.Len(t, failures, 1)
	assert.Equal(t, SourceManual, label(failures[0], "source"))
	assert.Equal(t, 1.0, failures[0].GetCounter().GetValue())

	assert.Equal(t, 1.0, families["streamhosts_notifications_total"].GetMetric()[0].GetCounter().GetValue())

	c.ForgetHost("X")
	families = gather(t, c)
	assert.NotContains(t, families, "streamhosts_wake_attempts_total")
}

func TestNilCollectorIgnoresRecords(t *testing.T) {
	var c *Collector
	assert.NotPanics(t, func() {
		c.RecordAdd(SourceManual, false)
		c.RecordWake("X", false)
		c.RecordNotification()
		c.RecordStoreError()
		c.ForgetHost("X")
	})
}
