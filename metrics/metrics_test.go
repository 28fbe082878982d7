package metrics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// value sums every sample of the named counter family.
func value(t *testing.T, m *Metrics, name string) float64 {
	t.Helper()
	families, err := m.Registry.Gather()
	require.NoError(t, err)
	for _, f := range families {
		if f.GetName() != name {
			continue
		}
		var sum float64
		for _, metric := range f.GetMetric() {
			sum += metric.GetCounter().GetValue()
		}
		return sum
	}
	t.Fatalf("metric %s not found", name)
	return 0
}

func TestCounters(t *testing.T) {
	m := New()
	m.MissionStarted()
	m.MissionCompleted(50)
	m.XPAwarded(25)
	m.XPAwarded(-3)
	m.Provisioned("create_account", ResultRolledBack)
	m.OrphansRemoved(2)
	m.ObserveRequest("GET", "/feed", 200, 10*time.Millisecond)

	assert.Equal(t, 1.0, value(t, m, "ecodigital_missions_started_total"))
	assert.Equal(t, 1.0, value(t, m, "ecodigital_missions_completed_total"))
	assert.Equal(t, 75.0, value(t, m, "ecodigital_xp_awarded_total"))
	assert.Equal(t, 1.0, value(t, m, "ecodigital_provisioning_total"))
	assert.Equal(t, 2.0, value(t, m, "ecodigital_orphan_evidence_removed_total"))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.MissionStarted()
		m.MissionCompleted(10)
		m.Provisioned("x", ResultOK)
		m.OrphansRemoved(1)
		m.FeedSubscribers(1)
		m.ObserveRequest("GET", "/feed", 200, time.Millisecond)
	})
}
