package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func gatheredNames(t *testing.T) map[string]bool {
	t.Helper()
	families, err := prometheus.DefaultGatherer.Gather()
	require.NoError(t, err)

	names := make(map[string]bool)
	for _, f := range families {
		names[f.GetName()] = true
	}
	return names
}

func TestCommitRevealMetrics(t *testing.T) {
	CommitmentsCreated.WithLabelValues("game-state").Inc()
	RevealsTotal.WithLabelValues("ok").Inc()
	RevealsTotal.WithLabelValues("too_early").Add(2)

	names := gatheredNames(t)
	assert.True(t, names["tutu_coord_commitments_created_total"])
	assert.True(t, names["tutu_coord_reveals_total"])
	assert.Equal(t, 2.0, testutil.ToFloat64(RevealsTotal.WithLabelValues("too_early")))
}

func TestDHTMetrics(t *testing.T) {
	AnnouncementsTotal.WithLabelValues("accepted").Inc()
	AdmissionLatency.Observe(0.002)
	PeerTableContents.Set(3)
	PeerTableEntries.Set(7)
	PeersSwept.Inc()
	TrackerProbes.WithLabelValues("down").Inc()

	names := gatheredNames(t)
	for _, name := range []string{
		"tutu_coord_dht_announcements_total",
		"tutu_coord_dht_admission_latency_seconds",
		"tutu_coord_dht_contents",
		"tutu_coord_dht_peers",
		"tutu_coord_dht_peers_swept_total",
		"tutu_coord_tracker_probes_total",
	} {
		assert.True(t, names[name], "metric %q not found", name)
	}
	assert.Equal(t, 7.0, testutil.ToFloat64(PeerTableEntries))
}

func TestHealthMetrics(t *testing.T) {
	HealthCheckStatus.WithLabelValues("content_store").Set(1)
	HealthRecoveries.WithLabelValues("tracker").Inc()

	names := gatheredNames(t)
	assert.True(t, names["tutu_coord_health_check_status"])
	assert.True(t, names["tutu_coord_health_recoveries_total"])
}
