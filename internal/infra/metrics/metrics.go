// Package metrics provides Prometheus metrics for the coordination node:
// commit-reveal throughput, announcement admission outcomes, peer table
// size, tracker liveness and health.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "tutu_coord"

// ─── Commit-Reveal ──────────────────────────────────────────────────────────

// CommitmentsCreated counts persisted commitments by data type.
var CommitmentsCreated = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Name:      "commitments_created_total",
	Help:      "Total commitments created.",
}, []string{"data_type"})

// RevealsTotal counts reveal attempts by outcome.
var RevealsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Name:      "reveals_total",
	Help:      "Reveal attempts by result (ok, unknown, too_early, hash_mismatch).",
}, []string{"result"})

// ─── DHT Fallback ───────────────────────────────────────────────────────────

// AnnouncementsTotal counts processed announcements by admission result.
var AnnouncementsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Name:      "dht_announcements_total",
	Help:      "Processed DHT announcements by admission result.",
}, []string{"result"})

// AdmissionLatency tracks time spent in the admission pipeline.
var AdmissionLatency = promauto.NewHistogram(prometheus.HistogramOpts{
	Namespace: namespace,
	Name:      "dht_admission_latency_seconds",
	Help:      "Time spent admitting one announcement.",
	Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
})

// PeerTableContents tracks content hashes with at least one peer.
var PeerTableContents = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: namespace,
	Name:      "dht_contents",
	Help:      "Content hashes tracked in the local peer table.",
})

// PeerTableEntries tracks total peer entries across all contents.
var PeerTableEntries = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: namespace,
	Name:      "dht_peers",
	Help:      "Peer entries in the local peer table.",
})

// PeersSwept counts entries dropped by the freshness sweep.
var PeersSwept = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: namespace,
	Name:      "dht_peers_swept_total",
	Help:      "Peer entries removed by the stale sweep.",
})

// TrackerProbes counts tracker liveness probes by result (up, down).
var TrackerProbes = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Name:      "tracker_probes_total",
	Help:      "Tracker liveness probes by result.",
}, []string{"result"})

// ─── Health ─────────────────────────────────────────────────────────────────

// HealthCheckStatus tracks health check results (1=healthy, 0=unhealthy).
var HealthCheckStatus = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Namespace: namespace,
	Name:      "health_check_status",
	Help:      "Health check result per component (1=healthy, 0=unhealthy).",
}, []string{"check"})

// HealthRecoveries tracks auto-recovery attempts.
var HealthRecoveries = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Name:      "health_recoveries_total",
	Help:      "Total auto-recovery attempts per check.",
}, []string{"check"})
