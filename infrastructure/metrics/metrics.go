// Package metrics provides Prometheus metrics collection for the lifecycle
// core: phase transitions, soul write rejections, degradation, reserve
// unlocks, and heartbeat cadence.
package metrics

import (
	"os"
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all Prometheus metrics emitted by the lifecycle core.
type Metrics struct {
	PhaseTransitionsTotal *prometheus.CounterVec
	CurrentPhase          *prometheus.GaugeVec

	SoulWritesTotal        *prometheus.CounterVec
	SoulWriteRejectedTotal *prometheus.CounterVec

	DegradationCoefficient prometheus.Gauge
	MoodValue              prometheus.Gauge

	DeathClockTriggered prometheus.Gauge

	ReplicationSpawnsTotal  prometheus.Counter
	HeartbeatMultiplier     prometheus.Gauge
	ContextWindowMultiplier prometheus.Gauge

	ReserveUnlockedTotal prometheus.Counter

	BequestTransfersTotal *prometheus.CounterVec

	HeartbeatTicksTotal prometheus.Counter

	ServiceInfo *prometheus.GaugeVec
}

// New creates a new Metrics instance registered against the default registerer.
func New(serviceName string) *Metrics {
	return NewWithRegistry(serviceName, prometheus.DefaultRegisterer)
}

// NewWithRegistry creates a new Metrics instance with a custom registry,
// useful for isolated tests that must not collide with the default registry.
func NewWithRegistry(serviceName string, registerer prometheus.Registerer) *Metrics {
	m := &Metrics{
		PhaseTransitionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lifecycle_phase_transitions_total",
				Help: "Total number of lifecycle phase transitions",
			},
			[]string{"from_phase", "to_phase"},
		),
		CurrentPhase: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "lifecycle_current_phase",
				Help: "1 for the currently active phase, 0 otherwise",
			},
			[]string{"phase"},
		),
		SoulWritesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lifecycle_soul_writes_total",
				Help: "Total number of accepted soul phase section writes",
			},
			[]string{"phase"},
		),
		SoulWriteRejectedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lifecycle_soul_write_rejected_total",
				Help: "Total number of soul writes rejected by the phase lock",
			},
			[]string{"target_phase", "current_phase"},
		),
		DegradationCoefficient: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "lifecycle_degradation_coefficient",
			Help: "Current degradation coefficient in [0,1]",
		}),
		MoodValue: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "lifecycle_mood_value",
			Help: "Current mood scalar in [-1,1]",
		}),
		DeathClockTriggered: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "lifecycle_death_clock_triggered",
			Help: "1 if the sealed death clock has triggered, 0 otherwise",
		}),
		ReplicationSpawnsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "lifecycle_replication_spawns_total",
			Help: "Total number of replication-cost applications",
		}),
		HeartbeatMultiplier: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "lifecycle_heartbeat_multiplier",
			Help: "Current compounded heartbeat multiplier",
		}),
		ContextWindowMultiplier: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "lifecycle_context_window_multiplier",
			Help: "Current compounded context window multiplier",
		}),
		ReserveUnlockedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "lifecycle_reserve_unlocked_total",
			Help: "Total number of times the lifecycle reserve unlocked (expected at most 1)",
		}),
		BequestTransfersTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lifecycle_bequest_transfers_total",
				Help: "Total number of executed bequest transfers",
			},
			[]string{"asset", "success"},
		),
		HeartbeatTicksTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "lifecycle_heartbeat_ticks_total",
			Help: "Total number of heartbeat daemon ticks",
		}),
		ServiceInfo: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "lifecycle_service_info",
				Help: "Service information",
			},
			[]string{"service", "version"},
		),
	}

	if registerer != nil {
		registerer.MustRegister(
			m.PhaseTransitionsTotal,
			m.CurrentPhase,
			m.SoulWritesTotal,
			m.SoulWriteRejectedTotal,
			m.DegradationCoefficient,
			m.MoodValue,
			m.DeathClockTriggered,
			m.ReplicationSpawnsTotal,
			m.HeartbeatMultiplier,
			m.ContextWindowMultiplier,
			m.ReserveUnlockedTotal,
			m.BequestTransfersTotal,
			m.HeartbeatTicksTotal,
			m.ServiceInfo,
		)
	}

	m.ServiceInfo.WithLabelValues(serviceName, "1.0.0").Set(1)
	return m
}

// RecordPhaseTransition records a phase machine transition and updates the
// current-phase gauge set.
func (m *Metrics) RecordPhaseTransition(from, to string) {
	m.PhaseTransitionsTotal.WithLabelValues(from, to).Inc()
	m.CurrentPhase.WithLabelValues(from).Set(0)
	m.CurrentPhase.WithLabelValues(to).Set(1)
}

// RecordSoulWrite records an accepted soul phase section write.
func (m *Metrics) RecordSoulWrite(phase string) {
	m.SoulWritesTotal.WithLabelValues(phase).Inc()
}

// RecordSoulWriteRejected records a write rejected by the phase lock.
func (m *Metrics) RecordSoulWriteRejected(targetPhase, currentPhase string) {
	m.SoulWriteRejectedTotal.WithLabelValues(targetPhase, currentPhase).Inc()
}

// RecordBequestTransfer records one executed bequest transfer.
func (m *Metrics) RecordBequestTransfer(asset string, success bool) {
	m.BequestTransfersTotal.WithLabelValues(asset, boolLabel(success)).Inc()
}

func boolLabel(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

// Enabled returns whether Prometheus metrics should be exposed, controlled
// by the METRICS_ENABLED environment variable (defaults to enabled).
func Enabled() bool {
	raw := strings.ToLower(strings.TrimSpace(os.Getenv("METRICS_ENABLED")))
	if raw == "" {
		return true
	}
	switch raw {
	case "0", "false", "no", "off":
		return false
	default:
		return true
	}
}

// Global metrics instance.
var (
	globalMetrics *Metrics
	globalMu      sync.Mutex
)

// Init initializes the global metrics instance.
func Init(serviceName string) *Metrics {
	globalMu.Lock()
	defer globalMu.Unlock()
	if globalMetrics == nil {
		globalMetrics = New(serviceName)
	}
	return globalMetrics
}

// Global returns the global metrics instance, lazily initialized.
func Global() *Metrics {
	globalMu.Lock()
	defer globalMu.Unlock()
	if globalMetrics == nil {
		globalMetrics = New("lifecycle-core")
	}
	return globalMetrics
}
