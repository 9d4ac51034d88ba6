package spawnmgr

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Result label values
const (
	resultOK           = "ok"
	resultError        = "error"
	resultRestartError = "restart_error"
)

// Metrics holds the Prometheus collectors a Manager reports to. A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	// Spawns counts Spawn calls by result: ok, error or restart_error
	Spawns *prometheus.CounterVec
	// Restarts counts spawn server start attempts by result: ok or error
	Restarts *prometheus.CounterVec
	// SpawnDuration observes the duration of successful Spawn calls
	SpawnDuration prometheus.Histogram
	// ServerUp is 1 while a spawn server is running
	ServerUp prometheus.Gauge
}

// NewMetrics creates the collectors and registers them with reg. A nil reg
// leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		Spawns: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "spawnmgr_spawns_total",
				Help: "Total number of spawn requests",
			},
			[]string{"result"},
		),
		Restarts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "spawnmgr_server_restarts_total",
				Help: "Total number of spawn server start attempts",
			},
			[]string{"result"},
		),
		SpawnDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "spawnmgr_spawn_duration_seconds",
				Help:    "Duration of successful spawn requests",
				Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
			},
		),
		ServerUp: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "spawnmgr_server_up",
				Help: "Whether the spawn server is running",
			},
		),
	}
}

func (m *Metrics) recordSpawn(result string, d time.Duration) {
	if m == nil {
		return
	}
	m.Spawns.WithLabelValues(result).Inc()
	if result == resultOK {
		m.SpawnDuration.Observe(d.Seconds())
	}
}

func (m *Metrics) recordRestart(err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.Restarts.WithLabelValues(resultError).Inc()
		return
	}
	m.Restarts.WithLabelValues(resultOK).Inc()
}

func (m *Metrics) setServerUp(up bool) {
	if m == nil {
		return
	}
	if up {
		m.ServerUp.Set(1)
		return
	}
	m.ServerUp.Set(0)
}
