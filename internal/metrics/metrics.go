// Package metrics defines the Prometheus collectors for the persistence
// layer. A nil *Storage is valid and records nothing.
package metrics

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "quarters"

const (
	ResultSuccess = "success"
	ResultError   = "error"
)

type Storage struct {
	Mutations        prometheus.Counter
	SnapshotSaves    *prometheus.CounterVec
	SnapshotBytes    prometheus.Gauge
	SnapshotDuration prometheus.Histogram
	BackupsCreated   *prometheus.CounterVec
	BackupsPruned    prometheus.Counter
	BackupSlots      prometheus.Gauge
}

// NewStorage builds the collectors and registers them with reg. A nil reg
// leaves them unregistered, which is what tests usually want.
func NewStorage(reg prometheus.Registerer) (*Storage, error) {
	m := &Storage{
		Mutations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "mutations_total",
			Help:      "Total number of committed mutating operations",
		}),
		SnapshotSaves: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "snapshot_saves_total",
			Help:      "Primary state image writes by result",
		}, []string{"result"}),
		SnapshotBytes: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "snapshot_size_bytes",
			Help:      "Size of the most recently written primary state image",
		}),
		SnapshotDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "snapshot_save_duration_seconds",
			Help:      "Time to serialize and write the primary state image",
			Buckets:   prometheus.DefBuckets,
		}),
		BackupsCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "backups_created_total",
			Help:      "Backup slots written by result",
		}, []string{"result"}),
		BackupsPruned: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "backups_pruned_total",
			Help:      "Backup slots deleted by retention pruning",
		}),
		BackupSlots: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "backup_slots",
			Help:      "Backup slots currently retained",
		}),
	}

	if reg == nil {
		return m, nil
	}
	collectors := []prometheus.Collector{
		m.Mutations, m.SnapshotSaves, m.SnapshotBytes, m.SnapshotDuration,
		m.BackupsCreated, m.BackupsPruned, m.BackupSlots,
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			var already prometheus.AlreadyRegisteredError
			if errors.As(err, &already) {
				continue
			}
			return nil, err
		}
	}
	return m, nil
}

func (m *Storage) ObserveMutation() {
	if m == nil {
		return
	}
	m.Mutations.Inc()
}

func (m *Storage) ObserveSnapshot(size int, elapsed time.Duration, err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.SnapshotSaves.WithLabelValues(ResultError).Inc()
		return
	}
	m.SnapshotSaves.WithLabelValues(ResultSuccess).Inc()
	m.SnapshotBytes.Set(float64(size))
	m.SnapshotDuration.Observe(elapsed.Seconds())
}

func (m *Storage) ObserveBackup(err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.BackupsCreated.WithLabelValues(ResultError).Inc()
		return
	}
	m.BackupsCreated.WithLabelValues(ResultSuccess).Inc()
}

func (m *Storage) ObservePrune(deleted, retained int) {
	if m == nil {
		return
	}
	m.BackupsPruned.Add(float64(deleted))
	m.BackupSlots.Set(float64(retained))
}
