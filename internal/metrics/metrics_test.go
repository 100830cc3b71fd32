package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestNilStorageIsNoop(t *testing.T) {
	t.Parallel()

	var m *Storage
	m.ObserveMutation()
	m.ObserveSnapshot(10, time.Millisecond, nil)
	m.ObserveBackup(errors.New("boom"))
	m.ObservePrune(1, 5)
}

func TestObserveRecordsValues(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	m, err := NewStorage(reg)
	require.NoError(t, err)

	m.ObserveMutation()
	m.ObserveMutation()
	m.ObserveSnapshot(4096, 5*time.Millisecond, nil)
	m.ObserveSnapshot(0, 0, errors.New("disk full"))
	m.ObserveBackup(nil)
	m.ObservePrune(2, 5)

	require.Equal(t, 2.0, testutil.ToFloat64(m.Mutations))
	require.Equal(t, 1.0, testutil.ToFloat64(m.SnapshotSaves.WithLabelValues(ResultSuccess)))
	require.Equal(t, 1.0, testutil.ToFloat64(m.SnapshotSaves.WithLabelValues(ResultError)))
	require.Equal(t, 4096.0, testutil.ToFloat64(m.SnapshotBytes))
	require.Equal(t, 1.0, testutil.ToFloat64(m.BackupsCreated.WithLabelValues(ResultSuccess)))
	require.Equal(t, 2.0, testutil.ToFloat64(m.BackupsPruned))
	require.Equal(t, 5.0, testutil.ToFloat64(m.BackupSlots))
}

func TestNewStorageToleratesRepeatRegistration(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	_, err := NewStorage(reg)
	require.NoError(t, err)
	_, err = NewStorage(reg)
	require.NoError(t, err)
}
