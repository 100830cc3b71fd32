package backup

import (
	"bytes"
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/amanthanvi/quarters/internal/blob"
	"github.com/amanthanvi/quarters/internal/crypto"
	"github.com/amanthanvi/quarters/internal/metrics"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func frozenClock() func() time.Time {
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	return func() time.Time { return at }
}

func newManager(t *testing.T, keyspace blob.Keyspace, opts Options) *Manager {
	t.Helper()
	m, err := New(keyspace, opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Close() })
	return m
}

func TestRetentionAfterManyMutations(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	m := newManager(t, blob.NewMemory(), Options{Compress: true})
	require.Equal(t, DefaultThreshold, m.Threshold())
	require.Equal(t, DefaultRetention, m.Retention())

	var lastImage []byte
	ops := m.Threshold() * (m.Retention() + 3)
	for i := 0; i < ops; i++ {
		lastImage = []byte(fmt.Sprintf("image-%04d", i))
		_, err := m.AfterMutation(ctx, lastImage)
		require.NoError(t, err)
	}

	slots, err := m.List(ctx)
	require.NoError(t, err)
	require.Len(t, slots, m.Retention())
	for i := 1; i < len(slots); i++ {
		require.True(t, slots[i-1].CreatedAt.After(slots[i].CreatedAt))
	}

	newest, err := m.Read(ctx, slots[0].Key)
	require.NoError(t, err)
	require.Equal(t, lastImage, newest)
	require.Equal(t, 0, m.Pending())
}

func TestThresholdCountsExactly(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	m := newManager(t, blob.NewMemory(), Options{Threshold: 3, Retention: 2})

	for i := 1; i <= 2; i++ {
		created, err := m.AfterMutation(ctx, []byte("x"))
		require.NoError(t, err)
		require.False(t, created)
		require.Equal(t, i, m.Pending())
	}
	created, err := m.AfterMutation(ctx, []byte("x"))
	require.NoError(t, err)
	require.True(t, created)
	require.Equal(t, 0, m.Pending())

	slots, err := m.List(ctx)
	require.NoError(t, err)
	require.Len(t, slots, 1)
}

func TestSlotKeysStrictlyIncreaseWithFrozenClock(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	reg := testRegistry(t)
	m := newManager(t, blob.NewMemory(), Options{Threshold: 1, Retention: 3, Now: frozenClock(), Metrics: reg})

	for i := 0; i < 6; i++ {
		_, err := m.AfterMutation(ctx, []byte{byte(i)})
		require.NoError(t, err)
	}

	slots, err := m.List(ctx)
	require.NoError(t, err)
	require.Len(t, slots, 3)
	require.Equal(t, "backup/20260301T120000.000000005Z", slots[0].Key)
	require.Equal(t, "backup/20260301T120000.000000003Z", slots[2].Key)

	image, err := m.Read(ctx, slots[0].Key)
	require.NoError(t, err)
	require.Equal(t, []byte{5}, image)

	require.Equal(t, 6.0, testutil.ToFloat64(reg.BackupsCreated.WithLabelValues(metrics.ResultSuccess)))
	require.Equal(t, 3.0, testutil.ToFloat64(reg.BackupsPruned))
	require.Equal(t, 3.0, testutil.ToFloat64(reg.BackupSlots))
}

func TestNewManagerContinuesAfterExistingSlots(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	keyspace := blob.NewMemory()
	first := newManager(t, keyspace, Options{Threshold: 1, Retention: 5, Now: frozenClock()})
	_, err := first.Snapshot(ctx, []byte("a"))
	require.NoError(t, err)
	_, err = first.Snapshot(ctx, []byte("b"))
	require.NoError(t, err)

	second := newManager(t, keyspace, Options{Threshold: 1, Retention: 5, Now: frozenClock()})
	slot, err := second.Snapshot(ctx, []byte("c"))
	require.NoError(t, err)
	require.Equal(t, "backup/20260301T120000.000000002Z", slot.Key)

	slots, err := second.List(ctx)
	require.NoError(t, err)
	require.Len(t, slots, 3)
	require.Equal(t, slot.Key, slots[0].Key)
}

func TestSnapshotDoesNotResetCounter(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	m := newManager(t, blob.NewMemory(), Options{Threshold: 5})
	_, err := m.AfterMutation(ctx, []byte("x"))
	require.NoError(t, err)
	_, err = m.Snapshot(ctx, []byte("y"))
	require.NoError(t, err)
	require.Equal(t, 1, m.Pending())
}

func TestCompressedSealedRoundTrip(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	sealer, err := crypto.NewSealer([]byte("backup pass"), crypto.Argon2Params{
		Memory:      crypto.MinArgon2MemoryKiB,
		Iterations:  1,
		Parallelism: 1,
		SaltLen:     crypto.DefaultArgon2SaltLen,
		KeyLen:      crypto.DefaultArgon2KeyLen,
	})
	require.NoError(t, err)
	t.Cleanup(sealer.Destroy)

	keyspace := blob.NewMemory()
	m := newManager(t, keyspace, Options{Compress: true, Sealer: sealer})

	image := bytes.Repeat([]byte("tenant row "), 512)
	slot, err := m.Snapshot(ctx, image)
	require.NoError(t, err)
	require.Less(t, slot.Size, int64(len(image)))

	raw, err := keyspace.Get(ctx, slot.Key)
	require.NoError(t, err)
	require.False(t, bytes.Contains(raw, []byte("tenant row")))

	got, err := m.Read(ctx, slot.Key)
	require.NoError(t, err)
	require.Equal(t, image, got)

	plain := newManager(t, keyspace, Options{})
	_, err = plain.Read(ctx, slot.Key)
	require.ErrorIs(t, err, ErrSealerNeeded)
}

func TestReadRejectsForeignData(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	keyspace := blob.NewMemory()
	m := newManager(t, keyspace, Options{})

	_, err := m.Read(ctx, "state/primary")
	require.ErrorIs(t, err, ErrInvalidSlot)

	key := slotKey(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, keyspace.Put(ctx, key, []byte("garbage")))
	_, err = m.Read(ctx, key)
	require.ErrorIs(t, err, ErrInvalidSlot)
}

func TestListIgnoresUnrelatedKeys(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	keyspace := blob.NewMemory()
	require.NoError(t, keyspace.Put(ctx, "backup/notes.txt", []byte("hi")))
	require.NoError(t, keyspace.Put(ctx, "state/primary", []byte("img")))

	m := newManager(t, keyspace, Options{})
	slots, err := m.List(ctx)
	require.NoError(t, err)
	require.Empty(t, slots)
}

func TestNewRejectsNegativeOptions(t *testing.T) {
	t.Parallel()

	_, err := New(blob.NewMemory(), Options{Threshold: -1})
	require.Error(t, err)
	_, err = New(nil, Options{})
	require.Error(t, err)
}

func testRegistry(t *testing.T) *metrics.Storage {
	t.Helper()
	m, err := metrics.NewStorage(nil)
	require.NoError(t, err)
	return m
}
