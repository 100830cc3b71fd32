package snapshot

import (
	"context"
	"errors"
	"testing"

	"github.com/amanthanvi/quarters/internal/blob"
	"github.com/stretchr/testify/require"
)

func TestLoadEmptyKeyspace(t *testing.T) {
	t.Parallel()

	store, err := New(blob.NewMemory())
	require.NoError(t, err)

	image, ok, err := store.Load(context.Background())
	require.NoError(t, err)
	require.False(t, ok)
	require.Nil(t, image)
}

func TestSaveLoadDiscard(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	keyspace, err := blob.NewDir(t.TempDir())
	require.NoError(t, err)
	store, err := New(keyspace)
	require.NoError(t, err)

	require.NoError(t, store.Save(ctx, []byte("first")))
	require.NoError(t, store.Save(ctx, []byte("second image")))

	image, ok, err := store.Load(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte("second image"), image)

	require.NoError(t, store.Discard(ctx))
	require.NoError(t, store.Discard(ctx))

	_, ok, err = store.Load(ctx)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestSaveRejectsEmptyImage(t *testing.T) {
	t.Parallel()

	store, err := New(blob.NewMemory())
	require.NoError(t, err)
	require.Error(t, store.Save(context.Background(), nil))
}

func TestLoadDetectsCorruption(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	keyspace := blob.NewMemory()
	store, err := New(keyspace)
	require.NoError(t, err)

	require.NoError(t, store.Save(ctx, []byte("payload")))
	raw, err := keyspace.Get(ctx, PrimaryKey)
	require.NoError(t, err)
	raw[len(raw)-1] ^= 0xff
	require.NoError(t, keyspace.Put(ctx, PrimaryKey, raw))

	_, _, err = store.Load(ctx)
	require.ErrorIs(t, err, ErrCorrupt)

	require.NoError(t, keyspace.Put(ctx, PrimaryKey, []byte("SQLite format 3")))
	_, _, err = store.Load(ctx)
	require.ErrorIs(t, err, ErrCorrupt)
}

type failingKeyspace struct {
	blob.Keyspace
}

func (failingKeyspace) Put(context.Context, string, []byte) error {
	return errors.New("disk full")
}

func TestSaveSurfacesKeyspaceFailure(t *testing.T) {
	t.Parallel()

	store, err := New(failingKeyspace{Keyspace: blob.NewMemory()})
	require.NoError(t, err)

	err = store.Save(context.Background(), []byte("x"))
	require.ErrorContains(t, err, "disk full")
}

func TestEnvelopeLayout(t *testing.T) {
	t.Parallel()

	raw := encode([]byte("image"))
	require.Len(t, raw, headerLen+len("image"))
	require.Equal(t, envelopeMagic, string(raw[:len(envelopeMagic)]))

	image, err := decode(raw)
	require.NoError(t, err)
	require.Equal(t, []byte("image"), image)

	_, err = decode(raw[:headerLen-1])
	require.ErrorIs(t, err, ErrCorrupt)
}
