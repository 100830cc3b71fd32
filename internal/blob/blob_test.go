package blob

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestValidateKey(t *testing.T) {
	t.Parallel()

	valid := []string{"state/primary", "backup/20261019T101112.000000001Z", "a_b-c.d"}
	for _, key := range valid {
		require.NoErrorf(t, ValidateKey(key), "key %q", key)
	}

	invalid := []string{"", "/state", "state/", "state//primary", "../etc/passwd", "state/.hidden", "state/pri mary"}
	for _, key := range invalid {
		require.ErrorIsf(t, ValidateKey(key), ErrInvalidKey, "key %q", key)
	}
}

func TestKeyspaceContract(t *testing.T) {
	t.Parallel()

	dir, err := NewDir(filepath.Join(t.TempDir(), "blobs"))
	require.NoError(t, err)

	for name, ks := range map[string]Keyspace{"dir": dir, "memory": NewMemory()} {
		ks := ks
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			ctx := context.Background()

			_, err := ks.Get(ctx, "state/primary")
			require.ErrorIs(t, err, ErrNotFound)

			require.NoError(t, ks.Put(ctx, "state/primary", []byte("one")))
			require.NoError(t, ks.Put(ctx, "state/primary", []byte("two")))
			got, err := ks.Get(ctx, "state/primary")
			require.NoError(t, err)
			require.Equal(t, []byte("two"), got)

			require.NoError(t, ks.Put(ctx, "backup/002", []byte("b2")))
			require.NoError(t, ks.Put(ctx, "backup/001", []byte("b1")))

			entries, err := ks.List(ctx, "backup/")
			require.NoError(t, err)
			require.Len(t, entries, 2)
			require.Equal(t, "backup/001", entries[0].Key)
			require.Equal(t, "backup/002", entries[1].Key)
			require.EqualValues(t, 2, entries[0].Size)

			require.NoError(t, ks.Delete(ctx, "backup/001"))
			require.ErrorIs(t, ks.Delete(ctx, "backup/001"), ErrNotFound)

			entries, err = ks.List(ctx, "")
			require.NoError(t, err)
			require.Len(t, entries, 2)
		})
	}
}

func TestDirPutLeavesNoTempFiles(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	dir, err := NewDir(root)
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		require.NoError(t, dir.Put(context.Background(), "state/primary", []byte{byte(i)}))
	}

	files, err := os.ReadDir(filepath.Join(root, "state"))
	require.NoError(t, err)
	require.Len(t, files, 1)
	require.Equal(t, "primary", files[0].Name())

	info, err := os.Stat(filepath.Join(root, "state", "primary"))
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestMemoryReturnsCopies(t *testing.T) {
	t.Parallel()

	ks := NewMemory()
	ctx := context.Background()
	data := []byte("image")
	require.NoError(t, ks.Put(ctx, "state/primary", data))
	data[0] = 'X'

	got, err := ks.Get(ctx, "state/primary")
	require.NoError(t, err)
	require.Equal(t, []byte("image"), got)

	got[0] = 'Y'
	again, err := ks.Get(ctx, "state/primary")
	require.NoError(t, err)
	require.Equal(t, []byte("image"), again)
}
