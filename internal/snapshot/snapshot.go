// Package snapshot persists the primary state image of the embedded engine.
//
// An image is written whole on every save. The stored form is a small
// envelope: a magic prefix, a format version and a SHA-256 checksum of the
// payload, so a truncated or foreign file is rejected on load instead of
// being handed to the engine.
package snapshot

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/amanthanvi/quarters/internal/blob"
)

const (
	PrimaryKey = "state/primary"

	envelopeMagic          = "QSNP"
	envelopeVersion uint16 = 1
	headerLen              = len(envelopeMagic) + 2 + sha256.Size
)

var ErrCorrupt = errors.New("snapshot: corrupt image")

type Store struct {
	keyspace blob.Keyspace
	key      string
}

func New(keyspace blob.Keyspace) (*Store, error) {
	if keyspace == nil {
		return nil, fmt.Errorf("new snapshot store: keyspace is nil")
	}
	return &Store{keyspace: keyspace, key: PrimaryKey}, nil
}

// Load returns the stored image. ok is false when nothing has been saved yet.
func (s *Store) Load(ctx context.Context) ([]byte, bool, error) {
	raw, err := s.keyspace.Get(ctx, s.key)
	if err != nil {
		if errors.Is(err, blob.ErrNotFound) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("load snapshot: %w", err)
	}

	image, err := decode(raw)
	if err != nil {
		return nil, false, fmt.Errorf("load snapshot: %w", err)
	}
	return image, true, nil
}

func (s *Store) Save(ctx context.Context, image []byte) error {
	if len(image) == 0 {
		return fmt.Errorf("save snapshot: image is empty")
	}
	if err := s.keyspace.Put(ctx, s.key, encode(image)); err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	return nil
}

// Discard removes the primary image. Discarding a missing image is not an
// error.
func (s *Store) Discard(ctx context.Context) error {
	if err := s.keyspace.Delete(ctx, s.key); err != nil && !errors.Is(err, blob.ErrNotFound) {
		return fmt.Errorf("discard snapshot: %w", err)
	}
	return nil
}

func encode(image []byte) []byte {
	sum := sha256.Sum256(image)
	out := make([]byte, 0, headerLen+len(image))
	out = append(out, envelopeMagic...)
	out = binary.BigEndian.AppendUint16(out, envelopeVersion)
	out = append(out, sum[:]...)
	return append(out, image...)
}

func decode(raw []byte) ([]byte, error) {
	if len(raw) < headerLen || string(raw[:len(envelopeMagic)]) != envelopeMagic {
		return nil, fmt.Errorf("%w: missing header", ErrCorrupt)
	}
	offset := len(envelopeMagic)
	version := binary.BigEndian.Uint16(raw[offset:])
	if version != envelopeVersion {
		return nil, fmt.Errorf("%w: unsupported envelope version %d", ErrCorrupt, version)
	}
	offset += 2
	want := raw[offset : offset+sha256.Size]
	image := raw[headerLen:]
	got := sha256.Sum256(image)
	if !bytes.Equal(want, got[:]) {
		return nil, fmt.Errorf("%w: checksum mismatch", ErrCorrupt)
	}
	return append([]byte(nil), image...), nil
}
