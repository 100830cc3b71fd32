// Package backup keeps a bounded set of point-in-time copies of the state
// image. Slots are written after every Threshold mutations and pruned to the
// newest Retention slots. Slots are never read back automatically.
package backup

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/amanthanvi/quarters/internal/blob"
	"github.com/amanthanvi/quarters/internal/metrics"
	"github.com/klauspost/compress/zstd"
)

const (
	DefaultThreshold = 50
	DefaultRetention = 5

	KeyPrefix = "backup/"

	// slotTimeLayout is fixed width so lexical key order is time order.
	slotTimeLayout = "20060102T150405.000000000Z"

	formatVersion byte = 1

	flagCompressed byte = 1 << 0
	flagSealed     byte = 1 << 1

	maxDecodedSize = 1 << 30
)

var slotMagic = []byte("QBAK")

var (
	ErrInvalidSlot  = errors.New("backup: invalid slot")
	ErrSealerNeeded = errors.New("backup: slot is sealed and no passphrase is configured")
)

// Sealer encrypts slot payloads. The slot key is passed as associated data.
type Sealer interface {
	Seal(plaintext, aad []byte) ([]byte, error)
	Open(sealed, aad []byte) ([]byte, error)
}

type Options struct {
	Threshold int
	Retention int
	Compress  bool
	Sealer    Sealer
	Now       func() time.Time
	Metrics   *metrics.Storage
	Logger    *slog.Logger
}

type Slot struct {
	Key       string
	CreatedAt time.Time
	Size      int64
}

type Manager struct {
	mu       sync.Mutex
	keyspace blob.Keyspace
	opts     Options
	logger   *slog.Logger

	counter  int
	last     time.Time
	lastInit bool

	encoder *zstd.Encoder
	decoder *zstd.Decoder
}

func New(keyspace blob.Keyspace, opts Options) (*Manager, error) {
	if keyspace == nil {
		return nil, fmt.Errorf("new backup manager: keyspace is nil")
	}
	if opts.Threshold == 0 {
		opts.Threshold = DefaultThreshold
	}
	if opts.Retention == 0 {
		opts.Retention = DefaultRetention
	}
	if opts.Threshold < 0 || opts.Retention < 0 {
		return nil, fmt.Errorf("new backup manager: threshold and retention must be positive")
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("new backup manager: zstd encoder: %w", err)
	}
	decoder, err := zstd.NewReader(nil, zstd.WithDecoderMaxMemory(maxDecodedSize))
	if err != nil {
		_ = encoder.Close()
		return nil, fmt.Errorf("new backup manager: zstd decoder: %w", err)
	}

	return &Manager{
		keyspace: keyspace,
		opts:     opts,
		logger:   logger,
		encoder:  encoder,
		decoder:  decoder,
	}, nil
}

func (m *Manager) Close() error {
	if m == nil {
		return nil
	}
	m.decoder.Close()
	return m.encoder.Close()
}

func (m *Manager) Threshold() int { return m.opts.Threshold }
func (m *Manager) Retention() int { return m.opts.Retention }

// Pending reports how many mutations have been counted since the last slot.
func (m *Manager) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.counter
}

// AfterMutation counts one committed mutation. When the count reaches the
// threshold the image is written to a new slot, the count resets and old
// slots are pruned. created reports whether a slot was written.
func (m *Manager) AfterMutation(ctx context.Context, image []byte) (created bool, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.counter++
	if m.counter < m.opts.Threshold {
		return false, nil
	}
	m.counter = 0

	if _, err := m.writeSlot(ctx, image); err != nil {
		return false, err
	}
	if err := m.prune(ctx); err != nil {
		return true, err
	}
	return true, nil
}

// Snapshot writes a slot immediately without touching the mutation count.
func (m *Manager) Snapshot(ctx context.Context, image []byte) (Slot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	slot, err := m.writeSlot(ctx, image)
	if err != nil {
		return Slot{}, err
	}
	if err := m.prune(ctx); err != nil {
		return slot, err
	}
	return slot, nil
}

// List returns the retained slots, newest first.
func (m *Manager) List(ctx context.Context) ([]Slot, error) {
	entries, err := m.keyspace.List(ctx, KeyPrefix)
	if err != nil {
		return nil, fmt.Errorf("list backups: %w", err)
	}

	slots := make([]Slot, 0, len(entries))
	for _, entry := range entries {
		created, err := parseSlotKey(entry.Key)
		if err != nil {
			m.logger.Warn("skipping unrecognized backup key", "key", entry.Key)
			continue
		}
		slots = append(slots, Slot{Key: entry.Key, CreatedAt: created, Size: entry.Size})
	}
	sort.Slice(slots, func(i, j int) bool { return slots[i].Key > slots[j].Key })
	return slots, nil
}

// Read decodes a slot back to the raw state image.
func (m *Manager) Read(ctx context.Context, key string) ([]byte, error) {
	if _, err := parseSlotKey(key); err != nil {
		return nil, err
	}
	raw, err := m.keyspace.Get(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("read backup %s: %w", key, err)
	}
	image, err := m.decode(key, raw)
	if err != nil {
		return nil, fmt.Errorf("read backup %s: %w", key, err)
	}
	return image, nil
}

// writeSlot must be called with mu held.
func (m *Manager) writeSlot(ctx context.Context, image []byte) (Slot, error) {
	if err := m.initLast(ctx); err != nil {
		m.opts.Metrics.ObserveBackup(err)
		return Slot{}, err
	}

	created := m.opts.Now().UTC().Truncate(time.Nanosecond)
	if !created.After(m.last) {
		created = m.last.Add(time.Nanosecond)
	}
	key := slotKey(created)

	payload, err := m.encode(key, image)
	if err == nil {
		err = m.keyspace.Put(ctx, key, payload)
	}
	m.opts.Metrics.ObserveBackup(err)
	if err != nil {
		return Slot{}, fmt.Errorf("write backup %s: %w", key, err)
	}

	m.last = created
	m.logger.Info("backup slot written", "key", key, "bytes", len(payload))
	return Slot{Key: key, CreatedAt: created, Size: int64(len(payload))}, nil
}

// initLast seeds the monotonic clock from slots left by an earlier process.
func (m *Manager) initLast(ctx context.Context) error {
	if m.lastInit {
		return nil
	}
	slots, err := m.List(ctx)
	if err != nil {
		return err
	}
	if len(slots) > 0 {
		m.last = slots[0].CreatedAt
	}
	m.lastInit = true
	return nil
}

// prune must be called with mu held.
func (m *Manager) prune(ctx context.Context) error {
	slots, err := m.List(ctx)
	if err != nil {
		return fmt.Errorf("prune backups: %w", err)
	}
	if len(slots) <= m.opts.Retention {
		m.opts.Metrics.ObservePrune(0, len(slots))
		return nil
	}

	deleted := 0
	var errs []error
	for _, slot := range slots[m.opts.Retention:] {
		if err := m.keyspace.Delete(ctx, slot.Key); err != nil && !errors.Is(err, blob.ErrNotFound) {
			errs = append(errs, fmt.Errorf("delete %s: %w", slot.Key, err))
			continue
		}
		deleted++
		m.logger.Debug("backup slot pruned", "key", slot.Key)
	}
	m.opts.Metrics.ObservePrune(deleted, len(slots)-deleted)
	if len(errs) > 0 {
		return fmt.Errorf("prune backups: %w", errors.Join(errs...))
	}
	return nil
}

func (m *Manager) encode(key string, image []byte) ([]byte, error) {
	var flags byte
	payload := image
	if m.opts.Compress {
		payload = m.encoder.EncodeAll(payload, make([]byte, 0, len(payload)/2))
		flags |= flagCompressed
	}
	if m.opts.Sealer != nil {
		sealed, err := m.opts.Sealer.Seal(payload, []byte(key))
		if err != nil {
			return nil, fmt.Errorf("seal: %w", err)
		}
		payload = sealed
		flags |= flagSealed
	}

	out := make([]byte, 0, len(slotMagic)+2+len(payload))
	out = append(out, slotMagic...)
	out = append(out, formatVersion, flags)
	return append(out, payload...), nil
}

func (m *Manager) decode(key string, raw []byte) ([]byte, error) {
	headerLen := len(slotMagic) + 2
	if len(raw) < headerLen || !bytes.Equal(raw[:len(slotMagic)], slotMagic) {
		return nil, fmt.Errorf("%w: missing header", ErrInvalidSlot)
	}
	if version := raw[len(slotMagic)]; version != formatVersion {
		return nil, fmt.Errorf("%w: unsupported format version %d", ErrInvalidSlot, version)
	}
	flags := raw[len(slotMagic)+1]
	payload := raw[headerLen:]

	if flags&flagSealed != 0 {
		if m.opts.Sealer == nil {
			return nil, ErrSealerNeeded
		}
		opened, err := m.opts.Sealer.Open(payload, []byte(key))
		if err != nil {
			return nil, fmt.Errorf("open sealed slot: %w", err)
		}
		payload = opened
	}
	if flags&flagCompressed != 0 {
		decoded, err := m.decoder.DecodeAll(payload, nil)
		if err != nil {
			return nil, fmt.Errorf("%w: decompress: %v", ErrInvalidSlot, err)
		}
		payload = decoded
	}
	return append([]byte(nil), payload...), nil
}

func slotKey(t time.Time) string {
	return KeyPrefix + t.UTC().Format(slotTimeLayout)
}

func parseSlotKey(key string) (time.Time, error) {
	stamp, ok := strings.CutPrefix(key, KeyPrefix)
	if !ok {
		return time.Time{}, fmt.Errorf("%w: key %q", ErrInvalidSlot, key)
	}
	t, err := time.Parse(slotTimeLayout, stamp)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: key %q: %v", ErrInvalidSlot, key, err)
	}
	return t.UTC(), nil
}
