package storage

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/amanthanvi/quarters/internal/metrics"
	"github.com/amanthanvi/quarters/internal/notify"
	"modernc.org/sqlite"
)

const (
	pragmaForeignKeysOn = `PRAGMA foreign_keys=ON`
	memoryDSN           = `:memory:`
)

// ImageStore persists the serialized engine image.
type ImageStore interface {
	Load(ctx context.Context) ([]byte, bool, error)
	Save(ctx context.Context, image []byte) error
	Discard(ctx context.Context) error
}

// MutationObserver is told about every committed unit of work.
type MutationObserver interface {
	AfterMutation(ctx context.Context, image []byte) (bool, error)
}

type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Tx is an open unit of work. Repositories bound to it with Tx(...) join the
// transaction instead of opening their own.
type Tx struct {
	*sql.Tx
	events []notify.Event
}

// Publish queues a notification that is delivered once the unit of work has
// committed. Events of a rolled back unit of work are discarded.
func (t *Tx) Publish(event notify.Event) {
	for _, queued := range t.events {
		if queued == event {
			return
		}
	}
	t.events = append(t.events, event)
}

// Engine owns the in-memory database. Writers are serialized; readers run
// concurrently with each other but never alongside a writer.
type Engine struct {
	mu   sync.RWMutex
	db   *sql.DB
	conn *sql.Conn

	images  ImageStore
	backups MutationObserver
	hub     *notify.Hub
	metrics *metrics.Storage
	logger  *slog.Logger
}

type engineOptions struct {
	Images  ImageStore
	Backups MutationObserver
	Hub     *notify.Hub
	Metrics *metrics.Storage
	Logger  *slog.Logger
}

func newEngine(ctx context.Context, opts engineOptions) (*Engine, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	e := &Engine{
		images:  opts.Images,
		backups: opts.Backups,
		hub:     opts.Hub,
		metrics: opts.Metrics,
		logger:  logger,
	}
	if err := e.openDB(ctx); err != nil {
		return nil, err
	}
	return e, nil
}

func (e *Engine) openDB(ctx context.Context) error {
	db, err := sql.Open("sqlite", memoryDSN)
	if err != nil {
		return fmt.Errorf("open engine: %w", err)
	}
	// Every connection to :memory: is a separate database, so the pool is
	// pinned to the one connection held in conn.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	conn, err := db.Conn(ctx)
	if err != nil {
		_ = db.Close()
		return fmt.Errorf("open engine: acquire connection: %w", err)
	}
	if _, err := conn.ExecContext(ctx, pragmaForeignKeysOn); err != nil {
		_ = conn.Close()
		_ = db.Close()
		return fmt.Errorf("configure sqlite %q: %w", pragmaForeignKeysOn, err)
	}
	e.db = db
	e.conn = conn
	return nil
}

func (e *Engine) closeDB() error {
	if e.conn == nil {
		return nil
	}
	connErr := e.conn.Close()
	dbErr := e.db.Close()
	e.conn, e.db = nil, nil
	if connErr != nil {
		return connErr
	}
	return dbErr
}

func (e *Engine) Close() error {
	if e == nil {
		return nil
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closeDB()
}

// Read runs fn with the shared lock held.
func (e *Engine) Read(ctx context.Context, fn func(q Querier) error) error {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.conn == nil {
		return fmt.Errorf("read: engine is closed")
	}
	return fn(e.conn)
}

// Write runs fn as one unit of work: its statements commit atomically, the
// resulting image is persisted and the backup manager counts one mutation.
// fn must only touch the database through tx. A failed save is reported as
// *StorageIOError after the commit; the in-memory state keeps the change.
func (e *Engine) Write(ctx context.Context, fn func(tx *Tx) error) error {
	e.mu.Lock()
	events, err := e.writeLocked(ctx, fn)
	e.mu.Unlock()

	for _, event := range events {
		e.hub.Publish(event)
	}
	return err
}

func (e *Engine) writeLocked(ctx context.Context, fn func(tx *Tx) error) ([]notify.Event, error) {
	if e.conn == nil {
		return nil, fmt.Errorf("write: engine is closed")
	}
	sqlTx, err := e.conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("write: begin tx: %w", err)
	}
	tx := &Tx{Tx: sqlTx}
	if err := fn(tx); err != nil {
		_ = sqlTx.Rollback()
		return nil, err
	}
	if err := sqlTx.Commit(); err != nil {
		return nil, fmt.Errorf("write: commit: %w", classify(err, ""))
	}
	e.metrics.ObserveMutation()

	image, err := e.persistLocked(ctx)
	if err != nil {
		return tx.events, err
	}
	if e.backups != nil {
		if _, err := e.backups.AfterMutation(ctx, image); err != nil {
			e.logger.Warn("backup after mutation failed", "error", err)
		}
	}
	return tx.events, nil
}

// persistLocked serializes the database and writes the primary image. The
// caller holds the write lock.
func (e *Engine) persistLocked(ctx context.Context) ([]byte, error) {
	start := time.Now()
	image, err := e.serializeLocked(ctx)
	if err == nil && e.images != nil {
		err = e.images.Save(ctx, image)
	}
	e.metrics.ObserveSnapshot(len(image), time.Since(start), err)
	if err != nil {
		e.logger.Error("persist state image failed", "error", err)
		return nil, &StorageIOError{Op: "save", Err: err}
	}
	return image, nil
}

// Image returns a serialized copy of the current database.
func (e *Engine) Image(ctx context.Context) ([]byte, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.conn == nil {
		return nil, fmt.Errorf("image: engine is closed")
	}
	return e.serializeLocked(ctx)
}

type serializer interface {
	Serialize() ([]byte, error)
}

type restorer interface {
	NewRestore(srcURI string) (*sqlite.Backup, error)
}

func (e *Engine) serializeLocked(ctx context.Context) ([]byte, error) {
	var image []byte
	err := e.conn.Raw(func(driverConn any) error {
		s, ok := driverConn.(serializer)
		if !ok {
			return fmt.Errorf("driver connection %T cannot serialize", driverConn)
		}
		var err error
		image, err = s.Serialize()
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("serialize: %w", err)
	}
	return image, nil
}

// loadImageLocked replaces the database contents with image. The image is
// staged in a private temp file and copied page by page with the online
// backup API, so the engine keeps owning all of its memory.
func (e *Engine) loadImageLocked(ctx context.Context, image []byte) error {
	if len(image) == 0 {
		return fmt.Errorf("load image: image is empty")
	}
	dir, err := os.MkdirTemp("", "quarters-image-")
	if err != nil {
		return fmt.Errorf("load image: stage: %w", err)
	}
	defer func() {
		if err := os.RemoveAll(dir); err != nil {
			e.logger.Warn("remove staged image", "path", dir, "error", err)
		}
	}()
	path := filepath.Join(dir, "image.db")
	if err := os.WriteFile(path, image, 0o600); err != nil {
		return fmt.Errorf("load image: stage: %w", err)
	}

	err = e.conn.Raw(func(driverConn any) error {
		r, ok := driverConn.(restorer)
		if !ok {
			return fmt.Errorf("driver connection %T cannot restore", driverConn)
		}
		bck, err := r.NewRestore(path)
		if err != nil {
			return err
		}
		for more := true; more; {
			if more, err = bck.Step(-1); err != nil {
				_ = bck.Finish()
				return err
			}
		}
		return bck.Finish()
	})
	if err != nil {
		return fmt.Errorf("load image: %w", err)
	}
	if _, err := e.conn.ExecContext(ctx, pragmaForeignKeysOn); err != nil {
		return fmt.Errorf("configure sqlite %q: %w", pragmaForeignKeysOn, err)
	}
	var check string
	if err := e.conn.QueryRowContext(ctx, `PRAGMA quick_check`).Scan(&check); err != nil {
		return fmt.Errorf("load image: integrity check: %w", err)
	}
	if check != "ok" {
		return fmt.Errorf("load image: integrity check: %s", check)
	}
	return nil
}
