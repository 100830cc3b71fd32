package storage

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/amanthanvi/quarters/internal/metrics"
	"github.com/amanthanvi/quarters/internal/notify"
	"github.com/awnumar/memguard"
)

type Options struct {
	// Images is required. Backups, Hub and Metrics are optional.
	Images  ImageStore
	Backups MutationObserver
	Hub     *notify.Hub
	Metrics *metrics.Storage
	Logger  *slog.Logger

	Seed SeedOptions
	// Migrations defaults to DefaultMigrations().
	Migrations []Migration
}

type Store struct {
	engine       *Engine
	images       ImageStore
	seed         SeedOptions
	seedPassword *memguard.LockedBuffer
	migrations   []Migration
	logger       *slog.Logger

	Active *TenantContext

	Tenants      *Repository[Tenant]
	Roles        *Repository[Role]
	Users        *Repository[User]
	Employees    *Repository[Employee]
	Buildings    *Repository[Building]
	Floors       *Repository[Floor]
	Rooms        *Repository[Room]
	Assignments  *Repository[Assignment]
	Reservations *Repository[Reservation]
	Hostings     *Repository[Hosting]
	Maintenance  *Repository[MaintenanceRequest]
	AuditLog     *AuditLogRepository
	Overrides    *OverrideRepository
	TenantAccess *TenantAccessRepository
	Settings     *SettingsRepository
}

// Open loads the primary image (if any), migrates it to the current schema,
// asserts seed data and persists the result.
func Open(ctx context.Context, opts Options) (*Store, error) {
	if opts.Images == nil {
		return nil, fmt.Errorf("open storage: image store is nil")
	}
	engine, err := newEngine(ctx, engineOptions{
		Images:  opts.Images,
		Backups: opts.Backups,
		Hub:     opts.Hub,
		Metrics: opts.Metrics,
		Logger:  opts.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}

	migrations := opts.Migrations
	if migrations == nil {
		migrations = DefaultMigrations()
	}
	store := &Store{
		engine:     engine,
		images:     opts.Images,
		seed:       opts.Seed,
		migrations: migrations,
		logger:     engine.logger,
		Active:     &TenantContext{},
	}
	if len(opts.Seed.AdminPassword) > 0 {
		store.seedPassword = memguard.NewBufferFromBytes(opts.Seed.AdminPassword)
	}
	store.seed.AdminPassword = nil
	store.wire()

	if err := store.load(ctx); err != nil {
		_ = store.Close()
		return nil, err
	}
	return store, nil
}

func (s *Store) wire() {
	e, tc := s.engine, s.Active
	s.Tenants = NewRepository(e, tc, TenantDescriptor)
	s.Roles = NewRepository(e, tc, RoleDescriptor)
	s.Users = NewRepository(e, tc, UserDescriptor)
	s.Employees = NewRepository(e, tc, EmployeeDescriptor)
	s.Buildings = NewRepository(e, tc, BuildingDescriptor)
	s.Floors = NewRepository(e, tc, FloorDescriptor)
	s.Rooms = NewRepository(e, tc, RoomDescriptor)
	s.Assignments = NewRepository(e, tc, AssignmentDescriptor)
	s.Reservations = NewRepository(e, tc, ReservationDescriptor)
	s.Hostings = NewRepository(e, tc, HostingDescriptor)
	s.Maintenance = NewRepository(e, tc, MaintenanceDescriptor)
	s.AuditLog = &AuditLogRepository{Repository: NewRepository(e, tc, AuditLogDescriptor)}
	s.Overrides = &OverrideRepository{engine: e}
	s.TenantAccess = &TenantAccessRepository{engine: e}
	s.Settings = &SettingsRepository{engine: e}
}

func (s *Store) load(ctx context.Context) error {
	image, ok, err := s.images.Load(ctx)
	if err != nil {
		return &StorageIOError{Op: "load", Err: err}
	}

	s.engine.mu.Lock()
	defer s.engine.mu.Unlock()

	if ok {
		if err := s.engine.loadImageLocked(ctx, image); err != nil {
			return &StorageIOError{Op: "load", Err: err}
		}
		s.logger.Debug("state image loaded", "bytes", len(image))
	}
	return s.bootstrapLocked(ctx)
}

// bootstrapLocked migrates, seeds and persists. The caller holds the write
// lock.
func (s *Store) bootstrapLocked(ctx context.Context) error {
	from, to, err := migrate(ctx, s.engine.conn, s.migrations)
	if err != nil {
		return err
	}
	if from != to {
		s.logger.Info("schema migrated", "from", from, "to", to)
	}

	opts := s.seed
	if s.seedPassword != nil {
		opts.AdminPassword = s.seedPassword.Bytes()
	}
	counts, err := seed(ctx, s.engine.conn, opts, s.logger)
	if err != nil {
		return err
	}
	if counts != (SeedCounts{}) {
		s.logger.Info("seed data inserted", "roles", counts.Roles, "tenants", counts.Tenants, "users", counts.Users)
	}

	if _, err := s.engine.persistLocked(ctx); err != nil {
		return err
	}
	return nil
}

// Reset discards the primary image and rebuilds an empty, freshly seeded
// database. Backup slots are left alone.
func (s *Store) Reset(ctx context.Context) error {
	s.engine.mu.Lock()
	defer s.engine.mu.Unlock()

	if err := s.images.Discard(ctx); err != nil {
		return &StorageIOError{Op: "discard", Err: err}
	}
	if err := s.engine.closeDB(); err != nil {
		s.logger.Warn("close engine during reset", "error", err)
	}
	if err := s.engine.openDB(ctx); err != nil {
		return fmt.Errorf("reset storage: %w", err)
	}
	s.Active.Switch("")
	if err := s.bootstrapLocked(ctx); err != nil {
		return fmt.Errorf("reset storage: %w", err)
	}
	s.logger.Info("storage reset")
	return nil
}

// Restore replaces the current state with image, typically a backup slot,
// then migrates, seeds and persists it. When image is unusable the previous
// state is put back and the error is returned.
func (s *Store) Restore(ctx context.Context, image []byte) error {
	s.engine.mu.Lock()
	defer s.engine.mu.Unlock()

	previous, err := s.engine.serializeLocked(ctx)
	if err != nil {
		return fmt.Errorf("restore storage: %w", err)
	}
	if err := s.engine.loadImageLocked(ctx, image); err != nil {
		s.rollbackLocked(ctx, previous)
		return &StorageIOError{Op: "restore", Err: err}
	}
	if err := s.bootstrapLocked(ctx); err != nil {
		s.rollbackLocked(ctx, previous)
		return fmt.Errorf("restore storage: %w", err)
	}
	s.Active.Switch("")
	s.logger.Info("storage restored", "bytes", len(image))
	return nil
}

func (s *Store) rollbackLocked(ctx context.Context, previous []byte) {
	if err := s.engine.loadImageLocked(ctx, previous); err != nil {
		s.logger.Error("put back previous state after failed restore", "error", err)
	}
}

func (s *Store) Close() error {
	if s == nil {
		return nil
	}
	if s.seedPassword != nil {
		s.seedPassword.Destroy()
		s.seedPassword = nil
	}
	return s.engine.Close()
}

// Write runs fn as a single unit of work. Bind repositories to tx with their
// Tx method; unbound repositories must not be used inside fn.
func (s *Store) Write(ctx context.Context, fn func(tx *Tx) error) error {
	return s.engine.Write(ctx, fn)
}

// Image returns a serialized copy of the current state.
func (s *Store) Image(ctx context.Context) ([]byte, error) {
	return s.engine.Image(ctx)
}

func (s *Store) SchemaVersion(ctx context.Context) (int, error) {
	var version int
	err := s.engine.Read(ctx, func(q Querier) error {
		var err error
		version, err = readSchemaVersion(ctx, q)
		return err
	})
	return version, err
}
