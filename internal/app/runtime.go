package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/amanthanvi/quarters/internal/audit"
	"github.com/amanthanvi/quarters/internal/backup"
	"github.com/amanthanvi/quarters/internal/blob"
	"github.com/amanthanvi/quarters/internal/config"
	"github.com/amanthanvi/quarters/internal/crypto"
	"github.com/amanthanvi/quarters/internal/metrics"
	"github.com/amanthanvi/quarters/internal/notify"
	"github.com/amanthanvi/quarters/internal/snapshot"
	"github.com/amanthanvi/quarters/internal/storage"
	"github.com/prometheus/client_golang/prometheus"
)

type RuntimeOptions struct {
	// Keyspace holds the primary image and the backup slots. Required.
	Keyspace blob.Keyspace
	Config   config.Config
	Logger   *slog.Logger
	// Registry receives the storage metrics. Nil leaves them unregistered.
	Registry prometheus.Registerer
	// AdminPassword takes precedence over Config.Seed.AdminPassword. It is
	// wiped once the store has taken a copy.
	AdminPassword []byte
}

// Runtime is an opened store with every service wired to it.
type Runtime struct {
	Config  config.Config
	Store   *storage.Store
	Backups *backup.Manager
	Hub     *notify.Hub
	Metrics *metrics.Storage

	Audit   *audit.Service
	Access  *AccessService
	Tenants *TenantService
	Housing *HousingService
	Backup  *BackupService

	sealer *crypto.Sealer
}

func OpenRuntime(ctx context.Context, opts RuntimeOptions) (*Runtime, error) {
	if opts.Keyspace == nil {
		return nil, errors.New("open runtime: keyspace is nil")
	}
	cfg := opts.Config
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	params := CredentialParams(cfg.Credentials)
	hasher, err := NewHasher(params)
	if err != nil {
		return nil, fmt.Errorf("open runtime: %w", err)
	}
	storageMetrics, err := metrics.NewStorage(opts.Registry)
	if err != nil {
		return nil, fmt.Errorf("open runtime: %w", err)
	}

	rt := &Runtime{Config: cfg, Hub: notify.NewHub(), Metrics: storageMetrics}
	backupOpts := backup.Options{
		Threshold: cfg.Backup.Threshold,
		Retention: cfg.Backup.Retention,
		Compress:  cfg.Backup.Compress,
		Metrics:   storageMetrics,
		Logger:    logger.With("component", "backup"),
	}
	if cfg.Backup.Passphrase != "" {
		rt.sealer, err = crypto.NewSealer([]byte(cfg.Backup.Passphrase), params)
		if err != nil {
			return nil, fmt.Errorf("open runtime: %w", err)
		}
		backupOpts.Sealer = rt.sealer
	}
	rt.Backups, err = backup.New(opts.Keyspace, backupOpts)
	if err != nil {
		_ = rt.Close()
		return nil, fmt.Errorf("open runtime: %w", err)
	}

	images, err := snapshot.New(opts.Keyspace)
	if err != nil {
		_ = rt.Close()
		return nil, fmt.Errorf("open runtime: %w", err)
	}
	password := opts.AdminPassword
	if len(password) == 0 && cfg.Seed.AdminPassword != "" {
		password = []byte(cfg.Seed.AdminPassword)
	}
	rt.Store, err = storage.Open(ctx, storage.Options{
		Images:  images,
		Backups: rt.Backups,
		Hub:     rt.Hub,
		Metrics: storageMetrics,
		Logger:  logger.With("component", "storage"),
		Seed: storage.SeedOptions{
			TenantCode:     cfg.Seed.TenantCode,
			TenantName:     cfg.Seed.TenantName,
			AdminUsername:  cfg.Seed.AdminUsername,
			AdminPassword:  password,
			HashCredential: hasher.Hash,
		},
	})
	if err != nil {
		_ = rt.Close()
		return nil, err
	}

	rt.Audit, err = audit.NewService(rt.Store)
	if err != nil {
		_ = rt.Close()
		return nil, fmt.Errorf("open runtime: %w", err)
	}
	rt.Access = NewAccessService(rt.Store, rt.Audit, hasher)
	rt.Tenants = NewTenantService(rt.Store, rt.Audit, rt.Access, hasher)
	rt.Housing = NewHousingService(rt.Store, rt.Audit)
	rt.Backup = NewBackupService(rt.Store, rt.Backups, rt.Audit)
	return rt, nil
}

// CredentialParams maps the credentials config section onto argon2id
// parameters.
func CredentialParams(cfg config.CredentialsConfig) crypto.Argon2Params {
	params := crypto.DefaultArgon2Params()
	if cfg.Argon2MemoryKiB > 0 {
		params.Memory = uint32(cfg.Argon2MemoryKiB)
	}
	if cfg.Argon2Iterations > 0 {
		params.Iterations = uint32(cfg.Argon2Iterations)
	}
	return params
}

// Close releases the store, the backup codecs, the sealer key and the hub.
// It is safe to call more than once.
func (r *Runtime) Close() error {
	if r == nil {
		return nil
	}
	var errs []error
	if r.Store != nil {
		errs = append(errs, r.Store.Close())
		r.Store = nil
	}
	if r.Backups != nil {
		errs = append(errs, r.Backups.Close())
		r.Backups = nil
	}
	if r.sealer != nil {
		r.sealer.Destroy()
		r.sealer = nil
	}
	if r.Hub != nil {
		r.Hub.Close()
	}
	return errors.Join(errs...)
}
