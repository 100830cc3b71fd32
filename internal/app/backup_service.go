package app

import (
	"context"
	"fmt"

	"github.com/amanthanvi/quarters/internal/audit"
	"github.com/amanthanvi/quarters/internal/backup"
	"github.com/amanthanvi/quarters/internal/storage"
)

type BackupService struct {
	store   *storage.Store
	backups *backup.Manager
	audit   *audit.Service
}

func NewBackupService(store *storage.Store, backups *backup.Manager, auditSvc *audit.Service) *BackupService {
	return &BackupService{store: store, backups: backups, audit: auditSvc}
}

func (s *BackupService) List(ctx context.Context) ([]backup.Slot, error) {
	return s.backups.List(ctx)
}

// Snapshot writes a backup slot now, outside the mutation count. When
// tenantID is set the snapshot is audited there.
func (s *BackupService) Snapshot(ctx context.Context, tenantID, actor string) (backup.Slot, error) {
	image, err := s.store.Image(ctx)
	if err != nil {
		return backup.Slot{}, fmt.Errorf("snapshot: %w", err)
	}
	slot, err := s.backups.Snapshot(ctx, image)
	if err != nil {
		return backup.Slot{}, fmt.Errorf("snapshot: %w", err)
	}
	if tenantID != "" {
		if err := s.audit.Record(ctx, audit.Event{
			TenantID:   tenantID,
			Actor:      actor,
			Action:     audit.ActionBackupCreate,
			TargetType: "backup",
			TargetID:   slot.Key,
			Details:    map[string]any{"size": slot.Size},
		}); err != nil {
			return slot, fmt.Errorf("snapshot: %w", err)
		}
	}
	return slot, nil
}

// Restore replaces the live state with the slot under key. The restore is
// audited in the default tenant of the restored state.
func (s *BackupService) Restore(ctx context.Context, key, actor string) error {
	image, err := s.backups.Read(ctx, key)
	if err != nil {
		return fmt.Errorf("restore backup: %w", err)
	}
	if err := s.store.Restore(ctx, image); err != nil {
		return fmt.Errorf("restore backup: %w", err)
	}
	return s.recordState(ctx, actor, audit.ActionBackupRestore, key)
}

// Reset discards all state and reseeds. Backup slots are kept.
func (s *BackupService) Reset(ctx context.Context, actor string) error {
	if err := s.store.Reset(ctx); err != nil {
		return err
	}
	return s.recordState(ctx, actor, audit.ActionStorageReset, "")
}

func (s *BackupService) recordState(ctx context.Context, actor, action, target string) error {
	err := s.audit.Record(ctx, audit.Event{
		TenantID:   storage.DefaultTenantID,
		Actor:      actor,
		Action:     action,
		TargetType: "storage",
		TargetID:   target,
	})
	if err != nil {
		return fmt.Errorf("%s: %w", action, err)
	}
	return nil
}
