// Package audit keeps one hash chain of audit events per tenant on top of
// the storage audit log.
package audit

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/amanthanvi/quarters/internal/storage"
)

const verifyPageSize = 1000

type Service struct {
	store    *storage.Store
	pageSize int
}

func NewService(store *storage.Store) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("new audit service: store is nil")
	}
	return &Service{store: store, pageSize: verifyPageSize}, nil
}

// Record appends event to its tenant's chain as its own unit of work.
func (s *Service) Record(ctx context.Context, event Event) error {
	return s.store.Write(ctx, func(tx *storage.Tx) error {
		return s.RecordTx(ctx, tx, event)
	})
}

// RecordTx appends event inside an open unit of work, so the entry commits
// or rolls back together with the change it describes.
func (s *Service) RecordTx(ctx context.Context, tx *storage.Tx, event Event) error {
	event.TenantID = strings.TrimSpace(event.TenantID)
	if event.TenantID == "" {
		return fmt.Errorf("record audit event: tenant id is required")
	}
	if strings.TrimSpace(event.Action) == "" {
		return fmt.Errorf("record audit event: action is required")
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	} else {
		event.Timestamp = event.Timestamp.UTC()
	}
	if event.Result == "" {
		event.Result = ResultSuccess
	}

	details, err := canonicalizeDetails(event.Details)
	if err != nil {
		return fmt.Errorf("record audit event: canonicalize details: %w", err)
	}

	log := s.store.AuditLog.Tx(tx)
	tip, err := log.ChainTip(ctx, event.TenantID)
	if err != nil {
		return fmt.Errorf("record audit event: %w", err)
	}

	entry := &storage.AuditLogEntry{
		TenantID:    event.TenantID,
		ActorID:     event.Actor,
		Action:      event.Action,
		TargetType:  event.TargetType,
		TargetID:    event.TargetID,
		Result:      event.Result,
		DetailsJSON: string(details),
		PrevHash:    tip,
		CreatedAt:   event.Timestamp,
	}
	payload, err := chainPayload(*entry)
	if err != nil {
		return fmt.Errorf("record audit event: canonical payload: %w", err)
	}
	entry.EventHash = chainHashHex(tip, payload)

	if _, err := log.Create(ctx, storage.ForTenant(event.TenantID), entry); err != nil {
		return fmt.Errorf("record audit event: append: %w", err)
	}
	return nil
}

// Verify recomputes the tenant's chain from the first entry. Entries past
// the first mismatch are counted but not checked.
func (s *Service) Verify(ctx context.Context, tenantID string) (*VerifyResult, error) {
	result := &VerifyResult{TenantID: tenantID}
	prev := ""
	err := s.store.AuditLog.Walk(ctx, tenantID, s.pageSize, func(entry storage.AuditLogEntry) error {
		result.EventCount++
		if result.Error != "" {
			return nil
		}
		payload, err := chainPayload(entry)
		if err != nil {
			result.Error = fmt.Sprintf("event %s: %v", entry.ID, err)
			return nil
		}
		expected := chainHashHex(prev, payload)
		if subtle.ConstantTimeCompare([]byte(entry.PrevHash), []byte(prev)) != 1 ||
			subtle.ConstantTimeCompare([]byte(entry.EventHash), []byte(expected)) != 1 {
			result.Error = fmt.Sprintf("hash mismatch at event %s", entry.ID)
			return nil
		}
		prev = entry.EventHash
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("verify audit chain: %w", err)
	}

	result.Valid = result.Error == ""
	result.ChainTip = prev
	return result, nil
}

// VerifyAll verifies the chain of every tenant.
func (s *Service) VerifyAll(ctx context.Context) ([]VerifyResult, error) {
	tenants, err := s.store.Tenants.GetAll(ctx, storage.AllTenants)
	if err != nil {
		return nil, fmt.Errorf("verify audit chains: %w", err)
	}
	out := make([]VerifyResult, 0, len(tenants))
	for _, tenant := range tenants {
		result, err := s.Verify(ctx, tenant.ID)
		if err != nil {
			return nil, err
		}
		out = append(out, *result)
	}
	return out, nil
}

func (s *Service) List(ctx context.Context, scope storage.Scope, filter Filter) ([]RecordedEvent, error) {
	entries, err := s.store.AuditLog.List(ctx, scope, storage.AuditFilter{
		Action:   filter.Action,
		TargetID: filter.TargetID,
		ActorID:  filter.Actor,
		Since:    filter.Since,
		Until:    filter.Until,
		Limit:    filter.Limit,
	})
	if err != nil {
		return nil, fmt.Errorf("list audit events: %w", err)
	}

	out := make([]RecordedEvent, 0, len(entries))
	for _, entry := range entries {
		out = append(out, RecordedEvent{
			ID:          entry.ID,
			TenantID:    entry.TenantID,
			Timestamp:   entry.CreatedAt,
			Actor:       entry.ActorID,
			Action:      entry.Action,
			TargetType:  entry.TargetType,
			TargetID:    entry.TargetID,
			Result:      entry.Result,
			DetailsJSON: entry.DetailsJSON,
			PrevHash:    entry.PrevHash,
			EventHash:   entry.EventHash,
		})
	}
	return out, nil
}

type chainEvent struct {
	TenantID   string          `json:"tenant_id"`
	Timestamp  string          `json:"timestamp"`
	Actor      string          `json:"actor,omitempty"`
	Action     string          `json:"action"`
	TargetType string          `json:"target_type,omitempty"`
	TargetID   string          `json:"target_id,omitempty"`
	Result     string          `json:"result"`
	Details    json.RawMessage `json:"details"`
}

func chainPayload(entry storage.AuditLogEntry) ([]byte, error) {
	details := strings.TrimSpace(entry.DetailsJSON)
	if details == "" {
		details = "{}"
	}
	if !json.Valid([]byte(details)) {
		return nil, fmt.Errorf("invalid details json")
	}
	return canonicalJSON(chainEvent{
		TenantID:   entry.TenantID,
		Timestamp:  entry.CreatedAt.UTC().Format(time.RFC3339Nano),
		Actor:      entry.ActorID,
		Action:     entry.Action,
		TargetType: entry.TargetType,
		TargetID:   entry.TargetID,
		Result:     entry.Result,
		Details:    json.RawMessage(details),
	})
}

func chainHashHex(prevHash string, canonicalPayload []byte) string {
	input := append([]byte(prevHash), canonicalPayload...)
	sum := sha256.Sum256(input)
	return hex.EncodeToString(sum[:])
}
