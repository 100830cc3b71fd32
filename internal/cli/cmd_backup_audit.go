package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/amanthanvi/quarters/internal/app"
	"github.com/amanthanvi/quarters/internal/audit"
	"github.com/amanthanvi/quarters/internal/storage"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

func newBackupCommand(deps commandDeps) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Backup slot operations",
		Example: "  quarters backup list\n" +
			"  quarters backup snapshot --tenant tenant-default\n" +
			"  quarters backup restore backup/20260101T000000.000000000Z --yes",
	}
	cmd.AddCommand(
		newBackupListCommand(deps),
		newBackupSnapshotCommand(deps),
		newBackupRestoreCommand(deps),
	)
	return cmd
}

func newBackupListCommand(deps commandDeps) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List backup slots, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) != 0 {
				return usageErrorf("backup list does not accept positional arguments")
			}
			return withRuntime(cmd.Context(), deps, nil, func(ctx context.Context, rt *app.Runtime) error {
				slots, err := rt.Backup.List(ctx)
				if err != nil {
					return err
				}
				if deps.globals.JSON {
					out := make([]map[string]any, 0, len(slots))
					for _, slot := range slots {
						out = append(out, map[string]any{
							"key":        slot.Key,
							"created_at": slot.CreatedAt.UTC().Format(time.RFC3339Nano),
							"size":       slot.Size,
						})
					}
					return printJSON(deps.out, out)
				}
				if len(slots) == 0 {
					if deps.globals.Quiet {
						return nil
					}
					_, err := fmt.Fprintln(deps.out, "no backups")
					return err
				}
				for _, slot := range slots {
					if _, err := fmt.Fprintf(deps.out, "%s  %s  %s\n",
						slot.Key, humanize.Time(slot.CreatedAt), humanize.Bytes(uint64(slot.Size))); err != nil {
						return err
					}
				}
				return nil
			})
		},
	}
}

func newBackupSnapshotCommand(deps commandDeps) *cobra.Command {
	var tenantID string
	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Write a backup slot now",
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) != 0 {
				return usageErrorf("backup snapshot does not accept positional arguments")
			}
			return withRuntime(cmd.Context(), deps, nil, func(ctx context.Context, rt *app.Runtime) error {
				slot, err := rt.Backup.Snapshot(ctx, strings.TrimSpace(tenantID), actor(deps.globals))
				if err != nil {
					return err
				}
				if deps.globals.JSON {
					return printJSON(deps.out, map[string]any{"key": slot.Key, "size": slot.Size})
				}
				if deps.globals.Quiet {
					return nil
				}
				_, err = fmt.Fprintf(deps.out, "backup written: %s (%s)\n", slot.Key, humanize.Bytes(uint64(slot.Size)))
				return err
			})
		},
	}
	cmd.Flags().StringVar(&tenantID, "tenant", storage.DefaultTenantID, "Tenant whose audit log records the snapshot (empty skips auditing)")
	return cmd
}

func newBackupRestoreCommand(deps commandDeps) *cobra.Command {
	return &cobra.Command{
		Use:   "restore <key>",
		Short: "Replace the current state with a backup slot",
		Args:  exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !deps.globals.Yes {
				return usageErrorf("restore replaces the current state; pass --yes to confirm")
			}
			return withRuntime(cmd.Context(), deps, nil, func(ctx context.Context, rt *app.Runtime) error {
				if err := rt.Backup.Restore(ctx, args[0], actor(deps.globals)); err != nil {
					return err
				}
				if deps.globals.JSON {
					return printJSON(deps.out, map[string]any{"restored": args[0]})
				}
				if deps.globals.Quiet {
					return nil
				}
				_, err := fmt.Fprintf(deps.out, "restored: %s\n", args[0])
				return err
			})
		},
	}
}

func newAuditCommand(deps commandDeps) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Audit log operations",
		Example: "  quarters audit list --tenant tenant-default --limit 50\n" +
			"  quarters audit verify",
	}
	cmd.AddCommand(
		newAuditListCommand(deps),
		newAuditVerifyCommand(deps),
	)
	return cmd
}

func newAuditListCommand(deps commandDeps) *cobra.Command {
	var (
		tenantID string
		action   string
		limit    int
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List audit events",
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) != 0 {
				return usageErrorf("audit list does not accept positional arguments")
			}
			if limit < 0 {
				return usageErrorf("--limit must be >= 0")
			}
			scope := storage.AllTenants
			if strings.TrimSpace(tenantID) != "" {
				scope = storage.ForTenant(strings.TrimSpace(tenantID))
			}
			return withRuntime(cmd.Context(), deps, nil, func(ctx context.Context, rt *app.Runtime) error {
				events, err := rt.Audit.List(ctx, scope, audit.Filter{Action: action, Limit: limit})
				if err != nil {
					return err
				}
				if deps.globals.JSON {
					out := make([]map[string]any, 0, len(events))
					for _, event := range events {
						out = append(out, map[string]any{
							"id":          event.ID,
							"tenant_id":   event.TenantID,
							"timestamp":   event.Timestamp.UTC().Format(time.RFC3339Nano),
							"actor":       event.Actor,
							"action":      event.Action,
							"target_type": event.TargetType,
							"target_id":   event.TargetID,
							"result":      event.Result,
							"event_hash":  event.EventHash,
						})
					}
					return printJSON(deps.out, out)
				}
				if deps.globals.Quiet {
					return nil
				}
				for _, event := range events {
					if _, err := fmt.Fprintf(
						deps.out,
						"%s tenant=%s action=%s target=%s/%s result=%s actor=%s\n",
						event.ID,
						event.TenantID,
						event.Action,
						event.TargetType,
						event.TargetID,
						event.Result,
						event.Actor,
					); err != nil {
						return err
					}
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&tenantID, "tenant", "", "Only list events of this tenant")
	cmd.Flags().StringVar(&action, "action", "", "Only list events with this action")
	cmd.Flags().IntVar(&limit, "limit", 100, "Maximum number of events")
	return cmd
}

func newAuditVerifyCommand(deps commandDeps) *cobra.Command {
	var tenantID string
	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Verify the audit hash chain of one or every tenant",
		Example: "  quarters audit verify\n" +
			"  quarters --json audit verify --tenant tenant-default",
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) != 0 {
				return usageErrorf("audit verify does not accept positional arguments")
			}
			return withRuntime(cmd.Context(), deps, nil, func(ctx context.Context, rt *app.Runtime) error {
				var results []audit.VerifyResult
				if id := strings.TrimSpace(tenantID); id != "" {
					result, err := rt.Audit.Verify(ctx, id)
					if err != nil {
						return err
					}
					results = append(results, *result)
				} else {
					all, err := rt.Audit.VerifyAll(ctx)
					if err != nil {
						return err
					}
					results = all
				}

				broken := 0
				payload := make([]map[string]any, 0, len(results))
				for _, result := range results {
					if !result.Valid {
						broken++
					}
					payload = append(payload, map[string]any{
						"tenant_id":   result.TenantID,
						"valid":       result.Valid,
						"event_count": result.EventCount,
						"chain_tip":   result.ChainTip,
						"error":       result.Error,
					})
				}

				if deps.globals.JSON {
					if err := printJSON(deps.out, payload); err != nil {
						return err
					}
				} else if !deps.globals.Quiet {
					for _, result := range results {
						if _, err := fmt.Fprintf(deps.out, "tenant=%s valid=%t events=%d chain_tip=%s error=%s\n",
							result.TenantID, result.Valid, result.EventCount, result.ChainTip, result.Error); err != nil {
							return err
						}
					}
				}
				if broken > 0 {
					return errors.New("audit chain verification failed")
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&tenantID, "tenant", "", "Verify only this tenant")
	return cmd
}
