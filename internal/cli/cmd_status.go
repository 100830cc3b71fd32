package cli

import (
	"context"
	"fmt"

	"github.com/amanthanvi/quarters/internal/app"
	"github.com/amanthanvi/quarters/internal/storage"
	"github.com/spf13/cobra"
)

func newStatusCommand(deps commandDeps) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show schema version, tenants and backup state",
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) != 0 {
				return usageErrorf("status does not accept positional arguments")
			}
			return withRuntime(cmd.Context(), deps, nil, func(ctx context.Context, rt *app.Runtime) error {
				schemaVersion, err := rt.Store.SchemaVersion(ctx)
				if err != nil {
					return err
				}
				tenants, err := rt.Store.Tenants.GetAll(ctx, storage.AllTenants)
				if err != nil {
					return err
				}
				slots, err := rt.Backup.List(ctx)
				if err != nil {
					return err
				}

				if deps.globals.JSON {
					return printJSON(deps.out, map[string]any{
						"data_dir":         rt.Config.Storage.DataDir,
						"schema_version":   schemaVersion,
						"tenants":          len(tenants),
						"backup_slots":     len(slots),
						"backup_pending":   rt.Backups.Pending(),
						"backup_threshold": rt.Backups.Threshold(),
						"backup_retention": rt.Backups.Retention(),
					})
				}
				_, err = fmt.Fprintf(deps.out,
					"data dir: %s\nschema version: %d\ntenants: %d\nbackups: %d of %d kept, %d/%d mutations pending\n",
					rt.Config.Storage.DataDir, schemaVersion, len(tenants),
					len(slots), rt.Backups.Retention(), rt.Backups.Pending(), rt.Backups.Threshold(),
				)
				return err
			})
		},
	}
}

func newResetCommand(deps commandDeps) *cobra.Command {
	var passwordStdin bool

	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Discard all data and reseed the store (backups are kept)",
		Example: "  quarters reset --yes\n" +
			"  printf '%s\\n' \"$ADMIN_PASSWORD\" | quarters reset --yes --admin-password-stdin",
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) != 0 {
				return usageErrorf("reset does not accept positional arguments")
			}
			if !deps.globals.Yes {
				return usageErrorf("reset deletes every tenant and record; pass --yes to confirm")
			}
			var password []byte
			if passwordStdin {
				line, err := readSecretLine(cmd.InOrStdin(), "admin password")
				if err != nil {
					return err
				}
				password = line
			}
			return withRuntime(cmd.Context(), deps, password, func(ctx context.Context, rt *app.Runtime) error {
				if err := rt.Backup.Reset(ctx, actor(deps.globals)); err != nil {
					return err
				}
				if deps.globals.JSON {
					return printJSON(deps.out, map[string]any{"reset": true})
				}
				if deps.globals.Quiet {
					return nil
				}
				_, err := fmt.Fprintln(deps.out, "store reset to seed data")
				return err
			})
		},
	}
	cmd.Flags().BoolVar(&passwordStdin, "admin-password-stdin", false, "Read the reseeded admin password from stdin")
	return cmd
}
