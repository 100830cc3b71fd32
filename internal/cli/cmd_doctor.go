package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/amanthanvi/quarters/internal/app"
	debugpkg "github.com/amanthanvi/quarters/internal/debug"
	"github.com/amanthanvi/quarters/internal/storage"
	"github.com/spf13/cobra"
)

func newDoctorCommand(deps commandDeps) *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check the config, the state image, audit chains and backup slots",
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) != 0 {
				return usageErrorf("doctor does not accept positional arguments")
			}
			bundle := collectDiagnostics(cmd.Context(), deps)

			if deps.globals.JSON {
				if err := printJSON(deps.out, map[string]any{"checks": bundle.Checks}); err != nil {
					return mapCommandError(err)
				}
			} else if !deps.globals.Quiet {
				for _, check := range bundle.Checks {
					state := "ok"
					if !check.OK {
						state = "fail"
					}
					if _, err := fmt.Fprintf(deps.out, "%s: %s (%s)\n", check.Name, state, check.Message); err != nil {
						return mapCommandError(err)
					}
				}
			}
			if bundle.Failed() {
				return asExitError(ExitCodeGeneric, fmt.Errorf("doctor: one or more checks failed"))
			}
			return nil
		},
	}
}

func newDebugCommand(deps commandDeps) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "debug",
		Short:   "Diagnostics helpers",
		Example: "  quarters debug bundle --output ./quarters-debug.json",
	}
	cmd.AddCommand(newDebugBundleCommand(deps))
	return cmd
}

func newDebugBundleCommand(deps commandDeps) *cobra.Command {
	var outputPath string
	cmd := &cobra.Command{
		Use:   "bundle",
		Short: "Collect sanitized diagnostics into a JSON bundle",
		Example: "  quarters debug bundle --output ./quarters-debug.json\n" +
			"  quarters --json debug bundle --output ./quarters-debug.json",
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) != 0 {
				return usageErrorf("debug bundle does not accept positional arguments")
			}
			if strings.TrimSpace(outputPath) == "" {
				return usageErrorf("debug bundle requires --output")
			}

			bundle := collectDiagnostics(cmd.Context(), deps)
			if err := debugpkg.WriteBundle(outputPath, bundle); err != nil {
				return mapCommandError(err)
			}
			if deps.globals.JSON {
				return printJSON(deps.out, map[string]any{"output": outputPath, "failed": bundle.Failed()})
			}
			if deps.globals.Quiet {
				return nil
			}
			_, err := fmt.Fprintf(deps.out, "debug bundle written: %s\n", outputPath)
			return mapCommandError(err)
		},
	}
	cmd.Flags().StringVar(&outputPath, "output", "", "Output JSON bundle path")
	return cmd
}

// collectDiagnostics never fails; every problem becomes a failed check.
func collectDiagnostics(ctx context.Context, deps commandDeps) debugpkg.Bundle {
	bundle := debugpkg.NewBundle()
	bundle.Version = map[string]any{
		"version":    deps.build.Version,
		"commit":     deps.build.Commit,
		"build_time": deps.build.BuildTime,
	}

	cfg, report, err := loadConfig(deps.globals)
	if err != nil {
		bundle.Checks = append(bundle.Checks, debugpkg.Check{Name: "config", OK: false, Message: err.Error()})
		return bundle
	}
	bundle.Config = debugpkg.SanitizedConfig(cfg)
	message := report.ConfigPath
	if len(report.PolicyOverrides) > 0 {
		message += fmt.Sprintf(" (%d settings forced by policy)", len(report.PolicyOverrides))
	}
	bundle.Checks = append(bundle.Checks, debugpkg.Check{Name: "config", OK: true, Message: message})

	err = withRuntime(ctx, deps, nil, func(ctx context.Context, rt *app.Runtime) error {
		bundle.Checks = append(bundle.Checks, storeCheck(ctx, rt, &bundle))
		bundle.Checks = append(bundle.Checks, auditCheck(ctx, rt))
		bundle.Checks = append(bundle.Checks, backupCheck(ctx, rt))
		return nil
	})
	if err != nil {
		bundle.Checks = append(bundle.Checks, debugpkg.Check{Name: "store", OK: false, Message: err.Error()})
	}
	return bundle
}

func storeCheck(ctx context.Context, rt *app.Runtime, bundle *debugpkg.Bundle) debugpkg.Check {
	version, err := rt.Store.SchemaVersion(ctx)
	if err != nil {
		return debugpkg.Check{Name: "store", OK: false, Message: err.Error()}
	}
	tenants, err := rt.Store.Tenants.GetAll(ctx, storage.AllTenants)
	if err != nil {
		return debugpkg.Check{Name: "store", OK: false, Message: err.Error()}
	}
	bundle.Store = map[string]any{
		"schema_version": version,
		"tenants":        len(tenants),
		"backup_pending": rt.Backups.Pending(),
	}
	if want := storage.CurrentSchemaVersion(); version != want {
		return debugpkg.Check{Name: "store", OK: false, Message: fmt.Sprintf("schema version %d, want %d", version, want)}
	}
	return debugpkg.Check{Name: "store", OK: true, Message: fmt.Sprintf("schema version %d, %d tenants", version, len(tenants))}
}

func auditCheck(ctx context.Context, rt *app.Runtime) debugpkg.Check {
	results, err := rt.Audit.VerifyAll(ctx)
	if err != nil {
		return debugpkg.Check{Name: "audit", OK: false, Message: err.Error()}
	}
	events := 0
	for _, result := range results {
		if !result.Valid {
			return debugpkg.Check{Name: "audit", OK: false, Message: fmt.Sprintf("tenant %s: %s", result.TenantID, result.Error)}
		}
		events += result.EventCount
	}
	return debugpkg.Check{Name: "audit", OK: true, Message: fmt.Sprintf("%d chains, %d events", len(results), events)}
}

func backupCheck(ctx context.Context, rt *app.Runtime) debugpkg.Check {
	slots, err := rt.Backup.List(ctx)
	if err != nil {
		return debugpkg.Check{Name: "backups", OK: false, Message: err.Error()}
	}
	for _, slot := range slots {
		if _, err := rt.Backups.Read(ctx, slot.Key); err != nil {
			return debugpkg.Check{Name: "backups", OK: false, Message: err.Error()}
		}
	}
	return debugpkg.Check{Name: "backups", OK: true, Message: fmt.Sprintf("%d readable slots", len(slots))}
}
