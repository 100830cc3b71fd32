package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/amanthanvi/quarters/internal/access"
	"github.com/amanthanvi/quarters/internal/app"
	"github.com/spf13/cobra"
)

func newAccessCommand(deps commandDeps) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "access",
		Short: "Permission checks",
		Example: "  quarters access keys\n" +
			"  quarters access check EMPLOYEE.VIEW --user user-admin --tenant tenant-default",
	}
	cmd.AddCommand(
		newAccessCheckCommand(deps),
		newAccessKeysCommand(deps),
	)
	return cmd
}

func newAccessCheckCommand(deps commandDeps) *cobra.Command {
	var (
		userID   string
		tenantID string
		enforce  bool
	)
	cmd := &cobra.Command{
		Use:   "check <permission-key>",
		Short: "Show whether a user holds a permission in a tenant and why",
		Args:  exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key := strings.ToUpper(strings.TrimSpace(args[0]))
			if !access.IsKnown(key) {
				return usageErrorf("unknown permission key %q (see `quarters access keys`)", args[0])
			}
			if strings.TrimSpace(userID) == "" || strings.TrimSpace(tenantID) == "" {
				return usageErrorf("access check requires --user and --tenant")
			}
			return withRuntime(cmd.Context(), deps, nil, func(ctx context.Context, rt *app.Runtime) error {
				decision, err := rt.Access.Check(ctx, userID, tenantID, key)
				if err != nil {
					return err
				}
				if deps.globals.JSON {
					if err := printJSON(deps.out, map[string]any{
						"permission_key": key,
						"allowed":        decision.Allowed,
						"source":         string(decision.Source),
					}); err != nil {
						return err
					}
				} else if !deps.globals.Quiet {
					if _, err := fmt.Fprintf(deps.out, "%s allowed=%t source=%s\n", key, decision.Allowed, decision.Source); err != nil {
						return err
					}
				}
				if enforce {
					return rt.Access.Authorize(ctx, userID, tenantID, key)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "User id")
	cmd.Flags().StringVar(&tenantID, "tenant", "", "Tenant id")
	cmd.Flags().BoolVar(&enforce, "enforce", false, "Exit non-zero and audit the denial when not allowed")
	return cmd
}

func newAccessKeysCommand(deps commandDeps) *cobra.Command {
	return &cobra.Command{
		Use:   "keys",
		Short: "List every permission key",
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) != 0 {
				return usageErrorf("access keys does not accept positional arguments")
			}
			keys := access.Keys()
			if deps.globals.JSON {
				out := make([]map[string]string, 0, len(keys))
				for _, key := range keys {
					out = append(out, map[string]string{"key": key, "description": access.Describe(key)})
				}
				return mapCommandError(printJSON(deps.out, out))
			}
			for _, key := range keys {
				if _, err := fmt.Fprintf(deps.out, "%-24s %s\n", key, access.Describe(key)); err != nil {
					return mapCommandError(err)
				}
			}
			return nil
		},
	}
}

func newOverrideCommand(deps commandDeps) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "override",
		Short: "Per-user permission overrides",
		Example: "  quarters override set --user <user-id> --tenant tenant-default --allow USER.CREATE --deny ROOM.MANAGE\n" +
			"  quarters override list --user <user-id>",
	}
	cmd.AddCommand(
		newOverrideSetCommand(deps),
		newOverrideListCommand(deps),
	)
	return cmd
}

func newOverrideSetCommand(deps commandDeps) *cobra.Command {
	var (
		userID   string
		tenantID string
		allow    []string
		deny     []string
	)
	cmd := &cobra.Command{
		Use:   "set",
		Short: "Replace a user's overrides in one tenant",
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) != 0 {
				return usageErrorf("override set does not accept positional arguments")
			}
			if strings.TrimSpace(userID) == "" || strings.TrimSpace(tenantID) == "" {
				return usageErrorf("override set requires --user and --tenant")
			}
			allow, deny = normalizeKeys(allow), normalizeKeys(deny)
			for _, key := range allow {
				for _, other := range deny {
					if key == other {
						return usageErrorf("%s is both allowed and denied", key)
					}
				}
			}
			return withRuntime(cmd.Context(), deps, nil, func(ctx context.Context, rt *app.Runtime) error {
				if err := rt.Access.SaveTenantOverrides(ctx, actor(deps.globals), userID, tenantID, allow, deny); err != nil {
					return err
				}
				if deps.globals.JSON {
					return printJSON(deps.out, map[string]any{
						"user_id":   userID,
						"tenant_id": tenantID,
						"allow":     allow,
						"deny":      deny,
					})
				}
				if deps.globals.Quiet {
					return nil
				}
				_, err := fmt.Fprintf(deps.out, "overrides saved: %d allowed, %d denied\n", len(allow), len(deny))
				return err
			})
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "User id")
	cmd.Flags().StringVar(&tenantID, "tenant", "", "Tenant id")
	cmd.Flags().StringSliceVar(&allow, "allow", nil, "Permission keys to grant")
	cmd.Flags().StringSliceVar(&deny, "deny", nil, "Permission keys to deny")
	return cmd
}

func newOverrideListCommand(deps commandDeps) *cobra.Command {
	var userID string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List a user's overrides in every tenant",
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) != 0 {
				return usageErrorf("override list does not accept positional arguments")
			}
			if strings.TrimSpace(userID) == "" {
				return usageErrorf("override list requires --user")
			}
			return withRuntime(cmd.Context(), deps, nil, func(ctx context.Context, rt *app.Runtime) error {
				overrides, err := rt.Store.Overrides.ListForUser(ctx, userID)
				if err != nil {
					return err
				}
				if deps.globals.JSON {
					out := make([]map[string]any, 0, len(overrides))
					for _, o := range overrides {
						out = append(out, map[string]any{
							"tenant_id":      o.TenantID,
							"permission_key": o.PermissionKey,
							"is_allowed":     o.IsAllowed,
						})
					}
					return printJSON(deps.out, out)
				}
				for _, o := range overrides {
					verdict := "deny"
					if o.IsAllowed {
						verdict = "allow"
					}
					if _, err := fmt.Fprintf(deps.out, "%s\t%s\t%s\n", o.TenantID, o.PermissionKey, verdict); err != nil {
						return err
					}
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "User id")
	return cmd
}

func normalizeKeys(keys []string) []string {
	out := make([]string, 0, len(keys))
	seen := map[string]bool{}
	for _, key := range keys {
		key = strings.ToUpper(strings.TrimSpace(key))
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, key)
	}
	return out
}
