package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/amanthanvi/quarters/internal/app"
	"github.com/spf13/cobra"
)

func newTenantCommand(deps commandDeps) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tenant",
		Short: "Tenant operations",
		Example: "  printf '%s\\n' \"$PASSWORD\" | quarters tenant provision --code NORTH --name \"North Camp\" --admin-username north-admin --admin-password-stdin\n" +
			"  quarters tenant list --user user-admin",
	}
	cmd.AddCommand(
		newTenantProvisionCommand(deps),
		newTenantListCommand(deps),
	)
	return cmd
}

func newTenantProvisionCommand(deps commandDeps) *cobra.Command {
	var (
		code          string
		name          string
		address       string
		adminUsername string
		adminFullName string
		passwordStdin bool
	)
	cmd := &cobra.Command{
		Use:   "provision",
		Short: "Create a tenant together with its first administrator",
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) != 0 {
				return usageErrorf("tenant provision does not accept positional arguments")
			}
			if strings.TrimSpace(code) == "" {
				return usageErrorf("tenant provision requires --code")
			}
			if strings.TrimSpace(adminUsername) == "" {
				return usageErrorf("tenant provision requires --admin-username")
			}
			if !passwordStdin {
				return usageErrorf("tenant provision requires --admin-password-stdin")
			}
			password, err := readSecretLine(cmd.InOrStdin(), "admin password")
			if err != nil {
				return err
			}

			return withRuntime(cmd.Context(), deps, nil, func(ctx context.Context, rt *app.Runtime) error {
				result, err := rt.Tenants.Provision(ctx, app.ProvisionTenantRequest{
					Code:          code,
					Name:          name,
					Address:       address,
					AdminUsername: adminUsername,
					AdminFullName: adminFullName,
					AdminPassword: password,
					Actor:         actor(deps.globals),
				})
				if err != nil {
					return err
				}
				if deps.globals.JSON {
					return printJSON(deps.out, map[string]any{
						"tenant_id":      result.Tenant.ID,
						"code":           result.Tenant.Code,
						"admin_user_id":  result.Admin.ID,
						"admin_username": result.Admin.Username,
					})
				}
				if deps.globals.Quiet {
					return nil
				}
				_, err = fmt.Fprintf(deps.out, "tenant provisioned: %s (%s) admin=%s\n",
					result.Tenant.ID, result.Tenant.Code, result.Admin.Username)
				return err
			})
		},
	}
	cmd.Flags().StringVar(&code, "code", "", "Unique tenant code")
	cmd.Flags().StringVar(&name, "name", "", "Tenant display name")
	cmd.Flags().StringVar(&address, "address", "", "Tenant address")
	cmd.Flags().StringVar(&adminUsername, "admin-username", "", "Username of the tenant administrator")
	cmd.Flags().StringVar(&adminFullName, "admin-full-name", "", "Full name of the tenant administrator")
	cmd.Flags().BoolVar(&passwordStdin, "admin-password-stdin", false, "Read the administrator password from stdin")
	return cmd
}

func newTenantListCommand(deps commandDeps) *cobra.Command {
	var userID string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tenants, optionally only those a user can reach",
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) != 0 {
				return usageErrorf("tenant list does not accept positional arguments")
			}
			return withRuntime(cmd.Context(), deps, nil, func(ctx context.Context, rt *app.Runtime) error {
				tenants, err := rt.Tenants.List(ctx, strings.TrimSpace(userID))
				if err != nil {
					return err
				}
				if deps.globals.JSON {
					out := make([]map[string]any, 0, len(tenants))
					for _, t := range tenants {
						out = append(out, map[string]any{
							"id":     t.ID,
							"code":   t.Code,
							"name":   t.Name,
							"status": string(t.Status),
						})
					}
					return printJSON(deps.out, out)
				}
				for _, t := range tenants {
					if _, err := fmt.Fprintf(deps.out, "%s\t%s\t%s\t%s\n", t.ID, t.Code, t.Name, t.Status); err != nil {
						return err
					}
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "Only list tenants this user can reach")
	return cmd
}
