package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/amanthanvi/quarters/internal/app"
	"github.com/spf13/cobra"
)

func newUserCommand(deps commandDeps) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "User operations",
		Example: "  printf '%s\\n' \"$PASSWORD\" | quarters user create --tenant tenant-default --username frontdesk --role role-viewer --password-stdin\n" +
			"  quarters user tenants <user-id> --tenant tenant-default --tenant <tenant-id>\n" +
			"  printf '%s\\n' \"$PASSWORD\" | quarters user login --username frontdesk --password-stdin",
	}
	cmd.AddCommand(
		newUserCreateCommand(deps),
		newUserTenantsCommand(deps),
		newUserLoginCommand(deps),
	)
	return cmd
}

func newUserCreateCommand(deps commandDeps) *cobra.Command {
	var (
		tenantID      string
		username      string
		fullName      string
		roleID        string
		passwordStdin bool
	)
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a user in a tenant",
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) != 0 {
				return usageErrorf("user create does not accept positional arguments")
			}
			if strings.TrimSpace(username) == "" {
				return usageErrorf("user create requires --username")
			}
			if !passwordStdin {
				return usageErrorf("user create requires --password-stdin")
			}
			password, err := readSecretLine(cmd.InOrStdin(), "password")
			if err != nil {
				return err
			}

			return withRuntime(cmd.Context(), deps, nil, func(ctx context.Context, rt *app.Runtime) error {
				user, err := rt.Access.CreateUser(ctx, app.CreateUserRequest{
					TenantID: tenantID,
					Username: username,
					FullName: fullName,
					RoleID:   roleID,
					Password: password,
					Actor:    actor(deps.globals),
				})
				if err != nil {
					return err
				}
				if deps.globals.JSON {
					return printJSON(deps.out, map[string]any{
						"id":        user.ID,
						"tenant_id": user.TenantID,
						"username":  user.Username,
						"role_id":   user.RoleID,
					})
				}
				if deps.globals.Quiet {
					return nil
				}
				_, err = fmt.Fprintf(deps.out, "user created: %s (%s)\n", user.ID, user.Username)
				return err
			})
		},
	}
	cmd.Flags().StringVar(&tenantID, "tenant", "", "Primary tenant of the user")
	cmd.Flags().StringVar(&username, "username", "", "Login name, unique regardless of case")
	cmd.Flags().StringVar(&fullName, "full-name", "", "Display name")
	cmd.Flags().StringVar(&roleID, "role", app.TenantAdminRoleID, "Role id")
	cmd.Flags().BoolVar(&passwordStdin, "password-stdin", false, "Read the password from stdin")
	return cmd
}

func newUserTenantsCommand(deps commandDeps) *cobra.Command {
	var (
		tenantIDs       []string
		defaultTenantID string
	)
	cmd := &cobra.Command{
		Use:   "tenants <user-id>",
		Short: "Replace the set of tenants a user can reach",
		Args:  exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), deps, nil, func(ctx context.Context, rt *app.Runtime) error {
				err := rt.Access.SetTenants(ctx, app.SetTenantsRequest{
					UserID:          args[0],
					TenantIDs:       tenantIDs,
					DefaultTenantID: defaultTenantID,
					Actor:           actor(deps.globals),
				})
				if err != nil {
					return err
				}
				reachable, err := rt.Access.Tenants(ctx, args[0])
				if err != nil {
					return err
				}
				if deps.globals.JSON {
					return printJSON(deps.out, map[string]any{"user_id": args[0], "tenant_ids": reachable})
				}
				if deps.globals.Quiet {
					return nil
				}
				_, err = fmt.Fprintf(deps.out, "user %s can reach: %s\n", args[0], strings.Join(reachable, ", "))
				return err
			})
		},
	}
	cmd.Flags().StringArrayVar(&tenantIDs, "tenant", nil, "Tenant id (repeatable)")
	cmd.Flags().StringVar(&defaultTenantID, "default", "", "Default tenant (defaults to the first --tenant)")
	return cmd
}

func newUserLoginCommand(deps commandDeps) *cobra.Command {
	var (
		username      string
		passwordStdin bool
	)
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Check a username and password",
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) != 0 {
				return usageErrorf("user login does not accept positional arguments")
			}
			if strings.TrimSpace(username) == "" {
				return usageErrorf("user login requires --username")
			}
			if !passwordStdin {
				return usageErrorf("user login requires --password-stdin")
			}
			password, err := readSecretLine(cmd.InOrStdin(), "password")
			if err != nil {
				return err
			}

			return withRuntime(cmd.Context(), deps, nil, func(ctx context.Context, rt *app.Runtime) error {
				user, err := rt.Access.Authenticate(ctx, username, password)
				if err != nil {
					return err
				}
				tenants, err := rt.Access.Tenants(ctx, user.ID)
				if err != nil {
					return err
				}
				if deps.globals.JSON {
					return printJSON(deps.out, map[string]any{
						"user_id":    user.ID,
						"username":   user.Username,
						"role_id":    user.RoleID,
						"tenant_ids": tenants,
					})
				}
				if deps.globals.Quiet {
					return nil
				}
				_, err = fmt.Fprintf(deps.out, "authenticated: %s role=%s tenants=%s\n",
					user.ID, user.RoleID, strings.Join(tenants, ","))
				return err
			})
		},
	}
	cmd.Flags().StringVar(&username, "username", "", "Login name")
	cmd.Flags().BoolVar(&passwordStdin, "password-stdin", false, "Read the password from stdin")
	return cmd
}
