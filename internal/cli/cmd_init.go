package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/amanthanvi/quarters/internal/app"
	"github.com/amanthanvi/quarters/internal/config"
	"github.com/amanthanvi/quarters/internal/storage"
	"github.com/spf13/cobra"
)

const defaultInitConfig = `[storage]
data_dir = ""

[backup]
threshold = 50
retention = 5
compress = true

[seed]
tenant_code = "MAIN"
tenant_name = "Main Property"
admin_username = "admin"

[credentials]
argon2_memory_kib = 65536
argon2_iterations = 3

[logging]
level = "info"
format = "text"
file = ""
max_size_mb = 10
max_files = 5
`

func newInitCommand(deps commandDeps) *cobra.Command {
	var passwordStdin bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default config and create the data store",
		Example: "  printf '%s\\n' \"$ADMIN_PASSWORD\" | quarters init --admin-password-stdin\n" +
			"  quarters --data-dir ./data init",
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) != 0 {
				return usageErrorf("init does not accept positional arguments")
			}

			var password []byte
			if passwordStdin {
				line, err := readSecretLine(cmd.InOrStdin(), "admin password")
				if err != nil {
					return err
				}
				password = line
			}

			configPath, err := config.ConfigPath(config.LoadOptions{ConfigPath: deps.globals.ConfigPath})
			if err != nil {
				return mapCommandError(err)
			}
			if err := writeDefaultConfig(configPath, deps.globals.Yes); err != nil {
				return mapCommandError(err)
			}

			return withRuntime(cmd.Context(), deps, password, func(ctx context.Context, rt *app.Runtime) error {
				schemaVersion, err := rt.Store.SchemaVersion(ctx)
				if err != nil {
					return err
				}
				if deps.globals.JSON {
					return printJSON(deps.out, map[string]any{
						"initialized":       true,
						"config_path":       configPath,
						"data_dir":          rt.Config.Storage.DataDir,
						"schema_version":    schemaVersion,
						"default_tenant_id": storage.DefaultTenantID,
					})
				}
				if deps.globals.Quiet {
					return nil
				}
				_, err = fmt.Fprintf(deps.out, "config: %s\ndata dir: %s\nschema version: %d\n",
					configPath, rt.Config.Storage.DataDir, schemaVersion)
				return err
			})
		},
	}
	cmd.Flags().BoolVar(&passwordStdin, "admin-password-stdin", false, "Read the seeded admin password from stdin")
	return cmd
}

func writeDefaultConfig(path string, overwrite bool) error {
	if strings.TrimSpace(path) == "" {
		return fmt.Errorf("%w: config path is required", config.ErrInvalidConfig)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("init: create config directory: %w", err)
	}
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return nil
		} else if !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("init: stat config path: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(defaultInitConfig), 0o600); err != nil {
		return fmt.Errorf("init: write config: %w", err)
	}
	return nil
}
