package cli

import (
	"io"

	"github.com/spf13/cobra"
)

type BuildInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"build_time"`
}

type GlobalOptions struct {
	ConfigPath string
	PolicyPath string
	DataDir    string
	LogLevel   string
	Actor      string
	JSON       bool
	Quiet      bool
	Yes        bool
}

type commandDeps struct {
	out     io.Writer
	globals *GlobalOptions
	build   BuildInfo
}

func NewRootCommand(out io.Writer, build BuildInfo) *cobra.Command {
	globals := &GlobalOptions{}
	deps := commandDeps{out: out, globals: globals, build: build}

	cmd := &cobra.Command{
		Use:           "quarters",
		Short:         "Multi-property staff housing data store",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.SetOut(out)
	cmd.SetErr(out)
	cmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return &ExitError{Code: ExitCodeUsage, Err: err}
	})

	flags := cmd.PersistentFlags()
	flags.StringVar(&globals.ConfigPath, "config", "", "Path to config.toml")
	flags.StringVar(&globals.PolicyPath, "policy", "", "Path to the admin policy file")
	flags.StringVar(&globals.DataDir, "data-dir", "", "Directory holding the state image and backups")
	flags.StringVar(&globals.LogLevel, "log-level", "", "Log level: debug, info, warn or error")
	flags.StringVar(&globals.Actor, "actor", "cli", "Actor recorded in the audit log")
	flags.BoolVar(&globals.JSON, "json", false, "Print machine-readable JSON")
	flags.BoolVar(&globals.Quiet, "quiet", false, "Suppress non-essential output")
	flags.BoolVar(&globals.Yes, "yes", false, "Confirm destructive operations")

	cmd.AddCommand(
		newVersionCommand(deps),
		newInitCommand(deps),
		newStatusCommand(deps),
		newResetCommand(deps),
		newBackupCommand(deps),
		newAuditCommand(deps),
		newTenantCommand(deps),
		newUserCommand(deps),
		newAccessCommand(deps),
		newOverrideCommand(deps),
		newDoctorCommand(deps),
		newDebugCommand(deps),
	)
	cmd.InitDefaultCompletionCmd()
	return cmd
}

func exactArgs(n int) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := cobra.ExactArgs(n)(cmd, args); err != nil {
			return &ExitError{Code: ExitCodeUsage, Err: err}
		}
		return nil
	}
}
