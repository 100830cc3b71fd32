package cli

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/amanthanvi/quarters/internal/app"
	"github.com/amanthanvi/quarters/internal/blob"
	"github.com/amanthanvi/quarters/internal/config"
	qlog "github.com/amanthanvi/quarters/internal/log"
)

var loadConfigFn = config.Load

func loadConfig(globals *GlobalOptions) (config.Config, config.LoadReport, error) {
	opts := config.LoadOptions{}
	if globals != nil {
		opts.ConfigPath = strings.TrimSpace(globals.ConfigPath)
		opts.PolicyPath = strings.TrimSpace(globals.PolicyPath)
		if globals.DataDir != "" {
			dataDir := globals.DataDir
			opts.Flags.DataDir = &dataDir
		}
		if globals.LogLevel != "" {
			level := globals.LogLevel
			opts.Flags.LogLevel = &level
		}
	}
	return loadConfigFn(opts)
}

// withRuntime opens the store under the configured data directory, runs fn
// and closes everything again. adminPassword is only needed the first time
// a data directory is opened.
func withRuntime(cmdCtx context.Context, deps commandDeps, adminPassword []byte, fn func(context.Context, *app.Runtime) error) error {
	cfg, report, err := loadConfig(deps.globals)
	if err != nil {
		return mapCommandError(fmt.Errorf("load config: %w", err))
	}

	logger, closer, err := qlog.New(qlog.Options{
		Level:     cfg.Logging.Level,
		Format:    cfg.Logging.Format,
		File:      cfg.Logging.File,
		MaxSizeMB: cfg.Logging.MaxSizeMB,
		MaxFiles:  cfg.Logging.MaxFiles,
	})
	if err != nil {
		return mapCommandError(fmt.Errorf("configure logging: %w", err))
	}
	defer closer.Close()
	for _, field := range report.PolicyOverrides {
		logger.Info("admin policy overrides setting", "field", field)
	}

	keyspace, err := blob.NewDir(cfg.Storage.DataDir)
	if err != nil {
		return mapCommandError(err)
	}
	rt, err := app.OpenRuntime(cmdCtx, app.RuntimeOptions{
		Keyspace:      keyspace,
		Config:        cfg,
		Logger:        logger,
		AdminPassword: adminPassword,
	})
	if err != nil {
		return mapCommandError(err)
	}
	defer func() {
		if err := rt.Close(); err != nil {
			logger.Warn("close runtime", "error", err)
		}
	}()
	return mapCommandError(fn(cmdCtx, rt))
}

func actor(globals *GlobalOptions) string {
	if globals == nil || strings.TrimSpace(globals.Actor) == "" {
		return "cli"
	}
	return strings.TrimSpace(globals.Actor)
}

// readSecretLine reads one line from r without its line ending.
func readSecretLine(r io.Reader, what string) ([]byte, error) {
	line, err := bufio.NewReader(r).ReadBytes('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, mapCommandError(fmt.Errorf("read %s from stdin: %w", what, err))
	}
	for len(line) > 0 && (line[len(line)-1] == '\n' || line[len(line)-1] == '\r') {
		line = line[:len(line)-1]
	}
	if len(line) == 0 {
		return nil, usageErrorf("%s on stdin must not be empty", what)
	}
	return line, nil
}

func printJSON(w io.Writer, value any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(value)
}
