package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
)

const (
	defaultBackupThreshold  = 50
	defaultBackupRetention  = 5
	defaultTenantCode       = "MAIN"
	defaultTenantName       = "Main Property"
	defaultAdminUsername    = "admin"
	defaultArgon2MemoryKiB  = 64 * 1024
	defaultArgon2Iterations = 3
	minArgon2MemoryKiB      = 32 * 1024
	defaultLogLevel         = "info"
	defaultLogFormat        = "text"
	defaultLogMaxSizeMB     = 10
	defaultLogMaxFiles      = 5
)

var ErrInvalidConfig = errors.New("invalid config")

type Config struct {
	Storage     StorageConfig     `toml:"storage"`
	Backup      BackupConfig      `toml:"backup"`
	Seed        SeedConfig        `toml:"seed"`
	Credentials CredentialsConfig `toml:"credentials"`
	Logging     LoggingConfig     `toml:"logging"`
}

type StorageConfig struct {
	DataDir string `toml:"data_dir"`
}

type BackupConfig struct {
	Threshold int  `toml:"threshold"`
	Retention int  `toml:"retention"`
	Compress  bool `toml:"compress"`
	// Passphrase seals backup slots when set.
	Passphrase string `toml:"passphrase"`
}

type SeedConfig struct {
	TenantCode    string `toml:"tenant_code"`
	TenantName    string `toml:"tenant_name"`
	AdminUsername string `toml:"admin_username"`
	AdminPassword string `toml:"admin_password"`
}

type CredentialsConfig struct {
	Argon2MemoryKiB  int `toml:"argon2_memory_kib"`
	Argon2Iterations int `toml:"argon2_iterations"`
}

type LoggingConfig struct {
	Level     string `toml:"level"`
	Format    string `toml:"format"`
	File      string `toml:"file"`
	MaxSizeMB int    `toml:"max_size_mb"`
	MaxFiles  int    `toml:"max_files"`
}

type LoadOptions struct {
	ConfigPath string
	PolicyPath string
	Env        map[string]string
	Flags      FlagOverrides
}

type FlagOverrides struct {
	DataDir  *string
	LogLevel *string
}

type LoadReport struct {
	ConfigPath      string
	PolicyOverrides []string
}

func DefaultConfig() Config {
	return Config{
		Backup: BackupConfig{
			Threshold: defaultBackupThreshold,
			Retention: defaultBackupRetention,
			Compress:  true,
		},
		Seed: SeedConfig{
			TenantCode:    defaultTenantCode,
			TenantName:    defaultTenantName,
			AdminUsername: defaultAdminUsername,
		},
		Credentials: CredentialsConfig{
			Argon2MemoryKiB:  defaultArgon2MemoryKiB,
			Argon2Iterations: defaultArgon2Iterations,
		},
		Logging: LoggingConfig{
			Level:     defaultLogLevel,
			Format:    defaultLogFormat,
			MaxSizeMB: defaultLogMaxSizeMB,
			MaxFiles:  defaultLogMaxFiles,
		},
	}
}

// Load resolves the configuration: defaults, then the config file, then
// QUARTERS_* environment variables, then flags, then the admin policy file.
func Load(opts LoadOptions) (Config, LoadReport, error) {
	cfg := DefaultConfig()
	report := LoadReport{PolicyOverrides: []string{}}

	configPath, err := resolveConfigPath(opts)
	if err != nil {
		return Config{}, report, fmt.Errorf("resolve config path: %w", err)
	}
	report.ConfigPath = configPath
	if err := loadAndApplyFile(configPath, &cfg, nil); err != nil {
		return Config{}, report, err
	}

	if err := applyEnvOverrides(&cfg, opts); err != nil {
		return Config{}, report, err
	}
	applyFlagOverrides(&cfg, opts.Flags)

	policyPath, err := resolvePolicyPath(opts)
	if err != nil {
		return Config{}, report, fmt.Errorf("resolve policy path: %w", err)
	}
	if err := loadAndApplyFile(policyPath, &cfg, &report.PolicyOverrides); err != nil {
		return Config{}, report, err
	}

	if cfg.Storage.DataDir == "" {
		home, err := quartersHome(opts)
		if err != nil {
			return Config{}, report, fmt.Errorf("resolve data dir: %w", err)
		}
		cfg.Storage.DataDir = home
	}

	if err := validate(cfg); err != nil {
		return Config{}, report, err
	}
	return cfg, report, nil
}

type rawConfig struct {
	Storage     *rawStorage     `toml:"storage"`
	Backup      *rawBackup      `toml:"backup"`
	Seed        *rawSeed        `toml:"seed"`
	Credentials *rawCredentials `toml:"credentials"`
	Logging     *rawLogging     `toml:"logging"`
}

type rawStorage struct {
	DataDir *string `toml:"data_dir"`
}

type rawBackup struct {
	Threshold  *int    `toml:"threshold"`
	Retention  *int    `toml:"retention"`
	Compress   *bool   `toml:"compress"`
	Passphrase *string `toml:"passphrase"`
}

type rawSeed struct {
	TenantCode    *string `toml:"tenant_code"`
	TenantName    *string `toml:"tenant_name"`
	AdminUsername *string `toml:"admin_username"`
	AdminPassword *string `toml:"admin_password"`
}

type rawCredentials struct {
	Argon2MemoryKiB  *int `toml:"argon2_memory_kib"`
	Argon2Iterations *int `toml:"argon2_iterations"`
}

type rawLogging struct {
	Level     *string `toml:"level"`
	Format    *string `toml:"format"`
	File      *string `toml:"file"`
	MaxSizeMB *int    `toml:"max_size_mb"`
	MaxFiles  *int    `toml:"max_files"`
}

func loadAndApplyFile(path string, cfg *Config, policyOverrides *[]string) error {
	if path == "" {
		return nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read config file %q: %w", path, err)
	}

	var raw rawConfig
	if err := toml.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("%w: parse TOML file %q: %v", ErrInvalidConfig, path, err)
	}
	applyRawConfig(cfg, raw, policyOverrides)
	return nil
}

func applyRawConfig(cfg *Config, raw rawConfig, policyOverrides *[]string) {
	if raw.Storage != nil {
		setString("storage.data_dir", raw.Storage.DataDir, &cfg.Storage.DataDir, policyOverrides)
	}
	if raw.Backup != nil {
		setInt("backup.threshold", raw.Backup.Threshold, &cfg.Backup.Threshold, policyOverrides)
		setInt("backup.retention", raw.Backup.Retention, &cfg.Backup.Retention, policyOverrides)
		setBool("backup.compress", raw.Backup.Compress, &cfg.Backup.Compress, policyOverrides)
		setString("backup.passphrase", raw.Backup.Passphrase, &cfg.Backup.Passphrase, policyOverrides)
	}
	if raw.Seed != nil {
		setString("seed.tenant_code", raw.Seed.TenantCode, &cfg.Seed.TenantCode, policyOverrides)
		setString("seed.tenant_name", raw.Seed.TenantName, &cfg.Seed.TenantName, policyOverrides)
		setString("seed.admin_username", raw.Seed.AdminUsername, &cfg.Seed.AdminUsername, policyOverrides)
		setString("seed.admin_password", raw.Seed.AdminPassword, &cfg.Seed.AdminPassword, policyOverrides)
	}
	if raw.Credentials != nil {
		setInt("credentials.argon2_memory_kib", raw.Credentials.Argon2MemoryKiB, &cfg.Credentials.Argon2MemoryKiB, policyOverrides)
		setInt("credentials.argon2_iterations", raw.Credentials.Argon2Iterations, &cfg.Credentials.Argon2Iterations, policyOverrides)
	}
	if raw.Logging != nil {
		setString("logging.level", raw.Logging.Level, &cfg.Logging.Level, policyOverrides)
		setString("logging.format", raw.Logging.Format, &cfg.Logging.Format, policyOverrides)
		setString("logging.file", raw.Logging.File, &cfg.Logging.File, policyOverrides)
		setInt("logging.max_size_mb", raw.Logging.MaxSizeMB, &cfg.Logging.MaxSizeMB, policyOverrides)
		setInt("logging.max_files", raw.Logging.MaxFiles, &cfg.Logging.MaxFiles, policyOverrides)
	}
}

func applyEnvOverrides(cfg *Config, opts LoadOptions) error {
	stringVars := map[string]*string{
		"QUARTERS_DATA_DIR":          &cfg.Storage.DataDir,
		"QUARTERS_BACKUP_PASSPHRASE": &cfg.Backup.Passphrase,
		"QUARTERS_TENANT_CODE":       &cfg.Seed.TenantCode,
		"QUARTERS_TENANT_NAME":       &cfg.Seed.TenantName,
		"QUARTERS_ADMIN_USERNAME":    &cfg.Seed.AdminUsername,
		"QUARTERS_ADMIN_PASSWORD":    &cfg.Seed.AdminPassword,
		"QUARTERS_LOG_LEVEL":         &cfg.Logging.Level,
		"QUARTERS_LOG_FORMAT":        &cfg.Logging.Format,
		"QUARTERS_LOG_FILE":          &cfg.Logging.File,
	}
	for key, target := range stringVars {
		if value, ok := lookupEnv(opts, key); ok {
			*target = value
		}
	}

	intVars := map[string]*int{
		"QUARTERS_BACKUP_THRESHOLD":  &cfg.Backup.Threshold,
		"QUARTERS_BACKUP_RETENTION":  &cfg.Backup.Retention,
		"QUARTERS_ARGON2_MEMORY_KIB": &cfg.Credentials.Argon2MemoryKiB,
		"QUARTERS_ARGON2_ITERATIONS": &cfg.Credentials.Argon2Iterations,
		"QUARTERS_LOG_MAX_SIZE_MB":   &cfg.Logging.MaxSizeMB,
		"QUARTERS_LOG_MAX_FILES":     &cfg.Logging.MaxFiles,
	}
	for key, target := range intVars {
		value, ok := lookupEnv(opts, key)
		if !ok {
			continue
		}
		parsed, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("%w: parse %s: %v", ErrInvalidConfig, key, err)
		}
		*target = parsed
	}

	if value, ok := lookupEnv(opts, "QUARTERS_BACKUP_COMPRESS"); ok {
		parsed, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("%w: parse QUARTERS_BACKUP_COMPRESS: %v", ErrInvalidConfig, err)
		}
		cfg.Backup.Compress = parsed
	}
	return nil
}

func applyFlagOverrides(cfg *Config, flags FlagOverrides) {
	if flags.DataDir != nil {
		cfg.Storage.DataDir = *flags.DataDir
	}
	if flags.LogLevel != nil {
		cfg.Logging.Level = *flags.LogLevel
	}
}

func validate(cfg Config) error {
	switch {
	case cfg.Backup.Threshold <= 0:
		return fmt.Errorf("%w: backup.threshold must be > 0", ErrInvalidConfig)
	case cfg.Backup.Retention <= 0:
		return fmt.Errorf("%w: backup.retention must be > 0", ErrInvalidConfig)
	case strings.TrimSpace(cfg.Seed.TenantCode) == "":
		return fmt.Errorf("%w: seed.tenant_code must not be empty", ErrInvalidConfig)
	case strings.TrimSpace(cfg.Seed.AdminUsername) == "":
		return fmt.Errorf("%w: seed.admin_username must not be empty", ErrInvalidConfig)
	case cfg.Credentials.Argon2MemoryKiB < minArgon2MemoryKiB:
		return fmt.Errorf("%w: credentials.argon2_memory_kib must be >= %d", ErrInvalidConfig, minArgon2MemoryKiB)
	case cfg.Credentials.Argon2Iterations <= 0:
		return fmt.Errorf("%w: credentials.argon2_iterations must be > 0", ErrInvalidConfig)
	case cfg.Logging.MaxSizeMB <= 0:
		return fmt.Errorf("%w: logging.max_size_mb must be > 0", ErrInvalidConfig)
	case cfg.Logging.MaxFiles < 0:
		return fmt.Errorf("%w: logging.max_files must be >= 0", ErrInvalidConfig)
	}

	switch strings.ToLower(cfg.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("%w: logging.level %q is not one of debug, info, warn, error", ErrInvalidConfig, cfg.Logging.Level)
	}
	switch strings.ToLower(cfg.Logging.Format) {
	case "text", "json":
	default:
		return fmt.Errorf("%w: logging.format %q is not one of text, json", ErrInvalidConfig, cfg.Logging.Format)
	}
	return nil
}

func setString(field string, raw *string, target *string, policyOverrides *[]string) {
	if raw == nil {
		return
	}
	if policyOverrides != nil && *target != *raw {
		*policyOverrides = append(*policyOverrides, field)
	}
	*target = *raw
}

func setBool(field string, raw *bool, target *bool, policyOverrides *[]string) {
	if raw == nil {
		return
	}
	if policyOverrides != nil && *target != *raw {
		*policyOverrides = append(*policyOverrides, field)
	}
	*target = *raw
}

func setInt(field string, raw *int, target *int, policyOverrides *[]string) {
	if raw == nil {
		return
	}
	if policyOverrides != nil && *target != *raw {
		*policyOverrides = append(*policyOverrides, field)
	}
	*target = *raw
}

// ConfigPath reports which config file Load would read for opts.
func ConfigPath(opts LoadOptions) (string, error) {
	return resolveConfigPath(opts)
}

func resolveConfigPath(opts LoadOptions) (string, error) {
	if opts.ConfigPath != "" {
		return opts.ConfigPath, nil
	}
	if value, ok := lookupEnv(opts, "QUARTERS_CONFIG_PATH"); ok {
		return value, nil
	}
	return defaultConfigPath(opts)
}

func resolvePolicyPath(opts LoadOptions) (string, error) {
	if opts.PolicyPath != "" {
		return opts.PolicyPath, nil
	}
	if value, ok := lookupEnv(opts, "QUARTERS_POLICY_FILE"); ok {
		return value, nil
	}
	home, err := quartersHome(opts)
	if err != nil {
		return "", err
	}
	return filepath.Join(home, "policy.toml"), nil
}

func lookupEnv(opts LoadOptions, key string) (string, bool) {
	if opts.Env != nil {
		if value, ok := opts.Env[key]; ok {
			return value, true
		}
	}
	return os.LookupEnv(key)
}

func quartersHome(opts LoadOptions) (string, error) {
	if value, ok := lookupEnv(opts, "QUARTERS_HOME"); ok && value != "" {
		return value, nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve user home: %w", err)
	}
	if runtime.GOOS == "darwin" {
		return filepath.Join(home, "Library", "Application Support", "Quarters"), nil
	}

	dataHome := filepath.Join(home, ".local", "share")
	if xdgDataHome, ok := lookupEnv(opts, "XDG_DATA_HOME"); ok && xdgDataHome != "" {
		dataHome = xdgDataHome
	}
	return filepath.Join(dataHome, "quarters"), nil
}

func defaultConfigPath(opts LoadOptions) (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve user home: %w", err)
	}
	if runtime.GOOS == "darwin" {
		return filepath.Join(home, "Library", "Application Support", "Quarters", "config.toml"), nil
	}

	configHome := filepath.Join(home, ".config")
	if xdgConfigHome, ok := lookupEnv(opts, "XDG_CONFIG_HOME"); ok && xdgConfigHome != "" {
		configHome = xdgConfigHome
	}
	return filepath.Join(configHome, "quarters", "config.toml"), nil
}
