// Package config loads engine settings from defaults, an optional config
// file, NOTES_* environment variables and command-line flags, in increasing
// order of precedence.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	apperrors "github.com/abhishek150-rt/offline-notes-app/internal/errors"
	"github.com/abhishek150-rt/offline-notes-app/internal/logging"
)

// EnvPrefix is prepended to every environment variable, e.g. NOTES_DATA_DIR.
const EnvPrefix = "NOTES"

// Keys understood by Load.
const (
	KeyDataDir       = "data_dir"
	KeyRemoteURL     = "remote_url"
	KeyRemoteToken   = "remote_token"
	KeyListenAddr    = "listen_addr"
	KeyServerAddr    = "server_addr"
	KeyDebounce      = "debounce"
	KeySyncTimeout   = "sync_timeout"
	KeyProbeInterval = "probe_interval"
	KeyLogLevel      = "log_level"
	KeyLogFile       = "log_file"
	KeyServerBackend = "server_backend"
	KeyPostgresDSN   = "postgres_dsn"
)

// Server backends.
const (
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
)

// Config holds engine, daemon and server settings.
type Config struct {
	DataDir       string        `mapstructure:"data_dir"`
	RemoteURL     string        `mapstructure:"remote_url"`
	RemoteToken   string        `mapstructure:"remote_token"`
	ListenAddr    string        `mapstructure:"listen_addr"`
	ServerAddr    string        `mapstructure:"server_addr"`
	Debounce      time.Duration `mapstructure:"debounce"`
	SyncTimeout   time.Duration `mapstructure:"sync_timeout"`
	ProbeInterval time.Duration `mapstructure:"probe_interval"`
	LogLevel      string        `mapstructure:"log_level"`
	LogFile       string        `mapstructure:"log_file"`
	ServerBackend string        `mapstructure:"server_backend"`
	PostgresDSN   string        `mapstructure:"postgres_dsn"`
}

// DefaultDataDir returns ~/.offline-notes, or a relative directory when the
// home directory is unknown.
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return ".offline-notes"
	}
	return filepath.Join(home, ".offline-notes")
}

// SetDefaults registers the default value of every key on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault(KeyDataDir, DefaultDataDir())
	v.SetDefault(KeyRemoteURL, "http://127.0.0.1:3001")
	v.SetDefault(KeyRemoteToken, "")
	v.SetDefault(KeyListenAddr, "127.0.0.1:8090")
	v.SetDefault(KeyServerAddr, ":3001")
	v.SetDefault(KeyDebounce, 500*time.Millisecond)
	v.SetDefault(KeySyncTimeout, 10*time.Second)
	v.SetDefault(KeyProbeInterval, 15*time.Second)
	v.SetDefault(KeyLogLevel, "info")
	v.SetDefault(KeyLogFile, "")
	v.SetDefault(KeyServerBackend, BackendSQLite)
	v.SetDefault(KeyPostgresDSN, "")
}

// Options controls where Load looks for settings.
type Options struct {
	// ConfigFile is an explicit config file. Empty searches ConfigDirs for
	// notes.{yaml,yml,toml,json}; a missing file there is not an error.
	ConfigFile string
	ConfigDirs []string
	// Flags are bound by key name, e.g. --data_dir or --data-dir.
	Flags *pflag.FlagSet
}

// Load builds a Config. Precedence: flags > env > file > defaults.
func Load(opts Options) (*Config, error) {
	v := viper.New()
	SetDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()

	if opts.ConfigFile != "" {
		v.SetConfigFile(opts.ConfigFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, apperrors.Wrap(apperrors.ErrConfig, "read config file", err)
		}
	} else {
		v.SetConfigName("notes")
		for _, dir := range opts.ConfigDirs {
			v.AddConfigPath(dir)
		}
		if len(opts.ConfigDirs) > 0 {
			if err := v.ReadInConfig(); err != nil {
				var notFound viper.ConfigFileNotFoundError
				if !errors.As(err, &notFound) {
					return nil, apperrors.Wrap(apperrors.ErrConfig, "read config file", err)
				}
			}
		}
	}

	if opts.Flags != nil {
		if err := bindFlags(v, opts.Flags); err != nil {
			return nil, apperrors.Wrap(apperrors.ErrConfig, "bind flags", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrConfig, "decode config", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// bindFlags binds every flag whose name matches a key, accepting dashes in
// place of underscores.
func bindFlags(v *viper.Viper, flags *pflag.FlagSet) error {
	var bindErr error
	flags.VisitAll(func(f *pflag.Flag) {
		key := strings.ReplaceAll(f.Name, "-", "_")
		if bindErr == nil && isKey(key) {
			bindErr = v.BindPFlag(key, f)
		}
	})
	return bindErr
}

func isKey(key string) bool {
	switch key {
	case KeyDataDir, KeyRemoteURL, KeyRemoteToken, KeyListenAddr, KeyServerAddr,
		KeyDebounce, KeySyncTimeout, KeyProbeInterval, KeyLogLevel, KeyLogFile,
		KeyServerBackend, KeyPostgresDSN:
		return true
	}
	return false
}

// Validate checks the values that would otherwise fail later at runtime.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.DataDir) == "" {
		return apperrors.New(apperrors.ErrConfig, "data_dir is required")
	}
	if c.RemoteURL != "" {
		u, err := url.Parse(c.RemoteURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return apperrors.Newf(apperrors.ErrConfig, "remote_url %q must be an http(s) URL", c.RemoteURL)
		}
	}
	if c.Debounce <= 0 {
		return apperrors.Newf(apperrors.ErrConfig, "debounce must be positive, got %s", c.Debounce)
	}
	if c.SyncTimeout <= 0 {
		return apperrors.Newf(apperrors.ErrConfig, "sync_timeout must be positive, got %s", c.SyncTimeout)
	}
	if c.ProbeInterval <= 0 {
		return apperrors.Newf(apperrors.ErrConfig, "probe_interval must be positive, got %s", c.ProbeInterval)
	}
	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		return apperrors.Wrap(apperrors.ErrConfig, "log_level", err)
	}
	switch c.ServerBackend {
	case BackendSQLite:
	case BackendPostgres:
		if strings.TrimSpace(c.PostgresDSN) == "" {
			return apperrors.New(apperrors.ErrConfig, "postgres_dsn is required for the postgres backend")
		}
	default:
		return apperrors.Newf(apperrors.ErrConfig, "unknown server_backend %q", c.ServerBackend)
	}
	return nil
}

// Logger builds the logger described by the config: JSON lines on stdout,
// or in a rotating file when log_file is set. The returned close function
// releases the file.
func (c *Config) Logger() (*logging.Logger, func() error, error) {
	level, err := logging.ParseLevel(c.LogLevel)
	if err != nil {
		return nil, nil, apperrors.Wrap(apperrors.ErrConfig, "log_level", err)
	}
	if c.LogFile == "" {
		return logging.New(os.Stdout, level), func() error { return nil }, nil
	}
	w, err := logging.NewFileWriter(logging.FileOptions{Path: c.LogFile, Compress: true})
	if err != nil {
		return nil, nil, apperrors.Wrap(apperrors.ErrConfig, "open log file", err)
	}
	return logging.New(w, level), w.Close, nil
}

// String renders the config with the secrets masked.
func (c *Config) String() string {
	mask := func(s string) string {
		if s == "" {
			return ""
		}
		return "****"
	}
	return fmt.Sprintf("data_dir=%s remote_url=%s remote_token=%s listen_addr=%s server_addr=%s debounce=%s sync_timeout=%s probe_interval=%s log_level=%s log_file=%s server_backend=%s postgres_dsn=%s",
		c.DataDir, c.RemoteURL, mask(c.RemoteToken), c.ListenAddr, c.ServerAddr,
		c.Debounce, c.SyncTimeout, c.ProbeInterval, c.LogLevel, c.LogFile,
		c.ServerBackend, mask(c.PostgresDSN))
}
