// Package config loads objlock settings from flags, environment, .env files
// and an optional YAML config file.
package config

import (
	"errors"
	"fmt"
	"os"
	"os/user"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/jayteealao/objlock/internal/state"
	"github.com/jayteealao/objlock/internal/validate"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment variable, e.g. OBJLOCK_DATA_DIR.
const EnvPrefix = "OBJLOCK"

// Keys shared by flags, environment and config file.
const (
	KeyBackend      = "backend"
	KeyDataDir      = "data-dir"
	KeyObjectsDir   = "objects-dir"
	KeySession      = "session"
	KeyLocker       = "locker"
	KeyLockDuration = "lock-duration"
	KeyWaitTimeout  = "wait-timeout"
	KeyMetrics      = "metrics"
)

// Defaults
const (
	DefaultLockDuration = 30 * time.Minute
	DefaultWaitTimeout  = 10 * time.Second
)

// Config holds resolved settings.
type Config struct {
	Backend      string
	DataDir      string
	ObjectsDir   string
	Session      string
	Locker       string
	LockDuration time.Duration
	WaitTimeout  time.Duration
	Metrics      bool
}

// LoadEnvFiles loads .env and .env.local from the working directory if present.
func LoadEnvFiles() {
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")
}

// Init points v at the config file and the environment. A missing default
// config file is not an error.
func Init(v *viper.Viper, cfgFile string) error {
	SetDefaults(v)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("failed to get home directory: %w", err)
		}
		v.AddConfigPath(filepath.Join(home, ".objlock"))
		v.SetConfigType("yaml")
		v.SetConfigName("config")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile == "" && errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}
	return nil
}

// SetDefaults registers default values on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault(KeyBackend, state.BackendSQLite)
	v.SetDefault(KeyLockDuration, DefaultLockDuration)
	v.SetDefault(KeyWaitTimeout, DefaultWaitTimeout)
	v.SetDefault(KeyMetrics, false)
}

// Load resolves a Config from v, filling in the data directory, locker and
// session when they are not set.
func Load(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		Backend:      v.GetString(KeyBackend),
		DataDir:      v.GetString(KeyDataDir),
		ObjectsDir:   v.GetString(KeyObjectsDir),
		Session:      v.GetString(KeySession),
		Locker:       v.GetString(KeyLocker),
		LockDuration: v.GetDuration(KeyLockDuration),
		WaitTimeout:  v.GetDuration(KeyWaitTimeout),
		Metrics:      v.GetBool(KeyMetrics),
	}

	if cfg.Backend == "" {
		cfg.Backend = state.BackendSQLite
	}
	if !slices.Contains(state.Backends(), cfg.Backend) {
		return nil, fmt.Errorf("unsupported backend %q (supported: %s)", cfg.Backend, strings.Join(state.Backends(), ", "))
	}

	if cfg.DataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		cfg.DataDir = filepath.Join(home, ".objlock")
	}
	dataDir, err := validate.ExpandPath(cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to expand data directory: %w", err)
	}
	cfg.DataDir = dataDir

	if cfg.ObjectsDir == "" {
		cfg.ObjectsDir = filepath.Join(cfg.DataDir, "objects")
	}

	if cfg.Locker == "" {
		cfg.Locker = currentUser()
	}
	if cfg.Session == "" {
		cfg.Session = defaultSession(cfg.Locker)
	}

	if cfg.WaitTimeout < 0 {
		return nil, fmt.Errorf("wait timeout cannot be negative: %v", cfg.WaitTimeout)
	}

	return cfg, nil
}

// StoreConfig returns the lock store selection for cfg.
func (c *Config) StoreConfig() state.Config {
	return state.Config{Backend: c.Backend, DataDir: c.DataDir}
}

func currentUser() string {
	if u, err := user.Current(); err == nil && u.Username != "" {
		return u.Username
	}
	if name := os.Getenv("USER"); name != "" {
		return name
	}
	return "unknown"
}

// defaultSession ties a locker's CLI session to the host it runs on.
func defaultSession(locker string) string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "localhost"
	}
	return locker + "@" + host
}
