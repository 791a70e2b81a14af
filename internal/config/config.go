package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/bassista/go_lmsync/internal/logger"
)

const envPrefix = "GO_LMSYNC"

// Supported ledger backends.
const (
	LedgerMemory = "memory"
	LedgerSQLite = "sqlite"
	LedgerRedis  = "redis"
)

type Config struct {
	API    APIConfig
	Sync   SyncConfig
	Data   DataConfig
	Ledger LedgerConfig
	Server ServerConfig
	Misc   MiscConfig
}

// APIConfig describes the remote LMS the engine syncs from.
type APIConfig struct {
	BaseURL string
	Token   string
	Timeout time.Duration
	PerPage int
}

// SyncConfig holds engine-wide sync policy.
type SyncConfig struct {
	DefaultTTL   time.Duration
	MaxPages     int
	Concurrency  int
	FixturesPath string // when set, responses come from a YAML fixture file instead of HTTP
	Offline      bool   // start with the connectivity signal reporting no network
}

type DataConfig struct {
	FilePath        string
	PersistInterval time.Duration
	Watch           bool
}

type LedgerConfig struct {
	Backend     string
	SQLitePath  string
	RedisAddr   string
	RedisPrefix string
}

type ServerConfig struct {
	Port               int
	ReadTimeout        time.Duration
	WriteTimeout       time.Duration
	IdleTimeout        time.Duration
	ShutDownTimeout    time.Duration
	RequestTimeout     time.Duration
	SyncTimeout        time.Duration // sync and view endpoints, which may walk many pages
	CORSAllowedOrigins string
}

type MiscConfig struct {
	GinMode  string
	LogLevel string
}

// LoadConfig reads config.yaml from GO_LMSYNC_CONFIG_PATH (default ./config),
// an optional .env file, and GO_LMSYNC_* environment overrides.
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		logger.WithComponent("config").Warnf("cannot load .env file: %v", err)
	}

	v := viper.GetViper()
	confPath := getEnvOrDefault(envPrefix+"_CONFIG_PATH", "./config")

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(confPath)

	setDefaults(v)

	// Environment variables override config file values, e.g. GO_LMSYNC_SYNC_MAX_PAGES
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("config file error: %w", err)
		}
		logger.WithComponent("config").Debug("no config file found, using defaults and env vars")
	}

	port, err := getEnvOrViperPort("PORT", "server.port")
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		API: APIConfig{
			BaseURL: v.GetString("api.base_url"),
			Token:   v.GetString("api.token"),
			Timeout: v.GetDuration("api.timeout"),
			PerPage: v.GetInt("api.per_page"),
		},
		Sync: SyncConfig{
			DefaultTTL:   v.GetDuration("sync.default_ttl"),
			MaxPages:     v.GetInt("sync.max_pages"),
			Concurrency:  v.GetInt("sync.concurrency"),
			FixturesPath: v.GetString("sync.fixtures_path"),
			Offline:      v.GetBool("sync.offline"),
		},
		Data: DataConfig{
			FilePath:        v.GetString("data.file_path"),
			PersistInterval: v.GetDuration("data.persist_interval"),
			Watch:           v.GetBool("data.watch"),
		},
		Ledger: LedgerConfig{
			Backend:     strings.ToLower(v.GetString("ledger.backend")),
			SQLitePath:  v.GetString("ledger.sqlite_path"),
			RedisAddr:   v.GetString("ledger.redis_addr"),
			RedisPrefix: v.GetString("ledger.redis_prefix"),
		},
		Server: ServerConfig{
			Port:               port,
			ReadTimeout:        v.GetDuration("server.read_timeout"),
			WriteTimeout:       v.GetDuration("server.write_timeout"),
			IdleTimeout:        v.GetDuration("server.idle_timeout"),
			ShutDownTimeout:    v.GetDuration("server.shutdown_timeout"),
			RequestTimeout:     v.GetDuration("server.request_timeout"),
			SyncTimeout:        v.GetDuration("server.sync_timeout"),
			CORSAllowedOrigins: v.GetString("server.cors_allowed_origins"),
		},
		Misc: MiscConfig{
			GinMode:  v.GetString("misc.gin_mode"),
			LogLevel: getEnvOrDefault("LOG_LEVEL", v.GetString("misc.log_level")),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("api.base_url", "http://localhost:3000/api/v1")
	v.SetDefault("api.token", "")
	v.SetDefault("api.timeout", 30*time.Second)
	v.SetDefault("api.per_page", 50)

	v.SetDefault("sync.default_ttl", 2*time.Hour)
	v.SetDefault("sync.max_pages", 100)
	v.SetDefault("sync.concurrency", 4)
	v.SetDefault("sync.fixtures_path", "")
	v.SetDefault("sync.offline", false)

	v.SetDefault("data.file_path", "./config/data/store.json")
	v.SetDefault("data.persist_interval", 5*time.Second)
	v.SetDefault("data.watch", true)

	v.SetDefault("ledger.backend", LedgerMemory)
	v.SetDefault("ledger.sqlite_path", "./config/data/ledger.db")
	v.SetDefault("ledger.redis_addr", "127.0.0.1:6379")
	v.SetDefault("ledger.redis_prefix", "lmsync:ledger:")

	v.SetDefault("server.port", 8085)
	v.SetDefault("server.read_timeout", 10*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)
	v.SetDefault("server.idle_timeout", 120*time.Second)
	v.SetDefault("server.shutdown_timeout", 5*time.Second)
	v.SetDefault("server.request_timeout", 30*time.Second)
	v.SetDefault("server.sync_timeout", 5*time.Minute)
	v.SetDefault("server.cors_allowed_origins", "*")

	v.SetDefault("misc.gin_mode", "release")
	v.SetDefault("misc.log_level", "info")
}

func (c *Config) validate() error {
	u, err := url.Parse(c.API.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("api.base_url must be an absolute URL, got %q", c.API.BaseURL)
	}
	if c.API.Timeout <= 0 {
		return errors.New("api.timeout must be positive")
	}
	if c.API.PerPage < 0 {
		return errors.New("api.per_page must not be negative")
	}

	if c.Sync.DefaultTTL <= 0 {
		return errors.New("sync.default_ttl must be positive")
	}
	if c.Sync.MaxPages <= 0 {
		return errors.New("sync.max_pages must be positive")
	}
	if c.Sync.Concurrency <= 0 {
		return errors.New("sync.concurrency must be positive")
	}

	if c.Data.FilePath == "" {
		return errors.New("data.file_path is required")
	}
	if c.Data.PersistInterval <= 0 {
		return errors.New("data.persist_interval must be positive")
	}

	switch c.Ledger.Backend {
	case LedgerMemory:
	case LedgerSQLite:
		if c.Ledger.SQLitePath == "" {
			return errors.New("ledger.sqlite_path is required for the sqlite backend")
		}
	case LedgerRedis:
		if c.Ledger.RedisAddr == "" {
			return errors.New("ledger.redis_addr is required for the redis backend")
		}
	default:
		return fmt.Errorf("unknown ledger.backend %q (supported: %s)", c.Ledger.Backend,
			strings.Join([]string{LedgerMemory, LedgerSQLite, LedgerRedis}, ", "))
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port)
	}
	if c.Server.ReadTimeout <= 0 || c.Server.WriteTimeout <= 0 || c.Server.IdleTimeout <= 0 {
		return errors.New("server timeouts must be positive")
	}
	if c.Server.ShutDownTimeout <= 0 {
		return errors.New("server.shutdown_timeout must be positive")
	}
	if c.Server.RequestTimeout <= 0 {
		return errors.New("server.request_timeout must be positive")
	}
	if c.Server.SyncTimeout <= 0 {
		return errors.New("server.sync_timeout must be positive")
	}

	if c.Misc.GinMode != "" && !slices.Contains([]string{"debug", "release", "test"}, c.Misc.GinMode) {
		return fmt.Errorf("misc.gin_mode must be debug, release or test, got %q", c.Misc.GinMode)
	}
	return nil
}

// getEnvOrDefault returns the env value, or def when unset or empty.
func getEnvOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// getEnvOrViperPort reads a port from a plain env var (as set by PaaS hosts),
// falling back to the viper key.
func getEnvOrViperPort(envKey, viperKey string) (int, error) {
	if raw := os.Getenv(envKey); raw != "" {
		port, err := strconv.Atoi(raw)
		if err != nil {
			return 0, fmt.Errorf("invalid %s value %q: %w", envKey, raw, err)
		}
		return port, nil
	}
	return viper.GetInt(viperKey), nil
}
