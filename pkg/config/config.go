package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Session storage backends
const (
	SessionBackendFile   = "file"
	SessionBackendRedis  = "redis"
	SessionBackendMemory = "memory"
)

// Config holds all client configuration
type Config struct {
	App           AppConfig           `mapstructure:"app"`
	API           APIConfig           `mapstructure:"api"`
	Session       SessionConfig       `mapstructure:"session"`
	Redis         RedisConfig         `mapstructure:"redis"`
	Notifications NotificationsConfig `mapstructure:"notifications"`
	Invite        InviteConfig        `mapstructure:"invite"`
	Log           LogConfig           `mapstructure:"log"`
	OTel          OTelConfig          `mapstructure:"otel"`
}

// AppConfig holds application-level settings
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"` // development, staging, production
	Debug       bool   `mapstructure:"debug"`
	Version     string `mapstructure:"version"`
}

// APIConfig holds settings for the EventFlow REST backend
type APIConfig struct {
	BaseURL              string        `mapstructure:"base_url"`
	Timeout              time.Duration `mapstructure:"timeout"`
	RetryMax             int           `mapstructure:"retry_max"`
	RetryInitialInterval time.Duration `mapstructure:"retry_initial_interval"`
}

// SessionConfig selects where the signed-in session is persisted
type SessionConfig struct {
	Backend  string `mapstructure:"backend"` // file, redis, memory
	File     string `mapstructure:"file"`
	RedisKey string `mapstructure:"redis_key"`
}

// RedisConfig holds Redis connection settings (redis session backend)
type RedisConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	Password     string        `mapstructure:"password"`
	DB           int           `mapstructure:"db"`
	PoolSize     int           `mapstructure:"pool_size"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	KeyPrefix    string        `mapstructure:"key_prefix"`
}

// Addr returns the Redis address
func (r *RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// NotificationsConfig holds live feed settings
type NotificationsConfig struct {
	PollInterval time.Duration `mapstructure:"poll_interval"`
	PageSize     int           `mapstructure:"page_size"`
}

// InviteConfig holds invitation acceptance settings
type InviteConfig struct {
	RedirectTicks int           `mapstructure:"redirect_ticks"`
	TickInterval  time.Duration `mapstructure:"tick_interval"`
	SwitchDelay   time.Duration `mapstructure:"switch_delay"`
}

// LogConfig holds logging settings
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Output string `mapstructure:"output"` // stderr, stdout or a file path
}

// OTelConfig holds OpenTelemetry settings
type OTelConfig struct {
	Enabled       bool    `mapstructure:"enabled"`
	ServiceName   string  `mapstructure:"service_name"`
	CollectorAddr string  `mapstructure:"collector_addr"`
	SampleRatio   float64 `mapstructure:"sample_ratio"`
}

// Load loads configuration from environment variables and an optional .env file
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")

	// A missing .env is fine, environment variables still apply
	_ = v.ReadInConfig()

	return load(v)
}

// LoadWithPath loads configuration from a specific env file
func LoadWithPath(path string) (*Config, error) {
	v := viper.New()

	v.SetConfigFile(path)
	v.SetConfigType("env")

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	return load(v)
}

func load(v *viper.Viper) (*Config, error) {
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	cfg := &Config{}
	bindConfig(v, cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	// App defaults
	v.SetDefault("APP_NAME", "eventflow")
	v.SetDefault("APP_ENVIRONMENT", "development")
	v.SetDefault("APP_DEBUG", false)
	v.SetDefault("APP_VERSION", "1.0.0")

	// API defaults
	v.SetDefault("API_BASE_URL", "http://localhost:8080/api")
	v.SetDefault("API_TIMEOUT", "15s")
	v.SetDefault("API_RETRY_MAX", 2)
	v.SetDefault("API_RETRY_INITIAL_INTERVAL", "250ms")

	// Session defaults
	v.SetDefault("SESSION_BACKEND", SessionBackendFile)
	v.SetDefault("SESSION_FILE", defaultSessionFile())
	v.SetDefault("SESSION_REDIS_KEY", "session:default")

	// Redis defaults
	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("REDIS_POOL_SIZE", 4)
	v.SetDefault("REDIS_DIAL_TIMEOUT", "5s")
	v.SetDefault("REDIS_READ_TIMEOUT", "3s")
	v.SetDefault("REDIS_WRITE_TIMEOUT", "3s")
	v.SetDefault("REDIS_KEY_PREFIX", "eventflow")

	// Notification feed defaults
	v.SetDefault("NOTIFICATIONS_POLL_INTERVAL", "4s")
	v.SetDefault("NOTIFICATIONS_PAGE_SIZE", 20)

	// Invitation flow defaults
	v.SetDefault("INVITE_REDIRECT_TICKS", 3)
	v.SetDefault("INVITE_TICK_INTERVAL", "1s")
	v.SetDefault("INVITE_SWITCH_DELAY", "500ms")

	// Log defaults
	v.SetDefault("LOG_LEVEL", "warn")
	v.SetDefault("LOG_OUTPUT", "stderr")

	// OTel defaults
	v.SetDefault("OTEL_ENABLED", false)
	v.SetDefault("OTEL_SERVICE_NAME", "eventflow-cli")
	v.SetDefault("OTEL_COLLECTOR_ADDR", "localhost:4317")
	v.SetDefault("OTEL_SAMPLE_RATIO", 1.0)
}

func bindConfig(v *viper.Viper, cfg *Config) {
	// App
	cfg.App.Name = v.GetString("APP_NAME")
	cfg.App.Environment = v.GetString("APP_ENVIRONMENT")
	cfg.App.Debug = v.GetBool("APP_DEBUG")
	cfg.App.Version = v.GetString("APP_VERSION")

	// API
	cfg.API.BaseURL = strings.TrimRight(v.GetString("API_BASE_URL"), "/")
	cfg.API.Timeout = v.GetDuration("API_TIMEOUT")
	cfg.API.RetryMax = v.GetInt("API_RETRY_MAX")
	cfg.API.RetryInitialInterval = v.GetDuration("API_RETRY_INITIAL_INTERVAL")

	// Session
	cfg.Session.Backend = strings.ToLower(v.GetString("SESSION_BACKEND"))
	cfg.Session.File = v.GetString("SESSION_FILE")
	cfg.Session.RedisKey = v.GetString("SESSION_REDIS_KEY")

	// Redis
	cfg.Redis.Host = v.GetString("REDIS_HOST")
	cfg.Redis.Port = v.GetInt("REDIS_PORT")
	cfg.Redis.Password = v.GetString("REDIS_PASSWORD")
	cfg.Redis.DB = v.GetInt("REDIS_DB")
	cfg.Redis.PoolSize = v.GetInt("REDIS_POOL_SIZE")
	cfg.Redis.DialTimeout = v.GetDuration("REDIS_DIAL_TIMEOUT")
	cfg.Redis.ReadTimeout = v.GetDuration("REDIS_READ_TIMEOUT")
	cfg.Redis.WriteTimeout = v.GetDuration("REDIS_WRITE_TIMEOUT")
	cfg.Redis.KeyPrefix = v.GetString("REDIS_KEY_PREFIX")

	// Notifications
	cfg.Notifications.PollInterval = v.GetDuration("NOTIFICATIONS_POLL_INTERVAL")
	cfg.Notifications.PageSize = v.GetInt("NOTIFICATIONS_PAGE_SIZE")

	// Invite
	cfg.Invite.RedirectTicks = v.GetInt("INVITE_REDIRECT_TICKS")
	cfg.Invite.TickInterval = v.GetDuration("INVITE_TICK_INTERVAL")
	cfg.Invite.SwitchDelay = v.GetDuration("INVITE_SWITCH_DELAY")

	// Log
	cfg.Log.Level = v.GetString("LOG_LEVEL")
	cfg.Log.Output = v.GetString("LOG_OUTPUT")

	// OTel
	cfg.OTel.Enabled = v.GetBool("OTEL_ENABLED")
	cfg.OTel.ServiceName = v.GetString("OTEL_SERVICE_NAME")
	cfg.OTel.CollectorAddr = v.GetString("OTEL_COLLECTOR_ADDR")
	cfg.OTel.SampleRatio = v.GetFloat64("OTEL_SAMPLE_RATIO")
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.App.Name == "" {
		return fmt.Errorf("app name is required")
	}

	u, err := url.Parse(c.API.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("invalid API base url: %q", c.API.BaseURL)
	}

	if c.API.Timeout <= 0 {
		return fmt.Errorf("API timeout must be positive")
	}

	switch c.Session.Backend {
	case SessionBackendFile:
		if c.Session.File == "" {
			return fmt.Errorf("SESSION_FILE is required for the file session backend")
		}
	case SessionBackendRedis:
		if c.Session.RedisKey == "" {
			return fmt.Errorf("SESSION_REDIS_KEY is required for the redis session backend")
		}
	case SessionBackendMemory:
	default:
		return fmt.Errorf("unknown session backend: %q", c.Session.Backend)
	}

	if c.Notifications.PollInterval <= 0 {
		return fmt.Errorf("notification poll interval must be positive")
	}

	if c.Invite.RedirectTicks < 0 {
		return fmt.Errorf("invite redirect ticks cannot be negative")
	}

	if c.Invite.TickInterval <= 0 {
		return fmt.Errorf("invite tick interval must be positive")
	}

	return nil
}

// IsProduction returns true if running in production environment
func (c *Config) IsProduction() bool {
	return c.App.Environment == "production"
}

// IsDevelopment returns true if running in development environment
func (c *Config) IsDevelopment() bool {
	return c.App.Environment == "development"
}

func defaultSessionFile() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		dir = os.TempDir()
	}
	return filepath.Join(dir, "eventflow", "session.json")
}
