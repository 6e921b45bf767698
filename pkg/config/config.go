package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

const (
	StoreMemory   = "memory"
	StoreRedis    = "redis"
	StorePostgres = "postgres"
)

var (
	ErrInvalidStore     = errors.New("unknown store")
	ErrInvalidPort      = errors.New("invalid port")
	ErrMissingSecretKey = errors.New("server.secret_key is required")
	ErrInvalidTTL       = errors.New("ttl must be positive")
	ErrInvalidInterval  = errors.New("sweep interval must be positive")
	ErrInvalidAttempts  = errors.New("identity.max_code_attempts must be positive")
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	Log       LogConfig       `mapstructure:"log"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	RateLimit RateLimitConfig `mapstructure:"ratelimit"`
	Identity  IdentityConfig  `mapstructure:"identity"`
	Sweep     SweepConfig     `mapstructure:"sweep"`
}

type ServerConfig struct {
	Host           string  `mapstructure:"host"`
	APIPort        int     `mapstructure:"api_port"`
	AdminPort      int     `mapstructure:"admin_port"`
	MetricsPort    int     `mapstructure:"metrics_port"`
	SecretKey      string  `mapstructure:"secret_key"`
	AttachmentsDir string  `mapstructure:"attachments_dir"`
	MaxRPS         float64 `mapstructure:"max_rps"` // 0 disables the server-wide cap
	Burst          int     `mapstructure:"burst"`
}

type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
	Dir   string `mapstructure:"dir"`
}

type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	DBName          string        `mapstructure:"name"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	TLS      bool   `mapstructure:"tls"`
}

type BreakerConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	MaxFailures uint32        `mapstructure:"max_failures"`
	OpenTimeout time.Duration `mapstructure:"open_timeout"`
}

type RateLimitConfig struct {
	Store         string        `mapstructure:"store"`
	Threshold     int64         `mapstructure:"threshold"`
	Window        time.Duration `mapstructure:"window"`
	BlockDuration time.Duration `mapstructure:"block_duration"`
	StoreTimeout  time.Duration `mapstructure:"store_timeout"`
	FailurePolicy string        `mapstructure:"failure_policy"`
	Shards        int           `mapstructure:"shards"`
	SweepBatch    int64         `mapstructure:"sweep_batch"`
	Breaker       BreakerConfig `mapstructure:"breaker"`
}

type IdentityConfig struct {
	Store               string        `mapstructure:"store"`
	GuestTTL            time.Duration `mapstructure:"guest_ttl"`
	VerificationCodeTTL time.Duration `mapstructure:"verification_code_ttl"`
	MaxCodeAttempts     int64         `mapstructure:"max_code_attempts"`
}

type SweepConfig struct {
	Enabled                  bool          `mapstructure:"enabled"`
	RateLimitInterval        time.Duration `mapstructure:"ratelimit_interval"`
	GuestInterval            time.Duration `mapstructure:"guest_interval"`
	VerificationCodeInterval time.Duration `mapstructure:"verification_code_interval"`
}

var globalConfig Config

// Load reads <configPath>/config.yaml, overlays the environment (SERVER_API_PORT
// overrides server.api_port) and validates the result. A missing file is not an
// error: defaults and environment are enough to start.
func Load(configPath string) error {
	cfg, err := loadConfigFile(configPath, "config")
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	globalConfig = *cfg
	return nil
}

func loadConfigFile(configPath, fileName string) (*Config, error) {
	v := viper.New()
	v.SetConfigName(fileName)
	v.SetConfigType("yaml")
	v.AddConfigPath(configPath)
	v.AddConfigPath("./config")
	v.AddConfigPath(".")

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaultValues(v)

	if err := v.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) {
			return nil, fmt.Errorf("error reading config file %s.yaml: %w", fileName, err)
		}
	}

	var cfg Config
	hook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))
	if err := v.Unmarshal(&cfg, hook); err != nil {
		return nil, fmt.Errorf("failed to unmarshal %s config: %w", fileName, err)
	}
	return &cfg, nil
}

func setDefaultValues(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.api_port", 8081)
	v.SetDefault("server.admin_port", 8080)
	v.SetDefault("server.metrics_port", 9090)
	v.SetDefault("server.secret_key", "")
	v.SetDefault("server.attachments_dir", "./attachments")
	v.SetDefault("server.max_rps", 0)
	v.SetDefault("server.burst", 0)

	v.SetDefault("metrics.enabled", true)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.dir", "logs")

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "")
	v.SetDefault("database.name", "gatekeeper")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "5m")

	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.tls", false)

	v.SetDefault("ratelimit.store", StoreMemory)
	v.SetDefault("ratelimit.threshold", 5)
	v.SetDefault("ratelimit.window", "10s")
	v.SetDefault("ratelimit.block_duration", "24h")
	v.SetDefault("ratelimit.store_timeout", "250ms")
	v.SetDefault("ratelimit.failure_policy", "open")
	v.SetDefault("ratelimit.shards", 64)
	v.SetDefault("ratelimit.sweep_batch", 500)
	v.SetDefault("ratelimit.breaker.enabled", true)
	v.SetDefault("ratelimit.breaker.max_failures", 5)
	v.SetDefault("ratelimit.breaker.open_timeout", "30s")

	v.SetDefault("identity.store", StoreMemory)
	v.SetDefault("identity.guest_ttl", "24h")
	v.SetDefault("identity.verification_code_ttl", "5m")
	v.SetDefault("identity.max_code_attempts", 5)

	v.SetDefault("sweep.enabled", true)
	v.SetDefault("sweep.ratelimit_interval", "2h")
	v.SetDefault("sweep.guest_interval", "1h")
	v.SetDefault("sweep.verification_code_interval", "30m")
}

// Validate checks what the rest of the process cannot recover from. Rate-limit
// policy values are validated again by the limiter itself.
func (c *Config) Validate() error {
	var errs []error
	for name, port := range map[string]int{
		"server.api_port":     c.Server.APIPort,
		"server.admin_port":   c.Server.AdminPort,
		"server.metrics_port": c.Server.MetricsPort,
	} {
		if port <= 0 || port > 65535 {
			errs = append(errs, fmt.Errorf("%w: %s=%d", ErrInvalidPort, name, port))
		}
	}
	if c.Server.SecretKey == "" {
		errs = append(errs, ErrMissingSecretKey)
	}
	if !validStore(c.RateLimit.Store) {
		errs = append(errs, fmt.Errorf("%w: ratelimit.store=%q", ErrInvalidStore, c.RateLimit.Store))
	}
	if !validStore(c.Identity.Store) {
		errs = append(errs, fmt.Errorf("%w: identity.store=%q", ErrInvalidStore, c.Identity.Store))
	}
	if c.Identity.GuestTTL <= 0 || c.Identity.VerificationCodeTTL <= 0 {
		errs = append(errs, ErrInvalidTTL)
	}
	if c.Identity.MaxCodeAttempts <= 0 {
		errs = append(errs, ErrInvalidAttempts)
	}
	if c.Sweep.Enabled && (c.Sweep.RateLimitInterval <= 0 ||
		c.Sweep.GuestInterval <= 0 ||
		c.Sweep.VerificationCodeInterval <= 0) {
		errs = append(errs, ErrInvalidInterval)
	}
	return errors.Join(errs...)
}

func validStore(name string) bool {
	switch name {
	case StoreMemory, StoreRedis, StorePostgres:
		return true
	}
	return false
}

func GetConfig() *Config {
	return &globalConfig
}
