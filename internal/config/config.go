package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

type Config struct {
	Mode       string        `mapstructure:"mode"`
	Port       int           `mapstructure:"port"`
	StaticPath string        `mapstructure:"static_path"`
	ReadLimit  int64         `mapstructure:"read_limit"`
	PingPeriod time.Duration `mapstructure:"ping_period"`
	// Secret signs the cookie session.
	Secret string `mapstructure:"secret"`
	// Backpressure is "kick" or "drop".
	Backpressure string        `mapstructure:"backpressure"`
	StoreTimeout time.Duration `mapstructure:"store_timeout"`

	Auth       AuthConfig       `mapstructure:"auth"`
	Accrual    AccrualConfig    `mapstructure:"accrual"`
	Membership MembershipConfig `mapstructure:"membership"`
	RateLimit  RateLimitConfig  `mapstructure:"rate_limit"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Redis      RedisConfig      `mapstructure:"redis"`
}

type AuthConfig struct {
	Secret string        `mapstructure:"secret"`
	Issuer string        `mapstructure:"issuer"`
	TTL    time.Duration `mapstructure:"ttl"`
}

type AccrualConfig struct {
	Interval   time.Duration `mapstructure:"interval"`
	XPPerTick  int64         `mapstructure:"xp_per_tick"`
	BaseXP     int64         `mapstructure:"base_xp"`
	GrowthRate float64       `mapstructure:"growth_rate"`
}

type MembershipConfig struct {
	PrivateThreshold int `mapstructure:"private_threshold"`
}

// RateLimitConfig bounds connect and join events per identity.
type RateLimitConfig struct {
	Events int           `mapstructure:"events"`
	Window time.Duration `mapstructure:"window"`
}

// DatabaseConfig selects the store. The Type field decides which other
// fields matter: "memory", "sqlite" (Path) or "postgres" (DSN).
type DatabaseConfig struct {
	Type string `mapstructure:"type"`
	Path string `mapstructure:"path"`
	DSN  string `mapstructure:"dsn"`
}

// RedisConfig enables the Redis presence cache when Addr is set.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Prefix   string `mapstructure:"prefix"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("mode", "release")
	v.SetDefault("port", 8080)
	v.SetDefault("static_path", "./web")
	v.SetDefault("read_limit", 32768)
	v.SetDefault("ping_period", "54s")
	v.SetDefault("backpressure", "kick")
	v.SetDefault("store_timeout", "5s")
	v.SetDefault("secret", "")

	v.SetDefault("auth.secret", "")
	v.SetDefault("auth.issuer", "voicehub")
	v.SetDefault("auth.ttl", "24h")

	v.SetDefault("accrual.interval", "1h")
	v.SetDefault("accrual.xp_per_tick", 5)
	v.SetDefault("accrual.base_xp", 5)
	v.SetDefault("accrual.growth_rate", 1.02)

	v.SetDefault("membership.private_threshold", 2)

	v.SetDefault("rate_limit.events", 10)
	v.SetDefault("rate_limit.window", "10s")

	v.SetDefault("database.type", "memory")
	v.SetDefault("database.path", "voicehub.db")
	v.SetDefault("database.dsn", "")

	// env overrides only reach keys viper knows about
	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.prefix", "voicehub")
}

// Load reads .env, then config/config.<CONFIG_ENV>.yaml, then VOICEHUB_*
// overrides (VOICEHUB_DATABASE_DSN sets database.dsn).
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Warn().Err(err).Str("module", "config").Msg("failed to read .env")
	}

	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	return LoadFile(fmt.Sprintf("config/config.%s.yaml", env))
}

func LoadFile(fileName string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetConfigFile(fileName)
	v.SetEnvPrefix("VOICEHUB")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		log.Warn().Str("module", "config").Str("file", fileName).Msg("config file not found, using defaults")
	} else {
		log.Info().Str("module", "config").Str("file", fileName).Msg("loaded config")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	log.Info().Str("module", "config").
		Str("mode", cfg.Mode).
		Int("port", cfg.Port).
		Str("database", cfg.Database.Type).
		Bool("redis", cfg.Redis.Addr != "").
		Msg("config ready")
	return &cfg, nil
}

func (c *Config) Validate() error {
	switch c.Database.Type {
	case "memory", "sqlite", "postgres":
	default:
		return fmt.Errorf("unknown database type: %s", c.Database.Type)
	}
	if c.Database.Type == "postgres" && c.Database.DSN == "" {
		return errors.New("database.dsn required for postgres")
	}
	switch c.Backpressure {
	case "kick", "drop":
	default:
		return fmt.Errorf("unknown backpressure policy: %s", c.Backpressure)
	}
	if c.Accrual.Interval <= 0 || c.Accrual.BaseXP <= 0 || c.Accrual.GrowthRate < 1 {
		return errors.New("accrual needs a positive interval, base_xp and a growth_rate >= 1")
	}
	if c.RateLimit.Events <= 0 || c.RateLimit.Window <= 0 {
		return errors.New("rate_limit needs positive events and window")
	}
	return nil
}
