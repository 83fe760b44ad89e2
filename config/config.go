// Package config loads swrcache settings from the environment, optionally
// seeded from .env files.
//
//	SWRCACHE_REDIS_URL           (or REDIS_URL)
//	SWRCACHE_REDIS_TOKEN         (or REDIS_TOKEN)
//	SWRCACHE_OPERATION_TIMEOUT   default 150ms
//	SWRCACHE_FAILURE_THRESHOLD   default 5
//	SWRCACHE_RECOVERY_TIME       default 30s
//	SWRCACHE_LOG_LEVEL           debug|info|warn|error, default info
//
// A missing URL or token is valid: the cache runs in pass-through mode.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/unkn0wn-root/swrcache"
	zaplog "github.com/unkn0wn-root/swrcache/log/zap"
)

const envPrefix = "SWRCACHE"

type Config struct {
	RedisURL         string        `mapstructure:"redis_url" validate:"omitempty,url"`
	RedisToken       string        `mapstructure:"redis_token"`
	OperationTimeout time.Duration `mapstructure:"operation_timeout" validate:"gt=0"`
	FailureThreshold int           `mapstructure:"failure_threshold" validate:"gte=1"`
	RecoveryTime     time.Duration `mapstructure:"recovery_time" validate:"gt=0"`
	LogLevel         string        `mapstructure:"log_level" validate:"oneof=debug info warn error"`
}

// Load reads envFiles (missing files are skipped; real env wins over file
// values), then the environment, then validates.
func Load(envFiles ...string) (*Config, error) {
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("config: load %s: %w", f, err)
		}
	}

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()
	// unprefixed names are what most hosting dashboards hand out
	_ = v.BindEnv("redis_url", envPrefix+"_REDIS_URL", "REDIS_URL")
	_ = v.BindEnv("redis_token", envPrefix+"_REDIS_TOKEN", "REDIS_TOKEN")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("redis_url", "")
	v.SetDefault("redis_token", "")
	v.SetDefault("operation_timeout", 150*time.Millisecond)
	v.SetDefault("failure_threshold", 5)
	v.SetDefault("recovery_time", 30*time.Second)
	v.SetDefault("log_level", "info")
}

var validate = validator.New()

func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

// Configured reports whether both connection settings are present.
func (c *Config) Configured() bool { return c.RedisURL != "" && c.RedisToken != "" }

// ClientOptions maps the config onto swrcache.ClientOptions. Logger and hooks
// are left to the caller.
func (c *Config) ClientOptions() swrcache.ClientOptions {
	return swrcache.ClientOptions{
		URL:              c.RedisURL,
		Token:            c.RedisToken,
		OperationTimeout: c.OperationTimeout,
		FailureThreshold: c.FailureThreshold,
		RecoveryTime:     c.RecoveryTime,
	}
}

// NewLogger builds a zap production logger at LogLevel, writing to stderr.
func (c *Config) NewLogger() (swrcache.Logger, *zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(c.LogLevel)
	if err != nil {
		return nil, nil, fmt.Errorf("config: log level: %w", err)
	}
	zc := zap.NewProductionConfig()
	zc.Level = zap.NewAtomicLevelAt(lvl)
	zc.OutputPaths = []string{"stderr"}
	zl, err := zc.Build()
	if err != nil {
		return nil, nil, fmt.Errorf("config: build logger: %w", err)
	}
	return zaplog.New(zl), zl, nil
}

// NewClient is Load + NewLogger + swrcache.NewClient.
func NewClient(envFiles ...string) (*swrcache.Client, error) {
	cfg, err := Load(envFiles...)
	if err != nil {
		return nil, err
	}
	log, _, err := cfg.NewLogger()
	if err != nil {
		return nil, err
	}
	opts := cfg.ClientOptions()
	opts.Logger = log
	return swrcache.NewClient(opts), nil
}
