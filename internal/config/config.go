package config

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/samber/lo"
	"github.com/spf13/viper"
)

type JWT struct {
	Secret        string        `mapstructure:"secret"`
	RefreshSecret string        `mapstructure:"refresh_secret"`
	AccessTTL     time.Duration `mapstructure:"access_ttl"`
	RefreshTTL    time.Duration `mapstructure:"refresh_ttl"`
	Issuer        string        `mapstructure:"issuer"`
}

type Storage struct {
	Path       string        `mapstructure:"path"`
	InMemory   bool          `mapstructure:"in_memory"`
	GCInterval time.Duration `mapstructure:"gc_interval"`
}

type Rate struct {
	Limit    int           `mapstructure:"limit"`
	Interval time.Duration `mapstructure:"interval"`
}

type Log struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type Config struct {
	Mode             string        `mapstructure:"mode"`
	Port             int           `mapstructure:"port"`
	ReadLimit        int64         `mapstructure:"read_limit"`
	PingPeriod       time.Duration `mapstructure:"ping_period"`
	PongWait         time.Duration `mapstructure:"pong_wait"`
	WriteWait        time.Duration `mapstructure:"write_wait"`
	HandshakeTimeout time.Duration `mapstructure:"handshake_timeout"`
	QueueSize        int           `mapstructure:"queue_size"`
	SingleSession    bool          `mapstructure:"single_session"`
	MaxContentLength int           `mapstructure:"max_content_length"`
	HistoryLimit     int           `mapstructure:"history_limit"`
	Secret           string        `mapstructure:"secret"`
	AllowedOrigins   []string      `mapstructure:"allowed_origins"`
	JWT              JWT           `mapstructure:"jwt"`
	Storage          Storage       `mapstructure:"storage"`
	Rate             Rate          `mapstructure:"rate"`
	Log              Log           `mapstructure:"log"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("mode", "release")
	v.SetDefault("port", 8080)
	v.SetDefault("read_limit", 32768)
	v.SetDefault("ping_period", "54s")
	v.SetDefault("pong_wait", "60s")
	v.SetDefault("write_wait", "10s")
	v.SetDefault("handshake_timeout", "10s")
	v.SetDefault("queue_size", 256)
	v.SetDefault("single_session", false)
	v.SetDefault("max_content_length", 2000)
	v.SetDefault("history_limit", 50)
	v.SetDefault("secret", "")
	v.SetDefault("allowed_origins", []string{})
	v.SetDefault("jwt.secret", "")
	v.SetDefault("jwt.refresh_secret", "")
	v.SetDefault("jwt.access_ttl", "1h")
	v.SetDefault("jwt.refresh_ttl", "168h")
	v.SetDefault("jwt.issuer", "chat")
	v.SetDefault("storage.path", "./data")
	v.SetDefault("storage.in_memory", false)
	v.SetDefault("storage.gc_interval", "5m")
	v.SetDefault("rate.limit", 20)
	v.SetDefault("rate.interval", "10s")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
}

// Load reads config/config.<CONFIG_ENV>.yaml when present, then CHAT_*
// environment overrides (CHAT_JWT_SECRET for jwt.secret).
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	fileName := fmt.Sprintf("config/config.%s.yaml", env)
	v.SetConfigFile(fileName)

	setDefaults(v)
	v.SetEnvPrefix("CHAT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

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
	log.Info().Str("module", "config").Str("mode", cfg.Mode).Int("port", cfg.Port).Str("storage", cfg.Storage.Path).Msg("config ready")
	return &cfg, nil
}

func (c *Config) Validate() error {
	var errs []error
	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("port out of range: %d", c.Port))
	}
	positive := map[string]int64{
		"read_limit":         c.ReadLimit,
		"queue_size":         int64(c.QueueSize),
		"max_content_length": int64(c.MaxContentLength),
		"history_limit":      int64(c.HistoryLimit),
		"rate.limit":         int64(c.Rate.Limit),
		"ping_period":        int64(c.PingPeriod),
		"pong_wait":          int64(c.PongWait),
		"write_wait":         int64(c.WriteWait),
		"handshake_timeout":  int64(c.HandshakeTimeout),
		"jwt.access_ttl":     int64(c.JWT.AccessTTL),
		"jwt.refresh_ttl":    int64(c.JWT.RefreshTTL),
		"rate.interval":      int64(c.Rate.Interval),
	}
	keys := lo.Keys(positive)
	slices.Sort(keys)
	for _, k := range keys {
		if positive[k] <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive", k))
		}
	}
	if c.PingPeriod >= c.PongWait {
		errs = append(errs, errors.New("ping_period must be shorter than pong_wait"))
	}
	if c.JWT.Secret == "" {
		errs = append(errs, errors.New("jwt.secret is required"))
	}
	if c.Secret == "" {
		errs = append(errs, errors.New("secret is required"))
	}
	if !c.Storage.InMemory && c.Storage.Path == "" {
		errs = append(errs, errors.New("storage.path is required unless storage.in_memory is set"))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}
