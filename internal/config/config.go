package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/loykin/lazyrestore/internal/logger"
)

// EnvPrefix prefixes environment overrides, e.g. LAZYRESTORE_SERVER_LISTEN.
const EnvPrefix = "LAZYRESTORE"

// Config represents the top-level TOML structure.
type Config struct {
	Server    ServerConfig    `toml:"server" mapstructure:"server"`
	Store     StoreConfig     `toml:"store" mapstructure:"store"`
	Scheduler SchedulerConfig `toml:"scheduler" mapstructure:"scheduler"`
	Sweeper   SweeperConfig   `toml:"sweeper" mapstructure:"sweeper"`
	History   HistoryConfig   `toml:"history" mapstructure:"history"`
	Metrics   MetricsConfig   `toml:"metrics" mapstructure:"metrics"`
	Log       LogConfig       `toml:"log" mapstructure:"log"`
}

type ServerConfig struct {
	Listen       string    `toml:"listen" mapstructure:"listen"`
	BasePath     string    `toml:"base_path" mapstructure:"base_path"`
	AllowOrigins []string  `toml:"allow_origins" mapstructure:"allow_origins"`
	TLS          TLSConfig `toml:"tls" mapstructure:"tls"`
}

// TLSConfig serves the API and the host bridge over HTTPS/WSS. Either
// cert_file and key_file are set, or dir holds tls.crt and tls.key
// (generated on first start when auto_generate is true).
type TLSConfig struct {
	Enabled      bool     `toml:"enabled" mapstructure:"enabled"`
	CertFile     string   `toml:"cert_file" mapstructure:"cert_file"`
	KeyFile      string   `toml:"key_file" mapstructure:"key_file"`
	Dir          string   `toml:"dir" mapstructure:"dir"`
	AutoGenerate bool     `toml:"auto_generate" mapstructure:"auto_generate"`
	CommonName   string   `toml:"common_name" mapstructure:"common_name"`
	DNSNames     []string `toml:"dns_names" mapstructure:"dns_names"`
	IPAddresses  []string `toml:"ip_addresses" mapstructure:"ip_addresses"`
	ValidDays    int      `toml:"valid_days" mapstructure:"valid_days"`
	MinVersion   string   `toml:"min_version" mapstructure:"min_version"`
	MaxVersion   string   `toml:"max_version" mapstructure:"max_version"`
}

type StoreConfig struct {
	DSN string `toml:"dsn" mapstructure:"dsn"`
	Key string `toml:"key" mapstructure:"key"`
}

type SchedulerConfig struct {
	DiscardDelay  time.Duration `toml:"discard_delay" mapstructure:"discard_delay"`
	BackstopDelay time.Duration `toml:"backstop_delay" mapstructure:"backstop_delay"`
	HostTimeout   time.Duration `toml:"host_timeout" mapstructure:"host_timeout"`
	QueueSize     int           `toml:"queue_size" mapstructure:"queue_size"`
}

type SweeperConfig struct {
	Enabled  bool   `toml:"enabled" mapstructure:"enabled"`
	Schedule string `toml:"schedule" mapstructure:"schedule"`
}

type HistoryConfig struct {
	DSNs []string `toml:"dsns" mapstructure:"dsns"`
}

type MetricsConfig struct {
	Enabled bool `toml:"enabled" mapstructure:"enabled"`
}

type LogConfig struct {
	Level      string `toml:"level" mapstructure:"level"`
	Format     string `toml:"format" mapstructure:"format"`
	Color      bool   `toml:"color" mapstructure:"color"`
	TimeStamps bool   `toml:"timestamps" mapstructure:"timestamps"`
	File       string `toml:"file" mapstructure:"file"`
	MaxSizeMB  int    `toml:"max_size_mb" mapstructure:"max_size_mb"`
	MaxBackups int    `toml:"max_backups" mapstructure:"max_backups"`
	MaxAgeDays int    `toml:"max_age_days" mapstructure:"max_age_days"`
	Compress   bool   `toml:"compress" mapstructure:"compress"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.listen", "127.0.0.1:7797")
	v.SetDefault("server.base_path", "/api")
	v.SetDefault("server.allow_origins", []string{})
	v.SetDefault("server.tls.enabled", false)
	v.SetDefault("server.tls.auto_generate", false)
	v.SetDefault("store.dsn", "memory://")
	v.SetDefault("store.key", "lazyRestoreMap")
	v.SetDefault("scheduler.discard_delay", 300*time.Millisecond)
	v.SetDefault("scheduler.backstop_delay", 1500*time.Millisecond)
	v.SetDefault("scheduler.host_timeout", 5*time.Second)
	v.SetDefault("scheduler.queue_size", 64)
	v.SetDefault("sweeper.enabled", true)
	v.SetDefault("sweeper.schedule", "@every 1m")
	v.SetDefault("history.dsns", []string{})
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("log.color", false)
	v.SetDefault("log.timestamps", true)
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size_mb", logger.DefaultMaxSizeMB)
	v.SetDefault("log.max_backups", logger.DefaultMaxBackups)
	v.SetDefault("log.max_age_days", logger.DefaultMaxAgeDays)
	v.SetDefault("log.compress", false)
}

// Load reads a TOML config file. An empty path yields the defaults. Values
// can be overridden by LAZYRESTORE_<SECTION>_<KEY> environment variables.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("toml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns the built-in configuration.
func Default() *Config {
	cfg, err := Load("")
	if err != nil {
		// defaults are static and always valid
		panic(err)
	}
	return cfg
}

// Validate rejects values the daemon cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if c.Server.Listen == "" {
		errs = append(errs, errors.New("server.listen must not be empty"))
	}
	if c.Server.BasePath != "" && !strings.HasPrefix(c.Server.BasePath, "/") {
		errs = append(errs, fmt.Errorf("server.base_path %q must start with /", c.Server.BasePath))
	}
	if t := c.Server.TLS; t.Enabled && t.Dir == "" && (t.CertFile == "" || t.KeyFile == "") {
		errs = append(errs, errors.New("server.tls needs cert_file and key_file, or dir"))
	}
	if c.Scheduler.DiscardDelay < 0 {
		errs = append(errs, errors.New("scheduler.discard_delay must not be negative"))
	}
	if c.Scheduler.BackstopDelay < 0 {
		errs = append(errs, errors.New("scheduler.backstop_delay must not be negative"))
	}
	if c.Scheduler.HostTimeout < 0 {
		errs = append(errs, errors.New("scheduler.host_timeout must not be negative"))
	}
	if c.Scheduler.QueueSize < 0 {
		errs = append(errs, errors.New("scheduler.queue_size must not be negative"))
	}
	if c.Sweeper.Enabled && strings.TrimSpace(c.Sweeper.Schedule) == "" {
		errs = append(errs, errors.New("sweeper.schedule is required when the sweeper is enabled"))
	}
	if _, ok := logger.ParseLevel(c.Log.Level); !ok {
		errs = append(errs, fmt.Errorf("log.level %q is not one of debug, info, warn, error", c.Log.Level))
	}
	switch logger.Format(c.Log.Format) {
	case logger.FormatText, logger.FormatJSON, "":
	default:
		errs = append(errs, fmt.Errorf("log.format %q is not one of text, json", c.Log.Format))
	}
	return errors.Join(errs...)
}

// Logger converts the [log] section to a logger.Config.
func (c *Config) Logger() logger.Config {
	return logger.Config{
		Slog: logger.SlogConfig{
			Level:      logger.Level(strings.ToLower(c.Log.Level)),
			Format:     logger.Format(c.Log.Format),
			Color:      c.Log.Color,
			TimeStamps: c.Log.TimeStamps,
		},
		File: logger.FileConfig{
			Path:       c.Log.File,
			MaxSizeMB:  c.Log.MaxSizeMB,
			MaxBackups: c.Log.MaxBackups,
			MaxAgeDays: c.Log.MaxAgeDays,
			Compress:   c.Log.Compress,
		},
	}
}
