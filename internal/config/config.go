package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// DefaultAPIURL is the backend base URL baked in at build time with
//
//	-ldflags "-X github.com/lehigh-university-libraries/vision-query/internal/config.DefaultAPIURL=https://..."
//
// API_URL in the environment overrides it.
var DefaultAPIURL = ""

type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Backend BackendConfig `mapstructure:"backend"`
	Upload  UploadConfig  `mapstructure:"upload"`
	Session SessionConfig `mapstructure:"session"`
	Metrics MetricsConfig `mapstructure:"metrics"`
}

type ServerConfig struct {
	Addr        string   `mapstructure:"addr"`
	Mode        string   `mapstructure:"mode"`
	CORSOrigins []string `mapstructure:"cors_origins"`
}

type BackendConfig struct {
	APIURL  string        `mapstructure:"api_url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type UploadConfig struct {
	MaxSize int64 `mapstructure:"max_size"`
}

type SessionConfig struct {
	TTL           time.Duration `mapstructure:"ttl"`
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
}

type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// Load reads defaults, then the optional YAML file at configPath, then the
// environment. An empty configPath skips the file.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := v.BindEnv("backend.api_url", "API_URL"); err != nil {
		return nil, fmt.Errorf("failed to bind API_URL: %w", err)
	}

	if configPath != "" {
		v.SetConfigFile(configPath)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8888")
	v.SetDefault("server.mode", "debug")
	v.SetDefault("server.cors_origins", []string{"*"})

	v.SetDefault("backend.api_url", DefaultAPIURL)
	v.SetDefault("backend.timeout", time.Duration(0))

	v.SetDefault("upload.max_size", 10*1024*1024)

	v.SetDefault("session.ttl", time.Hour)
	v.SetDefault("session.sweep_interval", 5*time.Minute)

	v.SetDefault("metrics.enabled", true)
}

func (c *Config) Validate() error {
	if c.Backend.APIURL == "" {
		return errors.New("config: missing API_URL")
	}
	u, err := url.Parse(c.Backend.APIURL)
	if err != nil {
		return fmt.Errorf("config: invalid API_URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("config: API_URL must be http or https, got %q", c.Backend.APIURL)
	}
	if c.Backend.Timeout < 0 {
		return errors.New("config: backend timeout must not be negative")
	}
	if c.Upload.MaxSize <= 0 {
		return errors.New("config: upload max size must be positive")
	}
	return nil
}
