// This file defines the configuration structure shared by the dev server
// and the archon CLI.
package config

import (
	"strings"
	"time"

	"github.com/archon-dev/archon/internal/stream"
	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// StreamConfig tunes the progress stream client and the server heartbeat.
type StreamConfig struct {
	MaxRetries int           `mapstructure:"max_retries"`
	BaseDelay  time.Duration `mapstructure:"base_delay"`
	MaxDelay   time.Duration `mapstructure:"max_delay"`
	Heartbeat  time.Duration `mapstructure:"heartbeat"`
}

// Config holds all configuration settings for the application.
// It maps directly to the structure of config.yml.
type Config struct {
	Port         int    `mapstructure:"port"`
	LogLevel     string `mapstructure:"log_level"`
	ScanInterval int    `mapstructure:"scan_interval"`
	Database     struct {
		Path string `mapstructure:"path"`
	} `mapstructure:"database"`
	Library struct {
		Path string `mapstructure:"path"`
	} `mapstructure:"library"`
	Jobs struct {
		Retention time.Duration `mapstructure:"retention"`
		UnitDelay time.Duration `mapstructure:"unit_delay"`
	} `mapstructure:"jobs"`
	Auth struct {
		TokenHash string `mapstructure:"token_hash"`
	} `mapstructure:"auth"`
	Server struct {
		URL         string   `mapstructure:"url"`
		Token       string   `mapstructure:"token"`
		CORSOrigins []string `mapstructure:"cors_origins"`
	} `mapstructure:"server"`
	Stream StreamConfig `mapstructure:"stream"`
}

// Load reads configuration from a file named "config.yml" in the
// current directory and unmarshals it into a Config struct.
func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yml")
	viper.AddConfigPath(".")

	// ARCHON_DATABASE_PATH overrides `database.path`, and so on.
	viper.SetEnvPrefix("ARCHON")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	return unmarshal()
}

// Watch re-reads config.yml whenever it changes on disk and passes the
// result to onChange. Reload errors are handed to onError and the previous
// configuration stays in effect.
func Watch(onChange func(*Config), onError func(error)) {
	viper.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		cfg, err := unmarshal()
		if err != nil {
			if onError != nil {
				onError(err)
			}
			return
		}
		onChange(cfg)
	})
	viper.WatchConfig()
}

func setDefaults() {
	viper.SetDefault("port", 8000)
	viper.SetDefault("log_level", "info")
	viper.SetDefault("scan_interval", 0)
	viper.SetDefault("database.path", "./archon.db")
	viper.SetDefault("library.path", "./documents")
	viper.SetDefault("jobs.retention", 24*time.Hour)
	viper.SetDefault("jobs.unit_delay", time.Duration(0))
	viper.SetDefault("auth.token_hash", "")
	viper.SetDefault("server.url", "http://localhost:8000/api")
	viper.SetDefault("server.token", "")
	viper.SetDefault("server.cors_origins", []string{"http://localhost:5173"})
	viper.SetDefault("stream.max_retries", 10)
	viper.SetDefault("stream.base_delay", time.Second)
	viper.SetDefault("stream.max_delay", 30*time.Second)
	viper.SetDefault("stream.heartbeat", 15*time.Second)
}

func unmarshal() (*Config, error) {
	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, err
	}
	return &config, nil
}

// StreamPolicy converts the stream section into the client's retry policy.
// Zero values fall back to the client defaults.
func (c *Config) StreamPolicy() stream.Policy {
	p := stream.DefaultPolicy()
	if c.Stream.MaxRetries > 0 {
		p.MaxRetries = c.Stream.MaxRetries
	}
	if c.Stream.BaseDelay > 0 {
		p.BaseDelay = c.Stream.BaseDelay
	}
	if c.Stream.MaxDelay > 0 {
		p.MaxDelay = c.Stream.MaxDelay
	}
	return p
}
