// Package config loads the server configuration.
//
// SOURCES, IN INCREASING PRIORITY:
//  1. Defaults set in Load
//  2. An optional config.yaml (in ".", "./config", or the path passed to Load)
//  3. Environment variables: ATLAS_ + the key upper-cased with "." replaced by "_"
//     e.g. auth.jwt_secret → ATLAS_AUTH_JWT_SECRET
//
// Viper only looks up environment variables for keys it already knows about,
// which is why every key gets a default below, even an empty one.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the full configuration tree. The mapstructure tags are the viper keys.
type Config struct {
	Server struct {
		Port        int      `mapstructure:"port"`
		BaseURL     string   `mapstructure:"base_url"`
		CORSOrigins []string `mapstructure:"cors_origins"`
	} `mapstructure:"server"`

	Database struct {
		Path string `mapstructure:"path"`
	} `mapstructure:"database"`

	Auth struct {
		JWTSecret    string        `mapstructure:"jwt_secret"`
		SessionTTL   time.Duration `mapstructure:"session_ttl"`
		CookieSecure bool          `mapstructure:"cookie_secure"`
	} `mapstructure:"auth"`

	Discord struct {
		ClientID     string `mapstructure:"client_id"`
		ClientSecret string `mapstructure:"client_secret"`
		CallbackURL  string `mapstructure:"callback_url"`
	} `mapstructure:"discord"`

	Redis struct {
		Addr     string `mapstructure:"addr"`
		Password string `mapstructure:"password"`
		DB       int    `mapstructure:"db"`
	} `mapstructure:"redis"`

	Cache struct {
		LikeCountTTL time.Duration `mapstructure:"like_count_ttl"`
	} `mapstructure:"cache"`

	Log struct {
		Level string `mapstructure:"level"`
	} `mapstructure:"log"`
}

// Load reads the configuration. path may be empty, in which case config.yaml
// is searched for in the working directory; a missing file is not an error.
func Load(path string) (*Config, error) {
	v := viper.New()

	v.SetDefault("server.port", 8080)
	v.SetDefault("server.base_url", "http://localhost:8080")
	v.SetDefault("server.cors_origins", []string{})
	v.SetDefault("database.path", "data/atlas.db")
	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.session_ttl", 30*24*time.Hour)
	v.SetDefault("auth.cookie_secure", false)
	v.SetDefault("discord.client_id", "")
	v.SetDefault("discord.client_secret", "")
	v.SetDefault("discord.callback_url", "")
	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("cache.like_count_ttl", 5*time.Minute)
	v.SetDefault("log.level", "info")

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("config: reading config file: %w", err)
		}
	}

	v.SetEnvPrefix("ATLAS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("config: decoding: %w", err)
	}

	if c.Discord.CallbackURL == "" {
		c.Discord.CallbackURL = strings.TrimRight(c.Server.BaseURL, "/") + "/auth/discord/callback"
	}

	return &c, nil
}

// Validate checks the settings the server cannot start without.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("config: server.port %d out of range", c.Server.Port)
	}
	if len(c.Auth.JWTSecret) < 16 {
		return errors.New("config: auth.jwt_secret must be at least 16 characters")
	}
	if c.Auth.SessionTTL <= 0 {
		return errors.New("config: auth.session_ttl must be positive")
	}
	if c.Database.Path == "" {
		return errors.New("config: database.path is required")
	}
	if _, err := ParseLevel(c.Log.Level); err != nil {
		return err
	}
	return nil
}

// DiscordEnabled reports whether the OAuth routes can be registered.
func (c *Config) DiscordEnabled() bool {
	return c.Discord.ClientID != "" && c.Discord.ClientSecret != ""
}

// ParseLevel maps log.level to a slog level.
func ParseLevel(s string) (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return 0, fmt.Errorf("config: invalid log.level %q", s)
	}
	return l, nil
}
