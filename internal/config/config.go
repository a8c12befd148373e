// Package config loads warmth configuration from layered sources:
// struct defaults, an optional YAML file, and WARMTH_-prefixed
// environment variables, highest last.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists where config files are searched, first hit wins.
var DefaultConfigPaths = []string{
	"warmth.yaml",
	"warmth.yml",
	"/etc/warmth/config.yaml",
}

// ConfigPathEnvVar overrides the config file search entirely.
const ConfigPathEnvVar = "WARMTH_CONFIG"

// Config holds all warmth configuration.
type Config struct {
	Server   ServerConfig   `koanf:"server"`
	Database DatabaseConfig `koanf:"database"`
	Remote   RemoteConfig   `koanf:"remote"`
	Cache    CacheConfig    `koanf:"cache"`
	Log      LogConfig      `koanf:"log"`
}

type ServerConfig struct {
	Bind string `koanf:"bind"`
	Port int    `koanf:"port"`
}

type DatabaseConfig struct {
	Path string `koanf:"path"`
}

type RemoteConfig struct {
	// URL of the scoring service the client commands talk to.
	URL     string        `koanf:"url"`
	Timeout time.Duration `koanf:"timeout"`
}

type CacheConfig struct {
	TTL      time.Duration `koanf:"ttl"`
	MaxChunk int           `koanf:"max_chunk"`
}

type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"` // "console" or "json"
}

// Default returns a Config with sensible defaults.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Bind: "127.0.0.1",
			Port: 38300,
		},
		Database: DatabaseConfig{
			Path: "", // resolved at runtime via store.DefaultDBPath()
		},
		Remote: RemoteConfig{
			URL:     "http://127.0.0.1:38300",
			Timeout: 30 * time.Second,
		},
		Cache: CacheConfig{
			TTL:      5 * time.Minute,
			MaxChunk: 200,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// Load builds the effective configuration: defaults, then the first config
// file found (if any), then WARMTH_* environment variables.
func Load() (Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(Default(), "koanf"), nil); err != nil {
		return Config{}, fmt.Errorf("load defaults: %w", err)
	}

	if path := findConfigFile(); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return Config{}, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	// WARMTH_SERVER_PORT -> server.port, WARMTH_CACHE_MAX_CHUNK -> cache.max_chunk.
	envProvider := env.Provider("WARMTH_", ".", func(s string) string {
		s = strings.TrimPrefix(s, "WARMTH_")
		parts := strings.SplitN(strings.ToLower(s), "_", 2)
		return strings.Join(parts, ".")
	})
	if err := k.Load(envProvider, nil); err != nil {
		return Config{}, fmt.Errorf("load environment: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects configurations that cannot possibly work.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	if c.Cache.TTL < 0 {
		return fmt.Errorf("cache.ttl must not be negative")
	}
	if c.Cache.MaxChunk < 1 {
		return fmt.Errorf("cache.max_chunk must be at least 1")
	}
	switch c.Log.Format {
	case "console", "json":
	default:
		return fmt.Errorf("log.format %q not recognized", c.Log.Format)
	}
	return nil
}

// ListenAddr returns the bind:port address string.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.Bind, c.Server.Port)
}

func findConfigFile() string {
	if path := os.Getenv(ConfigPathEnvVar); path != "" {
		return path
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}
