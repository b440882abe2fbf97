package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const (
	envConfigPath    = "NONOCOOP_CONFIG"
	envPlayerID      = "NONOCOOP_PLAYER_ID"
	envRedisAddr     = "NONOCOOP_REDIS_ADDR"
	envRedisPassword = "NONOCOOP_REDIS_PASSWORD"
)

const (
	DriverMemory = "memory"
	DriverRedis  = "redis"
)

// Config is the root runtime configuration loaded from config.json.
type Config struct {
	Player  PlayerConfig  `json:"player"`
	Fabric  FabricConfig  `json:"fabric"`
	Relay   RelayConfig   `json:"relay"`
	Node    NodeConfig    `json:"node"`
	Logging LoggingConfig `json:"logging,omitempty"`
}

// LoggingConfig controls structured log output format and verbosity.
type LoggingConfig struct {
	Format    string `json:"format,omitempty"`
	Level     string `json:"level,omitempty"`
	AddSource bool   `json:"add_source,omitempty"`
}

// PlayerConfig identifies this node on the fabric. An empty id is replaced
// with a random one at startup.
type PlayerConfig struct {
	ID string `json:"id"`
}

// FabricConfig selects the shared messaging fabric.
type FabricConfig struct {
	Driver string      `json:"driver"`
	Redis  RedisConfig `json:"redis"`
}

// RedisConfig configures the Redis fabric driver.
type RedisConfig struct {
	Addr      string `json:"addr"`
	Password  string `json:"password"`
	DB        int    `json:"db"`
	KeyPrefix string `json:"key_prefix"`
}

// RelayConfig tunes the session bridge.
type RelayConfig struct {
	OutboxSize     int `json:"outbox_size"`
	FlushTimeoutMS int `json:"flush_timeout_ms"`
}

// FlushTimeout returns the configured flush timeout as a duration.
func (r RelayConfig) FlushTimeout() time.Duration {
	return time.Duration(r.FlushTimeoutMS) * time.Millisecond
}

// NodeConfig configures the HTTP status server bind settings. Port 0 disables
// the server.
type NodeConfig struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

// Default returns the configuration used when no config file exists.
func Default() *Config {
	return &Config{
		Fabric: FabricConfig{
			Driver: DriverRedis,
			Redis: RedisConfig{
				Addr:      "127.0.0.1:6379",
				KeyPrefix: "nonocoop:",
			},
		},
		Relay: RelayConfig{
			OutboxSize:     256,
			FlushTimeoutMS: 2000,
		},
		Node: NodeConfig{
			Host: "127.0.0.1",
			Port: 18791,
		},
	}
}

// LoadConfig resolves config.json, unmarshals it over the defaults, and applies
// environment overrides. A missing file is not an error unless NONOCOOP_CONFIG
// names it explicitly.
func LoadConfig() (*Config, error) {
	cfg := Default()

	configPath, err := findConfigPath()
	switch {
	case errors.Is(err, errConfigNotFound):
	case err != nil:
		return nil, err
	default:
		content, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := json.Unmarshal(content, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings no component can run with.
func (c *Config) Validate() error {
	switch c.Fabric.Driver {
	case DriverMemory:
	case DriverRedis:
		if strings.TrimSpace(c.Fabric.Redis.Addr) == "" {
			return errors.New("fabric.redis.addr is required for the redis driver")
		}
		if c.Fabric.Redis.DB < 0 {
			return fmt.Errorf("fabric.redis.db must not be negative, got %d", c.Fabric.Redis.DB)
		}
	default:
		return fmt.Errorf("unsupported fabric driver %q", c.Fabric.Driver)
	}

	if c.Relay.OutboxSize < 0 {
		return fmt.Errorf("relay.outbox_size must not be negative, got %d", c.Relay.OutboxSize)
	}
	if c.Relay.FlushTimeoutMS < 0 {
		return fmt.Errorf("relay.flush_timeout_ms must not be negative, got %d", c.Relay.FlushTimeoutMS)
	}
	if c.Node.Port < 0 || c.Node.Port > 65535 {
		return fmt.Errorf("node.port out of range: %d", c.Node.Port)
	}
	return nil
}

// applyEnvOverrides injects selected env-driven settings on top of file config.
func applyEnvOverrides(cfg *Config) {
	if cfg == nil {
		return
	}

	if id := strings.TrimSpace(os.Getenv(envPlayerID)); id != "" {
		cfg.Player.ID = id
	}

	if addr := strings.TrimSpace(os.Getenv(envRedisAddr)); addr != "" {
		cfg.Fabric.Redis.Addr = addr
	}

	if password := os.Getenv(envRedisPassword); password != "" {
		cfg.Fabric.Redis.Password = password
	}
}

var errConfigNotFound = errors.New("config.json not found")

// findConfigPath resolves the active config file location.
//
// Precedence is NONOCOOP_CONFIG first, then cwd-local fallback paths.
func findConfigPath() (string, error) {
	if value := strings.TrimSpace(os.Getenv(envConfigPath)); value != "" {
		if info, err := os.Stat(value); err == nil && !info.IsDir() {
			return value, nil
		}
		return "", fmt.Errorf("%s does not point to a file: %s", envConfigPath, value)
	}

	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("get current working directory: %w", err)
	}

	candidates := []string{
		filepath.Join(cwd, "config.json"),
		filepath.Join(cwd, "config", "config.json"),
	}

	for _, candidate := range candidates {
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate, nil
		}
	}

	return "", errConfigNotFound
}
