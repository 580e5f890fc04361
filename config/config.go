package config

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/kilianp07/busalloc/core/allocation"
	"github.com/kilianp07/busalloc/core/factory"
	"github.com/kilianp07/busalloc/core/metrics"
)

// EnvPrefix marks environment overrides. Nested keys use a double
// underscore: BUSALLOC_ENGINE__ALLOCATION_LIMIT_K=2.
const EnvPrefix = "BUSALLOC_"

type Config struct {
	Engine      allocation.Config    `json:"engine"`
	Fleet       FleetConfig          `json:"fleet"`
	DecisionLog factory.ModuleConfig `json:"decision_log"`
	Oracle      factory.ModuleConfig `json:"oracle"`
	MQTT        MQTTConfig           `json:"mqtt"`
	Metrics     metrics.Config       `json:"metrics"`
	Sentry      SentryConfig         `json:"sentry"`
	Log         LogConfig            `json:"log"`
	HTTP        HTTPConfig           `json:"http"`
	Simulator   SimulatorConfig      `json:"simulator"`
}

// FleetConfig points at an optional seed file. Without one the reference
// fleet is used.
type FleetConfig struct {
	SeedPath string `json:"seed_path"`
}

type HTTPConfig struct {
	Addr           string   `json:"addr"`
	AllowedOrigins []string `json:"allowed_origins"`
}

// SimulatorConfig enables POST /simulate and seeds its generator.
type SimulatorConfig struct {
	Enabled bool  `json:"enabled"`
	Seed    int64 `json:"seed"`
}

// Default returns the configuration used when a key is absent.
func Default() Config {
	return Config{
		Engine:      allocation.DefaultConfig(),
		DecisionLog: factory.ModuleConfig{Type: "memory"},
		Oracle:      factory.ModuleConfig{Type: "rule"},
		MQTT:        MQTTConfig{AckTimeoutSeconds: DefaultAckTimeoutSeconds},
		Log:         LogConfig{Level: "info"},
		HTTP:        HTTPConfig{Addr: ":8080"},
		Simulator:   SimulatorConfig{Seed: 1},
	}
}

// Load reads path, applies a .env file from the working directory and
// BUSALLOC_ environment overrides, then validates the result. An empty path
// loads defaults and environment only.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	k := koanf.New(".")
	if path != "" {
		parser, err := parserFor(path)
		if err != nil {
			return nil, err
		}
		if err := k.Load(file.Provider(path), parser); err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
	}
	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, err
	}

	cfg := Default()
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "json"}); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func parserFor(path string) (koanf.Parser, error) {
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		return yaml.Parser(), nil
	case ".json":
		return json.Parser(), nil
	default:
		return nil, fmt.Errorf("unsupported config format: %s", ext)
	}
}

func envKey(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	return strings.ReplaceAll(s, "__", ".")
}

// SetDefaults fills module and string values left empty by the file. Engine
// values are not touched so an explicit zero fails validation.
func (c *Config) SetDefaults() {
	d := Default()
	if c.DecisionLog.Type == "" {
		c.DecisionLog.Type = d.DecisionLog.Type
	}
	if c.Oracle.Type == "" {
		c.Oracle.Type = d.Oracle.Type
	}
	if c.MQTT.AckTimeoutSeconds <= 0 {
		c.MQTT.AckTimeoutSeconds = d.MQTT.AckTimeoutSeconds
	}
	if c.Log.Level == "" {
		c.Log.Level = d.Log.Level
	}
	if c.HTTP.Addr == "" {
		c.HTTP.Addr = d.HTTP.Addr
	}
}

// Validate checks every section and reports the first violation.
func (c Config) Validate() error {
	if err := c.Engine.Validate(); err != nil {
		return fmt.Errorf("engine: %w", err)
	}
	if err := c.Log.Validate(); err != nil {
		return fmt.Errorf("log: %w", err)
	}
	if err := c.MQTT.Validate(); err != nil {
		return fmt.Errorf("mqtt: %w", err)
	}
	for i, s := range c.Metrics.Sinks {
		if s.Type == "" {
			return fmt.Errorf("metrics: sink %d has no type", i)
		}
	}
	return nil
}
