// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package config loads the gateway configuration from YAML with environment
// overrides, and builds the logger.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultPath is the configuration file read when none is given
const DefaultPath = "rooftop.yaml"

// Config is the complete gateway configuration
type Config struct {
	Bus     BusConfig     `yaml:"bus"`
	Redis   RedisConfig   `yaml:"redis"`
	MQTT    MQTTConfig    `yaml:"mqtt"`
	Serial  SerialConfig  `yaml:"serial"`
	Door    DoorConfig    `yaml:"door"`
	Driver  DriverConfig  `yaml:"driver"`
	Log     LogConfig     `yaml:"log"`
	Metrics MetricsConfig `yaml:"metrics"`
}

type BusConfig struct {
	Backend string `yaml:"backend"` // redis, mqtt or memory
	Channel string `yaml:"channel"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
}

type MQTTConfig struct {
	Broker    string `yaml:"broker"`
	ClientID  string `yaml:"client_id"`
	Username  string `yaml:"username"`
	Password  string `yaml:"password"`
	KeyPrefix string `yaml:"key_prefix"`
}

type SerialConfig struct {
	Port        string        `yaml:"port"`
	Baud        int           `yaml:"baud"`
	ReadTimeout time.Duration `yaml:"read_timeout"`
	Capture     string        `yaml:"capture"` // CBOR capture file, empty disables
}

type DoorConfig struct {
	ParamDir string `yaml:"param_dir"`
	Profile  string `yaml:"profile"` // quartic or table
	Home     bool   `yaml:"home"`    // slow close on startup
}

type DriverConfig struct {
	QueueSize      int `yaml:"queue_size"`
	MaxMessageSize int `yaml:"max_message_size"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // text or json
	File   string `yaml:"file"`   // empty logs to stderr
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// Default returns the built-in configuration
func Default() *Config {
	return &Config{
		Bus: BusConfig{
			Backend: "redis",
			Channel: "tx_to_pico",
		},
		Redis: RedisConfig{
			Addr:     "localhost:6379",
			PoolSize: 10,
		},
		MQTT: MQTTConfig{
			Broker:    "tcp://localhost:1883",
			KeyPrefix: "rooftop",
		},
		Serial: SerialConfig{
			Port:        "/dev/serial0",
			Baud:        115200,
			ReadTimeout: 200 * time.Millisecond,
		},
		Door: DoorConfig{
			ParamDir: ".",
			Profile:  "quartic",
			Home:     true,
		},
		Driver: DriverConfig{
			QueueSize:      100,
			MaxMessageSize: 64 * 1024,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Metrics: MetricsConfig{
			Addr: ":9090",
		},
	}
}

// Load reads path over the defaults and applies environment overrides.
// A missing file is not an error; loaded reports whether it was read.
func Load(path string) (cfg *Config, loaded bool, err error) {
	if path == "" {
		path = DefaultPath
	}
	cfg = Default()

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return nil, false, fmt.Errorf("failed to read config %s: %w", path, err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, false, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
		loaded = true
	}

	cfg.ApplyEnv(os.Getenv)
	if err := cfg.Validate(); err != nil {
		return nil, loaded, err
	}
	return cfg, loaded, nil
}

// ApplyEnv overrides settings from ROOFTOP_* variables looked up with getenv
func (c *Config) ApplyEnv(getenv func(string) string) {
	str := func(key string, dst *string) {
		if v := getenv(key); v != "" {
			*dst = v
		}
	}
	num := func(key string, dst *int) {
		if v := getenv(key); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				*dst = n
			}
		}
	}
	flag := func(key string, dst *bool) {
		if v := getenv(key); v != "" {
			*dst = v == "1" || strings.EqualFold(v, "true") || strings.EqualFold(v, "yes")
		}
	}

	str("ROOFTOP_BUS", &c.Bus.Backend)
	str("ROOFTOP_BUS_CHANNEL", &c.Bus.Channel)
	str("ROOFTOP_REDIS_ADDR", &c.Redis.Addr)
	str("ROOFTOP_REDIS_PASSWORD", &c.Redis.Password)
	num("ROOFTOP_REDIS_DB", &c.Redis.DB)
	str("ROOFTOP_MQTT_BROKER", &c.MQTT.Broker)
	str("ROOFTOP_MQTT_USERNAME", &c.MQTT.Username)
	str("ROOFTOP_MQTT_PASSWORD", &c.MQTT.Password)
	str("ROOFTOP_SERIAL_PORT", &c.Serial.Port)
	num("ROOFTOP_SERIAL_BAUD", &c.Serial.Baud)
	str("ROOFTOP_PARAM_DIR", &c.Door.ParamDir)
	str("ROOFTOP_DOOR_PROFILE", &c.Door.Profile)
	str("ROOFTOP_LOG_LEVEL", &c.Log.Level)
	str("ROOFTOP_LOG_FILE", &c.Log.File)
	flag("ROOFTOP_METRICS", &c.Metrics.Enabled)
	str("ROOFTOP_METRICS_ADDR", &c.Metrics.Addr)
}

// Validate checks settings that would otherwise fail late
func (c *Config) Validate() error {
	switch c.Bus.Backend {
	case "redis", "mqtt", "memory":
	default:
		return fmt.Errorf("unknown bus backend %q (want redis, mqtt or memory)", c.Bus.Backend)
	}
	if c.Bus.Channel == "" {
		return errors.New("bus channel must not be empty")
	}
	if c.Serial.Baud <= 0 {
		return fmt.Errorf("invalid serial baud rate %d", c.Serial.Baud)
	}
	switch strings.ToLower(c.Door.Profile) {
	case "", "quartic", "table":
	default:
		return fmt.Errorf("unknown door profile %q (want quartic or table)", c.Door.Profile)
	}
	return nil
}

// YAML renders the configuration
func (c *Config) YAML() ([]byte, error) {
	return yaml.Marshal(c)
}
