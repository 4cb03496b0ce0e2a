// Package settings loads the configuration of the LoStik tools.
package settings

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	lostik "github.com/basilfx/go-lostik"
	"github.com/basilfx/go-lostik/logging"
	"github.com/basilfx/go-lostik/pingpong"
	"github.com/flynn/json5"
	"gopkg.in/yaml.v2"
)

// EnvPrefix is the prefix of all environment overrides.
const EnvPrefix = "LOSTIK_"

// Settings represents the complete configuration.
type Settings struct {
	Serial   SerialSettings     `yaml:"serial" json:"serial"`
	Radio    lostik.RadioConfig `yaml:"radio" json:"radio"`
	PingPong PingPongSettings   `yaml:"pingpong" json:"pingpong"`
	Log      logging.Config     `yaml:"log" json:"log"`
	Redis    RedisSettings      `yaml:"redis" json:"redis"`
}

// SerialSettings holds the serial port settings.
type SerialSettings struct {
	Port           string `yaml:"port" json:"port"`
	Driver         string `yaml:"driver" json:"driver"`
	ReadTimeoutMs  int    `yaml:"readTimeoutMs" json:"readTimeoutMs"`
	PollIntervalMs int    `yaml:"pollIntervalMs" json:"pollIntervalMs"`
}

// ReadTimeout returns the read timeout of a synchronous exchange.
func (s SerialSettings) ReadTimeout() time.Duration {
	return time.Duration(s.ReadTimeoutMs) * time.Millisecond
}

// PollInterval returns the progress interval while awaiting an event.
func (s SerialSettings) PollInterval() time.Duration {
	return time.Duration(s.PollIntervalMs) * time.Millisecond
}

// PingPongSettings holds the connectivity test settings.
type PingPongSettings struct {
	// Role is "ping" or "pong". It may be left empty, and be selected on the
	// command line.
	Role   string `yaml:"role" json:"role"`
	Schema string `yaml:"schema" json:"schema"`
}

// RedisSettings holds the event publisher settings. An empty address disables
// publishing.
type RedisSettings struct {
	Address string `yaml:"address" json:"address"`
	Channel string `yaml:"channel" json:"channel"`
}

// Default returns the default settings.
func Default() *Settings {
	return &Settings{
		Serial: SerialSettings{
			Port:           "/dev/ttyUSB0",
			Driver:         string(lostik.DriverBugst),
			ReadTimeoutMs:  int(lostik.DefaultReadTimeout / time.Millisecond),
			PollIntervalMs: int(lostik.DefaultPollInterval / time.Millisecond),
		},
		Radio: lostik.DefaultRadioConfig(),
		PingPong: PingPongSettings{
			Schema: string(pingpong.SchemaBasic),
		},
		Log: logging.DefaultConfig(),
		Redis: RedisSettings{
			Channel: "lostik",
		},
	}
}

// Load returns the defaults, merged with the file at path if not empty, then
// with the environment overrides. The result is validated.
func Load(path string) (*Settings, error) {
	s := Default()

	if path != "" {
		if err := loadFromFile(s, path); err != nil {
			return nil, fmt.Errorf("failed to load config from %s: %w", path, err)
		}
	}

	if err := applyEnvOverrides(s, os.LookupEnv); err != nil {
		return nil, err
	}

	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return s, nil
}

func loadFromFile(s *Settings, path string) error {
	data, err := os.ReadFile(path)

	if err != nil {
		return err
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return yaml.UnmarshalStrict(data, s)
	case ".json", ".json5":
		return json5.Unmarshal(data, s)
	}

	return fmt.Errorf("unsupported config file type '%s'", filepath.Ext(path))
}

type lookupFunc func(key string) (string, bool)

type override struct {
	key   string
	apply func(s *Settings, value string) error
}

var overrides = []override{
	{"PORT", func(s *Settings, v string) error { s.Serial.Port = v; return nil }},
	{"DRIVER", func(s *Settings, v string) error { s.Serial.Driver = v; return nil }},
	{"READ_TIMEOUT_MS", func(s *Settings, v string) error { return atoi(v, &s.Serial.ReadTimeoutMs) }},
	{"POLL_INTERVAL_MS", func(s *Settings, v string) error { return atoi(v, &s.Serial.PollIntervalMs) }},
	{"ROLE", func(s *Settings, v string) error { s.PingPong.Role = v; return nil }},
	{"SCHEMA", func(s *Settings, v string) error { s.PingPong.Schema = v; return nil }},
	{"WDT", func(s *Settings, v string) error { return s.Radio.Set(lostik.ParamWatchdog, v) }},
	{"LOG_LEVEL", func(s *Settings, v string) error { s.Log.Level = v; return nil }},
	{"LOG_FILE", func(s *Settings, v string) error { s.Log.File = v; return nil }},
	{"REDIS_ADDRESS", func(s *Settings, v string) error { s.Redis.Address = v; return nil }},
	{"REDIS_CHANNEL", func(s *Settings, v string) error { s.Redis.Channel = v; return nil }},
}

func applyEnvOverrides(s *Settings, lookup lookupFunc) error {
	for _, o := range overrides {
		value, ok := lookup(EnvPrefix + o.key)

		if !ok {
			continue
		}

		if err := o.apply(s, value); err != nil {
			return fmt.Errorf("invalid value for %s%s: %w", EnvPrefix, o.key, err)
		}
	}

	return nil
}

func atoi(value string, target *int) error {
	v, err := strconv.Atoi(value)

	if err != nil {
		return err
	}

	*target = v

	return nil
}

// Validate checks all settings.
func (s *Settings) Validate() error {
	if s.Serial.Port == "" {
		return fmt.Errorf("serial port must be set")
	}

	switch lostik.Driver(s.Serial.Driver) {
	case lostik.DriverBugst, lostik.DriverTarm:
	default:
		return fmt.Errorf("invalid serial driver '%s', must be one of: %s, %s", s.Serial.Driver, lostik.DriverBugst, lostik.DriverTarm)
	}

	if s.Serial.ReadTimeoutMs <= 0 {
		return fmt.Errorf("read timeout %dms must be positive", s.Serial.ReadTimeoutMs)
	}

	if s.Serial.PollIntervalMs <= 0 {
		return fmt.Errorf("poll interval %dms must be positive", s.Serial.PollIntervalMs)
	}

	if err := s.Radio.Validate(); err != nil {
		return err
	}

	if s.PingPong.Role != "" {
		if _, err := pingpong.ParseRole(s.PingPong.Role); err != nil {
			return err
		}
	}

	if _, err := pingpong.ParseSchema(s.PingPong.Schema); err != nil {
		return err
	}

	if s.Redis.Address != "" && s.Redis.Channel == "" {
		return fmt.Errorf("redis channel must be set")
	}

	return s.Log.Validate()
}
