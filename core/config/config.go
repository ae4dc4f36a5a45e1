// Package config loads the process configuration from a .env file, an
// optional YAML file and EMA_ prefixed environment variables, in that order
// of increasing precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const EnvPrefix = "EMA_"

type Config struct {
	Session   SessionConfig   `koanf:"session"`
	Sink      SinkConfig      `koanf:"sink"`
	Tools     ToolsConfig     `koanf:"tools"`
	Feedback  FeedbackConfig  `koanf:"feedback"`
	Control   ControlConfig   `koanf:"control"`
	Telemetry TelemetryConfig `koanf:"telemetry"`
}

type SessionConfig struct {
	URL             string `koanf:"url"`
	Model           string `koanf:"model"`
	APIKey          string `koanf:"api_key"`
	Instructions    string `koanf:"instructions"`
	Voice           string `koanf:"voice"`
	TurnDetection   string `koanf:"turn_detection"` // server_vad, semantic_vad, none
	BargeInOnSpeech bool   `koanf:"barge_in_on_speech"`
}

type SinkConfig struct {
	URL           string        `koanf:"url"` // empty disables remote delivery
	APIKey        string        `koanf:"api_key"`
	Timeout       time.Duration `koanf:"timeout"`
	QueueLimit    int           `koanf:"queue_limit"` // 0 = unbounded
	Overflow      string        `koanf:"overflow"`    // drop_oldest, reject_new
	SpoolPath     string        `koanf:"spool_path"`  // empty keeps the queue in memory
	RetryInterval time.Duration `koanf:"retry_interval"`
}

type ToolsConfig struct {
	SearchURL          string        `koanf:"search_url"` // empty disables web_search
	APIKey             string        `koanf:"api_key"`
	Timeout            time.Duration `koanf:"timeout"`
	DefaultRecencyDays int           `koanf:"default_recency_days"`
}

type FeedbackConfig struct {
	MinRating int `koanf:"min_rating"`
	MaxRating int `koanf:"max_rating"`
}

type ControlConfig struct {
	Addr string `koanf:"addr"`
}

type TelemetryConfig struct {
	Enabled     bool   `koanf:"enabled"`
	ServiceName string `koanf:"service_name"`
}

var defaults = map[string]any{
	"session.turn_detection":     "server_vad",
	"sink.timeout":               "10s",
	"sink.overflow":              "drop_oldest",
	"tools.timeout":              "30s",
	"tools.default_recency_days": 0,
	"feedback.min_rating":        1,
	"feedback.max_rating":        5,
	"control.addr":               "127.0.0.1:8089",
	"telemetry.service_name":     "ema-realtime",
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// Load reads the configuration. A missing .env or YAML file is not an error;
// an empty path skips the YAML layer.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	k := koanf.New(".")
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to load %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, EnvPrefix)), "__", ".")
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment: %w", err)
	}

	for key, value := range defaults {
		if !k.Exists(key) {
			k.Set(key, value)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	cfg.Session.APIKey = substituteEnvVars(cfg.Session.APIKey)
	cfg.Sink.APIKey = substituteEnvVars(cfg.Sink.APIKey)
	cfg.Tools.APIKey = substituteEnvVars(cfg.Tools.APIKey)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

func (c Config) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Session),
		validation.Field(&c.Sink),
		validation.Field(&c.Tools),
		validation.Field(&c.Feedback),
		validation.Field(&c.Control),
	)
}

func (c SessionConfig) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.URL, validation.Required, is.URL),
		validation.Field(&c.TurnDetection, validation.In("server_vad", "semantic_vad", "none")),
	)
}

func (c SinkConfig) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.URL, is.URL),
		validation.Field(&c.Timeout, validation.Min(time.Duration(0))),
		validation.Field(&c.QueueLimit, validation.Min(0)),
		validation.Field(&c.Overflow, validation.In("drop_oldest", "reject_new")),
		validation.Field(&c.RetryInterval, validation.Min(time.Duration(0))),
	)
}

func (c ToolsConfig) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.SearchURL, is.URL),
		validation.Field(&c.Timeout, validation.Min(time.Duration(0))),
		validation.Field(&c.DefaultRecencyDays, validation.Min(0)),
	)
}

func (c FeedbackConfig) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.MinRating, validation.Min(0)),
		validation.Field(&c.MaxRating, validation.Min(c.MinRating)),
	)
}

func (c ControlConfig) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Addr, validation.Required),
	)
}

func substituteEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		return os.Getenv(envVarPattern.FindStringSubmatch(match)[1])
	})
}
