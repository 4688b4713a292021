// Package config loads wiremux CLI configuration from a TOML file and environment variables, exposing typed structs and accessors for all sections.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"reflect"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/robfig/cron/v3"
	"github.com/spf13/viper"

	"github.com/wiremux/wiremux/codec"
)

const (
	// TransportTCP frames messages over a plain TCP stream.
	TransportTCP = "tcp"
	// TransportWS frames messages over WebSocket.
	TransportWS = "ws"
)

// Config is the runtime configuration loaded from defaults, config.toml, and env vars.
type Config struct {
	// HomeDir is runtime-resolved from WIREMUX_HOME and not read from config.
	HomeDir   string          `mapstructure:"-"`
	Listen    ListenConfig    `mapstructure:"listen"`
	Codec     CodecConfig     `mapstructure:"codec"`
	Heartbeat HeartbeatConfig `mapstructure:"heartbeat"`
	Chat      ChatConfig      `mapstructure:"chat"`
}

// ListenConfig configures the accept side of the serve command.
type ListenConfig struct {
	Addr      string `mapstructure:"addr"`
	Transport string `mapstructure:"transport"`
	MaxFrame  int    `mapstructure:"max_frame"`
}

// CodecConfig selects the wire codec both commands speak.
type CodecConfig struct {
	Name string `mapstructure:"name"`
}

// HeartbeatConfig controls the status broadcast of the serve command.
type HeartbeatConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Schedule string `mapstructure:"schedule"`
}

// ChatConfig configures the connection and REPL behavior of the chat command.
type ChatConfig struct {
	Server       string        `mapstructure:"server"`
	Transport    string        `mapstructure:"transport"`
	HistoryLimit int           `mapstructure:"history_limit"`
	ReplyTimeout time.Duration `mapstructure:"reply_timeout"`
}

var defaultConfig = Config{
	Listen: ListenConfig{
		Addr:      "127.0.0.1:7420",
		Transport: TransportTCP,
		MaxFrame:  16 << 20,
	},
	Codec: CodecConfig{
		Name: "json",
	},
	Heartbeat: HeartbeatConfig{
		Enabled:  true,
		Schedule: "@every 30s",
	},
	Chat: ChatConfig{
		Server:       "127.0.0.1:7420",
		Transport:    TransportTCP,
		HistoryLimit: 200,
		ReplyTimeout: 5 * time.Second,
	},
}

// defaultUserConfig is the minimal bootstrap config written for first-time
// users. It intentionally contains only user-editable essentials and not the
// full runtime default surface.
var defaultUserConfig = Config{
	Listen: ListenConfig{
		Addr:      "127.0.0.1:7420",
		Transport: TransportTCP,
	},
	Codec: CodecConfig{
		Name: "json",
	},
	Chat: ChatConfig{
		Server:       "127.0.0.1:7420",
		Transport:    TransportTCP,
		ReplyTimeout: 5 * time.Second,
	},
}

// homeDir returns the wiremux home directory.
// Uses WIREMUX_HOME env var if set, otherwise defaults to ~/.wiremux.
func homeDir() (string, error) {
	if dir := os.Getenv("WIREMUX_HOME"); dir != "" {
		return dir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home dir: %w", err)
	}
	return defaultHomePath(home), nil
}

// Load merges hardcoded defaults and config file values in that order.
// Config is always at $WIREMUX_HOME/config.toml.
func Load() (*Config, error) {
	homeDir, err := homeDir()
	if err != nil {
		return nil, err
	}

	v := viper.New()
	setDefaults(v)
	v.SetConfigFile(homeConfigPath(homeDir))
	v.SetConfigType("toml")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	var cfg Config
	decodeHook := mapstructure.ComposeDecodeHookFunc(
		expandEnvStringHook(),
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	)

	if err := v.Unmarshal(&cfg, func(c *mapstructure.DecoderConfig) {
		c.DecodeHook = decodeHook
	}); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.HomeDir = homeDir

	return &cfg, nil
}

// Write writes the merged configuration (defaults overlaid by user
// config) to w in TOML format.
func Write(w io.Writer) error {
	if w == nil {
		return errors.New("writer is required")
	}

	homeDir, err := homeDir()
	if err != nil {
		return err
	}

	v := viper.New()
	setDefaults(v)
	v.SetConfigFile(homeConfigPath(homeDir))
	v.SetConfigType("toml")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("read config file: %w", err)
		}
	}

	// Keep duration fields human-readable in generated TOML.
	v.Set("chat.reply_timeout", v.GetDuration("chat.reply_timeout").String())

	if err := v.WriteConfigTo(w); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// DefaultUserConfigTOML renders the minimal bootstrap user config as TOML.
func DefaultUserConfigTOML() (string, error) {
	v := viper.New()
	v.SetConfigType("toml")

	v.Set("listen.addr", defaultUserConfig.Listen.Addr)
	v.Set("listen.transport", defaultUserConfig.Listen.Transport)
	v.Set("codec.name", defaultUserConfig.Codec.Name)
	v.Set("chat.server", defaultUserConfig.Chat.Server)
	v.Set("chat.transport", defaultUserConfig.Chat.Transport)
	v.Set("chat.reply_timeout", defaultUserConfig.Chat.ReplyTimeout.String())

	var out bytes.Buffer
	if err := v.WriteConfigTo(&out); err != nil {
		return "", fmt.Errorf("write default user config: %w", err)
	}
	return out.String(), nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("listen.addr", defaultConfig.Listen.Addr)
	v.SetDefault("listen.transport", defaultConfig.Listen.Transport)
	v.SetDefault("listen.max_frame", defaultConfig.Listen.MaxFrame)

	v.SetDefault("codec.name", defaultConfig.Codec.Name)

	v.SetDefault("heartbeat.enabled", defaultConfig.Heartbeat.Enabled)
	v.SetDefault("heartbeat.schedule", defaultConfig.Heartbeat.Schedule)

	v.SetDefault("chat.server", defaultConfig.Chat.Server)
	v.SetDefault("chat.transport", defaultConfig.Chat.Transport)
	v.SetDefault("chat.history_limit", defaultConfig.Chat.HistoryLimit)
	v.SetDefault("chat.reply_timeout", defaultConfig.Chat.ReplyTimeout)
}

func validateTransport(transport string) error {
	switch transport {
	case TransportTCP, TransportWS:
		return nil
	default:
		return fmt.Errorf("invalid transport %q (allowed: %q, %q)", transport, TransportTCP, TransportWS)
	}
}

// Validatable is implemented by config sections that can self-validate.
type Validatable interface {
	Validate() error
}

// Validate checks the listen address, transport, and frame limit.
func (c ListenConfig) Validate() error {
	if c.Addr == "" {
		return errors.New("addr is required")
	}
	if c.MaxFrame <= 0 {
		return errors.New("max_frame must be > 0")
	}
	return validateTransport(c.Transport)
}

// Validate checks the codec name against the built-in codec table.
func (c CodecConfig) Validate() error {
	_, err := codec.ForName(c.Name)
	return err
}

// Validate checks the heartbeat schedule parses when enabled.
func (c HeartbeatConfig) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.Schedule == "" {
		return errors.New("schedule is required when enabled=true")
	}
	if _, err := cron.ParseStandard(c.Schedule); err != nil {
		return fmt.Errorf("invalid schedule %q: %w", c.Schedule, err)
	}
	return nil
}

// Validate checks the chat server endpoint and REPL settings.
func (c ChatConfig) Validate() error {
	if c.Server == "" {
		return errors.New("server is required")
	}
	if c.HistoryLimit < 0 {
		return errors.New("history_limit must be >= 0")
	}
	if c.ReplyTimeout <= 0 {
		return errors.New("reply_timeout must be > 0")
	}
	return validateTransport(c.Transport)
}

// Validate validates startup configuration and returns the first fatal error.
func (cfg *Config) Validate() error {
	var errs []error

	if err := cfg.Listen.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("listen: %w", err))
	}
	if err := cfg.Codec.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("codec: %w", err))
	}
	if err := cfg.Heartbeat.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("heartbeat: %w", err))
	}
	if err := cfg.Chat.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("chat: %w", err))
	}

	if len(errs) > 0 {
		return errs[0]
	}
	return nil
}

func expandEnvStringHook() mapstructure.DecodeHookFuncType {
	return func(from reflect.Type, to reflect.Type, data any) (any, error) {
		if from.Kind() != reflect.String || to.Kind() != reflect.String {
			return data, nil
		}
		value, ok := data.(string)
		if !ok {
			return data, nil
		}
		return os.ExpandEnv(value), nil
	}
}
