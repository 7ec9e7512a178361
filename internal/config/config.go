// Package config provides configuration helpers that define runtime defaults,
// validation, and endpoint derivation for the GoChat client.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/Tyrowin/gochat-client/internal/chat"
)

const (
	defaultAPIURL      = "http://localhost:8080"
	defaultChannelPath = "/ws"
	defaultHTTPTimeout = 10 * time.Second
	defaultLogLevel    = "info"
	defaultMaxPayload  = 16 << 20
)

// ErrInvalidAPIURL is returned when the base URL lacks a scheme or host.
var ErrInvalidAPIURL = errors.New("invalid api url")

// Config holds the client configuration. A single base URL serves both the
// REST API and the real-time channel.
type Config struct {
	APIURL      string        `env:"CHAT_API_URL"`
	ChannelPath string        `env:"CHAT_CHANNEL_PATH"`
	Rooms       []string      `env:"CHAT_ROOMS" envSeparator:","`
	DefaultRoom string        `env:"CHAT_DEFAULT_ROOM"`
	HTTPTimeout time.Duration `env:"CHAT_HTTP_TIMEOUT"`
	LogLevel    string        `env:"CHAT_LOG_LEVEL"`
	MaxPayload  int64         `env:"CHAT_MAX_PAYLOAD"` // bytes; caps REST bodies and channel frames
}

func defaultConfig() Config {
	return Config{
		APIURL:      defaultAPIURL,
		ChannelPath: defaultChannelPath,
		Rooms:       append([]string(nil), chat.DefaultRooms...),
		HTTPTimeout: defaultHTTPTimeout,
		LogLevel:    defaultLogLevel,
		MaxPayload:  defaultMaxPayload,
	}
}

// NewConfig creates a Config instance populated with default values for all settings.
func NewConfig() *Config {
	cfg := defaultConfig()
	return &cfg
}

// NewConfigFromEnv creates a Config from CHAT_* environment variables,
// falling back to defaults for anything unset.
func NewConfigFromEnv() (*Config, error) {
	return parse(env.Options{})
}

// NewConfigFromMap is NewConfigFromEnv reading from environ instead of the
// process environment.
func NewConfigFromMap(environ map[string]string) (*Config, error) {
	return parse(env.Options{Environment: environ})
}

func parse(opts env.Options) (*Config, error) {
	cfg := defaultConfig()
	if err := env.ParseWithOptions(&cfg, opts); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Sanitize(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Sanitize fills blanks with defaults and normalizes the base URL. It fails
// only when the base URL cannot be used at all.
func (c *Config) Sanitize() error {
	if strings.TrimSpace(c.APIURL) == "" {
		c.APIURL = defaultAPIURL
	}
	base, ok := normalizeBaseURL(c.APIURL)
	if !ok {
		return fmt.Errorf("%w: %q", ErrInvalidAPIURL, c.APIURL)
	}
	c.APIURL = base

	c.ChannelPath = strings.TrimSpace(c.ChannelPath)
	if c.ChannelPath == "" {
		c.ChannelPath = defaultChannelPath
	}
	if !strings.HasPrefix(c.ChannelPath, "/") {
		c.ChannelPath = "/" + c.ChannelPath
	}

	if len(c.Rooms) == 0 {
		c.Rooms = append([]string(nil), chat.DefaultRooms...)
	}

	if c.HTTPTimeout <= 0 {
		c.HTTPTimeout = defaultHTTPTimeout
	}

	if c.MaxPayload <= 0 {
		c.MaxPayload = defaultMaxPayload
	}

	c.LogLevel = strings.ToLower(strings.TrimSpace(c.LogLevel))
	if c.LogLevel == "" {
		c.LogLevel = defaultLogLevel
	}
	return nil
}

// Catalogue builds the room catalogue described by Rooms and DefaultRoom.
func (c *Config) Catalogue() (chat.Catalogue, error) {
	return chat.NewCatalogue(c.Rooms, c.DefaultRoom)
}
