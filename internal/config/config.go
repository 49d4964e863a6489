// Package config loads boardctl settings from TOML.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/danmuck/boardsync/internal/persistence"
	"github.com/danmuck/boardsync/internal/protocol/session"
)

var ErrInvalidConfig = errors.New("config: invalid")

// Config is the resolved client configuration.
type Config struct {
	ServiceURL   string
	DeviceType   string
	Token        string
	WebSocketURL string
	KeyFile      string
	Realtime     session.Config
	Persistence  persistence.Config
}

type fileConfig struct {
	ServiceURL         string  `toml:"service_url"`
	DeviceType         string  `toml:"device_type"`
	Token              string  `toml:"token"`
	WebSocketURL       string  `toml:"web_socket_url"`
	KeyFile            string  `toml:"key_file"`
	SecurityMode       string  `toml:"security_mode"`
	MaxRetries         int     `toml:"max_retries"`
	PingInterval       string  `toml:"ping_interval"`
	PongTimeout        string  `toml:"pong_timeout"`
	ForceCloseDelay    string  `toml:"force_close_delay"`
	BufferStateTimeout string  `toml:"buffer_state_timeout"`
	RequestTimeout     string  `toml:"request_timeout"`
	ContentsPerPage    int     `toml:"contents_per_page"`
	MaxPages           int     `toml:"max_pages"`
	BackoffInitial     string  `toml:"backoff_initial"`
	BackoffMax         string  `toml:"backoff_max"`
	BackoffMultiplier  float64 `toml:"backoff_multiplier"`
	BackoffJitter      bool    `toml:"backoff_jitter"`
	TLSCAFile          string  `toml:"tls_ca_file"`
	TLSServerName      string  `toml:"tls_server_name"`
}

func Default() Config {
	return Config{
		DeviceType:  "CLI",
		Realtime:    session.DefaultConfig(),
		Persistence: persistence.DefaultConfig(),
	}
}

// Load reads path over Default. Only keys present in the file override defaults.
func Load(path string) (Config, error) {
	cfg := Default()

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return Config{}, fmt.Errorf("load config: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return Config{}, fmt.Errorf("%w: unknown key %q", ErrInvalidConfig, undecoded[0].String())
	}

	if meta.IsDefined("service_url") {
		cfg.ServiceURL = strings.TrimSpace(raw.ServiceURL)
	}
	if meta.IsDefined("device_type") {
		cfg.DeviceType = strings.TrimSpace(raw.DeviceType)
	}
	if meta.IsDefined("token") {
		cfg.Token = strings.TrimSpace(raw.Token)
	}
	if meta.IsDefined("web_socket_url") {
		cfg.WebSocketURL = strings.TrimSpace(raw.WebSocketURL)
	}
	if meta.IsDefined("key_file") {
		cfg.KeyFile = strings.TrimSpace(raw.KeyFile)
	}
	if meta.IsDefined("security_mode") {
		cfg.Realtime.SecurityMode = session.NormalizeSecurityMode(session.SecurityMode(raw.SecurityMode))
	}
	if meta.IsDefined("max_retries") {
		cfg.Realtime.MaxRetries = raw.MaxRetries
	}
	if meta.IsDefined("contents_per_page") {
		cfg.Persistence.ContentsPerPage = raw.ContentsPerPage
	}
	if meta.IsDefined("max_pages") {
		cfg.Persistence.MaxPages = raw.MaxPages
	}
	if meta.IsDefined("backoff_multiplier") {
		cfg.Realtime.Backoff.Multiplier = raw.BackoffMultiplier
	}
	if meta.IsDefined("backoff_jitter") {
		cfg.Realtime.Backoff.Jitter = raw.BackoffJitter
	}
	if meta.IsDefined("tls_ca_file") {
		cfg.Realtime.TLS.CAFile = strings.TrimSpace(raw.TLSCAFile)
	}
	if meta.IsDefined("tls_server_name") {
		cfg.Realtime.TLS.ServerName = strings.TrimSpace(raw.TLSServerName)
	}

	durations := []struct {
		key string
		raw string
		dst *time.Duration
	}{
		{"ping_interval", raw.PingInterval, &cfg.Realtime.PingInterval},
		{"pong_timeout", raw.PongTimeout, &cfg.Realtime.PongTimeout},
		{"force_close_delay", raw.ForceCloseDelay, &cfg.Realtime.ForceCloseDelay},
		{"buffer_state_timeout", raw.BufferStateTimeout, &cfg.Realtime.BufferStateTimeout},
		{"request_timeout", raw.RequestTimeout, &cfg.Realtime.RequestTimeout},
		{"backoff_initial", raw.BackoffInitial, &cfg.Realtime.Backoff.InitialDelay},
		{"backoff_max", raw.BackoffMax, &cfg.Realtime.Backoff.MaxDelay},
	}
	for _, d := range durations {
		if !meta.IsDefined(d.key) {
			continue
		}
		v, err := time.ParseDuration(strings.TrimSpace(d.raw))
		if err != nil {
			return Config{}, fmt.Errorf("parse %s: %w", d.key, err)
		}
		*d.dst = v
	}

	cfg.Persistence.ServiceURL = cfg.ServiceURL
	if err := Validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the fields every command relies on.
func Validate(cfg Config) error {
	if cfg.ServiceURL != "" {
		u, err := url.Parse(cfg.ServiceURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("%w: service_url must be an http(s) url: %q", ErrInvalidConfig, cfg.ServiceURL)
		}
	}
	if cfg.WebSocketURL != "" {
		if err := cfg.Realtime.ValidateClientTransport(cfg.WebSocketURL); err != nil {
			return fmt.Errorf("%w: web_socket_url: %v", ErrInvalidConfig, err)
		}
	}
	switch session.NormalizeSecurityMode(cfg.Realtime.SecurityMode) {
	case session.SecurityModeDevelopment, session.SecurityModeProduction:
	default:
		return fmt.Errorf("%w: security_mode %q", ErrInvalidConfig, cfg.Realtime.SecurityMode)
	}
	if strings.TrimSpace(cfg.DeviceType) == "" {
		return fmt.Errorf("%w: device_type required", ErrInvalidConfig)
	}
	if cfg.Realtime.PingInterval < 0 || cfg.Realtime.PongTimeout < 0 || cfg.Realtime.ForceCloseDelay < 0 {
		return fmt.Errorf("%w: negative keepalive duration", ErrInvalidConfig)
	}
	if cfg.Realtime.PongTimeout > 0 && cfg.Realtime.PingInterval > 0 && cfg.Realtime.PongTimeout >= cfg.Realtime.PingInterval {
		return fmt.Errorf("%w: pong_timeout must be shorter than ping_interval", ErrInvalidConfig)
	}
	if cfg.Persistence.ContentsPerPage < 0 || cfg.Persistence.ContentsPerPage > persistence.MaxBatchSize {
		return fmt.Errorf("%w: contents_per_page must be within 1..%d", ErrInvalidConfig, persistence.MaxBatchSize)
	}
	return nil
}
