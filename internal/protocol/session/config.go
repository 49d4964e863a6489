package session

import "time"

// BackoffConfig defines retry backoff behavior.
type BackoffConfig struct {
	InitialDelay time.Duration
	Multiplier   float64
	MaxDelay     time.Duration
	Jitter       bool
}

// TLSConfig defines client-side TLS overrides for secure websocket URLs.
type TLSConfig struct {
	CAFile             string
	ServerName         string
	InsecureSkipVerify bool
}

// Config defines realtime session reliability settings.
type Config struct {
	// MaxRetries bounds connect attempts; zero or less retries until cancelled.
	MaxRetries         int
	ConnectTimeout     time.Duration
	WriteTimeout       time.Duration
	PingInterval       time.Duration
	PongTimeout        time.Duration
	ForceCloseDelay    time.Duration
	BufferStateTimeout time.Duration
	RequestTimeout     time.Duration
	SecurityMode       SecurityMode
	TLS                TLSConfig
	Backoff            BackoffConfig
}

// DefaultConfig returns realtime defaults.
func DefaultConfig() Config {
	return Config{
		MaxRetries:         3,
		ConnectTimeout:     10 * time.Second,
		WriteTimeout:       10 * time.Second,
		PingInterval:       15 * time.Second,
		PongTimeout:        14 * time.Second,
		ForceCloseDelay:    2 * time.Second,
		BufferStateTimeout: 30 * time.Second,
		RequestTimeout:     20 * time.Second,
		SecurityMode:       SecurityModeDevelopment,
		Backoff: BackoffConfig{
			InitialDelay: 250 * time.Millisecond,
			Multiplier:   2.0,
			MaxDelay:     32 * time.Second,
			Jitter:       true,
		},
	}
}

// WithDefaults fills zero durations from DefaultConfig. MaxRetries is left as configured.
func (c Config) WithDefaults() Config {
	def := DefaultConfig()
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = def.ConnectTimeout
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = def.WriteTimeout
	}
	if c.PingInterval <= 0 {
		c.PingInterval = def.PingInterval
	}
	if c.PongTimeout <= 0 {
		c.PongTimeout = def.PongTimeout
	}
	if c.ForceCloseDelay <= 0 {
		c.ForceCloseDelay = def.ForceCloseDelay
	}
	if c.BufferStateTimeout <= 0 {
		c.BufferStateTimeout = def.BufferStateTimeout
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = def.RequestTimeout
	}
	if c.SecurityMode == "" {
		c.SecurityMode = def.SecurityMode
	}
	if c.Backoff == (BackoffConfig{}) {
		c.Backoff = def.Backoff
	}
	return c
}
