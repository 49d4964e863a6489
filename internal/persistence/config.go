package persistence

import "time"

const (
	// MaxBatchSize is the largest content list the service accepts in one request.
	MaxBatchSize = 150

	DefaultContentsPerPage = 20
	DefaultMaxPages        = 1000
)

// Config defines REST client settings.
type Config struct {
	ServiceURL string
	Timeout    time.Duration
	// ContentsPerPage is the page size for single-page reads.
	ContentsPerPage int
	// MaxPages bounds how many pages GetAllContent follows before giving up.
	MaxPages int
}

func DefaultConfig() Config {
	return Config{
		Timeout:         30 * time.Second,
		ContentsPerPage: DefaultContentsPerPage,
		MaxPages:        DefaultMaxPages,
	}
}

func (c Config) WithDefaults() Config {
	def := DefaultConfig()
	if c.Timeout <= 0 {
		c.Timeout = def.Timeout
	}
	if c.ContentsPerPage <= 0 {
		c.ContentsPerPage = def.ContentsPerPage
	}
	if c.MaxPages <= 0 {
		c.MaxPages = def.MaxPages
	}
	return c
}
