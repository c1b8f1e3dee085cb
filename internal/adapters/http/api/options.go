package api

import "github.com/okian/panel/pkg/logger"

const (
	defaultLimit        = 50
	defaultMaxLimit     = 500
	defaultMaxBodyBytes = 1 << 20
)

type config struct {
	defaultLimit int
	maxLimit     int
	maxBodyBytes int64
	logger       logger.Logger
}

// Option configures the API server.
type Option func(*config)

// WithMaxLimit caps the limit accepted by GET /applications.
func WithMaxLimit(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.maxLimit = n
		}
	}
}

// WithMaxBodyBytes caps request body sizes.
func WithMaxBodyBytes(n int64) Option {
	return func(c *config) {
		if n > 0 {
			c.maxBodyBytes = n
		}
	}
}

// WithLogger sets the logger used for server-side failures.
func WithLogger(l logger.Logger) Option {
	return func(c *config) {
		if l != nil {
			c.logger = l
		}
	}
}

func newConfig(opts ...Option) *config {
	c := &config{
		defaultLimit: defaultLimit,
		maxLimit:     defaultMaxLimit,
		maxBodyBytes: defaultMaxBodyBytes,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = logger.Get().Named("api")
	}
	if c.defaultLimit > c.maxLimit {
		c.defaultLimit = c.maxLimit
	}
	return c
}
