package worker

import (
	"github.com/okian/panel/pkg/logger"
)

type config struct {
	name   string
	logger logger.Logger
}

// Option configures a worker or every worker of a pool.
type Option func(*config)

// WithName sets the worker name for identification and logging.
// Pools suffix it with the worker index.
func WithName(name string) Option {
	return func(c *config) {
		if name != "" {
			c.name = name
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(l logger.Logger) Option {
	return func(c *config) {
		if l != nil {
			c.logger = l
		}
	}
}

func newConfig(opts []Option) config {
	c := config{name: "worker"}
	for _, opt := range opts {
		opt(&c)
	}
	if c.logger == nil {
		c.logger = logger.Get()
	}
	return c
}
