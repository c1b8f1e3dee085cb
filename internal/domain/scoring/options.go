package scoring

import "github.com/okian/panel/pkg/logger"

// Option applies a configuration option to the Aggregator.
type Option func(*Aggregator)

// WithScale sets the reporting scale of overall scores (default 10).
func WithScale(scale float64) Option {
	return func(a *Aggregator) {
		if scale > 0 {
			a.scale = scale
		}
	}
}

// WithLogger sets the aggregator logger.
func WithLogger(l logger.Logger) Option {
	return func(a *Aggregator) {
		if l != nil {
			a.log = l
		}
	}
}
