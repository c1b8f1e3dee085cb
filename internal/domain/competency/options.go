package competency

import (
	"time"

	"github.com/okian/panel/pkg/logger"
)

// Option applies a configuration option to the Registry.
type Option func(*Registry)

// WithWeightTable replaces the default level-to-weight mapping.
func WithWeightTable(t WeightTable) Option {
	return func(r *Registry) {
		if t.valid() {
			r.table = t
		}
	}
}

// WithLogger sets the registry logger.
func WithLogger(l logger.Logger) Option {
	return func(r *Registry) {
		if l != nil {
			r.log = l
		}
	}
}

// WithClock overrides the timestamp source, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) {
		if now != nil {
			r.now = now
		}
	}
}
