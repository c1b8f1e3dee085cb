package consensus

import "github.com/okian/panel/pkg/logger"

// Option applies a configuration option to the Resolver.
type Option func(*Resolver)

// WithPolicy replaces the default policy. Invalid policies are ignored.
func WithPolicy(p Policy) Option {
	return func(r *Resolver) {
		if p.Validate() == nil {
			r.policy = p
		}
	}
}

// WithLogger sets the resolver logger.
func WithLogger(l logger.Logger) Option {
	return func(r *Resolver) {
		if l != nil {
			r.log = l
		}
	}
}
