package service

import (
	"time"

	"github.com/okian/panel/internal/domain/competency"
	"github.com/okian/panel/internal/domain/consensus"
	"github.com/okian/panel/pkg/logger"
)

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithWorkerCount sets the number of summary workers.
func WithWorkerCount(count int) Option {
	return func(s *Service) {
		if count > 0 {
			s.workerCount = count
		}
	}
}

// WithQueueSize sets the capacity of the recompute queue.
func WithQueueSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.queueSize = size
		}
	}
}

// WithDedupeSize sets how many submission IDs are remembered.
func WithDedupeSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.dedupeSize = size
		}
	}
}

// WithLogger sets a custom logger for the service and its components.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithWeightTable replaces the level to weight mapping.
func WithWeightTable(t competency.WeightTable) Option {
	return func(s *Service) {
		s.table = &t
	}
}

// WithScoreScale sets the reporting scale of overall scores.
func WithScoreScale(scale float64) Option {
	return func(s *Service) {
		if scale > 0 {
			s.scale = scale
		}
	}
}

// WithPolicy sets the consensus policy. Invalid policies are ignored.
func WithPolicy(p consensus.Policy) Option {
	return func(s *Service) {
		if p.Validate() == nil {
			s.policy = p
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}
