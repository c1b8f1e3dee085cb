// Package service wires the competency registry, score aggregator and
// consensus resolver to persistence and exposes the operations the HTTP API
// needs.
package service

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/okian/panel/internal/adapters/mq/queue"
	"github.com/okian/panel/internal/adapters/mq/worker"
	"github.com/okian/panel/internal/adapters/repository"
	"github.com/okian/panel/internal/domain/competency"
	"github.com/okian/panel/internal/domain/consensus"
	"github.com/okian/panel/internal/domain/dedupe"
	"github.com/okian/panel/internal/domain/scoring"
	"github.com/okian/panel/pkg/logger"
	"github.com/okian/panel/pkg/metrics"
)

const (
	defaultQueueSize  = 10_000
	defaultDedupeSize = 100_000
)

// Service implements the API dependencies for the review panel.
type Service struct {
	mu sync.RWMutex

	store      repository.Store
	registry   *competency.Registry
	aggregator *scoring.Aggregator
	resolver   *consensus.Resolver
	deduper    dedupe.Deduper
	index      *repository.SummaryIndex
	publisher  *summaryPublisher

	queue *queue.InMemoryQueue
	pool  *worker.Pool

	workerCount int
	queueSize   int
	dedupeSize  int
	scale       float64
	table       *competency.WeightTable
	policy      consensus.Policy
	now         func() time.Time

	started   bool
	startedAt time.Time

	logger logger.Logger
}

// New constructs a Service on top of store. Synchronous operations work
// right away; Start launches the summary workers.
func New(store repository.Store, opts ...Option) *Service {
	s := &Service{
		store:       store,
		workerCount: runtime.NumCPU(),
		queueSize:   defaultQueueSize,
		dedupeSize:  defaultDedupeSize,
		policy:      consensus.DefaultPolicy(),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logger.Get().Named("service")
	}

	regOpts := []competency.Option{
		competency.WithLogger(s.logger.Named("competency")),
		competency.WithClock(s.now),
	}
	if s.table != nil {
		regOpts = append(regOpts, competency.WithWeightTable(*s.table))
	}
	s.registry = competency.New(store, regOpts...)

	aggOpts := []scoring.Option{scoring.WithLogger(s.logger.Named("scoring"))}
	if s.scale > 0 {
		aggOpts = append(aggOpts, scoring.WithScale(s.scale))
	}
	s.aggregator = scoring.New(s.registry, aggOpts...)
	s.resolver = consensus.New(s.registry,
		consensus.WithPolicy(s.policy),
		consensus.WithLogger(s.logger.Named("consensus")),
	)
	s.deduper = dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(s.dedupeSize))
	s.index = repository.NewSummaryIndex()
	s.publisher = &summaryPublisher{index: s.index, logger: s.logger}
	return s
}

// Start launches the worker pool and schedules a rebuild of every known application.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	s.logger.Info(ctx, "starting panel service...", logger.String("store", s.store.Backend()))

	s.queue = queue.NewInMemoryQueue(queue.WithCapacity(s.queueSize))
	s.pool = worker.NewPool(s.workerCount, s.queue, s, s.publisher,
		worker.WithName("summary"),
		worker.WithLogger(s.logger),
	)
	s.pool.Start(ctx)
	s.started = true
	s.startedAt = s.now()

	ids, err := s.store.ApplicationIDs(ctx)
	if err != nil {
		return fmt.Errorf("failed to list applications: %w", err)
	}
	for _, id := range ids {
		if err := s.queue.Enqueue(ctx, queue.Job{ApplicationID: id, Reason: "startup"}); err != nil {
			s.logger.Warn(ctx, "startup rebuild skipped", logger.String("application_id", id), logger.Error(err))
		}
	}

	s.logger.Info(ctx, "panel service started",
		logger.Int("workers", s.pool.Size()),
		logger.Int("queueSize", s.queueSize),
		logger.Int("dedupeSize", s.dedupeSize),
		logger.Int("applications", len(ids)),
	)
	return nil
}

// Stop drains the recompute queue and stops the workers.
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return nil
	}
	s.logger.Info(ctx, "stopping panel service...")

	err := s.pool.Shutdown(ctx)
	s.started = false
	s.logger.Info(ctx, "panel service stopped", logger.Int64("processed", s.pool.Processed()))
	return err
}

// Registry exposes the competency registry.
func (s *Service) Registry() *competency.Registry { return s.registry }

// Policy returns the consensus policy in force.
func (s *Service) Policy() consensus.Policy { return s.resolver.Policy() }

// schedule refreshes an application's summary. Without running workers, or
// when the queue refuses the job, the refresh happens inline.
func (s *Service) schedule(ctx context.Context, applicationID, reason string) {
	s.mu.RLock()
	q := s.queue
	started := s.started
	s.mu.RUnlock()

	if started {
		err := q.Enqueue(ctx, queue.Job{ApplicationID: applicationID, Reason: reason})
		if err == nil {
			return
		}
		s.logger.Warn(ctx, "recompute enqueue failed, refreshing inline",
			logger.String("application_id", applicationID), logger.Error(err))
	}
	if err := s.refresh(ctx, applicationID); err != nil {
		s.logger.Error(ctx, "inline recompute failed",
			logger.String("application_id", applicationID), logger.Error(err))
	}
}

// scheduleAll refreshes every known application, used after changes that can
// move any score such as competency or criteria edits.
func (s *Service) scheduleAll(ctx context.Context, reason string) {
	ids, err := s.store.ApplicationIDs(ctx)
	if err != nil {
		s.logger.Error(ctx, "failed to list applications for recompute", logger.Error(err))
		return
	}
	for _, id := range ids {
		s.schedule(ctx, id, reason)
	}
}

// RequestRecompute queues a summary rebuild. It fails with queue.ErrFull under
// backpressure and ErrNotStarted before Start.
func (s *Service) RequestRecompute(ctx context.Context, applicationID string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.started {
		return ErrNotStarted
	}
	if err := s.queue.Enqueue(ctx, queue.Job{ApplicationID: applicationID, Reason: "manual"}); err != nil {
		return fmt.Errorf("failed to queue recompute for %s: %w", applicationID, err)
	}
	return nil
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx := context.Background()
	policy := s.resolver.Policy()
	stats := map[string]interface{}{
		"started":             s.started,
		"store":               s.store.Backend(),
		"workerCount":         s.workerCount,
		"queueSize":           s.queueSize,
		"dedupeSize":          s.dedupeSize,
		"dedupeEntries":       s.deduper.Size(),
		"applicationsTracked": s.index.Count(ctx),
		"scoreScale":          s.aggregator.Scale(),
		"agreementThreshold":  policy.AgreementThreshold,
		"maxStdDev":           policy.MaxStdDev,
		"minEvaluations":      policy.MinEvaluations,
	}
	if s.started {
		stats["queueLength"] = s.queue.Len(ctx)
		stats["processed"] = s.pool.Processed()
		stats["uptimeSeconds"] = int64(s.now().Sub(s.startedAt).Seconds())
		metrics.UpdateWorkerCount(s.pool.Size())
	}
	return stats
}
