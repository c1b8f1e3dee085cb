package seed

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/okian/panel/internal/domain/consensus"
	"github.com/okian/panel/pkg/logger"
	"golang.org/x/sync/errgroup"
)

const (
	rankingLimit = 500
	pollInterval = 200 * time.Millisecond
)

type runner struct {
	cfg    Config
	client *Client
	log    logger.Logger
	plan   Plan

	mu       sync.Mutex
	accepted map[string][]Submission
	decided  map[string]bool

	assignments atomic.Int64
	submitted   atomic.Int64
	duplicates  atomic.Int64
	failed      atomic.Int64
}

// Run seeds the service at cfg.BaseURL and verifies what it reports.
func Run(ctx context.Context, cfg Config) (Report, error) {
	if err := cfg.Validate(); err != nil {
		return Report{}, fmt.Errorf("invalid seed config: %w", err)
	}
	runID := uuid.NewString()[:8]
	r := &runner{
		cfg:      cfg,
		client:   NewClient(cfg.BaseURL, cfg.Timeout),
		log:      cfg.log().With(logger.String("run_id", runID)),
		plan:     Generate(cfg, runID),
		accepted: make(map[string][]Submission, cfg.Applications),
		decided:  make(map[string]bool),
	}
	return r.run(ctx)
}

func (r *runner) run(ctx context.Context) (Report, error) {
	rep := Report{
		RunID:     r.plan.RunID,
		StartTime: time.Now(),
		States:    map[consensus.State]int{},
	}
	r.log.Info(ctx, "starting seed run",
		logger.String("baseURL", r.cfg.BaseURL),
		logger.Int("applications", r.cfg.Applications),
		logger.Int("reviewers", r.cfg.Reviewers),
		logger.Int("workers", r.cfg.Workers),
		logger.Int64("seed", int64(r.cfg.Seed)))

	if err := r.client.Health(ctx); err != nil {
		return rep, fmt.Errorf("service health check failed: %w", err)
	}

	steps := []struct {
		name string
		fn   func(context.Context) error
	}{
		{"reviewers", r.registerReviewers},
		{"criteria", r.upsertCriteria},
		{"assignments", r.assign},
		{"evaluations", r.submit},
		{"decisions", r.decide},
	}
	for _, s := range steps {
		start := time.Now()
		if err := s.fn(ctx); err != nil {
			return rep, fmt.Errorf("%s: %w", s.name, err)
		}
		r.log.Info(ctx, "step completed", logger.String("step", s.name), logger.Duration("took", time.Since(start)))
	}

	rep.Reviewers = len(r.plan.Reviewers)
	rep.Criteria = len(r.plan.Criteria)
	rep.Assignments = int(r.assignments.Load())
	rep.Submitted = int(r.submitted.Load())
	rep.Duplicates = int(r.duplicates.Load())
	rep.Failed = int(r.failed.Load())
	rep.Decisions = len(r.decided)

	if err := r.verify(ctx, &rep); err != nil {
		return rep, err
	}
	ordered, err := r.awaitRanking(ctx)
	if err != nil {
		return rep, fmt.Errorf("ranking: %w", err)
	}
	rep.RankingChecked = ordered
	rep.Duration = time.Since(rep.StartTime)
	r.report(ctx, rep)

	switch {
	case len(rep.Mismatches) > 0:
		return rep, fmt.Errorf("%w: %d of %d applications disagree", ErrVerification, len(rep.Mismatches), len(r.plan.Applications))
	case !ordered:
		return rep, fmt.Errorf("%w: ranking is not ordered by combined score", ErrVerification)
	}
	return rep, nil
}

func (r *runner) group(ctx context.Context) (*errgroup.Group, context.Context) {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.cfg.Workers)
	return g, gctx
}

func (r *runner) registerReviewers(ctx context.Context) error {
	g, gctx := r.group(ctx)
	for _, rev := range r.plan.Reviewers {
		g.Go(func() error {
			if err := r.client.RegisterReviewer(gctx, rev); err != nil {
				return err
			}
			return r.client.SetCompetencies(gctx, rev)
		})
	}
	return g.Wait()
}

func (r *runner) upsertCriteria(ctx context.Context) error {
	for _, c := range r.plan.Criteria {
		if err := r.client.UpsertCriterion(ctx, c); err != nil {
			return err
		}
	}
	return nil
}

func (r *runner) assign(ctx context.Context) error {
	g, gctx := r.group(ctx)
	for _, app := range r.plan.Applications {
		if !app.Assigned {
			continue
		}
		for _, id := range app.Panel {
			g.Go(func() error {
				if err := r.client.Assign(gctx, app.ID, id); err != nil {
					return err
				}
				r.assignments.Add(1)
				return nil
			})
		}
	}
	return g.Wait()
}

// submit posts every planned evaluation. Rejected submissions are counted and
// left out of verification; only transport failures abort the step.
func (r *runner) submit(ctx context.Context) error {
	g, gctx := r.group(ctx)
	n := 0
	for _, app := range r.plan.Applications {
		for _, s := range app.Submissions {
			resend := r.cfg.ResendEvery > 0 && n%r.cfg.ResendEvery == 0
			n++
			g.Go(func() error {
				if err := r.submitOne(gctx, s, resend); err != nil && !errors.Is(err, ErrStatus) {
					return err
				}
				return nil
			})
		}
	}
	return g.Wait()
}

func (r *runner) submitOne(ctx context.Context, s Submission, resend bool) error {
	r.submitted.Add(1)
	if _, err := r.client.Submit(ctx, s); err != nil {
		r.failed.Add(1)
		r.log.Warn(ctx, "submission rejected", logger.String("submission_id", s.SubmissionID), logger.Error(err))
		return err
	}
	r.mu.Lock()
	r.accepted[s.Evaluation.ApplicationID] = append(r.accepted[s.Evaluation.ApplicationID], s)
	r.mu.Unlock()

	if !resend {
		return nil
	}
	r.submitted.Add(1)
	dup, err := r.client.Submit(ctx, s)
	if err != nil {
		r.failed.Add(1)
		return err
	}
	if !dup {
		r.failed.Add(1)
		r.log.Warn(ctx, "resent submission was stored twice", logger.String("submission_id", s.SubmissionID))
		return nil
	}
	r.duplicates.Add(1)
	return nil
}

func (r *runner) decide(ctx context.Context) error {
	g, gctx := r.group(ctx)
	for _, app := range r.plan.Applications {
		if app.Decision == nil {
			continue
		}
		g.Go(func() error {
			if err := r.client.Decide(gctx, *app.Decision); err != nil {
				return err
			}
			r.mu.Lock()
			r.decided[app.ID] = true
			r.mu.Unlock()
			return nil
		})
	}
	return g.Wait()
}

// verify fetches every application's history and compares it with the local
// recomputation.
func (r *runner) verify(ctx context.Context, rep *Report) error {
	weights, err := r.client.Weights(ctx)
	if err != nil {
		return fmt.Errorf("failed to load reviewer weights: %w", err)
	}
	criteria, err := r.client.Criteria(ctx)
	if err != nil {
		return fmt.Errorf("failed to load criteria: %w", err)
	}
	v := NewVerifier(weights, criteria, r.cfg.Policy, r.log.Named("verify"))

	var mu sync.Mutex
	g, gctx := r.group(ctx)
	for _, app := range r.plan.Applications {
		g.Go(func() error {
			want, err := v.Expect(gctx, app, r.accepted[app.ID], r.decided[app.ID])
			if err != nil {
				return fmt.Errorf("application %s: %w", app.ID, err)
			}
			h, err := r.client.History(gctx, app.ID)
			if err != nil {
				return err
			}
			got := observed(h)

			mu.Lock()
			defer mu.Unlock()
			rep.States[consensus.State(got.State)]++
			if d := diff(want, got); d != "" {
				rep.Mismatches = append(rep.Mismatches, Mismatch{ApplicationID: app.ID, Diff: d})
				r.log.Warn(gctx, "application disagrees with local recomputation",
					logger.String("application_id", app.ID), logger.String("diff", d))
				return nil
			}
			rep.Verified++
			if r.cfg.Verbose {
				r.log.Info(gctx, "application verified",
					logger.String("application_id", app.ID),
					logger.String("state", got.State),
					logger.Float64("agreement", got.Agreement))
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	sort.Slice(rep.Mismatches, func(i, j int) bool {
		return rep.Mismatches[i].ApplicationID < rep.Mismatches[j].ApplicationID
	})
	return nil
}

// awaitRanking polls the ranked list until every seeded application is
// summarised or the settle period ends, then checks its ordering.
func (r *runner) awaitRanking(ctx context.Context) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.Settle)
	defer cancel()
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	want := make(map[string]struct{}, len(r.plan.Applications))
	for _, app := range r.plan.Applications {
		want[app.ID] = struct{}{}
	}
	var list []SummaryView
	for {
		latest, err := r.client.Top(ctx, rankingLimit)
		switch {
		case errors.Is(err, context.DeadlineExceeded):
			return checkRanking(list), nil
		case err != nil:
			return false, err
		}
		list = latest
		seen := 0
		for _, s := range list {
			if _, ok := want[s.ApplicationID]; ok {
				seen++
			}
		}
		if seen == len(want) || len(list) >= rankingLimit {
			return checkRanking(list), nil
		}
		select {
		case <-ctx.Done():
			r.log.Warn(ctx, "ranking did not settle", logger.Int("seen", seen), logger.Int("expected", len(want)))
			return checkRanking(list), nil
		case <-ticker.C:
		}
	}
}

func (r *runner) report(ctx context.Context, rep Report) {
	fields := []logger.Field{
		logger.Int("reviewers", rep.Reviewers),
		logger.Int("criteria", rep.Criteria),
		logger.Int("assignments", rep.Assignments),
		logger.Int("submitted", rep.Submitted),
		logger.Int("duplicates", rep.Duplicates),
		logger.Int("failed", rep.Failed),
		logger.Int("decisions", rep.Decisions),
		logger.Int("verified", rep.Verified),
		logger.Int("mismatches", len(rep.Mismatches)),
		logger.Bool("ranking_ordered", rep.RankingChecked),
		logger.Duration("duration", rep.Duration),
	}
	for state, n := range rep.States {
		fields = append(fields, logger.Int("state_"+string(state), n))
	}
	r.log.Info(ctx, "seed run finished", fields...)
}
