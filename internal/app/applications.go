package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/okian/panel/internal/adapters/repository"
	"github.com/okian/panel/internal/domain/consensus"
	"github.com/okian/panel/internal/domain/model"
	"github.com/okian/panel/internal/domain/scoring"
	"github.com/okian/panel/pkg/logger"
	"github.com/okian/panel/pkg/metrics"
	"golang.org/x/sync/errgroup"
)

// History is everything known about one application, recomputed on read.
type History struct {
	ApplicationID string
	Evaluations   []model.Evaluation
	Assignments   []model.Assignment
	Combined      scoring.Combined
	Analysis      consensus.Analysis
	Decision      *model.ConsensusDecision
	ComputedAt    time.Time
}

// Empty reports whether nothing was ever recorded for the application.
func (h History) Empty() bool {
	return len(h.Evaluations) == 0 && len(h.Assignments) == 0 && h.Decision == nil
}

// Summary condenses the history into the row kept by the ranking index.
func (h History) Summary() model.ApplicationSummary {
	s := model.ApplicationSummary{
		ApplicationID:        h.ApplicationID,
		CombinedScore:        h.Combined.Ptr(),
		Agreement:            h.Analysis.Agreement,
		StdDev:               h.Analysis.StdDev,
		State:                string(h.Analysis.State),
		Evaluations:          h.Analysis.Total,
		CompletedEvaluations: h.Analysis.Completed,
		Provisional:          h.Analysis.Provisional,
		UpdatedAt:            h.ComputedAt,
	}
	if h.Decision != nil {
		s.Decision = h.Decision.FinalDecision
	}
	return s
}

// EvaluationHistory loads an application's evaluations and recomputes the
// combined score and consensus analysis from them.
func (s *Service) EvaluationHistory(ctx context.Context, applicationID string) (History, error) {
	if strings.TrimSpace(applicationID) == "" {
		return History{}, fmt.Errorf("%w: application id is required", ErrInvalidInput)
	}
	h := History{ApplicationID: applicationID, ComputedAt: s.now().UTC()}

	var criteria []model.Criterion
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		h.Evaluations, err = s.store.ListEvaluations(gctx, applicationID)
		return err
	})
	g.Go(func() error {
		var err error
		h.Assignments, err = s.store.ListAssignments(gctx, applicationID)
		return err
	})
	g.Go(func() error {
		d, ok, err := s.store.GetDecision(gctx, applicationID)
		if ok {
			h.Decision = &d
		}
		return err
	})
	g.Go(func() error {
		var err error
		criteria, err = s.store.ListCriteria(gctx, repository.CriteriaFilter{})
		return err
	})
	if err := g.Wait(); err != nil {
		return History{}, fmt.Errorf("failed to load application %s: %w", applicationID, err)
	}

	s.rederive(ctx, h.Evaluations, criteria)

	assigned := make([]string, 0, len(h.Assignments))
	for _, a := range h.Assignments {
		assigned = append(assigned, a.ReviewerID)
	}
	h.Combined = s.aggregator.CombineAcrossReviewers(ctx, h.Evaluations)
	h.Analysis = s.resolver.Resolve(ctx, consensus.Input{
		ApplicationID:     applicationID,
		Evaluations:       h.Evaluations,
		AssignedReviewers: assigned,
		Decision:          h.Decision,
	})
	return h, nil
}

// rederive recomputes each stored overall score from current criteria and
// competencies. An evaluation whose scores no longer validate keeps its
// stored value.
func (s *Service) rederive(ctx context.Context, evals []model.Evaluation, criteria []model.Criterion) {
	for i := range evals {
		e := &evals[i]
		weight := s.registry.GetWeight(ctx, e.ReviewerID, model.CategoryOverall)
		o, err := s.aggregator.ComputeOverallScore(*e, criteria, weight)
		if err != nil {
			s.logger.Warn(ctx, "keeping stored overall score",
				logger.String("evaluation_id", e.ID), logger.Error(err))
			continue
		}
		e.OverallScore = o.Ptr()
	}
}

// Recompute rebuilds an application's summary. It is what the workers call.
func (s *Service) Recompute(ctx context.Context, applicationID string) (model.ApplicationSummary, error) {
	h, err := s.EvaluationHistory(ctx, applicationID)
	if err != nil {
		return model.ApplicationSummary{}, err
	}
	return h.Summary(), nil
}

func (s *Service) refresh(ctx context.Context, applicationID string) error {
	start := time.Now()
	sum, err := s.Recompute(ctx, applicationID)
	metrics.RecordRecomputeLatency(float64(time.Since(start).Microseconds()) / 1000)
	if err != nil {
		metrics.RecordRecomputeError()
		return err
	}
	s.publisher.Put(ctx, sum)
	return nil
}

// RecordDecision stores the human consensus decision for an application.
// A later decision replaces an earlier one. An application without
// evaluations or assignments is not found.
func (s *Service) RecordDecision(ctx context.Context, d model.ConsensusDecision) (model.ConsensusDecision, error) {
	d.ApplicationID = strings.TrimSpace(d.ApplicationID)
	d.DecidedBy = strings.TrimSpace(d.DecidedBy)
	if d.ApplicationID == "" || d.DecidedBy == "" {
		return model.ConsensusDecision{}, fmt.Errorf("%w: application id and decided_by are required", ErrInvalidInput)
	}
	rec, err := model.ParseRecommendation(string(d.FinalDecision))
	if err != nil {
		return model.ConsensusDecision{}, err
	}
	d.FinalDecision = rec
	if d.ConsensusScore != nil {
		if v := *d.ConsensusScore; v < 0 || v > s.aggregator.Scale() {
			return model.ConsensusDecision{}, fmt.Errorf("%w: consensus score %v outside [0, %v]", model.ErrInvalidRange, v, s.aggregator.Scale())
		}
	}
	known, err := s.known(ctx, d.ApplicationID)
	if err != nil {
		return model.ConsensusDecision{}, err
	}
	if !known {
		return model.ConsensusDecision{}, fmt.Errorf("application %s: %w", d.ApplicationID, model.ErrNotFound)
	}
	d.DecidedAt = s.now().UTC()

	if err := s.store.SaveDecision(ctx, d); err != nil {
		return model.ConsensusDecision{}, err
	}
	metrics.RecordDecision(string(d.FinalDecision))
	s.logger.Info(ctx, "consensus decision recorded",
		logger.String("application_id", d.ApplicationID),
		logger.String("decision", string(d.FinalDecision)),
		logger.String("decided_by", d.DecidedBy),
	)
	s.schedule(ctx, d.ApplicationID, "decision")
	return d, nil
}

// known reports whether an application has any evaluation or assignment.
func (s *Service) known(ctx context.Context, applicationID string) (bool, error) {
	evals, err := s.store.ListEvaluations(ctx, applicationID)
	if err != nil || len(evals) > 0 {
		return len(evals) > 0, err
	}
	assigned, err := s.store.ListAssignments(ctx, applicationID)
	return len(assigned) > 0, err
}

// TopApplications returns up to limit summaries in rank order.
func (s *Service) TopApplications(ctx context.Context, limit int) ([]model.ApplicationSummary, error) {
	return s.index.TopN(ctx, limit)
}

// ApplicationSummary returns the ranked summary of one application, building
// it on demand when the workers have not published it yet.
func (s *Service) ApplicationSummary(ctx context.Context, applicationID string) (model.ApplicationSummary, error) {
	sum, err := s.index.Get(ctx, applicationID)
	if err == nil {
		return sum, nil
	}
	if !errors.Is(err, model.ErrNotFound) {
		return model.ApplicationSummary{}, err
	}

	h, err := s.EvaluationHistory(ctx, applicationID)
	if err != nil {
		return model.ApplicationSummary{}, err
	}
	if h.Empty() {
		return model.ApplicationSummary{}, fmt.Errorf("application %s: %w", applicationID, model.ErrNotFound)
	}
	s.publisher.Put(ctx, h.Summary())
	return s.index.Get(ctx, applicationID)
}

// summaryPublisher feeds the ranking index. Consensus metrics are recorded
// only when an application's state or agreement changes.
type summaryPublisher struct {
	index  *repository.SummaryIndex
	logger logger.Logger
}

func (p *summaryPublisher) Put(ctx context.Context, sum model.ApplicationSummary) bool {
	prev, err := p.index.Get(ctx, sum.ApplicationID)
	known := err == nil
	if !p.index.Put(ctx, sum) {
		return false
	}

	resolved := sum.State == string(consensus.StateAutoResolved) || sum.State == string(consensus.StateNeedsConsensus)
	if resolved && (!known || prev.Agreement != sum.Agreement || prev.State != sum.State) {
		metrics.RecordAgreement(sum.Agreement)
	}
	if sum.State == string(consensus.StateNeedsConsensus) && (!known || prev.State != sum.State) {
		metrics.RecordEscalation()
		p.logger.Warn(ctx, "application needs consensus",
			logger.String("application_id", sum.ApplicationID),
			logger.Float64("agreement", sum.Agreement),
			logger.Float64("std_dev", sum.StdDev),
		)
	}
	return true
}
