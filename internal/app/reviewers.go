package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/okian/panel/internal/adapters/repository"
	"github.com/okian/panel/internal/domain/competency"
	"github.com/okian/panel/internal/domain/model"
	"github.com/okian/panel/pkg/logger"
	"golang.org/x/sync/errgroup"
)

const overviewConcurrency = 8

// RegisterReviewer stores a new reviewer. An empty ID is generated.
func (s *Service) RegisterReviewer(ctx context.Context, r model.Reviewer) (model.Reviewer, error) {
	r.ID = strings.TrimSpace(r.ID)
	r.Name = strings.TrimSpace(r.Name)
	if r.Name == "" {
		return model.Reviewer{}, fmt.Errorf("%w: reviewer name is required", ErrInvalidInput)
	}
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	r.CreatedAt = s.now().UTC()
	if err := s.store.CreateReviewer(ctx, r); err != nil {
		return model.Reviewer{}, err
	}
	s.logger.Info(ctx, "reviewer registered", logger.String("reviewer_id", r.ID))
	return r, nil
}

// BulkSetReviewerCompetencies applies a batch of competency changes. Entries
// fail individually; the call only fails when the reviewer is unknown or the
// store rejects the batch.
func (s *Service) BulkSetReviewerCompetencies(ctx context.Context, reviewerID string, entries []competency.Entry) ([]competency.EntryResult, error) {
	results, err := s.registry.SetCompetencies(ctx, reviewerID, entries)
	if err != nil {
		return nil, err
	}
	for _, r := range results {
		if r.Err == nil {
			s.scheduleAll(ctx, "competency")
			break
		}
	}
	return results, nil
}

// RemoveCompetency deletes one competency; the reviewer becomes neutral in that category.
func (s *Service) RemoveCompetency(ctx context.Context, reviewerID string, category model.Category) error {
	if err := s.registry.RemoveCompetency(ctx, reviewerID, category); err != nil {
		return err
	}
	s.scheduleAll(ctx, "competency")
	return nil
}

// ReviewersOverview returns every reviewer with competencies and evaluation counts.
func (s *Service) ReviewersOverview(ctx context.Context) ([]model.ReviewerOverview, error) {
	reviewers, err := s.store.ListReviewers(ctx)
	if err != nil {
		return nil, err
	}
	counts, err := s.store.CountByReviewer(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]model.ReviewerOverview, len(reviewers))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(overviewConcurrency)
	for i, r := range reviewers {
		g.Go(func() error {
			comps, err := s.registry.Competencies(gctx, r.ID)
			if err != nil {
				return err
			}
			c := counts[r.ID]
			out[i] = model.ReviewerOverview{
				Reviewer:        r,
				Competencies:    comps,
				EvaluationCount: c.Total,
				CompletedCount:  c.Completed,
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("failed to load reviewer competencies: %w", err)
	}
	return out, nil
}

// UpsertCriterion validates and stores an evaluation criterion.
func (s *Service) UpsertCriterion(ctx context.Context, c model.Criterion) (model.Criterion, error) {
	c.ID = strings.TrimSpace(c.ID)
	c.Name = strings.TrimSpace(c.Name)
	switch {
	case c.ID == "":
		return model.Criterion{}, fmt.Errorf("%w: criterion id is required", ErrInvalidInput)
	case c.Name == "":
		return model.Criterion{}, fmt.Errorf("%w: criterion name is required", ErrInvalidInput)
	case c.MaxScore <= c.MinScore:
		return model.Criterion{}, fmt.Errorf("%w: max_score must exceed min_score", model.ErrInvalidRange)
	case c.Weight < 0:
		return model.Criterion{}, fmt.Errorf("%w: weight must not be negative", model.ErrInvalidRange)
	}
	cat, err := model.ParseCategory(string(c.Category))
	if err != nil {
		return model.Criterion{}, err
	}
	stage, err := model.ParseStage(string(c.Stage))
	if err != nil {
		return model.Criterion{}, err
	}
	c.Category, c.Stage = cat, stage
	if err := s.store.UpsertCriterion(ctx, c); err != nil {
		return model.Criterion{}, err
	}
	s.scheduleAll(ctx, "criteria")
	return c, nil
}

// Criteria lists criteria matching f.
func (s *Service) Criteria(ctx context.Context, f repository.CriteriaFilter) ([]model.Criterion, error) {
	return s.store.ListCriteria(ctx, f)
}

// AssignReviewer records that reviewerID is expected to evaluate applicationID.
func (s *Service) AssignReviewer(ctx context.Context, applicationID, reviewerID string) (model.Assignment, error) {
	applicationID = strings.TrimSpace(applicationID)
	if applicationID == "" {
		return model.Assignment{}, fmt.Errorf("%w: application id is required", ErrInvalidInput)
	}
	a := model.Assignment{ApplicationID: applicationID, ReviewerID: reviewerID, AssignedAt: s.now().UTC()}
	if err := s.store.AddAssignment(ctx, a); err != nil {
		return model.Assignment{}, err
	}
	s.schedule(ctx, applicationID, "assignment")
	return a, nil
}
