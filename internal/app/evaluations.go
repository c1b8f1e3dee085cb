package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/okian/panel/internal/adapters/repository"
	"github.com/okian/panel/internal/domain/aireview"
	"github.com/okian/panel/internal/domain/model"
	"github.com/okian/panel/internal/domain/scoring"
	"github.com/okian/panel/pkg/logger"
	"github.com/okian/panel/pkg/metrics"
)

// Submission is a reviewer's evaluation as received from a client.
// SubmissionID makes retries idempotent; EvaluationID updates an existing
// evaluation instead of creating one.
type Submission struct {
	SubmissionID     string
	EvaluationID     string
	ApplicationID    string
	ReviewerID       string
	Stage            model.Stage
	Source           model.Source
	Scores           []model.CriteriaScore
	Recommendation   model.Recommendation
	Confidence       int
	TimeSpentMinutes int
	Comments         []model.Comment
	Complete         bool
}

// Receipt reports what a submission produced.
type Receipt struct {
	Evaluation model.Evaluation
	Overall    scoring.Overall
	Duplicate  bool
}

// AISubmission carries raw model output for one application.
type AISubmission struct {
	SubmissionID  string
	ApplicationID string
	ReviewerID    string
	Stage         model.Stage
	Raw           string
}

// SeenAndRecord reports whether a submission ID was already recorded, recording it if not.
func (s *Service) SeenAndRecord(ctx context.Context, id string) bool {
	seen := s.deduper.SeenAndRecord(ctx, id)
	if seen {
		metrics.RecordEvaluationDuplicate()
	}
	return seen
}

// Unrecord forgets a submission ID so the client can retry it.
func (s *Service) Unrecord(ctx context.Context, id string) {
	s.deduper.Unrecord(ctx, id)
}

// SubmitEvaluation validates sub, derives its overall score and stores it.
// A repeated SubmissionID returns the evaluation stored the first time.
func (s *Service) SubmitEvaluation(ctx context.Context, sub Submission) (Receipt, error) {
	if err := s.checkSubmission(sub); err != nil {
		return Receipt{}, err
	}

	if sub.SubmissionID != "" {
		if s.SeenAndRecord(ctx, sub.SubmissionID) {
			return s.duplicate(ctx, sub.SubmissionID)
		}
	}

	rec, err := s.persist(ctx, sub)
	if err != nil {
		if sub.SubmissionID != "" {
			s.Unrecord(ctx, sub.SubmissionID)
		}
		return Receipt{}, err
	}
	if sub.SubmissionID != "" {
		s.deduper.Bind(ctx, sub.SubmissionID, rec.Evaluation.ID)
	}

	metrics.RecordEvaluationSubmitted(string(rec.Evaluation.Source), string(rec.Evaluation.Stage))
	if rec.Overall.Defined {
		metrics.RecordOverallScore(rec.Overall.Score)
	} else {
		metrics.RecordUndefinedScore()
	}
	s.logger.Info(ctx, "evaluation stored",
		logger.String("evaluation_id", rec.Evaluation.ID),
		logger.String("application_id", rec.Evaluation.ApplicationID),
		logger.String("reviewer_id", rec.Evaluation.ReviewerID),
		logger.Bool("completed", rec.Evaluation.Completed()),
	)

	s.schedule(ctx, rec.Evaluation.ApplicationID, "evaluation")
	return rec, nil
}

func (s *Service) checkSubmission(sub Submission) error {
	var errs []error
	if strings.TrimSpace(sub.ApplicationID) == "" {
		errs = append(errs, fmt.Errorf("%w: application id is required", ErrInvalidInput))
	}
	if strings.TrimSpace(sub.ReviewerID) == "" {
		errs = append(errs, fmt.Errorf("%w: reviewer id is required", ErrInvalidInput))
	}
	if _, err := model.ParseStage(string(sub.Stage)); err != nil {
		errs = append(errs, err)
	}
	if sub.Recommendation != "" {
		if _, err := model.ParseRecommendation(string(sub.Recommendation)); err != nil {
			errs = append(errs, err)
		}
	}
	if sub.Complete && sub.Recommendation == "" {
		errs = append(errs, fmt.Errorf("%w: a completed evaluation needs a recommendation", ErrInvalidInput))
	}
	if sub.Confidence != 0 && (sub.Confidence < 1 || sub.Confidence > 5) {
		errs = append(errs, fmt.Errorf("%w: confidence must be between 1 and 5", model.ErrInvalidRange))
	}
	return errors.Join(errs...)
}

func (s *Service) duplicate(ctx context.Context, submissionID string) (Receipt, error) {
	id, ok := s.deduper.Lookup(ctx, submissionID)
	if !ok {
		return Receipt{}, fmt.Errorf("submission %s: %w: %w", submissionID, ErrInFlight, repository.ErrConflict)
	}
	e, err := s.store.GetEvaluation(ctx, id)
	if err != nil {
		return Receipt{}, err
	}
	return Receipt{Evaluation: e, Overall: overallOf(e), Duplicate: true}, nil
}

// persist builds the evaluation row from sub and saves it.
func (s *Service) persist(ctx context.Context, sub Submission) (Receipt, error) {
	exists, err := s.store.ReviewerExists(ctx, sub.ReviewerID)
	if err != nil {
		return Receipt{}, err
	}
	if !exists {
		return Receipt{}, fmt.Errorf("reviewer %s: %w", sub.ReviewerID, model.ErrNotFound)
	}

	criteria, err := s.store.ListCriteria(ctx, repository.CriteriaFilter{})
	if err != nil {
		return Receipt{}, err
	}

	now := s.now().UTC()
	e := model.Evaluation{
		ID:               sub.EvaluationID,
		ApplicationID:    sub.ApplicationID,
		ReviewerID:       sub.ReviewerID,
		Stage:            sub.Stage,
		Source:           sub.Source,
		Recommendation:   sub.Recommendation,
		Confidence:       sub.Confidence,
		TimeSpentMinutes: sub.TimeSpentMinutes,
		Scores:           sub.Scores,
		Comments:         sub.Comments,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if e.Source == "" {
		e.Source = model.SourceHuman
	}
	for i := range e.Comments {
		if e.Comments[i].CreatedAt.IsZero() {
			e.Comments[i].CreatedAt = now
		}
	}

	if e.ID == "" {
		e.ID = uuid.NewString()
	} else {
		prev, err := s.store.GetEvaluation(ctx, e.ID)
		switch {
		case errors.Is(err, model.ErrNotFound):
		case err != nil:
			return Receipt{}, err
		default:
			if prev.ReviewerID != e.ReviewerID {
				return Receipt{}, fmt.Errorf("evaluation %s belongs to another reviewer: %w", e.ID, repository.ErrConflict)
			}
			e.CreatedAt = prev.CreatedAt
			e.CompletedAt = prev.CompletedAt
		}
	}
	if sub.Complete && !e.Completed() {
		e.CompletedAt = &now
	}

	if err := scoring.ValidateScores(e, criteria); err != nil {
		return Receipt{}, err
	}
	weight := s.registry.GetWeight(ctx, e.ReviewerID, model.CategoryOverall)
	overall, err := s.aggregator.ComputeOverallScore(e, criteria, weight)
	if err != nil {
		return Receipt{}, err
	}
	e.OverallScore = overall.Ptr()

	if err := s.store.SaveEvaluation(ctx, e); err != nil {
		return Receipt{}, err
	}
	return Receipt{Evaluation: e, Overall: overall}, nil
}

// SubmitAIEvaluation validates raw model output and stores it as a completed
// AI evaluation.
func (s *Service) SubmitAIEvaluation(ctx context.Context, sub AISubmission) (Receipt, error) {
	criteria, err := s.store.ListCriteria(ctx, repository.CriteriaFilter{})
	if err != nil {
		return Receipt{}, err
	}
	draft, err := aireview.ParseResponse(sub.Raw, criteria)
	if err != nil {
		s.logger.Warn(ctx, "rejected AI evaluation",
			logger.String("application_id", sub.ApplicationID), logger.Error(err))
		return Receipt{}, err
	}

	e := draft.Evaluation(sub.ApplicationID, sub.ReviewerID, sub.Stage, s.now().UTC())
	return s.SubmitEvaluation(ctx, Submission{
		SubmissionID:   sub.SubmissionID,
		ApplicationID:  e.ApplicationID,
		ReviewerID:     e.ReviewerID,
		Stage:          e.Stage,
		Source:         e.Source,
		Scores:         e.Scores,
		Recommendation: e.Recommendation,
		Confidence:     e.Confidence,
		Comments:       e.Comments,
		Complete:       true,
	})
}

// AIPrompt renders the evaluation prompt for an application at stage using
// the active criteria of that stage.
func (s *Service) AIPrompt(ctx context.Context, brief aireview.ApplicationBrief, stage model.Stage) (aireview.Prompt, error) {
	criteria, err := s.store.ListCriteria(ctx, repository.CriteriaFilter{Stage: stage, ActiveOnly: true})
	if err != nil {
		return aireview.Prompt{}, err
	}
	return aireview.BuildPrompt(brief, criteria)
}

func overallOf(e model.Evaluation) scoring.Overall {
	if e.OverallScore == nil {
		return scoring.Overall{}
	}
	return scoring.Overall{Score: *e.OverallScore, Defined: true, Scored: len(e.Scores)}
}
