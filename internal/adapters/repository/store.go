// Package repository defines the persistence contracts of panel and an
// in-memory implementation. Postgres lives in the postgres subpackage.
package repository

import (
	"context"

	"github.com/okian/panel/internal/domain/model"
)

// ReviewerStore persists reviewers and their competencies.
type ReviewerStore interface {
	// CreateReviewer returns ErrConflict when the ID is taken.
	CreateReviewer(ctx context.Context, r model.Reviewer) error
	GetReviewer(ctx context.Context, id string) (model.Reviewer, error)
	ListReviewers(ctx context.Context) ([]model.Reviewer, error)
	ReviewerExists(ctx context.Context, id string) (bool, error)

	// ReplaceCompetencies upserts records keyed by (reviewer, category).
	ReplaceCompetencies(ctx context.Context, reviewerID string, records []model.Competency) error
	GetCompetency(ctx context.Context, reviewerID string, category model.Category) (model.Competency, bool, error)
	DeleteCompetency(ctx context.Context, reviewerID string, category model.Category) error
	ListCompetencies(ctx context.Context, reviewerID string) ([]model.Competency, error)
}

// CriteriaFilter narrows ListCriteria. Zero values match everything.
type CriteriaFilter struct {
	Stage      model.Stage
	ActiveOnly bool
}

// CriteriaStore persists evaluation criteria.
type CriteriaStore interface {
	UpsertCriterion(ctx context.Context, c model.Criterion) error
	// ListCriteria returns criteria ordered by Order, then ID.
	ListCriteria(ctx context.Context, f CriteriaFilter) ([]model.Criterion, error)
}

// ReviewerCounts is the number of evaluations a reviewer started and completed.
type ReviewerCounts struct {
	Total     int
	Completed int
}

// EvaluationStore persists evaluations. SaveEvaluation replaces the row and
// its scores and comments atomically.
type EvaluationStore interface {
	SaveEvaluation(ctx context.Context, e model.Evaluation) error
	GetEvaluation(ctx context.Context, id string) (model.Evaluation, error)
	// ListEvaluations returns the application's evaluations ordered by ID.
	ListEvaluations(ctx context.Context, applicationID string) ([]model.Evaluation, error)
	CountByReviewer(ctx context.Context) (map[string]ReviewerCounts, error)
	// ApplicationIDs lists every application with an evaluation, assignment or decision.
	ApplicationIDs(ctx context.Context) ([]string, error)
}

// AssignmentStore persists reviewer assignments.
type AssignmentStore interface {
	// AddAssignment is idempotent.
	AddAssignment(ctx context.Context, a model.Assignment) error
	ListAssignments(ctx context.Context, applicationID string) ([]model.Assignment, error)
}

// DecisionStore persists consensus decisions, one per application.
type DecisionStore interface {
	SaveDecision(ctx context.Context, d model.ConsensusDecision) error
	GetDecision(ctx context.Context, applicationID string) (model.ConsensusDecision, bool, error)
}

// Store is everything the application service needs from persistence.
type Store interface {
	ReviewerStore
	CriteriaStore
	EvaluationStore
	AssignmentStore
	DecisionStore

	// Backend names the implementation for logs and metrics.
	Backend() string
	Close() error
}
