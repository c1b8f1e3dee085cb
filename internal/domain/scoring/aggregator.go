// Package scoring turns criteria scores into evaluation scores and combines
// evaluations from several reviewers into one application-level score.
package scoring

import (
	"context"
	"fmt"

	"github.com/okian/panel/internal/domain/model"
	"github.com/okian/panel/pkg/logger"
)

const defaultScale = 10

// WeightSource resolves a reviewer's influence for a category.
type WeightSource interface {
	GetWeight(ctx context.Context, reviewerID string, category model.Category) float64
}

// Status of a combined score.
type Status string

const (
	StatusOK               Status = "ok"
	StatusInsufficientData Status = "insufficient_data"
)

// Overall is the result of scoring a single evaluation.
// Score is meaningful only when Defined is true.
type Overall struct {
	Score   float64
	Defined bool
	// ReviewerWeight is carried for cross-reviewer combination and is not applied to Score.
	ReviewerWeight float64
	Scored         int
}

// Ptr returns the score as a pointer, nil when undefined.
func (o Overall) Ptr() *float64 {
	if !o.Defined {
		return nil
	}
	s := o.Score
	return &s
}

// Contribution is one evaluation's share of a combined score.
type Contribution struct {
	EvaluationID string
	ReviewerID   string
	Score        float64
	Weight       float64
}

// Combined is the application-level aggregate.
type Combined struct {
	Score         float64
	Status        Status
	TotalWeight   float64
	EvaluationIDs []string
	Contributions []Contribution
}

// Ptr returns the combined score, nil while data is insufficient.
func (c Combined) Ptr() *float64 {
	if c.Status != StatusOK {
		return nil
	}
	s := c.Score
	return &s
}

// Aggregator computes evaluation and application scores.
type Aggregator struct {
	weights WeightSource
	scale   float64
	log     logger.Logger
}

// New creates an Aggregator that reads reviewer weights from weights.
func New(weights WeightSource, opts ...Option) *Aggregator {
	a := &Aggregator{weights: weights, scale: defaultScale}
	for _, opt := range opts {
		opt(a)
	}
	if a.log == nil {
		a.log = logger.Get().Named("scoring")
	}
	return a
}

// Scale returns the reporting scale.
func (a *Aggregator) Scale() float64 { return a.scale }

// ComputeOverallScore returns Σ(normalized·weight)/Σweight on the reporting scale.
// An evaluation without scores, or whose criteria carry no weight, is undefined.
func (a *Aggregator) ComputeOverallScore(e model.Evaluation, criteria []model.Criterion, reviewerWeight float64) (Overall, error) {
	out := Overall{ReviewerWeight: reviewerWeight}
	byID := indexCriteria(criteria)
	seen := make(map[string]struct{}, len(e.Scores))

	var weighted, total float64
	for _, s := range e.Scores {
		if _, dup := seen[s.CriterionID]; dup {
			return Overall{}, fmt.Errorf("%w: %s", ErrDuplicateScore, s.CriterionID)
		}
		seen[s.CriterionID] = struct{}{}

		c, ok := byID[s.CriterionID]
		if !ok {
			return Overall{}, fmt.Errorf("criterion %s: %w", s.CriterionID, model.ErrNotFound)
		}
		if c.Weight < 0 {
			return Overall{}, fmt.Errorf("criterion %s: %w: negative weight %v", c.ID, model.ErrInvalidRange, c.Weight)
		}
		n, err := Normalize(s.Score, c.MinScore, c.MaxScore)
		if err != nil {
			return Overall{}, fmt.Errorf("criterion %s: %w", c.ID, err)
		}
		weighted += n * c.Weight
		total += c.Weight
		out.Scored++
	}
	if out.Scored == 0 || total == 0 {
		return out, nil
	}
	out.Score = weighted / total * a.scale
	out.Defined = true
	return out, nil
}

// CombineAcrossReviewers returns the weighted mean of each reviewer's current
// completed, scored evaluation, weighted by the reviewer's overall-category
// weight. The sum runs in evaluation-ID order so any permutation of evals
// gives the same result.
func (a *Aggregator) CombineAcrossReviewers(ctx context.Context, evals []model.Evaluation) Combined {
	usable := model.CurrentPerReviewer(evals)
	if len(usable) == 0 {
		return Combined{Status: StatusInsufficientData}
	}

	out := Combined{
		Status:        StatusOK,
		EvaluationIDs: make([]string, 0, len(usable)),
		Contributions: make([]Contribution, 0, len(usable)),
	}
	var weighted float64
	for _, e := range usable {
		w := a.weights.GetWeight(ctx, e.ReviewerID, model.CategoryOverall)
		weighted += *e.OverallScore * w
		out.TotalWeight += w
		out.EvaluationIDs = append(out.EvaluationIDs, e.ID)
		out.Contributions = append(out.Contributions, Contribution{
			EvaluationID: e.ID,
			ReviewerID:   e.ReviewerID,
			Score:        *e.OverallScore,
			Weight:       w,
		})
	}
	if out.TotalWeight <= 0 {
		a.log.Warn(ctx, "combined weight is not positive", logger.Float64("total_weight", out.TotalWeight))
		return Combined{Status: StatusInsufficientData}
	}
	out.Score = weighted / out.TotalWeight
	return out
}
