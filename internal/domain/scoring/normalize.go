package scoring

import (
	"errors"
	"fmt"
	"math"

	"github.com/okian/panel/internal/domain/model"
)

// Normalize maps score from [lo,hi] onto [0,1].
func Normalize(score, lo, hi float64) (float64, error) {
	if math.IsNaN(score) || math.IsNaN(lo) || math.IsNaN(hi) || hi <= lo {
		return 0, fmt.Errorf("%w: bounds [%v,%v]", model.ErrInvalidRange, lo, hi)
	}
	if score < lo || score > hi {
		return 0, fmt.Errorf("%w: score %v outside [%v,%v]", model.ErrInvalidRange, score, lo, hi)
	}
	return (score - lo) / (hi - lo), nil
}

// ValidateScores checks every criteria score of e against its criterion and
// returns all problems joined. Criteria are matched by ID.
func ValidateScores(e model.Evaluation, criteria []model.Criterion) error {
	byID := indexCriteria(criteria)
	seen := make(map[string]struct{}, len(e.Scores))
	var errs []error
	for _, s := range e.Scores {
		if _, dup := seen[s.CriterionID]; dup {
			errs = append(errs, fmt.Errorf("%w: %s", ErrDuplicateScore, s.CriterionID))
			continue
		}
		seen[s.CriterionID] = struct{}{}

		c, ok := byID[s.CriterionID]
		if !ok {
			errs = append(errs, fmt.Errorf("criterion %s: %w", s.CriterionID, model.ErrNotFound))
			continue
		}
		if _, err := Normalize(s.Score, c.MinScore, c.MaxScore); err != nil {
			errs = append(errs, fmt.Errorf("criterion %s: %w", s.CriterionID, err))
		}
	}
	return errors.Join(errs...)
}

func indexCriteria(criteria []model.Criterion) map[string]model.Criterion {
	byID := make(map[string]model.Criterion, len(criteria))
	for _, c := range criteria {
		byID[c.ID] = c
	}
	return byID
}
