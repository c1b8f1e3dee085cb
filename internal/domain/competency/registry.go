// Package competency stores and serves per-reviewer, per-category weight multipliers.
package competency

import (
	"context"
	"fmt"
	"time"

	"github.com/okian/panel/internal/domain/model"
	"github.com/okian/panel/pkg/logger"
	"github.com/okian/panel/pkg/metrics"
)

// Store persists competency records. Implementations keep at most one
// record per (reviewer, category) and replace it on write.
type Store interface {
	ReviewerExists(ctx context.Context, reviewerID string) (bool, error)
	ReplaceCompetencies(ctx context.Context, reviewerID string, records []model.Competency) error
	GetCompetency(ctx context.Context, reviewerID string, category model.Category) (model.Competency, bool, error)
	DeleteCompetency(ctx context.Context, reviewerID string, category model.Category) error
	ListCompetencies(ctx context.Context, reviewerID string) ([]model.Competency, error)
}

// Entry is one requested competency change. A nil Weight is derived from the level.
type Entry struct {
	Category string
	Level    int
	Weight   *float64
	Notes    string
}

// EntryResult reports what was stored for one Entry, or why it was skipped.
type EntryResult struct {
	Category model.Category
	Level    int
	Weight   float64
	Clamped  bool
	Err      error
}

// Registry serves competency weights.
type Registry struct {
	store Store
	table WeightTable
	log   logger.Logger
	now   func() time.Time
}

// New creates a Registry on top of store.
func New(store Store, opts ...Option) *Registry {
	r := &Registry{
		store: store,
		table: DefaultWeightTable(),
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.log == nil {
		r.log = logger.Get().Named("competency")
	}
	return r
}

// Table returns the level-to-weight mapping in use.
func (r *Registry) Table() WeightTable { return r.table }

// SetCompetencies replaces the reviewer's records for the categories named in entries.
// Out-of-range levels and weights are clamped. Entries that cannot be stored carry their
// own error; the call itself only fails for an unknown reviewer or a store failure.
func (r *Registry) SetCompetencies(ctx context.Context, reviewerID string, entries []Entry) ([]EntryResult, error) {
	ok, err := r.store.ReviewerExists(ctx, reviewerID)
	if err != nil {
		return nil, fmt.Errorf("%w: lookup reviewer %s: %w", ErrStore, reviewerID, err)
	}
	if !ok {
		return nil, fmt.Errorf("reviewer %s: %w", reviewerID, model.ErrNotFound)
	}

	results := make([]EntryResult, len(entries))
	// Later entries for the same category win.
	byCategory := make(map[model.Category]int, len(entries))
	now := r.now().UTC()
	for i, e := range entries {
		res := r.resolve(e)
		results[i] = res
		if res.Err != nil {
			metrics.RecordCompetencyUpdate("rejected")
			continue
		}
		if prev, dup := byCategory[res.Category]; dup {
			results[prev].Err = fmt.Errorf("%w: %s", ErrSuperseded, res.Category)
		}
		byCategory[res.Category] = i
	}

	records := make([]model.Competency, 0, len(byCategory))
	for _, c := range model.Categories {
		i, ok := byCategory[c]
		if !ok {
			continue
		}
		res := results[i]
		records = append(records, model.Competency{
			ReviewerID: reviewerID,
			Category:   c,
			Level:      res.Level,
			Weight:     res.Weight,
			Notes:      entries[i].Notes,
			UpdatedAt:  now,
		})
	}
	if len(records) == 0 {
		return results, nil
	}
	if err := r.store.ReplaceCompetencies(ctx, reviewerID, records); err != nil {
		return nil, fmt.Errorf("%w: replace competencies for %s: %w", ErrStore, reviewerID, err)
	}

	for _, rec := range records {
		res := results[byCategory[rec.Category]]
		outcome := "set"
		if res.Clamped {
			outcome = "clamped"
		}
		metrics.RecordCompetencyUpdate(outcome)
		r.log.Debug(ctx, "competency set",
			logger.String("reviewer_id", reviewerID),
			logger.String("category", string(rec.Category)),
			logger.Int("level", rec.Level),
			logger.Float64("weight", rec.Weight),
			logger.Bool("clamped", res.Clamped),
		)
	}
	return results, nil
}

func (r *Registry) resolve(e Entry) EntryResult {
	cat, err := model.ParseCategory(e.Category)
	if err != nil {
		return EntryResult{Category: model.Category(e.Category), Err: err}
	}
	level := ClampLevel(e.Level)
	res := EntryResult{Category: cat, Level: level, Clamped: level != e.Level}

	if e.Weight == nil {
		res.Weight = r.table.For(level)
	} else {
		w, err := ClampWeight(*e.Weight)
		if err != nil {
			res.Err = err
			return res
		}
		res.Weight = w
		res.Clamped = res.Clamped || w != *e.Weight
	}
	return res
}

// GetWeight returns the stored weight or exactly 1.0 when there is none.
// Store failures are logged and treated as neutral.
func (r *Registry) GetWeight(ctx context.Context, reviewerID string, category model.Category) float64 {
	c, ok, err := r.store.GetCompetency(ctx, reviewerID, category)
	if err != nil {
		metrics.RecordErrorByComponent("competency", "store")
		r.log.Warn(ctx, "competency lookup failed, using neutral weight",
			logger.String("reviewer_id", reviewerID),
			logger.String("category", string(category)),
			logger.Error(err),
		)
		return model.NeutralWeight
	}
	if !ok {
		return model.NeutralWeight
	}
	return c.Weight
}

// RemoveCompetency deletes one record. Removing a missing record is not an error.
func (r *Registry) RemoveCompetency(ctx context.Context, reviewerID string, category model.Category) error {
	ok, err := r.store.ReviewerExists(ctx, reviewerID)
	if err != nil {
		return fmt.Errorf("%w: lookup reviewer %s: %w", ErrStore, reviewerID, err)
	}
	if !ok {
		return fmt.Errorf("reviewer %s: %w", reviewerID, model.ErrNotFound)
	}
	if err := r.store.DeleteCompetency(ctx, reviewerID, category); err != nil {
		return fmt.Errorf("%w: delete %s/%s: %w", ErrStore, reviewerID, category, err)
	}
	metrics.RecordCompetencyUpdate("removed")
	r.log.Debug(ctx, "competency removed",
		logger.String("reviewer_id", reviewerID),
		logger.String("category", string(category)),
	)
	return nil
}

// Competencies lists the reviewer's records in category order.
func (r *Registry) Competencies(ctx context.Context, reviewerID string) ([]model.Competency, error) {
	list, err := r.store.ListCompetencies(ctx, reviewerID)
	if err != nil {
		return nil, fmt.Errorf("%w: list %s: %w", ErrStore, reviewerID, err)
	}
	return list, nil
}
