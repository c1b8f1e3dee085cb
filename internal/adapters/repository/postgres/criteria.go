package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/okian/panel/internal/adapters/repository"
	"github.com/okian/panel/internal/domain/model"
)

// UpsertCriterion implements repository.CriteriaStore.
func (db *DB) UpsertCriterion(ctx context.Context, c model.Criterion) error {
	defer observe("upsert_criterion", time.Now())
	_, err := db.pool.Exec(ctx,
		`INSERT INTO evaluation_criteria
		   (id, name, description, category, stage, weight, min_score, max_score, display_order, active)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 ON CONFLICT (id) DO UPDATE SET
		   name = $2, description = $3, category = $4, stage = $5, weight = $6,
		   min_score = $7, max_score = $8, display_order = $9, active = $10`,
		c.ID, c.Name, c.Description, string(c.Category), string(c.Stage),
		c.Weight, c.MinScore, c.MaxScore, c.Order, c.Active,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert criterion %s: %w", c.ID, err)
	}
	return nil
}

// ListCriteria implements repository.CriteriaStore.
func (db *DB) ListCriteria(ctx context.Context, f repository.CriteriaFilter) ([]model.Criterion, error) {
	defer observe("list_criteria", time.Now())
	rows, err := db.pool.Query(ctx,
		`SELECT id, name, description, category, stage, weight, min_score, max_score, display_order, active
		 FROM evaluation_criteria
		 WHERE ($1 = '' OR stage = $1) AND (NOT $2 OR active)
		 ORDER BY display_order, id`,
		string(f.Stage), f.ActiveOnly,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list criteria: %w", err)
	}
	defer rows.Close()

	var out []model.Criterion
	for rows.Next() {
		var (
			c          model.Criterion
			cat, stage string
		)
		if err := rows.Scan(&c.ID, &c.Name, &c.Description, &cat, &stage,
			&c.Weight, &c.MinScore, &c.MaxScore, &c.Order, &c.Active); err != nil {
			return nil, fmt.Errorf("failed to scan criterion: %w", err)
		}
		c.Category = model.Category(cat)
		c.Stage = model.Stage(stage)
		out = append(out, c)
	}
	return out, rows.Err()
}
