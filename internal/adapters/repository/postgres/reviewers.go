package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/okian/panel/internal/adapters/repository"
	"github.com/okian/panel/internal/domain/model"
)

// CreateReviewer implements repository.ReviewerStore.
func (db *DB) CreateReviewer(ctx context.Context, r model.Reviewer) error {
	defer observe("create_reviewer", time.Now())
	tag, err := db.pool.Exec(ctx,
		`INSERT INTO reviewers (id, name, email, created_at)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (id) DO NOTHING`,
		r.ID, r.Name, r.Email, r.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create reviewer %s: %w", r.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("reviewer %s: %w", r.ID, repository.ErrConflict)
	}
	return nil
}

// GetReviewer implements repository.ReviewerStore.
func (db *DB) GetReviewer(ctx context.Context, id string) (model.Reviewer, error) {
	var r model.Reviewer
	err := db.pool.QueryRow(ctx,
		`SELECT id, name, email, created_at FROM reviewers WHERE id = $1`, id,
	).Scan(&r.ID, &r.Name, &r.Email, &r.CreatedAt)
	if err != nil {
		return model.Reviewer{}, notFound(err, "reviewer "+id)
	}
	return r, nil
}

// ListReviewers implements repository.ReviewerStore.
func (db *DB) ListReviewers(ctx context.Context) ([]model.Reviewer, error) {
	defer observe("list_reviewers", time.Now())
	rows, err := db.pool.Query(ctx, `SELECT id, name, email, created_at FROM reviewers ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list reviewers: %w", err)
	}
	defer rows.Close()

	var out []model.Reviewer
	for rows.Next() {
		var r model.Reviewer
		if err := rows.Scan(&r.ID, &r.Name, &r.Email, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan reviewer: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// ReviewerExists implements repository.ReviewerStore.
func (db *DB) ReviewerExists(ctx context.Context, id string) (bool, error) {
	var ok bool
	if err := db.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM reviewers WHERE id = $1)`, id).Scan(&ok); err != nil {
		return false, fmt.Errorf("failed to check reviewer %s: %w", id, err)
	}
	return ok, nil
}

// ReplaceCompetencies implements repository.ReviewerStore in one transaction.
func (db *DB) ReplaceCompetencies(ctx context.Context, reviewerID string, records []model.Competency) error {
	defer observe("replace_competencies", time.Now())
	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer rollback(ctx, tx)

	for _, c := range records {
		_, err := tx.Exec(ctx,
			`INSERT INTO reviewer_competencies (reviewer_id, category, level, weight, notes, updated_at)
			 VALUES ($1, $2, $3, $4, $5, $6)
			 ON CONFLICT (reviewer_id, category)
			 DO UPDATE SET level = $3, weight = $4, notes = $5, updated_at = $6`,
			reviewerID, string(c.Category), c.Level, c.Weight, c.Notes, c.UpdatedAt,
		)
		if isFKViolation(err) {
			return fmt.Errorf("reviewer %s: %w", reviewerID, repository.ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("failed to upsert competency %s/%s: %w", reviewerID, c.Category, err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit competencies: %w", err)
	}
	return nil
}

// GetCompetency implements repository.ReviewerStore.
func (db *DB) GetCompetency(ctx context.Context, reviewerID string, category model.Category) (model.Competency, bool, error) {
	c := model.Competency{ReviewerID: reviewerID, Category: category}
	err := db.pool.QueryRow(ctx,
		`SELECT level, weight, notes, updated_at FROM reviewer_competencies
		 WHERE reviewer_id = $1 AND category = $2`,
		reviewerID, string(category),
	).Scan(&c.Level, &c.Weight, &c.Notes, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Competency{}, false, nil
		}
		return model.Competency{}, false, fmt.Errorf("failed to get competency: %w", err)
	}
	return c, true, nil
}

// DeleteCompetency implements repository.ReviewerStore.
func (db *DB) DeleteCompetency(ctx context.Context, reviewerID string, category model.Category) error {
	_, err := db.pool.Exec(ctx,
		`DELETE FROM reviewer_competencies WHERE reviewer_id = $1 AND category = $2`,
		reviewerID, string(category),
	)
	if err != nil {
		return fmt.Errorf("failed to delete competency: %w", err)
	}
	return nil
}

// ListCompetencies implements repository.ReviewerStore, in category order.
func (db *DB) ListCompetencies(ctx context.Context, reviewerID string) ([]model.Competency, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT category, level, weight, notes, updated_at FROM reviewer_competencies
		 WHERE reviewer_id = $1`, reviewerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list competencies: %w", err)
	}
	defer rows.Close()

	byCategory := make(map[model.Category]model.Competency)
	for rows.Next() {
		var (
			cat string
			c   = model.Competency{ReviewerID: reviewerID}
		)
		if err := rows.Scan(&cat, &c.Level, &c.Weight, &c.Notes, &c.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan competency: %w", err)
		}
		c.Category = model.Category(cat)
		byCategory[c.Category] = c
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var out []model.Competency
	for _, cat := range model.Categories {
		if c, ok := byCategory[cat]; ok {
			out = append(out, c)
		}
	}
	return out, nil
}
