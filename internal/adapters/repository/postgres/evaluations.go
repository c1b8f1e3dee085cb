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

const evaluationColumns = `id, application_id, reviewer_id, stage, source, overall_score, recommendation,
	confidence, time_spent_minutes, completed_at, created_at, updated_at`

// SaveEvaluation implements repository.EvaluationStore. The evaluation row,
// its scores and its comments are replaced in one transaction.
func (db *DB) SaveEvaluation(ctx context.Context, e model.Evaluation) error {
	defer observe("save_evaluation", time.Now())
	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer rollback(ctx, tx)

	var existingApp string
	err = tx.QueryRow(ctx, `SELECT application_id FROM evaluations WHERE id = $1 FOR UPDATE`, e.ID).Scan(&existingApp)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
	case err != nil:
		return fmt.Errorf("failed to lock evaluation %s: %w", e.ID, err)
	case existingApp != e.ApplicationID:
		return fmt.Errorf("evaluation %s belongs to %s: %w", e.ID, existingApp, repository.ErrConflict)
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO evaluations (`+evaluationColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		 ON CONFLICT (id) DO UPDATE SET
		   reviewer_id = $3, stage = $4, source = $5, overall_score = $6, recommendation = $7,
		   confidence = $8, time_spent_minutes = $9, completed_at = $10, updated_at = $12`,
		e.ID, e.ApplicationID, e.ReviewerID, string(e.Stage), string(e.Source), e.OverallScore,
		string(e.Recommendation), e.Confidence, e.TimeSpentMinutes, e.CompletedAt, e.CreatedAt, e.UpdatedAt,
	)
	if isFKViolation(err) {
		return fmt.Errorf("reviewer %s: %w", e.ReviewerID, repository.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("failed to save evaluation %s: %w", e.ID, err)
	}

	if _, err := tx.Exec(ctx, `DELETE FROM criteria_scores WHERE evaluation_id = $1`, e.ID); err != nil {
		return fmt.Errorf("failed to clear scores: %w", err)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM evaluation_comments WHERE evaluation_id = $1`, e.ID); err != nil {
		return fmt.Errorf("failed to clear comments: %w", err)
	}

	batch := &pgx.Batch{}
	for i, s := range e.Scores {
		batch.Queue(`INSERT INTO criteria_scores (evaluation_id, criterion_id, score, reasoning, position)
			VALUES ($1, $2, $3, $4, $5)`, e.ID, s.CriterionID, s.Score, s.Reasoning, i)
	}
	for i, c := range e.Comments {
		batch.Queue(`INSERT INTO evaluation_comments (evaluation_id, position, question_key, body, created_at)
			VALUES ($1, $2, $3, $4, $5)`, e.ID, i, c.QuestionKey, c.Text, c.CreatedAt)
	}
	if batch.Len() > 0 {
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("failed to save scores and comments: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit evaluation %s: %w", e.ID, err)
	}
	return nil
}

// GetEvaluation implements repository.EvaluationStore.
func (db *DB) GetEvaluation(ctx context.Context, id string) (model.Evaluation, error) {
	list, err := db.loadEvaluations(ctx, `WHERE id = $1`, id)
	if err != nil {
		return model.Evaluation{}, err
	}
	if len(list) == 0 {
		return model.Evaluation{}, fmt.Errorf("evaluation %s: %w", id, repository.ErrNotFound)
	}
	return list[0], nil
}

// ListEvaluations implements repository.EvaluationStore.
func (db *DB) ListEvaluations(ctx context.Context, applicationID string) ([]model.Evaluation, error) {
	defer observe("list_evaluations", time.Now())
	return db.loadEvaluations(ctx, `WHERE application_id = $1`, applicationID)
}

func (db *DB) loadEvaluations(ctx context.Context, where string, arg string) ([]model.Evaluation, error) {
	rows, err := db.pool.Query(ctx, `SELECT `+evaluationColumns+` FROM evaluations `+where+` ORDER BY id`, arg)
	if err != nil {
		return nil, fmt.Errorf("failed to query evaluations: %w", err)
	}
	defer rows.Close()

	var (
		out   []model.Evaluation
		ids   []string
		index = make(map[string]int)
	)
	for rows.Next() {
		var (
			e                   model.Evaluation
			stage, source, reco string
		)
		if err := rows.Scan(&e.ID, &e.ApplicationID, &e.ReviewerID, &stage, &source, &e.OverallScore, &reco,
			&e.Confidence, &e.TimeSpentMinutes, &e.CompletedAt, &e.CreatedAt, &e.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan evaluation: %w", err)
		}
		e.Stage = model.Stage(stage)
		e.Source = model.Source(source)
		e.Recommendation = model.Recommendation(reco)
		index[e.ID] = len(out)
		ids = append(ids, e.ID)
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return out, nil
	}

	scoreRows, err := db.pool.Query(ctx,
		`SELECT evaluation_id, criterion_id, score, reasoning FROM criteria_scores
		 WHERE evaluation_id = ANY($1) ORDER BY evaluation_id, position`, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to query scores: %w", err)
	}
	defer scoreRows.Close()
	for scoreRows.Next() {
		var (
			evalID string
			s      model.CriteriaScore
		)
		if err := scoreRows.Scan(&evalID, &s.CriterionID, &s.Score, &s.Reasoning); err != nil {
			return nil, fmt.Errorf("failed to scan score: %w", err)
		}
		out[index[evalID]].Scores = append(out[index[evalID]].Scores, s)
	}
	if err := scoreRows.Err(); err != nil {
		return nil, err
	}

	commentRows, err := db.pool.Query(ctx,
		`SELECT evaluation_id, question_key, body, created_at FROM evaluation_comments
		 WHERE evaluation_id = ANY($1) ORDER BY evaluation_id, position`, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to query comments: %w", err)
	}
	defer commentRows.Close()
	for commentRows.Next() {
		var (
			evalID string
			c      model.Comment
		)
		if err := commentRows.Scan(&evalID, &c.QuestionKey, &c.Text, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan comment: %w", err)
		}
		out[index[evalID]].Comments = append(out[index[evalID]].Comments, c)
	}
	return out, commentRows.Err()
}

// CountByReviewer implements repository.EvaluationStore.
func (db *DB) CountByReviewer(ctx context.Context) (map[string]repository.ReviewerCounts, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT reviewer_id, COUNT(*), COUNT(completed_at) FROM evaluations GROUP BY reviewer_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to count evaluations: %w", err)
	}
	defer rows.Close()

	out := make(map[string]repository.ReviewerCounts)
	for rows.Next() {
		var (
			id               string
			total, completed int
		)
		if err := rows.Scan(&id, &total, &completed); err != nil {
			return nil, fmt.Errorf("failed to scan counts: %w", err)
		}
		out[id] = repository.ReviewerCounts{Total: total, Completed: completed}
	}
	return out, rows.Err()
}

// ApplicationIDs implements repository.EvaluationStore.
func (db *DB) ApplicationIDs(ctx context.Context) ([]string, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT application_id FROM evaluations
		 UNION SELECT application_id FROM assignments
		 UNION SELECT application_id FROM consensus_decisions
		 ORDER BY 1`)
	if err != nil {
		return nil, fmt.Errorf("failed to list applications: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan application id: %w", err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}
