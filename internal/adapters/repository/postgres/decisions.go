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

// AddAssignment implements repository.AssignmentStore.
func (db *DB) AddAssignment(ctx context.Context, a model.Assignment) error {
	_, err := db.pool.Exec(ctx,
		`INSERT INTO assignments (application_id, reviewer_id, assigned_at)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (application_id, reviewer_id) DO NOTHING`,
		a.ApplicationID, a.ReviewerID, a.AssignedAt,
	)
	if isFKViolation(err) {
		return fmt.Errorf("reviewer %s: %w", a.ReviewerID, repository.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("failed to add assignment: %w", err)
	}
	return nil
}

// ListAssignments implements repository.AssignmentStore.
func (db *DB) ListAssignments(ctx context.Context, applicationID string) ([]model.Assignment, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT reviewer_id, assigned_at FROM assignments WHERE application_id = $1 ORDER BY reviewer_id`,
		applicationID)
	if err != nil {
		return nil, fmt.Errorf("failed to list assignments: %w", err)
	}
	defer rows.Close()

	var out []model.Assignment
	for rows.Next() {
		a := model.Assignment{ApplicationID: applicationID}
		if err := rows.Scan(&a.ReviewerID, &a.AssignedAt); err != nil {
			return nil, fmt.Errorf("failed to scan assignment: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// SaveDecision implements repository.DecisionStore. The current decision wins.
func (db *DB) SaveDecision(ctx context.Context, d model.ConsensusDecision) error {
	defer observe("save_decision", time.Now())
	_, err := db.pool.Exec(ctx,
		`INSERT INTO consensus_decisions
		   (application_id, final_decision, consensus_score, discussion_notes, decided_by, decided_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (application_id) DO UPDATE SET
		   final_decision = $2, consensus_score = $3, discussion_notes = $4, decided_by = $5, decided_at = $6`,
		d.ApplicationID, string(d.FinalDecision), d.ConsensusScore, d.DiscussionNotes, d.DecidedBy, d.DecidedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save decision for %s: %w", d.ApplicationID, err)
	}
	return nil
}

// GetDecision implements repository.DecisionStore.
func (db *DB) GetDecision(ctx context.Context, applicationID string) (model.ConsensusDecision, bool, error) {
	d := model.ConsensusDecision{ApplicationID: applicationID}
	var final string
	err := db.pool.QueryRow(ctx,
		`SELECT final_decision, consensus_score, discussion_notes, decided_by, decided_at
		 FROM consensus_decisions WHERE application_id = $1`, applicationID,
	).Scan(&final, &d.ConsensusScore, &d.DiscussionNotes, &d.DecidedBy, &d.DecidedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.ConsensusDecision{}, false, nil
	}
	if err != nil {
		return model.ConsensusDecision{}, false, fmt.Errorf("failed to get decision for %s: %w", applicationID, err)
	}
	d.FinalDecision = model.Recommendation(final)
	return d, true, nil
}
