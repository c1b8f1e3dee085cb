package model

import (
	"sort"
	"time"
)

// Criterion is a weighted, bounded dimension of evaluation.
type Criterion struct {
	ID          string
	Name        string
	Description string
	Category    Category
	Stage       Stage
	Weight      float64
	MinScore    float64
	MaxScore    float64
	Order       int
	Active      bool
}

// CriteriaScore is one reviewer's score for one criterion.
type CriteriaScore struct {
	CriterionID string
	Score       float64
	Reasoning   string
}

// Comment is free-text feedback attached to an evaluation.
type Comment struct {
	QuestionKey string
	Text        string
	CreatedAt   time.Time
}

// Evaluation is one reviewer's judgment of one application at one stage.
// OverallScore is derived from Scores and may be nil when nothing was scored.
type Evaluation struct {
	ID               string
	ApplicationID    string
	ReviewerID       string
	Stage            Stage
	Source           Source
	OverallScore     *float64
	Recommendation   Recommendation
	Confidence       int
	TimeSpentMinutes int
	CompletedAt      *time.Time
	Scores           []CriteriaScore
	Comments         []Comment
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Completed reports whether the evaluation has a completion timestamp.
func (e Evaluation) Completed() bool {
	return e.CompletedAt != nil && !e.CompletedAt.IsZero()
}

// CurrentPerReviewer keeps each reviewer's most recently completed evaluation
// that has an overall score, so a reviewer who evaluated several stages counts
// once. Ties on CompletedAt go to the later UpdatedAt, then the higher ID.
// The result is ordered by ID.
func CurrentPerReviewer(evals []Evaluation) []Evaluation {
	latest := make(map[string]Evaluation, len(evals))
	for _, e := range evals {
		if !e.Completed() || e.OverallScore == nil {
			continue
		}
		prev, ok := latest[e.ReviewerID]
		if !ok || newer(e, prev) {
			latest[e.ReviewerID] = e
		}
	}
	out := make([]Evaluation, 0, len(latest))
	for _, e := range latest {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func newer(a, b Evaluation) bool {
	switch {
	case !a.CompletedAt.Equal(*b.CompletedAt):
		return a.CompletedAt.After(*b.CompletedAt)
	case !a.UpdatedAt.Equal(b.UpdatedAt):
		return a.UpdatedAt.After(b.UpdatedAt)
	default:
		return a.ID > b.ID
	}
}

// Assignment links a reviewer to an application they are expected to evaluate.
type Assignment struct {
	ApplicationID string
	ReviewerID    string
	AssignedAt    time.Time
}

// ConsensusDecision is the human-recorded resolution for an application.
// There is at most one per application; a newer decision replaces the old one.
type ConsensusDecision struct {
	ApplicationID   string
	FinalDecision   Recommendation
	ConsensusScore  *float64
	DiscussionNotes string
	DecidedBy       string
	DecidedAt       time.Time
}
