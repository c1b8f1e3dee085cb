package model

import "time"

// Competency level bounds and the neutral defaults used when no record exists.
const (
	MinLevel      = 1
	MaxLevel      = 5
	MinWeight     = 0.5
	MaxWeight     = 2.0
	NeutralLevel  = 3
	NeutralWeight = 1.0
)

// Reviewer is a person (or model) allowed to evaluate applications.
type Reviewer struct {
	ID        string
	Name      string
	Email     string
	CreatedAt time.Time
}

// Competency is a reviewer's proficiency in one category.
// Stores keep at most one record per (ReviewerID, Category).
type Competency struct {
	ReviewerID string
	Category   Category
	Level      int
	Weight     float64
	Notes      string
	UpdatedAt  time.Time
}

// ReviewerOverview is a row of the reviewer admin table.
type ReviewerOverview struct {
	Reviewer        Reviewer
	Competencies    []Competency
	EvaluationCount int
	CompletedCount  int
}
