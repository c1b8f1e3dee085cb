package model

import "time"

// ApplicationSummary is the denormalised aggregate kept for the ranked listing.
// CombinedScore is nil while the application has no completed, scored evaluation.
type ApplicationSummary struct {
	ApplicationID        string
	Rank                 int
	CombinedScore        *float64
	Agreement            float64
	StdDev               float64
	State                string
	Evaluations          int
	CompletedEvaluations int
	Provisional          Recommendation
	Decision             Recommendation
	UpdatedAt            time.Time
}

// Ranked reports whether the summary carries a combined score.
func (s ApplicationSummary) Ranked() bool {
	return s.CombinedScore != nil
}
