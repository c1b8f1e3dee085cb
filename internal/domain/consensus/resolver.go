// Package consensus decides whether reviewers agree closely enough to
// auto-resolve an application or whether a human consensus step is needed.
package consensus

import (
	"context"
	"math"
	"sort"

	"github.com/okian/panel/internal/domain/model"
	"github.com/okian/panel/pkg/logger"
)

// State of an application in the review workflow.
type State string

const (
	StateNoEvaluations  State = "NO_EVALUATIONS"
	StatePartial        State = "PARTIAL"
	StateEvaluated      State = "EVALUATED"
	StateAutoResolved   State = "AUTO_RESOLVED"
	StateNeedsConsensus State = "NEEDS_CONSENSUS"
	StateDecided        State = "DECIDED"
)

// NextAction tells reviewers what the application is waiting for.
type NextAction string

const (
	ActionAssignReviewers      NextAction = "assign_reviewers"
	ActionAwaitEvaluations     NextAction = "await_evaluations"
	ActionAwaitMoreEvaluations NextAction = "await_more_evaluations"
	ActionAcceptProvisional    NextAction = "accept_provisional"
	ActionScheduleConsensus    NextAction = "schedule_consensus"
	ActionNone                 NextAction = "none"
)

// WeightSource resolves a reviewer's influence for a category.
type WeightSource interface {
	GetWeight(ctx context.Context, reviewerID string, category model.Category) float64
}

// Input is everything known about one application. Evaluations must carry
// their derived overall scores.
type Input struct {
	ApplicationID     string
	Evaluations       []model.Evaluation
	AssignedReviewers []string
	Decision          *model.ConsensusDecision
}

// Analysis is the resolver's verdict. Statistics are zero unless Resolvable.
type Analysis struct {
	ApplicationID string
	State         State
	NextAction    NextAction
	// Resolvable is false while fewer than the policy minimum of reviewers have a completed, scored evaluation.
	Resolvable bool
	Escalate   bool

	Total     int
	Completed int
	// Scored counts reviewers, each through their current completed, scored evaluation.
	Scored           int
	PendingReviewers []string

	Mean     float64
	Variance float64
	StdDev   float64

	RecommendationAgreement float64
	ScoreAgreement          float64
	Agreement               float64
	Recommendations         map[model.Recommendation]int

	Provisional     model.Recommendation
	ProvisionalFrom string
	Decision        *model.ConsensusDecision
}

// Resolver computes Analysis values. It holds no per-application state, so
// calling Resolve again on the same input returns the same answer.
type Resolver struct {
	weights WeightSource
	policy  Policy
	log     logger.Logger
}

// New creates a Resolver reading reviewer weights from weights.
func New(weights WeightSource, opts ...Option) *Resolver {
	r := &Resolver{weights: weights, policy: DefaultPolicy()}
	for _, opt := range opts {
		opt(r)
	}
	if r.log == nil {
		r.log = logger.Get().Named("consensus")
	}
	return r
}

// Policy returns the policy in use.
func (r *Resolver) Policy() Policy { return r.policy }

// Resolve analyses one application.
func (r *Resolver) Resolve(ctx context.Context, in Input) Analysis {
	evals := append([]model.Evaluation(nil), in.Evaluations...)
	sort.Slice(evals, func(i, j int) bool { return evals[i].ID < evals[j].ID })

	a := Analysis{
		ApplicationID:   in.ApplicationID,
		Total:           len(evals),
		Decision:        in.Decision,
		Recommendations: map[model.Recommendation]int{},
	}

	completedBy := make(map[string]bool, len(evals))
	for _, e := range evals {
		if !e.Completed() {
			if _, ok := completedBy[e.ReviewerID]; !ok {
				completedBy[e.ReviewerID] = false
			}
			continue
		}
		a.Completed++
		completedBy[e.ReviewerID] = true
	}
	scored := model.CurrentPerReviewer(evals)
	a.Scored = len(scored)
	a.PendingReviewers = pending(in.AssignedReviewers, completedBy)

	if a.Scored >= r.policy.MinEvaluations {
		a.Resolvable = true
		r.statistics(&a, scored)
		a.Escalate = a.Agreement < r.policy.AgreementThreshold || a.StdDev > r.policy.MaxStdDev
		if !a.Escalate {
			a.ProvisionalFrom, a.Provisional = r.provisional(ctx, scored)
		}
	}

	a.State, a.NextAction = r.classify(a, len(in.AssignedReviewers))
	r.log.Debug(ctx, "consensus resolved",
		logger.String("application_id", in.ApplicationID),
		logger.String("state", string(a.State)),
		logger.Float64("agreement", a.Agreement),
		logger.Float64("std_dev", a.StdDev),
	)
	return a
}

func (r *Resolver) classify(a Analysis, assigned int) (State, NextAction) {
	switch {
	case a.Decision != nil:
		return StateDecided, ActionNone
	case a.Total == 0 && assigned == 0:
		return StateNoEvaluations, ActionAssignReviewers
	case a.Total == 0:
		return StateNoEvaluations, ActionAwaitEvaluations
	case len(a.PendingReviewers) > 0:
		return StatePartial, ActionAwaitEvaluations
	case !a.Resolvable:
		return StateEvaluated, ActionAwaitMoreEvaluations
	case a.Escalate:
		return StateNeedsConsensus, ActionScheduleConsensus
	default:
		return StateAutoResolved, ActionAcceptProvisional
	}
}

func (r *Resolver) statistics(a *Analysis, scored []model.Evaluation) {
	n := float64(len(scored))
	var sum float64
	for _, e := range scored {
		sum += *e.OverallScore
		a.Recommendations[e.Recommendation]++
	}
	a.Mean = sum / n

	var sq float64
	for _, e := range scored {
		d := *e.OverallScore - a.Mean
		sq += d * d
	}
	a.Variance = sq / n
	a.StdDev = math.Sqrt(a.Variance)

	if len(a.Recommendations) == 1 {
		a.RecommendationAgreement = 100
	}
	a.ScoreAgreement = r.policy.Curve.ScoreAgreement(a.StdDev)
	a.Agreement = (a.RecommendationAgreement + a.ScoreAgreement) / 2
}

// provisional picks the recommendation of the highest-weighted evaluation.
// Ties go to the higher score, then to the lower evaluation ID.
func (r *Resolver) provisional(ctx context.Context, scored []model.Evaluation) (string, model.Recommendation) {
	var (
		best       model.Evaluation
		bestWeight = math.Inf(-1)
	)
	for _, e := range scored {
		w := r.weights.GetWeight(ctx, e.ReviewerID, model.CategoryOverall)
		switch {
		case w > bestWeight:
		case w == bestWeight && *e.OverallScore > *best.OverallScore:
		default:
			continue
		}
		best, bestWeight = e, w
	}
	return best.ID, best.Recommendation
}

// pending lists assigned reviewers without a completed evaluation. Without
// assignments, reviewers who started but did not finish are pending.
func pending(assigned []string, completedBy map[string]bool) []string {
	var out []string
	if len(assigned) > 0 {
		seen := make(map[string]struct{}, len(assigned))
		for _, id := range assigned {
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			if !completedBy[id] {
				out = append(out, id)
			}
		}
	} else {
		for id, done := range completedBy {
			if !done {
				out = append(out, id)
			}
		}
	}
	sort.Strings(out)
	return out
}
