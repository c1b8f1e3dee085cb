package seed

import (
	"context"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/okian/panel/internal/domain/consensus"
	"github.com/okian/panel/internal/domain/model"
	"github.com/okian/panel/internal/domain/scoring"
	"github.com/okian/panel/pkg/logger"
)

const tolerance = 1e-6

// weightTable answers weight lookups from the service's reviewer overview.
type weightTable map[string]map[model.Category]float64

func (t weightTable) GetWeight(_ context.Context, reviewerID string, category model.Category) float64 {
	if w, ok := t[reviewerID][category]; ok {
		return w
	}
	return model.NeutralWeight
}

// verdict is the part of an application's analysis that both sides must agree on.
type verdict struct {
	State       string
	NextAction  string
	Total       int
	Completed   int
	Scored      int
	Pending     []string
	Mean        float64
	StdDev      float64
	Agreement   float64
	Provisional string
	Combined    *float64
	Decision    string
	Overall     map[string]*float64
}

// Verifier recomputes applications locally with the domain packages.
type Verifier struct {
	aggregator *scoring.Aggregator
	resolver   *consensus.Resolver
	criteria   []model.Criterion
}

// NewVerifier builds a verifier from the weights and criteria the service reports.
func NewVerifier(weights map[string]map[model.Category]float64, criteria []model.Criterion, policy consensus.Policy, log logger.Logger) *Verifier {
	w := weightTable(weights)
	return &Verifier{
		aggregator: scoring.New(w, scoring.WithLogger(log)),
		resolver:   consensus.New(w, consensus.WithPolicy(policy), consensus.WithLogger(log)),
		criteria:   criteria,
	}
}

// Expect computes what the service should report for app given the
// submissions it accepted and whether its decision was recorded.
func (v *Verifier) Expect(ctx context.Context, app Application, accepted []Submission, decided bool) (verdict, error) {
	completedAt := time.Now().UTC()
	evals := make([]model.Evaluation, 0, len(accepted))
	for _, s := range accepted {
		e := s.Evaluation
		if s.Complete {
			e.CompletedAt = &completedAt
		}
		o, err := v.aggregator.ComputeOverallScore(e, v.criteria, model.NeutralWeight)
		if err != nil {
			return verdict{}, err
		}
		e.OverallScore = o.Ptr()
		evals = append(evals, e)
	}

	in := consensus.Input{ApplicationID: app.ID, Evaluations: evals}
	if app.Assigned {
		in.AssignedReviewers = app.Panel
	}
	if decided && app.Decision != nil {
		in.Decision = app.Decision
	}
	a := v.resolver.Resolve(ctx, in)
	combined := v.aggregator.CombineAcrossReviewers(ctx, evals)

	out := verdict{
		State:       string(a.State),
		NextAction:  string(a.NextAction),
		Total:       a.Total,
		Completed:   a.Completed,
		Scored:      a.Scored,
		Pending:     a.PendingReviewers,
		Mean:        a.Mean,
		StdDev:      a.StdDev,
		Agreement:   a.Agreement,
		Provisional: string(a.Provisional),
		Combined:    combined.Ptr(),
		Overall:     make(map[string]*float64, len(evals)),
	}
	if in.Decision != nil {
		out.Decision = string(in.Decision.FinalDecision)
	}
	for _, e := range evals {
		out.Overall[e.ID] = e.OverallScore
	}
	return out, nil
}

// observed extracts the verdict from a fetched history.
func observed(h HistoryView) verdict {
	a := h.Analysis
	out := verdict{
		State:       a.State,
		NextAction:  a.NextAction,
		Total:       a.Total,
		Completed:   a.Completed,
		Scored:      a.Scored,
		Pending:     a.PendingReviewers,
		Mean:        a.Mean,
		StdDev:      a.StdDev,
		Agreement:   a.Agreement,
		Provisional: a.Provisional,
		Combined:    h.Combined.Score,
		Overall:     make(map[string]*float64, len(h.Evaluations)),
	}
	if h.Decision != nil {
		out.Decision = h.Decision.FinalDecision
	}
	for _, e := range h.Evaluations {
		out.Overall[e.ID] = e.OverallScore
	}
	return out
}

// diff returns a human-readable difference, empty when want and got agree.
func diff(want, got verdict) string {
	return cmp.Diff(want, got,
		cmpopts.EquateApprox(0, tolerance),
		cmpopts.EquateEmpty(),
	)
}

// checkRanking reports whether list is ordered by descending combined score
// with unscored applications last.
func checkRanking(list []SummaryView) bool {
	for i := 1; i < len(list); i++ {
		prev, cur := list[i-1].CombinedScore, list[i].CombinedScore
		switch {
		case prev == nil && cur != nil:
			return false
		case prev != nil && cur != nil && *cur > *prev+tolerance:
			return false
		}
	}
	return true
}
