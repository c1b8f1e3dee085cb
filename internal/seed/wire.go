package seed

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/okian/panel/internal/domain/model"
)

type reviewerBody struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type competencyBody struct {
	Category string   `json:"category"`
	Level    int      `json:"level"`
	Weight   *float64 `json:"weight,omitempty"`
}

type competencyResult struct {
	Category string `json:"category"`
	Applied  bool   `json:"applied"`
	Error    string `json:"error"`
}

type criterionBody struct {
	ID       string  `json:"id"`
	Name     string  `json:"name"`
	Category string  `json:"category"`
	Stage    string  `json:"stage"`
	Weight   float64 `json:"weight"`
	MinScore float64 `json:"min_score"`
	MaxScore float64 `json:"max_score"`
	Order    int     `json:"display_order"`
	Active   bool    `json:"active"`
}

func (b criterionBody) criterion() model.Criterion {
	return model.Criterion{
		ID:       b.ID,
		Name:     b.Name,
		Category: model.Category(b.Category),
		Stage:    model.Stage(b.Stage),
		Weight:   b.Weight,
		MinScore: b.MinScore,
		MaxScore: b.MaxScore,
		Order:    b.Order,
		Active:   b.Active,
	}
}

type scoreBody struct {
	CriterionID string  `json:"criterion_id"`
	Score       float64 `json:"score"`
}

type evaluationBody struct {
	SubmissionID   string      `json:"submission_id"`
	EvaluationID   string      `json:"evaluation_id"`
	ApplicationID  string      `json:"application_id"`
	ReviewerID     string      `json:"reviewer_id"`
	Stage          string      `json:"stage"`
	Scores         []scoreBody `json:"scores"`
	Recommendation string      `json:"recommendation"`
	Confidence     int         `json:"confidence,omitempty"`
	Complete       bool        `json:"complete"`
}

type receiptBody struct {
	Status    string `json:"status"`
	Duplicate bool   `json:"duplicate"`
}

type decisionBody struct {
	FinalDecision   string `json:"final_decision"`
	DiscussionNotes string `json:"discussion_notes,omitempty"`
	DecidedBy       string `json:"decided_by"`
}

type overviewBody struct {
	ID           string `json:"id"`
	Competencies []struct {
		Category string  `json:"category"`
		Weight   float64 `json:"weight"`
	} `json:"competencies"`
}

type EvaluationView struct {
	ID             string     `json:"id"`
	ReviewerID     string     `json:"reviewer_id"`
	OverallScore   *float64   `json:"overall_score"`
	Recommendation string     `json:"recommendation"`
	CompletedAt    *time.Time `json:"completed_at"`
}

type AnalysisView struct {
	State                   string   `json:"state"`
	NextAction              string   `json:"next_action"`
	Resolvable              bool     `json:"resolvable"`
	Escalate                bool     `json:"escalate"`
	Total                   int      `json:"total"`
	Completed               int      `json:"completed"`
	Scored                  int      `json:"scored"`
	PendingReviewers        []string `json:"pending_reviewers"`
	Mean                    float64  `json:"mean"`
	StdDev                  float64  `json:"std_dev"`
	RecommendationAgreement float64  `json:"recommendation_agreement"`
	ScoreAgreement          float64  `json:"score_agreement"`
	Agreement               float64  `json:"agreement"`
	Provisional             string   `json:"provisional"`
	ProvisionalFrom         string   `json:"provisional_from"`
}

type HistoryView struct {
	ApplicationID string           `json:"application_id"`
	Evaluations   []EvaluationView `json:"evaluations"`
	Combined      struct {
		Score       *float64 `json:"score"`
		Status      string   `json:"status"`
		TotalWeight float64  `json:"total_weight"`
	} `json:"combined"`
	Analysis AnalysisView `json:"analysis"`
	Decision *struct {
		FinalDecision string `json:"final_decision"`
	} `json:"decision"`
}

type SummaryView struct {
	ApplicationID string   `json:"application_id"`
	Rank          int      `json:"rank"`
	CombinedScore *float64 `json:"combined_score"`
	State         string   `json:"state"`
}

// RegisterReviewer creates r. An existing reviewer is not an error.
func (c *Client) RegisterReviewer(ctx context.Context, r Reviewer) error {
	_, err := c.do(ctx, http.MethodPost, "/reviewers", reviewerBody{ID: r.ID, Name: r.Name}, nil,
		http.StatusCreated, http.StatusConflict)
	return err
}

// SetCompetencies replaces r's competency levels and fails if any entry was rejected.
func (c *Client) SetCompetencies(ctx context.Context, r Reviewer) error {
	body := struct {
		Competencies []competencyBody `json:"competencies"`
	}{}
	for _, cat := range competencyCategories {
		level, ok := r.Levels[cat]
		if !ok {
			continue
		}
		entry := competencyBody{Category: string(cat), Level: level}
		if w, ok := r.Overrides[cat]; ok {
			entry.Weight = &w
		}
		body.Competencies = append(body.Competencies, entry)
	}
	if len(body.Competencies) == 0 {
		return nil
	}
	var out struct {
		Results []competencyResult `json:"results"`
	}
	path := "/reviewers/" + url.PathEscape(r.ID) + "/competencies"
	if _, err := c.do(ctx, http.MethodPut, path, body, &out, http.StatusOK); err != nil {
		return err
	}
	for _, res := range out.Results {
		if !res.Applied {
			return fmt.Errorf("competency %s for %s: %s", res.Category, r.ID, res.Error)
		}
	}
	return nil
}

// UpsertCriterion creates or replaces a criterion.
func (c *Client) UpsertCriterion(ctx context.Context, cr model.Criterion) error {
	body := criterionBody{
		ID:       cr.ID,
		Name:     cr.Name,
		Category: string(cr.Category),
		Stage:    string(cr.Stage),
		Weight:   cr.Weight,
		MinScore: cr.MinScore,
		MaxScore: cr.MaxScore,
		Order:    cr.Order,
		Active:   cr.Active,
	}
	_, err := c.do(ctx, http.MethodPost, "/criteria", body, nil, http.StatusOK)
	return err
}

// Assign puts reviewerID on the application's panel.
func (c *Client) Assign(ctx context.Context, applicationID, reviewerID string) error {
	path := "/applications/" + url.PathEscape(applicationID) + "/assignments"
	_, err := c.do(ctx, http.MethodPost, path, map[string]string{"reviewer_id": reviewerID}, nil, http.StatusCreated)
	return err
}

// Submit posts one evaluation and reports whether the service saw it before.
func (c *Client) Submit(ctx context.Context, s Submission) (duplicate bool, err error) {
	e := s.Evaluation
	body := evaluationBody{
		SubmissionID:   s.SubmissionID,
		EvaluationID:   e.ID,
		ApplicationID:  e.ApplicationID,
		ReviewerID:     e.ReviewerID,
		Stage:          string(e.Stage),
		Recommendation: string(e.Recommendation),
		Confidence:     e.Confidence,
		Complete:       s.Complete,
	}
	for _, sc := range e.Scores {
		body.Scores = append(body.Scores, scoreBody{CriterionID: sc.CriterionID, Score: sc.Score})
	}
	var out receiptBody
	if _, err := c.do(ctx, http.MethodPost, "/evaluations", body, &out, http.StatusCreated, http.StatusOK); err != nil {
		return false, err
	}
	return out.Duplicate, nil
}

// Decide records a consensus decision.
func (c *Client) Decide(ctx context.Context, d model.ConsensusDecision) error {
	path := "/applications/" + url.PathEscape(d.ApplicationID) + "/decision"
	body := decisionBody{
		FinalDecision:   string(d.FinalDecision),
		DiscussionNotes: d.DiscussionNotes,
		DecidedBy:       d.DecidedBy,
	}
	_, err := c.do(ctx, http.MethodPost, path, body, nil, http.StatusOK)
	return err
}

// Weights returns every reviewer's per-category weights as the service reports them.
func (c *Client) Weights(ctx context.Context) (map[string]map[model.Category]float64, error) {
	var list []overviewBody
	if _, err := c.do(ctx, http.MethodGet, "/reviewers", nil, &list, http.StatusOK); err != nil {
		return nil, err
	}
	out := make(map[string]map[model.Category]float64, len(list))
	for _, r := range list {
		m := make(map[model.Category]float64, len(r.Competencies))
		for _, comp := range r.Competencies {
			m[model.Category(comp.Category)] = comp.Weight
		}
		out[r.ID] = m
	}
	return out, nil
}

// Criteria returns every criterion the service scores against.
func (c *Client) Criteria(ctx context.Context) ([]model.Criterion, error) {
	var list []criterionBody
	if _, err := c.do(ctx, http.MethodGet, "/criteria", nil, &list, http.StatusOK); err != nil {
		return nil, err
	}
	out := make([]model.Criterion, 0, len(list))
	for _, b := range list {
		out = append(out, b.criterion())
	}
	return out, nil
}

// History fetches one application's evaluations and analysis.
func (c *Client) History(ctx context.Context, applicationID string) (HistoryView, error) {
	var h HistoryView
	path := "/applications/" + url.PathEscape(applicationID) + "/evaluations"
	_, err := c.do(ctx, http.MethodGet, path, nil, &h, http.StatusOK)
	return h, err
}

// Top fetches the ranked application list.
func (c *Client) Top(ctx context.Context, limit int) ([]SummaryView, error) {
	var list []SummaryView
	path := fmt.Sprintf("/applications?limit=%d", limit)
	_, err := c.do(ctx, http.MethodGet, path, nil, &list, http.StatusOK)
	return list, err
}
