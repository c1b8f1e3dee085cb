package api

import (
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	service "github.com/okian/panel/internal/app"
	"github.com/okian/panel/internal/domain/competency"
	"github.com/okian/panel/internal/domain/model"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

type reviewerRequest struct {
	ID    string `json:"id" validate:"omitempty,max=128"`
	Name  string `json:"name" validate:"required,max=200"`
	Email string `json:"email" validate:"omitempty,email"`
}

type reviewerResponse struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

func toReviewer(r model.Reviewer) reviewerResponse {
	return reviewerResponse{ID: r.ID, Name: r.Name, Email: r.Email, CreatedAt: r.CreatedAt}
}

type competencyResponse struct {
	Category  string    `json:"category"`
	Level     int       `json:"level"`
	Weight    float64   `json:"weight"`
	Notes     string    `json:"notes,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

type reviewerOverviewResponse struct {
	reviewerResponse
	Competencies    []competencyResponse `json:"competencies"`
	EvaluationCount int                  `json:"evaluation_count"`
	CompletedCount  int                  `json:"completed_count"`
}

func toOverview(o model.ReviewerOverview) reviewerOverviewResponse {
	out := reviewerOverviewResponse{
		reviewerResponse: toReviewer(o.Reviewer),
		Competencies:     make([]competencyResponse, 0, len(o.Competencies)),
		EvaluationCount:  o.EvaluationCount,
		CompletedCount:   o.CompletedCount,
	}
	for _, c := range o.Competencies {
		out.Competencies = append(out.Competencies, competencyResponse{
			Category:  string(c.Category),
			Level:     c.Level,
			Weight:    c.Weight,
			Notes:     c.Notes,
			UpdatedAt: c.UpdatedAt,
		})
	}
	return out
}

type competencyEntryRequest struct {
	Category string   `json:"category" validate:"required"`
	Level    int      `json:"level"`
	Weight   *float64 `json:"weight"`
	Notes    string   `json:"notes" validate:"max=2000"`
}

type competenciesRequest struct {
	Competencies []competencyEntryRequest `json:"competencies" validate:"required,min=1,dive"`
}

func (r competenciesRequest) entries() []competency.Entry {
	out := make([]competency.Entry, 0, len(r.Competencies))
	for _, c := range r.Competencies {
		out = append(out, competency.Entry{Category: c.Category, Level: c.Level, Weight: c.Weight, Notes: c.Notes})
	}
	return out
}

type competencyResultResponse struct {
	Category string  `json:"category"`
	Level    int     `json:"level,omitempty"`
	Weight   float64 `json:"weight,omitempty"`
	Clamped  bool    `json:"clamped"`
	Applied  bool    `json:"applied"`
	Error    string  `json:"error,omitempty"`
}

func toCompetencyResults(results []competency.EntryResult) []competencyResultResponse {
	out := make([]competencyResultResponse, 0, len(results))
	for _, r := range results {
		row := competencyResultResponse{
			Category: string(r.Category),
			Level:    r.Level,
			Weight:   r.Weight,
			Clamped:  r.Clamped,
			Applied:  r.Err == nil,
		}
		if r.Err != nil {
			row.Error = r.Err.Error()
		}
		out = append(out, row)
	}
	return out
}

type criterionRequest struct {
	ID          string   `json:"id" validate:"required,max=128"`
	Name        string   `json:"name" validate:"required,max=200"`
	Description string   `json:"description"`
	Category    string   `json:"category" validate:"required"`
	Stage       string   `json:"stage" validate:"required"`
	Weight      *float64 `json:"weight" validate:"omitempty,gte=0"`
	MinScore    float64  `json:"min_score"`
	MaxScore    float64  `json:"max_score" validate:"gtfield=MinScore"`
	Order       int      `json:"display_order"`
	Active      *bool    `json:"active"`
}

func (r criterionRequest) criterion() model.Criterion {
	c := model.Criterion{
		ID:          r.ID,
		Name:        r.Name,
		Description: r.Description,
		Category:    model.Category(r.Category),
		Stage:       model.Stage(r.Stage),
		Weight:      1,
		MinScore:    r.MinScore,
		MaxScore:    r.MaxScore,
		Order:       r.Order,
		Active:      true,
	}
	if r.Weight != nil {
		c.Weight = *r.Weight
	}
	if r.Active != nil {
		c.Active = *r.Active
	}
	return c
}

type criterionResponse struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Description string  `json:"description,omitempty"`
	Category    string  `json:"category"`
	Stage       string  `json:"stage"`
	Weight      float64 `json:"weight"`
	MinScore    float64 `json:"min_score"`
	MaxScore    float64 `json:"max_score"`
	Order       int     `json:"display_order"`
	Active      bool    `json:"active"`
}

func toCriterion(c model.Criterion) criterionResponse {
	return criterionResponse{
		ID:          c.ID,
		Name:        c.Name,
		Description: c.Description,
		Category:    string(c.Category),
		Stage:       string(c.Stage),
		Weight:      c.Weight,
		MinScore:    c.MinScore,
		MaxScore:    c.MaxScore,
		Order:       c.Order,
		Active:      c.Active,
	}
}

type assignmentRequest struct {
	ReviewerID string `json:"reviewer_id" validate:"required"`
}

type assignmentResponse struct {
	ApplicationID string    `json:"application_id"`
	ReviewerID    string    `json:"reviewer_id"`
	AssignedAt    time.Time `json:"assigned_at"`
}

func toAssignment(a model.Assignment) assignmentResponse {
	return assignmentResponse{ApplicationID: a.ApplicationID, ReviewerID: a.ReviewerID, AssignedAt: a.AssignedAt}
}

type scoreDTO struct {
	CriterionID string  `json:"criterion_id" validate:"required"`
	Score       float64 `json:"score"`
	Reasoning   string  `json:"reasoning,omitempty"`
}

type commentDTO struct {
	QuestionKey string    `json:"question_key,omitempty"`
	Text        string    `json:"text" validate:"required"`
	CreatedAt   time.Time `json:"created_at,omitempty"`
}

type evaluationRequest struct {
	SubmissionID     string       `json:"submission_id" validate:"omitempty,max=128"`
	EvaluationID     string       `json:"evaluation_id" validate:"omitempty,max=128"`
	ApplicationID    string       `json:"application_id" validate:"required,max=128"`
	ReviewerID       string       `json:"reviewer_id" validate:"required,max=128"`
	Stage            string       `json:"stage" validate:"required"`
	Scores           []scoreDTO   `json:"scores" validate:"dive"`
	Recommendation   string       `json:"recommendation"`
	Confidence       int          `json:"confidence" validate:"omitempty,min=1,max=5"`
	TimeSpentMinutes int          `json:"time_spent_minutes" validate:"gte=0"`
	Comments         []commentDTO `json:"comments" validate:"dive"`
	Complete         bool         `json:"complete"`
}

func (r evaluationRequest) submission() service.Submission {
	sub := service.Submission{
		SubmissionID:     r.SubmissionID,
		EvaluationID:     r.EvaluationID,
		ApplicationID:    r.ApplicationID,
		ReviewerID:       r.ReviewerID,
		Stage:            model.Stage(r.Stage),
		Recommendation:   model.Recommendation(r.Recommendation),
		Confidence:       r.Confidence,
		TimeSpentMinutes: r.TimeSpentMinutes,
		Complete:         r.Complete,
	}
	if stage, err := model.ParseStage(r.Stage); err == nil {
		sub.Stage = stage
	}
	if rec, err := model.ParseRecommendation(r.Recommendation); err == nil {
		sub.Recommendation = rec
	}
	for _, s := range r.Scores {
		sub.Scores = append(sub.Scores, model.CriteriaScore{CriterionID: s.CriterionID, Score: s.Score, Reasoning: s.Reasoning})
	}
	for _, c := range r.Comments {
		sub.Comments = append(sub.Comments, model.Comment{QuestionKey: c.QuestionKey, Text: c.Text})
	}
	return sub
}

type aiEvaluationRequest struct {
	SubmissionID string `json:"submission_id" validate:"omitempty,max=128"`
	ReviewerID   string `json:"reviewer_id" validate:"required,max=128"`
	Stage        string `json:"stage" validate:"required"`
	Response     string `json:"response" validate:"required"`
}

type aiPromptRequest struct {
	Stage     string            `json:"stage" validate:"required"`
	Applicant string            `json:"applicant"`
	Summary   string            `json:"summary"`
	Answers   map[string]string `json:"answers"`
}

type aiPromptResponse struct {
	System string `json:"system"`
	User   string `json:"user"`
}

type evaluationResponse struct {
	ID               string       `json:"id"`
	ApplicationID    string       `json:"application_id"`
	ReviewerID       string       `json:"reviewer_id"`
	Stage            string       `json:"stage"`
	Source           string       `json:"source"`
	OverallScore     *float64     `json:"overall_score"`
	Recommendation   string       `json:"recommendation,omitempty"`
	Confidence       int          `json:"confidence,omitempty"`
	TimeSpentMinutes int          `json:"time_spent_minutes,omitempty"`
	CompletedAt      *time.Time   `json:"completed_at,omitempty"`
	Scores           []scoreDTO   `json:"scores"`
	Comments         []commentDTO `json:"comments,omitempty"`
	CreatedAt        time.Time    `json:"created_at"`
	UpdatedAt        time.Time    `json:"updated_at"`
}

func toEvaluation(e model.Evaluation) evaluationResponse {
	out := evaluationResponse{
		ID:               e.ID,
		ApplicationID:    e.ApplicationID,
		ReviewerID:       e.ReviewerID,
		Stage:            string(e.Stage),
		Source:           string(e.Source),
		OverallScore:     e.OverallScore,
		Recommendation:   string(e.Recommendation),
		Confidence:       e.Confidence,
		TimeSpentMinutes: e.TimeSpentMinutes,
		CompletedAt:      e.CompletedAt,
		Scores:           make([]scoreDTO, 0, len(e.Scores)),
		CreatedAt:        e.CreatedAt,
		UpdatedAt:        e.UpdatedAt,
	}
	for _, s := range e.Scores {
		out.Scores = append(out.Scores, scoreDTO{CriterionID: s.CriterionID, Score: s.Score, Reasoning: s.Reasoning})
	}
	for _, c := range e.Comments {
		out.Comments = append(out.Comments, commentDTO{QuestionKey: c.QuestionKey, Text: c.Text, CreatedAt: c.CreatedAt})
	}
	return out
}

type receiptResponse struct {
	Status     string              `json:"status"`
	Duplicate  bool                `json:"duplicate"`
	Evaluation *evaluationResponse `json:"evaluation,omitempty"`
}

func toReceipt(r service.Receipt) receiptResponse {
	out := receiptResponse{Status: "stored", Duplicate: r.Duplicate}
	if r.Duplicate {
		out.Status = "duplicate"
	}
	if r.Evaluation.ID != "" {
		e := toEvaluation(r.Evaluation)
		out.Evaluation = &e
	}
	return out
}

type decisionRequest struct {
	FinalDecision   string   `json:"final_decision" validate:"required"`
	ConsensusScore  *float64 `json:"consensus_score"`
	DiscussionNotes string   `json:"discussion_notes"`
	DecidedBy       string   `json:"decided_by" validate:"required,max=200"`
}

type decisionResponse struct {
	ApplicationID   string    `json:"application_id"`
	FinalDecision   string    `json:"final_decision"`
	ConsensusScore  *float64  `json:"consensus_score,omitempty"`
	DiscussionNotes string    `json:"discussion_notes,omitempty"`
	DecidedBy       string    `json:"decided_by"`
	DecidedAt       time.Time `json:"decided_at"`
}

func toDecision(d model.ConsensusDecision) decisionResponse {
	return decisionResponse{
		ApplicationID:   d.ApplicationID,
		FinalDecision:   string(d.FinalDecision),
		ConsensusScore:  d.ConsensusScore,
		DiscussionNotes: d.DiscussionNotes,
		DecidedBy:       d.DecidedBy,
		DecidedAt:       d.DecidedAt,
	}
}

type contributionResponse struct {
	EvaluationID string  `json:"evaluation_id"`
	ReviewerID   string  `json:"reviewer_id"`
	Score        float64 `json:"score"`
	Weight       float64 `json:"weight"`
}

type combinedResponse struct {
	Score         *float64               `json:"score"`
	Status        string                 `json:"status"`
	TotalWeight   float64                `json:"total_weight"`
	Contributions []contributionResponse `json:"contributions"`
}

type analysisResponse struct {
	State                   string         `json:"state"`
	NextAction              string         `json:"next_action"`
	Resolvable              bool           `json:"resolvable"`
	Escalate                bool           `json:"escalate"`
	Total                   int            `json:"total"`
	Completed               int            `json:"completed"`
	Scored                  int            `json:"scored"`
	PendingReviewers        []string       `json:"pending_reviewers"`
	Mean                    float64        `json:"mean"`
	StdDev                  float64        `json:"std_dev"`
	RecommendationAgreement float64        `json:"recommendation_agreement"`
	ScoreAgreement          float64        `json:"score_agreement"`
	Agreement               float64        `json:"agreement"`
	Recommendations         map[string]int `json:"recommendations"`
	Provisional             string         `json:"provisional,omitempty"`
	ProvisionalFrom         string         `json:"provisional_from,omitempty"`
}

type historyResponse struct {
	ApplicationID string               `json:"application_id"`
	Evaluations   []evaluationResponse `json:"evaluations"`
	Assignments   []assignmentResponse `json:"assignments"`
	Combined      combinedResponse     `json:"combined"`
	Analysis      analysisResponse     `json:"analysis"`
	Decision      *decisionResponse    `json:"decision,omitempty"`
	ComputedAt    time.Time            `json:"computed_at"`
}

func toHistory(h service.History) historyResponse {
	out := historyResponse{
		ApplicationID: h.ApplicationID,
		Evaluations:   make([]evaluationResponse, 0, len(h.Evaluations)),
		Assignments:   make([]assignmentResponse, 0, len(h.Assignments)),
		Combined: combinedResponse{
			Score:         h.Combined.Ptr(),
			Status:        string(h.Combined.Status),
			TotalWeight:   h.Combined.TotalWeight,
			Contributions: make([]contributionResponse, 0, len(h.Combined.Contributions)),
		},
		ComputedAt: h.ComputedAt,
	}
	for _, e := range h.Evaluations {
		out.Evaluations = append(out.Evaluations, toEvaluation(e))
	}
	for _, a := range h.Assignments {
		out.Assignments = append(out.Assignments, toAssignment(a))
	}
	for _, c := range h.Combined.Contributions {
		out.Combined.Contributions = append(out.Combined.Contributions, contributionResponse(c))
	}

	a := h.Analysis
	out.Analysis = analysisResponse{
		State:                   string(a.State),
		NextAction:              string(a.NextAction),
		Resolvable:              a.Resolvable,
		Escalate:                a.Escalate,
		Total:                   a.Total,
		Completed:               a.Completed,
		Scored:                  a.Scored,
		PendingReviewers:        append([]string{}, a.PendingReviewers...),
		Mean:                    a.Mean,
		StdDev:                  a.StdDev,
		RecommendationAgreement: a.RecommendationAgreement,
		ScoreAgreement:          a.ScoreAgreement,
		Agreement:               a.Agreement,
		Recommendations:         make(map[string]int, len(a.Recommendations)),
		Provisional:             string(a.Provisional),
		ProvisionalFrom:         a.ProvisionalFrom,
	}
	for rec, n := range a.Recommendations {
		out.Analysis.Recommendations[string(rec)] = n
	}
	if h.Decision != nil {
		d := toDecision(*h.Decision)
		out.Decision = &d
	}
	return out
}

type summaryResponse struct {
	ApplicationID        string    `json:"application_id"`
	Rank                 int       `json:"rank,omitempty"`
	CombinedScore        *float64  `json:"combined_score"`
	Agreement            float64   `json:"agreement"`
	StdDev               float64   `json:"std_dev"`
	State                string    `json:"state"`
	Evaluations          int       `json:"evaluations"`
	CompletedEvaluations int       `json:"completed_evaluations"`
	Provisional          string    `json:"provisional,omitempty"`
	Decision             string    `json:"decision,omitempty"`
	UpdatedAt            time.Time `json:"updated_at"`
}

func toSummary(s model.ApplicationSummary) summaryResponse {
	return summaryResponse{
		ApplicationID:        s.ApplicationID,
		Rank:                 s.Rank,
		CombinedScore:        s.CombinedScore,
		Agreement:            s.Agreement,
		StdDev:               s.StdDev,
		State:                s.State,
		Evaluations:          s.Evaluations,
		CompletedEvaluations: s.CompletedEvaluations,
		Provisional:          string(s.Provisional),
		Decision:             string(s.Decision),
		UpdatedAt:            s.UpdatedAt,
	}
}

type ackResponse struct {
	Status string `json:"status"`
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
