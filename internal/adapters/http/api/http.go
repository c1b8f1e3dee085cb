// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/okian/panel/internal/adapters/repository"
	service "github.com/okian/panel/internal/app"
	"github.com/okian/panel/internal/domain/aireview"
	"github.com/okian/panel/internal/domain/competency"
	"github.com/okian/panel/internal/domain/model"
	"github.com/okian/panel/pkg/logger"
)

// Service is everything the handlers need from the application layer.
type Service interface {
	StatsProvider

	RegisterReviewer(ctx context.Context, r model.Reviewer) (model.Reviewer, error)
	ReviewersOverview(ctx context.Context) ([]model.ReviewerOverview, error)
	BulkSetReviewerCompetencies(ctx context.Context, reviewerID string, entries []competency.Entry) ([]competency.EntryResult, error)
	RemoveCompetency(ctx context.Context, reviewerID string, category model.Category) error

	UpsertCriterion(ctx context.Context, c model.Criterion) (model.Criterion, error)
	Criteria(ctx context.Context, f repository.CriteriaFilter) ([]model.Criterion, error)

	AssignReviewer(ctx context.Context, applicationID, reviewerID string) (model.Assignment, error)
	SubmitEvaluation(ctx context.Context, sub service.Submission) (service.Receipt, error)
	SubmitAIEvaluation(ctx context.Context, sub service.AISubmission) (service.Receipt, error)
	AIPrompt(ctx context.Context, brief aireview.ApplicationBrief, stage model.Stage) (aireview.Prompt, error)

	EvaluationHistory(ctx context.Context, applicationID string) (service.History, error)
	RecordDecision(ctx context.Context, d model.ConsensusDecision) (model.ConsensusDecision, error)
	TopApplications(ctx context.Context, limit int) ([]model.ApplicationSummary, error)
	ApplicationSummary(ctx context.Context, applicationID string) (model.ApplicationSummary, error)
	RequestRecompute(ctx context.Context, applicationID string) error
}

// Server wires HTTP routes for the business API.
type Server struct {
	health       *HealthHandler
	stats        *StatsHandler
	reviewers    *ReviewersHandler
	evaluations  *EvaluationsHandler
	applications *ApplicationsHandler
}

// NewServer creates a new API server with all handlers.
func NewServer(svc Service, opts ...Option) *Server {
	cfg := newConfig(opts...)
	return &Server{
		health:       NewHealthHandler(),
		stats:        NewStatsHandler(svc),
		reviewers:    &ReviewersHandler{svc: svc, cfg: cfg},
		evaluations:  &EvaluationsHandler{svc: svc, cfg: cfg},
		applications: &ApplicationsHandler{svc: svc, cfg: cfg},
	}
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(_ context.Context, mux *http.ServeMux) {
	if mux == nil {
		panic("mux is nil")
	}
	route := func(pattern, endpoint string, h http.HandlerFunc) {
		mux.HandleFunc(pattern, MetricsMiddleware(h, endpoint))
	}

	route("GET /healthz", "healthz", s.health.HandleHealth)
	route("GET /stats", "stats", s.stats.HandleStats)

	route("POST /reviewers", "reviewers", s.reviewers.HandleRegister)
	route("GET /reviewers", "reviewers", s.reviewers.HandleList)
	route("PUT /reviewers/{id}/competencies", "competencies", s.reviewers.HandleSetCompetencies)
	route("DELETE /reviewers/{id}/competencies/{category}", "competencies", s.reviewers.HandleRemoveCompetency)
	route("POST /criteria", "criteria", s.reviewers.HandleUpsertCriterion)
	route("GET /criteria", "criteria", s.reviewers.HandleListCriteria)

	route("POST /evaluations", "evaluations", s.evaluations.HandleSubmit)
	route("POST /applications/{id}/ai-evaluations", "ai_evaluations", s.evaluations.HandleSubmitAI)
	route("POST /applications/{id}/ai-prompt", "ai_prompt", s.evaluations.HandlePrompt)

	route("GET /applications", "applications", s.applications.HandleTop)
	route("GET /applications/{id}/summary", "summary", s.applications.HandleSummary)
	route("GET /applications/{id}/evaluations", "history", s.applications.HandleHistory)
	route("POST /applications/{id}/assignments", "assignments", s.applications.HandleAssign)
	route("POST /applications/{id}/decision", "decision", s.applications.HandleDecision)
	route("POST /applications/{id}/recompute", "recompute", s.applications.HandleRecompute)
}

// decode reads a JSON body into dst and validates it.
func decode(w http.ResponseWriter, r *http.Request, maxBytes int64, op string, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return WrapKind(op, ErrBadRequest, err)
	}
	if err := validate.Struct(dst); err != nil {
		return Wrap(op, err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps err to a status. Server-side failures are logged and not echoed.
func writeError(ctx context.Context, w http.ResponseWriter, log logger.Logger, err error) {
	status, code := statusFor(err)
	msg := describe(err)
	if status >= http.StatusInternalServerError && status != http.StatusServiceUnavailable {
		log.Error(ctx, "request failed", logger.Error(err))
		msg = http.StatusText(status)
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}
