package api

import (
	"net/http"

	service "github.com/okian/panel/internal/app"
	"github.com/okian/panel/internal/domain/aireview"
	"github.com/okian/panel/internal/domain/model"
)

// EvaluationsHandler accepts human and AI evaluations.
type EvaluationsHandler struct {
	svc Service
	cfg *config
}

// HandleSubmit handles POST /evaluations. A repeated submission_id returns
// 200 with the evaluation stored the first time.
func (h *EvaluationsHandler) HandleSubmit(w http.ResponseWriter, r *http.Request) {
	const op = "api.submit_evaluation"
	var req evaluationRequest
	if err := decode(w, r, h.cfg.maxBodyBytes, op, &req); err != nil {
		writeError(r.Context(), w, h.cfg.logger, err)
		return
	}
	receipt, err := h.svc.SubmitEvaluation(r.Context(), req.submission())
	if err != nil {
		writeError(r.Context(), w, h.cfg.logger, Wrap(op, err))
		return
	}
	writeReceipt(w, receipt)
}

// HandleSubmitAI handles POST /applications/{id}/ai-evaluations.
func (h *EvaluationsHandler) HandleSubmitAI(w http.ResponseWriter, r *http.Request) {
	const op = "api.submit_ai_evaluation"
	var req aiEvaluationRequest
	if err := decode(w, r, h.cfg.maxBodyBytes, op, &req); err != nil {
		writeError(r.Context(), w, h.cfg.logger, err)
		return
	}
	stage, err := model.ParseStage(req.Stage)
	if err != nil {
		writeError(r.Context(), w, h.cfg.logger, Wrap(op, err))
		return
	}
	receipt, err := h.svc.SubmitAIEvaluation(r.Context(), service.AISubmission{
		SubmissionID:  req.SubmissionID,
		ApplicationID: r.PathValue("id"),
		ReviewerID:    req.ReviewerID,
		Stage:         stage,
		Raw:           req.Response,
	})
	if err != nil {
		writeError(r.Context(), w, h.cfg.logger, Wrap(op, err))
		return
	}
	writeReceipt(w, receipt)
}

// HandlePrompt handles POST /applications/{id}/ai-prompt.
func (h *EvaluationsHandler) HandlePrompt(w http.ResponseWriter, r *http.Request) {
	const op = "api.ai_prompt"
	var req aiPromptRequest
	if err := decode(w, r, h.cfg.maxBodyBytes, op, &req); err != nil {
		writeError(r.Context(), w, h.cfg.logger, err)
		return
	}
	stage, err := model.ParseStage(req.Stage)
	if err != nil {
		writeError(r.Context(), w, h.cfg.logger, Wrap(op, err))
		return
	}
	p, err := h.svc.AIPrompt(r.Context(), aireview.ApplicationBrief{
		ApplicationID: r.PathValue("id"),
		Applicant:     req.Applicant,
		Summary:       req.Summary,
		Answers:       req.Answers,
	}, stage)
	if err != nil {
		writeError(r.Context(), w, h.cfg.logger, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, aiPromptResponse{System: p.System, User: p.User})
}

func writeReceipt(w http.ResponseWriter, receipt service.Receipt) {
	status := http.StatusCreated
	if receipt.Duplicate {
		status = http.StatusOK
	}
	writeJSON(w, status, toReceipt(receipt))
}
