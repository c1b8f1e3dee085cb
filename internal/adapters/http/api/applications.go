package api

import (
	"net/http"
	"strconv"

	"github.com/okian/panel/internal/domain/model"
)

// ApplicationsHandler serves per-application reads and workflow writes.
type ApplicationsHandler struct {
	svc Service
	cfg *config
}

// HandleTop handles GET /applications?limit=N.
func (h *ApplicationsHandler) HandleTop(w http.ResponseWriter, r *http.Request) {
	const op = "api.top_applications"
	n := h.cfg.defaultLimit
	if s := r.URL.Query().Get("limit"); s != "" {
		v, err := strconv.Atoi(s)
		if err != nil || v < 1 {
			writeError(r.Context(), w, h.cfg.logger, NewKind(op, ErrBadRequest))
			return
		}
		n = v
	}
	if n > h.cfg.maxLimit {
		writeError(r.Context(), w, h.cfg.logger, WrapKind(op, ErrBadRequest,
			&limitError{max: h.cfg.maxLimit}))
		return
	}
	list, err := h.svc.TopApplications(r.Context(), n)
	if err != nil {
		writeError(r.Context(), w, h.cfg.logger, Wrap(op, err))
		return
	}
	out := make([]summaryResponse, 0, len(list))
	for _, s := range list {
		out = append(out, toSummary(s))
	}
	writeJSON(w, http.StatusOK, out)
}

// HandleSummary handles GET /applications/{id}/summary.
func (h *ApplicationsHandler) HandleSummary(w http.ResponseWriter, r *http.Request) {
	sum, err := h.svc.ApplicationSummary(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(r.Context(), w, h.cfg.logger, Wrap("api.application_summary", err))
		return
	}
	writeJSON(w, http.StatusOK, toSummary(sum))
}

// HandleHistory handles GET /applications/{id}/evaluations.
func (h *ApplicationsHandler) HandleHistory(w http.ResponseWriter, r *http.Request) {
	hist, err := h.svc.EvaluationHistory(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(r.Context(), w, h.cfg.logger, Wrap("api.evaluation_history", err))
		return
	}
	writeJSON(w, http.StatusOK, toHistory(hist))
}

// HandleAssign handles POST /applications/{id}/assignments.
func (h *ApplicationsHandler) HandleAssign(w http.ResponseWriter, r *http.Request) {
	const op = "api.assign_reviewer"
	var req assignmentRequest
	if err := decode(w, r, h.cfg.maxBodyBytes, op, &req); err != nil {
		writeError(r.Context(), w, h.cfg.logger, err)
		return
	}
	a, err := h.svc.AssignReviewer(r.Context(), r.PathValue("id"), req.ReviewerID)
	if err != nil {
		writeError(r.Context(), w, h.cfg.logger, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusCreated, toAssignment(a))
}

// HandleDecision handles POST /applications/{id}/decision.
func (h *ApplicationsHandler) HandleDecision(w http.ResponseWriter, r *http.Request) {
	const op = "api.record_decision"
	var req decisionRequest
	if err := decode(w, r, h.cfg.maxBodyBytes, op, &req); err != nil {
		writeError(r.Context(), w, h.cfg.logger, err)
		return
	}
	d, err := h.svc.RecordDecision(r.Context(), model.ConsensusDecision{
		ApplicationID:   r.PathValue("id"),
		FinalDecision:   model.Recommendation(req.FinalDecision),
		ConsensusScore:  req.ConsensusScore,
		DiscussionNotes: req.DiscussionNotes,
		DecidedBy:       req.DecidedBy,
	})
	if err != nil {
		writeError(r.Context(), w, h.cfg.logger, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, toDecision(d))
}

// HandleRecompute handles POST /applications/{id}/recompute.
func (h *ApplicationsHandler) HandleRecompute(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.RequestRecompute(r.Context(), r.PathValue("id")); err != nil {
		writeError(r.Context(), w, h.cfg.logger, Wrap("api.recompute", err))
		return
	}
	writeJSON(w, http.StatusAccepted, ackResponse{Status: "accepted"})
}

type limitError struct{ max int }

func (e *limitError) Error() string { return "limit exceeds " + strconv.Itoa(e.max) }
