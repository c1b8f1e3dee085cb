package api

import (
	"net/http"

	"github.com/okian/panel/internal/adapters/repository"
	"github.com/okian/panel/internal/domain/model"
)

// ReviewersHandler serves reviewer, competency and criteria administration.
type ReviewersHandler struct {
	svc Service
	cfg *config
}

// HandleRegister handles POST /reviewers.
func (h *ReviewersHandler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	const op = "api.register_reviewer"
	var req reviewerRequest
	if err := decode(w, r, h.cfg.maxBodyBytes, op, &req); err != nil {
		writeError(r.Context(), w, h.cfg.logger, err)
		return
	}
	rev, err := h.svc.RegisterReviewer(r.Context(), model.Reviewer{ID: req.ID, Name: req.Name, Email: req.Email})
	if err != nil {
		writeError(r.Context(), w, h.cfg.logger, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusCreated, toReviewer(rev))
}

// HandleList handles GET /reviewers.
func (h *ReviewersHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	overview, err := h.svc.ReviewersOverview(r.Context())
	if err != nil {
		writeError(r.Context(), w, h.cfg.logger, Wrap("api.list_reviewers", err))
		return
	}
	out := make([]reviewerOverviewResponse, 0, len(overview))
	for _, o := range overview {
		out = append(out, toOverview(o))
	}
	writeJSON(w, http.StatusOK, out)
}

// HandleSetCompetencies handles PUT /reviewers/{id}/competencies.
// Entries succeed or fail individually; the response lists each outcome.
func (h *ReviewersHandler) HandleSetCompetencies(w http.ResponseWriter, r *http.Request) {
	const op = "api.set_competencies"
	var req competenciesRequest
	if err := decode(w, r, h.cfg.maxBodyBytes, op, &req); err != nil {
		writeError(r.Context(), w, h.cfg.logger, err)
		return
	}
	results, err := h.svc.BulkSetReviewerCompetencies(r.Context(), r.PathValue("id"), req.entries())
	if err != nil {
		writeError(r.Context(), w, h.cfg.logger, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"reviewer_id": r.PathValue("id"),
		"results":     toCompetencyResults(results),
	})
}

// HandleRemoveCompetency handles DELETE /reviewers/{id}/competencies/{category}.
func (h *ReviewersHandler) HandleRemoveCompetency(w http.ResponseWriter, r *http.Request) {
	const op = "api.remove_competency"
	cat, err := model.ParseCategory(r.PathValue("category"))
	if err != nil {
		writeError(r.Context(), w, h.cfg.logger, Wrap(op, err))
		return
	}
	if err := h.svc.RemoveCompetency(r.Context(), r.PathValue("id"), cat); err != nil {
		writeError(r.Context(), w, h.cfg.logger, Wrap(op, err))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleUpsertCriterion handles POST /criteria.
func (h *ReviewersHandler) HandleUpsertCriterion(w http.ResponseWriter, r *http.Request) {
	const op = "api.upsert_criterion"
	var req criterionRequest
	if err := decode(w, r, h.cfg.maxBodyBytes, op, &req); err != nil {
		writeError(r.Context(), w, h.cfg.logger, err)
		return
	}
	c, err := h.svc.UpsertCriterion(r.Context(), req.criterion())
	if err != nil {
		writeError(r.Context(), w, h.cfg.logger, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, toCriterion(c))
}

// HandleListCriteria handles GET /criteria?stage=S&active=true.
func (h *ReviewersHandler) HandleListCriteria(w http.ResponseWriter, r *http.Request) {
	const op = "api.list_criteria"
	var f repository.CriteriaFilter
	if s := r.URL.Query().Get("stage"); s != "" {
		stage, err := model.ParseStage(s)
		if err != nil {
			writeError(r.Context(), w, h.cfg.logger, Wrap(op, err))
			return
		}
		f.Stage = stage
	}
	f.ActiveOnly = r.URL.Query().Get("active") == "true"

	list, err := h.svc.Criteria(r.Context(), f)
	if err != nil {
		writeError(r.Context(), w, h.cfg.logger, Wrap(op, err))
		return
	}
	out := make([]criterionResponse, 0, len(list))
	for _, c := range list {
		out = append(out, toCriterion(c))
	}
	writeJSON(w, http.StatusOK, out)
}
