package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"edu-assessment-service/internal/app"
	"edu-assessment-service/internal/domain"
	"edu-assessment-service/internal/logger"
)

var errInvalidBody = errors.New("invalid request body")

// APIHandler serves the instructor REST surface.
type APIHandler struct {
	templates *app.TemplateService
	questions *app.QuestionService
	scheduler *app.Scheduler
	log       *logger.Logger
}

func NewAPIHandler(templates *app.TemplateService, questions *app.QuestionService, scheduler *app.Scheduler, log *logger.Logger) *APIHandler {
	return &APIHandler{templates: templates, questions: questions, scheduler: scheduler, log: log.With("component", "api")}
}

type questionIDsBody struct {
	QuestionIDs []string `json:"questionIds"`
}

// Register mounts the REST routes on mux.
func (h *APIHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /courses/{id}/questions", h.listQuestions)
	mux.HandleFunc("PUT /courses/{id}/questions/{questionId}", h.saveQuestion)
	mux.HandleFunc("POST /templates", h.createTemplate)
	mux.HandleFunc("GET /templates/{id}", h.getTemplate)
	mux.HandleFunc("PATCH /templates/{id}", h.updateTemplate)
	mux.HandleFunc("PUT /templates/{id}/questions", h.setQuestions)
	mux.HandleFunc("POST /templates/{id}/generate", h.generate)
	mux.HandleFunc("POST /templates/{id}/accept", h.accept)
	mux.HandleFunc("GET /templates/{id}/distributions", h.listByTemplate)
	mux.HandleFunc("POST /distributions", h.createDistributions)
	mux.HandleFunc("GET /distributions/{id}", h.getDistribution)
	mux.HandleFunc("PATCH /distributions/{id}", h.updateDistribution)
	mux.HandleFunc("DELETE /distributions/{id}", h.deleteDistribution)
	mux.HandleFunc("GET /classes/{id}/distributions", h.listByClass)
}

func (h *APIHandler) listQuestions(w http.ResponseWriter, r *http.Request) {
	byTopic, err := h.templates.ListTemplateQuestions(r.Context(), r.PathValue("id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, byTopic)
}

func (h *APIHandler) saveQuestion(w http.ResponseWriter, r *http.Request) {
	var q domain.Question
	if !h.decode(w, r, &q) {
		return
	}
	q.ID = r.PathValue("questionId")
	q.CourseID = r.PathValue("id")
	saved, err := h.questions.SaveQuestion(r.Context(), q)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, saved)
}

func (h *APIHandler) createTemplate(w http.ResponseWriter, r *http.Request) {
	var in app.NewTemplate
	if !h.decode(w, r, &in) {
		return
	}
	t, err := h.templates.Create(r.Context(), in)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, t)
}

func (h *APIHandler) getTemplate(w http.ResponseWriter, r *http.Request) {
	t, err := h.templates.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, t)
}

func (h *APIHandler) updateTemplate(w http.ResponseWriter, r *http.Request) {
	var patch app.TemplatePatch
	if !h.decode(w, r, &patch) {
		return
	}
	t, err := h.templates.Update(r.Context(), r.PathValue("id"), patch)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, t)
}

func (h *APIHandler) setQuestions(w http.ResponseWriter, r *http.Request) {
	var body questionIDsBody
	if !h.decode(w, r, &body) {
		return
	}
	t, err := h.templates.SetQuestions(r.Context(), r.PathValue("id"), body.QuestionIDs)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, t)
}

func (h *APIHandler) generate(w http.ResponseWriter, r *http.Request) {
	var req app.GenerateRequest
	if !h.decode(w, r, &req) {
		return
	}
	sel, err := h.templates.Generate(r.Context(), r.PathValue("id"), req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, sel)
}

func (h *APIHandler) accept(w http.ResponseWriter, r *http.Request) {
	var body questionIDsBody
	if !h.decode(w, r, &body) {
		return
	}
	t, err := h.templates.Accept(r.Context(), r.PathValue("id"), domain.Selection{QuestionIDs: body.QuestionIDs})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, t)
}

// createDistributions answers 201 when every class got a row and 207 when some failed.
func (h *APIHandler) createDistributions(w http.ResponseWriter, r *http.Request) {
	var req app.CreateDistributionRequest
	if !h.decode(w, r, &req) {
		return
	}
	res, err := h.scheduler.Create(r.Context(), req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	status := http.StatusCreated
	if len(res.Failed) > 0 {
		status = http.StatusMultiStatus
	}
	respondJSON(w, status, res)
}

func (h *APIHandler) getDistribution(w http.ResponseWriter, r *http.Request) {
	view, err := h.scheduler.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, view)
}

func (h *APIHandler) updateDistribution(w http.ResponseWriter, r *http.Request) {
	var patch app.DistributionPatch
	if !h.decode(w, r, &patch) {
		return
	}
	view, err := h.scheduler.Update(r.Context(), r.PathValue("id"), patch)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, view)
}

func (h *APIHandler) deleteDistribution(w http.ResponseWriter, r *http.Request) {
	if err := h.scheduler.Delete(r.Context(), r.PathValue("id")); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *APIHandler) listByClass(w http.ResponseWriter, r *http.Request) {
	views, err := h.scheduler.ListByClass(r.Context(), r.PathValue("id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, views)
}

func (h *APIHandler) listByTemplate(w http.ResponseWriter, r *http.Request) {
	views, err := h.scheduler.ListByTemplate(r.Context(), r.PathValue("id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, views)
}

func (h *APIHandler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		respondJSON(w, http.StatusBadRequest, ErrorEnvelope{Error: APIError{
			Message: fmt.Sprintf("%s: %v", errInvalidBody, err),
			Code:    "invalid_body",
		}})
		return false
	}
	return true
}

func (h *APIHandler) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, _ := ErrorCode(err)
	if status >= http.StatusInternalServerError {
		h.log.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	}
	respondError(w, err)
}
