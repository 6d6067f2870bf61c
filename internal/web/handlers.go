package web

import (
	"html/template"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/jmoiron/sqlx"

	"github.com/hpungsan/almanac/internal/journal"
	"github.com/hpungsan/almanac/internal/ops"
)

// Handlers contains HTTP route handlers for the JSON API.
type Handlers struct {
	db       *sqlx.DB
	absorber *ops.Absorber
	version  string
}

// HandleHealth handles GET /healthz.
func (h *Handlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	code := http.StatusOK
	if err := h.db.PingContext(r.Context()); err != nil {
		status = "db unavailable"
		code = http.StatusServiceUnavailable
	}
	renderJSON(w, code, map[string]string{"status": status, "version": h.version})
}

// HandleAbsorb handles POST /api/projects/{id}/absorb.
func (h *Handlers) HandleAbsorb(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		renderError(w, r, err)
		return
	}
	out, err := h.absorber.Absorb(r.Context(), ops.AbsorbInput{ProjectID: id})
	if err != nil {
		renderError(w, r, err)
		return
	}
	renderJSON(w, http.StatusOK, out)
}

// HandleUpdateTask handles PATCH /api/tasks/{id} with body {"status": "..."}.
func (h *Handlers) HandleUpdateTask(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		renderError(w, r, err)
		return
	}
	var body struct {
		Status string `json:"status"`
	}
	if err := decodeJSON(r, &body); err != nil {
		renderError(w, r, err)
		return
	}
	cfg, err := h.absorber.Config()
	if err != nil {
		renderError(w, r, err)
		return
	}
	out, err := ops.UpdateTaskStatus(r.Context(), h.db, cfg, ops.UpdateTaskStatusInput{ID: id, Status: body.Status})
	if err != nil {
		renderError(w, r, err)
		return
	}
	renderJSON(w, http.StatusOK, out)
}

// HandleAbsorptionData handles GET /api/projects/{id}/absorption.
func (h *Handlers) HandleAbsorptionData(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		renderError(w, r, err)
		return
	}
	out, err := ops.GetAbsorptionData(r.Context(), h.db, id)
	if err != nil {
		renderError(w, r, err)
		return
	}
	renderJSON(w, http.StatusOK, out)
}

// HandleListProjects handles GET /api/projects.
func (h *Handlers) HandleListProjects(w http.ResponseWriter, r *http.Request) {
	out, err := ops.ListProjects(r.Context(), h.db)
	if err != nil {
		renderError(w, r, err)
		return
	}
	renderJSON(w, http.StatusOK, out)
}

// HandleCreateProject handles POST /api/projects.
func (h *Handlers) HandleCreateProject(w http.ResponseWriter, r *http.Request) {
	var input ops.CreateProjectInput
	if err := decodeJSON(r, &input); err != nil {
		renderError(w, r, err)
		return
	}
	p, err := ops.CreateProject(r.Context(), h.db, input)
	if err != nil {
		renderError(w, r, err)
		return
	}
	renderJSON(w, http.StatusCreated, p)
}

// HandleGetProject handles GET /api/projects/{id}.
func (h *Handlers) HandleGetProject(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		renderError(w, r, err)
		return
	}
	p, err := ops.GetProject(r.Context(), h.db, id)
	if err != nil {
		renderError(w, r, err)
		return
	}
	renderJSON(w, http.StatusOK, p)
}

// HandleListTasks handles GET /api/projects/{id}/tasks?status=.
func (h *Handlers) HandleListTasks(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		renderError(w, r, err)
		return
	}
	out, err := ops.ListTasks(r.Context(), h.db, ops.ListTasksInput{
		ProjectID: id,
		Status:    r.URL.Query().Get("status"),
	})
	if err != nil {
		renderError(w, r, err)
		return
	}
	renderJSON(w, http.StatusOK, out)
}

// HandleAddTask handles POST /api/projects/{id}/tasks.
func (h *Handlers) HandleAddTask(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		renderError(w, r, err)
		return
	}
	var body struct {
		Description string `json:"description"`
	}
	if err := decodeJSON(r, &body); err != nil {
		renderError(w, r, err)
		return
	}
	task, err := ops.AddTask(r.Context(), h.db, ops.AddTaskInput{ProjectID: id, Description: body.Description})
	if err != nil {
		renderError(w, r, err)
		return
	}
	renderJSON(w, http.StatusCreated, task)
}

// HandleAddEntry handles POST /api/projects/{id}/entries.
func (h *Handlers) HandleAddEntry(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		renderError(w, r, err)
		return
	}
	var body struct {
		Kind  string `json:"kind"`
		Title string `json:"title"`
		Body  string `json:"body"`
	}
	if err := decodeJSON(r, &body); err != nil {
		renderError(w, r, err)
		return
	}
	e, err := ops.AddEntry(r.Context(), h.db, ops.AddEntryInput{
		ProjectID: id,
		Kind:      body.Kind,
		Title:     body.Title,
		Body:      body.Body,
	})
	if err != nil {
		renderError(w, r, err)
		return
	}
	renderJSON(w, http.StatusCreated, e)
}

// HandleTimeline handles GET /api/projects/{id}/timeline?limit=&offset=.
func (h *Handlers) HandleTimeline(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		renderError(w, r, err)
		return
	}
	out, err := ops.Timeline(r.Context(), h.db, ops.TimelineInput{
		ProjectID: id,
		Limit:     parseIntParam(r, "limit", ops.DefaultListLimit),
		Offset:    parseIntParam(r, "offset", 0),
	})
	if err != nil {
		renderError(w, r, err)
		return
	}
	renderJSON(w, http.StatusOK, out)
}

// NoteView is a daily note with its primary content rendered to HTML.
type NoteView struct {
	journal.DailyNote
	HTML template.HTML `json:"html"`
}

// HandleGetNote handles GET /api/projects/{id}/notes/{date}.
func (h *Handlers) HandleGetNote(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		renderError(w, r, err)
		return
	}
	note, err := ops.GetNote(r.Context(), h.db, ops.GetNoteInput{ProjectID: id, Date: chi.URLParam(r, "date")})
	if err != nil {
		renderError(w, r, err)
		return
	}
	renderJSON(w, http.StatusOK, NoteView{DailyNote: *note, HTML: renderMarkdown(note.Content)})
}
