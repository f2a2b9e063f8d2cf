package api

import (
	"errors"
	"io/fs"
	"net/http"
	"path/filepath"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/hlog"

	"github.com/snarg/narrator/internal/render"
	"github.com/snarg/narrator/internal/script"
)

// RenderQueue is the part of render.Queue the API uses.
type RenderQueue interface {
	Enqueue(scriptName, path, source string) (render.Job, error)
	Status(id string) (render.JobStatus, bool)
	Stats() render.QueueStats
}

type ScriptsHandler struct {
	dir   string
	queue RenderQueue
}

func NewScriptsHandler(dir string, queue RenderQueue) *ScriptsHandler {
	return &ScriptsHandler{dir: dir, queue: queue}
}

// ScriptSummary describes one script file in the scripts directory.
type ScriptSummary struct {
	Name     string `json:"name"`
	File     string `json:"file"`
	Sections int    `json:"sections"`
	Clauses  int    `json:"clauses"`
	Error    string `json:"error,omitempty"`
}

// ListScripts returns every script file, including ones that fail to load.
func (h *ScriptsHandler) ListScripts(w http.ResponseWriter, r *http.Request) {
	paths, err := script.Discover(h.dir)
	if err != nil {
		hlog.FromRequest(r).Error().Err(err).Str("dir", h.dir).Msg("script discovery failed")
		WriteError(w, http.StatusInternalServerError, "failed to list scripts")
		return
	}

	scripts := make([]ScriptSummary, 0, len(paths))
	for _, p := range paths {
		rel, _ := filepath.Rel(h.dir, p)
		sum := ScriptSummary{File: filepath.ToSlash(rel)}
		s, err := script.Load(p)
		if err != nil {
			sum.Error = err.Error()
		} else {
			sum.Name = s.Name
			sum.Sections = len(s.Sections)
			sum.Clauses = s.ClauseCount()
		}
		scripts = append(scripts, sum)
	}
	WriteJSON(w, http.StatusOK, map[string]any{"scripts": scripts, "total": len(scripts)})
}

// RenderScript queues a render and answers 202 with the job.
func (h *ScriptsHandler) RenderScript(w http.ResponseWriter, r *http.Request) {
	if h.queue == nil {
		WriteError(w, http.StatusServiceUnavailable, "rendering not available")
		return
	}
	name := chi.URLParam(r, "name")
	path, err := script.Find(h.dir, name)
	if errors.Is(err, fs.ErrNotExist) {
		WriteError(w, http.StatusNotFound, "script not found")
		return
	}
	if err != nil {
		WriteErrorDetail(w, http.StatusInternalServerError, "failed to find script", err.Error())
		return
	}
	s, err := script.Load(path)
	if err != nil {
		WriteErrorDetail(w, http.StatusUnprocessableEntity, "invalid script", err.Error())
		return
	}

	job, err := h.queue.Enqueue(s.Name, path, "api")
	switch {
	case errors.Is(err, render.ErrQueueFull):
		w.Header().Set("Retry-After", "30")
		WriteError(w, http.StatusServiceUnavailable, "render queue full")
		return
	case err != nil:
		WriteError(w, http.StatusServiceUnavailable, err.Error())
		return
	}

	hlog.FromRequest(r).Info().Str("job_id", job.ID).Str("script", s.Name).Msg("render queued")
	w.Header().Set("Location", "/api/v1/renders/"+job.ID)
	WriteJSON(w, http.StatusAccepted, job)
}

func (h *ScriptsHandler) Routes(r chi.Router) {
	r.Get("/scripts", h.ListScripts)
	r.Post("/scripts/{name}/render", h.RenderScript)
}

type RendersHandler struct {
	queue RenderQueue
}

func NewRendersHandler(queue RenderQueue) *RendersHandler {
	return &RendersHandler{queue: queue}
}

// GetRender returns a render job's status.
func (h *RendersHandler) GetRender(w http.ResponseWriter, r *http.Request) {
	if h.queue == nil {
		WriteError(w, http.StatusServiceUnavailable, "rendering not available")
		return
	}
	st, ok := h.queue.Status(chi.URLParam(r, "id"))
	if !ok {
		WriteError(w, http.StatusNotFound, "render not found")
		return
	}
	WriteJSON(w, http.StatusOK, st)
}

func (h *RendersHandler) Routes(r chi.Router) {
	r.Get("/renders/{id}", h.GetRender)
}
