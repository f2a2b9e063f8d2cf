package api

import (
	"errors"
	"io"
	"io/fs"
	"net/http"
	"os"
	"path"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/hlog"

	"github.com/snarg/narrator/internal/storage"
)

// ReportsHandler serves exported render artifacts: report.html, report.json,
// output.wav and the per-fragment segments the report links to.
type ReportsHandler struct {
	store storage.ArtifactStore
}

func NewReportsHandler(store storage.ArtifactStore) *ReportsHandler {
	return &ReportsHandler{store: store}
}

func (h *ReportsHandler) ServeArtifact(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		WriteError(w, http.StatusServiceUnavailable, "artifact store not available")
		return
	}
	key := strings.TrimPrefix(path.Clean("/"+chi.URLParam(r, "*")), "/")
	if key == "" || key == "." {
		WriteError(w, http.StatusNotFound, "artifact not found")
		return
	}
	if !strings.Contains(key, "/") {
		// /reports/{script} opens the HTML report.
		http.Redirect(w, r, "/reports/"+key+"/report.html", http.StatusFound)
		return
	}

	// Local files go through ServeFile for range requests on audio.
	if p := h.store.LocalPath(key); p != "" {
		w.Header().Set("Content-Type", storage.ContentType(key))
		http.ServeFile(w, r, p)
		return
	}

	rc, err := h.store.Open(r.Context(), key)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) || os.IsNotExist(err) {
			WriteError(w, http.StatusNotFound, "artifact not found")
			return
		}
		hlog.FromRequest(r).Warn().Err(err).Str("key", key).Msg("artifact open failed")
		WriteError(w, http.StatusNotFound, "artifact not found")
		return
	}
	defer rc.Close()
	w.Header().Set("Content-Type", storage.ContentType(key))
	io.Copy(w, rc)
}

func (h *ReportsHandler) Routes(r chi.Router) {
	r.Get("/reports/*", h.ServeArtifact)
}
