package api

import (
	"errors"
	"io"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/alphabot-ai/storywall/internal/media"
)

// ServeMedia handles GET /media/{key} for media backends that are not
// publicly reachable.
func (h *Handler) ServeMedia(w http.ResponseWriter, r *http.Request) {
	key := mux.Vars(r)["key"]
	if h.media == nil || !media.ValidKey(key) {
		writeError(w, http.StatusNotFound, "media not found")
		return
	}

	body, contentType, err := h.media.Open(r.Context(), key)
	if errors.Is(err, media.ErrNotFound) {
		writeError(w, http.StatusNotFound, "media not found")
		return
	}
	if err != nil {
		h.logger.Error("media read failed", "key", key, "error", err)
		writeError(w, http.StatusServiceUnavailable, "media unavailable")
		return
	}
	defer body.Close()

	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("X-Content-Type-Options", "nosniff")
	// keys are never reused
	w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")
	w.WriteHeader(http.StatusOK)
	if r.Method == http.MethodHead {
		return
	}
	if _, err := io.Copy(w, body); err != nil {
		h.logger.Debug("media copy interrupted", "key", key, "error", err)
	}
}
