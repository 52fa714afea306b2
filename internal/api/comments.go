package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"unicode/utf8"

	"github.com/gorilla/mux"

	"github.com/alphabot-ai/storywall/internal/feed"
)

type CreateCommentRequest struct {
	Text string `json:"text"`
	Name string `json:"name,omitempty"`
}

// AddComment handles POST /api/stories/{id}/comments
func (h *Handler) AddComment(w http.ResponseWriter, r *http.Request) {
	if !h.checkRateLimit(w, r, "comment", h.cfg.CommentRateLimit) {
		return
	}

	var req CreateCommentRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 64<<10)).Decode(&req); err != nil {
		writeBodyError(w, err, "invalid JSON")
		return
	}

	if h.cfg.MaxCommentLength > 0 && utf8.RuneCountInString(req.Text) > h.cfg.MaxCommentLength {
		writeError(w, http.StatusBadRequest, "text must be at most "+strconv.Itoa(h.cfg.MaxCommentLength)+" characters")
		return
	}

	comment, err := h.feed.AddComment(r.Context(), h.viewer(r), mux.Vars(r)["id"], feed.CommentDraft{
		AuthorName: req.Name,
		Text:       req.Text,
	})
	if err != nil {
		h.writeFeedError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, comment)
}
