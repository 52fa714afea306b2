package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/gorilla/mux"
)

type HideRequest struct {
	// Hidden sets the flag; when absent the flag is toggled.
	Hidden *bool `json:"hidden,omitempty"`
}

type HideResponse struct {
	ID     string `json:"id"`
	Hidden bool   `json:"hidden"`
}

type AdminCheckRequest struct {
	Password string `json:"password"`
}

type AdminCheckResponse struct {
	IsAdmin bool `json:"isAdmin"`
}

// SetHidden handles POST /api/stories/{id}/hidden
func (h *Handler) SetHidden(w http.ResponseWriter, r *http.Request) {
	var req HideRequest
	err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 4<<10)).Decode(&req)
	if err != nil && !errors.Is(err, io.EOF) {
		writeBodyError(w, err, "invalid JSON")
		return
	}

	id := mux.Vars(r)["id"]
	hidden, err := h.feed.SetHidden(r.Context(), id, req.Hidden, h.adminCredential(r))
	if err != nil {
		h.writeFeedError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, HideResponse{ID: id, Hidden: hidden})
}

// AdminCheck handles POST /api/admin/check
func (h *Handler) AdminCheck(w http.ResponseWriter, r *http.Request) {
	var req AdminCheckRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 4<<10)).Decode(&req); err != nil {
		writeBodyError(w, err, "invalid JSON")
		return
	}

	writeJSON(w, http.StatusOK, AdminCheckResponse{IsAdmin: h.feed.Policy().IsAdmin(req.Password)})
}
