package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/rs/cors"

	"github.com/alphabot-ai/storywall/internal/auth"
)

// NewRouter wires the API, media and operational routes. Session cookies
// are only issued on /api.
func NewRouter(h *Handler, sessions *auth.Sessions) http.Handler {
	r := mux.NewRouter()
	logged := LogRequests(h.logger, h.metrics)
	r.Use(logged)

	r.HandleFunc("/health", h.Health).Methods(http.MethodGet)
	if h.metrics != nil {
		r.Handle("/metrics", h.metrics.Handler()).Methods(http.MethodGet)
	}
	r.HandleFunc("/media/{key}", h.ServeMedia).Methods(http.MethodGet, http.MethodHead)

	// API routes sit on the root router so a method mismatch reaches
	// MethodNotAllowedHandler; only they carry the session middleware.
	session := func(hf http.HandlerFunc) http.Handler {
		if sessions == nil {
			return hf
		}
		return sessions.Middleware(hf)
	}
	r.Handle("/api/stories", session(h.ListStories)).Methods(http.MethodGet)
	r.Handle("/api/stories", session(h.CreateStory)).Methods(http.MethodPost)
	r.Handle("/api/stories/{id}", session(h.GetStory)).Methods(http.MethodGet)
	r.Handle("/api/stories/{id}", session(h.DeleteStory)).Methods(http.MethodDelete)
	r.Handle("/api/stories/{id}/comments", session(h.AddComment)).Methods(http.MethodPost)
	r.Handle("/api/stories/{id}/hidden", session(h.SetHidden)).Methods(http.MethodPost)
	r.Handle("/api/admin/check", session(h.AdminCheck)).Methods(http.MethodPost)

	r.NotFoundHandler = logged(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "not found")
	}))
	r.MethodNotAllowedHandler = logged(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}))

	origins := h.cfg.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	c := cors.New(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodDelete},
		AllowedHeaders:   []string{"Content-Type", "Authorization", "X-Admin-Secret"},
		AllowCredentials: true,
	})
	return c.Handler(r)
}

// Health handles GET /health
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}
