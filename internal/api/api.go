package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/alphabot-ai/storywall/internal/auth"
	"github.com/alphabot-ai/storywall/internal/config"
	"github.com/alphabot-ai/storywall/internal/feed"
	"github.com/alphabot-ai/storywall/internal/media"
	"github.com/alphabot-ai/storywall/internal/metrics"
	"github.com/alphabot-ai/storywall/internal/ratelimit"
)

// Options carries the optional collaborators of a Handler.
type Options struct {
	// Media serves objects for backends without a public endpoint.
	Media   media.ObjectReader
	Logger  *slog.Logger
	Metrics *metrics.Metrics
}

// Handler holds dependencies for API handlers
type Handler struct {
	feed    *feed.Service
	limiter ratelimit.Limiter
	cfg     *config.Config
	media   media.ObjectReader
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// NewHandler creates a new API handler
func NewHandler(svc *feed.Service, limiter ratelimit.Limiter, cfg *config.Config, opts Options) *Handler {
	h := &Handler{
		feed:    svc,
		limiter: limiter,
		cfg:     cfg,
		media:   opts.Media,
		logger:  opts.Logger,
		metrics: opts.Metrics,
	}
	if h.logger == nil {
		h.logger = slog.Default()
	}
	return h
}

// Response helpers

type ErrorResponse struct {
	Error      string `json:"error"`
	RetryAfter int    `json:"retryAfter,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, ErrorResponse{Error: message})
}

func writeRateLimited(w http.ResponseWriter, retryAfter time.Duration) {
	seconds := int(math.Ceil(retryAfter.Seconds()))
	w.Header().Set("Retry-After", strconv.Itoa(seconds))
	writeJSON(w, http.StatusTooManyRequests, ErrorResponse{
		Error:      "rate limit exceeded",
		RetryAfter: seconds,
	})
}

// writeFeedError maps a feed error onto a status code. Hidden and missing
// stories produce the same response.
func (h *Handler) writeFeedError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, media.ErrTooLarge):
		writeError(w, http.StatusRequestEntityTooLarge, err.Error())
	case feed.IsValidation(err):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, feed.ErrUnauthorized):
		writeError(w, http.StatusUnauthorized, "unauthorized")
	case errors.Is(err, feed.ErrNotFound):
		writeError(w, http.StatusNotFound, "story not found")
	case errors.Is(err, feed.ErrConflict):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, feed.ErrStoreUnavailable):
		h.logger.Error("store unavailable", "method", r.Method, "path", r.URL.Path, "error", err)
		writeError(w, http.StatusServiceUnavailable, "service unavailable, try again")
	default:
		h.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

// Request helpers

// getClientIP keys rate limits. Forwarding headers are client supplied,
// so they are only read when the deployment says a proxy sets them.
func (h *Handler) getClientIP(r *http.Request) string {
	if h.cfg != nil && h.cfg.TrustProxyHeaders {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			parts := strings.Split(xff, ",")
			return strings.TrimSpace(parts[0])
		}
		if xri := r.Header.Get("X-Real-IP"); xri != "" {
			return strings.TrimSpace(xri)
		}
	}
	addr := r.RemoteAddr
	if idx := strings.LastIndex(addr, ":"); idx != -1 {
		return addr[:idx]
	}
	return addr
}

// adminCredential returns the admin secret presented with the request,
// from X-Admin-Secret or a bearer token.
func (h *Handler) adminCredential(r *http.Request) string {
	if secret := r.Header.Get("X-Admin-Secret"); secret != "" {
		return secret
	}
	if authHeader := r.Header.Get("Authorization"); strings.HasPrefix(authHeader, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
	}
	return ""
}

func (h *Handler) viewer(r *http.Request) feed.Viewer {
	return h.feed.Policy().Viewer(h.adminCredential(r), auth.Token(r.Context()))
}

// checkRateLimit consumes one action for the client. Admins are never
// throttled.
func (h *Handler) checkRateLimit(w http.ResponseWriter, r *http.Request, action string, limit int) bool {
	if h.limiter == nil || h.feed.Policy().IsAdmin(h.adminCredential(r)) {
		return true
	}

	key := action + ":" + h.getClientIP(r)
	ok, retryAfter := h.limiter.Allow(key, ratelimit.Rule{Limit: limit, Window: h.cfg.RateLimitWindow})
	if !ok {
		h.logger.Info("rate limited", "action", action, "client", h.getClientIP(r))
		writeRateLimited(w, retryAfter)
	}
	return ok
}

// StoryResponse is a story as clients see it. The owner token stays on
// the server; Owned tells the caller whether their session created it.
type StoryResponse struct {
	ID         string         `json:"id"`
	AuthorName string         `json:"authorName"`
	Text       string         `json:"text"`
	Media      *media.Ref     `json:"media,omitempty"`
	Category   string         `json:"category,omitempty"`
	Title      string         `json:"title,omitempty"`
	CreatedAt  time.Time      `json:"createdAt"`
	Hidden     bool           `json:"hidden"`
	Owned      bool           `json:"owned,omitempty"`
	Comments   []feed.Comment `json:"comments"`
}

func newStoryResponse(s *feed.Story, sessionToken string) StoryResponse {
	comments := s.Comments
	if comments == nil {
		comments = []feed.Comment{}
	}
	return StoryResponse{
		ID:         s.ID,
		AuthorName: s.AuthorName,
		Text:       s.Text,
		Media:      s.Media,
		Category:   s.Category,
		Title:      s.Title,
		CreatedAt:  s.CreatedAt,
		Hidden:     s.Hidden,
		Owned:      s.OwnedBy(sessionToken),
		Comments:   comments,
	}
}
