package api

import (
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"strconv"
	"unicode/utf8"

	"github.com/gabriel-vasile/mimetype"
	"github.com/gorilla/mux"

	"github.com/alphabot-ai/storywall/internal/auth"
	"github.com/alphabot-ai/storywall/internal/feed"
	"github.com/alphabot-ai/storywall/internal/media"
)

// multipart parts beyond this stay on disk while parsing
const maxFormMemory = 8 << 20

type CreateStoryRequest struct {
	Text     string `json:"text"`
	Name     string `json:"name,omitempty"`
	Category string `json:"category,omitempty"`
	Title    string `json:"title,omitempty"`
}

type ListStoriesResponse struct {
	Stories  []StoryResponse `json:"stories"`
	HasMore  bool            `json:"hasMore"`
	Page     int             `json:"page"`
	PageSize int             `json:"pageSize"`
}

type DeleteResponse struct {
	OK bool `json:"ok"`
}

// ListStories handles GET /api/stories
func (h *Handler) ListStories(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	pageSize, _ := strconv.Atoi(q.Get("pageSize"))

	v := h.viewer(r)
	p, err := h.feed.List(r.Context(), v, page, pageSize)
	if err != nil {
		h.writeFeedError(w, r, err)
		return
	}

	resp := ListStoriesResponse{
		Stories:  make([]StoryResponse, 0, len(p.Stories)),
		HasMore:  p.HasMore,
		Page:     p.Page,
		PageSize: p.PageSize,
	}
	for i := range p.Stories {
		resp.Stories = append(resp.Stories, newStoryResponse(&p.Stories[i], v.SessionToken))
	}
	writeJSON(w, http.StatusOK, resp)
}

// GetStory handles GET /api/stories/{id}
func (h *Handler) GetStory(w http.ResponseWriter, r *http.Request) {
	v := h.viewer(r)
	story, err := h.feed.Get(r.Context(), v, mux.Vars(r)["id"])
	if err != nil {
		h.writeFeedError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newStoryResponse(story, v.SessionToken))
}

// CreateStory handles POST /api/stories. Browsers send multipart forms
// with an optional file part; API clients may send JSON without media.
func (h *Handler) CreateStory(w http.ResponseWriter, r *http.Request) {
	if !h.checkRateLimit(w, r, "story", h.cfg.StoryRateLimit) {
		return
	}

	maxMedia := h.cfg.MaxMediaSize
	if maxMedia <= 0 {
		maxMedia = media.DefaultMaxSize
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxMedia+maxFormMemory)

	var (
		req    CreateStoryRequest
		upload *media.Upload
	)
	contentType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if contentType == "application/json" {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeBodyError(w, err, "invalid JSON")
			return
		}
	} else {
		if err := r.ParseMultipartForm(maxFormMemory); err != nil {
			writeBodyError(w, err, "invalid form")
			return
		}
		defer r.MultipartForm.RemoveAll()

		req = CreateStoryRequest{
			Text:     r.FormValue("text"),
			Name:     r.FormValue("name"),
			Category: r.FormValue("category"),
			Title:    r.FormValue("title"),
		}

		var err error
		upload, err = readUpload(r, maxMedia)
		if err != nil {
			writeBodyError(w, err, "invalid file")
			return
		}
	}

	if h.cfg.MaxStoryLength > 0 && utf8.RuneCountInString(req.Text) > h.cfg.MaxStoryLength {
		writeError(w, http.StatusBadRequest, "text must be at most "+strconv.Itoa(h.cfg.MaxStoryLength)+" characters")
		return
	}

	token := auth.Token(r.Context())
	story, err := h.feed.Create(r.Context(), feed.StoryDraft{
		AuthorName: req.Name,
		Text:       req.Text,
		Category:   req.Category,
		Title:      req.Title,
		OwnerToken: token,
		Upload:     upload,
	})
	if err != nil {
		h.writeFeedError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, newStoryResponse(story, token))
}

// readUpload returns the file part, or nil when none or an empty one was
// sent. It reads one byte past the limit so oversized files are reported
// as too large rather than truncated.
func readUpload(r *http.Request, limit int64) (*media.Upload, error) {
	file, header, err := r.FormFile("file")
	if errors.Is(err, http.ErrMissingFile) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer file.Close()

	if header.Size == 0 {
		return nil, nil
	}
	data, err := io.ReadAll(io.LimitReader(file, limit+1))
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, nil
	}

	contentType := header.Header.Get("Content-Type")
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = mimetype.Detect(data).String()
	}
	return &media.Upload{Filename: header.Filename, ContentType: contentType, Data: data}, nil
}

func writeBodyError(w http.ResponseWriter, err error, message string) {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
		return
	}
	writeError(w, http.StatusBadRequest, message)
}

// DeleteStory handles DELETE /api/stories/{id}
func (h *Handler) DeleteStory(w http.ResponseWriter, r *http.Request) {
	err := h.feed.Delete(r.Context(), mux.Vars(r)["id"], h.adminCredential(r), auth.Token(r.Context()))
	if err != nil {
		h.writeFeedError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, DeleteResponse{OK: true})
}
