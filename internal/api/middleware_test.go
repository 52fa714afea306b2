package api

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alphabot-ai/storywall/internal/config"
	"github.com/alphabot-ai/storywall/internal/metrics"
)

func TestLogRequests(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	m := metrics.New()

	r := mux.NewRouter()
	r.Use(LogRequests(logger, m))
	r.HandleFunc("/api/stories/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}).Methods(http.MethodGet)

	req := httptest.NewRequest(http.MethodGet, "/api/stories/abc", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusTeapot, rec.Code)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "request", entry["msg"])
	assert.Equal(t, "GET", entry["method"])
	assert.Equal(t, "/api/stories/abc", entry["path"])
	assert.Equal(t, "/api/stories/{id}", entry["route"])
	assert.EqualValues(t, http.StatusTeapot, entry["status"])

	n, err := testutil.GatherAndCount(m.Registry(), "storywall_http_requests_total")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestLogRequestsDefaultStatus(t *testing.T) {
	methods := []string{
		http.MethodGet,
		http.MethodPost,
		http.MethodDelete,
	}

	for _, method := range methods {
		t.Run(method, func(t *testing.T) {
			var buf bytes.Buffer
			logger := slog.New(slog.NewJSONHandler(&buf, nil))

			// handler writes a body without an explicit status
			h := LogRequests(logger, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte("ok"))
			}))

			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(method, "/somewhere", nil))

			var entry map[string]any
			require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
			assert.Equal(t, method, entry["method"])
			assert.Equal(t, "unmatched", entry["route"])
			assert.EqualValues(t, http.StatusOK, entry["status"])
		})
	}
}

func TestGetClientIP(t *testing.T) {
	direct := &Handler{cfg: &config.Config{}}
	proxied := &Handler{cfg: &config.Config{TrustProxyHeaders: true}}

	tests := []struct {
		name    string
		h       *Handler
		headers map[string]string
		remote  string
		want    string
	}{
		{"remote addr", direct, nil, "10.0.0.1:5555", "10.0.0.1"},
		{"forwarded for ignored", direct, map[string]string{"X-Forwarded-For": "1.2.3.4"}, "10.0.0.1:5555", "10.0.0.1"},
		{"real ip ignored", direct, map[string]string{"X-Real-IP": "5.6.7.8"}, "10.0.0.1:5555", "10.0.0.1"},
		{"nil config", &Handler{}, map[string]string{"X-Forwarded-For": "1.2.3.4"}, "10.0.0.1:5555", "10.0.0.1"},
		{"trusted forwarded for", proxied, map[string]string{"X-Forwarded-For": "1.2.3.4, 10.0.0.1"}, "10.0.0.1:5555", "1.2.3.4"},
		{"trusted real ip", proxied, map[string]string{"X-Real-IP": "5.6.7.8"}, "10.0.0.1:5555", "5.6.7.8"},
		{"trusted without headers", proxied, nil, "10.0.0.1:5555", "10.0.0.1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remote
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			assert.Equal(t, tt.want, tt.h.getClientIP(req))
		})
	}
}

func TestAdminCredential(t *testing.T) {
	h := &Handler{}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	assert.Empty(t, h.adminCredential(req))

	req.Header.Set("Authorization", "Bearer  s3cret ")
	assert.Equal(t, "s3cret", h.adminCredential(req))

	req.Header.Set("X-Admin-Secret", "header-wins")
	assert.Equal(t, "header-wins", h.adminCredential(req))

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Basic abc")
	assert.Empty(t, h.adminCredential(req))
}
