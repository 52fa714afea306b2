// Package auth issues the anonymous session token that ties a story to
// the browser that posted it.
package auth

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/securecookie"
	"github.com/gorilla/sessions"
)

// CookieName is the name of the session cookie.
const CookieName = "storywall"

const tokenValue = "token"

type contextKey struct{}

// SessionConfig configures the cookie store. An empty Secret generates a
// random key, so sessions do not survive a restart.
type SessionConfig struct {
	Secret string
	MaxAge time.Duration
	Secure bool
	Logger *slog.Logger
}

// Sessions issues and reads signed session cookies.
type Sessions struct {
	store  *sessions.CookieStore
	logger *slog.Logger
}

func NewSessions(cfg SessionConfig) (*Sessions, error) {
	key := []byte(cfg.Secret)
	if len(key) == 0 {
		key = securecookie.GenerateRandomKey(32)
		if key == nil {
			return nil, errors.New("generate session key")
		}
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Secret == "" {
		logger.Warn("SESSION_SECRET not set, sessions reset on restart")
	}

	store := sessions.NewCookieStore(key)
	if cfg.MaxAge > 0 {
		store.MaxAge(int(cfg.MaxAge.Seconds()))
	}
	store.Options.Path = "/"
	store.Options.HttpOnly = true
	store.Options.Secure = cfg.Secure
	store.Options.SameSite = http.SameSiteLaxMode

	return &Sessions{store: store, logger: logger}, nil
}

// Middleware makes sure every request carries a session token, issuing a
// new cookie on first contact or when the presented one does not verify.
func (s *Sessions) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, err := s.ensure(w, r)
		if err != nil {
			s.logger.Warn("session cookie not saved", "error", err)
		}
		next.ServeHTTP(w, r.WithContext(WithToken(r.Context(), token)))
	})
}

func (s *Sessions) ensure(w http.ResponseWriter, r *http.Request) (string, error) {
	// A cookie that fails to decode yields a fresh session.
	session, _ := s.store.Get(r, CookieName)
	if token, ok := session.Values[tokenValue].(string); ok && token != "" {
		return token, nil
	}

	token := uuid.NewString()
	session.Values[tokenValue] = token
	return token, session.Save(r, w)
}

// WithToken returns a context carrying the session token.
func WithToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, contextKey{}, token)
}

// Token returns the session token placed in ctx by the middleware, or ""
// when there is none.
func Token(ctx context.Context) string {
	token, _ := ctx.Value(contextKey{}).(string)
	return token
}
