package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"OpenCargoRegistry/authenticator"
	"OpenCargoRegistry/db"
	"OpenCargoRegistry/responses"
)

// SessionCookie carries the id of a login session.
const SessionCookie = "session"

type contextKey int

const authorKey contextKey = iota

type Authentication struct {
	auth  authenticator.Authenticator
	muxer *http.ServeMux
}

// NewAuthentication wraps router so that routes registered through
// HandleFunc require an authenticated author. Routes registered on the
// router directly stay public.
func NewAuthentication(auth authenticator.Authenticator, router *http.ServeMux) *Authentication {
	return &Authentication{
		auth:  auth,
		muxer: router,
	}
}

func (a *Authentication) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	a.muxer.ServeHTTP(w, r)
}

func (a *Authentication) HandleFunc(pattern string, handler http.HandlerFunc) {
	a.muxer.HandleFunc(pattern, a.authenticate(handler))
}

// authenticate resolves the Authorization header, or the session cookie
// when there is no header, and puts the author into the request context.
// Requests without valid credentials get a 401.
func (a *Authentication) authenticate(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		author, err := a.resolve(r)
		if errors.Is(err, authenticator.ErrUnauthorized) {
			slog.Info("Request not authorized", "method", r.Method, "path", r.URL.Path)
			writeError(w, http.StatusUnauthorized, "this action requires authentication with a valid token")
			return
		}
		if err != nil {
			slog.Error("Error authenticating request:", "error", err)
			writeError(w, http.StatusInternalServerError, "authentication failed")
			return
		}

		if slog.Default().Enabled(r.Context(), slog.LevelDebug) {
			slog.Debug("Request authorized", "author", author.Email)
		}
		next.ServeHTTP(w, r.WithContext(WithAuthor(r.Context(), author)))
	}
}

func (a *Authentication) resolve(r *http.Request) (db.Author, error) {
	if header := r.Header.Get("Authorization"); header != "" {
		return a.auth.AuthenticateToken(r.Context(), header)
	}
	if cookie, err := r.Cookie(SessionCookie); err == nil {
		return a.auth.AuthenticateSession(r.Context(), cookie.Value)
	}
	return db.Author{}, authenticator.ErrUnauthorized
}

func WithAuthor(ctx context.Context, author db.Author) context.Context {
	return context.WithValue(ctx, authorKey, author)
}

// AuthorFromContext returns the author authenticated for this request.
func AuthorFromContext(ctx context.Context) (db.Author, bool) {
	author, ok := ctx.Value(authorKey).(db.Author)
	return author, ok
}

func writeError(w http.ResponseWriter, status int, detail string) {
	header := w.Header()
	header.Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(responses.NewErrors(detail)); err != nil {
		slog.Error("Error writing response:", "error", err)
	}
}
