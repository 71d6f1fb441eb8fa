package controller

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"OpenCargoRegistry/db"
	"OpenCargoRegistry/middleware"
	"OpenCargoRegistry/registry"
	"OpenCargoRegistry/responses"
)

const maxJSONBody = 1 << 20

func printCallInfo(action string, r *http.Request) {
	if slog.Default().Enabled(r.Context(), slog.LevelDebug) {
		slog.Debug("Call", "action", action, "method", r.Method, "path", r.URL.Path, "query", r.URL.RawQuery, "remote", r.RemoteAddr)
		return
	}
	slog.Info("Call", "action", action, "method", r.Method, "path", r.URL.Path)
}

func writeErrorWithStatusCode(msg string, w http.ResponseWriter, status int) error {
	header := w.Header()
	header.Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(responses.NewErrors(msg))
}

// writeRegistryError translates a registry failure into the error envelope.
// Server side failures are logged with their cause, which is not sent.
func writeRegistryError(w http.ResponseWriter, err error) {
	kind := registry.KindOf(err)
	status := statusOf(kind)
	if status >= http.StatusInternalServerError {
		slog.Error("Request failed", "kind", kind, "error", err.Error())
	} else if slog.Default().Enabled(context.TODO(), slog.LevelDebug) {
		slog.Debug("Request rejected", "kind", kind, "error", err.Error())
	}
	if e := writeErrorWithStatusCode(registry.DetailOf(err), w, status); e != nil {
		slog.Error("Error writing response:", "error", e)
	}
}

func statusOf(kind registry.Kind) int {
	switch kind {
	case registry.KindUnauthorized:
		return http.StatusUnauthorized
	case registry.KindForbidden:
		return http.StatusForbidden
	case registry.KindMalformedRequest,
		registry.KindInvalidName,
		registry.KindInvalidVersion,
		registry.KindInvalidCategory,
		registry.KindInvalidBadge,
		registry.KindInvalidRequest:
		return http.StatusBadRequest
	case registry.KindCrateNotFound,
		registry.KindVersionNotFound,
		registry.KindUserNotFound,
		registry.KindNotFound:
		return http.StatusNotFound
	case registry.KindGone:
		return http.StatusGone
	case registry.KindVersionNotGreater,
		registry.KindConflict,
		registry.KindIndexConflict:
		return http.StatusConflict
	case registry.KindTooLarge:
		return http.StatusRequestEntityTooLarge
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Error("Error writing response:", "error", err)
	}
}

func writeOk(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusOK, responses.Ok{Ok: true, Msg: msg})
}

// decodeBody reads a bounded JSON request body into v.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	body := http.MaxBytesReader(w, r.Body, maxJSONBody)
	if err := json.NewDecoder(body).Decode(v); err != nil && err != io.EOF {
		if e := writeErrorWithStatusCode(fmt.Sprintf("invalid request body: %v", err), w, http.StatusBadRequest); e != nil {
			slog.Error("Error writing response:", "error", e)
		}
		return false
	}
	return true
}

// positiveParam parses an optional positive integer query parameter.
func positiveParam(r *http.Request, name string, fallback int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value < 1 {
		return 0, fmt.Errorf("%s must be a positive integer", name)
	}
	return value, nil
}

// currentAuthor is the author the middleware authenticated.
func currentAuthor(w http.ResponseWriter, r *http.Request) (db.Author, bool) {
	author, ok := middleware.AuthorFromContext(r.Context())
	if !ok {
		slog.Error("Authenticated route without author", "path", r.URL.Path)
		if e := writeErrorWithStatusCode("this action requires authentication with a valid token", w, http.StatusUnauthorized); e != nil {
			slog.Error("Error writing response:", "error", e)
		}
	}
	return author, ok
}
