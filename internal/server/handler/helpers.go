// Package handler implements the HTTP endpoints.
package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/wagerloo/internal/domain"
)

// maxBodyBytes bounds JSON request bodies. Profile bodies carry data: URLs,
// so it is generous.
const maxBodyBytes = 12 << 20

func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	w.Write(data)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// decodeJSON reads a JSON body into dst. Any failure is ErrInvalidInput.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	defer body.Close()
	if err := json.NewDecoder(body).Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
	}
	return nil
}

// statusFor maps domain errors to HTTP status codes and client messages.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrUnauthenticated):
		return http.StatusUnauthorized, "Unauthorized"
	case errors.Is(err, domain.ErrInvalidInput):
		return http.StatusBadRequest, "Invalid request"
	case errors.Is(err, domain.ErrEmailUnverified):
		return http.StatusForbidden, "Please verify your email before voting"
	case errors.Is(err, domain.ErrDuplicateVote):
		return http.StatusConflict, "You've already voted on this profile"
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, "Not found"
	case errors.Is(err, domain.ErrSelfVoteForbidden):
		return http.StatusForbidden, "You cannot vote on your own profile"
	case errors.Is(err, domain.ErrStorageConflict):
		return http.StatusServiceUnavailable, "Please try again"
	case errors.Is(err, domain.ErrRateLimited):
		return http.StatusTooManyRequests, "Too many requests"
	case errors.Is(err, domain.ErrAlreadyExists):
		return http.StatusConflict, "Already exists"
	case errors.Is(err, domain.ErrInvalidCredentials):
		return http.StatusUnauthorized, "Invalid email or password"
	case errors.Is(err, domain.ErrEmailDomain):
		return http.StatusBadRequest, "Email domain not allowed"
	case errors.Is(err, domain.ErrInvalidToken):
		return http.StatusBadRequest, "Invalid or expired token"
	default:
		return http.StatusInternalServerError, "Internal server error"
	}
}

// WriteError writes err as a JSON error with the status statusFor picks.
// Middleware uses it to reject requests before they reach a handler.
func WriteError(w http.ResponseWriter, _ *http.Request, err error) {
	status, msg := statusFor(err)
	writeError(w, status, msg)
}

// writeServiceError writes err as a JSON error, logging unexpected failures.
func writeServiceError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, op string, err error) {
	status, msg := statusFor(err)
	if status == http.StatusInternalServerError {
		logger.ErrorContext(r.Context(), "handler: "+op+" failed", slog.String("error", err.Error()))
	}
	writeError(w, status, msg)
}
