package handler

import (
	"bufio"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/wagerloo/internal/domain"
	"github.com/alanyoungcy/wagerloo/internal/server/middleware"
	"github.com/alanyoungcy/wagerloo/internal/service"
)

// ProfileService is what the profile handler needs from the service layer.
type ProfileService interface {
	Create(ctx context.Context, userID string, in service.ProfileInput) (domain.Profile, domain.Market, error)
	Get(ctx context.Context, userID string) (domain.Profile, error)
	Update(ctx context.Context, userID string, in service.ProfileInput) (domain.Profile, error)
	OpenAsset(ctx context.Context, profileID, kind string) (io.ReadCloser, error)
}

// ProfileHandler serves the caller's profile and stored profile assets.
type ProfileHandler struct {
	profiles ProfileService
	logger   *slog.Logger
}

// NewProfileHandler creates a ProfileHandler.
func NewProfileHandler(profiles ProfileService, logger *slog.Logger) *ProfileHandler {
	return &ProfileHandler{profiles: profiles, logger: logger}
}

type profileRequest struct {
	Name           string `json:"name"`
	ProfilePicture string `json:"profilePicture"`
	ResumeURL      string `json:"resumeUrl"`
}

func (p profileRequest) input() service.ProfileInput {
	return service.ProfileInput{Name: p.Name, ProfilePicture: p.ProfilePicture, ResumeURL: p.ResumeURL}
}

// GetProfile returns the caller's profile.
// GET /api/profile
func (h *ProfileHandler) GetProfile(w http.ResponseWriter, r *http.Request) {
	p, err := h.profiles.Get(r.Context(), middleware.UserID(r.Context()))
	if err != nil {
		writeServiceError(w, r, h.logger, "get profile", err)
		return
	}
	writeJSON(w, http.StatusOK, newProfileView(p))
}

// CreateProfile creates the caller's profile and market.
// POST /api/profile
func (h *ProfileHandler) CreateProfile(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserID(r.Context())
	if userID == "" {
		writeServiceError(w, r, h.logger, "create profile", domain.ErrUnauthenticated)
		return
	}
	var req profileRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeServiceError(w, r, h.logger, "create profile", err)
		return
	}
	p, m, err := h.profiles.Create(r.Context(), userID, req.input())
	if errors.Is(err, domain.ErrAlreadyExists) {
		writeError(w, http.StatusConflict, "Profile already exists")
		return
	}
	if err != nil {
		writeServiceError(w, r, h.logger, "create profile", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":   true,
		"profileId": p.ID,
		"marketId":  m.ID,
	})
}

// UpdateProfile edits the caller's profile.
// PUT /api/profile
func (h *ProfileHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserID(r.Context())
	if userID == "" {
		writeServiceError(w, r, h.logger, "update profile", domain.ErrUnauthenticated)
		return
	}
	var req profileRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeServiceError(w, r, h.logger, "update profile", err)
		return
	}
	p, err := h.profiles.Update(r.Context(), userID, req.input())
	if err != nil {
		writeServiceError(w, r, h.logger, "update profile", err)
		return
	}
	writeJSON(w, http.StatusOK, newProfileView(p))
}

// Asset streams a stored picture or resume.
// GET /api/profiles/{id}/{kind}
func (h *ProfileHandler) Asset(w http.ResponseWriter, r *http.Request) {
	rc, err := h.profiles.OpenAsset(r.Context(), r.PathValue("id"), r.PathValue("kind"))
	if err != nil {
		writeServiceError(w, r, h.logger, "open asset", err)
		return
	}
	defer rc.Close()

	br := bufio.NewReader(rc)
	head, _ := br.Peek(512)
	w.Header().Set("Content-Type", http.DetectContentType(head))
	w.Header().Set("Cache-Control", "public, max-age=300")
	if _, err := io.Copy(w, br); err != nil {
		h.logger.WarnContext(r.Context(), "handler: stream asset interrupted", slog.String("error", err.Error()))
	}
}
