package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/wagerloo/internal/domain"
	"github.com/alanyoungcy/wagerloo/internal/service"
)

// AccountService is what the auth handler needs from the service layer.
type AccountService interface {
	Register(ctx context.Context, req service.RegisterRequest) (domain.User, error)
	Verify(ctx context.Context, token string) error
	Login(ctx context.Context, email, password string) (service.Session, error)
}

// AuthHandler serves registration, verification and login.
type AuthHandler struct {
	accounts AccountService
	logger   *slog.Logger
}

// NewAuthHandler creates an AuthHandler.
func NewAuthHandler(accounts AccountService, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{accounts: accounts, logger: logger}
}

type registerRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Register creates an account and sends the verification email.
// POST /api/auth/register
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeServiceError(w, r, h.logger, "register", err)
		return
	}

	_, err := h.accounts.Register(r.Context(), service.RegisterRequest{
		Name:     req.Name,
		Email:    req.Email,
		Password: req.Password,
	})
	switch {
	case errors.Is(err, domain.ErrAlreadyExists):
		writeError(w, http.StatusBadRequest, "User already exists")
		return
	case err != nil:
		writeServiceError(w, r, h.logger, "register", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "Registration successful. Please check your email to verify your account.",
	})
}

// VerifyLink handles the link from the verification email and redirects
// to the front page with the outcome in the query string.
// GET /api/auth/verify?token=
func (h *AuthHandler) VerifyLink(w http.ResponseWriter, r *http.Request) {
	target := "/?verified=true"
	switch err := h.accounts.Verify(r.Context(), r.URL.Query().Get("token")); {
	case err == nil:
	case errors.Is(err, domain.ErrInvalidInput):
		target = "/?error=invalid-token"
	case errors.Is(err, domain.ErrInvalidToken):
		target = "/?verified=already"
	default:
		h.logger.ErrorContext(r.Context(), "handler: verify failed", slog.String("error", err.Error()))
		target = "/?error=verification-failed"
	}
	http.Redirect(w, r, target, http.StatusSeeOther)
}

// Verify consumes a token posted as JSON.
// POST /api/auth/verify
func (h *AuthHandler) Verify(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Token string `json:"token"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeServiceError(w, r, h.logger, "verify", err)
		return
	}
	if err := h.accounts.Verify(r.Context(), req.Token); err != nil {
		writeServiceError(w, r, h.logger, "verify", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "Email verified successfully",
	})
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token         string    `json:"token"`
	ExpiresAt     time.Time `json:"expiresAt"`
	UserID        string    `json:"userId"`
	Name          string    `json:"name"`
	Email         string    `json:"email"`
	EmailVerified bool      `json:"emailVerified"`
	HasProfile    bool      `json:"hasProfile"`
}

// Login exchanges credentials for a bearer token.
// POST /api/auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeServiceError(w, r, h.logger, "login", err)
		return
	}
	s, err := h.accounts.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		writeServiceError(w, r, h.logger, "login", err)
		return
	}
	writeJSON(w, http.StatusOK, loginResponse{
		Token:         s.Token,
		ExpiresAt:     s.ExpiresAt,
		UserID:        s.User.ID,
		Name:          s.User.Name,
		Email:         s.User.Email,
		EmailVerified: s.EmailVerified,
		HasProfile:    s.HasProfile,
	})
}
