package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/wagerloo/internal/crypto"
	"github.com/alanyoungcy/wagerloo/internal/domain"
)

// VerificationMailer delivers the link a new user follows to verify their
// email.
type VerificationMailer interface {
	SendVerification(ctx context.Context, name, email, token string) error
}

// TokenIssuer signs session tokens.
type TokenIssuer interface {
	Sign(userID, email string) (token string, expiresAt time.Time, err error)
}

// AccountConfig tunes registration.
type AccountConfig struct {
	// AllowedEmailDomain restricts registration, e.g. "uwaterloo.ca". Empty
	// allows any domain.
	AllowedEmailDomain string
	BcryptCost         int
	MinPasswordLength  int
}

// RegisterRequest is the registration input.
type RegisterRequest struct {
	Name     string
	Email    string
	Password string
}

// Session is the result of a successful login.
type Session struct {
	Token         string
	ExpiresAt     time.Time
	User          domain.User
	HasProfile    bool
	EmailVerified bool
}

// AccountService handles registration, email verification and login.
type AccountService struct {
	users    domain.UserStore
	profiles domain.ProfileStore
	mailer   VerificationMailer
	tokens   TokenIssuer
	cfg      AccountConfig
	logger   *slog.Logger
}

// NewAccountService creates an AccountService.
func NewAccountService(
	users domain.UserStore,
	profiles domain.ProfileStore,
	mailer VerificationMailer,
	tokens TokenIssuer,
	cfg AccountConfig,
	logger *slog.Logger,
) *AccountService {
	return &AccountService{
		users:    users,
		profiles: profiles,
		mailer:   mailer,
		tokens:   tokens,
		cfg:      cfg,
		logger:   logger.With(slog.String("component", "account_service")),
	}
}

// Register creates an unverified account and sends the verification email.
// A failed email does not undo the registration.
func (s *AccountService) Register(ctx context.Context, req RegisterRequest) (domain.User, error) {
	name := strings.TrimSpace(req.Name)
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if name == "" || email == "" || len(req.Password) < s.cfg.MinPasswordLength {
		return domain.User{}, domain.ErrInvalidInput
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return domain.User{}, domain.ErrInvalidInput
	}
	if d := s.cfg.AllowedEmailDomain; d != "" && !strings.HasSuffix(email, "@"+strings.ToLower(d)) {
		return domain.User{}, domain.ErrEmailDomain
	}

	hash, err := crypto.HashPassword(req.Password, s.cfg.BcryptCost)
	if err != nil {
		return domain.User{}, fmt.Errorf("account_service: %w", err)
	}
	token, err := crypto.NewVerificationToken()
	if err != nil {
		return domain.User{}, fmt.Errorf("account_service: %w", err)
	}

	user := domain.User{
		ID:                uuid.NewString(),
		Name:              name,
		Email:             email,
		PasswordHash:      hash,
		VerificationToken: token,
	}
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, domain.ErrAlreadyExists) {
			return domain.User{}, domain.ErrAlreadyExists
		}
		return domain.User{}, fmt.Errorf("account_service: create user: %w", err)
	}

	if err := s.mailer.SendVerification(ctx, name, email, token); err != nil {
		s.logger.WarnContext(ctx, "account_service: verification email not delivered",
			slog.String("user_id", user.ID),
			slog.String("error", err.Error()),
		)
	}

	s.logger.InfoContext(ctx, "account_service: registered", slog.String("user_id", user.ID))
	return user, nil
}

// Verify consumes a verification token. An empty token is ErrInvalidInput;
// a token matching no unverified user, whether consumed or bogus, is
// ErrInvalidToken.
func (s *AccountService) Verify(ctx context.Context, token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return domain.ErrInvalidInput
	}

	user, err := s.users.GetByVerificationToken(ctx, token)
	if errors.Is(err, domain.ErrNotFound) {
		return domain.ErrInvalidToken
	}
	if err != nil {
		return fmt.Errorf("account_service: find token: %w", err)
	}

	if err := s.users.MarkVerified(ctx, user.ID); err != nil {
		return fmt.Errorf("account_service: mark verified: %w", err)
	}
	s.logger.InfoContext(ctx, "account_service: email verified", slog.String("user_id", user.ID))
	return nil
}

// Login checks credentials and issues a session token. Unverified users may
// log in; voting checks verification separately.
func (s *AccountService) Login(ctx context.Context, email, password string) (Session, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return Session{}, domain.ErrInvalidInput
	}

	user, err := s.users.GetByEmail(ctx, email)
	if errors.Is(err, domain.ErrNotFound) {
		return Session{}, domain.ErrInvalidCredentials
	}
	if err != nil {
		return Session{}, fmt.Errorf("account_service: load user: %w", err)
	}
	if err := crypto.CheckPassword(user.PasswordHash, password); err != nil {
		if errors.Is(err, crypto.ErrPasswordMismatch) {
			return Session{}, domain.ErrInvalidCredentials
		}
		return Session{}, fmt.Errorf("account_service: %w", err)
	}

	token, exp, err := s.tokens.Sign(user.ID, user.Email)
	if err != nil {
		return Session{}, fmt.Errorf("account_service: %w", err)
	}

	hasProfile := true
	if _, err := s.profiles.GetByUserID(ctx, user.ID); err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			return Session{}, fmt.Errorf("account_service: load profile: %w", err)
		}
		hasProfile = false
	}

	return Session{
		Token:         token,
		ExpiresAt:     exp,
		User:          user,
		HasProfile:    hasProfile,
		EmailVerified: user.EmailVerified,
	}, nil
}
