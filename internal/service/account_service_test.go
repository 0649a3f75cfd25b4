package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/alanyoungcy/wagerloo/internal/crypto"
	"github.com/alanyoungcy/wagerloo/internal/domain"
	"github.com/alanyoungcy/wagerloo/internal/store/memory"
)

type fakeMailer struct {
	sent  []string // tokens
	email string
	err   error
}

func (f *fakeMailer) SendVerification(_ context.Context, _, email, token string) error {
	f.sent = append(f.sent, token)
	f.email = email
	return f.err
}

func newAccountService(st *memory.Store, m *fakeMailer) *AccountService {
	return NewAccountService(
		st.Users(), st.Profiles(), m,
		crypto.JWT{Secret: []byte("test"), TokenTTL: time.Hour},
		AccountConfig{AllowedEmailDomain: "uwaterloo.ca", BcryptCost: bcrypt.MinCost, MinPasswordLength: 8},
		testLogger(),
	)
}

func TestRegisterVerifyLogin(t *testing.T) {
	st := memory.New()
	mailer := &fakeMailer{}
	svc := newAccountService(st, mailer)
	ctx := context.Background()

	u, err := svc.Register(ctx, RegisterRequest{Name: "Ann", Email: " Ann@UWaterloo.ca ", Password: "password1"})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if u.Email != "ann@uwaterloo.ca" || u.EmailVerified {
		t.Fatalf("user = %+v", u)
	}
	if len(mailer.sent) != 1 || len(mailer.sent[0]) != 64 {
		t.Fatalf("mailer tokens = %v", mailer.sent)
	}

	// Unverified users may log in.
	sess, err := svc.Login(ctx, "ann@uwaterloo.ca", "password1")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if sess.Token == "" || sess.EmailVerified || sess.HasProfile {
		t.Fatalf("session = %+v", sess)
	}

	if err := svc.Verify(ctx, mailer.sent[0]); err != nil {
		t.Fatalf("verify: %v", err)
	}
	if err := svc.Verify(ctx, mailer.sent[0]); !errors.Is(err, domain.ErrInvalidToken) {
		t.Fatalf("reuse err = %v, want ErrInvalidToken", err)
	}

	stored, _ := st.Users().GetByID(ctx, u.ID)
	if !stored.EmailVerified || stored.VerificationToken != "" {
		t.Fatalf("stored = %+v", stored)
	}
}

func TestRegisterRejections(t *testing.T) {
	st := memory.New()
	svc := newAccountService(st, &fakeMailer{})
	ctx := context.Background()

	if _, err := svc.Register(ctx, RegisterRequest{Name: "A", Email: "a@uwaterloo.ca", Password: "password1"}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	cases := []struct {
		name string
		req  RegisterRequest
		want error
	}{
		{"other domain", RegisterRequest{Name: "B", Email: "b@gmail.com", Password: "password1"}, domain.ErrEmailDomain},
		{"lookalike domain", RegisterRequest{Name: "B", Email: "b@notuwaterloo.ca", Password: "password1"}, domain.ErrEmailDomain},
		{"short password", RegisterRequest{Name: "B", Email: "b@uwaterloo.ca", Password: "short"}, domain.ErrInvalidInput},
		{"no name", RegisterRequest{Email: "b@uwaterloo.ca", Password: "password1"}, domain.ErrInvalidInput},
		{"taken", RegisterRequest{Name: "A2", Email: "a@uwaterloo.ca", Password: "password1"}, domain.ErrAlreadyExists},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := svc.Register(ctx, tc.req); !errors.Is(err, tc.want) {
				t.Fatalf("err = %v, want %v", err, tc.want)
			}
		})
	}
}

func TestRegisterSurvivesMailFailure(t *testing.T) {
	st := memory.New()
	svc := newAccountService(st, &fakeMailer{err: errors.New("smtp down")})

	u, err := svc.Register(context.Background(), RegisterRequest{Name: "A", Email: "a@uwaterloo.ca", Password: "password1"})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, err := st.Users().GetByID(context.Background(), u.ID); err != nil {
		t.Fatalf("user not stored: %v", err)
	}
}

func TestLoginRejections(t *testing.T) {
	st := memory.New()
	svc := newAccountService(st, &fakeMailer{})
	ctx := context.Background()
	if _, err := svc.Register(ctx, RegisterRequest{Name: "A", Email: "a@uwaterloo.ca", Password: "password1"}); err != nil {
		t.Fatalf("register: %v", err)
	}

	if _, err := svc.Login(ctx, "a@uwaterloo.ca", "wrong-pass"); !errors.Is(err, domain.ErrInvalidCredentials) {
		t.Fatalf("wrong password err = %v", err)
	}
	if _, err := svc.Login(ctx, "nobody@uwaterloo.ca", "password1"); !errors.Is(err, domain.ErrInvalidCredentials) {
		t.Fatalf("unknown email err = %v", err)
	}
	if _, err := svc.Login(ctx, "", ""); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("empty err = %v", err)
	}
}

func TestVerifyEmptyToken(t *testing.T) {
	svc := newAccountService(memory.New(), &fakeMailer{})
	if err := svc.Verify(context.Background(), ""); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("err = %v, want ErrInvalidInput", err)
	}
}
