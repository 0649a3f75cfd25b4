package notify

import (
	"context"
	"fmt"
	"html"
	"log/slog"
	"net/url"
)

// Message is a single transactional email.
type Message struct {
	To      string
	ToName  string
	Subject string
	HTML    string
}

// Mailer delivers transactional email.
type Mailer interface {
	SendMail(ctx context.Context, msg Message) error
	Name() string
}

// LogMailer writes messages to the logger instead of sending them. It is the
// mailer used when no provider is configured.
type LogMailer struct {
	logger *slog.Logger
}

// NewLogMailer creates a LogMailer.
func NewLogMailer(logger *slog.Logger) *LogMailer {
	return &LogMailer{logger: logger.With(slog.String("component", "log_mailer"))}
}

func (m *LogMailer) SendMail(ctx context.Context, msg Message) error {
	m.logger.InfoContext(ctx, "email not sent, no provider configured",
		slog.String("to", msg.To),
		slog.String("subject", msg.Subject),
	)
	return nil
}

func (m *LogMailer) Name() string { return "log" }

// VerificationSender composes and delivers account verification emails.
type VerificationSender struct {
	mailer  Mailer
	baseURL string
	logger  *slog.Logger
}

// NewVerificationSender creates a VerificationSender. Links point at
// baseURL + "/api/auth/verify".
func NewVerificationSender(mailer Mailer, baseURL string, logger *slog.Logger) *VerificationSender {
	return &VerificationSender{
		mailer:  mailer,
		baseURL: baseURL,
		logger:  logger.With(slog.String("component", "verification_mail")),
	}
}

// VerificationURL returns the link a user follows to verify their email.
func (v *VerificationSender) VerificationURL(token string) string {
	return v.baseURL + "/api/auth/verify?token=" + url.QueryEscape(token)
}

// SendVerification emails the verification link to the user. The link is
// always logged at debug level so local setups without a provider can still
// verify; a delivery failure is logged and returned.
func (v *VerificationSender) SendVerification(ctx context.Context, name, email, token string) error {
	link := v.VerificationURL(token)
	v.logger.DebugContext(ctx, "verification link",
		slog.String("to", email),
		slog.String("url", link),
	)

	msg := Message{
		To:      email,
		ToName:  name,
		Subject: "Verify your WagerLoo account",
		HTML:    verificationHTML(name, link),
	}
	if err := v.mailer.SendMail(ctx, msg); err != nil {
		v.logger.ErrorContext(ctx, "verification email failed",
			slog.String("mailer", v.mailer.Name()),
			slog.String("to", email),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("notify: send verification: %w", err)
	}
	return nil
}

func verificationHTML(name, link string) string {
	n := html.EscapeString(name)
	l := html.EscapeString(link)
	return `<h1>Welcome to WagerLoo!</h1>
<p>Hi ` + n + `,</p>
<p>Thanks for signing up! Please verify your email address by clicking the link below:</p>
<a href="` + l + `" style="display: inline-block; padding: 12px 24px; background-color: #000; color: #fff; text-decoration: none; border-radius: 5px;">Verify Email</a>
<p>Or copy and paste this link into your browser:</p>
<p>` + l + `</p>`
}
