package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestBrevoMailerSendsPayload(t *testing.T) {
	var got brevoEmail
	var apiKey string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		apiKey = r.Header.Get("api-key")
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode: %v", err)
		}
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	m := NewBrevoMailer(BrevoConfig{
		APIKey: "k", Endpoint: srv.URL, SenderName: "WagerLoo", SenderEmail: "noreply@example.com",
	})
	err := m.SendMail(context.Background(), Message{To: "a@uwaterloo.ca", ToName: "A", Subject: "s", HTML: "<p>x</p>"})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if apiKey != "k" {
		t.Fatalf("api-key header = %q", apiKey)
	}
	if len(got.To) != 1 || got.To[0].Email != "a@uwaterloo.ca" || got.Sender.Email != "noreply@example.com" {
		t.Fatalf("payload = %+v", got)
	}
}

func TestBrevoMailerErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad key", http.StatusUnauthorized)
	}))
	defer srv.Close()

	m := NewBrevoMailer(BrevoConfig{Endpoint: srv.URL})
	err := m.SendMail(context.Background(), Message{To: "a@uwaterloo.ca"})
	if err == nil || !strings.Contains(err.Error(), "401") {
		t.Fatalf("err = %v, want status 401", err)
	}
}

type captureMailer struct {
	msgs []Message
	err  error
}

func (c *captureMailer) SendMail(_ context.Context, msg Message) error {
	c.msgs = append(c.msgs, msg)
	return c.err
}
func (c *captureMailer) Name() string { return "capture" }

func TestVerificationSender(t *testing.T) {
	mailer := &captureMailer{}
	v := NewVerificationSender(mailer, "https://wagerloo.test", discardLogger())

	if err := v.SendVerification(context.Background(), "<Ann>", "ann@uwaterloo.ca", "abc123"); err != nil {
		t.Fatalf("send: %v", err)
	}
	if len(mailer.msgs) != 1 {
		t.Fatalf("sent %d messages", len(mailer.msgs))
	}
	msg := mailer.msgs[0]
	if !strings.Contains(msg.HTML, "https://wagerloo.test/api/auth/verify?token=abc123") {
		t.Fatalf("link missing from body: %s", msg.HTML)
	}
	if strings.Contains(msg.HTML, "<Ann>") {
		t.Fatal("name was not escaped")
	}

	mailer.err = errors.New("down")
	if err := v.SendVerification(context.Background(), "Ann", "ann@uwaterloo.ca", "t"); err == nil {
		t.Fatal("expected delivery error")
	}
}

type countingSender struct {
	n   int
	err error
}

func (c *countingSender) Send(context.Context, string, string) error { c.n++; return c.err }
func (c *countingSender) Name() string                               { return "count" }

func TestNotifierFiltersEvents(t *testing.T) {
	ok := &countingSender{}
	failing := &countingSender{err: errors.New("boom")}
	n := NewNotifier([]Sender{failing, ok}, []string{EventCleanupCompleted}, discardLogger())

	if err := n.Notify(context.Background(), EventCleanupFailed, "t", "m"); err != nil {
		t.Fatalf("filtered event returned %v", err)
	}
	if ok.n != 0 {
		t.Fatal("filtered event was delivered")
	}
	if err := n.Notify(context.Background(), EventCleanupCompleted, "t", "m"); err == nil {
		t.Fatal("expected combined error")
	}
	if ok.n != 1 || failing.n != 1 {
		t.Fatalf("deliveries ok=%d failing=%d", ok.n, failing.n)
	}
}
