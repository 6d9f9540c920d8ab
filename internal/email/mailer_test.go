package email

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
	"gopkg.in/gomail.v2"
)

type recordingSender struct {
	sent []Message
	err  error
}

func (s *recordingSender) Send(_ context.Context, msg Message) error {
	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, msg)
	return nil
}

func newTestMailer(t *testing.T) (*ConversionMailer, *recordingSender) {
	t.Helper()
	rec := &recordingSender{}
	m, err := NewConversionMailer(rec, "DazNode", "https://dazno.de/")
	if err != nil {
		t.Fatalf("new mailer: %v", err)
	}
	return m, rec
}

func TestConversionMailer_LoginCode(t *testing.T) {
	m, rec := newTestMailer(t)
	exp := time.Date(2024, 5, 1, 9, 15, 0, 0, time.UTC)

	if err := m.SendLoginCode(context.Background(), "node@example.com", "123456", exp); err != nil {
		t.Fatalf("send login code: %v", err)
	}
	if len(rec.sent) != 1 {
		t.Fatalf("expected one message, got %d", len(rec.sent))
	}
	msg := rec.sent[0]
	if msg.To != "node@example.com" || !strings.Contains(msg.Subject, "login code") {
		t.Fatalf("unexpected message header: %+v", msg)
	}
	for _, body := range []string{msg.Text, msg.HTML} {
		if !strings.Contains(body, "123456") || !strings.Contains(body, "2024-05-01 09:15") {
			t.Fatalf("expected code and expiry in body: %q", body)
		}
	}
}

func TestConversionMailer_ProposalEscapesEmail(t *testing.T) {
	m, rec := newTestMailer(t)

	if err := m.SendAccountProposal(context.Background(), "a+b@example.com", 3, 2); err != nil {
		t.Fatalf("send proposal: %v", err)
	}
	html := rec.sent[0].HTML
	if !strings.Contains(html, "signed in 3 times over 2 days") {
		t.Fatalf("expected login summary, got %q", html)
	}
	if !strings.Contains(html, "https://dazno.de/register?email=a%2bb%40example.com") {
		t.Fatalf("expected escaped register link, got %q", html)
	}
}

func TestConversionMailer_WelcomeAndSuccess(t *testing.T) {
	m, rec := newTestMailer(t)
	ctx := context.Background()

	if err := m.SendWelcome(ctx, "node@example.com"); err != nil {
		t.Fatalf("send welcome: %v", err)
	}
	if err := m.SendConversionSuccess(ctx, "node@example.com"); err != nil {
		t.Fatalf("send success: %v", err)
	}
	if len(rec.sent) != 2 {
		t.Fatalf("expected two messages, got %d", len(rec.sent))
	}
	if !strings.Contains(rec.sent[0].HTML, "https://dazno.de/dashboard") {
		t.Fatalf("expected dashboard link in welcome")
	}
	if !strings.Contains(rec.sent[1].HTML, "account is active") {
		t.Fatalf("unexpected success body: %q", rec.sent[1].HTML)
	}
}

func TestConversionMailer_PropagatesSenderError(t *testing.T) {
	m, rec := newTestMailer(t)
	rec.err = errors.New("smtp down")

	if err := m.SendWelcome(context.Background(), "node@example.com"); err == nil {
		t.Fatalf("expected sender error")
	}
}

func TestDisabledSender(t *testing.T) {
	err := NewDisabledSender("email disabled in dev").Send(context.Background(), Message{To: "a@example.com"})
	if err == nil || err.Error() != "email disabled in dev" {
		t.Fatalf("expected configured reason, got %v", err)
	}
}

type fakeDialer struct {
	messages []*gomail.Message
	err      error
}

func (d *fakeDialer) DialAndSend(m ...*gomail.Message) error {
	d.messages = append(d.messages, m...)
	return d.err
}

func TestSMTPSender_Send(t *testing.T) {
	d := &fakeDialer{}
	s := &SMTPSender{dialer: d, from: From{Address: "noreply@dazno.de", Name: "DazNode"}}

	if err := s.Send(context.Background(), Message{To: " "}); !errors.Is(err, ErrMissingRecipient) {
		t.Fatalf("expected ErrMissingRecipient, got %v", err)
	}
	if err := s.Send(context.Background(), Message{To: "node@example.com", Subject: "hi", Text: "t", HTML: "<p>h</p>"}); err != nil {
		t.Fatalf("send: %v", err)
	}
	if len(d.messages) != 1 {
		t.Fatalf("expected one dialed message")
	}
	if got := d.messages[0].GetHeader("To"); len(got) != 1 || got[0] != "node@example.com" {
		t.Fatalf("unexpected To header: %v", got)
	}

	d.err = errors.New("dial failed")
	if err := s.Send(context.Background(), Message{To: "node@example.com", Text: "t"}); err == nil {
		t.Fatalf("expected dial error")
	}
}

func TestNewSMTPSender_Validation(t *testing.T) {
	if _, err := NewSMTPSender("", 587, "u", "p", From{}, false); err == nil {
		t.Fatalf("expected host error")
	}
	if _, err := NewSMTPSender("smtp.example.com", 0, "", "", From{}, false); err == nil {
		t.Fatalf("expected from error")
	}
	s, err := NewSMTPSender("smtp.example.com", 0, "user@example.com", "p", From{}, false)
	if err != nil {
		t.Fatalf("new smtp sender: %v", err)
	}
	if s.from.Address != "user@example.com" {
		t.Fatalf("expected username as fallback from, got %q", s.from.Address)
	}
}

type fakeSendGrid struct {
	last   *mail.SGMailV3
	status int
	err    error
}

func (f *fakeSendGrid) SendWithContext(_ context.Context, m *mail.SGMailV3) (*rest.Response, error) {
	f.last = m
	if f.err != nil {
		return nil, f.err
	}
	return &rest.Response{StatusCode: f.status, Body: "body"}, nil
}

func TestSendGridSender_Send(t *testing.T) {
	client := &fakeSendGrid{status: 202}
	s := &SendGridSender{client: client, from: From{Address: "noreply@dazno.de", Name: "DazNode"}}

	if err := s.Send(context.Background(), Message{To: "node@example.com", Subject: "hi", Text: "plain"}); err != nil {
		t.Fatalf("send: %v", err)
	}
	if client.last == nil || client.last.Subject != "hi" {
		t.Fatalf("expected message to reach client")
	}
	if len(client.last.Content) != 2 {
		t.Fatalf("expected text and html parts, got %d", len(client.last.Content))
	}

	client.status = 401
	if err := s.Send(context.Background(), Message{To: "node@example.com", Text: "plain"}); err == nil {
		t.Fatalf("expected api status error")
	}

	if _, err := NewSendGridSender("", From{Address: "a@b.c"}); err == nil {
		t.Fatalf("expected api key error")
	}
}
