package email

import (
	"context"
	"fmt"
	"strings"

	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
)

type sendgridClient interface {
	SendWithContext(ctx context.Context, email *mail.SGMailV3) (*rest.Response, error)
}

// SendGridSender envia correos por la API HTTP de SendGrid.
type SendGridSender struct {
	client sendgridClient
	from   From
}

func NewSendGridSender(apiKey string, from From) (*SendGridSender, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("sendgrid api key is required")
	}
	if strings.TrimSpace(from.Address) == "" {
		return nil, fmt.Errorf("sendgrid sender address is required")
	}
	return &SendGridSender{client: sendgrid.NewSendClient(apiKey), from: from}, nil
}

func (s *SendGridSender) Send(ctx context.Context, msg Message) error {
	if err := validateMessage(msg); err != nil {
		return err
	}
	text, html := msg.Text, msg.HTML
	if text == "" {
		text = html
	}
	if html == "" {
		html = text
	}
	message := mail.NewSingleEmail(
		mail.NewEmail(s.from.Name, s.from.Address),
		msg.Subject,
		mail.NewEmail("", msg.To),
		text,
		html,
	)
	resp, err := s.client.SendWithContext(ctx, message)
	if err != nil {
		return fmt.Errorf("sendgrid send: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("sendgrid api error: status %d: %s", resp.StatusCode, resp.Body)
	}
	return nil
}
