package notify

import (
	"context"
	"fmt"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"

	"github.com/jjtheshooterr/autobot/pkg/logging"
)

// EmailMessage is one operator email. Body is plain text; HTML is an
// optional richer rendering of the same content.
type EmailMessage struct {
	To      string
	ToName  string
	Subject string
	Body    string
	HTML    string
}

// EmailSender delivers operator emails. The provider behind it is picked
// at bootstrap from EMAIL_PROVIDER.
type EmailSender interface {
	Send(ctx context.Context, msg EmailMessage) error
}

const defaultFromName = "AutoBot Detailing"

// SendGridConfig carries the SendGrid credentials and from identity.
type SendGridConfig struct {
	APIKey    string
	FromEmail string
	FromName  string
}

// SendGridSender delivers through the SendGrid v3 mail API.
type SendGridSender struct {
	client *sendgrid.Client
	from   *mail.Email
	logger *logging.Logger
}

// NewSendGridSender returns nil when no API key is configured, letting
// the bootstrap fall through to the log-only sender.
func NewSendGridSender(cfg SendGridConfig, logger *logging.Logger) *SendGridSender {
	if cfg.APIKey == "" {
		return nil
	}
	if logger == nil {
		logger = logging.Default()
	}
	name := cfg.FromName
	if name == "" {
		name = defaultFromName
	}
	return &SendGridSender{
		client: sendgrid.NewSendClient(cfg.APIKey),
		from:   mail.NewEmail(name, cfg.FromEmail),
		logger: logger,
	}
}

func (s *SendGridSender) Send(ctx context.Context, msg EmailMessage) error {
	if s == nil || s.client == nil {
		return fmt.Errorf("notify: sendgrid client not configured")
	}

	html := msg.HTML
	if html == "" {
		html = msg.Body
	}
	payload := mail.NewSingleEmail(s.from, msg.Subject, mail.NewEmail(msg.ToName, msg.To), msg.Body, html)

	resp, err := s.client.SendWithContext(ctx, payload)
	if err != nil {
		return fmt.Errorf("notify: sendgrid send: %w", err)
	}
	if resp.StatusCode >= 400 {
		s.logger.Error("sendgrid rejected email", "status", resp.StatusCode, "body", resp.Body, "to", msg.To)
		return fmt.Errorf("notify: sendgrid returned status %d", resp.StatusCode)
	}

	s.logger.Info("owner email sent", "provider", "sendgrid", "to", msg.To, "subject", msg.Subject)
	return nil
}

// StubEmailSender logs instead of sending, for development and for
// deployments with no email provider configured.
type StubEmailSender struct {
	logger *logging.Logger
}

func NewStubEmailSender(logger *logging.Logger) *StubEmailSender {
	if logger == nil {
		logger = logging.Default()
	}
	return &StubEmailSender{logger: logger}
}

func (s *StubEmailSender) Send(_ context.Context, msg EmailMessage) error {
	s.logger.Info("email disabled, dropping message", "to", msg.To, "subject", msg.Subject)
	return nil
}

var (
	_ EmailSender = (*SendGridSender)(nil)
	_ EmailSender = (*StubEmailSender)(nil)
)
