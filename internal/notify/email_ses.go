package notify

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"

	"github.com/jjtheshooterr/autobot/pkg/logging"
)

// SESConfig carries the SES from identity. Credentials come from the
// shared AWS config.
type SESConfig struct {
	FromEmail string
	FromName  string
}

// SESSender delivers through the SES v2 SendEmail API.
type SESSender struct {
	client *sesv2.Client
	from   string
	logger *logging.Logger
}

// NewSESSender returns nil when no client is available, letting the
// bootstrap fall through to the log-only sender.
func NewSESSender(client *sesv2.Client, cfg SESConfig, logger *logging.Logger) *SESSender {
	if client == nil {
		return nil
	}
	if logger == nil {
		logger = logging.Default()
	}
	name := cfg.FromName
	if name == "" {
		name = defaultFromName
	}
	return &SESSender{
		client: client,
		from:   fmt.Sprintf("%s <%s>", name, cfg.FromEmail),
		logger: logger,
	}
}

func (s *SESSender) Send(ctx context.Context, msg EmailMessage) error {
	if s == nil || s.client == nil {
		return fmt.Errorf("notify: ses client not configured")
	}

	out, err := s.client.SendEmail(ctx, &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(s.from),
		Destination:      &types.Destination{ToAddresses: []string{msg.To}},
		Content: &types.EmailContent{
			Simple: &types.Message{
				Subject: sesContent(msg.Subject),
				Body:    sesBody(msg),
			},
		},
	})
	if err != nil {
		return fmt.Errorf("notify: ses send: %w", err)
	}

	s.logger.Info("owner email sent", "provider", "ses", "to", msg.To, "subject", msg.Subject, "message_id", aws.ToString(out.MessageId))
	return nil
}

func sesContent(data string) *types.Content {
	return &types.Content{Data: aws.String(data), Charset: aws.String("UTF-8")}
}

func sesBody(msg EmailMessage) *types.Body {
	body := &types.Body{}
	if msg.Body != "" {
		body.Text = sesContent(msg.Body)
	}
	if msg.HTML != "" {
		body.Html = sesContent(msg.HTML)
	}
	return body
}

var _ EmailSender = (*SESSender)(nil)
