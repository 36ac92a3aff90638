package messaging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/jjtheshooterr/autobot/pkg/logging"
)

var messengerSendTracer = otel.Tracer("autobot.internal.messaging.messenger_send")

const defaultGraphBaseURL = "https://graph.facebook.com/v19.0"

// MessengerSender posts replies through the Messenger Send API.
type MessengerSender struct {
	pageToken  string
	baseURL    string
	httpClient *http.Client
	logger     *logging.Logger
}

func NewMessengerSender(pageToken string, logger *logging.Logger) *MessengerSender {
	if logger == nil {
		logger = logging.Default()
	}
	return &MessengerSender{
		pageToken: pageToken,
		baseURL:   defaultGraphBaseURL,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		logger: logger,
	}
}

// WithBaseURL points the sender at a different Graph endpoint, used by
// tests and sandbox deployments.
func (s *MessengerSender) WithBaseURL(baseURL string) *MessengerSender {
	s.baseURL = strings.TrimRight(baseURL, "/")
	return s
}

// SendText delivers one text reply to a recipient, retrying transient
// failures up to three times.
func (s *MessengerSender) SendText(ctx context.Context, recipientID, text string) error {
	if s.pageToken == "" {
		return errors.New("messaging: messenger page token missing")
	}
	if recipientID == "" {
		return errors.New("messaging: recipient required")
	}
	if strings.TrimSpace(text) == "" {
		return errors.New("messaging: text required")
	}

	ctx, span := messengerSendTracer.Start(ctx, "messaging.messenger.send")
	defer span.End()
	span.SetAttributes(attribute.String("autobot.recipient_id", recipientID))

	payload := map[string]any{
		"recipient":      map[string]string{"id": recipientID},
		"message":        map[string]string{"text": text},
		"messaging_type": "RESPONSE",
	}

	bodyBytes, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("messaging: failed to marshal messenger payload: %w", err)
	}

	url := fmt.Sprintf("%s/me/messages?access_token=%s", s.baseURL, s.pageToken)

	var lastErr error
	for attempt := 1; attempt <= 3; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(bodyBytes))
		if err != nil {
			lastErr = err
			break
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := s.httpClient.Do(req)
		if err != nil {
			lastErr = err
		} else {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 8192))
			resp.Body.Close()
			if resp.StatusCode >= 200 && resp.StatusCode < 300 {
				s.logger.Info("messenger reply sent", "recipient_id", recipientID)
				return nil
			}
			if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
				// Client errors will not heal on retry.
				span.RecordError(fmt.Errorf("messenger send rejected: status %d", resp.StatusCode))
				return fmt.Errorf("messaging: messenger send rejected: status %d, body: %s", resp.StatusCode, string(body))
			}
			lastErr = fmt.Errorf("messenger send failed: status %d", resp.StatusCode)
		}

		if attempt < 3 {
			sleep := time.Duration(200+rand.Intn(300)) * time.Millisecond
			time.Sleep(sleep)
		}
	}

	if lastErr != nil {
		span.RecordError(lastErr)
		s.logger.Error("failed to send messenger reply", "error", lastErr, "recipient_id", recipientID)
	}
	return lastErr
}
