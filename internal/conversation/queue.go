package conversation

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type queueClient interface {
	Send(ctx context.Context, body string) error
	Receive(ctx context.Context, maxMessages int, waitSeconds int) ([]queueMessage, error)
	Delete(ctx context.Context, receiptHandle string) error
}

type queueMessage struct {
	ID            string
	Body          string
	ReceiptHandle string
}

// InboundMessage is one customer message pulled off the webhook and
// handed to the engine.
type InboundMessage struct {
	LeadExternalID string    `json:"lead_external_id"`
	MessageID      string    `json:"message_id"`
	Text           string    `json:"text"`
	ReceivedAt     time.Time `json:"received_at"`
}

type queuePayload struct {
	ID      string         `json:"id"`
	Message InboundMessage `json:"message"`
}

func encodePayload(payload queuePayload) (queuePayload, string, error) {
	if payload.ID == "" {
		payload.ID = uuid.NewString()
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return queuePayload{}, "", fmt.Errorf("conversation: failed to encode payload: %w", err)
	}

	return payload, string(body), nil
}

func decodePayload(body string) (queuePayload, error) {
	var payload queuePayload
	if err := json.Unmarshal([]byte(body), &payload); err != nil {
		return queuePayload{}, fmt.Errorf("conversation: failed to decode payload: %w", err)
	}
	return payload, nil
}
