package conversation

import (
	"context"
	"fmt"

	"github.com/jjtheshooterr/autobot/pkg/logging"
)

// Publisher enqueues inbound messages for asynchronous processing.
type Publisher struct {
	queue  queueClient
	logger *logging.Logger
}

func NewPublisher(queue queueClient, logger *logging.Logger) *Publisher {
	if queue == nil {
		panic("conversation: queue cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Publisher{
		queue:  queue,
		logger: logger,
	}
}

// Enqueue publishes an inbound message job. jobID may be empty, in
// which case one is generated.
func (p *Publisher) Enqueue(ctx context.Context, jobID string, msg InboundMessage) error {
	if ctx == nil {
		ctx = context.Background()
	}

	payload, body, err := encodePayload(queuePayload{ID: jobID, Message: msg})
	if err != nil {
		return err
	}

	if err := p.queue.Send(ctx, body); err != nil {
		return fmt.Errorf("conversation: failed to enqueue job: %w", err)
	}

	p.logger.Debug("inbound message enqueued",
		"job_id", payload.ID,
		"lead_external_id", msg.LeadExternalID,
		"message_id", msg.MessageID,
	)
	return nil
}
