package conversation

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
)

// SQSQueue is the production queueClient. One queue carries every
// inbound-message job; visibility timeout handles redelivery.
type SQSQueue struct {
	client *sqs.Client
	url    *string
}

func NewSQSQueue(client *sqs.Client, queueURL string) *SQSQueue {
	if client == nil {
		panic("conversation: SQS client cannot be nil")
	}
	if queueURL == "" {
		panic("conversation: SQS queueURL cannot be empty")
	}
	return &SQSQueue{client: client, url: aws.String(queueURL)}
}

func (q *SQSQueue) Send(ctx context.Context, body string) error {
	if _, err := q.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    q.url,
		MessageBody: aws.String(body),
	}); err != nil {
		return fmt.Errorf("conversation: sqs send: %w", err)
	}
	return nil
}

func (q *SQSQueue) Receive(ctx context.Context, maxMessages int, waitSeconds int) ([]queueMessage, error) {
	out, err := q.client.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
		QueueUrl:            q.url,
		MaxNumberOfMessages: int32(maxMessages),
		WaitTimeSeconds:     int32(waitSeconds),
	})
	if err != nil {
		return nil, fmt.Errorf("conversation: sqs receive: %w", err)
	}

	batch := make([]queueMessage, len(out.Messages))
	for i, m := range out.Messages {
		batch[i] = queueMessage{
			ID:            aws.ToString(m.MessageId),
			Body:          aws.ToString(m.Body),
			ReceiptHandle: aws.ToString(m.ReceiptHandle),
		}
	}
	return batch, nil
}

func (q *SQSQueue) Delete(ctx context.Context, receiptHandle string) error {
	if receiptHandle == "" {
		return nil
	}
	if _, err := q.client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      q.url,
		ReceiptHandle: aws.String(receiptHandle),
	}); err != nil {
		return fmt.Errorf("conversation: sqs delete: %w", err)
	}
	return nil
}
