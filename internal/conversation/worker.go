package conversation

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/jjtheshooterr/autobot/internal/observability/metrics"
	"github.com/jjtheshooterr/autobot/pkg/logging"
)

var workerTracer = otel.Tracer("autobot.internal.conversation.worker")

// ReplySender delivers the engine's reply back to the lead.
type ReplySender interface {
	SendText(ctx context.Context, recipientID, text string) error
}

// Worker consumes inbound-message jobs from the queue, runs the engine,
// and sends the resulting reply.
type Worker struct {
	engine *Engine
	queue  queueClient
	sender ReplySender
	logger *logging.Logger

	cfg workerConfig
	wg  sync.WaitGroup
}

type workerConfig struct {
	workers          int
	receiveWaitSecs  int
	receiveBatchSize int
	metrics          *metrics.MessagingMetrics
}

const (
	defaultWorkerCount   = 2
	defaultWaitSeconds   = 2
	defaultBatchSize     = 5
	maxWaitSeconds       = 20
	maxReceiveBatchSize  = 10
	deleteTimeoutSeconds = 5
)

// WorkerOption customizes worker behavior.
type WorkerOption func(*workerConfig)

func WithWorkerCount(n int) WorkerOption {
	return func(c *workerConfig) {
		if n > 0 {
			c.workers = n
		}
	}
}

func WithReceiveWait(seconds int) WorkerOption {
	return func(c *workerConfig) {
		if seconds > 0 && seconds <= maxWaitSeconds {
			c.receiveWaitSecs = seconds
		}
	}
}

func WithReceiveBatchSize(n int) WorkerOption {
	return func(c *workerConfig) {
		if n > 0 && n <= maxReceiveBatchSize {
			c.receiveBatchSize = n
		}
	}
}

func WithMessagingMetrics(m *metrics.MessagingMetrics) WorkerOption {
	return func(c *workerConfig) {
		c.metrics = m
	}
}

func NewWorker(engine *Engine, queue queueClient, sender ReplySender, logger *logging.Logger, opts ...WorkerOption) *Worker {
	if engine == nil {
		panic("conversation: engine cannot be nil")
	}
	if queue == nil {
		panic("conversation: queue cannot be nil")
	}
	if sender == nil {
		panic("conversation: sender cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}

	cfg := workerConfig{
		workers:          defaultWorkerCount,
		receiveWaitSecs:  defaultWaitSeconds,
		receiveBatchSize: defaultBatchSize,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	return &Worker{
		engine: engine,
		queue:  queue,
		sender: sender,
		logger: logger,
		cfg:    cfg,
	}
}

// Start launches the consumer goroutines. They stop when ctx is done.
func (w *Worker) Start(ctx context.Context) {
	for i := 0; i < w.cfg.workers; i++ {
		w.wg.Add(1)
		go w.run(ctx, i+1)
	}
}

// Wait blocks until every consumer goroutine has exited.
func (w *Worker) Wait() {
	w.wg.Wait()
}

func (w *Worker) run(ctx context.Context, workerID int) {
	defer w.wg.Done()
	w.logger.Debug("conversation worker started", "worker_id", workerID)

	backoff := time.Second

	for {
		select {
		case <-ctx.Done():
			w.logger.Debug("conversation worker stopping", "worker_id", workerID)
			return
		default:
		}

		messages, err := w.queue.Receive(ctx, w.cfg.receiveBatchSize, w.cfg.receiveWaitSecs)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			w.logger.Error("failed to receive inbound jobs", "error", err, "worker_id", workerID)
			time.Sleep(backoff)
			if backoff < 5*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second

		for _, msg := range messages {
			w.handleMessage(ctx, msg)
		}
	}
}

func (w *Worker) handleMessage(ctx context.Context, msg queueMessage) {
	payload, err := decodePayload(msg.Body)
	if err != nil {
		// Poison message, drop it so the queue does not redeliver forever.
		w.logger.Error("failed to decode inbound job", "error", err)
		w.deleteMessage(context.Background(), msg.ReceiptHandle)
		return
	}

	ctx, span := workerTracer.Start(ctx, "conversation.worker.handle")
	defer span.End()
	span.SetAttributes(
		attribute.String("autobot.job_id", payload.ID),
		attribute.String("autobot.lead_external_id", payload.Message.LeadExternalID),
	)

	reply, err := w.engine.Handle(ctx, payload.Message)
	if err != nil {
		span.RecordError(err)
		w.logger.Error("engine failed to process message",
			"error", err,
			"job_id", payload.ID,
			"lead_external_id", payload.Message.LeadExternalID,
		)
		// A failed turn still answers; the apology keeps the thread
		// moving instead of going quiet while the queue redelivers.
		reply = w.engine.FallbackReply()
	}

	if reply != "" {
		if err := w.sender.SendText(ctx, payload.Message.LeadExternalID, reply); err != nil {
			span.RecordError(err)
			w.cfg.metrics.ObserveOutbound("error")
			w.logger.Error("failed to deliver reply",
				"error", err,
				"lead_external_id", payload.Message.LeadExternalID,
			)
			return
		}
		w.cfg.metrics.ObserveOutbound("sent")
	}

	w.deleteMessage(ctx, msg.ReceiptHandle)
}

func (w *Worker) deleteMessage(ctx context.Context, receiptHandle string) {
	if receiptHandle == "" {
		return
	}

	deleteCtx, cancel := context.WithTimeout(ctx, deleteTimeoutSeconds*time.Second)
	defer cancel()

	if err := w.queue.Delete(deleteCtx, receiptHandle); err != nil {
		w.logger.Error("failed to delete inbound job", "error", err)
	}
}
