package handlers

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/jjtheshooterr/autobot/internal/conversation"
	"github.com/jjtheshooterr/autobot/internal/leads"
	observemetrics "github.com/jjtheshooterr/autobot/internal/observability/metrics"
	"github.com/jjtheshooterr/autobot/pkg/logging"
)

type conversationPublisher interface {
	Enqueue(ctx context.Context, jobID string, msg conversation.InboundMessage) error
}

type deliveryChecker interface {
	FirstDelivery(ctx context.Context, provider, messageID string) (bool, error)
}

// MessengerWebhookHandler receives Messenger page events: the GET
// subscription challenge and POSTed message batches.
type MessengerWebhookHandler struct {
	appSecret   string
	verifyToken string
	publisher   conversationPublisher
	dedupe      deliveryChecker
	leads       leads.Repository
	logger      *logging.Logger
	metrics     *observemetrics.MessagingMetrics
}

type MessengerWebhookConfig struct {
	AppSecret   string
	VerifyToken string
	Publisher   conversationPublisher
	Dedupe      deliveryChecker
	Leads       leads.Repository
	Logger      *logging.Logger
	Metrics     *observemetrics.MessagingMetrics
}

func NewMessengerWebhookHandler(cfg MessengerWebhookConfig) *MessengerWebhookHandler {
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	return &MessengerWebhookHandler{
		appSecret:   strings.TrimSpace(cfg.AppSecret),
		verifyToken: strings.TrimSpace(cfg.VerifyToken),
		publisher:   cfg.Publisher,
		dedupe:      cfg.Dedupe,
		leads:       cfg.Leads,
		logger:      cfg.Logger,
		metrics:     cfg.Metrics,
	}
}

// HandleVerify answers the one-time subscription handshake.
func (h *MessengerWebhookHandler) HandleVerify(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if q.Get("hub.mode") != "subscribe" || q.Get("hub.verify_token") != h.verifyToken || h.verifyToken == "" {
		h.logger.Warn("messenger verify rejected", "mode", q.Get("hub.mode"))
		http.Error(w, "verification failed", http.StatusForbidden)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(q.Get("hub.challenge")))
}

type messengerEvent struct {
	Object string `json:"object"`
	Entry  []struct {
		ID        string `json:"id"`
		Messaging []struct {
			Sender struct {
				ID string `json:"id"`
			} `json:"sender"`
			Timestamp int64 `json:"timestamp"`
			Message   struct {
				MID    string `json:"mid"`
				Text   string `json:"text"`
				IsEcho bool   `json:"is_echo"`
			} `json:"message"`
		} `json:"messaging"`
	} `json:"entry"`
}

// HandleEvents validates the signature and enqueues each inbound text.
// The response is always fast; all real work happens off the queue.
func (h *MessengerWebhookHandler) HandleEvents(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}

	if !h.verifySignature(body, r.Header.Get("X-Hub-Signature-256")) {
		h.logger.Warn("invalid messenger webhook signature")
		h.metrics.ObserveInbound("message", "bad_signature")
		http.Error(w, "invalid signature", http.StatusUnauthorized)
		return
	}

	var evt messengerEvent
	if err := json.Unmarshal(body, &evt); err != nil {
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}
	if evt.Object != "page" {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	for _, entry := range evt.Entry {
		for _, m := range entry.Messaging {
			if m.Message.IsEcho || m.Message.Text == "" || m.Sender.ID == "" {
				continue
			}
			h.processInbound(r.Context(), m.Sender.ID, m.Message.MID, m.Message.Text, m.Timestamp)
		}
	}

	h.metrics.ObserveWebhookLatency("message", time.Since(start).Seconds())
	w.WriteHeader(http.StatusOK)
}

func (h *MessengerWebhookHandler) processInbound(ctx context.Context, senderID, messageID, text string, timestampMS int64) {
	receivedAt := time.UnixMilli(timestampMS)
	if timestampMS == 0 {
		receivedAt = time.Now()
	}

	dedupeID := messageID
	if dedupeID == "" {
		dedupeID = fingerprintMessage(senderID, text, receivedAt)
	}

	if h.dedupe != nil {
		first, err := h.dedupe.FirstDelivery(ctx, "messenger", dedupeID)
		if err != nil {
			h.logger.Error("dedupe check failed", "error", err, "message_id", dedupeID)
			// Fall through: processing twice beats dropping the message.
		} else if !first {
			h.metrics.ObserveInbound("message", "duplicate")
			return
		}
	}

	if h.leads != nil {
		if _, err := h.leads.UpsertByExternalID(ctx, senderID, "messenger"); err != nil {
			h.logger.Error("lead upsert failed", "error", err, "sender_id", senderID)
		}
	}

	err := h.publisher.Enqueue(ctx, "", conversation.InboundMessage{
		LeadExternalID: senderID,
		MessageID:      messageID,
		Text:           text,
		ReceivedAt:     receivedAt,
	})
	if err != nil {
		h.logger.Error("failed to enqueue inbound message", "error", err, "sender_id", senderID)
		h.metrics.ObserveInbound("message", "enqueue_error")
		return
	}
	h.metrics.ObserveInbound("message", "accepted")
}

// fingerprintMessage stands in for a missing platform message id so that
// id-less redeliveries still dedupe. The same sender, text, and minute
// always hash to the same fingerprint.
func fingerprintMessage(senderID, text string, receivedAt time.Time) string {
	minute := receivedAt.UTC().Truncate(time.Minute).Unix()
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s|%s|%d", senderID, text, minute)))
	return "fp-" + hex.EncodeToString(sum[:12])
}

func (h *MessengerWebhookHandler) verifySignature(payload []byte, header string) bool {
	if h.appSecret == "" || strings.TrimSpace(header) == "" {
		return false
	}
	const prefix = "sha256="
	if !strings.HasPrefix(header, prefix) {
		return false
	}
	provided, err := hex.DecodeString(strings.TrimPrefix(header, prefix))
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, []byte(h.appSecret))
	mac.Write(payload)
	return hmac.Equal(provided, mac.Sum(nil))
}
