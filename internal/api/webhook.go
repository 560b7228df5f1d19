/**
 * @description
 * The Paystack webhook endpoint. It authenticates the body with the account's
 * secret key, drops replays, and hands the event to RabbitMQ for the settlement
 * consumer, or settles it inline when no broker is configured.
 *
 * @dependencies
 * - pkg/paystack: HMAC-SHA512 signature verification.
 * - pkg/rabbitmq: event fan-in to the settlement consumer.
 */
package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/candicepay/bot-service/internal/app"
	"github.com/candicepay/bot-service/internal/domain"
	"github.com/candicepay/bot-service/pkg/paystack"
	"github.com/candicepay/bot-service/pkg/rabbitmq"
	"go.uber.org/zap"
)

const (
	webhookDedupeWindow = 24 * time.Hour
	maxWebhookBodyBytes = 1 << 20
)

// EventProcessor settles a gateway event in-process.
type EventProcessor interface {
	HandleGatewayEvent(ctx context.Context, event domain.GatewayEvent) error
}

// WebhookHandler processes incoming webhooks from Paystack.
type WebhookHandler struct {
	secret    string
	publisher rabbitmq.Publisher
	processor EventProcessor
	logger    *zap.Logger
	now       func() time.Time

	mutex           sync.Mutex
	processedEvents map[string]time.Time
}

// NewWebhookHandler creates the webhook handler. With a nil publisher events are
// settled inline through processor.
func NewWebhookHandler(secret string, publisher rabbitmq.Publisher, processor EventProcessor, logger *zap.Logger) *WebhookHandler {
	return &WebhookHandler{
		secret:          secret,
		publisher:       publisher,
		processor:       processor,
		logger:          logger.With(zap.String("component", "paystack_webhook")),
		now:             time.Now,
		processedEvents: make(map[string]time.Time),
	}
}

var handledGatewayEvents = map[string]bool{
	app.GatewayEventChargeSuccess:    true,
	app.GatewayEventTransferSuccess:  true,
	app.GatewayEventTransferFailed:   true,
	app.GatewayEventTransferReversed: true,
}

// ServeHTTP implements the http.Handler interface.
func (h *WebhookHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBodyBytes))
	if err != nil {
		h.logger.Warn("cannot read webhook body", zap.Error(err))
		http.Error(w, "Cannot read request body", http.StatusBadRequest)
		return
	}

	if !paystack.VerifySignature(h.secret, body, r.Header.Get(paystack.SignatureHeader)) {
		h.logger.Warn("invalid webhook signature", zap.String("remote_addr", r.RemoteAddr))
		http.Error(w, "Invalid signature", http.StatusUnauthorized)
		return
	}

	var event domain.GatewayEvent
	if err := json.Unmarshal(body, &event); err != nil || event.Event == "" {
		h.logger.Warn("invalid webhook payload", zap.Error(err))
		http.Error(w, "Invalid JSON payload", http.StatusBadRequest)
		return
	}

	if !handledGatewayEvents[event.Event] {
		h.logger.Info("unhandled webhook event", zap.String("event", event.Event))
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("Webhook received"))
		return
	}

	key := eventKey(event)
	if h.seen(key) {
		h.logger.Info("duplicate webhook ignored", zap.String("event", event.Event), zap.String("key", key))
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("Duplicate event ignored"))
		return
	}

	if err := h.deliver(r.Context(), event, body); err != nil {
		h.logger.Error("webhook processing failed", zap.String("event", event.Event), zap.Error(err))
		http.Error(w, "Internal server error during event processing", http.StatusInternalServerError)
		return
	}
	// Only successful deliveries count, so a retried failure is processed again.
	h.markProcessed(key)

	w.WriteHeader(http.StatusOK)
	w.Write([]byte("Webhook received"))
}

func (h *WebhookHandler) deliver(ctx context.Context, event domain.GatewayEvent, body []byte) error {
	if h.publisher == nil {
		return h.processor.HandleGatewayEvent(ctx, event)
	}
	return h.publisher.Publish(ctx, app.EventsExchange, app.GatewayRoutingKey(event.Event), json.RawMessage(body))
}

// eventKey identifies an event by name plus the gateway's id, falling back to its reference.
func eventKey(event domain.GatewayEvent) string {
	var data struct {
		ID        json.RawMessage `json:"id"`
		Reference string          `json:"reference"`
	}
	_ = json.Unmarshal(event.Data, &data)
	id := strings.Trim(string(data.ID), `"`)
	if id == "" || id == "null" {
		id = data.Reference
	}
	return event.Event + ":" + id
}

func (h *WebhookHandler) seen(key string) bool {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	cutoff := h.now().Add(-webhookDedupeWindow)
	for k, at := range h.processedEvents {
		if at.Before(cutoff) {
			delete(h.processedEvents, k)
		}
	}
	_, ok := h.processedEvents[key]
	return ok
}

func (h *WebhookHandler) markProcessed(key string) {
	h.mutex.Lock()
	h.processedEvents[key] = h.now()
	h.mutex.Unlock()
}
