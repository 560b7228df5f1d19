/**
 * @description
 * The application service behind the bot: registration, the payment flow,
 * bank directory, gateway event settlement and the scheduled jobs all hang off
 * `Service`, which owns no state beyond its collaborators.
 *
 * @dependencies
 * - internal/store: persistence.
 * - pkg/paystack (via Gateway), pkg/mailer (via Notifier), pkg/rabbitmq: outbound integrations.
 * - go.uber.org/zap: structured logging.
 */

package app

import (
	"context"
	"time"

	"github.com/candicepay/bot-service/internal/store"
	"github.com/candicepay/bot-service/pkg/rabbitmq"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// EventsExchange is the topic exchange domain and gateway events are published on.
const EventsExchange = "candicepay.events"

// Service coordinates the store, the payment gateway, email and events.
type Service struct {
	repo          store.Repository
	gateway       Gateway
	notifier      Notifier
	publisher     rabbitmq.Publisher
	chat          ChatNotifier
	logger        *zap.Logger
	preferredBank string
	now           func() time.Time
}

// NewService wires the service. A nil notifier or publisher disables that side effect.
func NewService(repo store.Repository, gateway Gateway, notifier Notifier, publisher rabbitmq.Publisher, logger *zap.Logger, preferredBank string) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if publisher == nil {
		publisher = &rabbitmq.Fallback{Logger: logger}
	}
	if preferredBank == "" {
		preferredBank = "wema-bank"
	}
	return &Service{
		repo:          repo,
		gateway:       gateway,
		notifier:      notifier,
		publisher:     publisher,
		logger:        logger.With(zap.String("component", "app")),
		preferredBank: preferredBank,
		now:           time.Now,
	}
}

// SetChatNotifier attaches the transport used for unsolicited user messages.
func (s *Service) SetChatNotifier(chat ChatNotifier) {
	s.chat = chat
}

func (s *Service) publish(ctx context.Context, routingKey string, body interface{}) {
	if err := s.publisher.Publish(ctx, EventsExchange, routingKey, body); err != nil {
		s.logger.Warn("event publish failed", zap.String("routing_key", routingKey), zap.Error(err))
	}
}

func (s *Service) notifyChat(ctx context.Context, telegramID int64, text string) {
	if s.chat == nil || telegramID == 0 {
		return
	}
	if err := s.chat.NotifyUser(ctx, telegramID, text); err != nil {
		s.logger.Warn("chat notification failed", zap.Int64("telegram_id", telegramID), zap.Error(err))
	}
}

func newEventID() string {
	return uuid.NewString()
}
