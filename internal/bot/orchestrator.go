/**
 * @description
 * The conversation orchestrator. It routes each inbound update to a command,
 * a step of a multi-turn flow, or an inline-button callback, keeping per-user
 * progress in a SessionStore.
 *
 * @notes
 * - Validation failures re-prompt and keep the session; upstream failures end it.
 * - Amounts awaiting confirmation live in the session, never in callback data.
 */

package bot

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/candicepay/bot-service/internal/app"
	"github.com/candicepay/bot-service/internal/domain"
	"go.uber.org/zap"
)

// SessionStore keeps conversation state per chat identity.
type SessionStore interface {
	Get(ctx context.Context, telegramID int64) (*domain.Session, error)
	Save(ctx context.Context, session *domain.Session) error
	Delete(ctx context.Context, telegramID int64) error
}

// Service is the application surface the conversation drives.
type Service interface {
	Register(ctx context.Context, in app.RegistrationInput) (*app.RegistrationResult, error)
	ProcessPayment(ctx context.Context, in app.PaymentInput) (*app.PaymentResult, error)
	Banks(ctx context.Context) ([]domain.Bank, error)
	PopularBanks(ctx context.Context) ([]domain.Bank, error)
}

// Directory is the read side of the store the commands show.
type Directory interface {
	FindUserByTelegramID(ctx context.Context, telegramID int64) (*domain.User, error)
	RecentTransactions(ctx context.Context, userID int64, limit int) ([]domain.Transaction, error)
	AffiliateStats(ctx context.Context, userID int64) (*domain.AffiliateStats, error)
	Stats(ctx context.Context, now time.Time) (*domain.Stats, error)
}

// Extractor reads payment details off a slip image.
type Extractor interface {
	ExtractSlip(ctx context.Context, imageURL string) (domain.SlipDetails, error)
}

// RateLimiter counts hits per subject in a fixed window.
type RateLimiter interface {
	ConsumeRateLimit(ctx context.Context, scope, subject string, limit int, window time.Duration) (int, int, error)
}

// Config carries the orchestrator's tunables.
type Config struct {
	AdminTelegramIDs   []int64
	DashboardURL       string
	RateLimitPerMinute int
}

// Orchestrator runs the chat conversation.
type Orchestrator struct {
	messenger Messenger
	sessions  SessionStore
	service   Service
	users     Directory
	extractor Extractor
	limiter   RateLimiter
	config    Config
	logger    *zap.Logger
	now       func() time.Time
}

// NewOrchestrator wires an orchestrator. limiter may be nil to disable rate limiting.
func NewOrchestrator(messenger Messenger, sessions SessionStore, service Service, users Directory, extractor Extractor, limiter RateLimiter, cfg Config, logger *zap.Logger) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		messenger: messenger,
		sessions:  sessions,
		service:   service,
		users:     users,
		extractor: extractor,
		limiter:   limiter,
		config:    cfg,
		logger:    logger.With(zap.String("component", "bot")),
		now:       time.Now,
	}
}

// HandleUpdate processes one update. It never returns an error; failures are
// logged and answered in the chat.
func (o *Orchestrator) HandleUpdate(ctx context.Context, u Update) {
	if u.TelegramID == 0 {
		return
	}
	if u.ChatID == 0 {
		u.ChatID = u.TelegramID
	}
	if !o.allow(ctx, u) {
		return
	}
	defer o.recoverPanic(ctx, u)

	switch {
	case u.CallbackData != "":
		o.handleCallback(ctx, u)
	case u.Command != "":
		o.handleCommand(ctx, u, u.Command, u.Args)
	case u.PhotoFileID != "":
		o.handlePhoto(ctx, u)
	case u.Text != "":
		if command, ok := keyboardCommands[strings.TrimSpace(u.Text)]; ok {
			o.handleCommand(ctx, u, command, "")
			return
		}
		o.handleText(ctx, u)
	}
}

func (o *Orchestrator) allow(ctx context.Context, u Update) bool {
	if o.limiter == nil || o.config.RateLimitPerMinute <= 0 {
		return true
	}
	limit := o.config.RateLimitPerMinute
	count, retryAfter, err := o.limiter.ConsumeRateLimit(ctx, rateLimitScope, strconv.FormatInt(u.TelegramID, 10), limit, rateLimitWindowSecs*time.Second)
	if err != nil {
		o.logger.Warn("rate limiter unavailable; allowing update", zap.Int64("telegram_id", u.TelegramID), zap.Error(err))
		return true
	}
	if count <= limit {
		return true
	}
	if u.CallbackID != "" {
		o.answer(ctx, u, "Too many requests")
	}
	// Tell the user once per window.
	if count == limit+1 {
		o.reply(ctx, u, "⏳ Too many requests. Please try again in "+strconv.Itoa(retryAfter)+" seconds.")
	}
	return false
}

func (o *Orchestrator) handleCommand(ctx context.Context, u Update, command, args string) {
	switch command {
	case "start":
		o.start(ctx, u, strings.TrimSpace(args))
	case "register":
		o.register(ctx, u)
	case "pay":
		o.pay(ctx, u)
	case "balance":
		o.balance(ctx, u)
	case "affiliate":
		o.affiliate(ctx, u)
	case "banks":
		o.banks(ctx, u)
	case "admin":
		o.admin(ctx, u)
	case "cancel":
		o.endSession(ctx, u.TelegramID)
		o.send(ctx, OutgoingMessage{ChatID: u.ChatID, Text: "❌ Operation cancelled."})
	default:
		o.reply(ctx, u, "Unknown command. Try /pay, /balance, /affiliate or /banks.")
	}
}

func (o *Orchestrator) handleText(ctx context.Context, u Update) {
	session, err := o.session(ctx, u.TelegramID)
	if err != nil {
		o.fail(ctx, u, "load session", err)
		return
	}
	if session == nil {
		return
	}

	switch session.Step {
	case domain.StepAwaitingRegistration:
		o.reply(ctx, u, "Tap 'Register Account' or send /register to get started.")
	case domain.StepAwaitingEmail, domain.StepAwaitingFirstName, domain.StepAwaitingPhone:
		o.continueRegistration(ctx, u, session)
	case domain.StepAwaitingManualDetails:
		o.manualDetails(ctx, u, session)
	case domain.StepAwaitingPaymentAmount:
		o.paymentAmount(ctx, u, session)
	case domain.StepAwaitingPaymentScan:
		o.reply(ctx, u, scanPrompt)
	case domain.StepAwaitingPaymentMethod, domain.StepAwaitingPaymentConfirmation:
		o.reply(ctx, u, "Please use the buttons above, or send /cancel to start over.")
	}
}

// session returns the caller's session, or nil when there is none.
func (o *Orchestrator) session(ctx context.Context, telegramID int64) (*domain.Session, error) {
	session, err := o.sessions.Get(ctx, telegramID)
	if err != nil {
		if errors.Is(err, app.ErrSessionNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return session, nil
}

func (o *Orchestrator) save(ctx context.Context, u Update, session *domain.Session) bool {
	session.TelegramID = u.TelegramID
	if err := o.sessions.Save(ctx, session); err != nil {
		o.fail(ctx, u, "save session", err)
		return false
	}
	return true
}

func (o *Orchestrator) endSession(ctx context.Context, telegramID int64) {
	if err := o.sessions.Delete(ctx, telegramID); err != nil {
		o.logger.Warn("session delete failed", zap.Int64("telegram_id", telegramID), zap.Error(err))
	}
}

// fail logs an unexpected error, tells the user, and drops the session.
func (o *Orchestrator) fail(ctx context.Context, u Update, op string, err error) {
	o.logger.Error("conversation step failed", zap.String("op", op), zap.Int64("telegram_id", u.TelegramID), zap.Error(err))
	o.endSession(ctx, u.TelegramID)
	o.reply(ctx, u, userMessageForError(err))
}

// recoverPanic turns a panic in a handler into a generic failure reply and
// drops the conversation, leaving the worker and the process running.
func (o *Orchestrator) recoverPanic(ctx context.Context, u Update) {
	r := recover()
	if r == nil {
		return
	}
	o.logger.Error("update handler panicked",
		zap.Int64("telegram_id", u.TelegramID),
		zap.Any("panic", r),
		zap.Stack("stack"),
	)
	o.endSession(ctx, u.TelegramID)
	o.reply(ctx, u, genericFailureText)
}

func (o *Orchestrator) reply(ctx context.Context, u Update, text string) {
	o.send(ctx, OutgoingMessage{ChatID: u.ChatID, Text: text})
}

func (o *Orchestrator) send(ctx context.Context, msg OutgoingMessage) {
	if err := o.messenger.Send(ctx, msg); err != nil {
		o.logger.Warn("send failed", zap.Int64("chat_id", msg.ChatID), zap.Error(err))
	}
}

func (o *Orchestrator) answer(ctx context.Context, u Update, text string) {
	if u.CallbackID == "" {
		return
	}
	if err := o.messenger.AnswerCallback(ctx, u.CallbackID, text); err != nil {
		o.logger.Debug("callback answer failed", zap.Error(err))
	}
}

func (o *Orchestrator) isAdmin(telegramID int64) bool {
	for _, id := range o.config.AdminTelegramIDs {
		if id == telegramID {
			return true
		}
	}
	return false
}
