package bot

import (
	"context"
	"errors"
	"strings"

	"github.com/candicepay/bot-service/internal/domain"
	"github.com/candicepay/bot-service/internal/store"
	"go.uber.org/zap"
)

const registerFirstText = "Please register first using /register"

// lookupUser returns the caller's account, or nil when they are not registered.
func (o *Orchestrator) lookupUser(ctx context.Context, u Update) (*domain.User, error) {
	user, err := o.users.FindUserByTelegramID(ctx, u.TelegramID)
	if err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return user, nil
}

// registeredUser is lookupUser for commands that need an account; it answers the chat otherwise.
func (o *Orchestrator) registeredUser(ctx context.Context, u Update) *domain.User {
	user, err := o.lookupUser(ctx, u)
	if err != nil {
		o.fail(ctx, u, "lookup user", err)
		return nil
	}
	if user == nil {
		o.reply(ctx, u, registerFirstText)
	}
	return user
}

func (o *Orchestrator) start(ctx context.Context, u Update, referralCode string) {
	user, err := o.lookupUser(ctx, u)
	if err != nil {
		o.fail(ctx, u, "lookup user", err)
		return
	}
	if user != nil {
		o.send(ctx, OutgoingMessage{ChatID: u.ChatID, Text: welcomeBackText(user), Markdown: true, Keyboard: mainKeyboard})
		return
	}

	session := &domain.Session{Step: domain.StepAwaitingRegistration, ReferredBy: referralCode}
	if existing, _ := o.session(ctx, u.TelegramID); existing != nil && referralCode == "" {
		session.ReferredBy = existing.ReferredBy
	}
	if !o.save(ctx, u, session) {
		return
	}
	o.send(ctx, OutgoingMessage{ChatID: u.ChatID, Text: guestWelcome, Markdown: true, Keyboard: guestKeyboard})
}

func (o *Orchestrator) register(ctx context.Context, u Update) {
	user, err := o.lookupUser(ctx, u)
	if err != nil {
		o.fail(ctx, u, "lookup user", err)
		return
	}
	if user != nil {
		o.send(ctx, OutgoingMessage{ChatID: u.ChatID, Text: alreadyRegisteredText(user), Markdown: true})
		return
	}

	session := &domain.Session{Step: domain.StepAwaitingEmail}
	if existing, _ := o.session(ctx, u.TelegramID); existing != nil {
		session.ReferredBy = existing.ReferredBy
	}
	if !o.save(ctx, u, session) {
		return
	}
	o.send(ctx, OutgoingMessage{
		ChatID:   u.ChatID,
		Text:     "📝 *Account Registration*\n\nLet's create your banking account. Please send your email address:",
		Markdown: true,
	})
}

func (o *Orchestrator) pay(ctx context.Context, u Update) {
	user, err := o.lookupUser(ctx, u)
	if err != nil {
		o.fail(ctx, u, "lookup user", err)
		return
	}
	if user == nil {
		o.reply(ctx, u, "Please register first using /register to start banking with us.")
		return
	}
	if user.WalletBalance <= 0 {
		o.send(ctx, OutgoingMessage{ChatID: u.ChatID, Text: insufficientBalanceText(user), Markdown: true})
		return
	}

	if !o.save(ctx, u, &domain.Session{Step: domain.StepAwaitingPaymentMethod, UserID: user.ID}) {
		return
	}
	o.send(ctx, OutgoingMessage{
		ChatID:   u.ChatID,
		Text:     "💸 *Make a Payment*\n\n*Available Balance:* " + domain.FormatNaira(user.WalletBalance) + "\n\nChoose payment method:",
		Markdown: true,
		Inline: [][]Button{{
			{Text: "📸 Scan Bank Slip", Data: callbackScan},
			{Text: "📝 Enter Manually", Data: callbackManual},
		}},
	})
}

func (o *Orchestrator) balance(ctx context.Context, u Update) {
	user := o.registeredUser(ctx, u)
	if user == nil {
		return
	}
	recent, err := o.users.RecentTransactions(ctx, user.ID, recentTransactions)
	if err != nil {
		o.logger.Warn("recent transactions unavailable", zap.Int64("user_id", user.ID), zap.Error(err))
		recent = nil
	}
	o.send(ctx, OutgoingMessage{
		ChatID:   u.ChatID,
		Text:     balanceText(user, recent),
		Markdown: true,
		Inline:   [][]Button{{{Text: "💸 Make Payment", Data: "quick_payment"}}},
	})
}

func (o *Orchestrator) affiliate(ctx context.Context, u Update) {
	user := o.registeredUser(ctx, u)
	if user == nil {
		return
	}
	stats, err := o.users.AffiliateStats(ctx, user.ID)
	if err != nil {
		o.fail(ctx, u, "affiliate stats", err)
		return
	}
	o.send(ctx, OutgoingMessage{ChatID: u.ChatID, Text: affiliateText(user, stats, o.messenger.Username()), Markdown: true})
}

func (o *Orchestrator) banks(ctx context.Context, u Update) {
	all, err := o.service.Banks(ctx)
	if err == nil {
		var popular []domain.Bank
		popular, err = o.service.PopularBanks(ctx)
		if err == nil {
			o.send(ctx, OutgoingMessage{ChatID: u.ChatID, Text: banksText(popular, len(all)), Markdown: true})
			return
		}
	}
	o.logger.Warn("bank list unavailable", zap.Error(err))
	o.reply(ctx, u, "❌ Could not fetch bank list.")
}

func (o *Orchestrator) admin(ctx context.Context, u Update) {
	if !o.isAdmin(u.TelegramID) {
		o.reply(ctx, u, "❌ Access denied.")
		return
	}
	stats, err := o.users.Stats(ctx, o.now())
	if err != nil {
		o.fail(ctx, u, "admin stats", err)
		return
	}
	dashboard := strings.TrimRight(o.config.DashboardURL, "/") + "/admin"
	o.send(ctx, OutgoingMessage{
		ChatID:   u.ChatID,
		Text:     adminText(stats, dashboard),
		Markdown: true,
		Inline:   [][]Button{{{Text: "🌐 Web Dashboard", URL: dashboard}}},
	})
}
