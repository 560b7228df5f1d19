package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/candicepay/bot-service/internal/app"
	"github.com/candicepay/bot-service/internal/domain"
	"github.com/candicepay/bot-service/pkg/vision"
	"go.uber.org/zap"
)

var errManualFormat = errors.New("manual details format")

func (o *Orchestrator) continueRegistration(ctx context.Context, u Update, session *domain.Session) {
	text := strings.TrimSpace(u.Text)

	switch session.Step {
	case domain.StepAwaitingEmail:
		if !app.ValidEmail(text) {
			o.reply(ctx, u, "Please enter a valid email address:")
			return
		}
		session.Email = text
		session.Step = domain.StepAwaitingFirstName
		if o.save(ctx, u, session) {
			o.reply(ctx, u, "Great! Now send your first name:")
		}

	case domain.StepAwaitingFirstName:
		if text == "" {
			o.reply(ctx, u, "Please send your first name:")
			return
		}
		session.FirstName = text
		session.Step = domain.StepAwaitingPhone
		if o.save(ctx, u, session) {
			o.reply(ctx, u, "Send your phone number (e.g., 08012345678):")
		}

	case domain.StepAwaitingPhone:
		if _, ok := app.NormalizePhone(text); !ok {
			o.reply(ctx, u, "Please enter a valid phone number (10+ digits):")
			return
		}
		o.reply(ctx, u, "🔄 Creating your virtual account...")
		o.completeRegistration(ctx, u, session, text)
	}
}

func (o *Orchestrator) completeRegistration(ctx context.Context, u Update, session *domain.Session, phone string) {
	// The session ends whatever the outcome; a retry starts again at /register.
	o.endSession(ctx, u.TelegramID)

	result, err := o.service.Register(ctx, app.RegistrationInput{
		TelegramID:   u.TelegramID,
		Email:        session.Email,
		FirstName:    session.FirstName,
		Phone:        phone,
		ReferralCode: session.ReferredBy,
	})
	if err != nil {
		o.logger.Warn("registration failed", zap.Int64("telegram_id", u.TelegramID), zap.Error(err))
		o.reply(ctx, u, userMessageForError(err))
		return
	}

	o.send(ctx, OutgoingMessage{ChatID: u.ChatID, Text: registrationSuccessText(result), Markdown: true, Keyboard: mainKeyboard})

	if result.Referrer != nil && result.Referrer.TelegramID != 0 {
		o.send(ctx, OutgoingMessage{ChatID: result.Referrer.TelegramID, Text: referralNoticeText(result.User.FirstName)})
	}
}

// ParseManualDetails reads "account_number, bank name, account name[, amount]".
func ParseManualDetails(text string) (domain.SlipDetails, error) {
	parts := strings.Split(text, ",")
	// Amounts typed with thousands separators arrive split; rejoin the tail.
	if len(parts) > 4 {
		parts = append(parts[:3], strings.Join(parts[3:], ""))
	}
	if len(parts) < 3 {
		return domain.SlipDetails{}, errManualFormat
	}

	account, ok := app.NormalizeAccountNumber(parts[0])
	if !ok {
		return domain.SlipDetails{}, fmt.Errorf("%w: account number must be 10 digits", errManualFormat)
	}
	details := domain.SlipDetails{
		AccountNumber: account,
		BankName:      strings.TrimSpace(parts[1]),
		AccountName:   strings.TrimSpace(parts[2]),
	}
	if details.BankName == "" {
		return domain.SlipDetails{}, fmt.Errorf("%w: missing bank name", errManualFormat)
	}
	if len(parts) == 4 && strings.TrimSpace(parts[3]) != "" {
		amount, err := domain.ParseAmount(parts[3])
		if err != nil || !amount.IsPositive() {
			return domain.SlipDetails{}, fmt.Errorf("%w: invalid amount", errManualFormat)
		}
		details.Amount = amount
	}
	return details, nil
}

func (o *Orchestrator) manualDetails(ctx context.Context, u Update, session *domain.Session) {
	details, err := ParseManualDetails(u.Text)
	if err != nil {
		o.send(ctx, OutgoingMessage{ChatID: u.ChatID, Text: "❌ I couldn't read those details.\n\n" + manualEntryPrompt, Markdown: true})
		return
	}
	o.presentDraft(ctx, u, session, details)
}

func (o *Orchestrator) handlePhoto(ctx context.Context, u Update) {
	session, err := o.session(ctx, u.TelegramID)
	if err != nil {
		o.fail(ctx, u, "load session", err)
		return
	}
	if session == nil || session.Step != domain.StepAwaitingPaymentScan {
		return
	}

	o.reply(ctx, u, "🔍 Processing image...")
	imageURL, err := o.messenger.FileURL(ctx, u.PhotoFileID)
	if err != nil {
		o.fail(ctx, u, "resolve photo", err)
		return
	}
	details, err := o.extractor.ExtractSlip(ctx, imageURL)
	if err != nil {
		if errors.Is(err, vision.ErrExtractionFailed) {
			o.reply(ctx, u, extractionFailedText)
			return
		}
		o.logger.Warn("slip extraction failed", zap.Int64("telegram_id", u.TelegramID), zap.Error(err))
		o.endSession(ctx, u.TelegramID)
		o.reply(ctx, u, "❌ Error processing image. Please try again.")
		return
	}
	o.presentDraft(ctx, u, session, details)
}

// presentDraft stores the recipient and either asks for the amount or for confirmation.
func (o *Orchestrator) presentDraft(ctx context.Context, u Update, session *domain.Session, details domain.SlipDetails) {
	draft := &domain.PaymentDraft{
		AccountNumber: details.AccountNumber,
		AccountName:   details.AccountName,
		BankName:      details.BankName,
	}
	if details.HasAmount() {
		draft.AmountKobo = domain.ToKobo(details.Amount)
	}
	session.Payment = draft

	if draft.AmountKobo > 0 {
		user := o.registeredUser(ctx, u)
		if user == nil {
			return
		}
		if draft.AmountKobo > user.WalletBalance {
			draft.AmountKobo = 0
			session.Step = domain.StepAwaitingPaymentAmount
			if o.save(ctx, u, session) {
				o.send(ctx, OutgoingMessage{
					ChatID:   u.ChatID,
					Text:     "⚠️ That amount is more than your balance of " + domain.FormatNaira(user.WalletBalance) + ".\n\n" + paymentDetailsText(draft),
					Markdown: true,
				})
			}
			return
		}
		o.askConfirmation(ctx, u, session)
		return
	}

	session.Step = domain.StepAwaitingPaymentAmount
	if o.save(ctx, u, session) {
		o.send(ctx, OutgoingMessage{ChatID: u.ChatID, Text: paymentDetailsText(draft), Markdown: true})
	}
}

func (o *Orchestrator) paymentAmount(ctx context.Context, u Update, session *domain.Session) {
	if session.Payment == nil {
		o.endSession(ctx, u.TelegramID)
		o.reply(ctx, u, "❌ Payment details not found. Please start over with /pay.")
		return
	}
	amount, err := domain.ParseAmount(u.Text)
	if err != nil || !amount.IsPositive() || domain.ToKobo(amount) <= 0 {
		o.reply(ctx, u, "Please enter a valid amount (e.g., 5000 or 5,000.50):")
		return
	}
	user := o.registeredUser(ctx, u)
	if user == nil {
		return
	}
	kobo := domain.ToKobo(amount)
	if kobo > user.WalletBalance {
		o.reply(ctx, u, "❌ Amount exceeds your balance of "+domain.FormatNaira(user.WalletBalance)+". Enter a smaller amount:")
		return
	}
	session.Payment.AmountKobo = kobo
	o.askConfirmation(ctx, u, session)
}

func (o *Orchestrator) askConfirmation(ctx context.Context, u Update, session *domain.Session) {
	session.Step = domain.StepAwaitingPaymentConfirmation
	if !o.save(ctx, u, session) {
		return
	}
	o.send(ctx, OutgoingMessage{
		ChatID:   u.ChatID,
		Text:     paymentDetailsText(session.Payment),
		Markdown: true,
		Inline: [][]Button{{
			{Text: "✅ Confirm Payment", Data: callbackConfirm},
			{Text: "❌ Cancel", Data: callbackCancel},
		}},
	})
}

func (o *Orchestrator) handleCallback(ctx context.Context, u Update) {
	o.answer(ctx, u, "")

	switch u.CallbackData {
	case "quick_payment":
		o.pay(ctx, u)
		return
	case callbackCancel:
		o.endSession(ctx, u.TelegramID)
		o.edit(ctx, u, "❌ Payment cancelled.", false)
		return
	}

	session, err := o.session(ctx, u.TelegramID)
	if err != nil {
		o.fail(ctx, u, "load session", err)
		return
	}

	switch u.CallbackData {
	case callbackScan, callbackManual:
		if session == nil || session.UserID == 0 {
			o.edit(ctx, u, "❌ This payment has expired. Start again with /pay.", false)
			return
		}
		if u.CallbackData == callbackScan {
			session.Step = domain.StepAwaitingPaymentScan
			if o.save(ctx, u, session) {
				o.edit(ctx, u, scanPrompt, false)
			}
			return
		}
		session.Step = domain.StepAwaitingManualDetails
		if o.save(ctx, u, session) {
			o.edit(ctx, u, manualEntryPrompt, true)
		}

	case callbackConfirm:
		if session == nil || session.Step != domain.StepAwaitingPaymentConfirmation || session.Payment == nil || session.Payment.AmountKobo <= 0 {
			o.edit(ctx, u, "❌ Payment details not found. Please start over.", false)
			return
		}
		o.confirmPayment(ctx, u, session)
	}
}

func (o *Orchestrator) confirmPayment(ctx context.Context, u Update, session *domain.Session) {
	// Ending the session first makes a second tap on Confirm find nothing to pay.
	o.endSession(ctx, u.TelegramID)
	o.edit(ctx, u, "🔄 Processing payment...", false)

	draft := session.Payment
	result, err := o.service.ProcessPayment(ctx, app.PaymentInput{
		UserID:        session.UserID,
		RecipientName: draft.AccountName,
		AccountNumber: draft.AccountNumber,
		BankName:      draft.BankName,
		AmountKobo:    draft.AmountKobo,
	})
	if err != nil {
		text := userMessageForError(err)
		if result != nil && result.Transaction != nil {
			text += "\nReference: " + result.Transaction.Reference
		}
		o.logger.Warn("payment failed", zap.Int64("telegram_id", u.TelegramID), zap.Error(err))
		o.edit(ctx, u, text, false)
		return
	}
	o.edit(ctx, u, paymentInitiatedText(result), true)
}

// edit replaces the callback's message, or sends a new one when there is none.
func (o *Orchestrator) edit(ctx context.Context, u Update, text string, markdown bool) {
	o.send(ctx, OutgoingMessage{ChatID: u.ChatID, Text: text, Markdown: markdown, EditMessageID: u.MessageID})
}
