/**
 * @description
 * Telegram transport: long-polls the Bot API, normalizes updates for the
 * orchestrator and renders OutgoingMessage values back into Bot API calls.
 *
 * @dependencies
 * - github.com/go-telegram-bot-api/telegram-bot-api/v5: Bot API client.
 */

package bot

import (
	"context"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

const pollTimeoutSeconds = 60

// TelegramBot adapts the Bot API to Messenger and app.ChatNotifier.
type TelegramBot struct {
	api    *tgbotapi.BotAPI
	logger *zap.Logger
}

// NewTelegramBot authenticates with token and returns the adapter.
func NewTelegramBot(token string, logger *zap.Logger) (*TelegramBot, error) {
	if strings.TrimSpace(token) == "" {
		return nil, fmt.Errorf("telegram bot token is required")
	}
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("connect to telegram: %w", err)
	}
	return &TelegramBot{api: api, logger: logger.With(zap.String("component", "telegram"))}, nil
}

// Username is the bot's @handle without the @.
func (t *TelegramBot) Username() string {
	return t.api.Self.UserName
}

// Run polls for updates until ctx is cancelled. Updates for one user are handled
// in order; different users proceed concurrently.
func (t *TelegramBot) Run(ctx context.Context, handle func(context.Context, Update)) error {
	cfg := tgbotapi.NewUpdate(0)
	cfg.Timeout = pollTimeoutSeconds
	updates := t.api.GetUpdatesChan(cfg)

	d := newDispatcher(handle)
	t.logger.Info("bot polling started", zap.String("username", t.Username()))

	for {
		select {
		case <-ctx.Done():
			t.api.StopReceivingUpdates()
			d.wait()
			t.logger.Info("bot polling stopped")
			return nil
		case raw, ok := <-updates:
			if !ok {
				d.wait()
				return fmt.Errorf("telegram update channel closed")
			}
			if u, ok := toUpdate(raw); ok {
				d.dispatch(ctx, u)
			}
		}
	}
}

// toUpdate keeps messages, photos and callback queries; everything else is dropped.
func toUpdate(raw tgbotapi.Update) (Update, bool) {
	if cq := raw.CallbackQuery; cq != nil {
		if cq.From == nil {
			return Update{}, false
		}
		u := Update{
			TelegramID:   cq.From.ID,
			ChatID:       cq.From.ID,
			FirstName:    cq.From.FirstName,
			CallbackID:   cq.ID,
			CallbackData: cq.Data,
		}
		if cq.Message != nil {
			u.MessageID = cq.Message.MessageID
			if cq.Message.Chat != nil {
				u.ChatID = cq.Message.Chat.ID
			}
		}
		return u, true
	}

	msg := raw.Message
	if msg == nil || msg.From == nil {
		return Update{}, false
	}
	u := Update{TelegramID: msg.From.ID, ChatID: msg.From.ID, FirstName: msg.From.FirstName}
	if msg.Chat != nil {
		u.ChatID = msg.Chat.ID
	}
	switch {
	case msg.IsCommand():
		u.Command = strings.ToLower(msg.Command())
		u.Args = msg.CommandArguments()
	case len(msg.Photo) > 0:
		// Telegram lists sizes smallest first.
		u.PhotoFileID = msg.Photo[len(msg.Photo)-1].FileID
	case msg.Text != "":
		u.Text = msg.Text
	default:
		return Update{}, false
	}
	return u, true
}

// Send delivers msg, editing the referenced message when EditMessageID is set.
func (t *TelegramBot) Send(ctx context.Context, msg OutgoingMessage) error {
	var c tgbotapi.Chattable
	if msg.EditMessageID != 0 {
		edit := tgbotapi.NewEditMessageText(msg.ChatID, msg.EditMessageID, msg.Text)
		if msg.Markdown {
			edit.ParseMode = tgbotapi.ModeMarkdown
		}
		if len(msg.Inline) > 0 {
			markup := inlineMarkup(msg.Inline)
			edit.ReplyMarkup = &markup
		}
		c = edit
	} else {
		out := tgbotapi.NewMessage(msg.ChatID, msg.Text)
		if msg.Markdown {
			out.ParseMode = tgbotapi.ModeMarkdown
		}
		switch {
		case len(msg.Inline) > 0:
			out.ReplyMarkup = inlineMarkup(msg.Inline)
		case len(msg.Keyboard) > 0:
			out.ReplyMarkup = replyKeyboard(msg.Keyboard)
		}
		c = out
	}

	if _, err := t.api.Send(c); err != nil {
		return fmt.Errorf("telegram send to %d: %w", msg.ChatID, err)
	}
	return nil
}

// AnswerCallback stops the client's loading spinner on an inline button.
func (t *TelegramBot) AnswerCallback(ctx context.Context, callbackID, text string) error {
	_, err := t.api.Request(tgbotapi.NewCallback(callbackID, text))
	return err
}

// FileURL returns a download URL for an uploaded file.
func (t *TelegramBot) FileURL(ctx context.Context, fileID string) (string, error) {
	return t.api.GetFileDirectURL(fileID)
}

// NotifyUser sends an unsolicited plain-text message.
func (t *TelegramBot) NotifyUser(ctx context.Context, telegramID int64, text string) error {
	return t.Send(ctx, OutgoingMessage{ChatID: telegramID, Text: text})
}

func inlineMarkup(rows [][]Button) tgbotapi.InlineKeyboardMarkup {
	keyboard := make([][]tgbotapi.InlineKeyboardButton, 0, len(rows))
	for _, row := range rows {
		buttons := make([]tgbotapi.InlineKeyboardButton, 0, len(row))
		for _, b := range row {
			if b.URL != "" {
				buttons = append(buttons, tgbotapi.NewInlineKeyboardButtonURL(b.Text, b.URL))
				continue
			}
			buttons = append(buttons, tgbotapi.NewInlineKeyboardButtonData(b.Text, b.Data))
		}
		keyboard = append(keyboard, buttons)
	}
	return tgbotapi.NewInlineKeyboardMarkup(keyboard...)
}

func replyKeyboard(rows [][]string) tgbotapi.ReplyKeyboardMarkup {
	keyboard := make([][]tgbotapi.KeyboardButton, 0, len(rows))
	for _, row := range rows {
		buttons := make([]tgbotapi.KeyboardButton, 0, len(row))
		for _, text := range row {
			buttons = append(buttons, tgbotapi.NewKeyboardButton(text))
		}
		keyboard = append(keyboard, buttons)
	}
	markup := tgbotapi.NewReplyKeyboard(keyboard...)
	markup.ResizeKeyboard = true
	return markup
}
