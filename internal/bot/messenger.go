/**
 * @description
 * Transport-neutral shapes for the conversation: the normalized inbound update,
 * the outbound message with its keyboards, and the Messenger port the Telegram
 * adapter implements.
 */

package bot

import "context"

// Update is one inbound event from a chat user, reduced to what the orchestrator reads.
type Update struct {
	TelegramID int64
	ChatID     int64
	FirstName  string

	// Exactly one of Command, PhotoFileID, CallbackData or Text drives routing.
	Command     string
	Args        string
	Text        string
	PhotoFileID string

	CallbackID   string
	CallbackData string
	MessageID    int
}

// Button is an inline keyboard button. URL buttons open a link instead of calling back.
type Button struct {
	Text string
	Data string
	URL  string
}

// OutgoingMessage is a reply. A non-zero EditMessageID replaces that message's text.
type OutgoingMessage struct {
	ChatID        int64
	Text          string
	Markdown      bool
	Inline        [][]Button
	Keyboard      [][]string
	EditMessageID int
}

// Messenger delivers replies and resolves uploaded files.
type Messenger interface {
	Send(ctx context.Context, msg OutgoingMessage) error
	AnswerCallback(ctx context.Context, callbackID, text string) error
	FileURL(ctx context.Context, fileID string) (string, error)
	Username() string
}
