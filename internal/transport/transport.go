package transport

import (
	"context"
)

// Button is an inline keyboard button. Data must fit the platform callback limit.
type Button struct {
	Text string
	Data string
}

// MessageRef identifies a delivered message so it can be edited or deleted later.
type MessageRef struct {
	ChatID    string
	MessageID int
}

// Transport is the outbound side of the chat platform.
type Transport interface {
	SendDirect(ctx context.Context, chatID, text string) (MessageRef, error)
	SendWithButtons(ctx context.Context, chatID, text string, buttons [][]Button) (MessageRef, error)
	// EditMessage replaces text and keyboard. A nil keyboard removes the buttons.
	EditMessage(ctx context.Context, chatID string, messageID int, text string, buttons [][]Button) error
	DeleteMessage(ctx context.Context, chatID string, messageID int) error
	AnswerCallback(ctx context.Context, callbackID, text string) error
}

// Update is one inbound event from the chat platform, either a message or a button press.
type Update struct {
	ID         int
	ChatID     string
	Private    bool
	SenderID   string
	SenderName string
	MessageID  int
	Text       string
	// ReplyToText is the text of the message this one replies to, if any.
	ReplyToText string

	CallbackID   string
	CallbackData string
}

// IsCallback reports whether the update is an inline button press.
func (u Update) IsCallback() bool {
	return u.CallbackID != ""
}

// InboundHandler consumes updates produced by a connector.
type InboundHandler func(ctx context.Context, update Update) error
