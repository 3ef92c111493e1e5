package transport

import (
	"context"
	"errors"
	"sync"
)

// ErrDeliveryFailed is returned by Recorder for chats marked as failing.
var ErrDeliveryFailed = errors.New("delivery failed")

// Message is one outbound message captured by Recorder.
type Message struct {
	ChatID    string
	MessageID int
	Text      string
	Buttons   [][]Button
	Deleted   bool
	Edits     int
}

// Recorder is an in-memory Transport used by tests and dry runs.
type Recorder struct {
	mu        sync.Mutex
	nextID    int
	messages  []*Message
	answers   map[string]string
	failChats map[string]bool
}

// NewRecorder builds an empty recorder.
func NewRecorder() *Recorder {
	return &Recorder{
		answers:   make(map[string]string),
		failChats: make(map[string]bool),
	}
}

// FailChat makes every delivery to chatID fail until cleared.
func (r *Recorder) FailChat(chatID string, fail bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failChats[chatID] = fail
}

func (r *Recorder) SendDirect(ctx context.Context, chatID, text string) (MessageRef, error) {
	return r.SendWithButtons(ctx, chatID, text, nil)
}

func (r *Recorder) SendWithButtons(_ context.Context, chatID, text string, buttons [][]Button) (MessageRef, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failChats[chatID] {
		return MessageRef{}, ErrDeliveryFailed
	}
	r.nextID++
	r.messages = append(r.messages, &Message{
		ChatID:    chatID,
		MessageID: r.nextID,
		Text:      text,
		Buttons:   buttons,
	})
	return MessageRef{ChatID: chatID, MessageID: r.nextID}, nil
}

func (r *Recorder) EditMessage(_ context.Context, chatID string, messageID int, text string, buttons [][]Button) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failChats[chatID] {
		return ErrDeliveryFailed
	}
	msg := r.find(chatID, messageID)
	if msg == nil {
		return errors.New("message not found")
	}
	msg.Text = text
	msg.Buttons = buttons
	msg.Edits++
	return nil
}

func (r *Recorder) DeleteMessage(_ context.Context, chatID string, messageID int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	msg := r.find(chatID, messageID)
	if msg == nil {
		return errors.New("message not found")
	}
	msg.Deleted = true
	return nil
}

func (r *Recorder) AnswerCallback(_ context.Context, callbackID, text string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.answers[callbackID] = text
	return nil
}

// Messages returns copies of the live (not deleted) messages sent to chatID.
func (r *Recorder) Messages(chatID string) []Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Message
	for _, msg := range r.messages {
		if msg.ChatID == chatID && !msg.Deleted {
			out = append(out, *msg)
		}
	}
	return out
}

// Last returns the most recent live message sent to chatID.
func (r *Recorder) Last(chatID string) (Message, bool) {
	msgs := r.Messages(chatID)
	if len(msgs) == 0 {
		return Message{}, false
	}
	return msgs[len(msgs)-1], true
}

// Get returns the message with the given ID, deleted or not.
func (r *Recorder) Get(chatID string, messageID int) (Message, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if msg := r.find(chatID, messageID); msg != nil {
		return *msg, true
	}
	return Message{}, false
}

// Answer returns the text the callback was answered with.
func (r *Recorder) Answer(callbackID string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	text, ok := r.answers[callbackID]
	return text, ok
}

func (r *Recorder) find(chatID string, messageID int) *Message {
	for _, msg := range r.messages {
		if msg.ChatID == chatID && msg.MessageID == messageID {
			return msg
		}
	}
	return nil
}
