package telegram

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-bot/internal/config"
	"github.com/spec-kit/helpdesk-bot/internal/transport"
)

// Connector implements transport.Transport over the Telegram Bot API with long polling.
type Connector struct {
	bot    *tgbotapi.BotAPI
	cfg    config.TelegramConfig
	logger *zap.Logger
}

// New authorizes the bot token and returns a connector.
func New(cfg config.TelegramConfig, logger *zap.Logger) (*Connector, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, fmt.Errorf("telegram: bot token is required")
	}
	bot, err := tgbotapi.NewBotAPI(cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("telegram: init bot: %w", err)
	}
	bot.Debug = cfg.Debug
	if logger == nil {
		logger = zap.NewNop()
	}
	logger.Info("telegram bot authorized", zap.String("username", bot.Self.UserName))
	return &Connector{bot: bot, cfg: cfg, logger: logger}, nil
}

// Start polls for updates and hands them to handler. Updates of one sender are handled in
// arrival order; different senders are handled concurrently.
// It blocks until ctx is cancelled and in-flight updates have finished.
func (c *Connector) Start(ctx context.Context, handler transport.InboundHandler) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = c.cfg.PollTimeoutSeconds
	if u.Timeout <= 0 {
		u.Timeout = 30
	}
	updates := c.bot.GetUpdatesChan(u)
	seq := transport.NewSequencer(handler, c.logger)
	c.logger.Info("telegram connector started", zap.String("bot", c.bot.Self.UserName))

	for {
		select {
		case update, ok := <-updates:
			if !ok {
				seq.Wait()
				return nil
			}
			inbound, ok := convertUpdate(update)
			if !ok {
				continue
			}
			seq.Dispatch(ctx, inbound)
		case <-ctx.Done():
			c.bot.StopReceivingUpdates()
			seq.Wait()
			c.logger.Info("telegram connector stopped")
			return ctx.Err()
		}
	}
}

func (c *Connector) SendDirect(ctx context.Context, chatID, text string) (transport.MessageRef, error) {
	return c.SendWithButtons(ctx, chatID, text, nil)
}

func (c *Connector) SendWithButtons(_ context.Context, chatID, text string, buttons [][]transport.Button) (transport.MessageRef, error) {
	id, err := parseChatID(chatID)
	if err != nil {
		return transport.MessageRef{}, err
	}
	msg := tgbotapi.NewMessage(id, text)
	msg.DisableWebPagePreview = true
	if markup := keyboard(buttons); markup != nil {
		msg.ReplyMarkup = *markup
	}
	sent, err := c.bot.Send(msg)
	if err != nil {
		return transport.MessageRef{}, fmt.Errorf("telegram: send to %s: %w", chatID, err)
	}
	return transport.MessageRef{ChatID: chatID, MessageID: sent.MessageID}, nil
}

func (c *Connector) EditMessage(_ context.Context, chatID string, messageID int, text string, buttons [][]transport.Button) error {
	id, err := parseChatID(chatID)
	if err != nil {
		return err
	}
	edit := tgbotapi.NewEditMessageText(id, messageID, text)
	edit.ReplyMarkup = keyboard(buttons)
	if _, err := c.bot.Request(edit); err != nil {
		return fmt.Errorf("telegram: edit %s/%d: %w", chatID, messageID, err)
	}
	return nil
}

func (c *Connector) DeleteMessage(_ context.Context, chatID string, messageID int) error {
	id, err := parseChatID(chatID)
	if err != nil {
		return err
	}
	if _, err := c.bot.Request(tgbotapi.NewDeleteMessage(id, messageID)); err != nil {
		return fmt.Errorf("telegram: delete %s/%d: %w", chatID, messageID, err)
	}
	return nil
}

func (c *Connector) AnswerCallback(_ context.Context, callbackID, text string) error {
	if _, err := c.bot.Request(tgbotapi.NewCallback(callbackID, text)); err != nil {
		return fmt.Errorf("telegram: answer callback: %w", err)
	}
	return nil
}

func convertUpdate(update tgbotapi.Update) (transport.Update, bool) {
	if cb := update.CallbackQuery; cb != nil {
		if cb.Message == nil || cb.From == nil {
			return transport.Update{}, false
		}
		return transport.Update{
			ID:           update.UpdateID,
			ChatID:       strconv.FormatInt(cb.Message.Chat.ID, 10),
			Private:      cb.Message.Chat.IsPrivate(),
			SenderID:     strconv.FormatInt(cb.From.ID, 10),
			SenderName:   displayName(cb.From),
			MessageID:    cb.Message.MessageID,
			Text:         cb.Message.Text,
			CallbackID:   cb.ID,
			CallbackData: cb.Data,
		}, true
	}

	msg := update.Message
	if msg == nil || msg.From == nil || msg.Chat == nil {
		return transport.Update{}, false
	}
	text := msg.Text
	if text == "" {
		text = msg.Caption
	}
	if text == "" {
		return transport.Update{}, false
	}
	inbound := transport.Update{
		ID:         update.UpdateID,
		ChatID:     strconv.FormatInt(msg.Chat.ID, 10),
		Private:    msg.Chat.IsPrivate(),
		SenderID:   strconv.FormatInt(msg.From.ID, 10),
		SenderName: displayName(msg.From),
		MessageID:  msg.MessageID,
		Text:       text,
	}
	if msg.ReplyToMessage != nil {
		inbound.ReplyToText = msg.ReplyToMessage.Text
	}
	return inbound, true
}

func keyboard(buttons [][]transport.Button) *tgbotapi.InlineKeyboardMarkup {
	if len(buttons) == 0 {
		return nil
	}
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(buttons))
	for _, row := range buttons {
		if len(row) == 0 {
			continue
		}
		tgRow := make([]tgbotapi.InlineKeyboardButton, 0, len(row))
		for _, b := range row {
			tgRow = append(tgRow, tgbotapi.NewInlineKeyboardButtonData(b.Text, b.Data))
		}
		rows = append(rows, tgRow)
	}
	if len(rows) == 0 {
		return nil
	}
	markup := tgbotapi.NewInlineKeyboardMarkup(rows...)
	return &markup
}

func displayName(u *tgbotapi.User) string {
	name := strings.TrimSpace(u.FirstName + " " + u.LastName)
	if name != "" {
		return name
	}
	if u.UserName != "" {
		return u.UserName
	}
	return strconv.FormatInt(u.ID, 10)
}

func parseChatID(chatID string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(chatID), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("telegram: invalid chat_id %q: %w", chatID, err)
	}
	return id, nil
}
