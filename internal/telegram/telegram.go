// Package telegram connects the relay to a Telegram bot: it turns updates
// into inbound events and delivers outbound messages to chats.
package telegram

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/xaenox/concierge-bot/internal/models"
	"go.uber.org/zap"
)

const addressPrefix = "telegram:"

// BotAddress is the From address used for replies sent through Telegram.
const BotAddress = addressPrefix + "bot"

type botAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

// EventSink accepts inbound events for processing.
type EventSink interface {
	Accept(event models.InboundEvent) error
}

// Address renders a chat id as a sender identifier.
func Address(chatID int64) string {
	return addressPrefix + strconv.FormatInt(chatID, 10)
}

// ParseAddress extracts the chat id from a sender identifier.
func ParseAddress(addr string) (int64, error) {
	if !strings.HasPrefix(addr, addressPrefix) {
		return 0, fmt.Errorf("not a telegram address: %q", addr)
	}
	id, err := strconv.ParseInt(strings.TrimPrefix(addr, addressPrefix), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid telegram chat id in %q: %w", addr, err)
	}
	return id, nil
}

type Bot struct {
	api    botAPI
	logger *zap.Logger
}

func New(token string, logger *zap.Logger) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}

	logger.Info("Authorized on Telegram", zap.String("username", api.Self.UserName))
	return &Bot{api: api, logger: logger}, nil
}

// Send implements outbound.Sender.
func (b *Bot) Send(ctx context.Context, msg models.OutboundMessage) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	chatID, err := ParseAddress(msg.To)
	if err != nil {
		return err
	}

	var c tgbotapi.Chattable
	if msg.MediaURL != "" {
		photo := tgbotapi.NewPhoto(chatID, tgbotapi.FileURL(msg.MediaURL))
		photo.Caption = msg.Body
		photo.ParseMode = tgbotapi.ModeMarkdown
		c = photo
	} else {
		c = tgbotapi.NewMessage(chatID, msg.Body)
	}

	if _, err := b.api.Send(c); err != nil {
		return fmt.Errorf("telegram send: %w", err)
	}
	return nil
}

// Run long-polls for updates and forwards messages to sink until ctx is done.
func (b *Bot) Run(ctx context.Context, sink EventSink) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := b.api.GetUpdatesChan(u)
	defer b.api.StopReceivingUpdates()

	for {
		select {
		case <-ctx.Done():
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			if update.Message == nil {
				continue
			}

			event, ok := toEvent(update.Message)
			if !ok {
				continue
			}
			if err := sink.Accept(event); err != nil {
				b.logger.Error("Failed to accept message",
					zap.Error(err),
					zap.Int64("chat_id", update.Message.Chat.ID))
			}
		}
	}
}

func toEvent(message *tgbotapi.Message) (models.InboundEvent, bool) {
	body := message.Text
	if message.Caption != "" {
		body = message.Caption
	}

	if message.IsCommand() {
		switch message.Command() {
		case "start":
			body = "Hello"
		case "book":
			if args := strings.TrimSpace(message.CommandArguments()); args != "" {
				body = "Book: " + args
			} else {
				body = "book now"
			}
		}
	}

	if strings.TrimSpace(body) == "" || message.Chat == nil {
		return models.InboundEvent{}, false
	}

	return models.InboundEvent{
		From:       Address(message.Chat.ID),
		To:         BotAddress,
		Body:       body,
		ReceivedAt: time.Unix(int64(message.Date), 0),
	}, true
}
