package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/xaenox/concierge-bot/internal/assistant"
	"github.com/xaenox/concierge-bot/internal/catalog"
	"github.com/xaenox/concierge-bot/internal/metrics"
	"github.com/xaenox/concierge-bot/internal/models"
	"github.com/xaenox/concierge-bot/internal/storage"
	"go.uber.org/zap"
)

const (
	ApologyText         = "My apologies, I am momentarily unable to assist."
	GenericConfirmation = "Booking confirmed"

	// DefaultModelTimeout bounds a single model call.
	DefaultModelTimeout = 30 * time.Second

	bookPrefix = "book:"
	bookPhrase = "book now"
)

// SessionProvider hands out the conversation session for a sender.
type SessionProvider interface {
	GetOrCreate(ctx context.Context, sender string) (assistant.Session, error)
}

// Outbox accepts an ordered batch of messages for delivery.
type Outbox interface {
	Enqueue(ctx context.Context, msgs ...models.OutboundMessage) error
}

type Config struct {
	// ModelConfigured and TransportConfigured report whether the model API
	// key and messaging credentials were supplied.
	ModelConfigured     bool
	TransportConfigured bool
	// PublicBaseURL resolves relative activity images.
	PublicBaseURL string
	ModelTimeout  time.Duration
	// BookingLinks appends a wa.me booking link to cards sent over WhatsApp.
	BookingLinks bool
}

type Bot struct {
	sessions SessionProvider
	catalog  *catalog.Catalog
	outbox   Outbox
	storage  storage.Storage
	config   Config
	logger   *zap.Logger
	newID    func() string
}

func New(sessions SessionProvider, cat *catalog.Catalog, outbox Outbox, store storage.Storage, cfg Config, logger *zap.Logger) (*Bot, error) {
	if cat == nil {
		return nil, fmt.Errorf("failed to create bot: catalog is required")
	}
	if outbox == nil {
		return nil, fmt.Errorf("failed to create bot: outbox is required")
	}
	if store == nil {
		return nil, fmt.Errorf("failed to create bot: storage is required")
	}
	if sessions == nil && cfg.ModelConfigured {
		return nil, fmt.Errorf("failed to create bot: session provider is required")
	}
	if cfg.ModelTimeout <= 0 {
		cfg.ModelTimeout = DefaultModelTimeout
	}

	return &Bot{
		sessions: sessions,
		catalog:  cat,
		outbox:   outbox,
		storage:  store,
		config:   cfg,
		logger:   logger,
		newID:    func() string { return uuid.New().String() },
	}, nil
}

// Handle processes one inbound event. Replies are handed to the outbox;
// nothing is returned to the caller, failures end in a single apology.
func (b *Bot) Handle(ctx context.Context, event models.InboundEvent) {
	body := strings.TrimSpace(event.Body)

	if activity, ok := parseBooking(body); ok {
		metrics.InboundEvents.WithLabelValues("command").Inc()
		if !b.config.TransportConfigured {
			return
		}
		b.handleBooking(ctx, event, activity)
		return
	}

	if !b.config.ModelConfigured || !b.config.TransportConfigured {
		metrics.InboundEvents.WithLabelValues("ignored").Inc()
		b.logger.Debug("Credentials missing, ignoring message",
			zap.String("from", event.From),
			zap.Bool("model_configured", b.config.ModelConfigured),
			zap.Bool("transport_configured", b.config.TransportConfigured))
		return
	}
	metrics.InboundEvents.WithLabelValues("chat").Inc()

	msgs, err := b.converse(ctx, event, body)
	if err != nil {
		var relayErr *RelayError
		if !errors.As(err, &relayErr) {
			relayErr = relayError("relay", err)
		}
		metrics.RelayErrors.WithLabelValues(string(relayErr.Kind), relayErr.Stage).Inc()
		b.logger.Error("Failed to relay message",
			zap.Error(err),
			zap.String("from", event.From),
			zap.String("stage", relayErr.Stage),
			zap.String("kind", string(relayErr.Kind)))
		msgs = []models.OutboundMessage{b.message(event, models.ApologyMessage, ApologyText, "", 0)}
	}

	b.enqueue(ctx, event, msgs)
}

func (b *Bot) converse(ctx context.Context, event models.InboundEvent, body string) ([]models.OutboundMessage, error) {
	sess, err := b.sessions.GetOrCreate(ctx, event.From)
	if err != nil {
		return nil, relayError("session", err)
	}

	b.recordTurn(ctx, event.From, models.RoleUser, body)

	modelCtx, cancel := context.WithTimeout(ctx, b.config.ModelTimeout)
	start := time.Now()
	reply, err := sess.Submit(modelCtx, body)
	cancel()
	if err != nil {
		metrics.ModelLatency.WithLabelValues("error").Observe(time.Since(start).Seconds())
		return nil, relayError("model", err)
	}
	metrics.ModelLatency.WithLabelValues("ok").Observe(time.Since(start).Seconds())

	b.recordTurn(ctx, event.From, models.RoleAssistant, reply)

	lines := SplitLines(reply)
	msgs := make([]models.OutboundMessage, 0, len(lines))
	for _, line := range lines {
		msgs = append(msgs, b.message(event, models.TextMessage, line, "", len(msgs)))
	}

	for _, a := range b.catalog.Mentioned(reply) {
		mediaURL, err := catalog.MediaURL(a, b.config.PublicBaseURL)
		if err != nil {
			return nil, relayError("cards", err)
		}
		caption := catalog.Caption(a)
		if b.config.BookingLinks && catalog.IsWhatsApp(event.To) {
			caption += "\n\nBook now: " + catalog.BookingLink(event.To, a.Name)
		}
		msgs = append(msgs, b.message(event, models.CardMessage, caption, mediaURL, len(msgs)))
	}

	if len(msgs) == 0 {
		b.logger.Warn("Model returned an empty reply", zap.String("from", event.From))
	}
	return msgs, nil
}

func (b *Bot) handleBooking(ctx context.Context, event models.InboundEvent, activity string) {
	text := GenericConfirmation
	if activity != "" {
		text = fmt.Sprintf("✅ Confirming your reservation for *%s*.\n"+
			"We have notified the concierge, and you will receive a confirmation shortly. 🛎️", activity)

		_, known := b.catalog.Lookup(activity)
		booking := &models.Booking{
			ID:        b.newID(),
			SenderID:  event.From,
			Activity:  activity,
			Known:     known,
			CreatedAt: time.Now(),
		}
		if err := b.storage.SaveBooking(ctx, booking); err != nil {
			b.logger.Error("Failed to save booking",
				zap.Error(err),
				zap.String("from", event.From),
				zap.String("activity", activity))
		}
	}

	b.enqueue(ctx, event, []models.OutboundMessage{
		b.message(event, models.ConfirmationMessage, text, "", 0),
	})
}

func (b *Bot) enqueue(ctx context.Context, event models.InboundEvent, msgs []models.OutboundMessage) {
	if len(msgs) == 0 {
		return
	}
	if err := b.outbox.Enqueue(ctx, msgs...); err != nil {
		b.logger.Error("Failed to queue reply",
			zap.Error(err),
			zap.String("to", event.From),
			zap.Int("messages", len(msgs)))
	}
}

func (b *Bot) recordTurn(ctx context.Context, sender string, role models.Role, content string) {
	err := b.storage.AppendTurn(ctx, &models.Turn{
		SenderID:  sender,
		Role:      role,
		Content:   content,
		CreatedAt: time.Now(),
	})
	if err != nil {
		b.logger.Warn("Failed to record turn",
			zap.Error(err),
			zap.String("from", sender),
			zap.String("role", string(role)))
	}
}

func (b *Bot) message(event models.InboundEvent, kind models.MessageKind, body, mediaURL string, seq int) models.OutboundMessage {
	return models.OutboundMessage{
		ID:       b.newID(),
		From:     event.To,
		To:       event.From,
		Body:     body,
		MediaURL: mediaURL,
		Kind:     kind,
		Seq:      seq,
	}
}

// parseBooking recognises "Book: <activity>" and "book now", ignoring case.
func parseBooking(body string) (string, bool) {
	if strings.EqualFold(body, bookPhrase) {
		return "", true
	}
	if len(body) >= len(bookPrefix) && strings.EqualFold(body[:len(bookPrefix)], bookPrefix) {
		return strings.TrimSpace(body[len(bookPrefix):]), true
	}
	return "", false
}

// SplitLines breaks a reply into trimmed, non-blank display lines.
func SplitLines(text string) []string {
	raw := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")
	lines := make([]string, 0, len(raw))
	for _, line := range raw {
		if line = strings.TrimSpace(line); line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}
