package bot

import (
	"context"
	"fmt"

	"github.com/xaenox/concierge-bot/internal/models"
	"github.com/xaenox/concierge-bot/internal/queue"
)

// Inbox hands inbound events to the bot off the request path. Events from
// the same sender are handled one after another.
type Inbox struct {
	bot   *Bot
	lanes *queue.Lanes
}

func NewInbox(bot *Bot, lanes *queue.Lanes) *Inbox {
	return &Inbox{bot: bot, lanes: lanes}
}

func (in *Inbox) Accept(event models.InboundEvent) error {
	if err := in.lanes.Push(event.From, func(ctx context.Context) {
		in.bot.Handle(ctx, event)
	}); err != nil {
		return fmt.Errorf("error queueing message from %s: %w", event.From, err)
	}
	return nil
}

// Close waits for accepted events to be handled.
func (in *Inbox) Close(ctx context.Context) error {
	return in.lanes.Close(ctx)
}
