package outbound

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/xaenox/concierge-bot/internal/metrics"
	"github.com/xaenox/concierge-bot/internal/models"
	"github.com/xaenox/concierge-bot/internal/queue"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	// DefaultPacing is the gap between consecutive sends to one recipient.
	DefaultPacing = 900 * time.Millisecond

	// DefaultSendTimeout bounds a single call to the messaging API.
	DefaultSendTimeout = 15 * time.Second

	// limiterSweepThreshold is the limiter count above which idle ones are dropped.
	limiterSweepThreshold = 1024
)

// Sender delivers one message through the messaging platform.
type Sender interface {
	Send(ctx context.Context, msg models.OutboundMessage) error
}

// Outbox delivers reply batches in the background. Messages to the same
// recipient go out in enqueue order, one batch at a time, with at least
// the pacing delay between two sends.
type Outbox struct {
	lanes       *queue.Lanes
	sender      Sender
	pacing      time.Duration
	sendTimeout time.Duration
	logger      *zap.Logger

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

type Options struct {
	Pacing      time.Duration
	SendTimeout time.Duration
	// MaxPending bounds the batches waiting per recipient. Zero means unbounded.
	MaxPending int
}

func NewOutbox(sender Sender, opts Options, logger *zap.Logger) (*Outbox, error) {
	if sender == nil {
		return nil, fmt.Errorf("outbox creation failed: sender is required")
	}
	if opts.Pacing <= 0 {
		return nil, fmt.Errorf("outbox creation failed: pacing must be positive")
	}
	if opts.SendTimeout <= 0 {
		opts.SendTimeout = DefaultSendTimeout
	}

	return &Outbox{
		lanes:       queue.NewLanes(opts.MaxPending, logger),
		sender:      sender,
		pacing:      opts.Pacing,
		sendTimeout: opts.SendTimeout,
		logger:      logger,
		limiters:    make(map[string]*rate.Limiter),
	}, nil
}

// Enqueue schedules msgs for delivery. Messages are grouped by recipient,
// keeping their relative order, and each group is queued as one batch.
func (o *Outbox) Enqueue(ctx context.Context, msgs ...models.OutboundMessage) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	var order []string
	batches := make(map[string][]models.OutboundMessage)
	for _, msg := range msgs {
		if _, seen := batches[msg.To]; !seen {
			order = append(order, msg.To)
		}
		batches[msg.To] = append(batches[msg.To], msg)
	}

	for _, to := range order {
		batch := batches[to]
		if err := o.lanes.Push(to, func(ctx context.Context) {
			o.deliver(ctx, to, batch)
		}); err != nil {
			return fmt.Errorf("error queueing %d messages for %s: %w", len(batch), to, err)
		}
	}
	return nil
}

func (o *Outbox) deliver(ctx context.Context, to string, batch []models.OutboundMessage) {
	limiter := o.limiter(to)

	for _, msg := range batch {
		if err := limiter.Wait(ctx); err != nil {
			o.logger.Warn("Dropping outbound message",
				zap.Error(err),
				zap.String("to", to),
				zap.String("message_id", msg.ID))
			metrics.OutboundSends.WithLabelValues(string(msg.Kind), "dropped").Inc()
			continue
		}

		sendCtx, cancel := context.WithTimeout(ctx, o.sendTimeout)
		err := o.sender.Send(sendCtx, msg)
		cancel()

		if err != nil {
			// one failed send does not abort the rest of the batch
			o.logger.Error("Failed to send message",
				zap.Error(err),
				zap.String("to", to),
				zap.String("message_id", msg.ID),
				zap.String("kind", string(msg.Kind)),
				zap.Int("seq", msg.Seq))
			metrics.OutboundSends.WithLabelValues(string(msg.Kind), "error").Inc()
			continue
		}
		metrics.OutboundSends.WithLabelValues(string(msg.Kind), "ok").Inc()
	}
}

func (o *Outbox) limiter(to string) *rate.Limiter {
	o.mu.Lock()
	defer o.mu.Unlock()

	if l, ok := o.limiters[to]; ok {
		return l
	}

	if len(o.limiters) >= limiterSweepThreshold {
		for key, l := range o.limiters {
			if l.Tokens() >= 1 {
				delete(o.limiters, key)
			}
		}
	}

	l := rate.NewLimiter(rate.Every(o.pacing), 1)
	o.limiters[to] = l
	return l
}

// Active returns the number of recipients with batches queued or in flight.
func (o *Outbox) Active() int {
	return o.lanes.Active()
}

// Close waits for queued messages to be delivered or ctx to expire.
func (o *Outbox) Close(ctx context.Context) error {
	return o.lanes.Close(ctx)
}
