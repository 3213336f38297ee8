package session

import (
	"container/list"
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/xaenox/concierge-bot/internal/assistant"
	"github.com/xaenox/concierge-bot/internal/metrics"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

const (
	// DefaultTTL is how long an idle session is kept.
	DefaultTTL = 24 * time.Hour

	// DefaultMaxSessions bounds the number of sessions held at once.
	DefaultMaxSessions = 10000
)

type Options struct {
	// TTL is the idle time after which a session is dropped. Zero disables expiry.
	TTL time.Duration
	// MaxSessions caps the registry; the least recently used session is
	// reclaimed first. Zero means unbounded.
	MaxSessions int
}

type entry struct {
	sender   string
	session  assistant.Session
	lastUsed time.Time
}

// Registry maps a sender to its conversation session.
type Registry struct {
	mu      sync.Mutex
	entries map[string]*list.Element
	lru     *list.List
	group   singleflight.Group

	model   assistant.Model
	persona string
	opts    Options
	now     func() time.Time
	logger  *zap.Logger
}

func NewRegistry(model assistant.Model, persona string, opts Options, logger *zap.Logger) *Registry {
	return &Registry{
		entries: make(map[string]*list.Element),
		lru:     list.New(),
		model:   model,
		persona: persona,
		opts:    opts,
		now:     time.Now,
		logger:  logger,
	}
}

// GetOrCreate returns the live session for sender, creating and registering
// one on first contact. Concurrent first contacts share a single creation.
func (r *Registry) GetOrCreate(ctx context.Context, sender string) (assistant.Session, error) {
	if s, ok := r.lookup(sender); ok {
		return s, nil
	}

	v, err, _ := r.group.Do(sender, func() (any, error) {
		if s, ok := r.lookup(sender); ok {
			return s, nil
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		s, err := r.model.NewSession(r.persona)
		if err != nil {
			return nil, fmt.Errorf("error creating session: %w", err)
		}
		r.insert(sender, s)

		r.logger.Debug("Created conversation session", zap.String("sender", sender))
		return s, nil
	})
	if err != nil {
		return nil, err
	}

	return v.(assistant.Session), nil
}

func (r *Registry) lookup(sender string) (assistant.Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	el, exists := r.entries[sender]
	if !exists {
		return nil, false
	}

	e := el.Value.(*entry)
	now := r.now()
	if r.expired(e, now) {
		r.remove(el, "expired")
		return nil, false
	}

	e.lastUsed = now
	r.lru.MoveToFront(el)
	return e.session, true
}

func (r *Registry) insert(sender string, s assistant.Session) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if el, exists := r.entries[sender]; exists {
		r.remove(el, "replaced")
	}
	r.entries[sender] = r.lru.PushFront(&entry{
		sender:   sender,
		session:  s,
		lastUsed: r.now(),
	})

	for r.opts.MaxSessions > 0 && r.lru.Len() > r.opts.MaxSessions {
		oldest := r.lru.Back()
		r.logger.Info("Evicting least recently used session",
			zap.String("sender", oldest.Value.(*entry).sender),
			zap.Int("max_sessions", r.opts.MaxSessions))
		r.remove(oldest, "capacity")
	}
	metrics.SessionsLive.Set(float64(r.lru.Len()))
}

// remove must be called with r.mu held.
func (r *Registry) remove(el *list.Element, reason string) {
	e := el.Value.(*entry)
	r.lru.Remove(el)
	delete(r.entries, e.sender)
	metrics.SessionEvictions.WithLabelValues(reason).Inc()
	metrics.SessionsLive.Set(float64(r.lru.Len()))
}

func (r *Registry) expired(e *entry, now time.Time) bool {
	return r.opts.TTL > 0 && now.Sub(e.lastUsed) > r.opts.TTL
}

// Evict drops the session for sender. It reports whether one existed.
func (r *Registry) Evict(sender string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	el, exists := r.entries[sender]
	if !exists {
		return false
	}
	r.remove(el, "manual")
	return true
}

// CleanupExpired removes idle sessions and returns how many were dropped.
func (r *Registry) CleanupExpired() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	removed := 0
	for el := r.lru.Back(); el != nil; {
		if !r.expired(el.Value.(*entry), now) {
			break
		}
		prev := el.Prev()
		r.remove(el, "expired")
		removed++
		el = prev
	}
	return removed
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lru.Len()
}
