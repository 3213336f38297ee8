package storage

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/xaenox/concierge-bot/internal/models"
)

type MemoryStorage struct {
	mu       sync.RWMutex
	bookings map[string][]*models.Booking
	turns    map[string][]*models.Turn
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		bookings: make(map[string][]*models.Booking),
		turns:    make(map[string][]*models.Turn),
	}
}

func (s *MemoryStorage) SaveBooking(ctx context.Context, booking *models.Booking) error {
	if booking == nil {
		return fmt.Errorf("cannot save nil booking")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if booking.ID == "" {
		booking.ID = uuid.New().String()
	}
	if booking.CreatedAt.IsZero() {
		booking.CreatedAt = time.Now()
	}
	stored := *booking
	s.bookings[booking.SenderID] = append(s.bookings[booking.SenderID], &stored)
	return nil
}

func (s *MemoryStorage) ListBookings(ctx context.Context, senderID string) ([]*models.Booking, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	bookings := s.bookings[senderID]
	out := make([]*models.Booking, 0, len(bookings))
	for _, b := range bookings {
		c := *b
		out = append(out, &c)
	}
	return out, nil
}

func (s *MemoryStorage) AppendTurn(ctx context.Context, turn *models.Turn) error {
	if turn == nil {
		return fmt.Errorf("cannot append nil turn")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if turn.CreatedAt.IsZero() {
		turn.CreatedAt = time.Now()
	}
	stored := *turn
	s.turns[turn.SenderID] = append(s.turns[turn.SenderID], &stored)
	return nil
}

func (s *MemoryStorage) GetTurns(ctx context.Context, senderID string, limit int) ([]*models.Turn, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	turns := s.turns[senderID]
	if limit > 0 && len(turns) > limit {
		turns = turns[len(turns)-limit:]
	}
	out := make([]*models.Turn, 0, len(turns))
	for _, t := range turns {
		c := *t
		out = append(out, &c)
	}
	return out, nil
}

func (s *MemoryStorage) Close() error {
	// Nothing to close for in-memory storage
	return nil
}
