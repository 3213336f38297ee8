package storage

import (
	"context"

	"github.com/xaenox/concierge-bot/internal/models"
)

type Storage interface {
	SaveBooking(ctx context.Context, booking *models.Booking) error
	ListBookings(ctx context.Context, senderID string) ([]*models.Booking, error)
	Close() error

	// Embed TurnStorage interface
	TurnStorage
}

// TurnStorage keeps an audit copy of conversation turns.
type TurnStorage interface {
	AppendTurn(ctx context.Context, turn *models.Turn) error
	// GetTurns returns the most recent turns for a sender, oldest first.
	GetTurns(ctx context.Context, senderID string, limit int) ([]*models.Turn, error)
}
