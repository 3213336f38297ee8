package storage

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xaenox/concierge-bot/internal/models"
	"go.uber.org/zap"
)

// exercise runs the same contract checks against any Storage.
func exercise(t *testing.T, s Storage, sender string) {
	t.Helper()
	ctx := context.Background()

	require.NoError(t, s.SaveBooking(ctx, &models.Booking{
		ID:       "2f1d4a1e-8d7b-4c1f-9b8a-000000000001",
		SenderID: sender,
		Activity: "Family Yoga & Wellness",
		Known:    true,
	}))
	require.NoError(t, s.SaveBooking(ctx, &models.Booking{
		ID:       "2f1d4a1e-8d7b-4c1f-9b8a-000000000002",
		SenderID: sender,
		Activity: "Sunset Cruise",
	}))

	bookings, err := s.ListBookings(ctx, sender)
	require.NoError(t, err)
	require.Len(t, bookings, 2)
	assert.Equal(t, "Family Yoga & Wellness", bookings[0].Activity)
	assert.True(t, bookings[0].Known)
	assert.False(t, bookings[1].Known)

	for _, turn := range []models.Turn{
		{SenderID: sender, Role: models.RoleUser, Content: "u1"},
		{SenderID: sender, Role: models.RoleAssistant, Content: "a1"},
		{SenderID: sender, Role: models.RoleUser, Content: "u2"},
	} {
		turn := turn
		require.NoError(t, s.AppendTurn(ctx, &turn))
	}

	turns, err := s.GetTurns(ctx, sender, 2)
	require.NoError(t, err)
	require.Len(t, turns, 2)
	assert.Equal(t, "a1", turns[0].Content)
	assert.Equal(t, models.RoleAssistant, turns[0].Role)
	assert.Equal(t, "u2", turns[1].Content)

	none, err := s.ListBookings(ctx, sender+"-unknown")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestMemoryStorage(t *testing.T) {
	s := NewMemoryStorage()
	defer s.Close()

	exercise(t, s, "whatsapp:+971500000001")

	assert.Error(t, s.SaveBooking(context.Background(), nil))
	assert.Error(t, s.AppendTurn(context.Background(), nil))
}

func TestMemoryStorageReturnsCopies(t *testing.T) {
	s := NewMemoryStorage()
	ctx := context.Background()
	require.NoError(t, s.SaveBooking(ctx, &models.Booking{SenderID: "a", Activity: "Spa"}))

	got, err := s.ListBookings(ctx, "a")
	require.NoError(t, err)
	got[0].Activity = "changed"

	again, err := s.ListBookings(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "Spa", again[0].Activity)
	assert.False(t, again[0].CreatedAt.IsZero())
}

// TestPostgresStorage runs only when CONCIERGE_TEST_PGHOST points at a database.
func TestPostgresStorage(t *testing.T) {
	host := os.Getenv("CONCIERGE_TEST_PGHOST")
	if host == "" {
		t.Skip("CONCIERGE_TEST_PGHOST not set")
	}

	s, err := NewPostgresStorage(context.Background(), DatabaseConfig{
		Host:     host,
		Port:     5432,
		User:     "postgres",
		Password: os.Getenv("CONCIERGE_TEST_PGPASSWORD"),
		DBName:   "postgres",
		SSLMode:  "disable",
	}, zap.NewNop())
	require.NoError(t, err)
	defer s.Close()

	_, err = s.db.Exec(`DELETE FROM bookings WHERE sender_id = $1`, "pg-test")
	require.NoError(t, err)
	_, err = s.db.Exec(`DELETE FROM turns WHERE sender_id = $1`, "pg-test")
	require.NoError(t, err)

	exercise(t, s, "pg-test")
}

func TestDSN(t *testing.T) {
	cfg := DatabaseConfig{Host: "db", Port: 5433, User: "u", Password: "p", DBName: "concierge", SSLMode: "disable"}
	assert.Equal(t, "host=db port=5433 user=u password=p dbname=concierge sslmode=disable", cfg.DSN())
}
