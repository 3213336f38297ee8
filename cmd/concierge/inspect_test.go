package main

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xaenox/concierge-bot/internal/catalog"
	"github.com/xaenox/concierge-bot/internal/models"
	"github.com/xaenox/concierge-bot/internal/storage"
)

func TestPrintActivities(t *testing.T) {
	cat, err := catalog.Default()
	require.NoError(t, err)

	var out bytes.Buffer
	printActivities(&out, cat)

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	assert.Len(t, lines, len(cat.Activities()))
	assert.True(t, strings.HasPrefix(lines[0], cat.Activities()[0].Name))
}

func TestPrintHistory(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStorage()
	at := time.Date(2026, 3, 14, 18, 30, 0, 0, time.UTC)
	const sender = "whatsapp:+971500000001"

	require.NoError(t, store.SaveBooking(ctx, &models.Booking{
		SenderID: sender, Activity: "Family Yoga & Wellness", Known: true, CreatedAt: at,
	}))
	require.NoError(t, store.SaveBooking(ctx, &models.Booking{SenderID: sender, CreatedAt: at}))
	require.NoError(t, store.AppendTurn(ctx, &models.Turn{
		SenderID: sender, Role: models.RoleUser, Content: "Thank you", CreatedAt: at,
	}))
	require.NoError(t, store.AppendTurn(ctx, &models.Turn{
		SenderID: "whatsapp:+971500000002", Role: models.RoleUser, Content: "other guest", CreatedAt: at,
	}))

	var out bytes.Buffer
	require.NoError(t, printHistory(ctx, &out, store, sender, 10))

	got := out.String()
	assert.Contains(t, got, "Bookings (2)")
	assert.Contains(t, got, "2026-03-14 18:30  Family Yoga & Wellness")
	assert.Contains(t, got, "(unspecified)")
	assert.Contains(t, got, "Turns (1)")
	assert.Contains(t, got, "Thank you")
	assert.NotContains(t, got, "other guest")
}

func TestRootCommandTree(t *testing.T) {
	root := newRootCommand()

	var names []string
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}
	assert.ElementsMatch(t, []string{"serve", "telegram", "activities", "history"}, names)

	for _, flag := range []string{"config", "env-file"} {
		assert.NotNil(t, root.PersistentFlags().Lookup(flag), flag)
	}
}
