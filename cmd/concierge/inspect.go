package main

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"github.com/xaenox/concierge-bot/internal/catalog"
	"github.com/xaenox/concierge-bot/internal/storage"
	"go.uber.org/zap"
)

func newActivitiesCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "activities",
		Short: "List the activity catalog",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := opts.load()
			if err != nil {
				return err
			}
			defer logger.Sync()

			cat, err := loadCatalog(cfg)
			if err != nil {
				return err
			}
			printActivities(cmd.OutOrStdout(), cat)
			return nil
		},
	}
}

func newHistoryCommand(opts *rootOptions) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history <sender>",
		Short: "Show bookings and recent conversation turns for a sender",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := opts.load()
			if err != nil {
				return err
			}
			defer logger.Sync()

			if cfg.Database.UseInMemory {
				logger.Warn("In-memory storage holds no history across processes")
			}

			store, err := openStorage(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer func() {
				if err := store.Close(); err != nil {
					logger.Error("Failed to close storage", zap.Error(err))
				}
			}()

			return printHistory(cmd.Context(), cmd.OutOrStdout(), store, args[0], limit)
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "number of recent turns to show")
	return cmd
}

func printActivities(w io.Writer, cat *catalog.Catalog) {
	for _, a := range cat.Activities() {
		fmt.Fprintf(w, "%-32s %s to %s\n", a.Name, a.Start, a.End)
	}
}

func printHistory(ctx context.Context, w io.Writer, store storage.Storage, sender string, limit int) error {
	bookings, err := store.ListBookings(ctx, sender)
	if err != nil {
		return fmt.Errorf("failed to list bookings: %w", err)
	}
	turns, err := store.GetTurns(ctx, sender, limit)
	if err != nil {
		return fmt.Errorf("failed to get turns: %w", err)
	}

	fmt.Fprintf(w, "Bookings (%d)\n", len(bookings))
	for _, b := range bookings {
		name := b.Activity
		if name == "" {
			name = "(unspecified)"
		}
		fmt.Fprintf(w, "  %s  %s\n", b.CreatedAt.Format("2006-01-02 15:04"), name)
	}

	fmt.Fprintf(w, "Turns (%d)\n", len(turns))
	for _, t := range turns {
		fmt.Fprintf(w, "  %s  %-9s %s\n", t.CreatedAt.Format("2006-01-02 15:04"), t.Role, t.Content)
	}
	return nil
}
