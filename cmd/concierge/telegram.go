package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/xaenox/concierge-bot/internal/telegram"
	"github.com/xaenox/concierge-bot/internal/webhook"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func newTelegramCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "telegram",
		Short: "Relay a Telegram bot through long polling",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := opts.load()
			if err != nil {
				return err
			}
			defer logger.Sync()

			if cfg.Telegram.Token == "" {
				return fmt.Errorf("telegram token is required (TELEGRAM_TOKEN)")
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer a.close()

			tg, err := telegram.New(cfg.Telegram.Token, logger)
			if err != nil {
				return err
			}

			r, err := a.newRelay(tg, true)
			if err != nil {
				return err
			}
			defer shutdown(r, logger)

			// Health, metrics and activity images only; updates arrive by polling.
			server, err := webhook.NewServer(nil, webhook.Config{
				MediaDir:       cfg.Server.MediaDir,
				DisableInbound: true,
			}, logger)
			if err != nil {
				return err
			}

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				return tg.Run(gctx, r.inbox)
			})
			g.Go(func() error {
				return server.Run(gctx, cfg.Server.Addr)
			})

			if err := g.Wait(); err != nil {
				logger.Error("Telegram relay stopped", zap.Error(err))
				return err
			}
			logger.Info("Shutting down")
			return nil
		},
	}
}
