package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/xaenox/concierge-bot/internal/outbound"
	"github.com/xaenox/concierge-bot/internal/webhook"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func newServeCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the WhatsApp webhook and reply through Twilio",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := opts.load()
			if err != nil {
				return err
			}
			defer logger.Sync()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer a.close()

			if !cfg.TwilioConfigured() {
				logger.Warn("Twilio credentials missing, replies are disabled")
			}
			sender := outbound.NewTwilioSender(cfg.Twilio.AccountSID, cfg.Twilio.AuthToken, cfg.Outbound.SendTimeout, logger)

			r, err := a.newRelay(sender, cfg.TwilioConfigured())
			if err != nil {
				return err
			}
			defer shutdown(r, logger)

			server, err := webhook.NewServer(r.inbox, webhook.Config{
				Path:              cfg.Server.WebhookPath,
				ValidateSignature: cfg.Twilio.ValidateSignature,
				AuthToken:         cfg.Twilio.AuthToken,
				PublicBaseURL:     cfg.Server.PublicBaseURL,
				MediaDir:          cfg.Server.MediaDir,
			}, logger)
			if err != nil {
				return err
			}

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				return server.Run(gctx, cfg.Server.Addr)
			})

			if err := g.Wait(); err != nil {
				logger.Error("Webhook server stopped", zap.Error(err))
				return err
			}
			logger.Info("Shutting down")
			return nil
		},
	}
}
