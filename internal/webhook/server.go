// Package webhook exposes the HTTP endpoint the messaging platform posts
// inbound messages to.
package webhook

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/twilio/twilio-go/client"
	"github.com/twilio/twilio-go/twiml"
	"github.com/xaenox/concierge-bot/internal/models"
	"go.uber.org/zap"
)

const (
	signatureHeader = "X-Twilio-Signature"
	emptyResponse   = `<?xml version="1.0" encoding="UTF-8"?><Response></Response>`
)

// EventSink accepts inbound events for processing.
type EventSink interface {
	Accept(event models.InboundEvent) error
}

type Config struct {
	Path string
	// ValidateSignature checks X-Twilio-Signature against AuthToken and
	// the public URL of the endpoint.
	ValidateSignature bool
	AuthToken         string
	PublicBaseURL     string
	// MediaDir, when set, is served under /activity.
	MediaDir string
	// DisableInbound leaves out the inbound route, for transports that
	// receive messages some other way.
	DisableInbound bool
}

type Server struct {
	engine    *gin.Engine
	server    *http.Server
	sink      EventSink
	cfg       Config
	validator client.RequestValidator
	ack       []byte
	logger    *zap.Logger
}

func NewServer(sink EventSink, cfg Config, logger *zap.Logger) (*Server, error) {
	if sink == nil && !cfg.DisableInbound {
		return nil, fmt.Errorf("webhook: sink is required")
	}
	if cfg.Path == "" {
		cfg.Path = "/whatsapp"
	}
	if cfg.ValidateSignature && (cfg.AuthToken == "" || cfg.PublicBaseURL == "") {
		return nil, fmt.Errorf("webhook: signature validation needs an auth token and a public base url")
	}

	ack, err := twiml.Messages(nil)
	if err != nil {
		logger.Warn("Failed to render TwiML acknowledgment, using static body", zap.Error(err))
		ack = emptyResponse
	}

	s := &Server{
		sink:      sink,
		cfg:       cfg,
		validator: client.NewRequestValidator(cfg.AuthToken),
		ack:       []byte(ack),
		logger:    logger,
	}

	engine := gin.New()
	engine.Use(requestLogger(logger))
	engine.Use(recovery(logger))

	if !cfg.DisableInbound {
		engine.POST(cfg.Path, s.handleInbound)
	}
	engine.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	engine.GET("/metrics", gin.WrapH(promhttp.Handler()))
	if cfg.MediaDir != "" {
		engine.Static("/activity", cfg.MediaDir)
	}

	s.engine = engine
	return s, nil
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.engine
}

func (s *Server) handleInbound(c *gin.Context) {
	if err := c.Request.ParseForm(); err != nil {
		s.logger.Warn("Failed to parse webhook form, acknowledging anyway",
			zap.Error(err),
			zap.String("remote_addr", c.ClientIP()))
		c.Data(http.StatusOK, "text/xml; charset=utf-8", s.ack)
		return
	}

	if s.cfg.ValidateSignature && !s.validSignature(c) {
		s.logger.Warn("Rejected webhook with invalid signature",
			zap.String("remote_addr", c.ClientIP()))
		c.String(http.StatusForbidden, "invalid signature")
		return
	}

	event := models.InboundEvent{
		From:       c.PostForm("From"),
		To:         c.PostForm("To"),
		Body:       c.PostForm("Body"),
		ReceivedAt: time.Now(),
	}

	if event.From == "" {
		s.logger.Warn("Webhook without sender, ignoring")
	} else if err := s.sink.Accept(event); err != nil {
		s.logger.Error("Failed to accept inbound message",
			zap.Error(err),
			zap.String("from", event.From))
	}

	// The platform only needs an acknowledgment; replies go out through the API.
	c.Data(http.StatusOK, "text/xml; charset=utf-8", s.ack)
}

func (s *Server) validSignature(c *gin.Context) bool {
	params := make(map[string]string, len(c.Request.PostForm))
	for key, values := range c.Request.PostForm {
		if len(values) > 0 {
			params[key] = values[0]
		}
	}
	url := strings.TrimRight(s.cfg.PublicBaseURL, "/") + c.Request.URL.RequestURI()
	return s.validator.Validate(url, params, c.GetHeader(signatureHeader))
}

// Run serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Webhook server listening",
				zap.String("addr", addr),
				zap.String("path", s.cfg.Path),
				zap.Bool("inbound", !s.cfg.DisableInbound))
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("webhook shutdown: %w", err)
	}
	return nil
}
