package outbound

import (
	"context"
	"fmt"
	"time"

	twilio "github.com/twilio/twilio-go"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"
	"github.com/xaenox/concierge-bot/internal/models"
	"go.uber.org/zap"
)

type messageCreator interface {
	CreateMessage(params *twilioApi.CreateMessageParams) (*twilioApi.ApiV2010Message, error)
}

// TwilioSender sends SMS and WhatsApp messages through the Twilio REST API.
type TwilioSender struct {
	api    messageCreator
	logger *zap.Logger
}

// NewTwilioSender builds a sender on the Twilio REST client. The SDK takes
// no context, so timeout is applied to its HTTP client instead.
func NewTwilioSender(accountSID, authToken string, timeout time.Duration, logger *zap.Logger) *TwilioSender {
	return &TwilioSender{api: newRestClient(accountSID, authToken, timeout).Api, logger: logger}
}

func newRestClient(accountSID, authToken string, timeout time.Duration) *twilio.RestClient {
	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: accountSID,
		Password: authToken,
	})
	if timeout <= 0 {
		timeout = DefaultSendTimeout
	}
	client.RequestHandler.Client.SetTimeout(timeout)
	return client
}

func (s *TwilioSender) Send(ctx context.Context, msg models.OutboundMessage) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	params := &twilioApi.CreateMessageParams{}
	params.SetFrom(msg.From)
	params.SetTo(msg.To)
	params.SetBody(msg.Body)
	if msg.MediaURL != "" {
		params.SetMediaUrl([]string{msg.MediaURL})
	}

	resp, err := s.api.CreateMessage(params)
	if err != nil {
		return fmt.Errorf("twilio create message: %w", err)
	}

	if resp != nil && resp.Sid != nil {
		s.logger.Debug("Message accepted by Twilio",
			zap.String("sid", *resp.Sid),
			zap.String("message_id", msg.ID),
			zap.String("to", msg.To))
	}
	return nil
}
