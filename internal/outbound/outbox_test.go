package outbound

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twilio/twilio-go/client"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"
	"github.com/xaenox/concierge-bot/internal/models"
	"go.uber.org/zap"
)

type sent struct {
	msg models.OutboundMessage
	at  time.Time
}

type fakeSender struct {
	mu     sync.Mutex
	sent   []sent
	failOn map[string]bool
}

func (f *fakeSender) Send(_ context.Context, msg models.OutboundMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failOn[msg.Body] {
		return errors.New("transport unavailable")
	}
	f.sent = append(f.sent, sent{msg: msg, at: time.Now()})
	return nil
}

func (f *fakeSender) bodies(to string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, s := range f.sent {
		if s.msg.To == to {
			out = append(out, s.msg.Body)
		}
	}
	return out
}

func msgs(to string, bodies ...string) []models.OutboundMessage {
	out := make([]models.OutboundMessage, len(bodies))
	for i, b := range bodies {
		out[i] = models.OutboundMessage{From: "bot", To: to, Body: b, Kind: models.TextMessage, Seq: i}
	}
	return out
}

func TestNewOutboxValidates(t *testing.T) {
	_, err := NewOutbox(nil, Options{Pacing: time.Millisecond}, zap.NewNop())
	assert.Error(t, err)

	_, err = NewOutbox(&fakeSender{}, Options{}, zap.NewNop())
	assert.Error(t, err)
}

func TestOutboxPacesSendsPerRecipient(t *testing.T) {
	const pacing = 20 * time.Millisecond
	sender := &fakeSender{}
	o, err := NewOutbox(sender, Options{Pacing: pacing}, zap.NewNop())
	require.NoError(t, err)

	require.NoError(t, o.Enqueue(context.Background(), msgs("alice", "one", "two", "three")...))
	require.NoError(t, o.Close(context.Background()))

	require.Equal(t, []string{"one", "two", "three"}, sender.bodies("alice"))
	for i := 1; i < len(sender.sent); i++ {
		gap := sender.sent[i].at.Sub(sender.sent[i-1].at)
		assert.GreaterOrEqual(t, gap, pacing-5*time.Millisecond, "gap %d", i)
	}
}

func TestOutboxBatchesDoNotInterleave(t *testing.T) {
	sender := &fakeSender{}
	o, err := NewOutbox(sender, Options{Pacing: time.Millisecond}, zap.NewNop())
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, o.Enqueue(ctx, msgs("alice", "a1", "a2", "a3")...))
	require.NoError(t, o.Enqueue(ctx, msgs("alice", "b1", "b2")...))
	require.NoError(t, o.Enqueue(ctx, msgs("bob", "c1")...))
	require.NoError(t, o.Close(context.Background()))

	assert.Equal(t, []string{"a1", "a2", "a3", "b1", "b2"}, sender.bodies("alice"))
	assert.Equal(t, []string{"c1"}, sender.bodies("bob"))
}

func TestOutboxContinuesAfterFailedSend(t *testing.T) {
	sender := &fakeSender{failOn: map[string]bool{"two": true}}
	o, err := NewOutbox(sender, Options{Pacing: time.Millisecond}, zap.NewNop())
	require.NoError(t, err)

	require.NoError(t, o.Enqueue(context.Background(), msgs("alice", "one", "two", "three")...))
	require.NoError(t, o.Close(context.Background()))

	assert.Equal(t, []string{"one", "three"}, sender.bodies("alice"))
}

func TestOutboxRejectsAfterClose(t *testing.T) {
	o, err := NewOutbox(&fakeSender{}, Options{Pacing: time.Millisecond}, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, o.Close(context.Background()))

	assert.Error(t, o.Enqueue(context.Background(), msgs("alice", "late")...))
}

type fakeCreator struct {
	params []*twilioApi.CreateMessageParams
	err    error
}

func (f *fakeCreator) CreateMessage(params *twilioApi.CreateMessageParams) (*twilioApi.ApiV2010Message, error) {
	f.params = append(f.params, params)
	if f.err != nil {
		return nil, f.err
	}
	sid := "SM123"
	return &twilioApi.ApiV2010Message{Sid: &sid}, nil
}

func TestTwilioSender(t *testing.T) {
	creator := &fakeCreator{}
	s := &TwilioSender{api: creator, logger: zap.NewNop()}

	err := s.Send(context.Background(), models.OutboundMessage{
		From:     "whatsapp:+14155238886",
		To:       "whatsapp:+971500000001",
		Body:     "*Storytelling Evening*",
		MediaURL: "https://concierge.example.com/activity/story_telling.jpg",
	})
	require.NoError(t, err)
	require.Len(t, creator.params, 1)

	p := creator.params[0]
	assert.Equal(t, "whatsapp:+14155238886", *p.From)
	assert.Equal(t, "whatsapp:+971500000001", *p.To)
	assert.Equal(t, "*Storytelling Evening*", *p.Body)
	require.NotNil(t, p.MediaUrl)
	assert.Equal(t, []string{"https://concierge.example.com/activity/story_telling.jpg"}, *p.MediaUrl)

	require.NoError(t, s.Send(context.Background(), models.OutboundMessage{From: "a", To: "b", Body: "plain"}))
	assert.Nil(t, creator.params[1].MediaUrl)

	creator.err = errors.New("invalid number")
	assert.Error(t, s.Send(context.Background(), models.OutboundMessage{From: "a", To: "b", Body: "x"}))
}

func TestTwilioClientTimeout(t *testing.T) {
	rest := newRestClient("AC123", "secret", 3*time.Second)
	c, ok := rest.RequestHandler.Client.(*client.Client)
	require.True(t, ok)
	require.NotNil(t, c.HTTPClient)
	assert.Equal(t, 3*time.Second, c.HTTPClient.Timeout)

	rest = newRestClient("AC123", "secret", 0)
	c = rest.RequestHandler.Client.(*client.Client)
	assert.Equal(t, DefaultSendTimeout, c.HTTPClient.Timeout)
}
