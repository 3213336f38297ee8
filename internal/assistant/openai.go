package assistant

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

type chatCompleter interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

type Config struct {
	APIKey      string
	BaseURL     string
	Model       string
	MaxTokens   int
	Temperature float64
	// MaxHistory caps the number of user/assistant turns kept per session.
	// Zero keeps everything.
	MaxHistory int
}

// OpenAIModel talks to any OpenAI-compatible chat completion endpoint.
type OpenAIModel struct {
	client      chatCompleter
	model       string
	maxTokens   int
	temperature float64
	maxHistory  int
	now         func() time.Time
	logger      *zap.Logger
}

func NewOpenAIModel(cfg Config, logger *zap.Logger) *OpenAIModel {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	return newOpenAIModel(openai.NewClientWithConfig(clientCfg), cfg, logger)
}

func newOpenAIModel(client chatCompleter, cfg Config, logger *zap.Logger) *OpenAIModel {
	return &OpenAIModel{
		client:      client,
		model:       cfg.Model,
		maxTokens:   cfg.MaxTokens,
		temperature: cfg.Temperature,
		maxHistory:  cfg.MaxHistory,
		now:         time.Now,
		logger:      logger,
	}
}

func (m *OpenAIModel) NewSession(persona string) (Session, error) {
	if strings.TrimSpace(persona) == "" {
		return nil, fmt.Errorf("assistant: persona is empty")
	}
	return &chatSession{
		model: m,
		system: openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: RenderPersona(persona, m.now()),
		},
	}, nil
}

type chatSession struct {
	mu      sync.Mutex
	model   *OpenAIModel
	system  openai.ChatCompletionMessage
	history []openai.ChatCompletionMessage
}

func (s *chatSession) Submit(ctx context.Context, text string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	user := openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: text}

	messages := make([]openai.ChatCompletionMessage, 0, len(s.history)+2)
	messages = append(messages, s.system)
	messages = append(messages, s.history...)
	messages = append(messages, user)

	resp, err := s.model.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       s.model.model,
		Messages:    messages,
		MaxTokens:   s.model.maxTokens,
		Temperature: float32(s.model.temperature),
	})
	if err != nil {
		s.model.logger.Error("Failed to get model response",
			zap.Error(err),
			zap.String("model", s.model.model),
			zap.Int("history", len(s.history)))
		return "", fmt.Errorf("chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", ErrEmptyReply
	}

	reply := resp.Choices[0].Message.Content
	s.history = append(s.history, user, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleAssistant,
		Content: reply,
	})
	s.trim()

	return reply, nil
}

// trim drops the oldest turns beyond maxHistory, keeping user/assistant pairs together.
func (s *chatSession) trim() {
	limit := s.model.maxHistory
	if limit <= 0 || len(s.history) <= limit {
		return
	}
	drop := len(s.history) - limit
	if drop%2 == 1 {
		drop++
	}
	s.history = append([]openai.ChatCompletionMessage(nil), s.history[drop:]...)
}
