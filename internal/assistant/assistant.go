package assistant

import (
	"context"
	"errors"
	"net"
	"net/http"

	"github.com/sashabaranov/go-openai"
)

// ErrEmptyReply is returned when the model answers without any choice.
var ErrEmptyReply = errors.New("assistant: model returned no choices")

// Model creates conversation sessions bound to a persona.
type Model interface {
	NewSession(persona string) (Session, error)
}

// Session is one ongoing dialogue. Submit appends the text as the next
// user turn and returns the model's reply; the transcript is kept by the
// session so later calls see earlier turns.
type Session interface {
	Submit(ctx context.Context, text string) (string, error)
}

// IsTransient reports whether err is worth retrying later: timeouts,
// rate limiting and server-side failures.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return retryableStatus(apiErr.HTTPStatusCode)
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return retryableStatus(reqErr.HTTPStatusCode)
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}

	return false
}

func retryableStatus(code int) bool {
	return code == http.StatusTooManyRequests || code >= http.StatusInternalServerError
}
