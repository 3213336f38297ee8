package bot

import (
	"fmt"

	"github.com/xaenox/concierge-bot/internal/assistant"
)

type ErrorKind string

const (
	KindTransient ErrorKind = "transient"
	KindPermanent ErrorKind = "permanent"
)

// RelayError is a failure on the conversational path. Stage names the step
// that failed (session, model, cards).
type RelayError struct {
	Stage string
	Kind  ErrorKind
	Err   error
}

func (e *RelayError) Error() string {
	return fmt.Sprintf("%s failed (%s): %v", e.Stage, e.Kind, e.Err)
}

func (e *RelayError) Unwrap() error {
	return e.Err
}

func relayError(stage string, err error) *RelayError {
	kind := KindPermanent
	if assistant.IsTransient(err) {
		kind = KindTransient
	}
	return &RelayError{Stage: stage, Kind: kind, Err: err}
}
