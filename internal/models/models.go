package models

import "time"

// InboundEvent is a single message received from the messaging platform.
type InboundEvent struct {
	From       string    `json:"from"`
	To         string    `json:"to"`
	Body       string    `json:"body"`
	ReceivedAt time.Time `json:"received_at"`
}

type MessageKind string

const (
	TextMessage         MessageKind = "text"
	CardMessage         MessageKind = "card"
	ConfirmationMessage MessageKind = "confirmation"
	ApologyMessage      MessageKind = "apology"
)

// OutboundMessage is a single message pushed back to the user.
// MediaURL is empty for plain text messages.
type OutboundMessage struct {
	ID       string      `json:"id"`
	From     string      `json:"from"`
	To       string      `json:"to"`
	Body     string      `json:"body"`
	MediaURL string      `json:"media_url,omitempty"`
	Kind     MessageKind `json:"kind"`
	Seq      int         `json:"seq"`
}

// Activity describes one bookable leisure activity.
type Activity struct {
	Name        string `json:"name" yaml:"name"`
	Image       string `json:"image" yaml:"image"`
	Description string `json:"description" yaml:"description"`
	Start       string `json:"start" yaml:"start"`
	End         string `json:"end" yaml:"end"`
}

// Booking is a reservation request captured from a "Book:" command.
type Booking struct {
	ID        string    `json:"id"`
	SenderID  string    `json:"sender_id"`
	Activity  string    `json:"activity"`
	Known     bool      `json:"known"`
	CreatedAt time.Time `json:"created_at"`
}

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is an audit copy of one conversation turn.
type Turn struct {
	SenderID  string    `json:"sender_id"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}
