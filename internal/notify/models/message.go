package models

import (
	id "gatepass/pkg/domain"
)

// Action is one button offered under a message. Key is what comes back as
// the button payload when it is pressed.
type Action struct {
	Label string `json:"label"`
	Key   string `json:"key"`
}

// Recipient tells which side of the conversation a message is for.
type Recipient string

const (
	RecipientRequester Recipient = "requester"
	RecipientSecurity  Recipient = "security"
)

// Message is one outbound chat message.
type Message struct {
	To      id.ChatID `json:"to"`
	Text    string    `json:"text"`
	Actions []Action  `json:"actions,omitempty"`

	// Recipient and RequestID are routing metadata; they are not sent.
	Recipient Recipient    `json:"-"`
	RequestID id.RequestID `json:"-"`
}

// MessageRef addresses a message already delivered, for later edits.
type MessageRef struct {
	Chat      id.ChatID `json:"chat_id"`
	MessageID string    `json:"message_id"`
}

// IsZero reports whether the reference points nowhere.
func (r MessageRef) IsZero() bool {
	return r.MessageID == ""
}
