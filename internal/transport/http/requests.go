package httptransport

import (
	"strings"

	"gatepass/internal/intake"
	notify "gatepass/internal/notify/models"
	id "gatepass/pkg/domain"
)

// EventRequest is the body of POST /v1/events, one inbound chat update as
// forwarded by the relay.
type EventRequest struct {
	RequesterID int64              `json:"requester_id" validate:"required,gt=0"`
	Handle      string             `json:"handle,omitempty" validate:"omitempty,max=64"`
	Kind        string             `json:"kind" validate:"required,oneof=text button contact"`
	Payload     string             `json:"payload" validate:"max=4096"`
	MessageRef  *MessageRefRequest `json:"message_ref,omitempty"`
}

// MessageRefRequest identifies the message a button was pressed on.
type MessageRefRequest struct {
	ChatID    int64  `json:"chat_id"`
	MessageID string `json:"message_id" validate:"required,max=128"`
}

// ToEvent converts a validated request.
func (r *EventRequest) ToEvent() intake.Event {
	ev := intake.Event{
		RequesterID: id.RequesterID(r.RequesterID),
		Handle:      strings.TrimPrefix(strings.TrimSpace(r.Handle), "@"),
		Kind:        intake.EventKind(r.Kind),
		Payload:     r.Payload,
	}
	if r.MessageRef != nil {
		ev.MessageRef = notify.MessageRef{
			Chat:      id.ChatID(r.MessageRef.ChatID),
			MessageID: r.MessageRef.MessageID,
		}
	}
	return ev
}
