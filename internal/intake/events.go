package intake

import (
	"fmt"
	"strings"

	notify "gatepass/internal/notify/models"
	id "gatepass/pkg/domain"
)

// EventKind is resolved once at the transport boundary so the machine never
// has to guess what an inbound update carries.
type EventKind string

const (
	KindText    EventKind = "text"
	KindButton  EventKind = "button"
	KindContact EventKind = "contact"
)

func ParseEventKind(s string) (EventKind, error) {
	switch k := EventKind(s); k {
	case KindText, KindButton, KindContact:
		return k, nil
	}
	return "", fmt.Errorf("unknown event kind: %q", s)
}

// Event is one inbound update from a requester. Payload is the typed text,
// the pressed action key or the shared phone number depending on Kind.
// MessageRef is the message a button was pressed on, when known.
type Event struct {
	RequesterID id.RequesterID
	Handle      string
	Kind        EventKind
	Payload     string
	MessageRef  notify.MessageRef
}

// Action keys carried by buttons.
const (
	ActionVehicle      = "pass:vehicle"
	ActionGuest        = "pass:guest"
	ActionDirectory    = "directory"
	ActionCancel       = "cancel"
	ActionBack         = "back"
	ActionNewRequest   = "new_request"
	ActionNow          = "sched:now"
	ActionToday        = "sched:today"
	ActionTomorrow     = "sched:tomorrow"
	ActionFirstHalf    = "slot:first_half"
	ActionSecondHalf   = "slot:second_half"
	ActionExactTime    = "slot:exact"
	ActionShareContact = "contact:share"
)

var durationActions = map[string]id.StayDuration{
	"dur:1": id.StayUpToHour,
	"dur:2": id.StayOneToTwo,
	"dur:3": id.StayTwoToFour,
}

// Text commands.
const (
	CommandStart  = "/start"
	CommandCancel = "/cancel"
	CommandID     = "/id"
)

// command returns the command an event carries, if any. "/start@botname"
// style suffixes are ignored.
func (e Event) command() string {
	if e.Kind != KindText {
		return ""
	}
	text := strings.TrimSpace(e.Payload)
	if !strings.HasPrefix(text, "/") {
		return ""
	}
	cmd, _, _ := strings.Cut(strings.Fields(text)[0], "@")
	return strings.ToLower(cmd)
}

// text returns trimmed free text, or "" for commands and non-text events.
func (e Event) text() string {
	if e.Kind != KindText {
		return ""
	}
	text := strings.TrimSpace(e.Payload)
	if strings.HasPrefix(text, "/") {
		return ""
	}
	return text
}

// action returns the pressed action key, or "" for non-button events.
func (e Event) action() string {
	if e.Kind != KindButton {
		return ""
	}
	return strings.TrimSpace(e.Payload)
}
