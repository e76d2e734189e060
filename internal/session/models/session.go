package models

import (
	"time"

	id "gatepass/pkg/domain"
)

// State tags where a requester is in the intake conversation.
type State string

const (
	StateAwaitingContact          State = "awaiting_contact"
	StateAwaitingRegistrationName State = "awaiting_registration_name"
	StateAwaitingRegistrationFlat State = "awaiting_registration_flat"
	StateChoosingPassType         State = "choosing_pass_type"
	StateAwaitingVehiclePlate     State = "awaiting_vehicle_plate"
	StateAwaitingGuestName        State = "awaiting_guest_name"
	StateChoosingSchedule         State = "choosing_schedule"
	StateChoosingTimeOfDay        State = "choosing_time_of_day"
	StateChoosingDuration         State = "choosing_duration"

	// Terminal tags. They are reported to callers but never stored: a
	// finalized or cancelled session is cleared.
	StateFinalized State = "finalized"
	StateCancelled State = "cancelled"
)

func (s State) String() string { return string(s) }

// Requester is the identity snapshot copied onto every request.
type Requester struct {
	Name   string `json:"name,omitempty"`
	Flat   string `json:"flat,omitempty"`
	Phone  string `json:"phone,omitempty"`
	Handle string `json:"handle,omitempty"`
}

// Session is the in-progress conversation of one requester.
type Session struct {
	RequesterID id.RequesterID  `json:"requester_id"`
	State       State           `json:"state"`
	Requester   Requester       `json:"requester"`
	PassType    id.PassType     `json:"pass_type,omitempty"`
	Plate       string          `json:"plate,omitempty"`
	GuestName   string          `json:"guest_name,omitempty"`
	Schedule    id.Schedule     `json:"schedule"`
	Duration    id.StayDuration `json:"duration,omitempty"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// New starts a conversation at contact sharing.
func New(requester id.RequesterID, handle string, now time.Time) Session {
	return Session{
		RequesterID: requester,
		State:       StateAwaitingContact,
		Requester:   Requester{Handle: handle},
		UpdatedAt:   now,
	}
}

// Restart returns a session for a new request by the same, already
// identified requester: only the snapshot survives.
func (s Session) Restart(now time.Time) Session {
	return Session{
		RequesterID: s.RequesterID,
		State:       StateChoosingPassType,
		Requester:   s.Requester,
		UpdatedAt:   now,
	}
}

// ResetRequest discards everything collected for the current pass.
func (s *Session) ResetRequest() {
	s.PassType = ""
	s.Plate = ""
	s.GuestName = ""
	s.Schedule = id.Schedule{}
	s.Duration = 0
}

// IsIdentified reports whether the requester snapshot is usable on a request.
func (s Session) IsIdentified() bool {
	return s.Requester.Name != "" && s.Requester.Flat != ""
}

// IsComplete reports whether the session holds everything a request needs.
func (s Session) IsComplete() bool {
	if !s.IsIdentified() || !s.Schedule.IsComplete() || !s.Duration.IsValid() {
		return false
	}
	switch s.PassType {
	case id.PassVehicle:
		return s.Plate != ""
	case id.PassGuest:
		return s.GuestName != ""
	}
	return false
}
