package domain

import "fmt"

// PassType selects which type-specific fields a request carries.
type PassType string

const (
	PassVehicle PassType = "vehicle"
	PassGuest   PassType = "guest"
)

// ParsePassType returns an error for anything other than vehicle or guest.
func ParsePassType(s string) (PassType, error) {
	switch p := PassType(s); p {
	case PassVehicle, PassGuest:
		return p, nil
	}
	return "", fmt.Errorf("unknown pass type: %q", s)
}

func (p PassType) IsValid() bool {
	return p == PassVehicle || p == PassGuest
}

func (p PassType) String() string { return string(p) }

// ScheduleDay is the first scheduling choice offered to the requester.
type ScheduleDay string

const (
	DayImmediate ScheduleDay = "immediate"
	DayToday     ScheduleDay = "today"
	DayTomorrow  ScheduleDay = "tomorrow"
)

// DaySlot narrows a today/tomorrow choice down to a part of the day.
type DaySlot string

const (
	SlotFirstHalf  DaySlot = "first_half"
	SlotSecondHalf DaySlot = "second_half"
	SlotExact      DaySlot = "exact"
)

// Schedule is the symbolic description of when entry happens. ExactTime is
// free text typed by the requester and is only meaningful with SlotExact.
type Schedule struct {
	Day       ScheduleDay `json:"day,omitempty"`
	Slot      DaySlot     `json:"slot,omitempty"`
	ExactTime string      `json:"exact_time,omitempty"`
}

// IsComplete reports whether the schedule can be rendered into a descriptor.
func (s Schedule) IsComplete() bool {
	switch s.Day {
	case DayImmediate:
		return true
	case DayToday, DayTomorrow:
		switch s.Slot {
		case SlotFirstHalf, SlotSecondHalf:
			return true
		case SlotExact:
			return s.ExactTime != ""
		}
	}
	return false
}

// Descriptor renders the schedule the way it is persisted and shown to
// security: "immediate", "tomorrow, second half", "today, 14:30".
func (s Schedule) Descriptor() string {
	switch {
	case s.Day == DayImmediate:
		return string(DayImmediate)
	case s.Slot == SlotFirstHalf:
		return fmt.Sprintf("%s, first half", s.Day)
	case s.Slot == SlotSecondHalf:
		return fmt.Sprintf("%s, second half", s.Day)
	case s.Slot == SlotExact:
		return fmt.Sprintf("%s, %s", s.Day, s.ExactTime)
	}
	return string(s.Day)
}

// StayDuration is one of the three fixed stay buckets.
type StayDuration int

const (
	StayUpToHour  StayDuration = 1
	StayOneToTwo  StayDuration = 2
	StayTwoToFour StayDuration = 3
)

func (d StayDuration) IsValid() bool {
	return d >= StayUpToHour && d <= StayTwoToFour
}

// Label is the human readable bucket name used in summaries and row logs.
func (d StayDuration) Label() string {
	switch d {
	case StayUpToHour:
		return "up to 1 hour"
	case StayOneToTwo:
		return "1-2 hours"
	case StayTwoToFour:
		return "2-4 hours"
	}
	return ""
}
