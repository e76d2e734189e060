package intake

import (
	notify "gatepass/internal/notify/models"
	session "gatepass/internal/session/models"
	id "gatepass/pkg/domain"
)

const maxExactTimeLen = 32

// scheduleMenu is shared by both pass types; only the wording differs.
func scheduleMenu(to id.RequesterID, pass id.PassType) notify.Message {
	if pass == id.PassGuest {
		return reply(to, "Choose the visit date/time:",
			notify.Action{Label: "🚶 Guest is at the gate", Key: ActionNow}, actToday, actTomorrow, actCancel)
	}
	return reply(to, "Choose the entry date/time:",
		notify.Action{Label: "🚗 Vehicle is at the gate", Key: ActionNow}, actToday, actTomorrow, actCancel)
}

// stepSchedule handles choosing_schedule and choosing_time_of_day. The
// exact time is typed while the session stays in choosing_time_of_day with
// the exact slot selected.
func stepSchedule(s session.Session, ev Event) (Result, bool) {
	switch s.State {
	case session.StateChoosingSchedule:
		switch ev.action() {
		case ActionNow:
			s.Schedule = id.Schedule{Day: id.DayImmediate}
			s.State = session.StateChoosingDuration
			return advanced(s, prompt(s)), true
		case ActionToday, ActionTomorrow:
			day := id.DayToday
			if ev.action() == ActionTomorrow {
				day = id.DayTomorrow
			}
			s.Schedule = id.Schedule{Day: day}
			s.State = session.StateChoosingTimeOfDay
			return advanced(s, prompt(s)), true
		}

	case session.StateChoosingTimeOfDay:
		if s.Schedule.Slot == id.SlotExact {
			text := ev.text()
			if text == "" || len(text) > maxExactTimeLen {
				return Result{}, false
			}
			s.Schedule.ExactTime = text
			s.State = session.StateChoosingDuration
			return advanced(s, prompt(s)), true
		}
		switch ev.action() {
		case ActionFirstHalf, ActionSecondHalf:
			s.Schedule.Slot = id.SlotFirstHalf
			if ev.action() == ActionSecondHalf {
				s.Schedule.Slot = id.SlotSecondHalf
			}
			s.State = session.StateChoosingDuration
			return advanced(s, prompt(s)), true
		case ActionExactTime:
			s.Schedule.Slot = id.SlotExact
			return advanced(s, prompt(s)), true
		}
	}
	return Result{}, false
}
