package intake

import (
	"fmt"
	"strings"

	notify "gatepass/internal/notify/models"
	session "gatepass/internal/session/models"
	id "gatepass/pkg/domain"
)

const (
	textContactPrompt  = "To continue, please share your 📱 phone number."
	textAskName        = "Enter your 👤 first and last name:"
	textNotFound       = "Phone number not found. " + textAskName
	textAskFlat        = "Enter your 🏠 flat number:"
	textMenu           = "Choose an action:"
	textAskPlate       = "Enter the 🚗 vehicle plate number:"
	textAskGuest       = "Enter the 👤 guest's first and last name:"
	textAskTimeOfDay   = "Choose the time:"
	textAskExactTime   = "Enter the ⏰ exact time (for example 14:30):"
	textAskDuration    = "Choose the ⏱ length of stay:"
	textCancelled      = "❌ Cancelled. Start again with /start"
	textDenied         = "⛔ You do not have access to this service."
	textUnavailable    = "⚠️ The service is temporarily unavailable. Please try again in a moment."
	textDirectoryTitle = "📞 Security phone numbers:"
)

var (
	actShareContact = notify.Action{Label: "📱 Share phone number", Key: ActionShareContact}
	actVehicle      = notify.Action{Label: "🚗 Vehicle pass", Key: ActionVehicle}
	actGuest        = notify.Action{Label: "👤 Guest pass", Key: ActionGuest}
	actDirectory    = notify.Action{Label: "📞 Security phone numbers", Key: ActionDirectory}
	actCancel       = notify.Action{Label: "❌ Cancel", Key: ActionCancel}
	actBack         = notify.Action{Label: "⬅️ Back", Key: ActionBack}
	actToday        = notify.Action{Label: "📅 During the day", Key: ActionToday}
	actTomorrow     = notify.Action{Label: "➡️ Tomorrow", Key: ActionTomorrow}
	actFirstHalf    = notify.Action{Label: "🌅 First half of the day", Key: ActionFirstHalf}
	actSecondHalf   = notify.Action{Label: "🌆 Second half of the day", Key: ActionSecondHalf}
	actExactTime    = notify.Action{Label: "⏰ Exact time", Key: ActionExactTime}
	actDurations    = []notify.Action{
		{Label: "⏱ Up to 1 hour", Key: "dur:1"},
		{Label: "⏱ 1-2 hours", Key: "dur:2"},
		{Label: "⏱ 2-4 hours", Key: "dur:3"},
	}
)

func reply(to id.RequesterID, text string, actions ...notify.Action) notify.Message {
	return notify.Message{
		To:        to.Chat(),
		Text:      text,
		Actions:   actions,
		Recipient: notify.RecipientRequester,
	}
}

func menu(to id.RequesterID) notify.Message {
	return reply(to, textMenu, actVehicle, actGuest, actDirectory, actCancel)
}

// prompt re-presents what the session is currently waiting for.
func prompt(s session.Session) notify.Message {
	to := s.RequesterID
	switch s.State {
	case session.StateAwaitingContact:
		return reply(to, textContactPrompt, actShareContact)
	case session.StateAwaitingRegistrationName:
		return reply(to, textAskName)
	case session.StateAwaitingRegistrationFlat:
		return reply(to, textAskFlat)
	case session.StateChoosingPassType:
		return menu(to)
	case session.StateAwaitingVehiclePlate:
		return reply(to, textAskPlate, actBack, actCancel)
	case session.StateAwaitingGuestName:
		return reply(to, textAskGuest, actBack, actCancel)
	case session.StateChoosingSchedule:
		return scheduleMenu(to, s.PassType)
	case session.StateChoosingTimeOfDay:
		if s.Schedule.Slot == id.SlotExact {
			return reply(to, textAskExactTime, actCancel)
		}
		return reply(to, textAskTimeOfDay, actFirstHalf, actSecondHalf, actExactTime, actCancel)
	case session.StateChoosingDuration:
		return reply(to, textAskDuration, append(append([]notify.Action{}, actDurations...), actCancel)...)
	}
	return reply(to, textCancelled)
}

func welcome(to id.RequesterID, name, flat string) notify.Message {
	return reply(to, fmt.Sprintf("Welcome, %s! 🏠 Flat %s found.", name, flat))
}

func registered(to id.RequesterID, name, flat string) notify.Message {
	return reply(to, fmt.Sprintf("✅ Registered: %s, flat %s.", name, flat))
}

func directory(to id.RequesterID, phones []string) notify.Message {
	var b strings.Builder
	b.WriteString(textDirectoryTitle)
	for _, p := range phones {
		b.WriteString("\n🔒 ")
		b.WriteString(p)
	}
	return reply(to, b.String())
}

func identity(to id.RequesterID) notify.Message {
	return reply(to, "Your ID: "+to.String())
}
