package notify

import (
	"fmt"
	"strings"

	ledger "gatepass/internal/ledger/models"
	id "gatepass/pkg/domain"
)

const acceptedMark = "\n\n✅ Accepted"

// RenderSummary formats a request the same way for the requester and for
// security.
func RenderSummary(req *ledger.Request) string {
	var b strings.Builder
	fmt.Fprintf(&b, "✅ Request #%s\n", req.ID)
	switch req.PassType {
	case id.PassVehicle:
		fmt.Fprintf(&b, "🚗 Plate: %s\n", req.Plate)
	case id.PassGuest:
		fmt.Fprintf(&b, "👤 Guest: %s\n", req.GuestName)
	}
	fmt.Fprintf(&b, "📅 When: %s\n", req.Schedule.Descriptor())
	fmt.Fprintf(&b, "⏱️ Duration: %s\n\n", req.Duration.Label())
	b.WriteString("📌 REQUESTER\n")
	fmt.Fprintf(&b, "👤 Name: %s\n", req.Requester.Name)
	fmt.Fprintf(&b, "🏠 Flat: %s\n", req.Requester.Flat)
	fmt.Fprintf(&b, "📞 Phone: %s\n", req.Requester.Phone)
	if req.Requester.Handle != "" {
		fmt.Fprintf(&b, "📲 Handle: @%s\n", req.Requester.Handle)
	}
	fmt.Fprintf(&b, "📌 Status: %s", req.Status)
	return b.String()
}

func acceptedNotice(request id.RequestID) string {
	return fmt.Sprintf("✅ Your request #%s was accepted by security.", request)
}
