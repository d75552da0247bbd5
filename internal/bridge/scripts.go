package bridge

import (
	"fmt"
	"strings"

	"leadbridge/internal/callstore"
	"leadbridge/internal/signals"
)

// Spoken lines and agent instructions issued by the coordinator. Kept in one
// place so the voice of the product can be reviewed and edited together.

// RoomID derives the conference room name for a lead from its sales leg call
// id. Deterministic so a crashed-and-replayed webhook still lands both legs in
// the same room.
func RoomID(salesCallID string) string {
	return "lead-room-" + salesCallID
}

// SalesAnnouncement is spoken to the sales representative before their leg
// joins the room, so they know who is on the line and why.
func SalesAnnouncement(lead callstore.LeadInfo) string {
	name := lead.ContactName
	if name == "" {
		name = "a new lead"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Connecting you with %s", name)
	if lead.CareReason != "" {
		fmt.Fprintf(&b, ", calling about %s", lead.CareReason)
	}
	if lead.Recipient != "" {
		fmt.Fprintf(&b, " for %s", lead.Recipient)
	}
	b.WriteString(".")
	return b.String()
}

// ContactAnnouncement is spoken to the contact as their leg moves into the
// room.
func ContactAnnouncement() string {
	return "Please hold for just a moment while I connect you with our care team."
}

// VoicemailInstruction tells the agent session to leave a short voicemail and
// wrap up.
func VoicemailInstruction(lead callstore.LeadInfo) string {
	var b strings.Builder
	b.WriteString("This call reached voicemail. Leave a brief message")
	if lead.ContactName != "" {
		fmt.Fprintf(&b, " for %s", lead.ContactName)
	}
	b.WriteString(" saying we called about their care inquiry and will try again, then end the call.")
	return b.String()
}

// SalesUnavailableInstruction tells the agent session to carry the
// conversation alone because no representative will join.
func SalesUnavailableInstruction() string {
	return "Our care team is not available to join this call. Apologize briefly, let them know a specialist will follow up soon, and continue helping with anything you can answer now."
}

// ContactMachineMessage is spoken to the sales representative when the contact
// leg turned out to be a machine.
func ContactMachineMessage() string {
	return "The contact's line was answered by a voicemail system, so there is no one to connect right now. You can hang up."
}

// ContactLostMessage is spoken to the sales representative when the contact
// dropped before or during the transfer.
func ContactLostMessage() string {
	return "The contact is no longer on the line, so the transfer cannot complete. We will follow up with them separately. You can hang up."
}

// PauseAcknowledgement tells the agent how to react to a pause or reschedule
// cue from the contact.
func PauseAcknowledgement(sig signals.RescheduleSignal) string {
	switch sig.Kind {
	case signals.KindReschedule:
		if sig.CallbackTime != "" {
			return fmt.Sprintf("The contact asked to be called back around %s. Confirm the time, thank them, and wrap up politely.", sig.CallbackTime)
		}
		return "The contact asked to be called back another time. Ask when works best, confirm it, and wrap up politely."
	default:
		return "The contact asked for a moment. Pause, wait quietly, and resume when they return."
	}
}
