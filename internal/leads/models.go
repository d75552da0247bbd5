package leads

import (
	"errors"
	"strings"
	"time"

	"leadbridge/internal/callstore"
	"leadbridge/internal/signals"
)

var (
	ErrInvalidLead = errors.New("leads: invalid lead")

	// ErrTooManyActiveLeads means the concurrency cap refused a new lead.
	ErrTooManyActiveLeads = errors.New("leads: too many active leads")
)

// StartRequest is the intake payload for one lead.
type StartRequest struct {
	ContactName    string `json:"contact_name" binding:"required"`
	ContactPhone   string `json:"contact_phone" binding:"required"`
	Recipient      string `json:"recipient"`
	CareReason     string `json:"care_reason"`
	CallbackNumber string `json:"callback_number"`
}

func (r StartRequest) Validate() error {
	var errs []error
	if strings.TrimSpace(r.ContactName) == "" {
		errs = append(errs, errors.New("contact_name is required"))
	}
	if strings.TrimSpace(r.ContactPhone) == "" {
		errs = append(errs, errors.New("contact_phone is required"))
	}
	if err := errors.Join(errs...); err != nil {
		return errors.Join(ErrInvalidLead, err)
	}
	return nil
}

func (r StartRequest) leadInfo() callstore.LeadInfo {
	return callstore.LeadInfo{
		ContactName:    strings.TrimSpace(r.ContactName),
		ContactPhone:   strings.TrimSpace(r.ContactPhone),
		Recipient:      strings.TrimSpace(r.Recipient),
		CareReason:     strings.TrimSpace(r.CareReason),
		CallbackNumber: strings.TrimSpace(r.CallbackNumber),
	}
}

// StartResult reports the ids of a freshly launched lead.
type StartResult struct {
	LeadID        string `json:"lead_id"`
	ContactCallID string `json:"contact_call_id"`
	SalesCallID   string `json:"sales_call_id"`
}

// Outcome is the settled end state of a lead.
type Outcome string

const (
	OutcomeBridged          Outcome = "bridged"
	OutcomeVoicemail        Outcome = "voicemail"
	OutcomeDeclined         Outcome = "declined"
	OutcomeSalesUnavailable Outcome = "sales-unavailable"
	OutcomeNoAnswer         Outcome = "no-answer"
	OutcomeIncomplete       Outcome = "incomplete"
)

// Snapshot is the immutable end-of-call summary emitted once per lead, after
// both legs are terminal. Downstream consumers (archive, event bus,
// reporting) see only this, never live records.
type Snapshot struct {
	LeadID         string             `json:"lead_id"`
	ContactCallID  string             `json:"contact_call_id"`
	SalesCallID    string             `json:"sales_call_id"`
	ConversationID string             `json:"conversation_id,omitempty"`
	Lead           callstore.LeadInfo `json:"lead"`

	Outcome              Outcome `json:"outcome"`
	Bridged              bool    `json:"bridged"`
	IsVoicemail          bool    `json:"is_voicemail"`
	SalesTeamUnavailable bool    `json:"sales_team_unavailable"`
	NeedsFollowUp        bool    `json:"needs_follow_up"`

	TranscriptTurns []callstore.Turn  `json:"transcript_turns,omitempty"`
	DerivedIntent   *callstore.Intent `json:"derived_intent,omitempty"`

	FinishedAt time.Time `json:"finished_at"`
}

// BuildSnapshot folds the two terminal leg records into one summary.
func BuildSnapshot(contact, sales callstore.Record, at time.Time) Snapshot {
	snap := Snapshot{
		LeadID:               contact.LeadID,
		ContactCallID:        contact.CallID,
		SalesCallID:          sales.CallID,
		ConversationID:       contact.ConversationID,
		Lead:                 contact.Lead,
		Bridged:              contact.BridgeComplete,
		IsVoicemail:          contact.AnsweredByMachineTrue(),
		SalesTeamUnavailable: contact.AgentUnavailableNoticeSent,
		NeedsFollowUp:        contact.NeedsFollowUp || sales.NeedsFollowUp,
		TranscriptTurns:      contact.TranscriptTurns,
		DerivedIntent:        contact.DerivedIntent,
		FinishedAt:           at.UTC(),
	}
	snap.Outcome = deriveOutcome(contact, snap)
	return snap
}

func deriveOutcome(contact callstore.Record, snap Snapshot) Outcome {
	switch {
	case snap.Bridged:
		return OutcomeBridged
	case snap.IsVoicemail:
		return OutcomeVoicemail
	case contact.DerivedIntent != nil && signals.Intent(contact.DerivedIntent.Primary).Negative():
		return OutcomeDeclined
	case snap.SalesTeamUnavailable:
		return OutcomeSalesUnavailable
	case contact.Status == callstore.StatusNoAnswer ||
		contact.Status == callstore.StatusBusy ||
		contact.Status == callstore.StatusFailed:
		return OutcomeNoAnswer
	default:
		return OutcomeIncomplete
	}
}
