package callstore

import "time"

// Role distinguishes the two legs of a lead.
type Role string

const (
	RoleContact Role = "contact"
	RoleSales   Role = "sales"
)

// LegStatus is the telephony lifecycle status of a single leg.
type LegStatus string

const (
	StatusInitiated  LegStatus = "initiated"
	StatusRinging    LegStatus = "ringing"
	StatusInProgress LegStatus = "in-progress"
	StatusCompleted  LegStatus = "completed"
	StatusBusy       LegStatus = "busy"
	StatusFailed     LegStatus = "failed"
	StatusNoAnswer   LegStatus = "no-answer"
	StatusCanceled   LegStatus = "canceled"
)

func (s LegStatus) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusBusy, StatusFailed, StatusNoAnswer, StatusCanceled:
		return true
	default:
		return false
	}
}

func (s LegStatus) Known() bool {
	switch s {
	case StatusInitiated, StatusRinging, StatusInProgress,
		StatusCompleted, StatusBusy, StatusFailed, StatusNoAnswer, StatusCanceled:
		return true
	default:
		return false
	}
}

// Rank orders statuses for out-of-order delivery: a webhook carrying a status
// that does not advance the leg is ignored.
func (s LegStatus) Rank() int {
	switch s {
	case StatusInitiated:
		return 0
	case StatusRinging:
		return 1
	case StatusInProgress:
		return 2
	default:
		return 3
	}
}

// Turn is one transcript entry attributed to a speaker.
type Turn struct {
	Speaker string    `json:"speaker"`
	Text    string    `json:"text"`
	At      time.Time `json:"at"`
}

const (
	SpeakerContact   = "contact"
	SpeakerAssistant = "assistant"
)

// Intent is a structured conversational signal derived from the transcript:
// a single primary label plus any supporting labels that fired in the same turn.
type Intent struct {
	Primary    string   `json:"primary"`
	Supporting []string `json:"supporting,omitempty"`
}

// LeadInfo is the business context for one lead, shared by both leg records.
type LeadInfo struct {
	ContactName    string `json:"contact_name"`
	ContactPhone   string `json:"contact_phone"`
	Recipient      string `json:"recipient"`
	CareReason     string `json:"care_reason"`
	CallbackNumber string `json:"callback_number,omitempty"`
}

// Record is the per-leg mutable state, keyed by the provider call id.
// It is the single source of truth for the bridging coordinator.
//
// Invariants enforced by the store:
//   - LinkedCallID never changes once set.
//   - AnsweredByMachine latches: once true it never flips back to false.
//   - BridgeComplete and BridgeFailed are terminal and mutually exclusive.
//   - BridgeAttemptStartedAt is set at most once (via BeginBridgeAttempt).
type Record struct {
	CallID       string    `json:"call_id"`
	LeadID       string    `json:"lead_id"`
	Role         Role      `json:"role"`
	Status       LegStatus `json:"status"`
	LinkedCallID string    `json:"linked_call_id"`

	Lead LeadInfo `json:"lead"`

	// AnsweredByMachine is tri-state: nil means no classification yet.
	AnsweredByMachine *bool `json:"answered_by_machine,omitempty"`

	ConferenceRoomID       string    `json:"conference_room_id,omitempty"`
	Joined                 bool      `json:"joined"`
	BridgeComplete         bool      `json:"bridge_complete"`
	BridgeFailed           bool      `json:"bridge_failed"`
	BridgeAttemptStartedAt time.Time `json:"bridge_attempt_started_at"`

	TranscriptTurns []Turn  `json:"transcript_turns,omitempty"`
	DerivedIntent   *Intent `json:"derived_intent,omitempty"`

	AgentUnavailableNoticeSent bool `json:"agent_unavailable_notice_sent"`
	NeedsFollowUp              bool `json:"needs_follow_up"`

	// PostFailureReconnect marks a contact leg reconnected to the
	// conversational agent after a failed bridge, so the agent session
	// does not re-attempt a transfer.
	PostFailureReconnect bool `json:"post_failure_reconnect"`

	// ConversationID is assigned by the agent service once the session opens.
	ConversationID string `json:"conversation_id,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// AnsweredByMachineTrue reports whether the machine latch is set.
func (r Record) AnsweredByMachineTrue() bool {
	return r.AnsweredByMachine != nil && *r.AnsweredByMachine
}

// ContactTurnCount counts transcript turns spoken by the contact.
func (r Record) ContactTurnCount() int {
	n := 0
	for _, t := range r.TranscriptTurns {
		if t.Speaker == SpeakerContact {
			n++
		}
	}
	return n
}

// Patch is a shallow partial update applied by Store.Merge. Nil fields are
// left untouched.
type Patch struct {
	LeadID       *string
	Role         *Role
	Status       *LegStatus
	LinkedCallID *string
	Lead         *LeadInfo

	AnsweredByMachine *bool

	ConferenceRoomID *string
	Joined           *bool
	BridgeComplete   *bool
	BridgeFailed     *bool

	AppendTurn    *Turn
	DerivedIntent *Intent

	AgentUnavailableNoticeSent *bool
	NeedsFollowUp              *bool
	PostFailureReconnect       *bool
	ConversationID             *string
}

// Helper constructors for common one-field patches.

func StatusPatch(s LegStatus) Patch       { return Patch{Status: &s} }
func JoinedPatch(v bool) Patch            { return Patch{Joined: &v} }
func MachinePatch(v bool) Patch           { return Patch{AnsweredByMachine: &v} }
func IntentPatch(i Intent) Patch          { return Patch{DerivedIntent: &i} }
func ConversationIDPatch(id string) Patch { return Patch{ConversationID: &id} }
