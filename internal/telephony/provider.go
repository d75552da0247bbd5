package telephony

import "context"

// Provider is the provider-agnostic command surface used by the coordinator
// and the lead service.
//
// Rules:
//   - No provider SDK calls outside telephony adapters.
//   - Command failures are returned, never retried here; the caller decides
//     whether a timeout path will settle the outcome.
type Provider interface {
	Name() string

	// CreateCall places an outbound call and returns the provider call id.
	CreateCall(ctx context.Context, req CreateCallRequest) (string, error)

	// JoinConference redirects an in-progress leg into a named conference
	// room, optionally speaking an announcement first.
	JoinConference(ctx context.Context, callID string, req JoinConferenceRequest) error

	// RedirectToStream reconnects a leg to the media-stream endpoint,
	// re-attaching it to the conversational agent.
	RedirectToStream(ctx context.Context, callID string, req RedirectToStreamRequest) error

	// SayThenHangup speaks a short message on the leg and ends it.
	SayThenHangup(ctx context.Context, callID string, message string) error

	// Hangup ends the leg immediately.
	Hangup(ctx context.Context, callID string) error
}

// CreateCallRequest places one outbound leg.
type CreateCallRequest struct {
	To string

	// InstructionURL serves the initial call instructions when the leg
	// answers.
	InstructionURL string

	// StatusCallbackURL receives leg status webhooks.
	StatusCallbackURL string

	// MachineDetection enables async AMD with results delivered to
	// AMDCallbackURL. Only the contact leg sets this.
	MachineDetection bool
	AMDCallbackURL   string
}

// JoinConferenceRequest merges a leg into a shared audio room.
type JoinConferenceRequest struct {
	Room string

	// Announcement, when non-empty, is spoken to the leg before it joins.
	Announcement string

	// HoldMusicURL plays while the leg waits alone in the room.
	HoldMusicURL string

	// EndConferenceOnExit tears the room down when this leg leaves.
	EndConferenceOnExit bool

	// StatusCallbackURL receives participant join/leave webhooks.
	StatusCallbackURL string
}

// RedirectToStreamRequest re-attaches a leg to the agent media stream.
type RedirectToStreamRequest struct {
	StreamURL string

	// Parameters are passed to the stream start message as custom
	// parameters (e.g. the post-failure reconnect flag).
	Parameters map[string]string
}
