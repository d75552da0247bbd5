package agentstream

import "leadbridge/internal/callstore"

// Telephony media-stream frames. Only the fields this bridge reads are
// modeled; unknown events pass through the switch unharmed.

type streamEnvelope struct {
	Event string       `json:"event"`
	Start *streamStart `json:"start,omitempty"`
	Media *streamMedia `json:"media,omitempty"`
}

type streamStart struct {
	CallSid          string            `json:"callSid"`
	StreamSid        string            `json:"streamSid"`
	CustomParameters map[string]string `json:"customParameters"`
}

type streamMedia struct {
	Payload string `json:"payload"`
}

type streamMediaOut struct {
	Event     string      `json:"event"`
	StreamSid string      `json:"streamSid"`
	Media     streamMedia `json:"media"`
}

// Agent-service protocol. One JSON object per websocket text frame, tagged by
// type.

const (
	agentTypeSessionInit         = "session.init"
	agentTypeConversationCreated = "conversation.created"
	agentTypeTurn                = "turn"
	agentTypeAudio               = "audio"
	agentTypeInstruction         = "instruction"
	agentTypeSessionEnded        = "session.ended"
)

type agentMessage struct {
	Type           string `json:"type"`
	ConversationID string `json:"conversation_id,omitempty"`
	Speaker        string `json:"speaker,omitempty"`
	Text           string `json:"text,omitempty"`
	Payload        string `json:"payload,omitempty"`
}

type sessionInit struct {
	Type                  string             `json:"type"`
	CallSid               string             `json:"call_sid"`
	Reconnect             bool               `json:"reconnect"`
	Lead                  callstore.LeadInfo `json:"lead"`
	SilenceTimeoutSeconds int                `json:"silence_timeout_seconds,omitempty"`
}
